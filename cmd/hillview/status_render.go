package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

const (
	ansiReset = "\x1b[0m"
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
	ansiBlue  = "\x1b[34m"
)

const checkLabelWidth = 18

// renderCheckLine formats one preflight result as an aligned
// "Name: [OK] detail" line, green or red when writing to a terminal.
func renderCheckLine(name string, passed bool, detail string, colorize bool) string {
	verdict := "[ERROR]"
	color := ansiRed
	if passed {
		verdict = "[OK]"
		color = ansiGreen
	}
	if detail != "" {
		verdict += " " + detail
	}
	line := fmt.Sprintf("  %-*s %s", checkLabelWidth, name+":", verdict)
	if colorize {
		return color + line + ansiReset
	}
	return line
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
