package preflight

import (
	"context"
	"strings"

	"hillview/internal/config"
)

// CheckBackendFromConfig evaluates upload backend status from config and
// connectivity, for status UIs that want a single call.
func CheckBackendFromConfig(cfg *config.Config) Result {
	const name = "Upload backend"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.Upload.BaseURL) == "" {
		return Result{Name: name, Detail: "Missing base URL"}
	}
	if strings.TrimSpace(cfg.Upload.AuthToken) == "" {
		return Result{Name: name, Detail: "Missing auth token"}
	}
	check := CheckBackend(context.Background(), cfg.Upload.BaseURL, cfg.Upload.AuthToken)
	if check.Passed {
		return Result{Name: name, Passed: true, Detail: check.Detail}
	}
	return Result{Name: name, Detail: check.Detail}
}
