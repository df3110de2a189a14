package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// TinyJPEG returns a minimal structurally valid JPEG: SOI, a JFIF APP0
// segment, and EOI. Enough for the Exif writer and the upload path;
// not decodable image data.
func TinyJPEG() []byte {
	return []byte{
		0xFF, 0xD8, // SOI
		0xFF, 0xE0, 0x00, 0x10, // APP0, length 16
		'J', 'F', 'I', 'F', 0x00,
		0x01, 0x02, // version 1.2
		0x00,       // aspect ratio units
		0x00, 0x01, // x density
		0x00, 0x01, // y density
		0x00, 0x00, // no thumbnail
		0xFF, 0xD9, // EOI
	}
}

// WriteJPEG writes the tiny JPEG fixture to the target path.
func WriteJPEG(t testing.TB, path string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, TinyJPEG(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
