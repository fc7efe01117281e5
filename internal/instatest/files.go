package instatest

import (
	"os"
	"path/filepath"
	"testing"
)

// Minimal headers that content sniffing recognizes.
var (
	jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00}
	pngHeader  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n', 0x00, 0x00, 0x00, 0x0D, 'I', 'H', 'D', 'R'}
	mp4Header  = []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00, 'i', 's', 'o', 'm', 'i', 's', 'o', '2'}
)

// WriteFile writes data to dir/name and returns the path.
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func WriteJPEG(t testing.TB, dir, name string) string {
	t.Helper()
	return WriteFile(t, dir, name, append(append([]byte(nil), jpegHeader...), make([]byte, 64)...))
}

func WritePNG(t testing.TB, dir, name string) string {
	t.Helper()
	return WriteFile(t, dir, name, append(append([]byte(nil), pngHeader...), make([]byte, 64)...))
}

func WriteMP4(t testing.TB, dir, name string) string {
	t.Helper()
	return WriteFile(t, dir, name, append(append([]byte(nil), mp4Header...), make([]byte, 64)...))
}

// WriteText writes a file that sniffs as text/plain.
func WriteText(t testing.TB, dir, name string) string {
	t.Helper()
	return WriteFile(t, dir, name, []byte("definitely not an image\n"))
}
