package term

import (
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const sniffLen = 512

// isImage classifies a file by the MIME type guessed from its extension,
// falling back to content sniffing when the extension is unknown.
func isImage(path string) bool {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		return strings.HasPrefix(t, "image/")
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false
	}
	return strings.HasPrefix(http.DetectContentType(buf[:n]), "image/")
}
