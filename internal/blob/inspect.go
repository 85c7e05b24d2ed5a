package blob

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const sniffLen = 512

// Content the browser could execute or render as a page is never stored,
// whatever the file is called.
var blockedMimeTypes = map[string]bool{
	"image/svg+xml":               true,
	"text/html":                   true,
	"application/xhtml+xml":       true,
	"application/javascript":      true,
	"text/javascript":             true,
	"application/x-javascript":    true,
	"application/x-httpd-php":     true,
	"application/x-sh":            true,
	"application/x-msdownload":    true,
	"application/x-msdos-program": true,
}

// executableMagics are the leading bytes of PE, ELF and Mach-O binaries and
// of shebang scripts.
var executableMagics = [][]byte{
	[]byte("MZ"),
	{0x7f, 'E', 'L', 'F'},
	{0xfe, 0xed, 0xfa, 0xce},
	{0xce, 0xfa, 0xed, 0xfe},
	{0xfe, 0xed, 0xfa, 0xcf},
	{0xcf, 0xfa, 0xed, 0xfe},
	{0xca, 0xfe, 0xba, 0xbe},
	{0xbe, 0xba, 0xfe, 0xca},
	[]byte("#!"),
}

// inspect sniffs the head of src and returns the detected MIME type with a
// reader that replays the whole content.
func inspect(src io.Reader) (string, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(src, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", nil, fmt.Errorf("reading attachment: %w", err)
	}
	head = head[:n]

	for _, magic := range executableMagics {
		if bytes.HasPrefix(head, magic) {
			return "", nil, ErrExecutableFile
		}
	}

	mimeType := "application/octet-stream"
	if len(head) > 0 {
		mimeType = http.DetectContentType(head)
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType == "" || blockedMimeTypes[mimeType] {
		return "", nil, ErrDisallowedType
	}

	return mimeType, io.MultiReader(bytes.NewReader(head), src), nil
}

const maxOriginalNameBytes = 255

func cleanOriginalName(name string) string {
	name = strings.TrimSpace(filepath.Base(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "upload.bin"
	}
	return truncateUTF8(name, maxOriginalNameBytes)
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
