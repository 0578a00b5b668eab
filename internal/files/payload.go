package files

import (
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// NoFile is the literal a form posts for a file input left empty.
const NoFile = "null"

const (
	maxFilenameLen = 255
	maxExtLen      = 16
)

var (
	ErrMissingMime    = errors.New("payload has no mime type")
	ErrMissingPayload = errors.New("payload has no data")

	tokenPattern = regexp.MustCompile(`[^:;,|]+`)
)

// Payload is a decoded inline file.
type Payload struct {
	MimeType string
	Data     []byte
	Filename string
}

// Decode parses an inline file of the form
// prefix:mime;encoding,base64[|filename]. Any of ": ; , |" separate tokens.
// The returned filename is empty when the payload carries none.
func Decode(encoded string) (Payload, error) {
	tokens := tokenPattern.FindAllString(encoded, -1)
	if len(tokens) < 2 || strings.TrimSpace(tokens[1]) == "" {
		return Payload{}, ErrMissingMime
	}
	if len(tokens) < 4 {
		return Payload{}, ErrMissingPayload
	}
	data, err := decodeBase64(strings.TrimSpace(tokens[3]))
	if err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	p := Payload{MimeType: strings.TrimSpace(tokens[1]), Data: data}
	if len(tokens) > 4 {
		p.Filename = SanitizeFilename(tokens[4])
	}
	return p, nil
}

// Encode is the inverse of Decode.
func Encode(mimeType string, data []byte, filename string) string {
	out := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
	if filename != "" {
		out += "|" + filename
	}
	return out
}

func decodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); rawErr == nil {
		return raw, nil
	}
	return nil, err
}

// SanitizeFilename keeps only the base name and caps its length at
// maxFilenameLen bytes, cutting on a rune boundary and keeping the extension.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(strings.ReplaceAll(name, "\\", "/")))
	if name == "." || name == ".." || name == "/" {
		return ""
	}
	if len(name) <= maxFilenameLen {
		return name
	}
	ext := filepath.Ext(name)
	if len(ext) > maxExtLen || !utf8.ValidString(ext) {
		ext = ""
	}
	return truncateRunes(name[:len(name)-len(ext)], maxFilenameLen-len(ext)) + ext
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
