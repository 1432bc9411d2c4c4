package operations

import (
	"bytes"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// maxSanitizeBytes bounds markup loaded into memory for sanitizing. Larger
// documents are previewed as plain text.
const maxSanitizeBytes = 8 << 20

// charsetSniffBytes is how much of a text file is inspected for its charset.
const charsetSniffBytes = 4096

var markupPolicy = bluemonday.UGCPolicy()

func mediaType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	}
	return mt
}

// isMarkup reports whether ct would run scripts when rendered inline.
func isMarkup(ct string) bool {
	switch mediaType(ct) {
	case "text/html", "application/xhtml+xml":
		return true
	}
	return false
}

// detectCharset returns the lower-cased charset name of data, or utf-8.
func detectCharset(data []byte) string {
	if validUTF8Prefix(data) {
		return "utf-8"
	}
	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

// validUTF8Prefix is utf8.Valid that tolerates a rune cut off at the end.
func validUTF8Prefix(b []byte) bool {
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			return !utf8.FullRune(b)
		}
		b = b[size:]
	}
	return true
}

// sanitizeMarkup converts the document in r to UTF-8 and strips scripts,
// event handlers and other active content. ok is false when the document
// is too large to sanitize.
func sanitizeMarkup(r io.Reader) (out []byte, ok bool, err error) {
	data, err := io.ReadAll(io.LimitReader(r, maxSanitizeBytes+1))
	if err != nil {
		return nil, false, err
	}
	if len(data) > maxSanitizeBytes {
		return nil, false, nil
	}

	var src io.Reader = bytes.NewReader(data)
	if label := detectCharset(data); label != "utf-8" {
		if utf8Reader, err := charset.NewReaderLabel(label, src); err == nil {
			src = utf8Reader
		}
	}
	return markupPolicy.SanitizeReader(src).Bytes(), true, nil
}

// withCharset returns ct with its charset parameter set to cs.
func withCharset(ct, cs string) string {
	mt, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return ct
	}
	params["charset"] = cs
	return mime.FormatMediaType(mt, params)
}
