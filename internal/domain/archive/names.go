package archive

import (
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/kanbang/xdesktop/internal/domain/vfs"
)

// Extension is the canonical archive extension.
const Extension = ".zip"

// MaxFilenameLength is the longest filename accepted, in bytes.
const MaxFilenameLength = 255

const invalidFilenameChars = `/\:*?"<>|`

var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true, "CLOCK$": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// ValidateFilename checks that name is a single path segment valid on every
// common platform.
func ValidateFilename(name string) error {
	if err := validateFilename(name); err != nil {
		return &vfs.Error{Kind: vfs.KindInvalidName, Op: "validate", Path: name, Err: err}
	}
	return nil
}

func validateFilename(name string) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if len(name) > MaxFilenameLength {
		return fmt.Errorf("name exceeds %d bytes", MaxFilenameLength)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("name is not valid UTF-8")
	}
	if name == "." || name == ".." {
		return fmt.Errorf("name %q is reserved", name)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("name contains control characters")
		}
		if strings.ContainsRune(invalidFilenameChars, r) {
			return fmt.Errorf("name contains invalid character %q", r)
		}
	}
	if strings.HasSuffix(name, " ") || strings.HasSuffix(name, ".") {
		return fmt.Errorf("name must not end with a space or a dot")
	}
	stem := strings.ToUpper(name)
	if i := strings.IndexByte(stem, '.'); i >= 0 {
		stem = stem[:i]
	}
	if reservedNames[strings.TrimRight(stem, " ")] {
		return fmt.Errorf("name %q is reserved", name)
	}
	return nil
}

// WithExtension appends ext to name unless name already ends with it.
func WithExtension(name, ext string) string {
	if !strings.HasPrefix(ext, ".") {
		return name
	}
	if strings.EqualFold(path.Ext(name), ext) {
		return name
	}
	return name + ext
}

// ArchiveName validates a requested archive name and applies the canonical
// extension.
func ArchiveName(name string) (string, error) {
	if err := ValidateFilename(name); err != nil {
		return "", err
	}
	name = WithExtension(name, Extension)
	if err := ValidateFilename(name); err != nil {
		return "", err
	}
	return name, nil
}
