package vfs

import (
	"path"
	"strings"
)

// AddressSeparator splits an adapter key from the path in a resource address.
const AddressSeparator = ":/"

// ParseAddress splits a resource address into its adapter key and the
// normalized absolute path. The key is empty when the address carries none.
func ParseAddress(address string) (key string, p string, err error) {
	if i := strings.Index(address, AddressSeparator); i >= 0 {
		key = address[:i]
	}
	p, err = Resolve(address)
	return key, p, err
}

// Resolve normalizes an address or bare path into an absolute, collapsed
// path inside an adapter root. Paths whose ".." segments climb above the
// root are rejected with ErrPathEscape.
func Resolve(address string) (string, error) {
	p := address
	if i := strings.Index(address, AddressSeparator); i >= 0 {
		p = address[i+len(AddressSeparator):]
	}
	return normalize("resolve", p)
}

// Join appends name to an already resolved directory. The ".." segments of
// name are resolved against dir; climbing above the root is ErrPathEscape.
func Join(dir, name string) (string, error) {
	return normalize("join", dir+"/"+name)
}

func normalize(op, p string) (string, error) {
	// Backslashes are separators for clients on Windows.
	p = strings.ReplaceAll(p, "\\", "/")

	rel := path.Clean(strings.TrimLeft(p, "/"))
	if rel == "." || rel == "" {
		return "/", nil
	}
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", &Error{Kind: KindPathEscape, Op: op, Path: p, Err: ErrPathEscape}
	}
	return "/" + rel, nil
}

// BuildAddress is the inverse of Resolve for a directory entry.
func BuildAddress(key, base, name string) string {
	if base == "/" {
		base = ""
	}
	return key + AddressSeparator + base + "/" + name
}

// Dirname renders a resolved directory path as an address; the root of
// an adapter is "<key>://".
func Dirname(key, dir string) string {
	if dir == "" {
		dir = "/"
	}
	return key + AddressSeparator + dir
}

// IsWithin reports whether p equals dir or lies below it. Both must be
// resolved paths.
func IsWithin(dir, p string) bool {
	if dir == "/" || dir == p {
		return true
	}
	return strings.HasPrefix(p, dir+"/")
}

// Rel returns p relative to base, or ErrPathEscape when p lies outside it.
func Rel(base, p string) (string, error) {
	if !IsWithin(base, p) {
		return "", &Error{Kind: KindPathEscape, Op: "rel", Path: p, Err: ErrPathEscape}
	}
	if base == p {
		return ".", nil
	}
	if base == "/" {
		return strings.TrimPrefix(p, "/"), nil
	}
	return strings.TrimPrefix(p, base+"/"), nil
}
