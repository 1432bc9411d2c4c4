package vfs

import (
	"io/fs"
	"mime"
	"path"
	"sort"
	"strings"
)

const (
	TypeDir  = "dir"
	TypeFile = "file"
)

// Resource is the wire representation of one filesystem entry.
type Resource struct {
	Type          string        `json:"type"`
	Path          string        `json:"path"`
	Visibility    string        `json:"visibility"`
	LastModified  int64         `json:"last_modified"`
	MimeType      *string       `json:"mime_type"`
	ExtraMetadata []interface{} `json:"extra_metadata"`
	Basename      string        `json:"basename"`
	Extension     string        `json:"extension"`
	Storage       string        `json:"storage"`
	FileSize      *int64        `json:"file_size"`
}

// IsDir reports whether the resource is a directory.
func (r Resource) IsDir() bool {
	return r.Type == TypeDir
}

// NewResource describes info, an entry of directory dir in adapter key.
func NewResource(key, dir string, info fs.FileInfo) Resource {
	name := info.Name()
	res := Resource{
		Type:          TypeFile,
		Path:          BuildAddress(key, dir, name),
		Visibility:    "public",
		LastModified:  info.ModTime().Unix(),
		ExtraMetadata: []interface{}{},
		Basename:      name,
		Extension:     Extension(name),
		Storage:       key,
	}

	if info.IsDir() {
		res.Type = TypeDir
		return res
	}

	size := info.Size()
	res.FileSize = &size
	if mt := GuessMimeType(name); mt != "" {
		res.MimeType = &mt
	}
	return res
}

// Extension returns the substring after the last dot of name, or "".
func Extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return name[i+1:]
}

// GuessMimeType returns the media type registered for name's extension,
// without parameters, or "" when unknown.
func GuessMimeType(name string) string {
	ext := path.Ext(name)
	if ext == "" {
		return ""
	}
	mt := mime.TypeByExtension(strings.ToLower(ext))
	if mt == "" {
		return ""
	}
	if base, _, err := mime.ParseMediaType(mt); err == nil {
		return base
	}
	return mt
}

// SortKey orders directories before files, then case-insensitively by name.
func SortKey(isDir bool, name string) string {
	if isDir {
		return "0_" + strings.ToLower(name)
	}
	return "1_" + strings.ToLower(name)
}

// SortResources sorts resources in listing order.
func SortResources(resources []Resource) {
	sort.SliceStable(resources, func(i, j int) bool {
		return SortKey(resources[i].IsDir(), resources[i].Basename) < SortKey(resources[j].IsDir(), resources[j].Basename)
	})
}

// SortInfos sorts directory entries in listing order.
func SortInfos(infos []fs.FileInfo) {
	sort.SliceStable(infos, func(i, j int) bool {
		return SortKey(infos[i].IsDir(), infos[i].Name()) < SortKey(infos[j].IsDir(), infos[j].Name())
	})
}
