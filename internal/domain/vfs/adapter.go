package vfs

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/spf13/afero"
)

// Principal identifies whose storage roots are addressed. The zero value is
// the anonymous principal.
type Principal string

// Anonymous is the identity of unauthenticated callers.
const Anonymous Principal = ""

// IsAnonymous reports whether p is the anonymous sentinel.
func (p Principal) IsAnonymous() bool {
	return p == Anonymous
}

func (p Principal) String() string {
	if p.IsAnonymous() {
		return "anonymous"
	}
	return string(p)
}

// SafeSegmentPattern matches names usable as a single directory segment.
var SafeSegmentPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidatePrincipal ensures p can key a directory on disk.
func ValidatePrincipal(p Principal) error {
	if p.IsAnonymous() || len(p) > 128 || !SafeSegmentPattern.MatchString(string(p)) {
		return &Error{Kind: KindInvalidName, Op: "principal", Path: string(p), Err: ErrInvalidPrincipal}
	}
	return nil
}

// AdapterSpec configures one named root per principal. Dir is relative to
// the principal's directory and defaults to Key.
type AdapterSpec struct {
	Key string `yaml:"key" toml:"key" validate:"required"`
	Dir string `yaml:"dir" toml:"dir"`
}

// Adapter is a named handle on one storage root of one principal. All
// filesystem access goes through FS, which cannot reach outside Root.
type Adapter struct {
	Key  string
	Root string
	fs   afero.Fs
}

// NewAdapter opens root, creating it if absent.
func NewAdapter(key, root string) (*Adapter, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create root %s: %w", abs, err)
	}
	return &Adapter{
		Key:  key,
		Root: abs,
		fs:   afero.NewBasePathFs(afero.NewOsFs(), abs),
	}, nil
}

// FS returns the root-scoped filesystem.
func (a *Adapter) FS() afero.Fs {
	return a.fs
}

// OSPath maps a resolved adapter path onto the host filesystem.
func (a *Adapter) OSPath(p string) string {
	return filepath.Join(a.Root, filepath.FromSlash(p))
}

// Stat returns entry metadata, classifying a missing entry as NotFound.
func (a *Adapter) Stat(op, p string) (os.FileInfo, error) {
	info, err := a.fs.Stat(p)
	if err != nil {
		return nil, Wrap(Classify(err), op, p, err)
	}
	return info, nil
}

// Exists reports whether p exists in the adapter.
func (a *Adapter) Exists(p string) (bool, error) {
	return afero.Exists(a.fs, p)
}
