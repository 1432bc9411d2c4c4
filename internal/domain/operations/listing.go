package operations

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/kanbang/xdesktop/internal/domain/vfs"
	"github.com/kanbang/xdesktop/internal/infrastructure/logging"
)

func (d *Dispatcher) index(c *Call) (*Result, error) {
	return d.list(c, c.Query.Filter, false)
}

func (d *Dispatcher) search(c *Call) (*Result, error) {
	return d.list(c, c.Query.Filter, c.Query.Deep)
}

// refresh lists the request directory after a mutation.
func (d *Dispatcher) refresh(c *Call) (*Result, error) {
	return d.list(c, "", false)
}

func (d *Dispatcher) list(c *Call, filter string, deep bool) (*Result, error) {
	match := newMatcher(filter)

	var (
		files []vfs.Resource
		err   error
	)
	if deep {
		files, err = d.walkTree(c, match)
	} else {
		files, err = readDir(c, match)
	}
	if err != nil {
		return nil, err
	}

	return jsonResult(Listing{
		Adapter:  c.Adapter.Key,
		Storages: c.Adapters.Keys(),
		Dirname:  vfs.Dirname(c.Adapter.Key, c.Path),
		Files:    files,
	}), nil
}

func (d *Dispatcher) subfolders(c *Call) (*Result, error) {
	files, err := readDir(c, func(info fs.FileInfo) bool { return info.IsDir() })
	if err != nil {
		return nil, err
	}
	return jsonResult(Folders{Folders: files}), nil
}

// readDir describes the entries of the call directory accepted by keep, in
// listing order.
func readDir(c *Call, keep func(fs.FileInfo) bool) ([]vfs.Resource, error) {
	if err := requireDir(c, c.Path); err != nil {
		return nil, err
	}

	infos, err := afero.ReadDir(c.Adapter.FS(), c.Path)
	if err != nil {
		return nil, vfs.Wrap(vfs.Classify(err), c.Op.String(), c.Path, err)
	}

	kept := infos[:0]
	for _, info := range infos {
		if keep(info) {
			kept = append(kept, info)
		}
	}
	vfs.SortInfos(kept)

	files := make([]vfs.Resource, 0, len(kept))
	for _, info := range kept {
		files = append(files, vfs.NewResource(c.Adapter.Key, c.Path, info))
	}
	return files, nil
}

// walkTree describes every entry below the call directory accepted by keep.
// Each resource is addressed from its own parent directory.
func (d *Dispatcher) walkTree(c *Call, keep func(fs.FileInfo) bool) ([]vfs.Resource, error) {
	if err := requireDir(c, c.Path); err != nil {
		return nil, err
	}

	root := c.Adapter.OSPath(c.Path)
	var (
		mu    sync.Mutex
		files []vfs.Resource
	)
	skip := func(p string, err error) {
		d.logger.Debug("Skipping unreadable entry",
			logging.Adapter(c.Adapter.Key),
			logging.Path(adapterPath(c.Adapter.Root, p)),
			zap.Error(vfs.Wrap(vfs.Classify(err), c.Op.String(), "", err)),
		)
	}

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(p string, de os.DirEntry, err error) error {
		select {
		case <-c.Ctx.Done():
			return c.Ctx.Err()
		default:
		}

		if err != nil {
			skip(p, err)
			return nil
		}
		if p == root {
			return nil
		}
		info, err := de.Info()
		if err != nil {
			skip(p, err)
			return nil
		}
		if !keep(info) {
			return nil
		}

		dir := path.Dir(adapterPath(c.Adapter.Root, p))

		mu.Lock()
		files = append(files, vfs.NewResource(c.Adapter.Key, dir, info))
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, vfs.Wrap(vfs.Classify(err), c.Op.String(), c.Path, err)
	}

	vfs.SortResources(files)
	return files, nil
}

// adapterPath converts a host path below root into the adapter path.
func adapterPath(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." {
		return "/"
	}
	return "/" + filepath.ToSlash(rel)
}

func requireDir(c *Call, p string) error {
	info, err := c.Adapter.Stat(c.Op.String(), p)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return vfs.Errorf(vfs.KindInvalidRequest, c.Op.String(), p, "not a directory")
	}
	return nil
}

// newMatcher builds the name filter of a listing. A name matches when it
// contains the filter literally or, for filters that form a valid glob,
// when the glob matches it.
func newMatcher(filter string) func(fs.FileInfo) bool {
	if filter == "" {
		return func(fs.FileInfo) bool { return true }
	}
	glob := strings.ContainsAny(filter, "*?[{") && doublestar.ValidatePattern(filter)
	return func(info fs.FileInfo) bool {
		name := info.Name()
		if strings.Contains(name, filter) {
			return true
		}
		if !glob {
			return false
		}
		ok, _ := doublestar.Match(filter, name)
		return ok
	}
}
