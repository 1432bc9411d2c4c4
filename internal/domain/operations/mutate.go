package operations

import (
	"io"
	"mime/multipart"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/kanbang/xdesktop/internal/domain/archive"
	"github.com/kanbang/xdesktop/internal/domain/vfs"
	"github.com/kanbang/xdesktop/internal/infrastructure/logging"
	"github.com/kanbang/xdesktop/internal/shared/id"
)

func (d *Dispatcher) newFolder(c *Call) (*Result, error) {
	target, err := d.newEntryPath(c)
	if err != nil {
		return nil, err
	}
	if err := c.Adapter.FS().Mkdir(target, 0o755); err != nil {
		return nil, vfs.Wrap(vfs.Classify(err), c.Op.String(), target, err)
	}
	return d.refresh(c)
}

func (d *Dispatcher) newFile(c *Call) (*Result, error) {
	target, err := d.newEntryPath(c)
	if err != nil {
		return nil, err
	}
	if err := writeExclusive(c.Adapter.FS(), target, 0o644, strings.NewReader("")); err != nil {
		return nil, vfs.Wrap(vfs.Classify(err), c.Op.String(), target, err)
	}
	return d.refresh(c)
}

// newEntryPath validates body.name and joins it onto the call directory.
func (d *Dispatcher) newEntryPath(c *Call) (string, error) {
	body, err := decodeBody[nameBody](c.Op, c.Request)
	if err != nil {
		return "", err
	}
	if err := archive.ValidateFilename(body.Name); err != nil {
		return "", err
	}
	if err := requireDir(c, c.Path); err != nil {
		return "", err
	}
	return vfs.Join(c.Path, body.Name)
}

func (d *Dispatcher) rename(c *Call) (*Result, error) {
	body, err := decodeBody[renameBody](c.Op, c.Request)
	if err != nil {
		return nil, err
	}
	if err := archive.ValidateFilename(body.Name); err != nil {
		return nil, err
	}

	src, err := c.item(body.Item)
	if err != nil {
		return nil, err
	}
	dst, err := vfs.Join(c.Path, body.Name)
	if err != nil {
		return nil, err
	}
	if err := relocate(c, src, dst); err != nil {
		return nil, err
	}
	return d.refresh(c)
}

func (d *Dispatcher) move(c *Call) (*Result, error) {
	body, err := decodeBody[moveBody](c.Op, c.Request)
	if err != nil {
		return nil, err
	}

	dstDir, err := c.item(body.Item)
	if err != nil {
		return nil, err
	}
	if err := requireDir(c, dstDir); err != nil {
		return nil, err
	}
	sources, err := c.items(body.Items)
	if err != nil {
		return nil, err
	}

	for _, src := range sources {
		dst, err := vfs.Join(dstDir, path.Base(src))
		if err != nil {
			return nil, err
		}
		if err := relocate(c, src, dst); err != nil {
			return nil, err
		}
	}
	return d.refresh(c)
}

// relocate renames src to dst within the call adapter, refusing to
// overwrite and refusing to move a directory below itself.
func relocate(c *Call, src, dst string) error {
	op := c.Op.String()
	if src == "/" {
		return vfs.Errorf(vfs.KindInvalidRequest, op, src, "cannot move the adapter root")
	}

	info, err := c.Adapter.Stat(op, src)
	if err != nil {
		return err
	}
	if src == dst {
		return nil
	}
	if info.IsDir() && vfs.IsWithin(src, dst) {
		return vfs.Errorf(vfs.KindPathEscape, op, dst, "cannot move a directory into itself")
	}

	exists, err := c.Adapter.Exists(dst)
	if err != nil {
		return vfs.Wrap(vfs.Classify(err), op, dst, err)
	}
	if exists {
		return vfs.Errorf(vfs.KindAlreadyExists, op, dst, "destination already exists")
	}

	if err := c.Adapter.FS().Rename(src, dst); err != nil {
		return vfs.Wrap(vfs.Classify(err), op, src, err)
	}
	return nil
}

// delete checks every target exists before removing any of them.
func (d *Dispatcher) delete(c *Call) (*Result, error) {
	body, err := decodeBody[itemsBody](c.Op, c.Request)
	if err != nil {
		return nil, err
	}
	targets, err := c.items(body.Items)
	if err != nil {
		return nil, err
	}

	for _, p := range targets {
		if p == "/" {
			return nil, vfs.Errorf(vfs.KindInvalidRequest, c.Op.String(), p, "cannot delete the adapter root")
		}
		if _, err := c.Adapter.Stat(c.Op.String(), p); err != nil {
			return nil, err
		}
	}

	fsys := c.Adapter.FS()
	for _, p := range targets {
		if err := fsys.RemoveAll(p); err != nil {
			return nil, vfs.Wrap(vfs.Classify(err), c.Op.String(), p, err)
		}
	}
	return d.refresh(c)
}

type pendingUpload struct {
	header *multipart.FileHeader
	target string
}

// upload writes every file part of the form into the call directory,
// replacing existing files. All names are validated before any write.
func (d *Dispatcher) upload(c *Call) (*Result, error) {
	if c.Form == nil || len(c.Form.File) == 0 {
		return nil, vfs.Errorf(vfs.KindInvalidRequest, c.Op.String(), "", "expected a multipart form with files")
	}
	if err := requireDir(c, c.Path); err != nil {
		return nil, err
	}

	fields := make([]string, 0, len(c.Form.File))
	for field := range c.Form.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var uploads []pendingUpload
	for _, field := range fields {
		for _, fh := range c.Form.File[field] {
			name := path.Base(strings.ReplaceAll(fh.Filename, "\\", "/"))
			if err := archive.ValidateFilename(name); err != nil {
				return nil, err
			}
			target, err := vfs.Join(c.Path, name)
			if err != nil {
				return nil, err
			}
			uploads = append(uploads, pendingUpload{header: fh, target: target})
		}
	}

	for _, u := range uploads {
		if err := d.storeUpload(c, u); err != nil {
			return nil, err
		}
	}

	d.logger.Debug("Stored uploads",
		logging.Adapter(c.Adapter.Key),
		logging.Path(c.Path),
		zap.Int("files", len(uploads)),
	)
	return jsonResult("ok"), nil
}

func (d *Dispatcher) storeUpload(c *Call, u pendingUpload) error {
	src, err := u.header.Open()
	if err != nil {
		return vfs.Errorf(vfs.KindInvalidRequest, c.Op.String(), u.header.Filename, "read upload: %v", err)
	}
	defer src.Close()

	if err := d.replaceFile(c.Adapter.FS(), u.target, src); err != nil {
		return vfs.Wrap(vfs.Classify(err), c.Op.String(), u.target, err)
	}
	return nil
}

// replaceFile writes r to p through a sibling temp file renamed into place.
// An existing file keeps its permissions; an existing directory is refused.
func (d *Dispatcher) replaceFile(fsys afero.Fs, p string, r io.Reader) error {
	perm := os.FileMode(0o644)
	if info, err := fsys.Stat(p); err == nil {
		if info.IsDir() {
			return vfs.Errorf(vfs.KindAlreadyExists, "", p, "a directory with this name exists")
		}
		perm = info.Mode().Perm()
	} else if !os.IsNotExist(err) {
		return err
	}

	tmp := path.Join(path.Dir(p), "."+path.Base(p)+"."+id.NewTempID().String())
	if err := writeExclusive(fsys, tmp, perm, r); err != nil {
		return err
	}
	if err := fsys.Rename(tmp, p); err != nil {
		if rmErr := fsys.Remove(tmp); rmErr != nil {
			d.logger.Warn("Failed to remove temp file", logging.Path(tmp), zap.Error(rmErr))
		}
		return err
	}
	return nil
}
