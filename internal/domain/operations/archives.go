package operations

import (
	"bytes"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/kanbang/xdesktop/internal/domain/archive"
	"github.com/kanbang/xdesktop/internal/domain/vfs"
	"github.com/kanbang/xdesktop/internal/infrastructure/logging"
)

const zipContentType = "application/zip"

// createArchive packs the selected items into a new archive inside the call
// directory. A failed build removes its partial output.
func (d *Dispatcher) createArchive(c *Call) (*Result, error) {
	name, selected, err := d.archiveSelection(c)
	if err != nil {
		return nil, err
	}
	dest, err := vfs.Join(c.Path, name)
	if err != nil {
		return nil, err
	}

	fsys := c.Adapter.FS()
	f, err := fsys.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if vfs.Classify(err) == vfs.KindAlreadyExists {
			return nil, vfs.Errorf(vfs.KindAlreadyExists, c.Op.String(), dest, "archive already exists")
		}
		return nil, vfs.Wrap(vfs.Classify(err), c.Op.String(), dest, err)
	}

	stats, err := d.engine.Build(c.Ctx, fsys, c.Path, selected, f, dest)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = vfs.Wrap(vfs.KindInternal, c.Op.String(), dest, cerr)
	}
	if err != nil {
		if rmErr := fsys.Remove(dest); rmErr != nil {
			d.logger.Warn("Failed to remove partial archive", logging.Path(dest), zap.Error(rmErr))
		}
		return nil, err
	}

	d.recordArchive("build", stats)
	return d.refresh(c)
}

// downloadArchive packs the selected items in memory and streams the result.
func (d *Dispatcher) downloadArchive(c *Call) (*Result, error) {
	name, selected, err := d.archiveSelection(c)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	stats, err := d.engine.Build(c.Ctx, c.Adapter.FS(), c.Path, selected, &buf)
	if err != nil {
		return nil, err
	}
	d.recordArchive("build", stats)

	return streamResult(&Stream{
		Reader:      io.NopCloser(bytes.NewReader(buf.Bytes())),
		Size:        int64(buf.Len()),
		ContentType: zipContentType,
		Disposition: DispositionAttachment,
		Filename:    name,
	}), nil
}

func (d *Dispatcher) archiveSelection(c *Call) (string, []string, error) {
	body, err := decodeBody[archiveBody](c.Op, c.Request)
	if err != nil {
		return "", nil, err
	}
	name, err := archive.ArchiveName(body.Name)
	if err != nil {
		return "", nil, err
	}
	if err := requireDir(c, c.Path); err != nil {
		return "", nil, err
	}
	selected, err := c.items(body.Items)
	if err != nil {
		return "", nil, err
	}
	return name, selected, nil
}

// unarchive extracts the archive named by body.item into the call directory.
func (d *Dispatcher) unarchive(c *Call) (*Result, error) {
	body, err := decodeBody[unarchiveBody](c.Op, c.Request)
	if err != nil {
		return nil, err
	}
	src, err := c.item(body.Item)
	if err != nil {
		return nil, err
	}
	if err := requireDir(c, c.Path); err != nil {
		return nil, err
	}

	stats, err := d.engine.Extract(c.Ctx, c.Adapter.FS(), src, c.Path)
	if err != nil {
		return nil, err
	}
	d.recordArchive("extract", stats)
	return d.refresh(c)
}

func (d *Dispatcher) recordArchive(direction string, stats archive.Stats) {
	if d.metrics != nil {
		d.metrics.RecordArchive(direction, stats.Files+stats.Dirs, stats.Bytes)
	}
}
