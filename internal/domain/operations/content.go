package operations

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"

	"github.com/kanbang/xdesktop/internal/domain/vfs"
)

const octetStream = "application/octet-stream"

func (d *Dispatcher) preview(c *Call) (*Result, error) {
	f, info, err := openFile(c, c.Path)
	if err != nil {
		return nil, err
	}

	contentType := vfs.GuessMimeType(info.Name())
	if contentType == "" {
		contentType = sniff(f)
	}

	stream := &Stream{
		Reader:      f,
		Size:        info.Size(),
		ContentType: contentType,
		Disposition: DispositionInline,
		Filename:    info.Name(),
	}

	switch {
	case c.Query.Thumbnail && thumbnailable(contentType):
		err = d.shrink(stream, f)
	case isMarkup(contentType):
		err = sanitize(stream, f)
	case strings.HasPrefix(contentType, "text/"):
		err = labelCharset(stream, f)
	}
	if err != nil {
		stream.Reader.Close()
		return nil, vfs.Wrap(vfs.KindInternal, c.Op.String(), c.Path, err)
	}
	return streamResult(stream), nil
}

// shrink replaces the stream with a thumbnail of f. Images already within
// the bounding box are left untouched.
func (d *Dispatcher) shrink(s *Stream, f afero.File) error {
	data, ct, err := thumbnail(f, d.thumbnailSize)
	switch {
	case err == nil:
		f.Close()
		replaceStream(s, data, ct)
		return nil
	case errors.Is(err, errNoThumbnail):
		_, err = f.Seek(0, io.SeekStart)
		return err
	default:
		return err
	}
}

// sanitize replaces markup with a script-free UTF-8 rendition.
func sanitize(s *Stream, f afero.File) error {
	data, ok, err := sanitizeMarkup(f)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		s.ContentType = "text/plain; charset=utf-8"
		return nil
	}
	f.Close()
	replaceStream(s, data, withCharset(s.ContentType, "utf-8"))
	return nil
}

// labelCharset sets the charset of a text stream from its leading bytes.
func labelCharset(s *Stream, f afero.File) error {
	head := make([]byte, charsetSniffBytes)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	s.ContentType = withCharset(s.ContentType, detectCharset(head[:n]))
	return nil
}

func replaceStream(s *Stream, data []byte, ct string) {
	s.Reader = io.NopCloser(bytes.NewReader(data))
	s.Size = int64(len(data))
	s.ContentType = ct
}

func (d *Dispatcher) download(c *Call) (*Result, error) {
	f, info, err := openFile(c, c.Path)
	if err != nil {
		return nil, err
	}
	return streamResult(&Stream{
		Reader:      f,
		Size:        info.Size(),
		ContentType: octetStream,
		Disposition: DispositionAttachment,
		Filename:    info.Name(),
	}), nil
}

// save replaces the content of the file at the call path through a sibling
// temp file, so readers never observe a partial write.
func (d *Dispatcher) save(c *Call) (*Result, error) {
	body, err := decodeBody[saveBody](c.Op, c.Request)
	if err != nil {
		return nil, err
	}
	if c.Path == "/" {
		return nil, vfs.Errorf(vfs.KindInvalidRequest, c.Op.String(), c.Path, "cannot save to the adapter root")
	}

	if err := d.replaceFile(c.Adapter.FS(), c.Path, strings.NewReader(body.Content)); err != nil {
		return nil, vfs.Wrap(vfs.Classify(err), c.Op.String(), c.Path, err)
	}

	return d.preview(c)
}

// openFile opens the regular file at p for reading.
func openFile(c *Call, p string) (afero.File, os.FileInfo, error) {
	info, err := c.Adapter.Stat(c.Op.String(), p)
	if err != nil {
		return nil, nil, err
	}
	if info.IsDir() {
		return nil, nil, vfs.Errorf(vfs.KindInvalidRequest, c.Op.String(), p, "is a directory")
	}

	f, err := c.Adapter.FS().Open(p)
	if err != nil {
		return nil, nil, vfs.Wrap(vfs.Classify(err), c.Op.String(), p, err)
	}
	return f, info, nil
}

// sniff detects the content type of f from its leading bytes and rewinds it.
func sniff(f afero.File) string {
	mt, err := mimetype.DetectReader(f)
	if _, serr := f.Seek(0, io.SeekStart); serr != nil || err != nil {
		return octetStream
	}
	return mt.String()
}

// writeExclusive creates p, which must not exist, with the content of r.
// A failed write removes the partial file.
func writeExclusive(fsys afero.Fs, p string, perm os.FileMode, r io.Reader) error {
	f, err := fsys.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = fsys.Remove(p)
	}
	return err
}
