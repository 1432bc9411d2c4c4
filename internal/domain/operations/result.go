package operations

import (
	"io"
	"net/http"

	"github.com/kanbang/xdesktop/internal/domain/vfs"
)

// Dispositions for streamed results.
const (
	DispositionInline     = "inline"
	DispositionAttachment = "attachment"
)

// Result is the outcome of one dispatch: either a JSON body or a stream.
type Result struct {
	Status int
	Body   interface{}
	Stream *Stream

	// Err is set when Body is an error envelope.
	Err *vfs.Error
}

// Stream is a byte payload delivered with a content disposition.
type Stream struct {
	Reader      io.ReadCloser
	Size        int64
	ContentType string
	Disposition string
	Filename    string
}

// Envelope is the uniform error body.
type Envelope struct {
	Message string `json:"message"`
	Status  bool   `json:"status"`
}

// Listing is the body of index and search.
type Listing struct {
	Adapter  string         `json:"adapter"`
	Storages []string       `json:"storages"`
	Dirname  string         `json:"dirname"`
	Files    []vfs.Resource `json:"files"`
}

// Folders is the body of subfolders.
type Folders struct {
	Folders []vfs.Resource `json:"folders"`
}

func jsonResult(body interface{}) *Result {
	return &Result{Status: http.StatusOK, Body: body}
}

func streamResult(s *Stream) *Result {
	return &Result{Status: http.StatusOK, Stream: s}
}

// Close releases the stream of r, if any.
func (r *Result) Close() error {
	if r == nil || r.Stream == nil || r.Stream.Reader == nil {
		return nil
	}
	return r.Stream.Reader.Close()
}
