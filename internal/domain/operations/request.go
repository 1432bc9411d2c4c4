package operations

import (
	"errors"
	"mime/multipart"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"

	"github.com/kanbang/xdesktop/internal/domain/vfs"
)

// Query holds the query parameters shared by every operation.
type Query struct {
	Adapter   string
	Path      string
	Filter    string
	Deep      bool
	Thumbnail bool
}

// Request is one inbound call. Principal selects whose roots are addressed;
// Caller is the identity the transport authenticated, Anonymous if none.
type Request struct {
	Principal vfs.Principal
	Caller    vfs.Principal
	Operation string
	Query     Query
	Body      []byte
	Form      *multipart.Form
}

// ItemRef names one resource in a body item list.
type ItemRef struct {
	Path string `json:"path" validate:"required"`
}

type nameBody struct {
	Name string `json:"name" validate:"required"`
}

type renameBody struct {
	Item string `json:"item" validate:"required"`
	Name string `json:"name" validate:"required"`
}

type moveBody struct {
	Item  string    `json:"item" validate:"required"`
	Items []ItemRef `json:"items" validate:"required,min=1,dive"`
}

type itemsBody struct {
	Items []ItemRef `json:"items" validate:"required,min=1,dive"`
}

type archiveBody struct {
	Name  string    `json:"name" validate:"required"`
	Items []ItemRef `json:"items" validate:"required,min=1,dive"`
}

type unarchiveBody struct {
	Item string `json:"item" validate:"required"`
}

type saveBody struct {
	Content string `json:"content"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeBody parses and validates the JSON body of req as T.
func decodeBody[T any](op Operation, req *Request) (T, error) {
	var body T
	if len(req.Body) == 0 {
		return body, vfs.Errorf(vfs.KindInvalidRequest, op.String(), "", "missing request body")
	}
	if err := sonic.Unmarshal(req.Body, &body); err != nil {
		return body, vfs.Errorf(vfs.KindInvalidRequest, op.String(), "", "malformed request body: %v", err)
	}
	if err := validate.Struct(body); err != nil {
		return body, vfs.Errorf(vfs.KindInvalidRequest, op.String(), "", "%s", describeValidation(err))
	}
	return body, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field())+" "+fe.Tag())
	}
	return "invalid request body: " + strings.Join(fields, ", ")
}

// item resolves an item address against the call adapter. Bare paths are
// taken as belonging to it; an address naming another adapter is refused.
func (c *Call) item(address string) (string, error) {
	key, p, err := vfs.ParseAddress(address)
	if err != nil {
		return "", vfs.Wrap(vfs.KindPathEscape, c.Op.String(), address, err)
	}
	if key == "" || key == c.Adapter.Key {
		return p, nil
	}
	if _, ok := c.Adapters.Get(key); !ok {
		return "", vfs.Errorf(vfs.KindInvalidRequest, c.Op.String(), address, "unknown adapter %q", key)
	}
	return "", vfs.Errorf(vfs.KindInvalidRequest, c.Op.String(), address,
		"item is in adapter %q but the request targets %q", key, c.Adapter.Key)
}

// items resolves every item address of a body list.
func (c *Call) items(refs []ItemRef) ([]string, error) {
	paths := make([]string, 0, len(refs))
	for _, ref := range refs {
		p, err := c.item(ref.Path)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}
