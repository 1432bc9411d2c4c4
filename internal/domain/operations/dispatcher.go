package operations

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/kanbang/xdesktop/internal/domain/archive"
	"github.com/kanbang/xdesktop/internal/domain/vfs"
	"github.com/kanbang/xdesktop/internal/infrastructure/logging"
	"github.com/kanbang/xdesktop/internal/infrastructure/monitoring"
)

// DefaultThumbnailSize bounds preview thumbnails in pixels.
const DefaultThumbnailSize = 256

// Call is the resolved context a handler runs against.
type Call struct {
	*Request
	Ctx      context.Context
	Op       Operation
	Adapter  *vfs.Adapter
	Adapters *vfs.AdapterSet
	Path     string
}

// Handler executes one operation.
type Handler interface {
	Execute(call *Call) (*Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(call *Call) (*Result, error)

func (f HandlerFunc) Execute(call *Call) (*Result, error) {
	return f(call)
}

// Authorizer decides whether req may run op. It runs before any adapter
// is touched.
type Authorizer interface {
	Authorize(req *Request, op Operation) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(req *Request, op Operation) error

func (f AuthorizerFunc) Authorize(req *Request, op Operation) error {
	return f(req, op)
}

// DefaultAuthorizer lets anyone preview and download; every other
// operation needs an authenticated caller acting on their own roots.
var DefaultAuthorizer Authorizer = AuthorizerFunc(func(req *Request, op Operation) error {
	if op.Public() {
		return nil
	}
	if req.Caller.IsAnonymous() {
		return vfs.Errorf(vfs.KindUnauthorized, op.String(), "", "authentication required")
	}
	if req.Caller != req.Principal {
		return vfs.Errorf(vfs.KindUnauthorized, op.String(), "", "%s may not access storage of %s", req.Caller, req.Principal)
	}
	return nil
})

// AllowAll performs no authorization.
var AllowAll Authorizer = AuthorizerFunc(func(*Request, Operation) error { return nil })

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithAuthorizer replaces DefaultAuthorizer.
func WithAuthorizer(a Authorizer) Option {
	return func(d *Dispatcher) { d.authorizer = a }
}

// WithMetrics records operation metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithThumbnailSize sets the preview thumbnail bounding box.
func WithThumbnailSize(px int) Option {
	return func(d *Dispatcher) {
		if px > 0 {
			d.thumbnailSize = px
		}
	}
}

// WithHandler overrides the handler of op.
func WithHandler(op Operation, h Handler) Option {
	return func(d *Dispatcher) {
		if op.Valid() {
			d.handlers[op] = h
		}
	}
}

// Dispatcher routes requests to operation handlers and is the single place
// failures are translated into error envelopes.
type Dispatcher struct {
	registry      *vfs.Registry
	engine        *archive.Engine
	handlers      [numOperations]Handler
	authorizer    Authorizer
	metrics       *monitoring.Metrics
	logger        *zap.Logger
	thumbnailSize int
}

// NewDispatcher creates a dispatcher over registry and engine.
func NewDispatcher(registry *vfs.Registry, engine *archive.Engine, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:      registry,
		engine:        engine,
		authorizer:    DefaultAuthorizer,
		logger:        zap.NewNop(),
		thumbnailSize: DefaultThumbnailSize,
	}
	d.handlers = [numOperations]Handler{
		OpIndex:           HandlerFunc(d.index),
		OpPreview:         HandlerFunc(d.preview),
		OpSubfolders:      HandlerFunc(d.subfolders),
		OpDownload:        HandlerFunc(d.download),
		OpDownloadArchive: HandlerFunc(d.downloadArchive),
		OpSearch:          HandlerFunc(d.search),
		OpNewFolder:       HandlerFunc(d.newFolder),
		OpNewFile:         HandlerFunc(d.newFile),
		OpRename:          HandlerFunc(d.rename),
		OpMove:            HandlerFunc(d.move),
		OpDelete:          HandlerFunc(d.delete),
		OpUpload:          HandlerFunc(d.upload),
		OpArchive:         HandlerFunc(d.createArchive),
		OpUnarchive:       HandlerFunc(d.unarchive),
		OpSave:            HandlerFunc(d.save),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.authorizer == nil {
		d.authorizer = DefaultAuthorizer
	}
	for op, h := range d.handlers {
		if h == nil {
			panic(fmt.Sprintf("operations: no handler for %s", Operation(op)))
		}
	}
	return d
}

// Dispatch runs req and always returns a result: handler output on
// success, an error envelope otherwise.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (res *Result) {
	op, err := ParseOperation(req.Operation)
	timer := monitoring.NewTimer(d.metrics, op.String())

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Operation panicked",
				logging.Operation(op.String()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			res = d.fail(req, op, vfs.Errorf(vfs.KindInternal, op.String(), "", "internal server error"))
		}
		status := "success"
		if res.Err != nil {
			status = "error"
		}
		timer.Stop(status)
	}()

	if err != nil {
		return d.fail(req, op, err)
	}
	if err := d.authorizer.Authorize(req, op); err != nil {
		return d.fail(req, op, vfs.Wrap(vfs.KindUnauthorized, op.String(), "", err))
	}

	call, err := d.resolve(ctx, req, op)
	if err != nil {
		return d.fail(req, op, err)
	}

	res, err = d.handlers[op].Execute(call)
	if err != nil {
		if res != nil {
			_ = res.Close()
		}
		return d.fail(req, op, err)
	}
	if res == nil {
		return d.fail(req, op, vfs.Errorf(vfs.KindInternal, op.String(), "", "operation produced no result"))
	}
	return res
}

func (d *Dispatcher) resolve(ctx context.Context, req *Request, op Operation) (*Call, error) {
	adapter, set, err := d.registry.Adapter(req.Principal, req.Query.Adapter)
	if err != nil {
		return nil, err
	}
	if d.metrics != nil {
		d.metrics.SetPrincipalsCached(d.registry.Len())
	}

	p, err := vfs.Resolve(req.Query.Path)
	if err != nil {
		return nil, err
	}

	return &Call{
		Request:  req,
		Ctx:      ctx,
		Op:       op,
		Adapter:  adapter,
		Adapters: set,
		Path:     p,
	}, nil
}

// Reject translates a failure detected before dispatch, such as an
// oversized body, into the same envelope, log line and metrics as an
// operation failure.
func (d *Dispatcher) Reject(req *Request, err error) *Result {
	op, _ := ParseOperation(req.Operation)
	return d.fail(req, op, err)
}

// fail translates err into an error envelope.
func (d *Dispatcher) fail(req *Request, op Operation, err error) *Result {
	var verr *vfs.Error
	if !errors.As(err, &verr) {
		errors.As(vfs.Wrap(vfs.Classify(err), op.String(), "", err), &verr)
	}
	status := verr.Kind.HTTPStatus()

	fields := append(
		logging.Call(op.String(), req.Principal.String(), req.Caller.String(), req.Query.Adapter, req.Query.Path),
		zap.Stringer("kind", verr.Kind),
		zap.Error(verr),
	)
	if status >= http.StatusInternalServerError {
		d.logger.Error("Operation failed", fields...)
	} else {
		d.logger.Warn("Operation rejected", fields...)
	}
	if d.metrics != nil {
		d.metrics.RecordOperationError(op.String(), verr.Kind.String())
	}

	return &Result{
		Status: status,
		Body:   Envelope{Message: verr.Error(), Status: false},
		Err:    verr,
	}
}
