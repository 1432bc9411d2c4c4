package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kanbang/xdesktop/internal/auth"
	"github.com/kanbang/xdesktop/internal/domain/operations"
	"github.com/kanbang/xdesktop/internal/domain/vfs"
	"github.com/kanbang/xdesktop/internal/infrastructure/tracing"
)

// DefaultMaxUploadBytes caps request bodies and multipart forms.
const DefaultMaxUploadBytes = 64 << 20

// CloudHandler maps /cloud/:username onto the operation dispatcher.
type CloudHandler struct {
	dispatcher    *operations.Dispatcher
	authenticator auth.Authenticator
	maxBody       int64
	logger        *zap.Logger
}

// NewCloudHandler creates the cloud endpoint handler.
func NewCloudHandler(dispatcher *operations.Dispatcher, authenticator auth.Authenticator, maxBody int64, logger *zap.Logger) *CloudHandler {
	if authenticator == nil {
		authenticator = auth.AnonymousOnly{}
	}
	if maxBody <= 0 {
		maxBody = DefaultMaxUploadBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CloudHandler{
		dispatcher:    dispatcher,
		authenticator: authenticator,
		maxBody:       maxBody,
		logger:        logger,
	}
}

// CloudRoute is the single endpoint serving every operation.
const CloudRoute = "/cloud/:username"

// cloudMethods are dispatched to Handle. OPTIONS is answered by Options.
var cloudMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
}

// Register mounts the handler on CloudRoute.
func (h *CloudHandler) Register(r gin.IRoutes) {
	r.OPTIONS(CloudRoute, h.Options)
	for _, method := range cloudMethods {
		r.Handle(method, CloudRoute, h.Handle)
	}
}

// Options answers CORS-less preflights from the file widget.
func (h *CloudHandler) Options(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{})
}

// Handle runs the operation named by the q parameter.
func (h *CloudHandler) Handle(c *gin.Context) {
	req := &operations.Request{
		Principal: vfs.Principal(c.Param("username")),
		Caller:    h.caller(c),
		Operation: c.Query("q"),
		Query: operations.Query{
			Adapter:   c.Query("adapter"),
			Path:      c.Query("path"),
			Filter:    c.Query("filter"),
			Deep:      queryBool(c, "deep"),
			Thumbnail: queryBool(c, "thumbnail"),
		},
	}

	if err := h.readInput(c, req); err != nil {
		h.render(c, h.dispatcher.Reject(req, err))
		return
	}
	if req.Form != nil {
		defer func() { _ = req.Form.RemoveAll() }()
	}

	res := h.dispatcher.Dispatch(c.Request.Context(), req)
	defer func() { _ = res.Close() }()
	h.render(c, res)
}

// caller resolves the bearer token. A rejected token leaves the caller
// anonymous, which still permits the public operations.
func (h *CloudHandler) caller(c *gin.Context) vfs.Principal {
	caller, err := h.authenticator.Authenticate(c.Request)
	if err != nil {
		tracing.Logger(c.Request.Context(), h.logger).Warn("Authentication failed",
			zap.String("client_ip", c.ClientIP()),
			zap.Error(err),
		)
		return vfs.Anonymous
	}
	return caller
}

func (h *CloudHandler) readInput(c *gin.Context, req *operations.Request) error {
	op := req.Operation
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)

	if c.ContentType() == gin.MIMEMultipartPOSTForm {
		if err := c.Request.ParseMultipartForm(h.maxBody); err != nil {
			return bodyError(op, err)
		}
		req.Form = c.Request.MultipartForm
		return nil
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return bodyError(op, err)
	}
	req.Body = body
	return nil
}

func bodyError(op string, err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return vfs.Errorf(vfs.KindInvalidRequest, op, "", "request body exceeds %d bytes", tooLarge.Limit)
	}
	return vfs.Wrap(vfs.KindInvalidRequest, op, "", err)
}

func (h *CloudHandler) render(c *gin.Context, res *operations.Result) {
	if res.Stream != nil {
		s := res.Stream
		c.DataFromReader(res.Status, s.Size, s.ContentType, s.Reader, map[string]string{
			"Content-Disposition": ContentDisposition(s.Disposition, s.Filename),
		})
		return
	}

	data, err := sonic.Marshal(res.Body)
	if err != nil {
		tracing.Logger(c.Request.Context(), h.logger).Error("Failed to encode response", zap.Error(err))
		c.JSON(http.StatusInternalServerError, operations.Envelope{Message: "internal server error"})
		return
	}
	c.Data(res.Status, "application/json; charset=utf-8", data)
}

// queryBool accepts the spellings browsers send for checkboxes.
func queryBool(c *gin.Context, key string) bool {
	v := c.Query(key)
	if v == "on" {
		return true
	}
	b, _ := strconv.ParseBool(v)
	return b
}
