package vfs

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"syscall"
)

// Kind classifies a failure for translation at the dispatcher boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindUnknownOperation
	KindInvalidRequest
	KindInvalidName
	KindPathEscape
	KindAlreadyExists
	KindNotFound
	KindReadOnly
	KindUnauthorized
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindUnknownOperation:
		return "unknown_operation"
	case KindInvalidRequest:
		return "invalid_request"
	case KindInvalidName:
		return "invalid_name"
	case KindPathEscape:
		return "path_escape"
	case KindAlreadyExists:
		return "already_exists"
	case KindNotFound:
		return "not_found"
	case KindReadOnly:
		return "read_only"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// HTTPStatus returns the status code reported for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnknownOperation, KindInvalidRequest, KindInvalidName, KindPathEscape, KindReadOnly:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure raised by the file service.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Op != "" && e.Path != "":
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Path, msg)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds a classified error with a formatted message.
func Errorf(kind Kind, op, path, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a kind to err, keeping an existing classification if err
// already carries one.
func Wrap(kind Kind, op, path string, err error) error {
	if err == nil {
		return nil
	}
	var ve *Error
	if errors.As(err, &ve) {
		return err
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: stripHostPath(err)}
}

// stripHostPath drops the host-side path carried by os errors; messages
// reach clients and must only mention adapter paths.
func stripHostPath(err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	var le *os.LinkError
	if errors.As(err, &le) {
		return le.Err
	}
	return err
}

var (
	ErrPathEscape       = errors.New("path escapes adapter root")
	ErrInvalidPrincipal = errors.New("invalid principal")
	ErrNoAdapters       = errors.New("no adapters configured")
)

// Classify maps any error onto the taxonomy. Unclassified errors from the
// underlying filesystem are recognised by their standard sentinels.
func Classify(err error) Kind {
	if err == nil {
		return KindInternal
	}

	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind
	}

	switch {
	case errors.Is(err, ErrPathEscape):
		return KindPathEscape
	case errors.Is(err, ErrInvalidPrincipal):
		return KindInvalidName
	case errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	case errors.Is(err, fs.ErrExist):
		return KindAlreadyExists
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EROFS):
		return KindReadOnly
	}
	return KindInternal
}
