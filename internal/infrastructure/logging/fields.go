package logging

import "go.uber.org/zap"

// Field keys shared by every log line that concerns a request.
const (
	KeyOperation = "operation"
	KeyPrincipal = "principal"
	KeyCaller    = "caller"
	KeyAdapter   = "adapter"
	KeyPath      = "path"
	KeyRequestID = "request_id"
)

// Operation names the dispatched operation.
func Operation(op string) zap.Field {
	return zap.String(KeyOperation, op)
}

// Principal names the user whose roots are addressed.
func Principal(p string) zap.Field {
	return zap.String(KeyPrincipal, p)
}

// Caller names the authenticated user making the request.
func Caller(p string) zap.Field {
	return zap.String(KeyCaller, p)
}

// Adapter names the storage root key.
func Adapter(key string) zap.Field {
	return zap.String(KeyAdapter, key)
}

// Path is a path inside an adapter root, never a host path.
func Path(p string) zap.Field {
	return zap.String(KeyPath, p)
}

// RequestID tags a line with its request.
func RequestID(id string) zap.Field {
	return zap.String(KeyRequestID, id)
}

// Call returns the fields identifying one dispatched operation. Adapter and
// path are left out when the request did not name them.
func Call(op, principal, caller, adapter, p string) []zap.Field {
	fields := []zap.Field{Operation(op), Principal(principal), Caller(caller)}
	if adapter != "" {
		fields = append(fields, Adapter(adapter))
	}
	if p != "" {
		fields = append(fields, Path(p))
	}
	return fields
}
