package logger

import (
	"time"

	"go.uber.org/zap"
)

// HTTP fields.

// RequestID field for the request id.
func RequestID(v string) zap.Field { return zap.String("request_id", v) }

// Method field for the HTTP method.
func Method(v string) zap.Field { return zap.String("method", v) }

// Path field for the request path.
func Path(v string) zap.Field { return zap.String("path", v) }

// Status field for the HTTP status code.
func Status(v int) zap.Field { return zap.Int("status", v) }

// Duration field for elapsed time.
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

// ClientIP field for the remote address.
func ClientIP(v string) zap.Field { return zap.String("client_ip", v) }

// Bytes field for the response size.
func Bytes(v int) zap.Field { return zap.Int("bytes", v) }

// Domain fields.

// UserID field for the acting user.
func UserID(v string) zap.Field { return zap.String("user_id", v) }

// ToolID field for the logical tool being linked.
func ToolID(v string) zap.Field { return zap.String("tool_id", v) }

// Provider field for the OAuth provider behind a tool.
func Provider(v string) zap.Field { return zap.String("provider", v) }

// System fields.

// Component field for the module emitting the entry.
func Component(v string) zap.Field { return zap.String("component", v) }

// Op field for the current operation.
func Op(v string) zap.Field { return zap.String("op", v) }

// Layer field for the layer (controller, broker, store).
func Layer(v string) zap.Field { return zap.String("layer", v) }

// Err field for an error.
func Err(err error) zap.Field { return zap.Error(err) }

// Generic fields.

// Count field for a count.
func Count(v int) zap.Field { return zap.Int("count", v) }

// String generic string field.
func String(key, v string) zap.Field { return zap.String(key, v) }

// Int generic int field.
func Int(key string, v int) zap.Field { return zap.Int(key, v) }

// Any generic field for arbitrary values.
func Any(key string, v any) zap.Field { return zap.Any(key, v) }
