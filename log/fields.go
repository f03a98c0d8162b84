package log

import "go.uber.org/zap"

// Field is a structured log field, mirroring a common zap wrapper pattern: a
// thin rename of zap.Field so call sites never import zap directly.
type Field zap.Field

// LoggableField lets domain types provide their own field rendering, e.g.
// a SeqNo newtype that wants to log itself as an int64 under a fixed key.
type LoggableField interface {
	Field() Field
}

func unpack(fields []Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		out[i] = zap.Field(f)
	}
	return out
}

func String(key, val string) Field { return Field(zap.String(key, val)) }

func Int(key string, val int) Field { return Field(zap.Int(key, val)) }

func Int64(key string, val int64) Field { return Field(zap.Int64(key, val)) }

func Bool(key string, val bool) Field { return Field(zap.Bool(key, val)) }

func Err(err error) Field { return Field(zap.Error(err)) }

// SeqNo logs a write-set global sequence number under the given key.
func SeqNo(key string, val int64) Field { return Int64(key, val) }

// Peer logs a remote address or source UUID under the "peer" key.
func Peer(val string) Field { return String("peer", val) }

// Proto logs the negotiated protocol version.
func Proto(val int) Field { return Int("protocol_version", val) }
