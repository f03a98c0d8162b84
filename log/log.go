// Package log provides the structured logging facility used across the
// IST subsystem: a thin wrapper around zap that lets call sites build up
// fields with a small domain-specific vocabulary (seqno, peer, protocol)
// instead of scattering zap.* calls through every package.
package log

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log wraps a zap.Logger. It is passed by value, so call sites can freely
// derive named/child loggers without worrying about shared mutable state.
type Log struct {
	logger *zap.Logger
}

var (
	nopOnce sync.Once
	nop     Log
)

// NewNop returns a logger that discards everything. Used as the default
// for components constructed without an explicit WithLog option.
func NewNop() Log {
	nopOnce.Do(func() {
		nop = Log{logger: zap.NewNop()}
	})
	return nop
}

// New builds a development-style console logger at the given level. IST
// components use this only from cmd/istctl; library code never calls it.
func New(level zapcore.Level) Log {
	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level)
	return Log{logger: zap.New(core)}
}

// NewFromZap wraps an already-configured zap logger, for embedding IST into
// a host process that owns its own logging setup.
func NewFromZap(l *zap.Logger) Log {
	return Log{logger: l}
}

func (l Log) zap() *zap.Logger {
	if l.logger == nil {
		return zap.NewNop()
	}
	return l.logger
}

// Named returns a child logger scoped under name, e.g. "receiver" or
// "sender".
func (l Log) Named(name string) Log {
	return Log{logger: l.zap().Named(name)}
}

// With returns a logger with the given structured fields attached to every
// subsequent entry.
func (l Log) With(fields ...Field) Log {
	if len(fields) == 0 {
		return l
	}
	return Log{logger: l.zap().With(unpack(fields)...)}
}

func (l Log) Debug(msg string, fields ...Field) {
	l.zap().Debug(msg, unpack(fields)...)
}

func (l Log) Info(msg string, fields ...Field) {
	l.zap().Info(msg, unpack(fields)...)
}

func (l Log) Warning(msg string, fields ...Field) {
	l.zap().Warn(msg, unpack(fields)...)
}

func (l Log) Error(msg string, fields ...Field) {
	l.zap().Error(msg, unpack(fields)...)
}

var (
	globalMu sync.RWMutex
	global   = NewNop()
)

// SetupGlobal installs the process-wide default logger, mirroring the
// teacher's log.SetupGlobal. cmd/istctl calls this once at startup;
// library packages never read the global directly, they take a Log at
// construction time instead.
func SetupGlobal(l Log) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = l
}

// GetLogger returns the current process-wide default logger.
func GetLogger() Log {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}
