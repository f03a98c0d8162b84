package ist

import "errors"

// This is a tagged error union in place of raw system errnos, but since
// ist_end's contract is a numeric exit code, CodeOf maps each sentinel
// back onto the legacy value so a host process that only understands
// errno-shaped codes keeps working.
var (
	// ErrInvalidConfig is returned from Prepare when neither recv_addr nor
	// recv_bind nor a base host/port fallback is configured.
	ErrInvalidConfig = errors.New("ist: recv_addr or recv_bind must be configured")

	// ErrInterrupted marks a receive session whose accept failed after
	// Finished had already requested termination. A session that Finished
	// stops while it waits for SST ends without an error (CodeOK), and a
	// cancelled Sender reports an ordinary transport error.
	ErrInterrupted = errors.New("ist: session interrupted")

	// ErrSeqnoMismatch marks a sequencing violation: the first frame's
	// seqno is past the requested first, or a later frame breaks the
	// stride-1 ordering.
	ErrSeqnoMismatch = errors.New("ist: seqno out of sequence")

	// ErrProtocol marks a malformed/truncated frame, an unexpected action
	// kind, or a short stream (current < last with no interruption).
	ErrProtocol = errors.New("ist: protocol error")

	// ErrUnsupportedVersion marks a handshake proposing a protocol version
	// this codec does not implement (version < 7 has no preload support).
	ErrUnsupportedVersion = errors.New("ist: unsupported protocol version")
)

// Exit codes surfaced via applyhandler.Handler.IstEnd, matching the legacy
// errno-shaped contract of the process this subsystem is embedded in.
const (
	CodeOK              = 0
	CodeInterrupted     = 4  // EINTR
	CodeInvalid         = 22 // EINVAL
	CodeProtocol        = 71 // EPROTO
	CodeTransportErrGen = 5  // generic transport failure when no errno is available (EIO)
)

// CodeOf maps an error produced by this package to the legacy errno-shaped
// exit code ist_end expects. Errors that are not one of the sentinels
// above (e.g. a wrapped *net.OpError from a transport failure) map to
// CodeTransportErrGen.
func CodeOf(err error) int {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrInterrupted):
		return CodeInterrupted
	case errors.Is(err, ErrSeqnoMismatch):
		return CodeInvalid
	case errors.Is(err, ErrProtocol), errors.Is(err, ErrUnsupportedVersion):
		return CodeProtocol
	default:
		return CodeTransportErrGen
	}
}
