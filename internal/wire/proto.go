// Package wire implements the IST on-the-wire frame format: a single
// shared encoder used by both sender and receiver so the two sides agree
// bit-for-bit on handshake, control and ordered write-set frames.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dutow/galera/internal/ist"
)

// Protocol version bounds. Only versions implementing the preload/overlap
// mechanics described below are supported; earlier versions are rejected
// outright rather than partially downgraded.
const (
	MinVersion = 7
	MaxVersion = 8
)

// Frame tags, bit-exact across every peer speaking this codec.
const (
	tagCtrl              byte = 1
	tagOrdered           byte = 2
	tagHandshake         byte = 3
	tagHandshakeResponse byte = 4
)

// Ctrl codes.
const (
	COK  int32 = 0
	CEOF int32 = 1
)

// Action-type wire values, distinct from ist.ActionKind only in that
// ActionUnknown never appears on the wire (it is synthesized locally on
// EOF).
const (
	wireActionWriteSet byte = 1
	wireActionCChange  byte = 2
)

// Proto is the IST wire codec, parameterized by the negotiated protocol
// version and the keep_keys flag. SendOrdered/RecvOrdered are methods on
// Proto (rather than free functions) because keep_keys must be threaded
// alongside every decoded WriteSetAction for the write-set deserializer
// further up the call stack to consult; this package itself does not
// special-case the frame bytes on KeepKeys, since interpreting the
// write-set payload is outside its scope.
type Proto struct {
	Version  int
	KeepKeys bool
}

// New constructs a codec for an already-negotiated version.
func New(version int, keepKeys bool) *Proto {
	return &Proto{Version: version, KeepKeys: keepKeys}
}

// Supported reports whether v is a protocol version this codec knows how
// to speak.
func Supported(v int) bool {
	return v >= MinVersion && v <= MaxVersion
}

// Negotiate picks the highest version both sides support, or returns
// ErrUnsupportedVersion.
func Negotiate(proposed int) (int, error) {
	v := proposed
	if v > MaxVersion {
		v = MaxVersion
	}
	if !Supported(v) {
		return 0, fmt.Errorf("%w: proposed %d", ist.ErrUnsupportedVersion, proposed)
	}
	return v, nil
}

func writeFrameHeader(w io.Writer, tag byte, payloadLen uint32) error {
	var hdr [5]byte
	hdr[0] = tag
	binary.BigEndian.PutUint32(hdr[1:], payloadLen)
	_, err := w.Write(hdr[:])
	return err
}

func readFrameHeader(r io.Reader) (tag byte, payloadLen uint32, err error) {
	var hdr [5]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, 0, err
	}
	return hdr[0], binary.BigEndian.Uint32(hdr[1:]), nil
}

// SendHandshake writes the proposing side's supported protocol version.
func SendHandshake(w io.Writer, proposedVersion int) error {
	if err := writeFrameHeader(w, tagHandshake, 4); err != nil {
		return fmt.Errorf("ist: send handshake: %w", err)
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(proposedVersion))
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("ist: send handshake: %w", err)
	}
	return nil
}

// RecvHandshake reads the peer's proposed protocol version.
func RecvHandshake(r io.Reader) (int, error) {
	tag, plen, err := readFrameHeader(r)
	if err != nil {
		return 0, fmt.Errorf("ist: recv handshake: %w", err)
	}
	if tag != tagHandshake || plen != 4 {
		return 0, fmt.Errorf("%w: unexpected handshake frame (tag=%d len=%d)", ist.ErrProtocol, tag, plen)
	}
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("ist: recv handshake: %w", err)
	}
	return int(binary.BigEndian.Uint32(buf[:])), nil
}

// SendHandshakeResponse writes the negotiated version back to the
// proposing side.
func SendHandshakeResponse(w io.Writer, agreedVersion int) error {
	if err := writeFrameHeader(w, tagHandshakeResponse, 4); err != nil {
		return fmt.Errorf("ist: send handshake response: %w", err)
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(agreedVersion))
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("ist: send handshake response: %w", err)
	}
	return nil
}

// RecvHandshakeResponse reads the agreed protocol version.
func RecvHandshakeResponse(r io.Reader) (int, error) {
	tag, plen, err := readFrameHeader(r)
	if err != nil {
		return 0, fmt.Errorf("ist: recv handshake response: %w", err)
	}
	if tag != tagHandshakeResponse || plen != 4 {
		return 0, fmt.Errorf("%w: unexpected handshake-response frame (tag=%d len=%d)", ist.ErrProtocol, tag, plen)
	}
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("ist: recv handshake response: %w", err)
	}
	return int(binary.BigEndian.Uint32(buf[:])), nil
}

// SendCtrl writes a single control frame.
func SendCtrl(w io.Writer, code int32) error {
	if err := writeFrameHeader(w, tagCtrl, 4); err != nil {
		return fmt.Errorf("ist: send ctrl: %w", err)
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(code))
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("ist: send ctrl: %w", err)
	}
	return nil
}

// RecvCtrl reads a single control frame's code.
func RecvCtrl(r io.Reader) (int32, error) {
	tag, plen, err := readFrameHeader(r)
	if err != nil {
		return 0, fmt.Errorf("ist: recv ctrl: %w", err)
	}
	if tag != tagCtrl || plen != 4 {
		return 0, fmt.Errorf("%w: unexpected ctrl frame (tag=%d len=%d)", ist.ErrProtocol, tag, plen)
	}
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("ist: recv ctrl: %w", err)
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

// SendOrdered writes one ORDERED frame carrying action plus the preload
// flag. p.KeepKeys has no effect on the bytes written here; it travels on
// Proto purely so a caller holding this same Proto can look it up when
// handing the decoded action to its write-set deserializer.
func (p *Proto) SendOrdered(w io.Writer, action ist.WriteSetAction, preload bool) error {
	var actionType byte
	switch action.Kind {
	case ist.ActionWriteSet:
		actionType = wireActionWriteSet
	case ist.ActionCChange:
		actionType = wireActionCChange
	default:
		return fmt.Errorf("%w: cannot send action kind %v on the wire", ist.ErrProtocol, action.Kind)
	}
	const header = 1 + 1 + 8 // action_type + preload + seqno_g
	payloadLen := header + len(action.Buf)
	if err := writeFrameHeader(w, tagOrdered, uint32(payloadLen)); err != nil {
		return fmt.Errorf("ist: send ordered: %w", err)
	}
	var buf [header]byte
	buf[0] = actionType
	if preload {
		buf[1] = 1
	}
	binary.BigEndian.PutUint64(buf[2:], uint64(action.SeqNoG))
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("ist: send ordered: %w", err)
	}
	if len(action.Buf) > 0 {
		if _, err := w.Write(action.Buf); err != nil {
			return fmt.Errorf("ist: send ordered: %w", err)
		}
	}
	return nil
}

// RecvOrdered reads one frame. An ORDERED frame decodes into its
// WriteSetAction and preload flag. A CTRL frame carrying C_EOF, or a
// genuine transport EOF before any frame header is read, both decode into
// the application-layer EOF marker (ist.WriteSetAction.IsEOF()) so callers
// can drive a single uniform loop.
func (p *Proto) RecvOrdered(r io.Reader) (ist.WriteSetAction, bool, error) {
	tag, plen, err := readFrameHeader(r)
	if err != nil {
		if err == io.EOF {
			return ist.EOFAction(), false, nil
		}
		return ist.WriteSetAction{}, false, fmt.Errorf("ist: recv ordered: %w", err)
	}
	switch tag {
	case tagCtrl:
		if plen != 4 {
			return ist.WriteSetAction{}, false, fmt.Errorf("%w: malformed ctrl frame", ist.ErrProtocol)
		}
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return ist.WriteSetAction{}, false, fmt.Errorf("ist: recv ordered: %w", err)
		}
		code := int32(binary.BigEndian.Uint32(buf[:]))
		if code == CEOF {
			return ist.EOFAction(), false, nil
		}
		return ist.WriteSetAction{}, false, fmt.Errorf("%w: peer ctrl error %d", ist.ErrProtocol, code)
	case tagOrdered:
		const header = 1 + 1 + 8
		if plen < header {
			return ist.WriteSetAction{}, false, fmt.Errorf("%w: truncated ordered frame header", ist.ErrProtocol)
		}
		var hdr [header]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return ist.WriteSetAction{}, false, fmt.Errorf("ist: recv ordered: %w", err)
		}
		var kind ist.ActionKind
		switch hdr[0] {
		case wireActionWriteSet:
			kind = ist.ActionWriteSet
		case wireActionCChange:
			kind = ist.ActionCChange
		default:
			return ist.WriteSetAction{}, false, fmt.Errorf("%w: unknown action type %d", ist.ErrProtocol, hdr[0])
		}
		preload := hdr[1] == 1
		seqno := ist.SeqNo(binary.BigEndian.Uint64(hdr[2:]))
		payloadLen := int(plen) - header
		buf := make([]byte, payloadLen)
		if payloadLen > 0 {
			if _, err := io.ReadFull(r, buf); err != nil {
				return ist.WriteSetAction{}, false, fmt.Errorf("ist: recv ordered: %w", err)
			}
		}
		return ist.WriteSetAction{SeqNoG: seqno, Kind: kind, Buf: buf, Size: payloadLen}, preload, nil
	default:
		return ist.WriteSetAction{}, false, fmt.Errorf("%w: unexpected frame tag %d", ist.ErrProtocol, tag)
	}
}
