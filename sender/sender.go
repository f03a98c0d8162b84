// Package sender implements the donor side of IST: Sender connects to a
// joiner, negotiates the protocol version, reads a contiguous range out
// of the write-set cache in batches, and streams it in strict ascending
// seqno order.
package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/dutow/galera/gcache"
	"github.com/dutow/galera/internal/ist"
	"github.com/dutow/galera/internal/wire"
	"github.com/dutow/galera/log"
)

// maxBatch is the largest number of write-sets read from the cache per
// seqno_get_buffers call.
const maxBatch = 1024

// Option configures a Sender at construction time.
type Option func(*Sender)

// WithLog attaches a structured logger.
func WithLog(l log.Log) Option {
	return func(s *Sender) { s.logger = l }
}

// WithTLSConfig supplies the client TLS config used to dial ssl:// peers.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(s *Sender) { s.tlsConfig = cfg }
}

// WithKeepKeys sets the keep_keys flag threaded into the wire.Proto built
// for each session; it has no effect on the bytes this package writes,
// only on what's available to a write-set deserializer downstream.
// Defaults to true.
func WithKeepKeys(keepKeys bool) Option {
	return func(s *Sender) { s.keepKeys = keepKeys }
}

// Sender streams one [first..last] range of write-sets to a single peer.
// A Sender is single-use: construct one per outbound session.
type Sender struct {
	logger    log.Log
	cache     gcache.Cache
	tlsConfig *tls.Config
	keepKeys  bool
	tracker   *tracker
}

// New constructs a Sender reading from cache.
func New(cache gcache.Cache, opts ...Option) *Sender {
	s := &Sender{cache: cache, logger: log.NewNop(), keepKeys: true, tracker: newTracker()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send connects to peerAddr, accepts the protocol version the joiner
// proposes (capped at wire.MaxVersion), then streams [first..last]. preloadStart,
// when > 0, marks every write-set at or above it as preload-only: this
// lets a donor still hand over the range below a joiner's post-SST
// watermark so the joiner's cache stays contiguous, without asking the
// joiner to re-apply entries SST already installed.
//
// Cancelling ctx closes the underlying socket, which fails any blocked
// read or write and returns promptly; the resulting error is ordinary
// transport failure, not a distinct cancellation path.
func (s *Sender) Send(ctx context.Context, peerAddr string, first, last ist.SeqNo, preloadStart ist.SeqNo) (err error) {
	defer s.cache.SeqnoUnlock()
	scheme, hostport, err := wire.ParseAddr(peerAddr)
	if err != nil {
		return fmt.Errorf("ist: sender: %w", err)
	}
	conn, err := wire.Dial(scheme, hostport, s.tlsConfig)
	if err != nil {
		return fmt.Errorf("ist: sender: dial %s: %w", peerAddr, err)
	}
	defer conn.Close()
	defer func() { s.tracker.sessionEnded(err) }()

	watchdogDone := make(chan struct{})
	defer close(watchdogDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchdogDone:
		}
	}()

	version, err := s.handshake(conn)
	if err != nil {
		return err
	}
	s.logger.Info("ist sender connected", log.Peer(peerAddr), log.Proto(version))
	proto := wire.New(version, s.keepKeys)

	if first > last || (first == 0 && last == 0) {
		return s.sendEOF(conn)
	}

	for first <= last {
		batch := last - first + 1
		if batch > maxBatch {
			batch = maxBatch
		}
		bufs := make([]ist.WriteSetAction, batch)
		n, err := s.cache.SeqnoGetBuffers(first, bufs)
		if err != nil {
			return fmt.Errorf("ist: sender: read cache at %d: %w", first, err)
		}
		if n <= 0 {
			return fmt.Errorf("%w: cache exhausted at seqno %d before reaching %d", ist.ErrProtocol, first, last)
		}

		for i := 0; i < n; i++ {
			buf := bufs[i]
			preload := preloadStart > 0 && buf.SeqNoG >= preloadStart
			if err := proto.SendOrdered(conn, buf, preload); err != nil {
				return fmt.Errorf("ist: sender: send ordered %d: %w", buf.SeqNoG, err)
			}
			s.tracker.sent1()
			if buf.SeqNoG == last {
				return s.sendEOF(conn)
			}
		}

		first += ist.SeqNo(n)
	}
	return s.sendEOF(conn)
}

// handshake performs the reverse handshake from the sender's side:
// receive the joiner's proposed version, respond with the negotiated
// version, then read one control code.
func (s *Sender) handshake(conn wire.Stream) (int, error) {
	proposed, err := wire.RecvHandshake(conn)
	if err != nil {
		return 0, fmt.Errorf("ist: sender: handshake: %w", err)
	}
	agreed, err := wire.Negotiate(proposed)
	if err != nil {
		return 0, err
	}
	if err := wire.SendHandshakeResponse(conn, agreed); err != nil {
		return 0, fmt.Errorf("ist: sender: handshake: %w", err)
	}
	code, err := wire.RecvCtrl(conn)
	if err != nil {
		return 0, fmt.Errorf("ist: sender: handshake: %w", err)
	}
	if code < 0 {
		return 0, fmt.Errorf("%w: joiner rejected handshake with code %d", ist.ErrProtocol, code)
	}
	return agreed, nil
}

// sendEOF sends C_EOF and drains the stream until the peer closes it, so
// the close is observed as a clean FIN rather than a reset. A non-clean
// close is logged rather than silently discarded, but still does not
// fail the session.
func (s *Sender) sendEOF(conn wire.Stream) error {
	if err := wire.SendCtrl(conn, wire.CEOF); err != nil {
		return fmt.Errorf("ist: sender: send eof: %w", err)
	}
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warning("ist sender: eof drain observed a non-clean close", log.Err(err))
			return nil
		}
		if n > 0 {
			s.logger.Debug("ist sender: discarding unexpected bytes during eof drain", log.Int("n", n))
		}
	}
}
