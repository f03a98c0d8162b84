// Package receiver implements the joiner side of IST: Receiver binds a
// listener, synchronizes with a concurrently running SST, validates the
// ordering of incoming write-sets and dispatches them to an apply handler.
package receiver

import (
	"crypto/tls"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dutow/galera/applyhandler"
	"github.com/dutow/galera/gcache"
	"github.com/dutow/galera/internal/config"
	"github.com/dutow/galera/internal/ist"
	"github.com/dutow/galera/internal/wire"
	"github.com/dutow/galera/log"
)

// progressLogInterval is how many dispatched write-sets elapse between
// "streaming progress" log lines, mirroring the periodic percentage
// reporting a long-running IST session emits rather than logging every
// frame.
const progressLogInterval = 4096

// Option configures a Receiver at construction time.
type Option func(*Receiver)

// WithLog attaches a structured logger.
func WithLog(l log.Log) Option {
	return func(r *Receiver) { r.logger = l }
}

// WithTLSConfig supplies the TLS server config used when the resolved
// listen scheme is ssl://.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(r *Receiver) { r.tlsConfig = cfg }
}

// WithCache attaches the joiner's local write-set cache. Its SeqnoUnlock
// is called exactly once, when the session terminates, mirroring the
// donor-side seqno lock discipline.
func WithCache(c gcache.Cache) Option {
	return func(r *Receiver) { r.cache = c }
}

// WithKeepKeys sets the keep_keys flag threaded into the wire.Proto built
// for this session once the protocol version is negotiated. Defaults to
// true.
func WithKeepKeys(keepKeys bool) Option {
	return func(r *Receiver) { r.keepKeys = keepKeys }
}

// Receiver is the joiner side of one IST session. It is not reusable: one
// Receiver maps to exactly one Prepare/Finished lifecycle.
type Receiver struct {
	logger    log.Log
	handler   applyhandler.Handler
	tlsConfig *tls.Config
	cache     gcache.Cache
	keepKeys  bool
	tracker   *tracker

	mu          sync.Mutex
	cond        *sync.Cond
	ready       bool
	interrupted bool
	running     bool
	acceptDone  bool

	firstSeqno ist.SeqNo
	last       ist.SeqNo
	current    ist.SeqNo
	version    int
	sourceID   string

	proto *wire.Proto

	listener   wire.Listener
	listenAddr string

	done chan struct{}
}

// New constructs a Receiver dispatching to handler.
func New(handler applyhandler.Handler, opts ...Option) *Receiver {
	r := &Receiver{
		handler:  handler,
		logger:   log.NewNop(),
		current:  ist.Undefined,
		keepKeys: true,
		tracker:  newTracker(),
	}
	r.cond = sync.NewCond(&r.mu)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Prepare binds the configured listener, spawns the receive task, and
// returns the advertisable recv_addr with any OS-assigned port substituted
// in. sourceID identifies the joiner to the donor side and must be a
// UUID, matching the cluster's node-identity convention.
func (r *Receiver) Prepare(cfg config.Config, first, last ist.SeqNo, version int, sourceID string) (string, error) {
	if _, err := uuid.Parse(sourceID); err != nil {
		return "", fmt.Errorf("%w: source_id %q is not a uuid: %v", ist.ErrInvalidConfig, sourceID, err)
	}

	target, err := cfg.ResolveListenTarget()
	if err != nil {
		return "", err
	}

	var tlsCfg *tls.Config
	if target.Scheme == wire.SchemeSSL {
		tlsCfg = r.tlsConfig
		if tlsCfg != nil {
			cloned := tlsCfg.Clone()
			if config.VerifyPeerCertificate(version) {
				cloned.ClientAuth = tls.RequireAndVerifyClientCert
			} else {
				cloned.ClientAuth = tls.NoClientCert
			}
			tlsCfg = cloned
		}
	}
	l, err := wire.Listen(target.Scheme, target.BindAddr, tlsCfg)
	if err != nil {
		return "", fmt.Errorf("ist: prepare: bind %s: %w", target.BindAddr, err)
	}

	advert, err := wire.SubstitutePort(target.AdvertAddr, l)
	if err != nil {
		l.Close()
		return "", fmt.Errorf("ist: prepare: %w", err)
	}

	r.mu.Lock()
	r.listener = l
	r.listenAddr = advert
	r.firstSeqno = first
	r.last = last
	r.version = version
	r.sourceID = sourceID
	r.current = ist.Undefined
	r.running = true
	r.mu.Unlock()

	r.done = make(chan struct{})
	r.tracker.sessionStarted()
	r.logger.Info("ist receiver prepared",
		log.String("addr", advert), log.Int("version", version), log.String("source_id", sourceID))

	go r.run()

	return advert, nil
}

// Ready signals the receive task that SST has completed and that first is
// the minimum seqno the joiner needs applied. Callers must call this at
// most once per session.
func (r *Receiver) Ready(first ist.SeqNo) {
	r.mu.Lock()
	r.firstSeqno = first
	r.ready = true
	r.cond.Broadcast()
	r.mu.Unlock()
}

// Finished requests termination of the receive task and joins it,
// returning the last seqno reached. Before Ready it marks the session
// interrupted; after Ready it does not, so a stream that ends before last
// still reports a protocol error. It is safe to call after the session
// has already ended (it becomes a no-op).
func (r *Receiver) Finished() ist.SeqNo {
	r.mu.Lock()
	if !r.running {
		cur := r.current
		r.mu.Unlock()
		return cur
	}
	if !r.ready {
		r.interrupted = true
	}
	acceptDone := r.acceptDone
	addr := r.listenAddr
	r.cond.Broadcast()
	r.mu.Unlock()

	if !acceptDone {
		r.unblockAccept(addr)
	}

	<-r.done

	r.mu.Lock()
	cur := r.current
	r.mu.Unlock()
	return cur
}

// unblockAccept opens a loopback connection to our own listener and plays
// the donor's side of the abbreviated handshake, so a receive task still
// parked in accept() observes a connection and can reach the interrupted
// check in WAITING_FOR_SST instead of blocking forever. If the real donor
// already connected, the listener is already closed and this dial fails
// harmlessly; the interrupted flag has no further effect on a task already
// in STREAMING, since cancellation is only meaningful before ready() is
// called.
func (r *Receiver) unblockAccept(addr string) {
	scheme, hostport, err := wire.ParseAddr(addr)
	if err != nil {
		return
	}
	var tlsCfg *tls.Config
	if scheme == wire.SchemeSSL {
		tlsCfg = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // loopback self-dial only
	}
	conn, err := wire.Dial(scheme, hostport, tlsCfg)
	if err != nil {
		return
	}
	defer conn.Close()

	proposed, err := wire.RecvHandshake(conn)
	if err != nil {
		return
	}
	agreed, err := wire.Negotiate(proposed)
	if err != nil {
		agreed = proposed
	}
	if err := wire.SendHandshakeResponse(conn, agreed); err != nil {
		return
	}
	if _, err := wire.RecvCtrl(conn); err != nil {
		return
	}
	_ = wire.SendCtrl(conn, wire.CEOF)
}

func (r *Receiver) run() {
	defer close(r.done)

	conn, err := r.accept()
	if err != nil {
		r.finishSession(err)
		return
	}
	defer conn.Close()

	if err := r.handshake(conn); err != nil {
		r.finishSession(err)
		return
	}

	if interrupted := r.waitForSST(); interrupted {
		r.finishSession(nil)
		return
	}

	r.finishSession(r.stream(conn))
}

func (r *Receiver) accept() (wire.Stream, error) {
	r.mu.Lock()
	l := r.listener
	r.mu.Unlock()

	conn, acceptErr := l.Accept()

	r.mu.Lock()
	r.acceptDone = true
	r.listener = nil
	interrupted := r.interrupted
	r.mu.Unlock()
	l.Close()

	if acceptErr != nil {
		if interrupted {
			return nil, fmt.Errorf("%w: %v", ist.ErrInterrupted, acceptErr)
		}
		return nil, fmt.Errorf("ist: accept: %w", acceptErr)
	}
	return conn, nil
}

func (r *Receiver) handshake(conn wire.Stream) error {
	r.mu.Lock()
	proposed := r.version
	r.mu.Unlock()

	if err := wire.SendHandshake(conn, proposed); err != nil {
		return err
	}
	agreed, err := wire.RecvHandshakeResponse(conn)
	if err != nil {
		return err
	}
	if !wire.Supported(agreed) {
		_ = wire.SendCtrl(conn, int32(-ist.CodeProtocol))
		return fmt.Errorf("%w: peer agreed on unsupported version %d", ist.ErrUnsupportedVersion, agreed)
	}

	r.mu.Lock()
	r.version = agreed
	r.proto = wire.New(agreed, r.keepKeys)
	r.mu.Unlock()

	return wire.SendCtrl(conn, wire.COK)
}

// waitForSST blocks until Ready or Finished is called, returning whether
// the session was interrupted before becoming ready.
func (r *Receiver) waitForSST() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for !r.ready && !r.interrupted {
		r.cond.Wait()
	}
	return r.interrupted && !r.ready
}

func (r *Receiver) stream(conn wire.Stream) error {
	r.mu.Lock()
	first := r.firstSeqno
	last := r.last
	proto := r.proto
	r.mu.Unlock()

	current := ist.Undefined
	firstFrame := true
	preloadSeen := false
	var dispatched int64

	for {
		action, preload, err := proto.RecvOrdered(conn)
		if err != nil {
			return fmt.Errorf("ist: stream: %w", err)
		}
		if action.IsEOF() {
			break
		}

		if firstFrame {
			if action.SeqNoG > first {
				return fmt.Errorf("%w: first frame seqno %d exceeds requested first %d", ist.ErrSeqnoMismatch, action.SeqNoG, first)
			}
			current = action.SeqNoG
			firstFrame = false
		} else {
			current++
			if action.SeqNoG != current {
				return fmt.Errorf("%w: expected seqno %d, got %d", ist.ErrSeqnoMismatch, current, action.SeqNoG)
			}
		}

		if preloadSeen && !preload {
			return fmt.Errorf("%w: preload flag regressed from true to false", ist.ErrProtocol)
		}
		preloadSeen = preloadSeen || preload

		r.mu.Lock()
		r.current = current
		r.mu.Unlock()
		r.tracker.progress(int64(current), int64(last))

		dispatched++
		if dispatched%progressLogInterval == 0 {
			r.logger.Info("ist receiver streaming progress",
				log.SeqNo("current", int64(current)), log.SeqNo("last", int64(last)))
		}

		mustApply := current >= first

		switch action.Kind {
		case ist.ActionWriteSet:
			if err := r.handler.IstTrx(action, mustApply, preload); err != nil {
				return fmt.Errorf("ist: apply trx %d: %w", action.SeqNoG, err)
			}
		case ist.ActionCChange:
			if err := r.handler.IstCC(action, mustApply, preload); err != nil {
				return fmt.Errorf("ist: apply cc %d: %w", action.SeqNoG, err)
			}
		default:
			return fmt.Errorf("%w: unexpected action kind %v mid-stream", ist.ErrProtocol, action.Kind)
		}
	}

	return nil
}

func (r *Receiver) finishSession(sessionErr error) {
	r.mu.Lock()
	cache := r.cache
	last := r.last
	interrupted := r.interrupted
	current := r.current
	r.running = false
	r.mu.Unlock()

	if cache != nil {
		cache.SeqnoUnlock()
	}

	ec := sessionErr
	if ec == nil && !interrupted && last > 0 && current < last {
		ec = fmt.Errorf("%w: stream ended at %d before last %d", ist.ErrProtocol, current, last)
	}

	code := ist.CodeOf(ec)
	r.tracker.sessionEnded(code)
	if ec != nil {
		r.logger.Warning("ist receiver session ended with error", log.Err(ec), log.Int("code", code))
	} else {
		r.logger.Info("ist receiver session ended", log.Int("code", code))
	}
	r.handler.IstEnd(code)
}
