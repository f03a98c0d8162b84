// Package asyncsender supervises outbound IST sessions. Each call to
// Run spawns one background sender against one peer; Map tracks every
// live session so Cancel can stop them all.
package asyncsender

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/dutow/galera/gcache"
	"github.com/dutow/galera/internal/ist"
	"github.com/dutow/galera/log"
	"github.com/dutow/galera/sender"
)

// Option configures a Map at construction time.
type Option func(*Map)

// WithLog attaches a structured logger.
func WithLog(l log.Log) Option {
	return func(m *Map) { m.logger = l }
}

// WithTLSConfig supplies the client TLS config used by spawned senders.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(m *Map) { m.tlsConfig = cfg }
}

// WithSpawnLimiter bounds how fast Run admits new outbound sessions,
// mirroring a request-rate limiter shape
// (p2p/server.Server.Run, rate.NewLimiter(rate.Every(interval/n), n))
// applied here to session spawn rather than request admission. Without
// this option, Run never throttles.
func WithSpawnLimiter(l *rate.Limiter) Option {
	return func(m *Map) { m.limiter = l }
}

// WithKeepKeys sets the keep_keys flag threaded into every spawned
// sender's wire.Proto. Defaults to true.
func WithKeepKeys(keepKeys bool) Option {
	return func(m *Map) { m.keepKeys = keepKeys }
}

// session is one live outbound sender, tracked so Cancel can stop it.
type session struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Map supervises the set of outbound IST sessions reading from cache.
// All mutation of the session set is serialized by mu.
type Map struct {
	logger    log.Log
	cache     gcache.Cache
	tlsConfig *tls.Config
	keepKeys  bool
	tracker   *tracker
	limiter   *rate.Limiter

	mu       sync.Mutex
	sessions map[*session]struct{}
}

// New constructs a Map whose senders read from cache.
func New(cache gcache.Cache, opts ...Option) *Map {
	m := &Map{
		logger:   log.NewNop(),
		cache:    cache,
		keepKeys: true,
		tracker:  newTracker(),
		limiter:  rate.NewLimiter(rate.Inf, 0),
		sessions: make(map[*session]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run allocates a sender for peer, throttles against the spawn rate
// limiter, then launches it in a background goroutine and inserts it
// into the set. If ctx is cancelled before the limiter admits the spawn,
// Run returns that error and nothing is spawned.
func (m *Map) Run(ctx context.Context, peer string, first, last, preloadStart ist.SeqNo, version int) error {
	if err := m.limiter.Wait(ctx); err != nil {
		m.tracker.waitThrottled()
		return fmt.Errorf("ist: asyncsender: throttled: %w", err)
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &session{cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	m.sessions[s] = struct{}{}
	m.mu.Unlock()
	m.tracker.sessionSpawned()
	m.logger.Info("ist asyncsender spawning session",
		log.Peer(peer), log.SeqNo("first", int64(first)), log.SeqNo("last", int64(last)), log.Proto(version))

	snd := sender.New(m.cache, sender.WithLog(m.logger), sender.WithTLSConfig(m.tlsConfig), sender.WithKeepKeys(m.keepKeys))

	go func() {
		defer close(s.done)
		err := snd.Send(sctx, peer, first, last, preloadStart)
		joinSeqno := last
		if err != nil {
			joinSeqno = -ist.SeqNo(ist.CodeOf(err))
			m.logger.Warning("ist asyncsender session failed", log.Peer(peer), log.Err(err))
		} else {
			m.logger.Info("ist asyncsender session completed", log.Peer(peer), log.SeqNo("join_seqno", int64(joinSeqno)))
		}
		m.remove(s, joinSeqno)
	}()

	return nil
}

// remove drops s from the set. Called exactly once, by the session's own
// goroutine after send returns.
func (m *Map) remove(s *session, _ ist.SeqNo) {
	m.mu.Lock()
	delete(m.sessions, s)
	m.mu.Unlock()
	m.tracker.sessionRemoved()
}

// Cancel stops every live session and waits for each to finish. The map
// lock is dropped while joining each session, since the session's own
// completion path (remove) needs to reacquire it to delete itself; holding
// the lock across the join would deadlock against that self-removal.
func (m *Map) Cancel() {
	m.mu.Lock()
	live := make([]*session, 0, len(m.sessions))
	for s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	for _, s := range live {
		s.cancel()
	}
	for _, s := range live {
		<-s.done
	}
}

// Len reports the number of currently-live sessions, for tests and
// metrics scraping.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
