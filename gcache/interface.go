// Package gcache declares the write-set cache interface IST's Sender reads
// from. The cache itself is an external collaborator (on-disk write-set
// storage, eviction, and locking live outside this module) — only the
// interface Sender needs is specified here.
package gcache

import "github.com/dutow/galera/internal/ist"

//go:generate mockgen -package=mocks -destination=./mocks/mocks.go -source=./interface.go Cache

// Cache is the donor-side write-set cache. Implementations must return
// contiguous buffers starting at first; IST holds the seqno lock on the
// range it is streaming for the lifetime of a Sender.Send call.
type Cache interface {
	// SeqnoGetBuffers fills up to len(bufs) contiguous write-set actions
	// starting at seqno first, returning the number filled. A return of
	// n <= 0 before the sender's requested last is surfaced by the sender
	// as a protocol error; after a shorter positive read the sender asks
	// again from the next seqno.
	SeqnoGetBuffers(first ist.SeqNo, bufs []ist.WriteSetAction) (n int, err error)

	// SeqnoUnlock releases the pinned range acquired by the preceding
	// SeqnoGetBuffers calls. Called exactly once, when the sender is done
	// (successfully or not).
	SeqnoUnlock()
}
