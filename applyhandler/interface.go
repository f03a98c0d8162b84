// Package applyhandler declares the interface the Receiver dispatches
// decoded write-sets and configuration changes to. The apply pipeline
// itself is an external collaborator (replication/storage engine); only
// the interface it must expose to Receiver is specified here.
package applyhandler

import "github.com/dutow/galera/internal/ist"

//go:generate mockgen -package=mocks -destination=./mocks/mocks.go -source=./interface.go Handler

// Handler is the apply pipeline consumed by Receiver. Its methods run on
// the receive goroutine; implementations must not call back into the
// Receiver that invoked them.
type Handler interface {
	// IstTrx applies (or, if !mustApply, only preloads) one deserialized
	// write-set transaction.
	IstTrx(action ist.WriteSetAction, mustApply, preload bool) error

	// IstCC applies (or preloads) one configuration-change action.
	IstCC(action ist.WriteSetAction, mustApply, preload bool) error

	// IstEnd is called exactly once per session, after the last dispatch,
	// with the legacy errno-shaped exit code from ist.CodeOf.
	IstEnd(code int)
}
