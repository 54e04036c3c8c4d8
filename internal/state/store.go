package state

import "errors"

// errNoChange aborts a Mutate without treating it as a failure, so a
// rejected payment update does not stamp LastUpdated or rewrite anything.
var errNoChange = errors.New("state: no change")

// Store owns all conversation state and the two derived id indexes. It is the
// single component allowed to touch the persisted documents; every other
// package goes through it.
//
// UpdatePaymentStatus and UpdatePaymentStatusByOrderID return false instead
// of an error when the reference is unknown or stale: payment providers
// deliver notifications for test or out-of-order references, and on the
// webhook path that is "nothing to do", not a failure.
type Store interface {
	// GetState returns a copy of the user's state, lazily creating and
	// persisting a default one on first contact.
	GetState(userID string) (*ConversationState, error)

	// UpdateState replaces the stored state, stamps LastUpdated, and
	// persists before returning.
	UpdateState(userID string, st *ConversationState) error

	// Mutate runs fn on the user's state under a per-user lock and persists
	// the result only when fn returns nil. An error from fn discards every
	// change, so an aborted turn leaves state untouched.
	//
	// fn must be pure apart from mutating the passed state: the redis
	// backend re-runs it when a concurrent write forces a retry, so any
	// external call inside fn can execute more than once.
	Mutate(userID string, fn func(*ConversationState) error) error

	// RegisterOrder records the order-id and preference-id indexes for a
	// user. Idempotent under repeated calls with the same arguments.
	RegisterOrder(userID, orderID, preferenceID string) error

	UpdatePaymentStatus(preferenceID string, status PaymentStatus, metadata map[string]string) bool
	UpdatePaymentStatusByOrderID(orderID string, status PaymentStatus, metadata map[string]string) bool

	FindUserByOrderID(orderID string) (string, bool)
	FindUserByPreferenceID(preferenceID string) (string, bool)
	FindOrderByID(orderID string) (*OrderRecord, bool)

	// GetAllStates returns a deep-copied snapshot for the notifier poll.
	GetAllStates() map[string]*ConversationState
}
