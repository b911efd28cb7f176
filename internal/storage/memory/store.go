// Package memory implements every repository on process memory.
//
// Transactions are serialized: WithinTx holds a store-wide lock for the
// duration of fn and records an undo step for every write, replaying them in
// reverse when fn fails. Reads and writes made outside a transaction take the
// same lock for their own duration, so they never see the uncommitted writes
// of a running transaction.
package memory

import (
	"context"
	"sync"

	"github.com/xenking/loyalty-kart/internal/domain/order"
	"github.com/xenking/loyalty-kart/internal/domain/product"
	"github.com/xenking/loyalty-kart/internal/domain/user"
)

type txKey struct{}

type txState struct {
	undo []func()
}

// Store holds the data shared by the repositories it hands out.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	products   map[string]product.Product
	categories []product.Category

	users  map[string]user.User
	emails map[string]string

	orders map[string]order.Order
	keys   map[string]string

	events []order.Event
}

var _ order.Transactor = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		products: make(map[string]product.Product),
		users:    make(map[string]user.User),
		emails:   make(map[string]string),
		orders:   make(map[string]order.Order),
		keys:     make(map[string]string),
	}
}

// WithinTx runs fn under the store-wide transaction lock. A nested call with
// a context already inside a transaction joins it.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*txState); ok {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	st := &txState{}
	if err := fn(context.WithValue(ctx, txKey{}, st)); err != nil {
		s.mu.Lock()
		for i := len(st.undo) - 1; i >= 0; i-- {
			st.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// read takes the data read lock and returns its release. Outside a
// transaction it first waits for the transaction lock.
func (s *Store) read(ctx context.Context) (unlock func()) {
	if _, inTx := ctx.Value(txKey{}).(*txState); inTx {
		s.mu.RLock()
		return s.mu.RUnlock
	}
	s.txMu.Lock()
	s.mu.RLock()
	return func() {
		s.mu.RUnlock()
		s.txMu.Unlock()
	}
}

// write runs fn with the data lock held. Outside a transaction it also holds
// the transaction lock. fn returns the undo step of its change, or nil.
func (s *Store) write(ctx context.Context, fn func() (undo func(), err error)) error {
	st, inTx := ctx.Value(txKey{}).(*txState)
	if !inTx {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	undo, err := fn()
	if err != nil {
		return err
	}
	if inTx && undo != nil {
		st.undo = append(st.undo, undo)
	}
	return nil
}

// Products returns the catalog repository.
func (s *Store) Products() *ProductRepository { return &ProductRepository{s: s} }

// Users returns the user repository.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// Orders returns the order repository.
func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }

// Outbox returns the outbox repository.
func (s *Store) Outbox() *OutboxRepository { return &OutboxRepository{s: s} }
