package sessions

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tillpoint-backend/internal/cart"
	"github.com/angelmondragon/tillpoint-backend/internal/pricing"
	pkgerrors "github.com/angelmondragon/tillpoint-backend/pkg/errors"
)

// Session is one operator's till session. It owns a single cart and
// serializes every access to it.
type Session struct {
	ID         uuid.UUID
	OperatorID string
	OpenedAt   time.Time

	mu         sync.Mutex
	cart       *cart.Cart
	lastActive time.Time
}

// CartView is a copy of a session's cart safe to hand to callers.
type CartView struct {
	SessionID uuid.UUID       `json:"session_id"`
	Lines     []cart.Line     `json:"lines"`
	Discount  decimal.Decimal `json:"discount"`
	Totals    pricing.Totals  `json:"totals"`
}

// Do runs fn with exclusive access to the session's cart.
func (s *Session) Do(fn func(c *cart.Cart) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
	return fn(s.cart)
}

// View returns a snapshot of the cart.
func (s *Session) View() CartView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CartView{
		SessionID: s.ID,
		Lines:     s.cart.Lines(),
		Discount:  s.cart.Discount(),
		Totals:    s.cart.SnapshotTotals(),
	}
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Registry holds open sessions in memory.
type Registry struct {
	calc           *pricing.Calculator
	quantityPlaces int32
	now            func() time.Time

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

func NewRegistry(calc *pricing.Calculator, quantityPlaces int32) (*Registry, error) {
	if calc == nil {
		return nil, fmt.Errorf("pricing calculator required")
	}
	return &Registry{
		calc:           calc,
		quantityPlaces: quantityPlaces,
		now:            time.Now,
		sessions:       map[uuid.UUID]*Session{},
	}, nil
}

// Open starts a session with an empty cart.
func (r *Registry) Open(operatorID string) *Session {
	now := r.now().UTC()
	s := &Session{
		ID:         uuid.New(),
		OperatorID: operatorID,
		OpenedAt:   now,
		cart:       cart.New(r.calc, r.quantityPlaces),
		lastActive: now,
	}
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

func (r *Registry) Get(id uuid.UUID) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "session not found").
			WithDetails(map[string]any{"session_id": id})
	}
	return s, nil
}

// Close discards the session and its cart.
func (r *Registry) Close(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "session not found").
			WithDetails(map[string]any{"session_id": id})
	}
	delete(r.sessions, id)
	return nil
}

// List returns open sessions, oldest first.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// ExpireIdle closes sessions untouched for longer than ttl and reports how
// many were dropped.
func (r *Registry) ExpireIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := r.now().Add(-ttl)
	expired := 0
	for _, s := range r.List() {
		if s.idleSince().Before(cutoff) {
			r.mu.Lock()
			delete(r.sessions, s.ID)
			r.mu.Unlock()
			expired++
		}
	}
	return expired
}
