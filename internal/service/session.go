package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

var (
	ErrStaleFetch       = errors.New("fetch superseded by a newer refresh")
	ErrNotConfirmed     = errors.New("action was not confirmed")
	ErrMutationInFlight = errors.New("another change to this order is in progress")
	ErrOrderNotFound    = errors.New("order not found")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrNotCancellable   = errors.New("only pending orders can be cancelled")
)

// CancelPolicy decides what cancelling a booking does to the stored record
type CancelPolicy string

// Cancel policies
const (
	CancelDelete CancelPolicy = "delete"
	CancelRetain CancelPolicy = "retain"
)

// Fetcher loads a resolved scope
type Fetcher interface {
	FetchAll(ctx context.Context, scope Scope) (*Aggregation, error)
}

// Mutator writes one booking
type Mutator interface {
	SetStatus(ctx context.Context, order models.OrderView, to models.Status) error
	Delete(ctx context.Context, order models.OrderView, reason string) error
}

// ActionKind names a mutating action awaiting confirmation
type ActionKind string

// Action kinds
const (
	ActionSetStatus ActionKind = "set_status"
	ActionDelete    ActionKind = "delete"
)

// Action describes a pending write
type Action struct {
	Kind    ActionKind
	OrderID string
	From    models.Status
	To      models.Status
	Reason  string
}

// Confirmer is asked before every write; returning false aborts it
type Confirmer func(ctx context.Context, action Action) bool

// Confirmed returns a Confirmer with a fixed answer
func Confirmed(ok bool) Confirmer {
	return func(context.Context, Action) bool { return ok }
}

// Snapshot is an immutable copy of a session's displayed state
type Snapshot struct {
	Scope      Scope               `json:"-"`
	Orders     []models.OrderView  `json:"orders"`
	Summary    models.SummaryStats `json:"summary"`
	Total      int                 `json:"total"`
	Criteria   FilterCriteria      `json:"criteria"`
	Generation uint64              `json:"generation"`
	FetchedAt  time.Time           `json:"fetched_at"`
	Loaded     bool                `json:"loaded"`
	Stale      bool                `json:"stale"`
}

// Session owns the order collection of one scope: the full collection,
// the active criteria, the filtered view and its summary. The view and
// summary are recomputed after every fetch, criteria change and mutation.
type Session struct {
	scope    Scope
	fetcher  Fetcher
	mutator  Mutator
	policy   CancelPolicy
	onChange func(userID string, origin *Session)
	logger   *zap.Logger

	mu         sync.Mutex
	generation uint64
	all        []models.OrderView
	view       []models.OrderView
	summary    models.SummaryStats
	criteria   FilterCriteria
	inflight   map[string]struct{}
	loaded     bool
	stale      bool
	fetchedAt  time.Time
	lastUsed   time.Time
}

// NewSession creates a new session for a scope
func NewSession(scope Scope, fetcher Fetcher, mutator Mutator, policy CancelPolicy) *Session {
	if policy == "" {
		policy = CancelDelete
	}
	return &Session{
		scope:    scope,
		fetcher:  fetcher,
		mutator:  mutator,
		policy:   policy,
		inflight: make(map[string]struct{}),
		view:     []models.OrderView{},
		lastUsed: time.Now(),
		logger:   util.GetLogger(),
	}
}

// Scope returns the scope the session aggregates
func (s *Session) Scope() Scope {
	return s.scope
}

// Refresh re-aggregates the scope. A result that completes after a newer
// Refresh or a write has started is discarded with ErrStaleFetch. A failed fetch keeps
// the previous collection.
func (s *Session) Refresh(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.lastUsed = time.Now()
	s.mu.Unlock()

	agg, err := s.fetcher.FetchAll(ctx, s.scope)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		util.StaleFetchesTotal.Inc()
		s.logger.Debug("Discarding stale fetch",
			zap.String("scope", s.scope.String()),
			zap.Uint64("generation", gen),
			zap.Uint64("current", s.generation))
		return s.snapshotLocked(), ErrStaleFetch
	}
	if err != nil {
		return s.snapshotLocked(), fmt.Errorf("failed to load orders: %w", err)
	}

	s.all = agg.Orders
	s.loaded = true
	s.stale = false
	s.fetchedAt = time.Now()
	s.recomputeLocked()
	return s.snapshotLocked(), nil
}

// Current returns the session state, refreshing first when nothing has been
// loaded yet or the collection was marked stale.
func (s *Session) Current(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	fresh := s.loaded && !s.stale
	s.mu.Unlock()

	if fresh {
		return s.Snapshot(), nil
	}
	snap, err := s.Refresh(ctx)
	if errors.Is(err, ErrStaleFetch) {
		return s.Snapshot(), nil
	}
	return snap, err
}

// Apply replaces the active criteria and returns the re-filtered view
func (s *Session) Apply(c FilterCriteria) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.criteria = c
	s.lastUsed = time.Now()
	s.recomputeLocked()
	return s.snapshotLocked()
}

// Snapshot returns the current state
func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// MarkStale forces the next Current to refetch
func (s *Session) MarkStale() {
	s.mu.Lock()
	s.stale = true
	s.mu.Unlock()
}

// Order returns one order of the full collection
func (s *Session) Order(id string) (models.OrderView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return models.OrderView{}, false
	}
	return s.all[i], true
}

// UpdateStatus moves an order to a new status. Under the delete cancel
// policy a move to cancelled removes the order instead.
func (s *Session) UpdateStatus(ctx context.Context, id string, to models.Status, confirm Confirmer) (*Snapshot, error) {
	if _, ok := models.ParseStatus(string(to)); !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}

	order, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	action := Action{Kind: ActionSetStatus, OrderID: id, From: order.Status, To: to}
	if to == models.StatusCancelled && s.policy == CancelDelete {
		action.Kind = ActionDelete
		action.Reason = ReasonAdminCancel
	}
	return s.mutate(ctx, order, action, confirm)
}

// Remove deletes an order
func (s *Session) Remove(ctx context.Context, id string, confirm Confirmer) (*Snapshot, error) {
	order, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	action := Action{Kind: ActionDelete, OrderID: id, From: order.Status, Reason: ReasonAdminDelete}
	return s.mutate(ctx, order, action, confirm)
}

// CustomerCancel cancels one of the customer's own pending orders
func (s *Session) CustomerCancel(ctx context.Context, id string, confirm Confirmer) (*Snapshot, error) {
	order, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status != models.StatusPending {
		return nil, ErrNotCancellable
	}

	action := Action{Kind: ActionDelete, OrderID: id, From: order.Status, Reason: ReasonCustomerCancel}
	if s.policy == CancelRetain {
		action = Action{Kind: ActionSetStatus, OrderID: id, From: order.Status, To: models.StatusCancelled}
	}
	return s.mutate(ctx, order, action, confirm)
}

func (s *Session) find(ctx context.Context, id string) (models.OrderView, error) {
	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()

	if !loaded {
		if _, err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrStaleFetch) {
			return models.OrderView{}, err
		}
	}

	order, ok := s.Order(id)
	if !ok {
		return models.OrderView{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	return order, nil
}

func (s *Session) mutate(ctx context.Context, order models.OrderView, action Action, confirm Confirmer) (*Snapshot, error) {
	if confirm == nil || !confirm(ctx, action) {
		return nil, ErrNotConfirmed
	}
	if !s.claim(order.ID) {
		return nil, ErrMutationInFlight
	}
	defer s.release(order.ID)

	var err error
	switch action.Kind {
	case ActionDelete:
		err = s.mutator.Delete(ctx, order, action.Reason)
	case ActionSetStatus:
		err = s.mutator.SetStatus(ctx, order, action.To)
	default:
		err = fmt.Errorf("unknown action %q", action.Kind)
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	switch action.Kind {
	case ActionDelete:
		s.removeLocked(order.ID)
	case ActionSetStatus:
		if i := s.indexLocked(order.ID); i >= 0 {
			s.all[i].Status = action.To
		}
	}
	// fetches started before the write are discarded
	s.generation++
	s.lastUsed = time.Now()
	s.recomputeLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(order.UserID, s)
	}
	return snap, nil
}

func (s *Session) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[id]; busy {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Session) release(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

func (s *Session) indexLocked(id string) int {
	for i := range s.all {
		if s.all[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) removeLocked(id string) {
	kept := make([]models.OrderView, 0, len(s.all))
	for _, o := range s.all {
		if o.ID != id {
			kept = append(kept, o)
		}
	}
	s.all = kept
}

func (s *Session) recomputeLocked() {
	s.view = ApplyFilters(s.all, s.criteria)
	s.summary = Summarize(s.view)
}

func (s *Session) snapshotLocked() *Snapshot {
	return &Snapshot{
		Scope:      s.scope,
		Orders:     s.view,
		Summary:    s.summary,
		Total:      len(s.all),
		Criteria:   s.criteria,
		Generation: s.generation,
		FetchedAt:  s.fetchedAt,
		Loaded:     s.loaded,
		Stale:      s.stale,
	}
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// SessionRegistry keeps one session per scope
type SessionRegistry struct {
	fetcher Fetcher
	mutator Mutator
	policy  CancelPolicy

	mu       sync.Mutex
	sessions map[Scope]*Session
}

// NewSessionRegistry creates a new session registry
func NewSessionRegistry(fetcher Fetcher, mutator Mutator, policy CancelPolicy) *SessionRegistry {
	return &SessionRegistry{
		fetcher:  fetcher,
		mutator:  mutator,
		policy:   policy,
		sessions: make(map[Scope]*Session),
	}
}

// Get returns the session of a scope, creating it on first use
func (r *SessionRegistry) Get(scope Scope) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[scope]; ok {
		return s
	}
	s := NewSession(scope, r.fetcher, r.mutator, r.policy)
	s.onChange = r.changed
	r.sessions[scope] = s
	return s
}

// MarkStale marks the admin session and the given user's session stale.
// An empty user id marks every session.
func (r *SessionRegistry) MarkStale(userID string) {
	for _, s := range r.list() {
		if userID == "" || s.scope.IsAdmin() || s.scope.UserID == userID {
			s.MarkStale()
		}
	}
}

// MarkAllStale marks every session stale
func (r *SessionRegistry) MarkAllStale() {
	r.MarkStale("")
}

// Prune drops sessions unused for longer than idle
func (r *SessionRegistry) Prune(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for scope, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			delete(r.sessions, scope)
			n++
		}
	}
	return n
}

// Len returns the number of live sessions
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *SessionRegistry) list() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// changed marks the sessions that can see a user's bookings stale after a
// write made through another session
func (r *SessionRegistry) changed(userID string, origin *Session) {
	for _, s := range r.list() {
		if s == origin {
			continue
		}
		if s.scope.IsAdmin() || s.scope.UserID == userID {
			s.MarkStale()
		}
	}
}
