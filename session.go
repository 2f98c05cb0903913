package authclient

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Status is the session lifecycle state.
type Status string

const (
	// StatusIdle is the pre-hydration state right after construction.
	StatusIdle Status = "idle"
	// StatusHydrating means persisted credentials are being revalidated.
	StatusHydrating Status = "hydrating"
	// StatusAuthenticated means a User is present and credentials are usable.
	StatusAuthenticated Status = "authenticated"
	// StatusUnauthenticated means no session exists.
	StatusUnauthenticated Status = "unauthenticated"
	// StatusError is transient: an operation failed, the error was recorded,
	// and the session resolves back to Authenticated or Unauthenticated.
	StatusError Status = "error"
)

// Snapshot is the read-only session view handed to subscribers and guards.
type Snapshot struct {
	User   *User
	Status Status
	Err    error
}

// IsAuthenticated reports whether the snapshot holds a live session.
func (s Snapshot) IsAuthenticated() bool {
	return s.Status == StatusAuthenticated && s.User != nil
}

// IsLoading reports whether hydration has not finished yet.
func (s Snapshot) IsLoading() bool {
	return s.Status == StatusIdle || s.Status == StatusHydrating
}

// HasRole checks if the snapshot's user has a specific role
func (s Snapshot) HasRole(role UserRole) bool {
	return s.User != nil && s.User.Role == role
}

// Session is the client-side authentication state machine. All operations
// serialize through an internal mutex; observers receive snapshots after
// every settled transition. Construct once at process start, call Hydrate,
// tear down on process exit.
type Session struct {
	client *Client
	store  TokenStore
	cfg    *Config
	logger Logger
	now    func() time.Time

	mu        sync.Mutex
	status    Status
	user      *User
	lastErr   error
	gen       uint64
	listeners map[int]func(Snapshot)
	nextID    int

	transitions map[Status]map[Status]struct{}
}

// NewSession wires the session to its transport and store and registers the
// SessionExpired signal with the client.
func NewSession(client *Client, store TokenStore, cfg *Config) *Session {
	s := &Session{
		client:    client,
		store:     store,
		cfg:       cfg,
		logger:    defLogger{},
		now:       time.Now,
		status:    StatusIdle,
		listeners: map[int]func(Snapshot){},
		transitions: map[Status]map[Status]struct{}{
			StatusIdle: {
				StatusHydrating: {},
			},
			StatusHydrating: {
				StatusAuthenticated:   {},
				StatusUnauthenticated: {},
				StatusError:           {},
			},
			StatusAuthenticated: {
				StatusAuthenticated:   {},
				StatusUnauthenticated: {},
				StatusError:           {},
			},
			StatusUnauthenticated: {
				StatusHydrating:       {},
				StatusAuthenticated:   {},
				StatusUnauthenticated: {},
				StatusError:           {},
			},
			StatusError: {
				StatusAuthenticated:   {},
				StatusUnauthenticated: {},
			},
		},
	}

	client.OnSessionExpired(s.handleSessionExpired)

	return s
}

// WithLogger overrides the default stdout logger.
func (s *Session) WithLogger(logger Logger) *Session {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithClock injects a custom clock (useful for tests).
func (s *Session) WithClock(clock func() time.Time) *Session {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Snapshot returns the current read-only view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers an observer and immediately delivers the current
// snapshot. The returned function unsubscribes.
func (s *Session) Subscribe(fn func(Snapshot)) func() {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	snap := s.snapshotLocked()
	s.mu.Unlock()

	fn(snap)

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Hydrate reconstructs session state from persisted tokens. Invoked once at
// startup; calling it again while Unauthenticated re-checks the store, which
// is harmless. A logout that lands while the current-user fetch is in flight
// wins: the late result is discarded via a generation check.
func (s *Session) Hydrate(ctx context.Context) Snapshot {
	s.mu.Lock()
	if s.status != StatusIdle && s.status != StatusUnauthenticated {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap
	}
	gen := s.gen
	s.setStateLocked(StatusHydrating, nil, nil)
	emit := s.emitPrepLocked()
	s.mu.Unlock()
	emit()

	pair, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Warn("hydrate: token store read failed: %v", err)
	}

	if pair == nil || !pair.HasAccess() {
		return s.settle(gen, StatusUnauthenticated, nil, nil)
	}

	if IsExpired(pair.Access, s.now()) && !pair.HasRefresh() {
		s.logger.Info("hydrate: stored access token expired, clearing credentials")
		s.clearStore(ctx)
		return s.settle(gen, StatusUnauthenticated, nil, nil)
	}

	user := &User{}
	if err := s.client.DoJSON(ctx, http.MethodGet, s.cfg.CurrentUserPath, nil, user); err != nil {
		s.logger.Info("hydrate: current-user fetch failed: %v", err)
		s.clearStore(ctx)
		return s.settle(gen, StatusUnauthenticated, nil, nil)
	}

	snap := s.settle(gen, StatusAuthenticated, user, nil)

	// Cache only when the result was accepted; a logout that won the race
	// must not see the user re-persisted behind its back.
	if snap.IsAuthenticated() {
		if err := s.store.SaveUser(ctx, user); err != nil {
			s.logger.Warn("hydrate: unable to cache user: %v", err)
		}
	}

	return snap
}

// Login exchanges credentials for a token pair and hydrates the user record.
// Persistence is atomic: the pair and the user are only saved after the
// current-user fetch succeeds, so a failure can never leave a half-written
// session behind.
func (s *Session) Login(ctx context.Context, payload LoginRequest) (*User, error) {
	if err := payload.Validate(); err != nil {
		return nil, s.fail(NewValidationError(FormatValidationErrorToMap(err)), StatusUnauthenticated)
	}

	pair := TokenPair{}
	err := s.client.DoJSON(ctx, http.MethodPost, s.cfg.TokenPath, payload, &pair, WithoutAuth())
	if err != nil {
		return nil, s.fail(err, StatusUnauthenticated)
	}

	if !pair.HasAccess() {
		return nil, s.fail(WrapUnknownError(nil, "token endpoint returned no access token"), StatusUnauthenticated)
	}

	// Fetch the principal with the fresh token before persisting anything.
	user := &User{}
	err = s.client.DoJSON(ctx, http.MethodGet, s.cfg.CurrentUserPath, nil, user, WithBearerToken(pair.Access))
	if err != nil {
		return nil, s.fail(err, StatusUnauthenticated)
	}

	if err := s.store.Save(ctx, pair); err != nil {
		return nil, s.fail(goerrors.Wrap(err, goerrors.CategoryInternal, "unable to persist tokens"), StatusUnauthenticated)
	}

	if err := s.store.SaveUser(ctx, user); err != nil {
		// Roll back so no partial state survives.
		s.clearStore(ctx)
		return nil, s.fail(goerrors.Wrap(err, goerrors.CategoryInternal, "unable to persist user"), StatusUnauthenticated)
	}

	s.mu.Lock()
	s.gen++
	s.setStateLocked(StatusAuthenticated, user, nil)
	emit := s.emitPrepLocked()
	s.mu.Unlock()
	emit()

	s.logger.Info("login succeeded for %s (%s)", user.Email, user.Role)
	return user.Clone(), nil
}

// Register creates an account and, on success, chains straight into Login
// with the same credentials. Tokens a backend may return directly from the
// registration endpoint are ignored so there is exactly one issuance path.
func (s *Session) Register(ctx context.Context, payload RegisterRequest) (*User, error) {
	if err := payload.Validate(); err != nil {
		return nil, s.fail(NewValidationError(FormatValidationErrorToMap(err)), StatusUnauthenticated)
	}

	if err := s.client.DoJSON(ctx, http.MethodPost, s.cfg.RegisterPath, payload, nil, WithoutAuth()); err != nil {
		return nil, s.fail(err, StatusUnauthenticated)
	}

	return s.Login(ctx, LoginRequest{
		Identifier: payload.Email,
		Password:   payload.Password,
	})
}

// Logout clears all persisted credentials and state. Idempotent: calling it
// while already logged out is a no-op that still ends Unauthenticated.
func (s *Session) Logout(ctx context.Context) {
	s.clearStore(ctx)

	s.mu.Lock()
	s.gen++
	s.setStateLocked(StatusUnauthenticated, nil, nil)
	emit := s.emitPrepLocked()
	s.mu.Unlock()
	emit()
}

// UpdateProfile patches the current user's profile and merges the returned
// fields into the session's user record. The record is never replaced
// wholesale: fields the backend omits keep their current values.
func (s *Session) UpdateProfile(ctx context.Context, patch map[string]any) (*User, error) {
	s.mu.Lock()
	if s.status != StatusAuthenticated || s.user == nil {
		s.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	current := s.user.Clone()
	s.mu.Unlock()

	fields := map[string]any{}
	if err := s.client.DoJSON(ctx, http.MethodPatch, s.cfg.ProfilePath, patch, &fields); err != nil {
		if IsSessionExpiredError(err) {
			// handleSessionExpired already tore the session down.
			return nil, err
		}
		return nil, s.fail(err, StatusAuthenticated)
	}

	current.ApplyPatch(fields)

	if err := s.store.SaveUser(ctx, current); err != nil {
		s.logger.Warn("unable to re-persist cached user: %v", err)
	}

	s.mu.Lock()
	s.setStateLocked(StatusAuthenticated, current, nil)
	emit := s.emitPrepLocked()
	s.mu.Unlock()
	emit()

	return current.Clone(), nil
}

// Deactivate disables the account on the backend and then logs out locally
// regardless of the call's outcome.
func (s *Session) Deactivate(ctx context.Context) error {
	err := s.client.DoJSON(ctx, http.MethodPost, s.cfg.DeactivatePath, nil, nil)

	s.Logout(ctx)

	if err != nil && !IsSessionExpiredError(err) {
		return err
	}
	return nil
}

// VerifyEmail confirms an email verification link. When a session is live,
// the verified flag is reflected into the user record immediately.
func (s *Session) VerifyEmail(ctx context.Context, uid, token string) error {
	path := s.cfg.VerifyEmailPath + url.PathEscape(uid) + "/" + url.PathEscape(token) + "/"
	if err := s.client.DoJSON(ctx, http.MethodGet, path, nil, nil, WithoutAuth()); err != nil {
		return err
	}

	s.mu.Lock()
	var verified *User
	var emit func()
	if s.status == StatusAuthenticated && s.user != nil {
		verified = s.user.Clone()
		verified.IsVerified = true
		s.setStateLocked(StatusAuthenticated, verified, nil)
		emit = s.emitPrepLocked()
	}
	s.mu.Unlock()

	if verified != nil {
		emit()
		if err := s.store.SaveUser(ctx, verified); err != nil {
			s.logger.Warn("unable to re-persist cached user: %v", err)
		}
	}

	return nil
}

// RequestPasswordReset asks the backend to send a reset link.
func (s *Session) RequestPasswordReset(ctx context.Context, email string) error {
	return s.client.DoJSON(ctx, http.MethodPost, s.cfg.PasswordResetPath,
		map[string]string{"email": email}, nil, WithoutAuth())
}

// ResetPassword finalizes a password reset issued via email link.
func (s *Session) ResetPassword(ctx context.Context, uid, token string, payload PasswordResetRequest) error {
	if err := payload.Validate(); err != nil {
		return NewValidationError(FormatValidationErrorToMap(err))
	}

	path := s.cfg.PasswordResetPath + url.PathEscape(uid) + "/" + url.PathEscape(token) + "/"
	return s.client.DoJSON(ctx, http.MethodPost, path, payload, nil, WithoutAuth())
}

// handleSessionExpired is the in-app signal fired by the client when a
// refresh fails irrecoverably. The store is already cleared at that point.
func (s *Session) handleSessionExpired() {
	s.mu.Lock()
	if s.status == StatusUnauthenticated && s.user == nil {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.lastErr = ErrSessionExpired
	s.setStateLocked(StatusUnauthenticated, nil, ErrSessionExpired)
	emit := s.emitPrepLocked()
	s.mu.Unlock()
	emit()
}

// fail records the error, briefly surfaces the transient Error state, and
// settles on the given status. Callers always receive the typed error.
func (s *Session) fail(err error, settle Status) error {
	s.mu.Lock()
	if settle == StatusAuthenticated && s.user == nil {
		settle = StatusUnauthenticated
	}
	s.setStateLocked(StatusError, s.user, err)
	emitErr := s.emitPrepLocked()
	s.setStateLocked(settle, s.userForStatus(settle), err)
	emitSettled := s.emitPrepLocked()
	s.mu.Unlock()

	emitErr()
	emitSettled()
	return err
}

// settle finishes a hydration, discarding the result when the generation
// moved (an explicit logout happened mid-flight).
func (s *Session) settle(gen uint64, status Status, user *User, err error) Snapshot {
	s.mu.Lock()
	if s.gen != gen {
		s.logger.Debug("discarding stale hydration result")
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap
	}
	s.setStateLocked(status, user, err)
	snap := s.snapshotLocked()
	emit := s.emitPrepLocked()
	s.mu.Unlock()
	emit()
	return snap
}

func (s *Session) setStateLocked(to Status, user *User, err error) {
	from := s.status
	if from != to {
		if allowed, ok := s.transitions[from]; ok {
			if _, exists := allowed[to]; !exists {
				s.logger.Warn("unexpected session transition %s -> %s", from, to)
			}
		}
	}

	s.status = to
	s.lastErr = err

	switch to {
	case StatusAuthenticated:
		s.user = user
	case StatusUnauthenticated, StatusIdle, StatusHydrating:
		s.user = nil
	case StatusError:
		// keep the current user; the state is transient
	}
}

func (s *Session) userForStatus(status Status) *User {
	if status == StatusAuthenticated {
		return s.user
	}
	return nil
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		User:   s.user.Clone(),
		Status: s.status,
		Err:    s.lastErr,
	}
}

// emitPrepLocked captures the listener set and snapshot under the lock and
// returns a closure that notifies outside it.
func (s *Session) emitPrepLocked() func() {
	if len(s.listeners) == 0 {
		return func() {}
	}

	snap := s.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}

	return func() {
		for _, fn := range fns {
			fn(snap)
		}
	}
}

func (s *Session) clearStore(ctx context.Context) {
	if err := s.store.Clear(ctx); err != nil {
		s.logger.Error("unable to clear token store: %v", err)
	}
	if err := s.store.ClearUser(ctx); err != nil {
		s.logger.Error("unable to clear cached user: %v", err)
	}
}
