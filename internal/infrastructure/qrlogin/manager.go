package qrlogin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/deps"
	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/entities"
	qrerrors "github.com/Conte777/douyin-gateway/internal/domain/qrauth/errors"
	"github.com/Conte777/douyin-gateway/internal/infrastructure/logger"
	"github.com/Conte777/douyin-gateway/internal/infrastructure/metrics"
)

const sideEffectTimeout = 5 * time.Second

// Settings holds the timing and capacity limits of the manager
type Settings struct {
	SessionTTL      time.Duration
	SetupTimeout    time.Duration
	PollTimeout     time.Duration
	Retention       time.Duration
	CleanupInterval time.Duration // zero disables the janitor
	MaxSessions     int
	StartRate       float64 // zero disables start rate limiting
	StartBurst      int
}

// DefaultSettings returns the settings used when nothing is configured
func DefaultSettings() Settings {
	return Settings{
		SessionTTL:      5 * time.Minute,
		SetupTimeout:    60 * time.Second,
		PollTimeout:     5 * time.Second,
		Retention:       10 * time.Minute,
		CleanupInterval: 30 * time.Second,
		MaxSessions:     5,
	}
}

// Option configures a Manager
type Option func(*Manager)

// WithClock replaces time.Now for expiry decisions
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithTokenGenerator replaces the UUID token generator
func WithTokenGenerator(fn func() string) Option {
	return func(m *Manager) { m.newToken = fn }
}

// WithPublisher announces confirmed logins
func WithPublisher(p deps.CredentialPublisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithAttemptRepository records the outcome of every session
func WithAttemptRepository(r deps.AttemptRepository) Option {
	return func(m *Manager) { m.attempts = r }
}

// WithMetrics overrides the default metrics instance
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// Manager runs the QR login state machine for many concurrent sessions
type Manager struct {
	driver      deps.AutomationDriver
	cookieStore deps.CookieStore
	publisher   deps.CredentialPublisher
	attempts    deps.AttemptRepository
	store       *SessionStore
	settings    Settings

	limiter *rate.Limiter
	polls   singleflight.Group
	tracer  trace.Tracer
	metrics *metrics.Metrics

	now      func() time.Time
	newToken func() string

	mu      sync.Mutex // guards live, closed and drained
	live    int
	closed  bool
	drained bool

	background sync.WaitGroup // publish and record calls

	stopJanitor chan struct{}
	janitorDone chan struct{}
	logger      zerolog.Logger
}

var _ deps.QRAuthService = (*Manager)(nil)

// NewManager creates a new QR login manager and starts its janitor
func NewManager(
	driver deps.AutomationDriver,
	cookieStore deps.CookieStore,
	settings Settings,
	logger zerolog.Logger,
	opts ...Option,
) *Manager {
	limit := rate.Inf
	if settings.StartRate > 0 {
		limit = rate.Limit(settings.StartRate)
	}
	burst := settings.StartBurst
	if burst <= 0 {
		burst = 1
	}

	m := &Manager{
		driver:      driver,
		cookieStore: cookieStore,
		settings:    settings,
		limiter:     rate.NewLimiter(limit, burst),
		tracer:      otel.Tracer("github.com/Conte777/douyin-gateway/qrlogin"),
		now:         time.Now,
		newToken:    uuid.NewString,
		stopJanitor: make(chan struct{}),
		janitorDone: make(chan struct{}),
		logger:      logger.With().Str("component", "qr_login_manager").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = metrics.GetDefaultMetrics()
	}

	m.store = NewSessionStore(settings.Retention, logger)
	m.store.OnExpire(m.onEvicted)

	go m.runJanitor()

	return m
}

// StartSession opens the login page, captures its QR code and registers a
// new WAITING session. Setup failures never leave a registered session.
func (m *Manager) StartSession(ctx context.Context) (*entities.LoginSession, error) {
	ctx, span := m.tracer.Start(ctx, "qrlogin.StartSession")
	defer span.End()

	if !m.limiter.Allow() {
		m.metrics.RecordSetupFailure("rate_limited")
		return nil, qrerrors.ErrTooManyRequests
	}

	if err := m.reserveSlot(); err != nil {
		m.metrics.RecordSetupFailure("capacity")
		return nil, err
	}

	started := m.now()
	setupCtx, cancel := context.WithTimeout(ctx, m.settings.SetupTimeout)
	defer cancel()

	handle, capture, err := m.setup(setupCtx)
	if err != nil {
		m.releaseSlot()
		m.recordSetupFailure(started, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "setup failed")
		return nil, err
	}

	now := m.now()
	var session *loginSession
	for {
		token := m.newToken()
		session = newLoginSession(token, handle, capture, now, m.settings.SessionTTL)
		if m.store.Register(token, session, m.settings.SessionTTL) {
			break
		}
		m.logger.Warn().Str("token", logger.ShortToken(token)).Msg("token collision, drawing a new one")
	}

	// Close may have run while the browser was starting
	if m.isClosed() {
		m.finish(session, entities.StatusFailed, "service shutting down", "", false)
		return nil, qrerrors.ErrManagerClosed
	}

	snapshot := session.Snapshot()
	m.metrics.RecordSessionStarted(now.Sub(started).Seconds())
	m.metrics.RecordTransition(entities.StatusWaiting.String())
	span.SetAttributes(attribute.String("qrlogin.token", logger.ShortToken(snapshot.Token)))

	m.logger.Info().
		Str("token", logger.ShortToken(snapshot.Token)).
		Time("expires_at", snapshot.ExpiresAt).
		Int("qr_bytes", len(snapshot.QRImage)).
		Msg("QR login session started")

	return snapshot, nil
}

// setup opens an automation session and captures the QR code.
// A partially opened handle is always released on failure.
func (m *Manager) setup(ctx context.Context) (deps.AutomationSession, *entities.QRCapture, error) {
	handle, err := m.driver.Open(ctx)
	if err != nil {
		if handle != nil {
			m.closeHandle(handle, "")
		}
		return nil, nil, fmt.Errorf("%w: %w", qrerrors.ErrSetupFailed, err)
	}

	capture, err := handle.CaptureQR(ctx)
	if err == nil && (capture == nil || len(capture.Image) == 0) {
		err = qrerrors.ErrQRNotFound
	}
	if err != nil {
		m.closeHandle(handle, "")
		if errors.Is(err, qrerrors.ErrQRNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %w", qrerrors.ErrSetupFailed, err)
	}

	return handle, capture, nil
}

// Poll advances the session behind token by at most one transition and
// returns its state. Concurrent polls on one token share a single run.
func (m *Manager) Poll(ctx context.Context, token string) (*entities.LoginSession, error) {
	m.metrics.RecordPoll()

	v, err, _ := m.polls.Do(token, func() (any, error) {
		// A shared run must not be aborted by one caller going away
		return m.poll(context.WithoutCancel(ctx), token)
	})
	if err != nil {
		return nil, err
	}

	snapshot := *v.(*entities.LoginSession)
	return &snapshot, nil
}

func (m *Manager) poll(ctx context.Context, token string) (*entities.LoginSession, error) {
	session, ok := m.store.Load(token)
	if !ok {
		return nil, qrerrors.ErrSessionNotFound
	}

	session.mu.Lock()
	if session.status.IsTerminal() {
		snapshot := session.snapshotLocked()
		session.mu.Unlock()
		return snapshot, nil
	}
	if !m.now().Before(session.expiresAt) {
		session.mu.Unlock()
		return m.finish(session, entities.StatusExpired, "QR code expired", "", true), nil
	}
	from := session.status
	handle := session.handle
	session.mu.Unlock()

	ctx, span := m.tracer.Start(ctx, "qrlogin.Poll", trace.WithAttributes(
		attribute.String("qrlogin.token", logger.ShortToken(token)),
		attribute.String("qrlogin.from", from.String()),
	))
	defer span.End()

	// One budget covers detection, cookie harvest and persistence
	ctx, cancel := context.WithTimeout(ctx, m.settings.PollTimeout)
	defer cancel()

	signal, err := handle.Detect(ctx)

	if err != nil {
		span.RecordError(err)
		if errors.Is(err, deps.ErrAutomationLost) {
			m.logger.Error().Err(err).Str("token", logger.ShortToken(token)).Msg("automation session lost")
			return m.finish(session, entities.StatusFailed, "browser session lost", "", true), nil
		}
		m.logger.Warn().Err(err).Str("token", logger.ShortToken(token)).Msg("status check failed")
		return m.note(session, from, "status check failed, still "+waitingMessage(from)), nil
	}

	switch signal {
	case entities.SignalExpired:
		return m.finish(session, entities.StatusExpired, "QR code expired", "", true), nil
	case entities.SignalRateLimited:
		return m.finish(session, entities.StatusRateLimited, "too many login attempts, try again later", "", true), nil
	case entities.SignalScanned:
		if from == entities.StatusWaiting {
			return m.advance(session, entities.StatusScanned, "scanned, waiting for confirmation"), nil
		}
	case entities.SignalConfirmed:
		if from == entities.StatusWaiting {
			return m.advance(session, entities.StatusScanned, "scanned, confirming login"), nil
		}
		return m.confirm(ctx, session, handle), nil
	}

	return m.note(session, from, waitingMessage(from)), nil
}

// confirm harvests the credential from a SCANNED session, persists it and
// moves the session to CONFIRMED
func (m *Manager) confirm(ctx context.Context, session *loginSession, handle deps.AutomationSession) *entities.LoginSession {
	cookies, err := handle.Cookies(ctx)

	if err != nil {
		if errors.Is(err, deps.ErrAutomationLost) {
			m.logger.Error().Err(err).Str("token", logger.ShortToken(session.token)).Msg("automation session lost while reading cookies")
			return m.finish(session, entities.StatusFailed, "browser session lost", "", true)
		}
		m.logger.Warn().Err(err).Str("token", logger.ShortToken(session.token)).Msg("failed to read cookies")
		return m.note(session, entities.StatusScanned, "login confirmed, reading cookies failed, retrying")
	}

	credential := entities.JoinCookies(cookies)
	if credential == "" {
		return m.note(session, entities.StatusScanned, "login confirmed, waiting for cookies")
	}

	// Cancel or the janitor may have finished the session meanwhile
	if snapshot := session.Snapshot(); snapshot.IsTerminal() {
		return snapshot
	}

	message := "login successful, cookie saved"
	persisted := true
	if err := m.cookieStore.Save(ctx, credential); err != nil {
		persisted = false
		message = "login successful, but saving the cookie failed: " + err.Error()
		m.metrics.RecordPersistError()
		m.logger.Error().Err(err).Str("token", logger.ShortToken(session.token)).Msg("failed to persist credential")
	}

	snapshot := m.finish(session, entities.StatusConfirmed, message, credential, true)
	if snapshot.Status != entities.StatusConfirmed {
		if persisted {
			m.logger.Warn().Str("token", logger.ShortToken(session.token)).Msg("credential persisted for a session that finished concurrently")
		}
		return snapshot
	}

	m.publish(session.token, credential, persisted)
	return snapshot
}

// Cancel forces a live session into FAILED and releases its browser.
// Cancelling a terminal session returns it unchanged.
func (m *Manager) Cancel(ctx context.Context, token string) (*entities.LoginSession, error) {
	_, span := m.tracer.Start(ctx, "qrlogin.Cancel")
	defer span.End()

	session, ok := m.store.Load(token)
	if !ok {
		return nil, qrerrors.ErrSessionNotFound
	}

	snapshot := m.finish(session, entities.StatusFailed, "login cancelled", "", true)
	m.logger.Info().
		Str("token", logger.ShortToken(token)).
		Str("status", snapshot.Status.String()).
		Msg("QR login session cancelled")

	return snapshot, nil
}

// History lists recent login attempts, newest first
func (m *Manager) History(ctx context.Context, limit int) ([]entities.LoginAttempt, error) {
	if m.attempts == nil {
		return []entities.LoginAttempt{}, nil
	}
	return m.attempts.List(ctx, limit)
}

// ActiveSessions returns the number of sessions holding a browser
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// Close fails every live session, releases their browsers and stops background work
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopJanitor)
	<-m.janitorDone

	released := 0
	for _, session := range m.store.All() {
		if snapshot := session.Snapshot(); snapshot.IsTerminal() {
			continue
		}
		m.finish(session, entities.StatusFailed, "service shutting down", "", false)
		released++
	}
	m.store.Stop()

	m.mu.Lock()
	m.drained = true
	m.mu.Unlock()
	m.background.Wait()

	m.logger.Info().Int("released", released).Msg("QR login manager stopped")
	return nil
}

// advance applies a non-terminal forward transition
func (m *Manager) advance(session *loginSession, status entities.QRStatus, message string) *entities.LoginSession {
	session.mu.Lock()
	changed := session.advanceLocked(status, message, m.now())
	snapshot := session.snapshotLocked()
	session.mu.Unlock()

	if changed {
		m.metrics.RecordTransition(status.String())
		m.logger.Info().
			Str("token", logger.ShortToken(snapshot.Token)).
			Str("status", status.String()).
			Msg("QR login session advanced")
	}
	return snapshot
}

// note updates the message of a session still in state from
func (m *Manager) note(session *loginSession, from entities.QRStatus, message string) *entities.LoginSession {
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.status == from {
		session.noteLocked(message, m.now())
	}
	return session.snapshotLocked()
}

// finish is the only path into a terminal state. The handle is detached
// under the session lock, so it is released exactly once no matter how
// many callers race here.
func (m *Manager) finish(session *loginSession, status entities.QRStatus, message, credential string, retain bool) *entities.LoginSession {
	session.mu.Lock()
	handle, changed := session.finishLocked(status, message, credential, m.now())
	snapshot := session.snapshotLocked()
	session.mu.Unlock()

	if !changed {
		return snapshot
	}

	m.closeHandle(handle, snapshot.Token)
	m.releaseSlot()
	if retain {
		m.store.Retain(snapshot.Token, session)
	}
	m.metrics.RecordTransition(status.String())
	m.record(session.attempt())

	m.logger.Info().
		Str("token", logger.ShortToken(snapshot.Token)).
		Str("status", status.String()).
		Str("message", snapshot.Message).
		Msg("QR login session finished")

	return snapshot
}

// closeHandle releases an automation handle. Errors are logged only.
func (m *Manager) closeHandle(handle deps.AutomationSession, token string) {
	if handle == nil {
		return
	}
	if err := handle.Close(); err != nil {
		m.logger.Warn().Err(err).Str("token", logger.ShortToken(token)).Msg("failed to release automation session")
	}
}

// goBackground runs fn off the polling goroutine. Close waits for it;
// once Close has drained, fn runs inline.
func (m *Manager) goBackground(fn func(ctx context.Context)) {
	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		fn(ctx)
	}

	m.mu.Lock()
	if m.drained {
		m.mu.Unlock()
		run()
		return
	}
	m.background.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.background.Done()
		run()
	}()
}

func (m *Manager) publish(token, credential string, persisted bool) {
	if m.publisher == nil {
		return
	}

	event := &entities.CredentialEvent{
		Type:        entities.EventCredentialUpdated,
		Token:       token,
		CookieNames: entities.CookieNames(credential),
		Persisted:   persisted,
		OccurredAt:  m.now(),
	}
	m.goBackground(func(ctx context.Context) {
		if err := m.publisher.PublishCredentialUpdated(ctx, event); err != nil {
			m.logger.Error().Err(err).Str("token", logger.ShortToken(token)).Msg("failed to publish credential event")
		}
	})
}

func (m *Manager) record(attempt *entities.LoginAttempt) {
	if m.attempts == nil {
		return
	}

	m.goBackground(func(ctx context.Context) {
		if err := m.attempts.Record(ctx, attempt); err != nil {
			m.logger.Error().Err(err).Str("token", logger.ShortToken(attempt.Token)).Msg("failed to record login attempt")
		}
	})
}

func (m *Manager) recordSetupFailure(started time.Time, err error) {
	reason := "setup_failed"
	if errors.Is(err, qrerrors.ErrQRNotFound) {
		reason = "qr_not_found"
	}
	m.metrics.RecordSetupFailure(reason)
	m.logger.Error().Err(err).Str("reason", reason).Msg("failed to start QR login session")

	m.record(&entities.LoginAttempt{
		Status:     entities.StatusFailed,
		Message:    err.Error(),
		StartedAt:  started,
		FinishedAt: m.now(),
	})
}

func (m *Manager) reserveSlot() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return qrerrors.ErrManagerClosed
	}
	if m.live >= m.settings.MaxSessions {
		return qrerrors.ErrMaxSessionsReached
	}
	m.live++
	m.metrics.UpdateActiveSessions(m.live)
	return nil
}

func (m *Manager) releaseSlot() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.live > 0 {
		m.live--
	}
	m.metrics.UpdateActiveSessions(m.live)
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// onEvicted runs when a store entry expires. A live session evicted this
// way missed every janitor pass, so it is expired here.
func (m *Manager) onEvicted(token string, session *loginSession) {
	if snapshot := session.Snapshot(); snapshot.IsTerminal() {
		return
	}
	m.logger.Warn().Str("token", logger.ShortToken(token)).Msg("live session evicted, expiring it")
	// Eviction callbacks may run under the cache lock
	go m.finish(session, entities.StatusExpired, "QR code expired", "", false)
}

// ExpireOverdue expires every live session past its deadline and returns how many it expired
func (m *Manager) ExpireOverdue() int {
	now := m.now()
	expired := 0
	for _, session := range m.store.All() {
		session.mu.Lock()
		overdue := !session.status.IsTerminal() && !now.Before(session.expiresAt)
		session.mu.Unlock()
		if !overdue {
			continue
		}
		if snapshot := m.finish(session, entities.StatusExpired, "QR code expired", "", true); snapshot.Status == entities.StatusExpired {
			expired++
		}
	}
	return expired
}

// runJanitor periodically expires overdue sessions so abandoned ones
// release their browsers without being polled
func (m *Manager) runJanitor() {
	defer close(m.janitorDone)

	if m.settings.CleanupInterval <= 0 {
		<-m.stopJanitor
		return
	}

	ticker := time.NewTicker(m.settings.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopJanitor:
			return
		case <-ticker.C:
			if n := m.ExpireOverdue(); n > 0 {
				m.logger.Info().Int("expired", n).Msg("expired abandoned QR login sessions")
			}
		}
	}
}

func waitingMessage(status entities.QRStatus) string {
	if status == entities.StatusScanned {
		return "scanned, waiting for confirmation"
	}
	return "waiting for scan"
}
