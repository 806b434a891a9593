package qrlogin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/deps"
	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/entities"
	qrerrors "github.com/Conte777/douyin-gateway/internal/domain/qrauth/errors"
)

type testEnv struct {
	manager   *Manager
	driver    *fakeDriver
	store     *fakeCookieStore
	publisher *fakePublisher
	attempts  *fakeAttempts
	clock     *fakeClock
}

func testSettings() Settings {
	s := DefaultSettings()
	s.CleanupInterval = 0
	s.Retention = time.Minute
	s.MaxSessions = 3
	return s
}

func newTestEnv(t *testing.T, settings Settings, opts ...Option) *testEnv {
	t.Helper()

	env := &testEnv{
		driver:    &fakeDriver{},
		store:     &fakeCookieStore{},
		publisher: &fakePublisher{},
		attempts:  &fakeAttempts{},
		clock:     newFakeClock(),
	}

	opts = append([]Option{
		WithClock(env.clock.Now),
		WithPublisher(env.publisher),
		WithAttemptRepository(env.attempts),
	}, opts...)

	env.manager = NewManager(env.driver, env.store, settings, zerolog.Nop(), opts...)
	t.Cleanup(func() { _ = env.manager.Close() })

	return env
}

// settle waits for background publish and record calls
func (e *testEnv) settle() {
	e.manager.background.Wait()
}

// start opens a session backed by a fresh scripted handle
func (e *testEnv) start(t *testing.T) (*entities.LoginSession, *fakeHandle) {
	t.Helper()
	h := e.driver.add(newFakeHandle())
	session, err := e.manager.StartSession(context.Background())
	require.NoError(t, err)
	return session, h
}

func TestStartSession_Success(t *testing.T) {
	env := newTestEnv(t, testSettings())

	session, h := env.start(t)

	assert.NotEmpty(t, session.Token)
	assert.Equal(t, entities.StatusWaiting, session.Status)
	assert.Equal(t, []byte("png-bytes"), session.QRImage)
	assert.Equal(t, "https://example.com/qr.png", session.QRURL)
	assert.Equal(t, env.clock.Now().Add(5*time.Minute), session.ExpiresAt)
	assert.Empty(t, session.Credential)
	assert.Equal(t, 1, env.manager.ActiveSessions())

	_, _, closes := h.counts()
	assert.Zero(t, closes)
}

func TestStartSession_QRNotFound(t *testing.T) {
	env := newTestEnv(t, testSettings())
	h := newFakeHandle()
	h.capture = &entities.QRCapture{}
	env.driver.add(h)

	session, err := env.manager.StartSession(context.Background())

	require.ErrorIs(t, err, qrerrors.ErrQRNotFound)
	assert.Nil(t, session)
	assert.Equal(t, 0, env.manager.ActiveSessions())
	_, _, closes := h.counts()
	assert.Equal(t, 1, closes)

	env.settle()
	require.Len(t, env.attempts.attempts, 1)
	assert.Equal(t, entities.StatusFailed, env.attempts.attempts[0].Status)
}

func TestStartSession_CaptureError(t *testing.T) {
	env := newTestEnv(t, testSettings())
	h := newFakeHandle()
	h.captureErr = errors.New("navigation timeout")
	env.driver.add(h)

	_, err := env.manager.StartSession(context.Background())

	require.ErrorIs(t, err, qrerrors.ErrSetupFailed)
	assert.Contains(t, err.Error(), "navigation timeout")
	_, _, closes := h.counts()
	assert.Equal(t, 1, closes)
}

func TestStartSession_OpenError(t *testing.T) {
	env := newTestEnv(t, testSettings())
	env.driver.openErr = errors.New("browser not found")

	_, err := env.manager.StartSession(context.Background())

	require.ErrorIs(t, err, qrerrors.ErrSetupFailed)
	assert.Equal(t, 0, env.manager.ActiveSessions())
}

func TestStartSession_MaxSessions(t *testing.T) {
	settings := testSettings()
	settings.MaxSessions = 1
	env := newTestEnv(t, settings)

	first, _ := env.start(t)
	env.driver.add(newFakeHandle())

	_, err := env.manager.StartSession(context.Background())
	require.ErrorIs(t, err, qrerrors.ErrMaxSessionsReached)

	// A finished session frees its slot
	_, err = env.manager.Cancel(context.Background(), first.Token)
	require.NoError(t, err)

	_, err = env.manager.StartSession(context.Background())
	require.NoError(t, err)
}

func TestStartSession_RateLimited(t *testing.T) {
	settings := testSettings()
	settings.StartRate = 0.001
	settings.StartBurst = 1
	env := newTestEnv(t, settings)

	env.start(t)
	env.driver.add(newFakeHandle())

	_, err := env.manager.StartSession(context.Background())
	require.ErrorIs(t, err, qrerrors.ErrTooManyRequests)
}

func TestStartSession_TokenCollision(t *testing.T) {
	tokens := []string{"dup-token", "dup-token", "fresh-token"}
	var mu sync.Mutex
	next := func() string {
		mu.Lock()
		defer mu.Unlock()
		token := tokens[0]
		tokens = tokens[1:]
		return token
	}
	env := newTestEnv(t, testSettings(), WithTokenGenerator(next))

	first, _ := env.start(t)
	second, _ := env.start(t)

	assert.Equal(t, "dup-token", first.Token)
	assert.Equal(t, "fresh-token", second.Token)
}

func TestPoll_UnknownToken(t *testing.T) {
	env := newTestEnv(t, testSettings())

	_, err := env.manager.Poll(context.Background(), "missing")

	require.ErrorIs(t, err, qrerrors.ErrSessionNotFound)
}

func TestPoll_NoSignalStaysWaiting(t *testing.T) {
	env := newTestEnv(t, testSettings())
	session, h := env.start(t)

	got, err := env.manager.Poll(context.Background(), session.Token)

	require.NoError(t, err)
	assert.Equal(t, entities.StatusWaiting, got.Status)
	assert.NotEmpty(t, got.Message)
	detects, _, _ := h.counts()
	assert.Equal(t, 1, detects)
}

func TestPoll_ScanThenConfirm(t *testing.T) {
	env := newTestEnv(t, testSettings())
	session, h := env.start(t)
	h.queue(entities.SignalScanned, entities.SignalConfirmed)

	got, err := env.manager.Poll(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusScanned, got.Status)

	got, err = env.manager.Poll(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusConfirmed, got.Status)
	assert.Equal(t, "sessionid=abc; s_v_web_id=xyz", got.Credential)
	assert.Contains(t, got.Message, "cookie saved")

	assert.Equal(t, []string{"sessionid=abc; s_v_web_id=xyz"}, env.store.saved)
	assert.Equal(t, 0, env.manager.ActiveSessions())

	detects, cookies, closes := h.counts()
	assert.Equal(t, 2, detects)
	assert.Equal(t, 1, cookies)
	assert.Equal(t, 1, closes)

	env.settle()
	require.Len(t, env.publisher.events, 1)
	event := env.publisher.events[0]
	assert.Equal(t, entities.EventCredentialUpdated, event.Type)
	assert.Equal(t, []string{"sessionid", "s_v_web_id"}, event.CookieNames)
	assert.True(t, event.Persisted)

	require.Len(t, env.attempts.attempts, 1)
	assert.Equal(t, entities.StatusConfirmed, env.attempts.attempts[0].Status)
}

func TestPoll_TerminalIsSticky(t *testing.T) {
	env := newTestEnv(t, testSettings())
	session, h := env.start(t)
	h.queue(entities.SignalScanned, entities.SignalConfirmed)

	_, err := env.manager.Poll(context.Background(), session.Token)
	require.NoError(t, err)
	confirmed, err := env.manager.Poll(context.Background(), session.Token)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := env.manager.Poll(context.Background(), session.Token)
		require.NoError(t, err)
		assert.Equal(t, confirmed.Status, got.Status)
		assert.Equal(t, confirmed.Message, got.Message)
		assert.Equal(t, confirmed.Credential, got.Credential)
	}

	detects, cookies, closes := h.counts()
	assert.Equal(t, 2, detects)
	assert.Equal(t, 1, cookies)
	assert.Equal(t, 1, closes)
	assert.Equal(t, 1, env.store.savedCount())
}

func TestPoll_ConfirmWhileWaitingAdvancesToScanned(t *testing.T) {
	env := newTestEnv(t, testSettings())
	session, h := env.start(t)
	h.queue(entities.SignalConfirmed, entities.SignalConfirmed)

	got, err := env.manager.Poll(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusScanned, got.Status)
	_, cookies, _ := h.counts()
	assert.Zero(t, cookies)

	got, err = env.manager.Poll(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusConfirmed, got.Status)
}

func TestPoll_ExpiryCheckedBeforeDetection(t *testing.T) {
	env := newTestEnv(t, testSettings())
	session, h := env.start(t)
	h.queue(entities.SignalConfirmed)

	env.clock.Advance(5 * time.Minute)

	got, err := env.manager.Poll(context.Background(), session.Token)

	require.NoError(t, err)
	assert.Equal(t, entities.StatusExpired, got.Status)
	assert.Empty(t, got.Credential)
	detects, _, closes := h.counts()
	assert.Zero(t, detects)
	assert.Equal(t, 1, closes)
}

func TestPoll_ExpiredSignal(t *testing.T) {
	env := newTestEnv(t, testSettings())
	session, h := env.start(t)
	h.queue(entities.SignalExpired)

	got, err := env.manager.Poll(context.Background(), session.Token)

	require.NoError(t, err)
	assert.Equal(t, entities.StatusExpired, got.Status)
	_, _, closes := h.counts()
	assert.Equal(t, 1, closes)
}

func TestPoll_RateLimitedReleasesEvenIfCloseFails(t *testing.T) {
	env := newTestEnv(t, testSettings())
	session, h := env.start(t)
	h.closeErr = errors.New("browser already gone")
	h.queue(entities.SignalScanned, entities.SignalRateLimited)

	_, err := env.manager.Poll(context.Background(), session.Token)
	require.NoError(t, err)
	got, err := env.manager.Poll(context.Background(), session.Token)

	require.NoError(t, err)
	assert.Equal(t, entities.StatusRateLimited, got.Status)
	assert.Equal(t, 0, env.manager.ActiveSessions())
	_, _, closes := h.counts()
	assert.Equal(t, 1, closes)
}

func TestPoll_TransientErrorKeepsState(t *testing.T) {
	env := newTestEnv(t, testSettings())
	session, h := env.start(t)
	h.queue(entities.SignalScanned)

	_, err := env.manager.Poll(context.Background(), session.Token)
	require.NoError(t, err)

	h.mu.Lock()
	h.detectErr = errors.New("element lookup flaked")
	h.mu.Unlock()

	got, err := env.manager.Poll(context.Background(), session.Token)

	require.NoError(t, err)
	assert.Equal(t, entities.StatusScanned, got.Status)
	assert.Contains(t, got.Message, "status check failed")
	_, _, closes := h.counts()
	assert.Zero(t, closes)
}

func TestPoll_AutomationLostFails(t *testing.T) {
	env := newTestEnv(t, testSettings())
	session, h := env.start(t)
	h.detectErr = fmt.Errorf("page closed: %w", deps.ErrAutomationLost)

	got, err := env.manager.Poll(context.Background(), session.Token)

	require.NoError(t, err)
	assert.Equal(t, entities.StatusFailed, got.Status)
	_, _, closes := h.counts()
	assert.Equal(t, 1, closes)
}

func TestPoll_PersistFailureIsNonFatal(t *testing.T) {
	env := newTestEnv(t, testSettings())
	env.store.err = errors.New("permission denied")
	session, h := env.start(t)
	h.queue(entities.SignalScanned, entities.SignalConfirmed)

	_, err := env.manager.Poll(context.Background(), session.Token)
	require.NoError(t, err)
	got, err := env.manager.Poll(context.Background(), session.Token)

	require.NoError(t, err)
	assert.Equal(t, entities.StatusConfirmed, got.Status)
	assert.Equal(t, "sessionid=abc; s_v_web_id=xyz", got.Credential)
	assert.Contains(t, got.Message, "permission denied")
	env.settle()
	require.Len(t, env.publisher.events, 1)
	assert.False(t, env.publisher.events[0].Persisted)
}

func TestPoll_CookieReadErrorStaysScanned(t *testing.T) {
	env := newTestEnv(t, testSettings())
	session, h := env.start(t)
	h.cookiesErr = errors.New("cdp timeout")
	h.queue(entities.SignalScanned, entities.SignalConfirmed)

	_, err := env.manager.Poll(context.Background(), session.Token)
	require.NoError(t, err)
	got, err := env.manager.Poll(context.Background(), session.Token)

	require.NoError(t, err)
	assert.Equal(t, entities.StatusScanned, got.Status)
	assert.Zero(t, env.store.savedCount())
}

func TestPoll_StatesAreMonotonic(t *testing.T) {
	env := newTestEnv(t, testSettings())
	session, h := env.start(t)
	h.queue(
		entities.SignalNone,
		entities.SignalScanned,
		entities.SignalNone,
		entities.SignalScanned,
		entities.SignalConfirmed,
		entities.SignalExpired,
		entities.SignalRateLimited,
	)

	last := entities.StatusWaiting
	for i := 0; i < 8; i++ {
		got, err := env.manager.Poll(context.Background(), session.Token)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got.Status.Rank(), last.Rank())
		if last.IsTerminal() {
			assert.Equal(t, last, got.Status)
		}
		last = got.Status
	}
	assert.Equal(t, entities.StatusConfirmed, last)
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t, testSettings())
	session, h := env.start(t)

	got, err := env.manager.Cancel(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusFailed, got.Status)

	again, err := env.manager.Cancel(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, got.Message, again.Message)

	polled, err := env.manager.Poll(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusFailed, polled.Status)

	detects, _, closes := h.counts()
	assert.Zero(t, detects)
	assert.Equal(t, 1, closes)

	_, err = env.manager.Cancel(context.Background(), "missing")
	require.ErrorIs(t, err, qrerrors.ErrSessionNotFound)
}

func TestCancel_DuringInFlightPoll(t *testing.T) {
	env := newTestEnv(t, testSettings())
	session, h := env.start(t)

	entered := make(chan struct{})
	proceed := make(chan struct{})
	h.detectFn = func(ctx context.Context) (entities.Signal, error) {
		close(entered)
		<-proceed
		return entities.SignalScanned, nil
	}

	result := make(chan *entities.LoginSession, 1)
	go func() {
		got, err := env.manager.Poll(context.Background(), session.Token)
		if err != nil {
			result <- nil
			return
		}
		result <- got
	}()

	<-entered
	cancelled, err := env.manager.Cancel(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusFailed, cancelled.Status)
	close(proceed)

	polled := <-result
	require.NotNil(t, polled)
	assert.Equal(t, entities.StatusFailed, polled.Status)

	_, _, closes := h.counts()
	assert.Equal(t, 1, closes)
}

func TestPoll_ConcurrentPollsConfirmOnce(t *testing.T) {
	env := newTestEnv(t, testSettings())
	session, h := env.start(t)
	h.queue(entities.SignalScanned)
	_, err := env.manager.Poll(context.Background(), session.Token)
	require.NoError(t, err)

	release := make(chan struct{})
	h.mu.Lock()
	h.detectFn = func(ctx context.Context) (entities.Signal, error) {
		<-release
		return entities.SignalConfirmed, nil
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	results := make([]*entities.LoginSession, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := env.manager.Poll(context.Background(), session.Token)
			if err == nil {
				results[i] = got
			}
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, got := range results {
		require.NotNil(t, got)
		assert.Equal(t, entities.StatusConfirmed, got.Status)
	}
	_, cookies, closes := h.counts()
	assert.Equal(t, 1, cookies)
	assert.Equal(t, 1, closes)
	assert.Equal(t, 1, env.store.savedCount())
}

func TestExpireOverdue(t *testing.T) {
	env := newTestEnv(t, testSettings())
	overdue, h1 := env.start(t)
	env.clock.Advance(4 * time.Minute)
	fresh, h2 := env.start(t)
	env.clock.Advance(time.Minute)

	assert.Equal(t, 1, env.manager.ExpireOverdue())

	got, err := env.manager.Poll(context.Background(), overdue.Token)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusExpired, got.Status)

	got, err = env.manager.Poll(context.Background(), fresh.Token)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusWaiting, got.Status)

	_, _, closes1 := h1.counts()
	_, _, closes2 := h2.counts()
	assert.Equal(t, 1, closes1)
	assert.Zero(t, closes2)
}

func TestClose_ReleasesLiveSessions(t *testing.T) {
	env := newTestEnv(t, testSettings())
	_, h1 := env.start(t)
	_, h2 := env.start(t)

	require.NoError(t, env.manager.Close())
	require.NoError(t, env.manager.Close())

	_, _, closes1 := h1.counts()
	_, _, closes2 := h2.counts()
	assert.Equal(t, 1, closes1)
	assert.Equal(t, 1, closes2)
	assert.Equal(t, 0, env.manager.ActiveSessions())

	env.driver.add(newFakeHandle())
	_, err := env.manager.StartSession(context.Background())
	require.ErrorIs(t, err, qrerrors.ErrManagerClosed)
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t, testSettings())
	session, _ := env.start(t)
	_, err := env.manager.Cancel(context.Background(), session.Token)
	require.NoError(t, err)
	env.settle()

	history, err := env.manager.History(context.Background(), 10)

	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, session.Token, history[0].Token)
	assert.Equal(t, entities.StatusFailed, history[0].Status)
}

func TestPoll_ConfirmSharesOneDeadline(t *testing.T) {
	settings := testSettings()
	settings.PollTimeout = 2 * time.Second
	env := newTestEnv(t, settings)
	session, h := env.start(t)
	h.queue(entities.SignalScanned)

	_, err := env.manager.Poll(context.Background(), session.Token)
	require.NoError(t, err)

	var detectDeadline time.Time
	h.detectFn = func(ctx context.Context) (entities.Signal, error) {
		detectDeadline, _ = ctx.Deadline()
		return entities.SignalConfirmed, nil
	}

	got, err := env.manager.Poll(context.Background(), session.Token)
	require.NoError(t, err)
	require.Equal(t, entities.StatusConfirmed, got.Status)

	require.False(t, detectDeadline.IsZero())
	assert.WithinDuration(t, time.Now().Add(settings.PollTimeout), detectDeadline, settings.PollTimeout)
	assert.Equal(t, detectDeadline, h.cookiesDeadline)
	assert.Equal(t, detectDeadline, env.store.saveDeadline)
}

func TestPoll_PublishDoesNotBlockConfirm(t *testing.T) {
	release := make(chan struct{})
	publisher := &blockingPublisher{release: release}
	env := newTestEnv(t, testSettings(), WithPublisher(publisher))
	session, h := env.start(t)
	h.queue(entities.SignalScanned, entities.SignalConfirmed)

	_, err := env.manager.Poll(context.Background(), session.Token)
	require.NoError(t, err)

	done := make(chan *entities.LoginSession, 1)
	go func() {
		got, _ := env.manager.Poll(context.Background(), session.Token)
		done <- got
	}()

	select {
	case got := <-done:
		require.NotNil(t, got)
		assert.Equal(t, entities.StatusConfirmed, got.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("confirm waited for the publisher")
	}

	close(release)
	env.settle()
	assert.Equal(t, int32(1), publisher.calls.Load())
}
