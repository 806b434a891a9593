package qrlogin

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"

	"github.com/Conte777/douyin-gateway/internal/infrastructure/logger"
)

// SessionStore keeps QR login sessions by token. Live sessions stay until
// they finish; terminal ones are kept for the retention window so late polls
// still see the outcome, then evicted.
type SessionStore struct {
	cache     *ttlcache.Cache[string, *loginSession]
	retention time.Duration
	mu        sync.RWMutex // guards Register and Retain against Load
	logger    zerolog.Logger
}

// NewSessionStore creates a new session store and starts its expiry loop
func NewSessionStore(retention time.Duration, logger zerolog.Logger) *SessionStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *loginSession](retention),
		ttlcache.WithDisableTouchOnHit[string, *loginSession](),
	)
	go cache.Start()

	return &SessionStore{
		cache:     cache,
		retention: retention,
		logger:    logger.With().Str("component", "qr_session_store").Logger(),
	}
}

// Register stores a new live session under token. The entry outlives the
// session TTL by the retention window so it is never evicted before the
// session is expired by a poll or the janitor. Returns false if the token
// is already taken.
func (s *SessionStore) Register(token string, session *loginSession, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache.Has(token) {
		return false
	}
	s.cache.Set(token, session, ttl+s.retention)
	s.logger.Debug().Str("token", logger.ShortToken(token)).Msg("session stored")
	return true
}

// Load retrieves a session by token
func (s *SessionStore) Load(token string) (*loginSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item := s.cache.Get(token)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Retain restarts the retention window of a session that reached a terminal state.
// The entry is re-inserted rather than updated: ttlcache does not reschedule
// its expiry timer when an existing item's TTL shrinks.
func (s *SessionStore) Retain(token string, session *loginSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.cache.Get(token); item == nil || item.Value() != session {
		return
	}
	s.cache.Delete(token)
	s.cache.Set(token, session, s.retention)
}

// Delete removes a session from the store
func (s *SessionStore) Delete(token string) {
	s.cache.Delete(token)
}

// All returns every stored session
func (s *SessionStore) All() []*loginSession {
	items := s.cache.Items()
	sessions := make([]*loginSession, 0, len(items))
	for _, item := range items {
		sessions = append(sessions, item.Value())
	}
	return sessions
}

// Count returns the number of stored sessions, live and retained
func (s *SessionStore) Count() int {
	return s.cache.Len()
}

// OnExpire registers fn to run for every session evicted because its entry expired
func (s *SessionStore) OnExpire(fn func(token string, session *loginSession)) {
	s.cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *loginSession]) {
		if reason != ttlcache.EvictionReasonExpired {
			return
		}
		fn(item.Key(), item.Value())
	})
}

// Stop stops the expiry loop
func (s *SessionStore) Stop() {
	s.cache.Stop()
}
