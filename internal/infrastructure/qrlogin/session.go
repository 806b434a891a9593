package qrlogin

import (
	"sync"
	"time"

	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/deps"
	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/entities"
)

// loginSession holds runtime data for one QR login attempt.
// All fields are guarded by mu; handle is non-nil only while the
// status is non-terminal.
type loginSession struct {
	mu sync.Mutex

	token      string
	status     entities.QRStatus
	message    string
	qrImage    []byte
	qrURL      string
	credential string
	createdAt  time.Time
	expiresAt  time.Time
	updatedAt  time.Time

	handle deps.AutomationSession
}

func newLoginSession(token string, handle deps.AutomationSession, capture *entities.QRCapture, now time.Time, ttl time.Duration) *loginSession {
	return &loginSession{
		token:     token,
		status:    entities.StatusWaiting,
		message:   "waiting for scan",
		qrImage:   capture.Image,
		qrURL:     capture.SourceURL,
		createdAt: now,
		expiresAt: now.Add(ttl),
		updatedAt: now,
		handle:    handle,
	}
}

// Snapshot returns a thread-safe copy of the session state
func (s *loginSession) Snapshot() *entities.LoginSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *loginSession) snapshotLocked() *entities.LoginSession {
	return &entities.LoginSession{
		Token:      s.token,
		Status:     s.status,
		Message:    s.message,
		QRImage:    s.qrImage,
		QRURL:      s.qrURL,
		Credential: s.credential,
		CreatedAt:  s.createdAt,
		ExpiresAt:  s.expiresAt,
		UpdatedAt:  s.updatedAt,
	}
}

// advanceLocked moves a live session to SCANNED. It never regresses.
func (s *loginSession) advanceLocked(status entities.QRStatus, message string, now time.Time) bool {
	if s.status.IsTerminal() || status.Rank() <= s.status.Rank() {
		return false
	}
	s.status = status
	s.message = message
	s.updatedAt = now
	return true
}

// noteLocked updates the message of a live session without changing its state
func (s *loginSession) noteLocked(message string, now time.Time) {
	if s.status.IsTerminal() {
		return
	}
	s.message = message
	s.updatedAt = now
}

// finishLocked moves a live session into a terminal state and detaches its
// automation handle. The caller owns the returned handle and must release it
// after unlocking. Reports false if the session was already terminal.
func (s *loginSession) finishLocked(status entities.QRStatus, message, credential string, now time.Time) (deps.AutomationSession, bool) {
	if s.status.IsTerminal() {
		return nil, false
	}
	s.status = status
	s.message = message
	s.updatedAt = now
	if status == entities.StatusConfirmed {
		s.credential = credential
	}

	handle := s.handle
	s.handle = nil
	return handle, true
}

// attempt builds the history record of a terminal session
func (s *loginSession) attempt() *entities.LoginAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &entities.LoginAttempt{
		Token:      s.token,
		Status:     s.status,
		Message:    s.message,
		StartedAt:  s.createdAt,
		FinishedAt: s.updatedAt,
	}
}
