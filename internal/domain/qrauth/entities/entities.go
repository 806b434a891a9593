package entities

import (
	"encoding/base64"
	"strings"
	"time"
)

// QRStatus represents the current state of a QR login session.
// Values 1-5 match the status codes the REST API has always returned.
type QRStatus int

const (
	StatusWaiting     QRStatus = 1 // QR shown, waiting for scan
	StatusScanned     QRStatus = 2 // Scanned, waiting for confirmation on the phone
	StatusConfirmed   QRStatus = 3 // Login confirmed, credential harvested
	StatusRateLimited QRStatus = 4 // Platform reported too many attempts
	StatusExpired     QRStatus = 5 // QR code or session expired
	StatusFailed      QRStatus = 6 // Cancelled or unrecoverable automation error
)

// String returns the lowercase name of the status
func (s QRStatus) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusScanned:
		return "scanned"
	case StatusConfirmed:
		return "confirmed"
	case StatusRateLimited:
		return "rate_limited"
	case StatusExpired:
		return "expired"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if no further transitions are possible
func (s QRStatus) IsTerminal() bool {
	return s == StatusConfirmed ||
		s == StatusRateLimited ||
		s == StatusExpired ||
		s == StatusFailed
}

// Rank orders statuses for monotonicity checks: WAITING < SCANNED < any terminal.
func (s QRStatus) Rank() int {
	switch s {
	case StatusWaiting:
		return 0
	case StatusScanned:
		return 1
	default:
		return 2
	}
}

// Signal is what the automation session observed on the live login page
type Signal int

const (
	SignalNone Signal = iota
	SignalScanned
	SignalConfirmed
	SignalExpired
	SignalRateLimited
)

// String returns the signal name used in logs
func (s Signal) String() string {
	switch s {
	case SignalScanned:
		return "scanned"
	case SignalConfirmed:
		return "confirmed"
	case SignalExpired:
		return "expired"
	case SignalRateLimited:
		return "rate_limited"
	default:
		return "none"
	}
}

// QRCapture is the rendered QR element captured during session setup
type QRCapture struct {
	Image     []byte // PNG bytes
	SourceURL string // src attribute of the element, if any
}

// LoginSession is a read-only snapshot of a QR login attempt.
// Credential is non-empty only when Status == StatusConfirmed.
type LoginSession struct {
	Token      string
	Status     QRStatus
	Message    string
	QRImage    []byte
	QRURL      string
	Credential string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	UpdatedAt  time.Time
}

// IsTerminal returns true if the session is in a terminal state
func (s *LoginSession) IsTerminal() bool {
	return s.Status.IsTerminal()
}

// QRDataURL returns the QR image as a data URL suitable for an <img> tag
func (s *LoginSession) QRDataURL() string {
	if len(s.QRImage) == 0 {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(s.QRImage)
}

// Cookie is a single name/value pair from the browser cookie jar
type Cookie struct {
	Name  string
	Value string
}

// JoinCookies renders cookies as a Cookie header value: "a=1; b=2".
// Cookies with an empty name are skipped.
func JoinCookies(cookies []Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// ParseCookies splits a Cookie header value into name/value pairs.
// Malformed parts without a name are skipped.
func ParseCookies(credential string) []Cookie {
	cookies := []Cookie{}
	for _, part := range strings.Split(credential, ";") {
		name, value, _ := strings.Cut(strings.TrimSpace(part), "=")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cookies = append(cookies, Cookie{Name: name, Value: strings.TrimSpace(value)})
	}
	return cookies
}

// CookieNames returns the names of the cookies in a Cookie header value
func CookieNames(credential string) []string {
	cookies := ParseCookies(credential)
	names := make([]string, 0, len(cookies))
	for _, c := range cookies {
		names = append(names, c.Name)
	}
	return names
}

// LoginAttempt is the recorded outcome of one QR login attempt
type LoginAttempt struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Token      string    `gorm:"size:64;index" json:"token"`
	Status     QRStatus  `gorm:"not null" json:"status"`
	Message    string    `gorm:"size:512" json:"message"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `gorm:"index" json:"finished_at"`
}

// TableName sets the table name for gorm
func (LoginAttempt) TableName() string {
	return "qr_login_attempts"
}

// CredentialEvent is published after a credential has been harvested.
// It never carries cookie values.
type CredentialEvent struct {
	Type        string    `json:"type"`
	Token       string    `json:"token"`
	CookieNames []string  `json:"cookie_names"`
	Persisted   bool      `json:"persisted"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// EventCredentialUpdated is the type of CredentialEvent
const EventCredentialUpdated = "auth.credential.updated"
