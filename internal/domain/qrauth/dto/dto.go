package dto

import "time"

// QRCodeData carries a fresh QR code and the token to poll it with
type QRCodeData struct {
	Token        string `json:"token"`
	QRCodeURL    string `json:"qrcode_url"`
	QRCodeBase64 string `json:"qrcode_base64"`
	ExpireAt     int64  `json:"expire_at"` // unix seconds
}

// QRCodeResponse response for GET /api/auth/qrcode
type QRCodeResponse struct {
	Success bool        `json:"success"`
	Data    *QRCodeData `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// QRCodeStatusResponse response for status polls and cancellation.
// Status uses the numeric codes 1-6, StatusName their lowercase names.
type QRCodeStatusResponse struct {
	Token      string  `json:"token"`
	Status     int     `json:"status"`
	StatusName string  `json:"status_name"`
	Message    string  `json:"message"`
	Cookie     *string `json:"cookie,omitempty"` // set once confirmed
}

// LoginAttempt is one entry of the login history
type LoginAttempt struct {
	Token      string    `json:"token"`
	Status     int       `json:"status"`
	StatusName string    `json:"status_name"`
	Message    string    `json:"message"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// HistoryResponse response for GET /api/auth/qrcode/history
type HistoryResponse struct {
	Attempts []LoginAttempt `json:"attempts"`
}

// ErrorResponse generic error response
type ErrorResponse struct {
	Error string `json:"error"`
}
