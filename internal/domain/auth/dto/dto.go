package dto

// UserInfo is the platform identity returned to clients
type UserInfo struct {
	UID      string `json:"uid"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

// CheckResponse response for GET /api/auth/check
type CheckResponse struct {
	Valid    bool      `json:"valid"`
	UserInfo *UserInfo `json:"user_info"`
	Error    *string   `json:"error"`
}

// CookieResponse response for GET /api/auth/cookie
type CookieResponse struct {
	Success   bool    `json:"success"`
	Cookie    *string `json:"cookie"`
	RawCookie *string `json:"raw_cookie"`
	Length    int     `json:"length,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// SetCookieRequest request for POST /api/auth/cookie
type SetCookieRequest struct {
	Cookie string `json:"cookie"`
}

// SetCookieResponse response for POST /api/auth/cookie
type SetCookieResponse struct {
	Success  bool      `json:"success"`
	Message  string    `json:"message,omitempty"`
	UserInfo *UserInfo `json:"user_info,omitempty"`
	Warning  string    `json:"warning,omitempty"`
	Error    string    `json:"error,omitempty"`
}
