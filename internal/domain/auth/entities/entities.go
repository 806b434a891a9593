package entities

// Identity is the platform account a credential belongs to
type Identity struct {
	UID      string
	Nickname string
	Avatar   string
}

// CheckResult is the outcome of validating the stored credential
type CheckResult struct {
	Valid    bool
	Identity *Identity
	Reason   string // set when Valid is false
}

// StoredCookie is the persisted credential as shown to operators
type StoredCookie struct {
	Masked string
	Raw    string
	Length int
}

// MaskCookie shortens long credentials to their first 50 and last 20 characters
func MaskCookie(credential string) string {
	if len(credential) <= 100 {
		return credential
	}
	return credential[:50] + "..." + credential[len(credential)-20:]
}
