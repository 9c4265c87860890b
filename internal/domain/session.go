package domain

import (
	"net/http"
	"time"
)

// Credential is process-wide, immutable login configuration. CipherKey is the
// fixed DES key the platform expects passwords to be encrypted with.
type Credential struct {
	Username  string
	Password  string
	CipherKey string
}

// Session is the authenticated state shared read-only by all workers. It is
// replaced wholesale on renewal, never mutated in place.
type Session struct {
	Token    string
	UserID   int64
	Realname string
	Cookies  []*http.Cookie

	CreatedAt time.Time
	Valid     bool
}
