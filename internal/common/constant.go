package common

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "session_id"

// User roles.
const (
	RoleIssuer  = "issuer"
	RoleStudent = "student"
)
