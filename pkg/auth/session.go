package auth

// Session is the authenticated caller resolved from an access token. It is
// passed explicitly into services instead of living in shared state.
type Session struct {
	UserID int64
	Email  string
	Role   string
}

func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}

func SessionFromClaims(c *Claims) Session {
	return Session{UserID: c.Sub, Email: c.Email, Role: c.Role}
}
