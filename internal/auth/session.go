package auth

// Session is the single source of truth for the signed-in identity on the
// client side. Components receive it at construction instead of reading the
// current user from storage at each call site.
type Session interface {
	UserID() int64
	Token() string
}

// StaticSession is a Session fixed at sign-in.
type StaticSession struct {
	ID          int64
	BearerToken string
}

func (s StaticSession) UserID() int64 { return s.ID }
func (s StaticSession) Token() string { return s.BearerToken }
