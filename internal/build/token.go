package build

import "sync/atomic"

// Token is a cooperative cancellation flag shared between the run that owns
// it and whoever supersedes that run. Runs check it between phases only.
type Token struct {
	canceled atomic.Bool
}

func NewToken() *Token { return &Token{} }

// Cancel marks the token canceled. It is safe to call more than once.
func (t *Token) Cancel() {
	if t != nil {
		t.canceled.Store(true)
	}
}

// Canceled reports whether Cancel was called.
func (t *Token) Canceled() bool {
	return t != nil && t.canceled.Load()
}
