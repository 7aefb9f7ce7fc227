// Package auth implements account login, registration and email
// verification, and the in-memory session tokens that admit a player to the
// gameplay endpoint.
package auth

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// TokenLength is the number of characters in a session token.
const TokenLength = 15

// Authenticator records issued session tokens. Tokens live only in process
// memory and are lost on restart.
type Authenticator struct {
	tokens *gocache.Cache
	gen    func(n int) (string, error)
}

// NewAuthenticator creates an Authenticator. A zero ttl keeps tokens until
// the process exits.
func NewAuthenticator(ttl time.Duration) *Authenticator {
	expiry, cleanup := gocache.NoExpiration, time.Duration(0)
	if ttl > 0 {
		expiry, cleanup = ttl, time.Minute
	}
	return &Authenticator{
		tokens: gocache.New(expiry, cleanup),
		gen:    RandomCode,
	}
}

// Issue mints a fresh token bound to username. A token colliding with one
// already issued is silently regenerated.
func (a *Authenticator) Issue(username string) (string, error) {
	for {
		token, err := a.gen(TokenLength)
		if err != nil {
			return "", err
		}
		if err := a.tokens.Add(token, username, gocache.DefaultExpiration); err == nil {
			return token, nil
		}
	}
}

// Check reports whether token was issued to username and is still live.
func (a *Authenticator) Check(username, token string) bool {
	v, ok := a.tokens.Get(token)
	if !ok {
		return false
	}
	owner, _ := v.(string)
	return owner == username
}

// Count returns the number of live tokens.
func (a *Authenticator) Count() int {
	return a.tokens.ItemCount()
}
