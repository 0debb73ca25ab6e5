package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// DefaultTimeout is how long a host session stays valid after login.
const DefaultTimeout = 2 * time.Hour

// HostSession is the authenticated state attached to a connection.
type HostSession struct {
	IsHost    bool
	LoginTime time.Time
}

// Authenticator validates host credentials and issues time-bounded host
// sessions keyed by connection id. Expiry is checked lazily on every
// privileged action; there is no background sweep.
type Authenticator struct {
	username     string
	passwordHash []byte
	timeout      time.Duration
	clock        clockwork.Clock

	mu       sync.Mutex
	sessions map[string]*HostSession
}

// NewAuthenticator creates an authenticator for a single host account.
// passwordHash is a bcrypt hash; plaintext is never stored or compared.
func NewAuthenticator(username, passwordHash string, timeout time.Duration, clock clockwork.Clock) *Authenticator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Authenticator{
		username:     username,
		passwordHash: []byte(passwordHash),
		timeout:      timeout,
		clock:        clock,
		sessions:     make(map[string]*HostSession),
	}
}

// Login validates credentials and, on success, attaches a fresh host
// session to the connection. A failed login leaves any prior session
// untouched.
func (a *Authenticator) Login(connID, username, password string) bool {
	if username != a.username {
		return false
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return false
	}

	a.mu.Lock()
	a.sessions[connID] = &HostSession{IsHost: true, LoginTime: a.clock.Now()}
	a.mu.Unlock()

	log.Info().Str("connection_id", connID).Msg("host logged in")
	return true
}

// Authorize reports whether the connection holds a valid, non-expired
// host session. The second result is true exactly once per expiry: the
// first privileged action after the timeout clears the session and
// should notify the connection.
func (a *Authenticator) Authorize(connID string) (ok bool, expired bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sess, found := a.sessions[connID]
	if !found || !sess.IsHost {
		return false, false
	}

	if a.clock.Now().Sub(sess.LoginTime) > a.timeout {
		delete(a.sessions, connID)
		log.Info().Str("connection_id", connID).Msg("host session expired")
		return false, true
	}

	return true, false
}

// Drop discards any session attached to the connection, typically on
// disconnect.
func (a *Authenticator) Drop(connID string) {
	a.mu.Lock()
	delete(a.sessions, connID)
	a.mu.Unlock()
}
