package service

import "sync"

// sessionLocks serializes mutation per session token. Different tokens
// never contend on the same lock, so cross-session operations stay fully
// independent. Entries are dropped when a session is deleted or swept.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the token's lock and returns its unlock function.
func (l *sessionLocks) lock(token string) func() {
	l.mu.Lock()
	m, ok := l.locks[token]
	if !ok {
		m = &sync.Mutex{}
		l.locks[token] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// forget drops a token's lock entry once the session is gone.
func (l *sessionLocks) forget(token string) {
	l.mu.Lock()
	delete(l.locks, token)
	l.mu.Unlock()
}
