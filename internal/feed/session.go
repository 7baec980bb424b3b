package feed

import "sync"

// MemorySession is an AuthContext holding the token in memory.
type MemorySession struct {
	mu       sync.Mutex
	token    string
	onLogout []func()
}

func NewMemorySession(token string) *MemorySession {
	return &MemorySession{token: token}
}

func (s *MemorySession) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SetToken installs a new token, e.g. after a fresh login.
func (s *MemorySession) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// OnLogout registers fn to run after every Logout.
func (s *MemorySession) OnLogout(fn func()) {
	s.mu.Lock()
	s.onLogout = append(s.onLogout, fn)
	s.mu.Unlock()
}

// Logout clears the token and runs the registered callbacks outside the lock.
func (s *MemorySession) Logout() {
	s.mu.Lock()
	s.token = ""
	callbacks := append([]func(){}, s.onLogout...)
	s.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}
