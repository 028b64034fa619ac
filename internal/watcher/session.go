package watcher

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Zuo-Peng/slopwatch/internal/ledger"
)

// Session is the state of one monitoring run: the mirrored credential and the
// ledger of posts already handled. The ledger belongs to the watcher loop; the
// credential is also read by classification goroutines.
type Session struct {
	ID     string
	Ledger *ledger.Ledger

	mu         sync.RWMutex
	credential string
}

func NewSession() *Session {
	return &Session{
		ID:     uuid.NewString(),
		Ledger: ledger.New(),
	}
}

func (s *Session) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential
}

func (s *Session) SetCredential(key string) {
	s.mu.Lock()
	s.credential = key
	s.mu.Unlock()
}
