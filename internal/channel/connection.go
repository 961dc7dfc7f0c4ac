package channel

import (
	"strings"
	"sync"
	"time"
)

// ConnectionStatus is the last known state of a transport session.
type ConnectionStatus struct {
	Transport string    `json:"transport"`
	Account   string    `json:"account,omitempty"`
	Running   bool      `json:"running"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConnectionObserver exposes the status of a running transport.
type ConnectionObserver interface {
	ConnectionStatus() ConnectionStatus
}

// ConnectionTracker records connection state transitions. The zero value is
// not usable; call NewConnectionTracker.
type ConnectionTracker struct {
	mu     sync.RWMutex
	status ConnectionStatus
	now    func() time.Time
}

// NewConnectionTracker creates a tracker for the named transport.
func NewConnectionTracker(transport string) *ConnectionTracker {
	return &ConnectionTracker{
		status: ConnectionStatus{Transport: transport},
		now:    time.Now,
	}
}

// SetAccount records the account the transport is logged in as.
func (t *ConnectionTracker) SetAccount(account string) {
	t.mu.Lock()
	t.status.Account = strings.TrimSpace(account)
	t.mu.Unlock()
}

// Mark sets the running flag and the last error. A nil err clears it.
func (t *ConnectionTracker) Mark(running bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Running = running
	t.status.LastError = ""
	if err != nil {
		t.status.LastError = err.Error()
	}
	t.status.UpdatedAt = t.now().UTC()
}

// ConnectionStatus returns a snapshot.
func (t *ConnectionTracker) ConnectionStatus() ConnectionStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}
