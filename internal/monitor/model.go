package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/hive/internal/admin"
)

// Source is the admin API the dashboard polls.
type Source interface {
	Status(ctx context.Context) (*admin.Status, error)
	ListOnline(ctx context.Context) ([]admin.OnlineUser, error)
	Kick(ctx context.Context, userID, reason string) (bool, error)
}

// ViewModel holds the latest snapshot fetched from the daemon.
type ViewModel struct {
	src   Source
	Flash Flash

	mu        sync.RWMutex
	status    *admin.Status
	online    []admin.OnlineUser
	lastErr   error
	refreshed time.Time
}

// NewViewModel creates a view model backed by src.
func NewViewModel(src Source) *ViewModel {
	return &ViewModel{src: src}
}

// Refresh fetches status and the online list. On error the previous snapshot
// is kept and the error is remembered.
func (vm *ViewModel) Refresh(ctx context.Context) error {
	st, err := vm.src.Status(ctx)
	if err != nil {
		vm.setErr(err)
		return err
	}
	online, err := vm.src.ListOnline(ctx)
	if err != nil {
		vm.setErr(err)
		return err
	}

	vm.mu.Lock()
	vm.status = st
	vm.online = online
	vm.lastErr = nil
	vm.refreshed = time.Now()
	vm.mu.Unlock()
	return nil
}

func (vm *ViewModel) setErr(err error) {
	vm.mu.Lock()
	vm.lastErr = err
	vm.mu.Unlock()
}

// Kick disconnects userID and flashes the outcome.
func (vm *ViewModel) Kick(ctx context.Context, userID string) error {
	ok, err := vm.src.Kick(ctx, userID, "kicked")
	if err != nil {
		vm.Flash.Set("kick failed: "+err.Error(), 5*time.Second)
		return err
	}
	if ok {
		vm.Flash.Set("kicked "+userID, 3*time.Second)
	} else {
		vm.Flash.Set(userID+" is not connected", 3*time.Second)
	}
	return nil
}

// Status returns the last status snapshot, or nil before the first refresh.
func (vm *ViewModel) Status() *admin.Status {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// Online returns a copy of the last online list.
func (vm *ViewModel) Online() []admin.OnlineUser {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	out := make([]admin.OnlineUser, len(vm.online))
	copy(out, vm.online)
	return out
}

// Err returns the error of the last failed refresh.
func (vm *ViewModel) Err() error {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.lastErr
}

// Refreshed returns when the last successful refresh completed.
func (vm *ViewModel) Refreshed() time.Time {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.refreshed
}

// Flash holds a transient status line message.
type Flash struct {
	mu      sync.RWMutex
	message string
	expires time.Time
}

// Set stores a flash message that expires after d.
func (f *Flash) Set(msg string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = msg
	f.expires = time.Now().Add(d)
}

// Get returns the current flash message, or empty if expired.
func (f *Flash) Get() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if time.Now().After(f.expires) {
		return ""
	}
	return f.message
}
