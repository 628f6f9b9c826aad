package property

import (
	"sync/atomic"
	"time"

	"github.com/petermattis/goid"
	"github.com/sasha-s/go-deadlock"
)

func init() {
	// Detection is opt-in through ConfigureDeadlockDetection.
	deadlock.Opts.Disable = true
}

// ConfigureDeadlockDetection switches go-deadlock's detector on or off for
// every configuration and acquisition lock. Call it once at startup,
// before objects are shared between goroutines.
//
// Lock-order detection stays off because parent and child objects may lock
// each other in either order; only wait timeouts are reported.
//
// Parameters:
//   - enabled: report locks waited on longer than timeout
//   - timeout: how long a lock may be waited on before it is reported; zero keeps the library default
func ConfigureDeadlockDetection(enabled bool, timeout time.Duration) {
	deadlock.Opts.Disable = !enabled
	deadlock.Opts.DisableLockOrderDetection = true
	if timeout > 0 {
		deadlock.Opts.DeadlockTimeout = timeout
	}
}

// Unlocker releases a lock returned by ConfigLock or AcquisitionLock.
type Unlocker interface {
	Unlock()
}

// ReentrantMutex is a mutex the owning goroutine may lock again without
// blocking. Every Lock must be paired with an Unlock on the same goroutine.
type ReentrantMutex struct {
	mu    deadlock.Mutex
	held  atomic.Bool
	owner atomic.Int64
	depth int
}

// currentID returns the calling goroutine's ID. Runtime IDs start at 1; a
// zero means goid cannot read this runtime's g struct, and ownership could
// not be told apart.
func currentID() int64 {
	id := goid.Get()
	if id <= 0 {
		panic("property: goroutine id unavailable on this runtime")
	}
	return id
}

func (m *ReentrantMutex) ownedBy(id int64) bool {
	return m.held.Load() && m.owner.Load() == id
}

// Lock acquires m, or deepens the hold if the calling goroutine owns it.
func (m *ReentrantMutex) Lock() {
	id := currentID()
	if m.ownedBy(id) {
		m.depth++
		return
	}
	m.mu.Lock()
	m.owner.Store(id)
	m.held.Store(true)
	m.depth = 1
}

// Unlock releases one level of the hold. It panics if the calling
// goroutine does not own m.
func (m *ReentrantMutex) Unlock() {
	if !m.ownedBy(currentID()) {
		panic("property: unlock of reentrant mutex not held by this goroutine")
	}
	m.depth--
	if m.depth == 0 {
		m.held.Store(false)
		m.owner.Store(0)
		m.mu.Unlock()
	}
}

// HeldByCurrent reports whether the calling goroutine owns m.
func (m *ReentrantMutex) HeldByCurrent() bool {
	return m.ownedBy(currentID())
}
