package events

import "sync"

var (
	globalMu  sync.RWMutex
	globalBus EventBus
)

// SetGlobalEventBus installs the process-wide event bus. Called once at
// startup before modules initialize.
func SetGlobalEventBus(bus EventBus) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalBus = bus
}

// GetGlobalEventBus returns the process-wide event bus, or nil before
// startup wiring.
func GetGlobalEventBus() EventBus {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalBus
}
