package ledger

import (
	"log"
	"sync"

	"papertradingv1/internal/model"
)

// ModeManager tracks whether the ledger is in demo (paper) or live
// mode. Transitions are idempotent: re-entering the current state is a
// no-op success. The initial state is demo.
type ModeManager struct {
	mu   sync.RWMutex
	mode model.Mode
}

// NewModeManager creates a manager in demo mode.
func NewModeManager() *ModeManager {
	return &ModeManager{mode: model.ModeDemo}
}

// Mode returns the current trading mode.
func (m *ModeManager) Mode() model.Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// EnableDemoMode switches to demo mode. Returns true if the mode changed.
func (m *ModeManager) EnableDemoMode() bool {
	return m.set(model.ModeDemo)
}

// EnableLiveMode switches to live mode. While live, trade execution is
// rejected with ErrModeMismatch. Returns true if the mode changed.
func (m *ModeManager) EnableLiveMode() bool {
	return m.set(model.ModeLive)
}

func (m *ModeManager) set(mode model.Mode) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == mode {
		return false
	}
	m.mode = mode
	log.Printf("[ledger] trading mode set to %s", mode)
	return true
}

// restore applies a persisted mode without logging a transition.
func (m *ModeManager) restore(mode model.Mode) {
	if mode != model.ModeDemo && mode != model.ModeLive {
		return // keep the demo default for unknown values
	}
	m.mu.Lock()
	m.mode = mode
	m.mu.Unlock()
}
