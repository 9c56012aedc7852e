package optin

import (
	"context"
	"sync"
)

var (
	defaultMu      sync.Mutex
	defaultManager *Manager
)

// Default returns the shared Manager, creating one over a MemoryStore on
// first use. Applications should install their own with SetDefault during
// startup.
func Default() *Manager {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultManager == nil {
		defaultManager = NewManager(NewMemoryStore())
	}
	return defaultManager
}

// SetDefault replaces the shared Manager. Passing nil resets it so the
// next Default call creates a fresh one.
func SetDefault(m *Manager) {
	defaultMu.Lock()
	defaultManager = m
	defaultMu.Unlock()
}

// RegisterAgent registers an agent on the shared Manager.
func RegisterAgent(name string, opts ...AgentOption) Agent {
	return Default().RegisterAgent(name, opts...)
}

// StartSession starts a session on the shared Manager.
func StartSession(ctx context.Context, agentName string, properties map[string]any) (*Entry, error) {
	return Default().StartSession(ctx, agentName, properties)
}

// VerifyToken verifies a token on the shared Manager.
func VerifyToken(ctx context.Context, token string) (bool, error) {
	return Default().VerifyToken(ctx, token)
}
