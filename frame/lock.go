package frame

import "sync"

// RenderLock serializes every mutation of swapchain-dependent state: drawing a
// frame, recreating the swapchain and installing freshly baked command
// buffers. It is not reentrant. Code paths that recreate from inside a draw
// already hold the lock and call the unexported *Locked variants, and calls
// made by resize listeners are forwarded to the holder instead of locking.
type RenderLock struct {
	mu sync.Mutex
}

func (l *RenderLock) Lock() {
	l.mu.Lock()
}

func (l *RenderLock) Unlock() {
	l.mu.Unlock()
}

// Do runs fn with the lock held.
func (l *RenderLock) Do(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn()
}
