package frame

import "sync"

// ResizeListener is notified with the new extent during swapchain recreation,
// before the old swapchain state is destroyed. Listeners typically re-stage
// the command recording for the new dimensions.
//
// Listeners run one after another on a goroutine of their own while the
// recreating goroutine holds the render lock. They may call SaveRecording,
// Rebuild and the read-only accessors of the Scheduler. DrawFrame, Recreate
// and Destroy wait for the render lock and must not be called from a
// listener.
type ResizeListener interface {
	OnResize(extent Extent)
}

// ListenerFunc adapts a function to a ResizeListener.
type ListenerFunc func(extent Extent)

func (f ListenerFunc) OnResize(extent Extent) {
	f(extent)
}

type listeners struct {
	mu   sync.Mutex
	next int
	set  map[int]ResizeListener
	// order keeps notification deterministic
	order []int
}

func (l *listeners) add(r ResizeListener) (remove func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.set == nil {
		l.set = make(map[int]ResizeListener)
	}
	id := l.next
	l.next++
	l.set[id] = r
	l.order = append(l.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.set, id)
			for i, o := range l.order {
				if o == id {
					l.order = append(l.order[:i], l.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (l *listeners) snapshot() []ResizeListener {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ResizeListener, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.set[id])
	}
	return out
}
