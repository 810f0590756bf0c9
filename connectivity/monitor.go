// Package connectivity tracks whether the backend is reachable and broadcasts
// online/offline transitions to subscribers.
package connectivity

import "sync"

// Monitor holds the current connectivity state. Transitions are delivered to
// every subscriber; repeated SetOnline calls with the same value are ignored.
type Monitor struct {
	mu          sync.Mutex
	online      bool
	subscribers map[int]chan bool
	nextID      int
}

func NewMonitor(online bool) *Monitor {
	return &Monitor{
		online:      online,
		subscribers: make(map[int]chan bool),
	}
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records the state and reports whether it changed.
func (m *Monitor) SetOnline(online bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.online == online {
		return false
	}
	m.online = online
	for _, ch := range m.subscribers {
		// Subscribers only care about the latest state; drop a stale pending one.
		select {
		case ch <- online:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- online
		}
	}
	return true
}

// Subscribe returns a channel of transitions and a function that removes the
// subscription and closes the channel.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	ch := make(chan bool, 1)
	m.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subscribers, id)
			close(ch)
		})
	}
}
