package connmgr

// EventType distinguishes the two lifecycle events the Connection Manager
// publishes to subscribers (the Channel Service purges membership on
// disconnect).
type EventType int

const (
	EventConnected EventType = iota
	EventDisconnected
)

// Event describes a peer's authentication or disconnection, published
// after the Connection Manager's own state (maps, Registry) is already
// updated. Subscribers are called synchronously and must not block.
type Event struct {
	Type    EventType
	MudName string
	Host    string
}

// Subscribe registers fn to receive every future Connected/Disconnected
// event. Grounded on the teacher's explicit handler-registration pattern in
// internal/events (a slice of funcs invoked in order) rather than a global
// pub/sub bus, so subscribers such as the Channel Service wire themselves in
// at startup instead of discovering topics at runtime.
func (m *Manager) Subscribe(fn func(Event)) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

func (m *Manager) publish(evt Event) {
	m.subMu.RLock()
	subs := make([]func(Event), len(m.subscribers))
	copy(subs, m.subscribers)
	m.subMu.RUnlock()

	for _, fn := range subs {
		fn(evt)
	}
}
