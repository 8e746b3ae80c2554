package session

import "github.com/stemsi/exstem-portal/internal/model"

// EventType tags what changed.
type EventType string

const (
	EventState EventType = "state"
	EventTick  EventType = "tick"
)

// Event carries a snapshot taken right after the change.
type Event struct {
	Type     EventType             `json:"type"`
	Snapshot model.SessionSnapshot `json:"snapshot"`
}

const subscriberBuffer = 32

// Subscribe returns a stream of session events and a function that ends the
// subscription. Slow subscribers miss events rather than block the session.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	var once bool
	return ch, func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if once {
			return
		}
		once = true
		delete(c.subs, id)
		close(ch)
	}
}

func (c *Controller) emit(t EventType) {
	evt := Event{Type: t, Snapshot: c.Snapshot()}

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
