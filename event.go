package fsm

// Event carries data through the state machine
type Event struct {
	ID      EventID
	Payload any // Optional input for actions and async jobs
}

// NewEvent builds an event with an optional payload
func NewEvent(id EventID, payload ...any) Event {
	ev := Event{ID: id}
	if len(payload) > 0 {
		ev.Payload = payload[0]
	}
	return ev
}
