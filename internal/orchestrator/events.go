package orchestrator

// EventKind identifies an orchestration event forwarded to the client.
type EventKind int

const (
	// EventText is an incremental assistant text delta.
	EventText EventKind = iota
	// EventTool announces a tool invocation by name.
	EventTool
	// EventStatus carries transient progress notes (rate-limit waits,
	// cancellation).
	EventStatus
	// EventClear tells the client to discard the partial text of the
	// current round; a retried round re-streams from the start.
	EventClear
)

// Event is one orchestration event in emission order.
type Event struct {
	Kind EventKind
	Text string
	Tool string
}

// Sink receives orchestration events. A nil Sink discards them.
type Sink func(Event)

func (s Sink) emit(e Event) {
	if s != nil {
		s(e)
	}
}
