package core

// EventKind enumerates every event a Session (and, forwarded, a Manager or
// Worker) can emit — spec §4.1 "Events emitted" plus status_changed and
// session_stopped. Nothing in this module publishes session_stopped; the
// worker only names it in its wire mapping.
type EventKind string

const (
	EventOutput         EventKind = "output"
	EventReady          EventKind = "ready"
	EventLoginRequired  EventKind = "login_required"
	EventAuthRequired   EventKind = "auth_required"
	EventBlockingPrompt EventKind = "blocking_prompt"
	EventMessage        EventKind = "message"
	EventQuestion       EventKind = "question"
	EventExit           EventKind = "exit"
	EventError          EventKind = "error"
	EventStallDetected  EventKind = "stall_detected"
	EventStatusChanged  EventKind = "status_changed"
	EventTaskComplete   EventKind = "task_complete"
	EventSpawned        EventKind = "spawned"
	EventSessionStopped EventKind = "session_stopped"
)

// Event is the single typed envelope published on a Session's event stream
// and fanned out by the Manager. Only the fields relevant to Kind are set;
// this mirrors a tagged union without needing Go generics/interfaces per
// event, which keeps the worker's JSON encoding straightforward.
type Event struct {
	Kind      EventKind
	SessionID string

	// EventOutput
	Data []byte

	// EventReady / EventTaskComplete / EventExit / EventSessionStopped
	ExitCode *int
	Reason   string

	// EventLoginRequired / EventAuthRequired
	Login LoginInfo

	// EventBlockingPrompt
	Prompt         BlockingPromptInfo
	AutoResponded  bool
	CanAutoRespond bool

	// EventMessage / EventQuestion
	Message SessionMessage

	// EventError
	Err error

	// EventStallDetected
	RecentOutput    string
	StallDurationMs int64

	// EventStatusChanged
	NewStatus SessionStatus

	// EventSpawned
	Handle SessionHandle
}
