// Package core holds the data model shared by the session engine, the
// manager, and the worker protocol: spawn configuration, session handles,
// the status state machine, auto-response rules, and the event types the
// engine emits.
package core

import (
	"regexp"
	"time"
)

// SessionStatus is the finite state machine described in spec §3. Only the
// transitions enumerated there are legal; internal/session is the sole
// writer of a session's status and does not check writes against that list.
type SessionStatus string

const (
	StatusPending        SessionStatus = "pending"
	StatusStarting       SessionStatus = "starting"
	StatusAuthenticating SessionStatus = "authenticating"
	StatusReady          SessionStatus = "ready"
	StatusBusy           SessionStatus = "busy"
	StatusStopping       SessionStatus = "stopping"
	StatusStopped        SessionStatus = "stopped"
	StatusError          SessionStatus = "error"
)

// RuleOverride is the value side of SpawnConfig.RuleOverrides: either a
// disable (Disable=true, rest ignored) or a shallow patch merged over the
// matching adapter rule.
type RuleOverride struct {
	Disable      bool
	Response     *string
	ResponseType *string
	Keys         []string
	Safe         *bool
	Once         *bool
}

// SpawnConfig is the immutable request passed to Manager.Spawn.
type SpawnConfig struct {
	ID       string // optional; auto-generated with uuid when empty
	Name     string
	Type     string // adapter key
	WorkDir  string
	Env      map[string]string
	Cols     int // default 120
	Rows     int // default 40
	Trace    bool

	StallTimeoutMs    *int // override of the manager's configured default
	ReadySettleMs     *int // override of the adapter/engine default (100ms)
	RuleOverrides     map[string]RuleOverride // keyed by pattern source
	MinVersion        string                  // optional semver constraint, e.g. ">=1.2.0"
}

// SessionHandle is an immutable value-copy snapshot of a Session.
type SessionHandle struct {
	ID             string
	Name           string
	Type           string
	Adapter        string // adapter display name
	Status         SessionStatus
	PID            *int
	StartedAt      *time.Time
	LastActivityAt *time.Time
	Error          string
	ExitCode       *int

	MinVersionSatisfied *bool
}

// MessageDirection is inbound (to the child) or outbound (from the child).
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// MessageType enumerates the kinds of SessionMessage.
type MessageType string

const (
	MessageTask     MessageType = "task"
	MessageResponse MessageType = "response"
	MessageQuestion MessageType = "question"
	MessageAnswer   MessageType = "answer"
	MessageStatus   MessageType = "status"
	MessageError    MessageType = "error"
)

// SessionMessage is a single logical message flowing in or out of a session.
type SessionMessage struct {
	ID        string
	SessionID string
	Direction MessageDirection
	Type      MessageType
	Content   string
	Metadata  map[string]any
	Timestamp time.Time
}

// BlockingPromptType is the closed enum from spec §3.
type BlockingPromptType string

const (
	PromptLogin          BlockingPromptType = "login"
	PromptUpdate         BlockingPromptType = "update"
	PromptConfig         BlockingPromptType = "config"
	PromptTOS            BlockingPromptType = "tos"
	PromptModelSelect    BlockingPromptType = "model_select"
	PromptProjectSelect  BlockingPromptType = "project_select"
	PromptPermission     BlockingPromptType = "permission"
	PromptStallClassified BlockingPromptType = "stall_classified"
	PromptUnknown        BlockingPromptType = "unknown"
)

// ResponseType distinguishes how an AutoResponseRule's response is delivered.
type ResponseType string

const (
	ResponseText ResponseType = "text"
	ResponseKeys ResponseType = "keys"
)

// AutoResponseRule is a compiled pattern plus the action to take on a match.
type AutoResponseRule struct {
	Pattern      *regexp.Regexp
	PatternSrc   string // original source text, kept even if Pattern.String() would suffice
	Flags        string // e.g. "i" — folded into Pattern at compile time, kept for identity/serialization
	Type         BlockingPromptType
	Response     string
	ResponseType ResponseType
	Keys         []string
	Description  string
	Safe         bool // default true
	Once         bool
}

// Key returns the once-rule identity: pattern source + flags (design notes §9).
func (r AutoResponseRule) Key() string {
	return r.PatternSrc + ":" + r.Flags
}

// StallState is the classifier's verdict in StallClassification.
type StallState string

const (
	StallWaitingForInput StallState = "waiting_for_input"
	StallStillWorking    StallState = "still_working"
	StallTaskComplete    StallState = "task_complete"
	StallError           StallState = "error"
)

// StallClassification is the result of the caller-supplied classify hook.
type StallClassification struct {
	State             StallState
	Prompt            string
	SuggestedResponse string // "keys:a,b,c" sentinel, or literal text
}

// LoginInfo is returned by Adapter.DetectLogin.
type LoginInfo struct {
	Required     bool
	Method       string // api_key, device_code, oauth_browser, unknown
	URL          string
	DeviceCode   string
	Instructions string
}

// BlockingPromptInfo is returned by Adapter.DetectBlockingPrompt.
type BlockingPromptInfo struct {
	Detected         bool
	Type             BlockingPromptType
	Prompt           string
	Options          []string
	SuggestedResponse string
	CanAutoRespond   bool
	Instructions     string
	URL              string
}

// ExitInfo is returned by Adapter.DetectExit.
type ExitInfo struct {
	Exited bool
	Code   *int
	Error  string
}

// ParsedOutput is returned by Adapter.ParseOutput.
type ParsedOutput struct {
	Type       MessageType
	Content    string
	IsComplete bool
	IsQuestion bool
	Metadata   map[string]any
}
