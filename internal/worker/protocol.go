package worker

// ruleDTO is the wire shape of core.AutoResponseRule spec §4.5 defines:
// {pattern, flags?, type, response, responseType?, keys?, description, safe?, once?}.
type ruleDTO struct {
	Pattern      string   `json:"pattern"`
	Flags        string   `json:"flags,omitempty"`
	Type         string   `json:"type"`
	Response     string   `json:"response"`
	ResponseType string   `json:"responseType,omitempty"`
	Keys         []string `json:"keys,omitempty"`
	Description  string   `json:"description,omitempty"`
	Safe         *bool    `json:"safe,omitempty"`
	Once         *bool    `json:"once,omitempty"`
}

// classifyResultDTO is the wire shape of core.StallClassification for the
// classifyStallResult command.
type classifyResultDTO struct {
	State             string `json:"state"`
	Prompt            string `json:"prompt,omitempty"`
	SuggestedResponse string `json:"suggestedResponse,omitempty"`
}

// inbound is every field any worker command verb may carry (spec §4.5). A
// single loosely-typed struct mirrors the JSON the protocol actually puts
// on the wire rather than one type per verb, since the command dispatch
// below reads only the fields relevant to its own verb.
type inbound struct {
	Cmd string `json:"cmd"`
	ID  string `json:"id,omitempty"`

	// spawn
	Type       string            `json:"type,omitempty"`
	Name       string            `json:"name,omitempty"`
	WorkDir    string            `json:"workDir,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	Cols       int               `json:"cols,omitempty"`
	Rows       int               `json:"rows,omitempty"`
	MinVersion string            `json:"minVersion,omitempty"`

	// send
	Message string `json:"message,omitempty"`

	// sendKeys / selectMenuOption
	Keys []string `json:"keys,omitempty"`
	N    int      `json:"n,omitempty"`

	// paste
	Text      string `json:"text,omitempty"`
	Bracketed *bool  `json:"bracketed,omitempty"`

	// resize
	ResizeCols int `json:"resizeCols,omitempty"`
	ResizeRows int `json:"resizeRows,omitempty"`

	// kill / stop
	Signal    string `json:"signal,omitempty"`
	Force     bool   `json:"force,omitempty"`
	TimeoutMs int    `json:"timeoutMs,omitempty"`

	// list
	StatusFilter string `json:"statusFilter,omitempty"`
	TypeFilter   string `json:"typeFilter,omitempty"`

	// registerAdapters
	Modules []string `json:"modules,omitempty"`

	// addRule / removeRule / setRules / getRules
	Rule       *ruleDTO  `json:"rule,omitempty"`
	PatternSrc string    `json:"patternSrc,omitempty"`
	Rules      []ruleDTO `json:"rules,omitempty"`

	// configureStallDetection
	Enabled        *bool `json:"enabled,omitempty"`
	StallTimeoutMs int64 `json:"stallTimeoutMs,omitempty"`

	// classifyStallResult
	Result *classifyResultDTO `json:"result,omitempty"`

	// logs
	Tail int `json:"tail,omitempty"`
}

// ack is the envelope every command receives exactly once (spec §4.5).
type ack struct {
	Event   string `json:"event"`
	Cmd     string `json:"cmd"`
	ID      string `json:"id,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// sessionDTO is the wire shape of core.SessionHandle.
type sessionDTO struct {
	ID             string  `json:"id"`
	Name           string  `json:"name,omitempty"`
	Type           string  `json:"type"`
	Adapter        string  `json:"adapter"`
	Status         string  `json:"status"`
	PID            *int    `json:"pid,omitempty"`
	StartedAt      *string `json:"startedAt,omitempty"`
	LastActivityAt *string `json:"lastActivityAt,omitempty"`
	Error          string  `json:"error,omitempty"`
	ExitCode       *int    `json:"exitCode,omitempty"`
}

type listReply struct {
	Event    string       `json:"event"`
	Sessions []sessionDTO `json:"sessions"`
}

type rulesReply struct {
	Event string    `json:"event"`
	ID    string    `json:"id"`
	Rules []ruleDTO `json:"rules"`
}

type readyEvent struct {
	Event string `json:"event"`
}

// outbound is the shape every forwarded Session/Manager event takes on the
// wire (spec §4.5 "Forwarded events"); unused fields are omitted.
type outbound struct {
	Event           string   `json:"event"`
	ID              string   `json:"id"`
	Data            string   `json:"data,omitempty"`
	Encoding        string   `json:"encoding,omitempty"`
	ExitCode        *int     `json:"exitCode,omitempty"`
	Reason          string   `json:"reason,omitempty"`
	Message         string   `json:"message,omitempty"`
	Prompt          string   `json:"prompt,omitempty"`
	PromptType      string   `json:"promptType,omitempty"`
	CanAutoRespond  bool     `json:"canAutoRespond,omitempty"`
	AutoResponded   bool     `json:"autoResponded,omitempty"`
	Options         []string `json:"options,omitempty"`
	LoginMethod     string   `json:"loginMethod,omitempty"`
	LoginURL        string   `json:"loginUrl,omitempty"`
	RecentOutput    string   `json:"recentOutput,omitempty"`
	StallDurationMs int64    `json:"stallDurationMs,omitempty"`
	MessageType     string   `json:"messageType,omitempty"`
	Content         string   `json:"content,omitempty"`
}
