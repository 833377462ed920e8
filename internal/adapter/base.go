package adapter

import (
	"regexp"
	"strings"

	"github.com/seamus/ptysup/internal/core"
)

// Base implements the parts of the Adapter contract that have a sensible
// generic default (spec §4.2: "default implementation in base adapter
// covers generic [y/n], numbered menus, press enter, trust/permission, and
// a trailing-? fallback"; "default recognises Process exited with code N
// and command not found"). Concrete adapters embed Base and override only
// what they need.
type Base struct {
	Type        string
	Name        string
	Rules       []core.AutoResponseRule
	TUIMenus    bool
	SettleMs    int
	HasSettleMs bool
}

func (b Base) AdapterType() string { return b.Type }
func (b Base) DisplayName() string { return b.Name }

func (b Base) AutoResponseRules() []core.AutoResponseRule { return b.Rules }
func (b Base) UsesTUIMenus() bool                          { return b.TUIMenus }
func (b Base) ReadySettleMs() (int, bool)                  { return b.SettleMs, b.HasSettleMs }

func (b Base) GetEnv(cfg core.SpawnConfig) map[string]string { return nil }

func (b Base) DetectTaskComplete(buffer string) (bool, bool) { return false, false }
func (b Base) DetectLoading(buffer string) (bool, bool)      { return false, false }
func (b Base) DetectVersion(buffer string) (string, bool)    { return "", false }

func (b Base) FormatInput(message string) string { return message }
func (b Base) PromptPattern() string             { return "" }

func (b Base) ParseOutput(buffer string) (*core.ParsedOutput, bool) { return nil, false }

func (b Base) DetectLogin(buffer string) core.LoginInfo { return core.LoginInfo{} }

var (
	yesNoPrompt    = regexp.MustCompile(`(?i)\(y/n\)|\[y/n\]|\(yes/no\)`)
	numberedMenu   = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+\S`)
	pressEnter     = regexp.MustCompile(`(?i)press\s+enter\s+to\s+continue`)
	trustPrompt    = regexp.MustCompile(`(?i)do you trust|trust the (contents|files|folder)`)
	permissionWord = regexp.MustCompile(`(?i)\ballow\b.*\?|permission to|grant access`)
	trailingQ      = regexp.MustCompile(`\?\s*$`)
)

// DetectBlockingPrompt is the generic fallback shared by every adapter
// unless it overrides this method with CLI-specific patterns.
func (b Base) DetectBlockingPrompt(buffer string) core.BlockingPromptInfo {
	trimmed := strings.TrimRight(buffer, " \t\r\n")
	tail := trimmed
	if len(tail) > 400 {
		tail = tail[len(tail)-400:]
	}

	switch {
	case trustPrompt.MatchString(tail):
		return core.BlockingPromptInfo{Detected: true, Type: core.PromptPermission, Prompt: tail, CanAutoRespond: false}
	case yesNoPrompt.MatchString(tail):
		return core.BlockingPromptInfo{Detected: true, Type: core.PromptUnknown, Prompt: tail, CanAutoRespond: false}
	case pressEnter.MatchString(tail):
		return core.BlockingPromptInfo{Detected: true, Type: core.PromptUnknown, Prompt: tail, CanAutoRespond: true, SuggestedResponse: ""}
	case permissionWord.MatchString(tail):
		return core.BlockingPromptInfo{Detected: true, Type: core.PromptPermission, Prompt: tail, CanAutoRespond: false}
	case numberedMenu.MatchString(tail):
		return core.BlockingPromptInfo{Detected: true, Type: core.PromptUnknown, Prompt: tail, Options: extractNumberedOptions(tail), CanAutoRespond: false}
	case trailingQ.MatchString(tail) && len(tail) > 0:
		return core.BlockingPromptInfo{Detected: true, Type: core.PromptUnknown, Prompt: tail, CanAutoRespond: false}
	default:
		return core.BlockingPromptInfo{Detected: false}
	}
}

func extractNumberedOptions(s string) []string {
	lines := strings.Split(s, "\n")
	var opts []string
	for _, l := range lines {
		if numberedMenu.MatchString(l) {
			opts = append(opts, strings.TrimSpace(l))
		}
	}
	return opts
}

var (
	exitedWithCode  = regexp.MustCompile(`[Pp]rocess exited with code (-?\d+)`)
	commandNotFound = regexp.MustCompile(`(?i)command not found`)
)

// DetectExit is the generic fallback recognizing "Process exited with code
// N" and "command not found" (spec §4.2).
func (b Base) DetectExit(buffer string) core.ExitInfo {
	if m := exitedWithCode.FindStringSubmatch(buffer); m != nil {
		code := atoiSafe(m[1])
		return core.ExitInfo{Exited: true, Code: &code}
	}
	if commandNotFound.MatchString(buffer) {
		return core.ExitInfo{Exited: true, Error: "command not found"}
	}
	return core.ExitInfo{}
}

func atoiSafe(s string) int {
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n
}
