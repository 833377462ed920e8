package adapter

import (
	"regexp"

	"github.com/seamus/ptysup/internal/core"
)

// shellReadyPattern matches a trailing shell prompt: a short run of
// non-whitespace ending in $, #, or > optionally followed by one whitespace
// character, at the end of the buffer. This is intentionally generic (no specific
// shell's PS1 is assumed) since the shell adapter has no proprietary
// output to keep out of scope (unlike the CLI adapters below).
var shellReadyPattern = regexp.MustCompile(`[^\s]*[\$#>]\s?$`)

// NewShellAdapter returns the reference adapter for a plain interactive
// shell (spec §8 scenario S1 "Shell smoke").
func NewShellAdapter() Adapter {
	return New(Config{
		Type:        "shell",
		DisplayName: "Shell",
		Command:     "/bin/sh",
		Args:        []string{"-i"},
		ReadyIndicators: []*regexp.Regexp{
			shellReadyPattern,
		},
		ExitIndicators: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^exit$`),
		},
		Rules: []core.AutoResponseRule{},
		ParseFn: func(buffer string) (*core.ParsedOutput, bool) {
			if buffer == "" {
				return nil, false
			}
			// A line of output followed by a settled prompt is a
			// complete message (spec S1: message{content:"hi",
			// isComplete:true}).
			loc := shellReadyPattern.FindStringIndex(buffer)
			if loc == nil {
				return nil, false
			}
			content := buffer[:loc[0]]
			if content == "" {
				return nil, false
			}
			return &core.ParsedOutput{
				Type:       core.MessageResponse,
				Content:    trimTrailingNewline(content),
				IsComplete: true,
			}, true
		},
		ReadySettleMs: 100,
	})
}

func trimTrailingNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
