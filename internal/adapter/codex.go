package adapter

import (
	"regexp"

	"github.com/seamus/ptysup/internal/core"
)

// NewCodexAdapter is an illustrative reference adapter for OpenAI's Codex
// CLI; see the package doc on NewClaudeCodeAdapter for the scope note
// shared by all four CLI adapters.
func NewCodexAdapter() Adapter {
	return New(Config{
		Type:         "codex",
		DisplayName:  "Codex",
		Command:      "codex",
		UsesTUIMenus: true,
		LoginPatterns: []LoginPattern{
			{
				Pattern:      regexp.MustCompile(`(?i)device code`),
				Method:       "device_code",
				DeviceCodeRe: regexp.MustCompile(`(?i)device code:?\s*([A-Z0-9-]+)`),
				Instructions: "Enter the device code at the printed URL.",
			},
		},
		ReadyIndicators: []*regexp.Regexp{
			regexp.MustCompile(`(?i)codex>\s*$`),
		},
		BlockingPrompts: []BlockingPromptSpec{
			{
				Pattern:        regexp.MustCompile(`(?i)approve this command\?`),
				Type:           core.PromptPermission,
				CanAutoRespond: false,
			},
		},
		Rules: []core.AutoResponseRule{},
	})
}
