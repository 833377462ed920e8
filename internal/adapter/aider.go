package adapter

import (
	"regexp"

	"github.com/seamus/ptysup/internal/core"
)

// NewAiderAdapter is an illustrative reference adapter for Aider; see the
// package doc on NewClaudeCodeAdapter for the scope note shared by all
// four CLI adapters.
func NewAiderAdapter() Adapter {
	return New(Config{
		Type:        "aider",
		DisplayName: "Aider",
		Command:     "aider",
		LoginPatterns: []LoginPattern{
			{
				Pattern:      regexp.MustCompile(`(?i)api key`),
				Method:       "api_key",
				Instructions: "Set the provider API key env var and restart.",
			},
		},
		ReadyIndicators: []*regexp.Regexp{
			regexp.MustCompile(`(?m)^>\s?$`),
		},
		BlockingPrompts: []BlockingPromptSpec{
			{
				Pattern:           regexp.MustCompile(`(?i)apply edits\?.*\(y\)`),
				Type:              core.PromptUnknown,
				CanAutoRespond:    true,
				SuggestedResponse: "y",
			},
		},
		Rules: []core.AutoResponseRule{},
	})
}
