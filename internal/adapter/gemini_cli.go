package adapter

import (
	"regexp"

	"github.com/seamus/ptysup/internal/core"
)

// NewGeminiCLIAdapter is an illustrative reference adapter for Google's
// Gemini CLI; see the package doc on NewClaudeCodeAdapter for the scope
// note shared by all four CLI adapters.
func NewGeminiCLIAdapter() Adapter {
	return New(Config{
		Type:        "gemini-cli",
		DisplayName: "Gemini CLI",
		Command:     "gemini",
		UsesTUIMenus: true,
		LoginPatterns: []LoginPattern{
			{
				Pattern:      regexp.MustCompile(`(?i)sign in with google|visit the following url`),
				Method:       "oauth_browser",
				URLPattern:   regexp.MustCompile(`https?://\S+`),
				Instructions: "Open the printed URL to sign in with Google.",
			},
		},
		ReadyIndicators: []*regexp.Regexp{
			regexp.MustCompile(`(?i)gemini>\s*$`),
		},
		BlockingPrompts: []BlockingPromptSpec{
			{
				Pattern:        regexp.MustCompile(`(?i)select.*model`),
				Type:           core.PromptModelSelect,
				CanAutoRespond: false,
			},
		},
		Rules: []core.AutoResponseRule{},
	})
}
