package adapter

import (
	"regexp"

	"github.com/seamus/ptysup/internal/core"
)

// NewClaudeCodeAdapter is a reference adapter for Anthropic's Claude Code
// CLI. Per spec §1, only the adapter *contract* is in scope; this body is
// an illustrative reference grounded in the retrieved corpus's own
// Claude-session supervisors (stream-json launch flags, trust-dialog and
// permission-prompt handling), not a byte-exact reproduction of the CLI's
// current banners.
func NewClaudeCodeAdapter() Adapter {
	return New(Config{
		Type:        "claude-code",
		DisplayName: "Claude Code",
		Command:     "claude",
		ArgsFn: func(cfg core.SpawnConfig) []string {
			return []string{}
		},
		UsesTUIMenus: true,
		LoginPatterns: []LoginPattern{
			{
				Pattern:      regexp.MustCompile(`(?i)browser.*(log ?in|authenticate)|visit.*to (log ?in|authenticate)`),
				Method:       "oauth_browser",
				URLPattern:   regexp.MustCompile(`https?://\S+`),
				Instructions: "Open the printed URL to complete browser login.",
			},
			{
				Pattern:      regexp.MustCompile(`(?i)anthropic[_ ]api[_ ]key`),
				Method:       "api_key",
				Instructions: "Set ANTHROPIC_API_KEY and restart.",
			},
		},
		ReadyIndicators: []*regexp.Regexp{
			regexp.MustCompile(`(?i)>\s*$`),
			regexp.MustCompile(`Welcome to Claude Code`),
		},
		TaskCompleteInd: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^\s*>\s*$`),
		},
		BlockingPrompts: []BlockingPromptSpec{
			{
				Pattern:        regexp.MustCompile(`(?i)do you trust the (files|contents) in this (folder|directory)`),
				Type:           core.PromptPermission,
				CanAutoRespond: false,
			},
			{
				Pattern:        regexp.MustCompile(`(?i)allow .* to run`),
				Type:           core.PromptPermission,
				CanAutoRespond: false,
			},
		},
		Rules: []core.AutoResponseRule{},
	})
}
