// Package adapter defines the per-CLI policy contract (spec §4.2): how to
// launch a CLI and how to interpret its output. Only the contract and a
// base/default implementation are in scope here — concrete per-CLI bodies
// (regex tuned to a specific program's exact banners) are illustrative
// reference adapters, not a claim of completeness for any real CLI.
package adapter

import "github.com/seamus/ptysup/internal/core"

// Adapter is the per-CLI strategy object the Session drives against.
type Adapter interface {
	AdapterType() string
	DisplayName() string

	AutoResponseRules() []core.AutoResponseRule
	UsesTUIMenus() bool
	ReadySettleMs() (ms int, ok bool)

	GetCommand(cfg core.SpawnConfig) string
	GetArgs(cfg core.SpawnConfig) []string
	GetEnv(cfg core.SpawnConfig) map[string]string

	DetectLogin(buffer string) core.LoginInfo
	DetectReady(buffer string) bool
	DetectTaskComplete(buffer string) (detected bool, ok bool) // ok=false when unimplemented (fallback to DetectReady)
	DetectLoading(buffer string) (loading bool, ok bool)
	DetectBlockingPrompt(buffer string) core.BlockingPromptInfo
	DetectExit(buffer string) core.ExitInfo
	DetectVersion(buffer string) (version string, ok bool)

	ParseOutput(buffer string) (*core.ParsedOutput, bool)
	FormatInput(message string) string
	PromptPattern() string
}
