package adapter

import (
	"regexp"

	"github.com/seamus/ptysup/internal/core"
)

// ArgsFunc/EnvFunc let a declarative Config compute launch arguments/env
// from the spawn config instead of a static slice, for adapters whose
// command line depends on the request (e.g. --cwd, --model flags).
type ArgsFunc func(cfg core.SpawnConfig) []string
type EnvFunc func(cfg core.SpawnConfig) map[string]string

// LoginPattern pairs a detection regex with the LoginInfo to report,
// including an optional extractor for device codes/URLs embedded in the
// matched text.
type LoginPattern struct {
	Pattern      *regexp.Regexp
	Method       string
	URLPattern   *regexp.Regexp
	DeviceCodeRe *regexp.Regexp
	Instructions string
}

// BlockingPromptSpec is one declarative entry in a Config's prompt table.
type BlockingPromptSpec struct {
	Pattern           *regexp.Regexp
	Type              core.BlockingPromptType
	CanAutoRespond    bool
	SuggestedResponse string
	Instructions      string
}

// Config is the declarative adapter description consumed by New. It is
// the "factory constructs an adapter from a declarative config" mechanism
// of spec §4.2.
type Config struct {
	Type        string
	DisplayName string

	Command string
	Args    []string
	ArgsFn  ArgsFunc
	EnvFn   EnvFunc

	LoginPatterns    []LoginPattern
	ReadyIndicators  []*regexp.Regexp
	TaskCompleteInd  []*regexp.Regexp
	LoadingIndicator *regexp.Regexp
	ExitIndicators   []*regexp.Regexp
	VersionPattern   *regexp.Regexp

	BlockingPrompts []BlockingPromptSpec
	Rules           []core.AutoResponseRule
	UsesTUIMenus    bool
	ReadySettleMs   int

	ParseFn     func(buffer string) (*core.ParsedOutput, bool)
	FormatFn    func(message string) string
	PromptRegex string
}

// configured is the Adapter built by New from a Config.
type configured struct {
	Base
	cfg Config
}

// New builds an Adapter from a declarative Config (spec §4.2 "A factory
// constructs an adapter from a declarative config").
func New(cfg Config) Adapter {
	return &configured{
		Base: Base{
			Type:        cfg.Type,
			Name:        cfg.DisplayName,
			Rules:       cfg.Rules,
			TUIMenus:    cfg.UsesTUIMenus,
			SettleMs:    cfg.ReadySettleMs,
			HasSettleMs: cfg.ReadySettleMs > 0,
		},
		cfg: cfg,
	}
}

func (c *configured) GetCommand(_ core.SpawnConfig) string { return c.cfg.Command }

func (c *configured) GetArgs(sc core.SpawnConfig) []string {
	if c.cfg.ArgsFn != nil {
		return c.cfg.ArgsFn(sc)
	}
	return c.cfg.Args
}

func (c *configured) GetEnv(sc core.SpawnConfig) map[string]string {
	if c.cfg.EnvFn != nil {
		return c.cfg.EnvFn(sc)
	}
	return nil
}

func (c *configured) DetectLogin(buffer string) core.LoginInfo {
	for _, lp := range c.cfg.LoginPatterns {
		if lp.Pattern.MatchString(buffer) {
			info := core.LoginInfo{Required: true, Method: lp.Method, Instructions: lp.Instructions}
			if lp.URLPattern != nil {
				if m := lp.URLPattern.FindString(buffer); m != "" {
					info.URL = m
				}
			}
			if lp.DeviceCodeRe != nil {
				if m := lp.DeviceCodeRe.FindStringSubmatch(buffer); len(m) > 1 {
					info.DeviceCode = m[1]
				}
			}
			return info
		}
	}
	return core.LoginInfo{}
}

func (c *configured) DetectReady(buffer string) bool {
	for _, re := range c.cfg.ReadyIndicators {
		if re.MatchString(buffer) {
			return true
		}
	}
	return false
}

func (c *configured) DetectTaskComplete(buffer string) (bool, bool) {
	if len(c.cfg.TaskCompleteInd) == 0 {
		return false, false
	}
	for _, re := range c.cfg.TaskCompleteInd {
		if re.MatchString(buffer) {
			return true, true
		}
	}
	return false, true
}

func (c *configured) DetectLoading(buffer string) (bool, bool) {
	if c.cfg.LoadingIndicator == nil {
		return false, false
	}
	return c.cfg.LoadingIndicator.MatchString(buffer), true
}

func (c *configured) DetectVersion(buffer string) (string, bool) {
	if c.cfg.VersionPattern == nil {
		return "", false
	}
	if m := c.cfg.VersionPattern.FindStringSubmatch(buffer); len(m) > 1 {
		return m[1], true
	}
	return "", false
}

func (c *configured) DetectBlockingPrompt(buffer string) core.BlockingPromptInfo {
	for _, spec := range c.cfg.BlockingPrompts {
		if spec.Pattern.MatchString(buffer) {
			return core.BlockingPromptInfo{
				Detected:          true,
				Type:              spec.Type,
				Prompt:            buffer,
				CanAutoRespond:    spec.CanAutoRespond,
				SuggestedResponse: spec.SuggestedResponse,
				Instructions:      spec.Instructions,
			}
		}
	}
	return c.Base.DetectBlockingPrompt(buffer)
}

func (c *configured) DetectExit(buffer string) core.ExitInfo {
	for _, re := range c.cfg.ExitIndicators {
		if re.MatchString(buffer) {
			return core.ExitInfo{Exited: true}
		}
	}
	return c.Base.DetectExit(buffer)
}

func (c *configured) ParseOutput(buffer string) (*core.ParsedOutput, bool) {
	if c.cfg.ParseFn != nil {
		return c.cfg.ParseFn(buffer)
	}
	return nil, false
}

func (c *configured) FormatInput(message string) string {
	if c.cfg.FormatFn != nil {
		return c.cfg.FormatFn(message)
	}
	return message
}

func (c *configured) PromptPattern() string { return c.cfg.PromptRegex }
