package session

import (
	"strings"

	"github.com/seamus/ptysup/internal/ansiutil"
	"github.com/seamus/ptysup/internal/core"
)

// effectiveRules builds the list described by spec §4.1.1 step 1:
// sessionRules (higher priority) first, then adapter rules with disabled
// patterns filtered out and per-session overrides shallow-merged in.
func (s *Session) effectiveRules() []core.AutoResponseRule {
	out := make([]core.AutoResponseRule, 0, len(s.sessionRules)+len(s.adapter.AutoResponseRules()))
	out = append(out, s.sessionRules...)
	for _, r := range s.adapter.AutoResponseRules() {
		ov, has := s.ruleOverrides[r.PatternSrc]
		if has && ov.Disable {
			continue
		}
		if has {
			r = applyOverride(r, ov)
		}
		out = append(out, r)
	}
	return out
}

func applyOverride(r core.AutoResponseRule, ov core.RuleOverride) core.AutoResponseRule {
	if ov.Response != nil {
		r.Response = *ov.Response
	}
	if ov.ResponseType != nil {
		r.ResponseType = core.ResponseType(*ov.ResponseType)
	}
	if ov.Keys != nil {
		r.Keys = ov.Keys
	}
	if ov.Safe != nil {
		r.Safe = *ov.Safe
	}
	if ov.Once != nil {
		r.Once = *ov.Once
	}
	return r
}

// runAutoResponsePipeline implements spec §4.1.1 in full. It returns true
// when it handled the chunk (a rule matched, or the adapter-level
// detectBlockingPrompt matched), in which case the rest of
// processOutputBuffer's steps ((f) onward) are skipped for this pass —
// mirroring "return handled" in the spec.
func (s *Session) runAutoResponsePipeline(rawBuf string) bool {
	normalized := ansiutil.StripForMatching(rawBuf)

	for _, rule := range s.effectiveRules() {
		key := rule.Key()
		if rule.Once && s.firedOnceRules[key] {
			continue
		}
		if rule.Pattern == nil || !rule.Pattern.MatchString(normalized) {
			continue
		}

		if !rule.Safe {
			s.publish(core.Event{
				Kind:           core.EventBlockingPrompt,
				SessionID:      s.id,
				Prompt:         core.BlockingPromptInfo{Detected: true, Type: rule.Type, Prompt: normalized},
				CanAutoRespond: false,
			})
			return true
		}

		switch {
		case len(rule.Keys) > 0:
			s.sendKeySequence(rule.Keys)
		case s.adapter.UsesTUIMenus() && rule.ResponseType == "" && len(rule.Keys) == 0:
			s.sendKeySequence([]string{"enter"})
		default:
			s.writeRawLocked(rule.Response + "\r")
		}

		if rule.Once {
			s.firedOnceRules[key] = true
		}
		s.outputBuffer = s.outputBuffer[:0]
		s.publish(core.Event{
			Kind:          core.EventBlockingPrompt,
			SessionID:     s.id,
			Prompt:        core.BlockingPromptInfo{Detected: true, Type: rule.Type, Prompt: normalized},
			AutoResponded: true,
		})
		return true
	}

	info := s.adapter.DetectBlockingPrompt(rawBuf)
	if !info.Detected {
		s.lastBlockingPromptHash = ""
		return false
	}

	hashKey := string(info.Type) + "|" + info.Prompt
	if hashKey == s.lastBlockingPromptHash {
		return true
	}
	s.lastBlockingPromptHash = hashKey

	if info.CanAutoRespond && info.SuggestedResponse != "" {
		s.deliverSuggestedResponse(info.SuggestedResponse)
		s.outputBuffer = s.outputBuffer[:0]
		s.publish(core.Event{Kind: core.EventBlockingPrompt, SessionID: s.id, Prompt: info, AutoResponded: true})
		return true
	}

	if info.Type == core.PromptLogin {
		s.setStatus(core.StatusAuthenticating)
		s.publish(core.Event{Kind: core.EventAuthRequired, SessionID: s.id, Login: core.LoginInfo{Required: true, Method: "unknown", Instructions: info.Instructions, URL: info.URL}})
	}
	s.publish(core.Event{Kind: core.EventBlockingPrompt, SessionID: s.id, Prompt: info, AutoResponded: false, CanAutoRespond: info.CanAutoRespond})
	return true
}

// deliverSuggestedResponse interprets the "keys:" sentinel overload
// documented in spec §9: a string beginning exactly with "keys:" followed
// by comma-separated key names, trimmed of surrounding whitespace.
func (s *Session) deliverSuggestedResponse(suggested string) {
	if keys, ok := parseKeysSentinel(suggested); ok {
		s.sendKeySequence(keys)
		return
	}
	s.writeRawLocked(suggested + "\r")
}

func parseKeysSentinel(s string) ([]string, bool) {
	const prefix = "keys:"
	if !strings.HasPrefix(s, prefix) {
		return nil, false
	}
	parts := strings.Split(s[len(prefix):], ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		keys = append(keys, strings.TrimSpace(p))
	}
	return keys, true
}

// --- Rule CRUD (spec §4.1) ---

// AddAutoResponseRule replaces an existing session rule with the same
// pattern source, or appends.
func (s *Session) AddAutoResponseRule(r core.AutoResponseRule) {
	s.do(func() {
		for i, existing := range s.sessionRules {
			if existing.PatternSrc == r.PatternSrc {
				s.sessionRules[i] = r
				return
			}
		}
		s.sessionRules = append(s.sessionRules, r)
	})
}

// RemoveAutoResponseRule removes a session rule by pattern source.
func (s *Session) RemoveAutoResponseRule(patternSrc string) {
	s.do(func() {
		out := s.sessionRules[:0]
		for _, r := range s.sessionRules {
			if r.PatternSrc != patternSrc {
				out = append(out, r)
			}
		}
		s.sessionRules = out
	})
}

// SetAutoResponseRules replaces the full session rule list.
func (s *Session) SetAutoResponseRules(rules []core.AutoResponseRule) {
	s.do(func() { s.sessionRules = append([]core.AutoResponseRule(nil), rules...) })
}

// GetAutoResponseRules returns a copy of the session rule list.
func (s *Session) GetAutoResponseRules() []core.AutoResponseRule {
	var out []core.AutoResponseRule
	s.do(func() { out = append([]core.AutoResponseRule(nil), s.sessionRules...) })
	return out
}

// ClearAutoResponseRules empties the session rule list.
func (s *Session) ClearAutoResponseRules() {
	s.do(func() { s.sessionRules = nil })
}
