// Package worker implements the stdio-JSON protocol (spec §4.5): a process
// wraps a Manager and communicates exclusively over stdio using
// newline-delimited JSON, one JSON object per line in each direction.
package worker

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/seamus/ptysup/internal/adapter"
	"github.com/seamus/ptysup/internal/apperr"
	"github.com/seamus/ptysup/internal/core"
	"github.com/seamus/ptysup/internal/manager"
)

const (
	scannerInitialBuffer = 64 * 1024
	scannerMaxBuffer     = 8 * 1024 * 1024
)

// Worker reads commands from stdin and writes acks/events to stdout, one
// JSON object per line, wrapping a *manager.Manager (spec §4.5).
type Worker struct {
	mgr *manager.Manager
	log *slog.Logger

	outMu sync.Mutex
	out   *json.Encoder

	wg sync.WaitGroup
}

// New wraps mgr in a Worker writing to w.
func New(mgr *manager.Manager, w io.Writer, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{mgr: mgr, log: log, out: json.NewEncoder(w)}
}

// Run processes r line by line until EOF or ctx-independent stdin close,
// emitting worker_ready on startup (spec §4.5) and blocking until every
// forwarded-event goroutine it started has drained.
func (w *Worker) Run(r io.Reader) error {
	w.emit(readyEvent{Event: "worker_ready"})

	scanner := bufio.NewScanner(r)
	buf := make([]byte, scannerInitialBuffer)
	scanner.Buffer(buf, scannerMaxBuffer)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var in inbound
		if err := json.Unmarshal(line, &in); err != nil {
			w.emit(map[string]string{"event": "error", "message": fmt.Sprintf("Unknown command: %s", err)})
			continue
		}
		w.dispatch(in)
	}

	w.wg.Wait()
	if err := scanner.Err(); err != nil {
		return err
	}
	return nil
}

func (w *Worker) emit(v any) {
	w.outMu.Lock()
	defer w.outMu.Unlock()
	if err := w.out.Encode(v); err != nil {
		w.log.Error("failed to encode worker event", "error", err)
	}
}

func (w *Worker) ackOK(cmd, id string) { w.emit(ack{Event: "ack", Cmd: cmd, ID: id, Success: true}) }

func (w *Worker) ackErr(cmd, id string, err error) {
	w.emit(ack{Event: "ack", Cmd: cmd, ID: id, Success: false, Error: err.Error()})
}

func (w *Worker) dispatch(in inbound) {
	switch in.Cmd {
	case "spawn":
		w.handleSpawn(in)
	case "send":
		w.handleSend(in)
	case "sendKeys":
		w.handleSendKeys(in)
	case "paste":
		w.handlePaste(in)
	case "resize":
		w.handleResize(in)
	case "kill":
		w.handleKill(in)
	case "list":
		w.handleList(in)
	case "shutdown":
		w.handleShutdown(in)
	case "registerAdapters":
		w.handleRegisterAdapters(in)
	case "addRule":
		w.handleAddRule(in)
	case "removeRule":
		w.handleRemoveRule(in)
	case "setRules":
		w.handleSetRules(in)
	case "getRules":
		w.handleGetRules(in)
	case "clearRules":
		w.handleClearRules(in)
	case "selectMenuOption":
		w.handleSelectMenuOption(in)
	case "configureStallDetection":
		w.handleConfigureStallDetection(in)
	case "classifyStallResult":
		w.handleClassifyStallResult(in)
	case "logs":
		w.handleLogs(in)
	default:
		w.emit(map[string]string{"event": "error", "message": fmt.Sprintf("Unknown command: %s", in.Cmd)})
	}
}

func (w *Worker) handleSpawn(in inbound) {
	if in.Type == "" {
		w.ackErr("spawn", in.ID, errors.New("Missing type"))
		return
	}
	cfg := core.SpawnConfig{
		ID:         in.ID,
		Name:       in.Name,
		Type:       in.Type,
		WorkDir:    in.WorkDir,
		Env:        in.Env,
		Cols:       in.Cols,
		Rows:       in.Rows,
		MinVersion: in.MinVersion,
	}
	handle, err := w.mgr.Spawn(cfg)
	if err != nil {
		w.ackErr("spawn", in.ID, err)
		return
	}
	w.forwardEvents(handle.ID)
	w.emit(map[string]any{"event": "spawned", "id": handle.ID, "session": toSessionDTO(handle)})
	w.ackOK("spawn", in.ID)
}

// forwardEvents bridges one session's event stream to stdout for the
// lifetime of the session (spec §4.5 "Forwarded events").
func (w *Worker) forwardEvents(id string) {
	sess, err := w.mgr.GetSession(id)
	if err != nil {
		return
	}
	events, unsub := sess.Subscribe(256)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer unsub()
		for ev := range events {
			w.emit(toOutbound(ev))
			if ev.Kind == core.EventExit {
				return
			}
		}
	}()
}

func (w *Worker) handleSend(in inbound) {
	if _, err := w.mgr.Send(in.ID, in.Message); err != nil {
		w.ackErr("send", in.ID, err)
		return
	}
	w.ackOK("send", in.ID)
}

func (w *Worker) handleSendKeys(in inbound) {
	sess, err := w.mgr.GetSession(in.ID)
	if err != nil {
		w.ackErr("sendKeys", in.ID, err)
		return
	}
	sess.SendKeys(in.Keys)
	w.ackOK("sendKeys", in.ID)
}

func (w *Worker) handlePaste(in inbound) {
	sess, err := w.mgr.GetSession(in.ID)
	if err != nil {
		w.ackErr("paste", in.ID, err)
		return
	}
	bracketed := true
	if in.Bracketed != nil {
		bracketed = *in.Bracketed
	}
	sess.Paste(in.Text, bracketed)
	w.ackOK("paste", in.ID)
}

func (w *Worker) handleResize(in inbound) {
	sess, err := w.mgr.GetSession(in.ID)
	if err != nil {
		w.ackErr("resize", in.ID, err)
		return
	}
	if err := sess.Resize(in.ResizeCols, in.ResizeRows); err != nil {
		w.ackErr("resize", in.ID, err)
		return
	}
	w.ackOK("resize", in.ID)
}

func (w *Worker) handleKill(in inbound) {
	if err := w.mgr.Stop(in.ID, in.Force, in.TimeoutMs); err != nil {
		w.ackErr("kill", in.ID, err)
		return
	}
	w.ackOK("kill", in.ID)
}

func (w *Worker) handleList(in inbound) {
	handles := w.mgr.List(core.SessionStatus(in.StatusFilter), in.TypeFilter)
	dtos := make([]sessionDTO, 0, len(handles))
	for _, h := range handles {
		dtos = append(dtos, toSessionDTO(h))
	}
	w.emit(listReply{Event: "list", Sessions: dtos})
	w.ackOK("list", in.ID)
}

func (w *Worker) handleShutdown(in inbound) {
	w.mgr.Shutdown(in.TimeoutMs)
	w.ackOK("shutdown", in.ID)
}

func (w *Worker) handleRegisterAdapters(in inbound) {
	reg := adapter.NewRegistry()
	for _, name := range in.Modules {
		if name != "builtin" {
			w.ackErr("registerAdapters", in.ID, fmt.Errorf("%w: %s", apperr.ErrUnknownAdapterModule, name))
			return
		}
		reg.RegisterBuiltins()
		for _, t := range reg.Types() {
			a, _ := reg.Get(t)
			w.mgr.RegisterAdapter(a)
		}
	}
	w.ackOK("registerAdapters", in.ID)
}

func (w *Worker) handleAddRule(in inbound) {
	if in.Rule == nil {
		w.ackErr("addRule", in.ID, errors.New("Missing rule"))
		return
	}
	rule, err := fromRuleDTO(*in.Rule)
	if err != nil {
		w.ackErr("addRule", in.ID, err)
		return
	}
	if err := w.mgr.AddAutoResponseRule(in.ID, rule); err != nil {
		w.ackErr("addRule", in.ID, err)
		return
	}
	w.ackOK("addRule", in.ID)
}

func (w *Worker) handleRemoveRule(in inbound) {
	if err := w.mgr.RemoveAutoResponseRule(in.ID, in.PatternSrc); err != nil {
		w.ackErr("removeRule", in.ID, err)
		return
	}
	w.ackOK("removeRule", in.ID)
}

func (w *Worker) handleSetRules(in inbound) {
	rules := make([]core.AutoResponseRule, 0, len(in.Rules))
	for _, dto := range in.Rules {
		r, err := fromRuleDTO(dto)
		if err != nil {
			w.ackErr("setRules", in.ID, err)
			return
		}
		rules = append(rules, r)
	}
	if err := w.mgr.SetAutoResponseRules(in.ID, rules); err != nil {
		w.ackErr("setRules", in.ID, err)
		return
	}
	w.ackOK("setRules", in.ID)
}

func (w *Worker) handleGetRules(in inbound) {
	rules, err := w.mgr.GetAutoResponseRules(in.ID)
	if err != nil {
		w.ackErr("getRules", in.ID, err)
		return
	}
	dtos := make([]ruleDTO, 0, len(rules))
	for _, r := range rules {
		dtos = append(dtos, toRuleDTO(r))
	}
	w.emit(rulesReply{Event: "rules", ID: in.ID, Rules: dtos})
	w.ackOK("getRules", in.ID)
}

func (w *Worker) handleClearRules(in inbound) {
	if err := w.mgr.ClearAutoResponseRules(in.ID); err != nil {
		w.ackErr("clearRules", in.ID, err)
		return
	}
	w.ackOK("clearRules", in.ID)
}

func (w *Worker) handleSelectMenuOption(in inbound) {
	sess, err := w.mgr.GetSession(in.ID)
	if err != nil {
		w.ackErr("selectMenuOption", in.ID, err)
		return
	}
	sess.SelectMenuOption(in.N)
	w.ackOK("selectMenuOption", in.ID)
}

func (w *Worker) handleConfigureStallDetection(in inbound) {
	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	w.mgr.ConfigureStallDetection(enabled, in.StallTimeoutMs, nil)
	w.ackOK("configureStallDetection", in.ID)
}

func (w *Worker) handleClassifyStallResult(in inbound) {
	sess, err := w.mgr.GetSession(in.ID)
	if err != nil {
		w.ackErr("classifyStallResult", in.ID, err)
		return
	}
	if in.Result == nil {
		sess.HandleStallClassification(nil)
		w.ackOK("classifyStallResult", in.ID)
		return
	}
	c := core.StallClassification{
		State:             core.StallState(in.Result.State),
		Prompt:            in.Result.Prompt,
		SuggestedResponse: in.Result.SuggestedResponse,
	}
	sess.HandleStallClassification(&c)
	w.ackOK("classifyStallResult", in.ID)
}

func (w *Worker) handleLogs(in inbound) {
	lines, err := w.mgr.Logs(in.ID, in.Tail)
	if err != nil {
		w.ackErr("logs", in.ID, err)
		return
	}
	w.emit(map[string]any{"event": "logs", "id": in.ID, "lines": lines})
	w.ackOK("logs", in.ID)
}

func toSessionDTO(h core.SessionHandle) sessionDTO {
	d := sessionDTO{
		ID:       h.ID,
		Name:     h.Name,
		Type:     h.Type,
		Adapter:  h.Adapter,
		Status:   string(h.Status),
		PID:      h.PID,
		Error:    h.Error,
		ExitCode: h.ExitCode,
	}
	if h.StartedAt != nil {
		s := h.StartedAt.Format(time.RFC3339)
		d.StartedAt = &s
	}
	if h.LastActivityAt != nil {
		s := h.LastActivityAt.Format(time.RFC3339)
		d.LastActivityAt = &s
	}
	return d
}

func toRuleDTO(r core.AutoResponseRule) ruleDTO {
	safe := r.Safe
	once := r.Once
	return ruleDTO{
		Pattern:      r.PatternSrc,
		Flags:        r.Flags,
		Type:         string(r.Type),
		Response:     r.Response,
		ResponseType: string(r.ResponseType),
		Keys:         r.Keys,
		Description:  r.Description,
		Safe:         &safe,
		Once:         &once,
	}
}

func fromRuleDTO(d ruleDTO) (core.AutoResponseRule, error) {
	src := d.Pattern
	if d.Flags != "" {
		src = "(?" + d.Flags + ")" + src
	}
	pattern, err := regexp.Compile(src)
	if err != nil {
		return core.AutoResponseRule{}, fmt.Errorf("invalid rule pattern %q: %w", d.Pattern, err)
	}
	r := core.AutoResponseRule{
		Pattern:      pattern,
		PatternSrc:   d.Pattern,
		Flags:        d.Flags,
		Type:         core.BlockingPromptType(d.Type),
		Response:     d.Response,
		ResponseType: core.ResponseType(d.ResponseType),
		Keys:         d.Keys,
		Description:  d.Description,
		Safe:         true,
	}
	if d.Safe != nil {
		r.Safe = *d.Safe
	}
	if d.Once != nil {
		r.Once = *d.Once
	}
	return r, nil
}

// toOutbound maps an internal core.Event to its wire shape (spec §4.5
// "Forwarded events mirror the in-process Session/Manager events").
func toOutbound(ev core.Event) outbound {
	o := outbound{Event: string(ev.Kind), ID: ev.SessionID}
	switch ev.Kind {
	case core.EventOutput:
		// PTY output is arbitrary bytes, not necessarily valid UTF-8 (binary
		// tool output, or a multi-byte rune split across a readLoop chunk
		// boundary). encoding/json would silently replace invalid sequences
		// with U+FFFD, corrupting the stream, so fall back to base64 and
		// flag it rather than carry it as a plain JSON string.
		if utf8.Valid(ev.Data) {
			o.Data = string(ev.Data)
		} else {
			o.Data = base64.StdEncoding.EncodeToString(ev.Data)
			o.Encoding = "base64"
		}
	case core.EventReady, core.EventTaskComplete, core.EventExit, core.EventSessionStopped:
		o.ExitCode = ev.ExitCode
		o.Reason = ev.Reason
	case core.EventError:
		if ev.Err != nil {
			o.Message = ev.Err.Error()
		} else {
			o.Message = ev.Reason
		}
	case core.EventLoginRequired, core.EventAuthRequired:
		o.LoginMethod = ev.Login.Method
		o.LoginURL = ev.Login.URL
		o.Message = ev.Login.Instructions
	case core.EventBlockingPrompt:
		o.Prompt = ev.Prompt.Prompt
		o.PromptType = string(ev.Prompt.Type)
		o.Options = ev.Prompt.Options
		o.CanAutoRespond = ev.CanAutoRespond
		o.AutoResponded = ev.AutoResponded
	case core.EventMessage, core.EventQuestion:
		o.MessageType = string(ev.Message.Type)
		o.Content = ev.Message.Content
	case core.EventStallDetected:
		o.RecentOutput = ev.RecentOutput
		o.StallDurationMs = ev.StallDurationMs
	case core.EventStatusChanged:
		o.Reason = string(ev.NewStatus)
	}
	return o
}
