package voice

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/novalabs/voiceloop/internal/chat"
	"github.com/novalabs/voiceloop/internal/echo"
	"github.com/novalabs/voiceloop/internal/observability"
	"github.com/novalabs/voiceloop/internal/policy"
	"github.com/novalabs/voiceloop/internal/reliability"
	"github.com/novalabs/voiceloop/internal/session"
	"github.com/novalabs/voiceloop/internal/transcript"
)

// SessionState is the externally visible voice mode state.
type SessionState string

const (
	StateIdle      SessionState = "idle"
	StateListening SessionState = "listening"
	StateThinking  SessionState = "thinking"
	StateSpeaking  SessionState = "speaking"
	StateReady     SessionState = "ready"
	StateError     SessionState = "error"
)

// Sink receives controller output destined for the user interface.
type Sink interface {
	NotifyState(state SessionState, detail string)
	RenderTranscript(role, text string)
	NotifyError(code, source, detail string, retryable bool)
}

// Settings carries the tuning knobs for one controller instance.
type Settings struct {
	SilenceWindow      time.Duration
	FinalSilenceWindow time.Duration
	RestartCooldown    time.Duration
	RestartRetryDelay  time.Duration
	SpeechMaxChars     int
	ChatTimeout        time.Duration
}

// Options wires a controller to its collaborators. Sink, Recognizer,
// Synthesizer and Chat are required; the rest may be nil.
type Options struct {
	SessionID   string
	Recognizer  Recognizer
	Synthesizer Synthesizer
	Chat        chat.Client
	Sink        Sink
	Metrics     *observability.Metrics
	Sessions    *session.Manager
	Transcripts transcript.Store
	Logger      *log.Logger
	Settings    Settings
}

type controlMsg struct {
	enable             bool
	captureAvailable   *bool
	synthesisAvailable *bool
}

type sendResult struct {
	resp chat.Response
	err  error
}

// Controller drives one voice session: it segments recognizer results into
// utterances, dispatches them to chat, plays the reply, and suppresses the
// echo of its own audio. All state below opts is owned by the Run goroutine.
type Controller struct {
	opts     Options
	control  chan controlMsg
	sendDone chan sendResult
	active   atomic.Bool

	state              SessionState
	seg                *segmenter
	cooldown           eventTimer
	retry              eventTimer
	manualStop         bool
	restartCause       string
	sendInFlight       bool
	lastAssistant      string
	captureAvailable   bool
	synthesisAvailable bool
	speakingID         string
	turnStartAt        time.Time
	dispatchAt         time.Time
	responseAt         time.Time
}

func NewController(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Controller{
		opts:     opts,
		control:  make(chan controlMsg, 8),
		sendDone: make(chan sendResult, 1),
	}
}

// Enable turns voice mode on. Capability flags are optional; nil means the
// edge reported the engine as available.
func (c *Controller) Enable(captureAvailable, synthesisAvailable *bool) {
	c.post(controlMsg{enable: true, captureAvailable: captureAvailable, synthesisAvailable: synthesisAvailable})
}

// Disable turns voice mode off and cancels any ongoing playback.
func (c *Controller) Disable() {
	c.post(controlMsg{enable: false})
}

func (c *Controller) IsActive() bool {
	return c.active.Load()
}

func (c *Controller) post(msg controlMsg) {
	select {
	case c.control <- msg:
	default:
		c.opts.Logger.Printf("voice: control queue full, dropping message session=%s", c.opts.SessionID)
	}
}

// Run is the controller event loop. It returns when ctx is canceled.
func (c *Controller) Run(ctx context.Context) {
	c.state = StateIdle
	c.seg = newSegmenter(c.opts.Settings.SilenceWindow, c.opts.Settings.FinalSilenceWindow)

	captureEvents := c.opts.Recognizer.Events()
	playbackEvents := c.opts.Synthesizer.PlaybackEvents()

	defer func() {
		c.seg.Reset()
		c.cooldown.Stop()
		c.retry.Stop()
		c.active.Store(false)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.control:
			c.handleControl(ctx, msg)
		case ev, ok := <-captureEvents:
			if !ok {
				captureEvents = nil
				continue
			}
			c.handleCaptureEvent(ctx, ev)
		case ev, ok := <-playbackEvents:
			if !ok {
				playbackEvents = nil
				continue
			}
			c.handlePlaybackEvent(ctx, ev)
		case <-c.seg.TimerC():
			c.seg.DisarmTimer()
			c.dispatchUtterance(ctx)
		case <-c.cooldown.C():
			c.cooldown.Disarm()
			c.restartCapture(ctx, "cooldown")
		case <-c.retry.C():
			c.retry.Disarm()
			c.retryRestart(ctx)
		case res := <-c.sendDone:
			c.handleSendResult(ctx, res)
		}
	}
}

func (c *Controller) handleControl(ctx context.Context, msg controlMsg) {
	if msg.enable {
		if c.active.Load() {
			return
		}
		c.captureAvailable = derefBool(msg.captureAvailable, true)
		c.synthesisAvailable = derefBool(msg.synthesisAvailable, true)
		if !c.captureAvailable {
			c.notifyError("capture_unsupported", "capture", "speech recognition is not available", false)
			c.setState(StateError, "speech recognition is not available")
			return
		}
		c.active.Store(true)
		c.recordEvent("enabled")
		// A trailing engine end from a previous disable is dropped while
		// inactive, so the flag must not leak into this session.
		c.manualStop = false
		c.restartCause = ""
		if err := c.opts.Recognizer.Start(ctx); err != nil {
			c.opts.Logger.Printf("voice: capture start failed session=%s err=%v", c.opts.SessionID, err)
			c.failSession("capture_start_failed", err.Error())
			return
		}
		c.setState(StateListening, "")
		return
	}

	if !c.active.Load() {
		return
	}
	c.active.Store(false)
	c.recordEvent("disabled")
	c.seg.Reset()
	c.cooldown.Stop()
	c.retry.Stop()
	c.manualStop = true
	if err := c.opts.Recognizer.Stop(ctx); err != nil {
		c.opts.Logger.Printf("voice: capture stop failed session=%s err=%v", c.opts.SessionID, err)
	}
	if c.state == StateSpeaking {
		if err := c.opts.Synthesizer.Cancel(ctx); err != nil {
			c.opts.Logger.Printf("voice: playback cancel failed session=%s err=%v", c.opts.SessionID, err)
		}
	}
	c.speakingID = ""
	c.setState(StateIdle, "")
}

func (c *Controller) handleCaptureEvent(ctx context.Context, ev CaptureEvent) {
	if !c.active.Load() {
		return
	}

	switch ev.Type {
	case CaptureResult:
		if c.state == StateSpeaking || c.cooldown.Armed() {
			// Capture while assistant audio is live is never trusted.
			c.seg.Reset()
			return
		}
		if c.sendInFlight || c.state == StateThinking {
			// One turn in flight at a time; late results are dropped.
			c.recordEvent("result_dropped")
			return
		}
		if c.lastAssistant != "" && echo.IsEcho(ev.Text, c.lastAssistant) {
			// An echo means leaked assistant audio; anything buffered around
			// it is tainted too.
			c.seg.Reset()
			c.suppressEcho(ev)
			return
		}
		if c.turnStartAt.IsZero() {
			c.turnStartAt = time.Now()
		}
		if ev.IsFinal {
			c.seg.ObserveFinal(ev.Text)
		} else {
			c.seg.ObserveInterim(ev.Text)
		}

	case CaptureError:
		class := reliability.ClassifyCaptureError(ev.Code)
		if c.opts.Metrics != nil {
			c.opts.Metrics.CaptureErrors.WithLabelValues(ev.Code, string(class)).Inc()
		}
		switch class {
		case reliability.CaptureFatal:
			c.notifyError(ev.Code, "capture", ev.Detail, false)
			c.failSession("capture_fatal", ev.Detail)
		case reliability.CaptureNoSpeech:
			// Routine pause. The engine ends next; the restart is silent.
			c.restartCause = "no_speech"
		default:
			c.opts.Logger.Printf("voice: soft capture error session=%s code=%s", c.opts.SessionID, ev.Code)
			c.restartCause = "soft_error"
		}

	case CaptureEnded:
		if c.manualStop {
			c.manualStop = false
			return
		}
		if c.state == StateThinking || c.state == StateSpeaking || c.cooldown.Armed() || c.retry.Armed() {
			return
		}
		cause := c.restartCause
		if cause == "" {
			cause = "engine_end"
		}
		c.restartCause = ""
		c.restartCapture(ctx, cause)
	}
}

func (c *Controller) handlePlaybackEvent(ctx context.Context, ev PlaybackEvent) {
	if !c.active.Load() {
		return
	}

	switch ev.Type {
	case PlaybackStarted:
		c.recordEvent("playback_started")
		c.observeStage("response_to_speaking", time.Since(c.responseAt))

	case PlaybackEnded:
		if ev.UtteranceID != "" && ev.UtteranceID != c.speakingID {
			return
		}
		c.speakingID = ""
		c.recordEvent("playback_ended")
		if !c.turnStartAt.IsZero() {
			c.observeStage("turn_total", time.Since(c.turnStartAt))
			c.turnStartAt = time.Time{}
		}
		c.setState(StateReady, "")
		c.cooldown.Reset(c.opts.Settings.RestartCooldown)

	case PlaybackError:
		c.speakingID = ""
		c.notifyError(ev.Code, "playback", ev.Detail, true)
		c.turnStartAt = time.Time{}
		c.setState(StateReady, "")
		c.cooldown.Reset(c.opts.Settings.RestartCooldown)
	}
}

func (c *Controller) suppressEcho(ev CaptureEvent) {
	if c.opts.Metrics != nil {
		c.opts.Metrics.EchoSuppressions.Inc()
		c.opts.Metrics.ObserveIndicator("echo_suppressed")
	}
	c.opts.Logger.Printf("voice: suppressed echo session=%s len=%d", c.opts.SessionID, len(ev.Text))
}

func (c *Controller) dispatchUtterance(ctx context.Context) {
	if !c.active.Load() || c.sendInFlight {
		c.seg.Reset()
		return
	}
	text := c.seg.Take()
	if text == "" {
		return
	}

	c.manualStop = true
	if err := c.opts.Recognizer.Stop(ctx); err != nil {
		c.opts.Logger.Printf("voice: capture stop failed session=%s err=%v", c.opts.SessionID, err)
	}

	c.dispatchAt = time.Now()
	if !c.turnStartAt.IsZero() {
		c.observeStage("utterance_to_dispatch", c.dispatchAt.Sub(c.turnStartAt))
	}
	c.setState(StateThinking, "")
	c.recordEvent("utterance_dispatched")

	if c.opts.Sessions != nil {
		if err := c.opts.Sessions.RecordTurn(c.opts.SessionID); err != nil {
			c.opts.Logger.Printf("voice: record turn failed session=%s err=%v", c.opts.SessionID, err)
		}
	}
	c.opts.Sink.RenderTranscript("user", text)
	c.appendTranscript("user", text)

	c.sendInFlight = true
	timeout := c.opts.Settings.ChatTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	go func() {
		sendCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		resp, err := c.opts.Chat.Send(sendCtx, chat.Request{Message: text, SessionID: c.opts.SessionID})
		c.sendDone <- sendResult{resp: resp, err: err}
	}()
}

func (c *Controller) handleSendResult(ctx context.Context, res sendResult) {
	c.sendInFlight = false
	if !c.active.Load() {
		// Voice mode was turned off mid-send. The reply is still rendered,
		// it just is not spoken.
		if res.err == nil {
			c.opts.Sink.RenderTranscript("assistant", res.resp.Text)
			c.appendTranscript("assistant", res.resp.Text)
		}
		return
	}

	if res.err != nil {
		c.opts.Logger.Printf("voice: chat send failed session=%s err=%v", c.opts.SessionID, res.err)
		c.recordEvent("send_failed")
		retryable := true
		var httpErr *chat.HTTPError
		if errors.As(res.err, &httpErr) {
			retryable = reliability.IsRetryableHTTPStatus(httpErr.Status)
		}
		c.notifyError("chat_failed", "chat", res.err.Error(), retryable)
		c.setState(StateError, "assistant is unreachable")
		c.turnStartAt = time.Time{}
		c.restartCapture(ctx, "send_failed")
		return
	}

	c.responseAt = time.Now()
	c.recordEvent("response_received")
	c.observeStage("dispatch_to_response", c.responseAt.Sub(c.dispatchAt))
	if c.opts.Metrics != nil {
		c.opts.Metrics.ObserveSendLatency(c.responseAt.Sub(c.dispatchAt))
	}

	full := res.resp.Text
	c.lastAssistant = full
	c.opts.Sink.RenderTranscript("assistant", full)
	c.appendTranscript("assistant", full)

	if !c.synthesisAvailable {
		// No audio means no echo risk; resume capture right away.
		c.setState(StateReady, "")
		c.turnStartAt = time.Time{}
		c.restartCapture(ctx, "no_synthesis")
		return
	}

	speech := prepareSpeech(full, c.opts.Settings.SpeechMaxChars)
	if c.speakingID != "" {
		// Only one playback job at a time; a trailing job is superseded.
		if err := c.opts.Synthesizer.Cancel(ctx); err != nil {
			c.opts.Logger.Printf("voice: playback cancel failed session=%s err=%v", c.opts.SessionID, err)
		}
	}
	c.speakingID = uuid.NewString()
	if err := c.opts.Synthesizer.Speak(ctx, c.speakingID, speech); err != nil {
		c.opts.Logger.Printf("voice: speak failed session=%s err=%v", c.opts.SessionID, err)
		c.notifyError("speak_failed", "playback", err.Error(), true)
		c.speakingID = ""
		c.turnStartAt = time.Time{}
		c.setState(StateReady, "")
		c.cooldown.Reset(c.opts.Settings.RestartCooldown)
		return
	}
	// The display always carries the full reply; only the audio is truncated.
	c.setState(StateSpeaking, full)
}

func (c *Controller) restartCapture(ctx context.Context, cause string) {
	if !c.active.Load() {
		return
	}
	if c.opts.Metrics != nil {
		c.opts.Metrics.CaptureRestarts.WithLabelValues(cause).Inc()
	}
	if err := c.opts.Recognizer.Start(ctx); err != nil {
		c.opts.Logger.Printf("voice: capture restart failed session=%s cause=%s err=%v", c.opts.SessionID, cause, err)
		c.retry.Reset(c.opts.Settings.RestartRetryDelay)
		return
	}
	if c.state != StateListening {
		c.setState(StateListening, "")
	}
}

// retryRestart is the single bounded retry after a failed capture restart.
func (c *Controller) retryRestart(ctx context.Context) {
	if !c.active.Load() {
		return
	}
	if c.opts.Metrics != nil {
		c.opts.Metrics.CaptureRestarts.WithLabelValues("retry").Inc()
	}
	if err := c.opts.Recognizer.Start(ctx); err != nil {
		c.opts.Logger.Printf("voice: capture retry failed session=%s err=%v", c.opts.SessionID, err)
		c.notifyError("capture_restart_failed", "capture", err.Error(), false)
		c.failSession("capture_restart_failed", err.Error())
		return
	}
	if c.state != StateListening {
		c.setState(StateListening, "")
	}
}

func (c *Controller) failSession(reason, detail string) {
	c.active.Store(false)
	c.recordEvent(reason)
	c.seg.Reset()
	c.cooldown.Stop()
	c.retry.Stop()
	c.manualStop = false
	c.speakingID = ""
	c.setState(StateError, detail)
}

func (c *Controller) setState(state SessionState, detail string) {
	if c.state == state {
		return
	}
	c.state = state
	if c.opts.Metrics != nil {
		c.opts.Metrics.StateTransitions.WithLabelValues(string(state)).Inc()
	}
	c.opts.Sink.NotifyState(state, detail)
}

func (c *Controller) appendTranscript(role, text string) {
	if c.opts.Transcripts == nil {
		return
	}
	stored, redacted := policy.RedactPII(text)
	entry := transcript.Entry{
		SessionID: c.opts.SessionID,
		Role:      role,
		Text:      stored,
		Redacted:  redacted,
	}
	go func() {
		storeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.opts.Transcripts.Append(storeCtx, entry); err != nil {
			c.opts.Logger.Printf("voice: transcript append failed session=%s err=%v", c.opts.SessionID, err)
		}
	}()
}

func (c *Controller) notifyError(code, source, detail string, retryable bool) {
	c.opts.Sink.NotifyError(code, source, detail, retryable)
}

func (c *Controller) recordEvent(name string) {
	if c.opts.Metrics != nil {
		c.opts.Metrics.SessionEvents.WithLabelValues(name).Inc()
	}
}

func (c *Controller) observeStage(stage string, d time.Duration) {
	if c.opts.Metrics != nil {
		c.opts.Metrics.ObserveStage(stage, d)
	}
}

func derefBool(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
