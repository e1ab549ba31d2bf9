package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/novalabs/voiceloop/internal/chat"
)

type recordingSink struct {
	mu          sync.Mutex
	states      chan SessionState
	transcripts [][2]string
	errs        []string
	retryables  []bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{states: make(chan SessionState, 64)}
}

func (s *recordingSink) NotifyState(state SessionState, _ string) {
	select {
	case s.states <- state:
	default:
	}
}

func (s *recordingSink) RenderTranscript(role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts = append(s.transcripts, [2]string{role, text})
}

func (s *recordingSink) NotifyError(code, _, _ string, retryable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, code)
	s.retryables = append(s.retryables, retryable)
}

func (s *recordingSink) Transcripts() [][2]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][2]string, len(s.transcripts))
	copy(out, s.transcripts)
	return out
}

func (s *recordingSink) ErrorCodes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.errs))
	copy(out, s.errs)
	return out
}

func (s *recordingSink) ErrorRetryables() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]bool, len(s.retryables))
	copy(out, s.retryables)
	return out
}

type stubChat struct {
	mu    sync.Mutex
	calls int
	reply string
	err   error
	gate  chan struct{}
}

func (s *stubChat) Send(_ context.Context, req chat.Request) (chat.Response, error) {
	s.mu.Lock()
	s.calls++
	gate, reply, err := s.gate, s.reply, s.err
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return chat.Response{}, err
	}
	return chat.Response{Text: reply}, nil
}

func (s *stubChat) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testSettings() Settings {
	return Settings{
		SilenceWindow:      60 * time.Millisecond,
		FinalSilenceWindow: 10 * time.Millisecond,
		RestartCooldown:    10 * time.Millisecond,
		RestartRetryDelay:  10 * time.Millisecond,
		SpeechMaxChars:     2800,
		ChatTimeout:        2 * time.Second,
	}
}

func startController(t *testing.T, engine *MockEngine, backend chat.Client, sink Sink) *Controller {
	t.Helper()
	ctrl := NewController(Options{
		SessionID:   "sess-test",
		Recognizer:  engine,
		Synthesizer: engine,
		Chat:        backend,
		Sink:        sink,
		Settings:    testSettings(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go ctrl.Run(ctx)
	return ctrl
}

func waitForState(t *testing.T, sink *recordingSink, want SessionState) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-sink.states:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %q", want)
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestControllerFullTurn(t *testing.T) {
	engine := NewMockEngine()
	backend := &stubChat{reply: "The weather is sunny today."}
	sink := newRecordingSink()
	ctrl := startController(t, engine, backend, sink)

	ctrl.Enable(nil, nil)
	waitForState(t, sink, StateListening)
	if !ctrl.IsActive() {
		t.Fatalf("IsActive() = false after enable")
	}

	engine.PushResult("what is the weather", true)
	waitForState(t, sink, StateThinking)
	waitForState(t, sink, StateSpeaking)

	spoken := engine.Spoken()
	if len(spoken) != 1 {
		t.Fatalf("len(spoken) = %d, want 1", len(spoken))
	}
	if spoken[0].Text != "The weather is sunny today." {
		t.Fatalf("spoken text = %q", spoken[0].Text)
	}
	if spoken[0].UtteranceID == "" {
		t.Fatalf("spoken utterance has no ID")
	}

	engine.PushPlayback(PlaybackEvent{Type: PlaybackEnded, UtteranceID: spoken[0].UtteranceID})
	waitForState(t, sink, StateReady)
	waitForState(t, sink, StateListening)

	waitFor(t, "capture restart", func() bool { return engine.Starts() >= 2 })

	got := sink.Transcripts()
	if len(got) != 2 {
		t.Fatalf("len(transcripts) = %d, want 2", len(got))
	}
	if got[0][0] != "user" || got[0][1] != "what is the weather" {
		t.Fatalf("user transcript = %v", got[0])
	}
	if got[1][0] != "assistant" || got[1][1] != "The weather is sunny today." {
		t.Fatalf("assistant transcript = %v", got[1])
	}
}

func TestControllerSuppressesEcho(t *testing.T) {
	engine := NewMockEngine()
	backend := &stubChat{reply: "El clima es soleado."}
	sink := newRecordingSink()
	ctrl := startController(t, engine, backend, sink)

	ctrl.Enable(nil, nil)
	waitForState(t, sink, StateListening)

	engine.PushResult("como esta el clima", true)
	waitForState(t, sink, StateSpeaking)
	spoken := engine.Spoken()
	engine.PushPlayback(PlaybackEvent{Type: PlaybackEnded, UtteranceID: spoken[0].UtteranceID})
	waitForState(t, sink, StateListening)

	// The assistant reply comes back through the microphone.
	engine.PushResult("el clima es soleado", true)
	time.Sleep(100 * time.Millisecond)
	if backend.Calls() != 1 {
		t.Fatalf("chat calls = %d, want 1 (echo must not dispatch)", backend.Calls())
	}

	// Genuinely new speech still goes through.
	engine.PushResult("cuanta humedad hay", true)
	waitFor(t, "second dispatch", func() bool { return backend.Calls() == 2 })
}

func TestControllerEchoClearsBufferedUtterance(t *testing.T) {
	engine := NewMockEngine()
	backend := &stubChat{reply: "El clima es soleado."}
	sink := newRecordingSink()
	ctrl := startController(t, engine, backend, sink)

	ctrl.Enable(nil, nil)
	waitForState(t, sink, StateListening)

	engine.PushResult("como esta el clima", true)
	waitForState(t, sink, StateSpeaking)
	spoken := engine.Spoken()
	engine.PushPlayback(PlaybackEvent{Type: PlaybackEnded, UtteranceID: spoken[0].UtteranceID})
	waitForState(t, sink, StateListening)

	// Genuine interim speech is buffered, then the assistant reply leaks
	// back in before the silence window closes. The leak taints the whole
	// buffer, not just the echoed event.
	engine.PushResult("manana voy al mercado", false)
	engine.PushResult("el clima es soleado", true)
	time.Sleep(150 * time.Millisecond)
	if backend.Calls() != 1 {
		t.Fatalf("chat calls = %d, want 1 (echo must clear the buffered utterance)", backend.Calls())
	}
}

func TestControllerDiscardsResultsWhileSpeaking(t *testing.T) {
	engine := NewMockEngine()
	backend := &stubChat{reply: "a reply"}
	sink := newRecordingSink()
	ctrl := startController(t, engine, backend, sink)

	ctrl.Enable(nil, nil)
	waitForState(t, sink, StateListening)

	engine.PushResult("first question", true)
	waitForState(t, sink, StateSpeaking)

	engine.PushResult("picked up during playback", true)
	time.Sleep(100 * time.Millisecond)

	spoken := engine.Spoken()
	engine.PushPlayback(PlaybackEvent{Type: PlaybackEnded, UtteranceID: spoken[0].UtteranceID})
	waitForState(t, sink, StateListening)

	time.Sleep(100 * time.Millisecond)
	if backend.Calls() != 1 {
		t.Fatalf("chat calls = %d, want 1 (speech captured during playback must not dispatch)", backend.Calls())
	}
}

func TestControllerSingleSendInFlight(t *testing.T) {
	engine := NewMockEngine()
	gate := make(chan struct{})
	backend := &stubChat{reply: "done", gate: gate}
	sink := newRecordingSink()
	ctrl := startController(t, engine, backend, sink)

	ctrl.Enable(nil, nil)
	waitForState(t, sink, StateListening)

	engine.PushResult("first utterance", true)
	waitForState(t, sink, StateThinking)
	waitFor(t, "first send", func() bool { return backend.Calls() == 1 })

	// A second utterance finalizes while the first send is still pending.
	engine.PushResult("second utterance", true)
	time.Sleep(100 * time.Millisecond)
	if backend.Calls() != 1 {
		t.Fatalf("chat calls = %d, want 1 while a send is pending", backend.Calls())
	}

	close(gate)
	waitForState(t, sink, StateSpeaking)
	if got := len(engine.Spoken()); got != 1 {
		t.Fatalf("len(Spoken()) = %d, want 1", got)
	}
	if backend.Calls() != 1 {
		t.Fatalf("chat calls = %d, want 1 after the turn completes", backend.Calls())
	}
}

func TestControllerReenableSurvivesTrailingEngineEnd(t *testing.T) {
	engine := NewMockEngine()
	backend := &stubChat{reply: "hi"}
	sink := newRecordingSink()
	ctrl := startController(t, engine, backend, sink)

	ctrl.Enable(nil, nil)
	waitForState(t, sink, StateListening)

	ctrl.Disable()
	waitForState(t, sink, StateIdle)

	// The engine reports its end only after voice mode is already off, so
	// the controller never sees it consume the manual-stop flag.
	engine.PushEnded()
	time.Sleep(50 * time.Millisecond)

	ctrl.Enable(nil, nil)
	waitForState(t, sink, StateListening)
	waitFor(t, "second capture start", func() bool { return engine.Starts() >= 2 })

	// The first natural engine end of the new session must restart capture.
	engine.PushEnded()
	waitFor(t, "restart after natural engine end", func() bool { return engine.Starts() >= 3 })
	if !ctrl.IsActive() {
		t.Fatalf("IsActive() = false after engine end restart")
	}
}

func TestControllerFatalCaptureError(t *testing.T) {
	engine := NewMockEngine()
	backend := &stubChat{reply: "hi"}
	sink := newRecordingSink()
	ctrl := startController(t, engine, backend, sink)

	ctrl.Enable(nil, nil)
	waitForState(t, sink, StateListening)

	engine.PushError("not-allowed", "permission denied")
	waitForState(t, sink, StateError)
	waitFor(t, "deactivation", func() bool { return !ctrl.IsActive() })

	codes := sink.ErrorCodes()
	if len(codes) == 0 || codes[0] != "not-allowed" {
		t.Fatalf("error codes = %v, want [not-allowed]", codes)
	}
}

func TestControllerNoSpeechRestartsSilently(t *testing.T) {
	engine := NewMockEngine()
	backend := &stubChat{reply: "hi"}
	sink := newRecordingSink()
	ctrl := startController(t, engine, backend, sink)

	ctrl.Enable(nil, nil)
	waitForState(t, sink, StateListening)

	engine.PushError("no-speech", "")
	engine.PushEnded()
	waitFor(t, "silent restart", func() bool { return engine.Starts() >= 2 })

	if codes := sink.ErrorCodes(); len(codes) != 0 {
		t.Fatalf("error codes = %v, want none for no-speech", codes)
	}
	if !ctrl.IsActive() {
		t.Fatalf("IsActive() = false after no-speech restart")
	}
}

func TestControllerUnknownErrorFailsOpen(t *testing.T) {
	engine := NewMockEngine()
	backend := &stubChat{reply: "hi"}
	sink := newRecordingSink()
	ctrl := startController(t, engine, backend, sink)

	ctrl.Enable(nil, nil)
	waitForState(t, sink, StateListening)

	engine.PushError("mystery-code", "")
	engine.PushEnded()
	waitFor(t, "fail-open restart", func() bool { return engine.Starts() >= 2 })
	if !ctrl.IsActive() {
		t.Fatalf("IsActive() = false, unknown codes must not end the session")
	}
}

func TestControllerBoundedRestartRetry(t *testing.T) {
	engine := NewMockEngine()
	backend := &stubChat{reply: "hi"}
	sink := newRecordingSink()
	ctrl := startController(t, engine, backend, sink)

	ctrl.Enable(nil, nil)
	waitForState(t, sink, StateListening)

	engine.FailNextStarts(errors.New("engine busy"), errors.New("engine busy"))
	engine.PushError("network", "")
	engine.PushEnded()

	waitForState(t, sink, StateError)
	waitFor(t, "deactivation", func() bool { return !ctrl.IsActive() })
	if engine.Starts() != 3 {
		t.Fatalf("Starts() = %d, want 3 (initial, restart, one retry)", engine.Starts())
	}
}

func TestControllerRestartRetrySucceeds(t *testing.T) {
	engine := NewMockEngine()
	backend := &stubChat{reply: "hi"}
	sink := newRecordingSink()
	ctrl := startController(t, engine, backend, sink)

	ctrl.Enable(nil, nil)
	waitForState(t, sink, StateListening)

	engine.FailNextStarts(errors.New("engine busy"))
	engine.PushError("network", "")
	engine.PushEnded()

	waitFor(t, "retry success", func() bool { return engine.Starts() >= 3 && engine.Started() })
	if !ctrl.IsActive() {
		t.Fatalf("IsActive() = false after successful retry")
	}
}

func TestControllerSendFailureKeepsSessionAlive(t *testing.T) {
	engine := NewMockEngine()
	backend := &stubChat{err: errors.New("backend down")}
	sink := newRecordingSink()
	ctrl := startController(t, engine, backend, sink)

	ctrl.Enable(nil, nil)
	waitForState(t, sink, StateListening)

	engine.PushResult("hello there", true)
	waitForState(t, sink, StateError)
	waitForState(t, sink, StateListening)

	if !ctrl.IsActive() {
		t.Fatalf("IsActive() = false, send failure must not end the session")
	}
	codes := sink.ErrorCodes()
	if len(codes) != 1 || codes[0] != "chat_failed" {
		t.Fatalf("error codes = %v, want [chat_failed]", codes)
	}
	if flags := sink.ErrorRetryables(); len(flags) != 1 || !flags[0] {
		t.Fatalf("retryable flags = %v, want [true] for a transport error", flags)
	}
}

func TestControllerSendFailureRetryableFromStatus(t *testing.T) {
	engine := NewMockEngine()
	backend := &stubChat{err: &chat.HTTPError{Status: 400, Body: "bad request"}}
	sink := newRecordingSink()
	ctrl := startController(t, engine, backend, sink)

	ctrl.Enable(nil, nil)
	waitForState(t, sink, StateListening)

	engine.PushResult("hello there", true)
	waitForState(t, sink, StateError)
	waitForState(t, sink, StateListening)

	codes := sink.ErrorCodes()
	if len(codes) != 1 || codes[0] != "chat_failed" {
		t.Fatalf("error codes = %v, want [chat_failed]", codes)
	}
	if flags := sink.ErrorRetryables(); len(flags) != 1 || flags[0] {
		t.Fatalf("retryable flags = %v, want [false] for status 400", flags)
	}
}

func TestControllerWithoutSynthesisSkipsPlayback(t *testing.T) {
	engine := NewMockEngine()
	backend := &stubChat{reply: "silent reply"}
	sink := newRecordingSink()
	ctrl := startController(t, engine, backend, sink)

	no := false
	ctrl.Enable(nil, &no)
	waitForState(t, sink, StateListening)

	engine.PushResult("talk to me", true)
	waitForState(t, sink, StateThinking)
	waitForState(t, sink, StateReady)
	waitForState(t, sink, StateListening)

	if len(engine.Spoken()) != 0 {
		t.Fatalf("Spoken() = %v, want none without synthesis", engine.Spoken())
	}
	got := sink.Transcripts()
	if len(got) != 2 || got[1][1] != "silent reply" {
		t.Fatalf("transcripts = %v", got)
	}
}

func TestControllerWithoutCaptureFails(t *testing.T) {
	engine := NewMockEngine()
	backend := &stubChat{reply: "hi"}
	sink := newRecordingSink()
	ctrl := startController(t, engine, backend, sink)

	no := false
	ctrl.Enable(&no, nil)
	waitForState(t, sink, StateError)
	if ctrl.IsActive() {
		t.Fatalf("IsActive() = true without capture support")
	}
	codes := sink.ErrorCodes()
	if len(codes) != 1 || codes[0] != "capture_unsupported" {
		t.Fatalf("error codes = %v", codes)
	}
}

func TestControllerDisableStopsEverything(t *testing.T) {
	engine := NewMockEngine()
	backend := &stubChat{reply: "a long reply"}
	sink := newRecordingSink()
	ctrl := startController(t, engine, backend, sink)

	ctrl.Enable(nil, nil)
	waitForState(t, sink, StateListening)

	engine.PushResult("say something", true)
	waitForState(t, sink, StateSpeaking)

	ctrl.Disable()
	waitForState(t, sink, StateIdle)
	waitFor(t, "deactivation", func() bool { return !ctrl.IsActive() })
	waitFor(t, "playback cancel", func() bool { return engine.Canceled() == 1 })
}
