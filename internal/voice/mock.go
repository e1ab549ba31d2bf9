package voice

import (
	"context"
	"sync"
)

// MockEngine is a scriptable in-process speech edge used in tests and when
// no remote edge is connected. Tests push capture events with the Push
// helpers and inspect recorded Speak calls.
type MockEngine struct {
	mu       sync.Mutex
	capture  chan CaptureEvent
	playback chan PlaybackEvent

	started   bool
	starts    int
	stops     int
	startErrs []error
	spoken    []SpokenUtterance
	canceled  int
}

type SpokenUtterance struct {
	UtteranceID string
	Text        string
}

func NewMockEngine() *MockEngine {
	return &MockEngine{
		capture:  make(chan CaptureEvent, 64),
		playback: make(chan PlaybackEvent, 64),
	}
}

// FailNextStarts queues errors returned by the next Start calls, in order.
func (e *MockEngine) FailNextStarts(errs ...error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startErrs = append(e.startErrs, errs...)
}

func (e *MockEngine) Start(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.starts++
	if len(e.startErrs) > 0 {
		err := e.startErrs[0]
		e.startErrs = e.startErrs[1:]
		if err != nil {
			return err
		}
	}
	e.started = true
	return nil
}

func (e *MockEngine) Stop(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = false
	e.stops++
	return nil
}

func (e *MockEngine) Events() <-chan CaptureEvent { return e.capture }

func (e *MockEngine) Speak(_ context.Context, utteranceID, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spoken = append(e.spoken, SpokenUtterance{UtteranceID: utteranceID, Text: text})
	return nil
}

func (e *MockEngine) Cancel(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.canceled++
	return nil
}

func (e *MockEngine) PlaybackEvents() <-chan PlaybackEvent { return e.playback }

// PushResult injects a recognition result as if the engine produced it.
func (e *MockEngine) PushResult(text string, isFinal bool) {
	e.capture <- CaptureEvent{Type: CaptureResult, Text: text, IsFinal: isFinal}
}

func (e *MockEngine) PushError(code, detail string) {
	e.capture <- CaptureEvent{Type: CaptureError, Code: code, Detail: detail}
}

func (e *MockEngine) PushEnded() {
	e.capture <- CaptureEvent{Type: CaptureEnded}
}

func (e *MockEngine) PushPlayback(ev PlaybackEvent) {
	e.playback <- ev
}

func (e *MockEngine) Started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

func (e *MockEngine) Starts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starts
}

func (e *MockEngine) Stops() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stops
}

func (e *MockEngine) Spoken() []SpokenUtterance {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]SpokenUtterance, len(e.spoken))
	copy(out, e.spoken)
	return out
}

func (e *MockEngine) Canceled() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canceled
}
