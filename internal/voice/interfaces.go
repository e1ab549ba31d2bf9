package voice

import "context"

type CaptureEventType string

const (
	CaptureResult CaptureEventType = "result"
	CaptureError  CaptureEventType = "error"
	CaptureEnded  CaptureEventType = "ended"
)

// CaptureEvent is one recognizer notification. Result events carry
// transcript text; error events carry an engine code for classification.
type CaptureEvent struct {
	Type       CaptureEventType
	Text       string
	IsFinal    bool
	Confidence float64
	Code       string
	Detail     string
	TSMs       int64
}

type PlaybackEventType string

const (
	PlaybackStarted PlaybackEventType = "started"
	PlaybackEnded   PlaybackEventType = "ended"
	PlaybackError   PlaybackEventType = "error"
)

type PlaybackEvent struct {
	Type        PlaybackEventType
	UtteranceID string
	Code        string
	Detail      string
}

// Recognizer controls a speech capture engine and surfaces its events.
type Recognizer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Events() <-chan CaptureEvent
}

// Synthesizer speaks assistant text and reports playback lifecycle.
type Synthesizer interface {
	Speak(ctx context.Context, utteranceID, text string) error
	Cancel(ctx context.Context) error
	PlaybackEvents() <-chan PlaybackEvent
}

// Engine combines both halves of a speech edge.
type Engine interface {
	Recognizer
	Synthesizer
}
