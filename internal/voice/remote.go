package voice

import (
	"context"
	"log"

	"github.com/novalabs/voiceloop/internal/protocol"
)

// RemoteEngine bridges a browser speech edge connected over a websocket.
// Directives go out as protocol messages on the outbound queue; the
// connection's read loop feeds engine events back in through Ingest.
type RemoteEngine struct {
	sessionID string
	outbound  chan<- any
	capture   chan CaptureEvent
	playback  chan PlaybackEvent
	logger    *log.Logger
}

func NewRemoteEngine(sessionID string, outbound chan<- any, logger *log.Logger) *RemoteEngine {
	if logger == nil {
		logger = log.Default()
	}
	return &RemoteEngine{
		sessionID: sessionID,
		outbound:  outbound,
		capture:   make(chan CaptureEvent, 64),
		playback:  make(chan PlaybackEvent, 16),
		logger:    logger,
	}
}

func (e *RemoteEngine) Start(ctx context.Context) error {
	return e.send(ctx, protocol.CaptureStart{Type: protocol.TypeCaptureStart, SessionID: e.sessionID})
}

func (e *RemoteEngine) Stop(ctx context.Context) error {
	return e.send(ctx, protocol.CaptureStop{Type: protocol.TypeCaptureStop, SessionID: e.sessionID})
}

func (e *RemoteEngine) Events() <-chan CaptureEvent { return e.capture }

func (e *RemoteEngine) Speak(ctx context.Context, utteranceID, text string) error {
	return e.send(ctx, protocol.Speak{
		Type:        protocol.TypeSpeak,
		SessionID:   e.sessionID,
		UtteranceID: utteranceID,
		Text:        text,
	})
}

func (e *RemoteEngine) Cancel(ctx context.Context) error {
	return e.send(ctx, protocol.SpeakCancel{Type: protocol.TypeSpeakCancel, SessionID: e.sessionID})
}

func (e *RemoteEngine) PlaybackEvents() <-chan PlaybackEvent { return e.playback }

// Ingest converts an inbound protocol message into an engine event.
// Messages that are not engine events are ignored.
func (e *RemoteEngine) Ingest(msg any) {
	switch m := msg.(type) {
	case protocol.RecognitionEvent:
		e.pushCapture(CaptureEvent{
			Type:       CaptureResult,
			Text:       m.Text,
			IsFinal:    m.IsFinal,
			Confidence: m.Confidence,
			TSMs:       m.TSMs,
		})
	case protocol.RecognitionError:
		e.pushCapture(CaptureEvent{Type: CaptureError, Code: m.Code, Detail: m.Detail})
	case protocol.RecognitionEnd:
		e.pushCapture(CaptureEvent{Type: CaptureEnded})
	case protocol.PlaybackStarted:
		e.pushPlayback(PlaybackEvent{Type: PlaybackStarted, UtteranceID: m.UtteranceID})
	case protocol.PlaybackEnded:
		e.pushPlayback(PlaybackEvent{Type: PlaybackEnded, UtteranceID: m.UtteranceID})
	case protocol.PlaybackError:
		e.pushPlayback(PlaybackEvent{Type: PlaybackError, UtteranceID: m.UtteranceID, Code: m.Code, Detail: m.Detail})
	}
}

func (e *RemoteEngine) send(ctx context.Context, msg any) error {
	select {
	case e.outbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *RemoteEngine) pushCapture(ev CaptureEvent) {
	select {
	case e.capture <- ev:
	default:
		e.logger.Printf("voice: capture event queue full session=%s", e.sessionID)
	}
}

func (e *RemoteEngine) pushPlayback(ev PlaybackEvent) {
	select {
	case e.playback <- ev:
	default:
		e.logger.Printf("voice: playback event queue full session=%s", e.sessionID)
	}
}
