package voice

import (
	"context"
	"testing"

	"github.com/novalabs/voiceloop/internal/protocol"
)

func TestRemoteEngineSendsDirectives(t *testing.T) {
	outbound := make(chan any, 8)
	e := NewRemoteEngine("sess-1", outbound, nil)
	ctx := context.Background()

	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := e.Speak(ctx, "utt-1", "hello"); err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	if err := e.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := e.Cancel(ctx); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	start, ok := (<-outbound).(protocol.CaptureStart)
	if !ok || start.SessionID != "sess-1" {
		t.Fatalf("first directive = %+v, want CaptureStart", start)
	}
	speak, ok := (<-outbound).(protocol.Speak)
	if !ok || speak.UtteranceID != "utt-1" || speak.Text != "hello" {
		t.Fatalf("second directive = %+v, want Speak", speak)
	}
	if _, ok := (<-outbound).(protocol.CaptureStop); !ok {
		t.Fatalf("third directive is not CaptureStop")
	}
	if _, ok := (<-outbound).(protocol.SpeakCancel); !ok {
		t.Fatalf("fourth directive is not SpeakCancel")
	}
}

func TestRemoteEngineIngest(t *testing.T) {
	outbound := make(chan any, 8)
	e := NewRemoteEngine("sess-1", outbound, nil)

	e.Ingest(protocol.RecognitionEvent{SessionID: "sess-1", Text: "hi there", IsFinal: true, Confidence: 0.9})
	e.Ingest(protocol.RecognitionError{SessionID: "sess-1", Code: "network"})
	e.Ingest(protocol.RecognitionEnd{SessionID: "sess-1"})
	e.Ingest(protocol.PlaybackEnded{SessionID: "sess-1", UtteranceID: "utt-9"})

	ev := <-e.Events()
	if ev.Type != CaptureResult || ev.Text != "hi there" || !ev.IsFinal {
		t.Fatalf("first event = %+v", ev)
	}
	ev = <-e.Events()
	if ev.Type != CaptureError || ev.Code != "network" {
		t.Fatalf("second event = %+v", ev)
	}
	ev = <-e.Events()
	if ev.Type != CaptureEnded {
		t.Fatalf("third event = %+v", ev)
	}
	pb := <-e.PlaybackEvents()
	if pb.Type != PlaybackEnded || pb.UtteranceID != "utt-9" {
		t.Fatalf("playback event = %+v", pb)
	}
}

func TestRemoteEngineIgnoresUnrelatedMessages(t *testing.T) {
	outbound := make(chan any, 8)
	e := NewRemoteEngine("sess-1", outbound, nil)

	e.Ingest(protocol.ClientControl{SessionID: "sess-1", Action: "enable"})

	select {
	case ev := <-e.Events():
		t.Fatalf("unexpected capture event %+v", ev)
	default:
	}
}
