package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	// Client → server: edge engine events and user control.
	TypeClientControl    MessageType = "client_control"
	TypeRecognitionEvent MessageType = "recognition_result"
	TypeRecognitionError MessageType = "recognition_error"
	TypeRecognitionEnd   MessageType = "recognition_end"
	TypePlaybackStarted  MessageType = "playback_started"
	TypePlaybackEnded    MessageType = "playback_ended"
	TypePlaybackError    MessageType = "playback_error"

	// Server → client: controller directives and notifications.
	TypeStateChange      MessageType = "state_change"
	TypeCaptureStart     MessageType = "capture_start"
	TypeCaptureStop      MessageType = "capture_stop"
	TypeSpeak            MessageType = "speak"
	TypeSpeakCancel      MessageType = "speak_cancel"
	TypeTranscriptRender MessageType = "transcript_render"
	TypeErrorEvent       MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientControl carries enable/disable requests from the UI. Capability
// flags are only meaningful on enable; nil means available.
type ClientControl struct {
	Type               MessageType `json:"type"`
	SessionID          string      `json:"session_id"`
	Action             string      `json:"action"`
	CaptureAvailable   *bool       `json:"capture_available,omitempty"`
	SynthesisAvailable *bool       `json:"synthesis_available,omitempty"`
}

type RecognitionEvent struct {
	Type       MessageType `json:"type"`
	SessionID  string      `json:"session_id"`
	Text       string      `json:"text"`
	IsFinal    bool        `json:"is_final"`
	Confidence float64     `json:"confidence,omitempty"`
	TSMs       int64       `json:"ts_ms"`
}

type RecognitionError struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type RecognitionEnd struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type PlaybackStarted struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	UtteranceID string      `json:"utterance_id"`
}

type PlaybackEnded struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	UtteranceID string      `json:"utterance_id"`
}

type PlaybackError struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	UtteranceID string      `json:"utterance_id"`
	Code        string      `json:"code"`
	Detail      string      `json:"detail,omitempty"`
}

// StateChange is the state-change notification consumed by status
// indicators. Detail carries in-progress speech text or an error message.
type StateChange struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	State     string      `json:"state"`
	Detail    string      `json:"detail,omitempty"`
}

type CaptureStart struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type CaptureStop struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

// Speak instructs the edge synthesizer. Text is already truncated for
// audio; the full response text travels via TranscriptRender.
type Speak struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	UtteranceID string      `json:"utterance_id"`
	Text        string      `json:"text"`
}

type SpeakCancel struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type TranscriptRender struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Role      string      `json:"role"`
	Text      string      `json:"text"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	case TypeRecognitionEvent:
		var msg RecognitionEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid recognition_result")
		}
		return msg, nil
	case TypeRecognitionError:
		var msg RecognitionError
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Code == "" {
			return nil, errors.New("invalid recognition_error")
		}
		return msg, nil
	case TypeRecognitionEnd:
		var msg RecognitionEnd
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid recognition_end")
		}
		return msg, nil
	case TypePlaybackStarted:
		var msg PlaybackStarted
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid playback_started")
		}
		return msg, nil
	case TypePlaybackEnded:
		var msg PlaybackEnded
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid playback_ended")
		}
		return msg, nil
	case TypePlaybackError:
		var msg PlaybackError
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Code == "" {
			return nil, errors.New("invalid playback_error")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
