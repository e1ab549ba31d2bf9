package httpapi

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/novalabs/voiceloop/internal/protocol"
	"github.com/novalabs/voiceloop/internal/session"
	"github.com/novalabs/voiceloop/internal/voice"
)

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if sess.Status != session.StatusActive {
		respondError(w, http.StatusConflict, "session_ended", "session is no longer active")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 256)

	remote := voice.NewRemoteEngine(sessionID, outbound, s.logger)
	var engine voice.Engine = remote
	if strings.EqualFold(strings.TrimSpace(s.cfg.EngineProvider), "mock") {
		engine = voice.NewLoopbackEngine(remote)
	}

	sink := &wsSink{sessionID: sessionID, outbound: outbound, logger: s.logger}
	ctrl := voice.NewController(voice.Options{
		SessionID:   sessionID,
		Recognizer:  engine,
		Synthesizer: engine,
		Chat:        s.chat,
		Sink:        sink,
		Metrics:     s.metrics,
		Sessions:    s.sessions,
		Transcripts: s.transcripts,
		Logger:      s.logger,
		Settings: voice.Settings{
			SilenceWindow:      s.cfg.SilenceWindow,
			FinalSilenceWindow: s.cfg.FinalSilenceWindow,
			RestartCooldown:    s.cfg.RestartCooldown,
			RestartRetryDelay:  s.cfg.RestartRetryDelay,
			SpeechMaxChars:     s.cfg.SpeechMaxChars,
			ChatTimeout:        s.cfg.ChatTimeout,
		},
	})

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		ctrl.Run(ctx)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			sink.push(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Retryable: false,
				Detail:    err.Error(),
			})
			continue
		}

		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}
		_ = s.sessions.Touch(sessionID)

		if ctl, ok := parsed.(protocol.ClientControl); ok {
			switch strings.ToLower(strings.TrimSpace(ctl.Action)) {
			case "enable":
				ctrl.Enable(ctl.CaptureAvailable, ctl.SynthesisAvailable)
			case "disable":
				ctrl.Disable()
			default:
				sink.push(protocol.ErrorEvent{
					Type:      protocol.TypeErrorEvent,
					SessionID: sessionID,
					Code:      "unknown_action",
					Source:    "gateway",
					Retryable: false,
					Detail:    "unsupported control action: " + ctl.Action,
				})
			}
			continue
		}

		remote.Ingest(parsed)
	}

	cancel()
	<-runDone
	<-writerDone
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
}

// wsSink forwards controller output to the websocket writer. Writes never
// block the controller; a saturated queue drops the message.
type wsSink struct {
	sessionID string
	outbound  chan<- any
	logger    *log.Logger
}

func (s *wsSink) NotifyState(state voice.SessionState, detail string) {
	s.push(protocol.StateChange{
		Type:      protocol.TypeStateChange,
		SessionID: s.sessionID,
		State:     string(state),
		Detail:    detail,
	})
}

func (s *wsSink) RenderTranscript(role, text string) {
	s.push(protocol.TranscriptRender{
		Type:      protocol.TypeTranscriptRender,
		SessionID: s.sessionID,
		Role:      role,
		Text:      text,
	})
}

func (s *wsSink) NotifyError(code, source, detail string, retryable bool) {
	s.push(protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: s.sessionID,
		Code:      code,
		Source:    source,
		Retryable: retryable,
		Detail:    detail,
	})
}

func (s *wsSink) push(msg any) {
	select {
	case s.outbound <- msg:
	default:
		s.logger.Printf("httpapi: outbound queue full, dropping message session=%s", s.sessionID)
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientControl:
		return m.Type, true
	case protocol.RecognitionEvent:
		return m.Type, true
	case protocol.RecognitionError:
		return m.Type, true
	case protocol.RecognitionEnd:
		return m.Type, true
	case protocol.PlaybackStarted:
		return m.Type, true
	case protocol.PlaybackEnded:
		return m.Type, true
	case protocol.PlaybackError:
		return m.Type, true
	case protocol.StateChange:
		return m.Type, true
	case protocol.CaptureStart:
		return m.Type, true
	case protocol.CaptureStop:
		return m.Type, true
	case protocol.Speak:
		return m.Type, true
	case protocol.SpeakCancel:
		return m.Type, true
	case protocol.TranscriptRender:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
