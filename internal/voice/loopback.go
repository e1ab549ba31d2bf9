package voice

import (
	"context"
	"time"
)

// LoopbackEngine wraps a RemoteEngine for edges that cannot play audio.
// Speak directives still reach the client for display, but the playback
// lifecycle is simulated locally so the turn cycle completes.
type LoopbackEngine struct {
	*RemoteEngine
}

func NewLoopbackEngine(remote *RemoteEngine) *LoopbackEngine {
	return &LoopbackEngine{RemoteEngine: remote}
}

func (e *LoopbackEngine) Speak(ctx context.Context, utteranceID, text string) error {
	if err := e.RemoteEngine.Speak(ctx, utteranceID, text); err != nil {
		return err
	}
	go func() {
		e.pushPlayback(PlaybackEvent{Type: PlaybackStarted, UtteranceID: utteranceID})
		select {
		case <-ctx.Done():
			return
		case <-time.After(simulatedPlaybackDuration(text)):
		}
		e.pushPlayback(PlaybackEvent{Type: PlaybackEnded, UtteranceID: utteranceID})
	}()
	return nil
}

func simulatedPlaybackDuration(text string) time.Duration {
	d := time.Duration(len(text)) * 4 * time.Millisecond
	if d < 50*time.Millisecond {
		return 50 * time.Millisecond
	}
	if d > 2*time.Second {
		return 2 * time.Second
	}
	return d
}
