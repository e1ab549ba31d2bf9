package voice

import (
	"strings"
	"time"
)

// segmenter accumulates finalized recognition segments into one utterance.
// A silence timer decides when the speaker is done: a short window after a
// finalized segment, a longer one while only interim text has arrived. Owned
// by the controller goroutine.
type segmenter struct {
	silenceWindow time.Duration
	finalWindow   time.Duration

	parts   []string
	interim string
	timer   eventTimer
}

func newSegmenter(silenceWindow, finalWindow time.Duration) *segmenter {
	return &segmenter{
		silenceWindow: silenceWindow,
		finalWindow:   finalWindow,
	}
}

// ObserveFinal buffers a finalized segment and arms the short silence window.
func (s *segmenter) ObserveFinal(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.parts = append(s.parts, text)
	s.interim = ""
	s.timer.Reset(s.finalWindow)
}

// ObserveInterim extends the silence window while the speaker is mid-phrase.
func (s *segmenter) ObserveInterim(text string) {
	s.interim = strings.TrimSpace(text)
	if s.interim == "" && len(s.parts) == 0 {
		return
	}
	s.timer.Reset(s.silenceWindow)
}

func (s *segmenter) TimerC() <-chan time.Time {
	return s.timer.C()
}

func (s *segmenter) DisarmTimer() {
	s.timer.Disarm()
}

// Take returns the buffered utterance and clears the segmenter. Trailing
// interim text is included; an utterance the engine never finalized still
// dispatches when the long silence window elapses.
func (s *segmenter) Take() string {
	text := strings.TrimSpace(strings.Join(append(s.parts, s.interim), " "))
	s.Reset()
	return text
}

func (s *segmenter) Reset() {
	s.parts = nil
	s.interim = ""
	s.timer.Stop()
}

func (s *segmenter) HasContent() bool {
	return len(s.parts) > 0 || s.interim != ""
}
