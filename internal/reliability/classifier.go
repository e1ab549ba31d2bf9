package reliability

import "time"

// CaptureErrorClass buckets recognizer failure codes by required reaction.
type CaptureErrorClass string

const (
	// CaptureFatal ends the session; the user must re-enable voice mode.
	CaptureFatal CaptureErrorClass = "fatal"
	// CaptureSoft is recovered by a silent restart while the session is active.
	CaptureSoft CaptureErrorClass = "soft"
	// CaptureNoSpeech is a routine pause; always retried, never surfaced.
	CaptureNoSpeech CaptureErrorClass = "no_speech"
)

// ClassifyCaptureError maps a recognizer error code to its class. Unknown
// codes classify as soft so a transient engine hiccup never kills the
// session; a persistently broken engine shows up in the restart metrics
// instead.
func ClassifyCaptureError(code string) CaptureErrorClass {
	switch code {
	case "not-allowed", "service-not-allowed":
		return CaptureFatal
	case "no-speech":
		return CaptureNoSpeech
	case "network", "aborted", "audio-capture", "language-not-supported", "bad-grammar":
		return CaptureSoft
	default:
		return CaptureSoft
	}
}

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
