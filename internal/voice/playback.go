package voice

const speechEllipsis = "..."

// prepareSpeech sanitizes assistant text for synthesis and truncates it to
// maxChars runes. Long replies are cut for audio only; the full text still
// reaches the transcript and the echo filter.
func prepareSpeech(text string, maxChars int) string {
	clean := sanitizeSpeechText(text)
	if maxChars <= 0 {
		return clean
	}
	runes := []rune(clean)
	if len(runes) <= maxChars {
		return clean
	}
	return string(runes[:maxChars]) + speechEllipsis
}
