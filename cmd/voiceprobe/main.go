package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/novalabs/voiceloop/internal/protocol"
)

type options struct {
	baseURL        string
	userID         string
	turns          int
	startDelay     time.Duration
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	verbose        bool
	showPerf       bool
}

type createSessionRequest struct {
	UserID string `json:"user_id,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type wsEnvelope struct {
	Type        string `json:"type"`
	SessionID   string `json:"session_id,omitempty"`
	State       string `json:"state,omitempty"`
	UtteranceID string `json:"utterance_id,omitempty"`
	Role        string `json:"role,omitempty"`
	Text        string `json:"text,omitempty"`
	Code        string `json:"code,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

var defaultUtterances = []string{
	"reply in three words: latency bottleneck?",
	"reply in three words: next optimization?",
	"reply in three words: architecture summary?",
	"reply in three words: top risk?",
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voiceprobe: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "voiceprobe: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var textsRaw string
	var startDelayMS int
	var interTurnMS int
	var turnTimeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "voiceloop base URL")
	flag.StringVar(&cfg.userID, "user-id", "probe", "user_id used for the synthetic session")
	flag.IntVar(&cfg.turns, "turns", 10, "number of turns to replay")
	flag.IntVar(&startDelayMS, "start-delay-ms", 300, "delay before the first synthetic turn in milliseconds")
	flag.IntVar(&interTurnMS, "inter-turn-ms", 180, "delay between turns in milliseconds")
	flag.IntVar(&turnTimeoutMS, "turn-timeout-ms", 15000, "timeout waiting for each turn in milliseconds")
	flag.StringVar(&textsRaw, "texts", "", "utterances separated by '|' (optional)")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	flag.BoolVar(&cfg.showPerf, "perf", true, "fetch the server perf snapshot after the replay")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if startDelayMS < 0 {
		startDelayMS = 0
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.startDelay = time.Duration(startDelayMS) * time.Millisecond
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond

	if strings.TrimSpace(textsRaw) == "" {
		cfg.texts = append([]string(nil), defaultUtterances...)
	} else {
		for _, part := range strings.Split(textsRaw, "|") {
			t := strings.TrimSpace(part)
			if t != "" {
				cfg.texts = append(cfg.texts, t)
			}
		}
		if len(cfg.texts) == 0 {
			return options{}, fmt.Errorf("texts produced no non-empty utterances")
		}
	}
	return cfg, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Minute)
	defer cancel()

	httpClient := &http.Client{Timeout: 45 * time.Second}
	sessionID, err := createSession(ctx, httpClient, cfg)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer func() {
		_ = endSession(context.Background(), httpClient, cfg.baseURL, sessionID)
	}()

	if cfg.verbose {
		fmt.Printf("voiceprobe: session=%s turns=%d\n", sessionID, cfg.turns)
	}

	wsURL, err := wsURLForSession(cfg.baseURL, sessionID)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	send := func(msg any) error {
		return conn.WriteJSON(msg)
	}

	if err := send(protocol.ClientControl{
		Type:      protocol.TypeClientControl,
		SessionID: sessionID,
		Action:    "enable",
	}); err != nil {
		return fmt.Errorf("send enable: %w", err)
	}
	if _, err := awaitMessage(conn, "capture_start", cfg.turnTimeout); err != nil {
		return fmt.Errorf("await capture start: %w", err)
	}

	if cfg.startDelay > 0 {
		time.Sleep(cfg.startDelay)
	}

	latencies := make([]time.Duration, 0, cfg.turns)
	for i := 0; i < cfg.turns; i++ {
		text := cfg.texts[i%len(cfg.texts)]
		if cfg.verbose {
			fmt.Printf("voiceprobe: turn %d/%d text=%q\n", i+1, cfg.turns, text)
		}

		start := time.Now()
		if err := send(protocol.RecognitionEvent{
			Type:      protocol.TypeRecognitionEvent,
			SessionID: sessionID,
			Text:      text,
			IsFinal:   true,
			TSMs:      start.UnixMilli(),
		}); err != nil {
			return fmt.Errorf("turn %d send utterance: %w", i+1, err)
		}

		speak, err := awaitMessage(conn, "speak", cfg.turnTimeout)
		if err != nil {
			return fmt.Errorf("turn %d await speak: %w", i+1, err)
		}
		latency := time.Since(start)
		latencies = append(latencies, latency)
		if cfg.verbose {
			fmt.Printf("voiceprobe: turn %d latency=%s reply_len=%d\n", i+1, latency.Round(time.Millisecond), len(speak.Text))
		}

		if err := send(protocol.PlaybackStarted{
			Type:        protocol.TypePlaybackStarted,
			SessionID:   sessionID,
			UtteranceID: speak.UtteranceID,
		}); err != nil {
			return fmt.Errorf("turn %d send playback started: %w", i+1, err)
		}
		if err := send(protocol.PlaybackEnded{
			Type:        protocol.TypePlaybackEnded,
			SessionID:   sessionID,
			UtteranceID: speak.UtteranceID,
		}); err != nil {
			return fmt.Errorf("turn %d send playback ended: %w", i+1, err)
		}

		// The controller restarts capture after its cooldown.
		if _, err := awaitMessage(conn, "capture_start", cfg.turnTimeout); err != nil {
			return fmt.Errorf("turn %d await capture restart: %w", i+1, err)
		}
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	printSummary(latencies)

	if cfg.showPerf {
		if err := printPerfSnapshot(ctx, httpClient, cfg.baseURL); err != nil {
			fmt.Fprintf(os.Stderr, "voiceprobe: perf snapshot unavailable: %v\n", err)
		}
	}
	return nil
}

func awaitMessage(conn *websocket.Conn, wantType string, timeout time.Duration) (wsEnvelope, error) {
	deadline := time.Now().Add(timeout)
	_ = conn.SetReadDeadline(deadline)
	for {
		var msg wsEnvelope
		if err := conn.ReadJSON(&msg); err != nil {
			return wsEnvelope{}, err
		}
		if msg.Type == "error_event" && msg.Code != "" {
			return wsEnvelope{}, fmt.Errorf("server error %s: %s", msg.Code, msg.Detail)
		}
		if msg.Type == wantType {
			return msg, nil
		}
		if time.Now().After(deadline) {
			return wsEnvelope{}, fmt.Errorf("timed out waiting for %s", wantType)
		}
	}
}

func printSummary(latencies []time.Duration) {
	if len(latencies) == 0 {
		fmt.Println("voiceprobe: no completed turns")
		return
	}
	sorted := append([]time.Duration(nil), latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	avg := total / time.Duration(len(sorted))
	p50 := sorted[len(sorted)/2]
	p95 := sorted[(len(sorted)*95)/100]
	if (len(sorted)*95)/100 >= len(sorted) {
		p95 = sorted[len(sorted)-1]
	}

	fmt.Printf("voiceprobe: turns=%d avg=%s p50=%s p95=%s min=%s max=%s\n",
		len(sorted),
		avg.Round(time.Millisecond),
		p50.Round(time.Millisecond),
		p95.Round(time.Millisecond),
		sorted[0].Round(time.Millisecond),
		sorted[len(sorted)-1].Round(time.Millisecond),
	)
}

func printPerfSnapshot(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/perf/latency", nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Printf("voiceprobe: perf snapshot: %s\n", strings.TrimSpace(string(body)))
		return nil
	}
	fmt.Printf("voiceprobe: perf snapshot:\n%s\n", pretty.String())
	return nil
}

func createSession(ctx context.Context, client *http.Client, cfg options) (string, error) {
	payload, err := json.Marshal(createSessionRequest{UserID: cfg.userID})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/v1/voice/session", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var out createSessionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return "", fmt.Errorf("missing session_id in response")
	}
	return out.SessionID, nil
}

func endSession(ctx context.Context, client *http.Client, baseURL, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/voice/session/"+url.PathEscape(sessionID)+"/end", nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

func wsURLForSession(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/voice/session/ws"
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
