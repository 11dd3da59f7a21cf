package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// Summary describes one finished generation for the channel.
type Summary struct {
	ArtifactID   string
	Kind         string
	Mode         string
	Succeeded    bool
	TotalChunks  int
	FailedChunks int
	ProcessingMs int64
	SourceRef    string
	Error        string
	// Failures holds one line per failed chunk; posted as a thread reply.
	Failures []string
}

// PostArtifactSummary posts s to the channel and, when chunks failed, a
// threaded reply listing them. It returns the message timestamp.
func (p *Poster) PostArtifactSummary(ctx context.Context, s Summary) (string, error) {
	text := formatSummary(s)

	ts, err := p.post(ctx, map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
		},
	})
	if err != nil {
		return "", err
	}

	p.logger.Info("posted artifact summary to slack", "ts", ts, "artifact_id", s.ArtifactID)

	if len(s.Failures) > 0 {
		if err := p.PostThread(ctx, ts, formatFailures(s.Failures)); err != nil {
			p.logger.Warn("failed to post chunk failures", "ts", ts, "error", err)
		}
	}
	return ts, nil
}

// PostThread posts a threaded reply to a message.
func (p *Poster) PostThread(ctx context.Context, threadTS, text string) error {
	_, err := p.post(ctx, map[string]any{
		"channel":   p.channel,
		"thread_ts": threadTS,
		"text":      text,
	})
	return err
}

func (p *Poster) post(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return slackResp.TS, nil
}

func formatSummary(s Summary) string {
	var sb strings.Builder

	if s.Succeeded {
		fmt.Fprintf(&sb, ":page_facing_up: *%s generated*", s.Kind)
	} else {
		fmt.Fprintf(&sb, ":x: *%s failed*", s.Kind)
	}
	if s.SourceRef != "" {
		fmt.Fprintf(&sb, " for `%s`", s.SourceRef)
	}
	sb.WriteString("\n")

	if s.Mode != "" {
		fmt.Fprintf(&sb, "Mode: %s", s.Mode)
		if s.TotalChunks > 0 {
			fmt.Fprintf(&sb, " | Chunks: %d", s.TotalChunks)
			if s.FailedChunks > 0 {
				fmt.Fprintf(&sb, " (%d unavailable)", s.FailedChunks)
			}
		}
		fmt.Fprintf(&sb, " | %s\n", formatDuration(s.ProcessingMs))
	}
	if s.Error != "" {
		fmt.Fprintf(&sb, "> %s\n", truncate(s.Error, 300))
	}
	if s.ArtifactID != "" {
		fmt.Fprintf(&sb, "_artifact %s_", s.ArtifactID)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatFailures(lines []string) string {
	var sb strings.Builder
	sb.WriteString("*Chunk failures*\n")
	for _, l := range lines {
		fmt.Fprintf(&sb, "• %s\n", truncate(l, 200))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatDuration(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).Round(100 * time.Millisecond).String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
