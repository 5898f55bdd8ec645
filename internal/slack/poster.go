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

	"github.com/MikeSquared-Agency/promptvault/internal/progress"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

// maxThreadErrors caps how many file errors are listed in the thread reply.
const maxThreadErrors = 20

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

// PostImportSummary posts a finished import session to Slack. Per-file
// errors go into a thread reply under the summary. Returns the message ts.
func (p *Poster) PostImportSummary(ctx context.Context, s progress.Session) (string, error) {
	text := formatImportSummary(s)

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
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": fmt.Sprintf("Session `%s` | %s", s.ID, s.Platform),
					},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}
	p.logger.Info("posted import summary to slack", "ts", ts, "session_id", s.ID)

	if len(s.Errors) > 0 {
		if err := p.PostThread(ctx, ts, formatErrors(s.Errors)); err != nil {
			p.logger.Warn("slack thread reply failed", "session_id", s.ID, "error", err)
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

func formatImportSummary(s progress.Session) string {
	var sb strings.Builder

	icon := ":white_check_mark:"
	if s.Status == progress.StatusFailed {
		icon = ":x:"
	}
	fmt.Fprintf(&sb, "%s *Import %s* for %s\n", icon, s.Status, s.UserID)
	fmt.Fprintf(&sb, "*Imported:* %d | *Skipped:* %d | *Processed:* %d/%d\n",
		s.ImportedCount, s.SkippedCount, s.ProcessedCount, s.TotalCount)

	if s.CompletedAt != nil {
		fmt.Fprintf(&sb, "*Duration:* %s\n", s.CompletedAt.Sub(s.StartedAt).Round(time.Second))
	}
	if s.Performance.ThroughputPerSec > 0 {
		fmt.Fprintf(&sb, "*Throughput:* %.1f files/s\n", s.Performance.ThroughputPerSec)
	}

	for _, w := range s.Warnings {
		fmt.Fprintf(&sb, ":warning: %s\n", w)
	}
	if len(s.Errors) > 0 {
		fmt.Fprintf(&sb, "_%d errors, see thread._", len(s.Errors))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatErrors(errs []string) string {
	var sb strings.Builder
	for i, e := range errs {
		if i == maxThreadErrors {
			fmt.Fprintf(&sb, "...and %d more", len(errs)-maxThreadErrors)
			break
		}
		fmt.Fprintf(&sb, "%d. %s\n", i+1, e)
	}
	return strings.TrimRight(sb.String(), "\n")
}
