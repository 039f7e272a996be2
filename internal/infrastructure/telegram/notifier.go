package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"CallScorer/internal/domain"
	"CallScorer/internal/ports"
)

const (
	defaultAPIBase = "https://api.telegram.org"
	maxFailures    = 10
)

// Notifier sends run reports to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// PublishReport posts a Markdown summary of the run to Telegram.
func (n *Notifier) PublishReport(ctx context.Context, report domain.RunReport) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimSuffix(n.apiBase, "/"), n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", FormatReport(report))
	form.Set("parse_mode", "Markdown")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

// FormatReport renders a run report as a short Markdown message.
func FormatReport(r domain.RunReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "*QCI run* `%s`\n", r.RunID)
	fmt.Fprintf(&b, "Analyzed: %d, failed: %d, skipped: %d", r.Analyzed, r.Failed, r.Skipped)
	if r.Cancelled > 0 {
		fmt.Fprintf(&b, ", cancelled: %d", r.Cancelled)
	}
	b.WriteString("\n")
	if r.Aborted {
		b.WriteString("Run aborted: extraction kept failing at minimum settings\n")
	}

	s := r.Summary
	if s.Count > 0 {
		fmt.Fprintf(&b, "Score: mean %.2f (min %.2f, max %.2f) over %d calls\n", s.Mean, s.Min, s.Max, s.Count)
		fmt.Fprintf(&b, "Pass %d / review %d / fail %d\n", s.Pass, s.Review, s.Fail)
	}
	fmt.Fprintf(&b, "Cost: $%.4f (%d calls, %d retries)\n", r.Counters.CostUSD, r.Counters.ExtractionCalls, r.Counters.Retries)
	fmt.Fprintf(&b, "Batches: %d, final size %d, concurrency %d, took %s\n",
		r.Batches, r.FinalBatchSize, r.FinalConcurrency, r.Elapsed.Round(time.Second))

	for i, f := range r.Failures {
		if i == maxFailures {
			fmt.Fprintf(&b, "... and %d more failures\n", len(r.Failures)-maxFailures)
			break
		}
		fmt.Fprintf(&b, "- `%s`: %s\n", f.ItemID, f.Error)
	}

	return strings.TrimRight(b.String(), "\n")
}
