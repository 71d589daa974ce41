// Package sink implements the notification destinations the alert actor
// dispatches transitions to. A Sink is deliberately narrow: it accepts one
// already-evaluated Notification and is responsible only for its own
// formatting and transport — a delivery failure never reaches evaluation.
// Dispatch runs synchronously on the caller's goroutine, bounded by the
// caller's context and the sink's HTTP timeout.
//
// The two concrete sinks implement one common Sink interface rather than
// sharing a base type, Go's usual way of expressing "one of several
// destinations" without inheritance.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fleetwatch/hub/pkg/grace"
	"github.com/fleetwatch/hub/pkg/log"
	"github.com/fleetwatch/hub/pkg/metrics"
)

// Kind identifies what sort of resource a Notification reports on; it only
// affects message copy and iconography, not dispatch mechanics.
type Kind string

const (
	KindTemperature Kind = "temperature"
	KindUsage       Kind = "usage"
	KindService     Kind = "service"
)

// Notification is the fully-evaluated payload a Sink formats and sends:
// event kind, verdict, current value, threshold, target name, optional
// user mention, plus the service-only fields (URL, error) a service
// transition carries.
type Notification struct {
	Kind         Kind
	Verdict      grace.Verdict
	ServerIP     string
	TargetName   string
	UserMention  *string
	CurrentValue float64
	Threshold    float64
	HasValue     bool // false for service notifications, which have no scalar reading
	ServiceURL   string
	ErrorMessage *string
	// PreviousStatus and CurrentStatus carry a service check's status
	// transition; both are empty for server limit notifications.
	PreviousStatus string
	CurrentStatus  string
}

// Sink is an abstract notification destination. Implementations log their
// own failures and return no error, so a failing webhook cannot change
// evaluator state; a slow one holds the caller until its request completes
// or times out.
type Sink interface {
	Dispatch(ctx context.Context, n Notification)
}

const httpTimeout = 10 * time.Second

// Discord colors, lifted verbatim from discord.rs's embed builders.
const (
	colorRed       = 15158332
	colorOrange    = 15105570
	colorGreen     = 3066993
	colorLightBlue = 5793266
)

// DiscordSink posts a rich embed to a Discord-compatible webhook URL.
type DiscordSink struct {
	URL    string
	UserID *string
	client *http.Client
}

// NewDiscordSink builds a Discord sink posting to url, optionally mentioning
// userID in the message content.
func NewDiscordSink(url string, userID *string) *DiscordSink {
	return &DiscordSink{URL: url, UserID: userID, client: &http.Client{Timeout: httpTimeout}}
}

type discordMessage struct {
	Content *string        `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       *string             `json:"title,omitempty"`
	Description *string             `json:"description,omitempty"`
	Color       *int                `json:"color,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Footer      *discordEmbedFooter `json:"footer,omitempty"`
	Timestamp   *string             `json:"timestamp,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbedFooter struct {
	Text string `json:"text"`
}

func (d *DiscordSink) Dispatch(ctx context.Context, n Notification) {
	logger := log.WithComponent("sink.discord")

	embed := buildEmbed(n)
	msg := discordMessage{Embeds: []discordEmbed{embed}}
	if d.UserID != nil {
		content := fmt.Sprintf("%s (%s) <@%s>", kindEmoji(n.Kind), n.TargetName, *d.UserID)
		msg.Content = &content
	}

	body, err := json.Marshal(msg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode discord message")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		logger.Error().Err(err).Msg("failed to build discord request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		logger.Error().Err(err).Msg("failed to send discord message")
		metrics.AlertsDispatchedTotal.WithLabelValues("discord", "error").Inc()
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		logger.Debug().Msg("discord message sent")
		metrics.AlertsDispatchedTotal.WithLabelValues("discord", "ok").Inc()
		return
	}
	logger.Error().Int("status", resp.StatusCode).Msg("discord message rejected")
	metrics.AlertsDispatchedTotal.WithLabelValues("discord", "error").Inc()
}

func buildEmbed(n Notification) discordEmbed {
	title, description, color := titleDescriptionColor(n)
	footer := discordEmbedFooter{Text: fmt.Sprintf("%s | %s", n.TargetName, n.ServerIP)}
	timestamp := time.Now().UTC().Format(time.RFC3339)

	var fields []discordEmbedField
	if n.HasValue {
		fields = []discordEmbedField{
			{Name: fmt.Sprintf("%s Current", kindEmoji(n.Kind)), Value: formatValue(n.Kind, n.CurrentValue), Inline: true},
			{Name: "⚠️ Limit", Value: formatValue(n.Kind, n.Threshold), Inline: true},
			{Name: "📊 Status", Value: progressBar(n.CurrentValue, n.Threshold), Inline: false},
		}
	} else {
		if n.PreviousStatus != "" && n.CurrentStatus != "" {
			fields = append(fields, discordEmbedField{
				Name:   "🔁 Status",
				Value:  fmt.Sprintf("%s → %s", n.PreviousStatus, n.CurrentStatus),
				Inline: true,
			})
		}
		if n.ErrorMessage != nil {
			fields = append(fields, discordEmbedField{Name: "❗ Detail", Value: *n.ErrorMessage, Inline: false})
		}
	}

	return discordEmbed{
		Title:       &title,
		Description: &description,
		Color:       &color,
		Fields:      fields,
		Footer:      &footer,
		Timestamp:   &timestamp,
	}
}

func titleDescriptionColor(n Notification) (string, string, int) {
	switch n.Verdict {
	case grace.StartsToExceed:
		color := colorOrange
		if n.Kind == KindTemperature {
			color = colorRed
		}
		return fmt.Sprintf("%s Alert", capitalize(string(n.Kind))),
			fmt.Sprintf("**%s** %s has exceeded the limit!", n.TargetName, string(n.Kind)), color
	case grace.BackToOk:
		return fmt.Sprintf("✅ %s Recovered", capitalize(string(n.Kind))),
			fmt.Sprintf("**%s** %s is back to normal", n.TargetName, string(n.Kind)), colorGreen
	default:
		return fmt.Sprintf("%s Update", capitalize(string(n.Kind))),
			fmt.Sprintf("Update for **%s**", n.TargetName), colorLightBlue
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func kindEmoji(k Kind) string {
	switch k {
	case KindTemperature:
		return "🌡️"
	case KindUsage:
		return "💻"
	default:
		return "🔔"
	}
}

func formatValue(k Kind, v float64) string {
	if k == KindTemperature {
		return fmt.Sprintf("%.1f°C", v)
	}
	return fmt.Sprintf("%.1f%%", v)
}

// progressBar renders a 10-block bar and a status emoji from current/limit,
// mirroring discord.rs's create_progress_bar exactly.
func progressBar(current, limit float64) string {
	percentage := (current / limit) * 100.0
	filled := int((current / limit) * 10.0)
	if filled > 10 {
		filled = 10
	}
	if filled < 0 {
		filled = 0
	}
	empty := 10 - filled

	bar := strings.Repeat("█", filled) + strings.Repeat("░", empty)

	var emoji string
	switch {
	case percentage >= 100.0:
		emoji = "🔴"
	case percentage >= 80.0:
		emoji = "🟠"
	case percentage >= 60.0:
		emoji = "🟡"
	default:
		emoji = "🟢"
	}

	return fmt.Sprintf("%s `%s` %.1f%% of limit", emoji, bar, percentage)
}

// WebhookSink posts a flat JSON payload to an arbitrary URL.
type WebhookSink struct {
	URL    string
	client *http.Client
}

// NewWebhookSink builds a webhook sink posting to url.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{URL: url, client: &http.Client{Timeout: httpTimeout}}
}

type webhookPayload struct {
	Message   string `json:"message"`
	Target    string `json:"target"`
	Kind      string `json:"kind"`
	Verdict   string `json:"verdict"`
	Timestamp string `json:"timestamp"`
}

func (w *WebhookSink) Dispatch(ctx context.Context, n Notification) {
	logger := log.WithComponent("sink.webhook")

	payload := webhookPayload{
		Message:   formatMessage(n),
		Target:    n.TargetName,
		Kind:      string(n.Kind),
		Verdict:   n.Verdict.String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode webhook payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		logger.Error().Err(err).Msg("failed to build webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		logger.Error().Err(err).Msg("failed to send webhook alert")
		metrics.AlertsDispatchedTotal.WithLabelValues("webhook", "error").Inc()
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		logger.Debug().Msg("webhook alert sent")
		metrics.AlertsDispatchedTotal.WithLabelValues("webhook", "ok").Inc()
		return
	}
	logger.Error().Int("status", resp.StatusCode).Msg("webhook alert rejected")
	metrics.AlertsDispatchedTotal.WithLabelValues("webhook", "error").Inc()
}

func formatMessage(n Notification) string {
	if n.HasValue {
		switch n.Verdict {
		case grace.StartsToExceed:
			return fmt.Sprintf("%s alert: %s is %s (limit %s)", n.Kind, n.TargetName, formatValue(n.Kind, n.CurrentValue), formatValue(n.Kind, n.Threshold))
		case grace.BackToOk:
			return fmt.Sprintf("%s recovered: %s is back to normal at %s", n.Kind, n.TargetName, formatValue(n.Kind, n.CurrentValue))
		default:
			return fmt.Sprintf("%s update for %s: %s", n.Kind, n.TargetName, formatValue(n.Kind, n.CurrentValue))
		}
	}

	transition := ""
	if n.PreviousStatus != "" && n.CurrentStatus != "" {
		transition = fmt.Sprintf(" (%s -> %s)", n.PreviousStatus, n.CurrentStatus)
	}

	switch n.Verdict {
	case grace.StartsToExceed:
		msg := fmt.Sprintf("service alert: %s is down%s", n.TargetName, transition)
		if n.ErrorMessage != nil {
			msg += fmt.Sprintf(" (%s)", *n.ErrorMessage)
		}
		return msg
	case grace.BackToOk:
		return fmt.Sprintf("service recovered: %s is back up%s", n.TargetName, transition)
	default:
		return fmt.Sprintf("service update for %s", n.TargetName)
	}
}
