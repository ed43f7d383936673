package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/girste/blueteam/internal/config"
	"github.com/girste/blueteam/internal/output"
	"github.com/girste/blueteam/internal/scan"
	"github.com/girste/blueteam/internal/util"
)

const (
	webhookTimeout = 10 * time.Second
	maxListed      = 5
)

// AlertPayload is one host's scan outcome as sent to webhooks
type AlertPayload struct {
	Timestamp string           `json:"timestamp"`
	ScanID    string           `json:"scan_id"`
	Hostname  string           `json:"hostname"`
	Status    string           `json:"status"` // highest finding severity, or ok
	Title     string           `json:"title"`
	Summary   string           `json:"summary"`
	Findings  []output.Finding `json:"findings,omitempty"`
}

// NotifyResult contains the result of notification attempts
type NotifyResult struct {
	Success bool          `json:"success"`
	Sent    []string      `json:"sent"`
	Failed  []NotifyError `json:"failed,omitempty"`
	Skipped string        `json:"skipped,omitempty"`
}

type NotifyError struct {
	Provider string `json:"provider"`
	Error    string `json:"error"`
}

// Notifier handles sending alerts to various webhook destinations
type Notifier struct {
	config *config.NotifyConfig
	client *http.Client
}

// NewNotifier creates a new notifier instance
func NewNotifier(cfg *config.NotifyConfig) *Notifier {
	return &Notifier{
		config: cfg,
		client: &http.Client{Timeout: webhookTimeout},
	}
}

// Enabled reports whether any provider is configured to receive alerts.
func (n *Notifier) Enabled() bool {
	if n == nil || !n.config.Enabled {
		return false
	}
	return n.config.Discord.Enabled || n.config.Slack.Enabled || n.config.GenericWebhook.Enabled
}

// NewAlert summarizes a host result. Failed hosts report high.
func NewAlert(res *scan.HostResult, maskHost bool) *AlertPayload {
	findings := output.Findings(res)
	host := res.Host
	if maskHost {
		host = util.MaskHostname(host)
		for i := range findings {
			findings[i].Host = host
		}
	}

	counts := output.CountBySeverity(findings)
	alert := &AlertPayload{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		ScanID:    res.ScanID,
		Hostname:  host,
		Status:    worstSeverity(counts),
		Findings:  findings,
	}

	if res.Failed() {
		alert.Title = fmt.Sprintf("blueteam: scan of %s failed", host)
		alert.Summary = res.Error
		return alert
	}
	alert.Title = fmt.Sprintf("blueteam: %s", host)
	alert.Summary = fmt.Sprintf("%d findings (%d critical, %d high, %d medium, %d low)",
		len(findings), counts[output.SeverityCritical], counts[output.SeverityHigh],
		counts[output.SeverityMedium], counts[output.SeverityLow])
	return alert
}

func worstSeverity(counts map[string]int) string {
	for _, s := range []string{output.SeverityCritical, output.SeverityHigh, output.SeverityMedium, output.SeverityLow} {
		if counts[s] > 0 {
			return s
		}
	}
	return "ok"
}

// NotifyHost sends the alert for one host result, if it qualifies.
func (n *Notifier) NotifyHost(ctx context.Context, res *scan.HostResult) *NotifyResult {
	return n.Send(ctx, NewAlert(res, n.config.MaskHosts))
}

// Send sends an alert to all configured webhooks
func (n *Notifier) Send(ctx context.Context, alert *AlertPayload) *NotifyResult {
	result := &NotifyResult{
		Success: true,
		Sent:    []string{},
		Failed:  []NotifyError{},
	}

	if !n.config.Enabled {
		result.Skipped = "notifications disabled"
		return result
	}

	if !n.meetsSeverityThreshold(alert.Status) {
		result.Skipped = fmt.Sprintf("severity %s below threshold %s", alert.Status, n.config.MinSeverity)
		return result
	}

	if n.config.Discord.Enabled && n.config.Discord.WebhookURL != "" {
		if err := n.sendDiscord(ctx, alert); err != nil {
			result.Failed = append(result.Failed, NotifyError{Provider: "discord", Error: err.Error()})
			result.Success = false
		} else {
			result.Sent = append(result.Sent, "discord")
		}
	}

	if n.config.Slack.Enabled && n.config.Slack.WebhookURL != "" {
		if err := n.sendSlack(ctx, alert); err != nil {
			result.Failed = append(result.Failed, NotifyError{Provider: "slack", Error: err.Error()})
			result.Success = false
		} else {
			result.Sent = append(result.Sent, "slack")
		}
	}

	if n.config.GenericWebhook.Enabled && n.config.GenericWebhook.URL != "" {
		if err := n.sendGenericWebhook(ctx, alert); err != nil {
			result.Failed = append(result.Failed, NotifyError{Provider: "webhook", Error: err.Error()})
			result.Success = false
		} else {
			result.Sent = append(result.Sent, "webhook")
		}
	}

	return result
}

func (n *Notifier) meetsSeverityThreshold(status string) bool {
	severityOrder := map[string]int{
		output.SeverityLow:      1,
		output.SeverityMedium:   2,
		output.SeverityHigh:     3,
		output.SeverityCritical: 4,
	}

	statusLevel := severityOrder[strings.ToLower(status)]
	thresholdLevel := severityOrder[strings.ToLower(n.config.MinSeverity)]

	// "ok" only goes out when every host is reported
	if statusLevel == 0 {
		return !n.config.OnlyOnIssues
	}

	return statusLevel >= thresholdLevel
}

// Discord webhook payload
type discordPayload struct {
	Username  string         `json:"username,omitempty"`
	AvatarURL string         `json:"avatar_url,omitempty"`
	Content   string         `json:"content,omitempty"`
	Embeds    []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Fields      []discordField `json:"fields,omitempty"`
	Footer      *discordFooter `json:"footer,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordFooter struct {
	Text string `json:"text"`
}

func (n *Notifier) sendDiscord(ctx context.Context, alert *AlertPayload) error {
	color := 0x2ECC71 // Green
	emoji := ":white_check_mark:"
	switch strings.ToLower(alert.Status) {
	case output.SeverityCritical:
		color = 0xE74C3C // Red
		emoji = ":red_circle:"
	case output.SeverityHigh:
		color = 0xE67E22 // Orange
		emoji = ":orange_circle:"
	case output.SeverityMedium:
		color = 0xF1C40F // Yellow
		emoji = ":yellow_circle:"
	}

	description := alert.Summary + findingList(alert.Findings, "\n\n**Findings:**")

	fields := []discordField{
		{Name: "Status", Value: fmt.Sprintf("%s %s", emoji, strings.ToUpper(alert.Status)), Inline: true},
		{Name: "Host", Value: alert.Hostname, Inline: true},
		{Name: "Scan", Value: alert.ScanID, Inline: true},
	}

	payload := discordPayload{
		Username:  n.config.Discord.Username,
		AvatarURL: n.config.Discord.AvatarURL,
		Embeds: []discordEmbed{
			{
				Title:       alert.Title,
				Description: description,
				Color:       color,
				Timestamp:   alert.Timestamp,
				Fields:      fields,
				Footer:      &discordFooter{Text: "blueteam"},
			},
		},
	}

	return n.postJSON(ctx, n.config.Discord.WebhookURL, payload)
}

// Slack webhook payload
type slackPayload struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func (n *Notifier) sendSlack(ctx context.Context, alert *AlertPayload) error {
	color := "good"
	switch strings.ToLower(alert.Status) {
	case output.SeverityCritical:
		color = "danger"
	case output.SeverityHigh, output.SeverityMedium:
		color = "warning"
	}

	payload := slackPayload{
		Channel:   n.config.Slack.Channel,
		Username:  n.config.Slack.Username,
		IconEmoji: ":shield:",
		Text:      fmt.Sprintf("*%s*", alert.Title),
		Attachments: []slackAttachment{
			{
				Color: color,
				Title: alert.Title,
				Text:  alert.Summary + findingList(alert.Findings, "\n\n*Findings:*"),
				Fields: []slackField{
					{Title: "Status", Value: strings.ToUpper(alert.Status), Short: true},
					{Title: "Host", Value: alert.Hostname, Short: true},
				},
				Footer: "blueteam",
			},
		},
	}

	return n.postJSON(ctx, n.config.Slack.WebhookURL, payload)
}

// findingList renders the first few findings as bullet lines.
func findingList(findings []output.Finding, heading string) string {
	if len(findings) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(heading)
	for i, f := range findings {
		if i >= maxListed {
			fmt.Fprintf(&sb, "\n... and %d more", len(findings)-maxListed)
			break
		}
		fmt.Fprintf(&sb, "\n• [%s] %s %s", strings.ToUpper(f.Severity), f.Code, f.Msg)
	}
	return sb.String()
}

func (n *Notifier) sendGenericWebhook(ctx context.Context, alert *AlertPayload) error {
	method := n.config.GenericWebhook.Method
	if method == "" {
		method = http.MethodPost
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, n.config.GenericWebhook.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.config.GenericWebhook.Headers {
		req.Header.Set(k, v)
	}

	return n.do(req)
}

func (n *Notifier) postJSON(ctx context.Context, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return n.do(req)
}

func (n *Notifier) do(req *http.Request) error {
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
