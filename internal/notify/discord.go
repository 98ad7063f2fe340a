package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tssgery/pmm-dizquetv/internal/channelsync"
	"github.com/tssgery/pmm-dizquetv/internal/httpclient"
)

const (
	defaultUsername = "pmm-dizquetv"
	embedColor      = 0x03b2f8
	footerText      = "pmm-dizquetv: a PMM -> dizqueTV synchronizer"
)

// Discord posts an embed to a Discord webhook URL for each outcome.
type Discord struct {
	WebhookURL string
	Username   string // embed title prefix and sender name; default "pmm-dizquetv"
	AvatarURL  string
	HTTPClient *http.Client
	Log        *zap.Logger
	OnFailure  func() // optional hook, e.g. a metrics counter
}

func NewDiscord(webhookURL, username, avatarURL string, log *zap.Logger) *Discord {
	if username == "" {
		username = defaultUsername
	}
	return &Discord{
		WebhookURL: webhookURL,
		Username:   username,
		AvatarURL:  avatarURL,
		HTTPClient: httpclient.WithTimeout(10 * time.Second),
		Log:        log,
	}
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embed struct {
	Title     string       `json:"title"`
	Color     int          `json:"color"`
	Timestamp string       `json:"timestamp"`
	Footer    struct {
		Text string `json:"text"`
	} `json:"footer"`
	Fields []embedField `json:"fields"`
}

type webhookPayload struct {
	Username  string  `json:"username,omitempty"`
	AvatarURL string  `json:"avatar_url,omitempty"`
	Embeds    []embed `json:"embeds"`
}

// Notify sends the outcome as a Discord embed. Program count and playtime
// fields are only included when positive, matching a deletion's lack of
// program metrics.
func (d *Discord) Notify(ctx context.Context, outcome channelsync.Outcome) {
	e := d.newEmbed(string(outcome.Operation))
	e.Fields = append(e.Fields,
		embedField{Name: "Channel Number", Value: strconv.Itoa(outcome.ChannelNumber), Inline: true},
		embedField{Name: "Channel Name", Value: outcome.ChannelName, Inline: true},
	)
	if outcome.ProgramCount > 0 {
		e.Fields = append(e.Fields, embedField{Name: "Total Programs", Value: strconv.Itoa(outcome.ProgramCount)})
	}
	if outcome.TotalMinutes > 0 {
		e.Fields = append(e.Fields, embedField{Name: "Programming Duration", Value: FormatMinutes(outcome.TotalMinutes)})
	}
	d.send(ctx, e)
}

// RunSignal reports a PMM run boundary (start/end of run).
func (d *Discord) RunSignal(ctx context.Context, message string) {
	d.send(ctx, d.newEmbed(message))
}

func (d *Discord) newEmbed(title string) embed {
	e := embed{
		Title:     d.Username + ": " + title,
		Color:     embedColor,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	e.Footer.Text = footerText
	return e
}

func (d *Discord) send(ctx context.Context, e embed) {
	payload := webhookPayload{Username: d.Username, AvatarURL: d.AvatarURL, Embeds: []embed{e}}
	body, err := json.Marshal(payload)
	if err != nil {
		d.fail("discord payload encode failed", err, 0)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.WebhookURL, bytes.NewReader(body))
	if err != nil {
		d.fail("discord request build failed", err, 0)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		d.fail("discord delivery failed", err, 0)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.fail("discord delivery rejected", nil, resp.StatusCode)
	}
}

func (d *Discord) fail(msg string, err error, status int) {
	fields := []zap.Field{}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if status != 0 {
		fields = append(fields, zap.Int("status", status))
	}
	d.Log.Warn(msg, fields...)
	if d.OnFailure != nil {
		d.OnFailure()
	}
}

// FormatMinutes renders a playtime as "2 days, 3 hours, 17 minutes",
// omitting zero components.
func FormatMinutes(minutes int) string {
	if minutes <= 0 {
		return "0 minutes"
	}
	days := minutes / (24 * 60)
	hours := (minutes % (24 * 60)) / 60
	mins := minutes % 60
	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", days, plural(days, "day")))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", hours, plural(hours, "hour")))
	}
	if mins > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", mins, plural(mins, "minute")))
	}
	return strings.Join(parts, ", ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}
