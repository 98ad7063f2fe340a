// Package dizquetv is a client for the dizqueTV REST API: channel CRUD,
// filler lists, and the timeline operations the synchronizer applies.
package dizquetv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tssgery/pmm-dizquetv/internal/httpclient"
)

// ErrChannelNotFound is returned by GetChannel when the number is unknown
// to the server.
var ErrChannelNotFound = errors.New("dizquetv: channel not found")

// Program is one timeline entry. Offline entries are the flex time inserted
// by padding; they carry no source reference.
type Program struct {
	Title      string `json:"title"`
	Type       string `json:"type"` // "movie" | "episode" | "flex"
	DurationMs int64  `json:"duration"`
	RatingKey  string `json:"ratingKey,omitempty"`
	Key        string `json:"key,omitempty"`
	IsOffline  bool   `json:"isOffline,omitempty"`
}

// FillerRef associates a filler list with a channel.
type FillerRef struct {
	ID         string `json:"id"`
	Weight     int    `json:"weight"`
	CooldownMs int64  `json:"cooldown"`
}

// Channel mirrors the dizqueTV channel document, limited to the fields the
// relay reads or writes.
type Channel struct {
	Number            int         `json:"number"`
	Name              string      `json:"name"`
	GroupTitle        string      `json:"groupTitle,omitempty"`
	Icon              string      `json:"icon,omitempty"`
	DurationMs        int64       `json:"duration"`
	Programs          []Program   `json:"programs"`
	FillerCollections []FillerRef `json:"fillerCollections,omitempty"`
}

// FillerList is a named filler catalog entry.
type FillerList struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Log        *zap.Logger

	// limiter bounds the request rate against the dizqueTV server; a full
	// content replacement for a large collection issues many write calls.
	limiter *rate.Limiter
}

func NewClient(baseURL string, log *zap.Logger) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: httpclient.Default(),
		Log:        log,
		limiter:    rate.NewLimiter(rate.Limit(20), 20),
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("dizquetv %s %s: encode: %w", method, path, err)
		}
	}
	resp, err := httpclient.DoWithRetry(ctx, c.HTTPClient, func(ctx context.Context) (*http.Request, error) {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}, httpclient.DefaultRetryPolicy)
	if err != nil {
		return fmt.Errorf("dizquetv %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound && isChannelPath(path) {
		_, _ = io.Copy(io.Discard, resp.Body)
		return ErrChannelNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("dizquetv %s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("dizquetv %s %s: decode: %w", method, path, err)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return nil
}

// isChannelPath reports whether path addresses a single channel, where a
// 404 means the channel itself is unknown. On other endpoints a 404 is a
// server-level error (wrong base URL, wrong version) and must not be
// mistaken for a missing channel.
func isChannelPath(path string) bool {
	return path == "/api/channel" || strings.HasPrefix(path, "/api/channel/")
}

// ChannelNumbers enumerates every channel number currently on the server.
// No caching: each call re-enumerates so the directory stays fresh.
func (c *Client) ChannelNumbers(ctx context.Context) ([]int, error) {
	var nums []int
	if err := c.do(ctx, http.MethodGet, "/api/channelNumbers", nil, &nums); err != nil {
		return nil, err
	}
	return nums, nil
}

func (c *Client) GetChannel(ctx context.Context, number int) (*Channel, error) {
	var ch Channel
	if err := c.do(ctx, http.MethodGet, "/api/channel/"+strconv.Itoa(number), nil, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *Client) CreateChannel(ctx context.Context, ch *Channel) error {
	if ch.Programs == nil {
		ch.Programs = []Program{}
	}
	return c.do(ctx, http.MethodPost, "/api/channel", ch, nil)
}

func (c *Client) UpdateChannel(ctx context.Context, ch *Channel) error {
	return c.do(ctx, http.MethodPut, "/api/channel", ch, nil)
}

// DeleteChannel removes a channel by number. Deleting a number the server
// no longer knows counts as success.
func (c *Client) DeleteChannel(ctx context.Context, number int) error {
	err := c.do(ctx, http.MethodDelete, "/api/channel", map[string]int{"number": number}, nil)
	if errors.Is(err, ErrChannelNotFound) {
		return nil
	}
	return err
}

// ListFillers returns the server's filler-list catalog.
func (c *Client) ListFillers(ctx context.Context) ([]FillerList, error) {
	var lists []FillerList
	if err := c.do(ctx, http.MethodGet, "/api/fillers", nil, &lists); err != nil {
		return nil, err
	}
	return lists, nil
}
