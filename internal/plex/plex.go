// Package plex is a read-only client for the Plex Media Server library API,
// scoped to what the relay needs: resolving a collection by title within a
// section and enumerating its playable members.
package plex

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/tssgery/pmm-dizquetv/internal/httpclient"
)

// Item kinds as reported by the Plex API.
const (
	KindMovie   = "movie"
	KindShow    = "show"
	KindEpisode = "episode"
)

// Item is one library entry: a direct collection member or an episode from
// an expanded show. DurationMs is 0 when Plex has no duration for the item.
type Item struct {
	RatingKey   string
	Key         string
	Title       string
	Kind        string
	DurationMs  int64
	AvailableAt string // originallyAvailableAt; "" when unset
}

// Collection is a resolved collection directory.
type Collection struct {
	RatingKey string
	Title     string
}

type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Log        *zap.Logger
}

func NewClient(baseURL, token string, log *zap.Logger) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		Token:      token,
		HTTPClient: httpclient.Default(),
		Log:        log,
	}
}

// mediaContainer collects every child element in document order; the
// element name (Video or Directory) distinguishes flat items from shows.
type mediaContainer struct {
	Elements []containerEl `xml:",any"`
}

type containerEl struct {
	XMLName     xml.Name
	RatingKey   string `xml:"ratingKey,attr"`
	Key         string `xml:"key,attr"`
	Type        string `xml:"type,attr"`
	Title       string `xml:"title,attr"`
	Duration    int64  `xml:"duration,attr"`
	AvailableAt string `xml:"originallyAvailableAt,attr"`
}

func (c *Client) apiURL(path string, q url.Values) (string, error) {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		return "", fmt.Errorf("plex base url required")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse plex base url: %w", err)
	}
	u.Path = path
	qq := u.Query()
	for k, vals := range q {
		for _, v := range vals {
			qq.Add(k, v)
		}
	}
	if c.Token != "" {
		qq.Set("X-Plex-Token", c.Token)
	}
	u.RawQuery = qq.Encode()
	return u.String(), nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) (*mediaContainer, error) {
	u, err := c.apiURL(path, q)
	if err != nil {
		return nil, err
	}
	resp, err := httpclient.DoWithRetry(ctx, c.HTTPClient, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}, httpclient.DefaultRetryPolicy)
	if err != nil {
		return nil, fmt.Errorf("plex GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("plex GET %s returned %d", path, resp.StatusCode)
	}
	var mc mediaContainer
	if err := xml.Unmarshal(body, &mc); err != nil {
		return nil, fmt.Errorf("parse plex response for %s: %w", path, err)
	}
	return &mc, nil
}

// sectionKey resolves a library section title to its numeric key.
func (c *Client) sectionKey(ctx context.Context, section string) (string, error) {
	mc, err := c.get(ctx, "/library/sections", nil)
	if err != nil {
		return "", err
	}
	for _, d := range mc.Elements {
		if d.XMLName.Local == "Directory" && d.Title == section {
			return d.Key, nil
		}
	}
	return "", fmt.Errorf("plex library section %q not found", section)
}

// FindCollection resolves a collection by exact title within a section.
// Zero or multiple title matches return (nil, nil): the caller proceeds
// with an empty lineup rather than guessing which match was meant.
func (c *Client) FindCollection(ctx context.Context, section, title string) (*Collection, error) {
	key, err := c.sectionKey(ctx, section)
	if err != nil {
		return nil, err
	}
	mc, err := c.get(ctx, "/library/sections/"+key+"/collections", nil)
	if err != nil {
		return nil, err
	}
	var matches []Collection
	for _, d := range mc.Elements {
		if d.XMLName.Local == "Directory" && d.Title == title {
			matches = append(matches, Collection{RatingKey: d.RatingKey, Title: d.Title})
		}
	}
	if len(matches) != 1 {
		c.Log.Debug("collection not uniquely resolved",
			zap.String("section", section), zap.String("title", title), zap.Int("matches", len(matches)))
		return nil, nil
	}
	return &matches[0], nil
}

// CollectionItems returns the direct members of a collection, in API order.
// Shows come back as KindShow and must be expanded with ShowEpisodes.
func (c *Client) CollectionItems(ctx context.Context, collectionRatingKey string) ([]Item, error) {
	mc, err := c.get(ctx, "/library/collections/"+collectionRatingKey+"/children", nil)
	if err != nil {
		return nil, err
	}
	return containerItems(mc), nil
}

// ShowEpisodes returns every episode of a show, in API order.
func (c *Client) ShowEpisodes(ctx context.Context, showRatingKey string) ([]Item, error) {
	mc, err := c.get(ctx, "/library/metadata/"+showRatingKey+"/allLeaves", nil)
	if err != nil {
		return nil, err
	}
	return containerItems(mc), nil
}

// containerItems flattens a MediaContainer in document order, so a mixed
// collection keeps its source enumeration order.
func containerItems(mc *mediaContainer) []Item {
	out := make([]Item, 0, len(mc.Elements))
	for _, el := range mc.Elements {
		switch el.XMLName.Local {
		case "Video", "Directory":
			out = append(out, Item{
				RatingKey:   el.RatingKey,
				Key:         el.Key,
				Title:       el.Title,
				Kind:        el.Type,
				DurationMs:  el.Duration,
				AvailableAt: el.AvailableAt,
			})
		}
	}
	return out
}
