// Package health provides startup reachability probes for the two remote
// collaborators. A failed probe is reported, not fatal: the remotes may
// come up after the relay does.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tssgery/pmm-dizquetv/internal/safeurl"
)

// CheckPlex verifies the Plex server answers an identity request with the
// given token.
func CheckPlex(ctx context.Context, baseURL, token string) error {
	if baseURL == "" {
		return fmt.Errorf("no plex url configured")
	}
	u := strings.TrimSuffix(baseURL, "/") + "/identity?X-Plex-Token=" + url.QueryEscape(token)
	return probe(ctx, u, "plex")
}

// CheckDizqueTV verifies the dizqueTV server answers its version endpoint.
func CheckDizqueTV(ctx context.Context, baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("no dizquetv url configured")
	}
	return probe(ctx, strings.TrimSuffix(baseURL, "/")+"/api/version", "dizquetv")
}

func probe(ctx context.Context, u, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		// url.Error carries the full URL, token included; report a
		// redacted one instead.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return fmt.Errorf("%s unreachable (%s): %w", name, safeurl.Redact(u), err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned HTTP %d", name, resp.StatusCode)
	}
	return nil
}
