// Package updater polls a release feed and announces new versions through
// the notification queue. It never downloads or installs anything.
package updater

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	defaultHTTPTimeout = 5 * time.Second
	maxNotes           = 500
)

var ErrNoFeed = errors.New("updater: feed url not configured")

// Release is the feed document: {"version": "...", "url": "...", "notes": "..."}.
type Release struct {
	Version string `json:"version"`
	URL     string `json:"url,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// Result is the outcome of one check.
type Result struct {
	Available bool      `json:"available"`
	Current   string    `json:"current"`
	Latest    Release   `json:"latest"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker fetches the feed and compares it with the running version.
type Checker struct {
	FeedURL string
	Current string
	Client  *http.Client
}

func (c *Checker) Check(ctx context.Context) (Result, error) {
	if strings.TrimSpace(c.FeedURL) == "" {
		return Result{}, ErrNoFeed
	}
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.FeedURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("updater: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "deskshell/"+c.Current)

	resp, err := client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("updater: fetch feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return Result{}, fmt.Errorf("updater: feed returned %d", resp.StatusCode)
	}

	var rel Release
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&rel); err != nil {
		return Result{}, fmt.Errorf("updater: decode feed: %w", err)
	}
	if strings.TrimSpace(rel.Version) == "" {
		return Result{}, errors.New("updater: feed has no version")
	}
	rel.Notes = truncate(rel.Notes, maxNotes)

	latest := normalizeVersion(rel.Version)
	current := normalizeVersion(c.Current)
	return Result{
		Available: current != "dev" && current != "" && isNewer(latest, current),
		Current:   c.Current,
		Latest:    rel,
		CheckedAt: time.Now(),
	}, nil
}

func normalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// isNewer compares major.minor.patch; unparsable parts count as 0.
func isNewer(latest, current string) bool {
	l, c := splitVersion(latest), splitVersion(current)
	for i := 0; i < 3; i++ {
		if l[i] != c[i] {
			return l[i] > c[i]
		}
	}
	return false
}

func splitVersion(v string) [3]int {
	var parts [3]int
	_, _ = fmt.Sscanf(v, "%d.%d.%d", &parts[0], &parts[1], &parts[2])
	return parts
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
