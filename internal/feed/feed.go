package feed

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

const (
	DefaultPostSelector = ".feed-shared-update-v2"
	DefaultTextSelector = ".feed-shared-inline-show-more-text"
	DefaultFeedURL      = "https://www.linkedin.com/feed/"

	// URNAttr carries the platform's stable post identifier.
	URNAttr = "data-urn"

	feedHost = "www.linkedin.com"
	feedPath = "/feed/"
)

// Discover returns every post container currently in doc. An empty feed is not an error.
func Discover(doc Document, selector string) ([]Node, error) {
	if selector == "" {
		selector = DefaultPostSelector
	}
	posts, err := doc.QueryAll(selector)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	return posts, nil
}

// IsFeedSurface reports whether u is the monitored feed page.
func IsFeedSurface(u *url.URL) bool {
	if u == nil {
		return false
	}
	return u.Hostname() == feedHost && u.Path == feedPath
}

// WaitForFeed polls doc until it shows the feed surface, e.g. while the user
// logs in. Location errors are treated as "not yet".
func WaitForFeed(ctx context.Context, doc Document, poll time.Duration) error {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		if u, err := doc.Location(); err == nil && IsFeedSurface(u) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
