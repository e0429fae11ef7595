package crawler

import (
	"context"
	"strings"

	"github.com/BenjaminSRussell/go_gopher/internal/gopher"
	"github.com/temoto/robotstxt"
)

// robotsSelector is where gopher servers conventionally publish exclusions
const robotsSelector = "robots.txt"

// robotsPolicy answers whether a selector may be requested. A nil policy
// allows everything.
type robotsPolicy struct {
	group *robotstxt.Group
}

// loadRobots fetches and parses the server's robots.txt. Any failure
// leaves the crawl unrestricted.
func (c *Crawler) loadRobots(ctx context.Context) *robotsPolicy {
	body, err := c.roundTrip(ctx, robotsSelector)
	if err != nil {
		c.log.WithError(err).Debug("No robots.txt, crawling unrestricted")
		return nil
	}

	payload, _ := gopher.TrimText(body)
	robots, err := robotstxt.FromBytes(payload)
	if err != nil {
		c.log.WithError(err).Warn("Failed to parse robots.txt")
		return nil
	}

	return &robotsPolicy{group: robots.FindGroup(c.config.UserAgent)}
}

func (p *robotsPolicy) allowed(selector string) bool {
	if p == nil || p.group == nil {
		return true
	}
	if !strings.HasPrefix(selector, "/") {
		selector = "/" + selector
	}
	return p.group.Test(selector)
}
