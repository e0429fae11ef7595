package crawler

import (
	"context"

	"github.com/BenjaminSRussell/go_gopher/internal/gopher"
	"github.com/sirupsen/logrus"
)

// probe checks whether the server an external entry points at accepts
// connections. Nothing is sent; the connection is closed right away.
func (c *Crawler) probe(ctx context.Context, e gopher.Entry) {
	port, _ := e.PortNumber()

	conn, err := c.dialer.DialProbe(ctx, e.Host, port)
	if err != nil && ctx.Err() != nil {
		return
	}
	up := err == nil
	if up {
		conn.Close()
	}
	c.metrics.ObserveProbe(up)

	if !up {
		c.flagIssue(e.Selector, err)
		return
	}

	c.state.SetExternal(e.Host, e.Port)
	c.log.WithFields(logrus.Fields{
		"host": e.Host,
		"port": e.Port,
	}).Debug("External server is up")
}
