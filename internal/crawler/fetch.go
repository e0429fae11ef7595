package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/BenjaminSRussell/go_gopher/internal/gopher"
	"github.com/BenjaminSRussell/go_gopher/internal/parser"
	"github.com/BenjaminSRussell/go_gopher/internal/storage"
	"github.com/BenjaminSRussell/go_gopher/internal/transport"
	"github.com/BenjaminSRussell/go_gopher/internal/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

const readChunkSize = 4096

// request fetches selector from the crawl target. Any failure comes back
// as *FetchError and, unless ctx was cancelled, flags the selector as an
// issue.
func (c *Crawler) request(ctx context.Context, selector, mode string) ([]byte, error) {
	c.log.WithFields(logrus.Fields{
		"selector": selector,
		"host":     c.config.Host,
		"mode":     mode,
	}).Debug("Request")

	start := time.Now()
	body, err := c.roundTrip(ctx, selector)
	c.metrics.ObserveRequest(mode, time.Since(start), len(body))

	if err != nil {
		// a cancelled crawl says nothing about the server
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &FetchError{Selector: selector, Kind: "cancelled", Err: ctxErr}
		}
		c.flagIssue(selector, err)
		return nil, &FetchError{Selector: selector, Kind: failureKind(err), Err: err}
	}
	return body, nil
}

// roundTrip opens a fresh connection, sends the selector and reads the
// response body
func (c *Crawler) roundTrip(ctx context.Context, selector string) ([]byte, error) {
	conn, err := c.dialer.Dial(ctx, c.config.Host, c.config.Port)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := conn.SetWriteDeadline(time.Now().Add(c.config.ReadTimeout)); err != nil {
		return nil, fmt.Errorf("failed to set write deadline: %w", err)
	}
	if _, err := conn.Write(gopher.FormatRequest(selector)); err != nil {
		if transport.IsTimeout(err) {
			return nil, ErrFetchTimeout
		}
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	return readBody(conn, c.config.ReadTimeout, c.config.FetchDeadline)
}

// readBody accumulates chunks until the body ends with the terminator, the
// peer closes the stream, or the deadline passes. Each receive is bounded
// by readTimeout and by the overall deadline.
func readBody(conn net.Conn, readTimeout, deadline time.Duration) ([]byte, error) {
	end := time.Now().Add(deadline)
	buf := make([]byte, readChunkSize)
	var body []byte

	for {
		now := time.Now()
		if !now.Before(end) {
			return nil, ErrFetchTimeout
		}
		next := now.Add(readTimeout)
		if next.After(end) {
			next = end
		}
		if err := conn.SetReadDeadline(next); err != nil {
			return nil, fmt.Errorf("failed to set read deadline: %w", err)
		}

		n, err := conn.Read(buf)
		body = append(body, buf[:n]...)
		if gopher.HasTerminator(body) {
			return body, nil
		}

		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return body, nil
			case transport.IsTimeout(err):
				return nil, ErrFetchTimeout
			default:
				return nil, fmt.Errorf("failed to read response: %w", err)
			}
		}
	}
}

// fetchLeaf requests a text or binary leaf, updates the inventories and
// extremes, and persists the payload
func (c *Crawler) fetchLeaf(ctx context.Context, e gopher.Entry, mode types.FetchMode) {
	selector := e.Selector
	if !c.state.Visit(selector) {
		return
	}

	record := types.FetchRecord{
		Selector:  selector,
		Mode:      mode,
		Kind:      string(e.Kind),
		CrawledAt: time.Now(),
	}
	defer func() { c.recordFetch(record) }()

	body, err := c.request(ctx, selector, string(mode))
	if err != nil {
		record.Error = err.Error()
		return
	}

	payload := body
	record.Complete = true
	if mode == types.ModeText {
		var complete bool
		payload, complete = gopher.TrimText(body)
		if !complete {
			// keep the partial body but flag it
			record.Complete = false
			c.flagIssue(selector, ErrMalformedBody)
		}
		if err := decodeText(payload); err != nil {
			record.Error = err.Error()
			c.flagIssue(selector, err)
			return
		}
	}

	record.Size = int64(len(payload))
	c.state.RecordLeaf(mode, selector, payload)

	if e.Kind == gopher.KindHTML {
		if info, ok := parser.InspectHTML(payload); ok {
			record.Title = info.Title
			record.Description = info.Description
			record.LinkCount = len(info.Links)
		}
	}

	bucket := storage.BucketBinary
	if mode == types.ModeText {
		bucket = storage.BucketText
	}
	name := gopher.FileName(selector, c.config.MaxFilenameLength)
	if err := c.sink.Store(bucket, name, payload); err != nil {
		c.log.WithFields(logrus.Fields{
			"selector": selector,
			"file":     name,
		}).WithError(err).Warn("Failed to persist leaf")
	}

	c.log.WithFields(logrus.Fields{
		"selector": selector,
		"mode":     mode,
		"size":     record.Size,
	}).Debug("Fetched leaf")
}

// decodeText rejects bodies that are not valid UTF-8
func decodeText(payload []byte) error {
	if _, _, err := transform.Bytes(encoding.UTF8Validator, payload); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

// flagIssue records selector as an issue reference
func (c *Crawler) flagIssue(selector string, err error) {
	kind := failureKind(err)
	c.state.AddIssue(selector)
	c.metrics.ObserveFailure(kind)
	c.log.WithFields(logrus.Fields{
		"selector": selector,
		"kind":     kind,
	}).WithError(err).Warn("Reference has issues")
}

func (c *Crawler) recordFetch(record types.FetchRecord) {
	for _, r := range c.recorders {
		if err := r.SaveFetch(record); err != nil {
			c.log.WithField("selector", record.Selector).WithError(err).Warn("Failed to record fetch")
		}
	}
}
