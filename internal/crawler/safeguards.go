package crawler

import (
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// SafeProcessor wraps entry handling with panic recovery
type SafeProcessor struct {
	c          *Crawler
	panicCount atomic.Int64
}

// NewSafeProcessor creates a safe processor wrapper
func NewSafeProcessor(c *Crawler) *SafeProcessor {
	return &SafeProcessor{
		c: c,
	}
}

// Run calls fn, turning a panic into an issue on selector
func (sp *SafeProcessor) Run(selector string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			sp.panicCount.Add(1)

			if sp.c == nil {
				return
			}
			sp.c.log.WithFields(logrus.Fields{
				"selector": selector,
				"panic":    fmt.Sprint(r),
				"stack":    string(debug.Stack()),
			}).Error("Recovered from panic while handling entry")

			sp.c.state.AddIssue(selector)
			sp.c.metrics.ObserveFailure("panic")
		}
	}()

	fn()
}

// GetPanicCount returns total number of panics recovered
func (sp *SafeProcessor) GetPanicCount() int64 {
	return sp.panicCount.Load()
}
