package gopher

import (
	"strconv"
	"strings"
)

// Kind is the single-character item type that starts a menu line
type Kind string

// Item types the crawler dispatches on. Any other non-empty kind is a
// generic binary file.
const (
	KindText          Kind = "0"
	KindDirectory     Kind = "1"
	KindError         Kind = "3"
	KindInformational Kind = "i"
	KindHTML          Kind = "h"
	// KindBinary is the generic binary type used when writing menus
	KindBinary        Kind = "9"
)

// Entry is one line of a directory listing
type Entry struct {
	Kind     Kind
	Selector string
	Host     string
	Port     string
}

// ParseEntry splits a menu line on tabs. Missing fields are left empty and
// fields past the port are ignored.
func ParseEntry(line string) Entry {
	fields := strings.SplitN(line, FieldSeparator, 5)

	var e Entry
	if first := fields[0]; first != "" {
		// The display string follows the type character and is not kept.
		e.Kind = Kind(first[:1])
	}
	if len(fields) > 1 {
		e.Selector = fields[1]
	}
	if len(fields) > 2 {
		e.Host = fields[2]
	}
	if len(fields) > 3 {
		e.Port = fields[3]
	}
	return e
}

// ParseListing turns a listing body into entries, one per line, in order.
// The end-of-body line and the empty fragment after the final CRLF are not
// entries.
func ParseListing(body string) []Entry {
	if HasTerminator([]byte(body)) {
		body = body[:len(body)-len(Terminator)]
	}
	if body == "" {
		return nil
	}
	body = strings.TrimSuffix(body, LineTerminator)

	lines := strings.Split(body, LineTerminator)
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		entries = append(entries, ParseEntry(line))
	}
	return entries
}

// PortNumber parses the port field. ok is false when the field is not a
// valid TCP port.
func (e Entry) PortNumber() (int, bool) {
	p, err := strconv.Atoi(strings.TrimSpace(e.Port))
	if err != nil || p <= 0 || p > 65535 {
		return 0, false
	}
	return p, true
}

// IsExternal reports whether the entry points at a server other than
// host:port.
func (e Entry) IsExternal(host string, port int) bool {
	if e.Host != host {
		return true
	}
	p, ok := e.PortNumber()
	return !ok || p != port
}
