package gopher

import (
	"bytes"
	"path"
	"strings"
	"unicode/utf8"
)

const (
	// LineTerminator ends every request and menu line
	LineTerminator = "\r\n"
	// Terminator marks the end of a text or menu body
	Terminator = ".\r\n"
	// FieldSeparator splits a menu line into type, selector, host and port
	FieldSeparator = "\t"

	// DefaultPort is the registered gopher port
	DefaultPort = 70
)

// FormatRequest builds the request line for a selector. An empty selector
// requests the root listing.
func FormatRequest(selector string) []byte {
	return []byte(selector + LineTerminator)
}

var terminatorLine = []byte(LineTerminator + Terminator)

// HasTerminator reports whether the last line of body is the end-of-body
// marker. A data line that merely ends in a period does not count.
func HasTerminator(body []byte) bool {
	return string(body) == Terminator || bytes.HasSuffix(body, terminatorLine)
}

// TrimText strips one end-of-body marker and then one trailing line
// terminator. complete is false when the marker was missing, in which case
// body is returned unchanged.
func TrimText(body []byte) (payload []byte, complete bool) {
	if !HasTerminator(body) {
		return body, false
	}
	payload = body[:len(body)-len(Terminator)]
	payload = bytes.TrimSuffix(payload, []byte(LineTerminator))
	return payload, true
}

// FileName derives a storage name from the last path segment of a
// selector, truncated to maxLen bytes without splitting a rune.
func FileName(selector string, maxLen int) string {
	name := path.Base(strings.ReplaceAll(selector, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', 0, '\r', '\n', '\t':
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		name = "index"
	}

	if maxLen > 0 && len(name) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}
	return name
}
