package audit

import (
	"fmt"
	"strings"
	"time"
)

// Facility represents RFC 5424 syslog facility codes.
type Facility int

const (
	FacLocal0 Facility = 16
)

// sdID is the structured-data element ID carried on every message. All event
// parameters (principal, ip, details) live inside this single element.
const sdID = "zthc"

// SDParam is a single key-value parameter within the structured data element.
type SDParam struct {
	Name  string
	Value string
}

// Message is the subset of an RFC 5424 syslog message the gateway emits:
// a single zthc structured-data element keyed by the event type. PROCID and
// the free-text body are always NILVALUE on the wire.
type Message struct {
	Facility  Facility
	Severity  Severity
	Timestamp time.Time
	Hostname  string
	AppName   string
	EventID   string // The event type: "access.denied", etc.
	Params    []SDParam
}

// timestampFormat is the Go format string for RFC 5424 timestamps with fixed 3-digit milliseconds.
const timestampFormat = "2006-01-02T15:04:05.000Z"

// FormatMessage serializes a Message to RFC 5424 wire format.
// Returns the formatted bytes. Does not append a newline.
func FormatMessage(m Message) []byte {
	var b strings.Builder
	b.Grow(384)

	// PRI and VERSION
	fmt.Fprintf(&b, "<%d>1", int(m.Facility)*8+int(m.Severity))

	// TIMESTAMP
	b.WriteByte(' ')
	if m.Timestamp.IsZero() {
		b.WriteByte('-')
	} else {
		b.WriteString(m.Timestamp.UTC().Format(timestampFormat))
	}

	// HOSTNAME, APP-NAME, PROCID, MSGID
	writeField(&b, m.Hostname, 255)
	writeField(&b, m.AppName, 48)
	b.WriteString(" -")
	writeField(&b, m.EventID, 32)

	// STRUCTURED-DATA
	b.WriteByte(' ')
	if len(m.Params) == 0 {
		b.WriteByte('-')
	} else {
		b.WriteByte('[')
		b.WriteString(sdID)
		for _, p := range m.Params {
			b.WriteByte(' ')
			b.WriteString(p.Name)
			b.WriteString(`="`)
			escapeSDParamValue(&b, p.Value)
			b.WriteByte('"')
		}
		b.WriteByte(']')
	}

	return []byte(b.String())
}

// writeField writes a space followed by the field value, or "-" if empty.
// Truncates to maxLen if exceeded.
func writeField(b *strings.Builder, val string, maxLen int) {
	b.WriteByte(' ')
	if val == "" {
		b.WriteByte('-')
		return
	}
	if len(val) > maxLen {
		val = val[:maxLen]
	}
	b.WriteString(val)
}

// escapeSDParamValue writes val to b, escaping ", \, and ] per RFC 5424 Section 6.3.3.
func escapeSDParamValue(b *strings.Builder, val string) {
	for i := 0; i < len(val); i++ {
		switch val[i] {
		case '"', '\\', ']':
			b.WriteByte('\\')
		}
		b.WriteByte(val[i])
	}
}
