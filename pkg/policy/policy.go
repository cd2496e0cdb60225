// Package policy implements the stateless context rules consulted on every
// request: business-hours windows, device-fingerprint consistency, and
// org-unit scoping. All functions are pure; callers supply the clock.
package policy

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/session"
)

// Window is a business-hours window expressed in minutes of day.
// Start and End are inclusive; End must be >= Start (no midnight wraparound,
// reversed windows are rejected at parse time).
type Window struct {
	Start int // minutes since midnight
	End   int
}

// String renders the window back in HH:MM-HH:MM form.
func (w Window) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.Start/60, w.Start%60, w.End/60, w.End%60)
}

// ParseWindow parses a window string of the form "08:00-18:00" into a Window.
// Returns an error for malformed input or a window whose end precedes its start.
func ParseWindow(s string) (Window, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return Window{}, fmt.Errorf("invalid business-hours window %q: want HH:MM-HH:MM", s)
	}

	start, err := parseMinuteOfDay(parts[0])
	if err != nil {
		return Window{}, fmt.Errorf("invalid window start %q: %w", parts[0], err)
	}
	end, err := parseMinuteOfDay(parts[1])
	if err != nil {
		return Window{}, fmt.Errorf("invalid window end %q: %w", parts[1], err)
	}

	if end < start {
		return Window{}, fmt.Errorf("window end %q precedes start %q: overnight windows are not supported", parts[1], parts[0])
	}
	return Window{Start: start, End: end}, nil
}

// parseMinuteOfDay parses "HH:MM" into minutes since midnight.
func parseMinuteOfDay(s string) (int, error) {
	hm := strings.Split(strings.TrimSpace(s), ":")
	if len(hm) != 2 {
		return 0, fmt.Errorf("want HH:MM")
	}
	h, err := strconv.Atoi(hm[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("hour out of range")
	}
	m, err := strconv.Atoi(hm[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("minute out of range")
	}
	return h*60 + m, nil
}

// WithinBusinessHours reports whether now falls inside the window, inclusive
// at both ends.
func WithinBusinessHours(now time.Time, w Window) bool {
	minute := now.Hour()*60 + now.Minute()
	return minute >= w.Start && minute <= w.End
}

// TrustedDevice compares the device recorded at session creation against the
// fingerprint of the current request. With no prior device on record the
// check passes; otherwise BOTH the user-agent family and the IP subnet must
// match. Malformed fingerprints compare as mismatches (fail closed).
func TrustedDevice(prior, current session.Device) bool {
	if prior.Empty() {
		return true
	}
	if prior.UAFamily == "" || current.UAFamily == "" {
		return false
	}
	if prior.IPSubnet == "" || current.IPSubnet == "" {
		return false
	}
	return prior.UAFamily == current.UAFamily && prior.IPSubnet == current.IPSubnet
}

// OrgUnitAllowed reports whether a principal from principalUnit may touch a
// resource scoped to resourceUnit. Resources without an org unit are open to
// all units; otherwise the units must match exactly.
func OrgUnitAllowed(principalUnit, resourceUnit string) bool {
	if resourceUnit == "" {
		return true
	}
	return principalUnit == resourceUnit
}

// Fingerprint derives a device fingerprint from a request's source IP and
// User-Agent header. Fields that cannot be derived are left empty, which
// downstream checks treat as a mismatch.
func Fingerprint(ip, userAgent string) session.Device {
	return session.Device{
		IPSubnet: SubnetOf(ip),
		UAFamily: UAFamily(userAgent),
	}
}

// SubnetOf returns the first two dotted-decimal octets of an IPv4 address
// ("10.0.0.5" -> "10.0"). IPv6 and malformed addresses return "".
func SubnetOf(ip string) string {
	octets := strings.Split(ip, ".")
	if len(octets) != 4 {
		return ""
	}
	for _, o := range octets {
		n, err := strconv.Atoi(o)
		if err != nil || n < 0 || n > 255 {
			return ""
		}
	}
	return octets[0] + "." + octets[1]
}

// UAFamily returns the first whitespace-delimited token of a User-Agent
// string, or "" when the header is empty.
func UAFamily(userAgent string) string {
	fields := strings.Fields(userAgent)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
