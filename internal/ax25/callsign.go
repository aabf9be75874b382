// Package ax25 implements the AX.25 v2.x address and control-field codec:
// encoding and decoding the address chain (destination, source, optional
// digipeaters) and the control octet into and out of a raw KISS payload.
package ax25

import (
	"fmt"
	"strconv"
	"strings"
)

// Callsign identifies a station: a 1-6 character uppercase alphanumeric
// base and a 4-bit SSID (0-15).
type Callsign struct {
	Base string
	SSID uint8
}

// ParseCallsign parses "BASE" or "BASE-SSID" into a Callsign. The base is
// upper-cased; SSID defaults to 0 when omitted.
func ParseCallsign(s string) (Callsign, error) {
	s = strings.TrimSpace(s)
	base, ssidPart, hasSSID := strings.Cut(s, "-")
	base = strings.ToUpper(base)

	if len(base) == 0 || len(base) > 6 {
		return Callsign{}, fmt.Errorf("ax25: callsign base %q must be 1-6 characters", base)
	}
	for _, ch := range base {
		if !(ch >= 'A' && ch <= 'Z') && !(ch >= '0' && ch <= '9') {
			return Callsign{}, fmt.Errorf("ax25: callsign base %q contains invalid character %q", base, ch)
		}
	}

	var ssid uint64
	if hasSSID {
		var err error
		ssid, err = strconv.ParseUint(ssidPart, 10, 8)
		if err != nil {
			return Callsign{}, fmt.Errorf("ax25: invalid SSID in %q: %w", s, err)
		}
	}
	if ssid > 15 {
		return Callsign{}, fmt.Errorf("ax25: SSID %d out of range 0-15", ssid)
	}

	return Callsign{Base: base, SSID: uint8(ssid)}, nil
}

// String renders the callsign as "BASE-SSID", omitting "-0".
func (c Callsign) String() string {
	if c.SSID == 0 {
		return c.Base
	}
	return fmt.Sprintf("%s-%d", c.Base, c.SSID)
}

// Equal compares callsigns case-insensitively on the base and exactly on
// the SSID.
func (c Callsign) Equal(other Callsign) bool {
	return strings.EqualFold(c.Base, other.Base) && c.SSID == other.SSID
}

// IsZero reports whether c is the zero value (no callsign set).
func (c Callsign) IsZero() bool {
	return c.Base == "" && c.SSID == 0
}
