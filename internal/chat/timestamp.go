package chat

import (
	"strings"
	"time"
)

// Existing message documents store timestamps as en-US locale strings
// ("01/02/2006, 03:04:05 PM"). The format is a stored-data contract: new
// writes must produce it and readers must tolerate it. Internally every
// message carries a time.Time; these helpers only exist at the wire
// boundary.
const (
	wireTimeLayout        = "01/02/2006, 03:04:05 PM"
	wireTimeLayoutNoSecs  = "01/02/2006, 03:04 PM"
	wireTimeLayoutPadless = "01/02/2006, 3:04:05 PM"
)

// FormatWireTime encodes an instant in the legacy wire format.
func FormatWireTime(t time.Time) string {
	return t.Format(wireTimeLayout)
}

// ParseWireTime decodes a legacy wire timestamp. Returns ok=false for
// anything unparsable; it never fails hard, because stored data contains
// both variants of the format and the occasional narrow no-break space.
func ParseWireTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	// Some clients emit U+202F before the AM/PM marker.
	s = strings.ReplaceAll(s, " ", " ")
	s = strings.Join(strings.Fields(s), " ")

	for _, layout := range []string{wireTimeLayout, wireTimeLayoutNoSecs, wireTimeLayoutPadless} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
