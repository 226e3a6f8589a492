// Package extract turns fetched vendor pages into normalized seat availability.
package extract

import (
	"strconv"
	"strings"
)

// Identifier types accepted on a target.
const (
	TypeAPI  = "api"
	TypeHTML = "html"

	// typeTicketPlusAPI is the legacy spelling of TypeAPI still found in older configs.
	typeTicketPlusAPI = "ticketplus_api"
)

// NormalizeType maps a configured identifier_type to its canonical form.
// Empty means TypeAPI.
func NormalizeType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	switch t {
	case "", typeTicketPlusAPI:
		return TypeAPI
	default:
		return t
	}
}

// Result is the availability signal parsed from one page.
type Result struct {
	Vendor    string
	EventName string
	Seats     []SeatArea
}

// SeatArea is one ticket area as reported by the vendor.
type SeatArea struct {
	Area      string
	Price     string
	Remaining Remaining
}

type remainingKind uint8

const (
	remainingNull remainingKind = iota
	remainingCount
	remainingStatus
)

// Remaining is either a numeric count, a free-form status text, or null.
// The zero value is null.
type Remaining struct {
	kind  remainingKind
	count int64
	text  string
}

// Count is an integer seat count as reported by the vendor.
func Count(n int64) Remaining { return Remaining{kind: remainingCount, count: n} }

// Status is a non-integer remaining value kept verbatim, e.g. "熱賣中" or "0.0".
func Status(s string) Remaining { return Remaining{kind: remainingStatus, text: s} }

// NullRemaining is an explicit JSON null.
func NullRemaining() Remaining { return Remaining{} }

// IsNull reports whether r is null.
func (r Remaining) IsNull() bool { return r.kind == remainingNull }

// IsCount reports whether r holds an integer count.
func (r Remaining) IsCount() bool { return r.kind == remainingCount }

// Int returns the count and whether r holds one.
func (r Remaining) Int() (int64, bool) { return r.count, r.kind == remainingCount }

// String renders r the way it appears in alerts. Null renders as "".
func (r Remaining) String() string {
	switch r.kind {
	case remainingCount:
		return strconv.FormatInt(r.count, 10)
	case remainingStatus:
		return r.text
	default:
		return ""
	}
}
