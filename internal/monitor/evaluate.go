package monitor

import "tixwatch/internal/extract"

// soldOutTokens is matched exactly against the rendered remaining value.
// Other spellings such as "Sold Out" count as available.
var soldOutTokens = map[string]struct{}{"完售": {}, "售完": {}, "0": {}, "": {}}

// SoldOut reports whether r counts as no seats.
func SoldOut(r extract.Remaining) bool {
	if r.IsNull() {
		return true
	}
	_, ok := soldOutTokens[r.String()]
	return ok
}

// Evaluate keeps the seat areas that are not sold out, in order.
// It reports true iff at least one area remains.
func Evaluate(res *extract.Result) (bool, []extract.SeatArea) {
	if res == nil {
		return false, nil
	}
	var seats []extract.SeatArea
	for _, s := range res.Seats {
		if SoldOut(s.Remaining) {
			continue
		}
		seats = append(seats, s)
	}
	return len(seats) > 0, seats
}
