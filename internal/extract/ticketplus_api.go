package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const VendorTicketPlus = "ticketplus"

// TicketPlusAPI parses the JSON seat-area endpoint.
func TicketPlusAPI() Rule {
	return Rule{
		Name: "ticketplus.api",
		Match: func(in Input) bool {
			return in.IdentifierType == TypeAPI && strings.Contains(in.Page.ContentType, "application/json")
		},
		Parse: parseTicketPlusAPI,
	}
}

type apiPayload struct {
	Result struct {
		TicketArea []apiArea `json:"ticketArea"`
	} `json:"result"`
}

type apiArea struct {
	Name   string          `json:"ticketAreaName"`
	Price  json.RawMessage `json:"price"`
	Status string          `json:"status"`
	Count  json.RawMessage `json:"count"`
}

func parseTicketPlusAPI(in Input) (*Result, error) {
	var p apiPayload
	dec := json.NewDecoder(bytes.NewReader(in.Page.Body))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode ticket areas: %w", err)
	}

	res := &Result{
		Vendor:    VendorTicketPlus,
		EventName: "(API) " + in.URL,
		Seats:     make([]SeatArea, 0, len(p.Result.TicketArea)),
	}
	for _, a := range p.Result.TicketArea {
		if strings.Contains(a.Status, "完售") || strings.Contains(a.Status, "soldout") {
			continue
		}
		res.Seats = append(res.Seats, SeatArea{
			Area:      a.Name,
			Price:     rawText(a.Price),
			Remaining: rawRemaining(a.Count),
		})
	}
	return res, nil
}

// rawText renders a JSON scalar as text; absent and null become "".
func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

// rawRemaining maps the vendor count: absent is 0, null is null, numbers and
// numeric strings are counts, anything else is kept as status text.
func rawRemaining(raw json.RawMessage) Remaining {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Count(0)
	}
	if bytes.Equal(raw, []byte("null")) {
		return NullRemaining()
	}
	s := rawText(raw)
	if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
		return Count(n)
	}
	// Non-integer numbers such as 0.0 keep their text, so they never match
	// the "0" sold-out token.
	return Status(s)
}
