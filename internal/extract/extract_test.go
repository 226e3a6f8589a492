package extract

import (
	"testing"

	"tixwatch/internal/fetch"
	logx "tixwatch/pkg/logx"
)

const ticketPlusEventURL = "https://ticketplus.com.tw/activity/abc123"

func apiInput(body string) Input {
	return Input{
		URL:            "https://apis.ticketplus.com.tw/config/api/v1/get?ticketAreaId=a",
		IdentifierType: TypeAPI,
		Page:           fetch.Page{ContentType: "application/json; charset=utf-8", Body: []byte(body)},
	}
}

func htmlInput(url, body string) Input {
	return Input{
		URL:            url,
		IdentifierType: TypeHTML,
		Page:           fetch.Page{ContentType: "text/html; charset=utf-8", Body: []byte(body)},
	}
}

func TestAPIExcludesSoldOutAreas(t *testing.T) {
	t.Parallel()
	body := `{"result":{"ticketArea":[
		{"status":"完售","ticketAreaName":"VIP","price":"3800","count":0},
		{"status":"Available","ticketAreaName":"A","price":"1000","count":5}
	]}}`

	res, ok := Default(logx.Nop()).Extract(apiInput(body))
	if !ok {
		t.Fatal("expected a match")
	}
	if len(res.Seats) != 1 {
		t.Fatalf("seats = %d, want 1", len(res.Seats))
	}
	got := res.Seats[0]
	if got.Area != "A" || got.Price != "1000" {
		t.Fatalf("seat = %+v", got)
	}
	if n, isCount := got.Remaining.Int(); !isCount || n != 5 {
		t.Fatalf("remaining = %v (count=%v), want 5", n, isCount)
	}
}

func TestAPICountShapes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		area  string
		want  string
		null  bool
		count bool
	}{
		{name: "absent count is zero", area: `{"ticketAreaName":"A"}`, want: "0", count: true},
		{name: "null count", area: `{"ticketAreaName":"A","count":null}`, null: true},
		{name: "numeric string", area: `{"ticketAreaName":"A","count":"12"}`, want: "12", count: true},
		{name: "float count keeps text", area: `{"ticketAreaName":"A","count":3.0}`, want: "3.0"},
		{name: "zero float count keeps text", area: `{"ticketAreaName":"A","count":0.0}`, want: "0.0"},
		{name: "text count", area: `{"ticketAreaName":"A","count":"熱賣中"}`, want: "熱賣中"},
		{name: "numeric price", area: `{"ticketAreaName":"A","price":1200,"count":1}`, want: "1", count: true},
		{name: "soldout status", area: `{"ticketAreaName":"A","status":"soldout","count":9}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			res, ok := Default(logx.Nop()).Extract(apiInput(`{"result":{"ticketArea":[` + tt.area + `]}}`))
			if !ok {
				t.Fatal("expected a match")
			}
			if tt.name == "soldout status" {
				if len(res.Seats) != 0 {
					t.Fatalf("seats = %d, want 0", len(res.Seats))
				}
				return
			}
			if len(res.Seats) != 1 {
				t.Fatalf("seats = %d, want 1", len(res.Seats))
			}
			r := res.Seats[0].Remaining
			if r.IsNull() != tt.null {
				t.Fatalf("IsNull = %v, want %v", r.IsNull(), tt.null)
			}
			if r.IsCount() != tt.count {
				t.Fatalf("IsCount = %v, want %v", r.IsCount(), tt.count)
			}
			if r.String() != tt.want {
				t.Fatalf("String() = %q, want %q", r.String(), tt.want)
			}
		})
	}
}

func TestAPIEventNameAndPrice(t *testing.T) {
	t.Parallel()
	in := apiInput(`{"result":{"ticketArea":[{"ticketAreaName":"B","price":1200,"count":1}]}}`)
	res, ok := Default(logx.Nop()).Extract(in)
	if !ok {
		t.Fatal("expected a match")
	}
	if res.EventName != "(API) "+in.URL {
		t.Fatalf("EventName = %q", res.EventName)
	}
	if res.Seats[0].Price != "1200" {
		t.Fatalf("Price = %q, want 1200", res.Seats[0].Price)
	}
}

func TestAPIMissingAreasIsEmptyResult(t *testing.T) {
	t.Parallel()
	res, ok := Default(logx.Nop()).Extract(apiInput(`{"result":{}}`))
	if !ok {
		t.Fatal("expected a match")
	}
	if len(res.Seats) != 0 {
		t.Fatalf("seats = %d, want 0", len(res.Seats))
	}
}

func TestAPIMalformedJSONIsNoMatch(t *testing.T) {
	t.Parallel()
	if res, ok := Default(logx.Nop()).Extract(apiInput(`{"result":`)); ok || res != nil {
		t.Fatalf("expected no match, got %+v", res)
	}
}

func TestAPILegacyIdentifierType(t *testing.T) {
	t.Parallel()
	in := apiInput(`{"result":{"ticketArea":[]}}`)
	in.IdentifierType = "ticketplus_api"
	if _, ok := Default(logx.Nop()).Extract(in); !ok {
		t.Fatal("ticketplus_api should behave as api")
	}
	in.IdentifierType = ""
	if _, ok := Default(logx.Nop()).Extract(in); !ok {
		t.Fatal("empty identifier_type should default to api")
	}
}

const eventPage = `<html><body>
<div class="text-page-title">  2025 Live Tour  </div>
<div class="v-expansion-panel">
  <div class="d-flex align-center col col-8"><div>icon</div><div> 搖滾區 A </div></div>
  <div class="text-right col col-4">NT.3,800</div>
  <span class="v-chip__content">熱賣中</span>
</div>
<div class="v-expansion-panel">
  <div class="d-flex align-center col col-8"><div>icon</div><div>看台 B</div></div>
  <div class="text-right col col-4">NT.2,800</div>
  <span class="v-chip__content">完售</span>
</div>
<div class="v-expansion-panel">
  <div class="d-flex align-center col col-8"><span>身障席</span></div>
  <span class="v-chip__content">剩餘 2</span>
</div>
<div class="v-expansion-panel">
  <span class="v-chip__content">熱賣中</span>
</div>
</body></html>`

func TestHTMLPanels(t *testing.T) {
	t.Parallel()
	res, ok := Default(logx.Nop()).Extract(htmlInput(ticketPlusEventURL, eventPage))
	if !ok {
		t.Fatal("expected a match")
	}
	if res.EventName != "2025 Live Tour" {
		t.Fatalf("EventName = %q", res.EventName)
	}
	want := []SeatArea{
		{Area: "搖滾區 A", Price: "3800", Remaining: Status("熱賣中")},
		{Area: "身障席", Price: "", Remaining: Status("剩餘 2")},
	}
	if len(res.Seats) != len(want) {
		t.Fatalf("seats = %+v, want %d", res.Seats, len(want))
	}
	for i := range want {
		if res.Seats[i] != want[i] {
			t.Fatalf("seat[%d] = %+v, want %+v", i, res.Seats[i], want[i])
		}
	}
}

func TestHTMLNoPanelsIsEmptyResult(t *testing.T) {
	t.Parallel()
	res, ok := Default(logx.Nop()).Extract(htmlInput(ticketPlusEventURL, `<html><body><p>loading</p></body></html>`))
	if !ok {
		t.Fatal("vendor page without panels should still match")
	}
	if res.EventName != "未知活動" {
		t.Fatalf("EventName = %q, want fallback", res.EventName)
	}
	if res.Seats == nil || len(res.Seats) != 0 {
		t.Fatalf("seats = %#v, want empty non-nil", res.Seats)
	}
}

func TestNoMatch(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   Input
	}{
		{name: "other domain html", in: htmlInput("https://example.com/event", eventPage)},
		{name: "vendor domain non-html", in: Input{
			URL:            ticketPlusEventURL,
			IdentifierType: TypeHTML,
			Page:           fetch.Page{ContentType: "text/plain", Body: []byte("hello")},
		}},
		{name: "api type with html content elsewhere", in: Input{
			URL:            "https://example.com/api",
			IdentifierType: TypeAPI,
			Page:           fetch.Page{ContentType: "text/html", Body: []byte("<html></html>")},
		}},
		{name: "json under html type", in: Input{
			URL:            "https://example.com/api",
			IdentifierType: TypeHTML,
			Page:           fetch.Page{ContentType: "application/json", Body: []byte(`{}`)},
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if res, ok := Default(logx.Nop()).Extract(tt.in); ok || res != nil {
				t.Fatalf("expected no match, got %+v", res)
			}
		})
	}
}

func TestRegisterFirstMatchWins(t *testing.T) {
	t.Parallel()
	r := NewRegistry(logx.Nop())
	r.Register(Rule{
		Name:  "first",
		Match: func(Input) bool { return true },
		Parse: func(Input) (*Result, error) { return &Result{EventName: "first"}, nil },
	})
	r.Register(Rule{
		Name:  "second",
		Match: func(Input) bool { return true },
		Parse: func(Input) (*Result, error) { return &Result{EventName: "second"}, nil },
	})
	res, ok := r.Extract(Input{URL: "https://example.com"})
	if !ok || res.EventName != "first" {
		t.Fatalf("got %+v ok=%v, want first", res, ok)
	}
	if names := r.Names(); len(names) != 2 || names[0] != "first" {
		t.Fatalf("Names() = %v", names)
	}
}

func TestIsTicketPlusHost(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"https://ticketplus.com.tw/activity/1":     true,
		"https://apis.ticketplus.com.tw/x":         true,
		"https://ticketplus.com.tw.evil.example/":  false,
		"https://example.com/?u=ticketplus.com.tw": false,
		"not a url with ticketplus.com.tw":         false,
	}
	for raw, want := range cases {
		if got := isTicketPlusHost(raw); got != want {
			t.Fatalf("isTicketPlusHost(%q) = %v, want %v", raw, got, want)
		}
	}
}
