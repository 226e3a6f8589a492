package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	ticketPlusDomain = "ticketplus.com.tw"
	unknownEvent     = "未知活動"
)

// TicketPlusHTML parses an event page on the TicketPlus domain.
//
// It matches on the domain alone so a non-HTML response from that domain is
// reported as ErrUnsupportedContent instead of silently falling through.
func TicketPlusHTML() Rule {
	return Rule{
		Name:  "ticketplus.html",
		Match: func(in Input) bool { return isTicketPlusHost(in.URL) },
		Parse: parseTicketPlusHTML,
	}
}

func isTicketPlusHost(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == ticketPlusDomain || strings.HasSuffix(host, "."+ticketPlusDomain)
}

func parseTicketPlusHTML(in Input) (*Result, error) {
	if !strings.Contains(in.Page.ContentType, "html") {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContent, in.Page.ContentType)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(in.Page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	res := &Result{Vendor: VendorTicketPlus, EventName: unknownEvent, Seats: []SeatArea{}}
	if title := doc.Find("div.text-page-title").First(); title.Length() > 0 {
		res.EventName = strings.TrimSpace(title.Text())
	}

	doc.Find("div.v-expansion-panel").Each(func(_ int, panel *goquery.Selection) {
		var area, price, status string

		if div := panel.Find("div.d-flex.align-center.col.col-8").First(); div.Length() > 0 {
			if kids := div.ChildrenFiltered("div"); kids.Length() >= 2 {
				area = strippedText(kids.Eq(1))
			} else {
				area = strippedText(div)
			}
		}
		if div := panel.Find("div.text-right.col.col-4").First(); div.Length() > 0 {
			price = strippedText(div)
			price = strings.ReplaceAll(price, "NT.", "")
			price = strings.TrimSpace(strings.ReplaceAll(price, ",", ""))
		}
		if chip := panel.Find("span.v-chip__content").First(); chip.Length() > 0 {
			status = strippedText(chip)
		}

		if strings.Contains(status, "完售") || strings.Contains(status, "售完") {
			return
		}
		if area == "" && price == "" {
			return
		}
		res.Seats = append(res.Seats, SeatArea{Area: area, Price: price, Remaining: Status(status)})
	})
	return res, nil
}

// strippedText concatenates the trimmed text nodes under sel, dropping the
// whitespace the page template puts between elements.
func strippedText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(strings.TrimSpace(n.Data))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return b.String()
}
