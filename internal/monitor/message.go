package monitor

import (
	"strings"

	"tixwatch/internal/extract"
	"tixwatch/internal/transport"
)

const (
	// StartupAnnouncement is posted once when monitoring begins.
	StartupAnnouncement = "TicketPlus 監控通知機器人已開啟！"

	alertTitlePrefix = "TicketPlus釋票通知: "
	maxNameRunes     = 250
	unknownEvent     = "未知活動"
)

// AlertName picks the name shown in an alert: the configured display name,
// unless it was left as the URL, in which case the extracted event name.
func AlertName(t Target, res *extract.Result) string {
	name := t.DisplayName
	if name == "" || name == t.URL {
		name = unknownEvent
		if res != nil && res.EventName != "" {
			name = res.EventName
		}
	}
	if r := []rune(name); len(r) > maxNameRunes {
		name = string(r[:maxNameRunes]) + "..."
	}
	return name
}

// ComposeAlert builds the availability message: a green embed linking to the
// sale page, followed by the mention and one line per available area.
func ComposeAlert(t Target, res *extract.Result, seats []extract.SeatArea, mention string) transport.Message {
	name := AlertName(t, res)

	var b strings.Builder
	if m := strings.TrimSpace(mention); m != "" {
		b.WriteString(m)
		b.WriteString(" ")
	}
	b.WriteString("有票釋出！ (")
	b.WriteString(name)
	b.WriteString(")\n")
	b.WriteString("網址: ")
	b.WriteString(t.SaleURL)
	b.WriteString("\n")
	b.WriteString("票區資訊：\n")
	for _, s := range seats {
		b.WriteString(s.Area)
		b.WriteString(" ")
		b.WriteString(s.Price)
		b.WriteString(" 剩餘 ")
		b.WriteString(s.Remaining.String())
		b.WriteString("\n")
	}

	return transport.Message{
		Text: b.String(),
		Embed: &transport.Embed{
			Title: alertTitlePrefix + name,
			URL:   t.SaleURL,
			Color: transport.ColorGreen,
		},
	}
}
