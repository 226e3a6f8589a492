package monitor

import (
	"strings"

	"tixwatch/internal/config"
	"tixwatch/internal/extract"
)

// Target is one monitored URL with its parsing configuration.
// URL is the stable key used by the Tracker.
type Target struct {
	URL             string
	IdentifierType  string
	IdentifierValue string
	DisplayName     string
	SaleURL         string
	Render          bool
}

// TargetFromConfig applies defaults: identifier_type api, name and sale_url fall back to url.
func TargetFromConfig(c config.Target) Target {
	u := strings.TrimSpace(c.URL)
	t := Target{
		URL:             u,
		IdentifierType:  extract.NormalizeType(c.IdentifierType),
		IdentifierValue: c.IdentifierValue,
		DisplayName:     strings.TrimSpace(c.Name),
		SaleURL:         strings.TrimSpace(c.SaleURL),
		Render:          c.Render,
	}
	if t.DisplayName == "" {
		t.DisplayName = u
	}
	if t.SaleURL == "" {
		t.SaleURL = u
	}
	return t
}

func TargetsFromConfig(cs []config.Target) []Target {
	out := make([]Target, 0, len(cs))
	for _, c := range cs {
		out = append(out, TargetFromConfig(c))
	}
	return out
}
