package app

import (
	"time"

	"tixwatch/internal/monitor"
	"tixwatch/internal/notifier"
)

// Status is served on the ops /status endpoint.
type Status struct {
	Platform      string                 `json:"platform"`
	Cadence       string                 `json:"cadence"`
	Available     map[string]bool        `json:"available"`
	LastRound     *RoundStatus           `json:"last_round,omitempty"`
	Notifications []notifier.HistoryItem `json:"notifications"`
}

type RoundStatus struct {
	ID      string         `json:"id"`
	Started time.Time      `json:"started"`
	Took    string         `json:"took"`
	Targets []TargetStatus `json:"targets"`
}

type TargetStatus struct {
	URL       string `json:"url"`
	Name      string `json:"name"`
	Matched   bool   `json:"matched"`
	Available bool   `json:"available"`
	OpenAreas int    `json:"open_areas"`
	Notified  bool   `json:"notified,omitempty"`
	Error     string `json:"error,omitempty"`
}

func roundStatus(r monitor.RoundReport) *RoundStatus {
	if r.ID == "" {
		return nil
	}
	out := &RoundStatus{ID: r.ID, Started: r.Started, Took: r.Took.String()}
	for _, t := range r.Targets {
		ts := TargetStatus{
			URL:       t.URL,
			Name:      t.Name,
			Matched:   t.Matched,
			Available: t.Available,
			OpenAreas: len(t.Seats),
			Notified:  t.Notified,
		}
		if t.Err != nil {
			ts.Error = t.Err.Error()
		}
		out.Targets = append(out.Targets, ts)
	}
	return out
}

// Status snapshots the running monitor.
func (a *App) Status() Status {
	return Status{
		Platform:      a.adapter.Name(),
		Cadence:       a.mon.Cadence().String(),
		Available:     a.mon.Snapshot(),
		LastRound:     roundStatus(a.mon.LastRound()),
		Notifications: a.notif.Snapshot(),
	}
}
