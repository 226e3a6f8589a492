package monitor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Cadence decides when the next round may start.
//
// Supported schedule strings:
//   - Cron: "*/5 * * * *", "@hourly", "@every 90s"
//   - Interval duration: "90s", "2m30s"
//   - Interval HH:MM: "00:05" (5 minutes), "01:30" (1 hour 30 minutes)
//
// Optional prefixes "cron:" and "interval:"/"every:" force one form.
type Cadence struct {
	Schedule cron.Schedule
	Every    time.Duration // 0 for cron expressions
	Spec     string
	Source   string // "interval" | "cron" | "duration" | "hhmm"
}

// Next returns the earliest start of the round after one that started at start.
func (c Cadence) Next(start time.Time) time.Time {
	if c.Every > 0 {
		return start.Add(c.Every)
	}
	if c.Schedule == nil {
		return start
	}
	return c.Schedule.Next(start)
}

func (c Cadence) String() string {
	if c.Spec != "" {
		return c.Spec
	}
	return "@every " + c.Every.String()
}

// IntervalCadence runs a round every d, measured from round start to round start.
func IntervalCadence(d time.Duration) Cadence {
	if d <= 0 {
		d = 60 * time.Second
	}
	return Cadence{Schedule: cron.Every(d), Every: d, Source: "interval"}
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses the schedule config value.
func ParseSchedule(raw string) (Cadence, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Cadence{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "interval:"):
		return parseIntervalCadence(strings.TrimSpace(s[len("interval:"):]))
	case strings.HasPrefix(low, "every:"):
		return parseIntervalCadence(strings.TrimSpace(s[len("every:"):]))
	}

	// any whitespace or leading '@' => cron
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return parseCron(s)
	}
	return parseIntervalCadence(s)
}

func parseCron(expr string) (Cadence, error) {
	if expr == "" {
		return Cadence{}, fmt.Errorf("cron schedule required after 'cron:'")
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return Cadence{}, fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	c := Cadence{Schedule: sched, Spec: expr, Source: "cron"}
	// "@every" keeps start-to-start semantics rather than cron's second rounding.
	if cd, ok := sched.(cron.ConstantDelaySchedule); ok {
		c.Every = cd.Delay
	}
	return c, nil
}

func parseIntervalCadence(v string) (Cadence, error) {
	if v == "" {
		return Cadence{}, fmt.Errorf("interval required")
	}
	if reHHMM.MatchString(v) {
		d, err := parseHHMMDuration(v)
		if err != nil {
			return Cadence{}, err
		}
		c := IntervalCadence(d)
		c.Spec, c.Source = v, "hhmm"
		return c, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return Cadence{}, fmt.Errorf(
			"invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '00:05', or duration like '90s')", v)
	}
	if d <= 0 {
		return Cadence{}, fmt.Errorf("interval must be > 0")
	}
	c := IntervalCadence(d)
	c.Spec, c.Source = v, "duration"
	return c, nil
}

func parseHHMMDuration(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}
