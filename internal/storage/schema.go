package storage

import (
	"fmt"
	"strings"
	"time"
)

// alertSchema returns the DDL for the alerts table. idColumn differs per dialect.
func alertSchema(idColumn string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS alerts (
	id         %s,
	at         TEXT    NOT NULL,
	url        TEXT    NOT NULL,
	name       TEXT    NOT NULL,
	seats      INTEGER NOT NULL,
	platform   TEXT,
	channel_id BIGINT  NOT NULL,
	delivered  INTEGER NOT NULL,
	err        TEXT
);
CREATE INDEX IF NOT EXISTS alerts_at_idx ON alerts(at);
`, idColumn)
}

// Timestamps are stored as UTC RFC3339 text so both dialects sort them the same way.
func formatAt(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseAt(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
