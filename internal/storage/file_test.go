package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "tixwatch/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for postgres without dsn")
	}
}

func TestFileStoreAppendAndRecent(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "data", "tixwatch.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		r := AlertRecord{
			At:        base.Add(time.Duration(i) * time.Minute),
			URL:       "https://ticketplus.com.tw/activity/" + string(rune('a'+i)),
			Name:      "event",
			Seats:     i,
			ChannelID: 42,
			Delivered: i%2 == 0,
		}
		if err := st.AppendAlert(ctx, r); err != nil {
			t.Fatalf("AppendAlert error: %v", err)
		}
	}

	if _, err := os.Stat(filepath.Join(dir, "data", "tixwatch.alerts.jsonl")); err != nil {
		t.Fatalf("alert file missing: %v", err)
	}

	got, err := st.RecentAlerts(ctx, 3)
	if err != nil {
		t.Fatalf("RecentAlerts error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Seats != 4 || got[2].Seats != 2 {
		t.Fatalf("order = %d..%d, want newest first (4..2)", got[0].Seats, got[2].Seats)
	}
	if !got[0].At.Equal(base.Add(4 * time.Minute)) {
		t.Fatalf("At = %v", got[0].At)
	}
}

func TestFileStoreClosed(t *testing.T) {
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "a.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := st.AppendAlert(context.Background(), AlertRecord{URL: "x"}); err == nil {
		t.Fatal("expected error after Close")
	}
}
