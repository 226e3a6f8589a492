package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/lib/pq"

	logx "tixwatch/pkg/logx"
)

type postgresStore struct {
	db  *sql.DB
	log logx.Logger
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, alertSchema("BIGSERIAL PRIMARY KEY")); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("postgres store opened")
	return &postgresStore{db: db, log: log}, nil
}

func (s *postgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *postgresStore) AppendAlert(ctx context.Context, r AlertRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts(at, url, name, seats, platform, channel_id, delivered, err)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
		formatAt(r.At), r.URL, r.Name, r.Seats, nullStr(r.Platform), r.ChannelID, boolInt(r.Delivered), nullStr(r.Error),
	)
	return err
}

func (s *postgresStore) RecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, url, name, seats, platform, channel_id, delivered, err
		 FROM alerts ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func scanAlerts(rows *sql.Rows) ([]AlertRecord, error) {
	var out []AlertRecord
	for rows.Next() {
		var (
			r         AlertRecord
			at        string
			platform  sql.NullString
			delivered int
			errText   sql.NullString
		)
		if err := rows.Scan(&at, &r.URL, &r.Name, &r.Seats, &platform, &r.ChannelID, &delivered, &errText); err != nil {
			return nil, err
		}
		r.At = parseAt(at)
		r.Platform = platform.String
		r.Delivered = delivered != 0
		r.Error = errText.String
		out = append(out, r)
	}
	return out, rows.Err()
}
