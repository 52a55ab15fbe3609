package db_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/atinyakov/GophSpend/internal/db"
)

func TestInitPostgres_Unreachable(t *testing.T) {
	cases := []struct {
		name string
		dsn  string
	}{
		{"invalid DSN", "some=random"},
		{"empty DSN", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := db.InitPostgres(tc.dsn)
			if err == nil {
				t.Fatalf("InitPostgres(%q) did not return error", tc.dsn)
			}
			if !strings.Contains(err.Error(), "ping postgres") {
				t.Errorf("InitPostgres(%q) error = %q; want a ping failure", tc.dsn, err.Error())
			}
		})
	}
}

func TestApplySchema(t *testing.T) {
	cases := []struct {
		name    string
		execErr error
		wantErr string
	}{
		{name: "tables created"},
		{name: "exec fails", execErr: errors.New("permission denied for schema public"), wantErr: "create schema: permission denied"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dbMock, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to open sqlmock database: %v", err)
			}
			defer dbMock.Close()

			exp := mock.ExpectExec(`(?s)CREATE TABLE IF NOT EXISTS accounts .*email TEXT PRIMARY KEY.*` +
				`CREATE TABLE IF NOT EXISTS documents .*data JSONB.*deleted BOOLEAN.*PRIMARY KEY \(collection, id\).*` +
				`CREATE INDEX IF NOT EXISTS documents_live_idx.*WHERE deleted = false`)
			if tc.execErr != nil {
				exp.WillReturnError(tc.execErr)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(0, 0))
			}

			err = db.ApplySchema(dbMock)
			switch {
			case tc.wantErr == "" && err != nil:
				t.Fatalf("ApplySchema() error = %v", err)
			case tc.wantErr != "" && (err == nil || !strings.Contains(err.Error(), tc.wantErr)):
				t.Fatalf("ApplySchema() error = %v; want substring %q", err, tc.wantErr)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}
