package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/config"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:dbclient?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if IsUniqueViolation(nil, "") {
		t.Fatal("nil error is not a violation")
	}
	pgErr := errors.New(`ERROR: duplicate key value violates unique constraint "agent_earnings_order_id_key"`)
	if !IsUniqueViolation(pgErr, "") || !IsUniqueViolation(pgErr, "agent_earnings_order_id_key") {
		t.Fatal("expected postgres duplicate to match")
	}
	if IsUniqueViolation(pgErr, "other_key") {
		t.Fatal("constraint filter should not match")
	}
	typed := fmt.Errorf("insert earning: %w", &pgconn.PgError{Code: "23505", ConstraintName: "agent_earnings_order_id_key"})
	if !IsUniqueViolation(typed, "agent_earnings_order_id_key") || IsUniqueViolation(typed, "other_key") {
		t.Fatal("expected typed postgres error to match by constraint")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Fatal("foreign key violation is not a unique violation")
	}
	sqliteErr := errors.New("UNIQUE constraint failed: agent_earnings.order_id")
	if !IsUniqueViolation(sqliteErr, "") {
		t.Fatal("expected sqlite duplicate to match")
	}
}

func TestIsTxConflict(t *testing.T) {
	for _, code := range []string{"40001", "40P01"} {
		err := fmt.Errorf("assign order: %w", &pgconn.PgError{Code: code})
		if !IsTxConflict(err) {
			t.Fatalf("expected %s to be a transaction conflict", code)
		}
	}
	if IsTxConflict(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("unique violation is not a transaction conflict")
	}
	if IsTxConflict(nil) || IsTxConflict(errors.New("database is locked")) {
		t.Fatal("only postgres aborts count")
	}
}

func TestAutoMigrateCreatesDomainTables(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:automigrate?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	client := NewFromGorm(conn)
	if err := client.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	for _, table := range []string{"orders", "agent_candidates", "agents", "allocation_settings", "agent_earnings", "agent_milestone_progress", "milestone_delivery_credits", "outbox_events"} {
		if !conn.Migrator().HasTable(table) {
			t.Fatalf("expected table %s", table)
		}
	}
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)
	client := NewFromGorm(db)
	var before int64
	db.Model(&testModel{}).Count(&before)

	func() {
		defer func() { _ = recover() }()
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			if err := tx.Create(&testModel{Name: "half-written"}).Error; err != nil {
				return err
			}
			panic("mid-transaction")
		})
	}()

	var after int64
	if err := db.Model(&testModel{}).Count(&after).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if after != before {
		t.Fatalf("expected panic to roll back, before=%d after=%d", before, after)
	}
}

func TestNewOpensSQLite(t *testing.T) {
	cfg := config.DBConfig{Driver: "sqlite", DSN: "file:dbclient-new?mode=memory&cache=shared", MaxOpenConns: 1}
	client, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()
	if err := client.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	if _, err := New(context.Background(), config.DBConfig{Driver: "mysql", DSN: "x"}, nil); err == nil {
		t.Fatal("expected unsupported driver error")
	}
	if _, err := New(context.Background(), config.DBConfig{Driver: "sqlite"}, nil); err == nil {
		t.Fatal("expected missing DSN error")
	}
}

func TestQueryLogWriterUsesServiceLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	w := queryLogWriter{logg: logger.New(logger.Options{ServiceName: "test", Output: buf})}
	w.Printf("SLOW SQL >= %v", "200ms")
	if !strings.Contains(buf.String(), `"gorm: SLOW SQL >= 200ms"`) {
		t.Fatalf("unexpected log entry %s", buf.String())
	}
}
