package utils

import (
	"context"
	"testing"
	"time"
)

func TestPostgresPoolDefaults(t *testing.T) {
	p := PostgresPoolConfig{MaxOpenConns: 8}.withDefaults()
	if p.MaxOpenConns != 8 || p.MaxIdleConns != 8 {
		t.Fatalf("idle conns should follow open conns, got %+v", p)
	}
	if p.PingTimeout != 5*time.Second || p.ConnMaxLifetime != 30*time.Minute {
		t.Fatalf("unexpected defaults %+v", p)
	}
}

func TestHealthCheck_SQLite(t *testing.T) {
	db, err := OpenSQLite(MemorySQLite)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	if err := HealthCheck(context.Background(), sqlDB, time.Second); err != nil {
		t.Fatalf("expected healthy db, got %v", err)
	}
	if err := HealthCheck(context.Background(), nil, time.Second); err == nil {
		t.Fatalf("expected error for nil db")
	}
}
