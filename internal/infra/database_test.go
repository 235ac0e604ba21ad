package infra

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "cron_locks_pkey"}
	if !IsUniqueViolation(dup) {
		t.Fatalf("expected unique violation")
	}
	if !IsUniqueViolation(fmt.Errorf("insert lock: %w", dup)) {
		t.Fatalf("expected wrapped unique violation")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("serialization failure is not a unique violation")
	}
	if IsUniqueViolation(errors.New("boom")) {
		t.Fatalf("plain error is not a unique violation")
	}
}

func TestNewRedisClientEmptyURL(t *testing.T) {
	client, err := NewRedisClient(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client != nil {
		t.Fatalf("expected nil client for empty url")
	}
}
