package store

import (
	"context"
	"testing"

	"github.com/Priya8975/campaign-mailer/internal/api"
	"github.com/Priya8975/campaign-mailer/internal/engine"
	"github.com/alicebob/miniredis/v2"
)

var (
	_ engine.Store     = (*PostgresStore)(nil)
	_ api.MetricsStore = (*PostgresStore)(nil)
)

func TestNewRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	rs, err := NewRedis(ctx, "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("NewRedis() error: %v", err)
	}
	defer rs.Close()

	if err := rs.Ping(ctx); err != nil {
		t.Errorf("Ping() error: %v", err)
	}
	if err := rs.Client().Set(ctx, "k", "v", 0).Err(); err != nil {
		t.Errorf("Set() error: %v", err)
	}
	if got, _ := mr.Get("k"); got != "v" {
		t.Errorf("stored %q, want v", got)
	}
}

func TestNewRedis_Errors(t *testing.T) {
	ctx := context.Background()
	if _, err := NewRedis(ctx, "not a url"); err == nil {
		t.Error("expected parse error")
	}

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	if _, err := NewRedis(ctx, "redis://"+addr); err == nil {
		t.Error("expected ping error")
	}
}
