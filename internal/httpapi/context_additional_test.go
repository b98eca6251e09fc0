package httpapi

import (
	"context"
	"testing"
	"time"
)

type ctxKey struct{}

func TestSetBaseContext_NilResetsToBackground(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	SetBaseContext(ctx)
	// nolint:staticcheck // SA1012: this test intentionally passes nil to verify fallback behavior
	SetBaseContext(nil)
	cancel()
	if serverBaseCtx.Err() != nil {
		t.Fatal("base context should have been reset to Background")
	}
}

func TestJoinContexts_CancelsWhenBaseDone(t *testing.T) {
	base, bc := context.WithCancel(context.Background())
	req := context.WithValue(context.Background(), ctxKey{}, "v")
	j, cancelJ := joinContexts(base, req)
	defer cancelJ()
	if j.Value(ctxKey{}) != "v" {
		t.Fatal("request values should stay reachable")
	}
	bc()
	select {
	case <-j.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("joined context did not cancel when base canceled")
	}
}

func TestJoinContexts_CancelsWhenRequestDone(t *testing.T) {
	base, bc := context.WithCancel(context.Background())
	defer bc()
	req, rc := context.WithCancel(context.Background())
	j, cancelJ := joinContexts(base, req)
	defer cancelJ()
	rc()
	select {
	case <-j.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("joined context did not cancel when request canceled")
	}
}
