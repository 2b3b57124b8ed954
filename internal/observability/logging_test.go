package observability

import (
	"context"
	"testing"
)

func TestContextAccumulation(t *testing.T) {
	ctx := context.Background()
	ctx = WithBuildID(ctx, "b-123")
	ctx = WithStage(ctx, "bootstrap")

	lc := GetContext(ctx)
	if lc.BuildID != "b-123" {
		t.Fatalf("expected build id b-123, got %q", lc.BuildID)
	}
	if lc.Stage != "bootstrap" {
		t.Fatalf("expected stage bootstrap, got %q", lc.Stage)
	}
}

func TestStageOverwrite(t *testing.T) {
	ctx := WithStage(context.Background(), "resolve")
	ctx = WithStage(ctx, "iso")
	if GetContext(ctx).Stage != "iso" {
		t.Fatal("later stage should replace earlier")
	}
}

func TestEmptyContext(t *testing.T) {
	lc := GetContext(context.Background())
	if lc.BuildID != "" || lc.Stage != "" {
		t.Fatal("empty context should yield zero LogContext")
	}
}
