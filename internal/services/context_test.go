package services_test

import (
	"context"
	"testing"

	"bgmrules/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-123")
	ctx = services.WithStage(ctx, "matching")
	ctx = services.WithWorkIndex(ctx, 0)
	ctx = services.WithBatchIndex(ctx, 2)

	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-123" {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "matching" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if idx, ok := services.WorkIndexFromContext(ctx); !ok || idx != 0 {
		t.Fatalf("unexpected work index: %v %v", idx, ok)
	}
	if idx, ok := services.BatchIndexFromContext(ctx); !ok || idx != 2 {
		t.Fatalf("unexpected batch index: %v %v", idx, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.WorkIndexFromContext(ctx); ok {
		t.Fatal("expected no work index value")
	}
}
