package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/riskreview-backend/internal/domain"
	"github.com/yungbote/riskreview-backend/internal/domain/corpus"
)

func SeedJob(tb testing.TB, db *gorm.DB, owner *uuid.UUID, text string) *types.ReviewJob {
	tb.Helper()
	job := &types.ReviewJob{
		OwnerUserID:  owner,
		FileName:     "contract.txt",
		SourceText:   text,
		ContentBytes: int64(len(text)),
		Status:       types.StatusPending,
	}
	if err := db.WithContext(context.Background()).Create(job).Error; err != nil {
		tb.Fatalf("seed job: %v", err)
	}
	return job
}

func SeedRisk(tb testing.TB, db *gorm.DB, jobID uuid.UUID, seq int, level string) *types.ReviewRisk {
	tb.Helper()
	risk := &types.ReviewRisk{
		JobID:       jobID,
		Seq:         seq,
		ChunkIndex:  seq,
		Level:       level,
		Title:       "exclusive supplier clause",
		Description: "the clause restricts bidding to a named supplier",
	}
	if err := db.WithContext(context.Background()).Create(risk).Error; err != nil {
		tb.Fatalf("seed risk: %v", err)
	}
	return risk
}

func SeedCorpus(tb testing.TB, db *gorm.DB, kind, title string, vec []float32) *types.CorpusEntry {
	tb.Helper()
	entry := &types.CorpusEntry{
		Kind:      kind,
		Title:     title,
		Content:   title + " full text",
		Embedding: corpus.EncodeVector(vec),
	}
	if err := db.WithContext(context.Background()).Create(entry).Error; err != nil {
		tb.Fatalf("seed corpus: %v", err)
	}
	return entry
}
