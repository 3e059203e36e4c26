package review

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/riskreview-backend/internal/data/repos/testutil"
	types "github.com/yungbote/riskreview-backend/internal/domain"
	"github.com/yungbote/riskreview-backend/internal/platform/dbctx"
)

func TestReviewRiskRepoOrderingAndNextSeq(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewReviewRiskRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	job := testutil.SeedJob(t, tx, nil, "text")

	next, err := repo.NextSeq(dbc, job.ID)
	if err != nil || next != 0 {
		t.Fatalf("NextSeq on empty job = %d err=%v", next, err)
	}

	_, err = repo.Create(dbc, []*types.ReviewRisk{
		{JobID: job.ID, Seq: 1, Level: types.LevelLow, Title: "b", Description: "b"},
		{JobID: job.ID, Seq: 0, Level: types.LevelHigh, Title: "a", Description: "a"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	list, err := repo.ListByJob(dbc, job.ID)
	if err != nil {
		t.Fatalf("ListByJob: %v", err)
	}
	if len(list) != 2 || list[0].Title != "a" || list[1].Title != "b" {
		t.Fatalf("risks not ordered by seq: %+v", list)
	}
	next, err = repo.NextSeq(dbc, job.ID)
	if err != nil || next != 2 {
		t.Fatalf("NextSeq = %d err=%v", next, err)
	}
	if _, err := repo.GetByID(dbc, uuid.New()); err == nil {
		t.Fatalf("expected not found")
	}
}
