package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/riskreview-backend/internal/data/repos"
	"github.com/yungbote/riskreview-backend/internal/data/repos/testutil"
	"github.com/yungbote/riskreview-backend/internal/platform/ctxutil"
)

func asUser(id uuid.UUID) context.Context {
	return ctxutil.WithRequestData(context.Background(), &ctxutil.RequestData{UserID: id})
}

func asAdmin(id uuid.UUID) context.Context {
	return ctxutil.WithRequestData(context.Background(), &ctxutil.RequestData{UserID: id, Role: ctxutil.RoleAdmin})
}

func newRepoSet(t *testing.T) (*gorm.DB, repos.Set) {
	t.Helper()
	db := testutil.DB(t)
	return db, repos.NewSet(db, testutil.Logger(t))
}

type countingMetrics struct {
	submissions map[string]int
	feedback    map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{submissions: map[string]int{}, feedback: map[string]int{}}
}

func (m *countingMetrics) ObserveSubmission(outcome string) { m.submissions[outcome]++ }

func (m *countingMetrics) ObserveFeedback(status string) { m.feedback[status]++ }
