package corpus

import (
	"strings"

	"gorm.io/gorm"

	types "github.com/yungbote/riskreview-backend/internal/domain"
	"github.com/yungbote/riskreview-backend/internal/platform/dbctx"
	"github.com/yungbote/riskreview-backend/internal/platform/logger"
)

type CorpusEntryRepo interface {
	Create(dbc dbctx.Context, entries []*types.CorpusEntry) ([]*types.CorpusEntry, error)
	ListEmbedded(dbc dbctx.Context) ([]*types.CorpusEntry, error)
	Search(dbc dbctx.Context, q SearchQuery) ([]*types.CorpusEntry, error)
	GetByIDs(dbc dbctx.Context, ids []int64) ([]*types.CorpusEntry, error)
}

type SearchQuery struct {
	Text     string
	Kind     string
	Category string
	Limit    int
}

type corpusEntryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCorpusEntryRepo(db *gorm.DB, baseLog *logger.Logger) CorpusEntryRepo {
	return &corpusEntryRepo{
		db:  db,
		log: baseLog.With("repo", "CorpusEntryRepo"),
	}
}

func (r *corpusEntryRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *corpusEntryRepo) Create(dbc dbctx.Context, entries []*types.CorpusEntry) ([]*types.CorpusEntry, error) {
	if len(entries) == 0 {
		return []*types.CorpusEntry{}, nil
	}
	if err := r.tx(dbc).Create(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ListEmbedded returns every entry carrying an embedding, ordered by id.
// Dimension filtering happens in the retriever, which knows the query size.
func (r *corpusEntryRepo) ListEmbedded(dbc dbctx.Context) ([]*types.CorpusEntry, error) {
	var out []*types.CorpusEntry
	err := r.tx(dbc).
		Where("embedding IS NOT NULL").
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Search is a case-insensitive substring match over title and content.
func (r *corpusEntryRepo) Search(dbc dbctx.Context, q SearchQuery) ([]*types.CorpusEntry, error) {
	db := r.tx(dbc).Model(&types.CorpusEntry{}).Omit("embedding")
	if q.Kind != "" {
		db = db.Where("kind = ?", q.Kind)
	}
	if q.Category != "" {
		db = db.Where("category = ?", q.Category)
	}
	if text := strings.TrimSpace(q.Text); text != "" {
		pattern := "%" + escapeLike(strings.ToLower(text)) + "%"
		db = db.Where("(LOWER(title) LIKE ? ESCAPE '\\' OR LOWER(content) LIKE ? ESCAPE '\\')", pattern, pattern)
	}
	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var out []*types.CorpusEntry
	if err := db.Order("id ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *corpusEntryRepo) GetByIDs(dbc dbctx.Context, ids []int64) ([]*types.CorpusEntry, error) {
	var out []*types.CorpusEntry
	if len(ids) == 0 {
		return out, nil
	}
	if err := r.tx(dbc).Omit("embedding").Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
