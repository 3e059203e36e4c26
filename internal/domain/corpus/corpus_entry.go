package corpus

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

const (
	KindCase       = "case"
	KindRegulation = "regulation"
	// KindGuidance holds authoritative Q&A rulings injected into the
	// extraction prompt for the whole document.
	KindGuidance = "guidance"
)

// CorpusEntry is a Case, Regulation or Guidance entry. Rows are written by offline ingestion;
// the review pipeline only reads them.
type CorpusEntry struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Kind      string `gorm:"column:kind;not null;index" json:"kind"`
	Title     string `gorm:"column:title;not null" json:"title"`
	Category  string `gorm:"column:category;index" json:"category,omitempty"`
	Content   string `gorm:"column:content;type:text;not null" json:"content"`
	SourceURL string `gorm:"column:source_url" json:"source_url,omitempty"`

	Embedding      datatypes.JSON `gorm:"column:embedding;type:jsonb" json:"-"`
	EmbeddingModel string         `gorm:"column:embedding_model" json:"embedding_model,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (CorpusEntry) TableName() string { return "corpus_entry" }

// Vector decodes the stored embedding. ok is false when the entry has none
// or the column does not hold a numeric array.
func (e *CorpusEntry) Vector() ([]float32, bool) {
	if e == nil || len(e.Embedding) == 0 {
		return nil, false
	}
	var v []float32
	if err := json.Unmarshal(e.Embedding, &v); err != nil || len(v) == 0 {
		return nil, false
	}
	return v, true
}

// EncodeVector serializes v the way Vector expects to read it back.
func EncodeVector(v []float32) datatypes.JSON {
	if len(v) == 0 {
		return nil
	}
	b, _ := json.Marshal(v)
	return datatypes.JSON(b)
}
