package domain

import (
	"database/sql/driver"

	"github.com/pgvector/pgvector-go"
)

// Embedding is an optional vector column. It is stored in pgvector's text
// form ("[0.1,0.2,…]"), which works as plain TEXT on SQLite and casts to the
// vector type on PostgreSQL. A nil or empty Embedding is stored as NULL.
type Embedding []float32

// GormDataType keeps the column portable across the supported drivers.
func (Embedding) GormDataType() string { return "text" }

// Value implements driver.Valuer.
func (e Embedding) Value() (driver.Value, error) {
	if len(e) == 0 {
		return nil, nil
	}
	return pgvector.NewVector(e).Value()
}

// Scan implements sql.Scanner.
func (e *Embedding) Scan(src any) error {
	if src == nil {
		*e = nil
		return nil
	}
	var v pgvector.Vector
	if err := v.Scan(src); err != nil {
		return err
	}
	*e = Embedding(v.Slice())
	return nil
}

// Present reports whether the embedding carries any data.
func (e Embedding) Present() bool { return len(e) > 0 }
