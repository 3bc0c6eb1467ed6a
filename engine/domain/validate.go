package domain

import (
	"strconv"
	"strings"
)

// ValidateRecord is the entry gate for the ingestion pipeline.
func ValidateRecord(r SourceRecord) error {
	if !ValidSources[r.Source] {
		return &ValidationError{Field: "source", Value: string(r.Source), Wrapped: ErrConfig}
	}
	if strings.TrimSpace(r.ID) == "" {
		return &ValidationError{Field: "id", Value: r.ID, Wrapped: ErrConfig}
	}
	return nil
}

// ValidateQuery is the entry gate for retrieval. Rejected requests never
// reach the index.
func ValidateQuery(q Query) error {
	if strings.TrimSpace(q.Question) == "" {
		return &ValidationError{Field: "question", Value: q.Question, Wrapped: ErrInvalidQuery}
	}
	if q.K <= 0 {
		return &ValidationError{Field: "k", Value: strconv.Itoa(q.K), Wrapped: ErrInvalidQuery}
	}
	return nil
}
