package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"spacewh/mis/internal/constants"
)

// Record is one row of a collection, keyed by column name.
type Record map[string]any

// Filter is a set of equality predicates over named fields, ANDed together.
type Filter map[string]any

// RecordStore is the persistent record service. Callers get an empty slice,
// never an error, when nothing matches a query.
type RecordStore interface {
	// Create stores a record and returns it as persisted
	Create(ctx context.Context, collection constants.Collection, record Record) (Record, error)

	// Query returns every record matching all filter predicates, in no particular order
	Query(ctx context.Context, collection constants.Collection, filter Filter) ([]Record, error)

	// Update applies patch to every record matching filter and returns the updated records
	Update(ctx context.Context, collection constants.Collection, filter Filter, patch Record) ([]Record, error)

	// Ping checks the store is reachable
	Ping(ctx context.Context) error

	// GetProviderType returns the backend identifier
	GetProviderType() string
}

// StoreError reports that the store could not be reached or did not return a
// usable answer. It never means "not found".
type StoreError struct {
	Status  int // upstream status, 0 when no response was received
	Code    string
	Message string
	Details string
	Err     error
}

func (e *StoreError) Error() string {
	msg := e.Message
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsConflict reports whether err is a store-level uniqueness violation.
func IsConflict(err error) bool {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Status == http.StatusConflict || storeErr.Code == constants.ErrCodeStoreConflict
	}
	return false
}

// DecodeRecord converts a record into a typed value using its JSON tags.
func DecodeRecord[T any](rec Record) (T, error) {
	var out T
	raw, err := json.Marshal(rec)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

// EncodeRecord converts a typed value into a record using its JSON tags.
func EncodeRecord(v any) (Record, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}
