package dns

import (
	"context"
	"errors"
	"fmt"
)

// Record is an A-record as the provider reports it. ID is the provider's
// handle for the record and is what the platform stores locally.
type Record struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
	Proxied bool   `json:"proxied"`
}

// RecordPatch carries partial updates for UpdateRecord. Nil fields are
// left untouched.
type RecordPatch struct {
	Content *string `json:"content,omitempty"`
	TTL     *int    `json:"ttl,omitempty"`
	Proxied *bool   `json:"proxied,omitempty"`
}

// Provider is the record CRUD surface of an external DNS provider scoped to
// a single zone. All mutating calls change real external state; nothing here
// is transactional with the local store.
type Provider interface {
	// CreateRecord creates an A-record. A *ProviderError is returned on any
	// provider rejection; use IsDuplicateRecord to classify name collisions.
	CreateRecord(ctx context.Context, name, content string, ttl int, proxied bool) (Record, error)

	// DeleteRecord is best-effort: it returns false instead of an error so
	// it is safe to call during rollback without masking the original error.
	DeleteRecord(ctx context.Context, id string) bool

	// UpdateRecord applies a partial update. Returns nil on failure.
	UpdateRecord(ctx context.Context, id string, patch RecordPatch) *Record

	// GetRecord returns nil when the record does not exist or the lookup fails.
	GetRecord(ctx context.Context, id string) *Record

	// ListRecords returns records matching the name filter, or all records in
	// the zone when the filter is empty. Lookup failures yield an empty list.
	ListRecords(ctx context.Context, nameFilter string) []Record

	// HealthCheck reports whether the credential is valid and the configured
	// zone is reachable. Both must hold for a true result.
	HealthCheck(ctx context.Context) bool
}

// Provider error codes that mean "a record with this name already exists".
// Kept as an explicit allow-list so a taxonomy change on the provider side
// fails closed into "non-retryable" visibly, not via substring matching.
const (
	CodeRecordAlreadyExists   = 81057
	CodeIdenticalRecordExists = 81058
)

var duplicateRecordCodes = map[int]bool{
	CodeRecordAlreadyExists:   true,
	CodeIdenticalRecordExists: true,
}

// ProviderError is a non-2xx answer from the provider's API.
type ProviderError struct {
	HTTPStatus int
	Code       int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error: status %d, code %d: %s", e.HTTPStatus, e.Code, e.Message)
}

// IsDuplicateRecord reports whether err is a provider rejection caused by a
// duplicate record name. Only these errors are retryable with a fresh name;
// auth, permission, validation and network failures are not self-healing.
func IsDuplicateRecord(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && duplicateRecordCodes[pe.Code]
}
