package storefake

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"spacewh/mis/internal/constants"
	"spacewh/mis/internal/providers"
)

var _ providers.RecordStore = (*FakeRecordStore)(nil)

// uniqueKey is a set of columns that must be unique within a collection.
// When activeOnly is set only rows with active = true take part.
type uniqueKey struct {
	columns    []string
	activeOnly bool
}

var uniqueKeys = map[constants.Collection][]uniqueKey{
	constants.CollectionInvitations: {{columns: []string{"code"}}},
	constants.CollectionOnboarding:  {{columns: []string{"invitation_code"}}},
	constants.CollectionMemberships: {
		{columns: []string{"membership_code"}},
		{columns: []string{"membership_key"}},
		{columns: []string{"invitation_code"}, activeOnly: true},
	},
}

// FakeRecordStore is an in-memory RecordStore with the same uniqueness rules
// as the relational schema.
type FakeRecordStore struct {
	mu       sync.Mutex
	rows     map[constants.Collection][]providers.Record
	nextID   int
	failures map[string]error
	calls    map[string]int
}

func NewFakeRecordStore() *FakeRecordStore {
	return &FakeRecordStore{
		rows:     make(map[constants.Collection][]providers.Record),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// FailOn makes every subsequent op ("create", "query", "update", "ping") on
// collection return err. Use an empty collection for ping.
func (f *FakeRecordStore) FailOn(op string, collection constants.Collection, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op+":"+collection.String()] = err
}

func (f *FakeRecordStore) ClearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = make(map[string]error)
}

// Calls reports how many times op was invoked on collection.
func (f *FakeRecordStore) Calls(op string, collection constants.Collection) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op+":"+collection.String()]
}

// Rows returns a copy of every stored row of collection.
func (f *FakeRecordStore) Rows(collection constants.Collection) []providers.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]providers.Record, 0, len(f.rows[collection]))
	for _, r := range f.rows[collection] {
		out = append(out, clone(r))
	}
	return out
}

func (f *FakeRecordStore) GetProviderType() string {
	return "fake"
}

func (f *FakeRecordStore) Create(ctx context.Context, collection constants.Collection, record providers.Record) (providers.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "create", collection); err != nil {
		return nil, err
	}

	rec, err := normalise(record)
	if err != nil {
		return nil, &providers.StoreError{Code: constants.ErrCodeStoreBadRequest, Message: "unencodable record", Err: err}
	}
	if err := f.checkUnique(collection, rec, -1); err != nil {
		return nil, err
	}

	f.nextID++
	rec["id"] = float64(f.nextID)
	f.rows[collection] = append(f.rows[collection], rec)
	return clone(rec), nil
}

func (f *FakeRecordStore) Query(ctx context.Context, collection constants.Collection, filter providers.Filter) ([]providers.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "query", collection); err != nil {
		return nil, err
	}

	out := []providers.Record{}
	for _, r := range f.rows[collection] {
		if matches(r, filter) {
			out = append(out, clone(r))
		}
	}
	return out, nil
}

func (f *FakeRecordStore) Update(ctx context.Context, collection constants.Collection, filter providers.Filter, patch providers.Record) ([]providers.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "update", collection); err != nil {
		return nil, err
	}
	if len(filter) == 0 {
		return nil, &providers.StoreError{Code: constants.ErrCodeStoreBadRequest, Message: "unfiltered update"}
	}

	normPatch, err := normalise(patch)
	if err != nil {
		return nil, &providers.StoreError{Code: constants.ErrCodeStoreBadRequest, Message: "unencodable patch", Err: err}
	}

	out := []providers.Record{}
	rows := f.rows[collection]
	for i, r := range rows {
		if !matches(r, filter) {
			continue
		}
		updated := clone(r)
		for k, v := range normPatch {
			updated[k] = v
		}
		if err := f.checkUnique(collection, updated, i); err != nil {
			return nil, err
		}
		rows[i] = updated
		out = append(out, clone(updated))
	}
	return out, nil
}

func (f *FakeRecordStore) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.begin(ctx, "ping", "")
}

func (f *FakeRecordStore) begin(ctx context.Context, op string, collection constants.Collection) error {
	key := op + ":" + collection.String()
	f.calls[key]++
	if err := ctx.Err(); err != nil {
		return &providers.StoreError{Code: constants.ErrCodeStoreNetwork, Message: "request cancelled", Err: err}
	}
	if err, ok := f.failures[key]; ok {
		return err
	}
	return nil
}

func (f *FakeRecordStore) checkUnique(collection constants.Collection, rec providers.Record, skip int) error {
	for _, key := range uniqueKeys[collection] {
		if key.activeOnly && rec["active"] != true {
			continue
		}
		for i, other := range f.rows[collection] {
			if i == skip {
				continue
			}
			if key.activeOnly && other["active"] != true {
				continue
			}
			same := true
			for _, col := range key.columns {
				if !jsonEqual(rec[col], other[col]) {
					same = false
					break
				}
			}
			if same {
				return &providers.StoreError{
					Status:  http.StatusConflict,
					Code:    constants.ErrCodeStoreConflict,
					Message: constants.GetErrorMessage(constants.ErrCodeStoreConflict),
					Err:     errors.New("duplicate key on " + collection.String()),
				}
			}
		}
	}
	return nil
}

func matches(r providers.Record, filter providers.Filter) bool {
	for field, want := range filter {
		if !jsonEqual(r[field], want) {
			return false
		}
	}
	return true
}

// jsonEqual compares values by their JSON form, so typed constants match the
// plain strings they were stored as.
func jsonEqual(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ab) == string(bb)
}

func normalise(r providers.Record) (providers.Record, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	out := providers.Record{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func clone(r providers.Record) providers.Record {
	out := make(providers.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
