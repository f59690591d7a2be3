package memorystore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/PaulFidika/entitlekit/entitlements"
)

// EntitlementStore is an in-memory implementation of entitlements.Store.
// It is intended for tests and single-node development runs.
type EntitlementStore struct {
	mu      sync.RWMutex
	records map[string]entitlements.Record
	claims  map[string]entitlements.Claim
}

var _ entitlements.Store = (*EntitlementStore)(nil)

func NewEntitlementStore() *EntitlementStore {
	return &EntitlementStore{
		records: make(map[string]entitlements.Record),
		claims:  make(map[string]entitlements.Claim),
	}
}

func (s *EntitlementStore) Exists(ctx context.Context, field entitlements.Field, value string) (bool, error) {
	r, err := s.Find(ctx, field, value)
	return r != nil, err
}

func (s *EntitlementStore) Get(ctx context.Context, key string) (*entitlements.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *EntitlementStore) Find(ctx context.Context, field entitlements.Field, value string) (*entitlements.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if value == "" {
		return nil, nil
	}
	if field == entitlements.FieldKey {
		return s.Get(ctx, value)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	// Iterate in key order so the first match is deterministic.
	keys := make([]string, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r := s.records[k]
		if fieldValue(r, field) == value {
			return &r, nil
		}
	}
	return nil, nil
}

// Upsert merges patch into the stored record under the store lock.
func (s *EntitlementStore) Upsert(ctx context.Context, patch entitlements.Record) (entitlements.Record, error) {
	if err := ctx.Err(); err != nil {
		return entitlements.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var prev *entitlements.Record
	if r, ok := s.records[patch.Key]; ok {
		prev = &r
	}
	out := entitlements.Merge(prev, patch)
	s.records[out.Key] = out
	return out, nil
}

func (s *EntitlementStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]entitlements.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entitlements.Record
	for _, r := range s.records {
		if r.Status != entitlements.StatusActive && r.Status != entitlements.StatusTrialing {
			continue
		}
		if r.EndDate.After(now) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(out[j].EndDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Expire re-checks the expiry condition under the write lock so a renewal
// that landed after ListExpired is left alone.
func (s *EntitlementStore) Expire(ctx context.Context, key string, now time.Time) (*entitlements.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	patch, due := entitlements.Expire(r, now)
	if !due {
		return nil, nil
	}
	out := entitlements.Merge(&r, patch)
	s.records[key] = out
	return &out, nil
}

func (s *EntitlementStore) ClaimTransaction(ctx context.Context, c entitlements.Claim) (entitlements.Claim, bool, error) {
	if err := ctx.Err(); err != nil {
		return entitlements.Claim{}, false, err
	}
	if c.Ref == "" || c.Key == "" {
		return entitlements.Claim{}, false, fmt.Errorf("memorystore: claim needs ref and key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.claims[c.Ref]; ok {
		return prev, false, nil
	}
	s.claims[c.Ref] = c
	return c, true, nil
}

// Len returns the number of stored records.
func (s *EntitlementStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func fieldValue(r entitlements.Record, f entitlements.Field) string {
	switch f {
	case entitlements.FieldKey:
		return r.Key
	case entitlements.FieldEmail:
		return r.UserEmail
	case entitlements.FieldPhone:
		return r.UserPhoneNormalized
	case entitlements.FieldDevice:
		return r.DeviceFingerprint
	case entitlements.FieldTransaction:
		return r.TransactionRef
	}
	return ""
}
