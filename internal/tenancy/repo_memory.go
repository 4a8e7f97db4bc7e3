package tenancy

import (
	"context"
	"sync"
)

// MemoryRepo implements PhoneDirectory and SettingsStore for tests.
type MemoryRepo struct {
	mu       sync.Mutex
	numbers  map[string]string
	settings map[string]SettingsRecord
	reads    int
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{numbers: map[string]string{}, settings: map[string]SettingsRecord{}}
}

// AddNumber maps an E.164 number to a tenant.
func (r *MemoryRepo) AddNumber(e164, tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.numbers[e164] = tenantID
}

func (r *MemoryRepo) PutSettings(rec SettingsRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[rec.TenantID] = rec
}

func (r *MemoryRepo) TenantForNumber(ctx context.Context, e164 string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.numbers[e164]
	if !ok {
		return "", ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepo) GetSettings(ctx context.Context, tenantID string) (SettingsRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	rec, ok := r.settings[tenantID]
	if !ok {
		return SettingsRecord{}, ErrNotFound
	}
	return rec, nil
}

// SettingsReads counts store reads, to observe caching.
func (r *MemoryRepo) SettingsReads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}
