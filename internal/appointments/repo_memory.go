package appointments

import (
	"context"
	"sync"
)

type MemoryRepo struct {
	mu     sync.Mutex
	byCall map[string]Appointment
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byCall: map[string]Appointment{}}
}

func (r *MemoryRepo) Insert(ctx context.Context, a Appointment) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byCall[a.CallID]; ok {
		return false, nil
	}
	r.byCall[a.CallID] = a
	return true, nil
}

func (r *MemoryRepo) GetByCall(ctx context.Context, callID string) (Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byCall[callID]
	if !ok {
		return Appointment{}, ErrNotFound
	}
	return a, nil
}

func (r *MemoryRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byCall)
}
