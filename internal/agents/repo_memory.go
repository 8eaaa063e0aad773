package agents

import (
	"context"
	"sort"
	"sync"

	"callcenter-platform/internal/phone"
)

type MemoryRepo struct {
	mu   sync.RWMutex
	regs map[string]Registration
}

func NewMemoryRepo(seed ...Registration) *MemoryRepo {
	r := &MemoryRepo{regs: map[string]Registration{}}
	for _, s := range seed {
		_ = r.Upsert(context.Background(), s)
	}
	return r
}

func (r *MemoryRepo) Get(ctx context.Context, p string) (Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.regs[phone.Normalize(p)]
	if !ok {
		return Registration{}, ErrNotFound
	}
	return reg, nil
}

func (r *MemoryRepo) List(ctx context.Context) ([]Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Registration, 0, len(r.regs))
	for _, reg := range r.regs {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phone < out[j].Phone })
	return out, nil
}

func (r *MemoryRepo) Upsert(ctx context.Context, reg Registration) error {
	reg.Phone = phone.Normalize(reg.Phone)
	if reg.Phone == "" {
		return ErrInvalid
	}
	r.mu.Lock()
	r.regs[reg.Phone] = reg
	r.mu.Unlock()
	return nil
}
