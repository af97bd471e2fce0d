package report

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo keeps reports in process memory. It orders like the Postgres
// repository: newest first, ties broken by id.
type MemoryRepo struct {
	mu      sync.RWMutex
	reports map[uuid.UUID]*Report
	// owners, when set, rejects inserts for users it does not know.
	owners func(uuid.UUID) bool
	now    func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{reports: make(map[uuid.UUID]*Report), now: time.Now}
}

// WithOwnerCheck makes Create fail with ErrOwnerMissing for unknown users,
// mirroring the users foreign key.
func (m *MemoryRepo) WithOwnerCheck(exists func(uuid.UUID) bool) *MemoryRepo {
	m.owners = exists
	return m
}

func (m *MemoryRepo) Create(_ context.Context, r *Report) error {
	if m.owners != nil && !m.owners(r.UserID) {
		return ErrOwnerMissing
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	r.ID = uuid.New()
	now := m.now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Probabilities == nil {
		r.Probabilities = map[string]float64{}
	}
	cp := *r
	m.reports[r.ID] = &cp
	return nil
}

func (m *MemoryRepo) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var owned []*Report
	for _, r := range m.reports {
		if r.UserID == userID {
			owned = append(owned, r)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if !owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].CreatedAt.After(owned[j].CreatedAt)
		}
		return owned[i].ID.String() > owned[j].ID.String()
	})

	out := []Summary{}
	for i := offset; i < len(owned) && len(out) < limit; i++ {
		out = append(out, owned[i].Summary())
	}
	return out, nil
}

func (m *MemoryRepo) GetForUser(_ context.Context, userID, id uuid.UUID) (*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	if !ok || r.UserID != userID {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryRepo) DeleteForUser(_ context.Context, userID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok || r.UserID != userID {
		return ErrNotFound
	}
	delete(m.reports, id)
	return nil
}

// Len returns the number of stored reports across all users.
func (m *MemoryRepo) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.reports)
}
