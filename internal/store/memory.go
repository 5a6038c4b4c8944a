package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/coreerrors"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/model"
)

// MemoryStore is an in-process Store used by tests and local bring-up. It
// implements the same atomicity contract as the Redis-backed store: every
// write either fully applies or fully fails, guarded by a single mutex (no
// suspension point is held across a lock acquisition, per spec.md §5).
type MemoryStore struct {
	mu sync.Mutex

	pops  map[string]model.POP
	links map[string]*memLink
	ifs   map[string]*model.Interface // keyed by Interface.Key()
	conns map[string]*model.Connection

	healthy bool
}

type memLink struct {
	link       model.NetworkLink
	free       map[int]struct{}
	occupiedBy map[string][]int
}

// NewMemoryStore returns an empty, healthy MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pops:    make(map[string]model.POP),
		links:   make(map[string]*memLink),
		ifs:     make(map[string]*model.Interface),
		conns:   make(map[string]*model.Connection),
		healthy: true,
	}
}

// SeedTopology loads POPs and links directly, bypassing the normal
// read-through path. Intended for tests and local bring-up only — the
// slice-manager provisioning tool owns real topology seeding (out of scope,
// spec.md §1).
func (s *MemoryStore) SeedTopology(pops []model.POP, links []model.NetworkLink) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range pops {
		s.pops[p.ID] = p
		for _, r := range p.RouterIDs {
			for _, name := range p.Interfaces {
				key := model.Interface{Pop: p.ID, Router: r, Name: name}.Key()
				if _, ok := s.ifs[key]; !ok {
					s.ifs[key] = &model.Interface{Pop: p.ID, Router: r, Name: name, Status: model.InterfaceAvailable}
				}
			}
		}
	}

	for _, l := range links {
		ml := &memLink{link: l, free: make(map[int]struct{}), occupiedBy: make(map[string][]int)}
		total := l.TotalSlots
		if total == 0 {
			total = 320
		}
		if l.FreeSlots != nil {
			for idx := range l.FreeSlots {
				ml.free[idx] = struct{}{}
			}
		} else {
			for i := 0; i < total; i++ {
				ml.free[i] = struct{}{}
			}
		}
		ml.link.TotalSlots = total
		s.links[l.ID] = ml
	}
}

// SetHealthy toggles the health-check response, for exercising store-failure
// paths in tests.
func (s *MemoryStore) SetHealthy(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = v
}

func (s *MemoryStore) LoadTopology(ctx context.Context) ([]model.POP, []model.NetworkLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.healthy {
		return nil, nil, coreerrors.New(coreerrors.StoreError, "LoadTopology")
	}

	pops := make([]model.POP, 0, len(s.pops))
	for _, p := range s.pops {
		pops = append(pops, p)
	}
	sort.Slice(pops, func(i, j int) bool { return pops[i].ID < pops[j].ID })

	links := make([]model.NetworkLink, 0, len(s.links))
	for _, ml := range s.links {
		links = append(links, s.snapshotLink(ml))
	}
	sort.Slice(links, func(i, j int) bool { return links[i].ID < links[j].ID })

	return pops, links, nil
}

func (s *MemoryStore) snapshotLink(ml *memLink) model.NetworkLink {
	l := ml.link
	l.FreeSlots = make(map[int]struct{}, len(ml.free))
	for idx := range ml.free {
		l.FreeSlots[idx] = struct{}{}
	}
	l.OccupiedBy = make(map[string][]int, len(ml.occupiedBy))
	for conn, slots := range ml.occupiedBy {
		cp := make([]int, len(slots))
		copy(cp, slots)
		l.OccupiedBy[conn] = cp
	}
	return l
}

func (s *MemoryStore) AvailableInterfaces(ctx context.Context, pop, router string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.healthy {
		return nil, coreerrors.New(coreerrors.StoreError, "AvailableInterfaces")
	}

	var names []string
	for _, ifc := range s.ifs {
		if ifc.Pop == pop && ifc.Router == router && ifc.Status == model.InterfaceAvailable {
			names = append(names, ifc.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) AllocateInterface(ctx context.Context, pop, router, name, connID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.healthy {
		return false, coreerrors.New(coreerrors.StoreError, "AllocateInterface")
	}

	key := model.Interface{Pop: pop, Router: router, Name: name}.Key()
	ifc, ok := s.ifs[key]
	if !ok {
		ifc = &model.Interface{Pop: pop, Router: router, Name: name, Status: model.InterfaceAvailable}
		s.ifs[key] = ifc
	}
	if ifc.Status != model.InterfaceAvailable {
		return false, nil
	}
	ifc.Status = model.InterfaceOccupied
	ifc.ConnectionID = connID
	ifc.AllocatedAt = time.Now()
	return true, nil
}

func (s *MemoryStore) ReleaseInterface(ctx context.Context, pop, router, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.healthy {
		return false, coreerrors.New(coreerrors.StoreError, "ReleaseInterface")
	}

	key := model.Interface{Pop: pop, Router: router, Name: name}.Key()
	ifc, ok := s.ifs[key]
	if !ok {
		return true, nil // idempotent: nothing to release
	}
	ifc.Status = model.InterfaceAvailable
	ifc.ConnectionID = ""
	return true, nil
}

func (s *MemoryStore) AllocateSpectrumSlots(ctx context.Context, linkID, connID string, slots []int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.healthy {
		return false, coreerrors.New(coreerrors.StoreError, "AllocateSpectrumSlots")
	}

	ml, ok := s.links[linkID]
	if !ok {
		return false, coreerrors.New(coreerrors.NotFound, "AllocateSpectrumSlots")
	}

	for _, idx := range slots {
		if _, free := ml.free[idx]; !free {
			return false, nil // any slot taken fails the whole operation
		}
	}

	for _, idx := range slots {
		delete(ml.free, idx)
	}
	held := make([]int, len(slots))
	copy(held, slots)
	ml.occupiedBy[connID] = held

	return true, nil
}

func (s *MemoryStore) ReleaseSpectrumSlots(ctx context.Context, linkID, connID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.healthy {
		return false, coreerrors.New(coreerrors.StoreError, "ReleaseSpectrumSlots")
	}

	ml, ok := s.links[linkID]
	if !ok {
		return true, nil // idempotent
	}

	held, ok := ml.occupiedBy[connID]
	if !ok {
		return true, nil // idempotent: already released
	}
	for _, idx := range held {
		ml.free[idx] = struct{}{}
	}
	delete(ml.occupiedBy, connID)
	return true, nil
}

func (s *MemoryStore) GetAvailableSlots(ctx context.Context, linkID string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.healthy {
		return nil, coreerrors.New(coreerrors.StoreError, "GetAvailableSlots")
	}

	ml, ok := s.links[linkID]
	if !ok {
		return nil, coreerrors.New(coreerrors.NotFound, "GetAvailableSlots")
	}

	out := make([]int, 0, len(ml.free))
	for idx := range ml.free {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out, nil
}

func (s *MemoryStore) CreateConnectionRecord(ctx context.Context, conn *model.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.healthy {
		return coreerrors.New(coreerrors.StoreError, "CreateConnectionRecord")
	}

	cp := *conn
	s.conns[conn.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, connID string, status model.ConnectionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.healthy {
		return coreerrors.New(coreerrors.StoreError, "UpdateStatus")
	}

	c, ok := s.conns[connID]
	if !ok {
		return coreerrors.New(coreerrors.NotFound, "UpdateStatus")
	}
	c.Status = status
	return nil
}

func (s *MemoryStore) GetConnectionRecord(ctx context.Context, connID string) (*model.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.healthy {
		return nil, coreerrors.New(coreerrors.StoreError, "GetConnectionRecord")
	}

	c, ok := s.conns[connID]
	if !ok {
		return nil, coreerrors.New(coreerrors.NotFound, "GetConnectionRecord")
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListConnections(ctx context.Context) ([]*model.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.healthy {
		return nil, coreerrors.New(coreerrors.StoreError, "ListConnections")
	}

	out := make([]*model.Connection, 0, len(s.conns))
	for _, c := range s.conns {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) DeleteRecord(ctx context.Context, connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.healthy {
		return coreerrors.New(coreerrors.StoreError, "DeleteRecord")
	}

	delete(s.conns, connID)
	return nil
}

func (s *MemoryStore) HealthCheck(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthy
}
