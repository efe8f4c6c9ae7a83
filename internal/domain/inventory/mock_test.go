package inventory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/apperr"
	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/events"
)

// store backs both mock repositories. Its transactor serialises WithTx
// calls, standing in for the row lock, and restores a snapshot when fn
// fails.
type store struct {
	txMu      sync.Mutex
	mu        sync.Mutex
	items     map[uuid.UUID]*Item
	movements map[uuid.UUID]*Movement
	seq       time.Time
}

func newStore() *store {
	return &store{
		items:     make(map[uuid.UUID]*Item),
		movements: make(map[uuid.UUID]*Movement),
		seq:       time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC),
	}
}

func (s *store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	items := make(map[uuid.UUID]Item, len(s.items))
	for k, v := range s.items {
		items[k] = *v
	}
	movements := make(map[uuid.UUID]Movement, len(s.movements))
	for k, v := range s.movements {
		movements[k] = *v
	}
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.items = make(map[uuid.UUID]*Item, len(items))
		for k, v := range items {
			v := v
			s.items[k] = &v
		}
		s.movements = make(map[uuid.UUID]*Movement, len(movements))
		for k, v := range movements {
			v := v
			s.movements[k] = &v
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *store) tick() time.Time {
	s.seq = s.seq.Add(time.Second)
	return s.seq
}

// -- Mock Item Repository --

type mockItemRepo struct{ s *store }

func (m mockItemRepo) Create(_ context.Context, i *Item) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	i.Version = 1
	i.CreatedAt = m.s.tick()
	i.UpdatedAt = i.CreatedAt
	cp := *i
	m.s.items[i.ID] = &cp
	return nil
}

func (m mockItemRepo) GetByID(_ context.Context, id uuid.UUID) (*Item, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	i, ok := m.s.items[id]
	if !ok {
		return nil, apperr.NotFound("inventory item", id)
	}
	cp := *i
	return &cp, nil
}

func (m mockItemRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Item, error) {
	return m.GetByID(ctx, id)
}

func (m mockItemRepo) Update(_ context.Context, i *Item) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stored, ok := m.s.items[i.ID]
	if !ok {
		return apperr.NotFound("inventory item", i.ID)
	}
	if i.Version != 0 && i.Version != stored.Version {
		return staleItem(i.ID)
	}
	i.CurrentStock = stored.CurrentStock
	i.Version = stored.Version + 1
	i.CreatedAt = stored.CreatedAt
	cp := *i
	m.s.items[i.ID] = &cp
	return nil
}

func (m mockItemRepo) SetStock(_ context.Context, id uuid.UUID, stock int) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	i, ok := m.s.items[id]
	if !ok {
		return apperr.NotFound("inventory item", id)
	}
	if stock < 0 {
		return apperr.Invalid("current_stock", errStockConstraint)
	}
	i.CurrentStock = stock
	i.Version++
	return nil
}

func (m mockItemRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.items[id]; !ok {
		return apperr.NotFound("inventory item", id)
	}
	delete(m.s.items, id)
	for mid, mv := range m.s.movements {
		if mv.ItemID == id {
			delete(m.s.movements, mid)
		}
	}
	return nil
}

func (m mockItemRepo) filter(keep func(*Item) bool) []*Item {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*Item
	for _, i := range m.s.items {
		if keep(i) {
			cp := *i
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

func contains(field *string, q string) bool {
	return field != nil && strings.Contains(strings.ToLower(*field), strings.ToLower(q))
}

func (m mockItemRepo) Search(_ context.Context, f ItemFilter, limit, offset int) ([]*Item, int, error) {
	all := m.filter(func(i *Item) bool {
		if f.Category != "" && i.Category != f.Category {
			return false
		}
		if f.Supplier != "" && !contains(i.Supplier, f.Supplier) {
			return false
		}
		if f.Query != "" && !contains(&i.Name, f.Query) && !contains(i.Description, f.Query) {
			return false
		}
		return true
	})
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	if end := offset + limit; end < total {
		return all[offset:end], total, nil
	}
	return all[offset:], total, nil
}

func (m mockItemRepo) LowStock(_ context.Context) ([]*Item, error) {
	return m.filter(func(i *Item) bool { return i.CurrentStock <= i.MinStock }), nil
}

func (m mockItemRepo) ExpiredBefore(_ context.Context, date string) ([]*Item, error) {
	return m.filter(func(i *Item) bool { return i.ExpiryDate != nil && *i.ExpiryDate < date }), nil
}

func (m mockItemRepo) ExpiringBetween(_ context.Context, from, to string) ([]*Item, error) {
	return m.filter(func(i *Item) bool {
		return i.ExpiryDate != nil && *i.ExpiryDate >= from && *i.ExpiryDate <= to
	}), nil
}

func (m mockItemRepo) All(_ context.Context) ([]*Item, error) {
	return m.filter(func(*Item) bool { return true }), nil
}

func (m mockItemRepo) Summary(_ context.Context, today, soon string) (*AlertSummary, error) {
	var s AlertSummary
	for _, i := range m.filter(func(*Item) bool { return true }) {
		if i.CurrentStock <= i.MinStock {
			s.LowStockCount++
		}
		if i.ExpiryDate != nil && *i.ExpiryDate < today {
			s.ExpiredCount++
		}
		if i.ExpiryDate != nil && *i.ExpiryDate >= today && *i.ExpiryDate <= soon {
			s.ExpiringSoonCount++
		}
		s.TotalValue += i.Value()
	}
	return &s, nil
}

func (m mockItemRepo) CategoryTotals(_ context.Context) (map[Category]CategoryTotals, error) {
	out := make(map[Category]CategoryTotals)
	for _, i := range m.filter(func(*Item) bool { return true }) {
		t := out[i.Category]
		t.Count++
		t.Value += i.Value()
		out[i.Category] = t
	}
	return out, nil
}

func (m mockItemRepo) CountBySupplier(_ context.Context) (map[string]int, error) {
	out := make(map[string]int)
	for _, i := range m.filter(func(i *Item) bool { return i.Supplier != nil && *i.Supplier != "" }) {
		out[*i.Supplier]++
	}
	return out, nil
}

// -- Mock Movement Repository --

type mockMovementRepo struct{ s *store }

func (m mockMovementRepo) Create(_ context.Context, mv *Movement) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if mv.ID == uuid.Nil {
		mv.ID = uuid.New()
	}
	mv.CreatedAt = m.s.tick()
	cp := *mv
	m.s.movements[mv.ID] = &cp
	return nil
}

func (m mockMovementRepo) GetByID(_ context.Context, id uuid.UUID) (*Movement, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	mv, ok := m.s.movements[id]
	if !ok {
		return nil, apperr.NotFound("stock movement", id)
	}
	cp := *mv
	return &cp, nil
}

func (m mockMovementRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.movements[id]; !ok {
		return apperr.NotFound("stock movement", id)
	}
	delete(m.s.movements, id)
	return nil
}

func (m mockMovementRepo) filter(keep func(*Movement) bool) []*Movement {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*Movement
	for _, mv := range m.s.movements {
		if keep(mv) {
			cp := *mv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out
}

func (m mockMovementRepo) Search(_ context.Context, f MovementFilter, limit, offset int) ([]*Movement, int, error) {
	all := m.filter(func(mv *Movement) bool {
		switch {
		case f.ItemID != nil && mv.ItemID != *f.ItemID:
			return false
		case f.Type != "" && mv.Type != f.Type:
			return false
		case f.ActorID != nil && (mv.ActorID == nil || *mv.ActorID != *f.ActorID):
			return false
		case f.Reason != "" && !contains(mv.Reason, f.Reason):
			return false
		}
		return true
	})
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	if end := offset + limit; end < total {
		return all[offset:end], total, nil
	}
	return all[offset:], total, nil
}

func (m mockMovementRepo) ForItem(_ context.Context, itemID uuid.UUID) ([]*Movement, error) {
	return m.filter(func(mv *Movement) bool { return mv.ItemID == itemID }), nil
}

func day(t time.Time) string { return t.UTC().Format(time.DateOnly) }

func (m mockMovementRepo) OnDate(_ context.Context, date string) ([]*Movement, error) {
	return m.filter(func(mv *Movement) bool { return day(mv.CreatedAt) == date }), nil
}

func (m mockMovementRepo) CountByType(_ context.Context, f MovementStatsFilter) (map[MovementType]int, map[MovementType]int, error) {
	counts := make(map[MovementType]int)
	quantities := make(map[MovementType]int)
	for _, mv := range m.filter(func(mv *Movement) bool {
		switch {
		case f.ItemID != nil && mv.ItemID != *f.ItemID:
			return false
		case f.ActorID != nil && (mv.ActorID == nil || *mv.ActorID != *f.ActorID):
			return false
		case f.Since != "" && day(mv.CreatedAt) < f.Since:
			return false
		}
		return true
	}) {
		counts[mv.Type]++
		quantities[mv.Type] += mv.Quantity
	}
	return counts, quantities, nil
}

func (m mockMovementRepo) Daily(_ context.Context, since string) ([]DailyMovements, error) {
	byDay := make(map[string]*DailyMovements)
	var out []DailyMovements
	for _, mv := range m.filter(func(mv *Movement) bool { return day(mv.CreatedAt) >= since }) {
		d, ok := byDay[day(mv.CreatedAt)]
		if !ok {
			d = &DailyMovements{Date: day(mv.CreatedAt)}
			byDay[d.Date] = d
		}
		if mv.Type == Inbound {
			d.Inbound += mv.Quantity
		} else {
			d.Outbound += mv.Quantity
		}
	}
	for _, d := range byDay {
		out = append(out, *d)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Date < out[b].Date })
	return out, nil
}

func (m mockMovementRepo) NetByItem(_ context.Context, since string) ([]NetMovement, error) {
	moved := m.filter(func(mv *Movement) bool { return day(mv.CreatedAt) >= since })

	m.s.mu.Lock()
	byItem := make(map[uuid.UUID]*NetMovement)
	for _, mv := range moved {
		n, ok := byItem[mv.ItemID]
		if !ok {
			n = &NetMovement{ItemID: mv.ItemID}
			if i, found := m.s.items[mv.ItemID]; found {
				n.ItemName = i.Name
			}
			byItem[mv.ItemID] = n
		}
		if mv.Type == Inbound {
			n.Inbound += mv.Quantity
		} else {
			n.Outbound += mv.Quantity
		}
	}
	m.s.mu.Unlock()

	var out []NetMovement
	for _, n := range byItem {
		n.Net = n.Inbound - n.Outbound
		out = append(out, *n)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ItemName < out[b].ItemName })
	return out, nil
}

// -- Actors and events --

type mockActors struct {
	known map[uuid.UUID]bool
}

func (a *mockActors) EnsureProfile(_ context.Context, id uuid.UUID) error {
	if !a.known[id] {
		return apperr.NotFound("profile", id)
	}
	return nil
}

type recordingPublisher struct {
	mu  sync.Mutex
	got []events.Envelope
}

func (p *recordingPublisher) Publish(_ context.Context, env events.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, env)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.got {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

type testDeps struct {
	store  *store
	actors *mockActors
	pub    *recordingPublisher
	actor  uuid.UUID
}

// newTestService fixes today at 2024-06-10 and registers one known actor.
func newTestService(t *testing.T) (*Service, *testDeps) {
	t.Helper()
	deps := &testDeps{
		store:  newStore(),
		actors: &mockActors{known: make(map[uuid.UUID]bool)},
		pub:    &recordingPublisher{},
		actor:  uuid.New(),
	}
	deps.actors.known[deps.actor] = true

	svc := NewService(mockItemRepo{deps.store}, mockMovementRepo{deps.store}, deps.actors, deps.store, deps.pub, 30)
	svc.now = func() time.Time { return time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC) }
	return svc, deps
}

func mustCreateItem(t *testing.T, svc *Service, name string, stock, minStock int) *Item {
	t.Helper()
	i := &Item{Name: name, Category: CategoryMedication, CurrentStock: stock, MinStock: minStock, UnitPrice: 500}
	if err := svc.CreateItem(context.Background(), i); err != nil {
		t.Fatalf("create item %s: %v", name, err)
	}
	return i
}

func (d *testDeps) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	i, ok := d.store.items[id]
	if !ok {
		t.Fatalf("item %s missing", id)
	}
	return i.CurrentStock
}

func (d *testDeps) movementCount() int {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	return len(d.store.movements)
}
