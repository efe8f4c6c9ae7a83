package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/apperr"
)

func TestUpdateItem_Version(t *testing.T) {
	svc, deps := newTestService(t)
	ctx := context.Background()
	item := mustCreateItem(t, svc, "Gloves", 40, 10)
	require.Equal(t, 1, item.Version)

	first := &Item{ID: item.ID, Name: "Nitrile gloves", MinStock: 10, Version: 1}
	require.NoError(t, svc.UpdateItem(ctx, first))
	assert.Equal(t, 2, first.Version)

	stale := &Item{ID: item.ID, Name: "Latex gloves", MinStock: 10, Version: 1}
	err := svc.UpdateItem(ctx, stale)
	assert.True(t, apperr.IsConflict(err), "got %v", err)

	got, err := svc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Nitrile gloves", got.Name)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, 40, deps.stock(t, item.ID))

	unversioned := &Item{ID: item.ID, Name: "Latex gloves", MinStock: 10}
	require.NoError(t, svc.UpdateItem(ctx, unversioned))
	assert.Equal(t, 3, unversioned.Version)

	err = svc.UpdateItem(ctx, &Item{ID: item.ID, Name: "X", Version: -1})
	assert.True(t, apperr.IsValidation(err))

	err = svc.UpdateItem(ctx, &Item{ID: uuid.New(), Name: "Ghost", Version: 1})
	assert.True(t, apperr.IsNotFound(err))
}

func TestItemStats(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, i := range []*Item{
		{Name: "Paracetamol", CurrentStock: 10, MinStock: 20, UnitPrice: 100, Supplier: strPtr("Laborex")},
		{Name: "Amoxicillin", CurrentStock: 5, MinStock: 1, UnitPrice: 400, Supplier: strPtr("Laborex")},
		{Name: "Stethoscope", Category: CategoryEquipment, CurrentStock: 2, MinStock: 1, UnitPrice: 15000, Supplier: strPtr("MedEquip")},
		{Name: "Gauze", Category: CategorySupplies, CurrentStock: 50, MinStock: 5, UnitPrice: 20},
	} {
		require.NoError(t, svc.CreateItem(ctx, i))
	}

	st, err := svc.ItemStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Total)
	assert.Equal(t, map[Category]int{CategoryMedication: 2, CategoryEquipment: 1, CategorySupplies: 1}, st.ByCategory)
	assert.Equal(t, map[Category]int64{
		CategoryMedication: 10*100 + 5*400,
		CategoryEquipment:  2 * 15000,
		CategorySupplies:   50 * 20,
	}, st.ValueByCategory)
	assert.Equal(t, map[string]int{"Laborex": 2, "MedEquip": 1}, st.BySupplier)
	assert.Equal(t, 1, st.LowStockCount)
	assert.Equal(t, int64(3000+30000+1000), st.TotalValue)
}

// backdate moves a recorded movement to another day.
func (d *testDeps) backdate(t *testing.T, id uuid.UUID, at time.Time) {
	t.Helper()
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	mv, ok := d.store.movements[id]
	require.True(t, ok)
	mv.CreatedAt = at
}

func TestMovementStats(t *testing.T) {
	svc, deps := newTestService(t)
	ctx := context.Background()
	syringes := mustCreateItem(t, svc, "Syringes", 100, 10)
	masks := mustCreateItem(t, svc, "Masks", 50, 10)

	record := func(item *Item, typ MovementType, qty int, actor *uuid.UUID) *Movement {
		mv, err := svc.RecordMovement(ctx, MovementInput{ItemID: item.ID, Type: typ, Quantity: qty, ActorID: actor})
		require.NoError(t, err)
		return mv
	}
	record(syringes, Inbound, 20, &deps.actor)
	record(syringes, Outbound, 5, nil)
	record(syringes, Outbound, 7, &deps.actor)
	old := record(masks, Inbound, 30, nil)
	deps.backdate(t, old.ID, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	all, err := svc.MovementStats(ctx, MovementStatsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, all.Total)
	assert.Equal(t, map[MovementType]int{Inbound: 2, Outbound: 2}, all.ByType)
	assert.Equal(t, map[MovementType]int{Inbound: 50, Outbound: 12}, all.QuantityByType)

	bySyringes, err := svc.MovementStats(ctx, MovementStatsFilter{ItemID: &syringes.ID})
	require.NoError(t, err)
	assert.Equal(t, 3, bySyringes.Total)
	assert.Equal(t, 12, bySyringes.QuantityByType[Outbound])

	byActor, err := svc.MovementStats(ctx, MovementStatsFilter{ActorID: &deps.actor})
	require.NoError(t, err)
	assert.Equal(t, map[MovementType]int{Inbound: 1, Outbound: 1}, byActor.ByType)

	recent, err := svc.MovementStats(ctx, MovementStatsFilter{Since: "2024-06-01"})
	require.NoError(t, err)
	assert.Equal(t, 3, recent.Total)
	assert.Equal(t, 20, recent.QuantityByType[Inbound])

	none, err := svc.MovementStats(ctx, MovementStatsFilter{ItemID: &masks.ID, Since: "2024-06-01"})
	require.NoError(t, err)
	assert.Equal(t, 0, none.Total)
	assert.Equal(t, map[MovementType]int{Inbound: 0, Outbound: 0}, none.ByType)

	_, err = svc.MovementStats(ctx, MovementStatsFilter{Since: "01/06/2024"})
	assert.True(t, apperr.IsValidation(err))

	ghost := uuid.New()
	_, err = svc.MovementStats(ctx, MovementStatsFilter{ItemID: &ghost})
	assert.True(t, apperr.IsNotFound(err))
}

func TestDailyAndNetMovements(t *testing.T) {
	svc, deps := newTestService(t)
	ctx := context.Background()
	syringes := mustCreateItem(t, svc, "Syringes", 100, 10)
	masks := mustCreateItem(t, svc, "Masks", 50, 10)

	mv, err := svc.RecordMovement(ctx, in(syringes.ID, Inbound, 20))
	require.NoError(t, err)
	deps.backdate(t, mv.ID, time.Date(2024, 6, 8, 10, 0, 0, 0, time.UTC))
	mv, err = svc.RecordMovement(ctx, in(masks.ID, Outbound, 4))
	require.NoError(t, err)
	deps.backdate(t, mv.ID, time.Date(2024, 6, 8, 15, 0, 0, 0, time.UTC))
	mv, err = svc.RecordMovement(ctx, in(masks.ID, Inbound, 9))
	require.NoError(t, err)
	deps.backdate(t, mv.ID, time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC))
	_, err = svc.RecordMovement(ctx, in(syringes.ID, Outbound, 6))
	require.NoError(t, err)

	days, err := svc.DailyMovements(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []DailyMovements{
		{Date: "2024-06-08", Inbound: 20, Outbound: 4},
		{Date: "2024-06-10", Inbound: 0, Outbound: 6},
	}, days)

	net, err := svc.NetMovements(ctx, "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, []NetMovement{
		{ItemID: masks.ID, ItemName: "Masks", Inbound: 9, Outbound: 4, Net: 5},
		{ItemID: syringes.ID, ItemName: "Syringes", Inbound: 20, Outbound: 6, Net: 14},
	}, net)

	_, err = svc.NetMovements(ctx, "yesterday")
	assert.True(t, apperr.IsValidation(err))
}

func TestTodaysMovements(t *testing.T) {
	svc, deps := newTestService(t)
	ctx := context.Background()
	item := mustCreateItem(t, svc, "Syringes", 100, 10)

	old, err := svc.RecordMovement(ctx, in(item.ID, Inbound, 5))
	require.NoError(t, err)
	deps.backdate(t, old.ID, time.Date(2024, 6, 9, 23, 0, 0, 0, time.UTC))
	first, err := svc.RecordMovement(ctx, in(item.ID, Outbound, 1))
	require.NoError(t, err)
	second, err := svc.RecordMovement(ctx, in(item.ID, Outbound, 2))
	require.NoError(t, err)

	got, err := svc.TodaysMovements(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID)
	assert.Equal(t, first.ID, got[1].ID)
}
