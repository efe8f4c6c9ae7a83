package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/apperr"
	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/events"
	"github.com/kitalmartial-lang/medipatient-backend/pkg/caldate"
)

const (
	defaultExpiringSoonDays = 30
	defaultStatsDays        = 30
)

func staleItem(id uuid.UUID) error {
	return apperr.Conflict("inventory item %s was modified by another request, reload and retry", id)
}

type Service struct {
	items     ItemRepository
	movements MovementRepository
	actors    Actors
	tx        Transactor
	events    events.Publisher
	soonDays  int
	now       func() time.Time
}

func NewService(items ItemRepository, movements MovementRepository, actors Actors, tx Transactor, pub events.Publisher, expiringSoonDays int) *Service {
	if pub == nil {
		pub = events.Noop{}
	}
	if expiringSoonDays <= 0 {
		expiringSoonDays = defaultExpiringSoonDays
	}
	return &Service{
		items:     items,
		movements: movements,
		actors:    actors,
		tx:        tx,
		events:    pub,
		soonDays:  expiringSoonDays,
		now:       time.Now,
	}
}

func (s *Service) today() time.Time { return caldate.Today(s.now()) }

func (s *Service) annotate(items ...*Item) {
	today := s.today()
	for _, i := range items {
		i.Annotate(today, s.soonDays)
	}
}

func validateItem(i *Item) error {
	i.Name = strings.TrimSpace(i.Name)
	if i.Name == "" {
		return apperr.Invalid("name", "is required")
	}
	if i.Category == "" {
		i.Category = CategoryMedication
	}
	if !i.Category.Valid() {
		return apperr.Invalid("category", "must be one of MEDICATION, EQUIPMENT, SUPPLIES")
	}
	if i.MinStock < 0 {
		return apperr.Invalid("min_stock", "must not be negative")
	}
	if i.UnitPrice < 0 {
		return apperr.Invalid("unit_price", "must not be negative")
	}
	if i.ExpiryDate != nil {
		d, err := caldate.ParseDate(*i.ExpiryDate)
		if err != nil {
			return apperr.Invalid("expiry_date", err.Error())
		}
		v := caldate.FormatDate(d)
		i.ExpiryDate = &v
	}
	return nil
}

// -- Items --

func (s *Service) CreateItem(ctx context.Context, i *Item) error {
	if err := validateItem(i); err != nil {
		return err
	}
	if i.CurrentStock < 0 {
		return apperr.Invalid("current_stock", "must not be negative")
	}
	if err := s.items.Create(ctx, i); err != nil {
		return err
	}
	s.annotate(i)
	zerolog.Ctx(ctx).Info().Str("item_id", i.ID.String()).Str("name", i.Name).Msg("inventory item created")
	return nil
}

func (s *Service) GetItem(ctx context.Context, id uuid.UUID) (*Item, error) {
	i, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.annotate(i)
	return i, nil
}

// UpdateItem replaces the descriptive fields. Stock only changes through
// movements, SetStock and AdjustStock. A non-zero i.Version must match the
// stored version, otherwise the update fails with a conflict.
func (s *Service) UpdateItem(ctx context.Context, i *Item) error {
	if err := validateItem(i); err != nil {
		return err
	}
	if i.Version < 0 {
		return apperr.Invalid("version", "must not be negative")
	}
	if err := s.items.Update(ctx, i); err != nil {
		return err
	}
	s.annotate(i)
	zerolog.Ctx(ctx).Info().Str("item_id", i.ID.String()).Msg("inventory item updated")
	return nil
}

func (s *Service) DeleteItem(ctx context.Context, id uuid.UUID) error {
	if err := s.items.Delete(ctx, id); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("item_id", id.String()).Msg("inventory item deleted")
	return nil
}

func (s *Service) SearchItems(ctx context.Context, f ItemFilter, limit, offset int) ([]*Item, int, error) {
	items, total, err := s.items.Search(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	s.annotate(items...)
	return items, total, nil
}

func (s *Service) LowStockItems(ctx context.Context) ([]*Item, error) {
	items, err := s.items.LowStock(ctx)
	if err != nil {
		return nil, err
	}
	s.annotate(items...)
	return items, nil
}

func (s *Service) ExpiredItems(ctx context.Context) ([]*Item, error) {
	items, err := s.items.ExpiredBefore(ctx, caldate.FormatDate(s.today()))
	if err != nil {
		return nil, err
	}
	s.annotate(items...)
	return items, nil
}

// ExpiringItems lists items expiring between today and today+days. days <= 0
// uses the configured default.
func (s *Service) ExpiringItems(ctx context.Context, days int) ([]*Item, error) {
	if days <= 0 {
		days = s.soonDays
	}
	today := s.today()
	items, err := s.items.ExpiringBetween(ctx, caldate.FormatDate(today), caldate.FormatDate(today.AddDate(0, 0, days)))
	if err != nil {
		return nil, err
	}
	s.annotate(items...)
	return items, nil
}

func (s *Service) Alerts(ctx context.Context) (*AlertSummary, error) {
	today := s.today()
	return s.items.Summary(ctx, caldate.FormatDate(today), caldate.FormatDate(today.AddDate(0, 0, s.soonDays)))
}

func (s *Service) AllItems(ctx context.Context) ([]*Item, error) {
	items, err := s.items.All(ctx)
	if err != nil {
		return nil, err
	}
	s.annotate(items...)
	return items, nil
}

// SetStock overwrites the stock level without recording a movement.
func (s *Service) SetStock(ctx context.Context, id uuid.UUID, stock int, reason string) (*Item, error) {
	if stock < 0 {
		return nil, apperr.Invalid("stock", "must not be negative")
	}
	var item *Item
	var old int
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		i, err := s.items.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		old = i.CurrentStock
		if err := s.items.SetStock(ctx, id, stock); err != nil {
			return err
		}
		i.CurrentStock = stock
		i.Version++
		item = i
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logStockChange(ctx, item, old, reason, "manual update")
	s.afterStockChange(ctx, item)
	return item, nil
}

// AdjustStock adds delta to the stock level without recording a movement.
func (s *Service) AdjustStock(ctx context.Context, id uuid.UUID, delta int, reason string) (*Item, error) {
	var item *Item
	var old int
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		i, err := s.items.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		old = i.CurrentStock
		next := i.CurrentStock + delta
		if next < 0 {
			return apperr.Invalid("adjustment", "would make stock negative")
		}
		if err := s.items.SetStock(ctx, id, next); err != nil {
			return err
		}
		i.CurrentStock = next
		i.Version++
		item = i
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logStockChange(ctx, item, old, reason, "manual adjustment")
	s.afterStockChange(ctx, item)
	return item, nil
}

func (s *Service) logStockChange(ctx context.Context, i *Item, old int, reason, fallback string) {
	if reason == "" {
		reason = fallback
	}
	zerolog.Ctx(ctx).Info().
		Str("item_id", i.ID.String()).
		Int("from", old).
		Int("to", i.CurrentStock).
		Str("reason", reason).
		Msg("stock changed")
}

type lowStockPayload struct {
	ItemID       uuid.UUID `json:"item_id"`
	Name         string    `json:"name"`
	CurrentStock int       `json:"current_stock"`
	MinStock     int       `json:"min_stock"`
}

func (s *Service) afterStockChange(ctx context.Context, i *Item) {
	s.annotate(i)
	if i.LowStock {
		events.Emit(ctx, s.events, events.InventoryLowStock, i.ID.String(), lowStockPayload{
			ItemID: i.ID, Name: i.Name, CurrentStock: i.CurrentStock, MinStock: i.MinStock,
		})
	}
}

// -- Movements --

// MovementInput is a request to record one ledger entry.
type MovementInput struct {
	ItemID   uuid.UUID
	Type     MovementType
	Quantity int
	Reason   *string
	ActorID  *uuid.UUID
}

type movementPayload struct {
	Movement *Movement `json:"movement"`
	NewStock int       `json:"new_stock"`
}

// RecordMovement applies an INBOUND or OUTBOUND movement and writes its
// ledger entry in one transaction, with the item row locked so concurrent
// movements serialise.
func (s *Service) RecordMovement(ctx context.Context, in MovementInput) (*Movement, error) {
	if !in.Type.Valid() {
		return nil, apperr.Invalid("movement_type", "must be INBOUND or OUTBOUND")
	}
	if in.Quantity <= 0 {
		return nil, apperr.Invalid("quantity", errQuantityPositive)
	}

	var m *Movement
	var item *Item
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		i, err := s.items.GetForUpdate(ctx, in.ItemID)
		if err != nil {
			return err
		}
		if in.ActorID != nil {
			if err := s.actors.EnsureProfile(ctx, *in.ActorID); err != nil {
				return err
			}
		}
		if in.Type == Outbound && in.Quantity > i.CurrentStock {
			return &InsufficientStockError{ItemID: i.ID, Current: i.CurrentStock, Requested: in.Quantity}
		}

		next := in.Type.apply(i.CurrentStock, in.Quantity)
		if err := s.items.SetStock(ctx, i.ID, next); err != nil {
			return err
		}
		mv := &Movement{ItemID: i.ID, Type: in.Type, Quantity: in.Quantity, Reason: in.Reason, ActorID: in.ActorID}
		if err := s.movements.Create(ctx, mv); err != nil {
			return err
		}
		i.CurrentStock = next
		i.Version++
		m, item = mv, i
		return nil
	})
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("movement_id", m.ID.String()).
		Str("item_id", item.ID.String()).
		Str("type", string(m.Type)).
		Int("quantity", m.Quantity).
		Int("new_stock", item.CurrentStock).
		Msg("stock movement recorded")
	events.Emit(ctx, s.events, events.StockMovementRecorded, item.ID.String(), movementPayload{Movement: m, NewStock: item.CurrentStock})
	s.afterStockChange(ctx, item)
	return m, nil
}

// DeleteMovement removes a ledger entry and reverses its effect on stock.
// A reversal that would make stock negative leaves everything untouched.
func (s *Service) DeleteMovement(ctx context.Context, id uuid.UUID) error {
	var m *Movement
	var item *Item
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		mv, err := s.movements.GetByID(ctx, id)
		if err != nil {
			return err
		}
		i, err := s.items.GetForUpdate(ctx, mv.ItemID)
		if err != nil {
			return err
		}
		next := mv.Type.reverse(i.CurrentStock, mv.Quantity)
		if next < 0 {
			return &IrreversibleMovementError{MovementID: mv.ID, ItemID: i.ID, Current: i.CurrentStock, Quantity: mv.Quantity}
		}
		if err := s.items.SetStock(ctx, i.ID, next); err != nil {
			return err
		}
		if err := s.movements.Delete(ctx, mv.ID); err != nil {
			return err
		}
		i.CurrentStock = next
		i.Version++
		m, item = mv, i
		return nil
	})
	if err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("movement_id", id.String()).
		Str("item_id", item.ID.String()).
		Int("new_stock", item.CurrentStock).
		Msg("stock movement reversed")
	events.Emit(ctx, s.events, events.StockMovementReversed, item.ID.String(), movementPayload{Movement: m, NewStock: item.CurrentStock})
	s.afterStockChange(ctx, item)
	return nil
}

func (s *Service) GetMovement(ctx context.Context, id uuid.UUID) (*Movement, error) {
	return s.movements.GetByID(ctx, id)
}

func (s *Service) SearchMovements(ctx context.Context, f MovementFilter, limit, offset int) ([]*Movement, int, error) {
	for field, v := range map[string]*string{"date_from": &f.DateFrom, "date_to": &f.DateTo} {
		if *v == "" {
			continue
		}
		d, err := caldate.ParseDate(*v)
		if err != nil {
			return nil, 0, apperr.Invalid(field, err.Error())
		}
		*v = caldate.FormatDate(d)
	}
	if f.DateFrom != "" && f.DateTo != "" && f.DateFrom > f.DateTo {
		return nil, 0, apperr.Invalid("date_from", "must not be after date_to")
	}
	return s.movements.Search(ctx, f, limit, offset)
}

// ItemHistory lists an item's movements newest first.
func (s *Service) ItemHistory(ctx context.Context, itemID uuid.UUID) ([]*Movement, error) {
	if _, err := s.items.GetByID(ctx, itemID); err != nil {
		return nil, err
	}
	return s.movements.ForItem(ctx, itemID)
}

// ItemStats combines the alert summary with per-category and per-supplier
// breakdowns.
func (s *Service) ItemStats(ctx context.Context) (*ItemStats, error) {
	summary, err := s.Alerts(ctx)
	if err != nil {
		return nil, err
	}
	byCategory, err := s.items.CategoryTotals(ctx)
	if err != nil {
		return nil, err
	}
	bySupplier, err := s.items.CountBySupplier(ctx)
	if err != nil {
		return nil, err
	}

	st := &ItemStats{
		AlertSummary:    *summary,
		ByCategory:      make(map[Category]int, len(byCategory)),
		ValueByCategory: make(map[Category]int64, len(byCategory)),
		BySupplier:      bySupplier,
	}
	for cat, t := range byCategory {
		st.Total += t.Count
		st.ByCategory[cat] = t.Count
		st.ValueByCategory[cat] = t.Value
	}
	return st, nil
}

// TodaysMovements lists the movements recorded today (UTC), newest first.
func (s *Service) TodaysMovements(ctx context.Context) ([]*Movement, error) {
	return s.movements.OnDate(ctx, caldate.FormatDate(s.today()))
}

// since normalises a YYYY-MM-DD lower bound, defaulting to 30 days ago.
func (s *Service) since(v string) (string, error) {
	if v == "" {
		return caldate.FormatDate(s.today().AddDate(0, 0, -defaultStatsDays)), nil
	}
	d, err := caldate.ParseDate(v)
	if err != nil {
		return "", apperr.Invalid("since", err.Error())
	}
	return caldate.FormatDate(d), nil
}

// MovementStats counts movements per type, optionally for one item or actor
// and from a given day on. An empty Since covers the whole ledger.
func (s *Service) MovementStats(ctx context.Context, f MovementStatsFilter) (*MovementStats, error) {
	if f.Since != "" {
		since, err := s.since(f.Since)
		if err != nil {
			return nil, err
		}
		f.Since = since
	}
	if f.ItemID != nil {
		if _, err := s.items.GetByID(ctx, *f.ItemID); err != nil {
			return nil, err
		}
	}
	counts, quantities, err := s.movements.CountByType(ctx, f)
	if err != nil {
		return nil, err
	}

	st := &MovementStats{
		ByType:         map[MovementType]int{Inbound: 0, Outbound: 0},
		QuantityByType: map[MovementType]int{Inbound: 0, Outbound: 0},
	}
	for t, n := range counts {
		st.ByType[t] = n
		st.Total += n
	}
	for t, q := range quantities {
		st.QuantityByType[t] = q
	}
	return st, nil
}

// DailyMovements returns inbound and outbound volume per day since the given
// day, oldest first. Days without movements are omitted.
func (s *Service) DailyMovements(ctx context.Context, since string) ([]DailyMovements, error) {
	since, err := s.since(since)
	if err != nil {
		return nil, err
	}
	return s.movements.Daily(ctx, since)
}

// NetMovements returns each moved item's inbound minus outbound volume since
// the given day, ordered by item name.
func (s *Service) NetMovements(ctx context.Context, since string) ([]NetMovement, error) {
	since, err := s.since(since)
	if err != nil {
		return nil, err
	}
	return s.movements.NetByItem(ctx, since)
}
