package inventory

import (
	"context"

	"github.com/google/uuid"
)

type ItemRepository interface {
	Create(ctx context.Context, item *Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*Item, error)
	// GetForUpdate reads the item and locks its row until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Item, error)
	// Update writes the descriptive fields, never current_stock. A non-zero
	// item.Version must match the stored version.
	Update(ctx context.Context, item *Item) error
	// SetStock writes current_stock and bumps the version.
	SetStock(ctx context.Context, id uuid.UUID, stock int) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f ItemFilter, limit, offset int) ([]*Item, int, error)
	LowStock(ctx context.Context) ([]*Item, error)
	ExpiredBefore(ctx context.Context, date string) ([]*Item, error)
	// ExpiringBetween lists items whose expiry date is within [from, to].
	ExpiringBetween(ctx context.Context, from, to string) ([]*Item, error)
	All(ctx context.Context) ([]*Item, error)
	Summary(ctx context.Context, today, soon string) (*AlertSummary, error)
	CategoryTotals(ctx context.Context) (map[Category]CategoryTotals, error)
	CountBySupplier(ctx context.Context) (map[string]int, error)
}

type MovementRepository interface {
	Create(ctx context.Context, m *Movement) error
	GetByID(ctx context.Context, id uuid.UUID) (*Movement, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f MovementFilter, limit, offset int) ([]*Movement, int, error)
	// ForItem lists the item's movements newest first.
	ForItem(ctx context.Context, itemID uuid.UUID) ([]*Movement, error)
	// OnDate lists the movements of one UTC day, newest first.
	OnDate(ctx context.Context, date string) ([]*Movement, error)
	CountByType(ctx context.Context, f MovementStatsFilter) (map[MovementType]int, map[MovementType]int, error)
	Daily(ctx context.Context, since string) ([]DailyMovements, error)
	NetByItem(ctx context.Context, since string) ([]NetMovement, error)
}

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Actors resolves the profile recorded on a movement.
type Actors interface {
	EnsureProfile(ctx context.Context, id uuid.UUID) error
}
