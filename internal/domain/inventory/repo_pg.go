package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/apperr"
	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/db"
)

const (
	stockNonNegative    = "inventory_items_stock_non_negative"
	quantityPositive    = "stock_movements_quantity_positive"
	errStockConstraint  = "stock must not be negative"
	errQuantityPositive = "must be greater than zero"
)

// -- Item Repository --

type itemRepoPG struct {
	pool db.Querier
}

func NewItemRepo(pool db.Querier) ItemRepository {
	return &itemRepoPG{pool: pool}
}

func (r *itemRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const itemCols = `id, name, category, description, current_stock, min_stock, unit_price,
	to_char(expiry_date, 'YYYY-MM-DD'), supplier, version, created_at, updated_at`

func scanItem(row pgx.Row) (*Item, error) {
	var i Item
	var category string
	err := row.Scan(&i.ID, &i.Name, &category, &i.Description, &i.CurrentStock, &i.MinStock,
		&i.UnitPrice, &i.ExpiryDate, &i.Supplier, &i.Version, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	i.Category = Category(category)
	return &i, nil
}

func collectItems(rows pgx.Rows) ([]*Item, error) {
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		i, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func (r *itemRepoPG) Create(ctx context.Context, i *Item) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	i.Version = 1
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO inventory_items (id, name, category, description, current_stock, min_stock,
			unit_price, expiry_date, supplier, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8::date,$9,$10)
		RETURNING created_at, updated_at`,
		i.ID, i.Name, string(i.Category), i.Description, i.CurrentStock, i.MinStock,
		i.UnitPrice, i.ExpiryDate, i.Supplier, i.Version,
	).Scan(&i.CreatedAt, &i.UpdatedAt)
	if db.IsCheckViolation(err, stockNonNegative) {
		return apperr.Invalid("current_stock", errStockConstraint)
	}
	if err != nil {
		return fmt.Errorf("inventory item create: %w", err)
	}
	return nil
}

func (r *itemRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	i, err := scanItem(r.conn(ctx).QueryRow(ctx,
		`SELECT `+itemCols+` FROM inventory_items WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("inventory item", id)
	}
	if err != nil {
		return nil, fmt.Errorf("inventory item get: %w", err)
	}
	return i, nil
}

func (r *itemRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Item, error) {
	i, err := scanItem(r.conn(ctx).QueryRow(ctx,
		`SELECT `+itemCols+` FROM inventory_items WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("inventory item", id)
	}
	if err != nil {
		return nil, fmt.Errorf("inventory item lock: %w", err)
	}
	return i, nil
}

func (r *itemRepoPG) Update(ctx context.Context, i *Item) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE inventory_items SET
			name=$2, category=$3, description=$4, min_stock=$5, unit_price=$6,
			expiry_date=$7::date, supplier=$8, version=version+1, updated_at=NOW()
		WHERE id = $1 AND ($9 = 0 OR version = $9)
		RETURNING current_stock, version, created_at, updated_at`,
		i.ID, i.Name, string(i.Category), i.Description, i.MinStock, i.UnitPrice,
		i.ExpiryDate, i.Supplier, i.Version,
	).Scan(&i.CurrentStock, &i.Version, &i.CreatedAt, &i.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		if _, getErr := r.GetByID(ctx, i.ID); getErr != nil {
			return getErr
		}
		return staleItem(i.ID)
	default:
		return fmt.Errorf("inventory item update: %w", err)
	}
}

func (r *itemRepoPG) SetStock(ctx context.Context, id uuid.UUID, stock int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE inventory_items SET current_stock=$2, version=version+1, updated_at=NOW()
		WHERE id = $1`, id, stock)
	if db.IsCheckViolation(err, stockNonNegative) {
		return apperr.Invalid("current_stock", errStockConstraint)
	}
	if err != nil {
		return fmt.Errorf("inventory stock update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("inventory item", id)
	}
	return nil
}

func (r *itemRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM inventory_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("inventory item delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("inventory item", id)
	}
	return nil
}

func (r *itemRepoPG) Search(ctx context.Context, f ItemFilter, limit, offset int) ([]*Item, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Category != "" {
		where += fmt.Sprintf(` AND category = $%d`, idx)
		args = append(args, string(f.Category))
		idx++
	}
	if f.Supplier != "" {
		where += fmt.Sprintf(` AND supplier ILIKE '%%' || $%d || '%%'`, idx)
		args = append(args, f.Supplier)
		idx++
	}
	if f.Query != "" {
		where += fmt.Sprintf(` AND (name ILIKE '%%' || $%d || '%%' OR description ILIKE '%%' || $%d || '%%')`, idx, idx)
		args = append(args, f.Query)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM inventory_items`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("inventory count: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+itemCols+` FROM inventory_items`+where+
		fmt.Sprintf(` ORDER BY name LIMIT $%d OFFSET $%d`, idx, idx+1), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("inventory search: %w", err)
	}
	items, err := collectItems(rows)
	return items, total, err
}

func (r *itemRepoPG) list(ctx context.Context, where string, args ...interface{}) ([]*Item, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+itemCols+` FROM inventory_items `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("inventory list: %w", err)
	}
	return collectItems(rows)
}

func (r *itemRepoPG) LowStock(ctx context.Context) ([]*Item, error) {
	return r.list(ctx, `WHERE current_stock <= min_stock ORDER BY current_stock - min_stock, name`)
}

func (r *itemRepoPG) ExpiredBefore(ctx context.Context, date string) ([]*Item, error) {
	return r.list(ctx, `WHERE expiry_date IS NOT NULL AND expiry_date < $1::date ORDER BY expiry_date`, date)
}

func (r *itemRepoPG) ExpiringBetween(ctx context.Context, from, to string) ([]*Item, error) {
	return r.list(ctx, `WHERE expiry_date BETWEEN $1::date AND $2::date ORDER BY expiry_date`, from, to)
}

func (r *itemRepoPG) All(ctx context.Context) ([]*Item, error) {
	return r.list(ctx, `ORDER BY category, name`)
}

func (r *itemRepoPG) Summary(ctx context.Context, today, soon string) (*AlertSummary, error) {
	var s AlertSummary
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE current_stock <= min_stock),
			COUNT(*) FILTER (WHERE expiry_date < $1::date),
			COUNT(*) FILTER (WHERE expiry_date BETWEEN $1::date AND $2::date),
			COALESCE(SUM(current_stock::bigint * unit_price), 0)
		FROM inventory_items`, today, soon,
	).Scan(&s.LowStockCount, &s.ExpiredCount, &s.ExpiringSoonCount, &s.TotalValue)
	if err != nil {
		return nil, fmt.Errorf("inventory summary: %w", err)
	}
	return &s, nil
}

func (r *itemRepoPG) CategoryTotals(ctx context.Context) (map[Category]CategoryTotals, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT category, COUNT(*), COALESCE(SUM(current_stock::bigint * unit_price), 0)
		FROM inventory_items GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("inventory by category: %w", err)
	}
	defer rows.Close()

	out := make(map[Category]CategoryTotals)
	for rows.Next() {
		var cat string
		var t CategoryTotals
		if err := rows.Scan(&cat, &t.Count, &t.Value); err != nil {
			return nil, err
		}
		out[Category(cat)] = t
	}
	return out, rows.Err()
}

func (r *itemRepoPG) CountBySupplier(ctx context.Context) (map[string]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT supplier, COUNT(*) FROM inventory_items
		WHERE supplier IS NOT NULL AND supplier <> '' GROUP BY supplier`)
	if err != nil {
		return nil, fmt.Errorf("inventory by supplier: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var supplier string
		var n int
		if err := rows.Scan(&supplier, &n); err != nil {
			return nil, err
		}
		out[supplier] = n
	}
	return out, rows.Err()
}

// -- Movement Repository --

type movementRepoPG struct {
	pool db.Querier
}

func NewMovementRepo(pool db.Querier) MovementRepository {
	return &movementRepoPG{pool: pool}
}

func (r *movementRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const movementCols = `id, item_id, movement_type, quantity, reason, actor_id, created_at`

func scanMovement(row pgx.Row) (*Movement, error) {
	var m Movement
	var mtype string
	if err := row.Scan(&m.ID, &m.ItemID, &mtype, &m.Quantity, &m.Reason, &m.ActorID, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Type = MovementType(mtype)
	return &m, nil
}

func collectMovements(rows pgx.Rows) ([]*Movement, error) {
	defer rows.Close()
	var out []*Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *movementRepoPG) Create(ctx context.Context, m *Movement) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO stock_movements (id, item_id, movement_type, quantity, reason, actor_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		m.ID, m.ItemID, string(m.Type), m.Quantity, m.Reason, m.ActorID,
	).Scan(&m.CreatedAt)
	switch {
	case err == nil:
		return nil
	case db.IsCheckViolation(err, quantityPositive):
		return apperr.Invalid("quantity", errQuantityPositive)
	case db.IsForeignKeyViolation(err):
		return apperr.NotFound("profile", m.ActorID)
	default:
		return fmt.Errorf("stock movement create: %w", err)
	}
}

func (r *movementRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Movement, error) {
	m, err := scanMovement(r.conn(ctx).QueryRow(ctx,
		`SELECT `+movementCols+` FROM stock_movements WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("stock movement", id)
	}
	if err != nil {
		return nil, fmt.Errorf("stock movement get: %w", err)
	}
	return m, nil
}

func (r *movementRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM stock_movements WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("stock movement delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("stock movement", id)
	}
	return nil
}

func (r *movementRepoPG) Search(ctx context.Context, f MovementFilter, limit, offset int) ([]*Movement, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.ItemID != nil {
		where += fmt.Sprintf(` AND item_id = $%d`, idx)
		args = append(args, *f.ItemID)
		idx++
	}
	if f.Type != "" {
		where += fmt.Sprintf(` AND movement_type = $%d`, idx)
		args = append(args, string(f.Type))
		idx++
	}
	if f.ActorID != nil {
		where += fmt.Sprintf(` AND actor_id = $%d`, idx)
		args = append(args, *f.ActorID)
		idx++
	}
	if f.DateFrom != "" {
		where += fmt.Sprintf(` AND created_at >= $%d::date`, idx)
		args = append(args, f.DateFrom)
		idx++
	}
	if f.DateTo != "" {
		where += fmt.Sprintf(` AND created_at < $%d::date + 1`, idx)
		args = append(args, f.DateTo)
		idx++
	}
	if f.Reason != "" {
		where += fmt.Sprintf(` AND reason ILIKE '%%' || $%d || '%%'`, idx)
		args = append(args, f.Reason)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("stock movement count: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+movementCols+` FROM stock_movements`+where+
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("stock movement search: %w", err)
	}
	items, err := collectMovements(rows)
	return items, total, err
}

func (r *movementRepoPG) ForItem(ctx context.Context, itemID uuid.UUID) ([]*Movement, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+movementCols+` FROM stock_movements
		WHERE item_id = $1 ORDER BY created_at DESC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("stock movement history: %w", err)
	}
	return collectMovements(rows)
}

// movementDay is the UTC calendar day of a movement.
const movementDay = `(created_at AT TIME ZONE 'UTC')::date`

func (r *movementRepoPG) OnDate(ctx context.Context, date string) ([]*Movement, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+movementCols+` FROM stock_movements
		WHERE `+movementDay+` = $1::date ORDER BY created_at DESC`, date)
	if err != nil {
		return nil, fmt.Errorf("stock movements on %s: %w", date, err)
	}
	return collectMovements(rows)
}

func (r *movementRepoPG) CountByType(ctx context.Context, f MovementStatsFilter) (map[MovementType]int, map[MovementType]int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.ItemID != nil {
		where += fmt.Sprintf(` AND item_id = $%d`, idx)
		args = append(args, *f.ItemID)
		idx++
	}
	if f.ActorID != nil {
		where += fmt.Sprintf(` AND actor_id = $%d`, idx)
		args = append(args, *f.ActorID)
		idx++
	}
	if f.Since != "" {
		where += fmt.Sprintf(` AND `+movementDay+` >= $%d::date`, idx)
		args = append(args, f.Since)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT movement_type, COUNT(*), COALESCE(SUM(quantity), 0)
		FROM stock_movements`+where+` GROUP BY movement_type`, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("stock movements by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[MovementType]int)
	quantities := make(map[MovementType]int)
	for rows.Next() {
		var mtype string
		var n, qty int
		if err := rows.Scan(&mtype, &n, &qty); err != nil {
			return nil, nil, err
		}
		counts[MovementType(mtype)] = n
		quantities[MovementType(mtype)] = qty
	}
	return counts, quantities, rows.Err()
}

func (r *movementRepoPG) Daily(ctx context.Context, since string) ([]DailyMovements, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT to_char(`+movementDay+`, 'YYYY-MM-DD'),
			COALESCE(SUM(quantity) FILTER (WHERE movement_type = 'INBOUND'), 0),
			COALESCE(SUM(quantity) FILTER (WHERE movement_type = 'OUTBOUND'), 0)
		FROM stock_movements
		WHERE `+movementDay+` >= $1::date
		GROUP BY 1 ORDER BY 1`, since)
	if err != nil {
		return nil, fmt.Errorf("stock movements by day: %w", err)
	}
	defer rows.Close()

	var out []DailyMovements
	for rows.Next() {
		var d DailyMovements
		if err := rows.Scan(&d.Date, &d.Inbound, &d.Outbound); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *movementRepoPG) NetByItem(ctx context.Context, since string) ([]NetMovement, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT i.id, i.name,
			COALESCE(SUM(m.quantity) FILTER (WHERE m.movement_type = 'INBOUND'), 0),
			COALESCE(SUM(m.quantity) FILTER (WHERE m.movement_type = 'OUTBOUND'), 0)
		FROM stock_movements m
		JOIN inventory_items i ON i.id = m.item_id
		WHERE (m.created_at AT TIME ZONE 'UTC')::date >= $1::date
		GROUP BY i.id, i.name
		ORDER BY i.name`, since)
	if err != nil {
		return nil, fmt.Errorf("net stock movements: %w", err)
	}
	defer rows.Close()

	var out []NetMovement
	for rows.Next() {
		var n NetMovement
		if err := rows.Scan(&n.ItemID, &n.ItemName, &n.Inbound, &n.Outbound); err != nil {
			return nil, err
		}
		n.Net = n.Inbound - n.Outbound
		out = append(out, n)
	}
	return out, rows.Err()
}
