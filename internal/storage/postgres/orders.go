package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/antonminaichev/agroconnect/internal/storage"
	"github.com/antonminaichev/agroconnect/internal/types/order"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, customer_id, total_amount, status, payment_method, payment_status,
    delivery_name, delivery_phone, delivery_address_line1, delivery_address_line2,
    delivery_city, delivery_state, delivery_postal_code, created_at`

var farmerSortClause = map[order.SortKey]string{
	order.SortNewest:       "o.created_at DESC",
	order.SortOldest:       "o.created_at ASC",
	order.SortQuantityDesc: "oi.quantity_kg DESC",
	order.SortQuantityAsc:  "oi.quantity_kg ASC",
	order.SortPriceDesc:    "oi.price_per_kg DESC",
	order.SortPriceAsc:     "oi.price_per_kg ASC",
}

func scanOrder(r rowScanner) (order.Order, error) {
	var o order.Order
	err := r.Scan(&o.ID, &o.CustomerID, &o.TotalAmount, &o.Status, &o.PaymentMethod, &o.PaymentStatus,
		&o.DeliveryName, &o.DeliveryPhone, &o.DeliveryAddressLine1, &o.DeliveryAddressLine2,
		&o.DeliveryCity, &o.DeliveryState, &o.DeliveryPostalCode, &o.CreatedAt)
	return o, err
}

func (s *PostgresStorage) CreateOrder(ctx context.Context, o *order.Order) error {
	q := `
        INSERT INTO orders (customer_id, total_amount, status, payment_method, payment_status,
            delivery_name, delivery_phone, delivery_address_line1, delivery_address_line2,
            delivery_city, delivery_state, delivery_postal_code)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id, created_at`
	return s.conn(ctx).QueryRowContext(ctx, q,
		o.CustomerID, o.TotalAmount, o.Status, o.PaymentMethod, o.PaymentStatus,
		o.DeliveryName, o.DeliveryPhone, o.DeliveryAddressLine1, o.DeliveryAddressLine2,
		o.DeliveryCity, o.DeliveryState, o.DeliveryPostalCode,
	).Scan(&o.ID, &o.CreatedAt)
}

func (s *PostgresStorage) CreateOrderItem(ctx context.Context, it *order.Item) error {
	q := `
        INSERT INTO order_items (order_id, crop_id, quantity_kg, price_per_kg)
        VALUES ($1,$2,$3,$4) RETURNING id`
	return s.conn(ctx).QueryRowContext(ctx, q, it.OrderID, it.CropID, it.QuantityKg, it.PricePerKg).Scan(&it.ID)
}

func (s *PostgresStorage) UpdateOrderTotal(ctx context.Context, orderID int64, total decimal.Decimal) error {
	return s.execOne(ctx, `UPDATE orders SET total_amount = $1 WHERE id = $2`, total, orderID)
}

func (s *PostgresStorage) UpdateOrderStatus(ctx context.Context, orderID int64, status order.OrderStatus) error {
	return s.execOne(ctx, `UPDATE orders SET status = $1 WHERE id = $2`, status, orderID)
}

func (s *PostgresStorage) execOne(ctx context.Context, q string, args ...any) error {
	res, err := s.conn(ctx).ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) GetOrder(ctx context.Context, id int64) (*order.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	o, err := scanOrder(s.conn(ctx).QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// LockOrder reads the order row under FOR UPDATE. The lock is held until the
// surrounding transaction ends.
func (s *PostgresStorage) LockOrder(ctx context.Context, id int64) (*order.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	o, err := scanOrder(s.conn(ctx).QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *PostgresStorage) FarmerOwnsOrder(ctx context.Context, orderID, farmerID int64) (bool, error) {
	const q = `
        SELECT EXISTS(
            SELECT 1 FROM order_items oi
            JOIN crops c ON c.id = oi.crop_id
            WHERE oi.order_id = $1 AND c.farmer_id = $2
        )`
	var owns bool
	err := s.conn(ctx).QueryRowContext(ctx, q, orderID, farmerID).Scan(&owns)
	return owns, err
}

func (s *PostgresStorage) ListOrderItems(ctx context.Context, orderID int64) ([]order.Item, error) {
	byOrder, err := s.itemsFor(ctx, []int64{orderID})
	if err != nil {
		return nil, err
	}
	items := byOrder[orderID]
	if items == nil {
		items = []order.Item{}
	}
	return items, nil
}

func (s *PostgresStorage) itemsFor(ctx context.Context, orderIDs []int64) (map[int64][]order.Item, error) {
	const q = `
        SELECT oi.id, oi.order_id, oi.crop_id, c.name, c.farmer_id, oi.quantity_kg, oi.price_per_kg
        FROM order_items oi
        JOIN crops c ON c.id = oi.crop_id
        WHERE oi.order_id = ANY($1)
        ORDER BY oi.id`
	rows, err := s.conn(ctx).QueryContext(ctx, q, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]order.Item, len(orderIDs))
	for rows.Next() {
		var it order.Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.CropID, &it.CropName, &it.FarmerID,
			&it.QuantityKg, &it.PricePerKg); err != nil {
			return nil, err
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) AppendStatusHistory(ctx context.Context, h *order.StatusHistory) error {
	q := `
        INSERT INTO order_status_history (order_id, from_status, to_status, changed_by)
        VALUES ($1,$2,$3,$4) RETURNING id, created_at`
	return s.conn(ctx).QueryRowContext(ctx, q, h.OrderID, h.FromStatus, h.ToStatus, h.ChangedBy).
		Scan(&h.ID, &h.CreatedAt)
}

func (s *PostgresStorage) ListStatusHistory(ctx context.Context, orderID int64) ([]order.StatusHistory, error) {
	const q = `
        SELECT id, order_id, from_status, to_status, changed_by, created_at
        FROM order_status_history WHERE order_id = $1 ORDER BY id`
	rows, err := s.conn(ctx).QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]order.StatusHistory, 0)
	for rows.Next() {
		var h order.StatusHistory
		if err := rows.Scan(&h.ID, &h.OrderID, &h.FromStatus, &h.ToStatus, &h.ChangedBy, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) CountOrdersByCustomer(ctx context.Context, customerID int64) (int, error) {
	var n int
	err := s.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE customer_id = $1`, customerID).Scan(&n)
	return n, err
}

func (s *PostgresStorage) ListOrdersByCustomer(ctx context.Context, customerID int64, limit, offset int) ([]order.Order, error) {
	q := `
        SELECT ` + orderColumns + `
        FROM orders
        WHERE customer_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2 OFFSET $3`
	rows, err := s.conn(ctx).QueryContext(ctx, q, customerID, nullLimit(limit), offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]order.Order, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	items, err := s.itemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
		if out[i].Items == nil {
			out[i].Items = []order.Item{}
		}
	}
	return out, nil
}

const farmerItemsFrom = `
        FROM order_items oi
        JOIN orders o ON o.id = oi.order_id
        JOIN crops c ON c.id = oi.crop_id
        JOIN users u ON u.id = o.customer_id
        WHERE c.farmer_id = $1
          AND ($2::text = '' OR o.status = $2::text)
          AND ($3::text = '' OR c.name ILIKE '%' || $3::text || '%' ESCAPE '\')`

func (s *PostgresStorage) CountFarmerOrderItems(ctx context.Context, farmerID int64, f order.FarmerFilter) (int, error) {
	var n int
	err := s.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*)`+farmerItemsFrom,
		farmerID, string(f.Status), escapeLike(f.Search)).Scan(&n)
	return n, err
}

func (s *PostgresStorage) ListFarmerOrderItems(ctx context.Context, farmerID int64, f order.FarmerFilter) ([]order.FarmerOrderItem, error) {
	sortClause, ok := farmerSortClause[f.Sort]
	if !ok {
		sortClause = farmerSortClause[order.SortNewest]
	}
	q := `
        SELECT o.id, u.login, c.id, c.name, oi.quantity_kg, oi.price_per_kg,
               o.status, o.payment_method, o.payment_status, o.created_at` +
		farmerItemsFrom + `
        ORDER BY ` + sortClause + `, o.id DESC, oi.id
        LIMIT $4 OFFSET $5`

	rows, err := s.conn(ctx).QueryContext(ctx, q,
		farmerID, string(f.Status), escapeLike(f.Search), nullLimit(f.Limit), f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]order.FarmerOrderItem, 0)
	for rows.Next() {
		var r order.FarmerOrderItem
		if err := rows.Scan(&r.OrderID, &r.Customer, &r.CropID, &r.CropName, &r.QuantityKg, &r.PricePerKg,
			&r.OrderStatus, &r.PaymentMethod, &r.PaymentStatus, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) FarmerStats(ctx context.Context, farmerID int64, since time.Time) (order.FarmerStats, error) {
	st := order.FarmerStats{}
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(quantity_kg), 0) FROM crops WHERE farmer_id = $1`, farmerID,
	).Scan(&st.TotalCrops, &st.TotalStockKg)
	if err != nil {
		return st, err
	}

	const q = `
        SELECT COUNT(DISTINCT o.id),
               COUNT(DISTINCT o.id) FILTER (WHERE o.status = 'PENDING'),
               COUNT(DISTINCT o.id) FILTER (WHERE o.status = 'CONFIRMED'),
               COUNT(DISTINCT o.id) FILTER (WHERE o.status = 'CANCELLED'),
               COALESCE(SUM(oi.quantity_kg * oi.price_per_kg) FILTER (WHERE o.status = 'CONFIRMED'), 0),
               COUNT(DISTINCT o.id) FILTER (WHERE o.created_at >= $2)
        FROM order_items oi
        JOIN orders o ON o.id = oi.order_id
        JOIN crops c ON c.id = oi.crop_id
        WHERE c.farmer_id = $1`
	err = s.conn(ctx).QueryRowContext(ctx, q, farmerID, since).Scan(&st.TotalOrders, &st.PendingOrders,
		&st.ConfirmedOrders, &st.CancelledOrders, &st.ConfirmedRevenue, &st.RecentOrders)
	return st, err
}

func (s *PostgresStorage) CustomerStats(ctx context.Context, customerID int64, since time.Time) (order.CustomerStats, error) {
	const q = `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE status = 'PENDING'),
               COUNT(*) FILTER (WHERE status = 'CONFIRMED'),
               COUNT(*) FILTER (WHERE status = 'CANCELLED'),
               COALESCE(SUM(total_amount) FILTER (WHERE status = 'CONFIRMED'), 0),
               COUNT(*) FILTER (WHERE created_at >= $2)
        FROM orders
        WHERE customer_id = $1`
	st := order.CustomerStats{}
	err := s.conn(ctx).QueryRowContext(ctx, q, customerID, since).Scan(&st.TotalOrders, &st.PendingOrders,
		&st.ConfirmedOrders, &st.CancelledOrders, &st.TotalSpent, &st.RecentOrders)
	return st, err
}

// nullLimit maps "no limit" to SQL NULL, which LIMIT treats as unbounded.
func nullLimit(limit int) sql.NullInt64 {
	if limit <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(limit), Valid: true}
}
