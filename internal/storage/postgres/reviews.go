package postgres

import (
	"context"
	"errors"

	"github.com/antonminaichev/agroconnect/internal/storage"
	"github.com/antonminaichev/agroconnect/internal/types/crop"
	"github.com/antonminaichev/agroconnect/internal/types/order"
	"github.com/jackc/pgx/v5/pgconn"
)

func (s *PostgresStorage) CreateReview(ctx context.Context, r *crop.Review) error {
	q := `
        WITH ins AS (
            INSERT INTO crop_reviews (crop_id, customer_id, rating, comment)
            VALUES ($1,$2,$3,$4) RETURNING id, customer_id, created_at
        )
        SELECT ins.id, u.login, ins.created_at FROM ins JOIN users u ON u.id = ins.customer_id`
	err := s.conn(ctx).QueryRowContext(ctx, q, r.CropID, r.CustomerID, r.Rating, r.Comment).
		Scan(&r.ID, &r.Customer, &r.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return storage.ErrReviewExists
	}
	return err
}

func (s *PostgresStorage) ListReviews(ctx context.Context, cropID int64) ([]crop.Review, error) {
	const q = `
        SELECT r.id, r.crop_id, r.customer_id, u.login, r.rating, r.comment, r.created_at
        FROM crop_reviews r
        JOIN users u ON u.id = r.customer_id
        WHERE r.crop_id = $1
        ORDER BY r.created_at DESC, r.id DESC`
	rows, err := s.conn(ctx).QueryContext(ctx, q, cropID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]crop.Review, 0)
	for rows.Next() {
		var r crop.Review
		if err := rows.Scan(&r.ID, &r.CropID, &r.CustomerID, &r.Customer, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) HasConfirmedPurchase(ctx context.Context, customerID, cropID int64) (bool, error) {
	const q = `
        SELECT EXISTS(
            SELECT 1 FROM order_items oi
            JOIN orders o ON o.id = oi.order_id
            WHERE o.customer_id = $1 AND oi.crop_id = $2 AND o.status = $3
        )`
	var ok bool
	err := s.conn(ctx).QueryRowContext(ctx, q, customerID, cropID, order.StatusConfirmed).Scan(&ok)
	return ok, err
}
