package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/antonminaichev/agroconnect/internal/storage"
	"github.com/antonminaichev/agroconnect/internal/types/crop"
	"github.com/jackc/pgx/v5/pgconn"
)

const cropColumns = `id, farmer_id, name, category, description, price_per_kg, quantity_kg, harvest_date, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCrop(r rowScanner) (crop.Crop, error) {
	var c crop.Crop
	err := r.Scan(&c.ID, &c.FarmerID, &c.Name, &c.Category, &c.Description,
		&c.PricePerKg, &c.QuantityKg, &c.HarvestDate, &c.CreatedAt)
	return c, err
}

func (s *PostgresStorage) CreateCrop(ctx context.Context, c *crop.Crop) error {
	q := `
        INSERT INTO crops (farmer_id, name, category, description, price_per_kg, quantity_kg, harvest_date)
        VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at`
	return s.conn(ctx).QueryRowContext(ctx, q,
		c.FarmerID, c.Name, c.Category, c.Description, c.PricePerKg, c.QuantityKg, c.HarvestDate,
	).Scan(&c.ID, &c.CreatedAt)
}

func (s *PostgresStorage) GetCrop(ctx context.Context, id int64) (*crop.Crop, error) {
	q := `SELECT ` + cropColumns + ` FROM crops WHERE id = $1`
	c, err := scanCrop(s.conn(ctx).QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStorage) ListCrops(ctx context.Context, f crop.Filter) ([]crop.Crop, error) {
	q := `
        SELECT ` + cropColumns + `
        FROM crops
        WHERE ($1::text = '' OR name ILIKE '%' || $1::text || '%' ESCAPE '\')
          AND ($2::text = '' OR LOWER(category) = LOWER($2::text))
          AND ($3::numeric IS NULL OR price_per_kg >= $3::numeric)
          AND ($4::numeric IS NULL OR price_per_kg <= $4::numeric)
        ORDER BY created_at DESC, id DESC`
	return s.queryCrops(ctx, q, escapeLike(f.Search), f.Category, f.MinPrice, f.MaxPrice)
}

func (s *PostgresStorage) ListCropsByFarmer(ctx context.Context, farmerID int64) ([]crop.Crop, error) {
	q := `SELECT ` + cropColumns + ` FROM crops WHERE farmer_id = $1 ORDER BY id`
	return s.queryCrops(ctx, q, farmerID)
}

func (s *PostgresStorage) queryCrops(ctx context.Context, q string, args ...any) ([]crop.Crop, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]crop.Crop, 0)
	for rows.Next() {
		c, err := scanCrop(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LockCrops takes row locks on every requested crop in ascending id order, so
// two placements touching the same crops cannot deadlock.
func (s *PostgresStorage) LockCrops(ctx context.Context, ids []int64) (map[int64]*crop.Crop, error) {
	distinct := slices.Clone(ids)
	slices.Sort(distinct)
	distinct = slices.Compact(distinct)

	q := `SELECT ` + cropColumns + ` FROM crops WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	rows, err := s.conn(ctx).QueryContext(ctx, q, distinct)
	if err != nil {
		return nil, fmt.Errorf("lock crops: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]*crop.Crop, len(distinct))
	for rows.Next() {
		c, err := scanCrop(rows)
		if err != nil {
			return nil, err
		}
		out[c.ID] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) != len(distinct) {
		return nil, storage.ErrNotFound
	}
	return out, nil
}

func (s *PostgresStorage) AdjustCropStock(ctx context.Context, cropID int64, delta int64) error {
	q := `UPDATE crops SET quantity_kg = quantity_kg + $1 WHERE id = $2 AND quantity_kg + $1 >= 0`
	res, err := s.conn(ctx).ExecContext(ctx, q, delta, cropID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := s.conn(ctx).QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM crops WHERE id = $1)`, cropID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrNegativeStock
}

// UpdateCrop rewrites the mutable columns. Order items keep their own price.
func (s *PostgresStorage) UpdateCrop(ctx context.Context, c *crop.Crop) error {
	q := `
        UPDATE crops
        SET name = $1, category = $2, description = $3, price_per_kg = $4, quantity_kg = $5, harvest_date = $6
        WHERE id = $7`
	return s.execOne(ctx, q, c.Name, c.Category, c.Description, c.PricePerKg, c.QuantityKg, c.HarvestDate, c.ID)
}

func (s *PostgresStorage) DeleteCrop(ctx context.Context, id int64) error {
	err := s.execOne(ctx, `DELETE FROM crops WHERE id = $1`, id)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return storage.ErrCropInUse
	}
	return err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
