package crop

import (
	"time"

	"github.com/shopspring/decimal"
)

// Crop is a farmer-listed unit of produce. QuantityKg is the available stock.
type Crop struct {
	ID          int64           `db:"id" json:"id"`
	FarmerID    int64           `db:"farmer_id" json:"farmer"`
	Name        string          `db:"name" json:"name"`
	Category    string          `db:"category" json:"category"`
	Description string          `db:"description" json:"description"`
	PricePerKg  decimal.Decimal `db:"price_per_kg" json:"price_per_kg"`
	QuantityKg  int64           `db:"quantity_kg" json:"quantity_kg"`
	HarvestDate time.Time       `db:"harvest_date" json:"harvest_date"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// Column limits of the crops table.
const MaxQuantityKg = 1_000_000

var MaxPricePerKg = decimal.RequireFromString("999999.99")

// Filter narrows the public catalog. Unset price bounds are not applied.
type Filter struct {
	Search   string
	Category string
	MinPrice decimal.NullDecimal
	MaxPrice decimal.NullDecimal
}

// Review is a verified buyer's rating of a crop. One per customer and crop.
type Review struct {
	ID         int64     `db:"id" json:"id"`
	CropID     int64     `db:"crop_id" json:"crop"`
	CustomerID int64     `db:"customer_id" json:"customer"`
	Customer   string    `db:"customer_name" json:"customer_name"`
	Rating     int       `db:"rating" json:"rating"`
	Comment    string    `db:"comment" json:"comment"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
