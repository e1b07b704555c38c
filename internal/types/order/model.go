package order

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusConfirmed OrderStatus = "CONFIRMED"
	StatusCancelled OrderStatus = "CANCELLED"
)

type PaymentMethod string

const (
	PaymentUPI  PaymentMethod = "UPI"
	PaymentCard PaymentMethod = "CARD"
	PaymentCOD  PaymentMethod = "COD"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFailed  PaymentStatus = "FAILED"
)

// Order is the aggregate root. TotalAmount is computed from the item snapshots
// at placement time and never recomputed.
type Order struct {
	ID                   int64           `db:"id" json:"id"`
	CustomerID           int64           `db:"customer_id" json:"customer"`
	TotalAmount          decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status               OrderStatus     `db:"status" json:"status"`
	PaymentMethod        PaymentMethod   `db:"payment_method" json:"payment_method"`
	PaymentStatus        PaymentStatus   `db:"payment_status" json:"payment_status"`
	DeliveryName         string          `db:"delivery_name" json:"delivery_name"`
	DeliveryPhone        string          `db:"delivery_phone" json:"delivery_phone"`
	DeliveryAddressLine1 string          `db:"delivery_address_line1" json:"delivery_address_line1"`
	DeliveryAddressLine2 string          `db:"delivery_address_line2" json:"delivery_address_line2"`
	DeliveryCity         string          `db:"delivery_city" json:"delivery_city"`
	DeliveryState        string          `db:"delivery_state" json:"delivery_state"`
	DeliveryPostalCode   string          `db:"delivery_postal_code" json:"delivery_postal_code"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
	Items                []Item          `json:"items"`
}

// Item is a line item. PricePerKg is the crop price captured when the order
// was placed.
type Item struct {
	ID         int64           `db:"id" json:"-"`
	OrderID    int64           `db:"order_id" json:"-"`
	CropID     int64           `db:"crop_id" json:"crop"`
	CropName   string          `db:"crop_name" json:"crop_name"`
	FarmerID   int64           `db:"farmer_id" json:"-"`
	QuantityKg int64           `db:"quantity_kg" json:"quantity_kg"`
	PricePerKg decimal.Decimal `db:"price_per_kg" json:"price_per_kg"`
}

// StatusHistory is an append-only audit record of one transition.
type StatusHistory struct {
	ID         int64       `db:"id" json:"id"`
	OrderID    int64       `db:"order_id" json:"order_id"`
	FromStatus OrderStatus `db:"from_status" json:"from_status"`
	ToStatus   OrderStatus `db:"to_status" json:"to_status"`
	ChangedBy  int64       `db:"changed_by" json:"changed_by"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
}

// FarmerOrderItem is one row of the farmer order listing: a line item for one
// of the farmer's crops joined with its order.
type FarmerOrderItem struct {
	OrderID       int64           `json:"order_id"`
	Customer      string          `json:"customer"`
	CropID        int64           `json:"crop"`
	CropName      string          `json:"crop_name"`
	QuantityKg    int64           `json:"quantity_kg"`
	PricePerKg    decimal.Decimal `json:"price_per_kg"`
	OrderStatus   OrderStatus     `json:"order_status"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	CreatedAt     time.Time       `json:"created_at"`
}

type SortKey string

const (
	SortNewest       SortKey = "newest"
	SortOldest       SortKey = "oldest"
	SortQuantityDesc SortKey = "quantity_desc"
	SortQuantityAsc  SortKey = "quantity_asc"
	SortPriceDesc    SortKey = "price_desc"
	SortPriceAsc     SortKey = "price_asc"
)

// FarmerFilter narrows the farmer listing. Limit 0 means no limit.
type FarmerFilter struct {
	Status OrderStatus
	Search string
	Sort   SortKey
	Limit  int
	Offset int
}

type Page[T any] struct {
	Count    int `json:"count"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Results  []T `json:"results"`
}

type EventType string

const (
	EventPlaced        EventType = "order.placed"
	EventStatusChanged EventType = "order.status_changed"
)

// Event is published to the order feed after a committed change.
type Event struct {
	Type       EventType   `json:"type"`
	OrderID    int64       `json:"order_id"`
	Status     OrderStatus `json:"status"`
	FarmerIDs  []int64     `json:"farmer_ids"`
	ActorID    int64       `json:"actor_id"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// MaxTotalAmount is the largest total the orders table can hold.
var MaxTotalAmount = decimal.RequireFromString("99999999.99")

// FarmerStats aggregates a farmer's catalog and the orders touching it.
// Order counts are distinct orders, not line items.
type FarmerStats struct {
	TotalCrops       int             `json:"total_crops"`
	TotalStockKg     int64           `json:"total_stock_kg"`
	TotalOrders      int             `json:"total_orders"`
	PendingOrders    int             `json:"pending_orders"`
	ConfirmedOrders  int             `json:"confirmed_orders"`
	CancelledOrders  int             `json:"cancelled_orders"`
	ConfirmedRevenue decimal.Decimal `json:"confirmed_revenue"`
	RecentOrders     int             `json:"recent_orders"`
}

type CustomerStats struct {
	TotalOrders     int             `json:"total_orders"`
	PendingOrders   int             `json:"pending_orders"`
	ConfirmedOrders int             `json:"confirmed_orders"`
	CancelledOrders int             `json:"cancelled_orders"`
	TotalSpent      decimal.Decimal `json:"total_spent"`
	RecentOrders    int             `json:"recent_orders"`
}
