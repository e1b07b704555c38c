package order

import (
	"context"
	"time"

	"github.com/antonminaichev/agroconnect/internal/types/crop"
	"github.com/antonminaichev/agroconnect/internal/types/order"
	"github.com/antonminaichev/agroconnect/internal/types/user"
	"github.com/shopspring/decimal"
)

// Store is the persistence the order pipeline needs. Mutating calls must run
// inside WithTx.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	LockCrops(ctx context.Context, ids []int64) (map[int64]*crop.Crop, error)
	AdjustCropStock(ctx context.Context, cropID int64, delta int64) error

	CreateOrder(ctx context.Context, o *order.Order) error
	CreateOrderItem(ctx context.Context, it *order.Item) error
	UpdateOrderTotal(ctx context.Context, orderID int64, total decimal.Decimal) error
	GetOrder(ctx context.Context, id int64) (*order.Order, error)
	LockOrder(ctx context.Context, id int64) (*order.Order, error)
	FarmerOwnsOrder(ctx context.Context, orderID, farmerID int64) (bool, error)
	ListOrderItems(ctx context.Context, orderID int64) ([]order.Item, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status order.OrderStatus) error
	AppendStatusHistory(ctx context.Context, h *order.StatusHistory) error
	ListStatusHistory(ctx context.Context, orderID int64) ([]order.StatusHistory, error)

	CountOrdersByCustomer(ctx context.Context, customerID int64) (int, error)
	ListOrdersByCustomer(ctx context.Context, customerID int64, limit, offset int) ([]order.Order, error)
	CountFarmerOrderItems(ctx context.Context, farmerID int64, f order.FarmerFilter) (int, error)
	ListFarmerOrderItems(ctx context.Context, farmerID int64, f order.FarmerFilter) ([]order.FarmerOrderItem, error)

	FarmerStats(ctx context.Context, farmerID int64, since time.Time) (order.FarmerStats, error)
	CustomerStats(ctx context.Context, customerID int64, since time.Time) (order.CustomerStats, error)
}

// VersionCounter is the per-farmer change counter read by streams and
// embedded in listing cache keys.
type VersionCounter interface {
	Bump(farmerID int64) int64
	Current(farmerID int64) int64
}

type EventPublisher interface {
	Publish(ctx context.Context, e order.Event) error
}

type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*user.User, error)
}
