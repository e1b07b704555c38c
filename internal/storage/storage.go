package storage

import (
	"context"
	"errors"
	"time"

	"github.com/antonminaichev/agroconnect/internal/types/crop"
	"github.com/antonminaichev/agroconnect/internal/types/order"
	"github.com/antonminaichev/agroconnect/internal/types/user"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned by every backend when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUserExists is returned on a duplicate login.
	ErrUserExists = errors.New("user already exists")
	// ErrNegativeStock is returned when a stock adjustment would drive quantity below zero.
	ErrNegativeStock = errors.New("stock would become negative")
	// ErrCropInUse is returned when deleting a crop that order items still reference.
	ErrCropInUse = errors.New("crop has orders")
	// ErrReviewExists is returned on a second review of the same crop by one customer.
	ErrReviewExists = errors.New("review already exists")
)

// UserRepository отвечает за операции над пользователями.
type UserRepository interface {
	Create(ctx context.Context, u *user.User) error
	FindByLogin(ctx context.Context, login string) (*user.User, error)
}

// CropRepository is the catalog: crops and their available stock.
type CropRepository interface {
	CreateCrop(ctx context.Context, c *crop.Crop) error
	GetCrop(ctx context.Context, id int64) (*crop.Crop, error)
	ListCrops(ctx context.Context, f crop.Filter) ([]crop.Crop, error)
	ListCropsByFarmer(ctx context.Context, farmerID int64) ([]crop.Crop, error)
	// UpdateCrop and DeleteCrop expect the row to be locked by LockCrops.
	UpdateCrop(ctx context.Context, c *crop.Crop) error
	DeleteCrop(ctx context.Context, id int64) error
}

type ReviewRepository interface {
	CreateReview(ctx context.Context, r *crop.Review) error
	ListReviews(ctx context.Context, cropID int64) ([]crop.Review, error)
	HasConfirmedPurchase(ctx context.Context, customerID, cropID int64) (bool, error)
}

// TxManager runs fn in one transaction carried by the context passed to fn.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// InventoryRepository mutates stock. Must be called inside WithTx.
type InventoryRepository interface {
	LockCrops(ctx context.Context, ids []int64) (map[int64]*crop.Crop, error)
	AdjustCropStock(ctx context.Context, cropID int64, delta int64) error
}

// OrderRepository отвечает за операции над заказами.
type OrderRepository interface {
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
	// Stats count orders created at or after since as recent.
	FarmerStats(ctx context.Context, farmerID int64, since time.Time) (order.FarmerStats, error)
	CustomerStats(ctx context.Context, customerID int64, since time.Time) (order.CustomerStats, error)
}

// Storage объединяет все репозитории.
type Storage interface {
	UserRepository
	CropRepository
	ReviewRepository
	TxManager
	InventoryRepository
	OrderRepository

	// Для управления соединением
	Ping(ctx context.Context) error
	Close() error
}
