package order

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/antonminaichev/agroconnect/internal/cache"
	"github.com/antonminaichev/agroconnect/internal/logger"
	"github.com/antonminaichev/agroconnect/internal/storage"
	"github.com/antonminaichev/agroconnect/internal/types/crop"
	"github.com/antonminaichev/agroconnect/internal/types/order"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrNoItems              = errors.New("no items provided")
	ErrInvalidQuantity      = fmt.Errorf("each item needs a crop_id and a quantity_kg between 1 and %d", crop.MaxQuantityKg)
	ErrTotalTooLarge        = fmt.Errorf("order total must not exceed %s", order.MaxTotalAmount.StringFixed(2))
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrCropNotFound         = errors.New("crop not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrNotOrderFarmer       = errors.New("you are not allowed to update this order")
)

// MissingFieldsError names every required delivery field that was left empty.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "missing delivery address fields: " + strings.Join(e.Fields, ", ")
}

type ItemInput struct {
	CropID     int64 `json:"crop_id" validate:"gt=0"`
	QuantityKg int64 `json:"quantity_kg" validate:"gt=0,max=1000000"`
}

type DeliveryAddress struct {
	Name         string `json:"name" validate:"required"`
	Phone        string `json:"phone" validate:"required"`
	AddressLine1 string `json:"address_line1" validate:"required"`
	AddressLine2 string `json:"address_line2"`
	City         string `json:"city" validate:"required"`
	State        string `json:"state" validate:"required"`
	PostalCode   string `json:"postal_code" validate:"required"`
}

type PlaceInput struct {
	Items           []ItemInput         `json:"items"`
	PaymentMethod   order.PaymentMethod `json:"payment_method"`
	DeliveryAddress DeliveryAddress     `json:"delivery_address"`
}

type Service struct {
	store    Store
	versions VersionCounter
	listings *cache.Listing[order.Page[order.FarmerOrderItem]]
	events   EventPublisher
	validate *validator.Validate
	now      func() time.Time
}

func NewService(
	store Store,
	versions VersionCounter,
	listings *cache.Listing[order.Page[order.FarmerOrderItem]],
	events EventPublisher,
) *Service {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return &Service{
		store:    store,
		versions: versions,
		listings: listings,
		events:   events,
		validate: v,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) validatePlacement(in *PlaceInput) error {
	if in.PaymentMethod == "" {
		in.PaymentMethod = order.PaymentCOD
	}
	switch in.PaymentMethod {
	case order.PaymentUPI, order.PaymentCard, order.PaymentCOD:
	default:
		return ErrInvalidPaymentMethod
	}
	if len(in.Items) == 0 {
		return ErrNoItems
	}

	d := &in.DeliveryAddress
	for _, f := range []*string{&d.Name, &d.Phone, &d.AddressLine1, &d.AddressLine2, &d.City, &d.State, &d.PostalCode} {
		*f = strings.TrimSpace(*f)
	}
	if err := s.validate.Struct(d); err != nil {
		var vErrs validator.ValidationErrors
		if !errors.As(err, &vErrs) {
			return err
		}
		missing := make([]string, 0, len(vErrs))
		for _, fe := range vErrs {
			missing = append(missing, fe.Field())
		}
		return &MissingFieldsError{Fields: missing}
	}

	for i := range in.Items {
		if err := s.validate.Struct(in.Items[i]); err != nil {
			return ErrInvalidQuantity
		}
	}
	return nil
}

// PlaceOrder creates an order for customerID. Stock checks, decrements and
// order rows are committed together or not at all. Every farmer owning one of
// the ordered crops has its version bumped once after commit.
func (s *Service) PlaceOrder(ctx context.Context, customerID int64, in PlaceInput) (*order.Order, error) {
	if err := s.validatePlacement(&in); err != nil {
		return nil, err
	}

	paymentStatus := order.PaymentPending
	if in.PaymentMethod == order.PaymentUPI || in.PaymentMethod == order.PaymentCard {
		paymentStatus = order.PaymentPaid
	}
	o := &order.Order{
		CustomerID:           customerID,
		TotalAmount:          decimal.Zero,
		Status:               order.StatusPending,
		PaymentMethod:        in.PaymentMethod,
		PaymentStatus:        paymentStatus,
		DeliveryName:         in.DeliveryAddress.Name,
		DeliveryPhone:        in.DeliveryAddress.Phone,
		DeliveryAddressLine1: in.DeliveryAddress.AddressLine1,
		DeliveryAddressLine2: in.DeliveryAddress.AddressLine2,
		DeliveryCity:         in.DeliveryAddress.City,
		DeliveryState:        in.DeliveryAddress.State,
		DeliveryPostalCode:   in.DeliveryAddress.PostalCode,
		CreatedAt:            s.now(),
	}

	var farmers []int64
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		ids := make([]int64, 0, len(in.Items))
		for _, it := range in.Items {
			ids = append(ids, it.CropID)
		}
		crops, err := s.store.LockCrops(ctx, ids)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrCropNotFound
		}
		if err != nil {
			return err
		}

		if err := s.store.CreateOrder(ctx, o); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		total := decimal.Zero
		items := make([]order.Item, 0, len(in.Items))
		for _, line := range in.Items {
			c := crops[line.CropID]
			if line.QuantityKg > c.QuantityKg {
				return fmt.Errorf("%w for %s", ErrInsufficientStock, c.Name)
			}
			// the locked copy tracks what is left for repeated lines of the same crop
			c.QuantityKg -= line.QuantityKg

			it := order.Item{
				OrderID:    o.ID,
				CropID:     c.ID,
				CropName:   c.Name,
				FarmerID:   c.FarmerID,
				QuantityKg: line.QuantityKg,
				PricePerKg: c.PricePerKg,
			}
			if err := s.store.CreateOrderItem(ctx, &it); err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
			if err := s.store.AdjustCropStock(ctx, c.ID, -line.QuantityKg); err != nil {
				if errors.Is(err, storage.ErrNegativeStock) {
					return fmt.Errorf("%w for %s", ErrInsufficientStock, c.Name)
				}
				return fmt.Errorf("reserve stock: %w", err)
			}
			total = total.Add(it.PricePerKg.Mul(decimal.NewFromInt(it.QuantityKg)))
			items = append(items, it)

			if !slices.Contains(farmers, c.FarmerID) {
				farmers = append(farmers, c.FarmerID)
			}
		}

		if total.GreaterThan(order.MaxTotalAmount) {
			return ErrTotalTooLarge
		}
		if err := s.store.UpdateOrderTotal(ctx, o.ID, total); err != nil {
			return fmt.Errorf("update total: %w", err)
		}
		o.TotalAmount = total
		o.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, farmerID := range farmers {
		s.versions.Bump(farmerID)
	}
	s.publish(ctx, order.Event{
		Type:       order.EventPlaced,
		OrderID:    o.ID,
		Status:     o.Status,
		FarmerIDs:  farmers,
		ActorID:    customerID,
		OccurredAt: s.now(),
	})
	return o, nil
}

// UpdateStatus moves a pending order to target on behalf of a farmer who owns
// at least one of its line items. Cancelling returns every item's quantity to
// stock. The order row stays locked for the whole read-validate-write.
func (s *Service) UpdateStatus(ctx context.Context, farmerID, orderID int64, target order.OrderStatus) (*order.Order, error) {
	if _, err := ParseTargetStatus(string(target)); err != nil {
		return nil, err
	}

	var (
		updated *order.Order
		farmers []int64
	)
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.store.LockOrder(ctx, orderID)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return err
		}

		owns, err := s.store.FarmerOwnsOrder(ctx, orderID, farmerID)
		if err != nil {
			return err
		}
		if !owns {
			return ErrNotOrderFarmer
		}

		if err := CheckTransition(o.Status, target); err != nil {
			return err
		}

		items, err := s.store.ListOrderItems(ctx, orderID)
		if err != nil {
			return err
		}
		if target == order.StatusCancelled {
			ids := make([]int64, 0, len(items))
			for _, it := range items {
				ids = append(ids, it.CropID)
			}
			// same ascending order as placement
			if _, err := s.store.LockCrops(ctx, ids); err != nil {
				return fmt.Errorf("lock crops: %w", err)
			}
			for _, it := range items {
				if err := s.store.AdjustCropStock(ctx, it.CropID, it.QuantityKg); err != nil {
					return fmt.Errorf("restore stock for crop %d: %w", it.CropID, err)
				}
			}
		}

		if err := s.store.UpdateOrderStatus(ctx, orderID, target); err != nil {
			return err
		}
		if err := s.store.AppendStatusHistory(ctx, &order.StatusHistory{
			OrderID:    orderID,
			FromStatus: o.Status,
			ToStatus:   target,
			ChangedBy:  farmerID,
			CreatedAt:  s.now(),
		}); err != nil {
			return fmt.Errorf("append history: %w", err)
		}

		for _, it := range items {
			if !slices.Contains(farmers, it.FarmerID) {
				farmers = append(farmers, it.FarmerID)
			}
		}
		o.Status = target
		o.Items = items
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.versions.Bump(farmerID)
	s.publish(ctx, order.Event{
		Type:       order.EventStatusChanged,
		OrderID:    orderID,
		Status:     target,
		FarmerIDs:  farmers,
		ActorID:    farmerID,
		OccurredAt: s.now(),
	})
	return updated, nil
}

// History returns the transition log of an order the farmer has items in.
func (s *Service) History(ctx context.Context, farmerID, orderID int64) ([]order.StatusHistory, error) {
	if _, err := s.store.GetOrder(ctx, orderID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	owns, err := s.store.FarmerOwnsOrder(ctx, orderID, farmerID)
	if err != nil {
		return nil, err
	}
	if !owns {
		return nil, ErrNotOrderFarmer
	}
	return s.store.ListStatusHistory(ctx, orderID)
}

// RecentWindow is how far back the dashboards count recent orders.
const RecentWindow = 7 * 24 * time.Hour

func (s *Service) FarmerDashboard(ctx context.Context, farmerID int64) (order.FarmerStats, error) {
	return s.store.FarmerStats(ctx, farmerID, s.now().Add(-RecentWindow))
}

func (s *Service) CustomerDashboard(ctx context.Context, customerID int64) (order.CustomerStats, error) {
	return s.store.CustomerStats(ctx, customerID, s.now().Add(-RecentWindow))
}

func (s *Service) publish(ctx context.Context, e order.Event) {
	if s.events == nil {
		return
	}
	// the change is committed, so a client hanging up does not cancel the event
	if err := s.events.Publish(context.WithoutCancel(ctx), e); err != nil {
		logger.Log.Warn("publish order event",
			zap.String("type", string(e.Type)),
			zap.Int64("order_id", e.OrderID),
			zap.Error(err),
		)
	}
}
