package crop

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/antonminaichev/agroconnect/internal/storage"
	"github.com/antonminaichev/agroconnect/internal/types/crop"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

var (
	ErrInvalidPrice     = errors.New("price_per_kg must be greater than zero")
	ErrPriceTooHigh     = fmt.Errorf("price_per_kg must not exceed %s", crop.MaxPricePerKg.StringFixed(2))
	ErrNotVerifiedBuyer = errors.New("only customers with a confirmed order for this crop can review it")
	ErrAlreadyReviewed  = errors.New("you have already reviewed this crop")
)

// ValidationError reports the first field that failed validation.
type ValidationError struct {
	Field string
	Tag   string
	Param string
	Kind  reflect.Kind
}

func (e *ValidationError) Error() string {
	switch e.Tag {
	case "required":
		return e.Field + " value missing"
	case "gte", "min":
		if e.Kind == reflect.String {
			return fmt.Sprintf("%s value is shorter than %s", e.Field, e.Param)
		}
		return fmt.Sprintf("%s value is less than %s", e.Field, e.Param)
	case "max":
		if e.Kind == reflect.String {
			return fmt.Sprintf("%s value is longer than %s", e.Field, e.Param)
		}
		return fmt.Sprintf("%s value is greater than %s", e.Field, e.Param)
	case "datetime":
		return e.Field + " must be a date in YYYY-MM-DD format"
	default:
		return e.Field + " is invalid"
	}
}

type CreateInput struct {
	Name        string          `json:"name" validate:"required,max=100"`
	Category    string          `json:"category" validate:"required,max=50"`
	Description string          `json:"description"`
	PricePerKg  decimal.Decimal `json:"price_per_kg"`
	QuantityKg  int64           `json:"quantity_kg" validate:"gte=0,max=1000000"`
	HarvestDate string          `json:"harvest_date" validate:"required,datetime=2006-01-02"`
}

// UpdateInput is a partial update. Nil fields keep their stored value.
type UpdateInput struct {
	Name        *string          `json:"name" validate:"omitempty,min=1,max=100"`
	Category    *string          `json:"category" validate:"omitempty,min=1,max=50"`
	Description *string          `json:"description"`
	PricePerKg  *decimal.Decimal `json:"price_per_kg"`
	QuantityKg  *int64           `json:"quantity_kg" validate:"omitempty,gte=0,max=1000000"`
	HarvestDate *string          `json:"harvest_date" validate:"omitempty,datetime=2006-01-02"`
}

type ReviewInput struct {
	Rating  int    `json:"rating" validate:"min=1,max=5"`
	Comment string `json:"comment" validate:"max=1000"`
}

type Service struct {
	repo     CropRepository
	versions VersionBumper
	validate *validator.Validate
}

func NewService(repo CropRepository, versions VersionBumper) *Service {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	return &Service{repo: repo, versions: versions, validate: v}
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

func (s *Service) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) && len(vErrs) > 0 {
		return &ValidationError{Field: vErrs[0].Field(), Tag: vErrs[0].Tag(), Param: vErrs[0].Param(), Kind: vErrs[0].Kind()}
	}
	return err
}

func checkPrice(p decimal.Decimal) error {
	if !p.IsPositive() {
		return ErrInvalidPrice
	}
	if p.Round(2).GreaterThan(crop.MaxPricePerKg) {
		return ErrPriceTooHigh
	}
	return nil
}

func (s *Service) Create(ctx context.Context, farmerID int64, in CreateInput) (*crop.Crop, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	if err := s.check(in); err != nil {
		return nil, err
	}
	if err := checkPrice(in.PricePerKg); err != nil {
		return nil, err
	}
	harvest, err := time.Parse(dateLayout, in.HarvestDate)
	if err != nil {
		return nil, &ValidationError{Field: "harvest_date", Tag: "datetime"}
	}

	c := &crop.Crop{
		FarmerID:    farmerID,
		Name:        in.Name,
		Category:    in.Category,
		Description: in.Description,
		PricePerKg:  in.PricePerKg.Round(2),
		QuantityKg:  in.QuantityKg,
		HarvestDate: harvest,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.CreateCrop(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Update applies a partial change to one of the farmer's crops under its row
// lock, so it serializes with order placement on the same crop. Another
// farmer's crop reads as not found.
func (s *Service) Update(ctx context.Context, farmerID, id int64, in UpdateInput) (*crop.Crop, error) {
	if in.Name != nil {
		*in.Name = strings.TrimSpace(*in.Name)
	}
	if in.Category != nil {
		*in.Category = strings.TrimSpace(*in.Category)
	}
	if err := s.check(in); err != nil {
		return nil, err
	}
	if in.PricePerKg != nil {
		if err := checkPrice(*in.PricePerKg); err != nil {
			return nil, err
		}
	}
	var harvest time.Time
	if in.HarvestDate != nil {
		var err error
		if harvest, err = time.Parse(dateLayout, *in.HarvestDate); err != nil {
			return nil, &ValidationError{Field: "harvest_date", Tag: "datetime"}
		}
	}

	var updated *crop.Crop
	renamed := false
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		c, err := s.lockOwned(ctx, farmerID, id)
		if err != nil {
			return err
		}
		if in.Name != nil {
			renamed = *in.Name != c.Name
			c.Name = *in.Name
		}
		if in.Category != nil {
			c.Category = *in.Category
		}
		if in.Description != nil {
			c.Description = *in.Description
		}
		if in.PricePerKg != nil {
			c.PricePerKg = in.PricePerKg.Round(2)
		}
		if in.QuantityKg != nil {
			c.QuantityKg = *in.QuantityKg
		}
		if in.HarvestDate != nil {
			c.HarvestDate = harvest
		}
		if err := s.repo.UpdateCrop(ctx, c); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	// listing rows carry the crop name
	if renamed {
		s.versions.Bump(farmerID)
	}
	return updated, nil
}

// Delete removes a crop that no order references.
func (s *Service) Delete(ctx context.Context, farmerID, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.lockOwned(ctx, farmerID, id); err != nil {
			return err
		}
		return s.repo.DeleteCrop(ctx, id)
	})
}

func (s *Service) lockOwned(ctx context.Context, farmerID, id int64) (*crop.Crop, error) {
	locked, err := s.repo.LockCrops(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	c := locked[id]
	if c.FarmerID != farmerID {
		return nil, storage.ErrNotFound
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*crop.Crop, error) {
	return s.repo.GetCrop(ctx, id)
}

func (s *Service) List(ctx context.Context, f crop.Filter) ([]crop.Crop, error) {
	return s.repo.ListCrops(ctx, f)
}

func (s *Service) ListByFarmer(ctx context.Context, farmerID int64) ([]crop.Crop, error) {
	return s.repo.ListCropsByFarmer(ctx, farmerID)
}

// AddReview records a customer's single review of a crop they bought in a
// confirmed order.
func (s *Service) AddReview(ctx context.Context, customerID, cropID int64, in ReviewInput) (*crop.Review, error) {
	in.Comment = strings.TrimSpace(in.Comment)
	if err := s.check(in); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetCrop(ctx, cropID); err != nil {
		return nil, err
	}
	bought, err := s.repo.HasConfirmedPurchase(ctx, customerID, cropID)
	if err != nil {
		return nil, err
	}
	if !bought {
		return nil, ErrNotVerifiedBuyer
	}

	r := &crop.Review{CropID: cropID, CustomerID: customerID, Rating: in.Rating, Comment: in.Comment}
	if err := s.repo.CreateReview(ctx, r); err != nil {
		if errors.Is(err, storage.ErrReviewExists) {
			return nil, ErrAlreadyReviewed
		}
		return nil, err
	}
	return r, nil
}

func (s *Service) Reviews(ctx context.Context, cropID int64) ([]crop.Review, error) {
	if _, err := s.repo.GetCrop(ctx, cropID); err != nil {
		return nil, err
	}
	return s.repo.ListReviews(ctx, cropID)
}
