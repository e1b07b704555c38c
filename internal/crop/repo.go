package crop

import (
	"context"

	"github.com/antonminaichev/agroconnect/internal/types/crop"
)

type CropRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateCrop(ctx context.Context, c *crop.Crop) error
	GetCrop(ctx context.Context, id int64) (*crop.Crop, error)
	ListCrops(ctx context.Context, f crop.Filter) ([]crop.Crop, error)
	ListCropsByFarmer(ctx context.Context, farmerID int64) ([]crop.Crop, error)
	LockCrops(ctx context.Context, ids []int64) (map[int64]*crop.Crop, error)
	UpdateCrop(ctx context.Context, c *crop.Crop) error
	DeleteCrop(ctx context.Context, id int64) error

	CreateReview(ctx context.Context, r *crop.Review) error
	ListReviews(ctx context.Context, cropID int64) ([]crop.Review, error)
	HasConfirmedPurchase(ctx context.Context, customerID, cropID int64) (bool, error)
}

// VersionBumper invalidates a farmer's cached order listings.
type VersionBumper interface {
	Bump(farmerID int64) int64
}
