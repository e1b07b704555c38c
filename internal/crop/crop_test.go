package crop

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/antonminaichev/agroconnect/internal/cache"
	"github.com/antonminaichev/agroconnect/internal/middleware"
	"github.com/antonminaichev/agroconnect/internal/storage"
	"github.com/antonminaichev/agroconnect/internal/storage/memory"
	"github.com/antonminaichev/agroconnect/internal/types/crop"
	"github.com/antonminaichev/agroconnect/internal/types/order"
	"github.com/antonminaichev/agroconnect/internal/types/user"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInput() CreateInput {
	return CreateInput{
		Name:        "Tomato",
		Category:    "Vegetables",
		PricePerKg:  decimal.RequireFromString("12.50"),
		QuantityKg:  100,
		HarvestDate: "2025-06-01",
	}
}

func TestServiceCreate(t *testing.T) {
	svc := NewService(memory.New(), cache.NewVersions())
	ctx := context.Background()

	c, err := svc.Create(ctx, 3, validInput())
	require.NoError(t, err)
	assert.NotZero(t, c.ID)
	assert.Equal(t, int64(3), c.FarmerID)
	assert.Equal(t, 2025, c.HarvestDate.Year())

	t.Run("missing name", func(t *testing.T) {
		in := validInput()
		in.Name = "  "
		_, err := svc.Create(ctx, 3, in)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "name", vErr.Field)
		assert.Equal(t, "name value missing", vErr.Error())
	})

	t.Run("negative quantity", func(t *testing.T) {
		in := validInput()
		in.QuantityKg = -1
		_, err := svc.Create(ctx, 3, in)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "quantity_kg", vErr.Field)
	})

	t.Run("bad date", func(t *testing.T) {
		in := validInput()
		in.HarvestDate = "01/06/2025"
		_, err := svc.Create(ctx, 3, in)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "harvest_date", vErr.Field)
	})

	t.Run("zero price", func(t *testing.T) {
		in := validInput()
		in.PricePerKg = decimal.Zero
		_, err := svc.Create(ctx, 3, in)
		assert.ErrorIs(t, err, ErrInvalidPrice)
	})

	t.Run("price above column range", func(t *testing.T) {
		in := validInput()
		in.PricePerKg = decimal.RequireFromString("1000000")
		_, err := svc.Create(ctx, 3, in)
		assert.ErrorIs(t, err, ErrPriceTooHigh)
	})

	t.Run("quantity above limit", func(t *testing.T) {
		in := validInput()
		in.QuantityKg = crop.MaxQuantityKg + 1
		_, err := svc.Create(ctx, 3, in)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "quantity_kg", vErr.Field)
		assert.Equal(t, "quantity_kg value is greater than 1000000", vErr.Error())
	})
}

func TestHandlers(t *testing.T) {
	store := memory.New()
	h := NewHandler(NewService(store, cache.NewVersions()))

	body := `{"name":"Wheat","category":"Grains","price_per_kg":"30","quantity_kg":500,"harvest_date":"2025-04-10"}`
	req := httptest.NewRequest(http.MethodPost, "/api/farmer/crops", strings.NewReader(body))
	req = req.WithContext(middleware.ContextWithUser(req.Context(), 9, user.RoleFarmer))
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created crop.Crop
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, int64(9), created.FarmerID)

	r := chi.NewRouter()
	r.Mount("/api/crops", h.Routes())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/crops?search=whe", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []crop.Crop
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list, 1)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/crops/999", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/farmer/crops", strings.NewReader(`{"name":""}`))
	rec = httptest.NewRecorder()
	h.Create(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func ptr[T any](v T) *T { return &v }

func TestServiceUpdate(t *testing.T) {
	store := memory.New()
	versions := cache.NewVersions()
	svc := NewService(store, versions)
	ctx := context.Background()

	c, err := svc.Create(ctx, 3, validInput())
	require.NoError(t, err)

	updated, err := svc.Update(ctx, 3, c.ID, UpdateInput{PricePerKg: ptr(decimal.RequireFromString("14.555")), QuantityKg: ptr(int64(40))})
	require.NoError(t, err)
	assert.Equal(t, "14.56", updated.PricePerKg.StringFixed(2))
	assert.Equal(t, int64(40), updated.QuantityKg)
	assert.Equal(t, "Tomato", updated.Name)
	assert.Equal(t, cache.DefaultVersion, versions.Current(3), "price change leaves listings valid")

	_, err = svc.Update(ctx, 3, c.ID, UpdateInput{Name: ptr("Cherry tomato")})
	require.NoError(t, err)
	assert.Greater(t, versions.Current(3), cache.DefaultVersion, "rename invalidates listings")

	stored, err := store.GetCrop(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cherry tomato", stored.Name)
	assert.Equal(t, int64(40), stored.QuantityKg)

	_, err = svc.Update(ctx, 4, c.ID, UpdateInput{QuantityKg: ptr(int64(1))})
	assert.ErrorIs(t, err, storage.ErrNotFound, "other farmers' crops are hidden")

	_, err = svc.Update(ctx, 3, 999, UpdateInput{QuantityKg: ptr(int64(1))})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = svc.Update(ctx, 3, c.ID, UpdateInput{PricePerKg: ptr(decimal.Zero)})
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = svc.Update(ctx, 3, c.ID, UpdateInput{PricePerKg: ptr(decimal.RequireFromString("1000000"))})
	assert.ErrorIs(t, err, ErrPriceTooHigh)

	var vErr *ValidationError
	_, err = svc.Update(ctx, 3, c.ID, UpdateInput{QuantityKg: ptr(int64(-1))})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "quantity_kg", vErr.Field)

	_, err = svc.Update(ctx, 3, c.ID, UpdateInput{QuantityKg: ptr(int64(crop.MaxQuantityKg + 1))})
	require.ErrorAs(t, err, &vErr)

	_, err = svc.Update(ctx, 3, c.ID, UpdateInput{Name: ptr("  ")})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "name", vErr.Field)
}

func placeConfirmed(t *testing.T, store *memory.Store, customerID, cropID int64) {
	t.Helper()
	ctx := context.Background()
	o := &order.Order{CustomerID: customerID, Status: order.StatusConfirmed}
	require.NoError(t, store.CreateOrder(ctx, o))
	require.NoError(t, store.CreateOrderItem(ctx, &order.Item{OrderID: o.ID, CropID: cropID, QuantityKg: 1, PricePerKg: decimal.RequireFromString("12.50")}))
}

func TestServiceDelete(t *testing.T) {
	store := memory.New()
	svc := NewService(store, cache.NewVersions())
	ctx := context.Background()

	used, err := svc.Create(ctx, 3, validInput())
	require.NoError(t, err)
	free, err := svc.Create(ctx, 3, validInput())
	require.NoError(t, err)
	placeConfirmed(t, store, 8, used.ID)

	assert.ErrorIs(t, svc.Delete(ctx, 4, free.ID), storage.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, 3, used.ID), storage.ErrCropInUse)
	require.NoError(t, svc.Delete(ctx, 3, free.ID))

	_, err = svc.Get(ctx, free.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestServiceReviews(t *testing.T) {
	store := memory.New()
	svc := NewService(store, cache.NewVersions())
	ctx := context.Background()

	buyer := &user.User{Login: "buyer", Role: user.RoleCustomer}
	require.NoError(t, store.Create(ctx, buyer))
	c, err := svc.Create(ctx, 3, validInput())
	require.NoError(t, err)

	_, err = svc.AddReview(ctx, buyer.ID, c.ID, ReviewInput{Rating: 5})
	assert.ErrorIs(t, err, ErrNotVerifiedBuyer)

	placeConfirmed(t, store, buyer.ID, c.ID)

	var vErr *ValidationError
	_, err = svc.AddReview(ctx, buyer.ID, c.ID, ReviewInput{Rating: 6})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "rating", vErr.Field)

	r, err := svc.AddReview(ctx, buyer.ID, c.ID, ReviewInput{Rating: 4, Comment: " juicy "})
	require.NoError(t, err)
	assert.Equal(t, "juicy", r.Comment)
	assert.Equal(t, "buyer", r.Customer)

	_, err = svc.AddReview(ctx, buyer.ID, c.ID, ReviewInput{Rating: 1})
	assert.ErrorIs(t, err, ErrAlreadyReviewed)

	_, err = svc.AddReview(ctx, buyer.ID, 999, ReviewInput{Rating: 3})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	reviews, err := svc.Reviews(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, 4, reviews[0].Rating)

	_, err = svc.Reviews(ctx, 999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFarmerCropHandlers(t *testing.T) {
	store := memory.New()
	h := NewHandler(NewService(store, cache.NewVersions()))
	c, err := h.svc.Create(context.Background(), 9, validInput())
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.ContextWithUser(r.Context(), 9, user.RoleFarmer)))
		})
	})
	r.Patch("/api/farmer/crops/{id}", h.Update)
	r.Delete("/api/farmer/crops/{id}", h.Delete)
	r.Mount("/api/crops", h.Routes())

	do := func(method, path, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
		return rec
	}
	path := "/api/farmer/crops/" + strconv.FormatInt(c.ID, 10)

	rec := do(http.MethodPatch, path, `{"price_per_kg":"15.00"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got crop.Crop
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.True(t, got.PricePerKg.Equal(decimal.RequireFromString("15")))

	rec = do(http.MethodPatch, path, `{"price_per_kg":"99999999"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(http.MethodPatch, "/api/farmer/crops/abc", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(http.MethodGet, "/api/crops?min_price=cheap", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(http.MethodGet, "/api/crops?min_price=16", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(http.MethodGet, "/api/crops/"+strconv.FormatInt(c.ID, 10)+"/reviews", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	placeConfirmed(t, store, 8, c.ID)
	rec = do(http.MethodDelete, path, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	free, err := h.svc.Create(context.Background(), 9, validInput())
	require.NoError(t, err)
	rec = do(http.MethodDelete, "/api/farmer/crops/"+strconv.FormatInt(free.ID, 10), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
