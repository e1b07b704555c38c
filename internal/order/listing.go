package order

import (
	"context"
	"errors"
	"net/url"
	"strconv"

	"github.com/antonminaichev/agroconnect/internal/cache"
	"github.com/antonminaichev/agroconnect/internal/types/order"
)

const (
	defaultPage     = 1
	defaultPageSize = 10
)

var ErrInvalidPage = errors.New("page and page_size must be integers")

// PageRequest is the pagination part of a listing query. Listings without
// page or page_size are returned whole.
type PageRequest struct {
	Paginated bool
	Page      int
	PageSize  int
}

func ParsePageRequest(q url.Values) (PageRequest, error) {
	if !q.Has("page") && !q.Has("page_size") {
		return PageRequest{}, nil
	}
	pr := PageRequest{Paginated: true, Page: defaultPage, PageSize: defaultPageSize}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return PageRequest{}, ErrInvalidPage
		}
		pr.Page = n
	}
	if v := q.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return PageRequest{}, ErrInvalidPage
		}
		pr.PageSize = n
	}
	if pr.Page < 1 {
		pr.Page = defaultPage
	}
	if pr.PageSize < 1 {
		pr.PageSize = defaultPageSize
	}
	return pr, nil
}

// clamp moves a page past the end onto the last page. An empty listing still
// has one (empty) page.
func (pr PageRequest) clamp(count int) (page, offset int) {
	pages := (count + pr.PageSize - 1) / pr.PageSize
	if pages < 1 {
		pages = 1
	}
	page = min(pr.Page, pages)
	return page, (page - 1) * pr.PageSize
}

// FarmerQuery holds the raw filter and sort parameters of the farmer listing.
type FarmerQuery struct {
	Status string
	Search string
	Sort   string
}

func (q FarmerQuery) filter() order.FarmerFilter {
	f := order.FarmerFilter{Search: q.Search, Sort: order.SortKey(q.Sort)}
	if q.Status != "ALL" {
		f.Status = order.OrderStatus(q.Status)
	}
	switch f.Sort {
	case order.SortNewest, order.SortOldest, order.SortQuantityDesc, order.SortQuantityAsc,
		order.SortPriceDesc, order.SortPriceAsc:
	default:
		f.Sort = order.SortNewest
	}
	return f
}

// FarmerOrders returns every line item of the farmer's crops, unpaginated and
// uncached.
func (s *Service) FarmerOrders(ctx context.Context, farmerID int64, q FarmerQuery) ([]order.FarmerOrderItem, error) {
	return s.store.ListFarmerOrderItems(ctx, farmerID, q.filter())
}

// FarmerOrdersPage returns one page of the farmer listing. Pages are cached
// under a key that embeds the farmer's current version, so any bump makes
// the next request a miss.
func (s *Service) FarmerOrdersPage(ctx context.Context, farmerID int64, q FarmerQuery, pr PageRequest) (order.Page[order.FarmerOrderItem], error) {
	f := q.filter()
	key := cache.ListingKey(farmerID, s.versions.Current(farmerID), cache.ListingQuery{
		Page:     pr.Page,
		PageSize: pr.PageSize,
		Status:   string(f.Status),
		Sort:     string(f.Sort),
		Search:   q.Search,
	})
	if s.listings != nil {
		if cached, ok := s.listings.Get(key); ok {
			return cached, nil
		}
	}

	count, err := s.store.CountFarmerOrderItems(ctx, farmerID, f)
	if err != nil {
		return order.Page[order.FarmerOrderItem]{}, err
	}
	page, offset := pr.clamp(count)
	f.Limit, f.Offset = pr.PageSize, offset
	rows, err := s.store.ListFarmerOrderItems(ctx, farmerID, f)
	if err != nil {
		return order.Page[order.FarmerOrderItem]{}, err
	}

	p := order.Page[order.FarmerOrderItem]{Count: count, Page: page, PageSize: pr.PageSize, Results: rows}
	if s.listings != nil {
		s.listings.Add(key, p)
	}
	return p, nil
}

// CustomerOrders returns the customer's orders newest first with their items.
func (s *Service) CustomerOrders(ctx context.Context, customerID int64) ([]order.Order, error) {
	return s.store.ListOrdersByCustomer(ctx, customerID, 0, 0)
}

func (s *Service) CustomerOrdersPage(ctx context.Context, customerID int64, pr PageRequest) (order.Page[order.Order], error) {
	count, err := s.store.CountOrdersByCustomer(ctx, customerID)
	if err != nil {
		return order.Page[order.Order]{}, err
	}
	page, offset := pr.clamp(count)
	orders, err := s.store.ListOrdersByCustomer(ctx, customerID, pr.PageSize, offset)
	if err != nil {
		return order.Page[order.Order]{}, err
	}
	return order.Page[order.Order]{Count: count, Page: page, PageSize: pr.PageSize, Results: orders}, nil
}
