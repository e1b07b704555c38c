package order

import (
	"errors"
	"slices"

	"github.com/antonminaichev/agroconnect/internal/types/order"
)

var (
	ErrStatusLocked      = errors.New("order status cannot be changed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidStatus     = errors.New("status must be CONFIRMED or CANCELLED")
)

// transitions lists the targets reachable from each non-terminal status.
var transitions = map[order.OrderStatus][]order.OrderStatus{
	order.StatusPending: {order.StatusConfirmed, order.StatusCancelled},
}

// CheckTransition reports whether an order in from may move to to.
func CheckTransition(from, to order.OrderStatus) error {
	allowed, ok := transitions[from]
	if !ok {
		return ErrStatusLocked
	}
	if !slices.Contains(allowed, to) {
		return ErrInvalidTransition
	}
	return nil
}

// ParseTargetStatus accepts the statuses a farmer may request.
func ParseTargetStatus(s string) (order.OrderStatus, error) {
	switch st := order.OrderStatus(s); st {
	case order.StatusConfirmed, order.StatusCancelled:
		return st, nil
	default:
		return "", ErrInvalidStatus
	}
}
