package orders

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"blazestride/internal/models"
	"blazestride/internal/notify"
)

//go:generate mockgen -destination=mocks/collaborators.go -package=mocks blazestride/internal/orders Notifier,ReceiptRenderer

// Store persists orders. Lookups of missing orders return ErrNotFound.
type Store interface {
	Insert(ctx context.Context, order *models.Order) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	FindByID(ctx context.Context, id primitive.ObjectID) (models.Order, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.OrderStatus, at time.Time) (models.Order, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error)
	List(ctx context.Context, filter ListFilter) ([]models.Order, int64, error)
}

// Catalog is the product side of stock reservation.
type Catalog interface {
	FindProduct(ctx context.Context, id primitive.ObjectID) (models.Product, error)
	// DecrementStock subtracts res.Quantity only if that many units are in
	// stock and res is not already held, and records res on the product. It
	// reports false when the condition did not hold.
	DecrementStock(ctx context.Context, id primitive.ObjectID, res models.StockReservation) (bool, error)
	// RestoreStock gives back the stock held by res. It reports false when the
	// product holds no such reservation.
	RestoreStock(ctx context.Context, id primitive.ObjectID, res models.StockReservation) (bool, error)
	// ReleaseReservations drops the reservation records of a committed order.
	ReleaseReservations(ctx context.Context, orderID primitive.ObjectID, products []primitive.ObjectID) error
}

// Contact is where a customer receives order emails.
type Contact struct {
	FirstName string
	LastName  string
	Email     string
}

func (c Contact) Name() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

type UserDirectory interface {
	ResolveUserContact(ctx context.Context, userID primitive.ObjectID) (Contact, error)
}

type Notifier interface {
	Send(ctx context.Context, msg notify.Message) error
}

type ReceiptRenderer interface {
	Render(order models.Order) ([]byte, error)
}

// EventPublisher announces committed orders to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, order models.Order) error
}

type Metrics interface {
	Count(name string, value float64)
}

type ListFilter struct {
	Status models.OrderStatus
	User   primitive.ObjectID
	Page   int64
	Limit  int64
}

type nopEvents struct{}

func (nopEvents) Publish(context.Context, string, models.Order) error { return nil }

type nopMetrics struct{}

func (nopMetrics) Count(string, float64) {}
