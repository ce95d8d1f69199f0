// Package reviews lets customers rate products from orders they received and
// keeps each product's rating summary in step with its reviews.
package reviews

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"blazestride/internal/models"
	"blazestride/internal/orders"
	"blazestride/internal/validation"
)

var (
	ErrOrderNotReceived  = errors.New("can only review orders with 'Received' status")
	ErrProductNotInOrder = errors.New("product not found in this order")
	ErrDuplicate         = errors.New("review already exists")
)

// Store persists reviews. Lookups of missing reviews return orders.ErrNotFound.
type Store interface {
	Find(ctx context.Context, user, product, order primitive.ObjectID) (models.Review, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (models.Review, error)
	// Save inserts a review with a zero ID and replaces one with an ID.
	Save(ctx context.Context, review *models.Review) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	ListByProduct(ctx context.Context, product primitive.ObjectID) ([]models.Review, error)
	ListByUser(ctx context.Context, user primitive.ObjectID) ([]models.Review, error)
	RatingStats(ctx context.Context, product primitive.ObjectID) (average float64, count int, err error)
}

type OrderFinder interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (models.Order, error)
}

type Products interface {
	FindProduct(ctx context.Context, id primitive.ObjectID) (models.Product, error)
	SetRating(ctx context.Context, id primitive.ObjectID, average float64, count int) error
}

type UpsertRequest struct {
	User              primitive.ObjectID `json:"-" validate:"required"`
	OrderID           string             `json:"orderId" validate:"required,objectid"`
	ProductID         string             `json:"productId" validate:"required,objectid"`
	Rating            int                `json:"rating" validate:"required,min=1,max=5"`
	ReviewDescription string             `json:"reviewDescription" validate:"required,min=10,max=1000"`
	ReviewImages      []string           `json:"reviewImages" validate:"omitempty,max=5,dive,url"`
}

type Service struct {
	store    Store
	orders   OrderFinder
	products Products
	users    orders.UserDirectory
	validate *validatorv10.Validate
	timeout  time.Duration
	now      func() time.Time
}

func NewService(store Store, orderFinder OrderFinder, products Products, users orders.UserDirectory, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		store:    store,
		orders:   orderFinder,
		products: products,
		users:    users,
		validate: validation.New(),
		timeout:  timeout,
		now:      time.Now,
	}
}

// Upsert creates the caller's review of a product in an order, or updates it
// when one exists. created reports which happened.
func (s *Service) Upsert(ctx context.Context, req UpsertRequest) (review models.Review, created bool, err error) {
	req.ReviewDescription = strings.TrimSpace(req.ReviewDescription)
	if err := s.validate.Struct(req); err != nil {
		return models.Review{}, false, &orders.ValidationError{Details: validation.Details(err)}
	}

	orderID, _ := primitive.ObjectIDFromHex(req.OrderID)
	productID, _ := primitive.ObjectIDFromHex(req.ProductID)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	order, err := s.orders.FindByID(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) || (err == nil && order.User != req.User) {
		return models.Review{}, false, &orders.NotFoundError{Resource: "order", ID: orderID}
	}
	if err != nil {
		return models.Review{}, false, fmt.Errorf("find order: %w", err)
	}
	if order.OrderStatus != models.OrderStatusReceived {
		return models.Review{}, false, ErrOrderNotReceived
	}
	if !order.ContainsProduct(productID) {
		return models.Review{}, false, ErrProductNotInOrder
	}

	product, err := s.products.FindProduct(ctx, productID)
	if errors.Is(err, orders.ErrNotFound) {
		return models.Review{}, false, &orders.NotFoundError{Resource: "product", ID: productID}
	}
	if err != nil {
		return models.Review{}, false, fmt.Errorf("find product: %w", err)
	}

	now := s.now().UTC()
	review, err = s.store.Find(ctx, req.User, productID, orderID)
	switch {
	case err == nil:
		review.Rating = req.Rating
		review.ReviewDescription = req.ReviewDescription
		if len(req.ReviewImages) > 0 {
			review.ReviewImages = req.ReviewImages
		}
		review.UpdatedAt = now
	case errors.Is(err, orders.ErrNotFound):
		contact, err := s.users.ResolveUserContact(ctx, req.User)
		if err != nil {
			return models.Review{}, false, fmt.Errorf("resolve reviewer: %w", err)
		}
		created = true
		review = models.Review{
			User:              req.User,
			FirstName:         contact.FirstName,
			LastName:          contact.LastName,
			Product:           productID,
			ProductName:       product.Name,
			Order:             orderID,
			Rating:            req.Rating,
			ReviewDescription: req.ReviewDescription,
			ReviewImages:      lo.Ternary(req.ReviewImages == nil, []string{}, req.ReviewImages),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
	default:
		return models.Review{}, false, fmt.Errorf("find review: %w", err)
	}

	if err := s.store.Save(ctx, &review); err != nil {
		return models.Review{}, false, fmt.Errorf("save review: %w", err)
	}

	s.refreshRating(ctx, productID)
	return review, created, nil
}

func (s *Service) GetByOrderAndProduct(ctx context.Context, user, order, product primitive.ObjectID) (models.Review, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	review, err := s.store.Find(ctx, user, product, order)
	if errors.Is(err, orders.ErrNotFound) {
		return models.Review{}, &orders.NotFoundError{Resource: "review", ID: product}
	}
	return review, err
}

// ListForProduct returns the product's reviews, newest first.
func (s *Service) ListForProduct(ctx context.Context, product primitive.ObjectID) ([]models.Review, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.ListByProduct(ctx, product)
}

func (s *Service) ListForUser(ctx context.Context, user primitive.ObjectID) ([]models.Review, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.ListByUser(ctx, user)
}

// Delete removes one of the caller's reviews.
func (s *Service) Delete(ctx context.Context, id, user primitive.ObjectID) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	review, err := s.store.FindByID(ctx, id)
	if errors.Is(err, orders.ErrNotFound) || (err == nil && review.User != user) {
		return &orders.NotFoundError{Resource: "review", ID: id}
	}
	if err != nil {
		return fmt.Errorf("find review: %w", err)
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete review: %w", err)
	}

	s.refreshRating(ctx, review.Product)
	return nil
}

// refreshRating recomputes the product's average and count from its reviews.
// Failures are logged; the review change itself stands.
func (s *Service) refreshRating(ctx context.Context, product primitive.ObjectID) {
	avg, count, err := s.store.RatingStats(ctx, product)
	if err != nil {
		log.Printf("[REVIEW] [ERROR] rating stats for %s: %v", product.Hex(), err)
		return
	}
	if err := s.products.SetRating(ctx, product, avg, count); err != nil {
		log.Printf("[REVIEW] [ERROR] update rating for %s: %v", product.Hex(), err)
		return
	}
	log.Printf("[REVIEW] [INFO] product %s rating %.2f from %d reviews", product.Hex(), avg, count)
}
