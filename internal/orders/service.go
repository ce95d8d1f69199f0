// Package orders implements order placement and the order status workflow.
//
// Placement runs intake, stock reservation, compensation on failure and
// notification dispatch in that order. An order is either fully committed
// (persisted with every line's stock decremented) or removed with every
// decrement reversed.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"blazestride/internal/models"
	"blazestride/internal/notify"
	"blazestride/internal/validation"
)

const (
	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"

	defaultStoreTimeout  = 5 * time.Second
	defaultNotifyTimeout = 10 * time.Second
)

// Dependencies are the collaborators of a Service. Events, Metrics and
// Receipts may be nil.
type Dependencies struct {
	Store    Store
	Catalog  Catalog
	Users    UserDirectory
	Notifier Notifier
	Receipts ReceiptRenderer
	Events   EventPublisher
	Metrics  Metrics
}

type Options struct {
	StoreTimeout   time.Duration
	NotifyTimeout  time.Duration
	AttachReceipt  bool
	ValidateTotals bool
	MailFrom       string
}

type Service struct {
	store    Store
	catalog  Catalog
	users    UserDirectory
	notifier Notifier
	receipts ReceiptRenderer
	events   EventPublisher
	metrics  Metrics
	validate *validatorv10.Validate
	opts     Options
	now      func() time.Time
}

// PlaceOrderResult carries the committed order and any non-fatal problems
// hit after commit, such as a failed confirmation email.
type PlaceOrderResult struct {
	Order    models.Order
	Warnings []string
}

type StatusUpdateResult struct {
	Order    models.Order
	Warnings []string
}

// reservedLine is a ledger entry. An uncertain entry is a decrement whose
// outcome is unknown; its restore is a no-op when the write never landed.
type reservedLine struct {
	product   primitive.ObjectID
	res       models.StockReservation
	uncertain bool
}

func NewService(deps Dependencies, opts Options) *Service {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = defaultNotifyTimeout
	}

	v := validation.New()
	if opts.ValidateTotals {
		v.RegisterStructValidation(orderTotalsRule, PlaceOrderRequest{})
	}

	s := &Service{
		store:    deps.Store,
		catalog:  deps.Catalog,
		users:    deps.Users,
		notifier: deps.Notifier,
		receipts: deps.Receipts,
		events:   deps.Events,
		metrics:  deps.Metrics,
		validate: v,
		opts:     opts,
		now:      time.Now,
	}
	if s.events == nil {
		s.events = nopEvents{}
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	return s
}

// WithClock replaces the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

/* =========================
   PLACE ORDER
========================= */

func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (PlaceOrderResult, error) {
	if err := s.validate.Struct(req); err != nil {
		s.metrics.Count("OrdersRejected", 1)
		return PlaceOrderResult{}, &ValidationError{Details: validation.Details(err)}
	}

	order := newOrder(req)
	order.CreatedAt = s.now().UTC()
	order.UpdatedAt = order.CreatedAt

	insertCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	err := s.store.Insert(insertCtx, &order)
	cancel()
	if err != nil {
		log.Println("[ORDER] [ERROR] insert failed:", err)
		return PlaceOrderResult{}, transient("insert order", err)
	}

	ledger, err := s.reserve(ctx, order)
	if err != nil {
		s.metrics.Count("OrdersRejected", 1)
		if compErr := s.compensate(ctx, order, ledger); compErr != nil {
			s.metrics.Count("CompensationFailures", 1)
			return PlaceOrderResult{}, errors.Join(err, fmt.Errorf("compensation: %w", compErr))
		}
		return PlaceOrderResult{}, err
	}

	s.releaseReservations(ctx, order)

	log.Printf("[ORDER] [INFO] order %s placed for user %s (%d units)",
		order.ID.Hex(), order.User.Hex(),
		lo.SumBy(order.OrderItems, func(item models.OrderItem) int { return item.Quantity }))
	s.metrics.Count("OrdersPlaced", 1)
	s.publish(ctx, EventOrderPlaced, order)

	result := PlaceOrderResult{Order: order}
	result.Warnings = s.dispatch(ctx, order, confirmationMessage, s.opts.AttachReceipt)
	return result, nil
}

// reserve walks the lines in order and stops at the first failure. The
// returned ledger lists every decrement that was, or may have been, applied.
func (s *Service) reserve(ctx context.Context, order models.Order) ([]reservedLine, error) {
	ledger := make([]reservedLine, 0, len(order.OrderItems))

	for i, item := range order.OrderItems {
		if _, err := s.findProduct(ctx, item.Product); err != nil {
			return ledger, err
		}

		res := models.StockReservation{
			Order:    order.ID,
			Line:     i,
			Quantity: item.Quantity,
			At:       s.now().UTC(),
		}

		ok, err := s.decrement(ctx, item.Product, res)
		if err != nil {
			ledger = append(ledger, reservedLine{product: item.Product, res: res, uncertain: true})
			return ledger, err
		}

		if !ok {
			// Re-read to tell a deleted product from a short one.
			current, err := s.findProduct(ctx, item.Product)
			if err != nil {
				return ledger, err
			}

			// Stock handed back by a concurrent rollback gets one more try.
			if current.Stock >= item.Quantity {
				ok, err = s.decrement(ctx, item.Product, res)
				if err != nil {
					ledger = append(ledger, reservedLine{product: item.Product, res: res, uncertain: true})
					return ledger, err
				}
				if !ok {
					if current, err = s.findProduct(ctx, item.Product); err != nil {
						return ledger, err
					}
				}
			}

			if !ok {
				return ledger, &InsufficientStockError{
					ProductID: item.Product,
					Product:   current.Name,
					Available: min(current.Stock, item.Quantity-1),
					Requested: item.Quantity,
				}
			}
		}

		ledger = append(ledger, reservedLine{product: item.Product, res: res})
	}

	return ledger, nil
}

func (s *Service) decrement(ctx context.Context, id primitive.ObjectID, res models.StockReservation) (bool, error) {
	stepCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	ok, err := s.catalog.DecrementStock(stepCtx, id, res)
	if err != nil {
		return false, transient("decrement stock", err)
	}
	return ok, nil
}

func (s *Service) findProduct(ctx context.Context, id primitive.ObjectID) (models.Product, error) {
	stepCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	product, err := s.catalog.FindProduct(stepCtx, id)
	if errors.Is(err, ErrNotFound) {
		return models.Product{}, &NotFoundError{Resource: "product", ID: id}
	}
	if err != nil {
		return models.Product{}, transient("find product", err)
	}
	return product, nil
}

// compensate reverses the ledger newest first and deletes the order. It runs
// detached from ctx so a cancelled request still releases its stock.
func (s *Service) compensate(ctx context.Context, order models.Order, ledger []reservedLine) error {
	base := context.WithoutCancel(ctx)
	var (
		errs     []error
		released int
	)

	for i := len(ledger) - 1; i >= 0; i-- {
		line := ledger[i]
		stepCtx, cancel := context.WithTimeout(base, s.opts.StoreTimeout)
		restored, err := s.catalog.RestoreStock(stepCtx, line.product, line.res)
		cancel()
		switch {
		case err != nil:
			log.Printf("[ORDER] [ERROR] restore %d units of %s failed: %v", line.res.Quantity, line.product.Hex(), err)
			errs = append(errs, fmt.Errorf("restore stock for %s: %w", line.product.Hex(), err))
		case restored:
			released++
		case !line.uncertain:
			log.Printf("[ORDER] [ERROR] no reservation of %d units on %s to restore", line.res.Quantity, line.product.Hex())
			errs = append(errs, fmt.Errorf("restore stock for %s: reservation missing", line.product.Hex()))
		}
	}

	stepCtx, cancel := context.WithTimeout(base, s.opts.StoreTimeout)
	err := s.store.Delete(stepCtx, order.ID)
	cancel()
	if err != nil && !errors.Is(err, ErrNotFound) {
		log.Printf("[ORDER] [ERROR] delete of rolled back order %s failed: %v", order.ID.Hex(), err)
		errs = append(errs, fmt.Errorf("delete order %s: %w", order.ID.Hex(), err))
	}

	if len(errs) == 0 {
		log.Printf("[ORDER] [INFO] order %s rolled back, %d reservations released", order.ID.Hex(), released)
	}
	return errors.Join(errs...)
}

// releaseReservations clears the reservation records of a committed order.
// Stock stays taken; a failure only leaves stale records behind.
func (s *Service) releaseReservations(ctx context.Context, order models.Order) {
	products := lo.Uniq(lo.Map(order.OrderItems, func(item models.OrderItem, _ int) primitive.ObjectID {
		return item.Product
	}))

	stepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.StoreTimeout)
	defer cancel()
	if err := s.catalog.ReleaseReservations(stepCtx, order.ID, products); err != nil {
		log.Printf("[ORDER] [ERROR] clearing reservations of order %s failed: %v", order.ID.Hex(), err)
	}
}

/* =========================
   STATUS TRANSITION
========================= */

// UpdateStatus moves an order to status. Any of the known statuses may follow
// any other.
func (s *Service) UpdateStatus(ctx context.Context, id primitive.ObjectID, status string) (StatusUpdateResult, error) {
	next, err := models.ToOrderStatus(status)
	if err != nil {
		return StatusUpdateResult{}, &ValidationError{Details: []string{fmt.Sprintf("orderStatus %q is not a valid status", status)}}
	}

	stepCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	order, err := s.store.UpdateStatus(stepCtx, id, next, s.now().UTC())
	cancel()
	if errors.Is(err, ErrNotFound) {
		return StatusUpdateResult{}, &NotFoundError{Resource: "order", ID: id}
	}
	if err != nil {
		return StatusUpdateResult{}, transient("update order status", err)
	}

	log.Printf("[ORDER] [INFO] order %s moved to %s", order.ID.Hex(), order.OrderStatus)
	s.metrics.Count("StatusTransitions", 1)
	s.publish(ctx, EventOrderStatusChanged, order)

	return StatusUpdateResult{
		Order:    order,
		Warnings: s.dispatch(ctx, order, statusUpdateMessage, false),
	}, nil
}

/* =========================
   QUERIES
========================= */

func (s *Service) GetOrder(ctx context.Context, id primitive.ObjectID) (models.Order, error) {
	stepCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	order, err := s.store.FindByID(stepCtx, id)
	if errors.Is(err, ErrNotFound) {
		return models.Order{}, &NotFoundError{Resource: "order", ID: id}
	}
	if err != nil {
		return models.Order{}, transient("find order", err)
	}
	return order, nil
}

// ListUserOrders returns the user's orders, newest first.
func (s *Service) ListUserOrders(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error) {
	stepCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	list, err := s.store.ListByUser(stepCtx, userID)
	if err != nil {
		return nil, transient("list user orders", err)
	}
	return list, nil
}

func (s *Service) ListOrders(ctx context.Context, filter ListFilter) ([]models.Order, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}

	stepCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	list, total, err := s.store.List(stepCtx, filter)
	if err != nil {
		return nil, 0, transient("list orders", err)
	}
	return list, total, nil
}

func (s *Service) DeleteOrder(ctx context.Context, id primitive.ObjectID) error {
	stepCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	err := s.store.Delete(stepCtx, id)
	if errors.Is(err, ErrNotFound) {
		return &NotFoundError{Resource: "order", ID: id}
	}
	if err != nil {
		return transient("delete order", err)
	}
	log.Println("[ORDER] [INFO] order deleted:", id.Hex())
	return nil
}

/* =========================
   NOTIFICATION DISPATCH
========================= */

type messageBuilder func(contact Contact, order models.Order) (notify.Message, error)

// dispatch sends one email about order. Failures never undo the order; they
// come back as warnings.
func (s *Service) dispatch(ctx context.Context, order models.Order, build messageBuilder, attachReceipt bool) []string {
	var warnings []string
	warn := func(msg string, err error) {
		log.Printf("[NOTIFY] [ERROR] order %s: %s: %v", order.ID.Hex(), msg, err)
		s.metrics.Count("NotificationFailures", 1)
		warnings = append(warnings, msg)
	}

	if s.notifier == nil || s.users == nil {
		return nil
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.NotifyTimeout)
	defer cancel()

	contact, err := s.users.ResolveUserContact(notifyCtx, order.User)
	if err != nil {
		warn("notification not sent: customer contact unavailable", err)
		return warnings
	}

	msg, err := build(contact, order)
	if err != nil {
		warn("notification not sent: message could not be built", err)
		return warnings
	}
	msg.From = s.opts.MailFrom

	if attachReceipt && s.receipts != nil {
		pdf, err := s.receipts.Render(order)
		if err != nil {
			warn("receipt could not be attached", err)
		} else {
			msg.Attachments = append(msg.Attachments, notify.Attachment{
				Filename:    receiptFilename(order),
				ContentType: "application/pdf",
				Data:        pdf,
			})
		}
	}

	if err := s.notifier.Send(notifyCtx, msg); err != nil {
		warn("notification email could not be sent", err)
		return warnings
	}

	log.Printf("[NOTIFY] [INFO] %q sent for order %s", msg.Subject, order.ID.Hex())
	return warnings
}

func (s *Service) publish(ctx context.Context, eventType string, order models.Order) {
	if err := s.events.Publish(ctx, eventType, order); err != nil {
		log.Printf("[ORDER] [ERROR] publish %s for %s failed: %v", eventType, order.ID.Hex(), err)
	}
}

func receiptFilename(order models.Order) string {
	return "receipt-" + order.ID.Hex() + ".pdf"
}
