package orders_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"blazestride/internal/models"
	"blazestride/internal/notify"
	"blazestride/internal/orders"
	"blazestride/internal/orders/mocks"
	"blazestride/internal/orders/ordertest"
)

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]float64
}

func (m *countingMetrics) Count(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]float64{}
	}
	m.counts[name] += value
}

func (m *countingMetrics) get(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

type fixture struct {
	store   *ordertest.Store
	catalog *ordertest.Catalog
	users   *ordertest.Users
	outbox  *ordertest.Outbox
	metrics *countingMetrics
	svc     *orders.Service
	userID  primitive.ObjectID
	contact orders.Contact
}

func newFixture(t *testing.T, products ...models.Product) *fixture {
	t.Helper()
	return newFixtureWith(t, orders.Dependencies{}, orders.Options{ValidateTotals: true}, products...)
}

// newFixtureWith fills any collaborator left nil in deps with an in-memory one.
func newFixtureWith(t *testing.T, deps orders.Dependencies, opts orders.Options, products ...models.Product) *fixture {
	t.Helper()

	f := &fixture{
		store:   ordertest.NewStore(),
		catalog: ordertest.NewCatalog(products...),
		users:   ordertest.NewUsers(),
		outbox:  &ordertest.Outbox{},
		metrics: &countingMetrics{},
		userID:  primitive.NewObjectID(),
		contact: orders.Contact{
			FirstName: gofakeit.FirstName(),
			LastName:  gofakeit.LastName(),
			Email:     gofakeit.Email(),
		},
	}
	f.users.Add(f.userID, f.contact)

	if deps.Store == nil {
		deps.Store = f.store
	}
	if deps.Catalog == nil {
		deps.Catalog = f.catalog
	}
	if deps.Users == nil {
		deps.Users = f.users
	}
	if deps.Notifier == nil {
		deps.Notifier = f.outbox
	}
	deps.Metrics = f.metrics
	if opts.StoreTimeout == 0 {
		opts.StoreTimeout = time.Second
	}

	f.svc = orders.NewService(deps, opts).WithClock(func() time.Time { return fixedNow })
	return f
}

func fakeProduct(stock int, price float64) models.Product {
	return models.Product{
		ID:       primitive.NewObjectID(),
		Name:     gofakeit.ProductName(),
		Brand:    "nike",
		Category: models.StringList{"daily"},
		Price:    price,
		Stock:    stock,
	}
}

func line(p models.Product, qty int) orders.OrderLine {
	return orders.OrderLine{
		Product:  p.ID.Hex(),
		Name:     p.Name,
		Price:    lo.ToPtr(p.Price),
		Quantity: qty,
		Image:    "https://img.example.com/" + p.ID.Hex() + ".jpg",
	}
}

// request builds a payload whose totals agree with its lines.
func (f *fixture) request(lines ...orders.OrderLine) orders.PlaceOrderRequest {
	var items float64
	for _, l := range lines {
		items += *l.Price * float64(l.Quantity)
	}
	return orders.PlaceOrderRequest{
		User:       f.userID,
		OrderItems: lines,
		ShippingInfo: orders.ShippingInput{
			Address:    gofakeit.Street(),
			City:       gofakeit.City(),
			PostalCode: gofakeit.Zip(),
			PhoneNo:    gofakeit.Phone(),
			Country:    "US",
		},
		ReceiverName:  f.contact.Name(),
		ItemsPrice:    lo.ToPtr(items),
		TaxPrice:      lo.ToPtr(0.0),
		ShippingPrice: lo.ToPtr(10.0),
		TotalPrice:    lo.ToPtr(items + 10),
	}
}

/* =========================
   PLACEMENT
========================= */

func TestPlaceOrderCommitsOrder(t *testing.T) {
	pegasus := fakeProduct(5, 130)
	adios := fakeProduct(3, 250)
	f := newFixture(t, pegasus, adios)

	req := f.request(line(pegasus, 2), line(adios, 1))
	result, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)

	order := result.Order
	assert.False(t, order.ID.IsZero())
	assert.Equal(t, models.OrderStatusToConfirm, order.OrderStatus)
	assert.Equal(t, fixedNow, order.CreatedAt)

	assert.Equal(t, 3, f.catalog.Stock(pegasus.ID))
	assert.Equal(t, 2, f.catalog.Stock(adios.ID))
	assert.Zero(t, f.catalog.Held(pegasus.ID), "reservations are cleared on commit")
	assert.Zero(t, f.catalog.Held(adios.ID))

	stored, err := f.svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)

	expected := models.Order{
		User: f.userID,
		OrderItems: []models.OrderItem{
			{Product: pegasus.ID, Name: pegasus.Name, Price: 130, Quantity: 2, Image: req.OrderItems[0].Image},
			{Product: adios.ID, Name: adios.Name, Price: 250, Quantity: 1, Image: req.OrderItems[1].Image},
		},
		ShippingInfo: models.ShippingInfo{
			Address:    req.ShippingInfo.Address,
			City:       req.ShippingInfo.City,
			PostalCode: req.ShippingInfo.PostalCode,
			PhoneNo:    req.ShippingInfo.PhoneNo,
			Country:    "US",
		},
		ReceiverName:  req.ReceiverName,
		ItemsPrice:    510,
		ShippingPrice: 10,
		TotalPrice:    520,
		OrderStatus:   models.OrderStatusToConfirm,
	}
	if diff := cmp.Diff(expected, stored, cmpopts.IgnoreFields(models.Order{}, "ID", "CreatedAt", "UpdatedAt")); diff != "" {
		t.Fatalf("stored order mismatch (-want +got):\n%s", diff)
	}

	sent := f.outbox.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, f.contact.Email, sent[0].To)
	assert.Equal(t, "Order Confirmation - Order #"+order.ShortID(), sent[0].Subject)
	assert.Contains(t, sent[0].HTML, pegasus.Name)
	assert.Empty(t, sent[0].Files)

	assert.Equal(t, float64(1), f.metrics.get("OrdersPlaced"))
}

func TestPlaceOrderKeepsSubmittedPrices(t *testing.T) {
	product := fakeProduct(4, 160)
	f := newFixture(t, product)

	// catalog price changed after the customer saw the product
	l := line(product, 1)
	l.Price = lo.ToPtr(149.99)

	result, err := f.svc.PlaceOrder(context.Background(), f.request(l))
	require.NoError(t, err)
	assert.Equal(t, 149.99, result.Order.OrderItems[0].Price)
	assert.InDelta(t, 159.99, result.Order.TotalPrice, 0.001)
}

func TestPlaceOrderRollsBackOnInsufficientStock(t *testing.T) {
	first := fakeProduct(5, 100)
	second := fakeProduct(1, 50)
	f := newFixture(t, first, second)

	_, err := f.svc.PlaceOrder(context.Background(), f.request(line(first, 2), line(second, 3)))
	require.Error(t, err)

	var stockErr *orders.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, second.ID, stockErr.ProductID)
	assert.Equal(t, 1, stockErr.Available)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, fmt.Sprintf("Insufficient stock for %s. Available: 1, Requested: 3", second.Name), stockErr.Error())

	assert.Equal(t, 5, f.catalog.Stock(first.ID), "first line must be restored")
	assert.Equal(t, 1, f.catalog.Stock(second.ID))
	assert.Equal(t, 0, f.store.Len())
	assert.Len(t, f.store.Deleted, 1)
	assert.Empty(t, f.outbox.Sent())
	assert.Equal(t, float64(1), f.metrics.get("OrdersRejected"))
}

func TestPlaceOrderRollsBackOnMissingProduct(t *testing.T) {
	known := fakeProduct(2, 80)
	missing := fakeProduct(9, 80)
	f := newFixture(t, known)

	_, err := f.svc.PlaceOrder(context.Background(), f.request(line(known, 1), line(missing, 1)))
	require.Error(t, err)

	var notFound *orders.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "product", notFound.Resource)
	assert.Equal(t, missing.ID, notFound.ID)
	assert.ErrorIs(t, err, orders.ErrNotFound)

	assert.Equal(t, 2, f.catalog.Stock(known.ID))
	assert.Equal(t, 0, f.store.Len())
	assert.Empty(t, f.outbox.Sent())
}

func TestPlaceOrderProductDeletedDuringReservation(t *testing.T) {
	product := fakeProduct(2, 80)
	f := newFixture(t, product)
	f.catalog.BeforeDecrement = func(id primitive.ObjectID) { f.catalog.Remove(id) }

	_, err := f.svc.PlaceOrder(context.Background(), f.request(line(product, 1)))

	var notFound *orders.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, 0, f.store.Len())
}

func TestPlaceOrderRejectsInvalidInput(t *testing.T) {
	product := fakeProduct(5, 100)

	tests := []struct {
		name   string
		mutate func(*orders.PlaceOrderRequest)
		detail string
	}{
		{
			name:   "no lines",
			mutate: func(r *orders.PlaceOrderRequest) { r.OrderItems = []orders.OrderLine{} },
			detail: "orderItems must contain at least 1",
		},
		{
			name:   "zero quantity",
			mutate: func(r *orders.PlaceOrderRequest) { r.OrderItems[0].Quantity = 0 },
			detail: "orderItems[0].quantity is required",
		},
		{
			name:   "bad product id",
			mutate: func(r *orders.PlaceOrderRequest) { r.OrderItems[0].Product = "shoe-1" },
			detail: "orderItems[0].product must be a valid id",
		},
		{
			name:   "negative price",
			mutate: func(r *orders.PlaceOrderRequest) { r.OrderItems[0].Price = lo.ToPtr(-1.0) },
			detail: "orderItems[0].price must be greater than or equal to 0",
		},
		{
			name:   "missing city",
			mutate: func(r *orders.PlaceOrderRequest) { r.ShippingInfo.City = "" },
			detail: "shippingInfo.city is required",
		},
		{
			name:   "missing receiver",
			mutate: func(r *orders.PlaceOrderRequest) { r.ReceiverName = "" },
			detail: "receiverName is required",
		},
		{
			name:   "total does not add up",
			mutate: func(r *orders.PlaceOrderRequest) { r.TotalPrice = lo.ToPtr(1.0) },
			detail: "totalPrice does not match the order lines",
		},
		{
			name:   "items price does not add up",
			mutate: func(r *orders.PlaceOrderRequest) { *r.ItemsPrice += 5; *r.TotalPrice += 5 },
			detail: "itemsPrice does not match the order lines",
		},
		{
			name:   "missing line price",
			mutate: func(r *orders.PlaceOrderRequest) { r.OrderItems[0].Price = nil },
			detail: "orderItems[0].price is required",
		},
		{
			name:   "missing total",
			mutate: func(r *orders.PlaceOrderRequest) { r.TotalPrice = nil },
			detail: "totalPrice is required",
		},
		{
			name: "all amounts missing",
			mutate: func(r *orders.PlaceOrderRequest) {
				r.OrderItems[0].Price = nil
				r.ItemsPrice, r.TaxPrice, r.ShippingPrice, r.TotalPrice = nil, nil, nil, nil
			},
			detail: "shippingPrice is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, product)
			req := f.request(line(product, 1))
			tt.mutate(&req)

			_, err := f.svc.PlaceOrder(context.Background(), req)

			var validationErr *orders.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Contains(t, validationErr.Details, tt.detail)
			assert.Equal(t, 0, f.store.Len())
			assert.Equal(t, 5, f.catalog.Stock(product.ID))
			assert.Empty(t, f.outbox.Sent())
		})
	}
}

func TestPlaceOrderTotalsCheckCanBeDisabled(t *testing.T) {
	product := fakeProduct(5, 100)
	f := newFixtureWith(t, orders.Dependencies{}, orders.Options{ValidateTotals: false}, product)

	req := f.request(line(product, 1))
	req.TotalPrice = lo.ToPtr(1.0)

	result, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, float64(1), result.Order.TotalPrice)
}

func TestPlaceOrderTransientDecrementFailure(t *testing.T) {
	first := fakeProduct(5, 100)
	second := fakeProduct(5, 100)
	f := newFixture(t, first, second)
	f.catalog.DecrementErr[second.ID] = errors.New("connection reset")

	_, err := f.svc.PlaceOrder(context.Background(), f.request(line(first, 1), line(second, 1)))
	require.Error(t, err)
	assert.ErrorIs(t, err, orders.ErrTransient)
	assert.NotContains(t, err.Error(), "compensation")

	assert.Equal(t, 5, f.catalog.Stock(first.ID))
	assert.Equal(t, 5, f.catalog.Stock(second.ID))
	assert.Equal(t, 0, f.store.Len())
}

func TestPlaceOrderRestoresDecrementWhoseAckWasLost(t *testing.T) {
	first := fakeProduct(5, 100)
	second := fakeProduct(5, 100)
	f := newFixture(t, first, second)
	f.catalog.LostAck[second.ID] = context.DeadlineExceeded

	_, err := f.svc.PlaceOrder(context.Background(), f.request(line(first, 1), line(second, 2)))
	require.Error(t, err)
	assert.ErrorIs(t, err, orders.ErrTransient)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotContains(t, err.Error(), "compensation")

	assert.Equal(t, 5, f.catalog.Stock(first.ID))
	assert.Equal(t, 5, f.catalog.Stock(second.ID), "applied decrement must be reversed")
	assert.Zero(t, f.catalog.Held(first.ID))
	assert.Zero(t, f.catalog.Held(second.ID))
	assert.Equal(t, 0, f.store.Len())
}

// racingCatalog lets a test decide what each decrement does.
type racingCatalog struct {
	*ordertest.Catalog
	decrement func(ctx context.Context, id primitive.ObjectID, res models.StockReservation) (bool, error)
}

func (c racingCatalog) DecrementStock(ctx context.Context, id primitive.ObjectID, res models.StockReservation) (bool, error) {
	return c.decrement(ctx, id, res)
}

func TestPlaceOrderRetriesAfterConcurrentRestore(t *testing.T) {
	product := fakeProduct(1, 100)
	catalog := ordertest.NewCatalog(product)

	var calls atomic.Int32
	racing := racingCatalog{Catalog: catalog}
	racing.decrement = func(ctx context.Context, id primitive.ObjectID, res models.StockReservation) (bool, error) {
		ok, err := catalog.DecrementStock(ctx, id, res)
		if calls.Add(1) == 1 {
			// another order rolls back right after our attempt
			catalog.SetStock(id, 3)
		}
		return ok, err
	}
	f := newFixtureWith(t, orders.Dependencies{Catalog: racing}, orders.Options{ValidateTotals: true})

	result, err := f.svc.PlaceOrder(context.Background(), f.request(line(product, 3)))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 0, catalog.Stock(product.ID))
	assert.Equal(t, 3, result.Order.OrderItems[0].Quantity)
}

func TestPlaceOrderNeverReportsEnoughStockAsShort(t *testing.T) {
	product := fakeProduct(3, 100)
	catalog := ordertest.NewCatalog(product)

	racing := racingCatalog{Catalog: catalog}
	racing.decrement = func(context.Context, primitive.ObjectID, models.StockReservation) (bool, error) {
		return false, nil
	}
	f := newFixtureWith(t, orders.Dependencies{Catalog: racing}, orders.Options{ValidateTotals: true})

	_, err := f.svc.PlaceOrder(context.Background(), f.request(line(product, 3)))

	var stockErr *orders.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Less(t, stockErr.Available, stockErr.Requested)
}

func TestPlaceOrderInsertFailure(t *testing.T) {
	product := fakeProduct(5, 100)
	f := newFixture(t, product)
	f.store.InsertErr = context.DeadlineExceeded

	_, err := f.svc.PlaceOrder(context.Background(), f.request(line(product, 1)))
	assert.ErrorIs(t, err, orders.ErrTransient)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 5, f.catalog.Stock(product.ID))
}

func TestPlaceOrderCompensatesAfterCancellation(t *testing.T) {
	first := fakeProduct(5, 100)
	second := fakeProduct(5, 100)
	f := newFixture(t, first, second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.catalog.BeforeDecrement = func(id primitive.ObjectID) {
		if id == second.ID {
			cancel()
		}
	}

	_, err := f.svc.PlaceOrder(ctx, f.request(line(first, 2), line(second, 1)))
	require.Error(t, err)
	assert.ErrorIs(t, err, orders.ErrTransient)

	assert.Equal(t, 5, f.catalog.Stock(first.ID))
	assert.Equal(t, 0, f.store.Len())
}

func TestPlaceOrderReportsCompensationFailure(t *testing.T) {
	first := fakeProduct(5, 100)
	second := fakeProduct(0, 100)
	f := newFixture(t, first, second)
	f.catalog.RestoreErr = errors.New("write concern timeout")

	_, err := f.svc.PlaceOrder(context.Background(), f.request(line(first, 1), line(second, 1)))
	require.Error(t, err)

	var stockErr *orders.InsufficientStockError
	assert.ErrorAs(t, err, &stockErr)
	assert.Contains(t, err.Error(), "compensation")
	assert.Equal(t, float64(1), f.metrics.get("CompensationFailures"))
	assert.Equal(t, 0, f.store.Len(), "order is still removed")
}

/* =========================
   NOTIFICATION
========================= */

func TestPlaceOrderNotificationFailureIsNonFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	notifier.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		Return(errors.New("queue unavailable")).
		Times(1)

	product := fakeProduct(3, 90)
	f := newFixtureWith(t, orders.Dependencies{Notifier: notifier}, orders.Options{ValidateTotals: true}, product)

	result, err := f.svc.PlaceOrder(context.Background(), f.request(line(product, 1)))
	require.NoError(t, err)
	assert.Equal(t, []string{"notification email could not be sent"}, result.Warnings)
	assert.Equal(t, 1, f.store.Len())
	assert.Equal(t, 2, f.catalog.Stock(product.ID))
	assert.Equal(t, float64(1), f.metrics.get("NotificationFailures"))
}

func TestPlaceOrderUnknownContactIsNonFatal(t *testing.T) {
	product := fakeProduct(3, 90)
	f := newFixture(t, product)
	f.users.Err = errors.New("users collection unavailable")

	result, err := f.svc.PlaceOrder(context.Background(), f.request(line(product, 1)))
	require.NoError(t, err)
	assert.Len(t, result.Warnings, 1)
	assert.Empty(t, f.outbox.Sent())
	assert.Equal(t, 1, f.store.Len())
}

func TestPlaceOrderAttachesReceipt(t *testing.T) {
	ctrl := gomock.NewController(t)
	renderer := mocks.NewMockReceiptRenderer(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)

	renderer.EXPECT().Render(gomock.Any()).Return([]byte("%PDF-1.3"), nil)

	var got notify.Message
	notifier.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg notify.Message) error {
			got = msg
			return nil
		})

	product := fakeProduct(3, 90)
	f := newFixtureWith(t,
		orders.Dependencies{Notifier: notifier, Receipts: renderer},
		orders.Options{ValidateTotals: true, AttachReceipt: true, MailFrom: "shop@blazestride.com"},
		product,
	)

	result, err := f.svc.PlaceOrder(context.Background(), f.request(line(product, 1)))
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)

	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "receipt-"+result.Order.ID.Hex()+".pdf", got.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", got.Attachments[0].ContentType)
	assert.Equal(t, "shop@blazestride.com", got.From)
}

func TestPlaceOrderSendsWithoutReceiptWhenRenderFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	renderer := mocks.NewMockReceiptRenderer(ctrl)
	renderer.EXPECT().Render(gomock.Any()).Return(nil, errors.New("font missing"))

	product := fakeProduct(3, 90)
	f := newFixtureWith(t,
		orders.Dependencies{Receipts: renderer},
		orders.Options{ValidateTotals: true, AttachReceipt: true},
		product,
	)

	result, err := f.svc.PlaceOrder(context.Background(), f.request(line(product, 1)))
	require.NoError(t, err)
	assert.Equal(t, []string{"receipt could not be attached"}, result.Warnings)

	sent := f.outbox.Sent()
	require.Len(t, sent, 1)
	assert.Empty(t, sent[0].Files)
}

/* =========================
   CONCURRENCY
========================= */

func TestConcurrentPlacementsNeverOversell(t *testing.T) {
	defer goleak.VerifyNone(t)

	const (
		stock   = 5
		buyers  = 25
		perLine = 1
	)
	product := fakeProduct(stock, 130)
	f := newFixture(t, product)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.PlaceOrder(context.Background(), f.request(line(product, perLine)))
			var stockErr *orders.InsufficientStockError
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.As(err, &stockErr):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(stock), succeeded.Load())
	assert.Equal(t, int32(buyers-stock), rejected.Load())
	assert.Equal(t, 0, f.catalog.Stock(product.ID))
	assert.Equal(t, stock, f.store.Len())
}

func TestConcurrentLastUnit(t *testing.T) {
	defer goleak.VerifyNone(t)

	product := fakeProduct(1, 250)
	f := newFixture(t, product)

	var (
		wg      sync.WaitGroup
		results [2]error
	)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.svc.PlaceOrder(context.Background(), f.request(line(product, 1)))
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range results {
		if err != nil {
			var stockErr *orders.InsufficientStockError
			require.ErrorAs(t, err, &stockErr)
			assert.Equal(t, 0, stockErr.Available)
			failures++
		}
	}
	assert.Equal(t, 1, failures)
	assert.Equal(t, 0, f.catalog.Stock(product.ID))
	assert.Equal(t, 1, f.store.Len())
}

func TestConcurrentPlacementsSplitRemainingStock(t *testing.T) {
	defer goleak.VerifyNone(t)

	product := fakeProduct(5, 120)
	f := newFixture(t, product)

	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results [2]error
	)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, results[i] = f.svc.PlaceOrder(context.Background(), f.request(line(product, 3)))
		}(i)
	}
	close(start)
	wg.Wait()

	var failed []*orders.InsufficientStockError
	for _, err := range results {
		if err == nil {
			continue
		}
		var stockErr *orders.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		failed = append(failed, stockErr)
	}
	require.Len(t, failed, 1, "exactly one placement succeeds")
	assert.Equal(t, 2, failed[0].Available)
	assert.Equal(t, 3, failed[0].Requested)
	assert.Equal(t, 2, f.catalog.Stock(product.ID))
	assert.Equal(t, 1, f.store.Len())
}

/* =========================
   STATUS TRANSITION
========================= */

func TestUpdateStatusNotifiesOnce(t *testing.T) {
	product := fakeProduct(3, 90)
	f := newFixture(t, product)

	placed, err := f.svc.PlaceOrder(context.Background(), f.request(line(product, 1)))
	require.NoError(t, err)

	updatedAt := fixedNow.Add(time.Hour)
	f.svc.WithClock(func() time.Time { return updatedAt })

	result, err := f.svc.UpdateStatus(context.Background(), placed.Order.ID, "To Ship")
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, models.OrderStatusToShip, result.Order.OrderStatus)
	assert.Equal(t, updatedAt, result.Order.UpdatedAt)

	sent := f.outbox.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "Order Status Update - Order #"+placed.Order.ShortID(), sent[1].Subject)
	assert.Contains(t, sent[1].HTML, "To Ship")
	assert.Contains(t, sent[1].HTML, "We will keep you updated")
}

func TestUpdateStatusReceivedThanksCustomer(t *testing.T) {
	f := newFixture(t)
	order := f.store.Put(models.Order{User: f.userID, OrderStatus: models.OrderStatusToDeliver})

	_, err := f.svc.UpdateStatus(context.Background(), order.ID, "Received")
	require.NoError(t, err)

	sent := f.outbox.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].HTML, "Thank you for your purchase!")
}

func TestUpdateStatusAllowsAnyTransition(t *testing.T) {
	f := newFixture(t)
	order := f.store.Put(models.Order{User: f.userID, OrderStatus: models.OrderStatusCancelled})

	result, err := f.svc.UpdateStatus(context.Background(), order.ID, "To Confirm")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusToConfirm, result.Order.OrderStatus)
}

func TestUpdateStatusErrors(t *testing.T) {
	f := newFixture(t)
	order := f.store.Put(models.Order{User: f.userID, OrderStatus: models.OrderStatusToConfirm})

	_, err := f.svc.UpdateStatus(context.Background(), order.ID, "Shipped")
	var validationErr *orders.ValidationError
	assert.ErrorAs(t, err, &validationErr)

	_, err = f.svc.UpdateStatus(context.Background(), primitive.NewObjectID(), "To Ship")
	assert.ErrorIs(t, err, orders.ErrNotFound)

	assert.Empty(t, f.outbox.Sent())
	stored, err := f.svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusToConfirm, stored.OrderStatus)
}

func TestUpdateStatusNotificationFailureKeepsTransition(t *testing.T) {
	f := newFixture(t)
	f.outbox.Err = errors.New("queue unavailable")
	order := f.store.Put(models.Order{User: f.userID, OrderStatus: models.OrderStatusToShip})

	result, err := f.svc.UpdateStatus(context.Background(), order.ID, "To Deliver")
	require.NoError(t, err)
	assert.Len(t, result.Warnings, 1)

	stored, err := f.svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusToDeliver, stored.OrderStatus)
}

/* =========================
   QUERIES
========================= */

func TestGetOrderIsDeterministic(t *testing.T) {
	product := fakeProduct(3, 90)
	f := newFixture(t, product)

	placed, err := f.svc.PlaceOrder(context.Background(), f.request(line(product, 2)))
	require.NoError(t, err)

	first, err := f.svc.GetOrder(context.Background(), placed.Order.ID)
	require.NoError(t, err)
	second, err := f.svc.GetOrder(context.Background(), placed.Order.ID)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
	assert.Equal(t, string(a), string(b))
}

func TestListOrdersFiltersAndPaginates(t *testing.T) {
	f := newFixture(t)
	other := primitive.NewObjectID()
	for i := 0; i < 5; i++ {
		f.store.Put(models.Order{User: f.userID, OrderStatus: models.OrderStatusToShip, CreatedAt: fixedNow.Add(time.Duration(i) * time.Minute)})
	}
	f.store.Put(models.Order{User: other, OrderStatus: models.OrderStatusReceived, CreatedAt: fixedNow})

	list, total, err := f.svc.ListOrders(context.Background(), orders.ListFilter{Status: models.OrderStatusToShip, Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, list, 2)
	assert.True(t, list[0].CreatedAt.After(list[1].CreatedAt))

	mine, err := f.svc.ListUserOrders(context.Background(), other)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestDeleteOrder(t *testing.T) {
	f := newFixture(t)
	order := f.store.Put(models.Order{User: f.userID})

	require.NoError(t, f.svc.DeleteOrder(context.Background(), order.ID))
	assert.ErrorIs(t, f.svc.DeleteOrder(context.Background(), order.ID), orders.ErrNotFound)
}
