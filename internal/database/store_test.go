package database_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"blazestride/internal/database"
	"blazestride/internal/models"
	"blazestride/internal/orders"
	"blazestride/internal/reviews"
)

type storeSuite struct {
	suite.Suite

	container *mongodb.MongoDBContainer
	client    *mongo.Client
	db        *mongo.Database

	orders   *database.OrderStore
	products *database.ProductStore
	users    *database.UserStore
	reviews  *database.ReviewStore
}

func TestStoreSuite(t *testing.T) {
	testcontainers.SkipIfProviderIsNotHealthy(t)

	suite.Run(t, new(storeSuite))
}

func (suite *storeSuite) SetupSuite() {
	ctx := suite.T().Context()

	var err error
	suite.container, err = mongodb.Run(ctx, "mongo:7")
	suite.Require().NoError(err)

	uri, err := suite.container.ConnectionString(ctx)
	suite.Require().NoError(err)

	suite.client, err = database.Connect(uri)
	suite.Require().NoError(err)

	suite.db = suite.client.Database("blazestride_test")
	suite.Require().NoError(database.EnsureIndexes(suite.db))

	suite.orders = database.NewOrderStore(suite.db)
	suite.products = database.NewProductStore(suite.db)
	suite.users = database.NewUserStore(suite.db)
	suite.reviews = database.NewReviewStore(suite.db)
}

func (suite *storeSuite) TearDownSuite() {
	ctx := context.Background()

	if suite.client != nil {
		suite.NoError(suite.client.Disconnect(ctx))
	}
	if suite.container != nil {
		suite.NoError(suite.container.Terminate(ctx))
	}
}

func (suite *storeSuite) TearDownTest() {
	ctx := context.Background()
	for _, name := range []string{
		database.OrdersCollection,
		database.ProductsCollection,
		database.UsersCollection,
		database.ReviewsCollection,
	} {
		_, err := suite.db.Collection(name).DeleteMany(ctx, bson.M{})
		suite.NoError(err)
	}
}

func (suite *storeSuite) insertProduct(stock int) models.Product {
	product := models.Product{
		ID:        primitive.NewObjectID(),
		Name:      gofakeit.ProductName(),
		Category:  models.StringList{"daily"},
		Brand:     "hoka",
		Price:     gofakeit.Price(50, 250),
		Stock:     stock,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	_, err := suite.db.Collection(database.ProductsCollection).InsertOne(suite.T().Context(), product)
	suite.Require().NoError(err)
	return product
}

func reservation(order primitive.ObjectID, line, qty int) models.StockReservation {
	return models.StockReservation{Order: order, Line: line, Quantity: qty, At: time.Now().UTC()}
}

func (suite *storeSuite) TestDecrementStock() {
	product := suite.insertProduct(3)
	order := primitive.NewObjectID()

	tests := []struct {
		name      string
		id        primitive.ObjectID
		res       models.StockReservation
		wantOK    bool
		wantStock int
		wantHeld  int
	}{
		{name: "enough stock: ok", id: product.ID, res: reservation(order, 0, 2), wantOK: true, wantStock: 1, wantHeld: 1},
		{name: "same reservation again: no change", id: product.ID, res: reservation(order, 0, 1), wantOK: false, wantStock: 1, wantHeld: 1},
		{name: "more than remaining: no change", id: product.ID, res: reservation(order, 1, 2), wantOK: false, wantStock: 1, wantHeld: 1},
		{name: "last unit: ok", id: product.ID, res: reservation(order, 1, 1), wantOK: true, wantStock: 0, wantHeld: 2},
		{name: "unknown product: no match", id: primitive.NewObjectID(), res: reservation(order, 2, 1), wantOK: false, wantStock: 0, wantHeld: 2},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			t := suite.T()
			ctx := t.Context()

			ok, err := suite.products.DecrementStock(ctx, tt.id, tt.res)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)

			current, err := suite.products.FindProduct(ctx, product.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStock, current.Stock)
			assert.Len(t, current.Reservations, tt.wantHeld)
		})
	}
}

func (suite *storeSuite) TestConcurrentDecrementNeverOversells() {
	t := suite.T()
	ctx := t.Context()

	product := suite.insertProduct(5)

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := suite.products.DecrementStock(ctx, product.ID, reservation(primitive.NewObjectID(), 0, 1))
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	current, err := suite.products.FindProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(5), wins.Load())
	assert.Equal(t, 0, current.Stock)
	assert.False(t, current.InStock)
}

func (suite *storeSuite) TestRestoreStock() {
	t := suite.T()
	ctx := t.Context()

	product := suite.insertProduct(5)
	order := primitive.NewObjectID()
	held := reservation(order, 0, 4)

	ok, err := suite.products.DecrementStock(ctx, product.ID, held)
	require.NoError(t, err)
	require.True(t, ok)

	restored, err := suite.products.RestoreStock(ctx, product.ID, held)
	require.NoError(t, err)
	assert.True(t, restored)

	current, err := suite.products.FindProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, current.Stock)
	assert.Empty(t, current.Reservations)

	// A second restore, or one for a decrement that never landed, is a no-op.
	for _, res := range []models.StockReservation{held, reservation(order, 1, 2)} {
		restored, err = suite.products.RestoreStock(ctx, product.ID, res)
		require.NoError(t, err)
		assert.False(t, restored)
	}

	restored, err = suite.products.RestoreStock(ctx, primitive.NewObjectID(), held)
	require.NoError(t, err)
	assert.False(t, restored)

	current, err = suite.products.FindProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, current.Stock)
}

func (suite *storeSuite) TestReleaseReservations() {
	t := suite.T()
	ctx := t.Context()

	first := suite.insertProduct(5)
	second := suite.insertProduct(5)
	committed := primitive.NewObjectID()
	pending := primitive.NewObjectID()

	for _, step := range []struct {
		id  primitive.ObjectID
		res models.StockReservation
	}{
		{first.ID, reservation(committed, 0, 1)},
		{second.ID, reservation(committed, 1, 2)},
		{second.ID, reservation(pending, 0, 1)},
	} {
		ok, err := suite.products.DecrementStock(ctx, step.id, step.res)
		require.NoError(t, err)
		require.True(t, ok)
	}

	require.NoError(t, suite.products.ReleaseReservations(ctx, committed, []primitive.ObjectID{first.ID, second.ID}))

	current, err := suite.products.FindProduct(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, current.Stock, "stock stays taken")
	assert.Empty(t, current.Reservations)

	current, err = suite.products.FindProduct(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, current.Stock)
	require.Len(t, current.Reservations, 1)
	assert.Equal(t, pending, current.Reservations[0].Order)
}

func (suite *storeSuite) TestOrderLifecycle() {
	t := suite.T()
	ctx := t.Context()

	user := primitive.NewObjectID()
	created := time.Now().UTC().Truncate(time.Millisecond)
	order := &models.Order{
		User: user,
		OrderItems: []models.OrderItem{{
			Product:  primitive.NewObjectID(),
			Name:     "Clifton 9",
			Price:    145,
			Quantity: 1,
		}},
		ReceiverName: gofakeit.Name(),
		ItemsPrice:   145,
		TotalPrice:   145,
		OrderStatus:  models.OrderStatusToConfirm,
		CreatedAt:    created,
		UpdatedAt:    created,
	}

	require.NoError(t, suite.orders.Insert(ctx, order))
	require.False(t, order.ID.IsZero())

	found, err := suite.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ReceiverName, found.ReceiverName)
	assert.Equal(t, models.OrderStatusToConfirm, found.OrderStatus)

	updated, err := suite.orders.UpdateStatus(ctx, order.ID, models.OrderStatusToShip, created.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusToShip, updated.OrderStatus)
	assert.Equal(t, created.Add(time.Minute), updated.UpdatedAt.UTC())

	mine, err := suite.orders.ListByUser(ctx, user)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	list, total, err := suite.orders.List(ctx, orders.ListFilter{Status: models.OrderStatusToShip, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, list, 1)

	require.NoError(t, suite.orders.Delete(ctx, order.ID))

	_, err = suite.orders.FindByID(ctx, order.ID)
	assert.ErrorIs(t, err, orders.ErrNotFound)

	_, err = suite.orders.UpdateStatus(ctx, order.ID, models.OrderStatusReceived, created)
	assert.ErrorIs(t, err, orders.ErrNotFound)

	assert.ErrorIs(t, suite.orders.Delete(ctx, order.ID), orders.ErrNotFound)
}

func (suite *storeSuite) TestResolveUserContact() {
	t := suite.T()
	ctx := t.Context()

	user := models.User{
		ID:        primitive.NewObjectID(),
		FirstName: gofakeit.FirstName(),
		LastName:  gofakeit.LastName(),
		Email:     gofakeit.Email(),
		Role:      models.RoleCustomer,
	}
	_, err := suite.db.Collection(database.UsersCollection).InsertOne(ctx, user)
	require.NoError(t, err)

	contact, err := suite.users.ResolveUserContact(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.Contact{FirstName: user.FirstName, LastName: user.LastName, Email: user.Email}, contact)

	_, err = suite.users.ResolveUserContact(ctx, primitive.NewObjectID())
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func (suite *storeSuite) TestReviewStore() {
	t := suite.T()
	ctx := t.Context()

	product := primitive.NewObjectID()
	first := &models.Review{User: primitive.NewObjectID(), Product: product, Order: primitive.NewObjectID(), Rating: 5}
	second := &models.Review{User: primitive.NewObjectID(), Product: product, Order: primitive.NewObjectID(), Rating: 2}

	require.NoError(t, suite.reviews.Save(ctx, first))
	require.NoError(t, suite.reviews.Save(ctx, second))

	dup := &models.Review{User: first.User, Product: product, Order: first.Order, Rating: 1}
	assert.ErrorIs(t, suite.reviews.Save(ctx, dup), reviews.ErrDuplicate)

	avg, count, err := suite.reviews.RatingStats(ctx, product)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.InDelta(t, 3.5, avg, 0.0001)

	first.Rating = 3
	require.NoError(t, suite.reviews.Save(ctx, first))

	found, err := suite.reviews.Find(ctx, first.User, product, first.Order)
	require.NoError(t, err)
	assert.Equal(t, 3, found.Rating)

	require.NoError(t, suite.reviews.Delete(ctx, second.ID))

	list, err := suite.reviews.ListByProduct(ctx, product)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	avg, count, err = suite.reviews.RatingStats(ctx, primitive.NewObjectID())
	require.NoError(t, err)
	assert.Zero(t, avg)
	assert.Zero(t, count)
}
