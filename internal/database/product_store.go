package database

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"blazestride/internal/models"
)

// ProductStore is the stock side of order placement and the rating sink of
// reviews.
type ProductStore struct {
	coll *mongo.Collection
}

func NewProductStore(db *mongo.Database) *ProductStore {
	return &ProductStore{coll: db.Collection(ProductsCollection)}
}

func (s *ProductStore) FindProduct(ctx context.Context, id primitive.ObjectID) (models.Product, error) {
	var product models.Product
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&product); err != nil {
		return models.Product{}, notFound(err)
	}
	product.InStock = product.Stock > 0
	return product, nil
}

// DecrementStock applies the decrement only while stock covers the
// reservation and the product does not already hold it, so concurrent orders
// can never drive stock negative and a retried write is never applied twice.
func (s *ProductStore) DecrementStock(ctx context.Context, id primitive.ObjectID, res models.StockReservation) (bool, error) {
	filter := bson.M{
		"_id":   id,
		"stock": bson.M{"$gte": res.Quantity},
		"reservations": bson.M{"$not": bson.M{"$elemMatch": bson.M{
			"order": res.Order,
			"line":  res.Line,
		}}},
	}
	update := bson.M{
		"$inc":  bson.M{"stock": -res.Quantity},
		"$push": bson.M{"reservations": res},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}

	result, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return result.MatchedCount == 1, nil
}

// RestoreStock reverses res only while the product still holds it, so a
// restore for a decrement that never landed changes nothing.
func (s *ProductStore) RestoreStock(ctx context.Context, id primitive.ObjectID, res models.StockReservation) (bool, error) {
	held := bson.M{"order": res.Order, "line": res.Line}
	result, err := s.coll.UpdateOne(ctx,
		bson.M{
			"_id":          id,
			"reservations": bson.M{"$elemMatch": held},
		},
		bson.M{
			"$inc":  bson.M{"stock": res.Quantity},
			"$pull": bson.M{"reservations": held},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return false, err
	}
	return result.MatchedCount == 1, nil
}

func (s *ProductStore) ReleaseReservations(ctx context.Context, orderID primitive.ObjectID, products []primitive.ObjectID) error {
	_, err := s.coll.UpdateMany(ctx,
		bson.M{
			"_id":                bson.M{"$in": products},
			"reservations.order": orderID,
		},
		bson.M{"$pull": bson.M{"reservations": bson.M{"order": orderID}}},
	)
	return err
}

func (s *ProductStore) SetRating(ctx context.Context, id primitive.ObjectID, average float64, count int) error {
	_, err := s.coll.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{
			"averageRating": average,
			"reviewCount":   count,
		},
	})
	return err
}
