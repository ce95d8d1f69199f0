package database

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"blazestride/internal/models"
	"blazestride/internal/orders"
	"blazestride/internal/reviews"
)

type ReviewStore struct {
	coll *mongo.Collection
}

func NewReviewStore(db *mongo.Database) *ReviewStore {
	return &ReviewStore{coll: db.Collection(ReviewsCollection)}
}

func (s *ReviewStore) Find(ctx context.Context, user, product, order primitive.ObjectID) (models.Review, error) {
	var review models.Review
	err := s.coll.FindOne(ctx, bson.M{"user": user, "product": product, "order": order}).Decode(&review)
	if err != nil {
		return models.Review{}, notFound(err)
	}
	return review, nil
}

func (s *ReviewStore) FindByID(ctx context.Context, id primitive.ObjectID) (models.Review, error) {
	var review models.Review
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&review); err != nil {
		return models.Review{}, notFound(err)
	}
	return review, nil
}

func (s *ReviewStore) Save(ctx context.Context, review *models.Review) error {
	if review.ID.IsZero() {
		review.ID = primitive.NewObjectID()
		_, err := s.coll.InsertOne(ctx, review)
		if mongo.IsDuplicateKeyError(err) {
			return reviews.ErrDuplicate
		}
		return err
	}

	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": review.ID}, review)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return orders.ErrNotFound
	}
	return nil
}

func (s *ReviewStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return orders.ErrNotFound
	}
	return nil
}

func (s *ReviewStore) ListByProduct(ctx context.Context, product primitive.ObjectID) ([]models.Review, error) {
	return s.find(ctx, bson.M{"product": product})
}

func (s *ReviewStore) ListByUser(ctx context.Context, user primitive.ObjectID) ([]models.Review, error) {
	return s.find(ctx, bson.M{"user": user})
}

// RatingStats averages the ratings of every review of product.
func (s *ReviewStore) RatingStats(ctx context.Context, product primitive.ObjectID) (float64, int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"product": product}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"avg":   bson.M{"$avg": "$rating"},
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, 0, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Avg   float64 `bson:"avg"`
		Count int     `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, 0, err
	}
	if len(rows) == 0 {
		return 0, 0, nil
	}
	return rows[0].Avg, rows[0].Count, nil
}

func (s *ReviewStore) find(ctx context.Context, filter bson.M) ([]models.Review, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	list := make([]models.Review, 0)
	if err := cursor.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}
