package database

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"blazestride/internal/models"
	"blazestride/internal/orders"
)

// UserStore resolves where order emails go.
type UserStore struct {
	coll *mongo.Collection
}

func NewUserStore(db *mongo.Database) *UserStore {
	return &UserStore{coll: db.Collection(UsersCollection)}
}

func (s *UserStore) ResolveUserContact(ctx context.Context, userID primitive.ObjectID) (orders.Contact, error) {
	opts := options.FindOne().SetProjection(bson.M{"firstname": 1, "lastname": 1, "email": 1})

	var user models.User
	if err := s.coll.FindOne(ctx, bson.M{"_id": userID}, opts).Decode(&user); err != nil {
		return orders.Contact{}, notFound(err)
	}
	return orders.Contact{
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
	}, nil
}
