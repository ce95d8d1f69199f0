// Command seed fills an empty products collection with the demo running-shoe
// catalog and can create the first admin account.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"blazestride/internal/config"
	"blazestride/internal/database"
	"blazestride/internal/models"
	"blazestride/internal/validation"
)

var shoeImages = models.StringList{
	"https://res.cloudinary.com/dxnb2ozgw/image/upload/v1761345062/brooks_qkbdxd.png",
	"https://res.cloudinary.com/dxnb2ozgw/image/upload/v1761408863/brooks1_kyngav.png",
	"https://res.cloudinary.com/dxnb2ozgw/image/upload/v1761408863/brooks2_h0xpex.png",
}

type seedShoe struct {
	name        string
	brand       string
	description string
	category    models.StringList
	price       float64
}

var catalog = []seedShoe{
	{"Nike Air Zoom Pegasus 40", "nike", "Responsive cushioning for everyday running with updated mesh upper for breathability", models.StringList{"daily", "tempo"}, 130},
	{"Adidas Adizero Adios Pro 3", "adidas", "Carbon-plated racing shoe designed for marathon performance", models.StringList{"marathon", "race"}, 250},
	{"ASICS Gel-Nimbus 25", "asics", "Maximum cushioning for long-distance comfort and support", models.StringList{"daily", "marathon"}, 160},
	{"New Balance FuelCell SuperComp Elite v3", "new balance", "Elite racing shoe with dual-plate system for explosive speed", models.StringList{"race"}, 275},
	{"Brooks Ghost 15", "brooks", "Reliable everyday trainer with smooth transitions and soft cushioning", models.StringList{"daily"}, 140},
	{"Saucony Endorphin Speed 3", "saucony", "Versatile tempo shoe with nylon plate for speed training", models.StringList{"tempo", "race"}, 170},
	{"Hoka Clifton 9", "hoka", "Lightweight daily trainer with plush cushioning and smooth ride", models.StringList{"daily"}, 145},
	{"Nike Vaporfly 3", "nike", "Premium carbon-plated racer for marathon and road racing", models.StringList{"marathon", "race"}, 260},
}

func main() {
	stock := flag.Int("stock", 25, "initial stock per product")
	force := flag.Bool("force", false, "insert even when products already exist")
	flag.Parse()

	config.Load()

	client, err := database.Connect(config.AppEnv.MongoURI)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	db := client.Database(config.AppEnv.DBName)
	if err := database.EnsureIndexes(db); err != nil {
		log.Printf("index warning: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := seedProducts(ctx, db, *stock, *force); err != nil {
		log.Fatal("seed products: ", err)
	}

	email := strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL")))
	password := os.Getenv("ADMIN_PASSWORD")
	if email != "" {
		if err := seedAdmin(ctx, db, email, password); err != nil {
			log.Fatal("seed admin: ", err)
		}
	}
}

func seedProducts(ctx context.Context, db *mongo.Database, stock int, force bool) error {
	coll := db.Collection(database.ProductsCollection)

	count, err := coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return err
	}
	if count > 0 && !force {
		log.Printf("[SEED] [INFO] products collection has %d documents, skipping", count)
		return nil
	}

	now := time.Now().UTC()
	docs := lo.Map(catalog, func(s seedShoe, _ int) interface{} {
		return models.Product{
			ID:          primitive.NewObjectID(),
			Name:        s.name,
			Description: s.description,
			Category:    s.category,
			Brand:       s.brand,
			Price:       s.price,
			Images:      shoeImages,
			Stock:       stock,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	})

	res, err := coll.InsertMany(ctx, docs)
	if err != nil {
		return err
	}
	log.Printf("[SEED] [INFO] seeded %d products with stock %d", len(res.InsertedIDs), stock)
	return nil
}

func seedAdmin(ctx context.Context, db *mongo.Database, email, password string) error {
	if !validation.StrongPassword(password) {
		log.Fatal("ADMIN_PASSWORD must be at least 6 characters and contain a symbol")
	}

	coll := db.Collection(database.UsersCollection)
	count, err := coll.CountDocuments(ctx, bson.M{"email": email})
	if err != nil {
		return err
	}
	if count > 0 {
		log.Println("[SEED] [INFO] admin already exists:", email)
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = coll.InsertOne(ctx, models.User{
		ID:           primitive.NewObjectID(),
		Role:         models.RoleAdmin,
		FirstName:    "Store",
		LastName:     "Admin",
		Email:        email,
		PasswordHash: string(hash),
		Status:       models.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return err
	}
	log.Println("[SEED] [INFO] admin created:", email)
	return nil
}
