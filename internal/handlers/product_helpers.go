package handlers

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"blazestride/internal/models"
)

// normalizeProductDocument decodes a product stored by older tooling, where
// stock may be a double or missing.
func normalizeProductDocument(raw bson.M) (models.Product, error) {
	if val, ok := raw["stock"]; ok {
		switch typed := val.(type) {
		case int32:
			raw["stock"] = int(typed)
		case int64:
			raw["stock"] = int(typed)
		case float64:
			raw["stock"] = int(typed)
		case int:
			raw["stock"] = typed
		default:
			raw["stock"] = 0
		}
	} else {
		raw["stock"] = 0
	}

	data, err := bson.Marshal(raw)
	if err != nil {
		return models.Product{}, err
	}

	var p models.Product
	if err := bson.Unmarshal(data, &p); err != nil {
		return models.Product{}, err
	}

	p.InStock = p.Stock > 0

	return p, nil
}

func decodeProducts(ctx context.Context, cursor *mongo.Cursor) ([]models.Product, error) {
	products := make([]models.Product, 0)

	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, err
		}

		product, err := normalizeProductDocument(raw)
		if err != nil {
			return nil, err
		}

		products = append(products, product)
	}

	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

// checkCatalogEnums reports every category or brand outside the fixed lists.
func checkCatalogEnums(categories models.StringList, brand *string) []string {
	details := make([]string, 0)
	for _, cat := range categories {
		if !models.IsValidCategory(cat) {
			details = append(details, fmt.Sprintf("category %q is not supported", cat))
		}
	}
	if brand != nil && !models.IsValidBrand(strings.ToLower(strings.TrimSpace(*brand))) {
		details = append(details, fmt.Sprintf("brand %q is not supported", *brand))
	}
	return details
}
