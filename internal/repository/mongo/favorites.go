package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"streamgate/internal/domain"
)

type favoriteDoc struct {
	ID        string `bson:"_id"` // userId:itemId
	UserID    string `bson:"userId"`
	ItemID    string `bson:"itemId"`
	ItemName  string `bson:"itemName"`
	ItemType  string `bson:"itemType"`
	CreatedAt int64  `bson:"createdAt"`
}

type FavoriteRepository struct {
	collection *mongo.Collection
}

func NewFavoriteRepository(client *mongo.Client, dbName string) *FavoriteRepository {
	return &FavoriteRepository{collection: client.Database(dbName).Collection("favorites")}
}

func favoriteDocID(userID string, itemID domain.ItemID) string {
	return userID + ":" + string(itemID)
}

func (r *FavoriteRepository) Add(ctx context.Context, f domain.Favorite) error {
	update := bson.M{
		"$set": bson.M{
			"userId":    f.UserID,
			"itemId":    string(f.ItemID),
			"itemName":  f.ItemName,
			"itemType":  f.ItemType,
			"createdAt": f.CreatedAt.Unix(),
		},
	}
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": favoriteDocID(f.UserID, f.ItemID)},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *FavoriteRepository) Remove(ctx context.Context, userID string, itemID domain.ItemID) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": favoriteDocID(userID, itemID)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *FavoriteRepository) List(ctx context.Context, userID string) ([]domain.Favorite, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []favoriteDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	favorites := make([]domain.Favorite, 0, len(docs))
	for _, doc := range docs {
		favorites = append(favorites, favoriteFromDoc(doc))
	}
	return favorites, nil
}

func (r *FavoriteRepository) Has(ctx context.Context, userID string, itemID domain.ItemID) (bool, error) {
	err := r.collection.FindOne(ctx, bson.M{"_id": favoriteDocID(userID, itemID)}).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func favoriteFromDoc(doc favoriteDoc) domain.Favorite {
	return domain.Favorite{
		UserID:    doc.UserID,
		ItemID:    domain.ItemID(doc.ItemID),
		ItemName:  doc.ItemName,
		ItemType:  doc.ItemType,
		CreatedAt: timeFromUnix(doc.CreatedAt),
	}
}
