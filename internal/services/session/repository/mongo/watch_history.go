package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"streamgate/internal/domain"
)

type watchPositionDoc struct {
	ID         string  `bson:"_id"` // userId:itemId
	UserID     string  `bson:"userId"`
	ItemID     string  `bson:"itemId"`
	Position   float64 `bson:"position"`
	Duration   float64 `bson:"duration"`
	ItemName   string  `bson:"itemName"`
	SeriesName string  `bson:"seriesName,omitempty"`
	UpdatedAt  int64   `bson:"updatedAt"`
}

type WatchHistoryRepository struct {
	collection *mongo.Collection
}

func NewWatchHistoryRepository(client *mongo.Client, dbName string) *WatchHistoryRepository {
	return &WatchHistoryRepository{collection: client.Database(dbName).Collection("watch_history")}
}

func watchDocID(userID string, itemID domain.ItemID) string {
	return userID + ":" + string(itemID)
}

func (r *WatchHistoryRepository) Upsert(ctx context.Context, wp domain.WatchPosition) error {
	update := bson.M{
		"$set": bson.M{
			"userId":     wp.UserID,
			"itemId":     string(wp.ItemID),
			"position":   wp.Position,
			"duration":   wp.Duration,
			"itemName":   wp.ItemName,
			"seriesName": wp.SeriesName,
			"updatedAt":  time.Now().Unix(),
		},
	}
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": watchDocID(wp.UserID, wp.ItemID)},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *WatchHistoryRepository) Get(ctx context.Context, userID string, itemID domain.ItemID) (domain.WatchPosition, error) {
	var doc watchPositionDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": watchDocID(userID, itemID)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.WatchPosition{}, domain.ErrNotFound
		}
		return domain.WatchPosition{}, err
	}
	return watchDocToPosition(doc), nil
}

func (r *WatchHistoryRepository) ListRecent(ctx context.Context, userID string, limit int) ([]domain.WatchPosition, error) {
	if limit <= 0 {
		limit = 20
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []watchPositionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	positions := make([]domain.WatchPosition, 0, len(docs))
	for _, doc := range docs {
		positions = append(positions, watchDocToPosition(doc))
	}
	return positions, nil
}

func (r *WatchHistoryRepository) Delete(ctx context.Context, userID string, itemID domain.ItemID) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": watchDocID(userID, itemID)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func watchDocToPosition(doc watchPositionDoc) domain.WatchPosition {
	return domain.WatchPosition{
		UserID:     doc.UserID,
		ItemID:     domain.ItemID(doc.ItemID),
		Position:   doc.Position,
		Duration:   doc.Duration,
		ItemName:   doc.ItemName,
		SeriesName: doc.SeriesName,
		UpdatedAt:  time.Unix(doc.UpdatedAt, 0).UTC(),
	}
}
