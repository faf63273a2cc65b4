package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"streamgate/internal/domain"
)

type profileSettingsDoc struct {
	ID               string  `bson:"_id"` // userId
	PlaybackSpeed    float64 `bson:"playbackSpeed"`
	PreferredHeight  int     `bson:"preferredHeight"`
	PreferredAudioLx string  `bson:"preferredAudioLanguage,omitempty"`
}

type ProfileSettingsRepository struct {
	collection *mongo.Collection
}

func NewProfileSettingsRepository(client *mongo.Client, dbName string) *ProfileSettingsRepository {
	return &ProfileSettingsRepository{collection: client.Database(dbName).Collection("profile_settings")}
}

func (r *ProfileSettingsRepository) Get(ctx context.Context, userID string) (domain.ProfileSettings, error) {
	var doc profileSettingsDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ProfileSettings{}, domain.ErrNotFound
		}
		return domain.ProfileSettings{}, err
	}
	return domain.ProfileSettings{
		UserID:           doc.ID,
		PlaybackSpeed:    doc.PlaybackSpeed,
		PreferredHeight:  doc.PreferredHeight,
		PreferredAudioLx: doc.PreferredAudioLx,
	}, nil
}

func (r *ProfileSettingsRepository) Upsert(ctx context.Context, p domain.ProfileSettings) error {
	update := bson.M{
		"$set": bson.M{
			"playbackSpeed":          p.PlaybackSpeed,
			"preferredHeight":        p.PreferredHeight,
			"preferredAudioLanguage": p.PreferredAudioLx,
		},
	}
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": p.UserID},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}
