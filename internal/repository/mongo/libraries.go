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

type libraryDoc struct {
	ID             string `bson:"_id"`
	Name           string `bson:"name"`
	UpstreamViewID string `bson:"upstreamViewId"`
	MediaType      string `bson:"mediaType"`
	Hidden         bool   `bson:"hidden"`
	SortOrder      int    `bson:"sortOrder"`
	CreatedAt      int64  `bson:"createdAt"`
	UpdatedAt      int64  `bson:"updatedAt"`
}

type LibraryRepository struct {
	collection *mongo.Collection
}

func NewLibraryRepository(client *mongo.Client, dbName string) *LibraryRepository {
	return &LibraryRepository{collection: client.Database(dbName).Collection("libraries")}
}

func (r *LibraryRepository) Create(ctx context.Context, l domain.Library) error {
	_, err := r.collection.InsertOne(ctx, libraryToDoc(l))
	if err != nil && mongo.IsDuplicateKeyError(err) {
		return errors.New("library already exists")
	}
	return err
}

func (r *LibraryRepository) Update(ctx context.Context, l domain.Library) error {
	doc := libraryToDoc(l)
	set := bson.M{
		"name":           doc.Name,
		"upstreamViewId": doc.UpstreamViewID,
		"mediaType":      doc.MediaType,
		"hidden":         doc.Hidden,
		"sortOrder":      doc.SortOrder,
		"updatedAt":      time.Now().Unix(),
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *LibraryRepository) Get(ctx context.Context, id string) (domain.Library, error) {
	var doc libraryDoc
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Library{}, domain.ErrNotFound
		}
		return domain.Library{}, err
	}
	return libraryFromDoc(doc), nil
}

func (r *LibraryRepository) List(ctx context.Context) ([]domain.Library, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sortOrder", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []libraryDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	libraries := make([]domain.Library, 0, len(docs))
	for _, doc := range docs {
		libraries = append(libraries, libraryFromDoc(doc))
	}
	return libraries, nil
}

func (r *LibraryRepository) Delete(ctx context.Context, id string) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func libraryToDoc(l domain.Library) libraryDoc {
	return libraryDoc{
		ID:             l.ID,
		Name:           l.Name,
		UpstreamViewID: l.UpstreamViewID,
		MediaType:      l.MediaType,
		Hidden:         l.Hidden,
		SortOrder:      l.SortOrder,
		CreatedAt:      l.CreatedAt.Unix(),
		UpdatedAt:      l.UpdatedAt.Unix(),
	}
}

func libraryFromDoc(doc libraryDoc) domain.Library {
	return domain.Library{
		ID:             doc.ID,
		Name:           doc.Name,
		UpstreamViewID: doc.UpstreamViewID,
		MediaType:      doc.MediaType,
		Hidden:         doc.Hidden,
		SortOrder:      doc.SortOrder,
		CreatedAt:      timeFromUnix(doc.CreatedAt),
		UpdatedAt:      timeFromUnix(doc.UpdatedAt),
	}
}
