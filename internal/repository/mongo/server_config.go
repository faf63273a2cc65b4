package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"streamgate/internal/domain"
)

type serverConfigDoc struct {
	ID        string `bson:"_id"`
	Name      string `bson:"name"`
	ServerURL string `bson:"serverUrl"`
	APIKey    string `bson:"apiKey"`
	Active    bool   `bson:"active"`
	CreatedAt int64  `bson:"createdAt"`
	UpdatedAt int64  `bson:"updatedAt"`
}

type ServerConfigRepository struct {
	collection *mongo.Collection
}

func NewServerConfigRepository(client *mongo.Client, dbName string) *ServerConfigRepository {
	return &ServerConfigRepository{collection: client.Database(dbName).Collection("server_configs")}
}

func (r *ServerConfigRepository) Create(ctx context.Context, cfg domain.ServerConfig) error {
	_, err := r.collection.InsertOne(ctx, serverConfigToDoc(cfg))
	if err != nil && mongo.IsDuplicateKeyError(err) {
		return errors.New("server config already exists")
	}
	return err
}

func (r *ServerConfigRepository) Update(ctx context.Context, cfg domain.ServerConfig) error {
	doc := serverConfigToDoc(cfg)
	set := bson.M{
		"name":      doc.Name,
		"serverUrl": doc.ServerURL,
		"active":    doc.Active,
		"updatedAt": time.Now().Unix(),
	}
	// An empty key on update means "keep the stored key"; the admin API
	// never echoes keys back, so edits arrive without one.
	if doc.APIKey != "" {
		set["apiKey"] = doc.APIKey
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

func (r *ServerConfigRepository) Get(ctx context.Context, id string) (domain.ServerConfig, error) {
	var doc serverConfigDoc
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ServerConfig{}, domain.ErrNotFound
		}
		return domain.ServerConfig{}, err
	}
	return serverConfigFromDoc(doc), nil
}

func (r *ServerConfigRepository) List(ctx context.Context) ([]domain.ServerConfig, error) {
	cursor, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []serverConfigDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	configs := make([]domain.ServerConfig, 0, len(docs))
	for _, doc := range docs {
		configs = append(configs, serverConfigFromDoc(doc))
	}
	return configs, nil
}

func (r *ServerConfigRepository) Delete(ctx context.Context, id string) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetActive marks the config active and deactivates every other one, so
// LoadActive is always unambiguous.
func (r *ServerConfigRepository) SetActive(ctx context.Context, id string) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"active": true, "updatedAt": time.Now().Unix()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	_, err = r.collection.UpdateMany(ctx, bson.M{"_id": bson.M{"$ne": id}},
		bson.M{"$set": bson.M{"active": false}})
	return err
}

func (r *ServerConfigRepository) LoadActive(ctx context.Context) (domain.ServerConfig, error) {
	var doc serverConfigDoc
	if err := r.collection.FindOne(ctx, bson.M{"active": true}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ServerConfig{}, domain.ErrNotFound
		}
		return domain.ServerConfig{}, err
	}
	return serverConfigFromDoc(doc), nil
}

func serverConfigToDoc(cfg domain.ServerConfig) serverConfigDoc {
	return serverConfigDoc{
		ID:        cfg.ID,
		Name:      cfg.Name,
		ServerURL: cfg.ServerURL,
		APIKey:    cfg.APIKey,
		Active:    cfg.Active,
		CreatedAt: cfg.CreatedAt.Unix(),
		UpdatedAt: cfg.UpdatedAt.Unix(),
	}
}

func serverConfigFromDoc(doc serverConfigDoc) domain.ServerConfig {
	return domain.ServerConfig{
		ID:        doc.ID,
		Name:      doc.Name,
		ServerURL: doc.ServerURL,
		APIKey:    doc.APIKey,
		Active:    doc.Active,
		CreatedAt: timeFromUnix(doc.CreatedAt),
		UpdatedAt: timeFromUnix(doc.UpdatedAt),
	}
}
