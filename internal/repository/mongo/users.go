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

type userDoc struct {
	ID           string `bson:"_id"`
	Username     string `bson:"username"`
	PasswordHash string `bson:"passwordHash"`
	Role         string `bson:"role"`
	Disabled     bool   `bson:"disabled"`
	CreatedAt    int64  `bson:"createdAt"`
	UpdatedAt    int64  `bson:"updatedAt"`
}

type UserRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(client *mongo.Client, dbName string) *UserRepository {
	return &UserRepository{collection: client.Database(dbName).Collection("users")}
}

func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *UserRepository) Create(ctx context.Context, u domain.User) error {
	_, err := r.collection.InsertOne(ctx, userToDoc(u))
	if err != nil && mongo.IsDuplicateKeyError(err) {
		return errors.New("username already taken")
	}
	return err
}

func (r *UserRepository) Update(ctx context.Context, u domain.User) error {
	doc := userToDoc(u)
	set := bson.M{
		"username":  doc.Username,
		"role":      doc.Role,
		"disabled":  doc.Disabled,
		"updatedAt": time.Now().Unix(),
	}
	if doc.PasswordHash != "" {
		set["passwordHash"] = doc.PasswordHash
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

func (r *UserRepository) Get(ctx context.Context, id string) (domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	cursor, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, userFromDoc(doc))
	}
	return users, nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (domain.User, error) {
	var doc userDoc
	if err := r.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, err
	}
	return userFromDoc(doc), nil
}

func userToDoc(u domain.User) userDoc {
	return userDoc{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		Disabled:     u.Disabled,
		CreatedAt:    u.CreatedAt.Unix(),
		UpdatedAt:    u.UpdatedAt.Unix(),
	}
}

func userFromDoc(doc userDoc) domain.User {
	return domain.User{
		ID:           doc.ID,
		Username:     doc.Username,
		PasswordHash: doc.PasswordHash,
		Role:         domain.UserRole(doc.Role),
		Disabled:     doc.Disabled,
		CreatedAt:    timeFromUnix(doc.CreatedAt),
		UpdatedAt:    timeFromUnix(doc.UpdatedAt),
	}
}
