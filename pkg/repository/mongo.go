package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Tgsps/coffee-sub000/pkg/auth"
	"github.com/Tgsps/coffee-sub000/pkg/config"
	"github.com/Tgsps/coffee-sub000/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	productsCollection = "products"
	usersCollection    = "users"
	ordersCollection   = "orders"
)

// MongoStore is the durable backend.
type MongoStore struct {
	client   *mongo.Client
	database *mongo.Database
	products *mongo.Collection
	users    *mongo.Collection
	orders   *mongo.Collection
	audit    *mongo.Collection
	hasher   *auth.Hasher
	config   *config.MongoDBConfig
}

// NewMongoStore connects, pings and prepares indexes. Any failure is
// returned so the caller can fall back to memory.
func NewMongoStore(ctx context.Context, cfg *config.MongoDBConfig, hasher *auth.Hasher) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(cfg.ConnectTimeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)
	store := &MongoStore{
		client:   client,
		database: db,
		products: db.Collection(productsCollection),
		users:    db.Collection(usersCollection),
		orders:   db.Collection(ordersCollection),
		audit:    db.Collection(cfg.AuditCollection),
		hasher:   hasher,
		config:   cfg,
	}

	if err := store.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

func (m *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := m.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create users.email index: %w", err)
	}

	_, err = m.orders.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create orders.user index: %w", err)
	}

	_, err = m.audit.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "entity_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create audit index: %w", err)
	}
	return nil
}

func (m *MongoStore) Backend() string { return BackendMongo }

func (m *MongoStore) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Insertion order; ObjectID hex sorts by creation time.
var byID = options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter bson.M) ([]T, error) {
	cursor, err := coll.Find(ctx, filter, byID)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := make([]T, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter bson.M) (*T, error) {
	var out T
	if err := coll.FindOne(ctx, filter).Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

func insertOne[T any](ctx context.Context, coll *mongo.Collection, doc T) (*T, error) {
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return &doc, nil
}

func updateOne[T any](ctx context.Context, coll *mongo.Collection, id string, set bson.M) (*T, error) {
	set["updatedAt"] = now()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var out T
	err := coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return &out, nil
}

func deleteOne[T any](ctx context.Context, coll *mongo.Collection, id string) (*T, error) {
	var out T
	if err := coll.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

func (m *MongoStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	return findAll[models.Product](ctx, m.products, bson.M{})
}

func (m *MongoStore) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	return findOne[models.Product](ctx, m.products, bson.M{"_id": id})
}

func (m *MongoStore) CreateProduct(ctx context.Context, p *models.Product) (*models.Product, error) {
	return insertOne(ctx, m.products, prepareProduct(p))
}

func (m *MongoStore) UpdateProduct(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error) {
	if patch.Empty() {
		return m.GetProduct(ctx, id)
	}
	return updateOne[models.Product](ctx, m.products, id, productSet(patch))
}

func (m *MongoStore) DeleteProduct(ctx context.Context, id string) (*models.Product, error) {
	return deleteOne[models.Product](ctx, m.products, id)
}

// AddReview appends with an update pipeline so the duplicate check, the
// append and the rating recompute are one document write.
func (m *MongoStore) AddReview(ctx context.Context, id string, review models.Review) (*models.Product, error) {
	review = prepareReview(review)
	filter := bson.M{"_id": id, "reviews.user": bson.M{"$ne": review.User}}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"reviews": bson.M{"$concatArrays": bson.A{
				bson.M{"$ifNull": bson.A{"$reviews", bson.A{}}},
				bson.M{"$literal": bson.A{review}},
			}},
		}}},
		{{Key: "$set", Value: bson.M{
			"numReviews": bson.M{"$size": "$reviews"},
			"rating":     bson.M{"$avg": "$reviews.rating"},
			"updatedAt":  review.CreatedAt,
		}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var out models.Product
	err := m.products.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, err := m.GetProduct(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrAlreadyReviewed
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *MongoStore) ListUsers(ctx context.Context) ([]models.User, error) {
	return findAll[models.User](ctx, m.users, bson.M{})
}

func (m *MongoStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	return findOne[models.User](ctx, m.users, bson.M{"_id": id})
}

func (m *MongoStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return findOne[models.User](ctx, m.users, bson.M{"email": normalizeEmail(email)})
}

func (m *MongoStore) CreateUser(ctx context.Context, u *models.User) (*models.User, error) {
	user, err := prepareUser(u, m.hasher)
	if err != nil {
		return nil, err
	}
	return insertOne(ctx, m.users, user)
}

func (m *MongoStore) UpdateUser(ctx context.Context, id string, patch models.UserPatch) (*models.User, error) {
	if patch.Empty() {
		return m.GetUser(ctx, id)
	}
	patch, err := prepareUserPatch(patch, m.hasher)
	if err != nil {
		return nil, err
	}
	return updateOne[models.User](ctx, m.users, id, userSet(patch))
}

func (m *MongoStore) DeleteUser(ctx context.Context, id string) (*models.User, error) {
	return deleteOne[models.User](ctx, m.users, id)
}

func (m *MongoStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	return findAll[models.Order](ctx, m.orders, bson.M{})
}

func (m *MongoStore) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	return findAll[models.Order](ctx, m.orders, bson.M{"user": userID})
}

func (m *MongoStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return findOne[models.Order](ctx, m.orders, bson.M{"_id": id})
}

func (m *MongoStore) CreateOrder(ctx context.Context, o *models.Order) (*models.Order, error) {
	return insertOne(ctx, m.orders, prepareOrder(o))
}

func (m *MongoStore) UpdateOrder(ctx context.Context, id string, patch models.OrderPatch) (*models.Order, error) {
	if patch.Empty() {
		return m.GetOrder(ctx, id)
	}
	return updateOne[models.Order](ctx, m.orders, id, orderSet(prepareOrderPatch(patch)))
}

func (m *MongoStore) DeleteOrder(ctx context.Context, id string) (*models.Order, error) {
	return deleteOne[models.Order](ctx, m.orders, id)
}

func (m *MongoStore) CreateAuditLog(ctx context.Context, log *AuditLog) error {
	if log.ID == "" {
		log.ID = newID()
	}
	log.CreatedAt = now()
	_, err := m.audit.InsertOne(ctx, log)
	return err
}

func (m *MongoStore) GetAuditLogs(ctx context.Context, entityID string, limit int64) ([]*AuditLog, error) {
	filter := bson.M{"entity_id": entityID}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit)

	cursor, err := m.audit.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	logs := make([]*AuditLog, 0)
	if err = cursor.All(ctx, &logs); err != nil {
		return nil, err
	}

	return logs, nil
}

// The $set builders mirror the Apply methods on the patch types so a
// partial update merges the same keys in both backends.

func productSet(p models.ProductPatch) bson.M {
	var merged models.Product
	p.Apply(&merged)

	set := bson.M{}
	if p.Name != nil {
		set["name"] = merged.Name
	}
	if p.Description != nil {
		set["description"] = merged.Description
	}
	if p.Price != nil {
		set["price"] = merged.Price
	}
	if p.Category != nil {
		set["category"] = merged.Category
	}
	if p.Image != nil {
		set["image"] = merged.Image
	}
	if p.Images != nil {
		set["images"] = merged.Images
	}
	if p.InStock != nil {
		set["inStock"] = merged.InStock
	}
	if p.StockQuantity != nil {
		set["stockQuantity"] = merged.StockQuantity
	}
	if p.Featured != nil {
		set["featured"] = merged.Featured
	}
	if p.Rating != nil {
		set["rating"] = merged.Rating
	}
	if p.NumReviews != nil {
		set["numReviews"] = merged.NumReviews
	}
	if p.Reviews != nil {
		set["reviews"] = merged.Reviews
	}
	return set
}

func userSet(p models.UserPatch) bson.M {
	set := bson.M{}
	if p.Name != nil {
		set["name"] = *p.Name
	}
	if p.Email != nil {
		set["email"] = *p.Email
	}
	if p.Password != nil {
		set["password"] = *p.Password
	}
	if p.Role != nil {
		set["role"] = *p.Role
	}
	if p.Address != nil {
		set["address"] = *p.Address
	}
	return set
}

func orderSet(p models.OrderPatch) bson.M {
	set := bson.M{}
	if p.IsPaid != nil {
		set["isPaid"] = *p.IsPaid
	}
	if p.PaidAt != nil {
		set["paidAt"] = *p.PaidAt
	}
	if p.PaymentResult != nil {
		set["paymentResult"] = *p.PaymentResult
	}
	if p.IsDelivered != nil {
		set["isDelivered"] = *p.IsDelivered
	}
	if p.DeliveredAt != nil {
		set["deliveredAt"] = *p.DeliveredAt
	}
	return set
}
