package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Tgsps/coffee-sub000/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrNotFound is the not-found signal of every lookup, update and delete.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate reports a unique key collision (record id or user email).
	ErrDuplicate = errors.New("duplicate record")
	// ErrAlreadyReviewed is returned by AddReview when the user already
	// reviewed the product.
	ErrAlreadyReviewed = errors.New("product already reviewed")
)

const (
	BackendMemory = "memory"
	BackendMongo  = "mongodb"
)

type ProductStore interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) (*models.Product, error)
	UpdateProduct(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error)
	DeleteProduct(ctx context.Context, id string) (*models.Product, error)
	// AddReview appends review and recomputes rating and numReviews in one
	// atomic step, so concurrent reviews are never lost.
	AddReview(ctx context.Context, id string, review models.Review) (*models.Product, error)
}

type UserStore interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) (*models.User, error)
	UpdateUser(ctx context.Context, id string, patch models.UserPatch) (*models.User, error)
	DeleteUser(ctx context.Context, id string) (*models.User, error)
}

type OrderStore interface {
	ListOrders(ctx context.Context) ([]models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	CreateOrder(ctx context.Context, o *models.Order) (*models.Order, error)
	UpdateOrder(ctx context.Context, id string, patch models.OrderPatch) (*models.Order, error)
	DeleteOrder(ctx context.Context, id string) (*models.Order, error)
}

// AuditLog represents an audit log entry
type AuditLog struct {
	ID        string    `bson:"_id" json:"id"`
	Service   string    `bson:"service" json:"service"`
	Action    string    `bson:"action" json:"action"`
	EntityID  string    `bson:"entity_id" json:"entityId"`
	Data      bson.M    `bson:"data" json:"data"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

type AuditStore interface {
	CreateAuditLog(ctx context.Context, log *AuditLog) error
	GetAuditLogs(ctx context.Context, entityID string, limit int64) ([]*AuditLog, error)
}

// Store is the storage adapter. Both backends satisfy it and callers never
// need to know which one is active.
type Store interface {
	ProductStore
	UserStore
	OrderStore
	AuditStore

	Backend() string
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

func newID() string {
	return primitive.NewObjectID().Hex()
}

// now is truncated to the millisecond precision MongoDB stores so both
// backends return identical timestamps.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func prepareProduct(p *models.Product) models.Product {
	out := p.Clone()
	if out.ID == "" {
		out.ID = newID()
	}
	ts := now()
	out.CreatedAt = ts
	out.UpdatedAt = ts
	out.Reviews = []models.Review{}
	out.Rating = 0
	out.NumReviews = 0
	return out
}

type passwordHasher interface {
	Hash(plain string) (string, error)
}

func prepareReview(r models.Review) models.Review {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now()
	} else {
		r.CreatedAt = r.CreatedAt.UTC().Truncate(time.Millisecond)
	}
	return r
}

func prepareUser(u *models.User, hasher passwordHasher) (models.User, error) {
	out := u.Clone()
	if out.ID == "" {
		out.ID = newID()
	}
	out.Email = normalizeEmail(out.Email)
	if out.Role == "" {
		out.Role = models.RoleUser
	}
	hashed, err := hasher.Hash(out.Password)
	if err != nil {
		return models.User{}, err
	}
	out.Password = hashed
	ts := now()
	out.CreatedAt = ts
	out.UpdatedAt = ts
	return out, nil
}

func prepareUserPatch(patch models.UserPatch, hasher passwordHasher) (models.UserPatch, error) {
	if patch.Email != nil {
		email := normalizeEmail(*patch.Email)
		patch.Email = &email
	}
	if patch.Password != nil {
		hashed, err := hasher.Hash(*patch.Password)
		if err != nil {
			return patch, err
		}
		patch.Password = &hashed
	}
	return patch, nil
}

func prepareOrder(o *models.Order) models.Order {
	out := o.Clone()
	if out.ID == "" {
		out.ID = newID()
	}
	ts := now()
	out.CreatedAt = ts
	out.UpdatedAt = ts
	return out
}

func truncateTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC().Truncate(time.Millisecond)
	return &v
}

func prepareOrderPatch(patch models.OrderPatch) models.OrderPatch {
	patch.PaidAt = truncateTime(patch.PaidAt)
	patch.DeliveredAt = truncateTime(patch.DeliveredAt)
	return patch
}
