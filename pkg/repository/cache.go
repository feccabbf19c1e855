package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Tgsps/coffee-sub000/pkg/models"
	"go.uber.org/zap"
)

const productListKey = "products:all"

func productKey(id string) string {
	return fmt.Sprintf("product:%s", id)
}

type JSONCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// CachedProducts is a read-through cache in front of a ProductStore. Every
// mutation drops the affected entry and the list both before and after the
// store write, so a read that filled the cache while the write was in flight
// does not survive it. Cache failures are logged and the call goes to the
// store.
type CachedProducts struct {
	ProductStore
	cache  JSONCache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedProducts(store ProductStore, cache JSONCache, ttl time.Duration, logger *zap.Logger) *CachedProducts {
	return &CachedProducts{
		ProductStore: store,
		cache:        cache,
		ttl:          ttl,
		logger:       logger,
	}
}

func (c *CachedProducts) ListProducts(ctx context.Context) ([]models.Product, error) {
	var cached []models.Product
	if err := c.cache.GetJSON(ctx, productListKey, &cached); err == nil {
		return cached, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		c.logger.Warn("Product list cache read failed", zap.Error(err))
	}

	products, err := c.ProductStore.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetJSON(ctx, productListKey, products, c.ttl); err != nil {
		c.logger.Warn("Product list cache write failed", zap.Error(err))
	}
	return products, nil
}

func (c *CachedProducts) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var cached models.Product
	if err := c.cache.GetJSON(ctx, productKey(id), &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		c.logger.Warn("Product cache read failed", zap.String("product_id", id), zap.Error(err))
	}

	product, err := c.ProductStore.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetJSON(ctx, productKey(id), product, c.ttl); err != nil {
		c.logger.Warn("Product cache write failed", zap.String("product_id", id), zap.Error(err))
	}
	return product, nil
}

func (c *CachedProducts) CreateProduct(ctx context.Context, p *models.Product) (*models.Product, error) {
	product, err := c.ProductStore.CreateProduct(ctx, p)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, product.ID)
	return product, nil
}

func (c *CachedProducts) UpdateProduct(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error) {
	if patch.Empty() {
		return c.ProductStore.UpdateProduct(ctx, id, patch)
	}
	return c.invalidating(ctx, id, func() (*models.Product, error) {
		return c.ProductStore.UpdateProduct(ctx, id, patch)
	})
}

func (c *CachedProducts) DeleteProduct(ctx context.Context, id string) (*models.Product, error) {
	return c.invalidating(ctx, id, func() (*models.Product, error) {
		return c.ProductStore.DeleteProduct(ctx, id)
	})
}

func (c *CachedProducts) AddReview(ctx context.Context, id string, review models.Review) (*models.Product, error) {
	return c.invalidating(ctx, id, func() (*models.Product, error) {
		return c.ProductStore.AddReview(ctx, id, review)
	})
}

// invalidating drops the cached entries around write. The second drop also
// runs when write fails, since the store may have applied it anyway.
func (c *CachedProducts) invalidating(ctx context.Context, id string, write func() (*models.Product, error)) (*models.Product, error) {
	c.invalidate(ctx, id)
	product, err := write()
	c.invalidate(ctx, id)
	return product, err
}

func (c *CachedProducts) invalidate(ctx context.Context, id string) {
	if err := c.cache.Del(ctx, productKey(id), productListKey); err != nil {
		c.logger.Warn("Product cache invalidation failed", zap.String("product_id", id), zap.Error(err))
	}
}
