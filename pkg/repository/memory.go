package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/Tgsps/coffee-sub000/pkg/auth"
	"github.com/Tgsps/coffee-sub000/pkg/models"
)

// collection is an insertion-ordered list guarded by one lock. Values are
// cloned on the way in and out so callers never share state with the store.
type collection[T any] struct {
	mu    sync.RWMutex
	items []T
	id    func(*T) string
	clone func(T) T
}

func newCollection[T any](id func(*T) string, clone func(T) T) *collection[T] {
	return &collection[T]{id: id, clone: clone}
}

func (c *collection[T]) filter(keep func(*T) bool) []T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]T, 0, len(c.items))
	for i := range c.items {
		if keep == nil || keep(&c.items[i]) {
			out = append(out, c.clone(c.items[i]))
		}
	}
	return out
}

func (c *collection[T]) indexOf(id string) int {
	for i := range c.items {
		if c.id(&c.items[i]) == id {
			return i
		}
	}
	return -1
}

func (c *collection[T]) get(id string) (*T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i := c.indexOf(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	v := c.clone(c.items[i])
	return &v, nil
}

// insert fails with ErrDuplicate when the id is taken or conflicts reports
// a clash with an existing item.
func (c *collection[T]) insert(v T, conflicts func(existing *T) bool) (*T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.items {
		if c.id(&c.items[i]) == c.id(&v) || (conflicts != nil && conflicts(&c.items[i])) {
			return nil, ErrDuplicate
		}
	}
	c.items = append(c.items, c.clone(v))
	out := c.clone(v)
	return &out, nil
}

// update runs mutate on a copy under the write lock and stores it unless
// mutate fails or the result conflicts with another item.
func (c *collection[T]) update(id string, mutate func(*T) error, conflicts func(existing *T) bool) (*T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	next := c.clone(c.items[i])
	if err := mutate(&next); err != nil {
		return nil, err
	}
	if conflicts != nil {
		for j := range c.items {
			if j != i && conflicts(&c.items[j]) {
				return nil, ErrDuplicate
			}
		}
	}
	c.items[i] = next
	out := c.clone(next)
	return &out, nil
}

func (c *collection[T]) remove(id string) (*T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	removed := c.items[i]
	c.items = append(c.items[:i], c.items[i+1:]...)
	return &removed, nil
}

func (c *collection[T]) reset() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}

// MemoryStore is the process-local backend used when MongoDB is not
// configured or unreachable. Its contents are lost on restart.
type MemoryStore struct {
	products *collection[models.Product]
	users    *collection[models.User]
	orders   *collection[models.Order]
	audit    *collection[AuditLog]
	hasher   *auth.Hasher
}

func NewMemoryStore(hasher *auth.Hasher) *MemoryStore {
	return &MemoryStore{
		products: newCollection(func(p *models.Product) string { return p.ID }, models.Product.Clone),
		users:    newCollection(func(u *models.User) string { return u.ID }, models.User.Clone),
		orders:   newCollection(func(o *models.Order) string { return o.ID }, models.Order.Clone),
		audit:    newCollection(func(l *AuditLog) string { return l.ID }, cloneAuditLog),
		hasher:   hasher,
	}
}

func cloneAuditLog(l AuditLog) AuditLog {
	out := l
	if l.Data != nil {
		out.Data = make(map[string]interface{}, len(l.Data))
		for k, v := range l.Data {
			out.Data[k] = v
		}
	}
	return out
}

func (m *MemoryStore) Backend() string { return BackendMemory }

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close(ctx context.Context) error { return nil }

// Reset drops every record.
func (m *MemoryStore) Reset() {
	m.products.reset()
	m.users.reset()
	m.orders.reset()
	m.audit.reset()
}

func (m *MemoryStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	return m.products.filter(nil), nil
}

func (m *MemoryStore) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	return m.products.get(id)
}

func (m *MemoryStore) CreateProduct(ctx context.Context, p *models.Product) (*models.Product, error) {
	return m.products.insert(prepareProduct(p), nil)
}

func (m *MemoryStore) UpdateProduct(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error) {
	if patch.Empty() {
		return m.products.get(id)
	}
	ts := now()
	return m.products.update(id, func(p *models.Product) error {
		patch.Apply(p)
		p.UpdatedAt = ts
		return nil
	}, nil)
}

func (m *MemoryStore) AddReview(ctx context.Context, id string, review models.Review) (*models.Product, error) {
	review = prepareReview(review)
	return m.products.update(id, func(p *models.Product) error {
		if p.HasReviewFrom(review.User) {
			return ErrAlreadyReviewed
		}
		p.AddReview(review)
		p.UpdatedAt = review.CreatedAt
		return nil
	}, nil)
}

func (m *MemoryStore) DeleteProduct(ctx context.Context, id string) (*models.Product, error) {
	return m.products.remove(id)
}

func (m *MemoryStore) ListUsers(ctx context.Context) ([]models.User, error) {
	return m.users.filter(nil), nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	return m.users.get(id)
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	email = normalizeEmail(email)
	found := m.users.filter(func(u *models.User) bool { return u.Email == email })
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	return &found[0], nil
}

func (m *MemoryStore) CreateUser(ctx context.Context, u *models.User) (*models.User, error) {
	user, err := prepareUser(u, m.hasher)
	if err != nil {
		return nil, err
	}
	return m.users.insert(user, func(existing *models.User) bool {
		return existing.Email == user.Email
	})
}

func (m *MemoryStore) UpdateUser(ctx context.Context, id string, patch models.UserPatch) (*models.User, error) {
	if patch.Empty() {
		return m.users.get(id)
	}
	patch, err := prepareUserPatch(patch, m.hasher)
	if err != nil {
		return nil, err
	}

	var conflicts func(*models.User) bool
	if patch.Email != nil {
		email := *patch.Email
		conflicts = func(existing *models.User) bool { return existing.Email == email }
	}
	ts := now()
	return m.users.update(id, func(u *models.User) error {
		patch.Apply(u)
		u.UpdatedAt = ts
		return nil
	}, conflicts)
}

func (m *MemoryStore) DeleteUser(ctx context.Context, id string) (*models.User, error) {
	return m.users.remove(id)
}

func (m *MemoryStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	return m.orders.filter(nil), nil
}

func (m *MemoryStore) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	return m.orders.filter(func(o *models.Order) bool { return o.User == userID }), nil
}

func (m *MemoryStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return m.orders.get(id)
}

func (m *MemoryStore) CreateOrder(ctx context.Context, o *models.Order) (*models.Order, error) {
	return m.orders.insert(prepareOrder(o), nil)
}

func (m *MemoryStore) UpdateOrder(ctx context.Context, id string, patch models.OrderPatch) (*models.Order, error) {
	if patch.Empty() {
		return m.orders.get(id)
	}
	patch = prepareOrderPatch(patch)
	ts := now()
	return m.orders.update(id, func(o *models.Order) error {
		patch.Apply(o)
		o.UpdatedAt = ts
		return nil
	}, nil)
}

func (m *MemoryStore) DeleteOrder(ctx context.Context, id string) (*models.Order, error) {
	return m.orders.remove(id)
}

func (m *MemoryStore) CreateAuditLog(ctx context.Context, log *AuditLog) error {
	entry := *log
	if entry.ID == "" {
		entry.ID = newID()
	}
	entry.CreatedAt = now()
	_, err := m.audit.insert(entry, nil)
	if err == nil {
		log.ID, log.CreatedAt = entry.ID, entry.CreatedAt
	}
	return err
}

// GetAuditLogs returns the newest entries for entityID first.
func (m *MemoryStore) GetAuditLogs(ctx context.Context, entityID string, limit int64) ([]*AuditLog, error) {
	entries := m.audit.filter(func(l *AuditLog) bool { return l.EntityID == entityID })
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ID > entries[j].ID
	})
	if limit > 0 && int64(len(entries)) > limit {
		entries = entries[:limit]
	}

	logs := make([]*AuditLog, len(entries))
	for i := range entries {
		logs[i] = &entries[i]
	}
	return logs, nil
}
