package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Tgsps/coffee-sub000/pkg/auth"
	"github.com/Tgsps/coffee-sub000/pkg/config"
	"github.com/Tgsps/coffee-sub000/pkg/events"
	"github.com/Tgsps/coffee-sub000/pkg/metrics"
	"github.com/Tgsps/coffee-sub000/pkg/models"
	"github.com/Tgsps/coffee-sub000/pkg/repository"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []events.OrderEvent
}

func (n *recordingNotifier) Notify(evt events.OrderEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
}

func (n *recordingNotifier) kinds() []events.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]events.Kind, 0, len(n.events))
	for _, evt := range n.events {
		out = append(out, evt.Kind)
	}
	return out
}

type fixedLimiter struct {
	allowed bool
	err     error
}

func (l fixedLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return l.allowed, l.err
}

type testEnv struct {
	t        *testing.T
	store    *repository.MemoryStore
	tokens   *auth.TokenIssuer
	notifier *recordingNotifier
	handler  http.Handler
}

func newTestEnv(t *testing.T, customize ...func(*Deps)) *testEnv {
	t.Helper()

	hasher := auth.NewHasher(4)
	store := repository.NewMemoryStore(hasher)
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)
	notifier := &recordingNotifier{}

	cfg := &config.Config{
		Server: config.ServerConfig{Mode: gin.TestMode},
		Auth:   config.AuthConfig{LoginAttempts: 5, LoginWindow: time.Minute},
	}
	deps := Deps{
		Products: store,
		Users:    store,
		Orders:   store,
		Audit:    store,
		Ping:     store.Ping,
		Backend:  store.Backend(),
		Hasher:   hasher,
		Tokens:   tokens,
		Events:   notifier,
		Metrics:  metrics.New(),
	}
	for _, fn := range customize {
		fn(&deps)
	}

	return &testEnv{
		t:        t,
		store:    store,
		tokens:   tokens,
		notifier: notifier,
		handler:  NewGateway(cfg, zap.NewNop(), deps).Handler(),
	}
}

func (e *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	e.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (e *testEnv) user(name string, role models.Role) (*models.User, string) {
	e.t.Helper()
	u, err := e.store.CreateUser(context.Background(), &models.User{
		Name:     name,
		Email:    fmt.Sprintf("%s@example.com", name),
		Password: "secret123",
		Role:     role,
	})
	require.NoError(e.t, err)
	token, err := e.tokens.Issue(u)
	require.NoError(e.t, err)
	return u, token
}

func (e *testEnv) product(name string, category models.Category, price float64) *models.Product {
	e.t.Helper()
	p, err := e.store.CreateProduct(context.Background(), &models.Product{
		Name:        name,
		Description: name + " from the roastery",
		Price:       price,
		Category:    category,
		Image:       "/img/" + name + ".jpg",
		InStock:     true,
	})
	require.NoError(e.t, err)
	return p
}

type errorBody struct {
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors"`
}

func fieldNames(body errorBody) []string {
	names := make([]string, 0, len(body.Errors))
	for _, fe := range body.Errors {
		names = append(names, fe.Field)
	}
	return names
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/health", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, repository.BackendMemory, body["backend"])
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestHealthDegradedWhenStoreUnreachable(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Ping = func(ctx context.Context) error { return errors.New("connection refused") }
	})
	rec := env.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodGet, "/api/products", "", nil)

	rec := env.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `path="/api/products"`)
}

func TestListProductsPaginates(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 25; i++ {
		env.product(fmt.Sprintf("roast-%02d", i), models.CategoryCoffee, 10)
	}

	rec := env.do(http.MethodGet, "/api/products?limit=10&page=3", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[map[string]json.RawMessage](t, rec)

	var products []models.Product
	require.NoError(t, json.Unmarshal(page["products"], &products))
	assert.Len(t, products, 5)
	assert.JSONEq(t, "3", string(page["totalPages"]))
	assert.JSONEq(t, "3", string(page["currentPage"]))
	assert.JSONEq(t, "25", string(page["total"]))

	rec = env.do(http.MethodGet, "/api/products?limit=10&page=4", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode[map[string]json.RawMessage](t, rec)
	assert.JSONEq(t, "[]", string(page["products"]))

	rec = env.do(http.MethodGet, "/api/products?limit=4&page=4611686018427387904", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode[map[string]json.RawMessage](t, rec)
	assert.JSONEq(t, "[]", string(page["products"]))
	assert.JSONEq(t, "7", string(page["totalPages"]))

	rec = env.do(http.MethodGet, "/api/products?limit=9223372036854775807", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode[map[string]json.RawMessage](t, rec)
	assert.JSONEq(t, "1", string(page["totalPages"]))
}

func TestListProductsFilters(t *testing.T) {
	env := newTestEnv(t)
	env.product("Ethiopia Yirgacheffe", models.CategoryCoffee, 18)
	env.product("Vanilla Latte", models.CategoryLatte, 5)
	env.product("Caramel Latte", models.CategoryLatte, 5)

	rec := env.do(http.MethodGet, "/api/products?category=latte&search=VANILLA", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[struct {
		Products []models.Product `json:"products"`
		Total    int              `json:"total"`
	}](t, rec)

	require.Equal(t, 1, page.Total)
	assert.Equal(t, "Vanilla Latte", page.Products[0].Name)
}

func TestGetProduct(t *testing.T) {
	env := newTestEnv(t)
	p := env.product("Cold Brew Concentrate", models.CategoryColdBrew, 14)

	rec := env.do(http.MethodGet, "/api/products/"+p.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, p.Name, decode[models.Product](t, rec).Name)

	rec = env.do(http.MethodGet, "/api/products/000000000000000000000000", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "product not found", decode[errorBody](t, rec).Message)
}

func TestProductMutationsRequireAdmin(t *testing.T) {
	env := newTestEnv(t)
	_, userToken := env.user("carol", models.RoleUser)
	_, adminToken := env.user("root", models.RoleAdmin)

	body := map[string]interface{}{
		"name":        "Flat White",
		"description": "Double ristretto with microfoam",
		"price":       4.5,
		"category":    "espresso",
		"image":       "/img/flat-white.jpg",
	}

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/api/products", "", body).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/api/products", "garbage", body).Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodPost, "/api/products", userToken, body).Code)

	rec := env.do(http.MethodPost, "/api/products", adminToken, body)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[models.Product](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.InStock)
	assert.Equal(t, []models.Review{}, created.Reviews)
}

func TestCreateProductValidation(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.user("root", models.RoleAdmin)

	rec := env.do(http.MethodPost, "/api/products", adminToken, map[string]interface{}{
		"name":     "Mystery",
		"category": "tea",
		"price":    -1,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "validation failed", body.Message)
	assert.ElementsMatch(t, []string{"description", "price", "category", "image"}, fieldNames(body))

	rec = env.do(http.MethodPost, "/api/products", adminToken, map[string]interface{}{
		"name":        "Flat White",
		"description": "d",
		"price":       4.5,
		"category":    "espresso",
		"image":       "x.jpg",
		"rating":      5,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/products", adminToken, `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateProductMergesTopLevelKeys(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.user("root", models.RoleAdmin)
	p := env.product("House Blend", models.CategoryCoffee, 12)

	rec := env.do(http.MethodPut, "/api/products/"+p.ID, adminToken, map[string]interface{}{
		"price":    13.25,
		"featured": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[models.Product](t, rec)
	assert.Equal(t, 13.25, updated.Price)
	assert.True(t, updated.Featured)
	assert.Equal(t, "House Blend", updated.Name)
	assert.Equal(t, p.Description, updated.Description)

	rec = env.do(http.MethodPut, "/api/products/000000000000000000000000", adminToken, map[string]interface{}{"price": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteProduct(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.user("root", models.RoleAdmin)
	p := env.product("Decaf", models.CategoryCoffee, 11)

	rec := env.do(http.MethodDelete, "/api/products/"+p.ID, adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/products/"+p.ID, "", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodDelete, "/api/products/"+p.ID, adminToken, nil).Code)
}

func TestReviewsRecomputeRating(t *testing.T) {
	env := newTestEnv(t)
	p := env.product("Cortado", models.CategoryEspresso, 4)
	_, alice := env.user("alice", models.RoleUser)
	_, bob := env.user("bob", models.RoleUser)

	rec := env.do(http.MethodPost, "/api/products/"+p.ID+"/reviews", alice, map[string]interface{}{"rating": 5, "comment": "great"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = env.do(http.MethodPost, "/api/products/"+p.ID+"/reviews", bob, map[string]interface{}{"rating": 2})
	require.Equal(t, http.StatusCreated, rec.Code)

	stored, err := env.store.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.InDelta(t, 3.5, stored.Rating, 1e-9)
	assert.Equal(t, 2, stored.NumReviews)
	assert.Equal(t, "alice", stored.Reviews[0].Name)

	rec = env.do(http.MethodPost, "/api/products/"+p.ID+"/reviews", alice, map[string]interface{}{"rating": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "product already reviewed", decode[errorBody](t, rec).Message)

	rec = env.do(http.MethodPost, "/api/products/"+p.ID+"/reviews", bob, map[string]interface{}{"rating": 6})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/api/products/"+p.ID+"/reviews", "", map[string]interface{}{"rating": 4}).Code)
}

func TestConcurrentReviewsAreAllKept(t *testing.T) {
	env := newTestEnv(t)
	p := env.product("Lungo", models.CategoryEspresso, 4)

	const reviewers = 12
	tokens := make([]string, reviewers)
	for i := range tokens {
		_, tokens[i] = env.user(fmt.Sprintf("reviewer%d", i), models.RoleUser)
	}

	codes := make([]int, reviewers)
	var wg sync.WaitGroup
	for i, token := range tokens {
		wg.Add(1)
		go func(i int, token string) {
			defer wg.Done()
			body := fmt.Sprintf(`{"rating":%d}`, i%5+1)
			req := httptest.NewRequest(http.MethodPost, "/api/products/"+p.ID+"/reviews", bytes.NewBufferString(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)
			codes[i] = rec.Code
		}(i, token)
	}
	wg.Wait()

	for i, code := range codes {
		assert.Equal(t, http.StatusCreated, code, "reviewer %d", i)
	}
	stored, err := env.store.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, reviewers, stored.NumReviews)
	assert.Len(t, stored.Reviews, reviewers)
}

func TestRegisterLoginMe(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name":     "Dana",
		"email":    "Dana@Example.com",
		"password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	registered := decode[struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}](t, rec)
	assert.Equal(t, "dana@example.com", registered.User.Email)
	assert.Equal(t, models.RoleUser, registered.User.Role)

	stored, err := env.store.GetUser(context.Background(), registered.User.ID)
	require.NoError(t, err)
	assert.True(t, auth.LooksHashed(stored.Password))

	rec = env.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Dana", "email": "dana@example.com", "password": "hunter22",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "user already exists", decode[errorBody](t, rec).Message)

	rec = env.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "dana@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = env.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "nobody@example.com", "password": "hunter22"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "DANA@example.com", "password": "hunter22"})
	require.Equal(t, http.StatusOK, rec.Code)
	token := decode[authResponse](t, rec).Token

	rec = env.do(http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, registered.User.ID, decode[models.User](t, rec).ID)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": "not-an-email", "password": "123"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.ElementsMatch(t, []string{"name", "email", "password"}, fieldNames(decode[errorBody](t, rec)))
}

func TestLoginThrottled(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Limiter = fixedLimiter{allowed: false} })
	rec := env.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@example.com", "password": "x"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestLoginProceedsWhenLimiterFails(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Limiter = fixedLimiter{err: errors.New("redis down")} })
	env.user("erin", models.RoleUser)

	rec := env.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "erin@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTokenForDeletedUserRejected(t *testing.T) {
	env := newTestEnv(t)
	u, token := env.user("ghost", models.RoleUser)
	_, err := env.store.DeleteUser(context.Background(), u.ID)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/auth/me", token, nil).Code)
}

func TestProfileUpdate(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user("frank", models.RoleUser)
	env.user("taken", models.RoleUser)

	rec := env.do(http.MethodPut, "/api/users/profile", token, map[string]interface{}{
		"name":     "Frank Ocean",
		"password": "new-secret",
		"address": map[string]string{
			"street": "1 Bean St", "city": "Portland", "zip": "97201", "country": "US",
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}](t, rec)
	assert.Equal(t, "Frank Ocean", resp.User.Name)
	require.NotNil(t, resp.User.Address)
	assert.Equal(t, "Portland", resp.User.Address.City)

	rec = env.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "frank@example.com", "password": "new-secret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPut, "/api/users/profile", token, map[string]string{"email": "taken@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/users/profile", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "frank@example.com", decode[models.User](t, rec).Email)
}

func TestAdminUserManagement(t *testing.T) {
	env := newTestEnv(t)
	admin, adminToken := env.user("root", models.RoleAdmin)
	user, userToken := env.user("gina", models.RoleUser)

	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/api/users", userToken, nil).Code)

	rec := env.do(http.MethodGet, "/api/users", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.User](t, rec), 2)

	rec = env.do(http.MethodGet, "/api/users/"+user.ID, adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gina", decode[models.User](t, rec).Name)

	rec = env.do(http.MethodPut, "/api/users/"+user.ID+"/role", adminToken, map[string]string{"role": "admin"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.RoleAdmin, decode[models.User](t, rec).Role)

	rec = env.do(http.MethodPut, "/api/users/"+user.ID+"/role", adminToken, map[string]string{"role": "owner"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPut, "/api/users/"+admin.ID+"/role", adminToken, map[string]string{"role": "user"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/users/000000000000000000000000", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func orderBody(items ...map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"orderItems": items,
		"shippingAddress": map[string]string{
			"street": "9 Crema Ave", "city": "Seattle", "state": "WA", "zip": "98101", "country": "US",
		},
		"paymentMethod": "PayPal",
	}
}

func TestOrderLifecycle(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.user("root", models.RoleAdmin)
	owner, ownerToken := env.user("hana", models.RoleUser)
	_, otherToken := env.user("ivan", models.RoleUser)
	beans := env.product("Kenya AA", models.CategoryCoffee, 12.99)
	latte := env.product("Oat Latte", models.CategoryLatte, 5.5)

	rec := env.do(http.MethodPost, "/api/orders", ownerToken, orderBody(
		map[string]interface{}{"product": beans.ID, "quantity": 2},
		map[string]interface{}{"product": latte.ID, "quantity": 1},
	))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[models.Order](t, rec)
	assert.Equal(t, owner.ID, order.User)
	assert.Equal(t, "Kenya AA", order.OrderItems[0].Name)
	assert.Equal(t, 12.99, order.OrderItems[0].Price)
	assert.Equal(t, 31.48, order.ItemsPrice)
	assert.Equal(t, 4.72, order.TaxPrice)
	assert.Equal(t, 10.0, order.ShippingPrice)
	assert.Equal(t, 46.2, order.TotalPrice)
	assert.False(t, order.IsPaid)

	price := 99.0
	_, err := env.store.UpdateProduct(context.Background(), beans.ID, models.ProductPatch{Price: &price})
	require.NoError(t, err)

	rec = env.do(http.MethodGet, "/api/orders/"+order.ID, ownerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 12.99, decode[models.Order](t, rec).OrderItems[0].Price)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/api/orders/"+order.ID, otherToken, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/orders/"+order.ID, adminToken, nil).Code)

	rec = env.do(http.MethodPut, "/api/orders/"+order.ID+"/pay", ownerToken, map[string]string{
		"id": "PAY-1", "status": "COMPLETED", "email": "hana@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	paid := decode[models.Order](t, rec)
	assert.True(t, paid.IsPaid)
	require.NotNil(t, paid.PaidAt)
	require.NotNil(t, paid.PaymentResult)
	assert.Equal(t, "PAY-1", paid.PaymentResult.ID)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPut, "/api/orders/"+order.ID+"/pay", ownerToken, nil).Code)

	assert.Equal(t, http.StatusForbidden, env.do(http.MethodPut, "/api/orders/"+order.ID+"/deliver", ownerToken, nil).Code)
	rec = env.do(http.MethodPut, "/api/orders/"+order.ID+"/deliver", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[models.Order](t, rec).IsDelivered)

	assert.Equal(t, []events.Kind{events.OrderPlaced, events.OrderPaid, events.OrderDelivered}, env.notifier.kinds())

	rec = env.do(http.MethodGet, "/api/orders/mine", ownerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Order](t, rec), 1)

	rec = env.do(http.MethodGet, "/api/orders/mine", otherToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/api/orders", ownerToken, nil).Code)
	rec = env.do(http.MethodGet, "/api/orders", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Order](t, rec), 1)
}

func TestCreateOrderValidation(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user("jade", models.RoleUser)
	p := env.product("Mocha", models.CategorySpecialty, 6)

	rec := env.do(http.MethodPost, "/api/orders", token, orderBody())
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, fieldNames(decode[errorBody](t, rec)), "orderItems")

	rec = env.do(http.MethodPost, "/api/orders", token, orderBody(
		map[string]interface{}{"product": p.ID, "quantity": 0},
	))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, fieldNames(decode[errorBody](t, rec)), "orderItems[0].quantity")

	rec = env.do(http.MethodPost, "/api/orders", token, orderBody(
		map[string]interface{}{"product": p.ID, "quantity": 1},
		map[string]interface{}{"product": "000000000000000000000000", "quantity": 1},
	))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{"orderItems[1].product"}, fieldNames(decode[errorBody](t, rec)))
	assert.Empty(t, env.notifier.kinds())
}

func TestOrderHistory(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.user("root", models.RoleAdmin)
	_, token := env.user("kim", models.RoleUser)
	p := env.product("Affogato", models.CategorySpecialty, 7)

	rec := env.do(http.MethodPost, "/api/orders", token, orderBody(map[string]interface{}{"product": p.ID, "quantity": 1}))
	require.Equal(t, http.StatusCreated, rec.Code)
	order := decode[models.Order](t, rec)

	for _, action := range []string{"order_placed", "order_paid"} {
		require.NoError(t, env.store.CreateAuditLog(context.Background(), &repository.AuditLog{
			Service: "storefront", Action: action, EntityID: order.ID,
		}))
		time.Sleep(2 * time.Millisecond)
	}

	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/api/orders/"+order.ID+"/history", token, nil).Code)

	rec = env.do(http.MethodGet, "/api/orders/"+order.ID+"/history?limit=1", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decode[[]repository.AuditLog](t, rec)
	require.Len(t, logs, 1)
	assert.Equal(t, "order_paid", logs[0].Action)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/orders/"+order.ID+"/history?limit=x", adminToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/orders/000000000000000000000000/history", adminToken, nil).Code)
}

type failingProducts struct {
	repository.ProductStore
}

func (failingProducts) ListProducts(ctx context.Context) ([]models.Product, error) {
	return nil, errors.New("socket closed")
}

func TestUnexpectedErrorsAreHidden(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Products = failingProducts{} })

	rec := env.do(http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, internalErrorMessage, decode[errorBody](t, rec).Message)
	assert.NotContains(t, rec.Body.String(), "socket closed")
}

func TestSwaggerDocument(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/swagger/doc.json", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/products/{id}/reviews")
}
