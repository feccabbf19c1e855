package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Tgsps/coffee-sub000/pkg/events"
	"github.com/Tgsps/coffee-sub000/pkg/models"
	"github.com/Tgsps/coffee-sub000/pkg/repository"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type orderItemRequest struct {
	Product  string `json:"product" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1,max=100"`
}

type createOrderRequest struct {
	OrderItems      []orderItemRequest `json:"orderItems" binding:"required,min=1,dive"`
	ShippingAddress addressRequest     `json:"shippingAddress"`
	PaymentMethod   string             `json:"paymentMethod" binding:"required,max=50"`
}

type payOrderRequest struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	UpdateTime string `json:"updateTime"`
	Email      string `json:"email" binding:"omitempty,email"`
}

// lineItems snapshots name, image and unit price of every ordered product.
// Unknown products are reported as field errors.
func (g *Gateway) lineItems(c *gin.Context, req []orderItemRequest) ([]models.OrderItem, error) {
	items := make([]models.OrderItem, 0, len(req))
	var missing []FieldError
	for i, line := range req {
		product, err := g.deps.Products.GetProduct(c.Request.Context(), line.Product)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				missing = append(missing, FieldError{
					Field:   fmt.Sprintf("orderItems[%d].product", i),
					Message: "product not found",
				})
				continue
			}
			return nil, err
		}
		items = append(items, models.OrderItem{
			Product:  product.ID,
			Name:     product.Name,
			Image:    product.Image,
			Quantity: line.Quantity,
			Price:    product.Price,
		})
	}
	if len(missing) > 0 {
		return nil, invalidFields(missing...)
	}
	return items, nil
}

// loadOrder fetches the order and checks that the caller owns it or is an admin.
func (g *Gateway) loadOrder(c *gin.Context) (*models.Order, error) {
	order, err := g.deps.Orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		return nil, lookupError(err, "order")
	}
	user := currentUser(c)
	if order.User != user.ID && !user.IsAdmin() {
		return nil, forbidden("not authorized to access this order")
	}
	return order, nil
}

func (g *Gateway) notify(kind events.Kind, order *models.Order) {
	if g.deps.Events == nil {
		return
	}
	g.deps.Events.Notify(events.OrderEvent{
		Kind:       kind,
		OrderID:    order.ID,
		UserID:     order.User,
		TotalPrice: order.TotalPrice,
	})
}

// @Summary Place an order
// @Description Prices are captured from the catalog at creation and never recalculated. Stock is not decremented.
// @Tags orders
// @Accept json
// @Produce json
// @Success 201 {object} models.Order
// @Router /api/orders [post]
func (g *Gateway) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := bindJSON(c, &req); err != nil {
		g.fail(c, err)
		return
	}

	items, err := g.lineItems(c, req.OrderItems)
	if err != nil {
		g.fail(c, err)
		return
	}
	prices := models.PriceOrder(items)

	order, err := g.deps.Orders.CreateOrder(c.Request.Context(), &models.Order{
		User:            currentUser(c).ID,
		OrderItems:      items,
		ShippingAddress: req.ShippingAddress.address(),
		PaymentMethod:   req.PaymentMethod,
		ItemsPrice:      prices.Items,
		TaxPrice:        prices.Tax,
		ShippingPrice:   prices.Shipping,
		TotalPrice:      prices.Total,
	})
	if err != nil {
		g.fail(c, err)
		return
	}

	if g.deps.Metrics != nil {
		g.deps.Metrics.OrderPlaced()
	}
	g.notify(events.OrderPlaced, order)
	g.logger.Info("Order placed",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.User),
		zap.Float64("total", order.TotalPrice))
	c.JSON(http.StatusCreated, order)
}

// @Summary Own orders
// @Tags orders
// @Produce json
// @Success 200 {array} models.Order
// @Router /api/orders/mine [get]
func (g *Gateway) listMyOrders(c *gin.Context) {
	orders, err := g.deps.Orders.ListOrdersByUser(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// @Summary List all orders
// @Tags orders
// @Produce json
// @Success 200 {array} models.Order
// @Router /api/orders [get]
func (g *Gateway) listOrders(c *gin.Context) {
	orders, err := g.deps.Orders.ListOrders(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// @Summary Get an order
// @Tags orders
// @Produce json
// @Param id path string true "order id"
// @Success 200 {object} models.Order
// @Router /api/orders/{id} [get]
func (g *Gateway) getOrder(c *gin.Context) {
	order, err := g.loadOrder(c)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// @Summary Mark an order paid
// @Tags orders
// @Accept json
// @Produce json
// @Param id path string true "order id"
// @Success 200 {object} models.Order
// @Router /api/orders/{id}/pay [put]
func (g *Gateway) payOrder(c *gin.Context) {
	var req payOrderRequest
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			g.fail(c, err)
			return
		}
	}

	order, err := g.loadOrder(c)
	if err != nil {
		g.fail(c, err)
		return
	}
	if order.IsPaid {
		g.fail(c, badRequest("order already paid"))
		return
	}

	paid := true
	paidAt := time.Now()
	patch := models.OrderPatch{IsPaid: &paid, PaidAt: &paidAt}
	if req != (payOrderRequest{}) {
		patch.PaymentResult = &models.PaymentResult{
			ID:         req.ID,
			Status:     req.Status,
			UpdateTime: req.UpdateTime,
			Email:      req.Email,
		}
	}

	updated, err := g.deps.Orders.UpdateOrder(c.Request.Context(), order.ID, patch)
	if err != nil {
		g.fail(c, lookupError(err, "order"))
		return
	}

	g.notify(events.OrderPaid, updated)
	c.JSON(http.StatusOK, updated)
}

// @Summary Mark an order delivered
// @Tags orders
// @Produce json
// @Param id path string true "order id"
// @Success 200 {object} models.Order
// @Router /api/orders/{id}/deliver [put]
func (g *Gateway) deliverOrder(c *gin.Context) {
	order, err := g.deps.Orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		g.fail(c, lookupError(err, "order"))
		return
	}
	if order.IsDelivered {
		g.fail(c, badRequest("order already delivered"))
		return
	}

	delivered := true
	deliveredAt := time.Now()
	updated, err := g.deps.Orders.UpdateOrder(c.Request.Context(), order.ID, models.OrderPatch{
		IsDelivered: &delivered,
		DeliveredAt: &deliveredAt,
	})
	if err != nil {
		g.fail(c, lookupError(err, "order"))
		return
	}

	g.notify(events.OrderDelivered, updated)
	c.JSON(http.StatusOK, updated)
}

// @Summary Order event history
// @Tags orders
// @Produce json
// @Param id path string true "order id"
// @Param limit query int false "max entries"
// @Success 200 {array} repository.AuditLog
// @Router /api/orders/{id}/history [get]
func (g *Gateway) orderHistory(c *gin.Context) {
	order, err := g.deps.Orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		g.fail(c, lookupError(err, "order"))
		return
	}

	limit := int64(defaultHistoryLimit)
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			g.fail(c, invalidFields(FieldError{Field: "limit", Message: "must be a positive integer"}))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	logs, err := g.deps.Audit.GetAuditLogs(c.Request.Context(), order.ID, limit)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}
