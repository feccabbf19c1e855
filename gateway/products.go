package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Tgsps/coffee-sub000/pkg/catalog"
	"github.com/Tgsps/coffee-sub000/pkg/models"
	"github.com/Tgsps/coffee-sub000/pkg/repository"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type createProductRequest struct {
	Name          string   `json:"name" binding:"required,max=200"`
	Description   string   `json:"description" binding:"required"`
	Price         *float64 `json:"price" binding:"required,gte=0"`
	Category      string   `json:"category" binding:"required,oneof=coffee espresso latte cappuccino cold-brew specialty"`
	Image         string   `json:"image" binding:"required"`
	Images        []string `json:"images" binding:"omitempty,dive,required"`
	InStock       *bool    `json:"inStock"`
	StockQuantity *int     `json:"stockQuantity" binding:"omitempty,gte=0"`
	Featured      *bool    `json:"featured"`
}

// updateProductRequest only carries top-level keys. Reviews and rating are
// managed through the review endpoint.
type updateProductRequest struct {
	Name          *string   `json:"name" binding:"omitempty,max=200"`
	Description   *string   `json:"description"`
	Price         *float64  `json:"price" binding:"omitempty,gte=0"`
	Category      *string   `json:"category" binding:"omitempty,oneof=coffee espresso latte cappuccino cold-brew specialty"`
	Image         *string   `json:"image"`
	Images        *[]string `json:"images" binding:"omitempty,dive,required"`
	InStock       *bool     `json:"inStock"`
	StockQuantity *int      `json:"stockQuantity" binding:"omitempty,gte=0"`
	Featured      *bool     `json:"featured"`
}

type reviewRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment" binding:"max=1000"`
}

func (r *createProductRequest) product() *models.Product {
	p := &models.Product{
		Name:        strings.TrimSpace(r.Name),
		Description: r.Description,
		Price:       *r.Price,
		Category:    models.Category(r.Category),
		Image:       r.Image,
		Images:      r.Images,
		InStock:     true,
	}
	if r.InStock != nil {
		p.InStock = *r.InStock
	}
	if r.StockQuantity != nil {
		p.StockQuantity = *r.StockQuantity
	}
	if r.Featured != nil {
		p.Featured = *r.Featured
	}
	return p
}

func (r *updateProductRequest) patch() (models.ProductPatch, error) {
	patch := models.ProductPatch{
		Description:   r.Description,
		Price:         r.Price,
		Image:         r.Image,
		Images:        r.Images,
		InStock:       r.InStock,
		StockQuantity: r.StockQuantity,
		Featured:      r.Featured,
	}
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		if name == "" {
			return patch, invalidFields(FieldError{Field: "name", Message: "must not be empty"})
		}
		patch.Name = &name
	}
	if r.Category != nil {
		category := models.Category(*r.Category)
		patch.Category = &category
	}
	return patch, nil
}

// @Summary List products
// @Description Filters by category, featured and a case-insensitive search over name and description, then paginates.
// @Tags products
// @Produce json
// @Param category query string false "category"
// @Param featured query bool false "featured only"
// @Param search query string false "search term"
// @Param page query int false "page, 1-based"
// @Param limit query int false "page size"
// @Success 200 {object} catalog.Page
// @Router /api/products [get]
func (g *Gateway) listProducts(c *gin.Context) {
	products, err := g.deps.Products.ListProducts(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, catalog.Apply(products, catalog.ParseQuery(c.Request.URL.Query())))
}

// @Summary Get a product
// @Tags products
// @Produce json
// @Param id path string true "product id"
// @Success 200 {object} models.Product
// @Router /api/products/{id} [get]
func (g *Gateway) getProduct(c *gin.Context) {
	product, err := g.deps.Products.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		g.fail(c, lookupError(err, "product"))
		return
	}
	c.JSON(http.StatusOK, product)
}

// @Summary Create a product
// @Tags products
// @Accept json
// @Produce json
// @Success 201 {object} models.Product
// @Router /api/products [post]
func (g *Gateway) createProduct(c *gin.Context) {
	var req createProductRequest
	if err := bindJSON(c, &req); err != nil {
		g.fail(c, err)
		return
	}

	product, err := g.deps.Products.CreateProduct(c.Request.Context(), req.product())
	if err != nil {
		g.fail(c, err)
		return
	}

	g.logger.Info("Product created",
		zap.String("product_id", product.ID),
		zap.String("admin_id", currentUser(c).ID))
	c.JSON(http.StatusCreated, product)
}

// @Summary Update a product
// @Description Shallow merge of the supplied top-level keys.
// @Tags products
// @Accept json
// @Produce json
// @Param id path string true "product id"
// @Success 200 {object} models.Product
// @Router /api/products/{id} [put]
func (g *Gateway) updateProduct(c *gin.Context) {
	var req updateProductRequest
	if err := bindJSON(c, &req); err != nil {
		g.fail(c, err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		g.fail(c, err)
		return
	}

	product, err := g.deps.Products.UpdateProduct(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		g.fail(c, lookupError(err, "product"))
		return
	}
	c.JSON(http.StatusOK, product)
}

// @Summary Delete a product
// @Tags products
// @Produce json
// @Param id path string true "product id"
// @Router /api/products/{id} [delete]
func (g *Gateway) deleteProduct(c *gin.Context) {
	product, err := g.deps.Products.DeleteProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		g.fail(c, lookupError(err, "product"))
		return
	}

	g.logger.Info("Product deleted",
		zap.String("product_id", product.ID),
		zap.String("admin_id", currentUser(c).ID))
	c.JSON(http.StatusOK, gin.H{"message": "product removed", "product": product})
}

// @Summary Review a product
// @Description One review per user. The product rating becomes the mean of all ratings.
// @Tags products
// @Accept json
// @Produce json
// @Param id path string true "product id"
// @Router /api/products/{id}/reviews [post]
func (g *Gateway) createReview(c *gin.Context) {
	var req reviewRequest
	if err := bindJSON(c, &req); err != nil {
		g.fail(c, err)
		return
	}

	user := currentUser(c)
	updated, err := g.deps.Products.AddReview(c.Request.Context(), c.Param("id"), models.Review{
		User:    user.ID,
		Name:    user.Name,
		Rating:  req.Rating,
		Comment: strings.TrimSpace(req.Comment),
	})
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyReviewed) {
			g.fail(c, badRequest("product already reviewed"))
			return
		}
		g.fail(c, lookupError(err, "product"))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":    "review added",
		"rating":     updated.Rating,
		"numReviews": updated.NumReviews,
		"product":    updated,
	})
}
