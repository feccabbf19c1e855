package models

import (
	"time"
)

type Category string

const (
	CategoryCoffee     Category = "coffee"
	CategoryEspresso   Category = "espresso"
	CategoryLatte      Category = "latte"
	CategoryCappuccino Category = "cappuccino"
	CategoryColdBrew   Category = "cold-brew"
	CategorySpecialty  Category = "specialty"
)

var Categories = []Category{
	CategoryCoffee,
	CategoryEspresso,
	CategoryLatte,
	CategoryCappuccino,
	CategoryColdBrew,
	CategorySpecialty,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

type Review struct {
	User      string    `bson:"user" json:"user"`
	Name      string    `bson:"name" json:"name"`
	Rating    int       `bson:"rating" json:"rating"`
	Comment   string    `bson:"comment,omitempty" json:"comment,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

type Product struct {
	ID            string    `bson:"_id" json:"id"`
	Name          string    `bson:"name" json:"name"`
	Description   string    `bson:"description" json:"description"`
	Price         float64   `bson:"price" json:"price"`
	Category      Category  `bson:"category" json:"category"`
	Image         string    `bson:"image" json:"image"`
	Images        []string  `bson:"images" json:"images"`
	InStock       bool      `bson:"inStock" json:"inStock"`
	StockQuantity int       `bson:"stockQuantity" json:"stockQuantity"`
	Featured      bool      `bson:"featured" json:"featured"`
	Rating        float64   `bson:"rating" json:"rating"`
	NumReviews    int       `bson:"numReviews" json:"numReviews"`
	Reviews       []Review  `bson:"reviews" json:"reviews"`
	CreatedAt     time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt" json:"updatedAt"`
}

// HasReviewFrom reports whether userID already reviewed the product.
func (p *Product) HasReviewFrom(userID string) bool {
	for _, r := range p.Reviews {
		if r.User == userID {
			return true
		}
	}
	return false
}

// AddReview appends r and recomputes Rating as the plain mean of all ratings.
func (p *Product) AddReview(r Review) {
	p.Reviews = append(p.Reviews, r)
	p.NumReviews = len(p.Reviews)

	var sum float64
	for _, review := range p.Reviews {
		sum += float64(review.Rating)
	}
	p.Rating = sum / float64(len(p.Reviews))
}

func (p Product) Clone() Product {
	out := p
	out.Images = append(make([]string, 0, len(p.Images)), p.Images...)
	out.Reviews = append(make([]Review, 0, len(p.Reviews)), p.Reviews...)
	return out
}

// ProductPatch carries the top-level keys of a partial update. A nil field
// is absent and leaves the stored value alone.
type ProductPatch struct {
	Name          *string
	Description   *string
	Price         *float64
	Category      *Category
	Image         *string
	Images        *[]string
	InStock       *bool
	StockQuantity *int
	Featured      *bool
	Rating        *float64
	NumReviews    *int
	Reviews       *[]Review
}

func (p ProductPatch) Empty() bool {
	return p == ProductPatch{}
}

func (p ProductPatch) Apply(dst *Product) {
	if p.Name != nil {
		dst.Name = *p.Name
	}
	if p.Description != nil {
		dst.Description = *p.Description
	}
	if p.Price != nil {
		dst.Price = *p.Price
	}
	if p.Category != nil {
		dst.Category = *p.Category
	}
	if p.Image != nil {
		dst.Image = *p.Image
	}
	if p.Images != nil {
		dst.Images = append(make([]string, 0, len(*p.Images)), (*p.Images)...)
	}
	if p.InStock != nil {
		dst.InStock = *p.InStock
	}
	if p.StockQuantity != nil {
		dst.StockQuantity = *p.StockQuantity
	}
	if p.Featured != nil {
		dst.Featured = *p.Featured
	}
	if p.Rating != nil {
		dst.Rating = *p.Rating
	}
	if p.NumReviews != nil {
		dst.NumReviews = *p.NumReviews
	}
	if p.Reviews != nil {
		dst.Reviews = append(make([]Review, 0, len(*p.Reviews)), (*p.Reviews)...)
	}
}
