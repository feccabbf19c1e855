// Package catalog filters and paginates product listings.
package catalog

import (
	"strconv"
	"strings"

	"github.com/Tgsps/coffee-sub000/pkg/models"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

type Query struct {
	Category string
	Featured bool
	Search   string
	Page     int
	Limit    int
}

// Page is the JSON body of a product listing.
type Page struct {
	Products    []models.Product `json:"products"`
	TotalPages  int              `json:"totalPages"`
	CurrentPage int              `json:"currentPage"`
	Total       int              `json:"total"`
}

// Params is the subset of url.Values the query reads.
type Params interface {
	Get(key string) string
}

// ParseQuery coerces raw parameters. Page and limit fall back to their
// defaults when missing, non-numeric or below one; limit is capped at
// MaxLimit.
func ParseQuery(params Params) Query {
	featured, _ := strconv.ParseBool(params.Get("featured"))
	return Query{
		Category: params.Get("category"),
		Featured: featured,
		Search:   params.Get("search"),
		Page:     positiveOr(params.Get("page"), DefaultPage),
		Limit:    min(positiveOr(params.Get("limit"), DefaultLimit), MaxLimit),
	}
}

func positiveOr(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

// Apply filters by category, then featured, then search, counts, and slices
// out the requested page. Out-of-range pages are empty.
func Apply(products []models.Product, q Query) Page {
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.Limit < 1 {
		q.Limit = DefaultLimit
	}

	filtered := make([]models.Product, 0, len(products))
	needle := strings.ToLower(q.Search)
	for _, p := range products {
		if q.Category != "" && string(p.Category) != q.Category {
			continue
		}
		if q.Featured && !p.Featured {
			continue
		}
		if needle != "" && !matches(p, needle) {
			continue
		}
		filtered = append(filtered, p)
	}

	total := len(filtered)
	totalPages := total / q.Limit
	if total%q.Limit != 0 {
		totalPages++
	}

	// Compare page numbers before multiplying so huge values cannot wrap.
	start, end := total, total
	if q.Page-1 < totalPages {
		start = (q.Page - 1) * q.Limit
		if total-start > q.Limit {
			end = start + q.Limit
		}
	}

	return Page{
		Products:    filtered[start:end],
		TotalPages:  totalPages,
		CurrentPage: q.Page,
		Total:       total,
	}
}

func matches(p models.Product, needle string) bool {
	return strings.Contains(strings.ToLower(p.Name), needle) ||
		strings.Contains(strings.ToLower(p.Description), needle)
}
