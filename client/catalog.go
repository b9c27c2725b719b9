package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	models "storefront/model"
)

// CatalogClient reads the public product catalog. No credential is needed.
type CatalogClient struct {
	c *Client
}

func NewCatalogClient(c *Client) *CatalogClient {
	return &CatalogClient{c: c}
}

func (cc *CatalogClient) Products(ctx context.Context) ([]models.Product, error) {
	var ps []models.Product
	err := cc.c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/products",
		out:      &ps,
		fallback: "Failed to fetch products",
	})
	return ps, err
}

// Categories returns the catalog's category names numbered from 1 in the
// order the service lists them.
func (cc *CatalogClient) Categories(ctx context.Context) ([]models.Category, error) {
	var names []string
	err := cc.c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/products/categories",
		out:      &names,
		fallback: "Failed to fetch categories",
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.Category, 0, len(names))
	for i, n := range names {
		out = append(out, models.Category{ID: i + 1, Name: n})
	}
	return out, nil
}

func (cc *CatalogClient) Product(ctx context.Context, id int64) (models.Product, error) {
	var p models.Product
	err := cc.c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/products/" + strconv.FormatInt(id, 10),
		out:      &p,
		fallback: fmt.Sprintf("Failed to fetch product with ID: %d", id),
	})
	return p, err
}
