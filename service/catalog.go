package service

import (
	"context"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	models "storefront/model"
)

// CatalogRemote is the public product catalog.
type CatalogRemote interface {
	Products(ctx context.Context) ([]models.Product, error)
	Categories(ctx context.Context) ([]models.Category, error)
	Product(ctx context.Context, id int64) (models.Product, error)
}

// Filter narrows a catalog listing. Empty fields match everything.
type Filter struct {
	Category string `json:"category,omitempty"`
	Query    string `json:"q,omitempty"`
}

type CatalogPage struct {
	Products   []models.Product  `json:"products"`
	Categories []models.Category `json:"categories"`
}

type Catalog struct {
	remote CatalogRemote
	group  singleflight.Group
}

func NewCatalog(remote CatalogRemote) *Catalog {
	return &Catalog{remote: remote}
}

// Browse loads products and categories together and applies f to the products.
func (c *Catalog) Browse(ctx context.Context, f Filter) (CatalogPage, error) {
	var page CatalogPage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ps, err := c.remote.Products(gctx)
		page.Products = ps
		return err
	})
	g.Go(func() error {
		cs, err := c.remote.Categories(gctx)
		page.Categories = cs
		return err
	})
	if err := g.Wait(); err != nil {
		return CatalogPage{}, err
	}
	page.Products = FilterProducts(page.Products, f)
	return page, nil
}

// FilterProducts keeps products in f.Category whose title contains f.Query,
// ignoring case.
func FilterProducts(ps []models.Product, f Filter) []models.Product {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]models.Product, 0, len(ps))
	for _, p := range ps {
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Title), q) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Product fetches one product; concurrent lookups of the same id share a call.
// The shared call does not end when one caller gives up; each caller waits
// only as long as its own ctx allows.
func (c *Catalog) Product(ctx context.Context, id int64) (models.Product, error) {
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(strconv.FormatInt(id, 10), func() (any, error) {
		return c.remote.Product(shared, id)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return models.Product{}, res.Err
		}
		return res.Val.(models.Product), nil
	case <-ctx.Done():
		return models.Product{}, ctx.Err()
	}
}
