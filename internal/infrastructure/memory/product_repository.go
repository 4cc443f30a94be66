package memory

import (
	"context"
	"sort"
	"time"

	"auction-storefront/internal/domain"
)

type ProductRepository struct {
	access accessor
	clock  func() time.Time
}

func (r *ProductRepository) CreateProduct(ctx context.Context, product *domain.Product) error {
	return r.access(func(d *data) error {
		product.Version = 1
		product.UpdatedAt = r.clock().UTC()
		d.products[product.ID] = cloneProduct(product)
		return nil
	})
}

func (r *ProductRepository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var product *domain.Product
	err := r.access(func(d *data) error {
		p, ok := d.products[id]
		if !ok {
			return domain.ErrProductNotFound
		}
		product = cloneProduct(p)
		return nil
	})
	return product, err
}

func (r *ProductRepository) UpdateProduct(ctx context.Context, product *domain.Product) error {
	return r.access(func(d *data) error {
		stored, ok := d.products[product.ID]
		if !ok {
			return domain.ErrProductNotFound
		}
		if stored.Version != product.Version {
			return domain.ErrVersionConflict
		}
		product.Version++
		product.UpdatedAt = r.clock().UTC()
		d.products[product.ID] = cloneProduct(product)
		return nil
	})
}

func (r *ProductRepository) GetAuctionsToEnd(ctx context.Context, now time.Time) ([]*domain.Product, error) {
	products := []*domain.Product{}
	err := r.access(func(d *data) error {
		for _, p := range d.products {
			if p.IsAuction() && !p.AuctionEnded &&
				p.AvailableEndDateTimeUTC != nil && p.AvailableEndDateTimeUTC.Before(now) {
				products = append(products, cloneProduct(p))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(products, func(i, j int) bool {
		return products[i].AvailableEndDateTimeUTC.Before(*products[j].AvailableEndDateTimeUTC)
	})
	return products, nil
}

func cloneProduct(product *domain.Product) *domain.Product {
	if product == nil {
		return nil
	}
	clone := *product
	if product.AvailableEndDateTimeUTC != nil {
		end := *product.AvailableEndDateTimeUTC
		clone.AvailableEndDateTimeUTC = &end
	}
	return &clone
}
