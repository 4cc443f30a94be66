package memory

import (
	"context"
	"sort"

	"auction-storefront/internal/domain"
)

type BidRepository struct {
	access accessor
}

func (r *BidRepository) GetBid(ctx context.Context, id string) (*domain.Bid, error) {
	var bid *domain.Bid
	err := r.access(func(d *data) error {
		b, ok := d.bids[id]
		if !ok {
			return domain.ErrBidNotFound
		}
		bid = cloneBid(b)
		return nil
	})
	return bid, err
}

func (r *BidRepository) GetLatestBid(ctx context.Context, productID string) (*domain.Bid, error) {
	bids, err := r.filter(func(b *domain.Bid) bool { return b.ProductID == productID })
	if err != nil || len(bids) == 0 {
		return nil, err
	}
	return bids[len(bids)-1], nil
}

func (r *BidRepository) GetHighestBid(ctx context.Context, productID string) (*domain.Bid, error) {
	bids, err := r.filter(func(b *domain.Bid) bool { return b.ProductID == productID })
	if err != nil || len(bids) == 0 {
		return nil, err
	}
	// bids are in chronological order, so the first maximum is the earliest
	highest := bids[0]
	for _, b := range bids[1:] {
		if b.Amount > highest.Amount {
			highest = b
		}
	}
	return highest, nil
}

func (r *BidRepository) GetBidsByProductID(ctx context.Context, productID string) ([]*domain.Bid, error) {
	return r.filter(func(b *domain.Bid) bool { return b.ProductID == productID })
}

func (r *BidRepository) GetBidsByCustomerID(ctx context.Context, customerID string) ([]*domain.Bid, error) {
	return r.filter(func(b *domain.Bid) bool { return b.CustomerID == customerID })
}

func (r *BidRepository) GetBidsByOrderID(ctx context.Context, orderID string) ([]*domain.Bid, error) {
	if orderID == "" {
		return []*domain.Bid{}, nil
	}
	return r.filter(func(b *domain.Bid) bool { return b.OrderID == orderID })
}

func (r *BidRepository) InsertBid(ctx context.Context, bid *domain.Bid) error {
	return r.access(func(d *data) error {
		if _, ok := d.bids[bid.ID]; ok {
			return domain.ErrBidExists
		}
		d.bids[bid.ID] = cloneBid(bid)
		return nil
	})
}

func (r *BidRepository) UpdateBid(ctx context.Context, bid *domain.Bid) error {
	return r.access(func(d *data) error {
		if _, ok := d.bids[bid.ID]; !ok {
			return domain.ErrBidNotFound
		}
		d.bids[bid.ID] = cloneBid(bid)
		return nil
	})
}

func (r *BidRepository) DeleteBid(ctx context.Context, id string) error {
	return r.access(func(d *data) error {
		if _, ok := d.bids[id]; !ok {
			return domain.ErrBidNotFound
		}
		delete(d.bids, id)
		return nil
	})
}

func (r *BidRepository) DeleteBidsByOrderID(ctx context.Context, orderID string) (int64, error) {
	if orderID == "" {
		return 0, nil
	}
	var removed int64
	err := r.access(func(d *data) error {
		for id, b := range d.bids {
			if b.OrderID == orderID {
				delete(d.bids, id)
				removed++
			}
		}
		return nil
	})
	return removed, err
}

// filter returns copies of the matching bids ordered by date, then id.
func (r *BidRepository) filter(match func(b *domain.Bid) bool) ([]*domain.Bid, error) {
	bids := []*domain.Bid{}
	err := r.access(func(d *data) error {
		for _, b := range d.bids {
			if match(b) {
				bids = append(bids, cloneBid(b))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(bids, func(i, j int) bool {
		if !bids[i].Date.Equal(bids[j].Date) {
			return bids[i].Date.Before(bids[j].Date)
		}
		return bids[i].ID < bids[j].ID
	})
	return bids, nil
}

func cloneBid(bid *domain.Bid) *domain.Bid {
	if bid == nil {
		return nil
	}
	clone := *bid
	return &clone
}
