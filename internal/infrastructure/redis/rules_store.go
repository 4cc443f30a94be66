package redis

import (
	"context"
	"encoding/json"
	"errors"

	"auction-storefront/internal/domain"

	"github.com/go-redis/redis/v8"
)

const bidRulesKey = "bid_validation_rules"

type RedisBidRulesStore struct {
	client *redis.Client
}

func NewRedisBidRulesStore(client *redis.Client) *RedisBidRulesStore {
	return &RedisBidRulesStore{client: client}
}

// LoadRules returns the stored rules, seeding the defaults when none exist.
func (r *RedisBidRulesStore) LoadRules(ctx context.Context) (*domain.BidValidationRules, error) {
	data, err := r.client.Get(ctx, bidRulesKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			rules := domain.DefaultBidValidationRules()
			if err := r.SaveRules(ctx, rules); err != nil {
				return nil, err
			}
			return rules, nil
		}
		return nil, err
	}

	var rules domain.BidValidationRules
	if err := json.Unmarshal([]byte(data), &rules); err != nil {
		return nil, err
	}
	return &rules, nil
}

func (r *RedisBidRulesStore) SaveRules(ctx context.Context, rules *domain.BidValidationRules) error {
	data, err := json.Marshal(rules)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, bidRulesKey, string(data), 0).Err()
}
