package plan

import (
	"context"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"github.com/CamDog38/ShopDelta/internal/tenant"
)

// Plan is a subscription tier.
type Plan string

const (
	Free    Plan = "free"
	Starter Plan = "starter"
	Pro     Plan = "pro"
)

// ErrUnknownPlan is returned when saving a value outside the known tiers.
var ErrUnknownPlan = errors.New("plan: unknown plan")

// Valid reports whether p is a known tier.
func (p Plan) Valid() bool {
	switch p {
	case Free, Starter, Pro:
		return true
	}
	return false
}

// Store keeps the shop's plan in Redis under shop:{shop}:plan.
type Store struct {
	Client redis.Cmdable
}

func key(shop string) string {
	return tenant.PrefixKey(shop, "plan")
}

// Get returns the stored plan. ok is false when nothing, or an unrecognised value, is stored.
func (s Store) Get(ctx context.Context, shop string) (p Plan, ok bool, err error) {
	raw, err := s.Client.Get(ctx, key(shop)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load plan: %w", err)
	}
	p = Plan(raw)
	if !p.Valid() {
		return "", false, nil
	}
	return p, true, nil
}

// Set stores the plan of a shop.
func (s Store) Set(ctx context.Context, shop string, p Plan) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPlan, p)
	}
	return s.Client.Set(ctx, key(shop), string(p), 0).Err()
}

// Delete forgets the plan of a shop.
func (s Store) Delete(ctx context.Context, shop string) error {
	return s.Client.Del(ctx, key(shop)).Err()
}
