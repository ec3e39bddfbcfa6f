package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// priceTTL expires prices of instruments that stopped trading.
const priceTTL = 24 * time.Hour

// PriceCache implements domain.PriceCache using Redis hashes. Each
// instrument's last trade lives at "<prefix>:price:<instrument>" with fields
// "price" and "ts" (Unix nanoseconds).
type PriceCache struct {
	c *Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{c: c}
}

func (pc *PriceCache) key(inst domain.Instrument) string {
	return pc.c.Key("price", inst.String())
}

// SetPrice stores the latest price and its timestamp. Older updates never
// overwrite newer ones only by convention of the single stream writer.
func (pc *PriceCache) SetPrice(ctx context.Context, inst domain.Instrument, price float64, ts time.Time) error {
	key := pc.key(inst)
	_, err := pc.c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			"price", strconv.FormatFloat(price, 'f', -1, 64),
			"ts", strconv.FormatInt(ts.UnixNano(), 10),
		)
		p.Expire(ctx, key, priceTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: set price %s: %w", inst, err)
	}
	return nil
}

// GetPrice returns the latest price and timestamp, or domain.ErrNotFound.
func (pc *PriceCache) GetPrice(ctx context.Context, inst domain.Instrument) (float64, time.Time, error) {
	vals, err := pc.c.rdb.HGetAll(ctx, pc.key(inst)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", inst, err)
	}
	price, ts, err := parsePrice(vals)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", inst, err)
	}
	return price, ts, nil
}

// GetPrices returns the cached prices for insts in one round trip.
// Instruments without a usable entry are omitted.
func (pc *PriceCache) GetPrices(ctx context.Context, insts []domain.Instrument) (map[domain.Instrument]float64, error) {
	out := make(map[domain.Instrument]float64, len(insts))
	if len(insts) == 0 {
		return out, nil
	}

	pipe := pc.c.rdb.Pipeline()
	cmds := make(map[domain.Instrument]*redis.MapStringStringCmd, len(insts))
	for _, inst := range insts {
		cmds[inst] = pipe.HGetAll(ctx, pc.key(inst))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	for inst, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		if price, _, err := parsePrice(vals); err == nil {
			out[inst] = price
		}
	}
	return out, nil
}

func parsePrice(vals map[string]string) (float64, time.Time, error) {
	priceStr, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("parse price: %w", err)
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("parse ts: %w", err)
	}
	return price, time.Unix(0, tsNano), nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
