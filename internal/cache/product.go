// Package cache keeps read-mostly product snapshots in Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/d60-Lab/bookstore/internal/model"
	"github.com/d60-Lab/bookstore/internal/telemetry"
	"github.com/d60-Lab/bookstore/pkg/logger"
)

// ProductSnapshot 展示用的商品信息，不含库存（库存以数据库为准）
type ProductSnapshot struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Author    string          `json:"author"`
	ISBN      string          `json:"isbn"`
	Price     decimal.Decimal `json:"price"`
	Discount  int             `json:"discount"`
	RealPrice decimal.Decimal `json:"real_price"`
}

func SnapshotOf(p *model.Product) ProductSnapshot {
	return ProductSnapshot{
		ID:        p.ID,
		Name:      p.Name,
		Author:    p.Author,
		ISBN:      p.ISBN,
		Price:     p.Price,
		Discount:  p.Discount,
		RealPrice: p.RealPrice,
	}
}

// Loader 从数据库批量读取在售商品，缺失的 id 不返回
type Loader func(ctx context.Context, ids []int64) ([]*model.Product, error)

// ProductCache 读穿透缓存；client 为 nil 时直接读库
type ProductCache struct {
	client  *redis.Client
	ttl     time.Duration
	load    Loader
	metrics *telemetry.Metrics
}

func NewProductCache(client *redis.Client, ttl time.Duration, load Loader, metrics *telemetry.Metrics) *ProductCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if metrics == nil {
		metrics = telemetry.NoopMetrics()
	}
	return &ProductCache{client: client, ttl: ttl, load: load, metrics: metrics}
}

func productKey(id int64) string { return fmt.Sprintf("product:%d", id) }

// Get 单个商品；不存在或已下架返回 ok=false
func (c *ProductCache) Get(ctx context.Context, id int64) (ProductSnapshot, bool, error) {
	m, err := c.GetMany(ctx, []int64{id})
	if err != nil {
		return ProductSnapshot{}, false, err
	}
	snap, ok := m[id]
	return snap, ok, nil
}

// GetMany 先 MGET，未命中的再一次性回源并回填
func (c *ProductCache) GetMany(ctx context.Context, ids []int64) (map[int64]ProductSnapshot, error) {
	out := make(map[int64]ProductSnapshot, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	missing := ids
	if c.client != nil {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = productKey(id)
		}
		vals, err := c.client.MGet(ctx, keys...).Result()
		if err != nil {
			logger.Warn("product cache mget failed", zap.Error(err))
		} else {
			missing = make([]int64, 0, len(ids))
			for i, v := range vals {
				str, ok := v.(string)
				if !ok {
					missing = append(missing, ids[i])
					continue
				}
				var snap ProductSnapshot
				if uErr := json.Unmarshal([]byte(str), &snap); uErr != nil {
					missing = append(missing, ids[i])
					continue
				}
				out[ids[i]] = snap
			}
		}
	}

	c.metrics.CacheHits.Add(ctx, int64(len(out)))
	if len(missing) == 0 {
		return out, nil
	}
	c.metrics.CacheMisses.Add(ctx, int64(len(missing)))

	products, err := c.load(ctx, missing)
	if err != nil {
		return nil, err
	}
	var pipe redis.Pipeliner
	if c.client != nil {
		pipe = c.client.Pipeline()
	}
	for _, p := range products {
		snap := SnapshotOf(p)
		out[p.ID] = snap
		if pipe == nil {
			continue
		}
		if payload, err := json.Marshal(snap); err == nil {
			pipe.Set(ctx, productKey(p.ID), payload, c.ttl)
		}
	}
	if pipe != nil && pipe.Len() > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Warn("product cache fill failed", zap.Error(err))
		}
	}
	return out, nil
}

// Invalidate 价格或上下架变化后调用
func (c *ProductCache) Invalidate(ctx context.Context, ids ...int64) {
	if c.client == nil || len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productKey(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		logger.Warn("product cache invalidate failed", zap.Int64s("ids", ids), zap.Error(err))
	}
}
