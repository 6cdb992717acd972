package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/d60-Lab/bookstore/internal/cache"
	"github.com/d60-Lab/bookstore/internal/model"
	"github.com/d60-Lab/bookstore/internal/repository"
	"github.com/d60-Lab/bookstore/pkg/apperr"
	"github.com/d60-Lab/bookstore/pkg/logger"
)

// CatalogService 商品读取（经缓存）与定价维护
type CatalogService interface {
	GetProduct(ctx context.Context, id int64) (*cache.ProductSnapshot, error)
	UpdatePricing(ctx context.Context, id int64, price decimal.Decimal, discount int) (*model.Product, error)
}

type catalogService struct {
	products repository.ProductRepository
	cache    *cache.ProductCache
}

func NewCatalogService(products repository.ProductRepository, productCache *cache.ProductCache) CatalogService {
	return &catalogService{products: products, cache: productCache}
}

func (s *catalogService) GetProduct(ctx context.Context, id int64) (*cache.ProductSnapshot, error) {
	snap, ok, err := s.cache.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.ErrProductNotFound
	}
	return &snap, nil
}

func (s *catalogService) UpdatePricing(ctx context.Context, id int64, price decimal.Decimal, discount int) (*model.Product, error) {
	if price.IsNegative() {
		return nil, apperr.Validation(apperr.ReasonInvalidInput, "price must not be negative")
	}
	if discount < 0 || discount > 100 {
		return nil, apperr.Validation(apperr.ReasonInvalidInput, "discount must be between 0 and 100")
	}
	p, err := s.products.UpdatePricing(ctx, id, price, discount)
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.ErrProductNotFound
		}
		return nil, err
	}
	s.cache.Invalidate(ctx, id)
	logger.Info("product pricing updated",
		zap.Int64("product_id", id),
		zap.String("price", p.Price.StringFixed(2)),
		zap.Int("discount", p.Discount),
		zap.String("real_price", p.RealPrice.StringFixed(2)))
	return p, nil
}
