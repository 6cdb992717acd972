package service

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/d60-Lab/bookstore/internal/model"
	"github.com/d60-Lab/bookstore/internal/repository"
	"github.com/d60-Lab/bookstore/pkg/apperr"
)

// CartService 购物车；所有操作都不改动库存
type CartService interface {
	GetOrCreateCart(ctx context.Context, userID int64) (*model.CartView, error)
	AddItem(ctx context.Context, userID, productID int64, qty int) (*model.CartView, error)
	SetItemQuantity(ctx context.Context, userID, productID int64, qty int) (*model.CartView, error)
	// RemoveItem 行不存在时返回原购物车
	RemoveItem(ctx context.Context, userID, productID int64) (*model.CartView, error)
	Clear(ctx context.Context, userID int64) error
}

type cartService struct {
	tx       repository.Transactor
	carts    repository.CartRepository
	products repository.ProductRepository
	users    repository.UserRepository
}

func NewCartService(tx repository.Transactor, carts repository.CartRepository, products repository.ProductRepository, users repository.UserRepository) CartService {
	return &cartService{tx: tx, carts: carts, products: products, users: users}
}

func (s *cartService) GetOrCreateCart(ctx context.Context, userID int64) (*model.CartView, error) {
	return s.mutate(ctx, userID, nil)
}

func (s *cartService) AddItem(ctx context.Context, userID, productID int64, qty int) (*model.CartView, error) {
	if qty <= 0 {
		return nil, apperr.Validation(apperr.ReasonInvalidInput, "quantity must be greater than 0")
	}
	return s.mutate(ctx, userID, func(tx *gorm.DB, cart *model.Cart) error {
		if err := s.requireProduct(ctx, tx, productID); err != nil {
			return err
		}
		return s.carts.WithTx(tx).AddQuantity(ctx, cart.ID, productID, qty)
	})
}

func (s *cartService) SetItemQuantity(ctx context.Context, userID, productID int64, qty int) (*model.CartView, error) {
	if qty < 0 {
		return nil, apperr.Validation(apperr.ReasonInvalidInput, "quantity must not be negative")
	}
	return s.mutate(ctx, userID, func(tx *gorm.DB, cart *model.Cart) error {
		if qty == 0 {
			_, err := s.carts.WithTx(tx).DeleteLine(ctx, cart.ID, productID)
			return err
		}
		if err := s.requireProduct(ctx, tx, productID); err != nil {
			return err
		}
		return s.carts.WithTx(tx).SetQuantity(ctx, cart.ID, productID, qty)
	})
}

func (s *cartService) RemoveItem(ctx context.Context, userID, productID int64) (*model.CartView, error) {
	return s.mutate(ctx, userID, func(tx *gorm.DB, cart *model.Cart) error {
		_, err := s.carts.WithTx(tx).DeleteLine(ctx, cart.ID, productID)
		return err
	})
}

func (s *cartService) Clear(ctx context.Context, userID int64) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)
		cart, err := carts.GetByUserID(ctx, userID)
		if isNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := carts.DeleteLines(ctx, cart.ID); err != nil {
			return err
		}
		return carts.UpdateTotal(ctx, cart.ID, decimal.Zero)
	})
}

// mutate 在一个事务内：确保购物车存在 -> 执行 fn -> 重算合计
func (s *cartService) mutate(ctx context.Context, userID int64, fn func(tx *gorm.DB, cart *model.Cart) error) (*model.CartView, error) {
	var view *model.CartView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cart, err := s.ensureCart(ctx, tx, userID)
		if err != nil {
			return err
		}
		if fn != nil {
			if err := fn(tx, cart); err != nil {
				return err
			}
		}
		view, err = s.recompute(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *cartService) ensureCart(ctx context.Context, tx *gorm.DB, userID int64) (*model.Cart, error) {
	carts := s.carts.WithTx(tx)
	cart, err := carts.GetByUserID(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !isNotFound(err) {
		return nil, err
	}
	if _, err := s.users.WithTx(tx).GetByID(ctx, userID); err != nil {
		if isNotFound(err) {
			return nil, apperr.ErrUserNotFound
		}
		return nil, err
	}
	return carts.GetOrCreate(ctx, userID)
}

func (s *cartService) requireProduct(ctx context.Context, tx *gorm.DB, productID int64) error {
	_, err := s.products.WithTx(tx).GetActiveByID(ctx, productID)
	if isNotFound(err) {
		return apperr.ErrProductNotFound
	}
	return err
}

// recompute 按当前实际售价计算小计与合计；已下架商品不计入
func (s *cartService) recompute(ctx context.Context, tx *gorm.DB, userID int64) (*model.CartView, error) {
	carts := s.carts.WithTx(tx)
	cart, err := carts.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(cart.Lines))
	for i, l := range cart.Lines {
		ids[i] = l.ProductID
	}
	products, err := s.products.WithTx(tx).ListActiveByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	view := &model.CartView{CartID: cart.ID, UserID: cart.UserID, Items: make([]model.CartItemView, 0, len(cart.Lines)), TotalAmount: decimal.Zero}
	for _, l := range cart.Lines {
		p, ok := byID[l.ProductID]
		if !ok {
			continue
		}
		sub := p.RealPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
		view.Items = append(view.Items, model.CartItemView{
			ProductID:   p.ID,
			ProductName: p.Name,
			RealPrice:   p.RealPrice,
			Quantity:    l.Quantity,
			Subtotal:    sub,
		})
		view.TotalAmount = view.TotalAmount.Add(sub)
	}
	if !view.TotalAmount.Equal(cart.TotalAmount) {
		if err := carts.UpdateTotal(ctx, cart.ID, view.TotalAmount); err != nil {
			return nil, err
		}
	}
	return view, nil
}
