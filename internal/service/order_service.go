package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/bookstore/internal/model"
	"github.com/d60-Lab/bookstore/internal/repository"
	"github.com/d60-Lab/bookstore/internal/telemetry"
	"github.com/d60-Lab/bookstore/pkg/apperr"
	"github.com/d60-Lab/bookstore/pkg/logger"
)

// OrderItem 下单条目
type OrderItem struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required"`
}

// CreateOrderInput 下单参数；UseUserAddress 为 true 时忽略三项收货信息
type CreateOrderInput struct {
	Items           []OrderItem
	UseUserAddress  bool
	ShippingName    string
	ShippingPhone   string
	ShippingAddress string
	PaymentMethod   model.PaymentMethod
}

// OrderService 订单服务
type OrderService interface {
	CreateOrder(ctx context.Context, userID int64, in CreateOrderInput) (*model.Order, error)
	// CheckoutCart 以购物车内容下单，并在同一事务内清空购物车
	CheckoutCart(ctx context.Context, userID int64, in CreateOrderInput) (*model.Order, error)
	GetOrder(ctx context.Context, actor Actor, orderID int64) (*model.Order, error)
	ListMyOrders(ctx context.Context, userID int64, page, size int) ([]*model.Order, error)
	UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) (*model.Order, error)
	CancelOrder(ctx context.Context, actor Actor, orderID int64) (*model.Order, error)
	// ExpireUnpaid 取消仍处于未支付状态的订单，返回是否真的取消了
	ExpireUnpaid(ctx context.Context, orderID int64) (bool, error)
}

type orderService struct {
	tx       repository.Transactor
	orders   repository.OrderRepository
	products repository.ProductRepository
	users    repository.UserRepository
	carts    repository.CartRepository
	ids      *snowflake.Node
	metrics  *telemetry.Metrics
}

func NewOrderService(
	tx repository.Transactor,
	orders repository.OrderRepository,
	products repository.ProductRepository,
	users repository.UserRepository,
	carts repository.CartRepository,
	ids *snowflake.Node,
	metrics *telemetry.Metrics,
) OrderService {
	if metrics == nil {
		metrics = telemetry.NoopMetrics()
	}
	return &orderService{tx: tx, orders: orders, products: products, users: users, carts: carts, ids: ids, metrics: metrics}
}

func (s *orderService) CreateOrder(ctx context.Context, userID int64, in CreateOrderInput) (*model.Order, error) {
	var order *model.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.createInTx(ctx, tx, userID, in.Items, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterCreate(ctx, order)
	return order, nil
}

func (s *orderService) CheckoutCart(ctx context.Context, userID int64, in CreateOrderInput) (*model.Order, error) {
	var order *model.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)
		cart, err := carts.GetByUserID(ctx, userID)
		if err != nil && !isNotFound(err) {
			return err
		}
		var items []OrderItem
		if cart != nil {
			items = make([]OrderItem, 0, len(cart.Lines))
			for _, l := range cart.Lines {
				items = append(items, OrderItem{ProductID: l.ProductID, Quantity: l.Quantity})
			}
		}
		if order, err = s.createInTx(ctx, tx, userID, items, in); err != nil {
			return err
		}
		if err := carts.DeleteLines(ctx, cart.ID); err != nil {
			return err
		}
		return carts.UpdateTotal(ctx, cart.ID, decimal.Zero)
	})
	if err != nil {
		return nil, err
	}
	s.afterCreate(ctx, order)
	return order, nil
}

func (s *orderService) afterCreate(ctx context.Context, order *model.Order) {
	s.metrics.OrdersCreated.Add(ctx, 1)
	logger.Info("order created",
		zap.Int64("order_id", order.OrderID),
		zap.Int64("user_id", order.UserID),
		zap.String("total", order.TotalAmount.StringFixed(2)),
		zap.Int("lines", len(order.Details)))
}

// createInTx 校验用户与收货信息，锁定商品并扣减库存，落库订单与明细
func (s *orderService) createInTx(ctx context.Context, tx *gorm.DB, userID int64, items []OrderItem, in CreateOrderInput) (*model.Order, error) {
	user, err := s.users.WithTx(tx).GetByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.ErrUserNotFound
		}
		return nil, err
	}
	if len(items) == 0 {
		return nil, apperr.ErrEmptyOrder
	}

	name, phone, address := in.ShippingName, in.ShippingPhone, in.ShippingAddress
	if in.UseUserAddress {
		name, phone, address = user.FullName, user.Phone, user.Address
	}
	name, phone, address = strings.TrimSpace(name), strings.TrimSpace(phone), strings.TrimSpace(address)
	if name == "" || phone == "" || address == "" {
		return nil, apperr.ErrMissingShipping
	}

	// 合并重复商品，忽略非正数量
	wanted := make(map[int64]int, len(items))
	for _, it := range items {
		if it.Quantity > 0 {
			wanted[it.ProductID] += it.Quantity
		}
	}
	ids := make([]int64, 0, len(wanted))
	for id := range wanted {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	products := s.products.WithTx(tx)
	locked, err := products.LockActiveByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(locked) == 0 {
		return nil, apperr.ErrEmptyOrder
	}

	order := &model.Order{
		OrderID:         s.ids.Generate().Int64(),
		UserID:          userID,
		Status:          model.OrderStatusPending,
		PaymentMethod:   in.PaymentMethod,
		ShippingName:    name,
		ShippingPhone:   phone,
		ShippingAddress: address,
		TotalAmount:     decimal.Zero,
		Details:         make([]model.OrderDetail, 0, len(locked)),
	}
	for _, p := range locked {
		qty := wanted[p.ID]
		if p.StockQuantity < qty {
			return nil, insufficientStock(p, qty)
		}
		if err := products.DecrementStock(ctx, p.ID, qty); err != nil {
			if errors.Is(err, repository.ErrStockNotEnough) {
				return nil, insufficientStock(p, qty)
			}
			return nil, err
		}
		if err := products.AdjustSoldCount(ctx, p.ID, qty); err != nil {
			return nil, err
		}
		sub := p.RealPrice.Mul(decimal.NewFromInt(int64(qty)))
		order.Details = append(order.Details, model.OrderDetail{
			OrderID:     order.OrderID,
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    qty,
			UnitPrice:   p.RealPrice,
			Subtotal:    sub,
		})
		order.TotalAmount = order.TotalAmount.Add(sub)
	}

	if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func insufficientStock(p *model.Product, requested int) error {
	return apperr.Newf(apperr.CodeConflict, apperr.ReasonInsufficientStock,
		"insufficient stock for %q: requested %d, available %d", p.Name, requested, p.StockQuantity)
}

func (s *orderService) GetOrder(ctx context.Context, actor Actor, orderID int64) (*model.Order, error) {
	order, err := s.orders.GetByOrderID(ctx, orderID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.ErrOrderNotFound
		}
		return nil, err
	}
	if !actor.CanAccess(order.UserID) {
		return nil, apperr.Forbidden(apperr.ReasonNotOwner, "order belongs to another user")
	}
	return order, nil
}

func (s *orderService) ListMyOrders(ctx context.Context, userID int64, page, size int) ([]*model.Order, error) {
	offset, limit := paginate(page, size)
	return s.orders.GetByUserID(ctx, userID, offset, limit)
}

func (s *orderService) UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) (*model.Order, error) {
	if !status.Valid() {
		return nil, apperr.Newf(apperr.CodeValidation, apperr.ReasonInvalidInput, "unknown order status %q", status)
	}
	var order *model.Order
	var changed bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.lock(ctx, tx, orderID)
		if err != nil {
			return err
		}
		changed, err = s.transition(ctx, tx, order, status)
		return err
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logTransition(order, status)
	}
	return order, nil
}

func (s *orderService) CancelOrder(ctx context.Context, actor Actor, orderID int64) (*model.Order, error) {
	var order *model.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.lock(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !actor.CanAccess(order.UserID) {
			return apperr.Forbidden(apperr.ReasonNotOwner, "order belongs to another user")
		}
		if order.Status != model.OrderStatusPending {
			return apperr.Newf(apperr.CodeConflict, apperr.ReasonCannotCancel,
				"order in status %s cannot be cancelled", order.Status)
		}
		_, err = s.transition(ctx, tx, order, model.OrderStatusCancelled)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(order, model.OrderStatusCancelled)
	return order, nil
}

func (s *orderService) ExpireUnpaid(ctx context.Context, orderID int64) (bool, error) {
	var order *model.Order
	var changed bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.lock(ctx, tx, orderID)
		if err != nil {
			return err
		}
		// 已被支付、取消或改为货到付款
		if order.Status != model.OrderStatusPending && order.Status != model.OrderStatusPaymentFailed {
			return nil
		}
		changed, err = s.transition(ctx, tx, order, model.OrderStatusCancelled)
		return err
	})
	if err != nil {
		return false, err
	}
	if changed {
		s.logTransition(order, model.OrderStatusCancelled)
	}
	return changed, nil
}

func (s *orderService) lock(ctx context.Context, tx *gorm.DB, orderID int64) (*model.Order, error) {
	order, err := s.orders.WithTx(tx).LockByOrderID(ctx, orderID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// transition 在已锁定的订单上执行状态迁移；进入 CANCELLED 时回补库存。
// 回补以状态 CAS 成功为前提，同一订单只会执行一次。
func (s *orderService) transition(ctx context.Context, tx *gorm.DB, order *model.Order, to model.OrderStatus) (bool, error) {
	from := order.Status
	if from == to {
		return false, nil
	}
	if !from.CanTransitionTo(to) {
		return false, apperr.Newf(apperr.CodeConflict, apperr.ReasonInvalidTransition,
			"cannot move order from %s to %s", from, to)
	}
	ok, err := s.orders.WithTx(tx).CompareAndSetStatus(ctx, order.OrderID, from, to)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, apperr.Newf(apperr.CodeConflict, apperr.ReasonInvalidTransition,
			"order %d changed concurrently", order.OrderID)
	}
	if to == model.OrderStatusCancelled {
		if err := restock(ctx, s.products.WithTx(tx), order); err != nil {
			return false, err
		}
		s.metrics.OrdersCancelled.Add(ctx, 1)
	}
	order.Status = to
	return true, nil
}

// restock 回补库存、扣回销量（不低于 0）
func restock(ctx context.Context, products repository.ProductRepository, order *model.Order) error {
	for _, d := range order.Details {
		if err := products.IncrementStock(ctx, d.ProductID, d.Quantity); err != nil {
			return err
		}
		if err := products.AdjustSoldCount(ctx, d.ProductID, -d.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (s *orderService) logTransition(order *model.Order, to model.OrderStatus) {
	logger.Info("order status changed", zap.Int64("order_id", order.OrderID), zap.String("status", string(to)))
}
