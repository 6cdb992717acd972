package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/bookstore/internal/events"
	"github.com/d60-Lab/bookstore/internal/gateway"
	"github.com/d60-Lab/bookstore/internal/lock"
	"github.com/d60-Lab/bookstore/internal/model"
	"github.com/d60-Lab/bookstore/internal/notify"
	"github.com/d60-Lab/bookstore/internal/repository"
	"github.com/d60-Lab/bookstore/internal/telemetry"
	"github.com/d60-Lab/bookstore/pkg/apperr"
	"github.com/d60-Lab/bookstore/pkg/logger"
)

// PaymentResult 发起或重试支付的结果；COD 没有跳转地址
type PaymentResult struct {
	OrderID     int64               `json:"order_id"`
	PaymentID   int64               `json:"payment_id"`
	Method      model.PaymentMethod `json:"method"`
	OrderStatus model.OrderStatus   `json:"order_status"`
	PaymentURL  string              `json:"payment_url,omitempty"`
	TxnRef      string              `json:"txn_ref,omitempty"`
}

// CallbackResult 网关回调处理结果
type CallbackResult struct {
	Outcome   gateway.Outcome
	OrderID   int64
	Reason    string
	Duplicate bool
}

// PaymentService 支付对账
type PaymentService interface {
	InitiatePayment(ctx context.Context, actor Actor, orderID int64, method model.PaymentMethod, clientIP string) (*PaymentResult, error)
	// HandleGatewayCallback error 仅表示内部故障，此时 Outcome 为 failed
	HandleGatewayCallback(ctx context.Context, params url.Values) (CallbackResult, error)
	RetryPayment(ctx context.Context, actor Actor, orderID int64, clientIP string) (*PaymentResult, error)
}

type paymentService struct {
	tx       repository.Transactor
	orders   repository.OrderRepository
	payments repository.PaymentRepository
	products repository.ProductRepository
	users    repository.UserRepository
	gateway  gateway.RedirectBuilder
	locker   lock.Locker
	notifier notify.Notifier
	lowStock *events.LowStockMonitor
	metrics  *telemetry.Metrics
}

// PaymentDeps 依赖较多，用结构体传入
type PaymentDeps struct {
	Tx       repository.Transactor
	Orders   repository.OrderRepository
	Payments repository.PaymentRepository
	Products repository.ProductRepository
	Users    repository.UserRepository
	Gateway  gateway.RedirectBuilder
	Locker   lock.Locker
	Notifier notify.Notifier
	LowStock *events.LowStockMonitor
	Metrics  *telemetry.Metrics
}

func NewPaymentService(d PaymentDeps) PaymentService {
	if d.Locker == nil {
		d.Locker = lock.NewLocalLocker()
	}
	if d.Metrics == nil {
		d.Metrics = telemetry.NoopMetrics()
	}
	return &paymentService{
		tx:       d.Tx,
		orders:   d.Orders,
		payments: d.Payments,
		products: d.Products,
		users:    d.Users,
		gateway:  d.Gateway,
		locker:   d.Locker,
		notifier: d.Notifier,
		lowStock: d.LowStock,
		metrics:  d.Metrics,
	}
}

func (s *paymentService) InitiatePayment(ctx context.Context, actor Actor, orderID int64, method model.PaymentMethod, clientIP string) (*PaymentResult, error) {
	var res *PaymentResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.lockPayable(ctx, tx, actor, orderID)
		if err != nil {
			return err
		}
		orders := s.orders.WithTx(tx)
		payments := s.payments.WithTx(tx)

		switch method {
		case model.PaymentMethodCOD:
			if order.Status != model.OrderStatusPending && order.Status != model.OrderStatusConfirmed {
				return apperr.Newf(apperr.CodeConflict, apperr.ReasonInvalidTransition,
					"cash on delivery is not available for an order in status %s", order.Status)
			}
			if err := payments.SupersedeActive(ctx, order.OrderID); err != nil {
				return err
			}
			p := &model.Payment{OrderID: order.OrderID, Method: method, Amount: order.TotalAmount, Status: model.PaymentStatusPending}
			if err := payments.Create(ctx, p); err != nil {
				return err
			}
			if err := orders.SetPaymentMethod(ctx, order.OrderID, method); err != nil {
				return err
			}
			if order.Status == model.OrderStatusPending {
				ok, err := orders.CompareAndSetStatus(ctx, order.OrderID, model.OrderStatusPending, model.OrderStatusConfirmed)
				if err != nil {
					return err
				}
				if !ok {
					return apperr.Newf(apperr.CodeConflict, apperr.ReasonInvalidTransition, "order %d changed concurrently", order.OrderID)
				}
			}
			res = &PaymentResult{OrderID: order.OrderID, PaymentID: p.ID, Method: method, OrderStatus: model.OrderStatusConfirmed}
			return nil

		case model.PaymentMethodGateway:
			payURL, txnRef, err := s.buildURL(order, clientIP)
			if err != nil {
				return err
			}
			if err := payments.SupersedeActive(ctx, order.OrderID); err != nil {
				return err
			}
			p := &model.Payment{OrderID: order.OrderID, Method: method, Amount: order.TotalAmount, Status: model.PaymentStatusPending, TxnRef: txnRef}
			if err := payments.Create(ctx, p); err != nil {
				return err
			}
			if err := orders.SetPaymentMethod(ctx, order.OrderID, method); err != nil {
				return err
			}
			res = &PaymentResult{OrderID: order.OrderID, PaymentID: p.ID, Method: method, OrderStatus: order.Status, PaymentURL: payURL, TxnRef: txnRef}
			return nil
		}
		return apperr.Newf(apperr.CodeValidation, apperr.ReasonInvalidInput, "unsupported payment method %q", method)
	})
	if err != nil {
		return nil, err
	}
	logger.Info("payment initiated", zap.Int64("order_id", orderID), zap.String("method", string(method)))
	return res, nil
}

func (s *paymentService) RetryPayment(ctx context.Context, actor Actor, orderID int64, clientIP string) (*PaymentResult, error) {
	var res *PaymentResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.lockPayable(ctx, tx, actor, orderID)
		if err != nil {
			return err
		}
		payURL, txnRef, err := s.buildURL(order, clientIP)
		if err != nil {
			return err
		}

		payments := s.payments.WithTx(tx)
		active, err := payments.GetActiveByOrderID(ctx, order.OrderID)
		if err != nil && !isNotFound(err) {
			return err
		}
		var paymentID int64
		if active != nil && active.Status == model.PaymentStatusPending && active.Method == model.PaymentMethodGateway {
			// 仍在等待中的网关支付沿用原记录，只换交易号
			if err := payments.SetPending(ctx, active.ID, txnRef); err != nil {
				return err
			}
			paymentID = active.ID
		} else {
			if err := payments.SupersedeActive(ctx, order.OrderID); err != nil {
				return err
			}
			p := &model.Payment{OrderID: order.OrderID, Method: model.PaymentMethodGateway, Amount: order.TotalAmount, Status: model.PaymentStatusPending, TxnRef: txnRef}
			if err := payments.Create(ctx, p); err != nil {
				return err
			}
			paymentID = p.ID
		}
		if err := s.orders.WithTx(tx).SetPaymentMethod(ctx, order.OrderID, model.PaymentMethodGateway); err != nil {
			return err
		}
		res = &PaymentResult{OrderID: order.OrderID, PaymentID: paymentID, Method: model.PaymentMethodGateway, OrderStatus: order.Status, PaymentURL: payURL, TxnRef: txnRef}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("payment retried", zap.Int64("order_id", orderID))
	return res, nil
}

// lockPayable 锁定订单并确认可以支付：本人或管理员、未支付、未取消
func (s *paymentService) lockPayable(ctx context.Context, tx *gorm.DB, actor Actor, orderID int64) (*model.Order, error) {
	order, err := s.orders.WithTx(tx).LockByOrderID(ctx, orderID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.ErrOrderNotFound
		}
		return nil, err
	}
	if !actor.CanAccess(order.UserID) {
		return nil, apperr.Forbidden(apperr.ReasonNotOwner, "order belongs to another user")
	}
	if order.Status.IsSettled() {
		return nil, apperr.ErrAlreadyPaid
	}
	if order.Status == model.OrderStatusCancelled {
		return nil, apperr.Conflict(apperr.ReasonInvalidTransition, "order is cancelled")
	}
	return order, nil
}

func (s *paymentService) buildURL(order *model.Order, clientIP string) (string, string, error) {
	if order.TotalAmount.Sign() <= 0 {
		return "", "", apperr.Newf(apperr.CodeValidation, apperr.ReasonNothingToPay,
			"order %d has nothing to pay online, use cash on delivery", order.OrderID)
	}
	payURL, txnRef, err := s.gateway.BuildPaymentURL(gateway.PaymentRequest{
		OrderID:   order.OrderID,
		Amount:    order.TotalAmount,
		OrderInfo: fmt.Sprintf("Payment for order %d", order.OrderID),
		ClientIP:  clientIP,
	})
	if err != nil {
		return "", "", apperr.Wrap(apperr.CodeExternal, err, "build payment url")
	}
	return payURL, txnRef, nil
}

func (s *paymentService) HandleGatewayCallback(ctx context.Context, params url.Values) (CallbackResult, error) {
	res, err := s.handleCallback(ctx, params)
	s.metrics.Callbacks.Add(ctx, 1, telemetry.Attr("outcome", res.Outcome.String()))
	fields := []zap.Field{
		zap.Int64("order_id", res.OrderID),
		zap.String("outcome", res.Outcome.String()),
		zap.String("reason", res.Reason),
		zap.Bool("duplicate", res.Duplicate),
	}
	if err != nil {
		logger.Error("gateway callback failed", append(fields, zap.Error(err))...)
	} else if res.Outcome == gateway.OutcomeInvalid {
		logger.Warn("gateway callback rejected", fields...)
	} else {
		logger.Info("gateway callback handled", fields...)
	}
	return res, err
}

func (s *paymentService) handleCallback(ctx context.Context, params url.Values) (CallbackResult, error) {
	cb := s.gateway.VerifyCallback(params)
	if cb.Outcome == gateway.OutcomeInvalid {
		return CallbackResult{Outcome: gateway.OutcomeInvalid, Reason: "invalid signature"}, nil
	}

	orderID, err := strconv.ParseInt(cb.OrderRef, 10, 64)
	if err != nil {
		return CallbackResult{Outcome: gateway.OutcomeFailed, Reason: "unknown order"}, nil
	}
	res := CallbackResult{OrderID: orderID}

	order, err := s.orders.GetByOrderID(ctx, orderID)
	if err != nil {
		res.Outcome = gateway.OutcomeFailed
		if isNotFound(err) {
			res.Reason = "unknown order"
			return res, nil
		}
		res.Reason = "internal error"
		return res, err
	}
	if !cb.Amount.Equal(order.TotalAmount) {
		res.Outcome = gateway.OutcomeInvalid
		res.Reason = "amount mismatch"
		return res, nil
	}

	unlock, err := s.locker.Lock(ctx, strconv.FormatInt(orderID, 10))
	if err != nil {
		res.Outcome = gateway.OutcomeFailed
		res.Reason = "busy"
		return res, err
	}
	defer unlock()

	var notifyKind string
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		locked, err := s.orders.WithTx(tx).LockByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		order = locked
		if order.Status.IsSettled() {
			res.Outcome = gateway.OutcomeSuccess
			res.Duplicate = true
			return nil
		}
		if order.Status == model.OrderStatusCancelled {
			res.Outcome = gateway.OutcomeFailed
			res.Reason = "order cancelled"
			if cb.Outcome == gateway.OutcomeSuccess {
				logger.Error("payment captured for cancelled order, refund required",
					zap.Int64("order_id", orderID), zap.String("txn_no", cb.TransactionNo))
			}
			return nil
		}

		attempt, err := s.currentAttempt(ctx, tx, orderID, cb.TxnRef)
		if err != nil {
			return err
		}

		if cb.Outcome == gateway.OutcomeSuccess {
			if attempt == nil {
				logger.Warn("payment captured without a current gateway attempt",
					zap.Int64("order_id", orderID), zap.String("txn_ref", cb.TxnRef), zap.String("txn_no", cb.TransactionNo))
			}
			if err := s.settle(ctx, tx, order, attempt, cb); err != nil {
				return err
			}
			res.Outcome = gateway.OutcomeSuccess
			notifyKind = "confirmation"
			return nil
		}

		res.Outcome = gateway.OutcomeFailed
		if attempt == nil {
			res.Reason = "superseded attempt"
			return nil
		}
		res.Reason = "payment declined"
		changed, err := s.fail(ctx, tx, order, attempt, cb)
		if err != nil {
			return err
		}
		if changed {
			notifyKind = "failure"
		}
		return nil
	})
	if err != nil {
		res.Outcome = gateway.OutcomeFailed
		res.Reason = "internal error"
		return res, err
	}

	switch notifyKind {
	case "confirmation":
		s.metrics.Revenue.Add(ctx, order.TotalAmount.InexactFloat64())
		s.notify(ctx, order, true)
		s.checkLowStock(ctx, order)
	case "failure":
		s.notify(ctx, order, false)
	}
	return res, nil
}

// currentAttempt 回调所属的网关支付：交易号匹配、未被替代且为 GATEWAY，否则返回 nil
func (s *paymentService) currentAttempt(ctx context.Context, tx *gorm.DB, orderID int64, txnRef string) (*model.Payment, error) {
	if txnRef == "" {
		return nil, nil
	}
	p, err := s.payments.WithTx(tx).GetByTxnRef(ctx, orderID, txnRef)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if p.Superseded || p.Method != model.PaymentMethodGateway {
		return nil, nil
	}
	return p, nil
}

// settle 所属记录仍为 PENDING 时置为 SUCCESS；否则资金已到账，新建一条成功记录替代当前记录。订单进入 PAID
func (s *paymentService) settle(ctx context.Context, tx *gorm.DB, order *model.Order, attempt *model.Payment, cb gateway.Callback) error {
	payments := s.payments.WithTx(tx)
	paidAt := cb.PayDate
	if paidAt.IsZero() {
		paidAt = time.Now()
	}

	if attempt != nil && attempt.Status == model.PaymentStatusPending {
		if err := payments.MarkSuccess(ctx, attempt.ID, cb.TransactionNo, paidAt); err != nil {
			return err
		}
	} else {
		if err := payments.SupersedeActive(ctx, order.OrderID); err != nil {
			return err
		}
		p := &model.Payment{
			OrderID:      order.OrderID,
			Method:       model.PaymentMethodGateway,
			Amount:       cb.Amount,
			Status:       model.PaymentStatusSuccess,
			TxnRef:       cb.TxnRef,
			GatewayTxnNo: cb.TransactionNo,
			PaidAt:       &paidAt,
		}
		if err := payments.Create(ctx, p); err != nil {
			return err
		}
	}

	orders := s.orders.WithTx(tx)
	if order.PaymentMethod != model.PaymentMethodGateway {
		if err := orders.SetPaymentMethod(ctx, order.OrderID, model.PaymentMethodGateway); err != nil {
			return err
		}
		order.PaymentMethod = model.PaymentMethodGateway
	}
	ok, err := orders.CompareAndSetStatus(ctx, order.OrderID, order.Status, model.OrderStatusPaid)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("order %d changed while settling", order.OrderID)
	}
	order.Status = model.OrderStatusPaid
	return nil
}

// fail 只处理仍在等待中的所属记录，重复的失败回调不做任何修改
func (s *paymentService) fail(ctx context.Context, tx *gorm.DB, order *model.Order, attempt *model.Payment, cb gateway.Callback) (bool, error) {
	if attempt.Status != model.PaymentStatusPending {
		return false, nil
	}
	if err := s.payments.WithTx(tx).MarkFailed(ctx, attempt.ID, cb.TransactionNo); err != nil {
		return false, err
	}

	// CONFIRMED(货到付款) 不允许进入 PAYMENT_FAILED，保持原状态
	if order.Status != model.OrderStatusPaymentFailed && order.Status.CanTransitionTo(model.OrderStatusPaymentFailed) {
		ok, err := s.orders.WithTx(tx).CompareAndSetStatus(ctx, order.OrderID, order.Status, model.OrderStatusPaymentFailed)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, fmt.Errorf("order %d changed while recording failure", order.OrderID)
		}
		order.Status = model.OrderStatusPaymentFailed
	}
	return true, nil
}

func (s *paymentService) notify(ctx context.Context, order *model.Order, success bool) {
	if s.notifier == nil {
		return
	}
	user, err := s.users.GetByID(ctx, order.UserID)
	if err != nil {
		logger.Warn("notification skipped, user lookup failed", zap.Int64("order_id", order.OrderID), zap.Error(err))
		return
	}
	if success {
		s.notifier.SendOrderConfirmation(user.Email, user.FullName, order.OrderID)
		return
	}
	s.notifier.SendPaymentFailure(user.Email, user.FullName, order.OrderID)
}

func (s *paymentService) checkLowStock(ctx context.Context, order *model.Order) {
	if s.lowStock == nil || len(order.Details) == 0 {
		return
	}
	ids := make([]int64, len(order.Details))
	for i, d := range order.Details {
		ids[i] = d.ProductID
	}
	products, err := s.products.ListActiveByIDs(ctx, ids)
	if err != nil {
		logger.Warn("low stock check failed", zap.Int64("order_id", order.OrderID), zap.Error(err))
		return
	}
	s.lowStock.Check(ctx, products)
}
