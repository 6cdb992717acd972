package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/d60-Lab/bookstore/internal/model"
)

type PaymentRepository interface {
	WithTx(tx *gorm.DB) PaymentRepository

	Create(ctx context.Context, p *model.Payment) error
	// GetActiveByOrderID 当前未被替代的支付记录
	GetActiveByOrderID(ctx context.Context, orderID int64) (*model.Payment, error)
	// GetByTxnRef 按网关交易号查找支付记录，同一交易号有多条时取最新
	GetByTxnRef(ctx context.Context, orderID int64, txnRef string) (*model.Payment, error)
	ListByOrderID(ctx context.Context, orderID int64) ([]*model.Payment, error)
	// SupersedeActive 将订单当前有效记录标记为已替代
	SupersedeActive(ctx context.Context, orderID int64) error
	MarkSuccess(ctx context.Context, id int64, gatewayTxnNo string, paidAt time.Time) error
	MarkFailed(ctx context.Context, id int64, gatewayTxnNo string) error
	SetPending(ctx context.Context, id int64, txnRef string) error
	CountByStatus(ctx context.Context, orderID int64, status model.PaymentStatus) (int64, error)
}

type paymentRepository struct{ db *gorm.DB }

func NewPaymentRepository(db *gorm.DB) PaymentRepository { return &paymentRepository{db: db} }

func (r *paymentRepository) WithTx(tx *gorm.DB) PaymentRepository { return &paymentRepository{db: tx} }

func (r *paymentRepository) Create(ctx context.Context, p *model.Payment) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(p).Error, "create payment")
}

func (r *paymentRepository) GetActiveByOrderID(ctx context.Context, orderID int64) (*model.Payment, error) {
	var p model.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND superseded = ?", orderID, false).
		Order("id DESC").
		First(&p).Error
	if err != nil {
		return nil, errors.Wrapf(err, "get active payment of order %d", orderID)
	}
	return &p, nil
}

func (r *paymentRepository) GetByTxnRef(ctx context.Context, orderID int64, txnRef string) (*model.Payment, error) {
	var p model.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND txn_ref = ?", orderID, txnRef).
		Order("id DESC").
		First(&p).Error
	if err != nil {
		return nil, errors.Wrapf(err, "get payment %s of order %d", txnRef, orderID)
	}
	return &p, nil
}

func (r *paymentRepository) ListByOrderID(ctx context.Context, orderID int64) ([]*model.Payment, error) {
	var res []*model.Payment
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id ASC").Find(&res).Error
	return res, errors.Wrapf(err, "list payments of order %d", orderID)
}

func (r *paymentRepository) SupersedeActive(ctx context.Context, orderID int64) error {
	err := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("order_id = ? AND superseded = ?", orderID, false).
		Update("superseded", true).Error
	return errors.Wrapf(err, "supersede payments of order %d", orderID)
}

func (r *paymentRepository) MarkSuccess(ctx context.Context, id int64, gatewayTxnNo string, paidAt time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":         model.PaymentStatusSuccess,
			"gateway_txn_no": gatewayTxnNo,
			"paid_at":        paidAt,
		}).Error
	return errors.Wrapf(err, "mark payment %d success", id)
}

func (r *paymentRepository) MarkFailed(ctx context.Context, id int64, gatewayTxnNo string) error {
	err := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":         model.PaymentStatusFailed,
			"gateway_txn_no": gatewayTxnNo,
		}).Error
	return errors.Wrapf(err, "mark payment %d failed", id)
}

func (r *paymentRepository) SetPending(ctx context.Context, id int64, txnRef string) error {
	err := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": model.PaymentStatusPending, "txn_ref": txnRef}).Error
	return errors.Wrapf(err, "reset payment %d", id)
}

func (r *paymentRepository) CountByStatus(ctx context.Context, orderID int64, status model.PaymentStatus) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("order_id = ? AND status = ?", orderID, status).
		Count(&n).Error
	return n, errors.Wrap(err, "count payments")
}
