package repository

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/bookstore/internal/model"
)

type ReviewRepository interface {
	// Create 唯一键冲突时返回 created=false
	Create(ctx context.Context, rv *model.Review) (created bool, err error)
	Exists(ctx context.Context, userID, productID, orderID int64) (bool, error)
	ListByProduct(ctx context.Context, productID int64, offset, limit int) ([]*model.Review, error)
}

type reviewRepository struct{ db *gorm.DB }

func NewReviewRepository(db *gorm.DB) ReviewRepository { return &reviewRepository{db: db} }

func (r *reviewRepository) Create(ctx context.Context, rv *model.Review) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rv)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "create review")
	}
	return res.RowsAffected == 1, nil
}

func (r *reviewRepository) Exists(ctx context.Context, userID, productID, orderID int64) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&model.Review{}).
		Where("user_id = ? AND product_id = ? AND order_id = ?", userID, productID, orderID).
		Count(&cnt).Error; err != nil {
		return false, errors.Wrap(err, "check review")
	}
	return cnt > 0, nil
}

func (r *reviewRepository) ListByProduct(ctx context.Context, productID int64, offset, limit int) ([]*model.Review, error) {
	var res []*model.Review
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&res).Error
	return res, errors.Wrap(err, "list reviews")
}
