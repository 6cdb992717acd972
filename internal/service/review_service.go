package service

import (
	"context"
	"strings"

	"github.com/d60-Lab/bookstore/internal/model"
	"github.com/d60-Lab/bookstore/internal/repository"
	"github.com/d60-Lab/bookstore/pkg/apperr"
)

// ReviewService 只有收到货的买家才能评价订单中的商品，每单每商品一次
type ReviewService interface {
	CreateReview(ctx context.Context, userID, orderID, productID int64, rating int, comment string) (*model.Review, error)
	ListProductReviews(ctx context.Context, productID int64, page, size int) ([]*model.Review, error)
}

type reviewService struct {
	reviews repository.ReviewRepository
	orders  repository.OrderRepository
}

func NewReviewService(reviews repository.ReviewRepository, orders repository.OrderRepository) ReviewService {
	return &reviewService{reviews: reviews, orders: orders}
}

func (s *reviewService) CreateReview(ctx context.Context, userID, orderID, productID int64, rating int, comment string) (*model.Review, error) {
	comment = strings.TrimSpace(comment)
	if rating < 1 || rating > 5 {
		return nil, apperr.Validation(apperr.ReasonInvalidInput, "rating must be between 1 and 5")
	}
	if comment == "" {
		return nil, apperr.Validation(apperr.ReasonInvalidInput, "comment must not be empty")
	}

	order, err := s.orders.GetByOrderID(ctx, orderID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.ErrNotEligible
		}
		return nil, err
	}
	if order.UserID != userID || order.Status != model.OrderStatusDelivered || !order.HasProduct(productID) {
		return nil, apperr.ErrNotEligible
	}

	exists, err := s.reviews.Exists(ctx, userID, productID, orderID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.ErrAlreadyReviewed
	}

	rv := &model.Review{UserID: userID, ProductID: productID, OrderID: orderID, Rating: rating, Comment: comment}
	created, err := s.reviews.Create(ctx, rv)
	if err != nil {
		return nil, err
	}
	// 并发提交时由唯一索引兜底
	if !created {
		return nil, apperr.ErrAlreadyReviewed
	}
	return rv, nil
}

func (s *reviewService) ListProductReviews(ctx context.Context, productID int64, page, size int) ([]*model.Review, error) {
	offset, limit := paginate(page, size)
	return s.reviews.ListByProduct(ctx, productID, offset, limit)
}
