package service

import (
	"errors"

	"gorm.io/gorm"

	"github.com/d60-Lab/bookstore/internal/model"
)

// Actor 发起请求的用户
type Actor struct {
	UserID int64
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == model.RoleAdmin }

// CanAccess 本人或管理员
func (a Actor) CanAccess(ownerID int64) bool { return a.IsAdmin() || a.UserID == ownerID }

func isNotFound(err error) bool { return errors.Is(err, gorm.ErrRecordNotFound) }

// paginate 页码从 1 开始，size 上限 100
func paginate(page, size int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}
	if size > 100 {
		size = 100
	}
	return (page - 1) * size, size
}
