package middleware

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/d60-Lab/bookstore/internal/model"
)

// RegisterValidators 注册 order_status 与 payment_method 校验标签
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	if err := v.RegisterValidation("order_status", func(fl validator.FieldLevel) bool {
		_, err := model.ParseOrderStatus(fl.Field().String())
		return err == nil
	}); err != nil {
		return err
	}
	return v.RegisterValidation("payment_method", func(fl validator.FieldLevel) bool {
		_, err := model.ParsePaymentMethod(fl.Field().String())
		return err == nil
	})
}
