package handlers

import (
	"errors"
	"strings"

	"repair_shop_backend/internal/models"
	"repair_shop_backend/internal/services"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators adds the custom binding tags used by request DTOs:
// ticketstate accepts any TicketState name, adjustdirection accepts IN or OUT.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin binding engine is not go-playground/validator")
	}
	if err := v.RegisterValidation("ticketstate", validateTicketState); err != nil {
		return err
	}
	return v.RegisterValidation("adjustdirection", validateAdjustDirection)
}

func validateTicketState(fl validator.FieldLevel) bool {
	_, err := models.ParseTicketState(fl.Field().String())
	return err == nil
}

func validateAdjustDirection(fl validator.FieldLevel) bool {
	d := strings.ToUpper(strings.TrimSpace(fl.Field().String()))
	return d == services.AdjustIn || d == services.AdjustOut
}
