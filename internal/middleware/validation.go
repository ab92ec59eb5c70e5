package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/yigit/educhat/internal/app/models/dto"
)

// HandleBindError responds 400 to a failed ShouldBind call, listing each
// invalid field when the failure came from validation
func HandleBindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewFailureResponse(ValidationErrorDetail(err)))
}

// ValidationErrorDetail converts a binding error into an error detail
func ValidationErrorDetail(err error) *dto.ErrorDetail {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Invalid request format").
			WithDetails(err.Error())
	}

	errs := dto.NewValidationErrors()
	for _, fe := range fieldErrors {
		errs.AddError(fe.Field(), formatValidationError(fe))
	}
	detail := dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Validation failed").WithDetails(errs)
	if len(fieldErrors) == 1 {
		detail = detail.WithField(fieldErrors[0].Field())
	}
	return detail
}

// formatValidationError creates a human-readable validation error message
func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "email":
		return e.Field() + " must be a valid email address"
	case "oneof":
		return e.Field() + " must be one of: " + e.Param()
	default:
		return e.Field() + " validation failed: " + e.Tag()
	}
}
