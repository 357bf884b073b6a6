package rest

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	mw "github.com/metrocity/server/middleware"
	"go.uber.org/zap"
)

// fail writes {message} with the given status.
func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"message": msg})
}

// internalError logs err with the request's trace id and writes a bare 500.
func internalError(c *gin.Context, logger *zap.Logger, op string, err error) {
	_ = c.Error(err)
	logger.Error(op+" failed",
		zap.String("trace_id", mw.GetTraceID(c)),
		zap.Error(err))
	fail(c, http.StatusInternalServerError, "internal error")
}

// int64Param parses a numeric path parameter. On failure it writes
// 400 {"message":"Invalid <name>"} and returns false.
func int64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		fail(c, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return v, true
}

// bindJSON binds the body into dst; on failure it writes 400 with msg when
// given, or a message built from the failing fields.
func bindJSON(c *gin.Context, dst interface{}, msg string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if msg == "" {
			msg = validationMessage(err)
		}
		fail(c, http.StatusBadRequest, msg)
		return false
	}
	return true
}

// validationMessage turns binding errors into one readable line.
func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return "Invalid request"
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fieldMessage(fe))
	}
	return strings.Join(msgs, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	field := jsonName(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// jsonName lowers the first rune of a Go field name: FromUserID → fromUserID.
// The acronym suffix is normalized to match the wire names.
func jsonName(field string) string {
	if field == "" {
		return field
	}
	name := strings.ToLower(field[:1]) + field[1:]
	if strings.HasSuffix(name, "ID") {
		name = strings.TrimSuffix(name, "ID") + "Id"
	}
	if strings.HasSuffix(name, "URL") {
		name = strings.TrimSuffix(name, "URL") + "Url"
	}
	return name
}
