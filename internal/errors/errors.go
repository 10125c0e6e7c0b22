package errors

import (
	stderrors "errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/locales"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"

	"github.com/stwalsh4118/landflow/internal/middleware"
	"github.com/stwalsh4118/landflow/internal/models"
)

// Error code constants for standardized error responses
const (
	ErrNotFound          = "NOT_FOUND"
	ErrBadRequest        = "BAD_REQUEST"
	ErrInternalServer    = "INTERNAL_SERVER_ERROR"
	ErrValidation        = "VALIDATION_ERROR"
	ErrForbidden         = "FORBIDDEN"
	ErrIllegalTransition = "ILLEGAL_TRANSITION"
	ErrVersionConflict   = "VERSION_CONFLICT"
	ErrPrecondition      = "PRECONDITION_FAILED"
	ErrUnprocessable     = "UNPROCESSABLE_ENTITY"
)

// ErrorResponse is the top-level error response structure.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error information.
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

var (
	translator   ut.Translator
	registerLock sync.Mutex
)

func init() {
	english := en.New()
	base, _ := ut.New(english, english).GetTranslator("en")
	translator = &sharedTranslator{Translator: base}
}

// sharedTranslator lets several validators register the same default
// messages. Every add overwrites, so a repeat registration is a no-op
// instead of a conflicting-key error.
type sharedTranslator struct {
	ut.Translator
}

func (t *sharedTranslator) Add(key interface{}, text string, _ bool) error {
	return t.Translator.Add(key, text, true)
}

func (t *sharedTranslator) AddCardinal(key interface{}, text string, rule locales.PluralRule, _ bool) error {
	return t.Translator.AddCardinal(key, text, rule, true)
}

func (t *sharedTranslator) AddOrdinal(key interface{}, text string, rule locales.PluralRule, _ bool) error {
	return t.Translator.AddOrdinal(key, text, rule, true)
}

func (t *sharedTranslator) AddRange(key interface{}, text string, rule locales.PluralRule, _ bool) error {
	return t.Translator.AddRange(key, text, rule, true)
}

// RegisterValidator makes v report json field names and installs English
// messages for its built-in tags. It is safe to call for any number of
// validators.
func RegisterValidator(v *validator.Validate) error {
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	registerLock.Lock()
	defer registerLock.Unlock()
	return entranslations.RegisterDefaultTranslations(v, translator)
}

// respond logs at warn for client errors and writes the JSON body.
func respond(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	requestID := middleware.GetRequestID(c)
	if log := middleware.GetLogger(c); log != nil {
		fields := map[string]interface{}{
			"code":       code,
			"message":    message,
			"request_id": requestID,
			"path":       c.Request.URL.Path,
		}
		if details != nil {
			fields["details"] = details
		}
		log.Warn("Request refused", fields)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			Details:   details,
			RequestID: requestID,
		},
	})
}

// NotFound returns a 404 Not Found error response.
func NotFound(c *gin.Context, message string) {
	respond(c, http.StatusNotFound, ErrNotFound, message, nil)
}

// BadRequest returns a 400 Bad Request error response with optional details.
func BadRequest(c *gin.Context, message string, details map[string]interface{}) {
	respond(c, http.StatusBadRequest, ErrBadRequest, message, details)
}

// Forbidden returns a 403 for a role that may not perform the action.
func Forbidden(c *gin.Context, message string) {
	respond(c, http.StatusForbidden, ErrForbidden, message, nil)
}

// Conflict returns a 409 with the given code.
func Conflict(c *gin.Context, code, message string) {
	respond(c, http.StatusConflict, code, message, nil)
}

// UnprocessableEntity returns a 422 for a well-formed request that breaks a
// cross-entity rule.
func UnprocessableEntity(c *gin.Context, message string) {
	respond(c, http.StatusUnprocessableEntity, ErrUnprocessable, message, nil)
}

// InternalServerError returns a 500 Internal Server Error response.
// The underlying error is logged but never sent to the client.
func InternalServerError(c *gin.Context, message string, err error) {
	log := middleware.GetLogger(c)
	requestID := middleware.GetRequestID(c)

	if log != nil {
		log.Error("Internal server error", err, map[string]interface{}{
			"message":    message,
			"request_id": requestID,
			"path":       c.Request.URL.Path,
			"method":     c.Request.Method,
		})
	}

	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
		Error: ErrorDetail{
			Code:      ErrInternalServer,
			Message:   message,
			RequestID: requestID,
		},
	})
}

// ValidationError returns a 400 Bad Request error response with field-specific validation errors.
func ValidationError(c *gin.Context, validationErrors validator.ValidationErrors) {
	details := make(map[string]interface{}, len(validationErrors))
	for _, err := range validationErrors {
		details[err.Field()] = formatValidationError(err)
	}
	respond(c, http.StatusBadRequest, ErrValidation, "Validation failed for one or more fields", details)
}

// BindError answers a failed ShouldBind*: field errors become a validation
// response, anything else (malformed JSON, wrong types) a bad request.
func BindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		ValidationError(c, verrs)
		return
	}
	BadRequest(c, "Malformed request body", map[string]interface{}{"reason": err.Error()})
}

// FromError maps a workflow error onto its HTTP status.
func FromError(c *gin.Context, err error) {
	var verr *models.ValidationError
	switch {
	case stderrors.As(err, &verr):
		respond(c, http.StatusBadRequest, ErrValidation, err.Error(),
			map[string]interface{}{verr.Field: verr.Reason})
	case stderrors.Is(err, models.ErrValidation):
		respond(c, http.StatusBadRequest, ErrValidation, err.Error(), nil)
	case stderrors.Is(err, models.ErrForbidden):
		Forbidden(c, err.Error())
	case stderrors.Is(err, models.ErrNotFound):
		NotFound(c, err.Error())
	case stderrors.Is(err, models.ErrIllegalTransition):
		Conflict(c, ErrIllegalTransition, err.Error())
	case stderrors.Is(err, models.ErrConcurrentModification):
		Conflict(c, ErrVersionConflict, err.Error())
	case stderrors.Is(err, models.ErrAlreadyDrawn),
		stderrors.Is(err, models.ErrInsufficientPool):
		Conflict(c, ErrPrecondition, err.Error())
	case stderrors.Is(err, models.ErrParcelNotAffected),
		stderrors.Is(err, models.ErrParcelPossessed),
		stderrors.Is(err, models.ErrValuationMissing),
		stderrors.Is(err, models.ErrInventoryAllotted):
		UnprocessableEntity(c, err.Error())
	default:
		InternalServerError(c, "An unexpected error occurred", err)
	}
}

// formatValidationError converts a validator.FieldError to a human-readable message.
func formatValidationError(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Must be a valid email address"
	case "min":
		return "Value is too short or small (minimum: " + err.Param() + ")"
	case "max":
		return "Value is too long or large (maximum: " + err.Param() + ")"
	case "len":
		return "Must have length of " + err.Param()
	case "gt":
		return "Must be greater than " + err.Param()
	case "gte":
		return "Must be greater than or equal to " + err.Param()
	case "lt":
		return "Must be less than " + err.Param()
	case "lte":
		return "Must be less than or equal to " + err.Param()
	case "oneof":
		return "Must be one of: " + err.Param()
	case "uuid":
		return "Must be a valid UUID"
	default:
		if msg := err.Translate(translator); msg != "" && msg != err.Error() {
			return msg
		}
		return "Validation failed for tag: " + err.Tag()
	}
}
