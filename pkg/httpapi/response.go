package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jdziat/credibility-sync/pkg/core"
)

// Response codes carried in the envelope next to the HTTP status.
const (
	codeOK          = 0
	codeBadRequest  = 40000
	codeValidation  = 40001
	codeNotFound    = 40400
	codeNoMethod    = 40500
	codeConflict    = 40900
	codeUnavailable = 50300
	codeInternal    = 50000
)

type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Code: codeOK, Message: "ok", Data: data})
}

func fail(c *gin.Context, status, code int, msg string, data any) {
	c.AbortWithStatusJSON(status, envelope{Code: code, Message: msg, Data: data})
}

// apiError is a request error with a fixed status, such as a malformed body.
type apiError struct {
	status int
	code   int
	msg    string
	cause  error
}

func (e *apiError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *apiError) Unwrap() error { return e.cause }

func badRequest(msg string, cause error) error {
	return &apiError{status: http.StatusBadRequest, code: codeBadRequest, msg: msg, cause: cause}
}

// classify maps an error to the status, code, message and data written
// to the client. Internal failures never leak their message.
func classify(err error) (int, int, string, any) {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.status, ae.code, ae.Error(), nil
	}
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		return http.StatusUnprocessableEntity, codeValidation, ve.Error(), ve.Fields
	}
	var dup *core.DuplicateJobError
	if errors.As(err, &dup) {
		return http.StatusConflict, codeConflict, "job already pending", gin.H{"jobId": dup.ExistingID}
	}
	switch {
	case errors.Is(err, core.ErrJobNotFound):
		return http.StatusNotFound, codeNotFound, "job not found", nil
	case errors.Is(err, core.ErrGoalNotFound):
		return http.StatusNotFound, codeNotFound, "goal not found", nil
	case errors.Is(err, core.ErrNotRetryable), errors.Is(err, core.ErrNotRemovable):
		return http.StatusConflict, codeConflict, err.Error(), nil
	case errors.Is(err, core.ErrInvalidPayload),
		errors.Is(err, core.ErrUnknownSource),
		errors.Is(err, core.ErrInvalidQueueName),
		errors.Is(err, core.ErrQueueNameTooLong):
		return http.StatusBadRequest, codeBadRequest, err.Error(), nil
	}
	return http.StatusInternalServerError, codeInternal, "internal server error", nil
}
