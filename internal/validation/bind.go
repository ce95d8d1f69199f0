package validation

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
)

var errTrailingData = errors.New("request body must contain a single JSON object")

// DecodeStrictJSON decodes the request body into out, rejecting fields out
// does not declare and anything after the first JSON value.
func DecodeStrictJSON(c *gin.Context, out interface{}) error {
	if c.Request == nil || c.Request.Body == nil {
		return io.EOF
	}

	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errTrailingData
	}
	return nil
}

// BindAndValidate strictly decodes the JSON body into out and runs v on it.
// On failure it writes a 400 response and returns the error so the handler
// can stop.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := DecodeStrictJSON(c, out); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   "invalid body",
			"details": []string{err.Error()},
		})
		return err
	}

	if err := v.Struct(out); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   "validation failed",
			"details": Details(err),
		})
		return err
	}
	return nil
}
