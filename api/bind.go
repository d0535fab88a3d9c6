package api

import (
	"bytes"
	"errors"
	"io"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"trello-api/domain"
)

const maxBodySize = 64 * 1024 // 64 KiB

const badRequestMessage = "Bad request"

var errBodyTooLarge = errors.New("request body too large")

// Validator plugs go-playground/validator into echo's Validate hook.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

func (cv *Validator) Validate(i interface{}) error {
	if err := cv.v.Struct(i); err != nil {
		return domain.BadRequest(badRequestMessage, err)
	}
	return nil
}

// bindBody decodes a JSON body into dst and validates it. Unknown fields,
// wrong types and oversized bodies are bad requests.
func bindBody(c echo.Context, dst any) error {
	body := c.Request().Body
	if body == nil {
		return domain.BadRequest(badRequestMessage, io.EOF)
	}
	data, err := io.ReadAll(io.LimitReader(body, maxBodySize+1))
	if err != nil {
		return domain.BadRequest(badRequestMessage, err)
	}
	if len(data) > maxBodySize {
		return domain.BadRequest(badRequestMessage, errBodyTooLarge)
	}

	dec := sonic.ConfigStd.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.BadRequest(badRequestMessage, err)
	}
	return c.Validate(dst)
}
