package api

import (
	"github.com/labstack/echo/v4"
)

// Response is the envelope for every JSON reply.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

func ok(c echo.Context, status int, data any) error {
	return c.JSON(status, Response{Success: true, Data: data})
}

func fail(c echo.Context, status int, code, msg string, err error) error {
	r := Response{Code: code, Message: msg}
	if err != nil {
		r.Detail = err.Error()
	}
	return c.JSON(status, r)
}
