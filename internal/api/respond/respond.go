// Package respond defines the canonical response envelopes shared by the
// handlers and the central error handler.
package respond

import "github.com/labstack/echo/v4"

// Envelope is the success payload: {statusCode, data, message, success:true}.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data,omitempty"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

// ErrorEnvelope is the failure payload:
// {statusCode, message, success:false, errors}.
type ErrorEnvelope struct {
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Success    bool     `json:"success"`
	Errors     []string `json:"errors,omitempty"`
}

// OK renders a success envelope with the given status code.
func OK(c echo.Context, code int, data any, message string) error {
	return c.JSON(code, Envelope{
		StatusCode: code,
		Data:       data,
		Message:    message,
		Success:    true,
	})
}
