package http

import "github.com/gofiber/fiber/v2"

// apiCode is the machine-readable error class in an APIError envelope.
type apiCode string

const (
	codeBadRequest  apiCode = "bad_request"
	codeNotFound    apiCode = "not_found"
	codeInternal    apiCode = "internal_error"
	codeRateLimited apiCode = "rate_limited"
)

// statusFor maps each error class to its HTTP status.
var statusFor = map[apiCode]int{
	codeBadRequest:  fiber.StatusBadRequest,
	codeNotFound:    fiber.StatusNotFound,
	codeInternal:    fiber.StatusInternalServerError,
	codeRateLimited: fiber.StatusTooManyRequests,
}

// APIError is the envelope every non-2xx response carries.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError emits the envelope for code, echoing the request ID so clients
// can quote it when reporting a failure.
func writeError(c *fiber.Ctx, code apiCode, message string) error {
	status := statusFor[code]
	rid, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      string(code),
		Message:   message,
		RequestID: rid,
	})
}

// errBadRequest rejects malformed input.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return writeError(c, codeBadRequest, msg)
}

// errNotFound reports a missing entry or route.
func errNotFound(c *fiber.Ctx, msg string) error {
	return writeError(c, codeNotFound, msg)
}

// errInternal reports a failure the client cannot fix. The cause is logged
// server-side with the request ID so the envelope can stay terse.
func errInternal(c *fiber.Ctx, msg string) error {
	LoggerFromCtx(c.Context()).Error("request failed", "cause", msg)
	return writeError(c, codeInternal, msg)
}
