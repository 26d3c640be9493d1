package constants

// Standard Response Field Keys
const (
	ResponseFieldMessage = "message"
	ResponseFieldDetails = "details"
	ResponseFieldError   = "error"
	ResponseFieldCode    = "code"
)

// BuildErrorResponse builds the uniform error payload returned to clients.
// The shape is identical for every failure of the same endpoint so that
// responses never reveal which part of the check failed.
func BuildErrorResponse(code, message string) map[string]any {
	return map[string]any{
		ResponseFieldCode:    code,
		ResponseFieldMessage: message,
	}
}
