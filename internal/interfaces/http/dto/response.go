package dto

// Response is the envelope of every API response.
// Failures carry a human readable error and a machine readable code.
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      string      `json:"code,omitempty"`
	RequestID string      `json:"requestId,omitempty"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data interface{}) Response {
	return Response{Success: true, Data: data}
}

// NewErrorResponse creates an error response
func NewErrorResponse(code, message string) Response {
	return Response{Success: false, Error: message, Code: code}
}

// WithRequestID attaches the request id to the response
func (r Response) WithRequestID(requestID string) Response {
	r.RequestID = requestID
	return r
}
