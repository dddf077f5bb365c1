package logkey

// Common keys for structured log attributes so grepping logs stays consistent.
const (
	TraceID = "trace_id"
	OrderID = "order_id"
	Email   = "email"
	Error   = "error"
)
