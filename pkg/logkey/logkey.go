package logkey

// Common keys for structured log attributes so handlers, jobs and stores
// stay greppable across the service.
const (
	TraceID = "Trace ID"
	ERROR   = "Error"

	OrderID   = "Order ID"
	OrderNum  = "Order Number"
	UserID    = "User ID"
	EventID   = "Event ID"
	EventType = "Event Type"
	Job       = "Job"
	Status    = "Status"
)
