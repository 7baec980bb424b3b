package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldDurationHuman = "duration_human"
	FieldUserAgent     = "user_agent"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldUserID        = "user_id"
	FieldExpenseID     = "expense_id"
	FieldCategory      = "category"
	FieldPage          = "page"
	FieldCount         = "count"
	FieldPolicy        = "policy"
	FieldEventType     = "event_type"
)

// Component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentWorker    = "worker"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentBackend   = "backend"
	ComponentFeed      = "feed"
	ComponentSeed      = "seed"
	ComponentClient    = "client"
)
