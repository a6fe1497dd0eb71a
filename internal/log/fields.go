package log

// Field names used across components so log queries stay stable.
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
	FieldReferer       = "referer"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldMonth         = "month"
	FieldDate          = "date"
	FieldUserID        = "user_id"
	FieldTxID          = "tx_id"
	FieldTxType        = "tx_type"
	FieldAmount        = "amount"
	FieldProvider      = "provider"
	FieldAuthCode      = "auth_code"
	FieldSubscribers   = "subscribers"
)

// Component tags, set with Logger.WithComponent.
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentLedger    = "ledger"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentLive      = "live"
	ComponentAuth      = "auth"
	ComponentSession   = "session"
	ComponentCache     = "cache"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentTrace     = "trace"
	ComponentTemplate  = "template"
	ComponentWebSocket = "websocket"
	ComponentAdmin     = "admin"
)

// Operation names shared by components that log outside a request.
const (
	OpRead    = "read"
	OpUpdate  = "update"
	OpSignIn  = "sign_in"
	OpSignUp  = "sign_up"
	OpSignOut = "sign_out"
	OpRender  = "render"
)

// LogFields collects attributes before they are flattened for slog.
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

// WithError records err's message; a nil err adds nothing.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithTransaction adds ledger entry fields. txID is empty for failed creates.
func (f LogFields) WithTransaction(userID, txID, txType string, amount int64, date string) LogFields {
	f[FieldUserID] = userID
	if txID != "" {
		f[FieldTxID] = txID
	}
	f[FieldTxType] = txType
	f[FieldAmount] = amount
	f[FieldDate] = date
	return f
}

// ToSlice flattens f into alternating keys and values.
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
