package http

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"

	"gagyebu/internal/core"
)

// Client-side events. The month list re-fetches on the transaction events;
// app.js handles the rest.
const (
	eventSaved        = "transaction:saved"
	eventDeleted      = "transaction:deleted"
	eventModalClose   = "modal:close"
	eventProfile      = "profile:updated"
	eventNotification = "show-notification"
)

// HTMXResponseBuilder assembles a fragment response together with the
// HX-Trigger events that tell the page what changed.
type HTMXResponseBuilder struct {
	status int
	header http.Header
	events map[string]any
	body   []byte
}

func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		status: http.StatusOK,
		header: make(http.Header),
		events: make(map[string]any),
	}
}

func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.status = code
	return b
}

// Trigger queues a client event. A later trigger of the same name wins.
func (b *HTMXResponseBuilder) Trigger(name string, detail any) *HTMXResponseBuilder {
	b.events[name] = detail
	return b
}

type monthDetail struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// TriggerTransactionSaved tells the page a record of m was created or edited.
func (b *HTMXResponseBuilder) TriggerTransactionSaved(m core.Month) *HTMXResponseBuilder {
	return b.Trigger(eventSaved, monthDetail{m.Year, m.Month})
}

func (b *HTMXResponseBuilder) TriggerTransactionDeleted(m core.Month) *HTMXResponseBuilder {
	return b.Trigger(eventDeleted, monthDetail{m.Year, m.Month})
}

func (b *HTMXResponseBuilder) TriggerModalClose() *HTMXResponseBuilder {
	return b.Trigger(eventModalClose, struct{}{})
}

// TriggerProfileUpdated refreshes the avatar and nickname in the header.
func (b *HTMXResponseBuilder) TriggerProfileUpdated() *HTMXResponseBuilder {
	return b.Trigger(eventProfile, struct{}{})
}

// NotificationType selects the toast style.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
)

type toast struct {
	Type        NotificationType `json:"type"`
	Message     string           `json:"message"`
	Description string           `json:"description,omitempty"`
	Duration    int              `json:"duration"`
}

// TriggerNotification shows a toast for durationMs. An empty description
// is left out of the payload.
func (b *HTMXResponseBuilder) TriggerNotification(kind NotificationType, message, description string, durationMs int) *HTMXResponseBuilder {
	return b.Trigger(eventNotification, toast{
		Type:        kind,
		Message:     message,
		Description: description,
		Duration:    durationMs,
	})
}

func (b *HTMXResponseBuilder) TriggerSuccessNotification(message, description string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationSuccess, message, description, 3000)
}

// Error toasts stay up longer.
func (b *HTMXResponseBuilder) TriggerErrorNotification(message, description string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationError, message, description, 5000)
}

// Redirect navigates the whole page, which a plain 3xx cannot do for htmx.
func (b *HTMXResponseBuilder) Redirect(url string) *HTMXResponseBuilder {
	return b.Header("HX-Redirect", url)
}

// Retarget swaps the body into selector instead of the request's hx-target.
func (b *HTMXResponseBuilder) Retarget(selector string) *HTMXResponseBuilder {
	return b.Header("HX-Retarget", selector)
}

func (b *HTMXResponseBuilder) Header(name, value string) *HTMXResponseBuilder {
	b.header.Set(name, value)
	return b
}

func (b *HTMXResponseBuilder) BodyHTML(html []byte) *HTMXResponseBuilder {
	b.body = html
	return b.Header("Content-Type", "text/html; charset=utf-8")
}

// Write flushes headers, events, status and body to w in that order.
func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	dst := w.Header()
	for name, values := range b.header {
		dst[name] = values
	}
	if len(b.events) > 0 {
		if raw, err := json.Marshal(b.events); err == nil {
			dst.Set("HX-Trigger", string(raw))
		}
	}
	w.WriteHeader(b.status)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// ErrorResponse renders message as an escaped inline alert.
func ErrorResponse(status int, message string) *HTMXResponseBuilder {
	alert := `<div class="error" role="alert">` + template.HTMLEscapeString(message) + `</div>`
	return NewHTMXResponse().Status(status).BodyHTML([]byte(alert))
}

func BadRequestError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// UnprocessableEntityError is used for form values that fail validation.
func UnprocessableEntityError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

func InternalServerError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

func NotFoundError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// MethodNotAllowedError has no body; allow goes into the Allow header.
func MethodNotAllowedError(allow string) *HTMXResponseBuilder {
	return NewHTMXResponse().Status(http.StatusMethodNotAllowed).Header("Allow", allow)
}

// TooManyRequestsError sets Retry-After to retryAfter seconds.
func TooManyRequestsError(message string, retryAfter int) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, message).
		Header("Retry-After", strconv.Itoa(retryAfter))
}
