package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gagyebu/internal/core"
)

func TestHTMXResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Status(http.StatusCreated).
		BodyHTML([]byte("<li>test</li>")).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if w.Body.String() != "<li>test</li>" {
		t.Errorf("Body = %q", w.Body.String())
	}
	if w.Header().Get("HX-Trigger") != "" {
		t.Error("HX-Trigger should be absent without triggers")
	}
}

func TestHTMXResponseBuilder_Triggers(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		TriggerTransactionSaved(core.Month{Year: 2024, Month: 5}).
		TriggerModalClose().
		TriggerSuccessNotification("지출 기록 완료!", "스타벅스 · 4,500원").
		Write(w)

	var got map[string]json.RawMessage
	if err := json.Unmarshal([]byte(w.Header().Get("HX-Trigger")), &got); err != nil {
		t.Fatalf("HX-Trigger is not JSON: %v", err)
	}
	for _, name := range []string{"transaction:saved", "modal:close", "show-notification"} {
		if _, ok := got[name]; !ok {
			t.Errorf("HX-Trigger missing %q", name)
		}
	}

	var saved struct{ Year, Month int }
	_ = json.Unmarshal(got["transaction:saved"], &saved)
	if saved.Year != 2024 || saved.Month != 5 {
		t.Errorf("transaction:saved payload = %+v", saved)
	}

	var note struct {
		Type        string `json:"type"`
		Message     string `json:"message"`
		Description string `json:"description"`
		Duration    int    `json:"duration"`
	}
	_ = json.Unmarshal(got["show-notification"], &note)
	if note.Type != "success" || note.Message != "지출 기록 완료!" || note.Description != "스타벅스 · 4,500원" || note.Duration != 3000 {
		t.Errorf("notification payload = %+v", note)
	}
}

func TestTriggerNotification_OmitsEmptyDescription(t *testing.T) {
	w := httptest.NewRecorder()
	NewHTMXResponse().TriggerErrorNotification(core.MsgSaveFailed, "").Write(w)

	trigger := w.Header().Get("HX-Trigger")
	if strings.Contains(trigger, "description") {
		t.Errorf("empty description should be omitted: %s", trigger)
	}
	if !strings.Contains(trigger, `"duration":5000`) || !strings.Contains(trigger, `"type":"error"`) {
		t.Errorf("unexpected error notification: %s", trigger)
	}
}

func TestHTMXResponseBuilder_Headers(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Redirect("/login").
		Retarget("#editor").
		Header("X-Custom", "value").
		Write(w)

	if got := w.Header().Get("HX-Redirect"); got != "/login" {
		t.Errorf("HX-Redirect = %q", got)
	}
	if got := w.Header().Get("HX-Retarget"); got != "#editor" {
		t.Errorf("HX-Retarget = %q", got)
	}
	if got := w.Header().Get("X-Custom"); got != "value" {
		t.Errorf("X-Custom = %q", got)
	}
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		builder    *HTMXResponseBuilder
		wantStatus int
		wantBody   string
	}{
		{"bad request", BadRequestError("잘못된 요청"), http.StatusBadRequest, `<div class="error" role="alert">잘못된 요청</div>`},
		{"unprocessable", UnprocessableEntityError("금액을 입력해주세요."), http.StatusUnprocessableEntity, `<div class="error" role="alert">금액을 입력해주세요.</div>`},
		{"internal", InternalServerError("오류"), http.StatusInternalServerError, `<div class="error" role="alert">오류</div>`},
		{"not found", NotFoundError("없음"), http.StatusNotFound, `<div class="error" role="alert">없음</div>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)

			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("Body = %q, want %q", w.Body.String(), tt.wantBody)
			}
			if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
}

func TestErrorResponse_EscapesHTML(t *testing.T) {
	w := httptest.NewRecorder()
	BadRequestError("<script>alert('xss')</script>").Write(w)

	body := w.Body.String()
	if strings.Contains(body, "<script>") {
		t.Errorf("Body should escape HTML: %s", body)
	}
}

func TestMethodNotAllowedError(t *testing.T) {
	w := httptest.NewRecorder()
	MethodNotAllowedError("GET, POST").Write(w)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Status = %d", w.Code)
	}
	if got := w.Header().Get("Allow"); got != "GET, POST" {
		t.Errorf("Allow = %q", got)
	}
}

func TestTooManyRequestsError(t *testing.T) {
	w := httptest.NewRecorder()
	TooManyRequestsError("잠시 후 다시 시도해주세요.", 60).Write(w)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Status = %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q", got)
	}
}
