package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"gagyebu/internal/auth"
	"gagyebu/internal/core"
	"gagyebu/internal/ledger"
	"gagyebu/internal/live"
	"gagyebu/internal/log"
	"gagyebu/internal/middleware/ratelimit"
	"gagyebu/internal/services"
	"gagyebu/internal/session"
	"gagyebu/internal/storage/memory"
)

type testEnv struct {
	srv      *Server
	store    *memory.Store
	sessions *session.Store
	txs      *services.TransactionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := log.Discard()
	store := memory.New()

	sessions, err := session.Open(filepath.Join(t.TempDir(), "sessions.db"), time.Hour, logger)
	if err != nil {
		t.Fatalf("open sessions: %v", err)
	}
	t.Cleanup(func() { _ = sessions.Close() })

	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: 100})
	t.Cleanup(limiter.Stop)
	authSvc := auth.NewService(auth.NewLocalProvider(store, bcrypt.MinCost), store, sessions, limiter, logger)

	hub := live.NewHub(store, logger, time.Second)
	t.Cleanup(hub.Close)
	txs := services.NewTransactionService(store, hub, nil, logger, services.Options{Taxonomy: core.DefaultTaxonomy()})

	srv := NewServer(":0", Deps{
		Transactions:      txs,
		Auth:              authSvc,
		Hub:               hub,
		Notices:           store,
		Store:             store,
		Cache:             txs.Cache(),
		Logger:            logger,
		RequestsPerMinute: 1000,
		Now:               func() time.Time { return testNow },
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return &testEnv{srv: srv, store: store, sessions: sessions, txs: txs}
}

type reqOpt func(*http.Request)

func withCookie(c *http.Cookie) reqOpt {
	return func(r *http.Request) {
		if c != nil {
			r.AddCookie(c)
		}
	}
}

func asHTMX(target string) reqOpt {
	return func(r *http.Request) {
		r.Header.Set("HX-Request", "true")
		if target != "" {
			r.Header.Set("HX-Target", target)
		}
	}
}

func (e *testEnv) do(method, path string, form url.Values, opts ...reqOpt) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, o := range opts {
		o(req)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func sessionCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == session.CookieName && c.Value != "" {
			return c
		}
	}
	t.Fatalf("no session cookie in response (status %d)", rr.Code)
	return nil
}

func (e *testEnv) signUp(t *testing.T, email string) *http.Cookie {
	t.Helper()
	rr := e.do(http.MethodPost, "/signup", url.Values{"email": {email}, "password": {"secret1"}})
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/" {
		t.Fatalf("signup status=%d location=%q body=%s", rr.Code, rr.Header().Get("Location"), rr.Body.String())
	}
	return sessionCookie(t, rr)
}

func (e *testEnv) userID(t *testing.T, c *http.Cookie) string {
	t.Helper()
	sess, err := e.sessions.Get(c.Value)
	if err != nil {
		t.Fatalf("session lookup: %v", err)
	}
	return sess.UserID
}

func triggers(t *testing.T, rr *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	raw := rr.Header().Get("HX-Trigger")
	if raw == "" {
		return nil
	}
	var got map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("HX-Trigger is not JSON: %v", err)
	}
	return got
}

func TestHealthReadyAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.do(http.MethodGet, path, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, rr.Code, rr.Body.String())
		}
		var body map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: invalid JSON: %v", path, err)
		}
	}

	rr := env.do(http.MethodGet, "/metrics", nil)
	for _, metric := range []string{"http_requests_total", "transactions_saved_total", "cache_hits_total", "websocket_connections", "uptime_seconds"} {
		if !strings.Contains(rr.Body.String(), metric) {
			t.Errorf("metrics missing %s", metric)
		}
	}
}

func TestStaticAssets(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(http.MethodGet, "/static/app.js", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("static status=%d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Cache-Control"), "max-age=3600") {
		t.Errorf("Cache-Control = %q", rr.Header().Get("Cache-Control"))
	}
}

func TestGuardRedirects(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodGet, "/", nil)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login" {
		t.Fatalf("anonymous home: status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}

	rr = env.do(http.MethodGet, "/my", nil, asHTMX(""))
	if rr.Header().Get("HX-Redirect") != "/login" {
		t.Errorf("htmx request should get HX-Redirect, got %q", rr.Header().Get("HX-Redirect"))
	}

	rr = env.do(http.MethodGet, "/login", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "로그인하기") {
		t.Fatalf("login page status=%d", rr.Code)
	}

	cookie := env.signUp(t, "kim@example.com")
	for _, path := range []string{"/login", "/signup"} {
		rr = env.do(http.MethodGet, path, nil, withCookie(cookie))
		if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/" {
			t.Errorf("signed-in %s: status=%d location=%q", path, rr.Code, rr.Header().Get("Location"))
		}
	}
}

func TestLoginFailureShowsMessage(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "kim@example.com")

	rr := env.do(http.MethodPost, "/login", url.Values{"email": {"kim@example.com"}, "password": {"wrong12"}})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "이메일이나 비밀번호가 올바르지 않습니다.") {
		t.Errorf("missing credential message: %s", body)
	}
	if !strings.Contains(body, `value="kim@example.com"`) {
		t.Error("typed email should be kept")
	}

	rr = env.do(http.MethodPost, "/login", url.Values{"email": {"kim@example.com"}, "password": {"secret1"}})
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("login status=%d", rr.Code)
	}
	sessionCookie(t, rr)
}

func TestHomeRendersMonth(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t, "kim@example.com")

	rr := env.do(http.MethodGet, "/", nil, withCookie(cookie))
	if rr.Code != http.StatusOK {
		t.Fatalf("home status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{"2024년 5월", "이번 달에는 기록이 없어요!", "+ 0 원", "- 0 원"} {
		if !strings.Contains(body, want) {
			t.Errorf("home missing %q", want)
		}
	}

	uid := env.userID(t, cookie)
	ctx := context.Background()
	for _, d := range []core.Draft{
		{Type: core.Expense, Amount: "4,500", Title: "스타벅스", Date: "2024-05-03", Category: "식비", Method: core.MethodCredit},
		{Type: core.Income, Amount: "20000", Title: "용돈", Date: "2024-05-15", Category: "용돈"},
	} {
		if _, err := env.txs.Create(ctx, uid, d); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	rr = env.do(http.MethodGet, "/?year=2024&month=5", nil, withCookie(cookie), asHTMX("home"))
	body = rr.Body.String()
	if strings.Contains(body, "<html") {
		t.Error("htmx navigation should render only the home block")
	}
	for _, want := range []string{"스타벅스", "-4,500", "+ 20,000 원", "- 4,500 원"} {
		if !strings.Contains(body, want) {
			t.Errorf("list missing %q", want)
		}
	}

	rr = env.do(http.MethodGet, "/?year=2024&month=5&view=calendar&day=2024-05-03", nil, withCookie(cookie))
	body = rr.Body.String()
	for _, want := range []string{"5월 3일 내역", "-4,500", "+20,000", "오늘"} {
		if !strings.Contains(body, want) {
			t.Errorf("calendar missing %q", want)
		}
	}

	rr = env.do(http.MethodGet, "/?year=2024&month=6&view=calendar", nil, withCookie(cookie))
	if !strings.Contains(rr.Body.String(), "이날은 기록된 내역이 없어요") {
		t.Error("empty day message missing")
	}
}

func TestEditorTypeSwitchKeepsValues(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t, "kim@example.com")

	rr := env.do(http.MethodGet, "/ui/editor", nil, withCookie(cookie), asHTMX("modal-body"))
	body := rr.Body.String()
	if rr.Code != http.StatusOK || !strings.Contains(body, "어디에 쓰셨나요?") || !strings.Contains(body, `value="2024-05-15"`) {
		t.Fatalf("new editor status=%d body=%s", rr.Code, body)
	}
	if !strings.Contains(body, "결제수단") {
		t.Error("expense editor should offer payment methods")
	}

	q := url.Values{"type": {"income"}, "title": {"월급"}, "amount": {"3,000,000"}, "category": {"식비"}, "method": {"cash"}}
	rr = env.do(http.MethodGet, "/ui/editor?"+q.Encode(), nil, withCookie(cookie), asHTMX("modal-body"))
	body = rr.Body.String()
	for _, want := range []string{"얼마나 들어왔나요?", `value="월급"`, `value="3,000,000"`, "수입 저장하기"} {
		if !strings.Contains(body, want) {
			t.Errorf("income editor missing %q", want)
		}
	}
	if strings.Contains(body, "결제수단") {
		t.Error("income editor should not offer payment methods")
	}
	if strings.Contains(body, `value="식비" selected`) {
		t.Error("expense category should be cleared for income")
	}
}

func TestCreateTransaction(t *testing.T) {
	env := newTestEnv(t)

	form := url.Values{
		"type": {"expense"}, "amount": {"4,500"}, "title": {"스타벅스"},
		"date": {"2024-05-03"}, "category": {"식비"}, "method": {"credit"},
	}

	rr := env.do(http.MethodPost, "/transactions", form, asHTMX("modal-body"))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous save status=%d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), core.MsgLoginRequired) {
		t.Errorf("anonymous save should notify login required: %s", rr.Header().Get("HX-Trigger"))
	}

	cookie := env.signUp(t, "kim@example.com")

	bad := url.Values{"type": {"expense"}, "amount": {""}, "title": {""}, "date": {"2024-05-03"}}
	rr = env.do(http.MethodPost, "/transactions", bad, withCookie(cookie), asHTMX("modal-body"))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid save status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), core.MsgAmountRequired) {
		t.Errorf("first failing field should be amount: %s", rr.Body.String())
	}

	rr = env.do(http.MethodPost, "/transactions", form, withCookie(cookie), asHTMX("modal-body"))
	if rr.Code != http.StatusOK {
		t.Fatalf("save status=%d body=%s", rr.Code, rr.Body.String())
	}
	got := triggers(t, rr)
	for _, name := range []string{"transaction:saved", "modal:close", "show-notification"} {
		if _, ok := got[name]; !ok {
			t.Errorf("missing trigger %q", name)
		}
	}

	items, err := env.store.QueryMonth(context.Background(), env.userID(t, cookie), core.Month{Year: 2024, Month: 5})
	if err != nil || len(items) != 1 || items[0].Amount != 4500 {
		t.Fatalf("stored items = %+v, %v", items, err)
	}

	update := url.Values{
		"type": {"expense"}, "amount": {"5,000"}, "title": {"스타벅스"},
		"date": {"2024-06-01"}, "category": {"식비"}, "method": {"check"},
	}
	rr = env.do(http.MethodPost, "/transactions/"+items[0].ID, update, withCookie(cookie), asHTMX("modal-body"))
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "수정되었어요") {
		t.Errorf("update toast = %s", rr.Header().Get("HX-Trigger"))
	}
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t, "kim@example.com")
	uid := env.userID(t, cookie)
	ctx := context.Background()

	tx, err := env.txs.Create(ctx, uid, core.Draft{
		Type: core.Expense, Amount: "12000", Title: "점심", Date: "2024-05-10", Category: "식비", Method: core.MethodCash,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	path := "/transactions/" + tx.ID + "/delete"

	rr := env.do(http.MethodGet, path, nil, withCookie(cookie), asHTMX("modal-body"))
	if !strings.Contains(rr.Body.String(), core.MsgDeleteConfirm) {
		t.Fatalf("dialog missing confirmation text: %s", rr.Body.String())
	}

	rr = env.do(http.MethodPost, path, url.Values{}, withCookie(cookie), asHTMX("modal-body"))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), core.MsgDeleteConfirm) {
		t.Fatalf("unconfirmed delete status=%d", rr.Code)
	}
	if _, err := env.store.Get(ctx, uid, tx.ID); err != nil {
		t.Fatalf("record deleted without confirmation: %v", err)
	}

	rr = env.do(http.MethodPost, path, url.Values{"confirm": {"yes"}}, withCookie(cookie), asHTMX("modal-body"))
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d", rr.Code)
	}
	got := triggers(t, rr)
	if _, ok := got["transaction:deleted"]; !ok {
		t.Errorf("missing transaction:deleted trigger: %v", got)
	}
	if !strings.Contains(string(got["show-notification"]), core.MsgDeleted) {
		t.Errorf("notification = %s", got["show-notification"])
	}
	if _, err := env.store.Get(ctx, uid, tx.ID); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("record still present: %v", err)
	}

	rr = env.do(http.MethodGet, path, nil, withCookie(cookie), asHTMX("modal-body"))
	if rr.Code != http.StatusNotFound {
		t.Errorf("deleted record dialog status=%d", rr.Code)
	}
}

func TestOtherUsersRecordsAreHidden(t *testing.T) {
	env := newTestEnv(t)
	owner := env.signUp(t, "kim@example.com")
	other := env.signUp(t, "lee@example.com")

	tx, err := env.txs.Create(context.Background(), env.userID(t, owner), core.Draft{
		Type: core.Income, Amount: "1000", Title: "용돈", Date: "2024-05-01", Category: "용돈",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	rr := env.do(http.MethodGet, "/transactions/"+tx.ID+"/edit", nil, withCookie(other), asHTMX("modal-body"))
	if rr.Code != http.StatusNotFound {
		t.Errorf("foreign record status=%d", rr.Code)
	}
}

func TestProfileUpdate(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t, "kim@example.com")

	rr := env.do(http.MethodGet, "/my", nil, withCookie(cookie))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "이름 없음님의 정보를 확인하고 관리해보세요.") {
		t.Fatalf("my page status=%d", rr.Code)
	}

	rr = env.do(http.MethodPost, "/my/profile", url.Values{"nickname": {"가계부왕"}, "photo": {"ghost_2"}}, withCookie(cookie), asHTMX("profile-card"))
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `value="가계부왕"`) {
		t.Error("profile card should show the new nickname")
	}
	if _, ok := triggers(t, rr)["profile:updated"]; !ok {
		t.Error("missing profile:updated trigger")
	}

	u, err := env.store.GetUser(context.Background(), env.userID(t, cookie))
	if err != nil || u.Nickname != "가계부왕" || u.PhotoURL != "ghost_2" {
		t.Fatalf("stored user = %+v, %v", u, err)
	}

	rr = env.do(http.MethodPost, "/my/profile", url.Values{"photo": {"ghost_9"}}, withCookie(cookie), asHTMX("profile-card"))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid avatar status=%d", rr.Code)
	}
}

func TestNoticeSearch(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t, "kim@example.com")
	ctx := context.Background()
	for _, n := range []core.Notice{
		{Title: "서버 점검 안내", Category: "점검", Date: "2024-05-14", Content: "<p>새벽 2시</p>"},
		{Title: "가계부 오픈", Category: "안내", Date: "2024-01-02", Content: "<p>환영합니다</p>"},
	} {
		if _, err := env.store.AddNotice(ctx, n); err != nil {
			t.Fatalf("AddNotice: %v", err)
		}
	}

	rr := env.do(http.MethodGet, "/notice", nil, withCookie(cookie))
	body := rr.Body.String()
	if !strings.Contains(body, "서버 점검 안내") || !strings.Contains(body, "가계부 오픈") {
		t.Fatalf("notice page missing notices")
	}
	if strings.Count(body, ">NEW<") != 1 {
		t.Errorf("only the recent notice should carry NEW")
	}
	if !strings.Contains(body, "<p>새벽 2시</p>") {
		t.Error("notice content should render as HTML")
	}

	rr = env.do(http.MethodGet, "/notice?q=점검", nil, withCookie(cookie), asHTMX("notice-list"))
	body = rr.Body.String()
	if !strings.Contains(body, "서버 점검 안내") || strings.Contains(body, "가계부 오픈") {
		t.Errorf("search result = %s", body)
	}

	rr = env.do(http.MethodGet, "/notice?q=없는소식", nil, withCookie(cookie), asHTMX("notice-list"))
	if !strings.Contains(rr.Body.String(), "검색어와 일치하는 소식이 없어요.") {
		t.Error("empty search message missing")
	}
}

func TestLogoutEndsSession(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t, "kim@example.com")

	rr := env.do(http.MethodPost, "/logout", url.Values{}, withCookie(cookie))
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login?signed_out=1" {
		t.Fatalf("logout status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}

	rr = env.do(http.MethodGet, "/", nil, withCookie(cookie))
	if rr.Header().Get("Location") != "/login" {
		t.Errorf("old cookie should be signed out, got status=%d", rr.Code)
	}

	rr = env.do(http.MethodGet, "/login?signed_out=1", nil)
	if !strings.Contains(rr.Body.String(), msgSignedOut) {
		t.Error("login page should confirm the sign-out")
	}
}

func TestSessionFailureShowsPlaceholder(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t, "kim@example.com")
	_ = env.sessions.Close()

	rr := env.do(http.MethodGet, "/", nil, withCookie(cookie))
	if rr.Code != http.StatusOK || rr.Header().Get("Location") != "" {
		t.Fatalf("status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}
	if !strings.Contains(rr.Body.String(), auth.LoadingText) {
		t.Errorf("expected loading placeholder, got %s", rr.Body.String())
	}
}

func TestLiveTransactionsWebSocket(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t, "kim@example.com")
	uid := env.userID(t, cookie)

	ts := httptest.NewServer(env.srv.Handler)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/transactions"
	header := http.Header{"Cookie": {cookie.String()}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() map[string]any {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		return msg
	}

	if err := conn.WriteJSON(wsClientMessage{Type: "month", Year: 2024, Month: 5}); err != nil {
		t.Fatalf("write: %v", err)
	}
	first := read()
	if first["type"] != "snapshot" || first["month"] != float64(5) {
		t.Fatalf("first message = %v", first)
	}
	if items := first["items"].([]any); len(items) != 0 {
		t.Fatalf("expected empty month, got %v", items)
	}

	if _, err := env.txs.Create(context.Background(), uid, core.Draft{
		Type: core.Expense, Amount: "7000", Title: "택시", Date: "2024-05-20", Category: "교통", Method: core.MethodCheck,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	next := read()
	if next["type"] != "snapshot" || next["expense"] != float64(7000) {
		t.Fatalf("after create = %v", next)
	}
	if items := next["items"].([]any); len(items) != 1 {
		t.Fatalf("expected one item, got %v", items)
	}

	env.do(http.MethodPost, "/logout", url.Values{}, withCookie(cookie))
	if msg := read(); msg["type"] != "signed_out" {
		t.Errorf("after logout = %v", msg)
	}
}

func TestWebSocketRequiresSession(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.srv.Handler)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/transactions"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail without a session")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v", resp)
	}
}
