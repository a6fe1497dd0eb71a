package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"gagyebu/internal/core"
	"gagyebu/internal/live"
	"gagyebu/internal/log"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsMaxMessage = 512
)

// wsClientMessage selects the month the socket follows.
type wsClientMessage struct {
	Type  string `json:"type"`
	Year  int    `json:"year"`
	Month int    `json:"month"`
}

type wsItem struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Date     string `json:"date"`
	Category string `json:"category"`
	Amount   int64  `json:"amount"`
	Type     string `json:"type"`
	Method   string `json:"method,omitempty"`
	Memo     string `json:"memo,omitempty"`
	Display  string `json:"display"`
}

type wsDay struct {
	Income  int64 `json:"income"`
	Expense int64 `json:"expense"`
}

type wsSnapshot struct {
	Type    string           `json:"type"`
	Seq     uint64           `json:"seq"`
	Year    int              `json:"year"`
	Month   int              `json:"month"`
	Income  int64            `json:"income"`
	Expense int64            `json:"expense"`
	Items   []wsItem         `json:"items"`
	Daily   map[string]wsDay `json:"daily"`
	Error   string           `json:"error,omitempty"`
}

type wsProfile struct {
	Type     string `json:"type"`
	Nickname string `json:"nickname"`
	Photo    string `json:"photo"`
}

type wsSignal struct {
	Type string `json:"type"`
}

func snapshotMessage(v *live.View) wsSnapshot {
	snap := v.Snapshot()
	totals := v.Totals()
	msg := wsSnapshot{
		Type:    "snapshot",
		Seq:     snap.Seq,
		Year:    snap.Filter.Month.Year,
		Month:   snap.Filter.Month.Month,
		Income:  totals.Income,
		Expense: totals.Expense,
		Items:   make([]wsItem, 0, len(snap.Items)),
		Daily:   make(map[string]wsDay),
	}
	if snap.Err != nil {
		msg.Error = msgLoadFailed
	}
	for _, t := range v.Items() {
		msg.Items = append(msg.Items, wsItem{
			ID:       t.ID,
			Title:    t.Title,
			Date:     t.Date,
			Category: t.Category,
			Amount:   t.Amount,
			Type:     string(t.Type),
			Method:   string(t.Method),
			Memo:     t.Memo,
			Display:  core.FormatSigned(t.Type, t.Amount),
		})
	}
	for date, st := range v.Daily() {
		msg.Daily[date] = wsDay{Income: st.Income, Expense: st.Expense}
	}
	return msg
}

// handleLiveTransactions streams the snapshots of one month to the browser.
// The client picks the month; the server pushes every redelivery and tells
// the client when its session ends.
func (s *Server) handleLiveTransactions(w http.ResponseWriter, r *http.Request) {
	rs := sessionFrom(r.Context())
	uid := rs.UserID()
	logger := log.FromContext(r.Context()).WithComponent(log.ComponentWebSocket)

	if s.hub == nil {
		http.Error(w, "live updates unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", log.FieldError, err)
		return
	}
	defer conn.Close()

	s.wsConns.Add(1)
	defer s.wsConns.Add(-1)

	ctx, cancel := context.WithCancel(s.liveCtx)
	defer cancel()

	view := live.NewView(s.hub)
	defer view.Close()

	users, stopWatch := s.auth.Watch(rs.Current.Session.ID)
	defer stopWatch()

	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	// Reader: month selections. Closing the socket ends ctx.
	go func() {
		defer cancel()
		for {
			var msg wsClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug("WebSocket read ended", log.FieldError, err)
				}
				return
			}
			if msg.Type != "month" {
				continue
			}
			m := core.Month{Year: msg.Year, Month: msg.Month}
			if !m.Valid() {
				continue
			}
			if err := view.Switch(ctx, live.Filter{UserID: uid, Month: m}); err != nil {
				if !errors.Is(err, live.ErrHubClosed) {
					logger.Warn("View switch failed", log.FieldError, err, log.FieldMonth, m.String())
				}
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	write := func(v any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(v) == nil
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(wsWriteWait))
			return
		case <-view.Updates():
			if !write(snapshotMessage(view)) {
				return
			}
		case u, ok := <-users:
			if !ok || u == nil {
				_ = write(wsSignal{Type: "signed_out"})
				return
			}
			if !write(wsProfile{Type: "profile", Nickname: u.DisplayName(), Photo: u.PhotoURL}) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
