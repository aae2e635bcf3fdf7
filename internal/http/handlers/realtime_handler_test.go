package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/tbourn/go-social-backend/internal/realtime"
)

func TestRealtime_RejectsWithoutToken(t *testing.T) {
	a := newTestAPI(t)
	w := a.do(t, http.MethodGet, "/api/realtime", "", nil)
	if er := errCode(t, w); w.Code != http.StatusUnauthorized || er.Code != ErrCodeUnauthorized {
		t.Fatalf("no token: %d %+v", w.Code, er)
	}
	w = a.do(t, http.MethodGet, "/api/realtime?token=forged", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("forged token: %d", w.Code)
	}
}

func TestRealtime_QueryTokenSubscribeAndReceive(t *testing.T) {
	a := newTestAPI(t)
	uma := a.signup(t, "uma")
	vic := a.signup(t, "vic")

	srv := httptest.NewServer(a.r)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/realtime?token=" + uma.token

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })

	var f realtime.Frame
	if err := wsjson.Read(ctx, conn, &f); err != nil || f.Type != realtime.FrameSystem {
		t.Fatalf("first frame %+v, err %v", f, err)
	}

	sub := realtime.Frame{
		Type:  realtime.FrameSubscribe,
		ID:    "inbox",
		Topic: &realtime.Topic{Table: "messages", Event: "INSERT", Filter: "receiver_id=eq." + uma.id},
	}
	if err := wsjson.Write(ctx, conn, sub); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := wsjson.Read(ctx, conn, &f); err != nil || f.Type != realtime.FrameAck {
		t.Fatalf("ack %+v, err %v", f, err)
	}

	w := a.do(t, http.MethodPost, "/api/messages/"+uma.id, vic.token, map[string]string{"content": "ping"})
	if w.Code != http.StatusCreated {
		t.Fatalf("send: %d %s", w.Code, w.Body.String())
	}

	if err := wsjson.Read(ctx, conn, &f); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if f.Type != realtime.FrameEvent || f.TopicID != "inbox" || f.Event == nil || f.Event.Table != "messages" {
		t.Fatalf("event frame = %+v", f)
	}
	if !strings.Contains(string(f.Event.Record), `"content":"ping"`) || f.Event.Seq == 0 {
		t.Fatalf("record = %s seq = %d", f.Event.Record, f.Event.Seq)
	}
}
