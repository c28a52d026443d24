package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-hadith-bot/internal/bot"
)

// newAPIServer fakes the Bot API: it records the last method and decoded
// body and answers with the given result payload.
func newAPIServer(t *testing.T, result string) (*httptest.Server, *struct {
	method string
	body   map[string]any
}) {
	t.Helper()
	captured := &struct {
		method string
		body   map[string]any
	}{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.method = r.URL.Path
		captured.body = map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&captured.body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":` + result + `}`))
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func TestSendMessage_Wire(t *testing.T) {
	srv, captured := newAPIServer(t, `{}`)
	tg := NewTelegram(srv.URL, "TOKEN", time.Second)

	kb := &bot.Keyboard{Rows: [][]bot.Button{{{Label: "🎲", Data: "random"}}}}
	if err := tg.SendMessage(context.Background(), 100, "hello", kb); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if captured.method != "/botTOKEN/sendMessage" {
		t.Errorf("method path = %q", captured.method)
	}
	if captured.body["chat_id"] != float64(100) || captured.body["text"] != "hello" {
		t.Errorf("body = %#v", captured.body)
	}
	if captured.body["reply_markup"] == nil {
		t.Error("keyboard not serialized")
	}
}

func TestSendMessage_NilKeyboardOmitted(t *testing.T) {
	srv, captured := newAPIServer(t, `{}`)
	tg := NewTelegram(srv.URL, "TOKEN", time.Second)

	if err := tg.SendMessage(context.Background(), 100, "hello", nil); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if _, ok := captured.body["reply_markup"]; ok {
		t.Error("nil keyboard must be omitted from the payload")
	}
}

func TestEditMessage_Wire(t *testing.T) {
	srv, captured := newAPIServer(t, `{}`)
	tg := NewTelegram(srv.URL, "TOKEN", time.Second)

	if err := tg.EditMessage(context.Background(), 100, 42, "edited", nil); err != nil {
		t.Fatalf("EditMessage: %v", err)
	}
	if captured.method != "/botTOKEN/editMessageText" {
		t.Errorf("method path = %q", captured.method)
	}
	if captured.body["message_id"] != float64(42) {
		t.Errorf("body = %#v", captured.body)
	}
}

func TestAnswerCallback_Wire(t *testing.T) {
	srv, captured := newAPIServer(t, `true`)
	tg := NewTelegram(srv.URL, "TOKEN", time.Second)

	if err := tg.AnswerCallback(context.Background(), "cb1", "done"); err != nil {
		t.Fatalf("AnswerCallback: %v", err)
	}
	if captured.method != "/botTOKEN/answerCallbackQuery" {
		t.Errorf("method path = %q", captured.method)
	}
	if captured.body["callback_query_id"] != "cb1" {
		t.Errorf("body = %#v", captured.body)
	}
}

func TestCall_APIErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"bot was blocked"}`))
	}))
	defer srv.Close()
	tg := NewTelegram(srv.URL, "TOKEN", time.Second)

	err := tg.SendMessage(context.Background(), 100, "x", nil)
	if err == nil {
		t.Fatal("expected API error")
	}
}

func TestMapUpdate(t *testing.T) {
	msg := wireUpdate{
		UpdateID: 10,
		Message: &wireMessage{
			MessageID: 1,
			From:      &wireUser{ID: 7, FirstName: "أحمد", IsPremium: true},
			Chat:      wireChat{ID: 100, Type: "private"},
			Text:      "/start",
		},
	}
	u, ok := mapUpdate(msg)
	if !ok || u.Kind != bot.KindMessage {
		t.Fatalf("message update: %+v ok=%v", u, ok)
	}
	if u.ChatID != 100 || u.Text != "/start" || u.From == nil || u.From.ID != 7 || !u.From.IsPremium {
		t.Fatalf("message fields: %+v", u)
	}

	cb := wireUpdate{
		UpdateID: 11,
		CallbackQuery: &wireCallback{
			ID:   "cb1",
			From: wireUser{ID: 7},
			Data: "fav:add:h1",
			Message: &wireMessage{
				MessageID: 42,
				Chat:      wireChat{ID: 100, Type: "private"},
			},
		},
	}
	u, ok = mapUpdate(cb)
	if !ok || u.Kind != bot.KindCallback {
		t.Fatalf("callback update: %+v ok=%v", u, ok)
	}
	if u.CallbackID != "cb1" || u.CallbackData != "fav:add:h1" || u.MessageID != 42 {
		t.Fatalf("callback fields: %+v", u)
	}

	member := wireUpdate{
		UpdateID:     12,
		MyChatMember: &wireMemberEvent{Chat: wireChat{ID: 200, Type: "group"}, From: wireUser{ID: 7}},
	}
	u, ok = mapUpdate(member)
	if !ok || u.Kind != bot.KindMemberEvent || u.ChatID != 200 {
		t.Fatalf("member update: %+v ok=%v", u, ok)
	}

	// Media-only messages have no text route and are skipped.
	if _, ok := mapUpdate(wireUpdate{UpdateID: 13, Message: &wireMessage{Chat: wireChat{ID: 1}}}); ok {
		t.Fatal("text-less message should be skipped")
	}
	if _, ok := mapUpdate(wireUpdate{UpdateID: 14}); ok {
		t.Fatal("empty update should be skipped")
	}
}

func TestPoll_AdvancesOffsetAndStopsOnCancel(t *testing.T) {
	var mu sync.Mutex
	var gotOffsets []int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req getUpdatesReq
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		gotOffsets = append(gotOffsets, req.Offset)
		first := len(gotOffsets) == 1
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if first {
			_, _ = w.Write([]byte(`{"ok":true,"result":[
				{"update_id":5,"message":{"message_id":1,"from":{"id":7},"chat":{"id":100,"type":"private"},"text":"hi"}}
			]}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
	}))
	defer srv.Close()

	tg := NewTelegram(srv.URL, "TOKEN", 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	var handled []bot.Update
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()
	err := tg.Poll(ctx, func(ctx context.Context, u bot.Update) {
		handled = append(handled, u)
	})
	if err == nil {
		t.Fatal("Poll should return the context error on cancel")
	}

	if len(handled) != 1 || handled[0].Text != "hi" {
		t.Fatalf("handled = %#v", handled)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(gotOffsets) < 2 || gotOffsets[1] != 6 {
		t.Fatalf("offset not advanced past update 5: %v", gotOffsets)
	}
}
