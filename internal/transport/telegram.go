// Package transport implements the Telegram Bot API adapter: long polling
// for inbound updates and the outbound send/edit/answer calls the pipeline
// issues through the bot.Transport contract. Only the small slice of the
// Bot API the bot actually uses is modeled.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-hadith-bot/internal/bot"
)

// Telegram talks to the Bot API over HTTPS. It is safe for concurrent use.
type Telegram struct {
	base    string // e.g. "https://api.telegram.org/bot<token>"
	http    *http.Client
	timeout time.Duration // long-poll window for getUpdates
}

// NewTelegram builds an adapter for the given API base URL and bot token.
func NewTelegram(apiBase, token string, pollTimeout time.Duration) *Telegram {
	return &Telegram{
		base: apiBase + "/bot" + token,
		http: &http.Client{
			// getUpdates holds the connection open for the poll window;
			// leave headroom beyond it.
			Timeout: pollTimeout + 10*time.Second,
		},
		timeout: pollTimeout,
	}
}

// ---- wire types (request) ----

type sendMessageReq struct {
	ChatID      int64        `json:"chat_id"`
	Text        string       `json:"text"`
	ParseMode   string       `json:"parse_mode,omitempty"`
	ReplyMarkup *inlineReply `json:"reply_markup,omitempty"`
}

type editMessageReq struct {
	ChatID      int64        `json:"chat_id"`
	MessageID   int          `json:"message_id"`
	Text        string       `json:"text"`
	ParseMode   string       `json:"parse_mode,omitempty"`
	ReplyMarkup *inlineReply `json:"reply_markup,omitempty"`
}

type answerCallbackReq struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
}

type getUpdatesReq struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

type inlineReply struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// ---- wire types (response) ----

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
	Result      json.RawMessage `json:"result"`
}

type wireUser struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Username     string `json:"username"`
	LanguageCode string `json:"language_code"`
	IsPremium    bool   `json:"is_premium"`
}

type wireChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type wireMessage struct {
	MessageID int       `json:"message_id"`
	From      *wireUser `json:"from"`
	Chat      wireChat  `json:"chat"`
	Text      string    `json:"text"`
}

type wireCallback struct {
	ID      string       `json:"id"`
	From    wireUser     `json:"from"`
	Message *wireMessage `json:"message"`
	Data    string       `json:"data"`
}

type wireMemberEvent struct {
	Chat wireChat `json:"chat"`
	From wireUser `json:"from"`
}

type wireUpdate struct {
	UpdateID      int64            `json:"update_id"`
	Message       *wireMessage     `json:"message"`
	CallbackQuery *wireCallback    `json:"callback_query"`
	MyChatMember  *wireMemberEvent `json:"my_chat_member"`
}

// call posts one Bot API method and decodes the enveloped result into out
// (out may be nil when the result is not needed).
func (t *Telegram) call(ctx context.Context, method string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("telegram %s: encode: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.base+"/"+method, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	var env apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("telegram %s: decode: %w", method, err)
	}
	if !env.OK {
		return fmt.Errorf("telegram %s: api error %d: %s", method, env.ErrorCode, env.Description)
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}

// SendMessage implements bot.Transport.
func (t *Telegram) SendMessage(ctx context.Context, chatID int64, text string, kb *bot.Keyboard) error {
	return t.call(ctx, "sendMessage", sendMessageReq{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: toInlineReply(kb),
	}, nil)
}

// EditMessage implements bot.Transport.
func (t *Telegram) EditMessage(ctx context.Context, chatID int64, messageID int, text string, kb *bot.Keyboard) error {
	return t.call(ctx, "editMessageText", editMessageReq{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ReplyMarkup: toInlineReply(kb),
	}, nil)
}

// AnswerCallback implements bot.Transport.
func (t *Telegram) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return t.call(ctx, "answerCallbackQuery", answerCallbackReq{
		CallbackQueryID: callbackID,
		Text:            text,
	}, nil)
}

// Poll long-polls getUpdates and invokes handle for every inbound update it
// can map. It returns when ctx is canceled. Transient fetch failures are
// logged and retried after a short backoff.
func (t *Telegram) Poll(ctx context.Context, handle func(context.Context, bot.Update)) error {
	var offset int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		raw, err := t.fetchUpdates(ctx, offset)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				return ctx.Err()
			}
			log.Warn().Err(err).Msg("getUpdates failed, backing off")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
			continue
		}

		for _, wu := range raw {
			if wu.UpdateID >= offset {
				offset = wu.UpdateID + 1
			}
			if u, ok := mapUpdate(wu); ok {
				handle(ctx, u)
			}
		}
	}
}

func (t *Telegram) fetchUpdates(ctx context.Context, offset int64) ([]wireUpdate, error) {
	var out []wireUpdate
	err := t.call(ctx, "getUpdates", getUpdatesReq{
		Offset:         offset,
		Timeout:        int(t.timeout.Seconds()),
		AllowedUpdates: []string{"message", "callback_query", "my_chat_member"},
	}, &out)
	return out, err
}

// mapUpdate converts one wire update into the pipeline's shape. Updates the
// bot has no route for (edits, media without text) are skipped.
func mapUpdate(wu wireUpdate) (bot.Update, bool) {
	switch {
	case wu.CallbackQuery != nil:
		cb := wu.CallbackQuery
		u := bot.Update{
			ID:           wu.UpdateID,
			Kind:         bot.KindCallback,
			From:         toSender(&cb.From),
			CallbackID:   cb.ID,
			CallbackData: cb.Data,
		}
		if cb.Message != nil {
			u.ChatID = cb.Message.Chat.ID
			u.ChatType = cb.Message.Chat.Type
			u.MessageID = cb.Message.MessageID
		}
		return u, true

	case wu.Message != nil && wu.Message.Text != "":
		m := wu.Message
		return bot.Update{
			ID:       wu.UpdateID,
			Kind:     bot.KindMessage,
			ChatID:   m.Chat.ID,
			ChatType: m.Chat.Type,
			From:     toSender(m.From),
			Text:     m.Text,
		}, true

	case wu.MyChatMember != nil:
		ev := wu.MyChatMember
		return bot.Update{
			ID:       wu.UpdateID,
			Kind:     bot.KindMemberEvent,
			ChatID:   ev.Chat.ID,
			ChatType: ev.Chat.Type,
			From:     toSender(&ev.From),
		}, true
	}
	return bot.Update{}, false
}

func toSender(u *wireUser) *bot.Sender {
	if u == nil {
		return nil
	}
	return &bot.Sender{
		ID:           u.ID,
		IsBot:        u.IsBot,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Username:     u.Username,
		LanguageCode: u.LanguageCode,
		IsPremium:    u.IsPremium,
	}
}

func toInlineReply(kb *bot.Keyboard) *inlineReply {
	if kb == nil || len(kb.Rows) == 0 {
		return nil
	}
	rows := make([][]inlineButton, 0, len(kb.Rows))
	for _, r := range kb.Rows {
		row := make([]inlineButton, 0, len(r))
		for _, b := range r {
			row = append(row, inlineButton{Text: b.Label, CallbackData: b.Data})
		}
		rows = append(rows, row)
	}
	return &inlineReply{InlineKeyboard: rows}
}
