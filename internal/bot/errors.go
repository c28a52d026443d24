// Package bot – error classifier and responder
//
// Any error escaping a feature handler is assigned to exactly one category,
// logged once with a generated correlation ID and full update context, and
// answered with a fixed, non-technical user message. Raw error text never
// reaches end users; the correlation ID lets support find the log line.
package bot

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-hadith-bot/internal/hadith"
)

// Category is the error taxonomy of the pipeline boundary.
type Category string

const (
	CatInvalidInput        Category = "invalid_input"
	CatUnauthorized        Category = "unauthorized"
	CatForbidden           Category = "forbidden"
	CatRateLimited         Category = "rate_limited"
	CatUpstreamUnavailable Category = "upstream_unavailable"
	CatUpstreamBadResponse Category = "upstream_bad_response"
	CatStorageFailure      Category = "storage_failure"
	CatUnknown             Category = "unknown"
)

// Sentinels raised by handlers for identity checks.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Classify assigns an error to exactly one category using ordered rules:
// explicit upstream status (429 first) beats storage signatures, which beat
// network signatures, validation signatures, and rate-limit message
// signatures; anything else is Unknown.
func Classify(err error) Category {
	if err == nil {
		return CatUnknown
	}

	// 1. Explicit transport status codes.
	var se *hadith.StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == 429:
			return CatRateLimited
		case se.Code == 401:
			return CatUnauthorized
		case se.Code == 403:
			return CatForbidden
		case se.Code >= 400 && se.Code < 500:
			return CatUpstreamBadResponse
		case se.Code >= 500:
			return CatUpstreamUnavailable
		}
	}

	// 2. Persistence-layer signatures.
	low := strings.ToLower(err.Error())
	if errors.Is(err, gorm.ErrRecordNotFound) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(low, "sqlite") ||
		strings.Contains(low, "database") ||
		strings.Contains(low, "constraint failed") {
		return CatStorageFailure
	}

	// 3. Network connection failures.
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		(errors.As(err, &ne) && ne.Timeout()) ||
		strings.Contains(low, "connection refused") ||
		strings.Contains(low, "no such host") {
		return CatUpstreamUnavailable
	}

	// 4. Validation signatures.
	if errors.Is(err, hadith.ErrInvalidQuery) || errors.Is(err, hadith.ErrEmptyRecord) {
		return CatInvalidInput
	}
	if errors.Is(err, ErrUnauthorized) {
		return CatUnauthorized
	}
	if errors.Is(err, ErrForbidden) {
		return CatForbidden
	}

	// 5. Rate-limit message signatures.
	if strings.Contains(low, "rate limit") || strings.Contains(low, "too many requests") {
		return CatRateLimited
	}

	return CatUnknown
}

// userMessages maps each category to its fixed user-facing template.
var userMessages = map[Category]string{
	CatInvalidInput:        "⚠️ الطلب غير صالح. جرّب كلمة بحث أطول.",
	CatUnauthorized:        "🔒 هذه العملية تتطلب تسجيل الدخول.",
	CatForbidden:           "🚫 لا تملك صلاحية تنفيذ هذه العملية.",
	CatRateLimited:         "⏳ طلبات كثيرة خلال وقت قصير. انتظر قليلًا ثم أعد المحاولة.",
	CatUpstreamUnavailable: "📡 خدمة البحث غير متاحة حاليًا. حاول مجددًا بعد قليل.",
	CatUpstreamBadResponse: "📡 وصلتنا استجابة غير مفهومة من خدمة البحث. حاول مجددًا.",
	CatStorageFailure:      "💾 حدث خلل مؤقت في التخزين. حاول مجددًا.",
	CatUnknown:             "❌ حدث خطأ غير متوقع. حاول مجددًا.",
}

// retryable categories get a retry keyboard attached to the response.
var retryable = map[Category]bool{
	CatUpstreamUnavailable: true,
	CatUpstreamBadResponse: true,
	CatStorageFailure:      true,
	CatUnknown:             true,
}

// Responder turns classified errors into user-visible responses.
type Responder struct {
	transport Transport
}

// NewResponder constructs a Responder over the given transport.
func NewResponder(t Transport) *Responder {
	return &Responder{transport: t}
}

// Respond logs err once with a generated error ID and answers the user.
//
// Delivery adapts to the update kind: callbacks get a short acknowledgment
// plus an edited message; plain messages get a new reply. If the primary
// send fails, one minimal plaintext fallback is attempted; if that also
// fails the failure is only logged, never re-thrown.
func (r *Responder) Respond(ctx context.Context, req *Request, opName string, err error) {
	errID := uuid.NewString()
	cat := Classify(err)

	var userID int64
	if req.User != nil {
		userID = req.User.ID
	}
	log.Error().
		Err(err).
		Str("error_id", errID).
		Str("category", string(cat)).
		Str("op", opName).
		Int64("user_id", userID).
		Str("chat_type", req.Update.ChatType).
		Str("command", req.Update.Text).
		Str("callback_data", req.Update.CallbackData).
		Msg("update failed")

	msg := fmt.Sprintf("%s\n\nرمز الخطأ: %s", userMessages[cat], errID[:8])
	var kb *Keyboard
	if retryable[cat] {
		kb = RetryKeyboard(retryData(req.Update))
	}

	u := req.Update
	var sendErr error
	if u.Kind == KindCallback {
		if aerr := r.transport.AnswerCallback(ctx, u.CallbackID, "حدث خطأ"); aerr != nil {
			log.Warn().Err(aerr).Str("error_id", errID).Msg("callback ack failed")
		}
		sendErr = r.transport.EditMessage(ctx, u.ChatID, u.MessageID, msg, kb)
	} else {
		sendErr = r.transport.SendMessage(ctx, u.ChatID, msg, kb)
	}
	if sendErr == nil {
		return
	}

	// Minimal plaintext fallback, then give up quietly.
	if ferr := r.transport.SendMessage(ctx, u.ChatID, userMessages[cat], nil); ferr != nil {
		log.Error().Err(ferr).Str("error_id", errID).Msg("error response delivery failed")
	}
}

// retryData picks the callback payload for the retry button: callbacks
// retry themselves, text messages retry the search.
func retryData(u Update) string {
	if u.Kind == KindCallback && u.CallbackData != "" {
		return u.CallbackData
	}
	return "retry:last"
}
