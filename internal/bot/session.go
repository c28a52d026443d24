// Package bot – session/auth gate
//
// The gate resolves the sender of every inbound update to a persisted user
// record and attaches capability helpers to the request. It is deliberately
// fail-open: an internal failure is logged and the update proceeds without
// a resolved user, because auth plumbing must never take the whole bot
// offline.
package bot

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-hadith-bot/internal/domain"
	"github.com/tbourn/go-hadith-bot/internal/repo"
)

// Request is the per-update context assembled by the pipeline. Handlers
// receive it after the gate and the rate limiter have run.
type Request struct {
	Update Update

	// User is the resolved account, nil when the gate could not resolve one
	// (missing sender, or an internal failure under the fail-open policy).
	User *domain.User
	// Prefs is the deserialized preference map; empty when User is nil.
	Prefs map[string]string
	// Admin reports configured administrator identity.
	Admin bool
}

// IsPremium reports the resolved user's premium capability.
func (r *Request) IsPremium() bool { return r.User != nil && r.User.IsPremium }

// IsGroupContext reports whether the update came from a group chat.
func (r *Request) IsGroupContext() bool { return r.Update.IsGroup() }

const blockedMessage = "⛔ تم حظرك من استخدام هذا البوت."

// Gate authenticates inbound updates against the users table.
type Gate struct {
	db        *gorm.DB
	transport Transport
	adminIDs  map[int64]struct{}

	// activityTimeout bounds the detached activity write.
	activityTimeout time.Duration
}

// NewGate constructs the session gate. adminIDs come from configuration;
// admin capability is computed per update and never persisted.
func NewGate(db *gorm.DB, transport Transport, adminIDs []int64) *Gate {
	ids := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		ids[id] = struct{}{}
	}
	return &Gate{db: db, transport: transport, adminIDs: ids, activityTimeout: 5 * time.Second}
}

// Middleware wraps next with session resolution.
//
// Behavior:
//   - No sender on the update: pass through without invoking next
//     (channel-level events carry nothing to authenticate).
//   - Sender is another bot: silently dropped (abuse prevention, not an error).
//   - Otherwise find-or-create the user, refresh profile fields, and detach
//     an activity-timestamp write off the response path.
//   - Blocked users get the blocked notice; next never runs.
//   - Inactive users are implicitly reactivated and continue.
//   - Any internal gate failure is logged and next runs with a nil user.
func (g *Gate) Middleware(next Handler) Handler {
	return func(ctx context.Context, req *Request) error {
		from := req.Update.From
		if from == nil {
			return nil
		}
		if from.IsBot {
			log.Debug().Int64("sender_id", from.ID).Msg("dropping update from bot account")
			return nil
		}

		user, err := repo.UpsertUser(ctx, g.db, &domain.User{
			ID:           from.ID,
			FirstName:    from.FirstName,
			LastName:     from.LastName,
			Username:     from.Username,
			LanguageCode: from.LanguageCode,
			IsPremium:    from.IsPremium,
		})
		if err != nil {
			// Fail open: the bot stays responsive even when auth plumbing breaks.
			log.Error().Err(err).Int64("user_id", from.ID).Msg("session resolution failed")
			return next(ctx, req)
		}

		g.touchActivity(user.ID)

		if user.IsBlocked {
			if serr := g.transport.SendMessage(ctx, req.Update.ChatID, blockedMessage, nil); serr != nil {
				log.Warn().Err(serr).Int64("user_id", user.ID).Msg("blocked notice send failed")
			}
			return nil
		}
		if !user.IsActive {
			if aerr := repo.SetUserActive(ctx, g.db, user.ID, true); aerr != nil {
				log.Warn().Err(aerr).Int64("user_id", user.ID).Msg("reactivation failed")
			} else {
				user.IsActive = true
			}
		}

		req.User = user
		req.Prefs = user.PreferenceMap()
		_, req.Admin = g.adminIDs[user.ID]
		return next(ctx, req)
	}
}

// touchActivity updates last_activity on a detached goroutine. Its failure
// is captured by the log sink and never reaches the response path.
func (g *Gate) touchActivity(userID int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.activityTimeout)
		defer cancel()
		if err := repo.TouchUserActivity(ctx, g.db, userID); err != nil {
			log.Warn().Err(err).Int64("user_id", userID).Msg("activity update failed")
		}
	}()
}
