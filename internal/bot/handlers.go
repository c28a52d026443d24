// Package bot – feature handlers
//
// Handlers receive fully authenticated, rate-limited requests from the
// pipeline and answer through the transport. Search, random, show-by-id,
// and favorites are real; the settings/admin surfaces answer placeholder
// menus except for the wired moderation and statistics operations.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-hadith-bot/internal/domain"
	"github.com/tbourn/go-hadith-bot/internal/hadith"
	"github.com/tbourn/go-hadith-bot/internal/repo"
	"github.com/tbourn/go-hadith-bot/internal/sysutil"
	"github.com/tbourn/go-hadith-bot/internal/utils"
)

const (
	comingSoon    = "🚧 هذه الميزة قيد التطوير، قريبًا بإذن الله."
	noResults     = "🔍 لم يتم العثور على نتائج. جرّب كلمات أخرى."
	maxResults    = 3
	favoritesPage = 5
)

// Handlers bundles the feature handlers and their collaborators.
type Handlers struct {
	DB        *gorm.DB
	Hadiths   *hadith.Service
	Transport Transport
	Limiter   *Limiter

	// AdminOpsEnabled gates the admin moderation commands.
	AdminOpsEnabled bool
}

// Register installs every route on the router. Routing stays a pure lookup;
// all behavior lives in the handler methods.
func (h *Handlers) Register(r *Router) {
	r.Command("start", OpCommand, h.Start)
	r.Command("help", OpCommand, h.Help)
	r.Command("search", OpSearch, h.SearchCommand)
	r.Command("random", OpRandom, h.Random)
	r.Command("favorites", OpFavorite, h.FavoritesList)
	r.Command("settings", OpCommand, h.Placeholder)
	r.Command("reminders", OpCommand, h.Placeholder)
	r.Command("admin", OpAdmin, h.AdminMenu)
	r.Command("block", OpAdmin, h.BlockCommand)
	r.Command("unblock", OpAdmin, h.UnblockCommand)
	r.Show(h.ShowByID)
	r.Text(h.SearchText)

	r.Callback("random", OpRandom, h.Random)
	r.Callback("admin:stats", OpAdmin, h.AdminStats)
	r.CallbackPrefix("fav:add:", OpFavorite, h.FavoriteAdd)
	r.CallbackPrefix("fav:del:", OpFavorite, h.FavoriteRemove)
	r.CallbackPrefix("fav:page:", OpFavorite, h.FavoritesList)
	r.CallbackPrefix("admin:", OpAdmin, h.Placeholder)
	r.CallbackPrefix("settings:", OpCallback, h.Placeholder)
	r.CallbackPrefix("retry:", OpSearch, h.Retry)
}

// Start greets the user and shows the main menu.
func (h *Handlers) Start(ctx context.Context, req *Request) error {
	name := "بك"
	if req.User != nil && req.User.FirstName != "" {
		name = "بك يا " + req.User.FirstName
	}
	kb := &Keyboard{Rows: [][]Button{
		{{Label: "🎲 حديث عشوائي", Data: "random"}},
		{{Label: "⭐ المفضلة", Data: "fav:page:1"}, {Label: "⚙️ الإعدادات", Data: "settings:menu"}},
	}}
	msg := fmt.Sprintf("🕌 أهلًا %s!\n\nأرسل أي كلمة للبحث في الأحاديث، أو استخدم الأزرار أدناه.", name)
	return h.Transport.SendMessage(ctx, req.Update.ChatID, msg, kb)
}

// Help lists the available commands.
func (h *Handlers) Help(ctx context.Context, req *Request) error {
	msg := "📖 الأوامر المتاحة:\n" +
		"/search <كلمة> — البحث في الأحاديث\n" +
		"/random — حديث عشوائي\n" +
		"/favorites — المفضلة\n" +
		"/settings — الإعدادات\n" +
		"أو أرسل أي نص للبحث مباشرة."
	return h.Transport.SendMessage(ctx, req.Update.ChatID, msg, nil)
}

// SearchCommand handles "/search <query>".
func (h *Handlers) SearchCommand(ctx context.Context, req *Request) error {
	query := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(req.Update.Text), "/search"))
	return h.search(ctx, req, query)
}

// SearchText handles freeform non-slash text as a search query.
func (h *Handlers) SearchText(ctx context.Context, req *Request) error {
	return h.search(ctx, req, req.Update.Text)
}

func (h *Handlers) search(ctx context.Context, req *Request, query string) error {
	results, err := h.Hadiths.Search(ctx, query, hadith.SearchOptions{Limit: 10})
	if err != nil {
		// Validation failures surface through the responder taxonomy.
		return err
	}
	if len(results) == 0 {
		return h.Transport.SendMessage(ctx, req.Update.ChatID, noResults, nil)
	}
	n := len(results)
	if n > maxResults {
		n = maxResults
	}
	for _, rec := range results[:n] {
		if err := h.sendHadith(ctx, req.Update.ChatID, rec); err != nil {
			return err
		}
	}
	return nil
}

// Random answers one random record, from storage when possible.
func (h *Handlers) Random(ctx context.Context, req *Request) error {
	if req.Update.Kind == KindCallback {
		if err := h.Transport.AnswerCallback(ctx, req.Update.CallbackID, ""); err != nil {
			log.Warn().Err(err).Msg("random callback ack failed")
		}
	}
	rec, err := h.Hadiths.GetRandom(ctx, repo.HadithFilter{})
	if err != nil {
		return err
	}
	if rec == nil {
		return h.Transport.SendMessage(ctx, req.Update.ChatID, noResults, nil)
	}
	return h.sendHadith(ctx, req.Update.ChatID, *rec)
}

// ShowByID handles the dynamic /hadith_<id> command.
func (h *Handlers) ShowByID(ctx context.Context, req *Request) error {
	m := showCommandRE.FindStringSubmatch(strings.Fields(strings.TrimSpace(req.Update.Text))[0])
	if m == nil {
		return hadith.ErrInvalidQuery
	}
	rec, err := h.Hadiths.GetByID(ctx, m[1])
	if err != nil {
		return err
	}
	if rec == nil {
		return h.Transport.SendMessage(ctx, req.Update.ChatID, noResults, nil)
	}
	return h.sendHadith(ctx, req.Update.ChatID, *rec)
}

// FavoriteAdd bookmarks a record ("fav:add:<id>").
func (h *Handlers) FavoriteAdd(ctx context.Context, req *Request) error {
	if req.User == nil {
		return ErrUnauthorized
	}
	id := strings.TrimPrefix(req.Update.CallbackData, "fav:add:")
	_, err := repo.CreateFavorite(ctx, h.DB, req.User.ID, id)
	switch {
	case errors.Is(err, repo.ErrDuplicate):
		return h.Transport.AnswerCallback(ctx, req.Update.CallbackID, "⭐ محفوظ مسبقًا")
	case err != nil:
		return err
	}
	return h.Transport.AnswerCallback(ctx, req.Update.CallbackID, "⭐ أُضيف إلى المفضلة")
}

// FavoriteRemove removes a bookmark ("fav:del:<id>").
func (h *Handlers) FavoriteRemove(ctx context.Context, req *Request) error {
	if req.User == nil {
		return ErrUnauthorized
	}
	id := strings.TrimPrefix(req.Update.CallbackData, "fav:del:")
	err := repo.DeleteFavorite(ctx, h.DB, req.User.ID, id)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	return h.Transport.AnswerCallback(ctx, req.Update.CallbackID, "🗑 أُزيل من المفضلة")
}

// FavoritesList shows one page of the user's bookmarks. Reached via the
// /favorites command or "fav:page:<n>" callbacks.
func (h *Handlers) FavoritesList(ctx context.Context, req *Request) error {
	if req.User == nil {
		return ErrUnauthorized
	}
	page := 1
	if strings.HasPrefix(req.Update.CallbackData, "fav:page:") {
		page = utils.AtoiDefault(strings.TrimPrefix(req.Update.CallbackData, "fav:page:"), 1)
	}

	total, err := repo.CountFavorites(ctx, h.DB, req.User.ID)
	if err != nil {
		return err
	}
	if total == 0 {
		return h.reply(ctx, req, "⭐ مفضلتك فارغة. اضغط زر الحفظ أسفل أي حديث.", nil)
	}

	offset, limit, page, pages := utils.Page(page, favoritesPage, total)
	items, err := repo.ListFavoritesPage(ctx, h.DB, req.User.ID, offset, limit)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "⭐ المفضلة (%d/%d)\n\n", page, pages)
	for i, rec := range items {
		fmt.Fprintf(&b, "%d. %s\n/hadith_%s\n\n", offset+i+1, excerpt(rec), rec.ID)
	}

	var nav []Button
	if page > 1 {
		nav = append(nav, Button{Label: "◀️", Data: fmt.Sprintf("fav:page:%d", page-1)})
	}
	if page < pages {
		nav = append(nav, Button{Label: "▶️", Data: fmt.Sprintf("fav:page:%d", page+1)})
	}
	var kb *Keyboard
	if len(nav) > 0 {
		kb = &Keyboard{Rows: [][]Button{nav}}
	}
	return h.reply(ctx, req, b.String(), kb)
}

// AdminMenu shows the administration menu.
func (h *Handlers) AdminMenu(ctx context.Context, req *Request) error {
	if !req.Admin {
		return ErrForbidden
	}
	if !h.AdminOpsEnabled {
		return h.Transport.SendMessage(ctx, req.Update.ChatID, "⚙️ لوحة الإدارة معطّلة حاليًا.", nil)
	}
	kb := &Keyboard{Rows: [][]Button{
		{{Label: "📊 الإحصائيات", Data: "admin:stats"}},
		{{Label: "📢 رسالة جماعية", Data: "admin:broadcast"}, {Label: "👥 المستخدمون", Data: "admin:users"}},
	}}
	return h.Transport.SendMessage(ctx, req.Update.ChatID, "🛠 لوحة الإدارة", kb)
}

// AdminStats answers aggregate counts ("admin:stats").
func (h *Handlers) AdminStats(ctx context.Context, req *Request) error {
	if !req.Admin {
		return ErrForbidden
	}
	users, err := repo.CountUsers(ctx, h.DB)
	if err != nil {
		return err
	}
	hadiths, err := repo.CountHadiths(ctx, h.DB, repo.HadithFilter{})
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("📊 الإحصائيات\n\n👥 المستخدمون: %d\n📚 الأحاديث المخزّنة: %d", users, hadiths)
	return h.reply(ctx, req, msg, nil)
}

// BlockCommand handles "/block <user_id> [duration]": persists the block
// flag and force-blocks the user's rate windows.
func (h *Handlers) BlockCommand(ctx context.Context, req *Request) error {
	if !req.Admin {
		return ErrForbidden
	}
	if !h.AdminOpsEnabled {
		return h.Transport.SendMessage(ctx, req.Update.ChatID, "⚙️ أوامر الإدارة معطّلة حاليًا.", nil)
	}
	fields := strings.Fields(req.Update.Text)
	if len(fields) < 2 {
		return h.Transport.SendMessage(ctx, req.Update.ChatID, "الاستخدام: /block <user_id> [مدة مثل 1h]", nil)
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return hadith.ErrInvalidQuery
	}
	dur := 24 * time.Hour
	if len(fields) >= 3 {
		if d, derr := time.ParseDuration(fields[2]); derr == nil && d > 0 {
			dur = d
		}
	}
	if err := repo.SetUserBlocked(ctx, h.DB, id, true); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	h.Limiter.BlockUser(id, dur)
	return h.Transport.SendMessage(ctx, req.Update.ChatID,
		fmt.Sprintf("⛔ تم حظر %d لمدة %s.", id, dur), nil)
}

// UnblockCommand handles "/unblock <user_id>": clears the block flag and
// resets the user's rate windows.
func (h *Handlers) UnblockCommand(ctx context.Context, req *Request) error {
	if !req.Admin {
		return ErrForbidden
	}
	if !h.AdminOpsEnabled {
		return h.Transport.SendMessage(ctx, req.Update.ChatID, "⚙️ أوامر الإدارة معطّلة حاليًا.", nil)
	}
	fields := strings.Fields(req.Update.Text)
	if len(fields) < 2 {
		return h.Transport.SendMessage(ctx, req.Update.ChatID, "الاستخدام: /unblock <user_id>", nil)
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return hadith.ErrInvalidQuery
	}
	if err := repo.SetUserBlocked(ctx, h.DB, id, false); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	h.Limiter.UnblockUser(id)
	h.Limiter.ResetUser(id)
	return h.Transport.SendMessage(ctx, req.Update.ChatID, fmt.Sprintf("✅ تم رفع الحظر عن %d.", id), nil)
}

// Retry acknowledges a retry button press and prompts for the query again.
// The last query is not stored server-side.
func (h *Handlers) Retry(ctx context.Context, req *Request) error {
	if req.Update.Kind == KindCallback {
		if err := h.Transport.AnswerCallback(ctx, req.Update.CallbackID, ""); err != nil {
			log.Warn().Err(err).Msg("retry callback ack failed")
		}
	}
	return h.Transport.SendMessage(ctx, req.Update.ChatID, "🔄 أرسل كلمة البحث مرة أخرى.", nil)
}

// Placeholder answers the static "coming soon" notice used by the
// unfinished feature surfaces.
func (h *Handlers) Placeholder(ctx context.Context, req *Request) error {
	return h.reply(ctx, req, comingSoon, nil)
}

// reply adapts delivery to the update kind: callbacks edit the originating
// message, plain messages get a new reply.
func (h *Handlers) reply(ctx context.Context, req *Request, text string, kb *Keyboard) error {
	u := req.Update
	if u.Kind == KindCallback {
		if err := h.Transport.AnswerCallback(ctx, u.CallbackID, ""); err != nil {
			log.Warn().Err(err).Msg("callback ack failed")
		}
		return h.Transport.EditMessage(ctx, u.ChatID, u.MessageID, text, kb)
	}
	return h.Transport.SendMessage(ctx, u.ChatID, text, kb)
}

// sendHadith formats one record and posts it with its bookmark button.
func (h *Handlers) sendHadith(ctx context.Context, chatID int64, rec domain.HadithRecord) error {
	var b strings.Builder
	if rec.TextArabic != "" {
		b.WriteString(rec.TextArabic)
		b.WriteString("\n\n")
	}
	if rec.Text != "" && rec.Text != rec.TextArabic {
		b.WriteString(rec.Text)
		b.WriteString("\n\n")
	}
	if rec.Narrator != "" {
		fmt.Fprintf(&b, "👤 الراوي: %s\n", rec.Narrator)
	}
	if rec.Source != "" {
		verified := ""
		if rec.IsVerified {
			verified = " ✅"
		}
		fmt.Fprintf(&b, "📚 المصدر: %s%s\n", rec.Source, verified)
	}
	if rec.Grade != "" {
		fmt.Fprintf(&b, "⚖️ الدرجة: %s\n", rec.Grade)
	}
	kb := &Keyboard{Rows: [][]Button{{
		{Label: "⭐ حفظ", Data: "fav:add:" + rec.ID},
		{Label: "🎲 آخر", Data: "random"},
	}}}
	return h.Transport.SendMessage(ctx, chatID, strings.TrimRight(b.String(), "\n"), kb)
}

// excerpt returns a short one-line preview of a record for list views.
func excerpt(rec domain.HadithRecord) string {
	s := sysutil.FirstNonEmpty(rec.TextArabic, rec.Text)
	runes := []rune(s)
	if len(runes) > 80 {
		return string(runes[:80]) + "…"
	}
	return s
}
