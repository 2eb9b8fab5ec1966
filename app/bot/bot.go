package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/lysyi3m/meme-comb/app/feed"
	"github.com/lysyi3m/meme-comb/app/meme"
	"github.com/lysyi3m/meme-comb/app/recommend"
)

const (
	greetingText = "👋 Привет! Я бот для просмотра мемов без рекламы.\n\n" +
		"Все мемы проходят фильтрацию рекламного контента.\n\n" +
		"Используйте 👍/👎 для оценки мема, /next для следующего, /report чтобы отметить рекламу."
	helpText = "Команды:\n" +
		"/next - следующий мем\n" +
		"/report - отметить текущий мем как рекламу\n" +
		"/recommend - персональная рекомендация\n" +
		"/stats - статистика\n" +
		"/help - эта справка"
	noItemText       = "Пока нет подходящих мемов. Загляните чуть позже!"
	noCurrentText    = "Нет активного мема для отметки. Используйте /next, а затем /report."
	reportedText     = "Спасибо! Этот мем отмечен как рекламный и будет заблокирован для всех пользователей."
	ratedText        = "Спасибо за оценку!"
	rateFailedText   = "Этот мем больше недоступен."
	errorText        = "Произошла ошибка. Пожалуйста, попробуйте позже."
	unknownText      = "Неизвестная команда. /help - список команд."
	needRatingsText  = "Для персональных рекомендаций нужно оценить как минимум 5 мемов. Вам осталось оценить еще %d."
	noRecommendation = "Не удалось сформировать рекомендации. Попробуйте оценить больше мемов."
)

// Feed is the serving surface the bot drives.
type Feed interface {
	Next(session feed.UserSession) (meme.Item, feed.UserSession, error)
	Rate(ctx context.Context, session feed.UserSession, itemID string, rating int) error
	Report(ctx context.Context, session feed.UserSession) (meme.Item, feed.UserSession, error)
	Stats(userID string) recommend.Stats
	Analyze(userID string) recommend.Analysis
	Overview() feed.Overview
}

var _ Feed = (*feed.Feed)(nil)

// Bot translates chat updates into feed operations. It owns the per-user
// sessions; the feed itself keeps no per-user serving state.
type Bot struct {
	feed   Feed
	sender Sender

	mu       sync.Mutex
	sessions map[int64]feed.UserSession
}

func NewBot(f Feed, sender Sender) *Bot {
	return &Bot{
		feed:     f,
		sender:   sender,
		sessions: make(map[int64]feed.UserSession),
	}
}

func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || msg.From == nil || !msg.IsCommand() {
		return
	}

	chatID := msg.Chat.ID
	userID := msg.From.ID

	slog.Debug("Command received", "command", msg.Command(), "user_id", userID)

	switch msg.Command() {
	case "start":
		b.send(ctx, chatID, greetingText)
		b.sendNext(ctx, chatID, userID)
	case "next":
		b.sendNext(ctx, chatID, userID)
	case "report":
		b.report(ctx, chatID, userID)
	case "recommend":
		b.recommend(ctx, chatID, userID)
	case "stats":
		b.stats(ctx, chatID, userID)
	case "help":
		b.send(ctx, chatID, helpText)
	default:
		b.send(ctx, chatID, unknownText)
	}
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.From == nil {
		return
	}

	itemID, rating, err := parseCallback(query.Data)
	if err != nil {
		slog.Warn("Ignoring callback", "user_id", query.From.ID, "error", err)
		b.answer(ctx, query.ID, "")
		return
	}

	userID := query.From.ID
	if err := b.feed.Rate(ctx, b.session(userID), itemID, rating); err != nil {
		slog.Warn("Failed to record rating", "user_id", userID, "item", itemID, "error", err)
		b.answer(ctx, query.ID, rateFailedText)
		return
	}

	b.answer(ctx, query.ID, ratedText)

	if query.Message != nil && query.Message.Chat != nil {
		b.sendNext(ctx, query.Message.Chat.ID, userID)
	}
}

func (b *Bot) sendNext(ctx context.Context, chatID, userID int64) {
	item, session, err := b.feed.Next(b.session(userID))
	if errors.Is(err, feed.ErrNoItem) {
		b.send(ctx, chatID, noItemText)
		return
	}
	if err != nil {
		slog.Error("Failed to pick next item", "user_id", userID, "error", err)
		b.send(ctx, chatID, errorText)
		return
	}

	b.setSession(userID, session)
	b.sendItem(ctx, chatID, item)
}

func (b *Bot) report(ctx context.Context, chatID, userID int64) {
	_, session, err := b.feed.Report(ctx, b.session(userID))
	if errors.Is(err, feed.ErrNoItem) {
		b.send(ctx, chatID, noCurrentText)
		return
	}
	if err != nil {
		slog.Warn("Failed to report item", "user_id", userID, "error", err)
		b.send(ctx, chatID, noCurrentText)
		return
	}

	b.setSession(userID, session)
	b.send(ctx, chatID, reportedText)
	b.sendNext(ctx, chatID, userID)
}

func (b *Bot) recommend(ctx context.Context, chatID, userID int64) {
	analysis := b.feed.Analyze(strconv.FormatInt(userID, 10))
	if !analysis.Ready {
		b.send(ctx, chatID, fmt.Sprintf(needRatingsText, analysis.RatingsNeeded))
		return
	}
	if len(analysis.Recommendations) == 0 {
		b.send(ctx, chatID, noRecommendation)
		return
	}

	var text strings.Builder
	text.WriteString("🔍 Ваши предпочтения в мемах:\n\n")
	if len(analysis.TopKeywords) > 0 {
		text.WriteString("Вам нравятся темы: " + strings.Join(analysis.TopKeywords, ", ") + "\n\n")
	}
	text.WriteString("Отправляю персонализированную рекомендацию...")
	b.send(ctx, chatID, text.String())

	item := analysis.Recommendations[0]
	session := b.session(userID)
	session.CurrentID = item.ID
	if !slices.Contains(session.Viewed, item.ID) {
		session.Viewed = append(slices.Clone(session.Viewed), item.ID)
	}
	b.setSession(userID, session)

	b.sendItem(ctx, chatID, item)
}

func (b *Bot) stats(ctx context.Context, chatID, userID int64) {
	overview := b.feed.Overview()
	stats := b.feed.Stats(strconv.FormatInt(userID, 10))

	rejectionRate := 0.0
	if total := overview.Accepted + overview.Rejected; total > 0 {
		rejectionRate = float64(overview.Rejected) / float64(total) * 100
	}

	var text strings.Builder
	text.WriteString("📊 Статистика мемов:\n\n")
	text.WriteString(fmt.Sprintf("Всего мемов (без рекламы): %d\n", overview.Accepted))
	text.WriteString(fmt.Sprintf("Заблокировано рекламных мемов: %d\n", overview.Rejected))
	text.WriteString(fmt.Sprintf("Процент блокировки рекламы: %.1f%%\n\n", rejectionRate))
	text.WriteString(fmt.Sprintf("Вы просмотрели: %d\n", len(b.session(userID).Viewed)))
	text.WriteString(fmt.Sprintf("Понравились: %d 👍\n", stats.Liked))
	text.WriteString(fmt.Sprintf("Не понравились: %d 👎", stats.Disliked))

	if stats.HasRecommendations && len(stats.TopKeywords) > 0 {
		text.WriteString("\n\n🎯 Ваши любимые темы: " + strings.Join(stats.TopKeywords[:min(3, len(stats.TopKeywords))], ", "))
	} else if !stats.HasRecommendations {
		text.WriteString("\n\nОцените ещё несколько мемов, чтобы получать персональные рекомендации.")
	}

	b.send(ctx, chatID, text.String())
}

func (b *Bot) session(userID int64) feed.UserSession {
	b.mu.Lock()
	defer b.mu.Unlock()

	session, ok := b.sessions[userID]
	if !ok {
		return feed.NewSession(strconv.FormatInt(userID, 10))
	}
	return session
}

func (b *Bot) setSession(userID int64, session feed.UserSession) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[userID] = session
}

func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	if err := b.sender.SendText(ctx, chatID, text); err != nil {
		slog.Error("Failed to send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) sendItem(ctx context.Context, chatID int64, item meme.Item) {
	if err := b.sender.SendItem(ctx, chatID, item); err != nil {
		slog.Error("Failed to send item", "chat_id", chatID, "item", item.ID, "error", err)
	}
}

func (b *Bot) answer(ctx context.Context, callbackID, text string) {
	if err := b.sender.AnswerCallback(ctx, callbackID, text); err != nil {
		slog.Error("Failed to answer callback", "error", err)
	}
}
