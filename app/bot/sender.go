package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/lysyi3m/meme-comb/app/meme"
)

const maxCaptionRunes = 1024

// Sender delivers bot output to a chat.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendItem(ctx context.Context, chatID int64, item meme.Item) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

var _ Sender = (*TelegramSender)(nil)

type TelegramSender struct {
	api *tgbotapi.BotAPI
}

func NewTelegramSender(api *tgbotapi.BotAPI) *TelegramSender {
	return &TelegramSender{api: api}
}

func (s *TelegramSender) SendText(ctx context.Context, chatID int64, text string) error {
	if _, err := s.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// SendItem sends the image with the text as caption, or the text alone for
// text-only items, with rating buttons attached.
func (s *TelegramSender) SendItem(ctx context.Context, chatID int64, item meme.Item) error {
	keyboard := ratingKeyboard(item.ID)

	var msg tgbotapi.Chattable
	if item.ImageURL != "" {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(item.ImageURL))
		photo.Caption = truncate(item.Text, maxCaptionRunes)
		photo.ReplyMarkup = keyboard
		msg = photo
	} else {
		text := tgbotapi.NewMessage(chatID, item.Text)
		text.ReplyMarkup = keyboard
		msg = text
	}

	if _, err := s.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send item %s: %w", item.ID, err)
	}
	return nil
}

func (s *TelegramSender) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if _, err := s.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("failed to answer callback: %w", err)
	}
	return nil
}

func ratingKeyboard(itemID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👍", callbackData(itemID, 1)),
			tgbotapi.NewInlineKeyboardButtonData("👎", callbackData(itemID, -1)),
		),
	)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
