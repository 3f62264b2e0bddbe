package bot

import (
	"context"
	"log/slog"

	"dogfinder-bot/internal/controller"
	"dogfinder-bot/internal/model"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.Message == nil {
		slog.Warn("Received callback without message", "data", query.Data)
		return
	}

	callbackConfig := tgbotapi.CallbackConfig{
		CallbackQueryID: query.ID,
	}
	if _, err := b.sender.Request(callbackConfig); err != nil {
		slog.Error("Error sending callback response", "error", err)
	}

	chatID := query.Message.Chat.ID

	switch query.Data {
	case callbackCancelWait:
		if err := b.ctrl.SetAwaiting(ctx, chatID, model.AwaitingNone); err != nil {
			slog.Error("Error clearing awaiting state", "chat_id", chatID, "error", err)
		}
		b.sendWithMenu(chatID, "Отменено", b.loggedIn(ctx, chatID))
	case callbackPageNext:
		b.handleDogsPagination(ctx, chatID, b.ctrl.NextPage)
	case callbackPagePrev:
		b.handleDogsPagination(ctx, chatID, b.ctrl.PrevPage)
	default:
		slog.Warn("Invalid callback format", "data", query.Data)
	}
}

func (b *Bot) handleDogsPagination(ctx context.Context, chatID int64, page func(context.Context, int64) (*controller.View, error)) {
	b.sendChatAction(chatID, tgbotapi.ChatTyping)
	view, err := page(ctx, chatID)
	if err != nil {
		b.sendError(chatID, err)
		return
	}
	b.sendDogs(ctx, chatID, view)
}
