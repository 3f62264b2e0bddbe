package bot

import (
	"dogfinder-bot/internal/model"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	callbackPageNext   = "dogs_page:next"
	callbackPagePrev   = "dogs_page:prev"
	callbackCancelWait = "cancel_input"
)

func (b *Bot) createMainMenuKeyboard(loggedIn bool) tgbotapi.ReplyKeyboardMarkup {
	if !loggedIn {
		return tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(buttonLogin),
			),
		)
	}
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonSearch),
			tgbotapi.NewKeyboardButton(buttonBreeds),
		),
	)
}

func (b *Bot) createCancelKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Отменить", callbackCancelWait),
		),
	)
}

// createPaginationKeyboard shows only the directions the service gave a cursor for.
func (b *Bot) createPaginationKeyboard(results model.SearchResults) (tgbotapi.InlineKeyboardMarkup, bool) {
	var buttons []tgbotapi.InlineKeyboardButton
	if results.Prev != "" {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData("⬅", callbackPagePrev))
	}
	if results.Next != "" {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData("➡", callbackPageNext))
	}
	if len(buttons) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(buttons), true
}
