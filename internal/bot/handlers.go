package bot

import (
	"context"
	"log/slog"
	"strings"

	"dogfinder-bot/internal/model"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleStartCommand(ctx context.Context, msg *tgbotapi.Message) {
	state, err := b.ctrl.State(ctx, msg.Chat.ID)
	if err != nil {
		b.sendError(msg.Chat.ID, err)
		return
	}

	text := "Привет! Я помогу найти собаку в приюте.\n\n"
	if state.LoggedIn {
		text += "Вы уже вошли как " + state.Credentials.Name + ". Выберите действие:"
	} else {
		text += "Сначала войдите: нажмите кнопку ниже или отправьте /login Имя email"
	}
	b.sendWithMenu(msg.Chat.ID, text, state.LoggedIn)
}

func (b *Bot) handleHelpCommand(ctx context.Context, msg *tgbotapi.Message) {
	text := "Как использовать бота:\n\n" +
		"1. Войдите: /login Имя email\n" +
		"2. Ищите собак: /search breeds=Beagle zip=10001 age=1-5\n" +
		"3. Листайте результаты кнопками ⬅ ➡\n\n" +
		"Доступные команды:\n" +
		"/start - начать работу\n" +
		"/login - войти\n" +
		"/breeds - список пород\n" +
		"/search - поиск собак\n" +
		"/filters - текущие фильтры\n" +
		"/reset - сбросить фильтры\n" +
		"/help - показать справку\n\n" +
		filtersUsage
	b.sendWithMenu(msg.Chat.ID, text, b.loggedIn(ctx, msg.Chat.ID))
}

func (b *Bot) handleLoginCommand(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		b.awaitingInput(ctx, msg.Chat.ID, model.AwaitingCredentials)
		return
	}
	b.processLogin(ctx, msg.Chat.ID, args)
}

func (b *Bot) handleSearchCommand(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		if !b.loggedIn(ctx, msg.Chat.ID) {
			b.sendLoginRequired(msg.Chat.ID)
			return
		}
		b.awaitingInput(ctx, msg.Chat.ID, model.AwaitingFilters)
		return
	}
	b.processSearchQuery(ctx, msg.Chat.ID, args)
}

func (b *Bot) handleFiltersCommand(ctx context.Context, msg *tgbotapi.Message) {
	state, err := b.ctrl.State(ctx, msg.Chat.ID)
	if err != nil {
		b.sendError(msg.Chat.ID, err)
		return
	}
	b.sendWithMenu(msg.Chat.ID, "Текущие фильтры:\n"+formatFilters(state.Filters), state.LoggedIn)
}

func (b *Bot) handleResetCommand(ctx context.Context, msg *tgbotapi.Message) {
	if err := b.ctrl.ResetFilters(ctx, msg.Chat.ID); err != nil {
		b.sendError(msg.Chat.ID, err)
		return
	}
	b.sendWithMenu(msg.Chat.ID, "Фильтры сброшены", b.loggedIn(ctx, msg.Chat.ID))
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Text {
	case buttonLogin:
		b.awaitingInput(ctx, msg.Chat.ID, model.AwaitingCredentials)
	case buttonSearch:
		if !b.loggedIn(ctx, msg.Chat.ID) {
			b.sendLoginRequired(msg.Chat.ID)
			return
		}
		b.awaitingInput(ctx, msg.Chat.ID, model.AwaitingFilters)
	case buttonBreeds:
		b.handleBreeds(ctx, msg.Chat.ID)
	default:
		b.processInput(ctx, msg)
	}
}

func (b *Bot) awaitingInput(ctx context.Context, chatID int64, awaiting string) {
	if err := b.ctrl.SetAwaiting(ctx, chatID, awaiting); err != nil {
		slog.Error("Error saving awaiting state", "chat_id", chatID, "error", err)
		b.sendError(chatID, err)
		return
	}

	message := "Отправьте имя и email через пробел, например: Анна anna@example.com"
	if awaiting == model.AwaitingFilters {
		message = "Отправьте фильтры поиска.\n\n" + filtersUsage
	}

	reply := tgbotapi.NewMessage(chatID, message)
	reply.ReplyMarkup = b.createCancelKeyboard()
	if _, err := b.sender.Send(reply); err != nil {
		slog.Error("Error sending prompt", "awaiting", awaiting, "error", err)
	}
}

// processInput consumes free text according to what the chat was asked for.
func (b *Bot) processInput(ctx context.Context, msg *tgbotapi.Message) {
	state, err := b.ctrl.State(ctx, msg.Chat.ID)
	if err != nil {
		b.sendError(msg.Chat.ID, err)
		return
	}

	switch state.Awaiting {
	case model.AwaitingCredentials:
		b.processLogin(ctx, msg.Chat.ID, msg.Text)
	case model.AwaitingFilters:
		b.processSearchQuery(ctx, msg.Chat.ID, msg.Text)
	default:
		b.sendWithMenu(msg.Chat.ID, "Пожалуйста, выберите действие с помощью кнопок ниже 👇", state.LoggedIn)
	}
}

// parseCredentials takes the last word as the email and the rest as the name.
func parseCredentials(text string) (model.Credentials, bool) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return model.Credentials{}, false
	}
	email := fields[len(fields)-1]
	if !strings.Contains(email, "@") {
		return model.Credentials{}, false
	}
	return model.Credentials{
		Name:  strings.Join(fields[:len(fields)-1], " "),
		Email: email,
	}, true
}

func (b *Bot) processLogin(ctx context.Context, chatID int64, text string) {
	creds, ok := parseCredentials(text)
	if !ok {
		reply := tgbotapi.NewMessage(chatID, "Не понял. Отправьте имя и email через пробел, например: Анна anna@example.com")
		reply.ReplyMarkup = b.createCancelKeyboard()
		if _, err := b.sender.Send(reply); err != nil {
			slog.Error("Error sending credentials hint", "error", err)
		}
		return
	}

	state, err := b.ctrl.Login(ctx, chatID, creds)
	if err != nil {
		b.sendError(chatID, err)
		return
	}
	b.sendWithMenu(chatID, "Вы вошли как "+state.Credentials.Name+". Теперь можно искать собак 🐕", true)
}

func (b *Bot) processSearchQuery(ctx context.Context, chatID int64, text string) {
	filters, err := ParseFilters(text)
	if err != nil {
		reply := tgbotapi.NewMessage(chatID, "Не понял фильтры: "+err.Error()+"\n\n"+filtersUsage)
		reply.ReplyMarkup = b.createCancelKeyboard()
		if _, err := b.sender.Send(reply); err != nil {
			slog.Error("Error sending filters hint", "error", err)
		}
		return
	}

	b.sendChatAction(chatID, tgbotapi.ChatTyping)
	view, err := b.ctrl.Search(ctx, chatID, filters)
	if err != nil {
		b.sendError(chatID, err)
		return
	}
	b.sendDogs(ctx, chatID, view)
}

func (b *Bot) handleBreeds(ctx context.Context, chatID int64) {
	if !b.loggedIn(ctx, chatID) {
		b.sendLoginRequired(chatID)
		return
	}

	breeds, ok := b.breeds.Get()
	if !ok {
		var err error
		breeds, err = b.ctrl.Breeds(ctx, chatID)
		if err != nil {
			b.sendError(chatID, err)
			return
		}
		b.breeds.Store(breeds)
	}
	b.sendBreeds(chatID, breeds)
}

func (b *Bot) loggedIn(ctx context.Context, chatID int64) bool {
	state, err := b.ctrl.State(ctx, chatID)
	if err != nil {
		slog.Error("Error getting state", "chat_id", chatID, "error", err)
		return false
	}
	return state.LoggedIn
}
