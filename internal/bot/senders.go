package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dogfinder-bot/internal/api"
	"dogfinder-bot/internal/controller"
	"dogfinder-bot/internal/model"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.sender.Send(msg); err != nil {
		slog.Error("Error sending message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) sendWithMenu(chatID int64, text string, loggedIn bool) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = b.createMainMenuKeyboard(loggedIn)
	if _, err := b.sender.Send(msg); err != nil {
		slog.Error("Error sending message with menu", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) sendLoginRequired(chatID int64) {
	b.sendWithMenu(chatID, "Сначала войдите: /login Имя email", false)
}

// sendError is the visible side of every failure: the user always gets a
// message, except for searches replaced by a newer one.
func (b *Bot) sendError(chatID int64, err error) {
	var (
		authErr       *api.AuthError
		validationErr *api.ValidationError
		networkErr    *api.NetworkError
	)

	switch {
	case errors.Is(err, controller.ErrStale):
		slog.Debug("Dropping stale search", "chat_id", chatID)
	case errors.Is(err, controller.ErrNotAuthenticated):
		b.sendLoginRequired(chatID)
	case errors.Is(err, controller.ErrSessionExpired):
		b.sendWithMenu(chatID, "Сессия истекла. Войдите заново: /login Имя email", false)
	case errors.Is(err, controller.ErrNoPage):
		b.sendText(chatID, "Больше страниц нет")
	case errors.As(err, &authErr):
		if authErr.Op == "login" {
			b.sendWithMenu(chatID, fmt.Sprintf("Не удалось войти (статус %d). Проверьте имя и email.", authErr.Status), false)
			return
		}
		b.sendWithMenu(chatID, "Сервис не принял сессию. Войдите заново: /login Имя email", false)
	case errors.As(err, &validationErr):
		b.sendText(chatID, "Сервис отклонил фильтры: "+validationErr.Message+"\n\n"+filtersUsage)
	case errors.As(err, &networkErr):
		b.sendText(chatID, "Сервис собак сейчас недоступен, попробуйте позже")
	default:
		slog.Error("Unhandled error", "chat_id", chatID, "error", err)
		b.sendText(chatID, "Что-то пошло не так, попробуйте позже")
	}
}

func (b *Bot) sendChatAction(chatID int64, action string) {
	_, err := b.sender.Request(tgbotapi.NewChatAction(chatID, action))
	if err != nil {
		slog.Error("Error sending chat action", "action", action, "error", err)
	}
}

func (b *Bot) sendBreeds(chatID int64, breeds []string) {
	if len(breeds) == 0 {
		b.sendText(chatID, "Список пород пуст")
		return
	}
	lines := append([]string{fmt.Sprintf("Доступные породы (%d):", len(breeds))}, breeds...)
	for _, chunk := range chunkLines(lines, telegramMessageLimit) {
		b.sendText(chatID, chunk)
	}
}

func (b *Bot) sendDogs(ctx context.Context, chatID int64, view *controller.View) {
	start := time.Now()
	defer func() {
		slog.Debug("sendDogs executed",
			"duration", time.Since(start).Seconds(),
			"dogs", len(view.Dogs))
	}()

	if len(view.Dogs) == 0 {
		b.sendNoDogsFound(chatID, view.Results)
		return
	}

	if b.opts.SendPhotos {
		b.sendDogPhotos(ctx, chatID, view.Dogs)
	}

	// Dogs are listed in the order the service returned them.
	lines := []string{formatResultsHeader(view.Results, len(view.Dogs)), ""}
	for i, dog := range view.Dogs {
		lines = append(lines, formatDogLine(i+1, dog))
	}
	chunks := chunkLines(lines, telegramMessageLimit)
	for i, chunk := range chunks {
		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		if i == len(chunks)-1 {
			if keyboard, ok := b.createPaginationKeyboard(view.Results); ok {
				msg.ReplyMarkup = keyboard
			}
		}
		if _, err := b.sender.Send(msg); err != nil {
			slog.Error("Error sending dogs", "chat_id", chatID, "error", err)
		}
	}
}

func (b *Bot) sendNoDogsFound(chatID int64, results model.SearchResults) {
	msg := tgbotapi.NewMessage(chatID, "Собаки не найдены")
	if keyboard, ok := b.createPaginationKeyboard(results); ok {
		msg.ReplyMarkup = keyboard
	}
	if _, err := b.sender.Send(msg); err != nil {
		slog.Error("Error sending no dogs found message", "error", err)
	}
}

func (b *Bot) sendDogPhotos(ctx context.Context, chatID int64, dogs []model.DogRecord) {
	b.sendChatAction(chatID, tgbotapi.ChatUploadPhoto)
	photos := b.loadPhotosConcurrently(ctx, dogs)
	for from := 0; from < len(dogs); from += mediaGroupLimit {
		to := from + mediaGroupLimit
		if to > len(dogs) {
			to = len(dogs)
		}
		b.sendMediaGroupOrFallback(chatID, createMediaGroup(dogs[from:to], photos[from:to]), dogs[from:to], photos[from:to])
	}
}

func (b *Bot) loadPhotosConcurrently(ctx context.Context, dogs []model.DogRecord) []tgbotapi.RequestFileData {
	type photoResult struct {
		index int
		photo tgbotapi.RequestFileData
	}

	results := make(chan photoResult, len(dogs))
	var wg sync.WaitGroup

	for i, dog := range dogs {
		wg.Add(1)
		go func(idx int, url string) {
			defer wg.Done()
			results <- photoResult{idx, b.photos.Get(ctx, url)}
		}(i, dog.Img)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	photos := make([]tgbotapi.RequestFileData, len(dogs))
	for res := range results {
		photos[res.index] = res.photo
	}
	return photos
}

func createMediaGroup(dogs []model.DogRecord, photos []tgbotapi.RequestFileData) []interface{} {
	var mediaGroup []interface{}
	for i, dog := range dogs {
		photo := tgbotapi.NewInputMediaPhoto(photos[i])
		photo.Caption = formatDogCaption(dog)
		mediaGroup = append(mediaGroup, photo)
	}
	return mediaGroup
}

func (b *Bot) sendMediaGroupOrFallback(chatID int64, mediaGroup []interface{}, dogs []model.DogRecord, photos []tgbotapi.RequestFileData) {
	// Telegram rejects albums with a single item
	if len(mediaGroup) > 1 {
		_, err := b.sender.SendMediaGroup(tgbotapi.MediaGroupConfig{
			ChatID: chatID,
			Media:  mediaGroup,
		})
		if err == nil {
			return
		}
		slog.Error("SendMediaGroup error", "error", err)
	}
	for i, dog := range dogs {
		photoMsg := tgbotapi.NewPhoto(chatID, photos[i])
		photoMsg.Caption = formatDogCaption(dog)
		if _, err := b.sender.Send(photoMsg); err != nil {
			slog.Error("Failed to send dog photo", "dog_id", dog.ID, "error", err)
		}
	}
}
