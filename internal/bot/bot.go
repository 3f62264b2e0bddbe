package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dogfinder-bot/internal/controller"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMessageLimit = 4096
	telegramCaptionLimit = 1024
	mediaGroupLimit      = 10

	buttonLogin  = "🔑 Войти"
	buttonSearch = "🔍 Поиск собак"
	buttonBreeds = "📋 Породы"
)

// Sender is the part of the Telegram API the bot writes through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	SendMediaGroup(config tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
}

type UpdateObserver interface {
	UpdateHandled(kind string)
}

type noopObserver struct{}

func (noopObserver) UpdateHandled(string) {}

type Options struct {
	UpdateTimeout  int
	BreedsCacheTTL time.Duration
	SendPhotos     bool
	PhotoTimeout   time.Duration
	PhotoCacheTTL  time.Duration
	Observer       UpdateObserver
}

type Bot struct {
	api      *tgbotapi.BotAPI
	sender   Sender
	ctrl     *controller.Controller
	breeds   *breedCache
	photos   *photoCache
	opts     Options
	observer UpdateObserver
	stopChan chan struct{}  // Channel to signal stopping
	wg       sync.WaitGroup // WaitGroup for graceful shutdown

	mu       sync.Mutex
	stopping bool
}

func NewBot(token string, ctrl *controller.Controller, opts Options) (*Bot, error) {
	botAPI, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	b := newBot(botAPI, ctrl, opts)
	b.api = botAPI
	return b, nil
}

func newBot(sender Sender, ctrl *controller.Controller, opts Options) *Bot {
	if opts.UpdateTimeout <= 0 {
		opts.UpdateTimeout = 60
	}
	if opts.BreedsCacheTTL <= 0 {
		opts.BreedsCacheTTL = time.Hour
	}
	if opts.PhotoTimeout <= 0 {
		opts.PhotoTimeout = 10 * time.Second
	}
	if opts.PhotoCacheTTL <= 0 {
		opts.PhotoCacheTTL = time.Hour
	}
	observer := opts.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	return &Bot{
		sender:   sender,
		ctrl:     ctrl,
		breeds:   newBreedCache(opts.BreedsCacheTTL),
		photos:   newPhotoCache(opts.PhotoTimeout),
		opts:     opts,
		observer: observer,
		stopChan: make(chan struct{}),
	}
}

// Start polls for updates until Stop is called or ctx ends. Every update is
// handled on its own goroutine; a slow search in one chat does not hold up
// the others.
func (b *Bot) Start(ctx context.Context) {
	slog.Info("Authorized on account", slog.String("username", b.api.Self.UserName))

	go b.breeds.ClearPeriodically(ctx, b.opts.BreedsCacheTTL)
	go b.photos.ClearPeriodically(ctx, b.opts.PhotoCacheTTL)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.opts.UpdateTimeout
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-b.stopChan:
			slog.Info("Stopping bot update processing")
			return
		case <-ctx.Done():
			slog.Info("Context done, stopping bot update processing")
			return
		case update, ok := <-updates:
			if !ok {
				slog.Info("Updates channel closed")
				return
			}
			if !b.dispatch(ctx, update) {
				slog.Info("Bot is stopping, update dropped", "update_id", update.UpdateID)
				return
			}
		}
	}
}

// dispatch handles update on its own goroutine. It refuses once Stop has
// begun, so no handler is added while Stop waits for the running ones.
func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopping || ctx.Err() != nil {
		return false
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.handleUpdate(ctx, update)
	}()
	return true
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		b.observer.UpdateHandled("callback")
		b.handleCallbackQuery(ctx, update.CallbackQuery)
		return
	}

	if update.Message == nil {
		return
	}

	if !update.Message.IsCommand() {
		b.observer.UpdateHandled("message")
		b.handleMessage(ctx, update.Message)
		return
	}

	b.observer.UpdateHandled("command")
	switch update.Message.Command() {
	case "start":
		b.handleStartCommand(ctx, update.Message)
	case "help":
		b.handleHelpCommand(ctx, update.Message)
	case "login":
		b.handleLoginCommand(ctx, update.Message)
	case "breeds":
		b.handleBreeds(ctx, update.Message.Chat.ID)
	case "search":
		b.handleSearchCommand(ctx, update.Message)
	case "filters":
		b.handleFiltersCommand(ctx, update.Message)
	case "reset":
		b.handleResetCommand(ctx, update.Message)
	default:
		b.sendText(update.Message.Chat.ID, "Неизвестная команда. /help покажет список команд.")
	}
}

func (b *Bot) Stop() {
	slog.Info("Initiating bot shutdown...")
	b.mu.Lock()
	if b.stopping {
		b.mu.Unlock()
		return
	}
	b.stopping = true
	close(b.stopChan) // Signal to stop processing updates
	b.mu.Unlock()

	if b.api != nil {
		b.api.StopReceivingUpdates()
	}
	b.ctrl.CancelAll()
	b.wg.Wait() // Wait for in-flight handlers

	slog.Info("Bot shutdown complete")
}
