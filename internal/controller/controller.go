package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"dogfinder-bot/internal/api"
	"dogfinder-bot/internal/model"

	"github.com/google/uuid"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrStale means a newer search for the same chat started while this one
	// was in flight; its responses were dropped.
	ErrStale  = errors.New("search superseded by a newer one")
	ErrNoPage = errors.New("no such page")
	// ErrSessionExpired means every cookie saved at login has expired.
	ErrSessionExpired = errors.New("session expired")
)

type StateStore interface {
	GetState(ctx context.Context, chatID int64) (*model.ChatState, error)
	SaveState(ctx context.Context, chatID int64, state *model.ChatState) error
}

// Remote is one chat's authenticated connection to the adoption service.
type Remote interface {
	Login(ctx context.Context, creds model.Credentials) error
	Cookies() []model.SessionCookie
	ListBreeds(ctx context.Context) ([]string, error)
	Search(ctx context.Context, filters model.SearchFilters) (model.SearchResults, error)
	Hydrate(ctx context.Context, ids []string) ([]model.DogRecord, error)
}

type SessionFactory func(cookies []model.SessionCookie) (Remote, error)

// FetchSessions adapts the api client to a SessionFactory.
func FetchSessions(fetch *api.FetchAPI) SessionFactory {
	return func(cookies []model.SessionCookie) (Remote, error) {
		return fetch.NewSession(cookies)
	}
}

type Observer interface {
	PipelineFinished(outcome string)
	StaleDiscarded(stage string)
}

type noopObserver struct{}

func (noopObserver) PipelineFinished(string) {}
func (noopObserver) StaleDiscarded(string)   {}

// View is what the renderer needs after a search.
type View struct {
	Filters model.SearchFilters
	Results model.SearchResults
	Dogs    []model.DogRecord
}

type inflight struct {
	generation uint64
	cancel     context.CancelFunc
}

type Controller struct {
	store      StateStore
	newSession SessionFactory
	observer   Observer

	locks sync.Map // chatID -> *sync.Mutex

	mu       sync.Mutex
	sessions map[int64]Remote
	running  map[int64]inflight
}

func New(store StateStore, sessions SessionFactory, observer Observer) *Controller {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Controller{
		store:      store,
		newSession: sessions,
		observer:   observer,
		sessions:   make(map[int64]Remote),
		running:    make(map[int64]inflight),
	}
}

func (c *Controller) chatLock(chatID int64) *sync.Mutex {
	l, _ := c.locks.LoadOrStore(chatID, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func withRequestID(ctx context.Context) context.Context {
	if api.RequestID(ctx) != "" {
		return ctx
	}
	return api.WithRequestID(ctx, uuid.NewString())
}

func (c *Controller) load(ctx context.Context, chatID int64) (*model.ChatState, error) {
	state, err := c.store.GetState(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load state for chat %d: %w", chatID, err)
	}
	if state == nil {
		// expired or never saved: a session left from before belongs to nobody
		c.forgetSession(chatID)
		state = model.NewChatState()
	}
	return state, nil
}

// update runs fn on the chat's current state under the chat lock and saves the
// result unless fn returns an error.
func (c *Controller) update(ctx context.Context, chatID int64, fn func(*model.ChatState) error) (*model.ChatState, error) {
	l := c.chatLock(chatID)
	l.Lock()
	defer l.Unlock()

	state, err := c.load(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if err := fn(state); err != nil {
		return state, err
	}
	if err := c.store.SaveState(ctx, chatID, state); err != nil {
		return nil, fmt.Errorf("save state for chat %d: %w", chatID, err)
	}
	return state, nil
}

func (c *Controller) State(ctx context.Context, chatID int64) (*model.ChatState, error) {
	return c.load(ctx, chatID)
}

func (c *Controller) SetAwaiting(ctx context.Context, chatID int64, awaiting string) error {
	_, err := c.update(ctx, chatID, func(s *model.ChatState) error {
		s.Awaiting = awaiting
		return nil
	})
	return err
}

func (c *Controller) ResetFilters(ctx context.Context, chatID int64) error {
	_, err := c.update(ctx, chatID, func(s *model.ChatState) error {
		s.ResetFilters()
		return nil
	})
	return err
}

// session returns the chat's live session, rebuilding it from persisted
// cookies after a restart.
func (c *Controller) session(chatID int64, cookies []model.SessionCookie) (Remote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[chatID]
	if !ok {
		var err error
		s, err = c.newSession(cookies)
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
	}
	if len(s.Cookies()) == 0 {
		delete(c.sessions, chatID)
		return nil, ErrSessionExpired
	}
	c.sessions[chatID] = s
	return s, nil
}

func (c *Controller) forgetSession(chatID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, chatID)
}

// Login authenticates the chat. On failure the stored state is untouched, so
// an anonymous chat stays anonymous.
func (c *Controller) Login(ctx context.Context, chatID int64, creds model.Credentials) (*model.ChatState, error) {
	ctx = withRequestID(ctx)
	logger := slog.With("chat_id", chatID, "request_id", api.RequestID(ctx))

	session, err := c.newSession(nil)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if err := session.Login(ctx, creds); err != nil {
		logger.Error("Login failed", "error", err)
		return nil, err
	}

	state, err := c.update(ctx, chatID, func(s *model.ChatState) error {
		s.LoginSucceeded(creds, session.Cookies())
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.sessions[chatID] = session
	c.mu.Unlock()

	logger.Info("Login succeeded")
	return state, nil
}

func (c *Controller) authenticated(ctx context.Context, chatID int64) (*model.ChatState, Remote, error) {
	state, err := c.load(ctx, chatID)
	if err != nil {
		return nil, nil, err
	}
	if !state.LoggedIn {
		return state, nil, ErrNotAuthenticated
	}
	session, err := c.session(chatID, state.Cookies)
	if err != nil {
		return state, nil, err
	}
	return state, session, nil
}

func (c *Controller) Breeds(ctx context.Context, chatID int64) ([]string, error) {
	ctx = withRequestID(ctx)
	_, session, err := c.authenticated(ctx, chatID)
	if err != nil {
		return nil, err
	}
	breeds, err := session.ListBreeds(ctx)
	if err != nil {
		slog.Error("Error listing breeds", "chat_id", chatID, "request_id", api.RequestID(ctx), "error", err)
		return nil, err
	}
	if _, err := c.update(ctx, chatID, func(s *model.ChatState) error {
		s.CookiesRefreshed(session.Cookies())
		return nil
	}); err != nil {
		slog.Warn("Error saving refreshed cookies", "chat_id", chatID, "error", err)
	}
	slog.Info("Breeds listed", "chat_id", chatID, "count", len(breeds))
	return breeds, nil
}

// Search runs a fresh search with filters exactly as given.
func (c *Controller) Search(ctx context.Context, chatID int64, filters model.SearchFilters) (*View, error) {
	return c.runSearch(ctx, chatID, func(*model.ChatState) (model.SearchFilters, error) {
		return filters, nil
	})
}

// NextPage re-runs the search that produced the current results with the
// service's next cursor.
func (c *Controller) NextPage(ctx context.Context, chatID int64) (*View, error) {
	return c.runSearch(ctx, chatID, func(s *model.ChatState) (model.SearchFilters, error) {
		if s.Results == nil {
			return model.SearchFilters{}, ErrNoPage
		}
		return pageOf(s, s.Results.Next)
	})
}

func (c *Controller) PrevPage(ctx context.Context, chatID int64) (*View, error) {
	return c.runSearch(ctx, chatID, func(s *model.ChatState) (model.SearchFilters, error) {
		if s.Results == nil {
			return model.SearchFilters{}, ErrNoPage
		}
		return pageOf(s, s.Results.Prev)
	})
}

// pageOf pairs cursor with the query it was issued for. Filters edited or
// reset since then, or a newer search that failed, do not leak into paging.
func pageOf(s *model.ChatState, cursor string) (model.SearchFilters, error) {
	if cursor == "" || s.ResultsFilters == nil {
		return model.SearchFilters{}, ErrNoPage
	}
	f := *s.ResultsFilters
	f.Cursor = cursor
	return f, nil
}

// runSearch is the search -> hydrate pipeline. Starting it cancels the chat's
// previous pipeline; every completion is checked against the generation so a
// late response can never land on top of a newer one.
func (c *Controller) runSearch(ctx context.Context, chatID int64, prepare func(*model.ChatState) (model.SearchFilters, error)) (view *View, err error) {
	ctx = withRequestID(ctx)
	logger := slog.With("chat_id", chatID, "request_id", api.RequestID(ctx))

	pctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		gen     uint64
		filters model.SearchFilters
	)
	state, err := c.update(ctx, chatID, func(s *model.ChatState) error {
		if !s.LoggedIn {
			return ErrNotAuthenticated
		}
		f, err := prepare(s)
		if err != nil {
			return err
		}
		filters = f
		gen = s.BeginSearch(f)
		c.track(chatID, gen, cancel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer c.untrack(chatID, gen)
	defer func() {
		switch {
		case err == nil:
			c.observer.PipelineFinished("ok")
		case errors.Is(err, ErrStale):
			c.observer.PipelineFinished("stale")
		default:
			c.observer.PipelineFinished("error")
		}
	}()

	session, err := c.session(chatID, state.Cookies)
	if err != nil {
		return nil, err
	}

	logger.Debug("Search started", "generation", gen)
	results, err := session.Search(pctx, filters)
	if err != nil {
		return nil, c.pipelineErr(ctx, pctx, "search", err, logger)
	}

	if _, err := c.update(ctx, chatID, func(s *model.ChatState) error {
		if !s.SearchCompleted(gen, filters, results) {
			return ErrStale
		}
		s.CookiesRefreshed(session.Cookies())
		return nil
	}); err != nil {
		if errors.Is(err, ErrStale) {
			c.observer.StaleDiscarded("search")
			logger.Info("Discarding stale search results", "generation", gen)
		}
		return nil, err
	}

	dogs, err := session.Hydrate(pctx, results.ResultIDs)
	if err != nil {
		return nil, c.pipelineErr(ctx, pctx, "hydrate", err, logger)
	}

	state, err = c.update(ctx, chatID, func(s *model.ChatState) error {
		if !s.HydrationCompleted(gen, dogs) {
			return ErrStale
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrStale) {
			c.observer.StaleDiscarded("hydrate")
			logger.Info("Discarding stale dog records", "generation", gen)
		}
		return nil, err
	}

	logger.Debug("Search finished", "generation", gen, "total", results.Total, "dogs", len(dogs))
	return &View{Filters: *state.ResultsFilters, Results: *state.Results, Dogs: state.Dogs}, nil
}

// pipelineErr turns a cancellation caused by a newer search into ErrStale.
func (c *Controller) pipelineErr(ctx, pctx context.Context, stage string, err error, logger *slog.Logger) error {
	if pctx.Err() != nil && ctx.Err() == nil {
		c.observer.StaleDiscarded(stage)
		logger.Info("Search canceled by a newer one", "stage", stage)
		return ErrStale
	}
	logger.Error("Search pipeline failed", "stage", stage, "error", err)
	return err
}

func (c *Controller) track(chatID int64, gen uint64, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.running[chatID]; ok {
		prev.cancel()
	}
	c.running[chatID] = inflight{generation: gen, cancel: cancel}
}

func (c *Controller) untrack(chatID int64, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.running[chatID]; ok && cur.generation == gen {
		delete(c.running, chatID)
	}
}

// CancelAll stops every in-flight pipeline, used on shutdown.
func (c *Controller) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for chatID, r := range c.running {
		r.cancel()
		delete(c.running, chatID)
	}
}
