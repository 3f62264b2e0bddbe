package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dogfinder-bot/internal/model"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://frontend-take-home-service.fetch.com"
	MaxHydrateIDs  = 100

	opLogin   = "login"
	opBreeds  = "breeds"
	opSearch  = "search"
	opHydrate = "hydrate"
)

// Recorder receives one observation per remote call.
type Recorder interface {
	ObserveRequest(op string, status string, duration time.Duration)
	ObserveTruncation(requested, sent int)
}

type noopRecorder struct{}

func (noopRecorder) ObserveRequest(string, string, time.Duration) {}
func (noopRecorder) ObserveTruncation(int, int)                   {}

type Option func(*FetchAPI)

func WithTimeout(d time.Duration) Option {
	return func(f *FetchAPI) { f.timeout = d }
}

func WithRateLimit(perSecond float64, burst int) Option {
	return func(f *FetchAPI) {
		if perSecond > 0 {
			f.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(f *FetchAPI) {
		if r != nil {
			f.metrics = r
		}
	}
}

func WithTransport(rt http.RoundTripper) Option {
	return func(f *FetchAPI) { f.transport = rt }
}

// FetchAPI knows where the adoption service lives. It holds no session itself:
// every chat talks through its own Session.
type FetchAPI struct {
	baseUrl   *url.URL
	timeout   time.Duration
	limiter   *rate.Limiter
	metrics   Recorder
	transport http.RoundTripper
}

func NewFetchAPI(baseUrl string, opts ...Option) (*FetchAPI, error) {
	if baseUrl == "" {
		baseUrl = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseUrl, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	f := &FetchAPI{
		baseUrl: u,
		timeout: 15 * time.Second,
		metrics: noopRecorder{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Session is one user's connection to the service. Its cookie jar plays the
// role of the browser credential store: the login cookie lands there and is
// attached to every later request.
type Session struct {
	api    *FetchAPI
	jar    *cookieStore
	client *http.Client
}

// NewSession creates a session, optionally seeded with cookies saved from an
// earlier one.
func (f *FetchAPI) NewSession(cookies []model.SessionCookie) (*Session, error) {
	jar, err := newCookieStore()
	if err != nil {
		return nil, err
	}
	jar.restore(f.baseUrl, cookies)
	return &Session{
		api: f,
		jar: jar,
		client: &http.Client{
			Jar:       jar,
			Timeout:   f.timeout,
			Transport: f.transport,
		},
	}, nil
}

// Cookies returns what the jar would send to the service, for persisting.
// The service may refresh them on any call, so callers save them again after
// successful requests.
func (s *Session) Cookies() []model.SessionCookie {
	return s.jar.snapshot(s.api.baseUrl)
}

func (s *Session) Login(ctx context.Context, creds model.Credentials) error {
	slog.Debug("Started Login")
	body := loginRequest{Name: creds.Name, Email: creds.Email}
	if err := s.doRequest(ctx, opLogin, http.MethodPost, "/auth/login", nil, body, nil); err != nil {
		slog.Error("Login failed", "error", err)
		return err
	}
	slog.Debug("Ended Login")
	return nil
}

func (s *Session) ListBreeds(ctx context.Context) ([]string, error) {
	slog.Debug("Started ListBreeds")
	var breeds []string
	if err := s.doRequest(ctx, opBreeds, http.MethodGet, "/dogs/breeds", nil, nil, &breeds); err != nil {
		slog.Error("ListBreeds fetch err", "error", err)
		return nil, err
	}
	slog.Info("Fetched breeds", "count", len(breeds))
	return breeds, nil
}

func (s *Session) Search(ctx context.Context, filters model.SearchFilters) (model.SearchResults, error) {
	slog.Debug("Started Search")
	var data SearchResponse
	if err := s.doRequest(ctx, opSearch, http.MethodGet, "/dogs/search", BuildSearchQuery(filters), nil, &data); err != nil {
		slog.Error("Search fetch err", "error", err)
		return model.SearchResults{}, err
	}
	slog.Debug("Ended Search", "total", data.Total, "ids", len(data.ResultIds))
	return data.toModel(), nil
}

// Hydrate resolves ids to dog records. Only the first MaxHydrateIDs ids are
// sent. The records come back in whatever order the service chose.
func (s *Session) Hydrate(ctx context.Context, ids []string) ([]model.DogRecord, error) {
	if len(ids) == 0 {
		return []model.DogRecord{}, nil
	}
	if len(ids) > MaxHydrateIDs {
		slog.Warn("Truncating dog ids for batch lookup",
			"requested", len(ids),
			"sent", MaxHydrateIDs)
		s.api.metrics.ObserveTruncation(len(ids), MaxHydrateIDs)
		ids = ids[:MaxHydrateIDs]
	}

	var data []DogResponse
	if err := s.doRequest(ctx, opHydrate, http.MethodPost, "/dogs", nil, ids, &data); err != nil {
		slog.Error("Hydrate fetch err", "error", err)
		return nil, err
	}

	dogs := make([]model.DogRecord, 0, len(data))
	for _, d := range data {
		dogs = append(dogs, d.toModel())
	}
	return dogs, nil
}

func (s *Session) doRequest(ctx context.Context, op, method, path string, query url.Values, payload, result interface{}) error {
	start := time.Now()
	status := "error"
	defer func() {
		s.api.metrics.ObserveRequest(op, status, time.Since(start))
	}()

	if s.api.limiter != nil {
		if err := s.api.limiter.Wait(ctx); err != nil {
			return &NetworkError{Op: op, Err: err}
		}
	}

	u := *s.api.baseUrl
	u.Path = u.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &NetworkError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyStatus(op, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return &NetworkError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
