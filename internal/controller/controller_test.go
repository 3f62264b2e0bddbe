package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"dogfinder-bot/internal/api"
	"dogfinder-bot/internal/model"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memoryStore round-trips state through JSON like the Redis store does.
type memoryStore struct {
	mu     sync.Mutex
	states map[int64][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{states: map[int64][]byte{}}
}

func (m *memoryStore) GetState(_ context.Context, chatID int64) (*model.ChatState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.states[chatID]
	if !ok {
		return nil, nil
	}
	var s model.ChatState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *memoryStore) expire(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, chatID)
}

func (m *memoryStore) SaveState(_ context.Context, chatID int64, s *model.ChatState) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[chatID] = data
	return nil
}

type searchCall struct {
	filters model.SearchFilters
}

// fakeRemote answers searches from a script. A search for a breed listed in
// block waits until that breed's channel is closed or the context ends.
type fakeRemote struct {
	mu         sync.Mutex
	loginErr   error
	searchErr  error
	cookies    []model.SessionCookie
	searches   []searchCall
	hydrated   [][]string
	results    map[string]model.SearchResults
	block      map[string]chan struct{}
	started    chan string
	hydrateFor func(ids []string) []model.DogRecord
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		results: map[string]model.SearchResults{},
		block:   map[string]chan struct{}{},
		started: make(chan string, 16),
		cookies: []model.SessionCookie{{Name: "fetch-access-token", Value: "opaque"}},
	}
}

func (f *fakeRemote) setCookies(cookies []model.SessionCookie) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cookies = cookies
}

func (f *fakeRemote) setSearchErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchErr = err
}

func (f *fakeRemote) Login(_ context.Context, creds model.Credentials) error {
	return f.loginErr
}

func (f *fakeRemote) Cookies() []model.SessionCookie {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cookies
}

func (f *fakeRemote) ListBreeds(context.Context) ([]string, error) {
	return []string{"Beagle", "Pug"}, nil
}

func key(filters model.SearchFilters) string {
	k := ""
	if len(filters.Breeds) > 0 {
		k = filters.Breeds[0]
	}
	return k + "|" + filters.Cursor
}

func (f *fakeRemote) Search(ctx context.Context, filters model.SearchFilters) (model.SearchResults, error) {
	f.mu.Lock()
	f.searches = append(f.searches, searchCall{filters: filters})
	res := f.results[key(filters)]
	wait := f.block[key(filters)]
	err := f.searchErr
	f.mu.Unlock()

	f.started <- key(filters)
	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return model.SearchResults{}, &api.NetworkError{Op: "search", Err: ctx.Err()}
		}
	}
	if err != nil {
		return model.SearchResults{}, err
	}
	return res, nil
}

func (f *fakeRemote) Hydrate(_ context.Context, ids []string) ([]model.DogRecord, error) {
	f.mu.Lock()
	f.hydrated = append(f.hydrated, ids)
	hydrate := f.hydrateFor
	f.mu.Unlock()
	if hydrate != nil {
		return hydrate(ids), nil
	}
	dogs := make([]model.DogRecord, 0, len(ids))
	for _, id := range ids {
		dogs = append(dogs, model.DogRecord{ID: id, Name: gofakeit.PetName(), Breed: gofakeit.Animal(), Age: gofakeit.Number(0, 14)})
	}
	return dogs, nil
}

type countingObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
	stale    map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{outcomes: map[string]int{}, stale: map[string]int{}}
}

func (o *countingObserver) PipelineFinished(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes[outcome]++
}

func (o *countingObserver) StaleDiscarded(stage string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stale[stage]++
}

func newTestController(remote *fakeRemote) (*Controller, *memoryStore, *countingObserver) {
	store := newMemoryStore()
	obs := newCountingObserver()
	c := New(store, func([]model.SessionCookie) (Remote, error) { return remote, nil }, obs)
	return c, store, obs
}

func login(t *testing.T, c *Controller, chatID int64) {
	t.Helper()
	_, err := c.Login(context.Background(), chatID, model.Credentials{Name: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)
}

func TestController_LoginSuccessAuthenticates(t *testing.T) {
	c, store, _ := newTestController(newFakeRemote())
	ctx := context.Background()

	before, err := c.State(ctx, 1)
	require.NoError(t, err)
	assert.False(t, before.LoggedIn)

	state, err := c.Login(ctx, 1, model.Credentials{Name: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)
	assert.True(t, state.LoggedIn)

	saved, err := store.GetState(ctx, 1)
	require.NoError(t, err)
	assert.True(t, saved.LoggedIn)
	assert.Equal(t, "opaque", saved.Cookies[0].Value)
}

func TestController_LoginFailureStaysAnonymous(t *testing.T) {
	remote := newFakeRemote()
	remote.loginErr = &api.AuthError{Op: "login", Status: 401, Body: "Unauthorized"}
	c, store, _ := newTestController(remote)
	ctx := context.Background()

	_, err := c.Login(ctx, 1, model.Credentials{Name: "Ann", Email: "ann@example.com"})

	var authErr *api.AuthError
	require.ErrorAs(t, err, &authErr)
	state, err := c.State(ctx, 1)
	require.NoError(t, err)
	assert.False(t, state.LoggedIn)

	_, err = c.Search(ctx, 1, model.NewSearchFilters())
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	saved, _ := store.GetState(ctx, 1)
	assert.Nil(t, saved)
}

func TestController_OperationsRequireLogin(t *testing.T) {
	remote := newFakeRemote()
	c, _, _ := newTestController(remote)
	ctx := context.Background()

	_, err := c.Breeds(ctx, 1)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = c.Search(ctx, 1, model.NewSearchFilters())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = c.NextPage(ctx, 1)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Empty(t, remote.searches)
}

func TestController_Breeds(t *testing.T) {
	c, _, _ := newTestController(newFakeRemote())
	login(t, c, 1)

	breeds, err := c.Breeds(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Beagle", "Pug"}, breeds)
}

func TestController_SearchHydratesInReturnedOrder(t *testing.T) {
	remote := newFakeRemote()
	remote.results["Pug|"] = model.SearchResults{ResultIDs: []string{"a", "b"}, Total: 2}
	remote.hydrateFor = func(ids []string) []model.DogRecord {
		return []model.DogRecord{{ID: "b", Name: "Bo"}, {ID: "a", Name: "Al"}}
	}
	c, _, obs := newTestController(remote)
	login(t, c, 1)

	filters := model.NewSearchFilters()
	filters.Breeds = []string{"Pug"}
	view, err := c.Search(context.Background(), 1, filters)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, view.Results.ResultIDs)
	require.Len(t, view.Dogs, 2)
	assert.Equal(t, "b", view.Dogs[0].ID)
	assert.Equal(t, "a", view.Dogs[1].ID)
	assert.Equal(t, [][]string{{"a", "b"}}, remote.hydrated)
	assert.Equal(t, 1, obs.outcomes["ok"])
}

func TestController_NextPageUsesCursorVerbatim(t *testing.T) {
	remote := newFakeRemote()
	next := "/dogs/search?size=25&from=25&breeds=Pug"
	remote.results["Pug|"] = model.SearchResults{ResultIDs: []string{"a"}, Total: 30, Next: next}
	remote.results["Pug|"+next] = model.SearchResults{ResultIDs: []string{"z"}, Total: 30, Prev: "back"}
	c, _, _ := newTestController(remote)
	login(t, c, 1)
	ctx := context.Background()

	age := 3
	size := 25
	filters := model.SearchFilters{Breeds: []string{"Pug"}, ZipCodes: []string{"10001"}, AgeMin: &age, Size: &size, Sort: "name:asc"}
	_, err := c.Search(ctx, 1, filters)
	require.NoError(t, err)

	view, err := c.NextPage(ctx, 1)
	require.NoError(t, err)

	require.Len(t, remote.searches, 2)
	second := remote.searches[1].filters
	assert.Equal(t, next, second.Cursor)
	expected := filters
	expected.Cursor = next
	assert.Equal(t, expected, second)
	assert.Equal(t, []string{"z"}, view.Results.ResultIDs)
	assert.Equal(t, next, view.Filters.Cursor)

	_, err = c.NextPage(ctx, 1)
	assert.ErrorIs(t, err, ErrNoPage)
}

func TestController_PrevPage(t *testing.T) {
	remote := newFakeRemote()
	remote.results["|"] = model.SearchResults{ResultIDs: []string{"a"}, Total: 1}
	c, _, _ := newTestController(remote)
	login(t, c, 1)
	ctx := context.Background()

	_, err := c.PrevPage(ctx, 1)
	assert.ErrorIs(t, err, ErrNoPage)

	_, err = c.Search(ctx, 1, model.NewSearchFilters())
	require.NoError(t, err)
	_, err = c.PrevPage(ctx, 1)
	assert.ErrorIs(t, err, ErrNoPage)
}

func TestController_NewSearchCancelsInFlightOne(t *testing.T) {
	remote := newFakeRemote()
	remote.block["Pug|"] = make(chan struct{})
	remote.results["Pug|"] = model.SearchResults{ResultIDs: []string{"old"}, Total: 1}
	remote.results["Akita|"] = model.SearchResults{ResultIDs: []string{"new"}, Total: 1}
	c, store, obs := newTestController(remote)
	login(t, c, 1)
	ctx := context.Background()

	errs := make(chan error, 1)
	go func() {
		_, err := c.Search(ctx, 1, model.SearchFilters{Breeds: []string{"Pug"}})
		errs <- err
	}()
	require.Equal(t, "Pug|", <-remote.started)

	view, err := c.Search(ctx, 1, model.SearchFilters{Breeds: []string{"Akita"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, view.Results.ResultIDs)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrStale)
	case <-time.After(5 * time.Second):
		t.Fatal("first search was not canceled")
	}

	saved, err := store.GetState(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, saved.Results.ResultIDs)
	assert.Equal(t, "new", saved.Dogs[0].ID)
	assert.Equal(t, []string{"Akita"}, saved.Filters.Breeds)
	assert.Equal(t, 1, obs.stale["search"])
}

func TestController_StaleResultsNeverOverwriteNewer(t *testing.T) {
	remote := newFakeRemote()
	c, store, _ := newTestController(remote)
	login(t, c, 1)
	ctx := context.Background()

	remote.results["Pug|"] = model.SearchResults{ResultIDs: []string{"p"}, Total: 1}
	_, err := c.Search(ctx, 1, model.SearchFilters{Breeds: []string{"Pug"}})
	require.NoError(t, err)

	// Simulate a response for an older generation arriving late.
	_, err = c.update(ctx, 1, func(s *model.ChatState) error {
		if !s.SearchCompleted(s.Generation-1, model.SearchFilters{}, model.SearchResults{ResultIDs: []string{"late"}}) {
			return ErrStale
		}
		return nil
	})
	assert.ErrorIs(t, err, ErrStale)

	saved, _ := store.GetState(ctx, 1)
	assert.Equal(t, []string{"p"}, saved.Results.ResultIDs)
}

func TestController_SearchErrorsPropagate(t *testing.T) {
	remote := newFakeRemote()
	remote.searchErr = &api.ValidationError{Op: "search", Status: 400, Message: "bad size"}
	c, _, obs := newTestController(remote)
	login(t, c, 1)

	size := 1000
	_, err := c.Search(context.Background(), 1, model.SearchFilters{Size: &size})

	var validationErr *api.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, 1, obs.outcomes["error"])
}

func TestController_CallerCancellationIsNotStale(t *testing.T) {
	remote := newFakeRemote()
	remote.block["Pug|"] = make(chan struct{})
	c, _, _ := newTestController(remote)
	login(t, c, 1)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := c.Search(ctx, 1, model.SearchFilters{Breeds: []string{"Pug"}})
		errs <- err
	}()
	<-remote.started
	cancel()

	err := <-errs
	assert.False(t, errors.Is(err, ErrStale))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestController_CancelAll(t *testing.T) {
	remote := newFakeRemote()
	remote.block["Pug|"] = make(chan struct{})
	c, _, _ := newTestController(remote)
	login(t, c, 1)
	login(t, c, 2)

	errs := make(chan error, 2)
	for _, chatID := range []int64{1, 2} {
		go func(id int64) {
			_, err := c.Search(context.Background(), id, model.SearchFilters{Breeds: []string{"Pug"}})
			errs <- err
		}(chatID)
	}
	<-remote.started
	<-remote.started

	c.CancelAll()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, <-errs, ErrStale)
	}
}

func TestController_SetAwaitingAndResetFilters(t *testing.T) {
	c, _, _ := newTestController(newFakeRemote())
	ctx := context.Background()

	require.NoError(t, c.SetAwaiting(ctx, 5, model.AwaitingCredentials))
	state, err := c.State(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, model.AwaitingCredentials, state.Awaiting)

	login(t, c, 5)
	_, err = c.Search(ctx, 5, model.SearchFilters{Breeds: []string{"Pug"}})
	require.NoError(t, err)

	require.NoError(t, c.ResetFilters(ctx, 5))
	state, err = c.State(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, model.NewSearchFilters(), state.Filters)
}

func TestController_RestoresSessionFromCookies(t *testing.T) {
	store := newMemoryStore()
	saved := model.NewChatState()
	saved.LoginSucceeded(model.Credentials{Name: "Ann"}, []model.SessionCookie{{Name: "fetch-access-token", Value: "kept"}})
	require.NoError(t, store.SaveState(context.Background(), 3, saved))

	var got []model.SessionCookie
	remote := newFakeRemote()
	c := New(store, func(cookies []model.SessionCookie) (Remote, error) {
		got = cookies
		return remote, nil
	}, nil)

	_, err := c.Breeds(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []model.SessionCookie{{Name: "fetch-access-token", Value: "kept"}}, got)
}

func TestController_SessionFactoryError(t *testing.T) {
	store := newMemoryStore()
	c := New(store, func([]model.SessionCookie) (Remote, error) {
		return nil, fmt.Errorf("no jar")
	}, nil)

	_, err := c.Login(context.Background(), 1, model.Credentials{Name: "Ann"})
	assert.Error(t, err)
}

func TestController_NextPageAfterResetKeepsResultsQuery(t *testing.T) {
	remote := newFakeRemote()
	remote.results["Pug|"] = model.SearchResults{ResultIDs: []string{"a"}, Total: 30, Next: "pug-cursor-25"}
	remote.results["Pug|pug-cursor-25"] = model.SearchResults{ResultIDs: []string{"b"}, Total: 30}
	c, _, _ := newTestController(remote)
	login(t, c, 1)
	ctx := context.Background()

	pug := model.SearchFilters{Breeds: []string{"Pug"}, Sort: "age:asc"}
	_, err := c.Search(ctx, 1, pug)
	require.NoError(t, err)
	require.NoError(t, c.ResetFilters(ctx, 1))

	view, err := c.NextPage(ctx, 1)
	require.NoError(t, err)

	expected := pug
	expected.Cursor = "pug-cursor-25"
	require.Len(t, remote.searches, 2)
	assert.Equal(t, expected, remote.searches[1].filters)
	assert.Equal(t, expected, view.Filters)
	assert.Equal(t, []string{"b"}, view.Results.ResultIDs)
}

func TestController_NextPageAfterFailedSearchKeepsResultsQuery(t *testing.T) {
	remote := newFakeRemote()
	remote.results["Pug|"] = model.SearchResults{ResultIDs: []string{"a"}, Total: 30, Next: "pug-cursor-25"}
	c, store, _ := newTestController(remote)
	login(t, c, 1)
	ctx := context.Background()

	pug := model.SearchFilters{Breeds: []string{"Pug"}}
	_, err := c.Search(ctx, 1, pug)
	require.NoError(t, err)

	remote.setSearchErr(&api.ValidationError{Op: "search", Status: 400, Message: "bad size"})
	size := 1000
	_, err = c.Search(ctx, 1, model.SearchFilters{Breeds: []string{"Beagle"}, Size: &size})
	require.Error(t, err)
	remote.setSearchErr(nil)

	saved, err := store.GetState(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Beagle"}, saved.Filters.Breeds)

	_, err = c.NextPage(ctx, 1)
	require.NoError(t, err)

	require.Len(t, remote.searches, 3)
	expected := pug
	expected.Cursor = "pug-cursor-25"
	assert.Equal(t, expected, remote.searches[2].filters)
}

func TestController_ExpiredCookiesNeedNewLogin(t *testing.T) {
	store := newMemoryStore()
	saved := model.NewChatState()
	saved.LoginSucceeded(model.Credentials{Name: "Ann"}, []model.SessionCookie{
		{Name: "fetch-access-token", Value: "old", Expires: time.Now().Add(-time.Hour)},
	})
	require.NoError(t, store.SaveState(context.Background(), 3, saved))

	remote := newFakeRemote()
	// the jar drops expired cookies on restore
	remote.setCookies(nil)
	c := New(store, func([]model.SessionCookie) (Remote, error) { return remote, nil }, nil)
	ctx := context.Background()

	_, err := c.Breeds(ctx, 3)
	assert.ErrorIs(t, err, ErrSessionExpired)
	_, err = c.Search(ctx, 3, model.NewSearchFilters())
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Empty(t, remote.searches)

	state, err := c.State(ctx, 3)
	require.NoError(t, err)
	assert.True(t, state.LoggedIn)

	remote.setCookies([]model.SessionCookie{{Name: "fetch-access-token", Value: "new"}})
	login(t, c, 3)
	_, err = c.Breeds(ctx, 3)
	assert.NoError(t, err)
}

func TestController_SavesRefreshedCookies(t *testing.T) {
	remote := newFakeRemote()
	remote.results["Pug|"] = model.SearchResults{ResultIDs: []string{"a"}, Total: 1}
	c, store, _ := newTestController(remote)
	login(t, c, 1)
	ctx := context.Background()

	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	remote.setCookies([]model.SessionCookie{{Name: "fetch-access-token", Value: "v2", Expires: expires}})
	_, err := c.Search(ctx, 1, model.SearchFilters{Breeds: []string{"Pug"}})
	require.NoError(t, err)

	saved, err := store.GetState(ctx, 1)
	require.NoError(t, err)
	require.Len(t, saved.Cookies, 1)
	assert.Equal(t, "v2", saved.Cookies[0].Value)
	assert.True(t, expires.Equal(saved.Cookies[0].Expires))

	remote.setCookies([]model.SessionCookie{{Name: "fetch-access-token", Value: "v3"}})
	_, err = c.Breeds(ctx, 1)
	require.NoError(t, err)

	saved, err = store.GetState(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "v3", saved.Cookies[0].Value)
}

func TestController_ForgetsSessionWhenStateExpires(t *testing.T) {
	store := newMemoryStore()
	remote := newFakeRemote()
	created := 0
	c := New(store, func([]model.SessionCookie) (Remote, error) {
		created++
		return remote, nil
	}, nil)
	ctx := context.Background()

	login(t, c, 1)
	_, err := c.Breeds(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	store.expire(1)
	state, err := c.State(ctx, 1)
	require.NoError(t, err)
	assert.False(t, state.LoggedIn)

	c.mu.Lock()
	_, kept := c.sessions[1]
	c.mu.Unlock()
	assert.False(t, kept)

	_, err = c.Breeds(ctx, 1)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	restored := model.NewChatState()
	restored.LoginSucceeded(model.Credentials{Name: "Ann"}, remote.Cookies())
	require.NoError(t, store.SaveState(ctx, 1, restored))
	_, err = c.Breeds(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, created)
}
