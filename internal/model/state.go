package model

import "time"

const (
	AwaitingNone        = ""
	AwaitingCredentials = "credentials"
	AwaitingFilters     = "filters"
)

// SessionCookie is a service cookie as it is persisted between restarts.
// A zero Expires means the cookie lives as long as the session.
type SessionCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Expires time.Time `json:"expires"`
	Secure  bool      `json:"secure,omitempty"`
}

// ChatState is everything the bot remembers about one chat. Mutations that
// belong to the search pipeline go through the transition methods below.
type ChatState struct {
	LoggedIn    bool            `json:"logged_in"`
	Credentials Credentials     `json:"credentials"`
	Cookies     []SessionCookie `json:"cookies,omitempty"`
	Awaiting    string          `json:"awaiting,omitempty"`
	Filters     SearchFilters   `json:"filters"`
	Results     *SearchResults  `json:"results,omitempty"`
	// ResultsFilters is the query that produced Results, cursor included.
	// Paging starts from it, not from Filters.
	ResultsFilters *SearchFilters `json:"results_filters,omitempty"`
	Dogs           []DogRecord    `json:"dogs,omitempty"`
	Generation     uint64         `json:"generation"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func NewChatState() *ChatState {
	return &ChatState{Filters: NewSearchFilters()}
}

// LoginSucceeded moves the chat to the authenticated view. There is no way back.
func (s *ChatState) LoginSucceeded(creds Credentials, cookies []SessionCookie) {
	s.LoggedIn = true
	s.Credentials = creds
	s.Cookies = cookies
	s.Awaiting = AwaitingNone
	s.touch()
}

// BeginSearch stores the filters that are about to be sent and returns the
// generation that completions must present.
func (s *ChatState) BeginSearch(filters SearchFilters) uint64 {
	s.Generation++
	s.Filters = filters
	s.Awaiting = AwaitingNone
	s.touch()
	return s.Generation
}

// SearchCompleted replaces the results and the query they belong to, and drops
// dogs hydrated for the previous result set. Returns false if gen is stale.
func (s *ChatState) SearchCompleted(gen uint64, query SearchFilters, results SearchResults) bool {
	if gen != s.Generation {
		return false
	}
	s.Results = &results
	s.ResultsFilters = &query
	s.Dogs = nil
	s.touch()
	return true
}

// HydrationCompleted stores dogs exactly in the order they were returned.
func (s *ChatState) HydrationCompleted(gen uint64, dogs []DogRecord) bool {
	if gen != s.Generation || s.Results == nil {
		return false
	}
	s.Dogs = dogs
	s.touch()
	return true
}

func (s *ChatState) touch() {
	s.UpdatedAt = time.Now()
}

// CookiesRefreshed stores the cookies the service handed out after login.
func (s *ChatState) CookiesRefreshed(cookies []SessionCookie) {
	s.Cookies = cookies
	s.touch()
}

// ResetFilters goes back to the default query. Results stay until the next
// search and keep paging with the query that produced them.
func (s *ChatState) ResetFilters() {
	s.Filters = NewSearchFilters()
	s.touch()
}
