package model

const DefaultPageSize = 25

type Credentials struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SearchFilters is the user's current query. Cursor and Sort are empty when
// unset, the age bounds and Size are nil.
type SearchFilters struct {
	Breeds   []string `json:"breeds,omitempty"`
	ZipCodes []string `json:"zip_codes,omitempty"`
	AgeMin   *int     `json:"age_min,omitempty"`
	AgeMax   *int     `json:"age_max,omitempty"`
	Size     *int     `json:"size,omitempty"`
	Cursor   string   `json:"cursor,omitempty"`
	Sort     string   `json:"sort,omitempty"`
}

func NewSearchFilters() SearchFilters {
	size := DefaultPageSize
	return SearchFilters{Size: &size}
}

// Next and Prev are opaque cursors handed out by the remote service.
type SearchResults struct {
	ResultIDs []string `json:"result_ids"`
	Total     int      `json:"total"`
	Next      string   `json:"next,omitempty"`
	Prev      string   `json:"prev,omitempty"`
}

type DogRecord struct {
	ID      string `json:"id"`
	Img     string `json:"img,omitempty"`
	Name    string `json:"name"`
	Breed   string `json:"breed"`
	Age     int    `json:"age"`
	ZipCode string `json:"zip_code"`
}
