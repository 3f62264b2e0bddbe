package api

import (
	"net/url"
	"strconv"

	"dogfinder-bot/internal/model"
)

// BuildSearchQuery turns filters into /dogs/search parameters. Empty lists,
// unset age bounds and size, an empty cursor and an empty sort produce no
// parameter at all. Set values are sent as they are, the service checks ranges.
// The cursor is passed through as "from" without being looked at.
func BuildSearchQuery(f model.SearchFilters) url.Values {
	q := url.Values{}
	for _, b := range f.Breeds {
		if b != "" {
			q.Add("breeds", b)
		}
	}
	for _, z := range f.ZipCodes {
		if z != "" {
			q.Add("zipCodes", z)
		}
	}
	if f.AgeMin != nil {
		q.Set("ageMin", strconv.Itoa(*f.AgeMin))
	}
	if f.AgeMax != nil {
		q.Set("ageMax", strconv.Itoa(*f.AgeMax))
	}
	if f.Size != nil {
		q.Set("size", strconv.Itoa(*f.Size))
	}
	if f.Cursor != "" {
		q.Set("from", f.Cursor)
	}
	if f.Sort != "" {
		q.Set("sort", f.Sort)
	}
	return q
}
