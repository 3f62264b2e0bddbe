package api

import "dogfinder-bot/internal/model"

type loginRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type SearchResponse struct {
	ResultIds []string `json:"resultIds"`
	Total     int      `json:"total"`
	Next      string   `json:"next,omitempty"`
	Prev      string   `json:"prev,omitempty"`
}

type DogResponse struct {
	Id      string `json:"id"`
	Img     string `json:"img"`
	Name    string `json:"name"`
	Age     int    `json:"age"`
	ZipCode string `json:"zip_code"`
	Breed   string `json:"breed"`
}

func (r SearchResponse) toModel() model.SearchResults {
	ids := r.ResultIds
	if ids == nil {
		ids = []string{}
	}
	return model.SearchResults{
		ResultIDs: ids,
		Total:     r.Total,
		Next:      r.Next,
		Prev:      r.Prev,
	}
}

func (d DogResponse) toModel() model.DogRecord {
	return model.DogRecord{
		ID:      d.Id,
		Img:     d.Img,
		Name:    d.Name,
		Breed:   d.Breed,
		Age:     d.Age,
		ZipCode: d.ZipCode,
	}
}
