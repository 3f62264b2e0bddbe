package bot

import (
	"fmt"
	"strconv"
	"strings"

	"dogfinder-bot/internal/model"
)

const filtersUsage = "Формат фильтров (все поля необязательны):\n" +
	"breeds=Beagle,German Shepherd zip=10001,10002 age=2-8 size=25 sort=breed:asc\n\n" +
	"age можно задать как age=2-8, age=2-, age=-8 или agemin=2 agemax=8.\n" +
	"Чтобы искать без фильтров, отправьте «все»."

// ParseFilters reads "key=value" pairs. Words without "=" continue the previous
// value, so breed names with spaces need no quoting. Only the shape is checked
// here; out of range values are left for the service to reject.
func ParseFilters(text string) (model.SearchFilters, error) {
	filters := model.NewSearchFilters()
	text = strings.TrimSpace(text)
	if text == "" || strings.EqualFold(text, "все") || strings.EqualFold(text, "all") {
		return filters, nil
	}

	type pair struct{ key, value string }
	var pairs []pair
	for _, token := range strings.Fields(text) {
		if k, v, ok := strings.Cut(token, "="); ok {
			pairs = append(pairs, pair{key: strings.ToLower(k), value: v})
			continue
		}
		if len(pairs) == 0 {
			return filters, fmt.Errorf("ожидалось ключ=значение, получено %q", token)
		}
		pairs[len(pairs)-1].value += " " + token
	}

	for _, p := range pairs {
		switch p.key {
		case "breeds", "breed":
			filters.Breeds = splitList(p.value)
		case "zip", "zips", "zipcodes":
			filters.ZipCodes = splitList(p.value)
		case "age":
			lo, hi, err := parseAgeRange(p.value)
			if err != nil {
				return filters, err
			}
			filters.AgeMin, filters.AgeMax = lo, hi
		case "agemin":
			v, err := parseInt(p.key, p.value)
			if err != nil {
				return filters, err
			}
			filters.AgeMin = &v
		case "agemax":
			v, err := parseInt(p.key, p.value)
			if err != nil {
				return filters, err
			}
			filters.AgeMax = &v
		case "size":
			v, err := parseInt(p.key, p.value)
			if err != nil {
				return filters, err
			}
			filters.Size = &v
		case "sort":
			filters.Sort = strings.TrimSpace(p.value)
		default:
			return filters, fmt.Errorf("неизвестный фильтр %q", p.key)
		}
	}
	return filters, nil
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseInt(key, value string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s: %q не число", key, value)
	}
	return v, nil
}

func parseAgeRange(value string) (*int, *int, error) {
	value = strings.TrimSpace(value)
	lo, hi, isRange := strings.Cut(value, "-")
	if !isRange {
		v, err := parseInt("age", value)
		if err != nil {
			return nil, nil, err
		}
		exact := v
		return &v, &exact, nil
	}

	var from, to *int
	if lo != "" {
		v, err := parseInt("age", lo)
		if err != nil {
			return nil, nil, err
		}
		from = &v
	}
	if hi != "" {
		v, err := parseInt("age", hi)
		if err != nil {
			return nil, nil, err
		}
		to = &v
	}
	return from, to, nil
}
