package bot

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"dogfinder-bot/internal/model"
)

func formatDogLine(index int, dog model.DogRecord) string {
	name := html.EscapeString(dog.Name)
	if dog.Img != "" {
		name = fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(dog.Img), name)
	}
	return fmt.Sprintf("%d. %s, %s, %s, %s",
		index, name, html.EscapeString(dog.Breed), formatAge(dog.Age), html.EscapeString(dog.ZipCode))
}

func formatDogCaption(dog model.DogRecord) string {
	caption := fmt.Sprintf("🐶 %s\n%s, %s\n📍 %s", dog.Name, dog.Breed, formatAge(dog.Age), dog.ZipCode)
	return truncate(caption, telegramCaptionLimit)
}

// truncate shortens s to at most limit bytes, ending with "..." and never
// splitting a character.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - len("...")
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func formatAge(age int) string {
	switch {
	case age%10 == 1 && age%100 != 11:
		return fmt.Sprintf("%d год", age)
	case age%10 >= 2 && age%10 <= 4 && (age%100 < 12 || age%100 > 14):
		return fmt.Sprintf("%d года", age)
	default:
		return fmt.Sprintf("%d лет", age)
	}
}

func formatResultsHeader(results model.SearchResults, shown int) string {
	return fmt.Sprintf("Найдено собак: %d, на странице: %d", results.Total, shown)
}

func formatFilters(f model.SearchFilters) string {
	var lines []string
	if len(f.Breeds) > 0 {
		lines = append(lines, "Породы: "+strings.Join(f.Breeds, ", "))
	}
	if len(f.ZipCodes) > 0 {
		lines = append(lines, "Индексы: "+strings.Join(f.ZipCodes, ", "))
	}
	if f.AgeMin != nil {
		lines = append(lines, fmt.Sprintf("Возраст от: %d", *f.AgeMin))
	}
	if f.AgeMax != nil {
		lines = append(lines, fmt.Sprintf("Возраст до: %d", *f.AgeMax))
	}
	if f.Sort != "" {
		lines = append(lines, "Сортировка: "+f.Sort)
	}
	if f.Size != nil {
		lines = append(lines, fmt.Sprintf("На странице: %d", *f.Size))
	}
	if len(lines) == 0 {
		return "не заданы"
	}
	return strings.Join(lines, "\n")
}

// chunkLines joins lines into messages no longer than limit bytes.
func chunkLines(lines []string, limit int) []string {
	var chunks []string
	var current strings.Builder
	for _, line := range lines {
		if current.Len() > 0 && current.Len()+1+len(line) > limit {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
