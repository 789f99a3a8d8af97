// Package seed reads question banks from YAML files.
package seed

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"trivia-quiz-service/internal/domain"
)

// Bank is the content of a seed file.
type Bank struct {
	Categories []domain.Category `yaml:"categories"`
	Questions  []domain.Question `yaml:"questions"`
	Players    []domain.Player   `yaml:"players"`
}

// Load reads and validates a seed file.
func Load(path string) (Bank, error) {
	f, err := os.Open(path)
	if err != nil {
		return Bank{}, err
	}
	defer f.Close()

	bank, err := Parse(f)
	if err != nil {
		return Bank{}, fmt.Errorf("seed %s: %w", path, err)
	}
	return bank, nil
}

// Parse decodes a seed document. Difficulty defaults to 1 and rating to 3; both must lie in 1-5.
func Parse(r io.Reader) (Bank, error) {
	var bank Bank
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&bank); err != nil {
		return Bank{}, fmt.Errorf("decode: %w", err)
	}

	categories := make(map[int64]bool, len(bank.Categories))
	names := make(map[string]bool, len(bank.Categories))
	for _, c := range bank.Categories {
		if c.ID <= 0 {
			return Bank{}, fmt.Errorf("category %q: id must be positive", c.Name)
		}
		if categories[c.ID] {
			return Bank{}, fmt.Errorf("category %d: duplicate id", c.ID)
		}
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || names[name] {
			return Bank{}, fmt.Errorf("category %d: missing or duplicate name %q", c.ID, c.Name)
		}
		categories[c.ID] = true
		names[name] = true
	}

	questions := make(map[int64]bool, len(bank.Questions))
	for i := range bank.Questions {
		q := &bank.Questions[i]
		if questions[q.ID] {
			return Bank{}, fmt.Errorf("question %d: duplicate id", q.ID)
		}
		questions[q.ID] = true
		if !categories[q.CategoryID] {
			return Bank{}, fmt.Errorf("question %d: %w: %d", q.ID, domain.ErrCategoryNotFound, q.CategoryID)
		}
		if q.Difficulty == 0 {
			q.Difficulty = 1
		}
		if q.Rating == 0 {
			q.Rating = 3
		}
		if q.Difficulty < 1 || q.Difficulty > 5 {
			return Bank{}, fmt.Errorf("question %d: difficulty %d out of range 1-5", q.ID, q.Difficulty)
		}
		if q.Rating < 1 || q.Rating > 5 {
			return Bank{}, fmt.Errorf("question %d: rating %d out of range 1-5", q.ID, q.Rating)
		}
	}
	usernames := make(map[string]bool, len(bank.Players))
	for _, p := range bank.Players {
		if p.Username == "" || usernames[p.Username] {
			return Bank{}, fmt.Errorf("player %d: missing or duplicate username %q", p.ID, p.Username)
		}
		usernames[p.Username] = true
	}
	return bank, nil
}
