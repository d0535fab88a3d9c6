package storage

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"trello-api/domain"
)

type fixtureFile struct {
	Boards []fixtureBoard `yaml:"boards"`
}

type fixtureBoard struct {
	ID      string        `yaml:"id"`
	Name    string        `yaml:"name"`
	OwnerID string        `yaml:"ownerId"`
	Lists   []fixtureList `yaml:"lists"`
}

type fixtureList struct {
	ID    string        `yaml:"id"`
	Title string        `yaml:"title"`
	Cards []fixtureCard `yaml:"cards"`
}

type fixtureCard struct {
	ID   string `yaml:"id"`
	Text string `yaml:"text"`
}

// LoadFixtures reads seed boards from a YAML file. Missing ids are generated and
// children inherit the owner and parent id of the entity they are nested in.
func LoadFixtures(path string) ([]domain.Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixtures: %w", err)
	}
	return ParseFixtures(data)
}

// ParseFixtures decodes YAML seed data. See LoadFixtures. Ids must be unique
// across boards, lists and cards.
func ParseFixtures(data []byte) ([]domain.Board, error) {
	var f fixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing fixtures: %w", err)
	}
	boards := make([]domain.Board, 0, len(f.Boards))
	seen := make(map[string]string)
	assign := func(kind, id string) (string, error) {
		if id == "" {
			return uuid.NewString(), nil
		}
		if prev, ok := seen[id]; ok {
			return "", fmt.Errorf("fixture %s %q: id already used by a %s", kind, id, prev)
		}
		seen[id] = kind
		return id, nil
	}
	for _, fb := range f.Boards {
		if fb.Name == "" {
			return nil, fmt.Errorf("fixture board %q: name is required", fb.ID)
		}
		id, err := assign("board", fb.ID)
		if err != nil {
			return nil, err
		}
		b := domain.Board{ID: id, Name: fb.Name, OwnerID: fb.OwnerID, Lists: []domain.List{}}
		for _, fl := range fb.Lists {
			if fl.Title == "" {
				return nil, fmt.Errorf("fixture list %q: title is required", fl.ID)
			}
			id, err := assign("list", fl.ID)
			if err != nil {
				return nil, err
			}
			l := domain.List{ID: id, Title: fl.Title, OwnerID: b.OwnerID, BoardID: b.ID, Cards: []domain.Card{}}
			for _, fc := range fl.Cards {
				if fc.Text == "" {
					return nil, fmt.Errorf("fixture card %q: text is required", fc.ID)
				}
				id, err := assign("card", fc.ID)
				if err != nil {
					return nil, err
				}
				l.Cards = append(l.Cards, domain.Card{ID: id, Text: fc.Text, OwnerID: b.OwnerID, ListID: l.ID})
			}
			b.Lists = append(b.Lists, l)
		}
		boards = append(boards, b)
	}
	return boards, nil
}
