package storage

import (
	"context"

	"trello-api/domain"
)

// Scoped binds a Store to a single requester so callers never pass the owner
// by hand. Boards come back with their lists and lists with their cards.
type Scoped struct {
	store Store
	owner string
}

// Scope returns a view of store restricted to owner. An empty owner sees everything.
func Scope(store Store, owner string) Scoped {
	return Scoped{store: store, owner: owner}
}

// Owner returns the requester the view is bound to.
func (s Scoped) Owner() string { return s.owner }

func (s Scoped) Boards(ctx context.Context) ([]domain.Board, error) {
	boards, err := s.store.ListBoards(ctx, s.owner)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Board, 0, len(boards))
	for _, b := range boards {
		if b, err = s.hydrateBoard(ctx, b); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (s Scoped) Board(ctx context.Context, id string) (domain.Board, error) {
	b, err := s.store.GetBoard(ctx, s.owner, id)
	if err != nil {
		return domain.Board{}, err
	}
	return s.hydrateBoard(ctx, b)
}

func (s Scoped) CreateBoard(ctx context.Context, name string) (domain.Board, error) {
	b := domain.NewBoard(name, s.owner)
	if err := s.store.CreateBoard(ctx, b.Flat()); err != nil {
		return domain.Board{}, err
	}
	return b, nil
}

func (s Scoped) UpdateBoard(ctx context.Context, id, name string) error {
	return s.store.UpdateBoard(ctx, s.owner, id, name)
}

func (s Scoped) DeleteBoard(ctx context.Context, id string) (bool, error) {
	return s.store.DeleteBoard(ctx, s.owner, id)
}

// Lists returns the lists of a visible board, or domain.ErrNotFound.
func (s Scoped) Lists(ctx context.Context, boardID string) ([]domain.List, error) {
	if _, err := s.store.GetBoard(ctx, s.owner, boardID); err != nil {
		return nil, err
	}
	return s.hydrateLists(ctx, boardID)
}

func (s Scoped) List(ctx context.Context, id string) (domain.List, error) {
	l, err := s.store.GetList(ctx, s.owner, id)
	if err != nil {
		return domain.List{}, err
	}
	return s.hydrateList(ctx, l)
}

func (s Scoped) CreateList(ctx context.Context, boardID, title string) (domain.List, error) {
	l := domain.NewList(boardID, title, s.owner)
	if err := s.store.CreateList(ctx, l.Flat()); err != nil {
		return domain.List{}, err
	}
	return l, nil
}

func (s Scoped) UpdateList(ctx context.Context, id, title string) error {
	return s.store.UpdateList(ctx, s.owner, id, title)
}

func (s Scoped) DeleteList(ctx context.Context, id string) (bool, error) {
	return s.store.DeleteList(ctx, s.owner, id)
}

// Cards returns the cards of a visible list, or domain.ErrNotFound.
func (s Scoped) Cards(ctx context.Context, listID string) ([]domain.Card, error) {
	if _, err := s.store.GetList(ctx, s.owner, listID); err != nil {
		return nil, err
	}
	return s.cards(ctx, listID)
}

func (s Scoped) Card(ctx context.Context, id string) (domain.Card, error) {
	return s.store.GetCard(ctx, s.owner, id)
}

func (s Scoped) CreateCard(ctx context.Context, listID, text string) (domain.Card, error) {
	c := domain.NewCard(listID, text, s.owner)
	if err := s.store.CreateCard(ctx, c); err != nil {
		return domain.Card{}, err
	}
	return c, nil
}

func (s Scoped) UpdateCard(ctx context.Context, id, text string) error {
	return s.store.UpdateCard(ctx, s.owner, id, text)
}

func (s Scoped) DeleteCard(ctx context.Context, id string) (bool, error) {
	return s.store.DeleteCard(ctx, s.owner, id)
}

func (s Scoped) hydrateBoard(ctx context.Context, b domain.Board) (domain.Board, error) {
	lists, err := s.hydrateLists(ctx, b.ID)
	if err != nil {
		return domain.Board{}, err
	}
	b.Lists = lists
	return b, nil
}

func (s Scoped) hydrateLists(ctx context.Context, boardID string) ([]domain.List, error) {
	lists, err := s.store.ListLists(ctx, s.owner, boardID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.List, 0, len(lists))
	for _, l := range lists {
		if l, err = s.hydrateList(ctx, l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func (s Scoped) hydrateList(ctx context.Context, l domain.List) (domain.List, error) {
	cards, err := s.cards(ctx, l.ID)
	if err != nil {
		return domain.List{}, err
	}
	l.Cards = cards
	return l, nil
}

func (s Scoped) cards(ctx context.Context, listID string) ([]domain.Card, error) {
	cards, err := s.store.ListCards(ctx, s.owner, listID)
	if err != nil {
		return nil, err
	}
	if cards == nil {
		cards = []domain.Card{}
	}
	return cards, nil
}
