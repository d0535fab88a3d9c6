package storage

import (
	"context"
	"sync"

	"trello-api/domain"
)

// Memory keeps boards in process memory. Lists live inside their board and
// cards inside their list, so removing a parent drops its children with it.
// Lookups are linear scans; the first match wins.
type Memory struct {
	mu     sync.RWMutex
	boards []domain.Board
	users  map[string]domain.User
}

// NewMemory returns a store seeded with boards. Seeded entities are used as is.
func NewMemory(boards ...domain.Board) *Memory {
	m := &Memory{users: map[string]domain.User{}}
	for _, b := range boards {
		m.boards = append(m.boards, cloneBoard(b))
	}
	return m
}

func (m *Memory) Close() error { return nil }

func (m *Memory) ListBoards(_ context.Context, owner string) ([]domain.Board, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.Board{}
	for _, b := range m.boards {
		if domain.OwnedBy(b.OwnerID, owner) {
			out = append(out, b.Flat())
		}
	}
	return out, nil
}

func (m *Memory) GetBoard(_ context.Context, owner, id string) (domain.Board, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bi, ok := m.findBoard(owner, id)
	if !ok {
		return domain.Board{}, domain.ErrNotFound
	}
	return m.boards[bi].Flat(), nil
}

func (m *Memory) CreateBoard(_ context.Context, b domain.Board) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.Lists = []domain.List{}
	m.boards = append(m.boards, b)
	return nil
}

func (m *Memory) UpdateBoard(_ context.Context, owner, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bi, ok := m.findBoard(owner, id)
	if !ok {
		return domain.ErrNotFound
	}
	m.boards[bi].Name = name
	return nil
}

func (m *Memory) DeleteBoard(_ context.Context, owner, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bi, ok := m.findBoard(owner, id)
	if !ok {
		return false, nil
	}
	m.boards = append(m.boards[:bi], m.boards[bi+1:]...)
	return true, nil
}

func (m *Memory) ListLists(_ context.Context, owner, boardID string) ([]domain.List, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.List{}
	bi, ok := m.findBoard(owner, boardID)
	if !ok {
		return out, nil
	}
	for _, l := range m.boards[bi].Lists {
		if domain.OwnedBy(l.OwnerID, owner) {
			out = append(out, l.Flat())
		}
	}
	return out, nil
}

func (m *Memory) GetList(_ context.Context, owner, id string) (domain.List, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bi, li, ok := m.findList(owner, id)
	if !ok {
		return domain.List{}, domain.ErrNotFound
	}
	return m.boards[bi].Lists[li].Flat(), nil
}

func (m *Memory) CreateList(_ context.Context, l domain.List) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bi, ok := m.findBoard(l.OwnerID, l.BoardID)
	if !ok {
		return domain.ErrNotFound
	}
	l.Cards = []domain.Card{}
	m.boards[bi].Lists = append(m.boards[bi].Lists, l)
	return nil
}

func (m *Memory) UpdateList(_ context.Context, owner, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bi, li, ok := m.findList(owner, id)
	if !ok {
		return domain.ErrNotFound
	}
	m.boards[bi].Lists[li].Title = title
	return nil
}

func (m *Memory) DeleteList(_ context.Context, owner, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bi, li, ok := m.findList(owner, id)
	if !ok {
		return false, nil
	}
	lists := m.boards[bi].Lists
	m.boards[bi].Lists = append(lists[:li], lists[li+1:]...)
	return true, nil
}

func (m *Memory) ListCards(_ context.Context, owner, listID string) ([]domain.Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.Card{}
	bi, li, ok := m.findList(owner, listID)
	if !ok {
		return out, nil
	}
	for _, c := range m.boards[bi].Lists[li].Cards {
		if domain.OwnedBy(c.OwnerID, owner) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) GetCard(_ context.Context, owner, id string) (domain.Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bi, li, ci, ok := m.findCard(owner, id)
	if !ok {
		return domain.Card{}, domain.ErrNotFound
	}
	return m.boards[bi].Lists[li].Cards[ci], nil
}

func (m *Memory) CreateCard(_ context.Context, c domain.Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bi, li, ok := m.findList(c.OwnerID, c.ListID)
	if !ok {
		return domain.ErrNotFound
	}
	l := &m.boards[bi].Lists[li]
	l.Cards = append(l.Cards, c)
	return nil
}

func (m *Memory) UpdateCard(_ context.Context, owner, id, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bi, li, ci, ok := m.findCard(owner, id)
	if !ok {
		return domain.ErrNotFound
	}
	m.boards[bi].Lists[li].Cards[ci].Text = text
	return nil
}

func (m *Memory) DeleteCard(_ context.Context, owner, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bi, li, ci, ok := m.findCard(owner, id)
	if !ok {
		return false, nil
	}
	l := &m.boards[bi].Lists[li]
	l.Cards = append(l.Cards[:ci], l.Cards[ci+1:]...)
	return true, nil
}

func (m *Memory) CreateUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.users[u.Username]; taken {
		return domain.ErrConflict
	}
	m.users[u.Username] = u
	return nil
}

func (m *Memory) UserByUsername(_ context.Context, username string) (domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

// findBoard must be called with m.mu held.
func (m *Memory) findBoard(owner, id string) (int, bool) {
	for i, b := range m.boards {
		if b.ID == id && domain.OwnedBy(b.OwnerID, owner) {
			return i, true
		}
	}
	return 0, false
}

// findList must be called with m.mu held.
func (m *Memory) findList(owner, id string) (int, int, bool) {
	for bi, b := range m.boards {
		for li, l := range b.Lists {
			if l.ID == id && domain.OwnedBy(l.OwnerID, owner) {
				return bi, li, true
			}
		}
	}
	return 0, 0, false
}

// findCard must be called with m.mu held.
func (m *Memory) findCard(owner, id string) (int, int, int, bool) {
	for bi, b := range m.boards {
		for li, l := range b.Lists {
			for ci, c := range l.Cards {
				if c.ID == id && domain.OwnedBy(c.OwnerID, owner) {
					return bi, li, ci, true
				}
			}
		}
	}
	return 0, 0, 0, false
}

func cloneBoard(b domain.Board) domain.Board {
	lists := make([]domain.List, 0, len(b.Lists))
	for _, l := range b.Lists {
		l.Cards = append([]domain.Card{}, l.Cards...)
		lists = append(lists, l)
	}
	b.Lists = lists
	return b
}
