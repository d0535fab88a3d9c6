package storage

import (
	"context"

	"trello-api/domain"
)

// Store persists boards, lists and cards. Every method takes the owner the
// operation is scoped to; an empty owner disables scoping. Entities owned by
// somebody else behave exactly like missing ones.
//
// Get and Update methods return domain.ErrNotFound when nothing matches.
// Delete methods report whether an entity was removed. Reads return flat
// entities; children are attached by Scoped.
type Store interface {
	ListBoards(ctx context.Context, owner string) ([]domain.Board, error)
	GetBoard(ctx context.Context, owner, id string) (domain.Board, error)
	CreateBoard(ctx context.Context, b domain.Board) error
	UpdateBoard(ctx context.Context, owner, id, name string) error
	DeleteBoard(ctx context.Context, owner, id string) (bool, error)

	ListLists(ctx context.Context, owner, boardID string) ([]domain.List, error)
	GetList(ctx context.Context, owner, id string) (domain.List, error)
	// CreateList returns domain.ErrNotFound when the parent board is not visible to l.OwnerID.
	CreateList(ctx context.Context, l domain.List) error
	UpdateList(ctx context.Context, owner, id, title string) error
	DeleteList(ctx context.Context, owner, id string) (bool, error)

	ListCards(ctx context.Context, owner, listID string) ([]domain.Card, error)
	GetCard(ctx context.Context, owner, id string) (domain.Card, error)
	// CreateCard returns domain.ErrNotFound when the parent list is not visible to c.OwnerID.
	CreateCard(ctx context.Context, c domain.Card) error
	UpdateCard(ctx context.Context, owner, id, text string) error
	DeleteCard(ctx context.Context, owner, id string) (bool, error)
}

// UserStore persists registered accounts.
type UserStore interface {
	// CreateUser returns domain.ErrConflict when the username is taken.
	CreateUser(ctx context.Context, u domain.User) error
	// UserByUsername returns domain.ErrNotFound for unknown usernames.
	UserByUsername(ctx context.Context, username string) (domain.User, error)
}

// Pinger is implemented by backends that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Backend is a complete persistence implementation.
type Backend interface {
	Store
	UserStore
	Close() error
}
