package domain

import "github.com/google/uuid"

// Board is the top-level container. Lists is populated on reads only.
type Board struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"ownerId,omitempty"`
	Lists   []List `json:"lists"`
}

// List belongs to exactly one board and holds cards.
type List struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	OwnerID string `json:"ownerId,omitempty"`
	BoardID string `json:"boardId"`
	Cards   []Card `json:"cards"`
}

// Card is a leaf entity belonging to exactly one list.
type Card struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	OwnerID string `json:"ownerId,omitempty"`
	ListID  string `json:"listId"`
}

// NewBoard creates a board with a freshly generated identifier.
func NewBoard(name, ownerID string) Board {
	return Board{ID: uuid.NewString(), Name: name, OwnerID: ownerID, Lists: []List{}}
}

// NewList creates a list under boardID with a freshly generated identifier.
func NewList(boardID, title, ownerID string) List {
	return List{ID: uuid.NewString(), Title: title, OwnerID: ownerID, BoardID: boardID, Cards: []Card{}}
}

// NewCard creates a card under listID with a freshly generated identifier.
func NewCard(listID, text, ownerID string) Card {
	return Card{ID: uuid.NewString(), Text: text, OwnerID: ownerID, ListID: listID}
}

// Flat returns a copy of the board without its lists.
func (b Board) Flat() Board {
	b.Lists = nil
	return b
}

// Flat returns a copy of the list without its cards.
func (l List) Flat() List {
	l.Cards = nil
	return l
}

// OwnedBy reports whether the entity is visible to owner. An empty owner sees everything.
func OwnedBy(entityOwner, owner string) bool {
	return owner == "" || entityOwner == owner
}
