package storage

import (
	"context"
	"errors"
	"testing"

	"trello-api/domain"
)

func TestScopedNestsChildren(t *testing.T) {
	ctx := context.Background()
	s := Scope(NewMemory(), "alice")

	b, err := s.CreateBoard(ctx, "plan")
	if err != nil {
		t.Fatalf("create board: %v", err)
	}
	if b.OwnerID != "alice" || b.Lists == nil {
		t.Fatalf("unexpected board: %+v", b)
	}
	l, err := s.CreateList(ctx, b.ID, "todo")
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	if _, err := s.CreateCard(ctx, l.ID, "write tests"); err != nil {
		t.Fatalf("create card: %v", err)
	}
	empty, err := s.CreateList(ctx, b.ID, "done")
	if err != nil {
		t.Fatalf("create list: %v", err)
	}

	got, err := s.Board(ctx, b.ID)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if len(got.Lists) != 2 || len(got.Lists[0].Cards) != 1 {
		t.Fatalf("unexpected nesting: %+v", got)
	}
	if got.Lists[1].ID != empty.ID || got.Lists[1].Cards == nil {
		t.Fatalf("empty list should carry an empty card slice: %+v", got.Lists[1])
	}

	boards, err := s.Boards(ctx)
	if err != nil || len(boards) != 1 || len(boards[0].Lists) != 2 {
		t.Fatalf("boards: %+v %v", boards, err)
	}
}

func TestScopedHidesForeignEntities(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	alice := Scope(store, "alice")
	bob := Scope(store, "bob")

	b, _ := alice.CreateBoard(ctx, "mine")
	l, _ := alice.CreateList(ctx, b.ID, "todo")

	if _, err := bob.Board(ctx, b.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := bob.Lists(ctx, b.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := bob.Cards(ctx, l.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := bob.CreateList(ctx, b.ID, "sneaky"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if boards, _ := bob.Boards(ctx); len(boards) != 0 {
		t.Fatalf("bob sees alice's boards: %+v", boards)
	}
	if removed, _ := bob.DeleteBoard(ctx, b.ID); removed {
		t.Fatal("bob removed alice's board")
	}
}

func TestScopedListsOfMissingBoard(t *testing.T) {
	s := Scope(NewMemory(), "")
	if _, err := s.Lists(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.Cards(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestScopedEmptyCollections(t *testing.T) {
	ctx := context.Background()
	s := Scope(NewMemory(), "")
	b, _ := s.CreateBoard(ctx, "b")
	l, _ := s.CreateList(ctx, b.ID, "l")

	lists, err := s.Lists(ctx, b.ID)
	if err != nil || lists == nil {
		t.Fatalf("lists: %v %v", lists, err)
	}
	cards, err := s.Cards(ctx, l.ID)
	if err != nil || cards == nil || len(cards) != 0 {
		t.Fatalf("cards: %v %v", cards, err)
	}
	boards, _ := Scope(NewMemory(), "").Boards(ctx)
	if boards == nil {
		t.Fatal("boards should be an empty slice, not nil")
	}
}
