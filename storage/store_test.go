package storage

import (
	"context"
	"errors"
	"testing"

	"trello-api/domain"
)

// runStoreSuite exercises the behaviour every Backend must share.
func runStoreSuite(t *testing.T, newBackend func(t *testing.T) Backend) {
	t.Run("boards", func(t *testing.T) { testBoards(t, newBackend(t)) })
	t.Run("lists", func(t *testing.T) { testLists(t, newBackend(t)) })
	t.Run("cards", func(t *testing.T) { testCards(t, newBackend(t)) })
	t.Run("unowned", func(t *testing.T) { testUnowned(t, newBackend(t)) })
	t.Run("users", func(t *testing.T) { testUsers(t, newBackend(t)) })
	t.Run("suffixedIDs", func(t *testing.T) { testSuffixedIDs(t, newBackend(t)) })
}

func testBoards(t *testing.T, s Backend) {
	ctx := context.Background()
	first := domain.NewBoard("first", "alice")
	second := domain.NewBoard("second", "alice")
	foreign := domain.NewBoard("foreign", "bob")
	for _, b := range []domain.Board{first, second, foreign} {
		if err := s.CreateBoard(ctx, b.Flat()); err != nil {
			t.Fatalf("create board: %v", err)
		}
	}

	boards, err := s.ListBoards(ctx, "alice")
	if err != nil {
		t.Fatalf("list boards: %v", err)
	}
	if len(boards) != 2 || boards[0].ID != first.ID || boards[1].ID != second.ID {
		t.Fatalf("unexpected boards for alice: %+v", boards)
	}
	all, err := s.ListBoards(ctx, "")
	if err != nil {
		t.Fatalf("list all boards: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 boards without scoping, got %d", len(all))
	}

	got, err := s.GetBoard(ctx, "alice", first.ID)
	if err != nil {
		t.Fatalf("get board: %v", err)
	}
	if got.Name != "first" || got.OwnerID != "alice" {
		t.Fatalf("unexpected board: %+v", got)
	}
	if _, err := s.GetBoard(ctx, "alice", foreign.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign board should be hidden, got %v", err)
	}
	if _, err := s.GetBoard(ctx, "alice", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := s.UpdateBoard(ctx, "alice", first.ID, "renamed"); err != nil {
		t.Fatalf("update board: %v", err)
	}
	if got, _ := s.GetBoard(ctx, "alice", first.ID); got.Name != "renamed" {
		t.Fatalf("expected renamed board, got %q", got.Name)
	}
	if err := s.UpdateBoard(ctx, "alice", foreign.ID, "stolen"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("updating a foreign board should fail with not found, got %v", err)
	}
	if got, _ := s.GetBoard(ctx, "bob", foreign.ID); got.Name != "foreign" {
		t.Fatalf("foreign board changed: %q", got.Name)
	}

	if removed, err := s.DeleteBoard(ctx, "alice", foreign.ID); err != nil || removed {
		t.Fatalf("foreign delete: removed=%v err=%v", removed, err)
	}
	if removed, err := s.DeleteBoard(ctx, "alice", first.ID); err != nil || !removed {
		t.Fatalf("delete: removed=%v err=%v", removed, err)
	}
	if removed, err := s.DeleteBoard(ctx, "alice", first.ID); err != nil || removed {
		t.Fatalf("second delete: removed=%v err=%v", removed, err)
	}
	if _, err := s.GetBoard(ctx, "alice", first.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("deleted board still visible: %v", err)
	}
	boards, _ = s.ListBoards(ctx, "alice")
	if len(boards) != 1 || boards[0].ID != second.ID {
		t.Fatalf("unexpected boards after delete: %+v", boards)
	}
}

func testLists(t *testing.T, s Backend) {
	ctx := context.Background()
	board := domain.NewBoard("b", "alice")
	other := domain.NewBoard("other", "bob")
	for _, b := range []domain.Board{board, other} {
		if err := s.CreateBoard(ctx, b.Flat()); err != nil {
			t.Fatalf("create board: %v", err)
		}
	}

	todo := domain.NewList(board.ID, "todo", "alice")
	done := domain.NewList(board.ID, "done", "alice")
	for _, l := range []domain.List{todo, done} {
		if err := s.CreateList(ctx, l.Flat()); err != nil {
			t.Fatalf("create list: %v", err)
		}
	}
	if err := s.CreateList(ctx, domain.NewList("missing", "x", "alice").Flat()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("list under missing board: %v", err)
	}
	if err := s.CreateList(ctx, domain.NewList(other.ID, "x", "alice").Flat()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("list under foreign board: %v", err)
	}

	lists, err := s.ListLists(ctx, "alice", board.ID)
	if err != nil {
		t.Fatalf("list lists: %v", err)
	}
	if len(lists) != 2 || lists[0].ID != todo.ID || lists[1].ID != done.ID {
		t.Fatalf("unexpected lists: %+v", lists)
	}
	if lists[0].BoardID != board.ID {
		t.Fatalf("expected board id %s, got %s", board.ID, lists[0].BoardID)
	}
	if lists, _ := s.ListLists(ctx, "bob", board.ID); len(lists) != 0 {
		t.Fatalf("bob should not see alice's lists: %+v", lists)
	}

	if err := s.UpdateList(ctx, "alice", todo.ID, "doing"); err != nil {
		t.Fatalf("update list: %v", err)
	}
	got, err := s.GetList(ctx, "alice", todo.ID)
	if err != nil || got.Title != "doing" {
		t.Fatalf("get list: %+v %v", got, err)
	}
	if err := s.UpdateList(ctx, "bob", todo.ID, "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign update: %v", err)
	}
	if _, err := s.GetList(ctx, "bob", todo.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign get: %v", err)
	}

	if removed, err := s.DeleteList(ctx, "bob", todo.ID); err != nil || removed {
		t.Fatalf("foreign delete: removed=%v err=%v", removed, err)
	}
	if removed, err := s.DeleteList(ctx, "alice", todo.ID); err != nil || !removed {
		t.Fatalf("delete: removed=%v err=%v", removed, err)
	}
	lists, _ = s.ListLists(ctx, "alice", board.ID)
	if len(lists) != 1 || lists[0].ID != done.ID {
		t.Fatalf("unexpected lists after delete: %+v", lists)
	}
}

func testCards(t *testing.T, s Backend) {
	ctx := context.Background()
	board := domain.NewBoard("b", "alice")
	if err := s.CreateBoard(ctx, board.Flat()); err != nil {
		t.Fatalf("create board: %v", err)
	}
	list := domain.NewList(board.ID, "todo", "alice")
	if err := s.CreateList(ctx, list.Flat()); err != nil {
		t.Fatalf("create list: %v", err)
	}

	a := domain.NewCard(list.ID, "a", "alice")
	b := domain.NewCard(list.ID, "b", "alice")
	for _, c := range []domain.Card{a, b} {
		if err := s.CreateCard(ctx, c); err != nil {
			t.Fatalf("create card: %v", err)
		}
	}
	if err := s.CreateCard(ctx, domain.NewCard(list.ID, "c", "bob")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("card under foreign list: %v", err)
	}
	if err := s.CreateCard(ctx, domain.NewCard("missing", "c", "alice")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("card under missing list: %v", err)
	}

	cards, err := s.ListCards(ctx, "alice", list.ID)
	if err != nil {
		t.Fatalf("list cards: %v", err)
	}
	if len(cards) != 2 || cards[0].ID != a.ID || cards[1].ID != b.ID {
		t.Fatalf("unexpected cards: %+v", cards)
	}

	if err := s.UpdateCard(ctx, "alice", a.ID, "changed"); err != nil {
		t.Fatalf("update card: %v", err)
	}
	got, err := s.GetCard(ctx, "alice", a.ID)
	if err != nil || got.Text != "changed" || got.ListID != list.ID {
		t.Fatalf("get card: %+v %v", got, err)
	}
	if err := s.UpdateCard(ctx, "alice", "missing", "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing update: %v", err)
	}

	if removed, err := s.DeleteCard(ctx, "alice", a.ID); err != nil || !removed {
		t.Fatalf("delete: removed=%v err=%v", removed, err)
	}
	if removed, err := s.DeleteCard(ctx, "alice", a.ID); err != nil || removed {
		t.Fatalf("second delete: removed=%v err=%v", removed, err)
	}
	if _, err := s.GetCard(ctx, "alice", a.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("deleted card still visible: %v", err)
	}
}

func testUnowned(t *testing.T, s Backend) {
	ctx := context.Background()
	shared := domain.NewBoard("shared", "")
	if err := s.CreateBoard(ctx, shared.Flat()); err != nil {
		t.Fatalf("create board: %v", err)
	}
	if _, err := s.GetBoard(ctx, "", shared.ID); err != nil {
		t.Fatalf("unscoped get: %v", err)
	}
	if _, err := s.GetBoard(ctx, "alice", shared.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unowned board should be hidden from alice, got %v", err)
	}
	list := domain.NewList(shared.ID, "l", "")
	if err := s.CreateList(ctx, list.Flat()); err != nil {
		t.Fatalf("create list: %v", err)
	}
	if err := s.UpdateList(ctx, "", list.ID, "renamed"); err != nil {
		t.Fatalf("unscoped update: %v", err)
	}
	if removed, err := s.DeleteList(ctx, "", list.ID); err != nil || !removed {
		t.Fatalf("unscoped delete: removed=%v err=%v", removed, err)
	}
}

func testUsers(t *testing.T, s Backend) {
	ctx := context.Background()
	u := domain.NewUser("ada", "Ada", "Lovelace", "hash")
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.CreateUser(ctx, domain.NewUser("ada", "", "", "other")); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	got, err := s.UserByUsername(ctx, "ada")
	if err != nil {
		t.Fatalf("user by username: %v", err)
	}
	if got.ID != u.ID || got.PasswordHash != "hash" || got.FirstName != "Ada" {
		t.Fatalf("unexpected user: %+v", got)
	}
	if _, err := s.UserByUsername(ctx, "nobody"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// testSuffixedIDs looks up ids that extend a real id with an index-like suffix.
func testSuffixedIDs(t *testing.T, s Backend) {
	ctx := context.Background()
	board := domain.NewBoard("b", "alice")
	if err := s.CreateBoard(ctx, board.Flat()); err != nil {
		t.Fatalf("create board: %v", err)
	}
	list := domain.NewList(board.ID, "todo", "alice")
	if err := s.CreateList(ctx, list.Flat()); err != nil {
		t.Fatalf("create list: %v", err)
	}
	if err := s.CreateCard(ctx, domain.NewCard(list.ID, "a", "alice")); err != nil {
		t.Fatalf("create card: %v", err)
	}

	boardID := board.ID + ":lists"
	if _, err := s.GetBoard(ctx, "alice", boardID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get %s: %v", boardID, err)
	}
	if err := s.UpdateBoard(ctx, "alice", boardID, "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("update %s: %v", boardID, err)
	}
	if removed, err := s.DeleteBoard(ctx, "alice", boardID); err != nil || removed {
		t.Fatalf("delete %s: removed=%v err=%v", boardID, removed, err)
	}
	if lists, err := s.ListLists(ctx, "alice", boardID); err != nil || len(lists) != 0 {
		t.Fatalf("lists of %s: %+v %v", boardID, lists, err)
	}

	listID := list.ID + ":cards"
	if _, err := s.GetList(ctx, "alice", listID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get %s: %v", listID, err)
	}
	if err := s.UpdateList(ctx, "alice", listID, "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("update %s: %v", listID, err)
	}
	if removed, err := s.DeleteList(ctx, "alice", listID); err != nil || removed {
		t.Fatalf("delete %s: removed=%v err=%v", listID, removed, err)
	}
	if err := s.CreateCard(ctx, domain.NewCard(listID, "b", "alice")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("card under %s: %v", listID, err)
	}
	if cards, err := s.ListCards(ctx, "alice", list.ID); err != nil || len(cards) != 1 {
		t.Fatalf("cards of %s: %+v %v", list.ID, cards, err)
	}
}
