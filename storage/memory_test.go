package storage

import (
	"context"
	"sync"
	"testing"

	"trello-api/domain"
)

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Backend { return NewMemory() })
}

func TestMemorySeedIsCopied(t *testing.T) {
	seed := domain.NewBoard("seed", "")
	seed.Lists = append(seed.Lists, domain.NewList(seed.ID, "l", ""))
	m := NewMemory(seed)
	seed.Lists[0].Title = "mutated"

	l, err := m.GetList(context.Background(), "", seed.Lists[0].ID)
	if err != nil {
		t.Fatalf("get list: %v", err)
	}
	if l.Title != "l" {
		t.Fatalf("store shares memory with its seed: %q", l.Title)
	}
}

func TestMemoryDeleteBoardDropsChildren(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	b := domain.NewBoard("b", "")
	_ = m.CreateBoard(ctx, b.Flat())
	l := domain.NewList(b.ID, "l", "")
	_ = m.CreateList(ctx, l.Flat())

	if removed, _ := m.DeleteBoard(ctx, "", b.ID); !removed {
		t.Fatal("expected board removed")
	}
	if _, err := m.GetList(ctx, "", l.ID); err == nil {
		t.Fatal("list should be gone with its board")
	}
}

func TestMemoryConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	b := domain.NewBoard("b", "u")
	_ = m.CreateBoard(ctx, b.Flat())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := domain.NewList(b.ID, "l", "u")
			if err := m.CreateList(ctx, l.Flat()); err != nil {
				t.Errorf("create list: %v", err)
			}
			_, _ = m.ListLists(ctx, "u", b.ID)
		}()
	}
	wg.Wait()

	lists, _ := m.ListLists(ctx, "u", b.ID)
	if len(lists) != 50 {
		t.Fatalf("expected 50 lists, got %d", len(lists))
	}
}
