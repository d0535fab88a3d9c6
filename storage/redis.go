package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"trello-api/domain"
)

const redisWatchRetries = 8

// Redis stores every entity as a JSON document and keeps parent and owner
// indexes as sorted sets ordered by creation time.
//
//	board:doc:<id>        board document
//	boards                all board ids
//	boards:owner:<owner>  board ids of one owner
//	board:lists:<id>      list ids of one board
//	list:doc:<id>         list document
//	list:cards:<id>       card ids of one list
//	card:doc:<id>         card document
//	user:<username>       user document
//
// Ids come from request paths, so documents and indexes never share a prefix.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an existing client. The store closes the client on Close.
func NewRedis(client *redis.Client) *Redis {
	if client == nil {
		panic("storage.NewRedis: client is nil")
	}
	return &Redis{client: client}
}

func (r *Redis) Close() error { return r.client.Close() }

func (r *Redis) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *Redis) ListBoards(ctx context.Context, owner string) ([]domain.Board, error) {
	index := boardsKey
	if owner != "" {
		index = ownerBoardsKey(owner)
	}
	return redisMembers[domain.Board](ctx, r.client, index, boardKey, func(b domain.Board) bool {
		return domain.OwnedBy(b.OwnerID, owner)
	})
}

func (r *Redis) GetBoard(ctx context.Context, owner, id string) (domain.Board, error) {
	b, ok, err := redisDoc[domain.Board](ctx, r.client, boardKey(id))
	if err != nil {
		return domain.Board{}, err
	}
	if !ok || !domain.OwnedBy(b.OwnerID, owner) {
		return domain.Board{}, domain.ErrNotFound
	}
	return b, nil
}

func (r *Redis) CreateBoard(ctx context.Context, b domain.Board) error {
	data, err := json.Marshal(b.Flat())
	if err != nil {
		return err
	}
	member := redis.Z{Score: redisScore(), Member: b.ID}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, boardKey(b.ID), data, 0)
		pipe.ZAdd(ctx, boardsKey, member)
		if b.OwnerID != "" {
			pipe.ZAdd(ctx, ownerBoardsKey(b.OwnerID), member)
		}
		return nil
	})
	return err
}

func (r *Redis) UpdateBoard(ctx context.Context, owner, id, name string) error {
	return redisUpdate(ctx, r.client, boardKey(id), func(b *domain.Board) bool {
		if !domain.OwnedBy(b.OwnerID, owner) {
			return false
		}
		b.Name = name
		return true
	})
}

func (r *Redis) DeleteBoard(ctx context.Context, owner, id string) (bool, error) {
	return redisDelete(ctx, r.client, boardKey(id), func(b domain.Board) bool {
		return domain.OwnedBy(b.OwnerID, owner)
	}, func(b domain.Board, pipe redis.Pipeliner) {
		pipe.ZRem(ctx, boardsKey, b.ID)
		if b.OwnerID != "" {
			pipe.ZRem(ctx, ownerBoardsKey(b.OwnerID), b.ID)
		}
	})
}

func (r *Redis) ListLists(ctx context.Context, owner, boardID string) ([]domain.List, error) {
	return redisMembers[domain.List](ctx, r.client, boardListsKey(boardID), listKey, func(l domain.List) bool {
		return domain.OwnedBy(l.OwnerID, owner)
	})
}

func (r *Redis) GetList(ctx context.Context, owner, id string) (domain.List, error) {
	l, ok, err := redisDoc[domain.List](ctx, r.client, listKey(id))
	if err != nil {
		return domain.List{}, err
	}
	if !ok || !domain.OwnedBy(l.OwnerID, owner) {
		return domain.List{}, domain.ErrNotFound
	}
	return l, nil
}

func (r *Redis) CreateList(ctx context.Context, l domain.List) error {
	data, err := json.Marshal(l.Flat())
	if err != nil {
		return err
	}
	parent := boardKey(l.BoardID)
	return redisCreateChild[domain.Board](ctx, r.client, parent, func(b domain.Board) bool {
		return domain.OwnedBy(b.OwnerID, l.OwnerID)
	}, func(pipe redis.Pipeliner) {
		pipe.Set(ctx, listKey(l.ID), data, 0)
		pipe.ZAdd(ctx, boardListsKey(l.BoardID), redis.Z{Score: redisScore(), Member: l.ID})
	})
}

func (r *Redis) UpdateList(ctx context.Context, owner, id, title string) error {
	return redisUpdate(ctx, r.client, listKey(id), func(l *domain.List) bool {
		if !domain.OwnedBy(l.OwnerID, owner) {
			return false
		}
		l.Title = title
		return true
	})
}

func (r *Redis) DeleteList(ctx context.Context, owner, id string) (bool, error) {
	return redisDelete(ctx, r.client, listKey(id), func(l domain.List) bool {
		return domain.OwnedBy(l.OwnerID, owner)
	}, func(l domain.List, pipe redis.Pipeliner) {
		pipe.ZRem(ctx, boardListsKey(l.BoardID), l.ID)
	})
}

func (r *Redis) ListCards(ctx context.Context, owner, listID string) ([]domain.Card, error) {
	return redisMembers[domain.Card](ctx, r.client, listCardsKey(listID), cardKey, func(c domain.Card) bool {
		return domain.OwnedBy(c.OwnerID, owner)
	})
}

func (r *Redis) GetCard(ctx context.Context, owner, id string) (domain.Card, error) {
	c, ok, err := redisDoc[domain.Card](ctx, r.client, cardKey(id))
	if err != nil {
		return domain.Card{}, err
	}
	if !ok || !domain.OwnedBy(c.OwnerID, owner) {
		return domain.Card{}, domain.ErrNotFound
	}
	return c, nil
}

func (r *Redis) CreateCard(ctx context.Context, c domain.Card) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return redisCreateChild[domain.List](ctx, r.client, listKey(c.ListID), func(l domain.List) bool {
		return domain.OwnedBy(l.OwnerID, c.OwnerID)
	}, func(pipe redis.Pipeliner) {
		pipe.Set(ctx, cardKey(c.ID), data, 0)
		pipe.ZAdd(ctx, listCardsKey(c.ListID), redis.Z{Score: redisScore(), Member: c.ID})
	})
}

func (r *Redis) UpdateCard(ctx context.Context, owner, id, text string) error {
	return redisUpdate(ctx, r.client, cardKey(id), func(c *domain.Card) bool {
		if !domain.OwnedBy(c.OwnerID, owner) {
			return false
		}
		c.Text = text
		return true
	})
}

func (r *Redis) DeleteCard(ctx context.Context, owner, id string) (bool, error) {
	return redisDelete(ctx, r.client, cardKey(id), func(c domain.Card) bool {
		return domain.OwnedBy(c.OwnerID, owner)
	}, func(c domain.Card, pipe redis.Pipeliner) {
		pipe.ZRem(ctx, listCardsKey(c.ListID), c.ID)
	})
}

func (r *Redis) CreateUser(ctx context.Context, u domain.User) error {
	data, err := json.Marshal(redisUser{User: u, PasswordHash: u.PasswordHash})
	if err != nil {
		return err
	}
	added, err := r.client.SetNX(ctx, userKey(u.Username), data, 0).Result()
	if err != nil {
		return err
	}
	if !added {
		return domain.ErrConflict
	}
	return nil
}

func (r *Redis) UserByUsername(ctx context.Context, username string) (domain.User, error) {
	u, ok, err := redisDoc[redisUser](ctx, r.client, userKey(username))
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	u.User.PasswordHash = u.PasswordHash
	return u.User, nil
}

// redisUser persists the hash that domain.User hides from JSON.
type redisUser struct {
	domain.User
	PasswordHash string `json:"passwordHash"`
}

func redisDoc[T any](ctx context.Context, c redis.Cmdable, key string) (T, bool, error) {
	var v T
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return v, false, nil
		}
		return v, false, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, true, nil
}

// redisMembers loads the documents referenced by an index in index order.
// Dangling index entries are skipped.
func redisMembers[T any](ctx context.Context, c *redis.Client, index string, key func(string) string, keep func(T) bool) ([]T, error) {
	out := []T{}
	ids, err := c.ZRange(ctx, index, 0, -1).Result()
	if err != nil || len(ids) == 0 {
		return out, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}
	vals, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, raw := range vals {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		var v T
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		if keep(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

// redisCreateChild writes a child only while its parent document is unchanged
// and visible.
func redisCreateChild[P any](ctx context.Context, c *redis.Client, parentKey string, visible func(P) bool, write func(redis.Pipeliner)) error {
	return redisWatch(ctx, c, parentKey, func(tx *redis.Tx) error {
		parent, ok, err := redisDoc[P](ctx, tx, parentKey)
		if err != nil {
			return err
		}
		if !ok || !visible(parent) {
			return domain.ErrNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			write(pipe)
			return nil
		})
		return err
	})
}

// redisUpdate applies mutate to the document at key. mutate returns false when
// the document is not visible to the caller.
func redisUpdate[T any](ctx context.Context, c *redis.Client, key string, mutate func(*T) bool) error {
	return redisWatch(ctx, c, key, func(tx *redis.Tx) error {
		doc, ok, err := redisDoc[T](ctx, tx, key)
		if err != nil {
			return err
		}
		if !ok || !mutate(&doc) {
			return domain.ErrNotFound
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	})
}

// redisDelete removes the document at key along with the index entries queued
// by unlink. Documents the caller cannot see are left alone.
func redisDelete[T any](ctx context.Context, c *redis.Client, key string, visible func(T) bool, unlink func(T, redis.Pipeliner)) (bool, error) {
	err := redisWatch(ctx, c, key, func(tx *redis.Tx) error {
		doc, ok, err := redisDoc[T](ctx, tx, key)
		if err != nil {
			return err
		}
		if !ok || !visible(doc) {
			return domain.ErrNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			unlink(doc, pipe)
			pipe.Del(ctx, key)
			return nil
		})
		return err
	})
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func redisWatch(ctx context.Context, c *redis.Client, key string, fn func(*redis.Tx) error) error {
	for i := 0; i < redisWatchRetries; i++ {
		err := c.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%s: too many concurrent writers", key)
}

func redisScore() float64 {
	return float64(nextSequence())
}

const boardsKey = "boards"

func boardKey(id string) string          { return "board:doc:" + id }
func ownerBoardsKey(owner string) string { return "boards:owner:" + owner }
func boardListsKey(id string) string     { return "board:lists:" + id }
func listKey(id string) string           { return "list:doc:" + id }
func listCardsKey(id string) string      { return "list:cards:" + id }
func cardKey(id string) string           { return "card:doc:" + id }
func userKey(username string) string     { return "user:" + username }
