package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"trello-api/domain"
)

// SQLite keeps entities in relational tables with indexed parent and owner
// columns. Children are not removed with their parent.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the database at path. Use ":memory:" for a
// throwaway database.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLite{db: db}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS boards (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			owner_id TEXT NOT NULL DEFAULT '',
			seq INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_boards_owner ON boards(owner_id, seq);`,
		`CREATE TABLE IF NOT EXISTS lists (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			owner_id TEXT NOT NULL DEFAULT '',
			board_id TEXT NOT NULL,
			seq INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_lists_board ON lists(board_id, seq);`,
		`CREATE TABLE IF NOT EXISTS cards (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			owner_id TEXT NOT NULL DEFAULT '',
			list_id TEXT NOT NULL,
			seq INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_cards_list ON cards(list_id, seq);`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ownerClause matches every row when the bound owner is empty.
const ownerClause = `(? = '' OR owner_id = ?)`

func (s *SQLite) ListBoards(ctx context.Context, owner string) ([]domain.Board, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, owner_id FROM boards WHERE `+ownerClause+` ORDER BY seq`, owner, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Board{}
	for rows.Next() {
		var b domain.Board
		if err := rows.Scan(&b.ID, &b.Name, &b.OwnerID); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLite) GetBoard(ctx context.Context, owner, id string) (domain.Board, error) {
	var b domain.Board
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id FROM boards WHERE id = ? AND `+ownerClause, id, owner, owner,
	).Scan(&b.ID, &b.Name, &b.OwnerID)
	return b, notFound(err)
}

func (s *SQLite) CreateBoard(ctx context.Context, b domain.Board) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO boards (id, name, owner_id, seq) VALUES (?, ?, ?, ?)`,
		b.ID, b.Name, b.OwnerID, nextSequence())
	return err
}

func (s *SQLite) UpdateBoard(ctx context.Context, owner, id, name string) error {
	return s.execOne(ctx, `UPDATE boards SET name = ? WHERE id = ? AND `+ownerClause, name, id, owner, owner)
}

func (s *SQLite) DeleteBoard(ctx context.Context, owner, id string) (bool, error) {
	return s.deleteOne(ctx, `DELETE FROM boards WHERE id = ? AND `+ownerClause, id, owner, owner)
}

func (s *SQLite) ListLists(ctx context.Context, owner, boardID string) ([]domain.List, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, owner_id, board_id FROM lists WHERE board_id = ? AND `+ownerClause+` ORDER BY seq`,
		boardID, owner, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.List{}
	for rows.Next() {
		var l domain.List
		if err := rows.Scan(&l.ID, &l.Title, &l.OwnerID, &l.BoardID); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLite) GetList(ctx context.Context, owner, id string) (domain.List, error) {
	var l domain.List
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, owner_id, board_id FROM lists WHERE id = ? AND `+ownerClause, id, owner, owner,
	).Scan(&l.ID, &l.Title, &l.OwnerID, &l.BoardID)
	return l, notFound(err)
}

func (s *SQLite) CreateList(ctx context.Context, l domain.List) error {
	return s.execOne(ctx,
		`INSERT INTO lists (id, title, owner_id, board_id, seq)
		 SELECT ?, ?, ?, ?, ? WHERE EXISTS (SELECT 1 FROM boards WHERE id = ? AND `+ownerClause+`)`,
		l.ID, l.Title, l.OwnerID, l.BoardID, nextSequence(), l.BoardID, l.OwnerID, l.OwnerID)
}

func (s *SQLite) UpdateList(ctx context.Context, owner, id, title string) error {
	return s.execOne(ctx, `UPDATE lists SET title = ? WHERE id = ? AND `+ownerClause, title, id, owner, owner)
}

func (s *SQLite) DeleteList(ctx context.Context, owner, id string) (bool, error) {
	return s.deleteOne(ctx, `DELETE FROM lists WHERE id = ? AND `+ownerClause, id, owner, owner)
}

func (s *SQLite) ListCards(ctx context.Context, owner, listID string) ([]domain.Card, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, owner_id, list_id FROM cards WHERE list_id = ? AND `+ownerClause+` ORDER BY seq`,
		listID, owner, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Card{}
	for rows.Next() {
		var c domain.Card
		if err := rows.Scan(&c.ID, &c.Text, &c.OwnerID, &c.ListID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLite) GetCard(ctx context.Context, owner, id string) (domain.Card, error) {
	var c domain.Card
	err := s.db.QueryRowContext(ctx,
		`SELECT id, text, owner_id, list_id FROM cards WHERE id = ? AND `+ownerClause, id, owner, owner,
	).Scan(&c.ID, &c.Text, &c.OwnerID, &c.ListID)
	return c, notFound(err)
}

func (s *SQLite) CreateCard(ctx context.Context, c domain.Card) error {
	return s.execOne(ctx,
		`INSERT INTO cards (id, text, owner_id, list_id, seq)
		 SELECT ?, ?, ?, ?, ? WHERE EXISTS (SELECT 1 FROM lists WHERE id = ? AND `+ownerClause+`)`,
		c.ID, c.Text, c.OwnerID, c.ListID, nextSequence(), c.ListID, c.OwnerID, c.OwnerID)
}

func (s *SQLite) UpdateCard(ctx context.Context, owner, id, text string) error {
	return s.execOne(ctx, `UPDATE cards SET text = ? WHERE id = ? AND `+ownerClause, text, id, owner, owner)
}

func (s *SQLite) DeleteCard(ctx context.Context, owner, id string) (bool, error) {
	return s.deleteOne(ctx, `DELETE FROM cards WHERE id = ? AND `+ownerClause, id, owner, owner)
}

func (s *SQLite) CreateUser(ctx context.Context, u domain.User) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, first_name, last_name, password_hash) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(username) DO NOTHING`,
		u.ID, u.Username, u.FirstName, u.LastName, u.PasswordHash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (s *SQLite) UserByUsername(ctx context.Context, username string) (domain.User, error) {
	var u domain.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, first_name, last_name, password_hash FROM users WHERE username = ?`, username,
	).Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.PasswordHash)
	return u, notFound(err)
}

// execOne runs a statement that must touch exactly one row.
func (s *SQLite) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *SQLite) deleteOne(ctx context.Context, query string, args ...any) (bool, error) {
	err := s.execOne(ctx, query, args...)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}
