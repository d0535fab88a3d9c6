package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"trello-api/domain"
)

const (
	// sharedPartition holds entities created while ownership is disabled.
	sharedPartition = "shared"
	userPartition   = "user"
	tableRetries    = 8
)

// TableNames names the Azure tables backing each entity kind.
type TableNames struct {
	Boards string
	Lists  string
	Cards  string
	Users  string
}

type tableClient interface {
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	NewListEntitiesPager(listOptions *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
}

// Table stores entities in Azure Table Storage. The partition key is the
// owner and the row key the entity id, so owner-scoped reads are point reads.
// Parent references are plain properties queried with filters.
type Table struct {
	boards tableClient
	lists  tableClient
	cards  tableClient
	users  tableClient
}

// NewTable connects to the tables named in names.
func NewTable(connStr string, names TableNames) (*Table, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	return &Table{
		boards: svc.NewClient(names.Boards),
		lists:  svc.NewClient(names.Lists),
		cards:  svc.NewClient(names.Cards),
		users:  svc.NewClient(names.Users),
	}, nil
}

func (t *Table) Close() error { return nil }

type tableKeys struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

type boardEntity struct {
	tableKeys
	ETag    string `json:"odata.etag,omitempty"`
	Name    string `json:"Name,omitempty"`
	OwnerID string `json:"OwnerId"`
	Seq     int64  `json:"Seq,string"`
	SeqType string `json:"Seq@odata.type,omitempty"`
}

type listEntity struct {
	tableKeys
	ETag    string `json:"odata.etag,omitempty"`
	Title   string `json:"Title,omitempty"`
	OwnerID string `json:"OwnerId"`
	BoardID string `json:"BoardId"`
	Seq     int64  `json:"Seq,string"`
	SeqType string `json:"Seq@odata.type,omitempty"`
}

type cardEntity struct {
	tableKeys
	ETag    string `json:"odata.etag,omitempty"`
	Text    string `json:"Text,omitempty"`
	OwnerID string `json:"OwnerId"`
	ListID  string `json:"ListId"`
	Seq     int64  `json:"Seq,string"`
	SeqType string `json:"Seq@odata.type,omitempty"`
}

type userEntity struct {
	tableKeys
	ID           string `json:"Id"`
	FirstName    string `json:"FirstName"`
	LastName     string `json:"LastName"`
	PasswordHash string `json:"PasswordHash"`
}

func (e boardEntity) board() domain.Board {
	return domain.Board{ID: e.RowKey, Name: e.Name, OwnerID: e.OwnerID}
}

func (e listEntity) list() domain.List {
	return domain.List{ID: e.RowKey, Title: e.Title, OwnerID: e.OwnerID, BoardID: e.BoardID}
}

func (e cardEntity) card() domain.Card {
	return domain.Card{ID: e.RowKey, Text: e.Text, OwnerID: e.OwnerID, ListID: e.ListID}
}

func (t *Table) ListBoards(ctx context.Context, owner string) ([]domain.Board, error) {
	ents, err := tableQuery[boardEntity](ctx, t.boards, ownerFilter(owner))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ents, func(i, j int) bool { return ents[i].Seq < ents[j].Seq })
	out := make([]domain.Board, 0, len(ents))
	for _, e := range ents {
		out = append(out, e.board())
	}
	return out, nil
}

func (t *Table) GetBoard(ctx context.Context, owner, id string) (domain.Board, error) {
	e, err := tableFind[boardEntity](ctx, t.boards, owner, id)
	if err != nil {
		return domain.Board{}, err
	}
	return e.board(), nil
}

func (t *Table) CreateBoard(ctx context.Context, b domain.Board) error {
	return tableAdd(ctx, t.boards, boardEntity{
		tableKeys: tableKeys{PartitionKey: partitionFor(b.OwnerID), RowKey: b.ID},
		Name:      b.Name,
		OwnerID:   b.OwnerID,
		Seq:       nextSequence(),
		SeqType:   edmInt64,
	})
}

func (t *Table) UpdateBoard(ctx context.Context, owner, id, name string) error {
	return tableMerge(ctx, t.boards, owner, id, func(e *boardEntity) (any, string) {
		return boardEntity{tableKeys: e.tableKeys, Name: name, OwnerID: e.OwnerID, Seq: e.Seq, SeqType: edmInt64}, e.ETag
	})
}

func (t *Table) DeleteBoard(ctx context.Context, owner, id string) (bool, error) {
	return tableDelete[boardEntity](ctx, t.boards, owner, id)
}

func (t *Table) ListLists(ctx context.Context, owner, boardID string) ([]domain.List, error) {
	ents, err := tableQuery[listEntity](ctx, t.lists, andFilter(ownerFilter(owner), eqFilter("BoardId", boardID)))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ents, func(i, j int) bool { return ents[i].Seq < ents[j].Seq })
	out := make([]domain.List, 0, len(ents))
	for _, e := range ents {
		out = append(out, e.list())
	}
	return out, nil
}

func (t *Table) GetList(ctx context.Context, owner, id string) (domain.List, error) {
	e, err := tableFind[listEntity](ctx, t.lists, owner, id)
	if err != nil {
		return domain.List{}, err
	}
	return e.list(), nil
}

func (t *Table) CreateList(ctx context.Context, l domain.List) error {
	if _, err := t.GetBoard(ctx, l.OwnerID, l.BoardID); err != nil {
		return err
	}
	return tableAdd(ctx, t.lists, listEntity{
		tableKeys: tableKeys{PartitionKey: partitionFor(l.OwnerID), RowKey: l.ID},
		Title:     l.Title,
		OwnerID:   l.OwnerID,
		BoardID:   l.BoardID,
		Seq:       nextSequence(),
		SeqType:   edmInt64,
	})
}

func (t *Table) UpdateList(ctx context.Context, owner, id, title string) error {
	return tableMerge(ctx, t.lists, owner, id, func(e *listEntity) (any, string) {
		return listEntity{tableKeys: e.tableKeys, Title: title, OwnerID: e.OwnerID, BoardID: e.BoardID, Seq: e.Seq, SeqType: edmInt64}, e.ETag
	})
}

func (t *Table) DeleteList(ctx context.Context, owner, id string) (bool, error) {
	return tableDelete[listEntity](ctx, t.lists, owner, id)
}

func (t *Table) ListCards(ctx context.Context, owner, listID string) ([]domain.Card, error) {
	ents, err := tableQuery[cardEntity](ctx, t.cards, andFilter(ownerFilter(owner), eqFilter("ListId", listID)))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ents, func(i, j int) bool { return ents[i].Seq < ents[j].Seq })
	out := make([]domain.Card, 0, len(ents))
	for _, e := range ents {
		out = append(out, e.card())
	}
	return out, nil
}

func (t *Table) GetCard(ctx context.Context, owner, id string) (domain.Card, error) {
	e, err := tableFind[cardEntity](ctx, t.cards, owner, id)
	if err != nil {
		return domain.Card{}, err
	}
	return e.card(), nil
}

func (t *Table) CreateCard(ctx context.Context, c domain.Card) error {
	if _, err := t.GetList(ctx, c.OwnerID, c.ListID); err != nil {
		return err
	}
	return tableAdd(ctx, t.cards, cardEntity{
		tableKeys: tableKeys{PartitionKey: partitionFor(c.OwnerID), RowKey: c.ID},
		Text:      c.Text,
		OwnerID:   c.OwnerID,
		ListID:    c.ListID,
		Seq:       nextSequence(),
		SeqType:   edmInt64,
	})
}

func (t *Table) UpdateCard(ctx context.Context, owner, id, text string) error {
	return tableMerge(ctx, t.cards, owner, id, func(e *cardEntity) (any, string) {
		return cardEntity{tableKeys: e.tableKeys, Text: text, OwnerID: e.OwnerID, ListID: e.ListID, Seq: e.Seq, SeqType: edmInt64}, e.ETag
	})
}

func (t *Table) DeleteCard(ctx context.Context, owner, id string) (bool, error) {
	return tableDelete[cardEntity](ctx, t.cards, owner, id)
}

func (t *Table) CreateUser(ctx context.Context, u domain.User) error {
	err := tableAdd(ctx, t.users, userEntity{
		tableKeys:    tableKeys{PartitionKey: userPartition, RowKey: u.Username},
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		PasswordHash: u.PasswordHash,
	})
	if statusCode(err) == http.StatusConflict {
		return domain.ErrConflict
	}
	return err
}

func (t *Table) UserByUsername(ctx context.Context, username string) (domain.User, error) {
	resp, err := t.users.GetEntity(ctx, userPartition, username, nil)
	if err != nil {
		return domain.User{}, tableNotFound(err)
	}
	var e userEntity
	if err := json.Unmarshal(resp.Value, &e); err != nil {
		return domain.User{}, err
	}
	return domain.User{ID: e.ID, Username: e.RowKey, FirstName: e.FirstName, LastName: e.LastName, PasswordHash: e.PasswordHash}, nil
}

const edmInt64 = "Edm.Int64"

func partitionFor(owner string) string {
	if owner == "" {
		return sharedPartition
	}
	return owner
}

func ownerFilter(owner string) string {
	if owner == "" {
		return ""
	}
	return eqFilter("PartitionKey", owner)
}

func eqFilter(field, value string) string {
	return field + " eq '" + strings.ReplaceAll(value, "'", "''") + "'"
}

func andFilter(filters ...string) string {
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		if f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " and ")
}

func tableAdd(ctx context.Context, c tableClient, ent any) error {
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = c.AddEntity(ctx, payload, nil)
	return err
}

func tableQuery[T any](ctx context.Context, c tableClient, filter string) ([]T, error) {
	opts := &aztables.ListEntitiesOptions{}
	if filter != "" {
		opts.Filter = &filter
	}
	pager := c.NewListEntitiesPager(opts)
	out := []T{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent T
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			out = append(out, ent)
		}
	}
	return out, nil
}

// tableFind resolves id for owner. With an owner it is a point read; without one
// every partition is searched.
func tableFind[T any, PT interface {
	*T
	setETag(string)
}](ctx context.Context, c tableClient, owner, id string) (T, error) {
	var ent T
	if owner != "" {
		resp, err := c.GetEntity(ctx, owner, id, nil)
		if err != nil {
			return ent, tableNotFound(err)
		}
		if err := json.Unmarshal(resp.Value, &ent); err != nil {
			return ent, err
		}
		PT(&ent).setETag(string(resp.ETag))
		return ent, nil
	}
	ents, err := tableQuery[T](ctx, c, eqFilter("RowKey", id))
	if err != nil {
		return ent, err
	}
	if len(ents) == 0 {
		return ent, domain.ErrNotFound
	}
	return ents[0], nil
}

// tableMerge applies a conditional merge built from the current entity and
// retries when another writer got there first.
func tableMerge[T any, PT interface {
	*T
	setETag(string)
}](ctx context.Context, c tableClient, owner, id string, build func(*T) (any, string)) error {
	for i := 0; i < tableRetries; i++ {
		cur, err := tableFind[T, PT](ctx, c, owner, id)
		if err != nil {
			return err
		}
		upd, etag := build(&cur)
		payload, err := json.Marshal(upd)
		if err != nil {
			return err
		}
		opts := &aztables.UpdateEntityOptions{UpdateMode: aztables.UpdateModeMerge}
		match := azcore.ETagAny
		if etag != "" {
			match = azcore.ETag(etag)
		}
		opts.IfMatch = &match
		_, err = c.UpdateEntity(ctx, payload, opts)
		switch statusCode(err) {
		case 0:
			return err
		case http.StatusPreconditionFailed:
			continue
		default:
			return tableNotFound(err)
		}
	}
	return errors.New("table update: too many concurrent writers")
}

func tableDelete[T any, PT interface {
	*T
	setETag(string)
	keys() tableKeys
}](ctx context.Context, c tableClient, owner, id string) (bool, error) {
	cur, err := tableFind[T, PT](ctx, c, owner, id)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	k := PT(&cur).keys()
	if _, err := c.DeleteEntity(ctx, k.PartitionKey, k.RowKey, nil); err != nil {
		if statusCode(err) == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (e *boardEntity) setETag(v string) { e.ETag = v }
func (e *listEntity) setETag(v string)  { e.ETag = v }
func (e *cardEntity) setETag(v string)  { e.ETag = v }

func (e *boardEntity) keys() tableKeys { return e.tableKeys }
func (e *listEntity) keys() tableKeys  { return e.tableKeys }
func (e *cardEntity) keys() tableKeys  { return e.tableKeys }

func statusCode(err error) int {
	if err == nil {
		return 0
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return -1
}

func tableNotFound(err error) error {
	if statusCode(err) == http.StatusNotFound {
		return domain.ErrNotFound
	}
	return err
}
