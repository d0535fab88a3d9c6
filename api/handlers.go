package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"trello-api/domain"
	"trello-api/storage"
)

// Deps carries the collaborators of the HTTP layer. Only Store and Logger are
// required; every other field switches a feature off when left nil.
type Deps struct {
	Store       storage.Store
	Users       storage.UserStore
	Auth        Authenticator
	Issuer      TokenIssuer
	Deduper     Deduper
	Events      Emitter
	Hub         *Hub
	Logger      *log.Logger
	Development bool
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Store == nil || d.Logger == nil {
		panic("api.Register: store and logger are required")
	}
	e.Validator = NewValidator()
	e.JSONSerializer = SonicSerializer{}
	e.HTTPErrorHandler = ErrorHandler(d.Development, d.Logger)
	e.Use(RequestMetrics(d.Logger), GzipRequestMiddleware())

	e.GET("/healthz", healthz(d.Store))

	g := e.Group("/api")
	if d.Users != nil && d.Issuer != nil {
		g.POST("/users", postUser(d.Users))
		g.POST("/users/login", postLogin(d.Users, d.Issuer))
	}

	auth := RequireUser(d.Auth)
	g.GET("/board", getBoards(d), auth)
	g.GET("/board/:id", getBoard(d), auth)
	g.POST("/board", postBoard(d), auth)
	g.PUT("/board/:id", putBoard(d), auth)
	g.DELETE("/board/:id", deleteBoard(d), auth)

	g.GET("/board/:id/list", getLists(d), auth)
	g.GET("/list/:id", getList(d), auth)
	g.POST("/board/:id/list", postList(d), auth)
	g.PUT("/list/:id", putList(d), auth)
	g.DELETE("/list/:id", deleteList(d), auth)

	g.GET("/list/:id/card", getCards(d), auth)
	g.GET("/card/:id", getCard(d), auth)
	g.POST("/list/:id/card", postCard(d), auth)
	g.PUT("/card/:id", putCard(d), auth)
	g.DELETE("/card/:id", deleteCard(d), auth)

	if d.Hub != nil {
		g.GET("/live", liveHandler(d.Hub), auth)
	}
}

type healthResponse struct {
	Status string `json:"status"`
}

func healthz(store storage.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		if p, ok := store.(storage.Pinger); ok {
			if err := p.Ping(c.Request().Context()); err != nil {
				c.Logger().Errorf("health check failed: %v", err)
				return c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
			}
		}
		return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
	}
}

// matchIDs enforces that an update addresses the entity named in its path.
func matchIDs(pathID, bodyID string) error {
	if pathID != bodyID {
		return domain.BadRequest("Request path id ("+pathID+") and request body id ("+bodyID+") must match", nil)
	}
	return nil
}

func emit(d Deps, entityType, action, entityID, ownerID string, data any) {
	if d.Events == nil {
		return
	}
	d.Events.Emit(domain.NewEvent(entityType, action, entityID, ownerID, data, 0))
}

// idempotentCreate runs create at most once per Idempotency-Key within scope.
// A repeated key replays the entity recorded for it instead. Child creates
// scope the key by their parent id.
func idempotentCreate[T any](c echo.Context, dedup Deduper, scope string,
	create func(context.Context) (T, string, error),
	replay func(context.Context, string) (T, error),
) (T, bool, error) {
	var zero T
	ctx := c.Request().Context()
	key := strings.TrimSpace(c.Request().Header.Get(idempotencyHeader))
	if dedup == nil || key == "" {
		v, _, err := create(ctx)
		return v, false, err
	}
	if len(key) > maxIdempotencyKey {
		return zero, false, domain.BadRequest("Idempotency-Key is too long", nil)
	}

	user := requester(c)
	key = scope + ":" + key
	claimed, existing, err := dedup.Claim(ctx, user, key)
	if err != nil {
		return zero, false, domain.Internal(err)
	}
	if !claimed {
		if existing == "" {
			return zero, false, domain.Conflict("A request with this Idempotency-Key is still in progress")
		}
		v, err := replay(ctx, existing)
		return v, err == nil, err
	}

	v, id, err := create(ctx)
	if err != nil {
		if rerr := dedup.Remove(ctx, user, key); rerr != nil {
			c.Logger().Errorf("idempotency rollback failed, err: %v, key: %s, user: %s", rerr, key, user)
		}
		return zero, false, err
	}
	if err := dedup.Complete(ctx, user, key, id); err != nil {
		c.Logger().Errorf("idempotency record failed, err: %v, key: %s, user: %s", err, key, user)
	}
	return v, false, nil
}
