package api

import (
	"github.com/labstack/echo/v4"

	"trello-api/domain"
	"trello-api/storage"
)

const requesterKey = "requester"

const unauthorizedMessage = "Unauthorized"

// RequireUser resolves the bearer token to the requester and stores it on the
// context. A nil auth disables authentication and leaves the requester empty.
func RequireUser(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if auth == nil {
			return next
		}
		return func(c echo.Context) error {
			token, err := bearerTokenFromRequest(c.Request())
			if err != nil {
				markStage(c, "auth")
				return domain.Unauthorized(unauthorizedMessage, err)
			}
			userID, err := auth.UserIDFromBearer(token)
			if err != nil {
				markStage(c, "auth")
				return domain.Unauthorized(unauthorizedMessage, err)
			}
			c.Set(requesterKey, userID)
			return next(c)
		}
	}
}

func requester(c echo.Context) string {
	id, _ := c.Get(requesterKey).(string)
	return id
}

func scoped(c echo.Context, store storage.Store) storage.Scoped {
	return storage.Scope(store, requester(c))
}
