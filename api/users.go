package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"trello-api/domain"
	"trello-api/storage"
)

const (
	usernameTaken      = "Username already taken"
	invalidCredentials = "Incorrect username or password"
)

// bcryptCost is lowered by tests.
var bcryptCost = bcrypt.DefaultCost

type registerRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=64,alphanum"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"firstName" validate:"max=64"`
	LastName  string `json:"lastName" validate:"max=64"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	AuthToken string `json:"authToken"`
}

func postUser(users storage.UserStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req registerRequest
		if err := bindBody(c, &req); err != nil {
			markStage(c, "validate")
			return err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
		if err != nil {
			markStage(c, "hash")
			return domain.Internal(err)
		}
		u := domain.NewUser(req.Username, req.FirstName, req.LastName, string(hash))
		if err := users.CreateUser(c.Request().Context(), u); err != nil {
			markStage(c, "storage")
			return storeError(err, usernameTaken)
		}
		return c.JSON(http.StatusCreated, u)
	}
}

func postLogin(users storage.UserStore, issuer TokenIssuer) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req loginRequest
		if err := bindBody(c, &req); err != nil {
			markStage(c, "validate")
			return err
		}
		u, err := users.UserByUsername(c.Request().Context(), req.Username)
		if err != nil {
			markStage(c, "auth")
			if errors.Is(err, domain.ErrNotFound) {
				return domain.Unauthorized(invalidCredentials, err)
			}
			return domain.Internal(err)
		}
		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
			markStage(c, "auth")
			return domain.Unauthorized(invalidCredentials, err)
		}
		token, err := issuer.IssueToken(u.ID)
		if err != nil {
			markStage(c, "token")
			return domain.Internal(err)
		}
		c.Set(requesterKey, u.ID)
		return c.JSON(http.StatusOK, loginResponse{AuthToken: token})
	}
}
