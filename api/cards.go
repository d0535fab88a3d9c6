package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"trello-api/domain"
)

const cardNotFound = "Card not found"

type cardCreateRequest struct {
	Text string `json:"text" validate:"required"`
}

type cardUpdateRequest struct {
	ID   string `json:"id" validate:"required"`
	Text string `json:"text" validate:"required"`
}

func getCards(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		cards, err := scoped(c, d.Store).Cards(c.Request().Context(), c.Param("id"))
		if err != nil {
			markStage(c, "lookup")
			return storeError(err, listNotFound)
		}
		return c.JSON(http.StatusOK, cards)
	}
}

func getCard(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		card, err := scoped(c, d.Store).Card(c.Request().Context(), c.Param("id"))
		if err != nil {
			markStage(c, "lookup")
			return storeError(err, cardNotFound)
		}
		return c.JSON(http.StatusOK, card)
	}
}

func postCard(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req cardCreateRequest
		if err := bindBody(c, &req); err != nil {
			markStage(c, "validate")
			return err
		}
		listID := c.Param("id")
		s := scoped(c, d.Store)
		card, replayed, err := idempotentCreate(c, d.Deduper, domain.EntityCard+":"+listID,
			func(ctx context.Context) (domain.Card, string, error) {
				card, err := s.CreateCard(ctx, listID, req.Text)
				return card, card.ID, err
			},
			s.Card,
		)
		if err != nil {
			markStage(c, "storage")
			return storeError(err, listNotFound)
		}
		if !replayed {
			emit(d, domain.EntityCard, domain.ActionCreated, card.ID, card.OwnerID, card)
		}
		return c.JSON(http.StatusCreated, card)
	}
}

func putCard(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req cardUpdateRequest
		if err := bindBody(c, &req); err != nil {
			markStage(c, "validate")
			return err
		}
		id := c.Param("id")
		if err := matchIDs(id, req.ID); err != nil {
			markStage(c, "validate")
			return err
		}
		s := scoped(c, d.Store)
		if err := s.UpdateCard(c.Request().Context(), id, req.Text); err != nil {
			markStage(c, "storage")
			return storeError(err, cardNotFound)
		}
		emit(d, domain.EntityCard, domain.ActionUpdated, id, s.Owner(), req)
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteCard(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		s := scoped(c, d.Store)
		removed, err := s.DeleteCard(c.Request().Context(), id)
		if err != nil {
			markStage(c, "storage")
			return domain.Internal(err)
		}
		if removed {
			emit(d, domain.EntityCard, domain.ActionDeleted, id, s.Owner(), nil)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
