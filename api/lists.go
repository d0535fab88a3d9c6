package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"trello-api/domain"
)

const listNotFound = "List not found"

type listCreateRequest struct {
	Title string `json:"title" validate:"required"`
}

type listUpdateRequest struct {
	ID    string `json:"id" validate:"required"`
	Title string `json:"title" validate:"required"`
}

func getLists(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		lists, err := scoped(c, d.Store).Lists(c.Request().Context(), c.Param("id"))
		if err != nil {
			markStage(c, "lookup")
			return storeError(err, boardNotFound)
		}
		return c.JSON(http.StatusOK, lists)
	}
}

func getList(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		l, err := scoped(c, d.Store).List(c.Request().Context(), c.Param("id"))
		if err != nil {
			markStage(c, "lookup")
			return storeError(err, listNotFound)
		}
		return c.JSON(http.StatusOK, l)
	}
}

func postList(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req listCreateRequest
		if err := bindBody(c, &req); err != nil {
			markStage(c, "validate")
			return err
		}
		boardID := c.Param("id")
		s := scoped(c, d.Store)
		l, replayed, err := idempotentCreate(c, d.Deduper, domain.EntityList+":"+boardID,
			func(ctx context.Context) (domain.List, string, error) {
				l, err := s.CreateList(ctx, boardID, req.Title)
				return l, l.ID, err
			},
			s.List,
		)
		if err != nil {
			markStage(c, "storage")
			return storeError(err, boardNotFound)
		}
		if !replayed {
			emit(d, domain.EntityList, domain.ActionCreated, l.ID, l.OwnerID, l)
		}
		return c.JSON(http.StatusCreated, l)
	}
}

func putList(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req listUpdateRequest
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
		if err := s.UpdateList(c.Request().Context(), id, req.Title); err != nil {
			markStage(c, "storage")
			return storeError(err, listNotFound)
		}
		emit(d, domain.EntityList, domain.ActionUpdated, id, s.Owner(), req)
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteList(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		s := scoped(c, d.Store)
		removed, err := s.DeleteList(c.Request().Context(), id)
		if err != nil {
			markStage(c, "storage")
			return domain.Internal(err)
		}
		if removed {
			emit(d, domain.EntityList, domain.ActionDeleted, id, s.Owner(), nil)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
