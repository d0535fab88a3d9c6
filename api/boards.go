package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"trello-api/domain"
)

const boardNotFound = "Board not found"

type boardCreateRequest struct {
	Name string `json:"name" validate:"required"`
}

type boardUpdateRequest struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
}

func getBoards(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		boards, err := scoped(c, d.Store).Boards(c.Request().Context())
		if err != nil {
			markStage(c, "storage")
			return domain.Internal(err)
		}
		return c.JSON(http.StatusOK, boards)
	}
}

func getBoard(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		b, err := scoped(c, d.Store).Board(c.Request().Context(), c.Param("id"))
		if err != nil {
			markStage(c, "lookup")
			return storeError(err, boardNotFound)
		}
		return c.JSON(http.StatusOK, b)
	}
}

func postBoard(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req boardCreateRequest
		if err := bindBody(c, &req); err != nil {
			markStage(c, "validate")
			return err
		}
		s := scoped(c, d.Store)
		b, replayed, err := idempotentCreate(c, d.Deduper, domain.EntityBoard,
			func(ctx context.Context) (domain.Board, string, error) {
				b, err := s.CreateBoard(ctx, req.Name)
				return b, b.ID, err
			},
			s.Board,
		)
		if err != nil {
			markStage(c, "storage")
			return storeError(err, boardNotFound)
		}
		if !replayed {
			emit(d, domain.EntityBoard, domain.ActionCreated, b.ID, b.OwnerID, b)
		}
		return c.JSON(http.StatusCreated, b)
	}
}

func putBoard(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req boardUpdateRequest
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
		if err := s.UpdateBoard(c.Request().Context(), id, req.Name); err != nil {
			markStage(c, "storage")
			return storeError(err, boardNotFound)
		}
		emit(d, domain.EntityBoard, domain.ActionUpdated, id, s.Owner(), req)
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteBoard(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		s := scoped(c, d.Store)
		removed, err := s.DeleteBoard(c.Request().Context(), id)
		if err != nil {
			markStage(c, "storage")
			return domain.Internal(err)
		}
		if removed {
			emit(d, domain.EntityBoard, domain.ActionDeleted, id, s.Owner(), nil)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
