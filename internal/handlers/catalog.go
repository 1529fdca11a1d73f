package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/plattr/internal/models"
	"github.com/example/plattr/internal/store"
	"github.com/example/plattr/internal/utils"
)

// CatalogHandler serves read-only catalog resources.
type CatalogHandler struct {
	store store.Store
	log   *zap.SugaredLogger
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(st store.Store, log *zap.SugaredLogger) *CatalogHandler {
	return &CatalogHandler{store: st, log: log}
}

// ListCategories returns paginated categories.
func (h *CatalogHandler) ListCategories(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)

	categories, err := store.All[models.Category](c.UserContext(), h.store, models.TableCategories, store.Query{
		Order:  "name.asc",
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
	if err != nil {
		h.log.Errorw("list categories failed", "error", err)
		return fiber.NewError(fiber.StatusBadGateway, "failed to fetch categories")
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       orEmpty(categories),
		"pagination": paginationMeta(pg),
	})
}

// ListDishes returns paginated dishes, optionally narrowed by category_id and available.
func (h *CatalogHandler) ListDishes(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)

	filter := store.Filter{}
	if raw := c.Query("category_id"); raw != "" {
		categoryID, err := uuid.Parse(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid category_id")
		}
		filter["category_id"] = categoryID
	}
	if raw := c.Query("available"); raw != "" {
		available, err := strconv.ParseBool(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid available")
		}
		filter["is_available"] = available
	}

	dishes, err := store.All[models.Dish](c.UserContext(), h.store, models.TableDishes, store.Query{
		Filter: filter,
		Order:  "name.asc",
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
	if err != nil {
		h.log.Errorw("list dishes failed", "error", err)
		return fiber.NewError(fiber.StatusBadGateway, "failed to fetch dishes")
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       orEmpty(dishes),
		"pagination": paginationMeta(pg),
	})
}

// GetDish returns a single dish by ID.
func (h *CatalogHandler) GetDish(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	dish, err := store.First[models.Dish](c.UserContext(), h.store, models.TableDishes, store.Query{
		Filter: store.Filter{"id": id},
	})
	if err != nil {
		h.log.Errorw("get dish failed", "dish_id", id, "error", err)
		return fiber.NewError(fiber.StatusBadGateway, "failed to fetch dish")
	}
	if dish == nil {
		return fiber.NewError(fiber.StatusNotFound, "dish not found")
	}

	return c.JSON(fiber.Map{"success": true, "data": dish})
}

func paginationMeta(pg utils.Pagination) fiber.Map {
	return fiber.Map{
		"current_page":   pg.Page,
		"items_per_page": pg.Limit,
	}
}

func orEmpty[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
