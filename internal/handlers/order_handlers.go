package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"ordersvc/internal/common"
	"ordersvc/internal/models"
	"ordersvc/internal/repositories"
	"ordersvc/internal/services"
	"ordersvc/pkg/database"

	"github.com/labstack/echo/v4"
)

// OrderHandlers handles HTTP requests for orders
type OrderHandlers struct {
	orderService services.OrderServiceInterface
}

// NewOrderHandlers creates a new order handlers instance
func NewOrderHandlers(orderService services.OrderServiceInterface) *OrderHandlers {
	return &OrderHandlers{
		orderService: orderService,
	}
}

type createOrderRequest struct {
	Items json.RawMessage `json:"items"`
}

type createOrderResponse struct {
	Message string               `json:"message"`
	Order   *models.CreatedOrder `json:"order"`
}

type updateStatusRequest struct {
	Status models.Status `json:"status"`
}

// CreateOrder handles POST /orders
func (h *OrderHandlers) CreateOrder(c echo.Context) error {
	ownerID, ok := common.GetOwnerIDFromContext(c.Request().Context())
	if !ok {
		return common.SendForbiddenError(c, "Invalid token payload")
	}

	var req createOrderRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	items, ok := decodeItems(req.Items)
	if !ok {
		return common.SendClientError(c, "Order items are required")
	}

	order, err := h.orderService.CreateOrder(c.Request().Context(), ownerID, items)
	if err != nil {
		return h.sendError(c, err)
	}

	return c.JSON(http.StatusCreated, createOrderResponse{
		Message: "Order created successfully",
		Order:   order,
	})
}

// GetOrders handles GET /orders
func (h *OrderHandlers) GetOrders(c echo.Context) error {
	ownerID, ok := common.GetOwnerIDFromContext(c.Request().Context())
	if !ok {
		return common.SendForbiddenError(c, "Invalid token payload")
	}

	limit, offset := 0, 0
	var err error
	if v := c.QueryParam("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return common.SendValidationError(c, "limit", "must be an integer")
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil {
			return common.SendValidationError(c, "offset", "must be an integer")
		}
	}
	limit, offset, err = common.ValidatePaginationParams(limit, offset)
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	orders, err := h.orderService.ListOrders(c.Request().Context(), ownerID, limit, offset)
	if err != nil {
		return h.sendError(c, err)
	}
	return c.JSON(http.StatusOK, orders)
}

// GetOrder handles GET /orders/:id
func (h *OrderHandlers) GetOrder(c echo.Context) error {
	ownerID, ok := common.GetOwnerIDFromContext(c.Request().Context())
	if !ok {
		return common.SendForbiddenError(c, "Invalid token payload")
	}
	orderID, err := common.ParseID(c.Param("id"), "id")
	if err != nil {
		return common.SendClientError(c, "Invalid order ID format")
	}

	order, err := h.orderService.GetOrder(c.Request().Context(), ownerID, orderID)
	if err != nil {
		return h.sendError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// UpdateOrderStatus handles PATCH /orders/:id/status
func (h *OrderHandlers) UpdateOrderStatus(c echo.Context) error {
	ownerID, ok := common.GetOwnerIDFromContext(c.Request().Context())
	if !ok {
		return common.SendForbiddenError(c, "Invalid token payload")
	}
	orderID, err := common.ParseID(c.Param("id"), "id")
	if err != nil {
		return common.SendClientError(c, "Invalid order ID format")
	}

	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	if err := h.orderService.UpdateOrderStatus(c.Request().Context(), ownerID, orderID, req.Status); err != nil {
		return h.sendError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"message": "Order status updated",
		"id":      orderID,
		"status":  req.Status,
	})
}

// DeleteOrder handles DELETE /orders/:id
func (h *OrderHandlers) DeleteOrder(c echo.Context) error {
	ownerID, ok := common.GetOwnerIDFromContext(c.Request().Context())
	if !ok {
		return common.SendForbiddenError(c, "Invalid token payload")
	}
	orderID, err := common.ParseID(c.Param("id"), "id")
	if err != nil {
		return common.SendClientError(c, "Invalid order ID format")
	}

	if err := h.orderService.DeleteOrder(c.Request().Context(), ownerID, orderID); err != nil {
		return h.sendError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// sendError maps service errors onto HTTP responses. Storage details never
// reach the client.
func (h *OrderHandlers) sendError(c echo.Context, err error) error {
	var (
		validationErr *services.ValidationError
		resourceErr   *services.ResourceError
		txErr         *services.TransactionError
	)

	switch {
	case errors.Is(err, services.ErrItemsRequired):
		return common.SendClientError(c, "Order items are required")
	case errors.As(err, &validationErr):
		field := validationErr.Field
		if validationErr.Index >= 0 {
			field = "items[" + strconv.Itoa(validationErr.Index) + "]." + field
		}
		return common.SendValidationError(c, field, validationErr.Reason)
	case errors.Is(err, services.ErrOrderNotFound):
		return common.SendNotFoundError(c, "Order not found or access denied")
	case errors.As(err, &resourceErr):
		if errors.Is(resourceErr, database.ErrPoolExhausted) {
			return common.SendUnavailableError(c, "Server is busy, please retry")
		}
		c.Logger().Errorf("order request failed: %v", err)
		return common.SendUnavailableError(c, "Database unavailable, please retry")
	case errors.As(err, &txErr):
		if txErr.Retryable() {
			return common.SendUnavailableError(c, "Database unavailable, please retry")
		}
		return common.SendServerError(c, "Failed to create order")
	case repositories.IsKind(err, repositories.KindConnection):
		return common.SendUnavailableError(c, "Database unavailable, please retry")
	default:
		c.Logger().Errorf("order request failed: %v", err)
		return common.SendServerError(c, "Internal server error")
	}
}

// decodeItems splits the items array into its raw elements. Anything other
// than a JSON array counts as no items.
func decodeItems(data json.RawMessage) ([]json.RawMessage, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, false
	}
	return items, true
}
