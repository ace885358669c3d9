package handlers

import (
	"errors"
	"log"
	"strings"

	"pasar/internal/allocation"
	"pasar/internal/middleware"
	"pasar/internal/models"
	"pasar/internal/services"

	"github.com/gofiber/fiber/v2"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	service *services.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.OrderService) *OrderHandler {
	return &OrderHandler{
		service: service,
	}
}

// RegisterRoutes registers the order routes with the Fiber app.
func (h *OrderHandler) RegisterRoutes(router fiber.Router) {
	orderRoutes := router.Group("/orders")
	orderRoutes.Get("/", middleware.RequireRoles(models.RoleAdmin), h.HandleGetOrders)
	orderRoutes.Get("/mine", middleware.RequireRoles(models.RoleBuyer, models.RoleAdmin), h.HandleGetMyOrders)
	orderRoutes.Get("/sold", middleware.RequireRoles(models.RoleSeller, models.RoleAdmin), h.HandleGetSoldOrders)
	orderRoutes.Get("/:id", h.HandleGetOrderByID)
	orderRoutes.Post("/", middleware.RequireRoles(models.RoleBuyer, models.RoleAdmin), h.HandleCreateOrder)
	orderRoutes.Patch("/:id/status", middleware.RequireRoles(models.RoleSeller, models.RoleAdmin), h.HandleUpdateOrderStatus)
}

func actor(c *fiber.Ctx) (id, role string) {
	id, _ = c.Locals("user_id").(string)
	role, _ = c.Locals("role").(string)
	return id, role
}

// HandleGetOrders retrieves all orders (admin view).
func (h *OrderHandler) HandleGetOrders(c *fiber.Ctx) error {
	orders, err := h.service.GetAllOrders()
	if err != nil {
		log.Printf("Error getting all orders: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not retrieve orders",
			"error":   err.Error(),
		})
	}
	return c.JSON(orders)
}

// HandleGetMyOrders retrieves the orders placed by the authenticated buyer.
func (h *OrderHandler) HandleGetMyOrders(c *fiber.Ctx) error {
	userID, _ := actor(c)
	orders, err := h.service.GetUserOrders(userID)
	if err != nil {
		log.Printf("Error getting orders for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not retrieve orders",
			"error":   err.Error(),
		})
	}
	return c.JSON(orders)
}

// HandleGetSoldOrders retrieves the orders addressed to the authenticated
// seller.
func (h *OrderHandler) HandleGetSoldOrders(c *fiber.Ctx) error {
	sellerID, _ := actor(c)
	orders, err := h.service.GetSellerOrders(sellerID)
	if err != nil {
		log.Printf("Error getting orders for seller %s: %v", sellerID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not retrieve orders",
			"error":   err.Error(),
		})
	}
	return c.JSON(orders)
}

// HandleGetOrderByID retrieves a single order by its ID.
func (h *OrderHandler) HandleGetOrderByID(c *fiber.Ctx) error {
	orderID := c.Params("id")
	actorID, actorRole := actor(c)

	order, err := h.service.GetOrderByID(orderID, actorID, actorRole)
	if err != nil {
		log.Printf("Error getting order by ID %s: %v", orderID, err)
		if errors.Is(err, services.ErrNotAuthorized) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"message": "Not authorized to view this order",
			})
		}
		if strings.Contains(err.Error(), "not found") {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"message": "Order not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not retrieve order",
			"error":   err.Error(),
		})
	}
	return c.JSON(order)
}

// HandleCreateOrder runs a checkout. Partial fulfillment is a success: the
// response carries both the created order and the deferred cart items. When
// nothing at all could be fulfilled, no order is created and the whole cart
// comes back in rest_cart_items.
func (h *OrderHandler) HandleCreateOrder(c *fiber.Ctx) error {
	var req services.CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing order request body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	req.UserID, _ = c.Locals("user_id").(string)

	order, restCartItems, err := h.service.CreateOrder(req)
	if err != nil {
		if errors.Is(err, allocation.ErrNoStockAvailable) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message":         "All items are out of stock",
				"rest_cart_items": restCartItems,
			})
		}
		log.Printf("Error creating order: %v", err)
		if strings.Contains(err.Error(), "invalid order request") {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": "Invalid order request",
				"error":   err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not create order",
			"error":   err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":         "Order created successfully",
		"order":           order,
		"rest_cart_items": restCartItems,
	})
}

// HandleUpdateOrderStatus updates the status of an existing order.
func (h *OrderHandler) HandleUpdateOrderStatus(c *fiber.Ctx) error {
	orderID := c.Params("id")
	var updateData struct {
		Status string `json:"status"`
	}

	if err := c.BodyParser(&updateData); err != nil {
		log.Printf("Error parsing request body for status update: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body for status update",
			"error":   err.Error(),
		})
	}

	if updateData.Status == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Status is required for order status update.",
		})
	}

	actorID, actorRole := actor(c)
	if err := h.service.UpdateOrderStatus(orderID, updateData.Status, actorID, actorRole); err != nil {
		log.Printf("Error updating order status for order %s: %v", orderID, err)
		if errors.Is(err, services.ErrNotAuthorized) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"message": "Not authorized to update this order",
			})
		}
		if strings.Contains(err.Error(), "not found") {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"message": "Order not found",
			})
		}
		if strings.Contains(err.Error(), "invalid order status") {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not update order status",
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Order status updated successfully",
		"id":      orderID,
		"status":  updateData.Status,
	})
}
