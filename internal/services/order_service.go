package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"pasar/internal/allocation"
	"pasar/internal/models"
	"pasar/internal/repositories"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrNotAuthorized is returned when the acting user may not touch the order.
var ErrNotAuthorized = errors.New("not authorized for this order")

// EventPublisher is the fire-and-forget notification channel the order
// workflow broadcasts on. Injected so tests run without a broker.
type EventPublisher interface {
	Publish(routingKey string, body []byte) error
}

// CreateOrderRequest is the checkout input: the buyer's cart lines plus
// shipping and optional payment info. Caller-supplied prices are not
// trusted; unit prices come from the product catalog at allocation time.
type CreateOrderRequest struct {
	UserID       string              `json:"-"`
	SellerID     string              `json:"seller_id" validate:"required"`
	ShippingInfo models.ShippingInfo `json:"shipping_info" validate:"required"`
	OrderItems   []models.OrderItem  `json:"order_items" validate:"required,min=1,dive"`
	PaymentInfo  *models.PaymentInfo `json:"payment_info"`
}

// OrderService handles business logic related to orders.
type OrderService struct {
	orderRepo   repositories.OrderRepository
	productRepo repositories.ProductRepository
	publisher   EventPublisher
	validate    *validator.Validate
}

// NewOrderService creates a new OrderService.
func NewOrderService(orderRepo repositories.OrderRepository, productRepo repositories.ProductRepository, publisher EventPublisher) *OrderService {
	return &OrderService{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		publisher:   publisher,
		validate:    validator.New(),
	}
}

// GetAllOrders retrieves all orders (admin view).
func (s *OrderService) GetAllOrders() ([]models.Order, error) {
	return s.orderRepo.GetAll()
}

// GetUserOrders retrieves the orders placed by a buyer.
func (s *OrderService) GetUserOrders(userID string) ([]models.Order, error) {
	return s.orderRepo.GetByUserID(userID)
}

// GetSellerOrders retrieves the orders addressed to a seller.
func (s *OrderService) GetSellerOrders(sellerID string) ([]models.Order, error) {
	return s.orderRepo.GetBySellerID(sellerID)
}

// GetOrderByID retrieves a single order, restricted to its buyer, its seller
// of record, or an admin.
func (s *OrderService) GetOrderByID(id, actorID, actorRole string) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if actorRole != models.RoleAdmin && order.UserID != actorID && order.SellerID != actorID {
		return nil, ErrNotAuthorized
	}
	return order, nil
}

// CreateOrder runs a checkout: it allocates stock for the requested items,
// prices the fulfilled portion, and persists the order. The returned slice
// holds the deferred items — the portion of the cart stock could not cover —
// which is non-empty on partial fulfillment and carries the whole cart when
// allocation.ErrNoStockAvailable is returned.
//
// Stock reservation is write-through: every fulfilled quantity has already
// been atomically decremented by the product repository when this returns.
// If the order itself cannot be persisted, the reservations are released
// again so no stock is lost.
func (s *OrderService) CreateOrder(req CreateOrderRequest) (*models.Order, []models.OrderItem, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, nil, fmt.Errorf("invalid order request: %w", err)
	}

	// One catalog read per pass. Prices and display fields are re-derived
	// from the catalog here; items referencing unknown products keep the
	// caller's fields and will be deferred by the allocator.
	ids := make([]string, 0, len(req.OrderItems))
	seen := make(map[string]bool, len(req.OrderItems))
	for _, item := range req.OrderItems {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}
	products, err := s.productRepo.FindByIDs(ids)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up products for order: %w", err)
	}
	catalog := make(map[string]models.Product, len(products))
	for _, p := range products {
		catalog[p.ID] = p
	}

	items := make([]models.OrderItem, len(req.OrderItems))
	for i, item := range req.OrderItems {
		if p, ok := catalog[item.ProductID]; ok {
			item.Price = p.Price
			item.Name = p.Name
			if item.Image == "" {
				item.Image = p.ImageURL
			}
		}
		items[i] = item
	}

	result, err := allocation.Allocate(items, s.productRepo)
	if err != nil {
		s.releaseReservations(result)
		return nil, nil, fmt.Errorf("order allocation failed: %w", err)
	}

	if result.Empty() {
		return nil, result.Deferred, allocation.ErrNoStockAvailable
	}

	pricing := allocation.ComputePricing(result.Allocated)

	paymentInfo := models.PaymentInfo{
		ID:     fmt.Sprintf("payment_%d", time.Now().UnixMilli()),
		Status: models.PaymentPending,
	}
	if req.PaymentInfo != nil && req.PaymentInfo.ID != "" {
		paymentInfo = *req.PaymentInfo
	}

	order := &models.Order{
		ID:            uuid.New().String(),
		UserID:        req.UserID,
		SellerID:      req.SellerID,
		Items:         result.Allocated,
		ShippingInfo:  req.ShippingInfo,
		PaymentInfo:   paymentInfo,
		ItemsPrice:    pricing.ItemsPrice,
		TaxPrice:      pricing.TaxPrice,
		ShippingPrice: pricing.ShippingPrice,
		TotalPrice:    pricing.TotalPrice,
		Status:        models.StatusProcessing,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	if err := s.orderRepo.Create(order); err != nil {
		s.releaseReservations(result)
		return nil, result.Deferred, fmt.Errorf("failed to create order in repository: %w", err)
	}

	s.publishStockChanges(result.Changes, catalog)
	s.publishOrderCreated(order)

	return order, result.Deferred, nil
}

// releaseReservations returns every quantity the pass reserved. Allocated
// quantities are exactly what was decremented, including partial splits.
func (s *OrderService) releaseReservations(result *allocation.Result) {
	reserved := make(map[string]int)
	for _, item := range result.Allocated {
		reserved[item.ProductID] += item.Quantity
	}
	for id, qty := range reserved {
		if err := s.productRepo.Release(id, qty); err != nil {
			log.Printf("Failed to release %d units of product %s: %v", qty, id, err)
		}
	}
}

// publishStockChanges emits one stock-changed event per mutated product.
// Publishing is best effort; a broker failure never fails the order.
func (s *OrderService) publishStockChanges(changes []allocation.StockChange, catalog map[string]models.Product) {
	if s.publisher == nil {
		log.Println("Event publisher is not initialized. Skipping stock change events.")
		return
	}
	for _, change := range changes {
		payload := map[string]interface{}{
			"product_id":   change.ProductID,
			"new_quantity": change.NewQuantity,
		}
		if p, ok := catalog[change.ProductID]; ok {
			payload["name"] = p.Name
			payload["seller_id"] = p.SellerID
		}
		body, err := json.Marshal(payload)
		if err != nil {
			log.Printf("Failed to marshal stock change for product %s: %v", change.ProductID, err)
			continue
		}
		if err := s.publisher.Publish("stock.changed", body); err != nil {
			log.Printf("Warning: Failed to publish stock change for product %s: %v", change.ProductID, err)
		}
	}
}

func (s *OrderService) publishOrderCreated(order *models.Order) {
	if s.publisher == nil {
		log.Println("Event publisher is not initialized. Skipping order created event.")
		return
	}
	payload := map[string]interface{}{
		"order_id":  order.ID,
		"user_id":   order.UserID,
		"seller_id": order.SellerID,
		"status":    order.Status,
		"total":     order.TotalPrice,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to marshal order created event: %v", err)
		return
	}
	if err := s.publisher.Publish("order.created", body); err != nil {
		log.Printf("Warning: Failed to publish order created event for order %s: %v", order.ID, err)
	} else {
		log.Printf("Successfully published order created event for order %s", order.ID)
	}
}

// UpdateOrderStatus moves an order along Processing -> Shipped -> Delivered.
// Admins may update any order; sellers only orders addressed to them. A
// transition to Delivered settles a pending payment.
func (s *OrderService) UpdateOrderStatus(id, status, actorID, actorRole string) error {
	validStatuses := map[string]bool{
		models.StatusProcessing: true,
		models.StatusShipped:    true,
		models.StatusDelivered:  true,
	}
	if !validStatuses[status] {
		return fmt.Errorf("invalid order status: %s", status)
	}

	order, err := s.orderRepo.GetByID(id)
	if err != nil {
		return fmt.Errorf("failed to load order %s for status update: %w", id, err)
	}

	switch actorRole {
	case models.RoleAdmin:
	case models.RoleSeller:
		if order.SellerID != actorID {
			return ErrNotAuthorized
		}
	default:
		return ErrNotAuthorized
	}

	paymentStatus := ""
	if status == models.StatusDelivered && order.PaymentInfo.Status == models.PaymentPending {
		paymentStatus = models.PaymentPaid
	}

	if err := s.orderRepo.UpdateStatus(id, status, paymentStatus); err != nil {
		return fmt.Errorf("failed to update order status for order %s: %w", id, err)
	}
	return nil
}
