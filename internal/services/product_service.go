package services

import (
	"encoding/json"
	"fmt"
	"log"

	"pasar/internal/models"
	"pasar/internal/repositories"
)

// ProductService handles business logic related to products.
type ProductService struct {
	repo      repositories.ProductRepository
	publisher EventPublisher
}

// NewProductService creates a new ProductService.
func NewProductService(repo repositories.ProductRepository, publisher EventPublisher) *ProductService {
	return &ProductService{
		repo:      repo,
		publisher: publisher,
	}
}

// GetAllProducts retrieves all products.
func (s *ProductService) GetAllProducts() ([]models.Product, error) {
	return s.repo.GetAll()
}

// GetProductByID retrieves a single product by its ID.
func (s *ProductService) GetProductByID(id string) (*models.Product, error) {
	return s.repo.GetByID(id)
}

// GetSellerProducts retrieves the products listed by a seller.
func (s *ProductService) GetSellerProducts(sellerID string) ([]models.Product, error) {
	return s.repo.GetBySellerID(sellerID)
}

// CreateProduct creates a new product owned by the given seller.
func (s *ProductService) CreateProduct(product *models.Product, sellerID string) error {
	product.SellerID = sellerID
	return s.repo.Create(product)
}

// UpdateProduct updates an existing product. Sellers may only update their
// own listings; admins may update any.
func (s *ProductService) UpdateProduct(product *models.Product, actorID, actorRole string) error {
	existing, err := s.repo.GetByID(product.ID)
	if err != nil {
		return err
	}
	if actorRole != models.RoleAdmin && existing.SellerID != actorID {
		return ErrNotAuthorized
	}
	product.SellerID = existing.SellerID
	if err := s.repo.Update(product); err != nil {
		return err
	}

	// Restocks and manual corrections feed the same stream as checkout
	// decrements, so consumers never hold a stale stock picture.
	if product.Stock != existing.Stock {
		s.publishStockChange(product)
	}
	return nil
}

// publishStockChange emits a stock-changed event for a directly edited
// product. Best effort, like the checkout path.
func (s *ProductService) publishStockChange(product *models.Product) {
	if s.publisher == nil {
		log.Println("Event publisher is not initialized. Skipping stock change event.")
		return
	}
	body, err := json.Marshal(map[string]interface{}{
		"product_id":   product.ID,
		"new_quantity": product.Stock,
		"name":         product.Name,
		"seller_id":    product.SellerID,
	})
	if err != nil {
		log.Printf("Failed to marshal stock change for product %s: %v", product.ID, err)
		return
	}
	if err := s.publisher.Publish("stock.changed", body); err != nil {
		log.Printf("Warning: Failed to publish stock change for product %s: %v", product.ID, err)
	}
}

// DeleteProduct deletes a product by its ID, with the same ownership rule as
// UpdateProduct.
func (s *ProductService) DeleteProduct(id, actorID, actorRole string) error {
	existing, err := s.repo.GetByID(id)
	if err != nil {
		return err
	}
	if actorRole != models.RoleAdmin && existing.SellerID != actorID {
		return ErrNotAuthorized
	}
	return s.repo.Delete(id)
}

// AddReview attaches a buyer's review to a product and refreshes its rating
// aggregates.
func (s *ProductService) AddReview(review *models.Review) error {
	if review.Rating < 1 || review.Rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5, got %d", review.Rating)
	}
	return s.repo.AddReview(review)
}
