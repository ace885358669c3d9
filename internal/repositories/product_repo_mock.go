package repositories

import (
	"fmt"
	"sync"

	"pasar/internal/allocation"
	"pasar/internal/models"

	"github.com/google/uuid"
)

// MockProductRepository is an in-memory implementation of ProductRepository.
type MockProductRepository struct {
	products map[string]models.Product
	reviews  map[string][]models.Review
	mu       sync.RWMutex
}

// NewMockProductRepository creates a new instance of MockProductRepository.
func NewMockProductRepository() *MockProductRepository {
	return &MockProductRepository{
		products: make(map[string]models.Product),
		reviews:  make(map[string][]models.Review),
	}
}

// GetAll returns all products.
func (r *MockProductRepository) GetAll() ([]models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	productList := make([]models.Product, 0, len(r.products))
	for _, p := range r.products {
		productList = append(productList, p)
	}
	return productList, nil
}

// GetByID returns a product by its ID.
func (r *MockProductRepository) GetByID(id string) (*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.products[id]
	if !ok {
		return nil, fmt.Errorf("product with ID %s not found", id)
	}
	return &product, nil
}

// GetBySellerID returns all products listed by a seller.
func (r *MockProductRepository) GetBySellerID(sellerID string) ([]models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var productList []models.Product
	for _, p := range r.products {
		if p.SellerID == sellerID {
			productList = append(productList, p)
		}
	}
	return productList, nil
}

// FindByIDs returns the products matching the given IDs. Unknown IDs are
// simply absent from the result, not an error.
func (r *MockProductRepository) FindByIDs(ids []string) ([]models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	productList := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			productList = append(productList, p)
		}
	}
	return productList, nil
}

// Create adds a new product.
func (r *MockProductRepository) Create(product *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	r.products[product.ID] = *product
	return nil
}

// Update modifies an existing product.
func (r *MockProductRepository) Update(product *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.products[product.ID]
	if !ok {
		return fmt.Errorf("product with ID %s not found for update", product.ID)
	}
	r.products[product.ID] = *product
	return nil
}

// Delete removes a product by its ID.
func (r *MockProductRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.products[id]
	if !ok {
		return fmt.Errorf("product with ID %s not found for deletion", id)
	}
	delete(r.products, id)
	return nil
}

// TryReserve atomically decrements stock by up to quantity. The whole
// read-decide-write runs under the write lock, so concurrent reservations
// can never oversell.
func (r *MockProductRepository) TryReserve(id string, quantity int) (allocation.Outcome, error) {
	if quantity <= 0 {
		return allocation.Outcome{}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.products[id]
	if !ok || product.Stock <= 0 {
		return allocation.Outcome{}, nil
	}

	reserved := quantity
	if product.Stock < quantity {
		reserved = product.Stock
	}
	product.Stock -= reserved
	r.products[id] = product

	return allocation.Outcome{Reserved: reserved, Remaining: product.Stock}, nil
}

// Release returns previously reserved stock to the product.
func (r *MockProductRepository) Release(id string, quantity int) error {
	if quantity <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.products[id]
	if !ok {
		return fmt.Errorf("product with ID %s not found for release", id)
	}
	product.Stock += quantity
	r.products[id] = product
	return nil
}

// AddReview stores a review and refreshes the product's rating aggregates.
func (r *MockProductRepository) AddReview(review *models.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.products[review.ProductID]
	if !ok {
		return fmt.Errorf("product with ID %s not found for review", review.ProductID)
	}

	if review.ID == "" {
		review.ID = uuid.New().String()
	}
	r.reviews[review.ProductID] = append(r.reviews[review.ProductID], *review)

	var total int
	for _, rv := range r.reviews[review.ProductID] {
		total += rv.Rating
	}
	product.NumOfReviews = len(r.reviews[review.ProductID])
	product.Ratings = float64(total) / float64(product.NumOfReviews)
	r.products[review.ProductID] = product
	return nil
}
