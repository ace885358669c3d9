package repositories

import (
	"pasar/internal/allocation"
	"pasar/internal/models"
)

// ProductRepository defines the interface for product data access.
// TryReserve is the only write path allowed to decrement stock; Release is
// its compensating increment for failed checkouts.
type ProductRepository interface {
	GetAll() ([]models.Product, error)
	GetByID(id string) (*models.Product, error)
	GetBySellerID(sellerID string) ([]models.Product, error)
	FindByIDs(ids []string) ([]models.Product, error)
	Create(product *models.Product) error
	Update(product *models.Product) error
	Delete(id string) error
	TryReserve(id string, quantity int) (allocation.Outcome, error)
	Release(id string, quantity int) error
	AddReview(review *models.Review) error
}
