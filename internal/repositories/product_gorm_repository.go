package repositories

import (
	"fmt"

	"pasar/internal/allocation"
	"pasar/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMProductRepository is a GORM implementation of ProductRepository.
type GORMProductRepository struct {
	db *gorm.DB
}

// NewGORMProductRepository creates a new instance of GORMProductRepository.
func NewGORMProductRepository(db *gorm.DB) *GORMProductRepository {
	return &GORMProductRepository{
		db: db,
	}
}

// GetAll retrieves all products from the database.
func (r *GORMProductRepository) GetAll() ([]models.Product, error) {
	var products []models.Product
	if err := r.db.Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to get all products: %w", err)
	}
	return products, nil
}

// GetByID retrieves a single product by its ID from the database.
func (r *GORMProductRepository) GetByID(id string) (*models.Product, error) {
	var product models.Product
	if err := r.db.First(&product, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("product with ID %s not found", id)
		}
		return nil, fmt.Errorf("failed to get product by ID %s: %w", id, err)
	}
	return &product, nil
}

// GetBySellerID retrieves all products listed by the given seller.
func (r *GORMProductRepository) GetBySellerID(sellerID string) ([]models.Product, error) {
	var products []models.Product
	if err := r.db.Find(&products, "seller_id = ?", sellerID).Error; err != nil {
		return nil, fmt.Errorf("failed to get products for seller %s: %w", sellerID, err)
	}
	return products, nil
}

// FindByIDs retrieves the products matching the given IDs in one query.
// Unknown IDs are simply absent from the result.
func (r *GORMProductRepository) FindByIDs(ids []string) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []models.Product
	if err := r.db.Find(&products, "id IN ?", ids).Error; err != nil {
		return nil, fmt.Errorf("failed to find products by IDs: %w", err)
	}
	return products, nil
}

// Create creates a new product in the database.
func (r *GORMProductRepository) Create(product *models.Product) error {
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	if err := r.db.Create(product).Error; err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// Update updates an existing product in the database.
func (r *GORMProductRepository) Update(product *models.Product) error {
	res := r.db.Save(product) // Save will update all fields, including zero values
	if res.Error != nil {
		return fmt.Errorf("failed to update product: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// GORM's Save doesn't return ErrRecordNotFound if no rows affected
		// for an update, so we check RowsAffected.
		return fmt.Errorf("product with ID %s not found for update", product.ID)
	}
	return nil
}

// Delete deletes a product by its ID from the database.
func (r *GORMProductRepository) Delete(id string) error {
	res := r.db.Delete(&models.Product{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete product: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("product with ID %s not found for deletion", id)
	}
	return nil
}

// TryReserve atomically decrements stock by up to quantity. The full
// reservation is a single conditional UPDATE guarded by `stock >= ?`, so two
// concurrent checkouts can never both claim the same units. The partial
// branch drains whatever is left with a compare-and-swap retry loop.
func (r *GORMProductRepository) TryReserve(id string, quantity int) (allocation.Outcome, error) {
	if quantity <= 0 {
		return allocation.Outcome{}, nil
	}

	res := r.db.Model(&models.Product{}).
		Where("id = ? AND stock >= ?", id, quantity).
		UpdateColumn("stock", gorm.Expr("stock - ?", quantity))
	if res.Error != nil {
		return allocation.Outcome{}, fmt.Errorf("failed to reserve stock for product %s: %w", id, res.Error)
	}
	if res.RowsAffected == 1 {
		// The remaining quantity feeds best-effort notifications only; a
		// follow-up read is good enough here.
		var product models.Product
		if err := r.db.Select("stock").First(&product, "id = ?", id).Error; err != nil {
			return allocation.Outcome{}, fmt.Errorf("failed to read stock for product %s after reserve: %w", id, err)
		}
		return allocation.Outcome{Reserved: quantity, Remaining: product.Stock}, nil
	}

	// Not enough stock for the full quantity. Take whatever remains, using a
	// CAS on the observed stock value so a concurrent reservation forces a
	// re-read instead of an oversell.
	for {
		var product models.Product
		err := r.db.Select("stock").First(&product, "id = ?", id).Error
		if err == gorm.ErrRecordNotFound {
			// Unknown products are treated as out of stock.
			return allocation.Outcome{}, nil
		}
		if err != nil {
			return allocation.Outcome{}, fmt.Errorf("failed to read stock for product %s: %w", id, err)
		}
		if product.Stock <= 0 {
			return allocation.Outcome{}, nil
		}
		if product.Stock >= quantity {
			// Stock was restocked between attempts; retry the full path.
			res := r.db.Model(&models.Product{}).
				Where("id = ? AND stock >= ?", id, quantity).
				UpdateColumn("stock", gorm.Expr("stock - ?", quantity))
			if res.Error != nil {
				return allocation.Outcome{}, fmt.Errorf("failed to reserve stock for product %s: %w", id, res.Error)
			}
			if res.RowsAffected == 1 {
				return allocation.Outcome{Reserved: quantity, Remaining: product.Stock - quantity}, nil
			}
			continue
		}

		res := r.db.Model(&models.Product{}).
			Where("id = ? AND stock = ?", id, product.Stock).
			UpdateColumn("stock", 0)
		if res.Error != nil {
			return allocation.Outcome{}, fmt.Errorf("failed to reserve stock for product %s: %w", id, res.Error)
		}
		if res.RowsAffected == 1 {
			return allocation.Outcome{Reserved: product.Stock, Remaining: 0}, nil
		}
		// Lost the race against another writer; re-read and try again.
	}
}

// Release returns previously reserved stock, compensating a checkout whose
// order persistence failed.
func (r *GORMProductRepository) Release(id string, quantity int) error {
	if quantity <= 0 {
		return nil
	}
	res := r.db.Model(&models.Product{}).
		Where("id = ?", id).
		UpdateColumn("stock", gorm.Expr("stock + ?", quantity))
	if res.Error != nil {
		return fmt.Errorf("failed to release stock for product %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("product with ID %s not found for release", id)
	}
	return nil
}

// AddReview stores a review and refreshes the product's rating aggregates in
// one transaction.
func (r *GORMProductRepository) AddReview(review *models.Review) error {
	if review.ID == "" {
		review.ID = uuid.New().String()
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, "id = ?", review.ProductID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("product with ID %s not found for review", review.ProductID)
			}
			return fmt.Errorf("failed to load product %s for review: %w", review.ProductID, err)
		}
		if err := tx.Create(review).Error; err != nil {
			return fmt.Errorf("failed to create review: %w", err)
		}

		newCount := product.NumOfReviews + 1
		newRating := (product.Ratings*float64(product.NumOfReviews) + float64(review.Rating)) / float64(newCount)
		if err := tx.Model(&models.Product{}).Where("id = ?", product.ID).
			Updates(map[string]interface{}{"ratings": newRating, "num_of_reviews": newCount}).Error; err != nil {
			return fmt.Errorf("failed to update rating for product %s: %w", product.ID, err)
		}
		return nil
	})
}
