package models

import "gorm.io/gorm"

// Product represents a product listed by a seller.
type Product struct {
	ID           string  `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	Name         string  `json:"name" validate:"required,min=3,max=100"`
	Description  string  `json:"description" validate:"omitempty,max=500"`
	Category     string  `json:"category" validate:"required,max=100"`
	Price        float64 `json:"price" validate:"required,gt=0"`
	Stock        int     `json:"stock" validate:"gte=0"`
	ImageURL     string  `json:"image_url" validate:"omitempty,url"`
	SellerID     string  `json:"seller_id" gorm:"index;type:varchar(36)" validate:"required,uuid"`
	Ratings      float64 `json:"ratings" gorm:"default:0"`
	NumOfReviews int     `json:"num_of_reviews" gorm:"default:0"`
	gorm.Model           // Embed gorm.Model for CreatedAt, UpdatedAt, DeletedAt
}

// Review is a buyer's rating and comment on a product they ordered.
type Review struct {
	ID        string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ProductID string `json:"product_id" gorm:"index;type:varchar(36)" validate:"required,uuid"`
	UserID    string `json:"user_id" gorm:"type:varchar(36)" validate:"required,uuid"`
	Username  string `json:"username"`
	Rating    int    `json:"rating" validate:"required,min=1,max=5"`
	Comment   string `json:"comment" validate:"required,max=1000"`
	gorm.Model
}
