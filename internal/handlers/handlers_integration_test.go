package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"testing"

	"pasar/internal/handlers"
	"pasar/internal/middleware"
	"pasar/internal/models"
	"pasar/internal/repositories"
	"pasar/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testDBSeq atomic.Int64

// setupApp sets up a Fiber app for testing with in-memory SQLite and all
// handlers/services. No broker: the order service publishes to a nil
// publisher, which is a logged no-op.
func setupApp(t *testing.T) *fiber.App {
	t.Helper()

	// Configure Viper for testing
	viper.SetDefault("JWT_SECRET", "test_jwt_secret")
	viper.AutomaticEnv()
	jwtSecret := viper.GetString("JWT_SECRET")

	// Initialize in-memory SQLite database. Each test gets its own named
	// shared-memory database so GORM's connection pool sees one database
	// per test instead of one per connection.
	dsn := fmt.Sprintf("file:apptest%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Product{}, &models.Review{}, &models.Order{}))

	// Initialize Repositories
	productRepo := repositories.NewGORMProductRepository(db)
	orderRepo := repositories.NewGORMOrderRepository(db)
	userRepo := repositories.NewGORMUserRepository(db)

	// Initialize Services
	productService := services.NewProductService(productRepo, nil)
	orderService := services.NewOrderService(orderRepo, productRepo, nil)
	authService := services.NewAuthService(userRepo, jwtSecret)

	// Initialize Handlers
	productHandler := handlers.NewProductHandler(productService)
	orderHandler := handlers.NewOrderHandler(orderService)
	authHandler := handlers.NewAuthHandler(authService)

	app := fiber.New()

	// API Routes
	apiV1 := app.Group("/api/v1")

	// Authentication routes (public)
	authHandler.RegisterRoutes(apiV1)

	// Protected routes (require JWT authentication)
	protectedRoutes := apiV1.Group("", middleware.AuthRequired(authService))
	productHandler.RegisterRoutes(protectedRoutes)
	orderHandler.RegisterRoutes(protectedRoutes)
	authHandler.RegisterUserRoutes(protectedRoutes)

	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, payload interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, path, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var decoded map[string]interface{}
	if len(raw) > 0 {
		// Some endpoints return arrays; those tests decode on their own.
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp, decoded
}

// registerAndLogin creates a user with the given role and returns its ID and
// a bearer token.
func registerAndLogin(t *testing.T, app *fiber.App, username, role string) (string, string) {
	t.Helper()

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/auth/register", "", map[string]interface{}{
		"username": username,
		"email":    username + "@example.com",
		"Password": "password123",
		"role":     role,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "register failed: %v", body)
	user := body["user"].(map[string]interface{})
	userID := user["id"].(string)

	resp, body = doJSON(t, app, http.MethodPost, "/api/v1/auth/login", "", map[string]interface{}{
		"username": username,
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "login failed: %v", body)
	return userID, body["token"].(string)
}

func TestCheckoutFlow(t *testing.T) {
	app := setupApp(t)

	sellerUserID, sellerToken := registerAndLogin(t, app, "seller1", "seller")
	_, buyerToken := registerAndLogin(t, app, "buyer1", "buyer")

	// Seller lists a product with 3 units in stock.
	resp, product := doJSON(t, app, http.MethodPost, "/api/v1/products", sellerToken, map[string]interface{}{
		"name":        "Walnut Desk",
		"description": "Solid walnut desk",
		"category":    "furniture",
		"price":       40.0,
		"stock":       3,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "create product failed: %v", product)
	productID := product["id"].(string)

	// Buyer orders 5: partial fulfillment, 3 allocated + 2 deferred.
	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/orders", buyerToken, map[string]interface{}{
		"seller_id": sellerUserID,
		"shipping_info": map[string]string{
			"street": "1 Main St", "city": "Springfield", "state": "IL", "zip": "62701",
		},
		"order_items": []map[string]interface{}{
			{"product_id": productID, "quantity": 5, "price": 0.01},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "create order failed: %v", body)

	order := body["order"].(map[string]interface{})
	items := order["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, float64(3), items[0].(map[string]interface{})["quantity"])
	assert.Equal(t, 40.0, items[0].(map[string]interface{})["price"], "catalog price must override the caller's")

	rest := body["rest_cart_items"].([]interface{})
	require.Len(t, rest, 1)
	assert.Equal(t, float64(2), rest[0].(map[string]interface{})["quantity"])

	// 3 × 40 = 120 subtotal; over the threshold, so shipping is free.
	assert.Equal(t, 120.0, order["items_price"])
	assert.Equal(t, 6.0, order["tax_price"])
	assert.Equal(t, 0.0, order["shipping_price"])
	assert.Equal(t, 126.0, order["total_price"])
	assert.Equal(t, models.StatusProcessing, order["status"])

	// The product is now drained.
	resp, product = doJSON(t, app, http.MethodGet, "/api/v1/products/"+productID, buyerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), product["stock"])

	// A second order finds nothing left.
	resp, body = doJSON(t, app, http.MethodPost, "/api/v1/orders", buyerToken, map[string]interface{}{
		"seller_id": sellerUserID,
		"shipping_info": map[string]string{
			"street": "1 Main St", "city": "Springfield", "state": "IL", "zip": "62701",
		},
		"order_items": []map[string]interface{}{
			{"product_id": productID, "quantity": 1},
		},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "All items are out of stock", body["message"])
	require.Len(t, body["rest_cart_items"].([]interface{}), 1)

	orderID := order["id"].(string)

	// The buyer cannot update the status; the seller can, and delivery
	// settles the pending payment.
	resp, _ = doJSON(t, app, http.MethodPatch, "/api/v1/orders/"+orderID+"/status", buyerToken, map[string]string{"status": models.StatusDelivered})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPatch, "/api/v1/orders/"+orderID+"/status", sellerToken, map[string]string{"status": models.StatusDelivered})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, app, http.MethodGet, "/api/v1/orders/"+orderID, sellerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.StatusDelivered, body["status"])
	assert.Equal(t, models.PaymentPaid, body["payment_info"].(map[string]interface{})["status"])

	// Buyer reviews the product.
	resp, body = doJSON(t, app, http.MethodPost, "/api/v1/products/"+productID+"/reviews", buyerToken, map[string]interface{}{
		"rating":  4,
		"comment": "Fine desk, wish there were more in stock",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "add review failed: %v", body)
}

func TestRoleGates(t *testing.T) {
	app := setupApp(t)

	_, buyerToken := registerAndLogin(t, app, "buyer2", "buyer")
	_, sellerToken := registerAndLogin(t, app, "seller2", "seller")

	// Buyers cannot list products.
	resp, _ := doJSON(t, app, http.MethodPost, "/api/v1/products", buyerToken, map[string]interface{}{
		"name": "Sneaky Product", "category": "misc", "price": 1.0, "stock": 1,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Sellers cannot see the admin order listing.
	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/orders", sellerToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// No token at all.
	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAccountRoutes(t *testing.T) {
	app := setupApp(t)

	buyerUserID, buyerToken := registerAndLogin(t, app, "buyer3", "buyer")
	_, sellerToken := registerAndLogin(t, app, "seller3", "seller")

	// A user sees their own profile, without the password hash.
	resp, body := doJSON(t, app, http.MethodGet, "/api/v1/users/me", buyerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user := body["user"].(map[string]interface{})
	assert.Equal(t, buyerUserID, user["id"])
	assert.Equal(t, models.RoleBuyer, user["role"])
	assert.Empty(t, user["Password"])

	// The user listing is admin-only.
	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/users", buyerToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/users", sellerToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Password change requires the current password, then the new one works.
	resp, _ = doJSON(t, app, http.MethodPatch, "/api/v1/users/me/password", buyerToken, map[string]string{
		"current_password": "wrongpassword",
		"new_password":     "password456",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPatch, "/api/v1/users/me/password", buyerToken, map[string]string{
		"current_password": "password123",
		"new_password":     "password456",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "buyer3",
		"password": "password123",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = doJSON(t, app, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "buyer3",
		"password": "password456",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "login with new password failed: %v", body)
}

func TestRegisterEchoesAssignedRole(t *testing.T) {
	app := setupApp(t)

	// A self-declared admin is downgraded, and the response says so.
	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/auth/register", "", map[string]interface{}{
		"username": "wannabe",
		"email":    "wannabe@example.com",
		"Password": "password123",
		"role":     "admin",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "register failed: %v", body)
	assert.Equal(t, models.RoleBuyer, body["role"])
}

func TestSellerCannotTouchForeignProduct(t *testing.T) {
	app := setupApp(t)

	_, ownerToken := registerAndLogin(t, app, "owner", "seller")
	_, otherToken := registerAndLogin(t, app, "intruder", "seller")

	resp, product := doJSON(t, app, http.MethodPost, "/api/v1/products", ownerToken, map[string]interface{}{
		"name": "Owned Product", "category": "misc", "price": 9.5, "stock": 4,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	productID := product["id"].(string)

	resp, _ = doJSON(t, app, http.MethodDelete, "/api/v1/products/"+productID, otherToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPut, "/api/v1/products/"+productID, otherToken, map[string]interface{}{
		"name": "Hijacked", "category": "misc", "price": 0.5, "stock": 4,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
