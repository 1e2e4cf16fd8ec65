package service

import (
	"context"
	"fmt"

	"pos-service/internal/models"
	"pos-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CatalogStore is the persistence surface for products, categories and recipes
type CatalogStore interface {
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	GetProducts(ctx context.Context, categoryID string) ([]models.Product, error)
	CreateProduct(ctx context.Context, product *models.Product) error
	UpdateProduct(ctx context.Context, product *models.Product) error
	DeleteProduct(ctx context.Context, id string) error
	GetCategories(ctx context.Context) ([]models.Category, error)
	CreateCategory(ctx context.Context, category *models.Category) error
	GetRecipeEntries(ctx context.Context, productID string) ([]models.RecipeEntry, error)
	ReplaceRecipeEntries(ctx context.Context, productID string, entries []models.RecipeEntry) error
}

// CatalogService owns product, category and recipe management
type CatalogService struct {
	store  CatalogStore
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store CatalogStore) *CatalogService {
	return &CatalogService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// RecipeItemRequest is one ingredient line of a product's recipe
type RecipeItemRequest struct {
	InventoryID string          `json:"inventory_id" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required"`
}

// SaveProductRequest carries product fields plus its recipe
type SaveProductRequest struct {
	Name        string              `json:"name" binding:"required"`
	CategoryID  string              `json:"category_id,omitempty"`
	Price       decimal.Decimal     `json:"price" binding:"required"`
	Description string              `json:"description,omitempty"`
	IsActive    *bool               `json:"is_active,omitempty"`
	Ingredients []RecipeItemRequest `json:"ingredients,omitempty"`
}

// CreateProduct creates a product with its optional recipe mapping
func (s *CatalogService) CreateProduct(ctx context.Context, req *SaveProductRequest) (*models.Product, error) {
	if err := validateRecipe(req.Ingredients); err != nil {
		return nil, err
	}
	if req.Price.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: price %s", ErrInvalidAmount, req.Price.String())
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	product := &models.Product{
		Name:        req.Name,
		CategoryID:  optional(req.CategoryID),
		Price:       req.Price,
		Description: optional(req.Description),
		IsActive:    active,
	}

	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	if len(req.Ingredients) > 0 {
		if err := s.store.ReplaceRecipeEntries(ctx, product.ID, toRecipeEntries(req.Ingredients)); err != nil {
			return nil, fmt.Errorf("failed to save recipe: %w", err)
		}
	}

	s.logger.Info("Product created",
		zap.String("product_id", product.ID),
		zap.String("name", product.Name),
		zap.Int("ingredients", len(req.Ingredients)))
	return product, nil
}

// UpdateProduct updates a product; a non-nil Ingredients slice replaces the
// whole recipe
func (s *CatalogService) UpdateProduct(ctx context.Context, id string, req *SaveProductRequest) (*models.Product, error) {
	if err := validateRecipe(req.Ingredients); err != nil {
		return nil, err
	}

	product, err := s.store.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}

	product.Name = req.Name
	product.CategoryID = optional(req.CategoryID)
	if req.Price.GreaterThan(decimal.Zero) {
		product.Price = req.Price
	}
	product.Description = optional(req.Description)
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}

	if err := s.store.UpdateProduct(ctx, product); err != nil {
		return nil, err
	}

	if req.Ingredients != nil {
		if err := s.store.ReplaceRecipeEntries(ctx, id, toRecipeEntries(req.Ingredients)); err != nil {
			return nil, fmt.Errorf("failed to save recipe: %w", err)
		}
	}

	return product, nil
}

// DeleteProduct removes a product and its recipe
func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	return s.store.DeleteProduct(ctx, id)
}

// ListProducts retrieves products, optionally filtered by category
func (s *CatalogService) ListProducts(ctx context.Context, categoryID string) ([]models.Product, error) {
	return s.store.GetProducts(ctx, categoryID)
}

// GetIngredientsFor retrieves the recipe entries of a product
func (s *CatalogService) GetIngredientsFor(ctx context.Context, productID string) ([]models.RecipeEntry, error) {
	return s.store.GetRecipeEntries(ctx, productID)
}

// ListCategories retrieves all categories
func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.store.GetCategories(ctx)
}

// CreateCategory creates a category
func (s *CatalogService) CreateCategory(ctx context.Context, category *models.Category) error {
	if category.Name == "" || category.Type == "" {
		return fmt.Errorf("category name and type are required")
	}
	return s.store.CreateCategory(ctx, category)
}

func toRecipeEntries(items []RecipeItemRequest) []models.RecipeEntry {
	entries := make([]models.RecipeEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, models.RecipeEntry{
			InventoryID: item.InventoryID,
			Quantity:    item.Quantity,
		})
	}
	return entries
}

func validateRecipe(items []RecipeItemRequest) error {
	for _, item := range items {
		if item.Quantity.IsNegative() {
			return fmt.Errorf("%w: recipe quantity for %s", ErrInvalidAmount, item.InventoryID)
		}
	}
	return nil
}
