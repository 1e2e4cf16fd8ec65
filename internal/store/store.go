package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pos-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Sentinel errors surfaced to the service layer.
var (
	ErrNotFound                   = errors.New("not found")
	ErrDuplicateTransactionNumber = errors.New("duplicate transaction number")
	ErrDuplicateIdempotencyKey    = errors.New("duplicate idempotency key")
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProducts retrieves all products, optionally filtered by category
func (s *Store) GetProducts(ctx context.Context, categoryID string) ([]models.Product, error) {
	var products []models.Product
	if categoryID != "" {
		err := s.db.SelectContext(ctx, &products,
			"SELECT * FROM products WHERE category_id = $1 ORDER BY name", categoryID)
		return products, err
	}
	err := s.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY name")
	return products, err
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// CreateProduct creates a new product
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (name, category_id, price, description, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, product, query,
		product.Name, product.CategoryID, product.Price, product.Description, product.IsActive)
}

// UpdateProduct updates an existing product
func (s *Store) UpdateProduct(ctx context.Context, product *models.Product) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $1, category_id = $2, price = $3, description = $4, is_active = $5, updated_at = NOW()
		WHERE id = $6`,
		product.Name, product.CategoryID, product.Price, product.Description, product.IsActive, product.ID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("product %s: %w", product.ID, ErrNotFound)
	}
	return nil
}

// DeleteProduct removes a product and its recipe entries
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM product_ingredients WHERE product_id = $1", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id); err != nil {
		return err
	}
	return tx.Commit()
}

// GetCategories retrieves all categories
func (s *Store) GetCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := s.db.SelectContext(ctx, &categories, "SELECT * FROM categories ORDER BY name")
	return categories, err
}

// CreateCategory creates a new category
func (s *Store) CreateCategory(ctx context.Context, category *models.Category) error {
	query := `
		INSERT INTO categories (name, type)
		VALUES ($1, $2)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, category, query, category.Name, category.Type)
}

// GetRecipeEntries retrieves the ingredient mapping for a product
func (s *Store) GetRecipeEntries(ctx context.Context, productID string) ([]models.RecipeEntry, error) {
	var entries []models.RecipeEntry
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM product_ingredients WHERE product_id = $1", productID)
	return entries, err
}

// ReplaceRecipeEntries swaps a product's recipe for a new set of entries
func (s *Store) ReplaceRecipeEntries(ctx context.Context, productID string, entries []models.RecipeEntry) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM product_ingredients WHERE product_id = $1", productID); err != nil {
		return err
	}
	for i := range entries {
		if err := tx.GetContext(ctx, &entries[i].ID, `
			INSERT INTO product_ingredients (product_id, inventory_id, quantity)
			VALUES ($1, $2, $3)
			RETURNING id`,
			productID, entries[i].InventoryID, entries[i].Quantity); err != nil {
			return err
		}
		entries[i].ProductID = productID
	}
	return tx.Commit()
}
