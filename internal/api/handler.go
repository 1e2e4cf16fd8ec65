package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/service"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const cashierHeader = "X-Cashier-ID"

// Handler contains HTTP handlers
type Handler struct {
	sales     *service.SaleService
	receipts  *service.ReceiptService
	inventory *service.InventoryService
	cashFlow  *service.CashFlowService
	catalog   *service.CatalogService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	sales *service.SaleService,
	receipts *service.ReceiptService,
	inventory *service.InventoryService,
	cashFlow *service.CashFlowService,
	catalog *service.CatalogService,
) *Handler {
	return &Handler{
		sales:     sales,
		receipts:  receipts,
		inventory: inventory,
		cashFlow:  cashFlow,
		catalog:   catalog,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/sales", h.commitSale)
		v1.GET("/sales", h.listSales)
		v1.GET("/sales/:id", h.getSale)

		v1.POST("/receipts/print", h.printReceipt)
		v1.GET("/printer/status", h.printerStatus)

		v1.GET("/inventory", h.listInventory)
		v1.POST("/inventory", h.createInventory)
		v1.PUT("/inventory/:id", h.updateInventory)
		v1.DELETE("/inventory/:id", h.deleteInventory)
		v1.GET("/inventory/:id/stock", h.getStock)
		v1.POST("/inventory/:id/stock", h.adjustStock)

		v1.GET("/stock-movements", h.listStockMovements)

		v1.GET("/cash-flow", h.listCashFlow)
		v1.POST("/cash-flow", h.recordCashFlow)

		v1.GET("/products", h.listProducts)
		v1.POST("/products", h.createProduct)
		v1.PUT("/products/:id", h.updateProduct)
		v1.DELETE("/products/:id", h.deleteProduct)
		v1.GET("/products/:id/ingredients", h.getProductIngredients)

		v1.GET("/categories", h.listCategories)
		v1.POST("/categories", h.createCategory)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// commitSale handles the sale commit
func (h *Handler) commitSale(c *gin.Context) {
	var req service.CommitSaleRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}
	cashierID := c.GetHeader(cashierHeader)

	txn, err := h.sales.CommitSale(c.Request.Context(), &req, cashierID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{
			"error":   "Failed to commit sale",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, txn)
}

// listSales handles listing recent transactions
func (h *Handler) listSales(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	txns, err := h.sales.ListTransactions(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transactions"})
		return
	}
	c.JSON(http.StatusOK, txns)
}

// getSale handles fetching one transaction with its items
func (h *Handler) getSale(c *gin.Context) {
	txn, items, err := h.sales.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusForError(err), gin.H{
			"error":   "Transaction not found",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transaction": txn,
		"items":       items,
	})
}

type printReceiptRequest struct {
	TransactionID string `json:"transaction_id" binding:"required"`
}

// printReceipt handles manual receipt printing and reprints
func (h *Handler) printReceipt(c *gin.Context) {
	var req printReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	resp, err := h.receipts.PrintReceipt(c.Request.Context(), req.TransactionID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{
			"error":   "Failed to print receipt",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Receipt printed successfully", "result": resp})
}

// printerStatus proxies the print server's readiness check
func (h *Handler) printerStatus(c *gin.Context) {
	status, err := h.receipts.PrinterStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":     "Failed to check printer status",
			"connected": false,
			"details":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, status)
}

// listInventory handles listing inventory with low stock flags
func (h *Handler) listInventory(c *gin.Context) {
	items, err := h.inventory.ListInventory(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch inventory"})
		return
	}
	c.JSON(http.StatusOK, items)
}

type saveInventoryRequest struct {
	Name     string          `json:"name" binding:"required"`
	Unit     string          `json:"unit" binding:"required"`
	Stock    decimal.Decimal `json:"stock"`
	MinStock decimal.Decimal `json:"min_stock"`
	Cost     decimal.Decimal `json:"cost"`
}

// createInventory handles inventory item creation
func (h *Handler) createInventory(c *gin.Context) {
	var req saveInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	inv := &models.Inventory{
		Name:     req.Name,
		Unit:     req.Unit,
		Stock:    req.Stock,
		MinStock: req.MinStock,
		Cost:     req.Cost,
	}
	if err := h.inventory.CreateInventory(c.Request.Context(), inv); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create inventory", "details": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, inv)
}

// updateInventory handles inventory item updates (descriptive fields only)
func (h *Handler) updateInventory(c *gin.Context) {
	var req saveInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	inv := &models.Inventory{
		ID:       c.Param("id"),
		Name:     req.Name,
		Unit:     req.Unit,
		MinStock: req.MinStock,
		Cost:     req.Cost,
	}
	if err := h.inventory.UpdateInventory(c.Request.Context(), inv); err != nil {
		c.JSON(statusForError(err), gin.H{"error": "Failed to update inventory", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Inventory updated successfully"})
}

// deleteInventory handles inventory item deletion
func (h *Handler) deleteInventory(c *gin.Context) {
	if err := h.inventory.DeleteInventory(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete inventory", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Inventory deleted successfully"})
}

// getStock returns the current stock level, served from the cache when warm
func (h *Handler) getStock(c *gin.Context) {
	stock, err := h.inventory.GetStock(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": "Failed to fetch stock", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"inventory_id": c.Param("id"), "stock": stock})
}

type adjustStockRequest struct {
	Delta    *decimal.Decimal `json:"delta,omitempty"`
	NewStock *decimal.Decimal `json:"new_stock,omitempty"`
	Type     string           `json:"type,omitempty"`
	Notes    string           `json:"notes,omitempty"`
}

// adjustStock applies a stock delta or rewrites the level to an absolute
// value; either way a stock movement row is written atomically with it
func (h *Handler) adjustStock(c *gin.Context) {
	var req adjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	cashierID := c.GetHeader(cashierHeader)
	inventoryID := c.Param("id")

	var movement *models.StockMovement
	var err error
	switch {
	case req.Delta != nil:
		movementType := req.Type
		if movementType == "" {
			if req.Delta.IsNegative() {
				movementType = models.MovementTypeOut
			} else {
				movementType = models.MovementTypeIn
			}
		}
		movement, err = h.inventory.AdjustStock(c.Request.Context(), inventoryID, *req.Delta, movementType, req.Notes, cashierID)
	case req.NewStock != nil:
		movement, err = h.inventory.SetStock(c.Request.Context(), inventoryID, *req.NewStock, req.Type, req.Notes, cashierID)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Either delta or new_stock is required"})
		return
	}

	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": "Failed to update stock", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Stock updated successfully", "movement": movement})
}

// listStockMovements handles listing stock movements
func (h *Handler) listStockMovements(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	movements, err := h.inventory.ListMovements(c.Request.Context(), c.Query("inventory_id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stock movements"})
		return
	}
	c.JSON(http.StatusOK, movements)
}

// listCashFlow handles listing ledger entries with optional filters
func (h *Handler) listCashFlow(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	filter := store.CashFlowFilter{
		Type:     c.Query("type"),
		Category: c.Query("category"),
		From:     parseDate(c.Query("from")),
		To:       parseDate(c.Query("to")),
		Limit:    limit,
	}

	entries, err := h.cashFlow.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch cash flow"})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// recordCashFlow handles manual ledger entries
func (h *Handler) recordCashFlow(c *gin.Context) {
	var req service.RecordCashFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	entry, err := h.cashFlow.Record(c.Request.Context(), &req, c.GetHeader(cashierHeader))
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": "Failed to record cash flow", "details": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// listProducts handles listing products
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context(), c.Query("category_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch products"})
		return
	}
	c.JSON(http.StatusOK, products)
}

// createProduct handles product creation with its recipe
func (h *Handler) createProduct(c *gin.Context) {
	var req service.SaveProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": "Failed to create product", "details": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, product)
}

// updateProduct handles product updates
func (h *Handler) updateProduct(c *gin.Context) {
	var req service.SaveProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	product, err := h.catalog.UpdateProduct(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": "Failed to update product", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, product)
}

// deleteProduct handles product deletion
func (h *Handler) deleteProduct(c *gin.Context) {
	if err := h.catalog.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete product", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted successfully"})
}

// getProductIngredients handles fetching a product's recipe
func (h *Handler) getProductIngredients(c *gin.Context) {
	entries, err := h.catalog.GetIngredientsFor(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch product ingredients"})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// listCategories handles listing categories
func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch categories"})
		return
	}
	c.JSON(http.StatusOK, categories)
}

// createCategory handles category creation
func (h *Handler) createCategory(c *gin.Context) {
	var category models.Category
	if err := c.ShouldBindJSON(&category); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.catalog.CreateCategory(c.Request.Context(), &category); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to create category", "details": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, category)
}

// statusForError maps domain errors to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidPaymentMethod),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInsufficientPayment),
		errors.Is(err, service.ErrProductInactive):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrProductNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicateTransactionNumber):
		return http.StatusConflict
	case errors.Is(err, service.ErrPrintFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func parseDate(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t
	}
	return time.Time{}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
