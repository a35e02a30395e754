package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/billingd/internal/model"
	"github.com/dukerupert/billingd/internal/store"
)

// CatalogHandler serves the read-only product and price listings.
type CatalogHandler struct {
	products *store.ProductStore
	prices   *store.PriceStore
	logger   *slog.Logger
}

func NewCatalogHandler(products *store.ProductStore, prices *store.PriceStore, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{products: products, prices: prices, logger: logger}
}

// ListProducts returns all products with their prices attached.
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.ListWithPrices()
	if err != nil {
		h.logger.Error("list products", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if products == nil {
		products = []*model.Product{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(products)
}

func (h *CatalogHandler) ListPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := h.prices.List()
	if err != nil {
		h.logger.Error("list prices", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if prices == nil {
		prices = []*model.Price{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(prices)
}
