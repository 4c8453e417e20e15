package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/tillpoint-backend/api/responses"
	"github.com/angelmondragon/tillpoint-backend/api/validators"
	"github.com/angelmondragon/tillpoint-backend/internal/catalog"
	pkgerrors "github.com/angelmondragon/tillpoint-backend/pkg/errors"
	"github.com/angelmondragon/tillpoint-backend/pkg/logger"
)

// CatalogReader is the read side of the catalog cache.
type CatalogReader interface {
	Get(productID uuid.UUID) (catalog.Product, bool)
	GetInventory(productID uuid.UUID) (catalog.StockLevel, bool)
	FindByCode(code string) (catalog.Product, bool)
	Search(query string, categoryID *uuid.UUID) []catalog.Product
	Categories() []catalog.Category
	LowStock() []catalog.LowStockItem
}

// ProductView is a product with its current stock, if tracked.
type ProductView struct {
	catalog.Product
	Stock *catalog.StockLevel `json:"stock,omitempty"`
}

func productView(cat CatalogReader, p catalog.Product) ProductView {
	view := ProductView{Product: p}
	if stock, ok := cat.GetInventory(p.ID); ok {
		view.Stock = &stock
	}
	return view
}

// CatalogSearch backs the till search box: name, barcode or short code, with
// an optional category filter.
func CatalogSearch(cat CatalogReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cat == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		categoryID, err := validators.ParseQueryUUID(r, "category_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := validators.SanitizeString(r.URL.Query().Get("q"), 100)
		found := cat.Search(query, categoryID)
		if len(found) > limit {
			found = found[:limit]
		}
		out := make([]ProductView, 0, len(found))
		for _, p := range found {
			out = append(out, productView(cat, p))
		}
		responses.WriteSuccess(w, out)
	}
}

func CatalogProduct(cat CatalogReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cat == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		p, ok := cat.Get(productID)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": productID}))
			return
		}
		responses.WriteSuccess(w, productView(cat, p))
	}
}

// CatalogLookup resolves a scanned barcode or short code.
func CatalogLookup(cat CatalogReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cat == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		code := validators.SanitizeCode(chi.URLParam(r, "code"))
		if code == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "code is required"))
			return
		}
		p, ok := cat.FindByCode(code)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnknownProduct, "no active product matches the code").
				WithDetails(map[string]any{"code": code}))
			return
		}
		responses.WriteSuccess(w, productView(cat, p))
	}
}

func CatalogCategories(cat CatalogReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cat == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		responses.WriteSuccess(w, cat.Categories())
	}
}

func CatalogLowStock(cat CatalogReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cat == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		responses.WriteSuccess(w, cat.LowStock())
	}
}
