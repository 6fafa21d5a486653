package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/farmachelo/pharmacy-backend/api/responses"
	"github.com/farmachelo/pharmacy-backend/api/validators"
	"github.com/farmachelo/pharmacy-backend/internal/catalog"
	"github.com/farmachelo/pharmacy-backend/pkg/enums"
	pkgerrors "github.com/farmachelo/pharmacy-backend/pkg/errors"
	"github.com/farmachelo/pharmacy-backend/pkg/logger"
)

const maxProductsPage = 200

// ProductsList returns active products filtered by category and a name search.
func ProductsList(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("catalog"))
			return
		}

		category, err := parseCategory(r.URL.Query().Get("category"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 100, 1, maxProductsPage)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		products, err := svc.List(r.Context(), catalog.ListFilter{
			Category: category,
			Search:   validators.SanitizeString(r.URL.Query().Get("search"), 100),
			Limit:    limit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, products)
	}
}

func ProductGet(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("catalog"))
			return
		}
		id, err := uuidParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

type createProductRequest struct {
	Name                 string          `json:"name" validate:"required,max=200"`
	Description          string          `json:"description" validate:"max=2000"`
	Price                decimal.Decimal `json:"price"`
	Category             *string         `json:"category"`
	Stock                int             `json:"stock" validate:"min=0"`
	ImageURL             *string         `json:"image_url" validate:"omitempty,url"`
	RequiresPrescription bool            `json:"requires_prescription"`
}

type updateProductRequest struct {
	Name                 *string          `json:"name" validate:"omitempty,max=200"`
	Description          *string          `json:"description" validate:"omitempty,max=2000"`
	Price                *decimal.Decimal `json:"price"`
	Category             *string          `json:"category"`
	Stock                *int             `json:"stock" validate:"omitempty,min=0"`
	ImageURL             *string          `json:"image_url" validate:"omitempty,url"`
	RequiresPrescription *bool            `json:"requires_prescription"`
	Active               *bool            `json:"active"`
}

func AdminProductCreate(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("catalog"))
			return
		}

		var body createProductRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		category, err := parseOptionalCategory(body.Category)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.Create(r.Context(), catalog.CreateProductInput{
			Name:                 body.Name,
			Description:          body.Description,
			Price:                body.Price,
			Category:             category,
			Stock:                body.Stock,
			ImageURL:             body.ImageURL,
			RequiresPrescription: body.RequiresPrescription,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, product)
	}
}

func AdminProductUpdate(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("catalog"))
			return
		}
		id, err := uuidParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateProductRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		category, err := parseOptionalCategory(body.Category)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.Update(r.Context(), id, catalog.UpdateProductInput{
			Name:                 body.Name,
			Description:          body.Description,
			Price:                body.Price,
			Category:             category,
			Stock:                body.Stock,
			ImageURL:             body.ImageURL,
			RequiresPrescription: body.RequiresPrescription,
			Active:               body.Active,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

// AdminProductDelete soft deletes a product by deactivating it.
func AdminProductDelete(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("catalog"))
			return
		}
		id, err := uuidParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Deactivate(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func parseCategory(raw string) (*enums.ProductCategory, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	category, err := enums.ParseProductCategory(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category").WithDetails(map[string]any{"field": "category"})
	}
	return &category, nil
}

func parseOptionalCategory(raw *string) (*enums.ProductCategory, error) {
	if raw == nil {
		return nil, nil
	}
	return parseCategory(*raw)
}
