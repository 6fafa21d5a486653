// Package seed loads the starter catalog and the default administrator.
package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/farmachelo/pharmacy-backend/internal/admins"
	"github.com/farmachelo/pharmacy-backend/internal/catalog"
	"github.com/farmachelo/pharmacy-backend/pkg/config"
	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
	"github.com/farmachelo/pharmacy-backend/pkg/enums"
	"github.com/farmachelo/pharmacy-backend/pkg/logger"
)

type passwordHasher interface {
	Hash(password string) (string, error)
}

// Seeder inserts rows that a fresh deployment needs. Every step is a no-op
// when its data already exists.
type Seeder struct {
	products *catalog.Repository
	admins   *admins.Repository
	hasher   passwordHasher
	cfg      config.SeedConfig
	logg     *logger.Logger
}

func NewSeeder(products *catalog.Repository, adminRepo *admins.Repository, hasher passwordHasher, cfg config.SeedConfig, logg *logger.Logger) (*Seeder, error) {
	if products == nil || adminRepo == nil {
		return nil, errors.New("seed repositories required")
	}
	if hasher == nil {
		return nil, errors.New("password hasher required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Seeder{products: products, admins: adminRepo, hasher: hasher, cfg: cfg, logg: logg}, nil
}

// Run seeds the catalog and the default admin.
func (s *Seeder) Run(ctx context.Context) error {
	if err := s.Catalog(ctx); err != nil {
		return err
	}
	return s.Admin(ctx)
}

// Catalog inserts the sample products when the catalog is empty.
func (s *Seeder) Catalog(ctx context.Context) error {
	count, err := s.products.Count(ctx)
	if err != nil {
		return fmt.Errorf("count products: %w", err)
	}
	if count > 0 {
		return nil
	}
	for _, product := range SampleProducts() {
		product := product
		if err := s.products.Create(ctx, &product); err != nil {
			return fmt.Errorf("seed product %q: %w", product.Name, err)
		}
	}
	s.logg.Info(s.logg.WithField(ctx, "count", len(SampleProducts())), "sample products added")
	return nil
}

// Admin creates the configured default administrator if it is missing.
func (s *Seeder) Admin(ctx context.Context) error {
	email := strings.ToLower(strings.TrimSpace(s.cfg.AdminEmail))
	if email == "" || s.cfg.AdminPassword == "" {
		return nil
	}
	_, err := s.admins.FindByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("find default admin: %w", err)
	}
	hash, err := s.hasher.Hash(s.cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	admin := &models.Admin{
		Email:        email,
		PasswordHash: hash,
		Name:         s.cfg.AdminName,
		IsActive:     true,
	}
	if err := s.admins.Create(ctx, admin); err != nil {
		return fmt.Errorf("create default admin: %w", err)
	}
	s.logg.Info(s.logg.WithField(ctx, "email", email), "default admin created")
	return nil
}

// SampleProducts is the starter catalog.
func SampleProducts() []models.Product {
	overCounter := enums.ProductCategoryOverCounter
	prescription := enums.ProductCategoryPrescription
	return []models.Product{
		{
			Name:        "Paracetamol 500mg",
			Description: "Analgésico y antipirético para alivio del dolor y fiebre",
			Price:       decimal.NewFromInt(8500),
			Category:    &overCounter,
			Stock:       100,
			ImageURL:    strPtr("https://images.unsplash.com/photo-1631549916768-4119b2e5f926"),
			Active:      true,
		},
		{
			Name:        "Ibuprofeno 400mg",
			Description: "Antiinflamatorio no esteroideo para dolor e inflamación",
			Price:       decimal.NewFromInt(12000),
			Category:    &overCounter,
			Stock:       85,
			ImageURL:    strPtr("https://images.pexels.com/photos/139398/thermometer-headache-pain-pills-139398.jpeg"),
			Active:      true,
		},
		{
			Name:                 "Amoxicilina 500mg",
			Description:          "Antibiótico de amplio espectro",
			Price:                decimal.NewFromInt(25000),
			Category:             &prescription,
			Stock:                40,
			RequiresPrescription: true,
			Active:               true,
		},
	}
}

func strPtr(v string) *string { return &v }
