package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-auth-api/app/entity"
	"go-auth-api/app/repository"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// sortableColumns is the whitelist of ORDER BY targets. The repository
// splices the column name into SQL, so nothing outside this set may pass.
var sortableColumns = map[string]bool{
	"name":       true,
	"price":      true,
	"stock":      true,
	"created_at": true,
}

// ProductListParams are the raw listing inputs as the client sent them.
// Normalize turns them into a safe repository filter.
type ProductListParams struct {
	Search   string
	SortBy   string
	SortDesc bool
	Page     int
	Limit    int
}

func (p ProductListParams) normalize() repository.ProductFilter {
	page := p.Page
	if page < 1 {
		page = 1
	}
	limit := p.Limit
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	sortBy := p.SortBy
	if !sortableColumns[sortBy] {
		sortBy = "created_at"
	}
	return repository.ProductFilter{
		Search:   p.Search,
		SortBy:   sortBy,
		SortDesc: p.SortDesc,
		Limit:    limit,
		Offset:   (page - 1) * limit,
	}
}

// ProductUpdate carries the fields to change; nil means keep the current
// value.
type ProductUpdate struct {
	Name        *string
	Description *string
	Price       *float64
	Stock       *int
}

// ProductList is one page of a user's products plus the pagination envelope.
type ProductList struct {
	Products []*entity.Product
	Total    int64
	Page     int
	Limit    int
}

// ProductService is the per-user product catalog. Every operation is scoped
// to the owning user; there is no cross-user access path.
type ProductService struct {
	products *repository.ProductRepository
}

func NewProductService(products *repository.ProductRepository) *ProductService {
	return &ProductService{products: products}
}

func (s *ProductService) Create(ctx context.Context, userID, name, description string, price float64, stock int) (*entity.Product, error) {
	now := time.Now().UTC()
	product := &entity.Product{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        name,
		Description: description,
		Price:       price,
		Stock:       stock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.products.Create(ctx, product); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id":    userID,
		"product_id": product.ID,
	}).Info("Product created")
	return product, nil
}

func (s *ProductService) Get(ctx context.Context, userID, productID string) (*entity.Product, error) {
	product, err := s.products.FindByID(ctx, userID, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	return product, nil
}

func (s *ProductService) List(ctx context.Context, userID string, params ProductListParams) (*ProductList, error) {
	filter := params.normalize()

	products, err := s.products.List(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.products.Count(ctx, userID, filter)
	if err != nil {
		return nil, err
	}

	return &ProductList{
		Products: products,
		Total:    total,
		Page:     filter.Offset/filter.Limit + 1,
		Limit:    filter.Limit,
	}, nil
}

// Update applies a partial update; unset fields keep their stored value.
func (s *ProductService) Update(ctx context.Context, userID, productID string, update ProductUpdate) (*entity.Product, error) {
	product, err := s.Get(ctx, userID, productID)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		product.Name = *update.Name
	}
	if update.Description != nil {
		product.Description = *update.Description
	}
	if update.Price != nil {
		product.Price = *update.Price
	}
	if update.Stock != nil {
		product.Stock = *update.Stock
	}

	if err := s.products.Update(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

// Delete removes the given products. Unknown or foreign ids make the whole
// request fail with ErrProductNotFound when nothing was deleted.
func (s *ProductService) Delete(ctx context.Context, userID string, productIDs []string) (int64, error) {
	deleted, err := s.products.DeleteByIDs(ctx, userID, productIDs)
	if err != nil {
		return 0, err
	}
	if deleted == 0 {
		return 0, ErrProductNotFound
	}

	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"count":   deleted,
	}).Info("Products deleted")
	return deleted, nil
}
