package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go-auth-api/app/entity"
)

type ProductRepository struct {
	db DBTX
}

// ProductFilter narrows and orders a product listing. SortBy must already be
// validated against the sortable-column whitelist by the caller.
type ProductFilter struct {
	Search    string
	SortBy    string
	SortDesc  bool
	Limit     int
	Offset    int
}

func NewProductRepository(db DBTX) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) WithTx(tx *sql.Tx) *ProductRepository {
	return NewProductRepository(tx)
}

func (r *ProductRepository) Create(ctx context.Context, product *entity.Product) error {
	query := `
		INSERT INTO products (id, user_id, name, description, price, stock, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		product.ID,
		product.UserID,
		product.Name,
		product.Description,
		product.Price,
		product.Stock,
		product.CreatedAt,
		product.UpdatedAt,
	)
	return err
}

func (r *ProductRepository) FindByID(ctx context.Context, userID, productID string) (*entity.Product, error) {
	query := `
		SELECT id, user_id, name, description, price, stock, created_at, updated_at
		FROM products WHERE id = ? AND user_id = ?
	`
	product := &entity.Product{}
	err := r.db.QueryRowContext(ctx, query, productID, userID).Scan(
		&product.ID,
		&product.UserID,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.Stock,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return product, nil
}

func (r *ProductRepository) List(ctx context.Context, userID string, filter ProductFilter) ([]*entity.Product, error) {
	query := `
		SELECT id, user_id, name, description, price, stock, created_at, updated_at
		FROM products WHERE user_id = ?
	`
	args := []any{userID}

	if filter.Search != "" {
		query += ` AND (name LIKE ? OR description LIKE ?)`
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}

	order := "ASC"
	if filter.SortDesc {
		order = "DESC"
	}
	query += ` ORDER BY ` + filter.SortBy + ` ` + order + ` LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*entity.Product
	for rows.Next() {
		product := &entity.Product{}
		if err := rows.Scan(
			&product.ID,
			&product.UserID,
			&product.Name,
			&product.Description,
			&product.Price,
			&product.Stock,
			&product.CreatedAt,
			&product.UpdatedAt,
		); err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

func (r *ProductRepository) Count(ctx context.Context, userID string, filter ProductFilter) (int64, error) {
	query := `SELECT COUNT(*) FROM products WHERE user_id = ?`
	args := []any{userID}

	if filter.Search != "" {
		query += ` AND (name LIKE ? OR description LIKE ?)`
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}

	var count int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ProductRepository) Update(ctx context.Context, product *entity.Product) error {
	query := `
		UPDATE products SET name = ?, description = ?, price = ?, stock = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`
	product.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query,
		product.Name,
		product.Description,
		product.Price,
		product.Stock,
		product.UpdatedAt,
		product.ID,
		product.UserID,
	)
	return err
}

func (r *ProductRepository) DeleteByIDs(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	query := `DELETE FROM products WHERE user_id = ? AND id IN (` + placeholders + `)`

	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
