package postgres

import (
	"context"
	"math"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/loyalty-kart/internal/domain/product"
)

const productColumns = `id, name, description, brand, price, stock_quantity, category,
	image_url, rating, review_count, is_active, created_at`

const (
	listProductsSQL = `SELECT ` + productColumns + `
		FROM products
		WHERE ($1::text = '' OR category = $1::text) AND (NOT $2::bool OR is_active)
		ORDER BY id
		LIMIT NULLIF($3::int, 0)`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + `
		FROM products WHERE id = ANY($1) ORDER BY id`

	decrementStockSQL = `UPDATE products SET stock_quantity = stock_quantity - $2
		WHERE id = $1 AND stock_quantity >= $2`

	upsertProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			brand = EXCLUDED.brand,
			price = EXCLUDED.price,
			stock_quantity = EXCLUDED.stock_quantity,
			category = EXCLUDED.category,
			image_url = EXCLUDED.image_url,
			rating = EXCLUDED.rating,
			review_count = EXCLUDED.review_count,
			is_active = EXCLUDED.is_active`

	listCategoriesSQL = `SELECT id, name, description, image_url FROM categories ORDER BY name`

	upsertCategorySQL = `INSERT INTO categories (id, name, description, image_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			image_url = EXCLUDED.image_url`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns products ordered by ID.
func (r *ProductRepository) List(ctx context.Context, f product.Filter) ([]product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listProductsSQL, f.Category, f.ActiveOnly, f.Limit)
	if err != nil {
		return nil, errors.Wrap(classify(err), "list products")
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, errors.Wrap(classify(err), "list products")
	}
	return products, nil
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(classify(err), "get product %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(classify(err), "get product %q", id)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(classify(err), "get products by ids")
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, errors.Wrap(classify(err), "get products by ids")
	}
	return products, nil
}

// DecrementStock subtracts qty only while at least qty units remain. A
// guard miss on an existing product means another settlement took the stock
// after it was read.
func (r *ProductRepository) DecrementStock(ctx context.Context, id string, qty int) error {
	if qty <= 0 || qty > math.MaxInt32 {
		return product.ErrInvalidDecrement
	}
	tag, err := conn(ctx, r.pool).Exec(ctx, decrementStockSQL, id, qty)
	if err != nil {
		return errors.Wrapf(classify(err), "decrement stock of %q", id)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrInsufficientStock
	}
	return nil
}

// ListCategories returns all categories ordered by name.
func (r *ProductRepository) ListCategories(ctx context.Context) ([]product.Category, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, errors.Wrap(classify(err), "list categories")
	}
	categories, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (product.Category, error) {
		var c product.Category
		err := row.Scan(&c.ID, &c.Name, &c.Description, &c.ImageURL)
		return c, err
	})
	if err != nil {
		return nil, errors.Wrap(classify(err), "list categories")
	}
	return categories, nil
}

// Upsert inserts p or replaces every catalog field of the stored product.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, upsertProductSQL,
		p.ID, p.Name, p.Description, p.Brand, p.Price, p.StockQuantity, p.Category,
		p.ImageURL, p.Rating, p.ReviewCount, p.IsActive, p.CreatedAt,
	)
	if err != nil {
		return errors.Wrapf(classify(err), "upsert product %q", p.ID)
	}
	return nil
}

// UpsertCategory inserts c or updates the category with the same name.
func (r *ProductRepository) UpsertCategory(ctx context.Context, c product.Category) error {
	_, err := conn(ctx, r.pool).Exec(ctx, upsertCategorySQL, c.ID, c.Name, c.Description, c.ImageURL)
	if err != nil {
		return errors.Wrapf(classify(err), "upsert category %q", c.Name)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Brand, &p.Price, &p.StockQuantity, &p.Category,
		&p.ImageURL, &p.Rating, &p.ReviewCount, &p.IsActive, &p.CreatedAt,
	)
	return p, err
}
