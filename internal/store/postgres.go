package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/lib/pq"

	"marketplace-discovery-service/internal/domain"
)

// Predefined errors for store operations
var (
	ErrProductNotFound  = errors.New("store: product not found")
	ErrCategoryNotFound = errors.New("store: category not found")
)

// PostgresStore implements the ProductStorer and CategoryStorer interfaces
// using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const productColumns = `id, name, description, city, price, price_type, price_text, currency, seller_id, category_id, image_url, created_at`

func scanProduct(row interface{ Scan(...interface{}) error }) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.City, &p.Price, &p.PriceType,
		&p.PriceText, &p.Currency, &p.SellerID, &p.CategoryID, &p.ImageURL,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// --- CategoryStorer Implementation ---

func (s *PostgresStore) ListCategories(ctx context.Context) ([]domain.Category, error) {
	query := `SELECT id, name FROM market.categories ORDER BY name ASC;`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: ListCategories failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("store: ListCategories failed to scan category row: %w", err)
		}
		categories = append(categories, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListCategories iteration error: %w", err)
	}
	if categories == nil {
		categories = []domain.Category{}
	}
	return categories, nil
}

func (s *PostgresStore) GetCategoryByID(ctx context.Context, id int64) (*domain.Category, error) {
	query := `SELECT id, name FROM market.categories WHERE id = $1;`
	var category domain.Category
	err := s.db.QueryRowContext(ctx, query, id).Scan(&category.ID, &category.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("store: GetCategoryByID failed to scan row: %w", err)
	}
	return &category, nil
}

// --- ProductStorer Implementation ---

func (s *PostgresStore) CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: CreateProduct failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO market.products
			(name, description, city, price, price_type, price_text, currency, seller_id, category_id, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + productColumns + `;
	`
	created, err := scanProduct(tx.QueryRowContext(ctx, query,
		product.Name, product.Description, product.City, product.Price,
		product.PriceType, product.PriceText, product.Currency,
		product.SellerID, product.CategoryID, product.ImageURL,
	))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" { // FK violation
			if strings.Contains(pqErr.Constraint, "category") {
				return nil, ErrCategoryNotFound
			}
		}
		return nil, fmt.Errorf("store: CreateProduct failed to scan row: %w", err)
	}

	insertChar := `
		INSERT INTO market.product_characteristics (product_id, title, value)
		VALUES ($1, $2, $3)
		RETURNING id;
	`
	for _, char := range product.Characteristics {
		title := strings.TrimSpace(char.Title)
		value := strings.TrimSpace(char.Value)
		if title == "" || value == "" {
			continue
		}
		c := domain.Characteristic{ProductID: created.ID, Title: title, Value: value}
		if err := tx.QueryRowContext(ctx, insertChar, created.ID, title, value).Scan(&c.ID); err != nil {
			return nil, fmt.Errorf("store: CreateProduct failed to insert characteristic: %w", err)
		}
		created.Characteristics = append(created.Characteristics, c)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: CreateProduct failed to commit: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM market.products WHERE id = $1;`
	product, err := scanProduct(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("store: GetProductByID failed to scan row: %w", err)
	}

	products := []domain.Product{*product}
	if err := s.attachCharacteristics(ctx, products); err != nil {
		return nil, err
	}
	return &products[0], nil
}

// buildProductFilter translates the coarse query parameters into a WHERE
// clause with numbered arguments. Exposed to ListProducts only; the argument
// numbering continues from argID.
func buildProductFilter(params ListProductsParams) ([]string, []interface{}) {
	var queryArgs []interface{}
	var whereClauses []string
	argID := 1

	if params.SearchQuery != nil && *params.SearchQuery != "" {
		// Search in name OR description OR the free-form price label
		whereClauses = append(whereClauses, fmt.Sprintf(
			"(name ILIKE $%d OR description ILIKE $%d OR price_text ILIKE $%d)", argID, argID+1, argID+2))
		searchTerm := "%" + *params.SearchQuery + "%"
		queryArgs = append(queryArgs, searchTerm, searchTerm, searchTerm)
		argID += 3
	}
	if params.City != nil && *params.City != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("city = $%d", argID))
		queryArgs = append(queryArgs, *params.City)
		argID++
	}
	if params.SellerID != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("seller_id = $%d", argID))
		queryArgs = append(queryArgs, *params.SellerID)
		argID++
	}
	if params.CategoryID != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("category_id = $%d", argID))
		queryArgs = append(queryArgs, *params.CategoryID)
		argID++
	}

	// Null-price policy: a priceless listing is "not applicable" to a price
	// range, never "out of range". It survives min/max bounds unless the
	// caller excludes priceless products outright.
	if params.ExcludeNoPrice {
		whereClauses = append(whereClauses, "(price IS NOT NULL AND price > 0)")
		if params.MinPrice != nil {
			whereClauses = append(whereClauses, fmt.Sprintf("price >= $%d", argID))
			queryArgs = append(queryArgs, *params.MinPrice)
			argID++
		}
		if params.MaxPrice != nil {
			whereClauses = append(whereClauses, fmt.Sprintf("price <= $%d", argID))
			queryArgs = append(queryArgs, *params.MaxPrice)
			argID++
		}
	} else {
		if params.MinPrice != nil {
			whereClauses = append(whereClauses, fmt.Sprintf("(price >= $%d OR price IS NULL OR price = 0)", argID))
			queryArgs = append(queryArgs, *params.MinPrice)
			argID++
		}
		if params.MaxPrice != nil {
			whereClauses = append(whereClauses, fmt.Sprintf("(price <= $%d OR price IS NULL OR price = 0)", argID))
			queryArgs = append(queryArgs, *params.MaxPrice)
			argID++
		}
	}

	// Characteristic predicate: OR across all requested (title, value) pairs.
	// The refiner narrows this to AND-per-title on the fetched set.
	if len(params.Characteristics) > 0 {
		var pairClauses []string
		for _, pair := range params.Characteristics {
			pairClauses = append(pairClauses, fmt.Sprintf("(c.title = $%d AND c.value = $%d)", argID, argID+1))
			queryArgs = append(queryArgs, pair.Title, pair.Value)
			argID += 2
		}
		whereClauses = append(whereClauses, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM market.product_characteristics c WHERE c.product_id = market.products.id AND (%s))",
			strings.Join(pairClauses, " OR ")))
	}

	return whereClauses, queryArgs
}

// orderClause maps a sort key to a total order. Priceless products sort after
// all priced products under both price directions; creation time descending
// breaks ties so pagination boundaries stay stable.
func orderClause(sort string) string {
	switch domain.ParseSort(sort) {
	case domain.SortPriceAsc:
		return "(price IS NULL OR price = 0) ASC, price ASC, created_at DESC"
	case domain.SortPriceDesc:
		return "(price IS NULL OR price = 0) ASC, price DESC, created_at DESC"
	case domain.SortNameAsc:
		return "name ASC, created_at DESC"
	case domain.SortNameDesc:
		return "name DESC, created_at DESC"
	default:
		return "created_at DESC"
	}
}

func (s *PostgresStore) ListProducts(ctx context.Context, params ListProductsParams) ([]domain.Product, int, error) {
	whereClauses, queryArgs := buildProductFilter(params)

	whereCondition := ""
	if len(whereClauses) > 0 {
		whereCondition = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM market.products" + whereCondition
	var totalCount int
	if err := s.db.QueryRowContext(ctx, countQuery, queryArgs...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("store: ListProducts failed to count products: %w", err)
	}

	if totalCount == 0 {
		return []domain.Product{}, 0, nil
	}

	argID := len(queryArgs) + 1
	dataQuery := fmt.Sprintf("SELECT %s FROM market.products%s ORDER BY %s LIMIT $%d OFFSET $%d",
		productColumns, whereCondition, orderClause(params.Sort), argID, argID+1)
	finalQueryArgs := append(queryArgs, params.Limit, params.Offset)

	rows, err := s.db.QueryContext(ctx, dataQuery, finalQueryArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: ListProducts failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, params.Limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("store: ListProducts failed to scan product row: %w", err)
		}
		products = append(products, *p)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("store: ListProducts iteration error: %w", err)
	}

	if err := s.attachCharacteristics(ctx, products); err != nil {
		return nil, 0, err
	}
	return products, totalCount, nil
}

func (s *PostgresStore) ListProductsByCity(ctx context.Context, city string) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM market.products WHERE city = $1 ORDER BY created_at DESC;`
	rows, err := s.db.QueryContext(ctx, query, city)
	if err != nil {
		return nil, fmt.Errorf("store: ListProductsByCity failed to query products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("store: ListProductsByCity failed to scan product row: %w", err)
		}
		products = append(products, *p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListProductsByCity iteration error: %w", err)
	}
	if products == nil {
		products = []domain.Product{}
	}

	if err := s.attachCharacteristics(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// attachCharacteristics loads the characteristic pairs for the given
// products in one query and attaches them in place.
func (s *PostgresStore) attachCharacteristics(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]int64, len(products))
	index := make(map[int64]*domain.Product, len(products))
	for i := range products {
		ids[i] = products[i].ID
		index[products[i].ID] = &products[i]
	}

	query := `SELECT id, product_id, title, value FROM market.product_characteristics WHERE product_id = ANY($1) ORDER BY id ASC;`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("store: attachCharacteristics failed to query characteristics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.Characteristic
		if err := rows.Scan(&c.ID, &c.ProductID, &c.Title, &c.Value); err != nil {
			return fmt.Errorf("store: attachCharacteristics failed to scan row: %w", err)
		}
		if p, ok := index[c.ProductID]; ok {
			p.Characteristics = append(p.Characteristics, c)
		}
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("store: attachCharacteristics iteration error: %w", err)
	}
	return nil
}

// DeleteProduct removes a product; its characteristics cascade in the same
// transaction.
func (s *PostgresStore) DeleteProduct(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: DeleteProduct failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM market.product_characteristics WHERE product_id = $1;`, id); err != nil {
		return fmt.Errorf("store: DeleteProduct failed to delete characteristics: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM market.products WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("store: DeleteProduct failed to execute delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: DeleteProduct failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: DeleteProduct failed to commit: %w", err)
	}
	return nil
}

// DistinctCities returns the cities that currently have inventory.
func (s *PostgresStore) DistinctCities(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT city FROM market.products WHERE city <> '' ORDER BY city ASC;`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: DistinctCities failed to query cities: %w", err)
	}
	defer rows.Close()

	var cities []string
	for rows.Next() {
		var city string
		if err := rows.Scan(&city); err != nil {
			return nil, fmt.Errorf("store: DistinctCities failed to scan row: %w", err)
		}
		cities = append(cities, city)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: DistinctCities iteration error: %w", err)
	}
	return cities, nil
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		log.Println("INFO: Closing database connection pool...")
		err := s.db.Close()
		if err != nil {
			log.Printf("ERROR: Failed to close database connection pool: %v", err)
			return err
		}
		log.Println("INFO: Database connection pool closed successfully.")
		return nil
	}
	return nil
}
