package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"marketplace-discovery-service/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to create a mock DB and PostgresStore for testing
func newMockDBAndStore(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresStore) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp)) // Use regexp matcher
	require.NoError(t, err, "Failed to create sqlmock")

	store := NewPostgresStore(db)
	require.NotNil(t, store, "Store should not be nil")

	return db, mock, store
}

// Helper function to get a pointer (useful for optional fields in domain structs)
func PtrTo[T any](v T) *T {
	return &v
}

var productTestColumns = []string{
	"id", "name", "description", "city", "price", "price_type", "price_text",
	"currency", "seller_id", "category_id", "image_url", "created_at",
}

func productRow(rows *sqlmock.Rows, p domain.Product) *sqlmock.Rows {
	return rows.AddRow(
		p.ID, p.Name, p.Description, p.City, p.Price, p.PriceType, p.PriceText,
		p.Currency, p.SellerID, p.CategoryID, p.ImageURL, p.CreatedAt,
	)
}

func expectCharacteristics(mock sqlmock.Sqlmock, ids []int64, chars []domain.Characteristic) {
	query := regexp.QuoteMeta(`SELECT id, product_id, title, value FROM market.product_characteristics WHERE product_id = ANY($1) ORDER BY id ASC;`)
	rows := sqlmock.NewRows([]string{"id", "product_id", "title", "value"})
	for _, c := range chars {
		rows.AddRow(c.ID, c.ProductID, c.Title, c.Value)
	}
	mock.ExpectQuery(query).WithArgs(pq.Array(ids)).WillReturnRows(rows)
}

func TestPostgresStore_ListProducts_NoFilters(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now().Truncate(time.Millisecond)
	params := ListProductsParams{Limit: 10, Offset: 0, Sort: domain.SortNewest}

	countQuery := regexp.QuoteMeta(`SELECT COUNT(*) FROM market.products`)
	mock.ExpectQuery(countQuery).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	dataQuery := regexp.QuoteMeta(`FROM market.products ORDER BY created_at DESC LIMIT $1 OFFSET $2`)
	rows := sqlmock.NewRows(productTestColumns)
	productRow(rows, domain.Product{ID: 1, Name: "Велосипед", City: "Минск", Price: PtrTo(120.0), PriceType: domain.PriceTypeFixed, Currency: "USD", SellerID: 7, CreatedAt: now})
	productRow(rows, domain.Product{ID: 2, Name: "Самокат", City: "Гомель", PriceType: domain.PriceTypeNegotiable, Currency: "BYN", SellerID: 8, CreatedAt: now})
	mock.ExpectQuery(dataQuery).WithArgs(params.Limit, params.Offset).WillReturnRows(rows)

	expectCharacteristics(mock, []int64{1, 2}, []domain.Characteristic{
		{ID: 11, ProductID: 1, Title: "Цвет", Value: "Красный"},
	})

	products, totalCount, err := store.ListProducts(context.Background(), params)

	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, 2, totalCount)
	assert.Equal(t, "Велосипед", products[0].Name)
	require.Len(t, products[0].Characteristics, 1)
	assert.Equal(t, "Красный", products[0].Characteristics[0].Value)
	assert.Empty(t, products[1].Characteristics)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListProducts_PricelessSurvivesBounds(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	params := ListProductsParams{
		Limit:    10,
		MinPrice: PtrTo(10.0),
		MaxPrice: PtrTo(50.0),
	}

	// Without the exclusion flag, null and zero prices bypass both bounds.
	countQuery := regexp.QuoteMeta(`SELECT COUNT(*) FROM market.products WHERE (price >= $1 OR price IS NULL OR price = 0) AND (price <= $2 OR price IS NULL OR price = 0)`)
	mock.ExpectQuery(countQuery).WithArgs(10.0, 50.0).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, totalCount, err := store.ListProducts(context.Background(), params)

	require.NoError(t, err)
	assert.Equal(t, 0, totalCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListProducts_ExcludeNoPrice(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	params := ListProductsParams{
		Limit:          10,
		MinPrice:       PtrTo(10.0),
		MaxPrice:       PtrTo(50.0),
		ExcludeNoPrice: true,
	}

	countQuery := regexp.QuoteMeta(`SELECT COUNT(*) FROM market.products WHERE (price IS NOT NULL AND price > 0) AND price >= $1 AND price <= $2`)
	mock.ExpectQuery(countQuery).WithArgs(10.0, 50.0).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, totalCount, err := store.ListProducts(context.Background(), params)

	require.NoError(t, err)
	assert.Equal(t, 0, totalCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListProducts_CharacteristicPairs(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	params := ListProductsParams{
		Limit: 10,
		Characteristics: []CharacteristicPair{
			{Title: "Цвет", Value: "Красный"},
			{Title: "Цвет", Value: "Синий"},
		},
	}

	countQuery := regexp.QuoteMeta(`SELECT COUNT(*) FROM market.products WHERE EXISTS (SELECT 1 FROM market.product_characteristics c WHERE c.product_id = market.products.id AND ((c.title = $1 AND c.value = $2) OR (c.title = $3 AND c.value = $4)))`)
	mock.ExpectQuery(countQuery).
		WithArgs("Цвет", "Красный", "Цвет", "Синий").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, _, err := store.ListProducts(context.Background(), params)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListProducts_PriceAscPutsPricelessLast(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now().Truncate(time.Millisecond)
	params := ListProductsParams{Limit: 10, Sort: domain.SortPriceAsc}

	countQuery := regexp.QuoteMeta(`SELECT COUNT(*) FROM market.products`)
	mock.ExpectQuery(countQuery).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	dataQuery := regexp.QuoteMeta(`ORDER BY (price IS NULL OR price = 0) ASC, price ASC, created_at DESC LIMIT $1 OFFSET $2`)
	rows := sqlmock.NewRows(productTestColumns)
	productRow(rows, domain.Product{ID: 1, Name: "Стол", City: "Минск", Price: PtrTo(30.0), PriceType: domain.PriceTypeFixed, Currency: "BYN", SellerID: 1, CreatedAt: now})
	mock.ExpectQuery(dataQuery).WithArgs(params.Limit, params.Offset).WillReturnRows(rows)

	expectCharacteristics(mock, []int64{1}, nil)

	products, _, err := store.ListProducts(context.Background(), params)

	require.NoError(t, err)
	require.Len(t, products, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListProducts_SearchOverThreeFields(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	params := ListProductsParams{Limit: 10, SearchQuery: PtrTo("телефон")}

	countQuery := regexp.QuoteMeta(`SELECT COUNT(*) FROM market.products WHERE (name ILIKE $1 OR description ILIKE $2 OR price_text ILIKE $3)`)
	mock.ExpectQuery(countQuery).
		WithArgs("%телефон%", "%телефон%", "%телефон%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, _, err := store.ListProducts(context.Background(), params)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListProducts_ZeroCountSkipsDataQuery(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	city := "Брест"
	params := ListProductsParams{Limit: 10, City: &city}

	countQuery := regexp.QuoteMeta(`SELECT COUNT(*) FROM market.products WHERE city = $1`)
	mock.ExpectQuery(countQuery).WithArgs(city).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	products, totalCount, err := store.ListProducts(context.Background(), params)

	require.NoError(t, err)
	assert.Empty(t, products)
	assert.Equal(t, 0, totalCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetProductByID_Found(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now().Truncate(time.Millisecond)
	query := regexp.QuoteMeta(`FROM market.products WHERE id = $1;`)
	rows := sqlmock.NewRows(productTestColumns)
	productRow(rows, domain.Product{ID: 3, Name: "Ноутбук", City: "Минск", Price: PtrTo(900.0), PriceType: domain.PriceTypeFixed, Currency: "USD", SellerID: 2, CreatedAt: now})
	mock.ExpectQuery(query).WithArgs(int64(3)).WillReturnRows(rows)

	expectCharacteristics(mock, []int64{3}, []domain.Characteristic{
		{ID: 21, ProductID: 3, Title: "Память", Value: "16 ГБ"},
	})

	product, err := store.GetProductByID(context.Background(), 3)

	require.NoError(t, err)
	require.NotNil(t, product)
	assert.Equal(t, "Ноутбук", product.Name)
	require.Len(t, product.Characteristics, 1)
	assert.Equal(t, "Память", product.Characteristics[0].Title)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetProductByID_NotFound(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	query := regexp.QuoteMeta(`FROM market.products WHERE id = $1;`)
	mock.ExpectQuery(query).WithArgs(int64(99)).WillReturnError(sql.ErrNoRows)

	product, err := store.GetProductByID(context.Background(), 99)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProductNotFound), "Error should be ErrProductNotFound")
	assert.Nil(t, product)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateProduct_WithCharacteristics(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now().Truncate(time.Millisecond)
	productToCreate := &domain.Product{
		Name:      "Кресло",
		City:      "Минск",
		Price:     PtrTo(75.0),
		PriceType: domain.PriceTypeFixed,
		PriceText: PtrTo("75 BYN"),
		Currency:  "BYN",
		SellerID:  4,
		Characteristics: []domain.Characteristic{
			{Title: "Цвет", Value: "Серый"},
			{Title: " ", Value: "пусто"}, // blank title is dropped, not inserted
		},
	}

	mock.ExpectBegin()

	insertQuery := regexp.QuoteMeta(`INSERT INTO market.products`)
	rows := sqlmock.NewRows(productTestColumns)
	productRow(rows, domain.Product{ID: 10, Name: "Кресло", City: "Минск", Price: PtrTo(75.0), PriceType: domain.PriceTypeFixed, PriceText: PtrTo("75 BYN"), Currency: "BYN", SellerID: 4, CreatedAt: now})
	mock.ExpectQuery(insertQuery).
		WithArgs(productToCreate.Name, productToCreate.Description, productToCreate.City,
			productToCreate.Price, productToCreate.PriceType, productToCreate.PriceText,
			productToCreate.Currency, productToCreate.SellerID, productToCreate.CategoryID,
			productToCreate.ImageURL).
		WillReturnRows(rows)

	charQuery := regexp.QuoteMeta(`INSERT INTO market.product_characteristics (product_id, title, value)`)
	mock.ExpectQuery(charQuery).
		WithArgs(int64(10), "Цвет", "Серый").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(31)))

	mock.ExpectCommit()

	created, err := store.CreateProduct(context.Background(), productToCreate)

	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, int64(10), created.ID)
	require.Len(t, created.Characteristics, 1)
	assert.Equal(t, int64(31), created.Characteristics[0].ID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateProduct_UnknownCategory(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	productToCreate := &domain.Product{
		Name:       "Кресло",
		City:       "Минск",
		PriceType:  domain.PriceTypeNegotiable,
		Currency:   "BYN",
		SellerID:   4,
		CategoryID: PtrTo(int64(404)),
	}

	mock.ExpectBegin()

	pqErr := &pq.Error{Code: "23503", Constraint: "products_category_id_fkey"}
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO market.products`)).WillReturnError(pqErr)
	mock.ExpectRollback()

	created, err := store.CreateProduct(context.Background(), productToCreate)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCategoryNotFound), "Error should be ErrCategoryNotFound")
	assert.Nil(t, created)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteProduct_Success(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	productID := int64(5)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM market.product_characteristics WHERE product_id = $1;`)).
		WithArgs(productID).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM market.products WHERE id = $1;`)).
		WithArgs(productID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.DeleteProduct(context.Background(), productID)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteProduct_NotFound(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	productID := int64(99)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM market.product_characteristics WHERE product_id = $1;`)).
		WithArgs(productID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM market.products WHERE id = $1;`)).
		WithArgs(productID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.DeleteProduct(context.Background(), productID)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProductNotFound), "Error should be ErrProductNotFound")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DistinctCities(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	query := regexp.QuoteMeta(`SELECT DISTINCT city FROM market.products WHERE city <> '' ORDER BY city ASC;`)
	mock.ExpectQuery(query).WillReturnRows(
		sqlmock.NewRows([]string{"city"}).AddRow("Брест").AddRow("Минск"))

	cities, err := store.DistinctCities(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"Брест", "Минск"}, cities)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListCategories(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	query := regexp.QuoteMeta(`SELECT id, name FROM market.categories ORDER BY name ASC;`)
	mock.ExpectQuery(query).WillReturnRows(
		sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), "Мебель").
			AddRow(int64(2), "Электроника"))

	categories, err := store.ListCategories(context.Background())

	require.NoError(t, err)
	require.Len(t, categories, 2)
	assert.Equal(t, "Мебель", categories[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCategoryByID_NotFound(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	query := regexp.QuoteMeta(`SELECT id, name FROM market.categories WHERE id = $1;`)
	mock.ExpectQuery(query).WithArgs(int64(42)).WillReturnError(sql.ErrNoRows)

	category, err := store.GetCategoryByID(context.Background(), 42)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCategoryNotFound), "Error should be ErrCategoryNotFound")
	assert.Nil(t, category)
	require.NoError(t, mock.ExpectationsWereMet())
}
