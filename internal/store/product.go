package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/billingd/internal/model"
)

type ProductStore struct {
	db *sql.DB
}

func NewProductStore(db *sql.DB) *ProductStore {
	return &ProductStore{db: db}
}

func scanProduct(scanner interface{ Scan(...any) error }) (*model.Product, error) {
	var p model.Product
	var isActive int
	var metadata string
	err := scanner.Scan(
		&p.ID, &p.Name, &p.Description, &p.ProductType, &isActive,
		&metadata, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.IsActive = isActive != 0
	p.Metadata, err = unmarshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const productCols = `id, name, description, product_type, is_active, metadata, created_at, updated_at`

func (s *ProductStore) Create(p *model.Product) (*model.Product, error) {
	meta, err := marshalMetadata(p.Metadata)
	if err != nil {
		return nil, err
	}
	_, err = s.db.Exec(
		`INSERT INTO products (id, name, description, product_type, is_active, metadata) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.ProductType, boolToInt(p.IsActive), meta,
	)
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	return s.GetByID(p.ID)
}

func (s *ProductStore) GetByID(id string) (*model.Product, error) {
	row := s.db.QueryRow(`SELECT `+productCols+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (s *ProductStore) List() ([]*model.Product, error) {
	rows, err := s.db.Query(`SELECT ` + productCols + ` FROM products ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []*model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ListWithPrices returns all products with their prices attached.
func (s *ProductStore) ListWithPrices() ([]*model.Product, error) {
	products, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return products, nil
	}

	prices := NewPriceStore(s.db)
	byProduct := make(map[string][]*model.Price)
	all, err := prices.List()
	if err != nil {
		return nil, err
	}
	for _, pr := range all {
		byProduct[pr.ProductID] = append(byProduct[pr.ProductID], pr)
	}
	for _, p := range products {
		p.Prices = byProduct[p.ID]
	}
	return products, nil
}

// Update replaces the mutable fields of an existing product. Returns
// ErrNotFound when no row has the given ID.
func (s *ProductStore) Update(p *model.Product) (*model.Product, error) {
	meta, err := marshalMetadata(p.Metadata)
	if err != nil {
		return nil, err
	}
	result, err := s.db.Exec(
		`UPDATE products SET name = ?, description = ?, product_type = ?, is_active = ?, metadata = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		p.Name, p.Description, p.ProductType, boolToInt(p.IsActive), meta, p.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return s.GetByID(p.ID)
}

// Delete removes a product by ID. Deleting a missing row is not an error.
func (s *ProductStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}
