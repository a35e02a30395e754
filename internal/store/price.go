package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/billingd/internal/model"
)

type PriceStore struct {
	db *sql.DB
}

func NewPriceStore(db *sql.DB) *PriceStore {
	return &PriceStore{db: db}
}

func scanPrice(scanner interface{ Scan(...any) error }) (*model.Price, error) {
	var p model.Price
	var interval sql.NullString
	var intervalCount, trialDays sql.NullInt64
	var isActive int
	var metadata string
	err := scanner.Scan(
		&p.ID, &p.ProductID, &p.Name, &p.PriceType, &p.UnitAmount, &p.Currency,
		&interval, &intervalCount, &trialDays, &isActive,
		&metadata, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if interval.Valid {
		iv := model.PriceInterval(interval.String)
		p.Interval = &iv
	}
	if intervalCount.Valid {
		p.IntervalCount = &intervalCount.Int64
	}
	if trialDays.Valid {
		p.TrialPeriodDays = &trialDays.Int64
	}
	p.IsActive = isActive != 0
	p.Metadata, err = unmarshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const priceCols = `id, product_id, name, price_type, unit_amount, currency, interval, interval_count, trial_period_days, is_active, metadata, created_at, updated_at`

// Upsert inserts the price or, when the ID already exists, replaces its
// mutable fields. The provider redelivers events and sends price.updated
// with the full object, so insert-or-update covers both.
func (s *PriceStore) Upsert(p *model.Price) (*model.Price, error) {
	meta, err := marshalMetadata(p.Metadata)
	if err != nil {
		return nil, err
	}
	var interval any
	if p.Interval != nil {
		interval = string(*p.Interval)
	}
	_, err = s.db.Exec(
		`INSERT INTO prices (id, product_id, name, price_type, unit_amount, currency, interval, interval_count, trial_period_days, is_active, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   product_id = excluded.product_id,
		   name = excluded.name,
		   price_type = excluded.price_type,
		   unit_amount = excluded.unit_amount,
		   currency = excluded.currency,
		   interval = excluded.interval,
		   interval_count = excluded.interval_count,
		   trial_period_days = excluded.trial_period_days,
		   is_active = excluded.is_active,
		   metadata = excluded.metadata,
		   updated_at = CURRENT_TIMESTAMP`,
		p.ID, p.ProductID, p.Name, p.PriceType, p.UnitAmount, p.Currency,
		interval, p.IntervalCount, p.TrialPeriodDays, boolToInt(p.IsActive), meta,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert price: %w", err)
	}
	return s.GetByID(p.ID)
}

func (s *PriceStore) GetByID(id string) (*model.Price, error) {
	row := s.db.QueryRow(`SELECT `+priceCols+` FROM prices WHERE id = ?`, id)
	p, err := scanPrice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get price: %w", err)
	}
	return p, nil
}

func (s *PriceStore) List() ([]*model.Price, error) {
	rows, err := s.db.Query(`SELECT ` + priceCols + ` FROM prices ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list prices: %w", err)
	}
	defer rows.Close()

	var prices []*model.Price
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

func (s *PriceStore) ListByProduct(productID string) ([]*model.Price, error) {
	rows, err := s.db.Query(`SELECT `+priceCols+` FROM prices WHERE product_id = ? ORDER BY created_at`, productID)
	if err != nil {
		return nil, fmt.Errorf("list prices by product: %w", err)
	}
	defer rows.Close()

	var prices []*model.Price
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

// Delete removes a price by ID. Deleting a missing row is not an error.
func (s *PriceStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM prices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete price: %w", err)
	}
	return nil
}
