package database

import (
	"fmt"
	"time"
)

// Product is a sold product with its price and recent price change in percent.
type Product struct {
	ID        int64
	CompanyID int64
	Name      string
	Price     float64
	Change    float64
	CreatedAt time.Time
}

// MonthlySales is the sales amount of one month ("2024-01").
type MonthlySales struct {
	ID     int64
	Month  string
	Amount float64
}

// RegionSales is a map marker with the sales of a region.
type RegionSales struct {
	ID     int64
	Name   string
	Lng    float64
	Lat    float64
	Sales  float64
	Growth float64
}

// ListProducts returns the products of a company ordered by name.
func (db *DB) ListProducts(companyID int64) ([]*Product, error) {
	rows, err := db.Query(`
		SELECT id, company_id, name, price, change, created_at
		FROM products WHERE company_id = ? ORDER BY name
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*Product
	for rows.Next() {
		p := &Product{}
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.Name, &p.Price, &p.Change, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// CreateProduct inserts a product and fills its ID.
func (db *DB) CreateProduct(p *Product) error {
	now := time.Now()
	result, err := db.Exec(`
		INSERT INTO products (company_id, name, price, change, created_at) VALUES (?, ?, ?, ?, ?)
	`, p.CompanyID, p.Name, p.Price, p.Change, now)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	if p.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get product id: %w", err)
	}
	p.CreatedAt = now
	return nil
}

// DeleteProduct removes a product. Returns false when no row matched.
func (db *DB) DeleteProduct(id, companyID int64) (bool, error) {
	result, err := db.Exec("DELETE FROM products WHERE id = ? AND company_id = ?", id, companyID)
	if err != nil {
		return false, fmt.Errorf("failed to delete product: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// ListMonthlySales returns the monthly sales of a company in month order.
func (db *DB) ListMonthlySales(companyID int64) ([]*MonthlySales, error) {
	rows, err := db.Query("SELECT id, month, amount FROM monthly_sales WHERE company_id = ? ORDER BY month", companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list monthly sales: %w", err)
	}
	defer rows.Close()

	var sales []*MonthlySales
	for rows.Next() {
		s := &MonthlySales{}
		if err := rows.Scan(&s.ID, &s.Month, &s.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan monthly sales: %w", err)
		}
		sales = append(sales, s)
	}
	return sales, rows.Err()
}

// UpsertMonthlySales creates or replaces the amount of a month.
func (db *DB) UpsertMonthlySales(companyID int64, month string, amount float64) (*MonthlySales, error) {
	s := &MonthlySales{Month: month, Amount: amount}
	err := db.QueryRow(`
		INSERT INTO monthly_sales (company_id, month, amount) VALUES (?, ?, ?)
		ON CONFLICT(company_id, month) DO UPDATE SET amount = excluded.amount
		RETURNING id
	`, companyID, month, amount).Scan(&s.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert monthly sales: %w", err)
	}
	return s, nil
}

// ListRegionSales returns the regional sales markers of a company.
func (db *DB) ListRegionSales(companyID int64) ([]*RegionSales, error) {
	rows, err := db.Query(`
		SELECT id, name, lng, lat, sales, growth
		FROM region_sales WHERE company_id = ? ORDER BY name
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list region sales: %w", err)
	}
	defer rows.Close()

	var markers []*RegionSales
	for rows.Next() {
		r := &RegionSales{}
		if err := rows.Scan(&r.ID, &r.Name, &r.Lng, &r.Lat, &r.Sales, &r.Growth); err != nil {
			return nil, fmt.Errorf("failed to scan region sales: %w", err)
		}
		markers = append(markers, r)
	}
	return markers, rows.Err()
}

// UpsertRegionSales creates or replaces the marker of a region by name.
func (db *DB) UpsertRegionSales(companyID int64, r *RegionSales) error {
	err := db.QueryRow(`
		INSERT INTO region_sales (company_id, name, lng, lat, sales, growth) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(company_id, name) DO UPDATE SET
			lng = excluded.lng,
			lat = excluded.lat,
			sales = excluded.sales,
			growth = excluded.growth
		RETURNING id
	`, companyID, r.Name, r.Lng, r.Lat, r.Sales, r.Growth).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert region sales: %w", err)
	}
	return nil
}
