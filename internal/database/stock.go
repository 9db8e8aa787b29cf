package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// StockItem is an inventory line of a company.
type StockItem struct {
	ID        int64
	CompanyID int64
	SKU       string
	Name      string
	Quantity  int64
	UnitPrice float64
	Location  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StockPatch holds a sparse stock item update.
type StockPatch struct {
	Name      *string
	Quantity  *int64
	UnitPrice *float64
	Location  *string
}

const stockColumns = "id, company_id, sku, name, quantity, unit_price, location, created_at, updated_at"

func scanStockItem(row interface{ Scan(...any) error }) (*StockItem, error) {
	s := &StockItem{}
	err := row.Scan(&s.ID, &s.CompanyID, &s.SKU, &s.Name, &s.Quantity, &s.UnitPrice, &s.Location, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// ListStockItems returns the stock of a company ordered by SKU.
func (db *DB) ListStockItems(companyID int64) ([]*StockItem, error) {
	rows, err := db.Query("SELECT "+stockColumns+" FROM stock_items WHERE company_id = ? ORDER BY sku", companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock items: %w", err)
	}
	defer rows.Close()

	var items []*StockItem
	for rows.Next() {
		item, err := scanStockItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetStockItem retrieves a stock item of a company. Returns nil when missing.
func (db *DB) GetStockItem(id, companyID int64) (*StockItem, error) {
	item, err := scanStockItem(db.QueryRow("SELECT "+stockColumns+" FROM stock_items WHERE id = ? AND company_id = ?", id, companyID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock item: %w", err)
	}
	return item, nil
}

// CreateStockItem inserts a stock item and fills its ID and timestamps.
func (db *DB) CreateStockItem(item *StockItem) error {
	now := time.Now()
	result, err := db.Exec(`
		INSERT INTO stock_items (company_id, sku, name, quantity, unit_price, location, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, item.CompanyID, item.SKU, item.Name, item.Quantity, item.UnitPrice, item.Location, now, now)
	if err != nil {
		return fmt.Errorf("failed to create stock item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get stock item id: %w", err)
	}
	item.ID = id
	item.CreatedAt = now
	item.UpdatedAt = now
	return nil
}

// UpdateStockItem applies a sparse update. Returns nil when the item does
// not exist in the company.
func (db *DB) UpdateStockItem(id, companyID int64, patch StockPatch) (*StockItem, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now()}
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Quantity != nil {
		sets = append(sets, "quantity = ?")
		args = append(args, *patch.Quantity)
	}
	if patch.UnitPrice != nil {
		sets = append(sets, "unit_price = ?")
		args = append(args, *patch.UnitPrice)
	}
	if patch.Location != nil {
		sets = append(sets, "location = ?")
		args = append(args, *patch.Location)
	}
	args = append(args, id, companyID)

	result, err := db.Exec("UPDATE stock_items SET "+strings.Join(sets, ", ")+" WHERE id = ? AND company_id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update stock item: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	} else if n == 0 {
		return nil, nil
	}
	return db.GetStockItem(id, companyID)
}

// DeleteStockItem removes a stock item. Returns false when no row matched.
func (db *DB) DeleteStockItem(id, companyID int64) (bool, error) {
	result, err := db.Exec("DELETE FROM stock_items WHERE id = ? AND company_id = ?", id, companyID)
	if err != nil {
		return false, fmt.Errorf("failed to delete stock item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}
