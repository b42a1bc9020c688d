package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// Repository reads master data from PostgreSQL. The engine only consumes
// products, warehouses and stock policies; their lifecycle is managed by an
// external admin surface.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetProduct returns one product by id.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, COALESCE(category_id, 0), code, name, base_unit, COALESCE(packing_unit, ''), conversion_rate, cost_price, min_stock_global, is_active, created_at
FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.CategoryID, &p.Code, &p.Name, &p.BaseUnit, &p.PackingUnit, &p.ConversionRate, &p.CostPrice, &p.MinStockGlobal, &p.IsActive, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, shared.NotFoundf("product %d", id)
		}
		return Product{}, err
	}
	return p, nil
}

// GetProducts returns products by id keyed by id. Missing ids surface as
// absent map entries; callers decide whether that is an error.
func (r *Repository) GetProducts(ctx context.Context, ids []int64) (map[int64]Product, error) {
	if len(ids) == 0 {
		return map[int64]Product{}, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id, COALESCE(category_id, 0), code, name, base_unit, COALESCE(packing_unit, ''), conversion_rate, cost_price, min_stock_global, is_active, created_at
FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := make(map[int64]Product, len(ids))
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.CategoryID, &p.Code, &p.Name, &p.BaseUnit, &p.PackingUnit, &p.ConversionRate, &p.CostPrice, &p.MinStockGlobal, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, err
		}
		products[p.ID] = p
	}
	return products, rows.Err()
}

// GetWarehouse returns one warehouse by id.
func (r *Repository) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	var w Warehouse
	var whType string
	err := r.pool.QueryRow(ctx, `SELECT id, name, type, is_active, sort_order FROM warehouses WHERE id=$1`, id).
		Scan(&w.ID, &w.Name, &whType, &w.IsActive, &w.SortOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Warehouse{}, shared.NotFoundf("warehouse %d", id)
		}
		return Warehouse{}, err
	}
	w.Type = WarehouseType(whType)
	return w, nil
}

// GetCategory returns one product category by id.
func (r *Repository) GetCategory(ctx context.Context, id int64) (Category, error) {
	var c Category
	err := r.pool.QueryRow(ctx, `SELECT id, name, sort_order FROM product_categories WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.SortOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Category{}, shared.NotFoundf("category %d", id)
		}
		return Category{}, err
	}
	return c, nil
}

// MinStock resolves the reorder threshold for a (warehouse, product) pair:
// explicit policy row, else the product's global minimum, else the default.
func (r *Repository) MinStock(ctx context.Context, warehouseID, productID int64) (int, error) {
	var minStock int
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(
(SELECT min_stock FROM stock_policies WHERE warehouse_id=$1 AND product_id=$2),
(SELECT NULLIF(min_stock_global, 0) FROM products WHERE id=$2),
$3)`, warehouseID, productID, DefaultMinStock).Scan(&minStock)
	if err != nil {
		return 0, err
	}
	return minStock, nil
}

// SetMinStock upserts the reorder threshold. This is the configuration input
// for the warning status; it is not ledger data.
func (r *Repository) SetMinStock(ctx context.Context, policy StockPolicy) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO stock_policies (warehouse_id, product_id, min_stock)
VALUES ($1,$2,$3)
ON CONFLICT (warehouse_id, product_id) DO UPDATE SET min_stock=EXCLUDED.min_stock`,
		policy.WarehouseID, policy.ProductID, policy.MinStock)
	return err
}
