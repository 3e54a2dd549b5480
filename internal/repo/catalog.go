package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-kasir/internal/inventory"
	"github.com/noah-isme/toko-kasir/internal/obs"
)

// LedgerCache is the Redis side of the daily ledger.
type LedgerCache interface {
	Get(ctx context.Context, day time.Time, ids []string) (map[string]int, []string, error)
	Put(ctx context.Context, day time.Time, sold map[string]int) error
}

// Catalog implements inventory.SnapshotSource over Postgres with the ledger
// read through a cache.
type Catalog struct {
	DB     DB
	Cache  LedgerCache
	Logger zerolog.Logger
}

var _ inventory.SnapshotSource = (*Catalog)(nil)

const selectProducts = `
SELECT id, name, package_label, units_per_package, sale_price, purchase_price,
       stock, daily_limit, weight_per_unit
FROM products
WHERE id = ANY($1)`

// Products returns the catalog rows for ids. Unknown ids are absent from the
// map.
func (c *Catalog) Products(ctx context.Context, ids []string) (map[string]inventory.Product, error) {
	out := make(map[string]inventory.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := c.DB.Query(ctx, selectProducts, ids)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("scan products: %w", err)
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func scanProduct(row pgx.CollectableRow) (inventory.Product, error) {
	var p inventory.Product
	err := row.Scan(&p.ID, &p.Name, &p.PackageLabel, &p.UnitsPerPackage, &p.SalePrice,
		&p.PurchasePrice, &p.Stock, &p.DailyLimit, &p.WeightPerUnit)
	return p, err
}

// DailySold returns units sold on day. Cached figures are used where present;
// misses are loaded from daily_sales and written back, zero included.
func (c *Catalog) DailySold(ctx context.Context, day time.Time, ids []string) (inventory.Ledger, error) {
	return readThrough(ctx, c.Cache, obs.Logger(ctx, c.Logger), day, ids, func(ctx context.Context, missing []string) (map[string]int, error) {
		return loadSold(ctx, c.DB, day, missing, false)
	})
}

func loadSold(ctx context.Context, db DB, day time.Time, ids []string, forUpdate bool) (map[string]int, error) {
	sold := make(map[string]int, len(ids))
	if len(ids) == 0 {
		return sold, nil
	}
	query := `SELECT product_id, units FROM daily_sales WHERE day = $1 AND product_id = ANY($2)`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := db.Query(ctx, query, day, ids)
	if err != nil {
		return nil, fmt.Errorf("select daily sales: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id    string
			units int
		)
		if err := rows.Scan(&id, &units); err != nil {
			return nil, fmt.Errorf("scan daily sales: %w", err)
		}
		sold[id] = units
	}
	return sold, rows.Err()
}

type ledgerLoader func(ctx context.Context, ids []string) (map[string]int, error)

// readThrough serves cached ledger figures and loads the rest. Cache errors
// degrade to a full load.
func readThrough(ctx context.Context, cache LedgerCache, logger *zerolog.Logger, day time.Time, ids []string, load ledgerLoader) (inventory.Ledger, error) {
	ledger := make(inventory.Ledger, len(ids))
	if len(ids) == 0 {
		return ledger, nil
	}
	missing := ids
	if cache != nil {
		hits, misses, err := cache.Get(ctx, day, ids)
		if err != nil {
			logger.Warn().Err(err).Msg("ledger_cache_read_failed")
		} else {
			for id, n := range hits {
				ledger[id] = n
			}
			missing = misses
		}
	}
	if len(missing) == 0 {
		return ledger, nil
	}

	loaded, err := load(ctx, missing)
	if err != nil {
		return nil, err
	}
	fill := make(map[string]int, len(missing))
	for _, id := range missing {
		fill[id] = loaded[id]
		ledger[id] = loaded[id]
	}
	if cache != nil {
		if err := cache.Put(ctx, day, fill); err != nil {
			logger.Warn().Err(err).Msg("ledger_cache_write_failed")
		}
	}
	return ledger, nil
}
