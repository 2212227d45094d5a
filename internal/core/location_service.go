package core

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LocationService is the registry of warehouses, their locations and the standard virtual bins.
type LocationService interface {
	CreateWarehouse(ctx context.Context, in WarehouseInput) (*Warehouse, error)
	// GetWarehouse resolves a warehouse by numeric id first, then by code.
	GetWarehouse(ctx context.Context, ref string) (*Warehouse, error)
	ListWarehouses(ctx context.Context) ([]Warehouse, error)

	// EnsureStandardBins creates whichever standard virtual bins the warehouse is missing and
	// returns how many were created. Safe to call any number of times.
	EnsureStandardBins(ctx context.Context, warehouseID int) (int, error)
	EnsureStandardBinsTx(ctx context.Context, tx pgx.Tx, warehouseID int) (int, error)

	CreatePhysicalLocation(ctx context.Context, warehouseID int, code, displayName string) (*Location, error)
	SetLocationStatus(ctx context.Context, locationID int, status Status) error
	GetLocation(ctx context.Context, locationID int) (*Location, error)
	GetLocationByCode(ctx context.Context, warehouseID int, code string) (*Location, error)
	GetVirtualBin(ctx context.Context, warehouseID int, subtype LocationSubtype) (*Location, error)
	ListLocations(ctx context.Context, warehouseID int) ([]Location, error)

	// RegisterItem upserts an item reference mirrored from the catalog.
	RegisterItem(ctx context.Context, item Item) error
}

type locationService struct {
	pool *pgxpool.Pool
}

func NewLocationService(pool *pgxpool.Pool) LocationService {
	return &locationService{pool: pool}
}

var gstinPattern = regexp.MustCompile(`^[0-9A-Z]{15}$`)

const warehouseColumns = `id, code, name, status, gstin, address_line1, address_line2, city, state, pincode, country, created_at`

const locationColumns = `id, warehouse_id, type, subtype, code, display_name, system_managed, status`

func scanWarehouse(row pgx.Row) (*Warehouse, error) {
	var w Warehouse
	err := row.Scan(&w.ID, &w.Code, &w.Name, &w.Status, &w.GSTIN, &w.AddressLine1, &w.AddressLine2,
		&w.City, &w.State, &w.Pincode, &w.Country, &w.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func scanLocation(row pgx.Row) (*Location, error) {
	var l Location
	if err := row.Scan(&l.ID, &l.WarehouseID, &l.Type, &l.Subtype, &l.Code, &l.DisplayName, &l.SystemManaged, &l.Status); err != nil {
		return nil, err
	}
	return &l, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *locationService) CreateWarehouse(ctx context.Context, in WarehouseInput) (*Warehouse, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if in.Code == "" {
		return nil, newValidationError("code", "warehouse code is required")
	}
	if in.Name == "" {
		return nil, newValidationError("name", "warehouse name is required")
	}
	if in.GSTIN != "" && !gstinPattern.MatchString(in.GSTIN) {
		return nil, newValidationError("gstin", "invalid GSTIN; must be 15 chars (A-Z, 0-9)")
	}
	if in.Country == "" {
		in.Country = "India"
	}

	w, err := scanWarehouse(s.pool.QueryRow(ctx, `
		INSERT INTO warehouses (code, name, gstin, address_line1, address_line2, city, state, pincode, country)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+warehouseColumns,
		in.Code, in.Name, in.GSTIN, in.AddressLine1, in.AddressLine2, in.City, in.State, in.Pincode, in.Country,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, newValidationError("code", "warehouse code %s already exists", in.Code)
		}
		return nil, fmt.Errorf("failed to insert warehouse: %w", err)
	}
	return w, nil
}

func (s *locationService) GetWarehouse(ctx context.Context, ref string) (*Warehouse, error) {
	return getWarehouse(ctx, s.pool, ref)
}

func getWarehouse(ctx context.Context, q dbtx, ref string) (*Warehouse, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, newValidationError("warehouse", "warehouse code or id is required")
	}
	if id, err := strconv.Atoi(ref); err == nil {
		w, err := scanWarehouse(q.QueryRow(ctx, "SELECT "+warehouseColumns+" FROM warehouses WHERE id = $1", id))
		if err == nil {
			return w, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to fetch warehouse %d: %w", id, err)
		}
	}
	w, err := scanWarehouse(q.QueryRow(ctx, "SELECT "+warehouseColumns+" FROM warehouses WHERE code = $1", ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("warehouse", ref)
		}
		return nil, fmt.Errorf("failed to fetch warehouse %s: %w", ref, err)
	}
	return w, nil
}

func (s *locationService) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	return listWarehouses(ctx, s.pool)
}

func listWarehouses(ctx context.Context, q dbtx) ([]Warehouse, error) {
	rows, err := q.Query(ctx, "SELECT "+warehouseColumns+" FROM warehouses ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("failed to query warehouses: %w", err)
	}
	defer rows.Close()

	var warehouses []Warehouse
	for rows.Next() {
		w, err := scanWarehouse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan warehouse: %w", err)
		}
		warehouses = append(warehouses, *w)
	}
	return warehouses, rows.Err()
}

func (s *locationService) EnsureStandardBins(ctx context.Context, warehouseID int) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := s.EnsureStandardBinsTx(ctx, tx, warehouseID)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit standard bins: %w", err)
	}
	return created, nil
}

func (s *locationService) EnsureStandardBinsTx(ctx context.Context, tx pgx.Tx, warehouseID int) (int, error) {
	if err := requireWarehouseID(ctx, tx, warehouseID); err != nil {
		return 0, err
	}

	created := 0
	for _, st := range StandardVirtualSubtypes {
		tag, err := tx.Exec(ctx, `
			INSERT INTO locations (warehouse_id, type, subtype, display_name, system_managed, status)
			VALUES ($1, 'VIRTUAL', $2, $3, true, 'ACTIVE')
			ON CONFLICT (warehouse_id, subtype) WHERE type = 'VIRTUAL' DO NOTHING
		`, warehouseID, string(st), st.DisplayName())
		if err != nil {
			return 0, fmt.Errorf("failed to ensure %s bin for warehouse %d: %w", st, warehouseID, err)
		}
		created += int(tag.RowsAffected())
	}
	return created, nil
}

func (s *locationService) CreatePhysicalLocation(ctx context.Context, warehouseID int, code, displayName string) (*Location, error) {
	code = strings.TrimSpace(code)
	displayName = strings.TrimSpace(displayName)
	if code == "" {
		return nil, newValidationError("code", "code is required for PHYSICAL locations")
	}
	if displayName == "" {
		displayName = code
	}

	l, err := scanLocation(s.pool.QueryRow(ctx, `
		INSERT INTO locations (warehouse_id, type, subtype, code, display_name, system_managed, status)
		VALUES ($1, 'PHYSICAL', 'STORAGE', $2, $3, false, 'ACTIVE')
		RETURNING `+locationColumns,
		warehouseID, code, displayName,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, newValidationError("code", "location code %s already exists in warehouse %d", code, warehouseID)
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, notFound("warehouse", warehouseID)
		}
		return nil, fmt.Errorf("failed to insert location: %w", err)
	}
	return l, nil
}

func (s *locationService) SetLocationStatus(ctx context.Context, locationID int, status Status) error {
	if status != StatusActive && status != StatusInactive {
		return newValidationError("status", "invalid status %q", status)
	}
	loc, err := getLocation(ctx, s.pool, locationID)
	if err != nil {
		return err
	}
	if loc.SystemManaged {
		return newValidationError("status", "system-managed bin %s cannot change status", loc.Label())
	}
	_, err = s.pool.Exec(ctx, "UPDATE locations SET status = $1, updated_at = NOW() WHERE id = $2", string(status), locationID)
	if err != nil {
		return fmt.Errorf("failed to update location %d status: %w", locationID, err)
	}
	return nil
}

func (s *locationService) GetLocation(ctx context.Context, locationID int) (*Location, error) {
	return getLocation(ctx, s.pool, locationID)
}

func getLocation(ctx context.Context, q dbtx, locationID int) (*Location, error) {
	l, err := scanLocation(q.QueryRow(ctx, "SELECT "+locationColumns+" FROM locations WHERE id = $1", locationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("location", locationID)
		}
		return nil, fmt.Errorf("failed to fetch location %d: %w", locationID, err)
	}
	return l, nil
}

// getLocations loads every id in ids; any missing id is a NotFoundError.
func getLocations(ctx context.Context, q dbtx, ids []int) (map[int]*Location, error) {
	rows, err := q.Query(ctx, "SELECT "+locationColumns+" FROM locations WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]*Location, len(ids))
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		out[l.ID] = l
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating locations: %w", err)
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, notFound("location", id)
		}
	}
	return out, nil
}

func (s *locationService) GetLocationByCode(ctx context.Context, warehouseID int, code string) (*Location, error) {
	l, err := scanLocation(s.pool.QueryRow(ctx,
		"SELECT "+locationColumns+" FROM locations WHERE warehouse_id = $1 AND type = 'PHYSICAL' AND code = $2",
		warehouseID, strings.TrimSpace(code),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("location", code)
		}
		return nil, fmt.Errorf("failed to fetch location %s: %w", code, err)
	}
	return l, nil
}

func (s *locationService) GetVirtualBin(ctx context.Context, warehouseID int, subtype LocationSubtype) (*Location, error) {
	return getVirtualBin(ctx, s.pool, warehouseID, subtype)
}

// getVirtualBin returns the warehouse's bin for subtype. A missing bin is a ValidationError:
// the warehouse was not provisioned correctly, the caller did nothing wrong by naming it.
func requireWarehouseID(ctx context.Context, q dbtx, warehouseID int) error {
	var exists bool
	if err := q.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM warehouses WHERE id = $1)", warehouseID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check warehouse %d: %w", warehouseID, err)
	}
	if !exists {
		return notFound("warehouse", warehouseID)
	}
	return nil
}

func getVirtualBin(ctx context.Context, q dbtx, warehouseID int, subtype LocationSubtype) (*Location, error) {
	l, err := scanLocation(q.QueryRow(ctx,
		"SELECT "+locationColumns+" FROM locations WHERE warehouse_id = $1 AND type = 'VIRTUAL' AND subtype = $2",
		warehouseID, string(subtype),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, newValidationError("bin", "%s virtual bin missing in warehouse %d", subtype, warehouseID)
		}
		return nil, fmt.Errorf("failed to fetch %s bin: %w", subtype, err)
	}
	return l, nil
}

func (s *locationService) ListLocations(ctx context.Context, warehouseID int) ([]Location, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+locationColumns+`
		FROM locations
		WHERE warehouse_id = $1
		ORDER BY type, code, subtype
	`, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	var locations []Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locations = append(locations, *l)
	}
	return locations, rows.Err()
}

func (s *locationService) RegisterItem(ctx context.Context, item Item) error {
	item.ID = strings.TrimSpace(item.ID)
	if item.ID == "" {
		return newValidationError("item", "item id is required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO items (id, sku, name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET sku = EXCLUDED.sku, name = EXCLUDED.name, updated_at = NOW()
	`, item.ID, item.SKU, item.Name)
	if err != nil {
		return fmt.Errorf("failed to register item %s: %w", item.ID, err)
	}
	return nil
}
