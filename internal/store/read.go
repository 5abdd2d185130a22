package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/marketsync/internal/canon"
)

// ErrNotFound is returned by the Read* functions when no row matches.
var ErrNotFound = errors.New("not found")

// LoadShared returns natural key → local id for every row of a shared
// sub-entity kind. Used to pre-seed a run's resolver cache with one query
// per kind.
func (s *Store) LoadShared(ctx context.Context, tenant string, kind Shared) (map[canon.ID]int64, error) {
	table, err := sharedTable(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT external_id, id FROM %s WHERE tenant_id = ?`, table), tenant)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[canon.ID]int64)
	for rows.Next() {
		var (
			key string
			id  int64
		)
		if err := rows.Scan(&key, &id); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out[canon.ID(key)] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

// CountShared counts the tenant's rows of a shared sub-entity kind.
func (s *Store) CountShared(ctx context.Context, tenant string, kind Shared) (int, error) {
	table, err := sharedTable(kind)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE tenant_id = ?`, table), tenant).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// Count counts the tenant's root entities of kind.
func (s *Store) Count(ctx context.Context, tenant string, kind canon.Kind) (int, error) {
	return countRoots(ctx, s.db, tenant, kind)
}

// Keys returns every natural key of kind stored for the tenant, sorted.
func (s *Store) Keys(ctx context.Context, tenant string, kind canon.Kind) ([]canon.ID, error) {
	return rootKeys(ctx, s.db, tenant, kind)
}

// ReadOrder loads an order with its shared sub-entities and owned children.
// Items are ordered by line id, status events by time then status.
func (s *Store) ReadOrder(ctx context.Context, tenant string, key canon.ID) (*canon.Order, error) {
	var (
		o                     canon.Order
		id                    int64
		orderDate, modified   sql.NullInt64
		gross, discount, tot  string
		customerID            sql.NullInt64
		shippingID, billingID sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, external_id, status, order_date, last_modified, currency,
		       gross_amount, total_discount, total_price,
		       customer_id, shipping_address_id, billing_address_id
		FROM orders WHERE tenant_id = ? AND external_id = ?
	`, tenant, key.String()).Scan(
		&id, &o.OrderNumber, &o.Status, &orderDate, &modified, &o.Currency,
		&gross, &discount, &tot,
		&customerID, &shippingID, &billingID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read order %s: %w", key, err)
	}
	o.OrderDate = fromMillis(orderDate)
	o.LastModified = fromMillis(modified)
	if o.GrossAmount, err = parseMoney("gross_amount", gross); err != nil {
		return nil, err
	}
	if o.TotalDiscount, err = parseMoney("total_discount", discount); err != nil {
		return nil, err
	}
	if o.TotalPrice, err = parseMoney("total_price", tot); err != nil {
		return nil, err
	}

	if customerID.Valid {
		if o.Customer, err = s.readCustomer(ctx, customerID.Int64); err != nil {
			return nil, err
		}
	}
	if shippingID.Valid {
		if o.ShippingAddress, err = s.readAddress(ctx, shippingID.Int64); err != nil {
			return nil, err
		}
	}
	if billingID.Valid {
		if o.BillingAddress, err = s.readAddress(ctx, billingID.Int64); err != nil {
			return nil, err
		}
	}

	if o.Items, err = s.readOrderItems(ctx, id); err != nil {
		return nil, err
	}
	if o.StatusEvents, err = s.readStatusEvents(ctx, id); err != nil {
		return nil, err
	}
	if o.Packages, err = s.readPackages(ctx, id); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) readCustomer(ctx context.Context, id int64) (canon.Customer, error) {
	var c canon.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT external_id, first_name, last_name, email FROM customers WHERE id = ?
	`, id).Scan(&c.ExternalID, &c.FirstName, &c.LastName, &c.Email)
	if err != nil {
		return canon.Customer{}, fmt.Errorf("read customer %d: %w", id, err)
	}
	return c, nil
}

func (s *Store) readAddress(ctx context.Context, id int64) (canon.Address, error) {
	var a canon.Address
	err := s.db.QueryRowContext(ctx, `
		SELECT external_id, first_name, last_name, company, line1, line2,
		       city, district, postal_code, country_code, phone
		FROM addresses WHERE id = ?
	`, id).Scan(
		&a.ExternalID, &a.FirstName, &a.LastName, &a.Company, &a.Line1, &a.Line2,
		&a.City, &a.District, &a.PostalCode, &a.CountryCode, &a.Phone,
	)
	if err != nil {
		return canon.Address{}, fmt.Errorf("read address %d: %w", id, err)
	}
	return a, nil
}

func (s *Store) readOrderItems(ctx context.Context, orderID int64) ([]canon.OrderItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT external_id, package_id, product_name, barcode, merchant_sku, quantity,
		       price, discount, currency, status
		FROM order_items WHERE order_id = ?
		ORDER BY external_id COLLATE BINARY ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []canon.OrderItem
	for rows.Next() {
		var (
			it              canon.OrderItem
			price, discount string
		)
		if err := rows.Scan(
			&it.ExternalID, &it.PackageID, &it.ProductName, &it.Barcode, &it.MerchantSKU, &it.Quantity,
			&price, &discount, &it.Currency, &it.Status,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if it.Price, err = parseMoney("price", price); err != nil {
			return nil, err
		}
		if it.Discount, err = parseMoney("discount", discount); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

func (s *Store) readStatusEvents(ctx context.Context, orderID int64) ([]canon.StatusEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, occurred_at FROM order_status_events
		WHERE order_id = ?
		ORDER BY occurred_at ASC, status COLLATE BINARY ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query status events: %w", err)
	}
	defer rows.Close()

	var events []canon.StatusEvent
	for rows.Next() {
		var (
			ev canon.StatusEvent
			at sql.NullInt64
		)
		if err := rows.Scan(&ev.Status, &at); err != nil {
			return nil, fmt.Errorf("scan status event: %w", err)
		}
		ev.OccurredAt = fromMillis(at)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status events: %w", err)
	}
	return events, nil
}

func (s *Store) readPackages(ctx context.Context, orderID int64) ([]canon.ShipmentPackage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT external_id, status, cargo_tracking_number, cargo_provider, last_modified,
		       gross_amount, total_discount, total_price
		FROM shipment_packages WHERE order_id = ?
		ORDER BY external_id COLLATE BINARY ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query packages: %w", err)
	}
	defer rows.Close()

	var pkgs []canon.ShipmentPackage
	for rows.Next() {
		var (
			p                      canon.ShipmentPackage
			modified               sql.NullInt64
			gross, discount, total string
		)
		if err := rows.Scan(
			&p.ExternalID, &p.Status, &p.CargoTrackingNumber, &p.CargoProvider, &modified,
			&gross, &discount, &total,
		); err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}
		p.LastModified = fromMillis(modified)
		if p.GrossAmount, err = parseMoney("gross_amount", gross); err != nil {
			return nil, err
		}
		if p.TotalDiscount, err = parseMoney("total_discount", discount); err != nil {
			return nil, err
		}
		if p.TotalPrice, err = parseMoney("total_price", total); err != nil {
			return nil, err
		}
		pkgs = append(pkgs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate packages: %w", err)
	}
	return pkgs, nil
}

// ReadProduct loads a product with its brand and category.
func (s *Store) ReadProduct(ctx context.Context, tenant string, key canon.ID) (*canon.Product, error) {
	var (
		p                        canon.Product
		brandKey, brandName      sql.NullString
		categoryKey, categoryNm  sql.NullString
		listPrice, salePrice     string
		images, attrs, rejects   sql.NullString
		remoteCreated, remoteUpd sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT p.external_id, p.barcode, p.title, p.product_main_id, p.stock_code,
		       b.external_id, b.name, c.external_id, c.name,
		       p.quantity, p.list_price, p.sale_price, p.vat_rate,
		       p.approved, p.archived, p.on_sale, p.rejected,
		       p.images, p.attributes, p.reject_reasons,
		       p.remote_created_at, p.remote_updated_at
		FROM products p
		LEFT JOIN brands b ON b.id = p.brand_id
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE p.tenant_id = ? AND p.external_id = ?
	`, tenant, key.String()).Scan(
		&p.ExternalID, &p.Barcode, &p.Title, &p.ProductMainID, &p.StockCode,
		&brandKey, &brandName, &categoryKey, &categoryNm,
		&p.Quantity, &listPrice, &salePrice, &p.VatRate,
		&p.Approved, &p.Archived, &p.OnSale, &p.Rejected,
		&images, &attrs, &rejects,
		&remoteCreated, &remoteUpd,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read product %s: %w", key, err)
	}
	if brandKey.Valid {
		p.Brand = canon.Brand{ExternalID: canon.ID(brandKey.String), Name: brandName.String}
	}
	if categoryKey.Valid {
		p.Category = canon.Category{ExternalID: canon.ID(categoryKey.String), Name: categoryNm.String}
	}
	if p.ListPrice, err = parseMoney("list_price", listPrice); err != nil {
		return nil, err
	}
	if p.SalePrice, err = parseMoney("sale_price", salePrice); err != nil {
		return nil, err
	}
	p.Images = fromOpaque(images)
	p.Attributes = fromOpaque(attrs)
	p.RejectReasons = fromOpaque(rejects)
	p.RemoteCreatedAt = fromMillis(remoteCreated)
	p.RemoteUpdatedAt = fromMillis(remoteUpd)
	return &p, nil
}

// ReadClaim loads a claim with its items ordered by claim-item id.
func (s *Store) ReadClaim(ctx context.Context, tenant string, key canon.ID) (*canon.Claim, error) {
	var (
		c                              canon.Claim
		id                             int64
		orderDate, claimDate, modified sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, external_id, order_number, order_date, claim_date, last_modified,
		       customer_first_name, customer_last_name, cargo_tracking_number, cargo_provider
		FROM claims WHERE tenant_id = ? AND external_id = ?
	`, tenant, key.String()).Scan(
		&id, &c.ExternalID, &c.OrderNumber, &orderDate, &claimDate, &modified,
		&c.CustomerFirstName, &c.CustomerLastName, &c.CargoTrackingNumber, &c.CargoProvider,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("claim %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read claim %s: %w", key, err)
	}
	c.OrderDate = fromMillis(orderDate)
	c.ClaimDate = fromMillis(claimDate)
	c.LastModified = fromMillis(modified)

	rows, err := s.db.QueryContext(ctx, `
		SELECT external_id, order_line_id, barcode, product_name, merchant_sku,
		       price, reason, reason_code, status, note, resolved
		FROM claim_items WHERE claim_id = ?
		ORDER BY external_id COLLATE BINARY ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query claim items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it    canon.ClaimItem
			price string
		)
		if err := rows.Scan(
			&it.ExternalID, &it.OrderLineID, &it.Barcode, &it.ProductName, &it.MerchantSKU,
			&price, &it.Reason, &it.ReasonCode, &it.Status, &it.Note, &it.Resolved,
		); err != nil {
			return nil, fmt.Errorf("scan claim item: %w", err)
		}
		if it.Price, err = parseMoney("price", price); err != nil {
			return nil, err
		}
		c.Items = append(c.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claim items: %w", err)
	}
	return &c, nil
}
