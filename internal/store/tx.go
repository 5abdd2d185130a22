package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/marketsync/internal/canon"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx is one open transaction scoped to a tenant. Obtain one with WithTx.
type Tx struct {
	tx     *sql.Tx
	tenant string
}

// Tenant returns the tenant the transaction is scoped to.
func (t *Tx) Tenant() string {
	return t.tenant
}

// Shared names a shared sub-entity table.
type Shared string

const (
	SharedCustomer Shared = "customer"
	SharedAddress  Shared = "address"
	SharedBrand    Shared = "brand"
	SharedCategory Shared = "category"
)

// SharedKinds lists every shared sub-entity kind.
var SharedKinds = []Shared{SharedCustomer, SharedAddress, SharedBrand, SharedCategory}

var sharedTables = map[Shared]string{
	SharedCustomer: "customers",
	SharedAddress:  "addresses",
	SharedBrand:    "brands",
	SharedCategory: "categories",
}

var rootTables = map[canon.Kind]string{
	canon.KindOrder:   "orders",
	canon.KindProduct: "products",
	canon.KindClaim:   "claims",
}

func rootTable(kind canon.Kind) (string, error) {
	table, ok := rootTables[kind]
	if !ok {
		return "", fmt.Errorf("unknown entity kind %q", kind)
	}
	return table, nil
}

func sharedTable(kind Shared) (string, error) {
	table, ok := sharedTables[kind]
	if !ok {
		return "", fmt.Errorf("unknown shared entity %q", kind)
	}
	return table, nil
}

// deleteChunk keeps bulk deletes under SQLite's bound-variable limit.
const deleteChunk = 500

// UpsertCustomer inserts the customer or, when the natural key already
// exists, overwrites its scalar fields. Returns the local id.
func (t *Tx) UpsertCustomer(ctx context.Context, c canon.Customer) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO customers (tenant_id, external_id, first_name, last_name, email)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, external_id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			email = excluded.email
		RETURNING id
	`, t.tenant, c.ExternalID.String(), c.FirstName, c.LastName, c.Email).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert customer %s: %w", c.ExternalID, err)
	}
	return id, nil
}

// UpdateCustomer overwrites the scalar fields of a known customer row.
func (t *Tx) UpdateCustomer(ctx context.Context, id int64, c canon.Customer) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE customers SET first_name = ?, last_name = ?, email = ?
		WHERE id = ? AND tenant_id = ?
	`, c.FirstName, c.LastName, c.Email, id, t.tenant)
	if err != nil {
		return fmt.Errorf("update customer %s: %w", c.ExternalID, err)
	}
	return nil
}

// UpsertAddress inserts the address or overwrites its scalar fields.
func (t *Tx) UpsertAddress(ctx context.Context, a canon.Address) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO addresses
		(tenant_id, external_id, first_name, last_name, company, line1, line2,
		 city, district, postal_code, country_code, phone)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, external_id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			company = excluded.company,
			line1 = excluded.line1,
			line2 = excluded.line2,
			city = excluded.city,
			district = excluded.district,
			postal_code = excluded.postal_code,
			country_code = excluded.country_code,
			phone = excluded.phone
		RETURNING id
	`,
		t.tenant, a.ExternalID.String(), a.FirstName, a.LastName, a.Company, a.Line1, a.Line2,
		a.City, a.District, a.PostalCode, a.CountryCode, a.Phone,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert address %s: %w", a.ExternalID, err)
	}
	return id, nil
}

// UpdateAddress overwrites the scalar fields of a known address row.
func (t *Tx) UpdateAddress(ctx context.Context, id int64, a canon.Address) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE addresses SET
			first_name = ?, last_name = ?, company = ?, line1 = ?, line2 = ?,
			city = ?, district = ?, postal_code = ?, country_code = ?, phone = ?
		WHERE id = ? AND tenant_id = ?
	`,
		a.FirstName, a.LastName, a.Company, a.Line1, a.Line2,
		a.City, a.District, a.PostalCode, a.CountryCode, a.Phone,
		id, t.tenant,
	)
	if err != nil {
		return fmt.Errorf("update address %s: %w", a.ExternalID, err)
	}
	return nil
}

// EnsureBrand returns the local id of the brand, creating it if needed. An
// existing brand only has its name replaced, and only by a non-empty name.
func (t *Tx) EnsureBrand(ctx context.Context, b canon.Brand) (int64, error) {
	return t.ensureNamed(ctx, "brands", b.ExternalID, b.Name)
}

// EnsureCategory is EnsureBrand for categories.
func (t *Tx) EnsureCategory(ctx context.Context, c canon.Category) (int64, error) {
	return t.ensureNamed(ctx, "categories", c.ExternalID, c.Name)
}

func (t *Tx) ensureNamed(ctx context.Context, table string, key canon.ID, name string) (int64, error) {
	var id int64
	// DO UPDATE rather than DO NOTHING so RETURNING yields the existing row.
	err := t.tx.QueryRowContext(ctx, fmt.Sprintf(`
		INSERT INTO %[1]s (tenant_id, external_id, name)
		VALUES (?, ?, ?)
		ON CONFLICT(tenant_id, external_id) DO UPDATE SET
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE %[1]s.name END
		RETURNING id
	`, table), t.tenant, key.String(), name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ensure %s %s: %w", table, key, err)
	}
	return id, nil
}

// FindRoot looks a root entity up by natural key.
func (t *Tx) FindRoot(ctx context.Context, kind canon.Kind, key canon.ID) (int64, bool, error) {
	table, err := rootTable(kind)
	if err != nil {
		return 0, false, err
	}
	var id int64
	err = t.tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE tenant_id = ? AND external_id = ?`, table),
		t.tenant, key.String(),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find %s %s: %w", kind, key, err)
	}
	return id, true, nil
}

// CountRoots counts the tenant's root entities of kind. Evaluated inside
// the transaction so the count and a following insert are atomic.
func (t *Tx) CountRoots(ctx context.Context, kind canon.Kind) (int, error) {
	return countRoots(ctx, t.tx, t.tenant, kind)
}

// RootKeys returns every natural key of kind stored for the tenant, sorted.
func (t *Tx) RootKeys(ctx context.Context, kind canon.Kind) ([]canon.ID, error) {
	return rootKeys(ctx, t.tx, t.tenant, kind)
}

// DeleteRoots deletes the tenant's root entities with the given natural
// keys, in chunks, within this transaction. Owned children cascade.
// Returns the number of roots deleted.
func (t *Tx) DeleteRoots(ctx context.Context, kind canon.Kind, keys []canon.ID) (int, error) {
	table, err := rootTable(kind)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for start := 0; start < len(keys); start += deleteChunk {
		end := min(start+deleteChunk, len(keys))
		chunk := keys[start:end]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, t.tenant)
		for _, k := range chunk {
			args = append(args, k.String())
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")

		result, err := t.tx.ExecContext(ctx, fmt.Sprintf(
			`DELETE FROM %s WHERE tenant_id = ? AND external_id IN (%s)`, table, placeholders,
		), args...)
		if err != nil {
			return deleted, fmt.Errorf("delete %s: %w", table, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return deleted, fmt.Errorf("delete %s: rows affected: %w", table, err)
		}
		deleted += int(n)
	}
	return deleted, nil
}

// OrderRefs carries the local ids of an order's shared sub-entities.
// Zero means no reference.
type OrderRefs struct {
	CustomerID        int64
	ShippingAddressID int64
	BillingAddressID  int64
}

// UpsertOrder writes the order's scalar fields by order number.
func (t *Tx) UpsertOrder(ctx context.Context, o *canon.Order, refs OrderRefs) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO orders
		(tenant_id, external_id, status, order_date, last_modified, currency,
		 gross_amount, total_discount, total_price,
		 customer_id, shipping_address_id, billing_address_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, external_id) DO UPDATE SET
			status = excluded.status,
			order_date = excluded.order_date,
			last_modified = excluded.last_modified,
			currency = excluded.currency,
			gross_amount = excluded.gross_amount,
			total_discount = excluded.total_discount,
			total_price = excluded.total_price,
			customer_id = excluded.customer_id,
			shipping_address_id = excluded.shipping_address_id,
			billing_address_id = excluded.billing_address_id
		RETURNING id
	`,
		t.tenant, o.OrderNumber.String(), o.Status, millis(o.OrderDate), millis(o.LastModified), o.Currency,
		money(o.GrossAmount), money(o.TotalDiscount), money(o.TotalPrice),
		ref(refs.CustomerID), ref(refs.ShippingAddressID), ref(refs.BillingAddressID),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert order %s: %w", o.OrderNumber, err)
	}
	return id, nil
}

// ReplaceOrderItems replaces the order's items listed under packageID:
// lines stored under that package are deleted and items inserted in their
// place. Lines of the order's other packages are left alone. An empty
// packageID addresses the lines of records that carry no package.
//
// A line that moved from another package is re-homed. A line id repeated
// within items fails the transaction.
func (t *Tx) ReplaceOrderItems(ctx context.Context, orderID int64, packageID canon.ID, items []canon.OrderItem) error {
	seen := make(canon.IDSet, len(items))
	for _, it := range items {
		if seen.Has(it.ExternalID) {
			return fmt.Errorf("replace order items: duplicate line %s", it.ExternalID)
		}
		seen.Add(it.ExternalID)
	}

	if _, err := t.tx.ExecContext(ctx, `
		DELETE FROM order_items WHERE order_id = ? AND package_id = ?
	`, orderID, packageID.String()); err != nil {
		return fmt.Errorf("replace order items: delete: %w", err)
	}
	for _, it := range items {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO order_items
			(order_id, external_id, package_id, product_name, barcode, merchant_sku, quantity,
			 price, discount, currency, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(order_id, external_id) DO UPDATE SET
				package_id = excluded.package_id,
				product_name = excluded.product_name,
				barcode = excluded.barcode,
				merchant_sku = excluded.merchant_sku,
				quantity = excluded.quantity,
				price = excluded.price,
				discount = excluded.discount,
				currency = excluded.currency,
				status = excluded.status
		`,
			orderID, it.ExternalID.String(), packageID.String(), it.ProductName, it.Barcode, it.MerchantSKU,
			it.Quantity, money(it.Price), money(it.Discount), it.Currency, it.Status,
		)
		if err != nil {
			return fmt.Errorf("replace order items: insert %s: %w", it.ExternalID, err)
		}
	}
	return nil
}

// AppendStatusEvents inserts each event unless the order already has one
// with the same (status, occurred_at). Returns how many were new.
func (t *Tx) AppendStatusEvents(ctx context.Context, orderID int64, events []canon.StatusEvent) (int, error) {
	inserted := 0
	for _, ev := range events {
		result, err := t.tx.ExecContext(ctx, `
			INSERT INTO order_status_events (order_id, status, occurred_at)
			VALUES (?, ?, ?)
			ON CONFLICT(order_id, status, occurred_at) DO NOTHING
		`, orderID, ev.Status, ev.OccurredAt.UnixMilli())
		if err != nil {
			return inserted, fmt.Errorf("append status event %s: %w", ev.Status, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("append status event: rows affected: %w", err)
		}
		inserted += int(n)
	}
	return inserted, nil
}

// UpsertPackages upserts shipment packages by package id and attaches them
// to the order.
func (t *Tx) UpsertPackages(ctx context.Context, orderID int64, pkgs []canon.ShipmentPackage) error {
	for _, p := range pkgs {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO shipment_packages
			(tenant_id, order_id, external_id, status, cargo_tracking_number, cargo_provider, last_modified,
			 gross_amount, total_discount, total_price)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(tenant_id, external_id) DO UPDATE SET
				order_id = excluded.order_id,
				status = excluded.status,
				cargo_tracking_number = excluded.cargo_tracking_number,
				cargo_provider = excluded.cargo_provider,
				last_modified = excluded.last_modified,
				gross_amount = excluded.gross_amount,
				total_discount = excluded.total_discount,
				total_price = excluded.total_price
		`,
			t.tenant, orderID, p.ExternalID.String(), p.Status,
			p.CargoTrackingNumber, p.CargoProvider, millis(p.LastModified),
			money(p.GrossAmount), money(p.TotalDiscount), money(p.TotalPrice),
		)
		if err != nil {
			return fmt.Errorf("upsert package %s: %w", p.ExternalID, err)
		}
	}
	return nil
}

// RollupOrderTotals sets the order's amounts to the sum over its shipment
// packages. Sums are taken in Go so decimal precision is kept. An order
// without packages keeps the amounts it was written with.
func (t *Tx) RollupOrderTotals(ctx context.Context, orderID int64) error {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT gross_amount, total_discount, total_price
		FROM shipment_packages WHERE order_id = ?
	`, orderID)
	if err != nil {
		return fmt.Errorf("rollup order totals: %w", err)
	}
	defer rows.Close()

	var (
		gross, discount, total decimal.Decimal
		packages               int
	)
	for rows.Next() {
		var g, d, p string
		if err := rows.Scan(&g, &d, &p); err != nil {
			return fmt.Errorf("rollup order totals: scan: %w", err)
		}
		pg, err := parseMoney("gross_amount", g)
		if err != nil {
			return err
		}
		pd, err := parseMoney("total_discount", d)
		if err != nil {
			return err
		}
		pt, err := parseMoney("total_price", p)
		if err != nil {
			return err
		}
		gross = gross.Add(pg)
		discount = discount.Add(pd)
		total = total.Add(pt)
		packages++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rollup order totals: %w", err)
	}
	if packages == 0 {
		return nil
	}

	if _, err := t.tx.ExecContext(ctx, `
		UPDATE orders SET gross_amount = ?, total_discount = ?, total_price = ?
		WHERE id = ?
	`, money(gross), money(discount), money(total), orderID); err != nil {
		return fmt.Errorf("rollup order totals: update: %w", err)
	}
	return nil
}

// UpsertProduct writes the product by listing id. brandID and categoryID
// may be zero.
func (t *Tx) UpsertProduct(ctx context.Context, p *canon.Product, brandID, categoryID int64) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO products
		(tenant_id, external_id, barcode, title, product_main_id, stock_code,
		 brand_id, category_id, quantity, list_price, sale_price, vat_rate,
		 approved, archived, on_sale, rejected,
		 images, attributes, reject_reasons, remote_created_at, remote_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, external_id) DO UPDATE SET
			barcode = excluded.barcode,
			title = excluded.title,
			product_main_id = excluded.product_main_id,
			stock_code = excluded.stock_code,
			brand_id = excluded.brand_id,
			category_id = excluded.category_id,
			quantity = excluded.quantity,
			list_price = excluded.list_price,
			sale_price = excluded.sale_price,
			vat_rate = excluded.vat_rate,
			approved = excluded.approved,
			archived = excluded.archived,
			on_sale = excluded.on_sale,
			rejected = excluded.rejected,
			images = excluded.images,
			attributes = excluded.attributes,
			reject_reasons = excluded.reject_reasons,
			remote_created_at = excluded.remote_created_at,
			remote_updated_at = excluded.remote_updated_at
		RETURNING id
	`,
		t.tenant, p.ExternalID.String(), p.Barcode, p.Title, p.ProductMainID, p.StockCode,
		ref(brandID), ref(categoryID), p.Quantity, money(p.ListPrice), money(p.SalePrice), p.VatRate,
		p.Approved, p.Archived, p.OnSale, p.Rejected,
		opaque(p.Images), opaque(p.Attributes), opaque(p.RejectReasons),
		millis(p.RemoteCreatedAt), millis(p.RemoteUpdatedAt),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert product %s: %w", p.ExternalID, err)
	}
	return id, nil
}

// UpsertClaim writes the claim's scalar fields by claim id.
func (t *Tx) UpsertClaim(ctx context.Context, c *canon.Claim) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO claims
		(tenant_id, external_id, order_number, order_date, claim_date, last_modified,
		 customer_first_name, customer_last_name, cargo_tracking_number, cargo_provider)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, external_id) DO UPDATE SET
			order_number = excluded.order_number,
			order_date = excluded.order_date,
			claim_date = excluded.claim_date,
			last_modified = excluded.last_modified,
			customer_first_name = excluded.customer_first_name,
			customer_last_name = excluded.customer_last_name,
			cargo_tracking_number = excluded.cargo_tracking_number,
			cargo_provider = excluded.cargo_provider
		RETURNING id
	`,
		t.tenant, c.ExternalID.String(), c.OrderNumber.String(),
		millis(c.OrderDate), millis(c.ClaimDate), millis(c.LastModified),
		c.CustomerFirstName, c.CustomerLastName, c.CargoTrackingNumber, c.CargoProvider,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert claim %s: %w", c.ExternalID, err)
	}
	return id, nil
}

// UpsertClaimItems upserts claim items by claim-item id. Items the
// marketplace stopped sending are kept.
func (t *Tx) UpsertClaimItems(ctx context.Context, claimID int64, items []canon.ClaimItem) error {
	for _, it := range items {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO claim_items
			(claim_id, external_id, order_line_id, barcode, product_name, merchant_sku,
			 price, reason, reason_code, status, note, resolved)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(claim_id, external_id) DO UPDATE SET
				order_line_id = excluded.order_line_id,
				barcode = excluded.barcode,
				product_name = excluded.product_name,
				merchant_sku = excluded.merchant_sku,
				price = excluded.price,
				reason = excluded.reason,
				reason_code = excluded.reason_code,
				status = excluded.status,
				note = excluded.note,
				resolved = excluded.resolved
		`,
			claimID, it.ExternalID.String(), it.OrderLineID.String(), it.Barcode, it.ProductName, it.MerchantSKU,
			money(it.Price), it.Reason, it.ReasonCode, it.Status, it.Note, it.Resolved,
		)
		if err != nil {
			return fmt.Errorf("upsert claim item %s: %w", it.ExternalID, err)
		}
	}
	return nil
}

func countRoots(ctx context.Context, q querier, tenant string, kind canon.Kind) (int, error) {
	table, err := rootTable(kind)
	if err != nil {
		return 0, err
	}
	var n int
	err = q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE tenant_id = ?`, table), tenant,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func rootKeys(ctx context.Context, q querier, tenant string, kind canon.Kind) ([]canon.ID, error) {
	table, err := rootTable(kind)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, fmt.Sprintf(
		`SELECT external_id FROM %s WHERE tenant_id = ? ORDER BY external_id COLLATE BINARY ASC`, table,
	), tenant)
	if err != nil {
		return nil, fmt.Errorf("query %s keys: %w", table, err)
	}
	defer rows.Close()

	keys := []canon.ID{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan %s key: %w", table, err)
		}
		keys = append(keys, canon.ID(k))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s keys: %w", table, err)
	}
	return keys, nil
}
