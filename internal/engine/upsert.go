package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/marketsync/internal/canon"
	"github.com/roach88/marketsync/internal/limits"
	"github.com/roach88/marketsync/internal/store"
)

// Operation tells whether an upsert created or updated its root.
type Operation string

const (
	OpCreated Operation = "created"
	OpUpdated Operation = "updated"
)

// Outcome is the result of one successful root upsert.
type Outcome struct {
	LocalID   int64
	Operation Operation
}

// UpsertRecord persists one canonical record outside of a paged run, as a
// marketplace webhook would deliver it. It shares the transactional core
// with Run: same child policies, same limit gate, same isolation.
//
// A blank tenant is rejected with ErrTenantRequired. Limit failures are
// returned unwrapped (limits.IsExceeded); any other failure is a
// *TransactionError and nothing was written.
func (e *Engine) UpsertRecord(ctx context.Context, tenant string, rec canon.Record) (Outcome, error) {
	if strings.TrimSpace(tenant) == "" {
		return Outcome{}, fmt.Errorf("upsert %s %s: %w", rec.Kind(), rec.NaturalKey(), ErrTenantRequired)
	}
	checker, err := e.checkerFor(ctx, tenant, nil)
	if err != nil {
		return Outcome{}, err
	}
	out, err := e.upsertRoot(ctx, tenant, rec, newResolver(e.cacheCapacity), checker)
	if err != nil {
		e.metrics.record(rec.Kind(), string(Classify(err)))
		return Outcome{}, err
	}
	e.metrics.record(rec.Kind(), string(out.Operation))
	return out, nil
}

// upsertRoot writes one root and its object graph in one transaction.
//
// The transaction runs on a context detached from cancellation: once
// started it always reaches commit or rollback.
func (e *Engine) upsertRoot(
	ctx context.Context,
	tenant string,
	rec canon.Record,
	res *resolver,
	checker limits.Checker,
) (Outcome, error) {
	txCtx := context.WithoutCancel(ctx)

	var out Outcome
	err := e.store.WithTx(txCtx, tenant, func(tx *store.Tx) error {
		var err error
		switch r := rec.(type) {
		case *canon.Order:
			out, err = upsertOrder(txCtx, tx, res, checker, r)
		case *canon.Product:
			out, err = upsertProduct(txCtx, tx, res, checker, r)
		case *canon.Claim:
			out, err = upsertClaim(txCtx, tx, checker, r)
		default:
			err = fmt.Errorf("unsupported record type %T", rec)
		}
		return err
	})
	if err != nil {
		res.discard()
		if limits.IsExceeded(err) {
			return Outcome{}, err
		}
		return Outcome{}, &TransactionError{Kind: rec.Kind(), NaturalKey: rec.NaturalKey(), Err: err}
	}
	res.commit()
	return out, nil
}

// existing looks the root up and, on the create path only, consults the
// limit gate. The count is taken inside the transaction, so the check and
// the insert that follows are atomic.
func existing(ctx context.Context, tx *store.Tx, checker limits.Checker, kind canon.Kind, key canon.ID) (Operation, error) {
	_, found, err := tx.FindRoot(ctx, kind, key)
	if err != nil {
		return "", err
	}
	if found {
		return OpUpdated, nil
	}
	current, err := tx.CountRoots(ctx, kind)
	if err != nil {
		return "", err
	}
	if err := checker.CheckLimit(ctx, tx.Tenant(), limits.ResourceFor(kind), current); err != nil {
		return "", fmt.Errorf("create %s %s: %w", kind, key, err)
	}
	return OpCreated, nil
}

// upsertOrder: items are fully replaced within each package the record
// carries, status events are appended when (status, occurred_at) is new,
// packages are upserted by package id. An order listed as several package
// records keeps the lines of every package, and its amounts are the sum
// over its packages.
func upsertOrder(ctx context.Context, tx *store.Tx, res *resolver, checker limits.Checker, o *canon.Order) (Outcome, error) {
	var (
		refs store.OrderRefs
		err  error
	)
	if refs.CustomerID, err = res.customer(ctx, tx, o.Customer); err != nil {
		return Outcome{}, err
	}
	if refs.ShippingAddressID, err = res.address(ctx, tx, o.ShippingAddress); err != nil {
		return Outcome{}, err
	}
	if refs.BillingAddressID, err = res.address(ctx, tx, o.BillingAddress); err != nil {
		return Outcome{}, err
	}

	op, err := existing(ctx, tx, checker, canon.KindOrder, o.OrderNumber)
	if err != nil {
		return Outcome{}, err
	}

	id, err := tx.UpsertOrder(ctx, o, refs)
	if err != nil {
		return Outcome{}, err
	}
	for _, scope := range itemsByPackage(o) {
		if err := tx.ReplaceOrderItems(ctx, id, scope.pkg, scope.items); err != nil {
			return Outcome{}, err
		}
	}
	if _, err := tx.AppendStatusEvents(ctx, id, o.StatusEvents); err != nil {
		return Outcome{}, err
	}
	if err := tx.UpsertPackages(ctx, id, o.Packages); err != nil {
		return Outcome{}, err
	}
	if len(o.Packages) > 0 {
		if err := tx.RollupOrderTotals(ctx, id); err != nil {
			return Outcome{}, err
		}
	}
	return Outcome{LocalID: id, Operation: op}, nil
}

type packageItems struct {
	pkg   canon.ID
	items []canon.OrderItem
}

// itemsByPackage groups the order's lines by the package they were listed
// under. Every package the record carries gets a group, even an empty one,
// so a package whose lines all went away is cleared. A record with neither
// packages nor packaged lines yields one group for the zero package.
func itemsByPackage(o *canon.Order) []packageItems {
	var groups []packageItems
	index := make(map[canon.ID]int)
	group := func(pkg canon.ID) int {
		if i, ok := index[pkg]; ok {
			return i
		}
		index[pkg] = len(groups)
		groups = append(groups, packageItems{pkg: pkg})
		return len(groups) - 1
	}

	for _, p := range o.Packages {
		group(p.ExternalID)
	}
	for _, it := range o.Items {
		i := group(it.PackageID)
		groups[i].items = append(groups[i].items, it)
	}
	if len(groups) == 0 {
		group("")
	}
	return groups
}

// upsertProduct: products own no child rows; images, attributes and reject
// reasons are canonical JSON columns.
func upsertProduct(ctx context.Context, tx *store.Tx, res *resolver, checker limits.Checker, p *canon.Product) (Outcome, error) {
	brandID, err := res.brand(ctx, tx, p.Brand)
	if err != nil {
		return Outcome{}, err
	}
	categoryID, err := res.category(ctx, tx, p.Category)
	if err != nil {
		return Outcome{}, err
	}

	op, err := existing(ctx, tx, checker, canon.KindProduct, p.ExternalID)
	if err != nil {
		return Outcome{}, err
	}

	id, err := tx.UpsertProduct(ctx, p, brandID, categoryID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{LocalID: id, Operation: op}, nil
}

// upsertClaim: claim items are upserted by claim-item id.
func upsertClaim(ctx context.Context, tx *store.Tx, checker limits.Checker, c *canon.Claim) (Outcome, error) {
	op, err := existing(ctx, tx, checker, canon.KindClaim, c.ExternalID)
	if err != nil {
		return Outcome{}, err
	}

	id, err := tx.UpsertClaim(ctx, c)
	if err != nil {
		return Outcome{}, err
	}
	if err := tx.UpsertClaimItems(ctx, id, c.Items); err != nil {
		return Outcome{}, err
	}
	return Outcome{LocalID: id, Operation: op}, nil
}
