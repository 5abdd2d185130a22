package engine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/marketsync/internal/canon"
	"github.com/roach88/marketsync/internal/limits"
	"github.com/roach88/marketsync/internal/mapper"
	"github.com/roach88/marketsync/internal/store"
)

func TestUpsertRecord_CreateThenUpdate(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	e := createTestEngine(t, s)

	p, err := mapper.MapProduct(productRaw("A"))
	require.NoError(t, err)

	first, err := e.UpsertRecord(ctx, testTenant, p)
	require.NoError(t, err)
	assert.Equal(t, OpCreated, first.Operation)
	assert.NotZero(t, first.LocalID)

	p.SalePrice = decimal.RequireFromString("59.90")
	second, err := e.UpsertRecord(ctx, testTenant, p)
	require.NoError(t, err)
	assert.Equal(t, OpUpdated, second.Operation)
	assert.Equal(t, first.LocalID, second.LocalID)

	got, err := s.ReadProduct(ctx, testTenant, "A")
	require.NoError(t, err)
	assert.Equal(t, "59.9", got.SalePrice.String())
	assert.Equal(t, "Acme", got.Brand.Name)
}

func TestUpsertRecord_BlankTenantRejected(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	e := createTestEngine(t, s)

	p, err := mapper.MapProduct(productRaw("A"))
	require.NoError(t, err)

	_, err = e.UpsertRecord(ctx, "", p)
	require.ErrorIs(t, err, ErrTenantRequired)
	assert.Contains(t, err.Error(), "upsert product A")

	n, err := s.Count(ctx, "", canon.KindProduct)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = s.CountShared(ctx, "", store.SharedBrand)
	require.NoError(t, err)
	assert.Zero(t, n, "shared rows are not written either")
}

func TestUpsertRecord_LimitRejection(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	e := createTestEngine(t, s, WithLimits(limits.Plan{limits.ResourceClaim: 0}))

	c, err := mapper.MapClaim(claimRaw("c1", "i1"))
	require.NoError(t, err)

	_, err = e.UpsertRecord(ctx, testTenant, c)
	require.Error(t, err)
	assert.True(t, limits.IsExceeded(err))
	assert.False(t, IsTransactionError(err))

	n, err := s.Count(ctx, testTenant, canon.KindClaim)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpsertRecord_TransactionError(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	e := createTestEngine(t, s)

	o, err := mapper.MapOrder(orderRaw("77", "L1", "L1"))
	require.NoError(t, err)

	_, err = e.UpsertRecord(ctx, testTenant, o)
	require.Error(t, err)
	require.True(t, IsTransactionError(err))

	var te *TransactionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, canon.KindOrder, te.Kind)
	assert.Equal(t, canon.ID("77"), te.NaturalKey)
}

func TestUpsertRecord_CancelledContextStillCommits(t *testing.T) {
	s := createTestStore(t)
	e := createTestEngine(t, s)

	o, err := mapper.MapOrder(orderRaw("88", "L1"))
	require.NoError(t, err)

	// A fixed checker skips the plan lookup, so the only blocking work
	// is the record transaction, which is detached from cancellation.
	e.limits = limits.Unlimited
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := e.UpsertRecord(ctx, testTenant, o)
	require.NoError(t, err)
	assert.Equal(t, OpCreated, out.Operation)
}

func TestUpsertRecord_ClaimItemsUpserted(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	e := createTestEngine(t, s)

	c, err := mapper.MapClaim(claimRaw("c1", "i1", "i2"))
	require.NoError(t, err)
	_, err = e.UpsertRecord(ctx, testTenant, c)
	require.NoError(t, err)

	// A later delivery lists only one item; claim items are never removed.
	c, err = mapper.MapClaim(claimRaw("c1", "i2"))
	require.NoError(t, err)
	_, err = e.UpsertRecord(ctx, testTenant, c)
	require.NoError(t, err)

	got, err := s.ReadClaim(ctx, testTenant, "c1")
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, canon.ID("i1"), got.Items[0].ExternalID)
	assert.Equal(t, "created", got.Items[0].Status)
}

func TestUpsertRecord_CustomerRefreshedOnHit(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	e := createTestEngine(t, s)

	o, err := mapper.MapOrder(orderRaw("1", "L1"))
	require.NoError(t, err)
	_, err = e.UpsertRecord(ctx, testTenant, o)
	require.NoError(t, err)

	o.Customer.Email = "deniz@example.com"
	_, err = e.UpsertRecord(ctx, testTenant, o)
	require.NoError(t, err)

	got, err := s.ReadOrder(ctx, testTenant, "1")
	require.NoError(t, err)
	assert.Equal(t, "deniz@example.com", got.Customer.Email)

	n, err := s.CountShared(ctx, testTenant, store.SharedCustomer)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
