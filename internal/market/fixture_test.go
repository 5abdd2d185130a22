package market

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/marketsync/internal/canon"
)

const fixtureYAML = `
products:
  - page: 0
    total_pages: 2
    total_elements: 3
    content:
      - id: "p-1"
        barcode: "869000000001"
        images:
          - url: "https://cdn.example/1.jpg"
      - id: "p-2"
        barcode: "869000000002"
  - page: 1
    total_pages: 2
    total_elements: 3
    content:
      - id: "p-3"
        barcode: "869000000003"
claims:
  - content:
      - id: "c-1"
  - error: "gateway timeout"
`

func TestParseFixture(t *testing.T) {
	f, err := ParseFixture([]byte(fixtureYAML))
	require.NoError(t, err)

	ctx := context.Background()
	p0, err := f.FetchPage(ctx, canon.KindProduct, PageRequest{Page: 0, Size: 2})
	require.NoError(t, err)
	assert.False(t, p0.Malformed())
	require.Len(t, p0.Records, 2)
	assert.JSONEq(t, `{"id":"p-1","barcode":"869000000001","images":[{"url":"https://cdn.example/1.jpg"}]}`, string(p0.Records[0]))

	p1, err := f.FetchPage(ctx, canon.KindProduct, PageRequest{Page: 1, Size: 2})
	require.NoError(t, err)
	require.Len(t, p1.Records, 1)

	assert.Len(t, f.Requests(canon.KindProduct), 2)
}

func TestFixtureFetcher_MalformedAndErrors(t *testing.T) {
	f, err := ParseFixture([]byte(fixtureYAML))
	require.NoError(t, err)

	ctx := context.Background()
	p0, err := f.FetchPage(ctx, canon.KindClaim, PageRequest{Page: 0})
	require.NoError(t, err)
	assert.True(t, p0.Malformed())

	_, err = f.FetchPage(ctx, canon.KindClaim, PageRequest{Page: 1})
	require.Error(t, err)
	assert.Equal(t, "gateway timeout", err.Error())
}

func TestFixtureFetcher_PastEnd(t *testing.T) {
	f, err := ParseFixture([]byte(fixtureYAML))
	require.NoError(t, err)

	p, err := f.FetchPage(context.Background(), canon.KindOrder, PageRequest{Page: 0})
	require.NoError(t, err)
	assert.False(t, p.Malformed())
	assert.Empty(t, p.Records)
	assert.Equal(t, 0, *p.TotalPages)
}

func TestParseFixture_UnknownField(t *testing.T) {
	_, err := ParseFixture([]byte("invoices: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse fixture")
}

func TestLoadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureYAML), 0644))

	f, err := LoadFixture(path)
	require.NoError(t, err)
	p, err := f.FetchPage(context.Background(), canon.KindProduct, PageRequest{Page: 1})
	require.NoError(t, err)
	assert.Len(t, p.Records, 1)

	_, err = LoadFixture(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestFixtureFetcher_Cancelled(t *testing.T) {
	f, err := ParseFixture([]byte(fixtureYAML))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.FetchPage(ctx, canon.KindProduct, PageRequest{})
	require.ErrorIs(t, err, context.Canceled)
}
