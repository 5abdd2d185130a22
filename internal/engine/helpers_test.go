package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/roach88/marketsync/internal/canon"
	"github.com/roach88/marketsync/internal/limits"
	"github.com/roach88/marketsync/internal/market"
	"github.com/roach88/marketsync/internal/store"
	"github.com/roach88/marketsync/internal/testutil"
)

const testTenant = "tenant-a"

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEngine builds an engine with deterministic ids and clock, no
// pausing and no log output.
func createTestEngine(t *testing.T, s *store.Store, opts ...EngineOption) *Engine {
	t.Helper()
	base := []EngineOption{
		WithClock(testutil.NewDeterministicClock()),
		WithRunIDs(testutil.NewSequentialRunIDs("run")),
		WithBatchPause(0, 0),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return New(s, append(base, opts...)...)
}

func runConfig(kind canon.Kind) RunConfig {
	return RunConfig{
		Tenant:      testTenant,
		Kind:        kind,
		PageSize:    2,
		LimitPolicy: limits.SkipAndContinue,
	}
}

// orderRaw builds an order record with one line per line id. The event
// list is shared by every call, so resyncs produce identical events.
func orderRaw(number string, lineIDs ...string) json.RawMessage {
	return packageRaw(number, "pkg-"+number, lineIDs...)
}

// packageRaw builds one shipment-package record of an order.
func packageRaw(number, pkg string, lineIDs ...string) json.RawMessage {
	lines := make([]string, 0, len(lineIDs))
	for _, id := range lineIDs {
		lines = append(lines, fmt.Sprintf(
			`{"id":%q,"productName":"Runner","barcode":"bc-%s","quantity":1,"price":"100.10","orderLineItemStatusName":"Created"}`,
			id, id))
	}
	return json.RawMessage(fmt.Sprintf(`{
		"id": %[3]q,
		"orderNumber": %[1]q,
		"orderDate": 1772355600000,
		"lastModifiedDate": 1772355660000,
		"status": "Created",
		"currencyCode": "TRY",
		"grossAmount": "100.10",
		"totalDiscount": 0,
		"totalPrice": "100.10",
		"customerId": "cust-%[1]s",
		"customerFirstName": "Deniz",
		"customerLastName": "Kaya",
		"shipmentAddress": {"id": "addr-%[1]s", "city": "Izmir", "address1": "Kordon 1"},
		"invoiceAddress": {"id": "addr-%[1]s", "city": "Izmir", "address1": "Kordon 1"},
		"lines": [%[2]s],
		"packageHistories": [
			{"createdDate": 1772355600000, "status": "Created"},
			{"createdDate": 1772355660000, "status": "Picking"}
		]
	}`, number, strings.Join(lines, ","), pkg))
}

func productRaw(id string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"id": %[1]q,
		"barcode": "bc-%[1]s",
		"title": "Product %[1]s",
		"brandId": 10,
		"brand": "Acme",
		"pimCategoryId": 20,
		"categoryName": "Shoes",
		"quantity": 3,
		"listPrice": 99.9,
		"salePrice": "79.90",
		"vatRate": 20,
		"approved": true
	}`, id))
}

func claimRaw(id string, itemIDs ...string) json.RawMessage {
	items := make([]string, 0, len(itemIDs))
	for _, it := range itemIDs {
		items = append(items, fmt.Sprintf(
			`{"id":%q,"customerClaimItemReason":{"name":"Damaged","code":"DMG"},"claimItemStatus":{"name":"Created"}}`, it))
	}
	return json.RawMessage(fmt.Sprintf(`{
		"id": %q,
		"orderNumber": "9001",
		"orderDate": 1772355600000,
		"claimDate": 1772442000000,
		"items": [{"orderLine": {"id": "L1", "productName": "Runner"}, "claimItems": [%s]}]
	}`, id, strings.Join(items, ",")))
}

// pagesOf splits records into pages of size, each reporting the total.
func pagesOf(size int, records ...json.RawMessage) []market.Page {
	total := (len(records) + size - 1) / size
	if total == 0 {
		return []market.Page{page(0, 0, 0)}
	}
	var out []market.Page
	for i := 0; i < total; i++ {
		end := min((i+1)*size, len(records))
		p := page(i, total, len(records), records[i*size:end]...)
		out = append(out, p)
	}
	return out
}

func page(number, totalPages, totalElements int, records ...json.RawMessage) market.Page {
	return market.Page{
		Records:       records,
		Number:        market.IntPtr(number),
		TotalPages:    market.IntPtr(totalPages),
		TotalElements: market.IntPtr(totalElements),
	}
}

// stubFetcher serves pages by index and records every request.
// errs injects a failure for a page index.
type stubFetcher struct {
	mu       sync.Mutex
	pages    []market.Page
	errs     map[int]error
	requests []market.PageRequest
	onFetch  func(page int)
}

func newStubFetcher(pages ...market.Page) *stubFetcher {
	return &stubFetcher{pages: pages, errs: make(map[int]error)}
}

func (f *stubFetcher) FetchPage(ctx context.Context, kind canon.Kind, req market.PageRequest) (market.Page, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	hook := f.onFetch
	f.mu.Unlock()

	if hook != nil {
		hook(req.Page)
	}
	if err := ctx.Err(); err != nil {
		return market.Page{}, err
	}
	if err, ok := f.errs[req.Page]; ok {
		return market.Page{}, err
	}
	if req.Page >= len(f.pages) {
		return page(req.Page, len(f.pages), 0), nil
	}
	return f.pages[req.Page], nil
}

func (f *stubFetcher) fetched() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, 0, len(f.requests))
	for _, r := range f.requests {
		out = append(out, r.Page)
	}
	return out
}
