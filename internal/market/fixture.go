package market

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/roach88/marketsync/internal/canon"
)

// Fixture is a captured sequence of marketplace pages per entity kind,
// stored as YAML. Each list entry is one page, in page-index order.
//
// Example:
//
//	products:
//	  - page: 0
//	    total_pages: 1
//	    total_elements: 1
//	    content:
//	      - id: "8f1c"
//	        barcode: "869000000001"
//	        title: "Runner"
//
// Identifiers wider than 63 bits must be quoted; YAML integers that overflow
// int64 are decoded as floats.
type Fixture struct {
	Orders   []FixturePage `yaml:"orders"`
	Products []FixturePage `yaml:"products"`
	Claims   []FixturePage `yaml:"claims"`
}

// FixturePage is one captured page. Omitting a paging field reproduces a
// malformed response; Error reproduces a failed request.
type FixturePage struct {
	Page          *int   `yaml:"page"`
	TotalPages    *int   `yaml:"total_pages"`
	TotalElements *int   `yaml:"total_elements"`
	Error         string `yaml:"error,omitempty"`
	Content       []any  `yaml:"content"`
}

// FixtureFetcher serves pages from a Fixture. Safe for concurrent use.
type FixtureFetcher struct {
	mu       sync.Mutex
	pages    map[canon.Kind][]fixtureEntry
	requests map[canon.Kind][]PageRequest
}

type fixtureEntry struct {
	page Page
	err  string
}

// LoadFixture reads a YAML fixture file.
func LoadFixture(path string) (*FixtureFetcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	f, err := ParseFixture(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// ParseFixture parses YAML fixture content.
func ParseFixture(data []byte) (*FixtureFetcher, error) {
	var fx Fixture
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return NewFixtureFetcher(fx)
}

// NewFixtureFetcher converts fixture pages into JSON records.
func NewFixtureFetcher(fx Fixture) (*FixtureFetcher, error) {
	f := &FixtureFetcher{
		pages:    make(map[canon.Kind][]fixtureEntry),
		requests: make(map[canon.Kind][]PageRequest),
	}
	for kind, pages := range map[canon.Kind][]FixturePage{
		canon.KindOrder:   fx.Orders,
		canon.KindProduct: fx.Products,
		canon.KindClaim:   fx.Claims,
	} {
		for i, p := range pages {
			entry, err := toEntry(p)
			if err != nil {
				return nil, fmt.Errorf("%s page %d: %w", kind, i, err)
			}
			f.pages[kind] = append(f.pages[kind], entry)
		}
	}
	return f, nil
}

func toEntry(p FixturePage) (fixtureEntry, error) {
	records := make([]json.RawMessage, 0, len(p.Content))
	for i, item := range p.Content {
		raw, err := json.Marshal(item)
		if err != nil {
			return fixtureEntry{}, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, raw)
	}
	return fixtureEntry{
		page: Page{
			Records:       records,
			Number:        p.Page,
			TotalPages:    p.TotalPages,
			TotalElements: p.TotalElements,
		},
		err: p.Error,
	}, nil
}

// FetchPage returns the captured page. Requests past the last captured page
// get an empty, well-formed page.
func (f *FixtureFetcher) FetchPage(ctx context.Context, kind canon.Kind, req PageRequest) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[kind] = append(f.requests[kind], req)

	pages := f.pages[kind]
	if req.Page < 0 || req.Page >= len(pages) {
		total := len(pages)
		return Page{Number: IntPtr(req.Page), TotalPages: &total, TotalElements: IntPtr(0)}, nil
	}
	entry := pages[req.Page]
	if entry.err != "" {
		return Page{}, errors.New(entry.err)
	}
	return entry.page, nil
}

// Requests returns the page requests served for kind, in order.
func (f *FixtureFetcher) Requests(kind canon.Kind) []PageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]PageRequest, len(f.requests[kind]))
	copy(out, f.requests[kind])
	return out
}
