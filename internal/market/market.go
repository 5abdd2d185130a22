// Package market defines the contract with the external marketplace API:
// page requests, page envelopes and the Fetcher collaborator that walks them.
//
// The authenticated HTTP client lives outside this module. Anything that can
// produce a Page for a PageRequest (a signed HTTP client, a captured fixture
// file, a test stub) satisfies Fetcher.
package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/marketsync/internal/canon"
)

// ClaimOrder selects the claim listing sort field.
type ClaimOrder string

const (
	OrderByLastModified ClaimOrder = "LastModifiedDate"
	OrderByClaimDate    ClaimOrder = "ClaimDate"
)

// Direction is a sort direction.
type Direction string

const (
	Ascending  Direction = "ASC"
	Descending Direction = "DESC"
)

// Filters narrows a listing. Zero fields are not sent.
type Filters struct {
	StartDate time.Time
	EndDate   time.Time
	Status    string

	// Claim listings only.
	OrderBy   ClaimOrder
	Direction Direction

	// Product listings only.
	Approved *bool
	Archived *bool
}

// Validate checks that the filters make sense for kind.
func (f Filters) Validate(kind canon.Kind) error {
	if !f.StartDate.IsZero() && !f.EndDate.IsZero() && f.EndDate.Before(f.StartDate) {
		return fmt.Errorf("filters: end date %s is before start date %s",
			f.EndDate.Format(time.RFC3339), f.StartDate.Format(time.RFC3339))
	}
	if kind != canon.KindClaim && (f.OrderBy != "" || f.Direction != "") {
		return fmt.Errorf("filters: order_by and direction apply to claims only")
	}
	switch f.OrderBy {
	case "", OrderByLastModified, OrderByClaimDate:
	default:
		return fmt.Errorf("filters: unknown claim order %q", f.OrderBy)
	}
	switch f.Direction {
	case "", Ascending, Descending:
	default:
		return fmt.Errorf("filters: unknown direction %q", f.Direction)
	}
	if kind != canon.KindProduct && (f.Approved != nil || f.Archived != nil) {
		return fmt.Errorf("filters: approved and archived apply to products only")
	}
	return nil
}

// PageRequest asks for one zero-indexed page.
type PageRequest struct {
	Page    int
	Size    int
	Filters Filters
}

// Page is one page of external records plus paging metadata.
// Paging fields are pointers so that a response missing them can be told
// apart from a response reporting zero.
type Page struct {
	Records       []json.RawMessage
	Number        *int
	TotalPages    *int
	TotalElements *int
}

// Malformed reports whether any paging field is missing.
func (p Page) Malformed() bool {
	return p.Number == nil || p.TotalPages == nil || p.TotalElements == nil
}

// LastByTotal reports whether the page index reached the reported total.
func (p Page) LastByTotal(page int) bool {
	return p.TotalPages != nil && page+1 >= *p.TotalPages
}

// Fetcher fetches one page of kind.
type Fetcher interface {
	FetchPage(ctx context.Context, kind canon.Kind, req PageRequest) (Page, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, kind canon.Kind, req PageRequest) (Page, error)

// FetchPage calls f.
func (f FetcherFunc) FetchPage(ctx context.Context, kind canon.Kind, req PageRequest) (Page, error) {
	return f(ctx, kind, req)
}

// pageEnvelope is the marketplace's JSON page shape.
type pageEnvelope struct {
	Content       []json.RawMessage `json:"content"`
	Page          *int              `json:"page"`
	TotalPages    *int              `json:"totalPages"`
	TotalElements *int              `json:"totalElements"`
}

// DecodePage parses a marketplace JSON page body. Missing paging fields are
// left nil; callers decide whether that is fatal via Page.Malformed.
func DecodePage(body []byte) (Page, error) {
	var env pageEnvelope
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return Page{}, fmt.Errorf("decode page: %w", err)
	}
	return Page{
		Records:       env.Content,
		Number:        env.Page,
		TotalPages:    env.TotalPages,
		TotalElements: env.TotalElements,
	}, nil
}

// IntPtr returns a pointer to n. Handy for building pages.
func IntPtr(n int) *int {
	return &n
}
