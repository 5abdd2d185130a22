package mapper

import (
	"encoding/json"

	"github.com/roach88/marketsync/internal/canon"
)

// productRecord is one listing of the marketplace product catalog.
type productRecord struct {
	ID            wireID     `json:"id"`
	Barcode       wireText   `json:"barcode"`
	Title         wireText   `json:"title"`
	ProductMainID wireText   `json:"productMainId"`
	StockCode     wireText   `json:"stockCode"`
	BrandID       wireID     `json:"brandId"`
	Brand         wireText   `json:"brand"`
	CategoryID    wireID     `json:"pimCategoryId"`
	CategoryName  wireText   `json:"categoryName"`
	Quantity      wireInt    `json:"quantity"`
	ListPrice     wireMoney  `json:"listPrice"`
	SalePrice     wireMoney  `json:"salePrice"`
	VatRate       wireInt    `json:"vatRate"`
	Approved      wireBool   `json:"approved"`
	Archived      wireBool   `json:"archived"`
	OnSale        wireBool   `json:"onSale"`
	Rejected      wireBool   `json:"rejected"`
	CreateDate    wireMillis `json:"createDateTime"`
	LastUpdate    wireMillis `json:"lastUpdateDate"`

	Images        json.RawMessage `json:"images"`
	Attributes    json.RawMessage `json:"attributes"`
	RejectReasons json.RawMessage `json:"rejectReasonDetails"`
}

// MapProduct maps one catalog listing. Both the listing id (natural key) and
// the barcode are required.
func MapProduct(raw json.RawMessage) (*canon.Product, error) {
	const kind = canon.KindProduct

	var rec productRecord
	if err := decode(kind, raw, &rec); err != nil {
		return nil, err
	}

	key := rec.ID.ID()
	if key.IsZero() {
		return nil, missing(kind, "", "id")
	}
	if rec.Barcode == "" {
		return nil, missing(kind, key, "barcode")
	}

	p := &canon.Product{
		ExternalID:      key,
		Barcode:         rec.Barcode.String(),
		Title:           rec.Title.String(),
		ProductMainID:   rec.ProductMainID.String(),
		StockCode:       rec.StockCode.String(),
		Quantity:        int(rec.Quantity),
		ListPrice:       rec.ListPrice.Decimal(),
		SalePrice:       rec.SalePrice.Decimal(),
		VatRate:         int(rec.VatRate),
		Approved:        bool(rec.Approved),
		Archived:        bool(rec.Archived),
		OnSale:          bool(rec.OnSale),
		Rejected:        bool(rec.Rejected),
		RemoteCreatedAt: rec.CreateDate.Time(),
		RemoteUpdatedAt: rec.LastUpdate.Time(),
	}
	if id := rec.BrandID.ID(); !id.IsZero() {
		p.Brand = canon.Brand{ExternalID: id, Name: rec.Brand.String()}
	}
	if id := rec.CategoryID.ID(); !id.IsZero() {
		p.Category = canon.Category{ExternalID: id, Name: rec.CategoryName.String()}
	}

	var err error
	if p.Images, err = canonicalize(kind, key, "images", rec.Images); err != nil {
		return nil, err
	}
	if p.Attributes, err = canonicalize(kind, key, "attributes", rec.Attributes); err != nil {
		return nil, err
	}
	if p.RejectReasons, err = canonicalize(kind, key, "rejectReasonDetails", rec.RejectReasons); err != nil {
		return nil, err
	}

	return p, nil
}
