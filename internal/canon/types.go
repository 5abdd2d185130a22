package canon

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is a mapped root entity ready for the transactional upsert.
// Implemented by *Order, *Product and *Claim.
type Record interface {
	Kind() Kind
	NaturalKey() ID
}

// Order is the root of an order object graph. Natural key: OrderNumber.
type Order struct {
	OrderNumber   ID
	Status        string
	OrderDate     time.Time
	LastModified  time.Time
	Currency      string
	GrossAmount   decimal.Decimal
	TotalDiscount decimal.Decimal
	TotalPrice    decimal.Decimal

	Customer        Customer
	ShippingAddress Address
	BillingAddress  Address

	// Items are replaced wholesale within their package on every upsert.
	Items []OrderItem
	// StatusEvents are appended; identical (status, occurred_at) pairs are dropped.
	StatusEvents []StatusEvent
	// Packages are upserted by their own natural key.
	Packages []ShipmentPackage
}

func (o *Order) Kind() Kind     { return KindOrder }
func (o *Order) NaturalKey() ID { return o.OrderNumber }

// Customer is a shared sub-entity. A zero ExternalID means the order carries
// no customer reference.
type Customer struct {
	ExternalID ID
	FirstName  string
	LastName   string
	Email      string
}

// Address is a shared sub-entity referenced as shipping or billing address.
type Address struct {
	ExternalID  ID
	FirstName   string
	LastName    string
	Company     string
	Line1       string
	Line2       string
	City        string
	District    string
	PostalCode  string
	CountryCode string
	Phone       string
}

// OrderItem is one purchased line. Natural key scoped to its order.
type OrderItem struct {
	ExternalID  ID
	ProductName string
	Barcode     string
	MerchantSKU string
	Quantity    int
	Price       decimal.Decimal
	Discount    decimal.Decimal
	Currency    string
	Status      string

	// PackageID is the shipment package the line was listed under; zero
	// for records that carry no package.
	PackageID ID
}

// StatusEvent is an append-only status transition.
type StatusEvent struct {
	Status     string
	OccurredAt time.Time
}

// ShipmentPackage is one shippable unit of an order.
type ShipmentPackage struct {
	ExternalID          ID
	Status              string
	CargoTrackingNumber string
	CargoProvider       string
	LastModified        time.Time

	// Package-level amounts; an order with packages totals their sum.
	GrossAmount   decimal.Decimal
	TotalDiscount decimal.Decimal
	TotalPrice    decimal.Decimal
}

// Product is a catalog listing. Natural key: ExternalID (listing id).
type Product struct {
	ExternalID    ID
	Barcode       string
	Title         string
	ProductMainID string
	StockCode     string

	Brand    Brand
	Category Category

	Quantity  int
	ListPrice decimal.Decimal
	SalePrice decimal.Decimal
	VatRate   int

	Approved bool
	Archived bool
	OnSale   bool
	Rejected bool

	Images        Opaque
	Attributes    Opaque
	RejectReasons Opaque

	RemoteCreatedAt time.Time
	RemoteUpdatedAt time.Time
}

func (p *Product) Kind() Kind     { return KindProduct }
func (p *Product) NaturalKey() ID { return p.ExternalID }

// Brand is shared across products; only its name is ever updated.
type Brand struct {
	ExternalID ID
	Name       string
}

// Category is shared across products; only its name is ever updated.
type Category struct {
	ExternalID ID
	Name       string
}

// Claim is a return/claim request. Natural key: ExternalID.
type Claim struct {
	ExternalID          ID
	OrderNumber         ID
	OrderDate           time.Time
	ClaimDate           time.Time
	LastModified        time.Time
	CustomerFirstName   string
	CustomerLastName    string
	CargoTrackingNumber string
	CargoProvider       string

	Items []ClaimItem
}

func (c *Claim) Kind() Kind     { return KindClaim }
func (c *Claim) NaturalKey() ID { return c.ExternalID }

// ClaimItem is one claimed unit. Natural key scoped to its claim.
type ClaimItem struct {
	ExternalID  ID
	OrderLineID ID
	Barcode     string
	ProductName string
	MerchantSKU string
	Price       decimal.Decimal
	Reason      string
	ReasonCode  string
	Status      string
	Note        string
	Resolved    bool
}
