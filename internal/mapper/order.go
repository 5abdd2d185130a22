package mapper

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/marketsync/internal/canon"
)

// orderRecord is one shipment-package row of the marketplace order listing.
// The marketplace lists orders per package, so one order number can arrive
// in several records, each carrying only its own package's lines and
// amounts.
type orderRecord struct {
	PackageID        wireID     `json:"id"`
	OrderNumber      wireID     `json:"orderNumber"`
	OrderDate        wireMillis `json:"orderDate"`
	Status           wireText   `json:"status"`
	PackageStatus    wireText   `json:"shipmentPackageStatus"`
	LastModifiedDate wireMillis `json:"lastModifiedDate"`
	CurrencyCode     wireText   `json:"currencyCode"`
	GrossAmount      wireMoney  `json:"grossAmount"`
	TotalDiscount    wireMoney  `json:"totalDiscount"`
	TotalPrice       wireMoney  `json:"totalPrice"`

	CustomerID        wireID   `json:"customerId"`
	CustomerFirstName wireText `json:"customerFirstName"`
	CustomerLastName  wireText `json:"customerLastName"`
	CustomerEmail     wireText `json:"customerEmail"`

	ShipmentAddress *addressRecord `json:"shipmentAddress"`
	InvoiceAddress  *addressRecord `json:"invoiceAddress"`

	CargoTrackingNumber wireText `json:"cargoTrackingNumber"`
	CargoProviderName   wireText `json:"cargoProviderName"`

	Lines            []orderLineRecord `json:"lines"`
	PackageHistories []historyRecord   `json:"packageHistories"`
}

type addressRecord struct {
	ID          wireID   `json:"id"`
	FirstName   wireText `json:"firstName"`
	LastName    wireText `json:"lastName"`
	Company     wireText `json:"company"`
	Address1    wireText `json:"address1"`
	Address2    wireText `json:"address2"`
	City        wireText `json:"city"`
	District    wireText `json:"district"`
	PostalCode  wireText `json:"postalCode"`
	CountryCode wireText `json:"countryCode"`
	Phone       wireText `json:"phone"`
}

type orderLineRecord struct {
	ID           wireID    `json:"id"`
	ProductName  wireText  `json:"productName"`
	Barcode      wireText  `json:"barcode"`
	MerchantSKU  wireText  `json:"merchantSku"`
	Quantity     wireInt   `json:"quantity"`
	Price        wireMoney `json:"price"`
	Discount     wireMoney `json:"discount"`
	CurrencyCode wireText  `json:"currencyCode"`
	StatusName   wireText  `json:"orderLineItemStatusName"`
}

type historyRecord struct {
	CreatedDate wireMillis `json:"createdDate"`
	Status      wireText   `json:"status"`
}

// MapOrder maps one order listing record.
func MapOrder(raw json.RawMessage) (*canon.Order, error) {
	const kind = canon.KindOrder

	var rec orderRecord
	if err := decode(kind, raw, &rec); err != nil {
		return nil, err
	}

	key := rec.OrderNumber.ID()
	if key.IsZero() {
		return nil, missing(kind, "", "orderNumber")
	}
	if rec.OrderDate.Time().IsZero() {
		return nil, missing(kind, key, "orderDate")
	}

	status := rec.Status.String()
	if status == "" {
		status = rec.PackageStatus.String()
	}

	o := &canon.Order{
		OrderNumber:   key,
		Status:        OrderStatus(status),
		OrderDate:     rec.OrderDate.Time(),
		LastModified:  rec.LastModifiedDate.Time(),
		Currency:      rec.CurrencyCode.String(),
		GrossAmount:   rec.GrossAmount.Decimal(),
		TotalDiscount: rec.TotalDiscount.Decimal(),
		TotalPrice:    rec.TotalPrice.Decimal(),
		Customer: canon.Customer{
			ExternalID: rec.CustomerID.ID(),
			FirstName:  rec.CustomerFirstName.String(),
			LastName:   rec.CustomerLastName.String(),
			Email:      rec.CustomerEmail.String(),
		},
		ShippingAddress: mapAddress(rec.ShipmentAddress),
		BillingAddress:  mapAddress(rec.InvoiceAddress),
	}

	pkg := rec.PackageID.ID()
	for i, line := range rec.Lines {
		if line.ID.ID().IsZero() {
			return nil, missing(kind, key, fmt.Sprintf("lines[%d].id", i))
		}
		currency := line.CurrencyCode.String()
		if currency == "" {
			currency = o.Currency
		}
		o.Items = append(o.Items, canon.OrderItem{
			ExternalID:  line.ID.ID(),
			ProductName: line.ProductName.String(),
			Barcode:     line.Barcode.String(),
			MerchantSKU: line.MerchantSKU.String(),
			Quantity:    int(line.Quantity),
			Price:       line.Price.Decimal(),
			Discount:    line.Discount.Decimal(),
			Currency:    currency,
			Status:      OrderStatus(line.StatusName.String()),
			PackageID:   pkg,
		})
	}

	for i, h := range rec.PackageHistories {
		if h.CreatedDate.Time().IsZero() {
			return nil, missing(kind, key, fmt.Sprintf("packageHistories[%d].createdDate", i))
		}
		o.StatusEvents = append(o.StatusEvents, canon.StatusEvent{
			Status:     OrderStatus(h.Status.String()),
			OccurredAt: h.CreatedDate.Time(),
		})
	}

	if !pkg.IsZero() {
		pkgStatus := rec.PackageStatus.String()
		if pkgStatus == "" {
			pkgStatus = status
		}
		o.Packages = append(o.Packages, canon.ShipmentPackage{
			ExternalID:          pkg,
			Status:              OrderStatus(pkgStatus),
			CargoTrackingNumber: rec.CargoTrackingNumber.String(),
			CargoProvider:       rec.CargoProviderName.String(),
			LastModified:        rec.LastModifiedDate.Time(),
			GrossAmount:         o.GrossAmount,
			TotalDiscount:       o.TotalDiscount,
			TotalPrice:          o.TotalPrice,
		})
	}

	return o, nil
}

func mapAddress(a *addressRecord) canon.Address {
	if a == nil {
		return canon.Address{}
	}
	return canon.Address{
		ExternalID:  a.ID.ID(),
		FirstName:   a.FirstName.String(),
		LastName:    a.LastName.String(),
		Company:     a.Company.String(),
		Line1:       a.Address1.String(),
		Line2:       a.Address2.String(),
		City:        a.City.String(),
		District:    a.District.String(),
		PostalCode:  a.PostalCode.String(),
		CountryCode: a.CountryCode.String(),
		Phone:       a.Phone.String(),
	}
}
