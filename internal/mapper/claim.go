package mapper

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/marketsync/internal/canon"
)

// claimRecord is one return/claim request. Claim items are grouped under
// the order line they refer to.
type claimRecord struct {
	ID                  wireID     `json:"id"`
	OrderNumber         wireID     `json:"orderNumber"`
	OrderDate           wireMillis `json:"orderDate"`
	ClaimDate           wireMillis `json:"claimDate"`
	LastModifiedDate    wireMillis `json:"lastModifiedDate"`
	CustomerFirstName   wireText   `json:"customerFirstName"`
	CustomerLastName    wireText   `json:"customerLastName"`
	CargoTrackingNumber wireText   `json:"cargoTrackingNumber"`
	CargoProviderName   wireText   `json:"cargoProviderName"`

	Items []claimLineRecord `json:"items"`
}

type claimLineRecord struct {
	OrderLine struct {
		ID          wireID    `json:"id"`
		ProductName wireText  `json:"productName"`
		Barcode     wireText  `json:"barcode"`
		MerchantSKU wireText  `json:"merchantSku"`
		Price       wireMoney `json:"price"`
	} `json:"orderLine"`
	ClaimItems []claimItemRecord `json:"claimItems"`
}

type claimItemRecord struct {
	ID     wireID `json:"id"`
	Reason struct {
		Name wireText `json:"name"`
		Code wireText `json:"code"`
	} `json:"customerClaimItemReason"`
	Status struct {
		Name wireText `json:"name"`
	} `json:"claimItemStatus"`
	Note     wireText `json:"note"`
	Resolved wireBool `json:"resolved"`
}

// MapClaim maps one claim record, flattening claim items out of their
// order-line groups.
func MapClaim(raw json.RawMessage) (*canon.Claim, error) {
	const kind = canon.KindClaim

	var rec claimRecord
	if err := decode(kind, raw, &rec); err != nil {
		return nil, err
	}

	key := rec.ID.ID()
	if key.IsZero() {
		return nil, missing(kind, "", "id")
	}

	c := &canon.Claim{
		ExternalID:          key,
		OrderNumber:         rec.OrderNumber.ID(),
		OrderDate:           rec.OrderDate.Time(),
		ClaimDate:           rec.ClaimDate.Time(),
		LastModified:        rec.LastModifiedDate.Time(),
		CustomerFirstName:   rec.CustomerFirstName.String(),
		CustomerLastName:    rec.CustomerLastName.String(),
		CargoTrackingNumber: rec.CargoTrackingNumber.String(),
		CargoProvider:       rec.CargoProviderName.String(),
	}

	for i, line := range rec.Items {
		for j, item := range line.ClaimItems {
			if item.ID.ID().IsZero() {
				return nil, missing(kind, key, fmt.Sprintf("items[%d].claimItems[%d].id", i, j))
			}
			c.Items = append(c.Items, canon.ClaimItem{
				ExternalID:  item.ID.ID(),
				OrderLineID: line.OrderLine.ID.ID(),
				Barcode:     line.OrderLine.Barcode.String(),
				ProductName: line.OrderLine.ProductName.String(),
				MerchantSKU: line.OrderLine.MerchantSKU.String(),
				Price:       line.OrderLine.Price.Decimal(),
				Reason:      item.Reason.Name.String(),
				ReasonCode:  item.Reason.Code.String(),
				Status:      ClaimItemStatus(item.Status.Name.String()),
				Note:        item.Note.String(),
				Resolved:    bool(item.Resolved),
			})
		}
	}

	return c, nil
}
