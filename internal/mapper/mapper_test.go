package mapper

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/marketsync/internal/canon"
)

const orderJSON = `{
	"id": 3354212345,
	"orderNumber": "10234567",
	"orderDate": 1700000000000,
	"status": "Picking",
	"shipmentPackageStatus": "Picking",
	"lastModifiedDate": 1700000360000,
	"currencyCode": "TRY",
	"grossAmount": 240.50,
	"totalDiscount": "10.50",
	"totalPrice": "230.00",
	"customerId": 98765,
	"customerFirstName": "Ayşe ",
	"customerLastName": "Yılmaz",
	"customerEmail": "",
	"shipmentAddress": {"id": 11, "firstName": "Ayşe", "lastName": "Yılmaz", "address1": "Bağdat Cd. 1", "city": "İstanbul", "district": "Kadıköy", "postalCode": "34710", "countryCode": "TR"},
	"invoiceAddress": {"id": 12, "company": "ACME Ltd", "city": "İstanbul"},
	"cargoTrackingNumber": 7280027504111,
	"cargoProviderName": "Yurtiçi Kargo",
	"lines": [
		{"id": 501, "productName": "Runner", "barcode": "869000000001", "merchantSku": "RUN-1", "quantity": 2, "price": "120.25", "discount": null, "orderLineItemStatusName": "Picking"}
	],
	"packageHistories": [
		{"createdDate": 1700000000000, "status": "Created"},
		{"createdDate": 1700000360000, "status": "Picking"}
	]
}`

func TestMapOrder(t *testing.T) {
	o, err := MapOrder(json.RawMessage(orderJSON))
	require.NoError(t, err)

	assert.Equal(t, canon.ID("10234567"), o.OrderNumber)
	assert.Equal(t, "picking", o.Status)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), o.OrderDate)
	assert.Equal(t, "TRY", o.Currency)
	assert.True(t, decimal.RequireFromString("240.5").Equal(o.GrossAmount))
	assert.True(t, decimal.RequireFromString("10.5").Equal(o.TotalDiscount))

	assert.Equal(t, canon.ID("98765"), o.Customer.ExternalID)
	assert.Equal(t, "Ayşe", o.Customer.FirstName, "text is trimmed")
	assert.Equal(t, "", o.Customer.Email, "empty string is absent")

	assert.Equal(t, canon.ID("11"), o.ShippingAddress.ExternalID)
	assert.Equal(t, "Kadıköy", o.ShippingAddress.District)
	assert.Equal(t, canon.ID("12"), o.BillingAddress.ExternalID)
	assert.Equal(t, "ACME Ltd", o.BillingAddress.Company)

	require.Len(t, o.Items, 1)
	item := o.Items[0]
	assert.Equal(t, canon.ID("501"), item.ExternalID)
	assert.Equal(t, 2, item.Quantity)
	assert.True(t, decimal.RequireFromString("120.25").Equal(item.Price))
	assert.True(t, item.Discount.IsZero(), "null discount is absent")
	assert.Equal(t, "TRY", item.Currency, "line currency falls back to order currency")
	assert.Equal(t, canon.ID("3354212345"), item.PackageID, "line tagged with its package")

	require.Len(t, o.StatusEvents, 2)
	assert.Equal(t, "created", o.StatusEvents[0].Status)
	assert.Equal(t, time.UnixMilli(1700000360000).UTC(), o.StatusEvents[1].OccurredAt)

	require.Len(t, o.Packages, 1)
	assert.Equal(t, canon.ID("3354212345"), o.Packages[0].ExternalID)
	assert.Equal(t, "7280027504111", o.Packages[0].CargoTrackingNumber, "numeric tracking number kept verbatim")
	assert.True(t, decimal.RequireFromString("240.5").Equal(o.Packages[0].GrossAmount), "amounts belong to the package")
	assert.True(t, decimal.RequireFromString("230").Equal(o.Packages[0].TotalPrice))
}

func TestMapOrder_LargeIdentifiers(t *testing.T) {
	// 2^63+1 cannot survive a float64 round trip.
	raw := `{"orderNumber": 9223372036854775809, "orderDate": 1700000000000, "id": 18446744073709551617}`
	o, err := MapOrder(json.RawMessage(raw))
	require.NoError(t, err)
	assert.Equal(t, canon.ID("9223372036854775809"), o.OrderNumber)
	assert.Equal(t, canon.ID("18446744073709551617"), o.Packages[0].ExternalID)
}

func TestMapOrder_MissingNaturalKey(t *testing.T) {
	for _, raw := range []string{
		`{"orderDate": 1700000000000}`,
		`{"orderNumber": null, "orderDate": 1700000000000}`,
		`{"orderNumber": "", "orderDate": 1700000000000}`,
		`{"orderNumber": "   ", "orderDate": 1700000000000}`,
	} {
		_, err := MapOrder(json.RawMessage(raw))
		require.Error(t, err, raw)

		var me *MappingError
		require.ErrorAs(t, err, &me)
		assert.Equal(t, canon.KindOrder, me.Kind)
		assert.Equal(t, "orderNumber", me.Field)
		assert.True(t, me.NaturalKey.IsZero())
	}
}

func TestMapOrder_MissingLineID(t *testing.T) {
	raw := `{"orderNumber": "1", "orderDate": 1700000000000, "lines": [{"productName": "x"}]}`
	_, err := MapOrder(json.RawMessage(raw))

	var me *MappingError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, canon.ID("1"), me.NaturalKey)
	assert.Equal(t, "lines[0].id", me.Field)
}

func TestMapOrder_DecodeFailureKeepsKey(t *testing.T) {
	raw := `{"orderNumber": "77", "orderDate": "yesterday"}`
	_, err := MapOrder(json.RawMessage(raw))

	var me *MappingError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, canon.ID("77"), me.NaturalKey)
	assert.Contains(t, me.Error(), "epoch milliseconds")
}

func TestMapOrder_UnknownStatusKept(t *testing.T) {
	raw := `{"orderNumber": "1", "orderDate": 1700000000000, "status": "AwaitingCourierPickup",
		"packageHistories": [
			{"createdDate": 1700000000000, "status": "AwaitingCourierPickup"},
			{"createdDate": 1700000000000, "status": "HandedToCourier"}
		]}`
	o, err := MapOrder(json.RawMessage(raw))
	require.NoError(t, err)
	assert.Equal(t, "awaiting_courier_pickup", o.Status)
	assert.NotEqual(t, StatusUnknown, o.Status)

	// Two unrecognized statuses at one instant stay two distinct events.
	require.Len(t, o.StatusEvents, 2)
	assert.Equal(t, "awaiting_courier_pickup", o.StatusEvents[0].Status)
	assert.Equal(t, "handed_to_courier", o.StatusEvents[1].Status)
}

const productJSON = `{
	"id": "8f1c2a",
	"barcode": "869000000001",
	"title": "Runner",
	"productMainId": "RUN",
	"stockCode": "RUN-1",
	"brandId": 1791,
	"brand": "Acme",
	"pimCategoryId": 411,
	"categoryName": "Shoes",
	"quantity": "15",
	"listPrice": 199.90,
	"salePrice": 149.9,
	"vatRate": 20,
	"approved": true,
	"archived": "false",
	"onSale": true,
	"rejected": false,
	"createDateTime": 1690000000000,
	"lastUpdateDate": null,
	"images": [{"url": "https://cdn.example/1.jpg"}],
	"attributes": [{"attributeName": "Color", "attributeValue": "Red", "attributeId": 47}],
	"rejectReasonDetails": []
}`

func TestMapProduct(t *testing.T) {
	p, err := MapProduct(json.RawMessage(productJSON))
	require.NoError(t, err)

	assert.Equal(t, canon.ID("8f1c2a"), p.ExternalID)
	assert.Equal(t, "869000000001", p.Barcode)
	assert.Equal(t, canon.Brand{ExternalID: "1791", Name: "Acme"}, p.Brand)
	assert.Equal(t, canon.Category{ExternalID: "411", Name: "Shoes"}, p.Category)
	assert.Equal(t, 15, p.Quantity)
	assert.Equal(t, "199.9", p.ListPrice.String())
	assert.Equal(t, 20, p.VatRate)
	assert.True(t, p.Approved)
	assert.False(t, p.Archived)
	assert.True(t, p.RemoteUpdatedAt.IsZero())

	assert.Equal(t, `[{"url":"https://cdn.example/1.jpg"}]`, p.Images.String())
	assert.Equal(t, `[{"attributeId":47,"attributeName":"Color","attributeValue":"Red"}]`, p.Attributes.String())
	assert.Nil(t, p.RejectReasons)
}

func TestMapProduct_MissingBarcode(t *testing.T) {
	_, err := MapProduct(json.RawMessage(`{"id": "p-9", "title": "No barcode"}`))

	var me *MappingError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "barcode", me.Field)
	assert.Equal(t, canon.ID("p-9"), me.NaturalKey, "listing id is still reported")
}

func TestMapProduct_NoBrand(t *testing.T) {
	p, err := MapProduct(json.RawMessage(`{"id": "p-1", "barcode": "b"}`))
	require.NoError(t, err)
	assert.True(t, p.Brand.ExternalID.IsZero())
	assert.True(t, p.Category.ExternalID.IsZero())
}

const claimJSON = `{
	"id": "f9da2317-876b-4b86-b8f7-0535c3b65731",
	"orderNumber": "10234567",
	"orderDate": 1700000000000,
	"claimDate": 1700500000000,
	"lastModifiedDate": 1700600000000,
	"customerFirstName": "Ayşe",
	"customerLastName": "Yılmaz",
	"cargoTrackingNumber": 7330000000001,
	"cargoProviderName": "Aras",
	"items": [
		{
			"orderLine": {"id": 501, "productName": "Runner", "barcode": "869000000001", "price": 120.25},
			"claimItems": [
				{"id": "ci-1", "customerClaimItemReason": {"name": "Size too small", "code": "SIZE"}, "claimItemStatus": {"name": "WaitingInAction"}, "note": "", "resolved": false},
				{"id": "ci-2", "customerClaimItemReason": {"name": "Defective", "code": "DEFECT"}, "claimItemStatus": {"name": "Accepted"}, "resolved": true}
			]
		}
	]
}`

func TestMapClaim(t *testing.T) {
	c, err := MapClaim(json.RawMessage(claimJSON))
	require.NoError(t, err)

	assert.Equal(t, canon.ID("f9da2317-876b-4b86-b8f7-0535c3b65731"), c.ExternalID)
	assert.Equal(t, canon.ID("10234567"), c.OrderNumber)
	assert.Equal(t, time.UnixMilli(1700500000000).UTC(), c.ClaimDate)
	assert.Equal(t, "7330000000001", c.CargoTrackingNumber)

	require.Len(t, c.Items, 2)
	assert.Equal(t, canon.ID("ci-1"), c.Items[0].ExternalID)
	assert.Equal(t, canon.ID("501"), c.Items[0].OrderLineID)
	assert.Equal(t, "waiting_in_action", c.Items[0].Status)
	assert.Equal(t, "SIZE", c.Items[0].ReasonCode)
	assert.Equal(t, "accepted", c.Items[1].Status)
	assert.True(t, c.Items[1].Resolved)
}

func TestMapClaim_MissingItemID(t *testing.T) {
	raw := `{"id": "c-1", "items": [{"orderLine": {"id": 1}, "claimItems": [{"note": "x"}]}]}`
	_, err := MapClaim(json.RawMessage(raw))

	var me *MappingError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "items[0].claimItems[0].id", me.Field)
}

func TestMap_Dispatch(t *testing.T) {
	rec, err := Map(canon.KindProduct, json.RawMessage(productJSON))
	require.NoError(t, err)
	assert.Equal(t, canon.KindProduct, rec.Kind())
	assert.Equal(t, canon.ID("8f1c2a"), rec.NaturalKey())

	_, err = Map(canon.Kind("invoice"), json.RawMessage(`{}`))
	assert.True(t, IsMappingError(err))
}

func TestMap_EmptyAndInvalid(t *testing.T) {
	_, err := Map(canon.KindOrder, nil)
	assert.True(t, IsMappingError(err))

	_, err = Map(canon.KindOrder, json.RawMessage(`[1,2]`))
	assert.True(t, IsMappingError(err))
}

func TestProbeKey(t *testing.T) {
	assert.Equal(t, canon.ID("42"), ProbeKey(canon.KindOrder, json.RawMessage(`{"orderNumber": 42}`)))
	assert.Equal(t, canon.ID("p-1"), ProbeKey(canon.KindProduct, json.RawMessage(`{"id": "p-1"}`)))
	assert.Equal(t, canon.ID(""), ProbeKey(canon.KindClaim, json.RawMessage(`{"orderNumber": "1"}`)))
	assert.Equal(t, canon.ID(""), ProbeKey(canon.KindClaim, json.RawMessage(`garbage`)))
}

func TestStatusCanonicalization(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Created", "created"},
		{"UnDelivered", "undelivered"},
		{"un_delivered", "undelivered"},
		{"Canceled", "cancelled"},
		{"AtCollectionPoint", "at_collection_point"},
		{"", StatusUnknown},
		{"  ", StatusUnknown},
		{"ReadyToShip", "ready_to_ship"},
		{"Ready To Ship", "ready_to_ship"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, OrderStatus(tt.in))
		})
	}
	assert.Equal(t, "in_analysis", ClaimItemStatus("InAnalysis"))
}
