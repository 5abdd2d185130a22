package mapper

import (
	"strings"
	"unicode"
)

// StatusUnknown is used when the marketplace sends no status at all.
const StatusUnknown = "unknown"

// orderStatuses maps folded marketplace package/line statuses to canonical names.
var orderStatuses = map[string]string{
	"awaiting":               "awaiting",
	"created":                "created",
	"picking":                "picking",
	"invoiced":               "invoiced",
	"shipped":                "shipped",
	"atcollectionpoint":      "at_collection_point",
	"delivered":              "delivered",
	"undelivered":            "undelivered",
	"undeliveredandreturned": "undelivered_and_returned",
	"cancelled":              "cancelled",
	"canceled":               "cancelled",
	"returned":               "returned",
	"repack":                 "repack",
	"unpacked":               "unpacked",
	"unsupplied":             "unsupplied",
}

// claimItemStatuses maps folded claim item statuses to canonical names.
var claimItemStatuses = map[string]string{
	"created":           "created",
	"waitinginaction":   "waiting_in_action",
	"waitingfraudcheck": "waiting_fraud_check",
	"accepted":          "accepted",
	"rejected":          "rejected",
	"cancelled":         "cancelled",
	"canceled":          "cancelled",
	"unresolved":        "unresolved",
	"inanalysis":        "in_analysis",
}

// OrderStatus canonicalizes an order, package or line status.
func OrderStatus(raw string) string {
	return canonicalStatus(orderStatuses, raw)
}

// ClaimItemStatus canonicalizes a claim item status.
func ClaimItemStatus(raw string) string {
	return canonicalStatus(claimItemStatuses, raw)
}

// canonicalStatus looks the folded value up in table. Values the table does
// not know are converted to snake_case and kept; only an absent status
// becomes StatusUnknown.
func canonicalStatus(table map[string]string, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return StatusUnknown
	}
	if s, ok := table[fold(raw)]; ok {
		return s
	}
	return snake(raw)
}

// fold lowercases and drops separators: "UnDelivered", "un_delivered" and
// "Un Delivered" all fold to "undelivered".
func fold(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func snake(s string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			if prevLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			prevLower = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			prevLower = true
		default:
			if b.Len() > 0 && prevLower {
				b.WriteByte('_')
			}
			prevLower = false
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
