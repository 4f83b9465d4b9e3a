package types

import "strings"

// DeliveryAddress captures where a shipped sub-order should be sent.
type DeliveryAddress struct {
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	Country string `json:"country"`
	Phone   string `json:"phone,omitempty"`
}

// IsEmpty reports whether no meaningful address field is populated.
func (a DeliveryAddress) IsEmpty() bool {
	return strings.TrimSpace(a.Line1) == "" &&
		strings.TrimSpace(a.City) == "" &&
		strings.TrimSpace(a.Country) == ""
}
