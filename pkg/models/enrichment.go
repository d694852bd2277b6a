package models

// IPEnrichment is geo/ASN/risk metadata resolved for an address parsed
// out of an event message. A nil *IPEnrichment means no address could be
// extracted or the lookup failed; enrichment is always best-effort.
type IPEnrichment struct {
	IP              string   `json:"ip"`
	Country         string   `json:"country,omitempty"`
	CountryCode     string   `json:"country_code,omitempty"`
	City            string   `json:"city,omitempty"`
	Latitude        float64  `json:"latitude,omitempty"`
	Longitude       float64  `json:"longitude,omitempty"`
	ASN             int      `json:"asn,omitempty"`
	ASNOrganization string   `json:"asn_organization,omitempty"`
	IsHighRisk      bool     `json:"is_high_risk"`
	RiskFactors     []string `json:"risk_factors,omitempty"`
	IsPrivate       bool     `json:"is_private"`
}
