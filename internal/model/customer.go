// Package model defines the customer engagement records tracked by the EMLA pipeline.
package model

import (
	"strings"
	"time"
)

// Engagement types. Together with the customer number they form the reconciliation key.
const (
	EMLATypeIntegrationSuite = "Integration Suite"
	EMLATypePublicCloudERP   = "Public Cloud ERP"
	EMLATypePrivateCloudERP  = "Private Cloud ERP"
)

// Record statuses.
const (
	StatusOpen       = "Open"        // created by CSV upload
	StatusNotStarted = "Not Started" // created by master-data sync
	StatusCompleted  = "Completed"
)

// Customer is one customer engagement entry (the canonical record).
// StartDate and CompletedOn hold ISO dates (YYYY-MM-DD) or "" when unknown.
type Customer struct {
	ID              string    `json:"id"`
	CustomerName    string    `json:"customerName"`
	CustomerNumber  string    `json:"customerNumber"`
	EMLAType        string    `json:"emlaType"`
	Region          string    `json:"region,omitempty"`
	Country         string    `json:"country,omitempty"`
	StartDate       string    `json:"startDate,omitempty"`
	ERPAdvisorName  string    `json:"erpOnbAdvNome,omitempty"`
	BTPAdvisorName  string    `json:"btpOnbAdvNome,omitempty"`
	BTPAdvisorEmail string    `json:"btpOnbAdvEmail,omitempty"`
	ExternalID      string    `json:"externalID,omitempty"`
	Status          string    `json:"status,omitempty"`
	CompletedOn     string    `json:"completedOn,omitempty"`
	CreatedAt       time.Time `json:"createdAt,omitzero"`
	UpdatedAt       time.Time `json:"updatedAt,omitzero"`
}

// CompositeKey builds the natural key used to match uploads against stored records.
func CompositeKey(customerNumber, emlaType string) string {
	return strings.TrimSpace(customerNumber) + "||" + strings.TrimSpace(emlaType)
}

// Key returns the record's composite key.
func (c *Customer) Key() string {
	return CompositeKey(c.CustomerNumber, c.EMLAType)
}

// Get returns the value of a canonical field.
func (c *Customer) Get(f Field) string {
	switch f {
	case FieldCustomerName:
		return c.CustomerName
	case FieldCustomerNumber:
		return c.CustomerNumber
	case FieldEMLAType:
		return c.EMLAType
	case FieldRegion:
		return c.Region
	case FieldCountry:
		return c.Country
	case FieldStartDate:
		return c.StartDate
	case FieldERPAdvisorName:
		return c.ERPAdvisorName
	case FieldBTPAdvisorName:
		return c.BTPAdvisorName
	case FieldBTPAdvisorEmail:
		return c.BTPAdvisorEmail
	case FieldExternalID:
		return c.ExternalID
	case FieldStatus:
		return c.Status
	}
	return ""
}

// Set assigns a canonical field. Unknown fields are ignored.
func (c *Customer) Set(f Field, v string) {
	switch f {
	case FieldCustomerName:
		c.CustomerName = v
	case FieldCustomerNumber:
		c.CustomerNumber = v
	case FieldEMLAType:
		c.EMLAType = v
	case FieldRegion:
		c.Region = v
	case FieldCountry:
		c.Country = v
	case FieldStartDate:
		c.StartDate = v
	case FieldERPAdvisorName:
		c.ERPAdvisorName = v
	case FieldBTPAdvisorName:
		c.BTPAdvisorName = v
	case FieldBTPAdvisorEmail:
		c.BTPAdvisorEmail = v
	case FieldExternalID:
		c.ExternalID = v
	case FieldStatus:
		c.Status = v
	}
}

// Patch is a partial update keyed by canonical field.
type Patch map[Field]string

// Fields returns the patched fields in canonical order.
func (p Patch) Fields() []Field {
	out := make([]Field, 0, len(p))
	for _, f := range Fields {
		if _, ok := p[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Apply copies the patch onto c.
func (p Patch) Apply(c *Customer) {
	for f, v := range p {
		c.Set(f, v)
	}
}

// Advisor is an onboarding advisor directory entry.
type Advisor struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Key   string `json:"advisorKey,omitempty"`
}
