package mastersync

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/sells-group/emla-tracker/internal/model"
	"github.com/sells-group/emla-tracker/internal/sanitize"
)

// Text decodes an OData value that may arrive as a string, a number, null,
// or an expanded navigation object carrying a "name".
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		*t = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	case data[0] == '{':
		var nav struct {
			Name *Text `json:"name"`
		}
		if err := json.Unmarshal(data, &nav); err != nil {
			return err
		}
		if nav.Name != nil {
			*t = *nav.Name
		}
	default:
		*t = Text(data)
	}
	return nil
}

func (t Text) String() string {
	return strings.TrimSpace(string(t))
}

// Record is one CustomerMaster entity as returned by the feed.
type Record struct {
	ID              Text `json:"ID"`
	CustomerNumber  Text `json:"customerNumber"`
	CustomerID      Text `json:"customerId"`
	CustomerName    Text `json:"customerName"`
	EMLATypeNav     Text `json:"emLAType"`
	EMLAType        Text `json:"emlaType"`
	Region          Text `json:"region"`
	Country         Text `json:"country"`
	StartDate       Text `json:"startDate"`
	ERPUserID       Text `json:"onboardingAdvisor_userId"`
	BTPUserID       Text `json:"btpOnboardingAdvisor_userId"`
	ERPAdvisorName  Text `json:"erpOnbAdvNome"`
	BTPAdvisorName  Text `json:"btpOnbAdvNome"`
	BTPAdvisorEmail Text `json:"btpOnbAdvEmail"`
}

// normalized is a feed record mapped onto canonical fields.
type normalized struct {
	rec       model.Customer
	erpUserID string
	btpUserID string
	raw       Record
}

func firstText(vals ...Text) string {
	for _, v := range vals {
		if s := v.String(); s != "" {
			return s
		}
	}
	return ""
}

// normalize maps a feed record and sanitizes every text value against its
// column budget.
func normalize(r Record) normalized {
	c := model.Customer{
		CustomerName:   r.CustomerName.String(),
		CustomerNumber: firstText(r.CustomerNumber, r.CustomerID, r.ID),
		EMLAType:       firstText(r.EMLATypeNav, r.EMLAType),
		Region:         r.Region.String(),
		Country:        r.Country.String(),
		StartDate:      r.StartDate.String(),
		ExternalID:     r.ID.String(),
	}
	for _, f := range model.Fields {
		if f != model.FieldStartDate {
			c.Set(f, sanitize.Field(f, c.Get(f)))
		}
	}
	c.StartDate = sanitize.Date(c.StartDate)

	return normalized{
		rec:       c,
		erpUserID: sanitize.Field(model.FieldERPAdvisorName, r.ERPUserID.String()),
		btpUserID: sanitize.Field(model.FieldBTPAdvisorName, r.BTPUserID.String()),
		raw:       r,
	}
}

func (n normalized) valid() bool {
	return n.rec.CustomerNumber != "" && n.rec.CustomerName != "" && n.rec.EMLAType != ""
}
