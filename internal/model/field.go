package model

// Field names a canonical customer field. The string value is the
// wire name used in results and failed-row exports.
type Field string

const (
	FieldCustomerName    Field = "customerName"
	FieldCustomerNumber  Field = "customerNumber"
	FieldEMLAType        Field = "emlaType"
	FieldRegion          Field = "region"
	FieldCountry         Field = "country"
	FieldStartDate       Field = "startDate"
	FieldERPAdvisorName  Field = "erpOnbAdvNome"
	FieldBTPAdvisorName  Field = "btpOnbAdvNome"
	FieldBTPAdvisorEmail Field = "btpOnbAdvEmail"
	FieldExternalID      Field = "externalID"
	FieldStatus          Field = "status"
)

// Fields lists every canonical field in schema order.
var Fields = []Field{
	FieldCustomerName,
	FieldCustomerNumber,
	FieldEMLAType,
	FieldRegion,
	FieldCountry,
	FieldStartDate,
	FieldERPAdvisorName,
	FieldBTPAdvisorName,
	FieldBTPAdvisorEmail,
	FieldExternalID,
	FieldStatus,
}

// DefaultMaxLen applies to text without a schema budget.
const DefaultMaxLen = 5000

var fieldMaxLen = map[Field]int{
	FieldCustomerName:    250,
	FieldCustomerNumber:  20,
	FieldEMLAType:        50,
	FieldRegion:          25,
	FieldCountry:         25,
	FieldERPAdvisorName:  100,
	FieldBTPAdvisorName:  100,
	FieldBTPAdvisorEmail: 100,
	FieldExternalID:      40,
	FieldStatus:          100,
}

var fieldColumns = map[Field]string{
	FieldCustomerName:    "customer_name",
	FieldCustomerNumber:  "customer_number",
	FieldEMLAType:        "emla_type",
	FieldRegion:          "region",
	FieldCountry:         "country",
	FieldStartDate:       "start_date",
	FieldERPAdvisorName:  "erp_onb_adv_name",
	FieldBTPAdvisorName:  "btp_onb_adv_name",
	FieldBTPAdvisorEmail: "btp_onb_adv_email",
	FieldExternalID:      "external_id",
	FieldStatus:          "status",
}

// MaxLen returns the character budget of the field.
func (f Field) MaxLen() int {
	if n, ok := fieldMaxLen[f]; ok {
		return n
	}
	return DefaultMaxLen
}

// Column returns the storage column for the field, or "" if f is not canonical.
func (f Field) Column() string {
	return fieldColumns[f]
}

// ParseField resolves a wire name to a canonical field.
func ParseField(name string) (Field, bool) {
	f := Field(name)
	_, ok := fieldColumns[f]
	return f, ok
}
