package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/emla-tracker/internal/model"
	"github.com/sells-group/emla-tracker/internal/tabular"
)

func mustTables(t *testing.T) *Tables {
	t.Helper()
	tables, err := DefaultTables()
	require.NoError(t, err)
	return tables
}

func parse(t *testing.T, tables *Tables, text string) *tabular.Table {
	t.Helper()
	tbl, err := tabular.Parse(text, tabular.Options{Header: tables.DisplayHeader})
	require.NoError(t, err)
	return tbl
}

func mapAll(t *testing.T, text, hint string) (*Plan, []Mapped) {
	t.Helper()
	tables := mustTables(t)
	tbl := parse(t, tables, text)
	plan, err := tables.Plan(tbl, hint)
	require.NoError(t, err)
	out := make([]Mapped, 0, len(tbl.Rows))
	for _, r := range tbl.Rows {
		out = append(out, plan.Map(r))
	}
	return plan, out
}

func TestPlan_Detection(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		hint    string
		dialect string
		forced  string
	}{
		{"integration headers", "Account Name,BTP ONB Advisor,Region Lvl 1,CRT Link", "", "IntegrationSuite", ""},
		{"public headers", "Customer Name,Customer ID,Country,Region", "", "PubCloudERP", ""},
		{"no known headers", "foo,bar", "", "PubCloudERP", ""},
		{"tie defaults to public", "Account Name,Customer Name", "", "PubCloudERP", ""},
		{"hint wins over headers", "Account Name,BTP ONB Advisor,Region Lvl 1", "public", "PubCloudERP", model.EMLATypePublicCloudERP},
		{"integration hint", "Customer Name,Customer ID", "Integration", "IntegrationSuite", model.EMLATypeIntegrationSuite},
		{"private hint", "Customer Name,Customer ID", "private", "PubCloudERP", model.EMLATypePrivateCloudERP},
		{"private type name", "Customer Name", "Private Cloud ERP", "PubCloudERP", model.EMLATypePrivateCloudERP},
	}
	tables := mustTables(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := tables.Plan(parse(t, tables, tt.header+"\n"), tt.hint)
			require.NoError(t, err)
			assert.Equal(t, tt.dialect, plan.Dialect.Name)
			assert.Equal(t, tt.forced, plan.EMLAType)
			assert.Equal(t, tt.hint == "", plan.Detected)
		})
	}
}

func TestPlan_UnknownHint(t *testing.T) {
	tables := mustTables(t)
	_, err := tables.Plan(parse(t, tables, "a,b\n"), "mainframe")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownHint)
}

func TestMap_PublicRow(t *testing.T) {
	csv := "Customer Name,Customer ID,Country,Region,Contract Start Date,BTP Onboarding Advisor,Cloud ERP Onboarding Advisor,ID\n" +
		"Acme,1001,Germany,EMEA,15/03/2024,Jane Doe,Bob Smith,EXT-9\n"
	plan, rows := mapAll(t, csv, "")
	require.Len(t, rows, 1)
	assert.Equal(t, "PubCloudERP", plan.Dialect.Name)

	rec := rows[0].Record
	assert.Equal(t, "Acme", rec.CustomerName)
	assert.Equal(t, "1001", rec.CustomerNumber)
	assert.Equal(t, model.EMLATypePublicCloudERP, rec.EMLAType)
	assert.Equal(t, "Germany", rec.Country)
	assert.Equal(t, "EMEA", rec.Region)
	assert.Equal(t, "15/03/2024", rec.StartDate)
	assert.Equal(t, "Jane Doe", rec.BTPAdvisorName)
	assert.Equal(t, "Bob Smith", rec.ERPAdvisorName)
	assert.Equal(t, "EXT-9", rec.ExternalID)
	assert.False(t, rows[0].RecoveredAdvisor)
}

func TestMap_IntegrationRow(t *testing.T) {
	csv := "Account Name;BTP ONB Advisor;Region Lvl 1;Region L5/Country;Revenue Start Date;CRT Link\n" +
		"Globex;Li;APJ;Japan;2024-01-10;https://crt.example/view?ID=778899&x=1\n"
	plan, rows := mapAll(t, csv, "")
	require.Len(t, rows, 1)
	assert.Equal(t, "IntegrationSuite", plan.Dialect.Name)

	rec := rows[0].Record
	assert.Equal(t, "Globex", rec.CustomerName)
	assert.Equal(t, "778899", rec.CustomerNumber)
	assert.Equal(t, model.EMLATypeIntegrationSuite, rec.EMLAType)
	assert.Equal(t, "APJ", rec.Region)
	assert.Equal(t, "Japan", rec.Country)
	assert.Equal(t, "Li", rec.BTPAdvisorName)
	assert.Equal(t, "https://crt.example/view?ID=778899&x=1", rows[0].Extra("CRTLink"))
}

func TestMap_CRTExtractionOverridesMappedNumber(t *testing.T) {
	csv := "Customer Name,Customer ID,CRT Link\nAcme,999,https://x/y?id=445566&foo=1\n"
	_, rows := mapAll(t, csv, "public")
	assert.Equal(t, "445566", rows[0].Record.CustomerNumber)
}

func TestMap_CRTWithoutDigitsKeepsNumber(t *testing.T) {
	csv := "Customer Name,Customer ID,CRT Link\nAcme,999,pending\n"
	_, rows := mapAll(t, csv, "public")
	assert.Equal(t, "999", rows[0].Record.CustomerNumber)
}

func TestMap_PositionalFallback(t *testing.T) {
	// Headers that only loosely match the Integration Suite export.
	csv := "Account Name (Global),Region Lvl 1 Code,Region L5/Country Name,CRT Link URL,BTP ONB Advisor\n" +
		"Initech,NA,USA,https://crt/x?id=12345,Jane Doe\n"
	_, rows := mapAll(t, csv, "integration")
	rec := rows[0].Record
	assert.Equal(t, "Initech", rec.CustomerName)
	assert.Equal(t, "NA", rec.Region)
	assert.Equal(t, "USA", rec.Country)
	assert.Equal(t, "12345", rec.CustomerNumber)
}

func TestMap_CrossDialectFallbacks(t *testing.T) {
	csv := "Customer Name,Customer ID,Region Lvl 1,Region L5/Country,Revenue Start Date\n" +
		"Acme,1001,EMEA,France,01/02/2024\n"
	_, rows := mapAll(t, csv, "public")
	rec := rows[0].Record
	assert.Equal(t, "EMEA", rec.Region)
	assert.Equal(t, "France", rec.Country)
	assert.Equal(t, "01/02/2024", rec.StartDate)
}

func TestMap_PlaceholderAdvisorRejected(t *testing.T) {
	csv := "Customer Name,Customer ID,BTP Onboarding Advisor,EmLA Staffing for SAP Cloud ERP\n" +
		"Acme,1001,Yes,No\n"
	_, rows := mapAll(t, csv, "")
	assert.NotEqual(t, "Yes", rows[0].Record.BTPAdvisorName)
	assert.False(t, rows[0].RecoveredAdvisor)
}

func TestMap_AdvisorRecovery(t *testing.T) {
	csv := "Customer Name,Customer ID,BTP Onboarding Advisor,EmLA Staffing for SAP Cloud ERP\n" +
		"Acme,1001,Yes,Maria Rossi\n"
	_, rows := mapAll(t, csv, "")
	assert.Equal(t, "Maria Rossi", rows[0].Record.BTPAdvisorName)
	assert.True(t, rows[0].RecoveredAdvisor)
}

func TestMap_AdvisorEmailCandidate(t *testing.T) {
	csv := "Customer Name,Customer ID,BTP ONB Advisor\nAcme,1001,jane.doe@example.com\n"
	_, rows := mapAll(t, csv, "public")
	rec := rows[0].Record
	assert.Equal(t, "jane.doe@example.com", rec.BTPAdvisorEmail)
}

func TestMap_EMLATypeFromProductList(t *testing.T) {
	tests := []struct {
		product string
		want    string
	}{
		{"SAP Integration Suite", model.EMLATypeIntegrationSuite},
		{"RISE PubCloud", model.EMLATypePublicCloudERP},
		{"Something else", model.EMLATypePublicCloudERP},
		{"", model.EMLATypePublicCloudERP},
	}
	for _, tt := range tests {
		t.Run(tt.product, func(t *testing.T) {
			csv := "Customer Name,Customer ID,Product List\nAcme,1001," + tt.product + "\n"
			_, rows := mapAll(t, csv, "")
			assert.Equal(t, tt.want, rows[0].Record.EMLAType)
		})
	}
}

func TestMap_ForcedTypeIgnoresProductList(t *testing.T) {
	csv := "Customer Name,Customer ID,Product List\nAcme,1001,SAP Integration Suite\n"
	_, rows := mapAll(t, csv, "private")
	assert.Equal(t, model.EMLATypePrivateCloudERP, rows[0].Record.EMLAType)
}

func TestMap_GenericSynonymsAndVerbatim(t *testing.T) {
	csv := "accountname,ERP Cust Number,Notes\nAcme,1001,call back\n"
	_, rows := mapAll(t, csv, "public")
	rec := rows[0].Record
	assert.Equal(t, "Acme", rec.CustomerName)
	assert.Equal(t, "1001", rec.CustomerNumber)
	assert.Equal(t, "call back", rows[0].Extra("Notes"))
}

func TestMap_EmptyValueDoesNotOverwrite(t *testing.T) {
	csv := "Customer Name,Account Name,Customer ID\nAcme,,1001\n"
	_, rows := mapAll(t, csv, "public")
	assert.Equal(t, "Acme", rows[0].Record.CustomerName)
}

func TestMap_NoExternalIDSynthesized(t *testing.T) {
	csv := "Customer Name,Customer ID\nAcme,1001\n"
	_, rows := mapAll(t, csv, "public")
	assert.Empty(t, rows[0].Record.ExternalID)
}
