package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type createEnclaveForm struct {
	Name string `validate:"required,min=1,max=255"`
	Slug string `validate:"required,slug"`
}

type createConnectorForm struct {
	Type     string `validate:"required,connector_type"`
	CronExpr string `validate:"omitempty,cron"`
}

type listFindingsForm struct {
	SourceType   string `validate:"omitempty,source_type"`
	IdentityType string `validate:"omitempty,identity_type"`
}

func TestValidate_Passes(t *testing.T) {
	v := New()
	err := v.Validate(createEnclaveForm{Name: "Corp Production", Slug: "corp-production"})
	assert.NoError(t, err)
}

func TestValidate_RequiredField(t *testing.T) {
	v := New()
	err := v.Validate(createEnclaveForm{Slug: "corp"})
	require.Error(t, err)

	verrs, ok := err.(ValidationErrors)
	require.True(t, ok)
	require.Len(t, verrs, 1)
	assert.Equal(t, "name", verrs[0].Field)
	assert.Equal(t, "is required", verrs[0].Message)
}

func TestValidate_Slug(t *testing.T) {
	v := New()

	for _, slug := range []string{"corp", "corp-prod", "a1-b2-c3"} {
		assert.NoError(t, v.Validate(createEnclaveForm{Name: "x", Slug: slug}), "slug %q", slug)
	}
	for _, slug := range []string{"Corp", "corp_prod", "-corp", "corp-", "corp--prod", "corp prod"} {
		assert.Error(t, v.Validate(createEnclaveForm{Name: "x", Slug: slug}), "slug %q", slug)
	}
}

func TestValidate_ConnectorType(t *testing.T) {
	v := New()

	for _, code := range []string{"ad_ldap", "adcs_file", "adcs_remote"} {
		assert.NoError(t, v.Validate(createConnectorForm{Type: code}), "type %q", code)
	}

	err := v.Validate(createConnectorForm{Type: "aws_iam"})
	require.Error(t, err)
	verrs, ok := err.(ValidationErrors)
	require.True(t, ok)
	assert.Contains(t, verrs[0].Message, "ad_ldap")
}

func TestValidate_Cron(t *testing.T) {
	v := New()

	for _, expr := range []string{"0 2 * * *", "*/15 * * * *", "30 4 1 * 1"} {
		assert.NoError(t, v.Validate(createConnectorForm{Type: "ad_ldap", CronExpr: expr}), "cron %q", expr)
	}
	for _, expr := range []string{"not a cron", "* * * *", "61 * * * *"} {
		assert.Error(t, v.Validate(createConnectorForm{Type: "ad_ldap", CronExpr: expr}), "cron %q", expr)
	}

	// omitempty lets on-demand connectors skip the schedule
	assert.NoError(t, v.Validate(createConnectorForm{Type: "ad_ldap"}))
}

func TestValidate_SourceAndIdentityType(t *testing.T) {
	v := New()

	assert.NoError(t, v.Validate(listFindingsForm{SourceType: "ad_svc_acct", IdentityType: "svc_acct"}))
	assert.NoError(t, v.Validate(listFindingsForm{SourceType: "adcs_cert", IdentityType: "cert"}))
	assert.NoError(t, v.Validate(listFindingsForm{}))

	assert.Error(t, v.Validate(listFindingsForm{SourceType: "gcp_sa"}))
	assert.Error(t, v.Validate(listFindingsForm{IdentityType: "human"}))
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "name", Message: "is required"},
		{Field: "slug", Message: "must be a valid slug (lowercase letters, numbers, hyphens only)"},
	}
	assert.Equal(t, "name: is required; slug: must be a valid slug (lowercase letters, numbers, hyphens only)", errs.Error())
	assert.Empty(t, ValidationErrors{}.Error())
}

func TestFieldNamesAreSnakeCase(t *testing.T) {
	v := New()

	type form struct {
		DisplayName string `validate:"required"`
	}
	err := v.Validate(form{})
	require.Error(t, err)
	verrs, ok := err.(ValidationErrors)
	require.True(t, ok)
	assert.Equal(t, "display_name", verrs[0].Field)
}
