package identity

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssumeRoleDocument(t *testing.T) {
	doc, err := assumeRoleDocument("arn:aws:iam::887210671223:root")
	require.NoError(t, err)

	var parsed trustDocument
	require.NoError(t, json.Unmarshal([]byte(doc), &parsed))
	require.Len(t, parsed.Statement, 1)
	assert.Equal(t, []string{"arn:aws:iam::887210671223:root"}, parsed.Statement[0].Principal.AWS)
}

func TestAddPrincipalIdempotent(t *testing.T) {
	raw, err := assumeRoleDocument("arn:aws:iam::887210671223:root")
	require.NoError(t, err)

	doc, err := decodeTrustDocument(url.QueryEscape(raw))
	require.NoError(t, err)

	assert.True(t, doc.addPrincipal("arn:aws:iam::600214582022:root"))
	assert.False(t, doc.addPrincipal("arn:aws:iam::600214582022:root"))
	assert.Len(t, doc.Statement[0].Principal.AWS, 2)
}

func TestDecodeTrustDocumentSinglePrincipal(t *testing.T) {
	raw := `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":"arn:aws:iam::887210671223:root"},"Action":"sts:AssumeRole"}]}`

	doc, err := decodeTrustDocument(url.QueryEscape(raw))
	require.NoError(t, err)
	assert.Equal(t, []string{"arn:aws:iam::887210671223:root"}, doc.Statement[0].Principal.AWS)
}

func TestRenderPolicyTemplates(t *testing.T) {
	cfg := TemplateConfig{DataMeshAccountID: "887210671223"}

	for _, name := range []string{
		"data_mesh_manager_policy.json.tmpl",
		"producer_policy.json.tmpl",
		"consumer_policy.json.tmpl",
	} {
		rendered, err := RenderPolicy(name, cfg)
		require.NoError(t, err, name)

		var doc map[string]any
		require.NoError(t, json.Unmarshal([]byte(rendered), &doc), "%s renders invalid JSON", name)
		assert.Contains(t, rendered, "887210671223", name)
	}
}
