package identity

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
)

//go:embed templates/*.json.tmpl
var templateFS embed.FS

var policyTemplates = template.Must(template.ParseFS(templateFS, "templates/*.json.tmpl"))

// TemplateConfig carries the account ids substituted into policy templates.
type TemplateConfig struct {
	DataMeshAccountID string
	ProducerAccountID string
	ConsumerAccountID string
	Bucket            string
}

// RenderPolicy fills the named policy template with cfg.
func RenderPolicy(name string, cfg TemplateConfig) (string, error) {
	var buf bytes.Buffer
	if err := policyTemplates.ExecuteTemplate(&buf, name, cfg); err != nil {
		return "", fmt.Errorf("failed to render policy template %s: %w", name, err)
	}
	return buf.String(), nil
}
