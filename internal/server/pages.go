package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/morezero/ableton-bridge/pkg/registry"
	"github.com/morezero/ableton-bridge/pkg/stubs"
)

const pagesLogPrefix = "server:pages"

// homePageTemplate is the HTML for the bridge status page (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Ableton Bridge</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2, h3 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-degraded { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 1100px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
    .error { color: #cc0000; }
    code { font-size: 0.85rem; }
  </style>
</head>
<body>
  <h1>Ableton Bridge</h1>
  <p class="meta">Backend <strong>{{.Health.Backend}}</strong>, up {{.Health.Uptime}}. <a href="/docs">HTTP API</a></p>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    <p>Host: {{if .Health.Checks.Host}}<span class="stat">OK</span>{{else}}<span class="error">Unreachable ({{.Health.Checks.HostError}})</span>{{end}}</p>
    {{with .Health.Checks.Database}}<p>Database: {{if .}}<span class="stat">OK</span>{{else}}<span class="error">Failed</span>{{end}}</p>{{end}}
    {{with .Health.Checks.Comms}}<p>NATS: {{if .}}<span class="stat">OK</span>{{else}}<span class="error">Disconnected</span>{{end}}</p>{{end}}
    <p>Timestamp: {{.Health.Timestamp}}</p>
  </section>

  <section>
    <h2>Statistics</h2>
    <p>Open connections: <span class="stat">{{.Health.Connections}}</span></p>
    <p>Commands answered: <span class="stat">{{.Health.Served}}</span></p>
    <p>Host queue: <span class="stat">{{.Health.Queue.Pending}}</span> pending, <span class="stat">{{.Health.Queue.Executed}}</span> executed</p>
    {{with .Health.Journal}}<p>Journal: <span class="stat">{{.Total}}</span> recorded, {{.Errors}} errors, {{.Stubbed}} stubbed</p>{{end}}
  </section>

  <section>
    <h2>Stubs ({{if .Health.Stubs.Enabled}}enabled{{else}}disabled{{end}})</h2>
    {{if not .Stubs}}
    <p>No stubs.</p>
    {{else}}
    <table>
      <thead><tr><th>Command</th><th>Result</th></tr></thead>
      <tbody>
        {{range .Stubs}}
        <tr><td>{{.Command}}</td><td><code>{{json .Result}}</code></td></tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>

  <section>
    <h2>Commands ({{len .Commands}})</h2>
    <table>
      <thead>
        <tr><th>Command</th><th>Kind</th><th>Parameters</th></tr>
      </thead>
      <tbody>
        {{range .Commands}}
        <tr>
          <td><a href="/command/{{.Name}}">{{.Name}}</a></td>
          <td>{{.Kind}}</td>
          <td><code>{{.Signature}}</code></td>
        </tr>
        {{end}}
      </tbody>
    </table>
  </section>
</body>
</html>
`

// commandDetailPageTemplate is the HTML for a single command.
const commandDetailPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Entry.Name}} – Ableton Bridge</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2, h3 { color: #0066cc; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; vertical-align: top; }
    th { background: #f0f4f8; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 0.5rem; }
    section { margin-bottom: 2rem; }
    pre { background: #f5f5f5; padding: 0.75rem; overflow-x: auto; font-size: 0.85rem; margin: 0.25rem 0; border: 1px solid #eee; }
    .back { margin-bottom: 1rem; }
  </style>
</head>
<body>
  <p class="back"><a href="/">← Back to bridge</a></p>
  <h1>{{.Entry.Name}}</h1>
  {{if .Entry.Description}}<p class="meta">{{.Entry.Description}}</p>{{end}}
  <p class="meta">Kind: <strong>{{.Entry.Kind}}</strong>{{if .Stubbed}}. Currently answered by a stub.{{end}}</p>

  <section>
    <h2>Parameters</h2>
    {{if not .Entry.Params}}
    <p>No parameters.</p>
    {{else}}
    <table>
      <thead><tr><th>Name</th><th>Type</th><th>Required</th><th>Default</th><th>Nullable</th></tr></thead>
      <tbody>
        {{range .Entry.Params}}
        <tr>
          <td>{{.Name}}</td>
          <td>{{.Type}}{{if .Items}}&lt;{{.Items}}&gt;{{end}}</td>
          <td>{{if .Required}}yes{{else}}no{{end}}</td>
          <td>{{if .Default}}{{json .Default}}{{end}}</td>
          <td>{{if .Nullable}}yes{{end}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>

  <section>
    <h2>JSON Schema</h2>
    <pre>{{json .Schema}}</pre>
  </section>

  <section>
    <h2>Try it</h2>
    <pre>curl -X POST http://{{.Host}}/api/commands/{{.Entry.Name}} -d '{}'</pre>
  </section>
</body>
</html>
`

// swaggerUIPage is the HTML that embeds Swagger UI from CDN and loads the OpenAPI spec.
const swaggerUIPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>API – Ableton Bridge</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.onload = function() {
      SwaggerUIBundle({
        url: "{{.SpecURL}}",
        dom_id: "#swagger-ui",
        presets: [
          SwaggerUIBundle.presets.apis,
          SwaggerUIBundle.SwaggerUIStandalonePreset
        ]
      });
    };
  </script>
</body>
</html>
`

var pageFuncs = template.FuncMap{
	"json": func(v interface{}) string {
		if v == nil {
			return "null"
		}
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	},
}

type homeData struct {
	Health   *HealthOutput
	Stubs    []stubs.Entry
	Commands []CommandInfo
}

// handleHome returns an HTTP handler for the status page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Funcs(pageFuncs).Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		entries := s.reg.Entries()
		data := homeData{
			Health:   s.Health(ctx),
			Stubs:    s.stubs.List(),
			Commands: make([]CommandInfo, len(entries)),
		}
		for i, e := range entries {
			data.Commands[i] = commandInfo(e)
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", pagesLogPrefix, err))
		}
	}
}

type commandDetailData struct {
	Entry   *registry.Entry
	Schema  map[string]interface{}
	Stubbed bool
	Host    string
}

// handleCommandDetail returns an HTTP handler for a single command's page.
func (s *Server) handleCommandDetail() http.HandlerFunc {
	tmpl := template.Must(template.New("commandDetail").Funcs(pageFuncs).Parse(commandDetailPageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		entry, ok := s.reg.Lookup(r.PathValue("name"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, stubbed := s.stubs.Resolve(entry.Name)
		data := commandDetailData{Entry: entry, Schema: entry.Schema(), Stubbed: stubbed, Host: r.Host}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - command detail template execute: %v", pagesLogPrefix, err))
		}
	}
}

func (s *Server) handleDocs() http.HandlerFunc {
	tmpl := template.Must(template.New("swagger").Parse(swaggerUIPage))
	return func(w http.ResponseWriter, r *http.Request) {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		tmpl.Execute(w, map[string]string{"SpecURL": scheme + "://" + r.Host + "/api/openapi.json"})
	}
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, buildOpenAPISpec(s.reg))
}

// openAPI3 types for describing the command API.
type openAPI3Spec struct {
	OpenAPI string                      `json:"openapi"`
	Info    openAPI3Info                `json:"info"`
	Paths   map[string]openAPI3PathItem `json:"paths"`
}

type openAPI3Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

type openAPI3PathItem struct {
	Post *openAPI3Operation `json:"post,omitempty"`
}

type openAPI3Operation struct {
	Summary     string                      `json:"summary"`
	Description string                      `json:"description,omitempty"`
	OperationID string                      `json:"operationId"`
	Tags        []string                    `json:"tags,omitempty"`
	RequestBody *openAPI3RequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]openAPI3Response `json:"responses"`
}

type openAPI3RequestBody struct {
	Content map[string]openAPI3MediaType `json:"content"`
}

type openAPI3Response struct {
	Description string                       `json:"description"`
	Content     map[string]openAPI3MediaType `json:"content,omitempty"`
}

type openAPI3MediaType struct {
	Schema map[string]interface{} `json:"schema,omitempty"`
}

// envelopeSchema describes the response envelope shared by every command.
var envelopeSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"id":      map[string]interface{}{"type": "string"},
		"status":  map[string]interface{}{"type": "string", "enum": []interface{}{"success", "error"}},
		"result":  map[string]interface{}{},
		"message": map[string]interface{}{"type": "string"},
		"error": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"kind":    map[string]interface{}{"type": "string"},
				"message": map[string]interface{}{"type": "string"},
			},
		},
	},
	"required": []interface{}{"status"},
}

// buildOpenAPISpec builds an OpenAPI 3.0 spec with one path per command.
func buildOpenAPISpec(reg *registry.Registry) *openAPI3Spec {
	envelope := map[string]openAPI3MediaType{"application/json": {Schema: envelopeSchema}}
	paths := make(map[string]openAPI3PathItem, reg.Len())
	for _, e := range reg.Entries() {
		paths["/api/commands/"+e.Name] = openAPI3PathItem{
			Post: &openAPI3Operation{
				Summary:     e.Name,
				Description: e.Description,
				OperationID: e.Name,
				Tags:        []string{string(e.Kind)},
				RequestBody: &openAPI3RequestBody{
					Content: map[string]openAPI3MediaType{
						"application/json": {Schema: e.Schema()},
					},
				},
				Responses: map[string]openAPI3Response{
					"200": {Description: "Success", Content: envelope},
					"404": {Description: "UnknownCommand", Content: envelope},
					"422": {Description: "InvalidParams", Content: envelope},
					"502": {Description: "HostError", Content: envelope},
				},
			},
		}
	}
	return &openAPI3Spec{
		OpenAPI: "3.0.0",
		Info: openAPI3Info{
			Title:       "Ableton Bridge",
			Description: "One POST per host command. The body is the command's params object.",
			Version:     "1",
		},
		Paths: paths,
	}
}
