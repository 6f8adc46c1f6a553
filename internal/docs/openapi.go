// internal/docs/openapi.go
package docs

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/FairForge/dropsense/internal/events"
	"github.com/FairForge/dropsense/internal/insights"
	"github.com/FairForge/dropsense/internal/scoring"
)

// OpenAPISpec represents an OpenAPI 3.0 specification
type OpenAPISpec struct {
	OpenAPI    string                `json:"openapi"`
	Info       Info                  `json:"info"`
	Servers    []Server              `json:"servers,omitempty"`
	Paths      map[string]*PathItem  `json:"paths"`
	Components Components            `json:"components"`
	Security   []SecurityRequirement `json:"security,omitempty"`
	Tags       []Tag                 `json:"tags,omitempty"`
}

// Info contains API metadata
type Info struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Version     string  `json:"version"`
	Contact     Contact `json:"contact,omitempty"`
	License     License `json:"license,omitempty"`
}

// Contact information
type Contact struct {
	Name  string `json:"name,omitempty"`
	URL   string `json:"url,omitempty"`
	Email string `json:"email,omitempty"`
}

// License information
type License struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// Server represents an API server
type Server struct {
	URL         string                    `json:"url"`
	Description string                    `json:"description,omitempty"`
	Variables   map[string]ServerVariable `json:"variables,omitempty"`
}

// ServerVariable for templating
type ServerVariable struct {
	Default     string   `json:"default"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// PathItem represents operations on a path
type PathItem struct {
	Get        *Operation  `json:"get,omitempty"`
	Put        *Operation  `json:"put,omitempty"`
	Post       *Operation  `json:"post,omitempty"`
	Delete     *Operation  `json:"delete,omitempty"`
	Head       *Operation  `json:"head,omitempty"`
	Options    *Operation  `json:"options,omitempty"`
	Parameters []Parameter `json:"parameters,omitempty"`
}

// Operation represents an API operation
type Operation struct {
	Tags        []string              `json:"tags,omitempty"`
	Summary     string                `json:"summary,omitempty"`
	Description string                `json:"description,omitempty"`
	OperationID string                `json:"operationId,omitempty"`
	Parameters  []Parameter           `json:"parameters,omitempty"`
	RequestBody *RequestBody          `json:"requestBody,omitempty"`
	Responses   map[string]Response   `json:"responses"`
	Security    []SecurityRequirement `json:"security,omitempty"`
}

// Parameter for operations
type Parameter struct {
	Name        string      `json:"name"`
	In          string      `json:"in"`
	Description string      `json:"description,omitempty"`
	Required    bool        `json:"required,omitempty"`
	Schema      *Schema     `json:"schema,omitempty"`
	Example     interface{} `json:"example,omitempty"`
}

// RequestBody for operations
type RequestBody struct {
	Description string               `json:"description,omitempty"`
	Content     map[string]MediaType `json:"content"`
	Required    bool                 `json:"required,omitempty"`
}

// Response from an operation
type Response struct {
	Description string               `json:"description"`
	Headers     map[string]Header    `json:"headers,omitempty"`
	Content     map[string]MediaType `json:"content,omitempty"`
}

// Header definition
type Header struct {
	Description string  `json:"description,omitempty"`
	Schema      *Schema `json:"schema,omitempty"`
}

// MediaType with schema
type MediaType struct {
	Schema   *Schema            `json:"schema,omitempty"`
	Example  interface{}        `json:"example,omitempty"`
	Examples map[string]Example `json:"examples,omitempty"`
}

// Example for documentation
type Example struct {
	Summary     string      `json:"summary,omitempty"`
	Description string      `json:"description,omitempty"`
	Value       interface{} `json:"value,omitempty"`
}

// Components container
type Components struct {
	Schemas         map[string]Schema         `json:"schemas,omitempty"`
	SecuritySchemes map[string]SecurityScheme `json:"securitySchemes,omitempty"`
	Parameters      map[string]Parameter      `json:"parameters,omitempty"`
	RequestBodies   map[string]RequestBody    `json:"requestBodies,omitempty"`
	Responses       map[string]Response       `json:"responses,omitempty"`
}

// Schema definition
type Schema struct {
	Type        string             `json:"type,omitempty"`
	Format      string             `json:"format,omitempty"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Example     interface{}        `json:"example,omitempty"`
	Ref         string             `json:"$ref,omitempty"`
	Enum        []interface{}      `json:"enum,omitempty"`
	Minimum     *float64           `json:"minimum,omitempty"`
	Maximum     *float64           `json:"maximum,omitempty"`
}

// SecurityScheme definition
type SecurityScheme struct {
	Type         string `json:"type"`
	Description  string `json:"description,omitempty"`
	Name         string `json:"name,omitempty"`
	In           string `json:"in,omitempty"`
	Scheme       string `json:"scheme,omitempty"`
	BearerFormat string `json:"bearerFormat,omitempty"`
}

// SecurityRequirement mapping
type SecurityRequirement map[string][]string

// Tag for grouping operations
type Tag struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// GenerateOpenAPISpec creates the complete OpenAPI specification
func GenerateOpenAPISpec(version string) *OpenAPISpec {
	return &OpenAPISpec{
		OpenAPI: "3.0.3",
		Info: Info{
			Title:       "dropsense API",
			Description: "Behavior ingestion, risk assessment and personalization for airdrop hunters",
			Version:     version,
		},
		Servers: []Server{
			{
				URL:         "http://localhost:8080",
				Description: "Development server",
			},
		},
		Tags: []Tag{
			{Name: "Events", Description: "Behavior event ingestion"},
			{Name: "Profile", Description: "Learned profile and adaptation"},
			{Name: "Insights", Description: "Preference insights"},
			{Name: "Health", Description: "Health checks"},
		},
		Paths: generatePaths(),
		Components: Components{
			Schemas:         generateSchemas(),
			SecuritySchemes: generateSecuritySchemes(),
		},
		Security: []SecurityRequirement{
			{"BearerAuth": {}},
		},
	}
}

func ref(name string) *Schema {
	return &Schema{Ref: "#/components/schemas/" + name}
}

func jsonContent(s *Schema) map[string]MediaType {
	return map[string]MediaType{"application/json": {Schema: s}}
}

func jsonResponse(description string, s *Schema) Response {
	return Response{Description: description, Content: jsonContent(s)}
}

func errorResponse(description string) Response {
	return jsonResponse(description, ref("Error"))
}

func generatePaths() map[string]*PathItem {
	unauthorized := errorResponse("Missing or invalid bearer token")

	return map[string]*PathItem{
		"/api/v1/events": {
			Post: &Operation{
				Tags:        []string{"Events"},
				Summary:     "Record a behavior event",
				Description: "Appends one event for the authenticated user. Every Nth event requests a background analysis.",
				OperationID: "IngestEvent",
				RequestBody: &RequestBody{Required: true, Content: jsonContent(ref("EventPayload"))},
				Responses: map[string]Response{
					"202": jsonResponse("Event accepted", &Schema{
						Type: "object",
						Properties: map[string]*Schema{
							"id":     {Type: "string", Format: "uuid"},
							"status": {Type: "string", Example: "accepted"},
						},
					}),
					"400": errorResponse("Malformed event"),
					"401": unauthorized,
					"429": errorResponse("Per-user ingestion rate exceeded"),
				},
			},
		},
		"/api/v1/profile": {
			Get: &Operation{
				Tags:        []string{"Profile"},
				Summary:     "Get the learned profile",
				Description: "Returns the current adaptation, risk, chain and activity projections. Unknown users get computed=false.",
				OperationID: "GetProfile",
				Responses: map[string]Response{
					"200": jsonResponse("Profile snapshot", ref("ProfileSnapshot")),
					"401": unauthorized,
				},
			},
		},
		"/api/v1/assessment": {
			Post: &Operation{
				Tags:        []string{"Profile"},
				Summary:     "Submit the risk questionnaire",
				OperationID: "SubmitAssessment",
				RequestBody: &RequestBody{Required: true, Content: jsonContent(ref("RiskAnswers"))},
				Responses: map[string]Response{
					"200": jsonResponse("Scored risk profile", ref("RiskProfile")),
					"400": errorResponse("Answer missing or outside 1-5"),
					"401": unauthorized,
				},
			},
		},
		"/api/v1/insights": {
			Get: &Operation{
				Tags:        []string{"Insights"},
				Summary:     "List active insights",
				OperationID: "ListInsights",
				Responses: map[string]Response{
					"200": jsonResponse("Unexpired insights", &Schema{
						Type: "object",
						Properties: map[string]*Schema{
							"insights": {Type: "array", Items: ref("Insight")},
							"count":    {Type: "integer"},
						},
					}),
					"401": unauthorized,
				},
			},
		},
		"/api/v1/insights/{id}/read": {
			Parameters: []Parameter{
				{
					Name:        "id",
					In:          "path",
					Description: "Insight id",
					Required:    true,
					Schema:      &Schema{Type: "string"},
				},
			},
			Post: &Operation{
				Tags:        []string{"Insights"},
				Summary:     "Mark one insight read",
				OperationID: "MarkInsightRead",
				Responses: map[string]Response{
					"204": {Description: "Marked read"},
					"401": unauthorized,
					"404": errorResponse("No such insight for this user"),
				},
			},
		},
		"/api/v1/insights/read-all": {
			Post: &Operation{
				Tags:        []string{"Insights"},
				Summary:     "Mark every active insight read",
				OperationID: "MarkAllInsightsRead",
				Responses: map[string]Response{
					"200": jsonResponse("Number of insights changed", &Schema{
						Type:       "object",
						Properties: map[string]*Schema{"marked": {Type: "integer"}},
					}),
					"401": unauthorized,
				},
			},
		},
		"/api/v1/analysis": {
			Post: &Operation{
				Tags:        []string{"Profile"},
				Summary:     "Request a re-analysis",
				OperationID: "RequestAnalysis",
				Responses: map[string]Response{
					"202": {Description: "Analysis queued"},
					"401": unauthorized,
					"503": errorResponse("Analysis queue full"),
				},
			},
		},
		"/health": {
			Get: &Operation{
				Tags:        []string{"Health"},
				Summary:     "Liveness",
				Description: "Does not require a token.",
				OperationID: "Health",
				Responses:   map[string]Response{"200": {Description: "Process is up"}},
			},
		},
		"/ready": {
			Get: &Operation{
				Tags:        []string{"Health"},
				Summary:     "Readiness",
				Description: "Does not require a token.",
				OperationID: "Ready",
				Responses: map[string]Response{
					"200": {Description: "Backing store reachable"},
					"503": {Description: "Backing store unreachable"},
				},
			},
		},
	}
}

func actionEnum() []interface{} {
	actions := events.Actions()
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}
	sort.Strings(names)

	out := make([]interface{}, len(names))
	for i, n := range names {
		out[i] = n
	}
	return out
}

func answer(description string) *Schema {
	lo, hi := 1.0, 5.0
	return &Schema{Type: "integer", Description: description, Minimum: &lo, Maximum: &hi}
}

func generateSchemas() map[string]Schema {
	return map[string]Schema{
		"EventPayload": {
			Type: "object",
			Properties: map[string]*Schema{
				"action":      {Type: "string", Enum: actionEnum()},
				"element":     {Type: "string", Example: "join_button"},
				"section":     {Type: "string", Example: "airdrops"},
				"duration_ms": {Type: "integer", Format: "int64", Description: "Dwell time, not negative"},
				"metadata": {
					Type:        "object",
					Description: "Free-form; device, feature, chain, success, gas and accessibility are interpreted",
				},
				"timestamp": {Type: "string", Format: "date-time", Description: "Defaults to server time"},
			},
			Required: []string{"action", "element", "section"},
		},
		"RiskAnswers": {
			Type: "object",
			Properties: map[string]*Schema{
				"investment_experience":         answer("Years and depth of investing"),
				"risk_capacity":                 answer("Share of funds that could be lost"),
				"time_horizon":                  answer("How long positions are held"),
				"technical_knowledge":           answer("Comfort with wallets and contracts"),
				"security_priority":             answer("How much security matters"),
				"loss_tolerance":                answer("Reaction to drawdowns"),
				"diversification_understanding": answer("Portfolio diversification knowledge"),
				"volatility_comfort":            answer("Comfort with price swings"),
			},
			Required: []string{
				"investment_experience", "risk_capacity", "time_horizon", "technical_knowledge",
				"security_priority", "loss_tolerance", "diversification_understanding", "volatility_comfort",
			},
		},
		"RiskProfile": {
			Type: "object",
			Properties: map[string]*Schema{
				"user_id":              {Type: "string"},
				"risk_tolerance_score": {Type: "number", Description: "0-100"},
				"risk_category": {
					Type: "string",
					Enum: []interface{}{
						scoring.RiskConservative, scoring.RiskModerate, scoring.RiskBalanced,
						scoring.RiskGrowth, scoring.RiskAggressive,
					},
				},
				"financial_capacity": {
					Type: "string",
					Enum: []interface{}{
						scoring.CapacityLow, scoring.CapacityMedium, scoring.CapacityHigh, scoring.CapacityVeryHigh,
					},
				},
				"confidence_score":   {Type: "number"},
				"updated_at":         {Type: "string", Format: "date-time"},
			},
		},
		"Insight": {
			Type: "object",
			Properties: map[string]*Schema{
				"id": {Type: "string"},
				"insight_type": {
					Type: "string",
					Enum: []interface{}{
						insights.TypeHighRiskBeginner, insights.TypeLowSecurity, insights.TypeLowChainDiversity,
						insights.TypeLowCompletion, insights.TypeBurstActivity, insights.TypeDecliningChain,
					},
				},
				"title":                     {Type: "string"},
				"description":               {Type: "string"},
				"actionable_recommendation": {Type: "string"},
				"confidence_score":          {Type: "number"},
				"impact_level": {
					Type: "string",
					Enum: []interface{}{insights.ImpactLow, insights.ImpactMedium, insights.ImpactHigh},
				},
				"source":      {Type: "string", Enum: []interface{}{insights.SourceAdvisory, insights.SourceTemplate}},
				"read":        {Type: "boolean"},
				"valid_until": {Type: "string", Format: "date-time"},
			},
		},
		"ProfileSnapshot": {
			Type: "object",
			Properties: map[string]*Schema{
				"user_id":           {Type: "string"},
				"computed":          {Type: "boolean"},
				"adaptation":        {Type: "object", Description: "Current config and adaptation history"},
				"risk_profile":      ref("RiskProfile"),
				"chain_preferences": {Type: "array", Items: &Schema{Type: "object"}},
				"activity_pattern":  {Type: "object"},
			},
			Required: []string{"user_id", "computed"},
		},
		"Error": {
			Type: "object",
			Properties: map[string]*Schema{
				"error": {
					Type:    "string",
					Example: "invalid event: section is required",
				},
			},
			Required: []string{"error"},
		},
	}
}

func generateSecuritySchemes() map[string]SecurityScheme {
	return map[string]SecurityScheme{
		"BearerAuth": {
			Type:         "http",
			Description:  "HS256 JWT issued by the host application; the user_id claim identifies the user",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}
}

// OpenAPIJSONHandler returns an HTTP handler that serves the OpenAPI spec as JSON
func OpenAPIJSONHandler(version string) http.HandlerFunc {
	spec := GenerateOpenAPISpec(version)
	specJSON, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(specJSON)
	}
}

// SwaggerUIHandler returns an HTTP handler that serves Swagger UI
func SwaggerUIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, swaggerUIHTML)
	}
}

// swaggerUIHTML is the HTML for Swagger UI
const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>dropsense API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.10.3/swagger-ui.css">
    <style>
        html { box-sizing: border-box; overflow: -moz-scrollbars-vertical; overflow-y: scroll; }
        *, *:before, *:after { box-sizing: inherit; }
        body { margin: 0; background: #fafafa; }
    </style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.10.3/swagger-ui-bundle.js"></script>
    <script src="https://unpkg.com/swagger-ui-dist@5.10.3/swagger-ui-standalone-preset.js"></script>
    <script>
    window.onload = function() {
        window.ui = SwaggerUIBundle({
            url: "/openapi.json",
            dom_id: '#swagger-ui',
            deepLinking: true,
            presets: [
                SwaggerUIBundle.presets.apis,
                SwaggerUIStandalonePreset
            ],
            plugins: [
                SwaggerUIBundle.plugins.DownloadUrl
            ],
            layout: "StandaloneLayout"
        });
    };
    </script>
</body>
</html>`
