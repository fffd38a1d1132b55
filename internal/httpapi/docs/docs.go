// Package docs holds the OpenAPI document served by the swagger build.
// Regenerate with `swag init -g cmd/insightd/docs.go -o internal/httpapi/docs`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "insightd maintainers"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/insights": {
            "get": {
                "produces": ["application/json"],
                "summary": "General device health insights",
                "parameters": [
                    {"type": "string", "description": "Comma separated provider order", "name": "providers", "in": "query"},
                    {"type": "integer", "description": "Snapshot freshness window in milliseconds", "name": "freshness_ms", "in": "query"},
                    {"type": "string", "description": "Data source name", "name": "source", "in": "query"},
                    {"type": "boolean", "description": "Force a fresh collection", "name": "refresh", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.InsightResult"}},
                    "404": {"description": "Unknown source", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "No snapshot available", "schema": {"$ref": "#/definitions/types.InsightResult"}}
                }
            }
        },
        "/battery": {
            "get": {
                "produces": ["application/json"],
                "summary": "Battery care advice",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.InsightResult"}}
                }
            }
        },
        "/performance": {
            "get": {
                "produces": ["application/json"],
                "summary": "Performance tips",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.InsightResult"}}
                }
            }
        },
        "/query": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "summary": "Answer a free-text question about the device",
                "parameters": [
                    {"description": "Query", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.QueryRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.InsightResult"}},
                    "400": {"description": "Empty prompt or invalid body", "schema": {"$ref": "#/definitions/types.InsightResult"}},
                    "415": {"description": "Unsupported media type", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "summary": "Providers, cache and uptime",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}
                }
            }
        },
        "/providers": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "summary": "Register a provider",
                "parameters": [
                    {"description": "Provider", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.RegisterProviderRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/types.ProviderStatus"}},
                    "400": {"description": "Invalid request or credential variable not allowed", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "409": {"description": "Duplicate or configured provider", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer", "example": 400},
                "error": {"type": "string", "example": "invalid JSON body"}
            }
        },
        "types.QueryRequest": {
            "type": "object",
            "properties": {
                "prompt": {"type": "string", "example": "How much battery do I have?"},
                "preferred_providers": {"type": "array", "items": {"type": "string"}},
                "freshness_ms": {"type": "integer", "example": 15000},
                "source": {"type": "string", "example": "host"},
                "refresh": {"type": "boolean"}
            }
        },
        "types.RegisterProviderRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string", "example": "groq"},
                "kind": {"type": "string", "example": "ai_provider"},
                "type": {"type": "string", "example": "openai"},
                "endpoint": {"type": "string"},
                "model": {"type": "string"},
                "api_key_env": {"type": "string", "description": "Must be listed in runtime_credential_envs.", "example": "GROQ_API_KEY"},
                "capabilities": {"type": "array", "items": {"type": "string"}},
                "strict": {"type": "boolean"},
                "skip_probe": {"type": "boolean"}
            }
        },
        "types.AttemptLog": {
            "type": "object",
            "properties": {
                "provider": {"type": "string"},
                "try": {"type": "integer"},
                "outcome": {"type": "string", "example": "Timeout"},
                "error": {"type": "string"},
                "latency_ms": {"type": "integer"}
            }
        },
        "types.InsightResult": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "kind": {"type": "string", "example": "battery"},
                "provider_used": {"type": "string"},
                "content": {"type": "string"},
                "snapshot_excerpt": {"type": "object", "additionalProperties": true},
                "source": {"type": "string", "example": "default"},
                "collected_at": {"type": "string"},
                "stale": {"type": "boolean"},
                "fallback": {"type": "boolean"},
                "error": {"type": "string"},
                "attempts": {"type": "array", "items": {"$ref": "#/definitions/types.AttemptLog"}},
                "timestamp": {"type": "string"}
            }
        },
        "types.ProviderStatus": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "kind": {"type": "string"},
                "endpoint": {"type": "string"},
                "capabilities": {"type": "array", "items": {"type": "string"}},
                "state": {"type": "string"},
                "last_error": {"type": "string"}
            }
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "providers": {"type": "array", "items": {"$ref": "#/definitions/types.ProviderStatus"}},
                "state": {"type": "string", "example": "ready"},
                "uptime_seconds": {"type": "integer"},
                "server_time_unix": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "insightd API",
	Description:      "Device insights over pluggable AI providers and data sources.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
