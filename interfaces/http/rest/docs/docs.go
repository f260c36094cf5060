// Package docs registers the OpenAPI document served at /swagger/doc.json.
// Regenerate with: swag init -g interfaces/http/rest/router.go -o interfaces/http/rest/docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/events": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["events"],
                "summary": "Submit an event",
                "parameters": [
                    {"description": "Event", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ingest.SubmitCommand"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/handlers.SubmitResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/graphs": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["graphs"],
                "summary": "Create a graph",
                "parameters": [
                    {"description": "Graph id", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/handlers.CreateGraphRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/graph.Snapshot"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/graphs/{graphId}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["graphs"],
                "summary": "Get the canonical snapshot",
                "parameters": [
                    {"type": "string", "description": "Graph ID", "name": "graphId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/graph.Snapshot"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/graphs/{graphId}/events": {
            "get": {
                "produces": ["application/json"],
                "tags": ["graphs"],
                "summary": "List logged events after a cursor",
                "parameters": [
                    {"type": "string", "description": "Graph ID", "name": "graphId", "in": "path", "required": true},
                    {"type": "string", "description": "Exclusive event id cursor", "name": "since", "in": "query"},
                    {"type": "integer", "default": 500, "description": "Page size", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.EventsResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "events.Event": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "type": {"type": "string"},
                "graphId": {"type": "string"},
                "clientId": {"type": "string"},
                "payload": {"type": "object"},
                "createdAt": {"type": "string", "format": "date-time"}
            }
        },
        "graph.Edge": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "source": {"type": "string"},
                "target": {"type": "string"}
            }
        },
        "graph.Node": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "kind": {"type": "string"},
                "label": {"type": "string"},
                "image": {"type": "string"}
            }
        },
        "graph.Snapshot": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "nodes": {"type": "array", "items": {"$ref": "#/definitions/graph.Node"}},
                "edges": {"type": "array", "items": {"$ref": "#/definitions/graph.Edge"}},
                "lastEventId": {"type": "string"}
            }
        },
        "handlers.CreateGraphRequest": {
            "type": "object",
            "properties": {"id": {"type": "string"}}
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "type": {"type": "string"},
                "title": {"type": "string"},
                "status": {"type": "integer"},
                "detail": {"type": "string"},
                "code": {"type": "string"},
                "retryable": {"type": "boolean"},
                "request_id": {"type": "string"},
                "timestamp": {"type": "string"}
            }
        },
        "handlers.EventsResponse": {
            "type": "object",
            "properties": {
                "events": {"type": "array", "items": {"$ref": "#/definitions/events.Event"}},
                "lastEventId": {"type": "string"}
            }
        },
        "handlers.SubmitResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "id": {"type": "string"}
            }
        },
        "ingest.SubmitCommand": {
            "type": "object",
            "required": ["graphId", "clientId", "type"],
            "properties": {
                "graphId": {"type": "string"},
                "clientId": {"type": "string"},
                "type": {"type": "string"},
                "payload": {"type": "object"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "graphsync API",
	Description:      "Event submission, snapshots and event log for collaborative pipeline diagrams.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
