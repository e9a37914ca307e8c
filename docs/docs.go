// Package docs registers the OpenAPI description of the viewer HTTP API.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Report that the server is up",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/server.healthResponse"}
                    }
                }
            }
        },
        "/api/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["viewer"],
                "summary": "Get what the viewer shows",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/server.viewResponse"}
                    }
                }
            }
        },
        "/api/events": {
            "get": {
                "description": "Server-sent events. Every \"view\" event carries a viewResponse.\nWhile the latest build is running, an event is sent every second.",
                "produces": ["text/event-stream"],
                "tags": ["viewer"],
                "summary": "Follow what the viewer shows",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/width": {
            "put": {
                "consumes": ["application/json"],
                "tags": ["viewer"],
                "summary": "Set the display width for pages rendered from now on",
                "parameters": [
                    {
                        "description": "Display width",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/server.widthRequest"}
                    }
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "422": {"description": "Unprocessable Entity", "schema": {"type": "string"}}
                }
            }
        },
        "/api/artifacts/{id}/pages/{index}": {
            "get": {
                "produces": ["application/pdf"],
                "tags": ["artifacts"],
                "summary": "Get a rendered page of a buffered artifact",
                "parameters": [
                    {"type": "string", "description": "Build ID", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "description": "Page index, counted from zero", "name": "index", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found", "schema": {"type": "string"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"type": "string"}}
                }
            }
        },
        "/api/artifacts/{id}/download": {
            "get": {
                "produces": ["application/pdf"],
                "tags": ["artifacts"],
                "summary": "Download a buffered artifact",
                "parameters": [
                    {"type": "string", "description": "Build ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found", "schema": {"type": "string"}}
                }
            }
        }
    },
    "definitions": {
        "server.healthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"}
            }
        },
        "server.widthRequest": {
            "type": "object",
            "properties": {
                "width": {"type": "integer"}
            }
        },
        "server.statusResponse": {
            "type": "object",
            "properties": {
                "kind": {"type": "string", "enum": ["no_builds", "building", "error", "success"]},
                "build_id": {"type": "string"},
                "elapsed_seconds": {"type": "integer"},
                "message": {"type": "string"}
            }
        },
        "server.artifactResponse": {
            "type": "object",
            "properties": {
                "build_id": {"type": "string"},
                "phase": {"type": "string", "enum": ["pending", "loaded", "fully_rendered", "failed"]},
                "total_pages": {"type": "integer"},
                "rendered_pages": {"type": "integer"},
                "error": {"type": "string"},
                "download_url": {"type": "string"},
                "page_urls": {"type": "array", "items": {"type": "string"}}
            }
        },
        "server.viewResponse": {
            "type": "object",
            "properties": {
                "loaded": {"type": "boolean"},
                "status": {"$ref": "#/definitions/server.statusResponse"},
                "latest_build_id": {"type": "string"},
                "showing_build_id": {"type": "string"},
                "showing_latest": {"type": "boolean"},
                "collection_error": {"type": "string"},
                "previous": {"$ref": "#/definitions/server.artifactResponse"},
                "current": {"$ref": "#/definitions/server.artifactResponse"},
                "visible": {"$ref": "#/definitions/server.artifactResponse"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Brickview API",
	Description:      "Live viewer for the latest successful document build.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
