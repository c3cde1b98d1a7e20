// Package docs registers the OpenAPI document served at /docs.
// Regenerate with: swag init -g cmd/api/main.go
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {"name": "MyCareCoach"},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/health": {
            "get": {"tags": ["health"], "summary": "Health check", "produces": ["application/json"],
                "responses": {"200": {"description": "OK"}}}
        },
        "/health/db": {
            "get": {"tags": ["health"], "summary": "Database health check", "produces": ["application/json"],
                "responses": {"200": {"description": "OK"}, "503": {"description": "Service Unavailable"}}}
        },
        "/api/v1/coaches/{coachID}/email-logs": {
            "get": {
                "tags": ["email-logs"], "summary": "Email log history", "produces": ["application/json"],
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"type": "string", "name": "coachID", "in": "path", "required": true},
                    {"type": "string", "name": "status", "in": "query", "enum": ["sent", "pending", "error"]},
                    {"type": "string", "name": "type", "in": "query", "enum": ["remind24h", "remind1h", "confirmation", "newSession", "manual"]},
                    {"type": "integer", "name": "limit", "in": "query"},
                    {"type": "integer", "name": "offset", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}}
            }
        },
        "/api/v1/coaches/{coachID}/email-logs/stats": {
            "get": {
                "tags": ["email-logs"], "summary": "Email log statistics", "produces": ["application/json"],
                "security": [{"BearerAuth": []}],
                "parameters": [{"type": "string", "name": "coachID", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/coaches/{coachID}/notification-config": {
            "get": {
                "tags": ["settings"], "summary": "Get notification preferences", "produces": ["application/json"],
                "security": [{"BearerAuth": []}],
                "parameters": [{"type": "string", "name": "coachID", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/reminders.CoachConfig"}}}
            },
            "put": {
                "tags": ["settings"], "summary": "Update notification preferences",
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "coachID", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/reminders.CoachConfig"}}
                ],
                "responses": {"200": {"description": "OK"}, "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}}
            }
        },
        "/api/v1/coaches/{coachID}/test-email": {
            "post": {
                "tags": ["settings"], "summary": "Send a test email", "produces": ["application/json"],
                "security": [{"BearerAuth": []}],
                "parameters": [{"type": "string", "name": "coachID", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}, "502": {"description": "Bad Gateway"}}
            }
        },
        "/api/v1/sessions/{sessionID}/reminders": {
            "post": {
                "tags": ["reminders"], "summary": "Send a manual reminder", "produces": ["application/json"],
                "security": [{"BearerAuth": []}],
                "parameters": [{"type": "string", "name": "sessionID", "in": "path", "required": true}],
                "responses": {"201": {"description": "Created"}, "404": {"description": "Not Found"}, "409": {"description": "Conflict"}, "422": {"description": "Unprocessable Entity"}}
            }
        },
        "/api/v1/reminders/run": {
            "post": {
                "tags": ["reminders"], "summary": "Run a reminder tick", "produces": ["application/json"],
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}, "500": {"description": "Internal Server Error"}}
            }
        }
    },
    "definitions": {
        "reminders.CoachConfig": {
            "type": "object",
            "properties": {
                "remind24h": {"type": "boolean"},
                "remind1h": {"type": "boolean"},
                "confirmAfterSession": {"type": "boolean"},
                "notifyOnNewSession": {"type": "boolean"}
            }
        },
        "respond.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "object",
                    "properties": {
                        "code": {"type": "string"},
                        "message": {"type": "string"},
                        "detail": {"type": "string"}
                    }
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:8000",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "CoachOS API",
	Description:      "Session reminders, email history and notification settings for MyCareCoach coaches.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
