// Package docs holds the OpenAPI description served under /docs.
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
        "/auth/register": {
            "post": {
                "tags": ["auth"],
                "summary": "Register a new account",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/ports.RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ports.AuthResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["auth"],
                "summary": "Log in",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/ports.LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ports.AuthResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["auth"],
                "summary": "Rotate a refresh token",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/ports.RefreshRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ports.AuthResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["auth"],
                "summary": "Revoke every refresh token of the caller",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ports.MessageResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}}
                }
            }
        },
        "/users/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["users"],
                "summary": "Current user profile",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/entities.User"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}}
                }
            }
        },
        "/tasks": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["tasks"],
                "summary": "List the caller's tasks",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Substring of the title", "name": "search", "in": "query"},
                    {"type": "boolean", "description": "Only tasks completed (or not) today", "name": "completed_today", "in": "query"},
                    {"type": "integer", "default": 20, "description": "Page size", "name": "limit", "in": "query"},
                    {"type": "integer", "description": "Page offset", "name": "offset", "in": "query"},
                    {"type": "string", "description": "created_at, title, streak_current or streak_max", "name": "sort_by", "in": "query"},
                    {"type": "string", "description": "asc or desc", "name": "sort_order", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ports.PaginatedResponse-entities_Task"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["tasks"],
                "summary": "Create a task",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/ports.CreateTaskRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/entities.Task"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}}
                }
            }
        },
        "/tasks/summary": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["tasks"],
                "summary": "Progress for the current calendar day",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ports.TodaySummary"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}}
                }
            }
        },
        "/tasks/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["tasks"],
                "summary": "Get a task",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Task ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/entities.Task"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}}
                }
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "tags": ["tasks"],
                "summary": "Rename a task or change its description",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Task ID", "name": "id", "in": "path", "required": true},
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/ports.UpdateTaskRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/entities.Task"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["tasks"],
                "summary": "Delete a task",
                "parameters": [
                    {"type": "string", "description": "Task ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}}
                }
            }
        },
        "/tasks/{id}/complete": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Extends the streak when the previous completion was yesterday and resets it to 1 after a gap.",
                "tags": ["tasks"],
                "summary": "Mark a task completed for today",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Task ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/entities.Task"}},
                    "400": {"description": "Malformed id, or already completed today (code already_completed)", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}}
                }
            }
        },
        "/tasks/{id}/recompute": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["tasks"],
                "summary": "Rebuild streak counters from the completion history",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Task ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/entities.Task"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ports.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "entities.Task": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "owner_id": {"type": "string"},
                "title": {"type": "string"},
                "description": {"type": "string"},
                "completed_dates": {"type": "array", "items": {"type": "string"}},
                "streak_current": {"type": "integer"},
                "streak_max": {"type": "integer"},
                "streak_last": {"type": "string"},
                "completed_today": {"type": "boolean"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"},
                "version": {"type": "integer"}
            }
        },
        "entities.User": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "email": {"type": "string"},
                "username": {"type": "string"},
                "is_active": {"type": "boolean"},
                "last_login_at": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "ports.AuthResponse": {
            "type": "object",
            "properties": {
                "access_token": {"type": "string"},
                "refresh_token": {"type": "string"},
                "token_type": {"type": "string"},
                "expires_in": {"type": "integer"},
                "user": {"$ref": "#/definitions/entities.User"}
            }
        },
        "ports.CreateTaskRequest": {
            "type": "object",
            "required": ["title", "description"],
            "properties": {
                "title": {"type": "string", "maxLength": 100},
                "description": {"type": "string", "maxLength": 500}
            }
        },
        "ports.ErrorResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "code": {"type": "string"}
            }
        },
        "ports.LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "ports.MessageResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"}
            }
        },
        "ports.PaginatedResponse-entities_Task": {
            "type": "object",
            "properties": {
                "data": {"type": "array", "items": {"$ref": "#/definitions/entities.Task"}},
                "total": {"type": "integer"},
                "limit": {"type": "integer"},
                "offset": {"type": "integer"}
            }
        },
        "ports.RefreshRequest": {
            "type": "object",
            "required": ["refresh_token"],
            "properties": {
                "refresh_token": {"type": "string"}
            }
        },
        "ports.RegisterRequest": {
            "type": "object",
            "required": ["email", "password", "username"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string", "minLength": 8},
                "username": {"type": "string", "maxLength": 50, "minLength": 3}
            }
        },
        "ports.TodaySummary": {
            "type": "object",
            "properties": {
                "date": {"type": "string"},
                "total_tasks": {"type": "integer"},
                "completed_today": {"type": "integer"},
                "remaining_today": {"type": "integer"},
                "best_current_streak": {"type": "integer"},
                "best_max_streak": {"type": "integer"}
            }
        },
        "ports.UpdateTaskRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string", "maxLength": 100},
                "description": {"type": "string", "maxLength": 500}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Type \"Bearer\" followed by a space and JWT token.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http"},
	Title:            "Streakboard API",
	Description:      "Daily tasks with completion streaks.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
