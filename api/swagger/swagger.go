package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "RC Quote API",
        "description": "Quote request intake for RC Construções: validation, attachments and email delivery.",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http",
        "https"
    ],
    "tags": [
        {"name": "Quotes", "description": "Quote request submission"},
        {"name": "Operations", "description": "Health, readiness and metrics"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["Operations"],
                "summary": "Liveness probe",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "tags": ["Operations"],
                "summary": "Readiness probe covering storage, redis and the submission log when enabled",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "A dependency is unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/metrics": {
            "get": {
                "tags": ["Operations"],
                "summary": "Prometheus metrics",
                "produces": ["text/plain"],
                "responses": {
                    "200": {"description": "Prometheus exposition format"}
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["Operations"],
                "summary": "Request and submission counters as JSON",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enviar-email": {
            "get": {
                "tags": ["Quotes"],
                "summary": "Redirects visitors to the home page",
                "responses": {
                    "303": {"description": "Redirect"}
                }
            },
            "post": {
                "tags": ["Quotes"],
                "summary": "Submit a quote request (form action used by the website)",
                "consumes": ["multipart/form-data", "application/x-www-form-urlencoded"],
                "parameters": [
                    {"name": "name", "in": "formData", "type": "string", "required": true, "description": "Full name"},
                    {"name": "email", "in": "formData", "type": "string", "required": true, "description": "E-mail"},
                    {"name": "phone", "in": "formData", "type": "string", "required": true, "description": "Phone"},
                    {"name": "address", "in": "formData", "type": "string", "required": true, "description": "Address"},
                    {"name": "message", "in": "formData", "type": "string", "required": true, "description": "Project description"},
                    {"name": "project-type", "in": "formData", "type": "string", "required": true, "enum": ["reforma-completa", "reforma-parcial", "construcao", "manutencao", "servico-express", "outro"]},
                    {"name": "start-date", "in": "formData", "type": "string", "format": "date"},
                    {"name": "budget-range", "in": "formData", "type": "string"},
                    {"name": "city", "in": "formData", "type": "string"},
                    {"name": "services[]", "in": "formData", "type": "array", "items": {"type": "string"}, "collectionFormat": "multi"},
                    {"name": "attachments[]", "in": "formData", "type": "file", "description": "Photos, videos or PDFs"}
                ],
                "responses": {
                    "200": {"description": "Sent; data holds a QuoteResponse", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "303": {"description": "Redirect to the success or error page"},
                    "400": {"description": "Invalid form or spam", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Blocked client", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Mail transport failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/quotes": {
            "post": {
                "tags": ["Quotes"],
                "summary": "Submit a quote request",
                "description": "Clients sending Accept: application/json receive the response envelope; browsers are redirected.",
                "consumes": ["multipart/form-data", "application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "parameters": [
                    {"name": "name", "in": "formData", "type": "string", "required": true, "description": "Full name"},
                    {"name": "email", "in": "formData", "type": "string", "required": true, "description": "E-mail"},
                    {"name": "phone", "in": "formData", "type": "string", "required": true, "description": "Phone"},
                    {"name": "address", "in": "formData", "type": "string", "required": true, "description": "Address"},
                    {"name": "message", "in": "formData", "type": "string", "required": true, "description": "Project description"},
                    {"name": "project-type", "in": "formData", "type": "string", "required": true, "enum": ["reforma-completa", "reforma-parcial", "construcao", "manutencao", "servico-express", "outro"]},
                    {"name": "start-date", "in": "formData", "type": "string", "format": "date"},
                    {"name": "budget-range", "in": "formData", "type": "string"},
                    {"name": "city", "in": "formData", "type": "string"},
                    {"name": "services[]", "in": "formData", "type": "array", "items": {"type": "string"}, "collectionFormat": "multi"},
                    {"name": "attachments[]", "in": "formData", "type": "file", "description": "Photos, videos or PDFs"}
                ],
                "responses": {
                    "200": {"description": "Sent; data holds a QuoteResponse", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "303": {"description": "Redirect to the success or error page"},
                    "400": {"description": "Invalid form or spam", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Blocked client", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Mail transport failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "QuoteResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "format": "uuid"},
                "sent": {"type": "boolean"},
                "files": {"type": "integer"},
                "uploaded": {"type": "array", "items": {"type": "string"}},
                "warnings": {"type": "array", "items": {"type": "string"}},
                "city": {"type": "string"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "array", "items": {"type": "string"}}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
