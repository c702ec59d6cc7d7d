package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// swaggerCSP relaxes the default Content-Security-Policy so the UI page can
// load swagger-ui-dist from unpkg.
const swaggerCSP = "default-src 'self'; script-src 'self' 'unsafe-inline' https://unpkg.com; " +
	"style-src 'self' 'unsafe-inline' https://unpkg.com; img-src 'self' data: https://unpkg.com"

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the mail service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(r gin.IRouter) {
	r.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Security-Policy", swaggerCSP)
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(swaggerHTML))
	})

	r.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>mail-service API docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "mail-service", "version": "v1" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer", "bearerFormat": "JWT" } },
    "schemas": {
      "Attachment": { "type": "object", "properties": { "name": {"type":"string"}, "size": {"type":"integer"}, "contentType": {"type":"string"} } },
      "Mail": {
        "type": "object",
        "properties": {
          "id": {"type":"string"}, "from": {"type":"string"},
          "to": {"type":"array","items":{"type":"string"}}, "cc": {"type":"array","items":{"type":"string"}}, "bcc": {"type":"array","items":{"type":"string"}},
          "subject": {"type":"string"}, "text": {"type":"string"}, "html": {"type":"string"},
          "status": {"type":"string","enum":["queued","sent","failed"]}, "error": {"type":"string"},
          "attachments": {"type":"array","items":{"$ref":"#/components/schemas/Attachment"}},
          "createdAt": {"type":"string","format":"date-time"}, "updatedAt": {"type":"string","format":"date-time"}, "sentAt": {"type":"string","format":"date-time"}
        }
      },
      "MailInput": {
        "type": "object", "required": ["subject"],
        "properties": {
          "from": {"type":"string"}, "to": {"type":"array","items":{"type":"string"}}, "cc": {"type":"array","items":{"type":"string"}}, "bcc": {"type":"array","items":{"type":"string"}},
          "subject": {"type":"string"}, "text": {"type":"string"}, "html": {"type":"string"}
        }
      },
      "MailPatch": {
        "type": "object",
        "properties": { "to": {"type":"array","items":{"type":"string"}}, "cc": {"type":"array","items":{"type":"string"}}, "bcc": {"type":"array","items":{"type":"string"}}, "subject": {"type":"string"}, "text": {"type":"string"}, "html": {"type":"string"}, "status": {"type":"string","enum":["queued","sent","failed"]}, "error": {"type":"string"} }
      },
      "Page": { "type": "object", "properties": { "items": {"type":"array","items":{"$ref":"#/components/schemas/Mail"}}, "page": {"type":"integer"}, "limit": {"type":"integer"}, "total": {"type":"integer"} } },
      "Error": { "type": "object", "properties": { "error": {"type":"string"} } }
    }
  },
  "security": [ { "bearer": [] } ],
  "paths": {
    "/v1/mail": {
      "get": {
        "summary": "List mails",
        "parameters": [
          {"name":"status","in":"query","schema":{"type":"string"}},
          {"name":"to","in":"query","schema":{"type":"string"}},
          {"name":"from","in":"query","schema":{"type":"string"}},
          {"name":"page","in":"query","schema":{"type":"integer","minimum":1,"default":1}},
          {"name":"limit","in":"query","schema":{"type":"integer","minimum":1,"maximum":100,"default":10}},
          {"name":"sort","in":"query","schema":{"type":"string"},"example":"-createdAt,subject"}
        ],
        "responses": { "200": { "description": "page of mails", "content": {"application/json":{"schema":{"$ref":"#/components/schemas/Page"}}} }, "400": { "description": "bad query" } }
      },
      "post": {
        "summary": "Queue a mail",
        "requestBody": { "content": { "application/json": { "schema": {"$ref":"#/components/schemas/MailInput"} } } },
        "responses": { "201": { "description": "created" }, "422": { "description": "validation failed" } }
      },
      "delete": {
        "summary": "Purge mails by status",
        "parameters": [ {"name":"status","in":"query","required":true,"schema":{"type":"string"}} ],
        "responses": { "200": { "description": "number of mails matched and deleted" } }
      }
    },
    "/v1/mail/stats": {
      "get": { "summary": "Count mails per status", "responses": { "200": { "description": "counts" } } }
    },
    "/v1/mail/{id}": {
      "parameters": [ {"name":"id","in":"path","required":true,"schema":{"type":"string"}} ],
      "get": { "summary": "Get a mail", "responses": { "200": { "description": "mail" }, "400": { "description": "invalid id" }, "404": { "description": "not found" } } },
      "patch": {
        "summary": "Update a mail",
        "requestBody": { "content": { "application/json": { "schema": {"$ref":"#/components/schemas/MailPatch"} } } },
        "responses": { "200": { "description": "updated mail" }, "404": { "description": "not found" }, "422": { "description": "validation failed" } }
      },
      "delete": { "summary": "Delete a mail", "responses": { "204": { "description": "deleted" }, "404": { "description": "not found" } } }
    },
    "/v1/mail/{id}/attachments": {
      "parameters": [ {"name":"id","in":"path","required":true,"schema":{"type":"string"}} ],
      "post": {
        "summary": "Upload an attachment",
        "requestBody": { "content": { "multipart/form-data": { "schema": { "type": "object", "properties": { "file": {"type":"string","format":"binary"} } } } } },
        "responses": { "201": { "description": "mail with attachment" }, "413": { "description": "too large" }, "501": { "description": "attachment storage not configured" } }
      }
    },
    "/v1/mail/{id}/attachments/{name}": {
      "parameters": [ {"name":"id","in":"path","required":true,"schema":{"type":"string"}}, {"name":"name","in":"path","required":true,"schema":{"type":"string"}} ],
      "get": { "summary": "Download an attachment", "responses": { "307": { "description": "redirect to a presigned URL" }, "404": { "description": "not found" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "security": [], "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "security": [], "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "security": [], "responses": { "200": { "description": "metrics" } } } }
  }
}`
