//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// apiDoc is the OpenAPI document served at /swagger/doc.json. It mirrors the
// godoc annotations on the handlers.
const apiDoc = `{
  "swagger": "2.0",
  "info": {"title": "ollamad API", "version": "1.0", "description": "Ollama-compatible API for local model serving."},
  "basePath": "/",
  "schemes": ["http"],
  "paths": {
    "/api/generate": {"post": {"tags": ["generation"], "summary": "Generate a completion", "consumes": ["application/json"], "produces": ["application/json", "application/x-ndjson"], "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}, "429": {"description": "Busy"}}}},
    "/api/chat": {"post": {"tags": ["generation"], "summary": "Chat completion", "consumes": ["application/json"], "produces": ["application/json", "application/x-ndjson"], "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}, "429": {"description": "Busy"}}}},
    "/api/tags": {"get": {"tags": ["models"], "summary": "List registered models", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}},
    "/api/search": {"get": {"tags": ["models"], "summary": "Search models by name", "parameters": [{"name": "q", "in": "query", "type": "string"}], "responses": {"200": {"description": "OK"}}}},
    "/api/stats": {"get": {"tags": ["models"], "summary": "Catalog statistics", "responses": {"200": {"description": "OK"}}}},
    "/api/ps": {"get": {"tags": ["models"], "summary": "Loaded models", "responses": {"200": {"description": "OK"}}}},
    "/api/unload": {"post": {"tags": ["models"], "summary": "Unload a model", "responses": {"200": {"description": "OK"}}}},
    "/api/delete": {"delete": {"tags": ["models"], "summary": "Delete a model record", "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}}
  }
}`

type staticDoc string

func (d staticDoc) ReadDoc() string { return string(d) }

func init() {
	swag.Register(swag.Name, staticDoc(apiDoc))
}

// MountSwagger serves the Swagger UI under /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}
