package main

// General API documentation for swaggo. Handler annotations live in internal/httpapi.
//
// @title           ollamad API
// @version         1.0
// @description     Ollama-compatible HTTP API for serving local GGUF models.
//
// @contact.name   ollamad maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
