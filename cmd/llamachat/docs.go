package main

// General API documentation for swaggo. Regenerate docs/ with
// `swag init -g cmd/llamachat/docs.go` and build with -tags=swagger to serve it.
//
// @title           llamachat API
// @version         1.0
// @description     HTTP API for local llama.cpp generation and summarizing conversations.
//
// @contact.name   llamachat maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
