package main

// General API documentation for swaggo. Run `swag init -g cmd/insightd/docs.go -o internal/httpapi/docs` to regenerate.
//
// @title           insightd API
// @version         1.0
// @description     Device insights over pluggable AI providers and data sources.
//
// @contact.name   insightd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
