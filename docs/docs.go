// Package docs holds the OpenAPI description of the worker's status API.
package docs

import _ "embed"

// SwaggerJSON is served at /docs/swagger.json and read by the swagger UI.
//
//go:embed swagger.json
var SwaggerJSON []byte
