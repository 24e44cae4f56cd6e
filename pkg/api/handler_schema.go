package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/relay/pkg/schema"
)

// listSchemasHandler handles GET /api/v1/schemas.
func (s *Server) listSchemasHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, schema.Schemas())
}

// getSchemaHandler handles GET /api/v1/schemas/:type.
func (s *Server) getSchemaHandler(c *echo.Context) error {
	kind := schema.PayloadKind(c.Param("type"))
	desc, ok := schema.Schemas()[kind]
	if !ok {
		return notFound(c, "unknown payload type "+c.Param("type"))
	}
	return c.JSON(http.StatusOK, desc)
}
