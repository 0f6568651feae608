package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/habitnudge/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// RegisterDocs serves the OpenAPI document at /docs/swagger.json and the
// swagger UI under /swagger/.
func RegisterDocs(r gin.IRouter) {
	// Served outside /swagger/* to avoid clashing with the UI wildcard.
	r.GET("/docs/swagger.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", docs.SwaggerJSON)
	})

	url := ginSwagger.URL("/docs/swagger.json")
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, url))
}
