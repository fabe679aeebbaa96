package swagger

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"
)

func Handler() http.Handler {
	// UI reads the document served by the router
	return httpSwagger.Handler(
		httpSwagger.URL("/openapi.yml"), // served at root by the router
	)
}
