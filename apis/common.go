package apis

import (
	"net/http"

	"github.com/gorilla/mux"
)

// MethodHandlers is a DICT of method-endpoint handler.
type MethodHandlers map[string]http.HandlerFunc

// RegisterPathPrefix registers a new method handler set for an end-point.
func RegisterPathPrefix(
	parentRouter *mux.Router, pathPrefix string, methodHandlers MethodHandlers,
) *mux.Router {
	router := parentRouter.PathPrefix(pathPrefix).Subrouter()
	for method, handler := range methodHandlers {
		router.Methods(method).Path("").HandlerFunc(handler)
	}
	return router
}
