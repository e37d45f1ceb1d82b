package api

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/gubaruch/Data-mesh-util/services/subscription/api/subscriptions"
)

type API struct {
	logger *zap.Logger
	store  subscriptions.Store
}

func New(logger *zap.Logger, store subscriptions.Store) *API {
	return &API{
		logger: logger.Named("api"),
		store:  store,
	}
}

func (api *API) Register(e *echo.Echo) {
	subs := subscriptions.New(api.logger, api.store)
	subs.Register(e.Group("/api/v1/subscriptions"))
}
