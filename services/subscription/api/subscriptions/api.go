package subscriptions

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/model"
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/tracker"
	"github.com/gubaruch/Data-mesh-util/pkg/httpserver"
	"github.com/gubaruch/Data-mesh-util/services/subscription/api/entities"
)

// Store is the slice of the subscription tracker the HTTP layer uses.
type Store interface {
	CreateSubscriptionRequest(ctx context.Context, owner, database string, tables []string, principal string, requestedGrants []model.Permission, suppressObjectValidation bool) ([]tracker.CreatedSubscription, error)
	GetSubscription(ctx context.Context, id string, force bool) (*model.Subscription, error)
	ListSubscriptions(ctx context.Context, filter tracker.Filter) ([]model.Subscription, error)
	UpdateStatus(ctx context.Context, id string, status model.Status, opts tracker.UpdateOptions) error
	UpdateGrants(ctx context.Context, id string, permittedGrants []model.Permission, note string) error
	DeleteSubscription(ctx context.Context, id, reason string) error
}

type API struct {
	logger *zap.Logger
	store  Store
}

func New(logger *zap.Logger, store Store) API {
	return API{
		logger: logger.Named("subscriptions"),
		store:  store,
	}
}

func (h API) Register(g *echo.Group) {
	g.POST("", h.CreateSubscription)
	g.GET("", h.ListSubscriptions)
	g.GET("/:id", h.GetSubscription)
	g.POST("/:id/approve", h.ApproveSubscription)
	g.POST("/:id/deny", h.DenySubscription)
	g.PUT("/:id/grants", h.UpdateGrants)
	g.DELETE("/:id", h.DeleteSubscription)
}

// CreateSubscription godoc
//
//	@Summary	Request access to a data product
//	@Tags		subscriptions
//	@Accept		json
//	@Produce	json
//	@Param		request	body		entities.CreateSubscriptionRequest	true	"Request"
//	@Success	200		{object}	entities.CreateSubscriptionResponse
//	@Router		/api/v1/subscriptions [post]
func (h API) CreateSubscription(c echo.Context) error {
	var req entities.CreateSubscriptionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	grants, err := model.ParsePermissions(req.RequestedGrants)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	created, err := h.store.CreateSubscriptionRequest(c.Request().Context(),
		req.OwnerAccountID, req.DatabaseName, req.Tables,
		req.SubscriberPrincipal, grants, req.SuppressObjectValidation)
	if err != nil {
		return h.mapError(err)
	}

	resp := entities.CreateSubscriptionResponse{}
	for _, sub := range created {
		resp.Subscriptions = append(resp.Subscriptions, entities.CreatedSubscription{
			Target:         sub.Target,
			SubscriptionID: sub.SubscriptionID,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// GetSubscription godoc
//
//	@Summary	Get one subscription
//	@Tags		subscriptions
//	@Produce	json
//	@Param		id		path		string	true	"Subscription id"
//	@Param		force	query		bool	false	"Read with strong consistency"
//	@Success	200		{object}	entities.GetSubscriptionResponse
//	@Router		/api/v1/subscriptions/{id} [get]
func (h API) GetSubscription(c echo.Context) error {
	force := c.QueryParam("force") == "true"

	sub, err := h.store.GetSubscription(c.Request().Context(), c.Param("id"), force)
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusOK, entities.GetSubscriptionResponse{Subscription: *sub})
}

// ListSubscriptions godoc
//
//	@Summary	List subscriptions by owner or subscriber
//	@Tags		subscriptions
//	@Produce	json
//	@Param		owner		query		string	false	"Owning account id"
//	@Param		principal	query		string	false	"Subscribing account id"
//	@Param		database	query		string	false	"Database name"
//	@Param		table		query		[]string	false	"Table names"
//	@Param		grant		query		[]string	false	"Required grants"
//	@Param		status		query		string	false	"Subscription status"
//	@Success	200			{object}	entities.ListSubscriptionsResponse
//	@Router		/api/v1/subscriptions [get]
func (h API) ListSubscriptions(c echo.Context) error {
	filter := tracker.Filter{
		OwnerID:      c.QueryParam("owner"),
		PrincipalID:  c.QueryParam("principal"),
		DatabaseName: c.QueryParam("database"),
		Tables:       httpserver.QueryArrayParam(c, "table"),
	}

	if grants := httpserver.QueryArrayParam(c, "grant"); len(grants) > 0 {
		parsed, err := model.ParsePermissions(grants)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		filter.IncludesGrants = parsed
	}
	if status := c.QueryParam("status"); status != "" {
		parsed, err := model.ParseStatus(status)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		filter.Status = parsed
	}

	subs, err := h.store.ListSubscriptions(c.Request().Context(), filter)
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusOK, entities.ListSubscriptionsResponse{Subscriptions: subs})
}

// ApproveSubscription godoc
//
//	@Summary	Move a subscription to Active
//	@Tags		subscriptions
//	@Accept		json
//	@Produce	json
//	@Param		id		path	string								true	"Subscription id"
//	@Param		request	body	entities.ApproveSubscriptionRequest	true	"Request"
//	@Success	200		{object}	entities.GetSubscriptionResponse
//	@Router		/api/v1/subscriptions/{id}/approve [post]
func (h API) ApproveSubscription(c echo.Context) error {
	var req entities.ApproveSubscriptionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	id := c.Param("id")
	ctx := c.Request().Context()

	sub, err := h.store.GetSubscription(ctx, id, false)
	if err != nil {
		return h.mapError(err)
	}

	grants := sub.RequestedGrants
	if len(req.PermittedGrants) > 0 {
		grants, err = model.ParsePermissions(req.PermittedGrants)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	err = h.store.UpdateStatus(ctx, id, model.StatusActive, tracker.UpdateOptions{
		PermittedGrants: grants,
		RAMShares:       req.RAMShares,
		Notes:           req.Notes,
	})
	if err != nil {
		return h.mapError(err)
	}

	updated, err := h.store.GetSubscription(ctx, id, true)
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusOK, entities.GetSubscriptionResponse{Subscription: *updated})
}

// DenySubscription godoc
//
//	@Summary	Deny a pending subscription
//	@Tags		subscriptions
//	@Accept		json
//	@Param		id		path	string							true	"Subscription id"
//	@Param		request	body	entities.DenySubscriptionRequest	true	"Request"
//	@Success	204
//	@Router		/api/v1/subscriptions/{id}/deny [post]
func (h API) DenySubscription(c echo.Context) error {
	var req entities.DenySubscriptionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	err := h.store.UpdateStatus(c.Request().Context(), c.Param("id"), model.StatusDenied, tracker.UpdateOptions{
		Notes: req.Reason,
	})
	if err != nil {
		return h.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// UpdateGrants godoc
//
//	@Summary	Rewrite an active subscription's permitted grants
//	@Tags		subscriptions
//	@Accept		json
//	@Param		id		path	string						true	"Subscription id"
//	@Param		request	body	entities.UpdateGrantsRequest	true	"Request"
//	@Success	204
//	@Router		/api/v1/subscriptions/{id}/grants [put]
func (h API) UpdateGrants(c echo.Context) error {
	var req entities.UpdateGrantsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	grants, err := model.ParsePermissions(req.PermittedGrants)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	err = h.store.UpdateGrants(c.Request().Context(), c.Param("id"), grants, req.Notes)
	if err != nil {
		return h.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteSubscription godoc
//
//	@Summary	Soft delete a subscription
//	@Tags		subscriptions
//	@Accept		json
//	@Param		id		path	string								true	"Subscription id"
//	@Param		request	body	entities.DeleteSubscriptionRequest	true	"Request"
//	@Success	204
//	@Router		/api/v1/subscriptions/{id} [delete]
func (h API) DeleteSubscription(c echo.Context) error {
	var req entities.DeleteSubscriptionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	err := h.store.DeleteSubscription(c.Request().Context(), c.Param("id"), req.Reason)
	if err != nil {
		return h.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// mapError translates store failures into HTTP statuses: missing records are
// 404, rejected state changes are 409, everything else is a 500 the
// middleware logs.
func (h API) mapError(err error) error {
	switch {
	case errors.Is(err, model.ErrSubscriptionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrObjectNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrInvalidStateTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		h.logger.Error("subscription store call failed", zap.Error(err))
		return err
	}
}
