package api

import (
	"context"
	"fmt"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/gubaruch/Data-mesh-util/pkg/awsconf"
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/catalog"
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/tracker"
	"github.com/gubaruch/Data-mesh-util/services/subscription/config"
)

type HttpServer struct {
	logger *zap.Logger
	api    *API
}

// InitializeHttpServer builds the tracker against the configured table and
// wires the subscription API on top of it. The service runs inside the mesh
// account, so the default credential chain is used as-is.
func InitializeHttpServer(
	ctx context.Context,
	logger *zap.Logger,
	cnf config.SubscriptionConfig,
) (*HttpServer, error) {
	logger.Info("Initializing http server")

	cfg, err := awsconf.GetConfig(ctx, cnf.Mesh.Region, "", "", "", "")
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	meshCatalog := catalog.NewClient(logger, cfg)
	trk, err := tracker.New(ctx, logger, cfg, cnf.DynamoDB, cnf.Mesh.AccountID, meshCatalog)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize subscription tracker: %w", err)
	}

	return &HttpServer{
		logger: logger,
		api:    New(logger, trk),
	}, nil
}

func (s *HttpServer) Register(e *echo.Echo) {
	s.api.Register(e)
}
