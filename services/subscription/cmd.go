package subscription

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gubaruch/Data-mesh-util/pkg/config"
	"github.com/gubaruch/Data-mesh-util/pkg/httpserver"
	"github.com/gubaruch/Data-mesh-util/services/subscription/api"
	config2 "github.com/gubaruch/Data-mesh-util/services/subscription/config"
)

func SubscriptionServiceCommand() *cobra.Command {
	var cnf config2.SubscriptionConfig
	defaultCnf := config2.SubscriptionConfig{
		DynamoDB: config.DynamoDB{Table: "AwsDataMeshSubscriptions"},
		Http:     config.HttpServer{Address: "localhost:8000"},
	}

	cmd := &cobra.Command{
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ReadFromEnv("SUBSCRIPTION", defaultCnf, &cnf); err != nil {
				return err
			}

			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}

			cmd.SilenceUsage = true

			handler, err := api.InitializeHttpServer(cmd.Context(), logger, cnf)
			if err != nil {
				return err
			}

			return httpserver.RegisterAndStart(logger, cnf.Http.Address, handler)
		},
	}

	return cmd
}
