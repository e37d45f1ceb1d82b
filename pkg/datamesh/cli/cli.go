// Package cli wires the data mesh operations into a cobra command tree. One
// binary serves all three personae; which account it acts for is decided by
// the credentials it runs under.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gubaruch/Data-mesh-util/pkg/awsconf"
	"github.com/gubaruch/Data-mesh-util/pkg/config"
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/admin"
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/consumer"
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/model"
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/producer"
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/tracker"
)

type options struct {
	meshAccountID string
	region        string
	table         string
	endpoint      string
}

func (o *options) mesh() config.Mesh {
	return config.Mesh{AccountID: o.meshAccountID, Region: o.region}
}

func (o *options) dynamo() config.DynamoDB {
	table := o.table
	if table == "" {
		table = tracker.DefaultTableName
	}
	return config.DynamoDB{Region: o.region, Table: table, Endpoint: o.endpoint}
}

func (o *options) awsConfig(ctx context.Context) (aws.Config, error) {
	return awsconf.GetConfig(ctx, o.region, "", "", "", "")
}

func Command() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:          "datamesh",
		Short:        "Manage data products and subscriptions in a Lake Formation data mesh",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.meshAccountID, "mesh-account", os.Getenv("DATAMESH_MESH_ACCOUNT"), "account id of the central mesh account")
	cmd.PersistentFlags().StringVar(&opts.region, "region", os.Getenv("AWS_REGION"), "aws region")
	cmd.PersistentFlags().StringVar(&opts.table, "table", "", "subscription table name override")
	cmd.PersistentFlags().StringVar(&opts.endpoint, "endpoint", "", "dynamodb endpoint override for local development")

	cmd.AddCommand(
		initMeshCommand(&opts),
		enableAccountCommand(&opts, "enable-producer"),
		enableAccountCommand(&opts, "enable-consumer"),
		createDataProductCommand(&opts),
		requestAccessCommand(&opts),
		listRequestsCommand(&opts),
		listSubscriptionsCommand(&opts),
		approveCommand(&opts),
		denyCommand(&opts),
		updateGrantsCommand(&opts),
		finalizeCommand(&opts),
		deleteSubscriptionCommand(&opts),
	)
	return cmd
}

func newLogger() (*zap.Logger, error) {
	return zap.NewProduction()
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func newAdmin(ctx context.Context, opts *options) (*admin.Admin, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	cfg, err := opts.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	return admin.New(ctx, logger, cfg, opts.dynamo())
}

func newProducer(ctx context.Context, opts *options) (*producer.Producer, error) {
	if opts.meshAccountID == "" {
		return nil, fmt.Errorf("--mesh-account is required")
	}
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	cfg, err := opts.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	return producer.New(ctx, logger, cfg, opts.mesh(), opts.dynamo())
}

func newConsumer(ctx context.Context, opts *options) (*consumer.Consumer, error) {
	if opts.meshAccountID == "" {
		return nil, fmt.Errorf("--mesh-account is required")
	}
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	cfg, err := opts.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	return consumer.New(ctx, logger, cfg, opts.mesh(), opts.dynamo())
}

func initMeshCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "init-mesh",
		Short: "Provision the mesh roles and subscription table in the current account",
		RunE: func(cmd *cobra.Command, args []string) error {
			adm, err := newAdmin(cmd.Context(), opts)
			if err != nil {
				return err
			}
			setup, err := adm.InitializeMeshAccount(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(setup)
		},
	}
}

func enableAccountCommand(opts *options, use string) *cobra.Command {
	var accountID string

	cmd := &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Trust an account to assume the %s-side admin role", use[len("enable-"):]),
		RunE: func(cmd *cobra.Command, args []string) error {
			adm, err := newAdmin(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if use == "enable-producer" {
				return adm.EnableAccountAsProducer(cmd.Context(), accountID)
			}
			return adm.EnableAccountAsConsumer(cmd.Context(), accountID)
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "account id to enable")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func createDataProductCommand(opts *options) *cobra.Command {
	var spec producer.DataProductSpec

	cmd := &cobra.Command{
		Use:   "create-data-product",
		Short: "Publish tables from the current account into the mesh catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			prod, err := newProducer(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return prod.CreateDataProduct(cmd.Context(), spec)
		},
	}
	cmd.Flags().StringVar(&spec.DatabaseName, "database", "", "source database name")
	cmd.Flags().StringSliceVar(&spec.Tables, "tables", nil, "tables to publish, all when empty")
	cmd.Flags().StringVar(&spec.TablePrefix, "table-prefix", "", "publish tables matching this prefix")
	cmd.Flags().StringVar(&spec.CrawlerRoleArn, "crawler-role-arn", "", "create a crawler per table using this role")
	_ = cmd.MarkFlagRequired("database")
	return cmd
}

func requestAccessCommand(opts *options) *cobra.Command {
	var (
		owner    string
		database string
		tables   []string
		grants   []string
	)

	cmd := &cobra.Command{
		Use:   "request-access",
		Short: "Request a subscription to a data product",
		RunE: func(cmd *cobra.Command, args []string) error {
			cons, err := newConsumer(cmd.Context(), opts)
			if err != nil {
				return err
			}
			perms, err := model.ParsePermissions(grants)
			if err != nil {
				return err
			}
			created, err := cons.RequestAccess(cmd.Context(), owner, database, tables, perms)
			if err != nil {
				return err
			}
			return printJSON(created)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "account id owning the product")
	cmd.Flags().StringVar(&database, "database", "", "mesh database name")
	cmd.Flags().StringSliceVar(&tables, "tables", nil, "tables to subscribe to, whole database when empty")
	cmd.Flags().StringSliceVar(&grants, "grants", []string{string(model.PermissionSelect)}, "permissions to request")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("database")
	return cmd
}

func listRequestsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list-requests",
		Short: "List access requests pending this producer's decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			prod, err := newProducer(cmd.Context(), opts)
			if err != nil {
				return err
			}
			subs, err := prod.ListPendingAccessRequests(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(subs)
		},
	}
}

func listSubscriptionsCommand(opts *options) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list-subscriptions",
		Short: "List this account's subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cons, err := newConsumer(cmd.Context(), opts)
			if err != nil {
				return err
			}
			var st model.Status
			if status != "" {
				st, err = model.ParseStatus(status)
				if err != nil {
					return err
				}
			}
			subs, err := cons.ListProductAccess(cmd.Context(), st)
			if err != nil {
				return err
			}
			return printJSON(subs)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "narrow to one status")
	return cmd
}

func approveCommand(opts *options) *cobra.Command {
	var (
		id     string
		grants []string
		notes  string
	)

	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Approve an access request and grant the subscriber",
		RunE: func(cmd *cobra.Command, args []string) error {
			prod, err := newProducer(cmd.Context(), opts)
			if err != nil {
				return err
			}
			var perms []model.Permission
			if len(grants) > 0 {
				perms, err = model.ParsePermissions(grants)
				if err != nil {
					return err
				}
			}
			sub, err := prod.ApproveAccessRequest(cmd.Context(), id, perms, notes)
			if err != nil {
				return err
			}
			return printJSON(sub)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "subscription id")
	cmd.Flags().StringSliceVar(&grants, "grants", nil, "permissions to permit, the requested set when empty")
	cmd.Flags().StringVar(&notes, "notes", "", "approval note")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func denyCommand(opts *options) *cobra.Command {
	var id, reason string

	cmd := &cobra.Command{
		Use:   "deny",
		Short: "Deny an access request",
		RunE: func(cmd *cobra.Command, args []string) error {
			prod, err := newProducer(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return prod.DenyAccessRequest(cmd.Context(), id, reason)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "subscription id")
	cmd.Flags().StringVar(&reason, "reason", "", "why the request is refused")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func updateGrantsCommand(opts *options) *cobra.Command {
	var (
		id     string
		grants []string
		notes  string
	)

	cmd := &cobra.Command{
		Use:   "update-grants",
		Short: "Reshape the permissions of an active subscription",
		RunE: func(cmd *cobra.Command, args []string) error {
			prod, err := newProducer(cmd.Context(), opts)
			if err != nil {
				return err
			}
			perms, err := model.ParsePermissions(grants)
			if err != nil {
				return err
			}
			return prod.UpdateSubscriptionPermissions(cmd.Context(), id, perms, notes)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "subscription id")
	cmd.Flags().StringSliceVar(&grants, "grants", nil, "the new permitted permissions")
	cmd.Flags().StringVar(&notes, "notes", "", "change note")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("grants")
	return cmd
}

func finalizeCommand(opts *options) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "finalize",
		Short: "Accept the shares of an approved subscription and mount resource links",
		RunE: func(cmd *cobra.Command, args []string) error {
			cons, err := newConsumer(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return cons.FinalizeSubscription(cmd.Context(), id)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "subscription id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func deleteSubscriptionCommand(opts *options) *cobra.Command {
	var (
		id      string
		reason  string
		asOwner bool
	)

	cmd := &cobra.Command{
		Use:   "delete-subscription",
		Short: "Retire a subscription from either side",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if asOwner {
				prod, err := newProducer(ctx, opts)
				if err != nil {
					return err
				}
				return prod.DeleteSubscription(ctx, id, reason)
			}
			cons, err := newConsumer(ctx, opts)
			if err != nil {
				return err
			}
			return cons.DeleteSubscription(ctx, id, reason)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "subscription id")
	cmd.Flags().StringVar(&reason, "reason", "", "why the subscription ends")
	cmd.Flags().BoolVar(&asOwner, "as-owner", false, "run the producer-side teardown, revoking grants")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}
