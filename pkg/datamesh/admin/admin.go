// Package admin bootstraps the central mesh account: the mesh roles, the
// Lake Formation administrator settings, and the subscription table.
package admin

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"

	"github.com/gubaruch/Data-mesh-util/pkg/awsconf"
	"github.com/gubaruch/Data-mesh-util/pkg/config"
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/catalog"
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/identity"
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/permissions"
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/tracker"
)

// Admin operates directly inside the mesh account with administrator
// credentials. It is the only component that touches IAM and the data lake
// settings.
type Admin struct {
	logger    *zap.Logger
	accountID string
	callerArn string
	cfg       aws.Config
	dynamo    config.DynamoDB

	provisioner *identity.Provisioner
	perms       *permissions.Gateway
}

// New resolves the caller's account and principal from cfg. The credentials
// must belong to the mesh account itself.
func New(ctx context.Context, logger *zap.Logger, cfg aws.Config, dynamo config.DynamoDB) (*Admin, error) {
	logger = logger.Named("admin")

	accountID, callerArn, err := awsconf.CallerIdentity(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &Admin{
		logger:      logger,
		accountID:   accountID,
		callerArn:   callerArn,
		cfg:         cfg,
		dynamo:      dynamo,
		provisioner: identity.NewProvisioner(logger, cfg, accountID),
		perms:       permissions.NewGateway(logger, cfg, accountID),
	}, nil
}

// MeshSetup reports what InitializeMeshAccount provisioned.
type MeshSetup struct {
	AccountID            string            `json:"accountId"`
	ManagerRoleArn       string            `json:"managerRoleArn"`
	AdminProducerRoleArn string            `json:"adminProducerRoleArn"`
	AdminConsumerRoleArn string            `json:"adminConsumerRoleArn"`
	SubscriptionTable    tracker.TableInfo `json:"subscriptionTable"`
}

// InitializeMeshAccount provisions the mesh roles, installs the manager and
// the caller as data lake administrators, opens database creation to the
// producer admin role, and bootstraps the subscription table. Every step is
// idempotent, so a partial earlier run is simply completed.
func (a *Admin) InitializeMeshAccount(ctx context.Context) (*MeshSetup, error) {
	tmplCfg := identity.TemplateConfig{DataMeshAccountID: a.accountID}

	managerArn, err := a.provisioner.ConfigureRole(ctx, identity.RoleSpec{
		RoleName:       identity.ManagerRoleName,
		RoleDesc:       "Administers the data mesh account",
		PolicyName:     identity.ManagerRoleName + "Policy",
		PolicyDesc:     "Data mesh manager permissions",
		PolicyTemplate: "data_mesh_manager_policy.json.tmpl",
		Config:         tmplCfg,
	})
	if err != nil {
		return nil, err
	}

	if err := a.perms.SetDataLakeAdmins(ctx, managerArn, a.callerArn); err != nil {
		return nil, err
	}

	producerArn, err := a.provisioner.ConfigureRole(ctx, identity.RoleSpec{
		RoleName:       identity.AdminProducerRoleName,
		RoleDesc:       "Assumed by producer accounts to publish data products",
		PolicyName:     identity.AdminProducerRoleName + "Policy",
		PolicyDesc:     "Producer-side mesh permissions",
		PolicyTemplate: "producer_policy.json.tmpl",
		Config:         tmplCfg,
	})
	if err != nil {
		return nil, err
	}
	if err := a.perms.GrantCreateDatabase(ctx, producerArn); err != nil {
		return nil, err
	}

	consumerArn, err := a.provisioner.ConfigureRole(ctx, identity.RoleSpec{
		RoleName:       identity.AdminConsumerRoleName,
		RoleDesc:       "Assumed by consumer accounts to subscribe to data products",
		PolicyName:     identity.AdminConsumerRoleName + "Policy",
		PolicyDesc:     "Consumer-side mesh permissions",
		PolicyTemplate: "consumer_policy.json.tmpl",
		Config:         tmplCfg,
	})
	if err != nil {
		return nil, err
	}

	meshCatalog := catalog.NewClient(a.logger, a.cfg)
	trk, err := tracker.New(ctx, a.logger, a.cfg, a.dynamo, a.accountID, meshCatalog)
	if err != nil {
		return nil, err
	}

	setup := &MeshSetup{
		AccountID:            a.accountID,
		ManagerRoleArn:       managerArn,
		AdminProducerRoleArn: producerArn,
		AdminConsumerRoleArn: consumerArn,
		SubscriptionTable:    trk.TableInfo(),
	}
	a.logger.Info("initialized mesh account",
		zap.String("account", a.accountID),
		zap.String("managerRole", managerArn))
	return setup, nil
}

// EnableAccountAsProducer lets accountID assume the producer admin role.
func (a *Admin) EnableAccountAsProducer(ctx context.Context, accountID string) error {
	if err := a.enable(ctx, identity.AdminProducerRoleName, accountID); err != nil {
		return err
	}
	a.logger.Info("enabled producer account", zap.String("account", accountID))
	return nil
}

// EnableAccountAsConsumer lets accountID assume the consumer admin role.
func (a *Admin) EnableAccountAsConsumer(ctx context.Context, accountID string) error {
	if err := a.enable(ctx, identity.AdminConsumerRoleName, accountID); err != nil {
		return err
	}
	a.logger.Info("enabled consumer account", zap.String("account", accountID))
	return nil
}

func (a *Admin) enable(ctx context.Context, roleName, accountID string) error {
	exists, err := a.provisioner.RoleExists(ctx, roleName)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("role %s is missing, initialize the mesh account first", roleName)
	}
	return a.provisioner.AddTrust(ctx, roleName, accountID)
}
