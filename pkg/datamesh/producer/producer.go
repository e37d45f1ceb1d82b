// Package producer drives the data-product side of the mesh: publishing
// tables into the central catalog and answering access requests recorded by
// consumers.
package producer

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"

	"github.com/gubaruch/Data-mesh-util/pkg/awsconf"
	"github.com/gubaruch/Data-mesh-util/pkg/config"
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/bucketpolicy"
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/catalog"
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/identity"
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/model"
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/permissions"
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/shares"
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/tracker"
	"github.com/gubaruch/Data-mesh-util/pkg/retry"
)

var producerGrants = []model.Permission{
	model.PermissionSelect,
	model.PermissionInsert,
	model.PermissionAlter,
	model.PermissionDelete,
	model.PermissionDescribe,
}

// Producer owns the clients a data producer needs: its own account for the
// source catalog and bucket policies, and the mesh account, reached through
// the producer admin role, for the shared catalog and the subscription table.
type Producer struct {
	logger        *zap.Logger
	accountID     string
	meshAccountID string

	tracker      *tracker.Tracker
	meshPerms    *permissions.Gateway
	meshCatalog  *catalog.Client
	localCatalog *catalog.Client
	bucketPolicy *bucketpolicy.Editor
	localShares  *shares.Acceptor
	meshShares   *shares.Acceptor
}

// New resolves the caller account from localCfg and assumes the producer
// admin role in the mesh account for every mesh-side client.
func New(ctx context.Context, logger *zap.Logger, localCfg aws.Config, mesh config.Mesh, dynamo config.DynamoDB) (*Producer, error) {
	logger = logger.Named("producer")

	accountID, err := awsconf.CallerAccount(ctx, localCfg)
	if err != nil {
		return nil, err
	}

	meshCfg := awsconf.AssumeRole(localCfg,
		identity.RoleArn(mesh.AccountID, identity.AdminProducerRoleName),
		fmt.Sprintf("%s-%s", identity.AdminProducerRoleName, accountID))

	meshCatalog := catalog.NewClient(logger, meshCfg)
	trk, err := tracker.New(ctx, logger, meshCfg, dynamo, accountID, meshCatalog)
	if err != nil {
		return nil, err
	}

	return &Producer{
		logger:        logger,
		accountID:     accountID,
		meshAccountID: mesh.AccountID,
		tracker:       trk,
		meshPerms:     permissions.NewGateway(logger, meshCfg, mesh.AccountID),
		meshCatalog:   meshCatalog,
		localCatalog:  catalog.NewClient(logger, localCfg),
		bucketPolicy:  bucketpolicy.NewEditor(logger, localCfg, accountID),
		localShares:   shares.NewAcceptor(logger, localCfg),
		meshShares:    shares.NewAcceptor(logger, meshCfg),
	}, nil
}

// DataProductSpec names the source objects to publish. Tables wins over
// TablePrefix; with neither set every table in the database is offered.
type DataProductSpec struct {
	DatabaseName   string
	Tables         []string
	TablePrefix    string
	CrawlerRoleArn string
}

// MeshDatabaseName is the name a producer's database carries inside the mesh
// catalog. Suffixing the owning account keeps products from different
// producers apart.
func MeshDatabaseName(database, producerAccount string) string {
	return fmt.Sprintf("%s-%s", database, producerAccount)
}

// CreateDataProduct copies the named tables into the mesh catalog, opens the
// backing bucket to the mesh account, and grants the producer grantable
// permissions on the shared copies so it can later approve subscriptions.
// The call is re-runnable; objects already published are left alone.
func (p *Producer) CreateDataProduct(ctx context.Context, spec DataProductSpec) error {
	tables := spec.Tables
	if len(tables) == 0 {
		var err error
		tables, err = p.localCatalog.ListTables(ctx, spec.DatabaseName, spec.TablePrefix)
		if err != nil {
			return err
		}
	}
	if len(tables) == 0 {
		return fmt.Errorf("no tables to publish in database %s", spec.DatabaseName)
	}

	meshDB := MeshDatabaseName(spec.DatabaseName, p.accountID)
	desc := fmt.Sprintf("Data products shared by account %s from database %s", p.accountID, spec.DatabaseName)
	if err := p.meshCatalog.GetOrCreateDatabase(ctx, meshDB, desc, p.accountID); err != nil {
		return err
	}
	if err := p.localCatalog.GetOrCreateDatabase(ctx, meshDB, desc, p.meshAccountID); err != nil {
		return err
	}

	for _, table := range tables {
		if err := p.publishTable(ctx, spec, meshDB, table); err != nil {
			return err
		}
	}

	p.logger.Info("created data product",
		zap.String("database", spec.DatabaseName),
		zap.Int("tables", len(tables)))
	return nil
}

func (p *Producer) publishTable(ctx context.Context, spec DataProductSpec, meshDB, table string) error {
	def, err := p.localCatalog.GetTableDefinition(ctx, spec.DatabaseName, table)
	if err != nil {
		return err
	}

	location := ""
	if def.StorageDescriptor != nil {
		location = aws.ToString(def.StorageDescriptor.Location)
	}
	if location != "" {
		if err := p.bucketPolicy.AddAccessEntry(ctx, p.meshAccountID, location); err != nil {
			return err
		}
	}

	if err := p.meshCatalog.CopyTable(ctx, meshDB, def); err != nil {
		return err
	}

	outcome, err := p.meshPerms.Grant(ctx, p.accountID, meshDB, table, producerGrants, producerGrants)
	if err != nil {
		return err
	}
	if outcome == permissions.GrantCreated {
		// The cross-account grant raises a RAM invitation back to this
		// account; the shared table is unusable until it is accepted.
		err = retry.Do(ctx, retry.DefaultAttempts, retry.DefaultBackoff, shares.NoInvitation,
			func(ctx context.Context) error {
				accepted, err := p.localShares.AcceptPending(ctx, p.meshAccountID, shares.LakeFormationShareNameFilter, "")
				if err != nil {
					return err
				}
				if !accepted {
					return shares.ErrNoPendingInvitation
				}
				return nil
			})
		if err != nil {
			return err
		}
	}

	if err := p.localCatalog.CreateResourceLink(ctx, meshDB, table, p.meshAccountID, meshDB); err != nil {
		return err
	}

	if spec.CrawlerRoleArn != "" && location != "" {
		crawlerName := fmt.Sprintf("%s-%s", meshDB, table)
		if err := p.meshCatalog.GetOrCreateCrawler(ctx, crawlerName, spec.CrawlerRoleArn, meshDB, location); err != nil {
			return err
		}
	}
	return nil
}

// ListPendingAccessRequests returns the subscriptions awaiting this
// producer's decision.
func (p *Producer) ListPendingAccessRequests(ctx context.Context) ([]model.Subscription, error) {
	return p.tracker.ListSubscriptions(ctx, tracker.Filter{
		OwnerID: p.accountID,
		Status:  model.StatusPending,
	})
}

// GetSubscription fetches a subscription record after checking this producer
// owns the product it covers.
func (p *Producer) GetSubscription(ctx context.Context, subscriptionID string) (*model.Subscription, error) {
	sub, err := p.tracker.GetSubscription(ctx, subscriptionID, false)
	if err != nil {
		return nil, err
	}
	if sub.OwnerPrincipal != p.accountID {
		return nil, fmt.Errorf("%w: subscription %s belongs to %s",
			model.ErrNotSubscriptionOwner, subscriptionID, sub.OwnerPrincipal)
	}
	return sub, nil
}

// ApproveAccessRequest grants the subscriber the permitted permissions on
// the shared objects, resolves the RAM shares Lake Formation created for the
// grant, and moves the subscription to Active. An empty permittedGrants
// approves exactly what was requested.
func (p *Producer) ApproveAccessRequest(ctx context.Context, subscriptionID string, permittedGrants []model.Permission, notes string) (*model.Subscription, error) {
	sub, err := p.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	grants := permittedGrants
	if len(grants) == 0 {
		grants = sub.RequestedGrants
	}

	if err := p.grantSubscription(ctx, sub, grants); err != nil {
		return nil, err
	}

	ramShares, err := p.resolveShares(ctx, sub)
	if err != nil {
		return nil, err
	}

	err = p.tracker.UpdateStatus(ctx, subscriptionID, model.StatusActive, tracker.UpdateOptions{
		PermittedGrants: grants,
		RAMShares:       ramShares,
		Notes:           notes,
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("approved access request",
		zap.String("subscriptionId", subscriptionID),
		zap.String("subscriber", sub.SubscriberPrincipal),
		zap.Strings("grants", model.PermissionStrings(grants)))
	return p.tracker.GetSubscription(ctx, subscriptionID, true)
}

// grantSubscription applies grants on the subscription's target. A
// database-level subscription gets DESCRIBE on the database plus the data
// permissions across all of its tables; Lake Formation does not accept data
// permissions on the database resource itself.
func (p *Producer) grantSubscription(ctx context.Context, sub *model.Subscription, grants []model.Permission) error {
	if sub.DatabaseLevel() {
		if _, err := p.meshPerms.Grant(ctx, sub.SubscriberPrincipal, sub.DatabaseName, "",
			[]model.Permission{model.PermissionDescribe}, nil); err != nil {
			return err
		}
		_, err := p.meshPerms.Grant(ctx, sub.SubscriberPrincipal, sub.DatabaseName,
			permissions.TableWildcard, grants, grants)
		return err
	}
	_, err := p.meshPerms.Grant(ctx, sub.SubscriberPrincipal, sub.DatabaseName, sub.TableName, grants, grants)
	return err
}

// revokeSubscription is the inverse of grantSubscription.
func (p *Producer) revokeSubscription(ctx context.Context, sub *model.Subscription, grants []model.Permission) error {
	if sub.DatabaseLevel() {
		if err := p.meshPerms.Revoke(ctx, sub.SubscriberPrincipal, sub.DatabaseName,
			permissions.TableWildcard, model.WithDescribe(grants), grants); err != nil {
			return err
		}
		return p.meshPerms.Revoke(ctx, sub.SubscriberPrincipal, sub.DatabaseName, "",
			[]model.Permission{model.PermissionDescribe}, nil)
	}
	return p.meshPerms.Revoke(ctx, sub.SubscriberPrincipal, sub.DatabaseName, sub.TableName,
		model.WithDescribe(grants), grants)
}

// resolveShares finds the RAM share backing the subscriber's grant, retrying
// while the share has not yet propagated.
func (p *Producer) resolveShares(ctx context.Context, sub *model.Subscription) (map[string]string, error) {
	table := sub.TableName
	if sub.DatabaseLevel() {
		table = permissions.TableWildcard
	}

	var ramShares map[string]string
	err := retry.Do(ctx, retry.DefaultAttempts, retry.DefaultBackoff,
		func(err error) bool { return errors.Is(err, model.ErrShareNotFound) },
		func(ctx context.Context) error {
			var err error
			ramShares, err = p.meshPerms.LoadRAMShares(ctx, sub.DatabaseName, table, sub.SubscriberPrincipal)
			return err
		})
	if err != nil {
		return nil, err
	}
	return ramShares, nil
}

// DenyAccessRequest records a refusal. The reason is mandatory so the
// subscriber can see why before re-requesting is pointless.
func (p *Producer) DenyAccessRequest(ctx context.Context, subscriptionID, reason string) error {
	if reason == "" {
		return fmt.Errorf("denying subscription %s requires a reason", subscriptionID)
	}
	if _, err := p.GetSubscription(ctx, subscriptionID); err != nil {
		return err
	}
	return p.tracker.UpdateStatus(ctx, subscriptionID, model.StatusDenied, tracker.UpdateOptions{
		Notes: reason,
	})
}

// UpdateSubscriptionPermissions reshapes an active subscription's grants:
// permissions newly listed are granted, ones no longer listed are revoked,
// and the record is rewritten with the new set.
func (p *Producer) UpdateSubscriptionPermissions(ctx context.Context, subscriptionID string, grants []model.Permission, notes string) error {
	sub, err := p.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status != model.StatusActive {
		return fmt.Errorf("%w: cannot change grants while %s",
			model.ErrInvalidStateTransition, sub.Status)
	}

	added := permissionDelta(grants, sub.PermittedGrants)
	removed := permissionDelta(sub.PermittedGrants, grants)

	if len(added) > 0 {
		if err := p.grantSubscription(ctx, sub, added); err != nil {
			return err
		}
	}
	for _, perm := range removed {
		if err := p.revokeOne(ctx, sub, perm); err != nil {
			return err
		}
	}

	return p.tracker.UpdateGrants(ctx, subscriptionID, grants, notes)
}

// revokeOne removes a single permission without touching the DESCRIBE that
// keeps the object visible while the subscription stays active.
func (p *Producer) revokeOne(ctx context.Context, sub *model.Subscription, perm model.Permission) error {
	if perm == model.PermissionDescribe {
		return nil
	}
	table := sub.TableName
	if sub.DatabaseLevel() {
		table = permissions.TableWildcard
	}
	return p.meshPerms.Revoke(ctx, sub.SubscriberPrincipal, sub.DatabaseName, table,
		[]model.Permission{perm}, []model.Permission{perm})
}

// DeleteSubscription retires an active subscription from the producer side:
// grants are revoked, the shares Lake Formation raised for them are torn
// down, and the record is closed out.
func (p *Producer) DeleteSubscription(ctx context.Context, subscriptionID, reason string) error {
	sub, err := p.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}

	if sub.Status == model.StatusActive {
		if err := p.revokeSubscription(ctx, sub, sub.PermittedGrants); err != nil {
			return err
		}
		if err := p.meshShares.Leave(ctx, sub.SubscriberPrincipal, sub.RAMShares); err != nil {
			return err
		}
	}

	return p.tracker.DeleteSubscription(ctx, subscriptionID, reason)
}

// permissionDelta returns the members of a not present in b.
func permissionDelta(a, b []model.Permission) []model.Permission {
	var out []model.Permission
	for _, perm := range a {
		if !model.ContainsPermission(b, perm) {
			out = append(out, perm)
		}
	}
	return out
}
