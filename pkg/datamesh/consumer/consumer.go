// Package consumer drives the subscribing side of the mesh: requesting
// access to data products and mounting approved products into the local
// catalog.
package consumer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"

	"github.com/gubaruch/Data-mesh-util/pkg/awsconf"
	"github.com/gubaruch/Data-mesh-util/pkg/config"
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/catalog"
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/identity"
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/model"
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/shares"
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/tracker"
	"github.com/gubaruch/Data-mesh-util/pkg/retry"
)

// Consumer owns the clients a subscriber needs: its own account for
// accepting shares and mounting resource links, and the mesh account,
// reached through the consumer admin role, for the subscription table.
type Consumer struct {
	logger        *zap.Logger
	accountID     string
	meshAccountID string

	tracker      *tracker.Tracker
	meshCatalog  *catalog.Client
	localCatalog *catalog.Client
	localShares  *shares.Acceptor
	meshShares   *shares.Acceptor
}

// New resolves the caller account from localCfg and assumes the consumer
// admin role in the mesh account for every mesh-side client.
func New(ctx context.Context, logger *zap.Logger, localCfg aws.Config, mesh config.Mesh, dynamo config.DynamoDB) (*Consumer, error) {
	logger = logger.Named("consumer")

	accountID, err := awsconf.CallerAccount(ctx, localCfg)
	if err != nil {
		return nil, err
	}

	meshCfg := awsconf.AssumeRole(localCfg,
		identity.RoleArn(mesh.AccountID, identity.AdminConsumerRoleName),
		fmt.Sprintf("%s-%s", identity.AdminConsumerRoleName, accountID))

	meshCatalog := catalog.NewClient(logger, meshCfg)
	trk, err := tracker.New(ctx, logger, meshCfg, dynamo, accountID, meshCatalog)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		logger:        logger,
		accountID:     accountID,
		meshAccountID: mesh.AccountID,
		tracker:       trk,
		meshCatalog:   meshCatalog,
		localCatalog:  catalog.NewClient(logger, localCfg),
		localShares:   shares.NewAcceptor(logger, localCfg),
		meshShares:    shares.NewAcceptor(logger, meshCfg),
	}, nil
}

// RequestAccess records a pending subscription per requested table, or one
// database-level subscription when tables is empty. Object validation is
// suppressed: the producer decides at approval time whether the target
// exists. A request that already exists for a target returns that target's
// existing subscription.
func (c *Consumer) RequestAccess(ctx context.Context, ownerAccount, database string, tables []string, grants []model.Permission) ([]tracker.CreatedSubscription, error) {
	if len(grants) == 0 {
		return nil, fmt.Errorf("requesting access to %s requires at least one permission", database)
	}
	return c.tracker.CreateSubscriptionRequest(ctx, ownerAccount, database, tables, c.accountID, grants, true)
}

// GetSubscription fetches a subscription this account holds.
func (c *Consumer) GetSubscription(ctx context.Context, subscriptionID string) (*model.Subscription, error) {
	sub, err := c.tracker.GetSubscription(ctx, subscriptionID, false)
	if err != nil {
		return nil, err
	}
	if sub.SubscriberPrincipal != c.accountID {
		return nil, fmt.Errorf("%w: subscription %s belongs to %s",
			model.ErrNotSubscriptionOwner, subscriptionID, sub.SubscriberPrincipal)
	}
	return sub, nil
}

// ListProductAccess returns this account's subscriptions, optionally
// narrowed to one status.
func (c *Consumer) ListProductAccess(ctx context.Context, status model.Status) ([]model.Subscription, error) {
	return c.tracker.ListSubscriptions(ctx, tracker.Filter{
		PrincipalID: c.accountID,
		Status:      status,
	})
}

// FinalizeSubscription makes an approved subscription usable locally: the
// RAM share carrying the grant is accepted, a local database mirror is
// created, and resource links are mounted for the shared tables. Approval
// propagates asynchronously, so the acceptance is retried until the
// invitation arrives.
func (c *Consumer) FinalizeSubscription(ctx context.Context, subscriptionID string) error {
	sub, err := c.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status != model.StatusActive {
		return fmt.Errorf("%w: subscription %s is %s, not %s",
			model.ErrInvalidStateTransition, subscriptionID, sub.Status, model.StatusActive)
	}

	err = retry.Do(ctx, retry.DefaultAttempts, retry.DefaultBackoff, shares.NoInvitation,
		func(ctx context.Context) error {
			accepted, err := c.localShares.AcceptPending(ctx, c.meshAccountID, shares.LakeFormationShareNameFilter, "")
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

	desc := fmt.Sprintf("Data products subscribed to from account %s", sub.OwnerPrincipal)
	if err := c.localCatalog.GetOrCreateDatabase(ctx, sub.DatabaseName, desc, c.meshAccountID); err != nil {
		return err
	}

	tables := []string{sub.TableName}
	if sub.DatabaseLevel() {
		tables, err = c.meshCatalog.ListTables(ctx, sub.DatabaseName, "")
		if err != nil {
			return err
		}
	}
	for _, table := range tables {
		if err := c.localCatalog.CreateResourceLink(ctx, sub.DatabaseName, table, c.meshAccountID, sub.DatabaseName); err != nil {
			return err
		}
	}

	c.logger.Info("finalized subscription",
		zap.String("subscriptionId", subscriptionID),
		zap.String("database", sub.DatabaseName),
		zap.Int("tables", len(tables)))
	return nil
}

// DeleteSubscription releases this account's hold on a product: the shares
// backing it are left and the record is closed out. Revoking the grants
// themselves is the producer's side of the teardown.
func (c *Consumer) DeleteSubscription(ctx context.Context, subscriptionID, reason string) error {
	sub, err := c.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}

	if len(sub.RAMShares) > 0 {
		if err := c.meshShares.Leave(ctx, c.accountID, sub.RAMShares); err != nil {
			return err
		}
	}

	return c.tracker.DeleteSubscription(ctx, subscriptionID, reason)
}
