package tracker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
	"github.com/ory/dockertest/v3"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/gubaruch/Data-mesh-util/pkg/config"
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/model"
)

const (
	meshAccount     = "887210671223"
	producerAccount = "600214582022"
	consumerAccount = "206160724517"
)

type TrackerSuite struct {
	suite.Suite

	tracker *Tracker
}

func (s *TrackerSuite) SetupSuite() {
	t := s.T()
	require := s.Require()

	pool, err := dockertest.NewPool("")
	require.NoError(err, "connect to docker")

	dynamoDocker, err := pool.Run("amazon/dynamodb-local", "latest", nil)
	require.NoError(err, "start dynamodb-local")

	t.Cleanup(func() {
		err := pool.Purge(dynamoDocker)
		require.NoError(err, "purge dynamoDocker %s", dynamoDocker)
	})

	endpoint := fmt.Sprintf("http://localhost:%s", dynamoDocker.GetPort("8000/tcp"))
	cfg := aws.Config{
		Region:      "eu-west-1",
		Credentials: credentials.NewStaticCredentialsProvider("local", "local", ""),
	}

	// the container might not be ready to accept connections yet
	err = pool.Retry(func() error {
		client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
		_, err := client.ListTables(context.Background(), &dynamodb.ListTablesInput{})
		return err
	})
	require.NoError(err, "wait for dynamodb-local")

	logger, err := zap.NewDevelopment()
	require.NoError(err)

	s.tracker, err = New(context.Background(), logger, cfg, config.DynamoDB{
		Region:   "eu-west-1",
		Table:    DefaultTableName,
		Endpoint: endpoint,
	}, meshAccount, nil)
	require.NoError(err, "bootstrap tracker table")
}

func (s *TrackerSuite) TestBootstrapIdempotent() {
	require := s.Require()

	logger := zap.NewNop()
	info, err := ensureTable(context.Background(), logger, s.tracker.client, s.tracker.tableName)
	require.NoError(err)
	require.Equal(s.tracker.info.TableArn, info.TableArn)
}

func (s *TrackerSuite) TestSubscriptionLifecycle() {
	require := s.Require()
	assert := s.Assert()
	ctx := context.Background()

	grants := []model.Permission{model.PermissionDescribe, model.PermissionSelect}
	created, err := s.tracker.CreateSubscriptionRequest(ctx,
		producerAccount, "tpcds", []string{"customer"}, consumerAccount, grants, true)
	require.NoError(err)
	require.Len(created, 1)
	assert.Equal("customer", created[0].Target)

	id := created[0].SubscriptionID

	sub, err := s.tracker.GetSubscription(ctx, id, false)
	require.NoError(err)
	assert.Equal(model.StatusPending, sub.Status)
	assert.Equal(consumerAccount, sub.SubscriberPrincipal)
	assert.ElementsMatch(grants, sub.RequestedGrants)

	err = s.tracker.UpdateStatus(ctx, id, model.StatusActive, UpdateOptions{
		PermittedGrants: grants,
		RAMShares:       map[string]string{"customer": "arn:aws:ram:eu-west-1:887210671223:resource-share/abc"},
		Notes:           "OK",
	})
	require.NoError(err)

	sub, err = s.tracker.GetSubscription(ctx, id, false)
	require.NoError(err)
	assert.Equal(model.StatusActive, sub.Status)
	assert.ElementsMatch(grants, sub.PermittedGrants)
	assert.Contains(sub.RAMShares, "customer")
	assert.Contains(sub.Notes, "OK")

	newGrants := []model.Permission{model.PermissionSelect, model.PermissionDescribe, model.PermissionInsert}
	err = s.tracker.UpdateGrants(ctx, id, newGrants, "expanded for loads")
	require.NoError(err)

	sub, err = s.tracker.GetSubscription(ctx, id, false)
	require.NoError(err)
	assert.ElementsMatch(newGrants, sub.PermittedGrants)
	assert.Equal(model.StatusActive, sub.Status)

	err = s.tracker.DeleteSubscription(ctx, id, "no longer needed")
	require.NoError(err)

	sub, err = s.tracker.GetSubscription(ctx, id, true)
	require.NoError(err)
	assert.Equal(model.StatusDeleted, sub.Status)
	assert.Contains(sub.Notes, "no longer needed")
}

func (s *TrackerSuite) TestDuplicateRequestCollapse() {
	require := s.Require()
	ctx := context.Background()

	grants := []model.Permission{model.PermissionDescribe}
	first, err := s.tracker.CreateSubscriptionRequest(ctx,
		producerAccount, "tpcds", []string{"store_sales"}, consumerAccount, grants, true)
	require.NoError(err)

	second, err := s.tracker.CreateSubscriptionRequest(ctx,
		producerAccount, "tpcds", []string{"store_sales"}, consumerAccount, grants, true)
	require.NoError(err)

	require.Equal(first[0].SubscriptionID, second[0].SubscriptionID)
}

func (s *TrackerSuite) TestDeleteAllowsNewRequest() {
	require := s.Require()
	ctx := context.Background()

	grants := []model.Permission{model.PermissionDescribe}
	first, err := s.tracker.CreateSubscriptionRequest(ctx,
		producerAccount, "tpcds", []string{"item"}, consumerAccount, grants, true)
	require.NoError(err)
	id := first[0].SubscriptionID

	require.NoError(s.tracker.UpdateStatus(ctx, id, model.StatusActive, UpdateOptions{PermittedGrants: grants}))
	require.NoError(s.tracker.DeleteSubscription(ctx, id, "retired"))

	second, err := s.tracker.CreateSubscriptionRequest(ctx,
		producerAccount, "tpcds", []string{"item"}, consumerAccount, grants, true)
	require.NoError(err)
	require.NotEqual(id, second[0].SubscriptionID)
}

func (s *TrackerSuite) TestStateMachineLegality() {
	require := s.Require()
	ctx := context.Background()

	newSub := func(table string) string {
		created, err := s.tracker.CreateSubscriptionRequest(ctx,
			producerAccount, "statemachine", []string{table}, consumerAccount,
			[]model.Permission{model.PermissionDescribe}, true)
		require.NoError(err)
		return created[0].SubscriptionID
	}

	// Pending -> Deleted is illegal
	id := newSub("t1")
	err := s.tracker.UpdateStatus(ctx, id, model.StatusDeleted, UpdateOptions{Notes: "nope"})
	require.ErrorIs(err, model.ErrInvalidStateTransition)

	// Pending -> Denied -> Active is legal, reversing a denial
	id = newSub("t2")
	require.NoError(s.tracker.UpdateStatus(ctx, id, model.StatusDenied, UpdateOptions{Notes: "not yet"}))
	require.NoError(s.tracker.UpdateStatus(ctx, id, model.StatusActive, UpdateOptions{}))

	// Denied -> Deleted is not permitted
	id = newSub("t3")
	require.NoError(s.tracker.UpdateStatus(ctx, id, model.StatusDenied, UpdateOptions{Notes: "no"}))
	err = s.tracker.UpdateStatus(ctx, id, model.StatusDeleted, UpdateOptions{Notes: "cleanup"})
	require.ErrorIs(err, model.ErrInvalidStateTransition)

	// Active -> Denied is illegal
	id = newSub("t4")
	require.NoError(s.tracker.UpdateStatus(ctx, id, model.StatusActive, UpdateOptions{}))
	err = s.tracker.UpdateStatus(ctx, id, model.StatusDenied, UpdateOptions{Notes: "late"})
	require.ErrorIs(err, model.ErrInvalidStateTransition)

	// Deleted is terminal
	id = newSub("t5")
	require.NoError(s.tracker.UpdateStatus(ctx, id, model.StatusActive, UpdateOptions{}))
	require.NoError(s.tracker.DeleteSubscription(ctx, id, "done"))
	err = s.tracker.UpdateStatus(ctx, id, model.StatusActive, UpdateOptions{})
	require.ErrorIs(err, model.ErrInvalidStateTransition)

	// nothing transitions back to Pending
	err = s.tracker.UpdateStatus(ctx, newSub("t6"), model.StatusPending, UpdateOptions{})
	require.ErrorIs(err, model.ErrInvalidStateTransition)

	// grants are immutable outside Active
	id = newSub("t7")
	err = s.tracker.UpdateGrants(ctx, id, []model.Permission{model.PermissionSelect}, "early")
	require.ErrorIs(err, model.ErrInvalidStateTransition)
}

func (s *TrackerSuite) TestMissingSubscriptionIsNotFound() {
	require := s.Require()
	ctx := context.Background()
	id := uuid.New().String()

	// An id with no record behind it is a lookup failure, not a state
	// machine violation.
	err := s.tracker.UpdateStatus(ctx, id, model.StatusActive, UpdateOptions{})
	require.ErrorIs(err, model.ErrSubscriptionNotFound)
	require.NotErrorIs(err, model.ErrInvalidStateTransition)

	err = s.tracker.UpdateStatus(ctx, id, model.StatusDenied, UpdateOptions{Notes: "no"})
	require.ErrorIs(err, model.ErrSubscriptionNotFound)

	err = s.tracker.UpdateGrants(ctx, id, []model.Permission{model.PermissionSelect}, "late")
	require.ErrorIs(err, model.ErrSubscriptionNotFound)

	err = s.tracker.DeleteSubscription(ctx, id, "gone")
	require.ErrorIs(err, model.ErrSubscriptionNotFound)
}

func (s *TrackerSuite) TestListSubscriptions() {
	require := s.Require()
	assert := s.Assert()
	ctx := context.Background()

	owner := fmt.Sprintf("listing-%d", time.Now().UnixNano())
	const count = 10
	var ids []string
	for i := 0; i < count; i++ {
		created, err := s.tracker.CreateSubscriptionRequest(ctx,
			owner, "listing", []string{fmt.Sprintf("test%d", i)}, consumerAccount,
			[]model.Permission{model.PermissionDescribe}, true)
		require.NoError(err)
		ids = append(ids, created[0].SubscriptionID)
	}

	// approve three of them
	for _, id := range ids[:3] {
		require.NoError(s.tracker.UpdateStatus(ctx, id, model.StatusActive, UpdateOptions{
			PermittedGrants: []model.Permission{model.PermissionDescribe},
		}))
	}

	subs, err := s.tracker.ListSubscriptions(ctx, Filter{OwnerID: owner})
	require.NoError(err)
	assert.GreaterOrEqual(len(subs), count)

	pending, err := s.tracker.ListSubscriptions(ctx, Filter{OwnerID: owner, Status: model.StatusPending})
	require.NoError(err)
	assert.Len(pending, count-3)

	byPrincipal, err := s.tracker.ListSubscriptions(ctx, Filter{
		PrincipalID:  consumerAccount,
		DatabaseName: "listing",
		Tables:       []string{"Test3"},
	})
	require.NoError(err)
	assert.Len(byPrincipal, 1)

	withGrants, err := s.tracker.ListSubscriptions(ctx, Filter{
		OwnerID:        owner,
		IncludesGrants: []model.Permission{model.PermissionDescribe},
	})
	require.NoError(err)
	assert.GreaterOrEqual(len(withGrants), count)

	_, err = s.tracker.ListSubscriptions(ctx, Filter{})
	require.Error(err)
}

func TestTrackerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	suite.Run(t, new(TrackerSuite))
}
