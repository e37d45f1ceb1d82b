// Package tracker owns the durable subscription lifecycle state in DynamoDB.
// Cross-process correctness rests entirely on conditional writes: status
// transitions are compare-and-swap on the current status, and request
// uniqueness is enforced by a guard item written in the same transaction as
// the subscription record.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gubaruch/Data-mesh-util/pkg/config"
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/model"
)

// ObjectValidator checks that a requested catalog object exists in the
// source account. The Glue catalog client satisfies this.
type ObjectValidator interface {
	DatabaseExists(ctx context.Context, database string) error
	TableExists(ctx context.Context, database, table string) error
}

type Tracker struct {
	logger    *zap.Logger
	client    *dynamodb.Client
	tableName string
	info      TableInfo
	principal string
	validator ObjectValidator
}

// New builds a tracker and bootstraps its table if absent. principal is
// stamped into audit fields for every write this tracker performs.
func New(ctx context.Context, logger *zap.Logger, cfg aws.Config, conf config.DynamoDB, principal string, validator ObjectValidator) (*Tracker, error) {
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if conf.Endpoint != "" {
			o.BaseEndpoint = aws.String(conf.Endpoint)
		}
		if conf.Region != "" {
			o.Region = conf.Region
		}
	})

	tableName := conf.Table
	if tableName == "" {
		tableName = DefaultTableName
	}

	log := logger.Named("tracker")
	info, err := ensureTable(ctx, log, client, tableName)
	if err != nil {
		return nil, err
	}

	return &Tracker{
		logger:    log,
		client:    client,
		tableName: tableName,
		info:      info,
		principal: principal,
		validator: validator,
	}, nil
}

// TableInfo returns the ARNs of the subscription table and its stream.
func (t *Tracker) TableInfo() TableInfo { return t.info }

// CreatedSubscription pairs a requested object with the id tracking it.
type CreatedSubscription struct {
	Target         string `json:"target"`
	SubscriptionID string `json:"subscriptionId"`
}

// guardKey derives the uniqueness guard id for a request tuple.
func guardKey(principal, database, table string) string {
	parts := []string{"guard", principal, database}
	if table != "" {
		parts = append(parts, table)
	}
	return strings.Join(parts, ":")
}

// CreateSubscriptionRequest registers intent to access tables of a database
// (all of it when tables is nil), one record per object. A request matching
// an existing non-deleted record returns that record's id instead of
// creating a duplicate, including when the duplicate is being created
// concurrently.
func (t *Tracker) CreateSubscriptionRequest(ctx context.Context, owner, database string, tables []string, principal string, requestedGrants []model.Permission, suppressObjectValidation bool) ([]CreatedSubscription, error) {
	if len(requestedGrants) == 0 {
		return nil, fmt.Errorf("a subscription request needs at least one requested grant")
	}

	targets := []string{""}
	if len(tables) > 0 {
		targets = tables
	}

	var out []CreatedSubscription
	for _, table := range targets {
		if !suppressObjectValidation {
			if err := t.validateObject(ctx, database, table); err != nil {
				return nil, err
			}
		}

		id, err := t.createOne(ctx, owner, database, table, principal, requestedGrants)
		if err != nil {
			return nil, err
		}

		target := database
		if table != "" {
			target = table
		}
		out = append(out, CreatedSubscription{Target: target, SubscriptionID: id})
	}
	return out, nil
}

func (t *Tracker) validateObject(ctx context.Context, database, table string) error {
	if t.validator == nil {
		return fmt.Errorf("object validation requested but no catalog validator is configured")
	}
	if table == "" {
		return t.validator.DatabaseExists(ctx, database)
	}
	return t.validator.TableExists(ctx, database, table)
}

func (t *Tracker) createOne(ctx context.Context, owner, database, table, principal string, requestedGrants []model.Permission) (string, error) {
	if existing, err := t.findExisting(ctx, principal, database, table); err != nil {
		return "", err
	} else if existing != "" {
		t.logger.Info("returning existing subscription for duplicate request",
			zap.String("subscriptionId", existing),
			zap.String("principal", principal),
			zap.String("database", database),
			zap.String("table", table))
		return existing, nil
	}

	now := time.Now().UTC()
	sub := model.Subscription{
		SubscriptionID:      uuid.NewString(),
		OwnerPrincipal:      owner,
		SubscriberPrincipal: principal,
		DatabaseName:        database,
		TableName:           table,
		RequestedGrants:     requestedGrants,
		Status:              model.StatusPending,
		CreationDate:        now,
		CreatedBy:           t.principal,
		UpdatedDate:         now,
		UpdatedBy:           t.principal,
	}

	item, err := attributevalue.MarshalMap(sub)
	if err != nil {
		return "", fmt.Errorf("failed to marshal subscription: %w", err)
	}

	guard := map[string]types.AttributeValue{
		attrSubscriptionID:     &types.AttributeValueMemberS{Value: guardKey(principal, database, table)},
		"ActiveSubscriptionId": &types.AttributeValueMemberS{Value: sub.SubscriptionID},
	}

	_, err = t.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(t.tableName),
					Item:                guard,
					ConditionExpression: aws.String("attribute_not_exists(" + attrSubscriptionID + ")"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(t.tableName),
					Item:      item,
				},
			},
		},
	})
	if err != nil {
		if !conditionalCancel(err) {
			return "", fmt.Errorf("failed to create subscription: %w", err)
		}
		// lost the race: another caller created the tuple first, hand back
		// the winner's id
		winner, err := t.guardedSubscriptionID(ctx, principal, database, table)
		if err != nil {
			return "", err
		}
		t.logger.Info("concurrent duplicate request, returning winner",
			zap.String("subscriptionId", winner))
		return winner, nil
	}

	t.logger.Info("created subscription request",
		zap.String("subscriptionId", sub.SubscriptionID),
		zap.String("owner", owner),
		zap.String("principal", principal),
		zap.String("database", database),
		zap.String("table", table))
	return sub.SubscriptionID, nil
}

// findExisting scans the subscriber index for a live record matching the
// request tuple. Status filtering happens in code: the index only supports
// the two key conditions.
func (t *Tracker) findExisting(ctx context.Context, principal, database, table string) (string, error) {
	keyCond := expression.Key(attrSubscriber).Equal(expression.Value(principal))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return "", fmt.Errorf("failed to build query expression: %w", err)
	}

	paginator := dynamodb.NewQueryPaginator(t.client, &dynamodb.QueryInput{
		TableName:                 aws.String(t.tableName),
		IndexName:                 aws.String(subscriberIndexName(t.tableName)),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to query subscriber index: %w", err)
		}
		for _, item := range page.Items {
			var row struct {
				SubscriptionID string       `dynamodbav:"SubscriptionId"`
				DatabaseName   string       `dynamodbav:"DatabaseName"`
				TableName      string       `dynamodbav:"TableName"`
				Status         model.Status `dynamodbav:"SubscriptionStatus"`
			}
			if err := attributevalue.UnmarshalMap(item, &row); err != nil {
				return "", fmt.Errorf("failed to unmarshal index row: %w", err)
			}
			if row.DatabaseName == database && row.TableName == table && row.Status != model.StatusDeleted {
				return row.SubscriptionID, nil
			}
		}
	}
	return "", nil
}

func (t *Tracker) guardedSubscriptionID(ctx context.Context, principal, database, table string) (string, error) {
	out, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(t.tableName),
		Key: map[string]types.AttributeValue{
			attrSubscriptionID: &types.AttributeValueMemberS{Value: guardKey(principal, database, table)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to read uniqueness guard: %w", err)
	}
	if out.Item == nil {
		return "", fmt.Errorf("uniqueness guard vanished for %s on %s.%s", principal, database, table)
	}

	var guard struct {
		ActiveSubscriptionID string `dynamodbav:"ActiveSubscriptionId"`
	}
	if err := attributevalue.UnmarshalMap(out.Item, &guard); err != nil {
		return "", fmt.Errorf("failed to unmarshal uniqueness guard: %w", err)
	}
	return guard.ActiveSubscriptionID, nil
}

// GetSubscription looks up a record by id. force bypasses eventually
// consistent reads, relevant right after a delete.
func (t *Tracker) GetSubscription(ctx context.Context, id string, force bool) (*model.Subscription, error) {
	out, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(t.tableName),
		Key: map[string]types.AttributeValue{
			attrSubscriptionID: &types.AttributeValueMemberS{Value: id},
		},
		ConsistentRead: aws.Bool(force),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription %s: %w", id, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("%w: %s", model.ErrSubscriptionNotFound, id)
	}

	var sub model.Subscription
	if err := attributevalue.UnmarshalMap(out.Item, &sub); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subscription %s: %w", id, err)
	}
	return &sub, nil
}

// UpdateOptions carries the optional fields persisted alongside a status
// change.
type UpdateOptions struct {
	PermittedGrants []model.Permission
	RAMShares       map[string]string
	Notes           string
}

// UpdateStatus moves a subscription to status, succeeding only when the
// record currently sits in an allowed predecessor state. On activation the
// permitted grants and backing shares are persisted; on denial or deletion a
// note records the reason.
func (t *Tracker) UpdateStatus(ctx context.Context, id string, status model.Status, opts UpdateOptions) error {
	preds, err := model.AllowedPredecessors(status)
	if err != nil {
		return err
	}

	if status == model.StatusDeleted {
		return t.deleteWithGuard(ctx, id, preds, opts)
	}

	update := expression.
		Set(expression.Name(attrStatus), expression.Value(status)).
		Set(expression.Name("UpdatedDate"), expression.Value(time.Now().UTC().Unix())).
		Set(expression.Name("UpdatedBy"), expression.Value(t.principal))

	if status == model.StatusActive {
		if len(opts.PermittedGrants) > 0 {
			update = update.Set(expression.Name("PermittedGrants"), expression.Value(opts.PermittedGrants))
		}
		if len(opts.RAMShares) > 0 {
			update = update.Set(expression.Name("RamShares"), expression.Value(opts.RAMShares))
		}
	}
	if opts.Notes != "" {
		update = update.Set(expression.Name("Notes"), expression.ListAppend(
			expression.IfNotExists(expression.Name("Notes"), expression.Value([]string{})),
			expression.Value([]string{opts.Notes})))
	}

	expr, err := expression.NewBuilder().
		WithCondition(statusIn(preds)).
		WithUpdate(update).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build update expression: %w", err)
	}

	_, err = t.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(t.tableName),
		Key: map[string]types.AttributeValue{
			attrSubscriptionID: &types.AttributeValueMemberS{Value: id},
		},
		ConditionExpression:                 expr.Condition(),
		UpdateExpression:                    expr.Update(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var failed *types.ConditionalCheckFailedException
		if errors.As(err, &failed) {
			// The failed check returns the old item; no item means the
			// record does not exist at all.
			if len(failed.Item) == 0 {
				return fmt.Errorf("%w: %s", model.ErrSubscriptionNotFound, id)
			}
			return fmt.Errorf("%w: subscription %s cannot move to %s", model.ErrInvalidStateTransition, id, status)
		}
		return fmt.Errorf("failed to update status of %s: %w", id, err)
	}

	t.logger.Info("updated subscription status",
		zap.String("subscriptionId", id), zap.String("status", string(status)))
	return nil
}

// deleteWithGuard flips the record to Deleted and removes the uniqueness
// guard in one transaction, so a later request for the same tuple creates a
// fresh subscription.
func (t *Tracker) deleteWithGuard(ctx context.Context, id string, preds []model.Status, opts UpdateOptions) error {
	sub, err := t.GetSubscription(ctx, id, true)
	if err != nil {
		return err
	}
	if !model.CanTransition(sub.Status, model.StatusDeleted) {
		return fmt.Errorf("%w: subscription %s cannot move from %s to %s",
			model.ErrInvalidStateTransition, id, sub.Status, model.StatusDeleted)
	}

	update := expression.
		Set(expression.Name(attrStatus), expression.Value(model.StatusDeleted)).
		Set(expression.Name("UpdatedDate"), expression.Value(time.Now().UTC().Unix())).
		Set(expression.Name("UpdatedBy"), expression.Value(t.principal))
	if opts.Notes != "" {
		update = update.Set(expression.Name("Notes"), expression.ListAppend(
			expression.IfNotExists(expression.Name("Notes"), expression.Value([]string{})),
			expression.Value([]string{opts.Notes})))
	}

	expr, err := expression.NewBuilder().
		WithCondition(statusIn(preds)).
		WithUpdate(update).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build delete expression: %w", err)
	}

	_, err = t.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Update: &types.Update{
					TableName: aws.String(t.tableName),
					Key: map[string]types.AttributeValue{
						attrSubscriptionID: &types.AttributeValueMemberS{Value: id},
					},
					ConditionExpression:       expr.Condition(),
					UpdateExpression:          expr.Update(),
					ExpressionAttributeNames:  expr.Names(),
					ExpressionAttributeValues: expr.Values(),
				},
			},
			{
				Delete: &types.Delete{
					TableName: aws.String(t.tableName),
					Key: map[string]types.AttributeValue{
						attrSubscriptionID: &types.AttributeValueMemberS{
							Value: guardKey(sub.SubscriberPrincipal, sub.DatabaseName, sub.TableName),
						},
					},
				},
			},
		},
	})
	if err != nil {
		if conditionalCancel(err) {
			return fmt.Errorf("%w: subscription %s cannot move to %s",
				model.ErrInvalidStateTransition, id, model.StatusDeleted)
		}
		return fmt.Errorf("failed to delete subscription %s: %w", id, err)
	}

	t.logger.Info("soft deleted subscription", zap.String("subscriptionId", id))
	return nil
}

// UpdateGrants overwrites the permitted grants of an Active subscription and
// appends an audit note. The status is left unchanged.
func (t *Tracker) UpdateGrants(ctx context.Context, id string, permittedGrants []model.Permission, note string) error {
	update := expression.
		Set(expression.Name("PermittedGrants"), expression.Value(permittedGrants)).
		Set(expression.Name("UpdatedDate"), expression.Value(time.Now().UTC().Unix())).
		Set(expression.Name("UpdatedBy"), expression.Value(t.principal)).
		Set(expression.Name("Notes"), expression.ListAppend(
			expression.IfNotExists(expression.Name("Notes"), expression.Value([]string{})),
			expression.Value([]string{note})))

	expr, err := expression.NewBuilder().
		WithCondition(expression.Name(attrStatus).Equal(expression.Value(model.StatusActive))).
		WithUpdate(update).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build grants expression: %w", err)
	}

	_, err = t.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(t.tableName),
		Key: map[string]types.AttributeValue{
			attrSubscriptionID: &types.AttributeValueMemberS{Value: id},
		},
		ConditionExpression:                 expr.Condition(),
		UpdateExpression:                    expr.Update(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var failed *types.ConditionalCheckFailedException
		if errors.As(err, &failed) {
			if len(failed.Item) == 0 {
				return fmt.Errorf("%w: %s", model.ErrSubscriptionNotFound, id)
			}
			return fmt.Errorf("%w: grants can only change while subscription %s is Active",
				model.ErrInvalidStateTransition, id)
		}
		return fmt.Errorf("failed to update grants of %s: %w", id, err)
	}

	t.logger.Info("updated subscription grants",
		zap.String("subscriptionId", id),
		zap.Strings("permittedGrants", model.PermissionStrings(permittedGrants)))
	return nil
}

// DeleteSubscription soft deletes a subscription, recording the reason. The
// caller is responsible for disassociating any RAM shares first; the tracker
// never reaches out to the sharing service.
func (t *Tracker) DeleteSubscription(ctx context.Context, id, reason string) error {
	return t.UpdateStatus(ctx, id, model.StatusDeleted, UpdateOptions{Notes: reason})
}

func statusIn(statuses []model.Status) expression.ConditionBuilder {
	operands := make([]expression.OperandBuilder, 0, len(statuses))
	for _, s := range statuses {
		operands = append(operands, expression.Value(s))
	}
	first := operands[0]
	return expression.Name(attrStatus).In(first, operands[1:]...)
}

// conditionalCancel reports whether a transaction was cancelled by a failed
// condition check rather than a service fault.
func conditionalCancel(err error) bool {
	var cancelled *types.TransactionCanceledException
	if !errors.As(err, &cancelled) {
		return false
	}
	for _, reason := range cancelled.CancellationReasons {
		if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}
