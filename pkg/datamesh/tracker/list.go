package tracker

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/model"
)

// batchGetLimit is the DynamoDB cap on keys per BatchGetItem call.
const batchGetLimit = 100

// Filter narrows a subscription listing. Either OwnerID or PrincipalID must
// be set: they select which secondary index serves the query. The remaining
// fields are applied after the fetch because the indexes only support their
// two key conditions.
type Filter struct {
	OwnerID        string
	PrincipalID    string
	DatabaseName   string
	Tables         []string
	IncludesGrants []model.Permission
	Status         model.Status
}

// ListSubscriptions returns the full records matching filter, walking the
// owner or subscriber index and hydrating rows by primary key.
func (t *Tracker) ListSubscriptions(ctx context.Context, filter Filter) ([]model.Subscription, error) {
	var indexName, hashAttr, hashValue string
	switch {
	case filter.OwnerID != "":
		indexName, hashAttr, hashValue = ownerIndexName(t.tableName), attrOwner, filter.OwnerID
	case filter.PrincipalID != "":
		indexName, hashAttr, hashValue = subscriberIndexName(t.tableName), attrSubscriber, filter.PrincipalID
	default:
		return nil, fmt.Errorf("listing subscriptions requires an owner or principal filter")
	}

	keyCond := expression.Key(hashAttr).Equal(expression.Value(hashValue))
	if filter.Status != "" {
		keyCond = keyCond.And(expression.Key(attrStatus).Equal(expression.Value(filter.Status)))
	}
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build list expression: %w", err)
	}

	var ids []string
	paginator := dynamodb.NewQueryPaginator(t.client, &dynamodb.QueryInput{
		TableName:                 aws.String(t.tableName),
		IndexName:                 aws.String(indexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", indexName, err)
		}
		for _, item := range page.Items {
			var row struct {
				SubscriptionID string `dynamodbav:"SubscriptionId"`
			}
			if err := attributevalue.UnmarshalMap(item, &row); err != nil {
				return nil, fmt.Errorf("failed to unmarshal index row: %w", err)
			}
			ids = append(ids, row.SubscriptionID)
		}
	}

	subs, err := t.batchGet(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]model.Subscription, 0, len(subs))
	for _, sub := range subs {
		if matchesFilter(&sub, filter) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (t *Tracker) batchGet(ctx context.Context, ids []string) ([]model.Subscription, error) {
	var subs []model.Subscription
	for start := 0; start < len(ids); start += batchGetLimit {
		end := start + batchGetLimit
		if end > len(ids) {
			end = len(ids)
		}

		keys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, id := range ids[start:end] {
			keys = append(keys, map[string]types.AttributeValue{
				attrSubscriptionID: &types.AttributeValueMemberS{Value: id},
			})
		}

		request := map[string]types.KeysAndAttributes{
			t.tableName: {Keys: keys},
		}
		for len(request) > 0 {
			out, err := t.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
			if err != nil {
				return nil, fmt.Errorf("failed to batch get subscriptions: %w", err)
			}

			var page []model.Subscription
			if err := attributevalue.UnmarshalListOfMaps(out.Responses[t.tableName], &page); err != nil {
				return nil, fmt.Errorf("failed to unmarshal subscriptions: %w", err)
			}
			subs = append(subs, page...)

			request = out.UnprocessedKeys
		}
	}
	return subs, nil
}

func matchesFilter(sub *model.Subscription, filter Filter) bool {
	if filter.OwnerID != "" && filter.PrincipalID != "" &&
		sub.SubscriberPrincipal != filter.PrincipalID {
		return false
	}
	if filter.DatabaseName != "" && sub.DatabaseName != filter.DatabaseName {
		return false
	}
	if len(filter.Tables) > 0 && !containsFold(filter.Tables, sub.TableName) {
		return false
	}
	for _, g := range filter.IncludesGrants {
		if !model.ContainsPermission(sub.RequestedGrants, g) &&
			!model.ContainsPermission(sub.PermittedGrants, g) {
			return false
		}
	}
	if filter.Status != "" && sub.Status != filter.Status {
		return false
	}
	return true
}

func containsFold(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.EqualFold(s, needle) {
			return true
		}
	}
	return false
}
