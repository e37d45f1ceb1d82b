package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

const (
	// DefaultTableName is the subscription table created in the mesh account.
	DefaultTableName = "AwsDataMeshSubscriptions"

	attrSubscriptionID = "SubscriptionId"
	attrOwner          = "OwnerPrincipal"
	attrSubscriber     = "SubscriberPrincipal"
	attrStatus         = "SubscriptionStatus"
	attrDatabase       = "DatabaseName"
	attrTable          = "TableName"
)

func ownerIndexName(table string) string      { return fmt.Sprintf("%s-Owner", table) }
func subscriberIndexName(table string) string { return fmt.Sprintf("%s-Subscriber", table) }

// TableInfo holds the ARNs of the bootstrapped table and its change stream.
type TableInfo struct {
	TableArn  string
	StreamArn string
}

// ensureTable creates the subscription table with its two secondary indexes
// and change stream, or describes it when it already exists. Bootstrap is
// idempotent so every tracker construction can run it.
func ensureTable(ctx context.Context, logger *zap.Logger, client *dynamodb.Client, tableName string) (TableInfo, error) {
	stringAttr := func(name string) types.AttributeDefinition {
		return types.AttributeDefinition{
			AttributeName: aws.String(name),
			AttributeType: types.ScalarAttributeTypeS,
		}
	}

	out, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(tableName),
		AttributeDefinitions: []types.AttributeDefinition{
			stringAttr(attrSubscriptionID),
			stringAttr(attrOwner),
			stringAttr(attrSubscriber),
			stringAttr(attrStatus),
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrSubscriptionID), KeyType: types.KeyTypeHash},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(ownerIndexName(tableName)),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String(attrOwner), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String(attrStatus), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeKeysOnly},
			},
			{
				IndexName: aws.String(subscriberIndexName(tableName)),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String(attrSubscriber), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String(attrStatus), KeyType: types.KeyTypeRange},
				},
				// duplicate detection needs the object names without a fetch
				Projection: &types.Projection{
					ProjectionType:   types.ProjectionTypeInclude,
					NonKeyAttributes: []string{attrDatabase, attrTable},
				},
			},
		},
		BillingMode: types.BillingModePayPerRequest,
		StreamSpecification: &types.StreamSpecification{
			StreamEnabled:  aws.Bool(true),
			StreamViewType: types.StreamViewTypeNewAndOldImages,
		},
		Tags: []types.Tag{
			{Key: aws.String("Solution"), Value: aws.String("DataMeshUtils")},
		},
	})
	if err == nil {
		waiter := dynamodb.NewTableExistsWaiter(client)
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)}, 2*time.Minute); err != nil {
			return TableInfo{}, fmt.Errorf("timed out waiting for table %s: %w", tableName, err)
		}
		logger.Info("created subscription table", zap.String("table", tableName))
		return TableInfo{
			TableArn:  aws.ToString(out.TableDescription.TableArn),
			StreamArn: aws.ToString(out.TableDescription.LatestStreamArn),
		}, nil
	}

	var inUse *types.ResourceInUseException
	if !errors.As(err, &inUse) {
		return TableInfo{}, fmt.Errorf("failed to create table %s: %w", tableName, err)
	}

	desc, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)})
	if err != nil {
		return TableInfo{}, fmt.Errorf("failed to describe table %s: %w", tableName, err)
	}
	return TableInfo{
		TableArn:  aws.ToString(desc.Table.TableArn),
		StreamArn: aws.ToString(desc.Table.LatestStreamArn),
	}, nil
}
