// Package catalog wraps the Glue operations the orchestrators need:
// create-if-missing databases, tables, resource links and crawlers.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/glue/types"
	"go.uber.org/zap"

	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/model"
)

type Client struct {
	logger     *zap.Logger
	glueClient *glue.Client
}

func NewClient(logger *zap.Logger, cfg aws.Config) *Client {
	return &Client{
		logger:     logger.Named("catalog"),
		glueClient: glue.NewFromConfig(cfg),
	}
}

func entityMissing(err error) bool {
	var nf *types.EntityNotFoundException
	return errors.As(err, &nf)
}

// GetOrCreateDatabase ensures a database exists. sourceAccount, when set,
// records the owning account in the database parameters of a shared-catalog
// reference.
func (c *Client) GetOrCreateDatabase(ctx context.Context, name, description, sourceAccount string) error {
	_, err := c.glueClient.GetDatabase(ctx, &glue.GetDatabaseInput{Name: aws.String(name)})
	if err == nil {
		return nil
	}
	if !entityMissing(err) {
		return fmt.Errorf("failed to get database %s: %w", name, err)
	}

	input := &types.DatabaseInput{
		Name:        aws.String(name),
		Description: aws.String(description),
	}
	if sourceAccount != "" {
		input.Parameters = map[string]string{"SourceAccount": sourceAccount}
	}

	_, err = c.glueClient.CreateDatabase(ctx, &glue.CreateDatabaseInput{DatabaseInput: input})
	if err != nil {
		var exists *types.AlreadyExistsException
		if errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("failed to create database %s: %w", name, err)
	}

	c.logger.Info("created database", zap.String("database", name))
	return nil
}

// TableExists verifies that a table is present, mapping the not-found case
// onto the validation error surfaced by strict subscription requests.
func (c *Client) TableExists(ctx context.Context, database, table string) error {
	_, err := c.glueClient.GetTable(ctx, &glue.GetTableInput{
		DatabaseName: aws.String(database),
		Name:         aws.String(table),
	})
	if err != nil {
		if entityMissing(err) {
			return fmt.Errorf("%w: %s.%s", model.ErrObjectNotFound, database, table)
		}
		return fmt.Errorf("failed to get table %s.%s: %w", database, table, err)
	}
	return nil
}

// DatabaseExists is the database-level analogue of TableExists.
func (c *Client) DatabaseExists(ctx context.Context, database string) error {
	_, err := c.glueClient.GetDatabase(ctx, &glue.GetDatabaseInput{Name: aws.String(database)})
	if err != nil {
		if entityMissing(err) {
			return fmt.Errorf("%w: %s", model.ErrObjectNotFound, database)
		}
		return fmt.Errorf("failed to get database %s: %w", database, err)
	}
	return nil
}

// ListTables returns the table names of a database, optionally restricted to
// a name prefix, walking the paginated API to completion.
func (c *Client) ListTables(ctx context.Context, database, prefix string) ([]string, error) {
	input := &glue.GetTablesInput{DatabaseName: aws.String(database)}
	if prefix != "" {
		input.Expression = aws.String(prefix + "*")
	}

	var names []string
	paginator := glue.NewGetTablesPaginator(c.glueClient, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list tables in %s: %w", database, err)
		}
		for _, t := range page.TableList {
			names = append(names, aws.ToString(t.Name))
		}
	}
	return names, nil
}

// GetTableDefinition fetches the storage descriptor and partition keys of a
// source table, for replication into the mesh catalog.
func (c *Client) GetTableDefinition(ctx context.Context, database, table string) (*types.Table, error) {
	out, err := c.glueClient.GetTable(ctx, &glue.GetTableInput{
		DatabaseName: aws.String(database),
		Name:         aws.String(table),
	})
	if err != nil {
		if entityMissing(err) {
			return nil, fmt.Errorf("%w: %s.%s", model.ErrObjectNotFound, database, table)
		}
		return nil, fmt.Errorf("failed to get table %s.%s: %w", database, table, err)
	}
	return out.Table, nil
}

// CopyTable registers def under database, carrying over the storage
// descriptor and partition keys. Existing tables are left untouched so a
// partially completed data product creation can be re-run.
func (c *Client) CopyTable(ctx context.Context, database string, def *types.Table) error {
	_, err := c.glueClient.CreateTable(ctx, &glue.CreateTableInput{
		DatabaseName: aws.String(database),
		TableInput: &types.TableInput{
			Name:              def.Name,
			Description:       def.Description,
			Owner:             def.Owner,
			StorageDescriptor: def.StorageDescriptor,
			PartitionKeys:     def.PartitionKeys,
			TableType:         def.TableType,
			Parameters:        def.Parameters,
		},
	})
	if err != nil {
		var exists *types.AlreadyExistsException
		if errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("failed to copy table %s into %s: %w", aws.ToString(def.Name), database, err)
	}

	c.logger.Info("copied table definition",
		zap.String("database", database), zap.String("table", aws.ToString(def.Name)))
	return nil
}

// CreateResourceLink creates a local table pointing at a table owned by
// sourceAccount, the consumer-side mount of a shared data product.
func (c *Client) CreateResourceLink(ctx context.Context, database, table, sourceAccount, sourceDatabase string) error {
	linkName := strings.ToLower(table) + "_link"

	_, err := c.glueClient.GetTable(ctx, &glue.GetTableInput{
		DatabaseName: aws.String(database),
		Name:         aws.String(linkName),
	})
	if err == nil {
		return nil
	}
	if !entityMissing(err) {
		return fmt.Errorf("failed to get resource link %s.%s: %w", database, linkName, err)
	}

	_, err = c.glueClient.CreateTable(ctx, &glue.CreateTableInput{
		DatabaseName: aws.String(database),
		TableInput: &types.TableInput{
			Name: aws.String(linkName),
			TargetTable: &types.TableIdentifier{
				CatalogId:    aws.String(sourceAccount),
				DatabaseName: aws.String(sourceDatabase),
				Name:         aws.String(table),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create resource link %s.%s: %w", database, linkName, err)
	}

	c.logger.Info("created resource link",
		zap.String("database", database),
		zap.String("link", linkName),
		zap.String("sourceAccount", sourceAccount))
	return nil
}

// GetOrCreateCrawler ensures a crawler over targetPath exists for keeping a
// data product's partitions current.
func (c *Client) GetOrCreateCrawler(ctx context.Context, name, roleArn, database, targetPath string) error {
	_, err := c.glueClient.GetCrawler(ctx, &glue.GetCrawlerInput{Name: aws.String(name)})
	if err == nil {
		return nil
	}
	if !entityMissing(err) {
		return fmt.Errorf("failed to get crawler %s: %w", name, err)
	}

	_, err = c.glueClient.CreateCrawler(ctx, &glue.CreateCrawlerInput{
		Name:         aws.String(name),
		Role:         aws.String(roleArn),
		DatabaseName: aws.String(database),
		Targets: &types.CrawlerTargets{
			S3Targets: []types.S3Target{{Path: aws.String(targetPath)}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create crawler %s: %w", name, err)
	}

	c.logger.Info("created crawler", zap.String("crawler", name), zap.String("path", targetPath))
	return nil
}
