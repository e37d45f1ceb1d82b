// Package permissions wraps Lake Formation grant, revoke and list calls,
// absorbing the failure modes that mean a grant is already in place.
package permissions

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lakeformation"
	"github.com/aws/aws-sdk-go-v2/service/lakeformation/types"
	"go.uber.org/zap"

	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/model"
)

// TableWildcard grants at table scope across every table in the database.
const TableWildcard = "*"

// GrantOutcome reports how a grant call concluded. Callers branch on the
// value instead of inspecting errors: an identical pre-existing grant is a
// successful no-op, not a failure.
type GrantOutcome int

const (
	GrantCreated GrantOutcome = iota
	GrantAlreadyPresent
)

// lakeFormationAPI is the slice of the Lake Formation client the gateway
// uses, satisfied by *lakeformation.Client.
type lakeFormationAPI interface {
	GrantPermissions(ctx context.Context, params *lakeformation.GrantPermissionsInput, optFns ...func(*lakeformation.Options)) (*lakeformation.GrantPermissionsOutput, error)
	RevokePermissions(ctx context.Context, params *lakeformation.RevokePermissionsInput, optFns ...func(*lakeformation.Options)) (*lakeformation.RevokePermissionsOutput, error)
	ListPermissions(ctx context.Context, params *lakeformation.ListPermissionsInput, optFns ...func(*lakeformation.Options)) (*lakeformation.ListPermissionsOutput, error)
	PutDataLakeSettings(ctx context.Context, params *lakeformation.PutDataLakeSettingsInput, optFns ...func(*lakeformation.Options)) (*lakeformation.PutDataLakeSettingsOutput, error)
}

type Gateway struct {
	logger    *zap.Logger
	lfClient  lakeFormationAPI
	catalogID string
}

// NewGateway builds a gateway scoped to the catalog of the account that cfg's
// credentials resolve to.
func NewGateway(logger *zap.Logger, cfg aws.Config, catalogID string) *Gateway {
	return &Gateway{
		logger:    logger.Named("permissions"),
		lfClient:  lakeformation.NewFromConfig(cfg),
		catalogID: catalogID,
	}
}

// resource builds the grant target: table-level when table is set, wildcard
// across tables for TableWildcard, otherwise database-level.
func (g *Gateway) resource(database, table string) *types.Resource {
	switch table {
	case "":
		return &types.Resource{
			Database: &types.DatabaseResource{
				CatalogId: aws.String(g.catalogID),
				Name:      aws.String(database),
			},
		}
	case TableWildcard:
		return &types.Resource{
			Table: &types.TableResource{
				CatalogId:     aws.String(g.catalogID),
				DatabaseName:  aws.String(database),
				TableWildcard: &types.TableWildcard{},
			},
		}
	default:
		return &types.Resource{
			Table: &types.TableResource{
				CatalogId:    aws.String(g.catalogID),
				DatabaseName: aws.String(database),
				Name:         aws.String(table),
			},
		}
	}
}

// Grant authorizes perms (plus implicit DESCRIBE) for principal on a database
// or table. grantablePerms may be granted onward by the principal.
func (g *Gateway) Grant(ctx context.Context, principal, database, table string, perms, grantablePerms []model.Permission) (GrantOutcome, error) {
	input := &lakeformation.GrantPermissionsInput{
		Principal: &types.DataLakePrincipal{
			DataLakePrincipalIdentifier: aws.String(principal),
		},
		Resource:    g.resource(database, table),
		Permissions: model.LakeFormationPermissions(model.WithDescribe(perms)),
	}
	if len(grantablePerms) > 0 {
		input.PermissionsWithGrantOption = model.LakeFormationPermissions(grantablePerms)
	}

	_, err := g.lfClient.GrantPermissions(ctx, input)
	if err != nil {
		if grantAlreadyPresent(err) {
			g.logger.Debug("grant already in place",
				zap.String("principal", principal),
				zap.String("database", database),
				zap.String("table", table))
			return GrantAlreadyPresent, nil
		}
		return 0, fmt.Errorf("failed to grant %v on %s.%s to %s: %w",
			model.PermissionStrings(perms), database, table, principal, err)
	}

	g.logger.Info("granted permissions",
		zap.String("principal", principal),
		zap.String("database", database),
		zap.String("table", table),
		zap.Strings("permissions", model.PermissionStrings(model.WithDescribe(perms))))
	return GrantCreated, nil
}

// Revoke removes perms for principal on a database or table. Revoking a grant
// that is already gone is a no-op.
func (g *Gateway) Revoke(ctx context.Context, principal, database, table string, perms, grantablePerms []model.Permission) error {
	input := &lakeformation.RevokePermissionsInput{
		Principal: &types.DataLakePrincipal{
			DataLakePrincipalIdentifier: aws.String(principal),
		},
		Resource:    g.resource(database, table),
		Permissions: model.LakeFormationPermissions(perms),
	}
	if len(grantablePerms) > 0 {
		input.PermissionsWithGrantOption = model.LakeFormationPermissions(grantablePerms)
	}

	_, err := g.lfClient.RevokePermissions(ctx, input)
	if err != nil && !revokeAlreadyGone(err) {
		return fmt.Errorf("failed to revoke %v on %s.%s from %s: %w",
			model.PermissionStrings(perms), database, table, principal, err)
	}
	return nil
}

// LoadRAMShares resolves the RAM share ARN carrying the grant for
// targetPrincipal on the resource. The share is created by Lake Formation as
// a side effect of a cross-account grant; its absence after a grant means the
// grant did not propagate and is fatal.
func (g *Gateway) LoadRAMShares(ctx context.Context, database, table, targetPrincipal string) (map[string]string, error) {
	shares := map[string]string{}

	paginator := lakeformation.NewListPermissionsPaginator(g.lfClient, &lakeformation.ListPermissionsInput{
		Resource: g.resource(database, table),
		Principal: &types.DataLakePrincipal{
			DataLakePrincipalIdentifier: aws.String(targetPrincipal),
		},
	})
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list permissions on %s.%s: %w", database, table, err)
		}

		for _, entry := range out.PrincipalResourcePermissions {
			if entry.Principal == nil || aws.ToString(entry.Principal.DataLakePrincipalIdentifier) != targetPrincipal {
				continue
			}
			if !hasDescribe(entry.Permissions) {
				continue
			}
			if entry.AdditionalDetails == nil || len(entry.AdditionalDetails.ResourceShare) == 0 {
				continue
			}

			name := database
			if table != "" && table != TableWildcard {
				name = table
			}
			shares[name] = entry.AdditionalDetails.ResourceShare[0]
		}
	}

	if len(shares) == 0 {
		return nil, fmt.Errorf("%w: no share for %s on %s.%s",
			model.ErrShareNotFound, targetPrincipal, database, table)
	}
	return shares, nil
}

func hasDescribe(perms []types.Permission) bool {
	for _, p := range perms {
		if p == types.PermissionDescribe {
			return true
		}
	}
	return false
}

// GrantCreateDatabase authorizes principal to create databases in the
// catalog. Used when enabling the producer admin role.
func (g *Gateway) GrantCreateDatabase(ctx context.Context, principal string) error {
	_, err := g.lfClient.GrantPermissions(ctx, &lakeformation.GrantPermissionsInput{
		Principal: &types.DataLakePrincipal{
			DataLakePrincipalIdentifier: aws.String(principal),
		},
		Resource: &types.Resource{
			Catalog: &types.CatalogResource{},
		},
		Permissions: []types.Permission{types.PermissionCreateDatabase},
	})
	if err != nil && !grantAlreadyPresent(err) {
		return fmt.Errorf("failed to grant CREATE_DATABASE to %s: %w", principal, err)
	}
	return nil
}

// SetDataLakeAdmins installs the given principals as data lake
// administrators and clears the default create-table permissions, removing
// the IAMAllowedPrincipals catch-all from new objects.
func (g *Gateway) SetDataLakeAdmins(ctx context.Context, adminArns ...string) error {
	admins := make([]types.DataLakePrincipal, 0, len(adminArns))
	for _, arnStr := range adminArns {
		admins = append(admins, types.DataLakePrincipal{DataLakePrincipalIdentifier: aws.String(arnStr)})
	}

	_, err := g.lfClient.PutDataLakeSettings(ctx, &lakeformation.PutDataLakeSettingsInput{
		DataLakeSettings: &types.DataLakeSettings{
			DataLakeAdmins:                admins,
			CreateTableDefaultPermissions: []types.PrincipalPermissions{},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to put data lake settings: %w", err)
	}
	return nil
}
