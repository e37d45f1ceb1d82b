// Package awsconf builds the aws.Config values that scope every gateway to a
// single account and role.
package awsconf

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// GetConfig loads AWS credentials and returns the configuration used by the
// service clients. If awsAccessKey is set, static credentials are used;
// otherwise the default SDK chain applies. If assumeRoleArn is set, the
// evaluated configuration is used to assume that role.
func GetConfig(ctx context.Context, region, awsAccessKey, awsSecretKey, awsSessionToken, assumeRoleArn string) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	if awsAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(awsAccessKey, awsSecretKey, awsSessionToken)))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	if assumeRoleArn != "" {
		cfg.Credentials = aws.NewCredentialsCache(stscreds.NewAssumeRoleProvider(
			sts.NewFromConfig(cfg),
			assumeRoleArn,
			func(o *stscreds.AssumeRoleOptions) {
				o.RoleSessionName = "DataMeshUtils"
			},
		))
	}

	return cfg, nil
}

// AssumeRole returns a copy of cfg whose credentials come from assuming
// roleArn, used for every cross-account operation.
func AssumeRole(cfg aws.Config, roleArn, sessionName string) aws.Config {
	out := cfg.Copy()
	out.Credentials = aws.NewCredentialsCache(stscreds.NewAssumeRoleProvider(
		sts.NewFromConfig(cfg),
		roleArn,
		func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = sessionName
		},
	))
	return out
}

// CallerAccount resolves the account id of the credentials in cfg.
func CallerAccount(ctx context.Context, cfg aws.Config) (string, error) {
	account, _, err := CallerIdentity(ctx, cfg)
	return account, err
}

// CallerIdentity resolves the account id and principal ARN of the
// credentials in cfg.
func CallerIdentity(ctx context.Context, cfg aws.Config) (string, string, error) {
	out, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve caller identity: %w", err)
	}
	return *out.Account, *out.Arn, nil
}

// RoleArn builds the ARN of a named role in an account under the data mesh
// IAM path.
func RoleArn(accountID, path, roleName string) string {
	return fmt.Sprintf("arn:aws:iam::%s:role%s%s", accountID, path, roleName)
}
