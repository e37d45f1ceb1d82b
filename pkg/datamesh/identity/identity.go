// Package identity provisions the IAM roles and policies each account needs
// to participate in the data mesh, and the trust edges between accounts.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"go.uber.org/zap"

	"github.com/gubaruch/Data-mesh-util/pkg/awsconf"
)

const (
	// IAMPath namespaces every data mesh role and policy.
	IAMPath = "/AwsDataMesh/"

	ManagerRoleName       = "DataMeshManager"
	AdminProducerRoleName = "DataMeshAdminProducer"
	AdminConsumerRoleName = "DataMeshAdminConsumer"
	ProducerRoleName      = "DataMeshProducer"
	ConsumerRoleName      = "DataMeshConsumer"
)

var solutionTags = []types.Tag{
	{Key: aws.String("Solution"), Value: aws.String("DataMeshUtils")},
}

type Provisioner struct {
	logger    *zap.Logger
	iamClient *iam.Client
	accountID string
}

func NewProvisioner(logger *zap.Logger, cfg aws.Config, accountID string) *Provisioner {
	return &Provisioner{
		logger:    logger.Named("identity"),
		iamClient: iam.NewFromConfig(cfg),
		accountID: accountID,
	}
}

// RoleSpec describes one role plus the policy attached to it.
type RoleSpec struct {
	RoleName       string
	RoleDesc       string
	PolicyName     string
	PolicyDesc     string
	PolicyTemplate string
	Config         TemplateConfig
}

// ConfigureRole creates the policy and role of spec if missing, attaches the
// policy, and returns the role ARN. EntityAlreadyExists responses from either
// create call are resolved by looking up the existing object.
func (p *Provisioner) ConfigureRole(ctx context.Context, spec RoleSpec) (string, error) {
	policyDoc, err := RenderPolicy(spec.PolicyTemplate, spec.Config)
	if err != nil {
		return "", err
	}

	policyArn := fmt.Sprintf("arn:aws:iam::%s:policy%s%s", p.accountID, IAMPath, spec.PolicyName)
	_, err = p.iamClient.CreatePolicy(ctx, &iam.CreatePolicyInput{
		PolicyName:     aws.String(spec.PolicyName),
		Path:           aws.String(IAMPath),
		PolicyDocument: aws.String(policyDoc),
		Description:    aws.String(spec.PolicyDesc),
		Tags:           solutionTags,
	})
	if err != nil && !entityExists(err) {
		return "", fmt.Errorf("failed to create policy %s: %w", spec.PolicyName, err)
	}

	trustDoc, err := assumeRoleDocument(fmt.Sprintf("arn:aws:iam::%s:root", p.accountID))
	if err != nil {
		return "", err
	}

	var roleArn string
	createOut, err := p.iamClient.CreateRole(ctx, &iam.CreateRoleInput{
		Path:                     aws.String(IAMPath),
		RoleName:                 aws.String(spec.RoleName),
		AssumeRolePolicyDocument: aws.String(trustDoc),
		Description:              aws.String(spec.RoleDesc),
		Tags:                     solutionTags,
	})
	switch {
	case err == nil:
		roleArn = aws.ToString(createOut.Role.Arn)
		p.logger.Info("created role", zap.String("role", spec.RoleName))
	case entityExists(err):
		getOut, getErr := p.iamClient.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(spec.RoleName)})
		if getErr != nil {
			return "", fmt.Errorf("failed to get existing role %s: %w", spec.RoleName, getErr)
		}
		roleArn = aws.ToString(getOut.Role.Arn)
	default:
		return "", fmt.Errorf("failed to create role %s: %w", spec.RoleName, err)
	}

	_, err = p.iamClient.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
		RoleName:  aws.String(spec.RoleName),
		PolicyArn: aws.String(policyArn),
	})
	if err != nil {
		return "", fmt.Errorf("failed to attach policy %s to role %s: %w", spec.PolicyName, spec.RoleName, err)
	}

	return roleArn, nil
}

// AddTrust merges accountID as a trusted principal into roleName's
// assume-role document, leaving existing principals in place.
func (p *Provisioner) AddTrust(ctx context.Context, roleName, accountID string) error {
	out, err := p.iamClient.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(roleName)})
	if err != nil {
		return fmt.Errorf("failed to get role %s: %w", roleName, err)
	}

	doc, err := decodeTrustDocument(aws.ToString(out.Role.AssumeRolePolicyDocument))
	if err != nil {
		return fmt.Errorf("failed to parse trust document of %s: %w", roleName, err)
	}

	principal := fmt.Sprintf("arn:aws:iam::%s:root", accountID)
	if !doc.addPrincipal(principal) {
		return nil
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = p.iamClient.UpdateAssumeRolePolicy(ctx, &iam.UpdateAssumeRolePolicyInput{
		RoleName:       aws.String(roleName),
		PolicyDocument: aws.String(string(raw)),
	})
	if err != nil {
		return fmt.Errorf("failed to update trust of %s: %w", roleName, err)
	}

	p.logger.Info("added trusted account to role",
		zap.String("role", roleName), zap.String("account", accountID))
	return nil
}

// RoleExists reports whether a role is present, used to verify a command is
// running in the account it claims to target.
func (p *Provisioner) RoleExists(ctx context.Context, roleName string) (bool, error) {
	_, err := p.iamClient.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(roleName)})
	if err != nil {
		var nf *types.NoSuchEntityException
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get role %s: %w", roleName, err)
	}
	return true, nil
}

// RoleArn resolves the ARN a data mesh role has in an account.
func RoleArn(accountID, roleName string) string {
	return awsconf.RoleArn(accountID, IAMPath, roleName)
}
