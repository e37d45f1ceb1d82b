// Package shares accepts and releases the RAM resource shares that carry
// cross-account Lake Formation grants.
package shares

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ram"
	"github.com/aws/aws-sdk-go-v2/service/ram/types"
	"go.uber.org/zap"
)

// LakeFormationShareNameFilter scopes invitation acceptance to catalog
// permission shares, leaving unrelated resource shares untouched.
const LakeFormationShareNameFilter = "LakeFormation"

// ErrNoPendingInvitation signals that an expected invitation has not arrived
// yet. Invitations trail the grant that raises them, so callers retry on it.
var ErrNoPendingInvitation = errors.New("no pending resource share invitation")

// NoInvitation reports whether err is a retryable missing-invitation error.
func NoInvitation(err error) bool {
	return errors.Is(err, ErrNoPendingInvitation)
}

type Acceptor struct {
	logger    *zap.Logger
	ramClient *ram.Client
}

func NewAcceptor(logger *zap.Logger, cfg aws.Config) *Acceptor {
	return &Acceptor{
		logger:    logger.Named("shares"),
		ramClient: ram.NewFromConfig(cfg),
	}
}

// AcceptPending accepts every pending invitation sent by senderAccount whose
// share name contains nameFilter and, when shareARN is non-empty, whose share
// ARN matches it exactly. Returns whether at least one invitation was
// accepted; callers that require an invitation to exist wrap this in a retry.
func (a *Acceptor) AcceptPending(ctx context.Context, senderAccount, nameFilter, shareARN string) (bool, error) {
	accepted := false

	paginator := ram.NewGetResourceShareInvitationsPaginator(a.ramClient, &ram.GetResourceShareInvitationsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return accepted, fmt.Errorf("failed to list resource share invitations: %w", err)
		}

		for _, inv := range page.ResourceShareInvitations {
			if !Matches(inv, senderAccount, nameFilter, shareARN) {
				continue
			}

			_, err := a.ramClient.AcceptResourceShareInvitation(ctx, &ram.AcceptResourceShareInvitationInput{
				ResourceShareInvitationArn: inv.ResourceShareInvitationArn,
			})
			if err != nil {
				return accepted, fmt.Errorf("failed to accept invitation %s: %w",
					aws.ToString(inv.ResourceShareInvitationArn), err)
			}

			a.logger.Info("accepted resource share invitation",
				zap.String("share", aws.ToString(inv.ResourceShareName)),
				zap.String("sender", aws.ToString(inv.SenderAccountId)))
			accepted = true
		}
	}

	return accepted, nil
}

// Matches applies the sender, name and ARN filters to an invitation.
func Matches(inv types.ResourceShareInvitation, senderAccount, nameFilter, shareARN string) bool {
	if inv.Status != types.ResourceShareInvitationStatusPending {
		return false
	}
	if aws.ToString(inv.SenderAccountId) != senderAccount {
		return false
	}
	if nameFilter != "" && !strings.Contains(aws.ToString(inv.ResourceShareName), nameFilter) {
		return false
	}
	if shareARN != "" && aws.ToString(inv.ResourceShareArn) != shareARN {
		return false
	}
	return true
}

// Leave disassociates principal from every share in shares, called by a
// consumer before soft deleting the subscription that carried them.
func (a *Acceptor) Leave(ctx context.Context, principal string, ramShares map[string]string) error {
	for name, shareArn := range ramShares {
		_, err := a.ramClient.DisassociateResourceShare(ctx, &ram.DisassociateResourceShareInput{
			ResourceShareArn: aws.String(shareArn),
			Principals:       []string{principal},
		})
		if err != nil {
			return fmt.Errorf("failed to leave resource share %s for %s: %w", shareArn, name, err)
		}
		a.logger.Info("left resource share", zap.String("object", name), zap.String("share", shareArn))
	}
	return nil
}
