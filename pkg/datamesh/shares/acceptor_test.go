package shares

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ram/types"
	"github.com/stretchr/testify/assert"
)

func invitation(sender, name string, status types.ResourceShareInvitationStatus) types.ResourceShareInvitation {
	return types.ResourceShareInvitation{
		SenderAccountId:   aws.String(sender),
		ResourceShareName: aws.String(name),
		ResourceShareArn:  aws.String("arn:aws:ram:eu-west-1:" + sender + ":resource-share/abc"),
		Status:            status,
	}
}

func TestMatches(t *testing.T) {
	pending := invitation("887210671223", "LakeFormation-V4-UpdatedTables", types.ResourceShareInvitationStatusPending)

	assert.True(t, Matches(pending, "887210671223", "LakeFormation", ""))
	assert.True(t, Matches(pending, "887210671223", "", ""))

	// sender mismatch
	assert.False(t, Matches(pending, "600214582022", "LakeFormation", ""))

	// name filter mismatch
	assert.False(t, Matches(pending, "887210671223", "SomethingElse", ""))

	// already accepted
	accepted := invitation("887210671223", "LakeFormation-V4", types.ResourceShareInvitationStatusAccepted)
	assert.False(t, Matches(accepted, "887210671223", "LakeFormation", ""))
}

func TestMatchesExactShareARN(t *testing.T) {
	inv := invitation("887210671223", "LakeFormation-V4", types.ResourceShareInvitationStatusPending)

	assert.True(t, Matches(inv, "887210671223", "LakeFormation", aws.ToString(inv.ResourceShareArn)))
	assert.False(t, Matches(inv, "887210671223", "LakeFormation", "arn:aws:ram:eu-west-1:887210671223:resource-share/other"))
}
