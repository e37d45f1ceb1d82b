package bucketpolicy

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	policyVersion = "2012-10-17"

	// StatementSIDPrefix keys the single data mesh statement per bucket, so
	// repeated grants merge principals instead of growing the document.
	StatementSIDPrefix = "AwsDataMeshUtilsBucketPolicyStatement"
)

var readActions = []string{"s3:Get*", "s3:List*"}

// Document is an S3 bucket policy.
type Document struct {
	Version   string      `json:"Version"`
	ID        string      `json:"Id,omitempty"`
	Statement []Statement `json:"Statement"`
}

type Statement struct {
	SID       string    `json:"Sid,omitempty"`
	Effect    string    `json:"Effect"`
	Principal Principal `json:"Principal"`
	Action    []string  `json:"Action"`
	Resource  []string  `json:"Resource"`
}

// Principal holds the AWS principal list of a statement. Existing policies
// may carry a single principal as a bare string; both forms unmarshal here
// and the original shape is preserved on write.
type Principal struct {
	AWS    []string
	single bool
}

func (p Principal) MarshalJSON() ([]byte, error) {
	if p.single && len(p.AWS) == 1 {
		return json.Marshal(map[string]string{"AWS": p.AWS[0]})
	}
	return json.Marshal(map[string][]string{"AWS": p.AWS})
}

func (p *Principal) UnmarshalJSON(data []byte) error {
	var asList struct {
		AWS []string `json:"AWS"`
	}
	if err := json.Unmarshal(data, &asList); err == nil && asList.AWS != nil {
		p.AWS = asList.AWS
		p.single = false
		return nil
	}

	var asString struct {
		AWS string `json:"AWS"`
	}
	if err := json.Unmarshal(data, &asString); err != nil {
		return fmt.Errorf("unsupported principal shape: %w", err)
	}
	p.AWS = []string{asString.AWS}
	p.single = true
	return nil
}

// Contains reports whether arn is already in the principal list.
func (p Principal) Contains(arn string) bool {
	for _, a := range p.AWS {
		if a == arn {
			return true
		}
	}
	return false
}

// Add appends arn to the principal list, converting a bare-string principal
// into a list.
func (p *Principal) Add(arn string) {
	p.AWS = append(p.AWS, arn)
	p.single = false
}

// BucketFromPath extracts the bucket name from an s3:// url or returns the
// value unchanged when it is already a bare bucket name.
func BucketFromPath(accessPath string) string {
	if strings.Contains(accessPath, "s3://") {
		parts := strings.Split(accessPath, "/")
		if len(parts) > 2 {
			return parts[2]
		}
	}
	return accessPath
}

// PrefixFromPath extracts the key prefix under the bucket, empty for a
// bucket-level path.
func PrefixFromPath(accessPath string) string {
	parts := strings.Split(accessPath, "/")
	if len(parts) > 3 {
		return strings.Join(parts[3:], "/")
	}
	return ""
}

// StatementSID derives the deterministic statement id for an access path.
func StatementSID(accessPath string) string {
	return fmt.Sprintf("%s-%s", StatementSIDPrefix, BucketFromPath(accessPath))
}

// LakeFormationServiceRoleArn is the principal granted read access for a
// consumer account: the account's Lake Formation data access service role.
func LakeFormationServiceRoleArn(accountID string) string {
	return fmt.Sprintf("arn:aws:iam::%s:role/aws-service-role/lakeformation.amazonaws.com/AWSServiceRoleForLakeFormationDataAccess", accountID)
}
