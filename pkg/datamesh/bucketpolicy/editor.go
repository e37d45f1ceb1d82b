// Package bucketpolicy maintains the single data mesh statement inside a
// producer bucket's policy, accumulating consumer principals under a stable
// SID.
package bucketpolicy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Editor struct {
	logger      *zap.Logger
	s3Client    *s3.Client
	bucketOwner string
}

func NewEditor(logger *zap.Logger, cfg aws.Config, bucketOwner string) *Editor {
	return &Editor{
		logger:      logger.Named("bucketpolicy"),
		s3Client:    s3.NewFromConfig(cfg),
		bucketOwner: bucketOwner,
	}
}

// AddAccessEntry grants the Lake Formation service role of principalAccount
// read access to accessPath. The operation is idempotent: re-applying it for
// the same account and path leaves the policy unchanged.
func (e *Editor) AddAccessEntry(ctx context.Context, principalAccount, accessPath string) error {
	bucket := BucketFromPath(accessPath)

	current, err := e.currentPolicy(ctx, bucket)
	if err != nil {
		return err
	}

	next, changed := Transform(current, principalAccount, accessPath)
	if !changed {
		e.logger.Info("bucket policy already grants access, not modifying",
			zap.String("bucket", bucket), zap.String("principalAccount", principalAccount))
		return nil
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal bucket policy: %w", err)
	}

	_, err = e.s3Client.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket:              aws.String(bucket),
		Policy:              aws.String(string(raw)),
		ExpectedBucketOwner: aws.String(e.bucketOwner),
	})
	if err != nil {
		return fmt.Errorf("failed to put bucket policy on %s: %w", bucket, err)
	}

	e.logger.Info("updated bucket policy",
		zap.String("bucket", bucket), zap.String("principalAccount", principalAccount))
	return nil
}

func (e *Editor) currentPolicy(ctx context.Context, bucket string) (*Document, error) {
	out, err := e.s3Client.GetBucketPolicy(ctx, &s3.GetBucketPolicyInput{
		Bucket:              aws.String(bucket),
		ExpectedBucketOwner: aws.String(e.bucketOwner),
	})
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) && ae.ErrorCode() == "NoSuchBucketPolicy" {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read bucket policy on %s: %w", bucket, err)
	}

	var doc Document
	if err := json.Unmarshal([]byte(aws.ToString(out.Policy)), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse bucket policy on %s: %w", bucket, err)
	}
	return &doc, nil
}

// Transform merges the data mesh access statement for principalAccount into
// doc. A nil doc synthesizes a new policy. The second return reports whether
// the document changed.
func Transform(doc *Document, principalAccount, accessPath string) (*Document, bool) {
	sid := StatementSID(accessPath)
	principal := LakeFormationServiceRoleArn(principalAccount)

	if doc == nil {
		return &Document{
			Version:   policyVersion,
			ID:        "Policy" + uuid.NewString(),
			Statement: []Statement{newStatement(sid, principal, accessPath)},
		}, true
	}

	for i := range doc.Statement {
		if doc.Statement[i].SID != sid {
			continue
		}
		if doc.Statement[i].Principal.Contains(principal) {
			return doc, false
		}
		doc.Statement[i].Principal.Add(principal)
		return doc, true
	}

	doc.Statement = append(doc.Statement, newStatement(sid, principal, accessPath))
	return doc, true
}

func newStatement(sid, principal, accessPath string) Statement {
	bucket := BucketFromPath(accessPath)
	resources := []string{fmt.Sprintf("arn:aws:s3:::%s", bucket)}
	if prefix := PrefixFromPath(accessPath); prefix != "" {
		resources = append(resources, fmt.Sprintf("arn:aws:s3:::%s/%s/*", bucket, prefix))
	} else {
		resources = append(resources, fmt.Sprintf("arn:aws:s3:::%s/*", bucket))
	}

	return Statement{
		SID:       sid,
		Effect:    "Allow",
		Principal: Principal{AWS: []string{principal}},
		Action:    readActions,
		Resource:  resources,
	}
}
