package model

import "time"

// Subscription tracks one request for access to a data product. A request for
// multiple tables produces one record per table, each with its own id; a
// database-level request produces a single record with an empty TableName.
type Subscription struct {
	SubscriptionID      string            `dynamodbav:"SubscriptionId" json:"subscriptionId"`
	OwnerPrincipal      string            `dynamodbav:"OwnerPrincipal" json:"ownerPrincipal"`
	SubscriberPrincipal string            `dynamodbav:"SubscriberPrincipal" json:"subscriberPrincipal"`
	DatabaseName        string            `dynamodbav:"DatabaseName" json:"databaseName"`
	TableName           string            `dynamodbav:"TableName,omitempty" json:"tableName,omitempty"`
	RequestedGrants     []Permission      `dynamodbav:"RequestedGrants" json:"requestedGrants"`
	PermittedGrants     []Permission      `dynamodbav:"PermittedGrants,omitempty" json:"permittedGrants,omitempty"`
	Status              Status            `dynamodbav:"SubscriptionStatus" json:"status"`
	RAMShares           map[string]string `dynamodbav:"RamShares,omitempty" json:"ramShares,omitempty"`
	Notes               []string          `dynamodbav:"Notes,omitempty" json:"notes,omitempty"`

	CreationDate time.Time `dynamodbav:"CreationDate,unixtime" json:"creationDate"`
	CreatedBy    string    `dynamodbav:"CreatedBy" json:"createdBy"`
	UpdatedDate  time.Time `dynamodbav:"UpdatedDate,unixtime" json:"updatedDate"`
	UpdatedBy    string    `dynamodbav:"UpdatedBy,omitempty" json:"updatedBy,omitempty"`
}

// GrantTarget names the object the subscription covers: the table name for a
// table-level record, otherwise the database name.
func (s *Subscription) GrantTarget() string {
	if s.TableName != "" {
		return s.TableName
	}
	return s.DatabaseName
}

// DatabaseLevel reports whether the record grants at database scope.
func (s *Subscription) DatabaseLevel() bool { return s.TableName == "" }
