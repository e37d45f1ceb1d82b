package entities

import (
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/model"
)

type CreateSubscriptionRequest struct {
	OwnerAccountID           string   `json:"ownerAccountId" validate:"required,len=12,numeric"`
	SubscriberPrincipal      string   `json:"subscriberPrincipal" validate:"required,len=12,numeric"`
	DatabaseName             string   `json:"databaseName" validate:"required"`
	Tables                   []string `json:"tables,omitempty"`
	RequestedGrants          []string `json:"requestedGrants" validate:"required,min=1"`
	SuppressObjectValidation bool     `json:"suppressObjectValidation,omitempty"`
}

type CreatedSubscription struct {
	Target         string `json:"target"`
	SubscriptionID string `json:"subscriptionId"`
}

type CreateSubscriptionResponse struct {
	Subscriptions []CreatedSubscription `json:"subscriptions"`
}

type GetSubscriptionResponse struct {
	Subscription model.Subscription `json:"subscription"`
}

type ListSubscriptionsResponse struct {
	Subscriptions []model.Subscription `json:"subscriptions"`
}

type ApproveSubscriptionRequest struct {
	PermittedGrants []string          `json:"permittedGrants,omitempty"`
	RAMShares       map[string]string `json:"ramShares,omitempty"`
	Notes           string            `json:"notes,omitempty"`
}

type DenySubscriptionRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type UpdateGrantsRequest struct {
	PermittedGrants []string `json:"permittedGrants" validate:"required,min=1"`
	Notes           string   `json:"notes,omitempty"`
}

type DeleteSubscriptionRequest struct {
	Reason string `json:"reason" validate:"required"`
}
