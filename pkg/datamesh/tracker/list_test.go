package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/model"
)

func TestMatchesFilter(t *testing.T) {
	sub := model.Subscription{
		SubscriptionID:      "abc",
		OwnerPrincipal:      "887210671223",
		SubscriberPrincipal: "206160724517",
		DatabaseName:        "tpcds",
		TableName:           "customer",
		RequestedGrants:     []model.Permission{model.PermissionSelect, model.PermissionDescribe},
		Status:              model.StatusPending,
	}

	assert.True(t, matchesFilter(&sub, Filter{OwnerID: "887210671223"}))
	assert.True(t, matchesFilter(&sub, Filter{OwnerID: "887210671223", PrincipalID: "206160724517"}))
	assert.True(t, matchesFilter(&sub, Filter{DatabaseName: "tpcds", Tables: []string{"Customer"}}))
	assert.True(t, matchesFilter(&sub, Filter{IncludesGrants: []model.Permission{model.PermissionSelect}}))
	assert.True(t, matchesFilter(&sub, Filter{Status: model.StatusPending}))

	assert.False(t, matchesFilter(&sub, Filter{OwnerID: "887210671223", PrincipalID: "600214582022"}))
	assert.False(t, matchesFilter(&sub, Filter{DatabaseName: "other"}))
	assert.False(t, matchesFilter(&sub, Filter{Tables: []string{"orders"}}))
	assert.False(t, matchesFilter(&sub, Filter{IncludesGrants: []model.Permission{model.PermissionInsert}}))
	assert.False(t, matchesFilter(&sub, Filter{Status: model.StatusActive}))
}

func TestGuardKey(t *testing.T) {
	assert.Equal(t, "guard:206160724517:tpcds:customer", guardKey("206160724517", "tpcds", "customer"))
	assert.Equal(t, "guard:206160724517:tpcds", guardKey("206160724517", "tpcds", ""))
}
