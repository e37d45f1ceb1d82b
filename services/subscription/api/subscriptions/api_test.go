package subscriptions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/go-playground/validator.v9"

	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/model"
	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/tracker"
)

// memoryStore keeps subscriptions in a map while honoring the same state
// machine the real tracker enforces.
type memoryStore struct {
	subs map[string]*model.Subscription
}

func newMemoryStore() *memoryStore {
	return &memoryStore{subs: map[string]*model.Subscription{}}
}

func (m *memoryStore) CreateSubscriptionRequest(_ context.Context, owner, database string, tables []string, principal string, grants []model.Permission, _ bool) ([]tracker.CreatedSubscription, error) {
	targets := tables
	if len(targets) == 0 {
		targets = []string{""}
	}

	var out []tracker.CreatedSubscription
	for _, table := range targets {
		id := uuid.New().String()
		m.subs[id] = &model.Subscription{
			SubscriptionID:      id,
			OwnerPrincipal:      owner,
			SubscriberPrincipal: principal,
			DatabaseName:        database,
			TableName:           table,
			RequestedGrants:     grants,
			Status:              model.StatusPending,
		}
		target := database
		if table != "" {
			target = fmt.Sprintf("%s.%s", database, table)
		}
		out = append(out, tracker.CreatedSubscription{Target: target, SubscriptionID: id})
	}
	return out, nil
}

func (m *memoryStore) GetSubscription(_ context.Context, id string, _ bool) (*model.Subscription, error) {
	sub, ok := m.subs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrSubscriptionNotFound, id)
	}
	copied := *sub
	return &copied, nil
}

func (m *memoryStore) ListSubscriptions(_ context.Context, filter tracker.Filter) ([]model.Subscription, error) {
	if filter.OwnerID == "" && filter.PrincipalID == "" {
		return nil, fmt.Errorf("listing subscriptions requires an owner or principal filter")
	}
	var out []model.Subscription
	for _, sub := range m.subs {
		if filter.OwnerID != "" && sub.OwnerPrincipal != filter.OwnerID {
			continue
		}
		if filter.PrincipalID != "" && sub.SubscriberPrincipal != filter.PrincipalID {
			continue
		}
		if filter.Status != "" && sub.Status != filter.Status {
			continue
		}
		out = append(out, *sub)
	}
	return out, nil
}

func (m *memoryStore) UpdateStatus(_ context.Context, id string, status model.Status, opts tracker.UpdateOptions) error {
	sub, ok := m.subs[id]
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrSubscriptionNotFound, id)
	}
	if !model.CanTransition(sub.Status, status) {
		return fmt.Errorf("%w: %s to %s", model.ErrInvalidStateTransition, sub.Status, status)
	}
	sub.Status = status
	if status == model.StatusActive {
		sub.PermittedGrants = opts.PermittedGrants
		sub.RAMShares = opts.RAMShares
	}
	if opts.Notes != "" {
		sub.Notes = append(sub.Notes, opts.Notes)
	}
	return nil
}

func (m *memoryStore) UpdateGrants(_ context.Context, id string, grants []model.Permission, note string) error {
	sub, ok := m.subs[id]
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrSubscriptionNotFound, id)
	}
	if sub.Status != model.StatusActive {
		return fmt.Errorf("%w: subscription is %s", model.ErrInvalidStateTransition, sub.Status)
	}
	sub.PermittedGrants = grants
	if note != "" {
		sub.Notes = append(sub.Notes, note)
	}
	return nil
}

func (m *memoryStore) DeleteSubscription(ctx context.Context, id, reason string) error {
	return m.UpdateStatus(ctx, id, model.StatusDeleted, tracker.UpdateOptions{Notes: reason})
}

type testValidator struct {
	validate *validator.Validate
}

func (v testValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

func setupAPI(t *testing.T) (*echo.Echo, *memoryStore) {
	t.Helper()

	store := newMemoryStore()
	e := echo.New()
	e.Validator = testValidator{validate: validator.New()}
	New(zap.NewNop(), store).Register(e.Group("/api/v1/subscriptions"))
	return e, store
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCreateSubscriptionValidation(t *testing.T) {
	e, _ := setupAPI(t)

	rec := do(e, http.MethodPost, "/api/v1/subscriptions",
		`{"ownerAccountId":"short","subscriberPrincipal":"206160724517","databaseName":"tpcds","requestedGrants":["SELECT"]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/api/v1/subscriptions",
		`{"ownerAccountId":"600214582022","subscriberPrincipal":"206160724517","databaseName":"tpcds","requestedGrants":["OWN"]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/api/v1/subscriptions",
		`{"ownerAccountId":"600214582022","subscriberPrincipal":"206160724517","databaseName":"tpcds","tables":["customer"],"requestedGrants":["SELECT"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Subscriptions []struct {
			Target         string `json:"target"`
			SubscriptionID string `json:"subscriptionId"`
		} `json:"subscriptions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Subscriptions, 1)
	require.Equal(t, "tpcds.customer", resp.Subscriptions[0].Target)
	require.NotEmpty(t, resp.Subscriptions[0].SubscriptionID)
}

func TestSubscriptionLifecycleOverHTTP(t *testing.T) {
	e, store := setupAPI(t)

	rec := do(e, http.MethodPost, "/api/v1/subscriptions",
		`{"ownerAccountId":"600214582022","subscriberPrincipal":"206160724517","databaseName":"tpcds","tables":["customer"],"requestedGrants":["SELECT","DESCRIBE"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var created struct {
		Subscriptions []struct {
			SubscriptionID string `json:"subscriptionId"`
		} `json:"subscriptions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created.Subscriptions[0].SubscriptionID

	rec = do(e, http.MethodPost, "/api/v1/subscriptions/"+id+"/approve",
		`{"permittedGrants":["SELECT"],"ramShares":{"customer":"arn:aws:ram:us-east-1:887210671223:resource-share/abc"},"notes":"approved"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, model.StatusActive, store.subs[id].Status)
	require.Equal(t, []model.Permission{model.PermissionSelect}, store.subs[id].PermittedGrants)

	// A second approval is a conflict, not a repeatable action.
	rec = do(e, http.MethodPost, "/api/v1/subscriptions/"+id+"/approve", `{}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(e, http.MethodPut, "/api/v1/subscriptions/"+id+"/grants",
		`{"permittedGrants":["SELECT","INSERT"],"notes":"widened"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(e, http.MethodDelete, "/api/v1/subscriptions/"+id, `{"reason":"no longer needed"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, model.StatusDeleted, store.subs[id].Status)
}

func TestDenyRequiresReason(t *testing.T) {
	e, store := setupAPI(t)

	created, err := store.CreateSubscriptionRequest(context.Background(),
		"600214582022", "tpcds", nil, "206160724517",
		[]model.Permission{model.PermissionSelect}, true)
	require.NoError(t, err)
	id := created[0].SubscriptionID

	rec := do(e, http.MethodPost, "/api/v1/subscriptions/"+id+"/deny", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/api/v1/subscriptions/"+id+"/deny", `{"reason":"not compliant"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, model.StatusDenied, store.subs[id].Status)
}

func TestGetSubscriptionNotFound(t *testing.T) {
	e, _ := setupAPI(t)

	rec := do(e, http.MethodGet, "/api/v1/subscriptions/"+uuid.New().String(), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRequiresPrincipal(t *testing.T) {
	e, store := setupAPI(t)

	_, err := store.CreateSubscriptionRequest(context.Background(),
		"600214582022", "tpcds", []string{"customer", "item"}, "206160724517",
		[]model.Permission{model.PermissionSelect}, true)
	require.NoError(t, err)

	rec := do(e, http.MethodGet, "/api/v1/subscriptions", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = do(e, http.MethodGet, "/api/v1/subscriptions?principal=206160724517&status=Pending", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Subscriptions []model.Subscription `json:"subscriptions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Subscriptions, 2)
}
