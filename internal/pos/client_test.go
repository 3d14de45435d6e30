package pos

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/foodsync-backend/pkg/integration"
)

type fakeRequester struct {
	responses map[string]string
	errs      map[string][]error
	calls     []string
	bodies    map[string]any
	authCalls int
}

func (f *fakeRequester) Request(_ context.Context, method, path string, body, out any) error {
	if method != http.MethodPost {
		return &integration.Error{Code: integration.CodeHTTP, Status: http.StatusMethodNotAllowed}
	}
	f.calls = append(f.calls, path)
	if f.bodies == nil {
		f.bodies = map[string]any{}
	}
	f.bodies[path] = body
	if queued := f.errs[path]; len(queued) > 0 {
		f.errs[path] = queued[1:]
		return queued[0]
	}
	raw, ok := f.responses[path]
	if !ok {
		return &integration.Error{Code: integration.CodeHTTP, Status: http.StatusNotFound}
	}
	return json.Unmarshal([]byte(raw), out)
}

func (f *fakeRequester) Authenticate(context.Context) error {
	f.authCalls++
	return nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestNomenclatureRetriesTransientFailures(t *testing.T) {
	fake := &fakeRequester{
		responses: map[string]string{"/api/1/nomenclature": `{"revision":42,"groups":[{"id":"g1","name":"Pizza"}],"products":[{"id":"p1","name":"Margherita","type":"Dish","parentGroup":"g1"}]}`},
		errs:      map[string][]error{"/api/1/nomenclature": {&integration.Error{Code: integration.CodeNetwork}}},
	}
	client := NewWithRequester(fake, integration.RetryOptions{Retries: 2, Sleep: noSleep})

	got, err := client.Nomenclature(context.Background(), "org-1", 40)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.Revision)
	require.Len(t, got.Products, 1)
	assert.Equal(t, "g1", got.Products[0].CategoryID())
	assert.Len(t, fake.calls, 2)
	assert.Equal(t, nomenclatureRequest{OrganizationID: "org-1", StartRevision: 40}, fake.bodies["/api/1/nomenclature"])
}

func TestNomenclatureRequiresOrganization(t *testing.T) {
	client := NewWithRequester(&fakeRequester{}, integration.RetryOptions{Sleep: noSleep})
	_, err := client.Nomenclature(context.Background(), "", 0)
	require.Error(t, err)
	assert.Equal(t, integration.KindValidation, integration.KindOf(err))
}

func TestStopListsAreFlattenedPerTerminalGroup(t *testing.T) {
	fake := &fakeRequester{responses: map[string]string{
		"/api/1/stop_lists": `{"terminalGroupStopLists":[{"organizationId":"org","items":[
			{"terminalGroupId":"tg-1","items":[{"productId":"p1","balance":0},{"productId":"p2","sizeId":"s1","balance":2}]},
			{"terminalGroupId":"tg-2","items":[{"productId":"p3","balance":0}]}]}]}`,
	}}
	client := NewWithRequester(fake, integration.RetryOptions{Sleep: noSleep})

	items, err := client.StopLists(context.Background(), []string{"org"})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "tg-1", items[1].TerminalGroupID)
	assert.Equal(t, "s1", *items[1].SizeID)
	assert.Equal(t, "2", items[1].Balance.String())
	assert.Equal(t, "tg-2", items[2].TerminalGroupID)
}

func TestTerminalGroupsInheritOrganization(t *testing.T) {
	fake := &fakeRequester{responses: map[string]string{
		"/api/1/terminal_groups": `{"terminalGroups":[{"organizationId":"org","items":[{"id":"tg-1","name":"Center"}]}]}`,
	}}
	client := NewWithRequester(fake, integration.RetryOptions{Sleep: noSleep})
	groups, err := client.TerminalGroups(context.Background(), []string{"org"})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "org", groups[0].OrganizationID)
}

func TestCreateDeliveryRequiresOrderID(t *testing.T) {
	fake := &fakeRequester{responses: map[string]string{"/api/1/deliveries/create": `{"orderInfo":{}}`}}
	client := NewWithRequester(fake, integration.RetryOptions{Sleep: noSleep})
	_, err := client.CreateDelivery(context.Background(), DeliveryRequest{OrganizationID: "org"})
	require.Error(t, err)
	assert.Equal(t, integration.KindValidation, integration.KindOf(err))
	assert.Len(t, fake.calls, 1)
}

func TestTestConnectionAuthenticatesFirst(t *testing.T) {
	fake := &fakeRequester{responses: map[string]string{"/api/1/organizations": `{"organizations":[{"id":"org","name":"Main"}]}`}}
	client := NewWithRequester(fake, integration.RetryOptions{Sleep: noSleep})
	require.NoError(t, client.TestConnection(context.Background()))
	assert.Equal(t, 1, fake.authCalls)
	assert.Equal(t, []string{"/api/1/organizations"}, fake.calls)
}

func TestExtractSizeID(t *testing.T) {
	const size = "8A1B2C3D-0000-4000-8000-0123456789AB"
	cases := map[string]string{
		size:                   size,
		"product-1_" + size:    size,
		"a_b_" + size:          size,
		"product-1":            "",
		"product-1_not-a-uuid": "",
		"":                     "",
	}
	for input, want := range cases {
		assert.Equal(t, want, ExtractSizeID(input), "input %q", input)
	}
	assert.Equal(t, "a_b", ProductID("a_b_"+size))
	s := "s"
	assert.Equal(t, "p_s", VariantExternalID("p", &s))
	assert.Equal(t, "p", VariantExternalID("p", nil))
}
