package notion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *MockClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *MockClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func TestMockClientSatisfiesInterface(t *testing.T) {
	t.Parallel()
	var _ Client = (*MockClient)(nil)
}

// redirect sends every request to the test server.
type redirect struct {
	target *url.URL
}

func (r redirect) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = r.target.Scheme
	req.URL.Host = r.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newTestClient(t *testing.T, h http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return NewClient("secret-token",
		WithRateLimit(0),
		WithHTTPClient(&http.Client{Transport: redirect{target: u}}),
	)
}

func caseProperties() notionapi.Properties {
	return notionapi.Properties{
		"Company": notionapi.TitleProperty{Type: notionapi.PropertyTypeTitle, Title: RichText("Fjord Logistikk AS")},
		"Case ID": notionapi.RichTextProperty{Type: notionapi.PropertyTypeRichText, RichText: RichText("case-7")},
		"Org.nr":  notionapi.RichTextProperty{Type: notionapi.PropertyTypeRichText, RichText: RichText("923456789")},
		"Trigger": notionapi.SelectProperty{Type: notionapi.PropertyTypeSelect, Select: notionapi.Option{Name: "Restructuring"}},
		"Stars":   notionapi.SelectProperty{Type: notionapi.PropertyTypeSelect, Select: notionapi.Option{Name: "★★★"}},
	}
}

type textItem struct {
	Text struct {
		Content string `json:"content"`
	} `json:"text"`
}

type propertyBody struct {
	Title    []textItem `json:"title"`
	RichText []textItem `json:"rich_text"`
	Select   struct {
		Name string `json:"name"`
	} `json:"select"`
}

// pageBody is the subset of a page request the tests inspect.
type pageBody struct {
	Parent struct {
		Type       string `json:"type"`
		DatabaseID string `json:"database_id"`
	} `json:"parent"`
	Properties map[string]propertyBody `json:"properties"`
}

func TestClient_CreatePage_CaseProperties(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/pages", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("Notion-Version"))

		var body pageBody
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "database_id", body.Parent.Type)
		assert.Equal(t, "db-cases", body.Parent.DatabaseID)
		if assert.Len(t, body.Properties["Company"].Title, 1) {
			assert.Equal(t, "Fjord Logistikk AS", body.Properties["Company"].Title[0].Text.Content)
		}
		if assert.Len(t, body.Properties["Org.nr"].RichText, 1) {
			assert.Equal(t, "923456789", body.Properties["Org.nr"].RichText[0].Text.Content)
		}
		assert.Equal(t, "case-7", body.Properties["Case ID"].RichText[0].Text.Content)
		assert.Equal(t, "★★★", body.Properties["Stars"].Select.Name)
		assert.Equal(t, "Restructuring", body.Properties["Trigger"].Select.Name)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"page","id":"page-42","url":"https://www.notion.so/page-42"}`)) //nolint:errcheck
	})

	page, err := c.CreatePage(context.Background(), &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID("db-cases"),
		},
		Properties: caseProperties(),
	})
	require.NoError(t, err)
	assert.Equal(t, notionapi.ObjectID("page-42"), page.ID)
	assert.Equal(t, "https://www.notion.so/page-42", page.URL)
}

func TestClient_UpdatePage_Feedback(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/v1/pages/page-42", r.URL.Path)

		var body pageBody
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body.Properties, 1)
		assert.Equal(t, "Relevant", body.Properties["Feedback"].Select.Name)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"page","id":"page-42"}`)) //nolint:errcheck
	})

	page, err := c.UpdatePage(context.Background(), "page-42", &notionapi.PageUpdateRequest{
		Properties: notionapi.Properties{
			"Feedback": notionapi.SelectProperty{Type: notionapi.PropertyTypeSelect, Select: notionapi.Option{Name: "Relevant"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, notionapi.ObjectID("page-42"), page.ID)
}

func TestClient_QueryDatabase_GradedFilter(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/databases/db-cases/query", r.URL.Path)

		var body struct {
			Filter struct {
				Property string `json:"property"`
				Select   struct {
					IsNotEmpty bool `json:"is_not_empty"`
				} `json:"select"`
			} `json:"filter"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Feedback", body.Filter.Property)
		assert.True(t, body.Filter.Select.IsNotEmpty)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","results":[{"object":"page","id":"page-1"}],"has_more":false}`)) //nolint:errcheck
	})

	pages, err := QueryGraded(context.Background(), c, "db-cases", "Feedback")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, notionapi.ObjectID("page-1"), pages[0].ID)
}

func TestClient_CreatePage_APIError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"object":"error","status":400,"code":"validation_error","message":"Stars is not a property that exists."}`)) //nolint:errcheck
	})

	page, err := c.CreatePage(context.Background(), &notionapi.PageCreateRequest{Properties: caseProperties()})
	require.Error(t, err)
	assert.Nil(t, page)
	assert.Contains(t, err.Error(), "notion: create page")
	assert.Contains(t, err.Error(), "Stars is not a property that exists.")
}

func TestClient_UpdatePage_CancelledBeforeRateLimit(t *testing.T) {
	t.Parallel()

	c := NewClient("secret-token", WithRateLimit(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.UpdatePage(ctx, "page-42", &notionapi.PageUpdateRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion: rate limit")
}

func TestNewClientReturnsClient(t *testing.T) {
	c := NewClient("test-token")
	assert.NotNil(t, c)
	var _ Client = c //nolint:staticcheck // interface compliance check
}
