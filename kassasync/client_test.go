package kassasync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

// newAPIServer serves the auth endpoint plus one resource endpoint, recording
// the resource request for assertions.
func newAPIServer(t *testing.T, resourcePath string, payload string, lastReq **http.Request) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/token":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "test-token",
				"expires_in":   3600,
			})
		case resourcePath:
			clone := *r
			cloneURL := *r.URL
			clone.URL = &cloneURL
			*lastReq = &clone
			_, _ = w.Write([]byte(payload))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
}

func TestGetProducts_SendsBearerTokenAndParams(t *testing.T) {
	var lastReq *http.Request
	srv := newAPIServer(t, "/products", `{"products":[{"id":"1","idCategory":"5","name":"Pizza"}]}`, &lastReq)
	defer srv.Close()

	client := NewClientFor(srv.URL, srv.Client())
	products, err := client.GetProducts(context.Background(), ProductParams{
		ListParams:  ListParams{Start: 10, Limit: 50},
		IdsCategory: []string{"5", "6"},
		Sorts:       []SortSpec{{Field: "name", Desc: true}},
	}, "key-a")
	if err != nil {
		t.Fatalf("GetProducts: %v", err)
	}
	if len(products) != 1 || products[0].ID != "1" {
		t.Fatalf("unexpected products: %+v", products)
	}

	if got := lastReq.Header.Get("Authorization"); got != "Bearer test-token" {
		t.Fatalf("expected bearer token header, got %q", got)
	}

	q := lastReq.URL.Query()
	if q.Get("start") != "10" || q.Get("limit") != "50" {
		t.Fatalf("unexpected pagination params: %v", q)
	}
	// Array filters repeat the key.
	if ids := q["idsCategory"]; len(ids) != 2 || ids[0] != "5" || ids[1] != "6" {
		t.Fatalf("unexpected idsCategory params: %v", ids)
	}

	var sorts []SortSpec
	if err := json.Unmarshal([]byte(q.Get("sorts")), &sorts); err != nil {
		t.Fatalf("sorts param is not JSON: %v", err)
	}
	if len(sorts) != 1 || sorts[0].Field != "name" || !sorts[0].Desc {
		t.Fatalf("unexpected sorts: %+v", sorts)
	}
}

func TestGetReceipts_PassesDatesVerbatim(t *testing.T) {
	var lastReq *http.Request
	srv := newAPIServer(t, "/receipts", `{"receipts":[]}`, &lastReq)
	defer srv.Close()

	client := NewClientFor(srv.URL, srv.Client())
	cases := []struct {
		param    DateParam
		expected string
	}{
		{DateString("2024-01-05"), "2024-01-05"},
		{DateMillis(1704412800000), "1704412800000"},
	}
	for _, tc := range cases {
		_, err := client.GetReceipts(context.Background(), ReceiptParams{
			DatetimeFrom: tc.param,
			DatetimeTo:   tc.param,
		}, "key-a")
		if err != nil {
			t.Fatalf("GetReceipts: %v", err)
		}
		q := lastReq.URL.Query()
		if q.Get("datetimeFrom") != tc.expected || q.Get("datetimeTo") != tc.expected {
			t.Fatalf("expected date %q passed verbatim, got from=%q to=%q",
				tc.expected, q.Get("datetimeFrom"), q.Get("datetimeTo"))
		}
	}
}

func TestGetCategories_MissingKeyDecodesEmpty(t *testing.T) {
	var lastReq *http.Request
	srv := newAPIServer(t, "/categories", `{"totalCount":0}`, &lastReq)
	defer srv.Close()

	client := NewClientFor(srv.URL, srv.Client())
	page, err := client.GetCategories(context.Background(), CategoryParams{}, "key-a")
	if err != nil {
		t.Fatalf("GetCategories: %v", err)
	}
	if page.Categories == nil {
		t.Fatalf("expected non-nil empty slice for missing collection key")
	}
	if len(page.Categories) != 0 {
		t.Fatalf("expected empty categories, got %d", len(page.Categories))
	}
}

func TestGetJSON_NonSuccessStatusIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/token" {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "test-token",
				"expires_in":   3600,
			})
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClientFor(srv.URL, srv.Client())
	err := client.getJSON(context.Background(), "/stock", url.Values{}, "key-a", &stockEnvelope{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", apiErr.Status)
	}
	if apiErr.Body != "boom" {
		t.Fatalf("expected body %q, got %q", "boom", apiErr.Body)
	}
}
