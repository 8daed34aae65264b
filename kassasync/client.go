package kassasync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.kassacloud.com/v1"

// Client is the typed KassaCloud API client: one method per resource, exactly
// one HTTP request per call. Pagination, chunking and retries are the
// orchestrator's business.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  *TokenManager
}

func NewClient() *Client {
	baseURL := strings.TrimSpace(os.Getenv("KASSA_API_BASE_URL"))
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := 30 * time.Second
	if v := strings.TrimSpace(os.Getenv("KASSA_HTTP_TIMEOUT_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			timeout = time.Duration(n) * time.Second
		}
	}
	httpClient := &http.Client{Timeout: timeout}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		tokens:  NewTokenManager(baseURL, httpClient),
	}
}

// NewClientFor builds a client against a fixed base URL with its own token
// manager. Used by tests and by deployments pointing at a sandbox tenant.
func NewClientFor(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		tokens:  NewTokenManager(baseURL, httpClient),
	}
}

func (c *Client) Tokens() *TokenManager { return c.tokens }

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, apiKey string, dest any) error {
	token, err := c.tokens.GetValidAccessToken(ctx, apiKey)
	if err != nil {
		return err
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return json.Unmarshal(body, dest)
}

func (c *Client) GetCategories(ctx context.Context, p CategoryParams, apiKey string) (CategoryPage, error) {
	var env categoriesEnvelope
	if err := c.getJSON(ctx, "/categories", p.values(), apiKey, &env); err != nil {
		return CategoryPage{}, err
	}
	if env.Categories == nil {
		env.Categories = []KassaCategory{}
	}
	return CategoryPage{Categories: env.Categories, TotalCount: env.TotalCount}, nil
}

func (c *Client) GetProducts(ctx context.Context, p ProductParams, apiKey string) ([]KassaProduct, error) {
	var env productsEnvelope
	if err := c.getJSON(ctx, "/products", p.values(), apiKey, &env); err != nil {
		return nil, err
	}
	if env.Products == nil {
		env.Products = []KassaProduct{}
	}
	return env.Products, nil
}

func (c *Client) GetCustomers(ctx context.Context, p CustomerParams, apiKey string) ([]KassaCustomer, error) {
	var env customersEnvelope
	if err := c.getJSON(ctx, "/customers", p.values(), apiKey, &env); err != nil {
		return nil, err
	}
	if env.Customers == nil {
		env.Customers = []KassaCustomer{}
	}
	return env.Customers, nil
}

func (c *Client) GetReceipts(ctx context.Context, p ReceiptParams, apiKey string) ([]KassaReceipt, error) {
	var env receiptsEnvelope
	if err := c.getJSON(ctx, "/receipts", p.values(), apiKey, &env); err != nil {
		return nil, err
	}
	if env.Receipts == nil {
		env.Receipts = []KassaReceipt{}
	}
	return env.Receipts, nil
}

func (c *Client) GetRooms(ctx context.Context, p RoomParams, apiKey string) ([]KassaRoom, error) {
	var env roomsEnvelope
	if err := c.getJSON(ctx, "/rooms", p.values(), apiKey, &env); err != nil {
		return nil, err
	}
	if env.Rooms == nil {
		env.Rooms = []KassaRoom{}
	}
	return env.Rooms, nil
}

func (c *Client) GetTables(ctx context.Context, p TableParams, apiKey string) ([]KassaTable, error) {
	var env tablesEnvelope
	if err := c.getJSON(ctx, "/tables", p.values(), apiKey, &env); err != nil {
		return nil, err
	}
	if env.Tables == nil {
		env.Tables = []KassaTable{}
	}
	return env.Tables, nil
}

func (c *Client) GetStock(ctx context.Context, p StockParams, apiKey string) ([]KassaStockLevel, error) {
	var env stockEnvelope
	if err := c.getJSON(ctx, "/stock", p.values(), apiKey, &env); err != nil {
		return nil, err
	}
	if env.Stock == nil {
		env.Stock = []KassaStockLevel{}
	}
	return env.Stock, nil
}

func (c *Client) GetSalesPoints(ctx context.Context, apiKey string) ([]KassaSalesPoint, error) {
	var env salesPointsEnvelope
	if err := c.getJSON(ctx, "/sales-points", url.Values{}, apiKey, &env); err != nil {
		return nil, err
	}
	if env.SalesPoints == nil {
		env.SalesPoints = []KassaSalesPoint{}
	}
	return env.SalesPoints, nil
}

func (c *Client) GetSoldByProductReport(ctx context.Context, p SoldByProductParams, apiKey string) ([]KassaSoldByProduct, error) {
	var env soldByProductEnvelope
	if err := c.getJSON(ctx, "/reports/sold-by-product", p.values(), apiKey, &env); err != nil {
		return nil, err
	}
	if env.Sold == nil {
		env.Sold = []KassaSoldByProduct{}
	}
	return env.Sold, nil
}
