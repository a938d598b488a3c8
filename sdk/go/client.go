package guildlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Guildline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// WithToken returns a copy of the client authenticating as another actor.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.BearerToken = token
	return &cp
}

type Actor struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Alias   string `json:"alias"`
	Email   string `json:"email"`
	Country string `json:"country"`
	Role    string `json:"role"`
	Status  string `json:"status"`
	Coins   int64  `json:"coins"`
}

type Mission struct {
	ID             string  `json:"id"`
	Description    string  `json:"description"`
	Details        string  `json:"details"`
	PaymentType    string  `json:"payment_type"`
	CoinsAmount    *int64  `json:"coins_amount"`
	Status         string  `json:"status"`
	CreatedBy      string  `json:"created_by"`
	AssignedTo     *string `json:"assigned_to"`
	EvidenceID     *string `json:"evidence_id"`
	CreatedAt      string  `json:"created_at"`
	PaidAt         *string `json:"paid_at"`
	CreatedByName  string  `json:"created_by_name"`
	AssignedToName string  `json:"assigned_to_name"`
}

type NewMission struct {
	Description string `json:"description"`
	Details     string `json:"details"`
	PaymentType string `json:"payment_type"`
	CoinsAmount *int64 `json:"coins_amount,omitempty"`
	AssignedTo  string `json:"assigned_to,omitempty"`
}

type NewActor struct {
	Name    string `json:"name"`
	Alias   string `json:"alias,omitempty"`
	Email   string `json:"email"`
	Country string `json:"country,omitempty"`
	Address string `json:"address,omitempty"`
	Role    string `json:"role,omitempty"`
	Coins   int64  `json:"coins,omitempty"`
}

type BloodDebt struct {
	ID             string  `json:"id"`
	Status         string  `json:"status"`
	CreatedBy      string  `json:"created_by"`
	PaidTo         *string `json:"paid_to"`
	CreatedMission string  `json:"created_mission"`
	PaidMission    *string `json:"paid_mission"`
}

type Counterparty struct {
	ActorID string `json:"actor_id"`
	Alias   string `json:"alias"`
	Debts   int    `json:"debts"`
}

type Transaction struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Date        string `json:"date"`
}

type CoinTrade struct {
	Transaction Transaction `json:"transaction"`
	Balance     int64       `json:"balance"`
	Money       int64       `json:"money"`
}

type Assassin struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Alias       string `json:"alias"`
	Country     string `json:"country"`
	Email       string `json:"email"`
	IsPurchased *bool  `json:"is_purchased"`
}

// Page is one page of a cursor-paginated listing.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

// DevLogin mints a token for a registered actor. The server must run with
// dev login enabled.
func (c *Client) DevLogin(ctx context.Context, actorID string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "auth/dev/login", map[string]string{"actor_id": actorID}, &resp)
	return resp.Token, err
}

func (c *Client) Me(ctx context.Context) (Actor, error) {
	var resp Actor
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

func (c *Client) CreateActor(ctx context.Context, in NewActor) (Actor, error) {
	var resp Actor
	err := c.do(ctx, http.MethodPost, "actors", in, &resp)
	return resp, err
}

func (c *Client) CreateMission(ctx context.Context, in NewMission) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodPost, "missions", in, &resp)
	return resp, err
}

func (c *Client) GetMission(ctx context.Context, id string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodGet, "missions/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListMissions lists missions; query takes status, payment_type, scope,
// limit and cursor.
func (c *Client) ListMissions(ctx context.Context, query url.Values) (Page[Mission], error) {
	var resp Page[Mission]
	err := c.do(ctx, http.MethodGet, withQuery("missions", query), nil, &resp)
	return resp, err
}

// Transition runs a mission action: publish, reject, assign,
// reject-evidence or pay.
func (c *Client) Transition(ctx context.Context, id, action string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("missions/%s/%s", url.PathEscape(id), action), nil, &resp)
	return resp, err
}

// Complete uploads evidence and completes the mission.
func (c *Client) Complete(ctx context.Context, id, filename, contentType string, data []byte) (Mission, error) {
	endpoint := withQuery(fmt.Sprintf("missions/%s/evidence", url.PathEscape(id)), url.Values{"filename": {filename}})
	var resp Mission
	err := c.send(ctx, http.MethodPost, endpoint, contentType, bytes.NewReader(data), &resp)
	return resp, err
}

// Evidence downloads the evidence of a mission.
func (c *Client) Evidence(ctx context.Context, id string) ([]byte, string, error) {
	res, err := c.raw(ctx, http.MethodGet, fmt.Sprintf("missions/%s/evidence", url.PathEscape(id)), "", nil)
	if err != nil {
		return nil, "", err
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	return data, res.Header.Get("Content-Type"), err
}

func (c *Client) Assassins(ctx context.Context, query url.Values) (Page[Assassin], error) {
	var resp Page[Assassin]
	err := c.do(ctx, http.MethodGet, withQuery("assassins", query), nil, &resp)
	return resp, err
}

func (c *Client) PurchaseInformation(ctx context.Context, targetID string) (Transaction, error) {
	var resp Transaction
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("assassins/%s/information", url.PathEscape(targetID)), nil, &resp)
	return resp, err
}

func (c *Client) BloodDebts(ctx context.Context, query url.Values) (Page[BloodDebt], error) {
	var resp Page[BloodDebt]
	err := c.do(ctx, http.MethodGet, withQuery("blood-debts", query), nil, &resp)
	return resp, err
}

func (c *Client) Debtors(ctx context.Context) ([]Counterparty, error) {
	var resp Page[Counterparty]
	err := c.do(ctx, http.MethodGet, "blood-debts/debtors", nil, &resp)
	return resp.Items, err
}

func (c *Client) Creditors(ctx context.Context) ([]Counterparty, error) {
	var resp Page[Counterparty]
	err := c.do(ctx, http.MethodGet, "blood-debts/creditors", nil, &resp)
	return resp.Items, err
}

func (c *Client) Transactions(ctx context.Context, query url.Values) (Page[Transaction], error) {
	var resp Page[Transaction]
	err := c.do(ctx, http.MethodGet, withQuery("transactions", query), nil, &resp)
	return resp, err
}

func (c *Client) BuyCoins(ctx context.Context, coins int64) (CoinTrade, error) {
	var resp CoinTrade
	err := c.do(ctx, http.MethodPost, "transactions/buy-coins", map[string]int64{"coins": coins}, &resp)
	return resp, err
}

func (c *Client) SellCoins(ctx context.Context, coins int64) (CoinTrade, error) {
	var resp CoinTrade
	err := c.do(ctx, http.MethodPost, "transactions/sell-coins", map[string]int64{"coins": coins}, &resp)
	return resp, err
}

func withQuery(endpoint string, query url.Values) string {
	if len(query) == 0 {
		return endpoint
	}
	return endpoint + "?" + query.Encode()
}

// Limit is a helper for building listing queries.
func Limit(n int) url.Values {
	return url.Values{"limit": {strconv.Itoa(n)}}
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	return c.send(ctx, method, endpoint, "application/json", &buf, out)
}

func (c *Client) send(ctx context.Context, method, endpoint, contentType string, body io.Reader, out any) error {
	res, err := c.raw(ctx, method, endpoint, contentType, body)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if out != nil {
		return json.NewDecoder(res.Body).Decode(out)
	}
	return nil
}

func (c *Client) raw(ctx context.Context, method, endpoint, contentType string, body io.Reader) (*http.Response, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base()+"/v1/"+strings.TrimLeft(endpoint, "/"), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= 300 {
		defer res.Body.Close()
		b, _ := io.ReadAll(res.Body)
		apiErr := &APIError{StatusCode: res.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
		}
		return nil, apiErr
	}
	return res, nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
