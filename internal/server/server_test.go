package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"guildline/internal/config"
	"guildline/internal/db"
	"guildline/internal/domain"
	"guildline/internal/engine"
	"guildline/internal/filestore"
	"guildline/internal/migrate"
	"guildline/internal/notify"
	guildlinesdk "guildline/sdk/go"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	Admin  *guildlinesdk.Client
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default(), filestore.Disk{Dir: db.EvidenceDir(workspace)}, notify.Nop{}, zerolog.Nop())
	admin, err := e.SeedActor(context.Background(), engine.ActorInput{Name: "Guildmaster", Alias: "master", Email: "master@guild.test", Role: domain.RoleAdmin, Coins: 100})
	if err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v1", Auth: AuthConfig{JWTSecret: testSecret, DevLogin: true}, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	s := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	token, err := SignToken(testSecret, admin.ID, admin.Role, 0)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	s.Admin = guildlinesdk.New(s.URL).WithToken(token)
	t.Cleanup(s.Close)
	return s
}

// assassin registers an assassin through the API and logs in as them.
func (s *testServer) assassin(t *testing.T, name string, coins int64) (*guildlinesdk.Client, guildlinesdk.Actor) {
	t.Helper()
	ctx := context.Background()
	a, err := s.Admin.CreateActor(ctx, guildlinesdk.NewActor{Name: name, Alias: "the " + name, Email: name + "@guild.test", Coins: coins})
	if err != nil {
		t.Fatalf("create actor %s: %v", name, err)
	}
	token, err := guildlinesdk.New(s.URL).DevLogin(ctx, a.ID)
	if err != nil {
		t.Fatalf("dev login: %v", err)
	}
	return guildlinesdk.New(s.URL).WithToken(token), a
}

func apiCode(t *testing.T, err error, status int, code string) {
	t.Helper()
	var apiErr *guildlinesdk.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected api error, got %v", err)
	}
	if apiErr.StatusCode != status || apiErr.Code != code {
		t.Fatalf("expected %d %s, got %d %s: %s", status, code, apiErr.StatusCode, apiErr.Code, apiErr.Body)
	}
}

func get(t *testing.T, s *testServer, path string) (*http.Response, []byte) {
	t.Helper()
	res, err := s.Client().Get(s.URL + path)
	if err != nil {
		t.Fatalf("get %s: %v", path, err)
	}
	defer res.Body.Close()
	data, _ := io.ReadAll(res.Body)
	return res, data
}

var pngData = []byte("\x89PNG\r\n\x1a\nproof of work")

func coins(n int64) *int64 { return &n }

func TestPublicEndpointsAndAuth(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	if res, _ := get(t, s, "/v1/health"); res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
	if res, data := get(t, s, "/v1/openapi.json"); res.StatusCode != http.StatusOK || len(data) == 0 {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
	if res, _ := get(t, s, "/docs"); res.StatusCode != http.StatusOK {
		t.Fatalf("docs status %d", res.StatusCode)
	}

	_, err := guildlinesdk.New(s.URL).Me(ctx)
	apiCode(t, err, http.StatusUnauthorized, "unauthorized")
	_, err = guildlinesdk.New(s.URL).WithToken("garbage").Me(ctx)
	apiCode(t, err, http.StatusUnauthorized, "invalid_credentials")
	forged, _ := SignToken("other-secret", "someone", domain.RoleAdmin, 0)
	_, err = guildlinesdk.New(s.URL).WithToken(forged).Me(ctx)
	apiCode(t, err, http.StatusUnauthorized, "invalid_credentials")

	ghost, _ := SignToken(testSecret, "ghost", domain.RoleAdmin, 0)
	_, err = guildlinesdk.New(s.URL).WithToken(ghost).Me(ctx)
	apiCode(t, err, http.StatusForbidden, "forbidden")

	me, err := s.Admin.Me(ctx)
	if err != nil || me.Role != "ADMIN" || me.Coins != 100 {
		t.Fatalf("me = %+v, %v", me, err)
	}

	if res, data := get(t, s, "/metrics"); res.StatusCode != http.StatusOK || len(data) == 0 {
		t.Fatalf("metrics status %d", res.StatusCode)
	}
}

func TestCoinsMissionOverHTTP(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	x, xActor := s.assassin(t, "xavier", 0)

	m, err := s.Admin.CreateMission(ctx, guildlinesdk.NewMission{Description: "Steal the seal", Details: "The harbour master keeps it", PaymentType: "COINS", CoinsAmount: coins(50)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.Status != "PUBLISHED" {
		t.Fatalf("status = %s", m.Status)
	}
	if m, err = x.Transition(ctx, m.ID, "assign"); err != nil || m.Status != "ASSIGNED" {
		t.Fatalf("assign: %v", err)
	}
	if m, err = x.Complete(ctx, m.ID, "seal.png", "image/png", pngData); err != nil || m.Status != "COMPLETED" || m.EvidenceID == nil {
		t.Fatalf("complete: %+v %v", m, err)
	}
	data, ct, err := s.Admin.Evidence(ctx, m.ID)
	if err != nil || string(data) != string(pngData) || ct != "image/png" {
		t.Fatalf("evidence = %q %q %v", data, ct, err)
	}
	if m, err = s.Admin.Transition(ctx, m.ID, "pay"); err != nil || m.Status != "PAID" {
		t.Fatalf("pay: %v", err)
	}

	me, _ := x.Me(ctx)
	if me.Coins != 50 {
		t.Fatalf("assassin coins = %d", me.Coins)
	}
	txs, err := x.Transactions(ctx, url.Values{"description": {"MISSION_REWARD"}})
	if err != nil || len(txs.Items) != 1 || txs.Items[0].Amount != 50 || txs.Items[0].UserID != xActor.ID {
		t.Fatalf("transactions = %+v, %v", txs, err)
	}
	view, err := x.GetMission(ctx, m.ID)
	if err != nil || view.CreatedByName != "Guildmaster" || view.AssignedToName != "xavier" {
		t.Fatalf("view = %+v, %v", view, err)
	}
}

func TestErrorEnvelope(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	a, _ := s.assassin(t, "alice", 30)
	b, _ := s.assassin(t, "bruno", 0)

	_, err := a.CreateMission(ctx, guildlinesdk.NewMission{Description: "Too rich", Details: "Way beyond means", PaymentType: "COINS", CoinsAmount: coins(50)})
	apiCode(t, err, http.StatusBadRequest, "insufficient_funds")

	_, err = a.CreateMission(ctx, guildlinesdk.NewMission{Description: "x", Details: "Too short a description", PaymentType: "COINS", CoinsAmount: coins(5)})
	apiCode(t, err, http.StatusBadRequest, "validation")

	m, err := a.CreateMission(ctx, guildlinesdk.NewMission{Description: "Quiet job", Details: "Nothing fancy", PaymentType: "COINS", CoinsAmount: coins(10)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = a.Transition(ctx, m.ID, "publish")
	apiCode(t, err, http.StatusForbidden, "forbidden")
	_, err = b.GetMission(ctx, m.ID)
	apiCode(t, err, http.StatusNotFound, "not_found")

	if _, err := s.Admin.Transition(ctx, m.ID, "publish"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	_, err = s.Admin.Transition(ctx, m.ID, "publish")
	apiCode(t, err, http.StatusConflict, "invalid_state")
	_, err = a.Transition(ctx, m.ID, "assign")
	apiCode(t, err, http.StatusBadRequest, "self_assignment")
	_, err = s.Admin.Transition(ctx, "missing", "reject")
	apiCode(t, err, http.StatusNotFound, "not_found")

	if _, err := b.Transition(ctx, m.ID, "assign"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	_, err = a.Complete(ctx, m.ID, "proof.png", "image/png", pngData)
	apiCode(t, err, http.StatusForbidden, "not_assignee")
	_, err = b.Complete(ctx, m.ID, "proof.pdf", "application/pdf", []byte("%PDF-1.4"))
	apiCode(t, err, http.StatusBadRequest, "validation")
}

func TestBloodDebtOverHTTP(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	a, aActor := s.assassin(t, "alice", 0)
	b, bActor := s.assassin(t, "bruno", 0)

	m, err := a.CreateMission(ctx, guildlinesdk.NewMission{Description: "A favour", Details: "Silence the informant", PaymentType: "BLOOD_DEBT"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	s.Admin.Transition(ctx, m.ID, "publish")
	b.Transition(ctx, m.ID, "assign")
	b.Complete(ctx, m.ID, "proof.png", "image/png", pngData)
	if _, err := a.Transition(ctx, m.ID, "pay"); err != nil {
		t.Fatalf("pay: %v", err)
	}

	debtors, err := b.Debtors(ctx)
	if err != nil || len(debtors) != 1 || debtors[0].ActorID != aActor.ID {
		t.Fatalf("debtors = %+v, %v", debtors, err)
	}
	creditors, _ := a.Creditors(ctx)
	if len(creditors) != 1 || creditors[0].ActorID != bActor.ID {
		t.Fatalf("creditors = %+v", creditors)
	}
	owing, _ := a.BloodDebts(ctx, url.Values{"side": {"owing"}})
	if len(owing.Items) != 1 || owing.Items[0].Status != "PAID_INITIAL_MISSION" {
		t.Fatalf("owing = %+v", owing)
	}

	c, err := b.CreateMission(ctx, guildlinesdk.NewMission{Description: "Settle up", Details: "Return the favour", PaymentType: "BLOOD_DEBT_COLLECTION", AssignedTo: aActor.ID})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	c, err = s.Admin.Transition(ctx, c.ID, "publish")
	if err != nil || c.Status != "ASSIGNED" {
		t.Fatalf("approve collection: %+v %v", c, err)
	}
	a.Complete(ctx, c.ID, "proof.png", "", pngData)
	if c, err = b.Transition(ctx, c.ID, "pay"); err != nil || c.Status != "PAID" {
		t.Fatalf("pay collection: %v", err)
	}
	owing, _ = a.BloodDebts(ctx, url.Values{"side": {"owing"}})
	if owing.Items[0].Status != "PAID" {
		t.Fatalf("debt = %+v", owing.Items[0])
	}
}

func TestMarketplaceOverHTTP(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	a, _ := s.assassin(t, "alice", 150)
	_, bActor := s.assassin(t, "bruno", 0)

	page, err := a.Assassins(ctx, nil)
	if err != nil || len(page.Items) != 1 || page.Items[0].Name != "???" || page.Items[0].Email != "" {
		t.Fatalf("directory = %+v, %v", page, err)
	}
	tx, err := a.PurchaseInformation(ctx, bActor.ID)
	if err != nil || tx.Amount != -100 {
		t.Fatalf("purchase = %+v, %v", tx, err)
	}
	_, err = a.PurchaseInformation(ctx, bActor.ID)
	apiCode(t, err, http.StatusConflict, "already_purchased")
	page, _ = a.Assassins(ctx, url.Values{"alias": {"bruno"}})
	if len(page.Items) != 1 || page.Items[0].Name != "bruno" || !*page.Items[0].IsPurchased {
		t.Fatalf("purchased listing = %+v", page)
	}

	trade, err := a.BuyCoins(ctx, 25)
	if err != nil || trade.Balance != 75 || trade.Money != 250 {
		t.Fatalf("buy = %+v, %v", trade, err)
	}
	_, err = a.SellCoins(ctx, 500)
	apiCode(t, err, http.StatusBadRequest, "insufficient_funds")
	_, err = a.BuyCoins(ctx, 0)
	apiCode(t, err, http.StatusBadRequest, "bad_request")
}

func TestPaginationAndDeactivation(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := s.Admin.CreateMission(ctx, guildlinesdk.NewMission{Description: "Job number", Details: "Routine work", PaymentType: "COINS", CoinsAmount: coins(10)}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	first, err := s.Admin.ListMissions(ctx, guildlinesdk.Limit(2))
	if err != nil || len(first.Items) != 2 || first.NextCursor == "" {
		t.Fatalf("first page = %+v, %v", first, err)
	}
	q := guildlinesdk.Limit(2)
	q.Set("cursor", first.NextCursor)
	second, err := s.Admin.ListMissions(ctx, q)
	if err != nil || len(second.Items) != 1 || second.NextCursor != "" {
		t.Fatalf("second page = %+v, %v", second, err)
	}
	if second.Items[0].ID == first.Items[0].ID || second.Items[0].ID == first.Items[1].ID {
		t.Fatalf("pages overlap")
	}
	_, err = s.Admin.ListMissions(ctx, url.Values{"cursor": {"broken"}})
	apiCode(t, err, http.StatusBadRequest, "bad_request")

	x, xActor := s.assassin(t, "xavier", 0)
	if _, err := x.Me(ctx); err != nil {
		t.Fatalf("me: %v", err)
	}
	if _, err := s.Engine.SetActorStatus(ctx, engine.Requester{ActorID: mustMe(t, s.Admin).ID}, xActor.ID, domain.ActorInactive); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	_, err = x.Me(ctx)
	apiCode(t, err, http.StatusForbidden, "forbidden")
}

func mustMe(t *testing.T, c *guildlinesdk.Client) guildlinesdk.Actor {
	t.Helper()
	me, err := c.Me(context.Background())
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	return me
}

func TestOpenAPIDocumentDescribesErrorEnvelope(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < 2; i++ {
		res, data := get(t, s, "/v1/openapi.json")
		if res.StatusCode != http.StatusOK {
			t.Fatalf("openapi request %d: status %d", i, res.StatusCode)
		}
		var doc struct {
			Components struct {
				Schemas map[string]json.RawMessage `json:"schemas"`
			} `json:"components"`
			Paths map[string]map[string]struct {
				Responses map[string]struct {
					Content map[string]struct {
						Schema struct {
							Ref string `json:"$ref"`
						} `json:"schema"`
					} `json:"content"`
				} `json:"responses"`
			} `json:"paths"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			t.Fatalf("decode openapi: %v", err)
		}
		if _, ok := doc.Components.Schemas["ApiError"]; !ok {
			t.Fatalf("ApiError schema missing")
		}
		op, ok := doc.Paths["/v1/missions/{id}/publish"]["post"]
		if !ok {
			t.Fatalf("publish operation missing")
		}
		if ref := op.Responses["default"].Content["application/json"].Schema.Ref; ref != "#/components/schemas/ApiError" {
			t.Fatalf("default response ref = %q", ref)
		}
	}
}

func TestInternalErrorsLogThroughRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())

	se := handleError(ctx, errors.New("disk unplugged"))
	if se.GetStatus() != http.StatusInternalServerError {
		t.Fatalf("status = %d", se.GetStatus())
	}
	if body := se.(*apiError).Body; body.Code != "internal_error" || strings.Contains(body.Message, "disk") {
		t.Fatalf("internal detail leaked: %+v", body)
	}
	if !strings.Contains(buf.String(), "disk unplugged") {
		t.Fatalf("internal error not logged: %q", buf.String())
	}

	buf.Reset()
	se = handleError(ctx, domain.Validation("bad"))
	if se.GetStatus() != http.StatusBadRequest || buf.Len() != 0 {
		t.Fatalf("domain error: status %d, log %q", se.GetStatus(), buf.String())
	}
}
