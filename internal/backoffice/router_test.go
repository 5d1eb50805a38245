package backoffice_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/evetabi/periodsettle/internal/backoffice"
	"github.com/evetabi/periodsettle/internal/backoffice/handler"
	"github.com/evetabi/periodsettle/internal/config"
	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/evetabi/periodsettle/internal/scheduler"
	"github.com/evetabi/periodsettle/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() { gin.SetMode(gin.TestMode) }

var itemID = uuid.MustParse("22222222-2222-2222-2222-222222222222")

// stubCatalog records the last write it received.
type stubCatalog struct {
	mu       sync.Mutex
	created  service.ItemInput
	override domain.OverrideRequest
	settled  bool
}

func (s *stubCatalog) ListItems(context.Context, int, int) ([]*domain.WageringItem, int, error) {
	return []*domain.WageringItem{{ID: itemID, Title: "dice", PeriodDurationSeconds: 60, Active: true}}, 1, nil
}

func (s *stubCatalog) GetItem(_ context.Context, id uuid.UUID) (*domain.WageringItem, error) {
	if id != itemID {
		return nil, domain.ErrItemNotFound
	}
	return &domain.WageringItem{ID: id, Title: "dice"}, nil
}

func (s *stubCatalog) CreateItem(_ context.Context, in service.ItemInput) (*domain.WageringItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = in
	if err := in.Coefficients.Validate(); err != nil {
		return nil, err
	}
	return &domain.WageringItem{ID: uuid.New(), Title: in.Title, Active: in.Active}, nil
}

func (s *stubCatalog) UpdateItem(_ context.Context, id uuid.UUID, in service.ItemInput) (*domain.WageringItem, error) {
	return &domain.WageringItem{ID: id, Title: in.Title}, nil
}

func (s *stubCatalog) DisableItem(context.Context, uuid.UUID) error { return nil }

func (s *stubCatalog) OverrideOutcome(_ context.Context, req domain.OverrideRequest) (*domain.OutcomeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.override = req
	if s.settled {
		return nil, domain.ErrOutcomeAlreadySettled
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	editor := req.Editor
	return &domain.OutcomeRecord{ItemID: req.ItemID, Period: req.Period, Primary: req.Primary, Editor: &editor, Source: domain.SourceOverride}, nil
}

func (s *stubCatalog) OutcomeHistory(context.Context, uuid.UUID, int, int) ([]*domain.OutcomeRecord, int, error) {
	return []*domain.OutcomeRecord{{ItemID: itemID, Period: 4}, {ItemID: itemID, Period: 3, Settled: true}}, 2, nil
}

type stubView []scheduler.ItemStatus

func (v stubView) Snapshot() []scheduler.ItemStatus { return v }

// ── Helpers ───────────────────────────────────────────────────────────────────

func testCfg() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Env: "development"},
		JWT:    config.JWTConfig{AccessSecret: "backoffice-test-secret-0123456789"},
	}
}

type harness struct {
	h       http.Handler
	auth    *service.AuthService
	catalog *stubCatalog
}

func build(t *testing.T, cfg *config.Config, view handler.SchedulerView) *harness {
	t.Helper()
	auth := service.NewAuthService(cfg)
	catalog := &stubCatalog{}
	r := backoffice.SetupBackofficeRouter(backoffice.BackofficeDeps{
		Auth:      auth,
		Catalog:   catalog,
		Scheduler: view,
		Cfg:       cfg,
	})
	return &harness{h: r, auth: auth, catalog: catalog}
}

func (hs *harness) bearer(t *testing.T, subject uuid.UUID, role domain.UserRole) map[string]string {
	t.Helper()
	tok, err := hs.auth.IssueAccessToken(subject, role, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	return map[string]string{"Authorization": "Bearer " + tok}
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&m); err != nil {
		t.Fatalf("invalid JSON: %v, body: %s", err, rr.Body.String())
	}
	return m
}

// ── Access control ────────────────────────────────────────────────────────────

func TestAdmin_RoleGates(t *testing.T) {
	hs := build(t, testCfg(), nil)
	override := "/admin/items/" + itemID.String() + "/outcomes/5"

	if rr := do(t, hs.h, http.MethodGet, "/admin/items", "", nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", rr.Code)
	}
	if rr := do(t, hs.h, http.MethodGet, "/admin/items", "", hs.bearer(t, uuid.New(), domain.RoleUser)); rr.Code != http.StatusForbidden {
		t.Errorf("bettor = %d, want 403", rr.Code)
	}

	readonly := hs.bearer(t, uuid.New(), domain.RoleReadOnly)
	if rr := do(t, hs.h, http.MethodGet, "/admin/items", "", readonly); rr.Code != http.StatusOK {
		t.Errorf("readonly list = %d, want 200", rr.Code)
	}
	if rr := do(t, hs.h, http.MethodPut, override, `{"primary":"A"}`, readonly); rr.Code != http.StatusForbidden {
		t.Errorf("readonly override = %d, want 403", rr.Code)
	}
	if rr := do(t, hs.h, http.MethodPost, "/admin/items/"+itemID.String()+"/disable", "", readonly); rr.Code != http.StatusForbidden {
		t.Errorf("readonly disable = %d, want 403", rr.Code)
	}
}

func TestAdmin_IPWhitelist(t *testing.T) {
	cfg := testCfg()
	cfg.Server.BackofficeAllowedIPs = "10.0.0.7"
	hs := build(t, cfg, nil)
	admin := hs.bearer(t, uuid.New(), domain.RoleAdmin)

	rr := do(t, hs.h, http.MethodGet, "/admin/items", "", admin)
	if rr.Code != http.StatusForbidden || decode(t, rr)["code"] != "ERR_IP_FORBIDDEN" {
		t.Errorf("foreign IP = %d, want 403 ERR_IP_FORBIDDEN", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/items", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	req.Header.Set("Authorization", admin["Authorization"])
	rec := httptest.NewRecorder()
	hs.h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("allowed IP = %d, want 200", rec.Code)
	}
}

// ── Items ─────────────────────────────────────────────────────────────────────

func TestAdmin_CreateItem(t *testing.T) {
	hs := build(t, testCfg(), nil)
	ops := hs.bearer(t, uuid.New(), domain.RoleOps)

	if rr := do(t, hs.h, http.MethodPost, "/admin/items", `{"title":"dice"}`, ops); rr.Code != http.StatusBadRequest {
		t.Errorf("missing fields = %d, want 400", rr.Code)
	}

	partial := `{"title":"dice","outcome_coefficients":{"A":"1"},"period_duration_seconds":60}`
	rr := do(t, hs.h, http.MethodPost, "/admin/items", partial, ops)
	if rr.Code != http.StatusBadRequest || decode(t, rr)["code"] != "ERR_INVALID_CONFIG" {
		t.Errorf("partial coefficients = %d, want 400 ERR_INVALID_CONFIG", rr.Code)
	}

	full := `{"title":"dice","outcome_coefficients":{"A":"1","B":"1.2","C":1.5,"D":"2"},"period_duration_seconds":60}`
	if rr := do(t, hs.h, http.MethodPost, "/admin/items", full, ops); rr.Code != http.StatusCreated {
		t.Fatalf("create = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	hs.catalog.mu.Lock()
	defer hs.catalog.mu.Unlock()
	if !hs.catalog.created.Active || hs.catalog.created.PeriodDurationSeconds != 60 {
		t.Errorf("service received %+v, want active item of 60s", hs.catalog.created)
	}
}

func TestAdmin_ItemDetailNotFound(t *testing.T) {
	hs := build(t, testCfg(), nil)
	rr := do(t, hs.h, http.MethodGet, "/admin/items/"+uuid.NewString(), "", hs.bearer(t, uuid.New(), domain.RoleAdmin))
	if rr.Code != http.StatusNotFound || decode(t, rr)["code"] != "ERR_ITEM_NOT_FOUND" {
		t.Errorf("unknown item = %d, want 404", rr.Code)
	}
}

// ── Outcomes ──────────────────────────────────────────────────────────────────

func TestAdmin_OverrideRecordsEditor(t *testing.T) {
	hs := build(t, testCfg(), nil)
	editor := uuid.New()
	path := "/admin/items/" + itemID.String() + "/outcomes/5"

	rr := do(t, hs.h, http.MethodPut, path, `{"primary":"B","secondary":"D"}`, hs.bearer(t, editor, domain.RoleOps))
	if rr.Code != http.StatusOK {
		t.Fatalf("override = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	hs.catalog.mu.Lock()
	got := hs.catalog.override
	hs.catalog.mu.Unlock()
	if got.Editor != editor.String() || got.Period != 5 || got.Primary != domain.LabelB {
		t.Errorf("override request = %+v", got)
	}
	if got.Secondary == nil || *got.Secondary != domain.LabelD {
		t.Errorf("secondary = %v, want D", got.Secondary)
	}
}

func TestAdmin_OverrideErrors(t *testing.T) {
	hs := build(t, testCfg(), nil)
	ops := hs.bearer(t, uuid.New(), domain.RoleOps)
	base := "/admin/items/" + itemID.String() + "/outcomes/"

	if rr := do(t, hs.h, http.MethodPut, base+"x", `{"primary":"A"}`, ops); rr.Code != http.StatusBadRequest {
		t.Errorf("bad period = %d, want 400", rr.Code)
	}
	rr := do(t, hs.h, http.MethodPut, base+"5", `{"primary":"Q"}`, ops)
	if rr.Code != http.StatusBadRequest || decode(t, rr)["code"] != "ERR_INVALID_LABEL" {
		t.Errorf("bad label = %d, want 400 ERR_INVALID_LABEL", rr.Code)
	}

	hs.catalog.mu.Lock()
	hs.catalog.settled = true
	hs.catalog.mu.Unlock()
	rr = do(t, hs.h, http.MethodPut, base+"5", `{"primary":"A"}`, ops)
	if rr.Code != http.StatusConflict || decode(t, rr)["code"] != "ERR_OUTCOME_SETTLED" {
		t.Errorf("settled = %d, want 409 ERR_OUTCOME_SETTLED", rr.Code)
	}
}

func TestAdmin_OutcomeHistoryIncludesUnsettled(t *testing.T) {
	hs := build(t, testCfg(), nil)
	rr := do(t, hs.h, http.MethodGet, "/admin/items/"+itemID.String()+"/outcomes", "", hs.bearer(t, uuid.New(), domain.RoleReadOnly))
	if rr.Code != http.StatusOK {
		t.Fatalf("history = %d, want 200", rr.Code)
	}
	body := decode(t, rr)
	if data, _ := body["data"].([]interface{}); len(data) != 2 {
		t.Errorf("history rows = %v, want 2", body["data"])
	}
	if meta := body["meta"].(map[string]interface{}); meta["limit"] != float64(50) {
		t.Errorf("default admin limit = %v, want 50", meta["limit"])
	}
}

// ── Scheduler ─────────────────────────────────────────────────────────────────

func TestAdmin_SchedulerUnavailableWithoutView(t *testing.T) {
	hs := build(t, testCfg(), nil)
	rr := do(t, hs.h, http.MethodGet, "/admin/scheduler", "", hs.bearer(t, uuid.New(), domain.RoleAdmin))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("no scheduler = %d, want 503", rr.Code)
	}
}

func TestAdmin_SchedulerSnapshot(t *testing.T) {
	view := stubView{
		{ItemID: uuid.New(), Title: "a", State: scheduler.StateIdle},
		{ItemID: uuid.New(), Title: "b", State: scheduler.StateSettling},
		{ItemID: uuid.New(), Title: "c", State: scheduler.StateIdle, ConfigError: "missing coefficient for D"},
	}
	hs := build(t, testCfg(), view)
	rr := do(t, hs.h, http.MethodGet, "/admin/scheduler", "", hs.bearer(t, uuid.New(), domain.RoleReadOnly))
	if rr.Code != http.StatusOK {
		t.Fatalf("scheduler = %d, want 200", rr.Code)
	}
	data := decode(t, rr)["data"].(map[string]interface{})
	if data["health"] != "YELLOW" || data["flagged"] != float64(1) {
		t.Errorf("health %v flagged %v, want YELLOW 1", data["health"], data["flagged"])
	}
	byState := data["by_state"].(map[string]interface{})
	if byState["idle"] != float64(2) || byState["settling"] != float64(1) {
		t.Errorf("by_state = %v", byState)
	}
}
