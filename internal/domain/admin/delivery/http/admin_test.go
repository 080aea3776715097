package http

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/fasthttp/router"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/Benedict-CS/line-backup-bot/internal/domain/source/usecase/business"
	"github.com/Benedict-CS/line-backup-bot/pkg/httputil"
)

func newAdminRouter(t *testing.T, password string) (*router.Router, *Guard, *business.Router) {
	t.Helper()

	sources := business.NewRouter("", "1:Amigo", "", zerolog.Nop())
	guard := NewGuard(password, 5, 15*time.Minute, zerolog.Nop())

	rt := router.New()
	NewRouter(NewMappingHandler(sources, zerolog.Nop()), guard).RegisterRoutes(rt)
	return rt, guard, sources
}

func doRequest(rt *router.Router, method, token, body string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI("/api/v1/admin/mapping")
	if token != "" {
		ctx.Request.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+token)
	}
	if body != "" {
		ctx.Request.SetBodyString(body)
	}
	rt.Handler(ctx)
	return ctx
}

func decodeResponse(t *testing.T, ctx *fasthttp.RequestCtx) httputil.Response {
	t.Helper()
	var resp httputil.Response
	if err := json.Unmarshal(ctx.Response.Body(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp
}

func TestAdmin_GetMapping(t *testing.T) {
	rt, _, _ := newAdminRouter(t, "secret")

	ctx := doRequest(rt, fasthttp.MethodGet, "secret", "")
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("Expected status %d, got %d", fasthttp.StatusOK, ctx.Response.StatusCode())
	}

	resp := decodeResponse(t, ctx)
	data, ok := resp.Data.(map[string]interface{})
	if !ok || data["1"] != "Amigo" {
		t.Errorf("Unexpected mapping: %v", resp.Data)
	}
}

func TestAdmin_PutMapping(t *testing.T) {
	rt, _, sources := newAdminRouter(t, "secret")

	ctx := doRequest(rt, fasthttp.MethodPut, "secret", `{"1":"Amigo","2":"Ben Team"}`)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", fasthttp.StatusOK, ctx.Response.StatusCode(), ctx.Response.Body())
	}

	if !sources.OnSelectorText("U1", "2") {
		t.Fatalf("Digit selector should be consumed")
	}
	if got := sources.Resolve("U1"); got != "Ben_Team" {
		t.Errorf("Expected sanitized folder Ben_Team, got %q", got)
	}
}

func TestAdmin_PutMappingRejectsReservedKey(t *testing.T) {
	rt, _, sources := newAdminRouter(t, "secret")

	ctx := doRequest(rt, fasthttp.MethodPut, "secret", `{"0":"Zero"}`)
	if ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	}
	if sources.Mapping()["1"] != "Amigo" {
		t.Errorf("Rejected update must keep the previous mapping")
	}
}

func TestAdmin_PutMappingRejectsMalformedBody(t *testing.T) {
	rt, _, _ := newAdminRouter(t, "secret")

	ctx := doRequest(rt, fasthttp.MethodPut, "secret", `["not","an","object"]`)
	if ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	}
}

func TestAdmin_Unauthorized(t *testing.T) {
	rt, _, _ := newAdminRouter(t, "secret")

	for _, token := range []string{"", "wrong"} {
		ctx := doRequest(rt, fasthttp.MethodGet, token, "")
		if ctx.Response.StatusCode() != fasthttp.StatusUnauthorized {
			t.Errorf("token %q: expected status %d, got %d", token, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
		}
	}
}

func TestAdmin_Lockout(t *testing.T) {
	rt, guard, _ := newAdminRouter(t, "secret")
	now := time.Date(2025, 2, 24, 12, 0, 0, 0, time.UTC)
	guard.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		doRequest(rt, fasthttp.MethodGet, "wrong", "")
	}

	ctx := doRequest(rt, fasthttp.MethodGet, "secret", "")
	if ctx.Response.StatusCode() != fasthttp.StatusTooManyRequests {
		t.Fatalf("Expected status %d while locked, got %d", fasthttp.StatusTooManyRequests, ctx.Response.StatusCode())
	}
	if got := string(ctx.Response.Header.Peek("Retry-After")); got != "900" {
		t.Errorf("Expected Retry-After 900, got %q", got)
	}

	now = now.Add(15*time.Minute + time.Second)
	ctx = doRequest(rt, fasthttp.MethodGet, "secret", "")
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Errorf("Expected status %d after lock expiry, got %d", fasthttp.StatusOK, ctx.Response.StatusCode())
	}
}

func TestAdmin_SuccessResetsFailures(t *testing.T) {
	rt, _, _ := newAdminRouter(t, "secret")

	for i := 0; i < 4; i++ {
		doRequest(rt, fasthttp.MethodGet, "wrong", "")
	}
	doRequest(rt, fasthttp.MethodGet, "secret", "")
	doRequest(rt, fasthttp.MethodGet, "wrong", "")

	ctx := doRequest(rt, fasthttp.MethodGet, "secret", "")
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Errorf("Expected status %d, got %d", fasthttp.StatusOK, ctx.Response.StatusCode())
	}
}

func TestAdmin_NoPasswordDisablesAuth(t *testing.T) {
	rt, _, _ := newAdminRouter(t, "")

	ctx := doRequest(rt, fasthttp.MethodGet, "", "")
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Errorf("Expected status %d, got %d", fasthttp.StatusOK, ctx.Response.StatusCode())
	}
}
