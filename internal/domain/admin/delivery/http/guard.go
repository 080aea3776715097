package http

import (
	"crypto/subtle"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	pkgerrors "github.com/Benedict-CS/line-backup-bot/pkg/errors"
	"github.com/Benedict-CS/line-backup-bot/pkg/httputil"
)

const bearerPrefix = "Bearer "

type loginState struct {
	failures    int
	lockedUntil time.Time
}

// Guard authenticates admin requests with a bearer password and locks out
// clients after repeated failures
type Guard struct {
	password     string
	maxFailures  int
	lockDuration time.Duration

	mu      sync.Mutex
	clients map[string]*loginState
	now     func() time.Time

	mapper *pkgerrors.Mapper
	logger zerolog.Logger
}

// NewGuard creates a guard. An empty password disables authentication.
func NewGuard(password string, maxFailures int, lockDuration time.Duration, logger zerolog.Logger) *Guard {
	if maxFailures < 1 {
		maxFailures = 5
	}
	if password == "" {
		logger.Warn().Msg("ADMIN_PASSWORD is not set, admin API is unauthenticated")
	}
	return &Guard{
		password:     password,
		maxFailures:  maxFailures,
		lockDuration: lockDuration,
		clients:      make(map[string]*loginState),
		now:          time.Now,
		mapper:       pkgerrors.NewMapper(logger),
		logger:       logger,
	}
}

// Middleware returns the auth middleware
func (g *Guard) Middleware() httputil.Middleware {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			if g.password == "" {
				next(ctx)
				return
			}

			ip := ctx.RemoteIP().String()
			if wait := g.lockedFor(ip); wait > 0 {
				g.mapper.Write(ctx,
					pkgerrors.NewTooManyRequestsError("too many failed attempts", int(math.Ceil(wait.Seconds()))),
					httputil.WriteErrorResponse,
				)
				return
			}

			if !g.authorized(ctx) {
				g.recordFailure(ip)
				g.mapper.Write(ctx, pkgerrors.NewUnauthorizedError("invalid credentials"), httputil.WriteErrorResponse)
				return
			}

			g.reset(ip)
			next(ctx)
		}
	}
}

func (g *Guard) authorized(ctx *fasthttp.RequestCtx) bool {
	header := string(ctx.Request.Header.Peek(fasthttp.HeaderAuthorization))
	if !strings.HasPrefix(header, bearerPrefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	return subtle.ConstantTimeCompare([]byte(token), []byte(g.password)) == 1
}

func (g *Guard) lockedFor(ip string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.clients[ip]
	if !ok {
		return 0
	}
	return state.lockedUntil.Sub(g.now())
}

func (g *Guard) recordFailure(ip string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.clients[ip]
	if !ok {
		state = &loginState{}
		g.clients[ip] = state
	}

	state.failures++
	if state.failures >= g.maxFailures {
		state.failures = 0
		state.lockedUntil = g.now().Add(g.lockDuration)
		g.logger.Warn().
			Str("remote_ip", ip).
			Dur("lock", g.lockDuration).
			Msg("Admin client locked after repeated failures")
	}
}

func (g *Guard) reset(ip string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.clients, ip)
}
