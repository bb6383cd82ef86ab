package api

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rawblock/barter-engine/internal/orchestrator"
	"github.com/rawblock/barter-engine/pkg/models"
)

// APIHandler exposes the barter discovery engine over HTTP. It is a thin
// adapter: every request maps onto exactly one orchestrator.Engine call
// and does no domain logic of its own.
type APIHandler struct {
	engine *orchestrator.Engine
	wsHub  *Hub
}

// SetupRouter builds the Gin engine, wiring CORS, auth, rate limiting and
// the discovery endpoints to the given orchestrator.Engine.
func SetupRouter(eng *orchestrator.Engine, wsHub *Hub) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://rawblock.net,https://www.rawblock.net
	// Development: ALLOWED_ORIGINS=http://localhost:3000 (or leave empty for *)
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{engine: eng, wsHub: wsHub}
	wireEvents(eng, wsHub)

	// ── Public endpoints (no auth) ─────────────────────────────
	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		pub.GET("/stream", wsHub.Subscribe)
		pub.GET("/metrics", handler.handleMetrics)
	}

	// ── Protected endpoints (require bearer token if API_AUTH_TOKEN set) ──
	auth := r.Group("/api/v1")
	auth.Use(AuthMiddleware())
	// Discovery is the expensive O(V+E) path; mutations are cheap deltas.
	auth.Use(NewHTTPRateLimiter(30, 5).Middleware())
	{
		auth.POST("/discover", handler.handleDiscover)
		auth.POST("/mutations", handler.handleApplyMutation)
		auth.PATCH("/settings", handler.handleConfigure)
	}

	// Serve Static Dashboard
	r.Static("/dashboard", "./public")

	return r
}

// discoverRequest is the discover_trades request body: the caller's full
// wallet snapshot, plus an optional per-call settings override.
type discoverRequest struct {
	Wallets  []models.Wallet `json:"wallets"`
	Settings *models.Settings `json:"settings,omitempty"`
}

func (h *APIHandler) handleDiscover(c *gin.Context) {
	var req discoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	result, err := h.engine.DiscoverTrades(c.Request.Context(), req.Wallets, req.Settings)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "metadata": result.Metadata})
		return
	}
	c.JSON(http.StatusOK, result)
}

// mutationRequest is the apply_mutation request body: the mutation event
// plus the wallet snapshot it applies against.
type mutationRequest struct {
	Mutation models.Mutation `json:"mutation"`
	Wallets  []models.Wallet `json:"wallets"`
	Settings *models.Settings `json:"settings,omitempty"`
}

func (h *APIHandler) handleApplyMutation(c *gin.Context) {
	var req mutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	result, err := h.engine.ApplyMutation(c.Request.Context(), req.Mutation, req.Wallets, req.Settings)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "metadata": result.Metadata})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *APIHandler) handleConfigure(c *gin.Context) {
	var partial models.Settings
	if err := c.ShouldBindJSON(&partial); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	merged := h.engine.Configure(partial)
	c.JSON(http.StatusOK, merged)
}

func (h *APIHandler) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Metrics())
}

// wireEvents fans the engine's discovery/config/memory observers out
// over the websocket hub, mirroring the reference's
// BroadcastCoinJoinAlert wiring.
func wireEvents(eng *orchestrator.Engine, wsHub *Hub) {
	eng.Events().OnCyclesDiscovered(func(result models.DiscoveryResult) {
		wsHub.BroadcastEvent(EventCyclesDiscovered, result)
	})
	eng.Events().OnConfigUpdated(func(s models.Settings) {
		wsHub.BroadcastEvent(EventConfigUpdated, s)
	})
	eng.Events().OnMemoryOptimized(func(evicted int) {
		wsHub.BroadcastEvent(EventMemoryOptimized, evicted)
	})
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "operational",
		"engine":           "barter-engine v1.0",
		"dashboardClients": h.wsHub.ClientCount(),
		"capabilities": gin.H{
			"community_partitioning": true,
			"collection_expansion":   true,
			"delta_discovery":        true,
			"circuit_breaker":        true,
		},
	})
}
