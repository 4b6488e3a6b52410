package http

import (
	"errors"
	"net/http"
	"strconv"

	"dip-trader/internal/application/service/subscription"
	domaininstruments "dip-trader/internal/domain/entity/instruments"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	instrumentsBasePath   = "/api/v1/instruments"
	subscriptionsBasePath = "/api/v1/subscriptions"
)

var (
	errInvalidTier     = errors.New("tier query param must be 1, 2 or 3")
	errUnknownSymbol   = errors.New("symbol is not in the catalog")
	errMissingCatalog  = errors.New("catalog is required")
	errMissingStatuses = errors.New("subscription status source is required")
)

// StatusSource exposes live subscription state.
type StatusSource interface {
	Statuses() []subscription.Status
	Status(symbol string) (subscription.Status, bool)
}

type Handler struct {
	router        *gin.Engine
	catalog       *domaininstruments.Catalog
	subscriptions StatusSource
	gatherer      prometheus.Gatherer
}

func NewHandler(catalog *domaininstruments.Catalog, subscriptions StatusSource, gatherer prometheus.Gatherer) (*Handler, error) {
	if catalog == nil {
		return nil, errMissingCatalog
	}
	if subscriptions == nil {
		return nil, errMissingStatuses
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := gin.New()
	router.Use(gin.Recovery())

	h := &Handler{
		router:        router,
		catalog:       catalog,
		subscriptions: subscriptions,
		gatherer:      gatherer,
	}
	h.registerRoutes()
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/healthz", h.health)
	h.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	h.router.GET(instrumentsBasePath, h.listInstruments)

	subs := h.router.Group(subscriptionsBasePath)
	{
		subs.GET("", h.listSubscriptions)
		subs.GET("/:symbol", h.getSubscription)
	}
}

// health reports subscription counts by state.
func (h *Handler) health(c *gin.Context) {
	counts := map[subscription.State]int{}
	for _, st := range h.subscriptions.Statuses() {
		counts[st.State]++
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"instruments":   h.catalog.Len(),
		"subscriptions": counts,
	})
}

type instrumentView struct {
	Symbol    string  `json:"symbol"`
	Tier      string  `json:"tier"`
	Threshold float64 `json:"threshold"`
}

// listInstruments returns the catalog, optionally filtered by ?tier=N.
func (h *Handler) listInstruments(c *gin.Context) {
	var filter domaininstruments.Tier
	if raw := c.Query("tier"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, errInvalidTier)
			return
		}
		tier, err := domaininstruments.NewTier(n)
		if err != nil {
			writeError(c, http.StatusBadRequest, errInvalidTier)
			return
		}
		filter = tier
	}

	policy := h.catalog.Policy()
	out := make([]instrumentView, 0, h.catalog.Len())
	for _, inst := range h.catalog.Instruments() {
		if filter != 0 && inst.Tier != filter {
			continue
		}
		out = append(out, instrumentView{
			Symbol:    inst.Symbol,
			Tier:      inst.Tier.String(),
			Threshold: policy.For(inst.Tier),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) listSubscriptions(c *gin.Context) {
	state := subscription.State(c.Query("state"))
	statuses := h.subscriptions.Statuses()
	if state == "" {
		c.JSON(http.StatusOK, statuses)
		return
	}
	out := make([]subscription.Status, 0, len(statuses))
	for _, st := range statuses {
		if st.State == state {
			out = append(out, st)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) getSubscription(c *gin.Context) {
	st, ok := h.subscriptions.Status(c.Param("symbol"))
	if !ok {
		writeError(c, http.StatusNotFound, errUnknownSymbol)
		return
	}
	c.JSON(http.StatusOK, st)
}

func writeError(c *gin.Context, status int, err error) {
	if err == nil {
		status = http.StatusInternalServerError
		err = errors.New("unknown error")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
