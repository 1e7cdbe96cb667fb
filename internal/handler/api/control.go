package api

import (
	models "TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	"TradePulse/internal/service/ratelimit"
	"TradePulse/internal/usecase"
	xhttp "TradePulse/pkg/http"
	xlogger "TradePulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ControlHandler exposes the read-only control surface over the decision
// loop: signals, evaluations, positions, risk posture, and account state.
type ControlHandler struct {
	logger *xlogger.Logger
	query  *usecase.StatusQuery
	stream drepo.MarketStream
	store  drepo.SignalStore
	rl     *ratelimit.Limiter
}

func NewControlHandler(logger *xlogger.Logger, query *usecase.StatusQuery, stream drepo.MarketStream, store drepo.SignalStore) *ControlHandler {
	return &ControlHandler{logger: logger, query: query, stream: stream, store: store, rl: ratelimit.New()}
}

func (h *ControlHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/signals", h.Signals)
	g.GET("/signals/history", h.SignalHistory)
	g.GET("/signals/:symbol", h.Signal)
	g.GET("/ev/:symbol", h.Evaluation)
	g.GET("/positions", h.Positions)
	g.GET("/risk", h.Risk)
	g.GET("/account", h.Account)
	e.GET("/health", h.Health)
}

func (h *ControlHandler) Signals(c echo.Context) error {
	if !h.rl.Allow(c.RealIP()+":signals", 10, 5) {
		return xhttp.TooManyRequestsResponse(c)
	}
	return xhttp.SuccessResponse(c, h.query.Signals(c.Request().Context()))
}

func (h *ControlHandler) Signal(c echo.Context) error {
	req := &models.SignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.query.Signal(c.Request().Context(), req.Symbol)
	if err != nil {
		return xhttp.NotFoundResponse(c, err.Error())
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ControlHandler) SignalHistory(c echo.Context) error {
	req := &models.SignalHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":history", 5, 2) {
		return xhttp.TooManyRequestsResponse(c)
	}
	rows := h.query.History(c.Request().Context(), req.Symbol, req.Limit)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *ControlHandler) Evaluation(c echo.Context) error {
	req := &models.EVRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.query.Evaluation(c.Request().Context(), req.Symbol)
	if err != nil {
		h.logger.Warn("evaluation query failed",
			xlogger.String("symbol", req.Symbol),
			xlogger.Error(err))
		return xhttp.NotFoundResponse(c, err.Error())
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ControlHandler) Positions(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.query.Positions(c.Request().Context()))
}

func (h *ControlHandler) Risk(c echo.Context) error {
	status, hedge, recovery := h.query.Risk(c.Request().Context())
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status":   status,
		"hedge":    hedge,
		"recovery": recovery,
	})
}

func (h *ControlHandler) Account(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.query.Account(c.Request().Context()))
}

// Health reports stream connectivity and sink reachability. The process is
// degraded, not down, when the offline sink is unreachable.
func (h *ControlHandler) Health(c echo.Context) error {
	out := map[string]interface{}{
		"status":           "ok",
		"stream_connected": h.stream != nil && h.stream.IsConnected(),
	}
	if h.store != nil {
		if err := h.store.Health(c.Request().Context()); err != nil {
			out["status"] = "degraded"
			out["signal_store"] = err.Error()
		} else {
			out["signal_store"] = "ok"
		}
	}
	return xhttp.SuccessResponse(c, out)
}
