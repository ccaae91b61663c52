// Package server exposes the ledger over HTTP/JSON.
package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"LendLedger/internal/auth"
	"LendLedger/internal/core"
	"LendLedger/internal/errs"
	"LendLedger/internal/observability"
	"LendLedger/internal/query"
	"LendLedger/internal/risk"
)

const requestLimit = 1 << 20 // 1 MiB

// Server routes HTTP requests to the processor (mutations, live state)
// and the query service (audit history).
type Server struct {
	processor *core.Processor
	queries   *query.Service
	health    *observability.HealthChecker
	metrics   *observability.Metrics
	log       zerolog.Logger
}

func New(
	processor *core.Processor,
	queries *query.Service,
	health *observability.HealthChecker,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Server {
	return &Server{
		processor: processor,
		queries:   queries,
		health:    health,
		metrics:   metrics,
		log:       log.With().Str("component", "http").Logger(),
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/markets", s.addMarket)
		r.Put("/markets/{asset}", s.updateMarket)
		r.Get("/markets", s.listMarkets)
		r.Get("/markets/{asset}", s.getMarket)

		r.Post("/deposit", s.deposit)
		r.Post("/withdraw", s.withdraw)
		r.Post("/borrow", s.borrow)
		r.Post("/repay", s.repay)
		r.Post("/liquidate", s.liquidate)
		r.Post("/deposit-with-signature", s.depositWithSignature)

		r.Post("/admin/pause", s.pause)
		r.Post("/admin/unpause", s.unpause)
		r.Get("/admin/integrity", s.verifyIntegrity)

		r.Route("/users/{addr}", func(r chi.Router) {
			r.Get("/", s.getUser)
			r.Get("/deposits/{asset}", s.getUserDeposit)
			r.Get("/borrows/{asset}", s.getUserBorrow)
			r.Get("/nonce", s.getNonce)
			r.Get("/health", s.getUserHealth)
			r.Get("/can-withdraw/{asset}", s.canWithdraw)
			r.Get("/can-borrow/{asset}", s.canBorrow)
			r.Get("/events", s.getUserEvents)
		})
	})

	return r
}

// instrument records request counts and latency per route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if s.metrics == nil {
			return
		}
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
		s.metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// --- mutation handlers ---

type marketRequest struct {
	Caller              string `json:"caller"`
	Asset               string `json:"asset"`
	CollateralFactorBps int64  `json:"collateral_factor_bps"`
	SupplyRateBps       int64  `json:"supply_rate_bps"`
	BorrowRateBps       int64  `json:"borrow_rate_bps"`
}

func (s *Server) addMarket(w http.ResponseWriter, r *http.Request) {
	var req marketRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, errs.Validationf("%v", err))
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.processor.AddMarket(r.Context(), caller, req.Asset, req.CollateralFactorBps, req.SupplyRateBps, req.BorrowRateBps); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "listed", "asset": req.Asset})
}

func (s *Server) updateMarket(w http.ResponseWriter, r *http.Request) {
	var req marketRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, errs.Validationf("%v", err))
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	asset := chi.URLParam(r, "asset")
	if err := s.processor.UpdateMarket(r.Context(), caller, asset, req.CollateralFactorBps, req.SupplyRateBps, req.BorrowRateBps); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated", "asset": asset})
}

type amountRequest struct {
	Caller string `json:"caller"`
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	s.amountOp(w, r, s.processor.Deposit)
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	s.amountOp(w, r, s.processor.Withdraw)
}

func (s *Server) borrow(w http.ResponseWriter, r *http.Request) {
	s.amountOp(w, r, s.processor.Borrow)
}

func (s *Server) repay(w http.ResponseWriter, r *http.Request) {
	s.amountOp(w, r, s.processor.Repay)
}

func (s *Server) amountOp(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, caller common.Address, asset string, amount int64) error) {
	var req amountRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, errs.Validationf("%v", err))
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := op(r.Context(), caller, req.Asset, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type liquidateRequest struct {
	Caller    string `json:"caller"`
	Borrower  string `json:"borrower"`
	DebtAsset string `json:"debt_asset"`
	Amount    int64  `json:"amount"`
}

func (s *Server) liquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, errs.Validationf("%v", err))
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	borrower, err := parseAddress(req.Borrower)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.processor.Liquidate(r.Context(), caller, borrower, req.DebtAsset, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type signedDepositRequest struct {
	Caller   string `json:"caller"`
	User     string `json:"user"`
	Asset    string `json:"asset"`
	Amount   int64  `json:"amount"`
	Nonce    uint64 `json:"nonce"`
	Deadline int64  `json:"deadline"`
	Sig      string `json:"sig"`
}

func (s *Server) depositWithSignature(w http.ResponseWriter, r *http.Request) {
	var req signedDepositRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, errs.Validationf("%v", err))
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	user, err := parseAddress(req.User)
	if err != nil {
		writeError(w, err)
		return
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(req.Sig, "0x"))
	if err != nil {
		writeError(w, errs.Validationf("malformed signature: %v", err))
		return
	}
	authReq := auth.Request{
		Op:       "deposit",
		Asset:    req.Asset,
		Amount:   req.Amount,
		User:     user,
		Nonce:    req.Nonce,
		Deadline: req.Deadline,
		Sig:      sig,
	}
	if err := s.processor.DepositWithSignature(r.Context(), caller, authReq); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type adminRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, errs.Validationf("%v", err))
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.processor.Pause(r.Context(), caller); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) unpause(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, errs.Validationf("%v", err))
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.processor.Unpause(r.Context(), caller); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

// --- query handlers ---

func (s *Server) listMarkets(w http.ResponseWriter, r *http.Request) {
	assets := s.processor.GetSupportedAssets()
	markets := make([]core.MarketView, 0, len(assets))
	for _, asset := range assets {
		if m, err := s.processor.GetMarket(asset); err == nil {
			markets = append(markets, m)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"markets": markets})
}

func (s *Server) getMarket(w http.ResponseWriter, r *http.Request) {
	m, err := s.processor.GetMarket(chi.URLParam(r, "asset"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.processor.GetUser(addr))
}

func (s *Server) getUserDeposit(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, err)
		return
	}
	asset := chi.URLParam(r, "asset")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":   addr.Hex(),
		"asset":  asset,
		"amount": s.processor.GetUserDeposit(addr, asset),
	})
}

func (s *Server) getUserBorrow(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, err)
		return
	}
	asset := chi.URLParam(r, "asset")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":   addr.Hex(),
		"asset":  asset,
		"amount": s.processor.GetUserBorrow(addr, asset),
	})
}

func (s *Server) getNonce(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":  addr.Hex(),
		"nonce": s.processor.GetNonce(addr),
	})
}

func (s *Server) getUserHealth(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, err)
		return
	}
	ratio := s.processor.CollateralizationRatio(addr)
	resp := map[string]interface{}{
		"user":         addr.Hex(),
		"liquidatable": s.processor.IsLiquidatable(addr),
		"no_debt":      ratio == risk.NoDebtRatio,
	}
	if ratio != risk.NoDebtRatio {
		resp["ratio_bps"] = ratio
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) canWithdraw(w http.ResponseWriter, r *http.Request) {
	s.riskCheck(w, r, s.processor.CanWithdraw)
}

func (s *Server) canBorrow(w http.ResponseWriter, r *http.Request) {
	s.riskCheck(w, r, s.processor.CanBorrow)
}

// riskCheck answers a hypothetical-position query: would the given amount
// of the asset pass the safety check for this user.
func (s *Server) riskCheck(w http.ResponseWriter, r *http.Request, check func(addr common.Address, asset string, amount int64) bool) {
	addr, err := parseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, err)
		return
	}
	asset := chi.URLParam(r, "asset")
	amount, err := strconv.ParseInt(r.URL.Query().Get("amount"), 10, 64)
	if err != nil || amount <= 0 {
		writeError(w, errs.Validationf("amount must be a positive integer"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":    addr.Hex(),
		"asset":   asset,
		"amount":  amount,
		"allowed": check(addr, asset, amount),
	})
}

func (s *Server) getUserEvents(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, err)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, errs.Validationf("limit must be 1-500"))
			return
		}
		limit = n
	}
	var before *int64
	if v := r.URL.Query().Get("before"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, errs.Validationf("malformed before cursor"))
			return
		}
		before = &n
	}

	events, err := s.queries.ListUserEvents(r.Context(), addr.Hex(), limit, before)
	if err != nil {
		s.log.Error().Err(err).Msg("list user events failed")
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (s *Server) verifyIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.queries.VerifyIntegrity(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("integrity check failed")
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// --- helpers ---

func decodeRequest(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()

	reader := io.LimitReader(r.Body, requestLimit)
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(data) == 0 {
		return errors.New("request body is empty")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, errs.Validationf("malformed address %q", s)
	}
	return common.HexToAddress(s), nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the ledger's error kinds onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusForError(err), err)
}

func statusForError(err error) int {
	switch {
	case errs.IsValidation(err):
		return http.StatusBadRequest
	case errs.IsAuthorization(err):
		return http.StatusForbidden
	case errs.IsSafety(err):
		return http.StatusConflict
	case errs.IsState(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
