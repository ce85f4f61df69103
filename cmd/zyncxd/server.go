// server.go - REST surface for the pool engine.
package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/0xr10t/zyncx/internal/mxe"
	"github.com/0xr10t/zyncx/internal/zyncx"
)

// Server exposes the engine over HTTP.
type Server struct {
	engine  *zyncx.Engine
	log     *logrus.Logger
	metrics *Metrics
	health  *HealthChecker
	limiter *ClientRateLimiter
}

// NewServer wires the REST handlers.
func NewServer(engine *zyncx.Engine, log *logrus.Logger, metrics *Metrics, health *HealthChecker, limiter *ClientRateLimiter) *Server {
	return &Server{engine: engine, log: log, metrics: metrics, health: health, limiter: limiter}
}

// Handler builds the routed handler with rate limiting applied.
func (s *Server) Handler() http.Handler {
	router := httprouter.New()

	router.POST("/v1/vaults", s.instrument("create_vault", s.handleCreateVault))
	router.GET("/v1/vaults/:asset", s.instrument("vault_info", s.handleVaultInfo))
	router.GET("/v1/vaults/:asset/root", s.instrument("root", s.handleRoot))
	router.GET("/v1/vaults/:asset/nullifiers/:nullifier", s.instrument("nullifier", s.handleNullifier))

	router.POST("/v1/deposit", s.instrument("deposit", s.handleDeposit))
	router.POST("/v1/withdraw", s.instrument("withdraw", s.handleWithdraw))
	router.POST("/v1/swap", s.instrument("swap", s.handleSwap))
	router.POST("/v1/swap/cross", s.instrument("cross_pool_swap", s.handleCrossPoolSwap))

	router.POST("/v1/confidential/queue", s.instrument("queue", s.handleQueue))
	router.POST("/v1/confidential/callback", s.instrument("callback", s.handleCallback))
	router.POST("/v1/confidential/cancel", s.instrument("cancel", s.handleCancel))
	router.GET("/v1/requests/:id", s.instrument("request", s.handleRequest))

	router.GET("/healthz", s.handleHealth)
	router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))

	return s.limiter.Middleware(router)
}

// statusWriter captures the response code for metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(route string, h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r, ps)
		s.metrics.httpRequests.WithLabelValues(route, strconv.Itoa(sw.status)).Inc()
		s.metrics.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("failed to encode response")
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps engine errors onto HTTP status codes by taxonomy group.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, zyncx.ErrVaultNotFound), errors.Is(err, zyncx.ErrRequestNotFound):
		status = http.StatusNotFound
	case errors.Is(err, zyncx.ErrInvalidAmount),
		errors.Is(err, zyncx.ErrVaultKindMismatch),
		errors.Is(err, zyncx.ErrAssetMismatch),
		errors.Is(err, zyncx.ErrSameVaultSwap),
		errors.Is(err, zyncx.ErrAmountTooSmall),
		errors.Is(err, zyncx.ErrAmountTooLarge):
		status = http.StatusBadRequest
	case errors.Is(err, zyncx.ErrProofInvalid), errors.Is(err, zyncx.ErrUnauthenticatedCallback):
		status = http.StatusUnauthorized
	case errors.Is(err, zyncx.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, zyncx.ErrVaultExists),
		errors.Is(err, zyncx.ErrNullifierSpent),
		errors.Is(err, zyncx.ErrInvalidComputationStatus),
		errors.Is(err, zyncx.ErrComputationExpired),
		errors.Is(err, zyncx.ErrComputationNotExpired):
		status = http.StatusConflict
	case errors.Is(err, zyncx.ErrInsufficientFunds),
		errors.Is(err, zyncx.ErrArithmeticOverflow),
		errors.Is(err, zyncx.ErrTreeFull),
		errors.Is(err, zyncx.ErrSwapsDisabled),
		errors.Is(err, zyncx.ErrStalePrice):
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}
	return true
}

func assetParam(ps httprouter.Params, name string) (zyncx.Asset, error) {
	var a zyncx.Asset
	err := a.UnmarshalText([]byte(ps.ByName(name)))
	return a, err
}

type createVaultRequest struct {
	Asset     zyncx.Asset   `json:"asset"`
	Authority zyncx.Address `json:"authority"`
}

func (s *Server) handleCreateVault(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createVaultRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.CreateVault(req.Asset, req.Authority); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"asset": req.Asset.Hex()})
}

func (s *Server) handleVaultInfo(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	a, err := assetParam(ps, "asset")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed asset"})
		return
	}
	info, err := s.engine.Info(a)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	a, err := assetParam(ps, "asset")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed asset"})
		return
	}
	// ?check=<root> answers recency instead of returning the current root.
	if candidate := r.URL.Query().Get("check"); candidate != "" {
		var root zyncx.Hash
		if err := root.UnmarshalText([]byte(candidate)); err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed root"})
			return
		}
		known, err := s.engine.RootExists(a, root)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"known": known})
		return
	}
	root, err := s.engine.Root(a)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"root": root.Hex()})
}

func (s *Server) handleNullifier(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	a, err := assetParam(ps, "asset")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed asset"})
		return
	}
	var n zyncx.Hash
	if err := n.UnmarshalText([]byte(ps.ByName("nullifier"))); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed nullifier"})
		return
	}
	spent, err := s.engine.NullifierSpent(a, n)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"spent": spent})
}

type depositRequest struct {
	Asset         zyncx.Asset   `json:"asset"`
	Depositor     zyncx.Address `json:"depositor"`
	Amount        uint64        `json:"amount"`
	Precommitment zyncx.Hash    `json:"precommitment"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req depositRequest
	if !s.decode(w, r, &req) {
		return
	}
	cm, err := s.engine.Deposit(zyncx.DepositParams{
		Asset:         req.Asset,
		Depositor:     req.Depositor,
		Amount:        req.Amount,
		Precommitment: req.Precommitment,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"commitment": cm.Hex()})
}

type withdrawRequest struct {
	Asset         zyncx.Asset   `json:"asset"`
	Amount        uint64        `json:"amount"`
	Nullifier     zyncx.Hash    `json:"nullifier"`
	Recipient     zyncx.Address `json:"recipient"`
	NewCommitment zyncx.Hash    `json:"new_commitment"`
	Proof         string        `json:"proof"` // hex
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req withdrawRequest
	if !s.decode(w, r, &req) {
		return
	}
	proof, err := hex.DecodeString(req.Proof)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed proof"})
		return
	}
	err = s.engine.Withdraw(zyncx.WithdrawParams{
		Asset:         req.Asset,
		Amount:        req.Amount,
		Nullifier:     req.Nullifier,
		Recipient:     req.Recipient,
		NewCommitment: req.NewCommitment,
		Proof:         proof,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type swapRequest struct {
	SrcAsset      zyncx.Asset   `json:"src_asset"`
	DstAsset      zyncx.Asset   `json:"dst_asset"`
	AmountIn      uint64        `json:"amount_in"`
	MinAmountOut  uint64        `json:"min_amount_out"`
	Nullifier     zyncx.Hash    `json:"nullifier"`
	Recipient     zyncx.Address `json:"recipient"`
	NewCommitment zyncx.Hash    `json:"new_commitment"`
	Proof         string        `json:"proof"` // hex
	Venue         string        `json:"venue"` // hex
}

func (r swapRequest) params() (zyncx.SwapParams, error) {
	proof, err := hex.DecodeString(r.Proof)
	if err != nil {
		return zyncx.SwapParams{}, errors.New("malformed proof")
	}
	venue, err := hex.DecodeString(r.Venue)
	if err != nil {
		return zyncx.SwapParams{}, errors.New("malformed venue payload")
	}
	return zyncx.SwapParams{
		SrcAsset:      r.SrcAsset,
		DstAsset:      r.DstAsset,
		AmountIn:      r.AmountIn,
		MinAmountOut:  r.MinAmountOut,
		Nullifier:     r.Nullifier,
		Recipient:     r.Recipient,
		NewCommitment: r.NewCommitment,
		Proof:         proof,
		Venue:         venue,
	}, nil
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req swapRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, err := req.params()
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := s.engine.Swap(r.Context(), p); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleCrossPoolSwap(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req swapRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, err := req.params()
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := s.engine.CrossPoolSwap(r.Context(), p); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type queueRequest struct {
	Requester      zyncx.Address `json:"requester"`
	SrcAsset       zyncx.Asset   `json:"src_asset"`
	DstAsset       zyncx.Asset   `json:"dst_asset"`
	Amount         uint64        `json:"amount"`
	Recipient      zyncx.Address `json:"recipient"`
	Strategy       string        `json:"strategy"` // hex ciphertext
	StrategyNonce  string        `json:"strategy_nonce"`
	Nullifier      zyncx.Hash    `json:"nullifier"`
	NewCommitment  zyncx.Hash    `json:"new_commitment"`
	Proof          string        `json:"proof"` // hex
	TimeoutSeconds int64         `json:"timeout_seconds"`
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req queueRequest
	if !s.decode(w, r, &req) {
		return
	}
	proof, err := hex.DecodeString(req.Proof)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed proof"})
		return
	}
	ciphertext, err := hex.DecodeString(req.Strategy)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed strategy"})
		return
	}
	var strategy zyncx.EncryptedStrategy
	strategy.Ciphertext = ciphertext
	nonce, err := hex.DecodeString(req.StrategyNonce)
	if err != nil || (len(nonce) != 0 && len(nonce) != len(strategy.Nonce)) {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed strategy nonce"})
		return
	}
	copy(strategy.Nonce[:], nonce)

	id, err := s.engine.QueueConfidentialSwap(r.Context(), req.Requester, zyncx.ConfidentialParams{
		SrcAsset:       req.SrcAsset,
		DstAsset:       req.DstAsset,
		Amount:         req.Amount,
		Recipient:      req.Recipient,
		Strategy:       strategy,
		Nullifier:      req.Nullifier,
		NewCommitment:  req.NewCommitment,
		TimeoutSeconds: req.TimeoutSeconds,
	}, proof)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]uint64{"request_id": id})
}

type callbackRequest struct {
	RequestID   uint64 `json:"request_id"`
	Success     bool   `json:"success"`
	Result      string `json:"result"`       // hex
	MirrorState string `json:"mirror_state"` // hex, 96 bytes when present
	MirrorNonce string `json:"mirror_nonce"` // hex, 16 bytes when present

	PositionOwner string `json:"position_owner"` // hex, 32 bytes when present
	PositionState string `json:"position_state"` // hex, 64 bytes when present
	PositionNonce string `json:"position_nonce"` // hex, 16 bytes when present

	Attestation string `json:"attestation"` // hex
}

func (r callbackRequest) mirror() (*mxe.MirrorUpdate, error) {
	if r.MirrorState == "" {
		return nil, nil
	}
	state, err := hex.DecodeString(r.MirrorState)
	if err != nil || len(state) != 96 {
		return nil, errors.New("malformed mirror state")
	}
	nonce, err := hex.DecodeString(r.MirrorNonce)
	if err != nil || len(nonce) != 16 {
		return nil, errors.New("malformed mirror nonce")
	}
	var update mxe.MirrorUpdate
	for i := range update.State {
		copy(update.State[i][:], state[i*32:(i+1)*32])
	}
	copy(update.Nonce[:], nonce)
	return &update, nil
}

func (r callbackRequest) position() (*mxe.PositionUpdate, error) {
	if r.PositionOwner == "" {
		return nil, nil
	}
	owner, err := hex.DecodeString(r.PositionOwner)
	if err != nil || len(owner) != 32 {
		return nil, errors.New("malformed position owner")
	}
	state, err := hex.DecodeString(r.PositionState)
	if err != nil || len(state) != 64 {
		return nil, errors.New("malformed position state")
	}
	nonce, err := hex.DecodeString(r.PositionNonce)
	if err != nil || len(nonce) != 16 {
		return nil, errors.New("malformed position nonce")
	}
	var update mxe.PositionUpdate
	copy(update.Owner[:], owner)
	for i := range update.State {
		copy(update.State[i][:], state[i*32:(i+1)*32])
	}
	copy(update.Nonce[:], nonce)
	return &update, nil
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req callbackRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := hex.DecodeString(req.Result)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed result"})
		return
	}
	attestation, err := hex.DecodeString(req.Attestation)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed attestation"})
		return
	}
	mirror, err := req.mirror()
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	position, err := req.position()
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	cb := mxe.Callback{
		RequestID:   req.RequestID,
		Success:     req.Success,
		Result:      result,
		Mirror:      mirror,
		Position:    position,
		Attestation: attestation,
	}
	if err := s.engine.ConfidentialCallback(r.Context(), cb); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type cancelRequest struct {
	RequestID uint64        `json:"request_id"`
	Requester zyncx.Address `json:"requester"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req cancelRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.CancelComputation(req.RequestID, req.Requester); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleRequest(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	id, err := strconv.ParseUint(ps.ByName("id"), 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request id"})
		return
	}
	req, err := s.engine.Request(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	health := s.health.CheckHealth()
	status := http.StatusOK
	if health.OverallStatus != Healthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, health)
}
