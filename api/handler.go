package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"github.com/qubic/go-vesting-ledger/business/domain/vesting"
	"github.com/qubic/go-vesting-ledger/entities"
	"go.uber.org/zap"
)

// CallerHeader carries the identity of the caller. It is trusted as is, verification happens upstream.
const CallerHeader = "X-Account"

type VestingService interface {
	Create(ctx context.Context, params vesting.CreateParams, now int64) (*entities.VestingSchedule, error)
	Claim(ctx context.Context, key entities.ScheduleKey, now int64) (uint64, error)
	Revoke(ctx context.Context, key entities.ScheduleKey, now int64) (uint64, int64, error)
	Estimate(ctx context.Context, key entities.ScheduleKey, now int64) (uint64, error)
	Get(ctx context.Context, key entities.ScheduleKey) (*entities.VestingSchedule, error)
	List(ctx context.Context, beneficiary string) ([]*entities.VestingSchedule, error)
	Balance(ctx context.Context, account, asset string) (uint64, error)
	Deposit(ctx context.Context, account, asset string, amount uint64) (uint64, error)
}

type Handler struct {
	service         VestingService
	cache           *ScheduleCache
	clock           vesting.Clock
	depositsEnabled bool
	logger          *zap.SugaredLogger
}

func NewHandler(service VestingService, cache *ScheduleCache, clock vesting.Clock, depositsEnabled bool, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		service:         service,
		cache:           cache,
		clock:           clock,
		depositsEnabled: depositsEnabled,
		logger:          logger,
	}
}

func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.GetHealth)
	mux.HandleFunc("POST /v1/schedules", h.CreateSchedule)
	mux.HandleFunc("GET /v1/schedules/{beneficiary}", h.ListSchedules)
	mux.HandleFunc("GET /v1/schedules/{beneficiary}/{asset}/{name}", h.GetSchedule)
	mux.HandleFunc("GET /v1/schedules/{beneficiary}/{asset}/{name}/estimate", h.EstimateClaim)
	mux.HandleFunc("POST /v1/schedules/{beneficiary}/{asset}/{name}/claim", h.Claim)
	mux.HandleFunc("POST /v1/schedules/{beneficiary}/{asset}/{name}/revoke", h.Revoke)
	mux.HandleFunc("GET /v1/accounts/{account}/balances/{asset}", h.GetBalance)
	mux.HandleFunc("POST /v1/accounts/{account}/deposits", h.Deposit)
	return mux
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ScheduleResponse struct {
	Key   string                 `json:"key"`
	State entities.ScheduleState `json:"state"`
	entities.VestingSchedule
}

type ListSchedulesResponse struct {
	Schedules []ScheduleResponse `json:"schedules"`
}

type EstimateResponse struct {
	Schedule  string `json:"schedule"`
	At        int64  `json:"at"`
	Claimable uint64 `json:"claimable"`
}

type ClaimResponse struct {
	Schedule string `json:"schedule"`
	Amount   uint64 `json:"amount"`
	Time     int64  `json:"time"`
}

type RevokeResponse struct {
	Schedule string `json:"schedule"`
	Returned uint64 `json:"returned"`
	Time     int64  `json:"time"`
}

type BalanceResponse struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Balance uint64 `json:"balance"`
}

type DepositRequest struct {
	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`
}

func (h *Handler) GetHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "UP"})
}

func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var params vesting.CreateParams
	if !h.decode(w, r, &params) {
		return
	}
	if !h.authorize(w, r, params.Creator) {
		return
	}

	schedule, err := h.service.Create(r.Context(), params, h.clock.Now())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.cache.Invalidate(schedule.Key())
	h.writeJSON(w, http.StatusCreated, toScheduleResponse(schedule))
}

func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.service.List(r.Context(), r.PathValue("beneficiary"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	response := ListSchedulesResponse{Schedules: make([]ScheduleResponse, 0, len(schedules))}
	for _, schedule := range schedules {
		response.Schedules = append(response.Schedules, toScheduleResponse(schedule))
	}
	h.writeJSON(w, http.StatusOK, response)
}

func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	key, ok := h.scheduleKey(w, r)
	if !ok {
		return
	}

	schedule, err := h.cache.Get(r.Context(), key)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toScheduleResponse(schedule))
}

func (h *Handler) EstimateClaim(w http.ResponseWriter, r *http.Request) {
	key, ok := h.scheduleKey(w, r)
	if !ok {
		return
	}

	at := h.clock.Now()
	if value := r.URL.Query().Get("at"); value != "" {
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			h.writeProblem(w, http.StatusBadRequest, "invalid_request", "invalid [at] parameter")
			return
		}
		at = parsed
	}

	claimable, err := h.service.Estimate(r.Context(), key, at)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, EstimateResponse{Schedule: key.String(), At: at, Claimable: claimable})
}

func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	key, ok := h.scheduleKey(w, r)
	if !ok {
		return
	}
	if !h.authorize(w, r, key.Beneficiary) {
		return
	}

	now := h.clock.Now()
	amount, err := h.service.Claim(r.Context(), key, now)
	h.cache.Invalidate(key)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ClaimResponse{Schedule: key.String(), Amount: amount, Time: now})
}

func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	key, ok := h.scheduleKey(w, r)
	if !ok {
		return
	}

	// the creator never changes, reading it outside the revocation is safe
	schedule, err := h.service.Get(r.Context(), key)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !h.authorize(w, r, schedule.Creator) {
		return
	}

	returned, revokedAt, err := h.service.Revoke(r.Context(), key, h.clock.Now())
	h.cache.Invalidate(key)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, RevokeResponse{Schedule: key.String(), Returned: returned, Time: revokedAt})
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, asset := r.PathValue("account"), r.PathValue("asset")
	balance, err := h.service.Balance(r.Context(), account, asset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, BalanceResponse{Account: account, Asset: asset, Balance: balance})
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	if !h.depositsEnabled {
		h.writeError(w, errors.Wrap(entities.ErrUnauthorized, "deposits are disabled"))
		return
	}

	var request DepositRequest
	if !h.decode(w, r, &request) {
		return
	}

	account := r.PathValue("account")
	balance, err := h.service.Deposit(r.Context(), account, request.Asset, request.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, BalanceResponse{Account: account, Asset: request.Asset, Balance: balance})
}

func (h *Handler) scheduleKey(w http.ResponseWriter, r *http.Request) (entities.ScheduleKey, bool) {
	key := entities.ScheduleKey{
		Beneficiary: r.PathValue("beneficiary"),
		Asset:       r.PathValue("asset"),
		Name:        r.PathValue("name"),
	}
	if err := key.Validate(); err != nil {
		h.writeError(w, err)
		return key, false
	}
	return key, true
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, expected string) bool {
	caller := r.Header.Get(CallerHeader)
	if caller == "" || caller != expected {
		h.writeError(w, errors.Wrapf(entities.ErrUnauthorized, "caller [%s]", caller))
		return false
	}
	return true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		h.writeProblem(w, http.StatusBadRequest, "invalid_request", "invalid request body: "+err.Error())
		return false
	}
	return true
}

func toScheduleResponse(schedule *entities.VestingSchedule) ScheduleResponse {
	return ScheduleResponse{
		Key:             schedule.Key().String(),
		State:           schedule.State(),
		VestingSchedule: *schedule,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		h.logger.Errorw("Error encoding response", "error", err)
	}
}
