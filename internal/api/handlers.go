package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/punchamoorthee/atomicbank/internal/domain"
	"github.com/punchamoorthee/atomicbank/internal/models"
	"github.com/punchamoorthee/atomicbank/internal/service"
	"github.com/punchamoorthee/atomicbank/internal/store"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	service  *service.LedgerService
	registry *domain.Registry
	password string
	metrics  *Metrics
	logger   *slog.Logger
}

func NewHandler(svc *service.LedgerService, registry *domain.Registry, password string, metrics *Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: svc, registry: registry, password: password, metrics: metrics, logger: logger}
}

// Router mounts the banking API, /health and, when gatherer is non-nil, /metrics.
func (h *Handler) Router(gatherer prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()
	if h.metrics != nil {
		r.Use(h.metrics.Middleware)
	}
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)

	banking := r.PathPrefix("/api/banking").Subrouter()
	banking.Use(BasicAuth(h.registry, h.password))
	banking.HandleFunc("/{accountId:[0-9]+}/balance", h.GetBalanceHandler).Methods(http.MethodGet)
	banking.HandleFunc("/{accountId:[0-9]+}/transactions", h.GetTransactionsHandler).Methods(http.MethodGet)
	banking.HandleFunc("/transfer", h.CreateTransferHandler).Methods(http.MethodPost)
	banking.HandleFunc("/deposit", h.CreateDepositHandler).Methods(http.MethodPost)
	return r
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	caller, _ := Caller(r.Context())
	id, err := accountID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid account id")
		return
	}

	balance, err := h.service.Balance(r.Context(), caller, id)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.Number(balance))
}

func (h *Handler) GetTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	caller, _ := Caller(r.Context())
	id, err := accountID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid account id")
		return
	}

	txs, err := h.service.Transactions(r.Context(), caller, id)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	out := make([]models.Transaction, 0, len(txs))
	for _, t := range txs {
		out = append(out, models.FromTransaction(t))
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	caller, _ := Caller(r.Context())
	body, idem, ok := readMutation(w, r)
	if !ok {
		return
	}

	var req models.TransferRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	amount, err := models.ParseAmount(req.Amount)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	receipt, err := h.service.Transfer(r.Context(), caller, domain.TransferRequest{
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        amount,
	}, idem)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondWithReceipt(w, receipt)
}

func (h *Handler) CreateDepositHandler(w http.ResponseWriter, r *http.Request) {
	caller, _ := Caller(r.Context())
	body, idem, ok := readMutation(w, r)
	if !ok {
		return
	}

	var req models.DepositRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	amount, err := models.ParseAmount(req.Amount)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	receipt, err := h.service.Deposit(r.Context(), caller, domain.DepositRequest{
		ToAccountID: req.ToAccountID,
		Amount:      amount,
	}, idem)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondWithReceipt(w, receipt)
}

// readMutation reads the body and derives the idempotency key and payload hash.
func readMutation(w http.ResponseWriter, r *http.Request) ([]byte, store.Idempotency, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Stream read error")
		return nil, store.Idempotency{}, false
	}
	hash := sha256.Sum256(body)
	return body, store.Idempotency{
		Key:         r.Header.Get("Idempotency-Key"),
		RequestHash: hex.EncodeToString(hash[:]),
	}, true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var limited *service.RateLimitedError
	switch {
	case errors.As(err, &limited):
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(limited.RetryAfter.Seconds()))))
		respondWithError(w, http.StatusTooManyRequests, "Too many requests")
	case errors.Is(err, service.ErrForbidden):
		respondWithError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, domain.ErrAmountTooLarge):
		respondWithError(w, http.StatusUnprocessableEntity, "Amount exceeds the "+domain.Dollars(domain.MaxAmount)+" limit")
	case errors.Is(err, domain.ErrAmountTooPrecise):
		respondWithError(w, http.StatusUnprocessableEntity, "Amount must have at most 2 decimal places")
	case errors.Is(err, service.ErrInvalidAmount):
		respondWithError(w, http.StatusUnprocessableEntity, "Positive amount required")
	case errors.Is(err, service.ErrSelfTransfer):
		respondWithError(w, http.StatusUnprocessableEntity, "Self-transfer not allowed")
	case errors.Is(err, store.ErrInsufficientFunds):
		respondWithError(w, http.StatusUnprocessableEntity, "Insufficient funds")
	case errors.Is(err, store.ErrAccountNotFound):
		respondWithError(w, http.StatusNotFound, "Account not found")
	case errors.Is(err, store.ErrIdempotencyConflict):
		respondWithError(w, http.StatusConflict, "Request processing in progress")
	case errors.Is(err, store.ErrIdempotencyMismatch):
		respondWithError(w, http.StatusUnprocessableEntity, "Key reuse with mismatched payload")
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func accountID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["accountId"], 10, 64)
}

func respondWithReceipt(w http.ResponseWriter, receipt store.Receipt) {
	code := http.StatusCreated
	if receipt.Replayed {
		code = http.StatusOK
	}
	respondWithJSON(w, code, models.FromTransaction(receipt.Transaction))
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, models.ErrorResponse{Message: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
