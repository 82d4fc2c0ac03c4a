package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"vaultcore/audit"
	"vaultcore/native/vault"
	"vaultcore/observability/logging"
	"vaultcore/storage"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB

	// Mutating calls per second allowed from a single source, with a small
	// burst for batched submissions.
	mutationRate  = rate.Limit(5)
	mutationBurst = 10
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

type Server struct {
	engine  *vault.Engine
	store   *storage.VaultStore
	journal *audit.Journal
	log     *slog.Logger

	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	authToken string
	jwtSecret []byte
}

// NewServer wires the JSON-RPC front end to the vault engine. The static
// bearer token comes from VAULT_RPC_TOKEN and the HS256 signing secret for
// JWT credentials from VAULT_RPC_JWT_SECRET; either grants access to
// mutating methods.
func NewServer(engine *vault.Engine, store *storage.VaultStore, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	token := strings.TrimSpace(os.Getenv("VAULT_RPC_TOKEN"))
	secret := strings.TrimSpace(os.Getenv("VAULT_RPC_JWT_SECRET"))
	return &Server{
		engine:    engine,
		store:     store,
		log:       log,
		limiters:  make(map[string]*rate.Limiter),
		authToken: token,
		jwtSecret: []byte(secret),
	}
}

// SetJournal exposes the audit journal over vault_journal. Without it the
// method reports an empty history.
func (s *Server) SetJournal(j *audit.Journal) {
	s.journal = j
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// ServeHTTP is the main request handler that routes to specific handlers.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	if mutatingMethods[req.Method] {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		if !s.allowSource(clientSource(r)) {
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
			return
		}
	}

	switch req.Method {
	case "vault_initialize":
		s.handleInitialize(w, req)
	case "vault_deposit":
		s.handleDeposit(w, req)
	case "vault_mint":
		s.handleMint(w, req)
	case "vault_withdraw":
		s.handleWithdraw(w, req)
	case "vault_redeem":
		s.handleRedeem(w, req)
	case "vault_approve":
		s.handleApprove(w, req)
	case "vault_transfer":
		s.handleTransfer(w, req)
	case "vault_transferFrom":
		s.handleTransferFrom(w, req)
	case "vault_addStrategy":
		s.handleAddStrategy(w, req)
	case "vault_revokeStrategy":
		s.handleRevokeStrategy(w, req)
	case "vault_updateMaxDebt":
		s.handleUpdateMaxDebt(w, req)
	case "vault_updateDebt":
		s.handleUpdateDebt(w, req)
	case "vault_setDefaultQueue":
		s.handleSetDefaultQueue(w, req)
	case "vault_processReport":
		s.handleProcessReport(w, req)
	case "vault_buyDebt":
		s.handleBuyDebt(w, req)
	case "vault_setDepositLimit":
		s.handleSetDepositLimit(w, req)
	case "vault_setMinimumTotalIdle":
		s.handleSetMinimumTotalIdle(w, req)
	case "vault_setProfitMaxUnlockTime":
		s.handleSetProfitMaxUnlockTime(w, req)
	case "vault_shutdown":
		s.handleShutdown(w, req)
	case "vault_state":
		s.handleState(w, req)
	case "vault_pricePerShare":
		s.handlePricePerShare(w, req)
	case "vault_balanceOf":
		s.handleBalanceOf(w, req)
	case "vault_allowance":
		s.handleAllowance(w, req)
	case "vault_convertToShares":
		s.handleConvertToShares(w, req)
	case "vault_convertToAssets":
		s.handleConvertToAssets(w, req)
	case "vault_maxDeposit":
		s.handleMaxDeposit(w, req)
	case "vault_maxWithdraw":
		s.handleMaxWithdraw(w, req)
	case "vault_maxRedeem":
		s.handleMaxRedeem(w, req)
	case "vault_strategy":
		s.handleStrategy(w, req)
	case "vault_defaultQueue":
		s.handleDefaultQueue(w, req)
	case "vault_journal":
		s.handleJournal(w, req)
	case "vault_checkpoint":
		s.handleCheckpoint(w, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
	}
}

var mutatingMethods = map[string]bool{
	"vault_initialize":             true,
	"vault_deposit":                true,
	"vault_mint":                   true,
	"vault_withdraw":               true,
	"vault_redeem":                 true,
	"vault_approve":                true,
	"vault_transfer":               true,
	"vault_transferFrom":           true,
	"vault_addStrategy":            true,
	"vault_revokeStrategy":         true,
	"vault_updateMaxDebt":          true,
	"vault_updateDebt":             true,
	"vault_setDefaultQueue":        true,
	"vault_processReport":          true,
	"vault_buyDebt":                true,
	"vault_setDepositLimit":        true,
	"vault_setMinimumTotalIdle":    true,
	"vault_setProfitMaxUnlockTime": true,
	"vault_shutdown":               true,
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" && len(s.jwtSecret) == 0 {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if s.authToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) == 1 {
		return nil
	}
	if len(s.jwtSecret) > 0 && s.verifyJWT(token) {
		return nil
	}
	s.log.Warn("rpc auth rejected", logging.MaskField("token", token), "source", clientSource(r))
	return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
}

func (s *Server) verifyJWT(token string) bool {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		s.log.Debug("rpc jwt rejected", "err", err)
		return false
	}
	return parsed.Valid
}

func (s *Server) allowSource(source string) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(mutationRate, mutationBurst)
		s.limiters[source] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
