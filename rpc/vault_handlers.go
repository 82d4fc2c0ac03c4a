package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/holiman/uint256"

	"vaultcore/audit"
	"vaultcore/crypto"
)

// parseAmount decodes a decimal amount string, bounding values to 256 bits.
func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	value, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}
	return value.ToBig(), nil
}

func decodeAddress(raw string) (crypto.Address, error) {
	return crypto.DecodeAddress(strings.TrimSpace(raw))
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type initializeParams struct {
	Caller              string `json:"caller"`
	Asset               string `json:"asset"`
	Decimals            uint8  `json:"decimals"`
	DepositLimit        string `json:"depositLimit,omitempty"`
	ProfitMaxUnlockTime uint64 `json:"profitMaxUnlockTime"`
}

type amountTxParams struct {
	Caller   string `json:"caller"`
	Receiver string `json:"receiver"`
	Amount   string `json:"amount"`
}

type withdrawParams struct {
	Caller     string   `json:"caller"`
	Receiver   string   `json:"receiver"`
	Owner      string   `json:"owner"`
	Amount     string   `json:"amount"`
	MaxLossBps uint64   `json:"maxLossBps"`
	Strategies []string `json:"strategies,omitempty"`
}

type approveParams struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Shares  string `json:"shares"`
}

type transferParams struct {
	Caller string `json:"caller"`
	From   string `json:"from,omitempty"`
	To     string `json:"to"`
	Shares string `json:"shares"`
}

type strategyParams struct {
	Caller   string `json:"caller"`
	Strategy string `json:"strategy"`
	Force    bool   `json:"force,omitempty"`
}

type strategyAmountParams struct {
	Caller   string `json:"caller"`
	Strategy string `json:"strategy"`
	Amount   string `json:"amount"`
}

type queueParams struct {
	Caller string   `json:"caller"`
	Queue  []string `json:"queue"`
}

type settingParams struct {
	Caller string `json:"caller"`
	Value  string `json:"value,omitempty"`
}

type unlockTimeParams struct {
	Caller  string `json:"caller"`
	Seconds uint64 `json:"seconds"`
}

type addressParams struct {
	Address string `json:"address"`
}

type allowanceParams struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
}

type amountParams struct {
	Amount string `json:"amount"`
}

type sharesResult struct {
	Shares string `json:"shares"`
}

type assetsResult struct {
	Assets string `json:"assets"`
}

type amountResult struct {
	Amount string `json:"amount"`
}

type stateResult struct {
	Asset               string   `json:"asset"`
	Decimals            uint8    `json:"decimals"`
	TotalAssets         string   `json:"totalAssets"`
	TotalIdle           string   `json:"totalIdle"`
	TotalDebt           string   `json:"totalDebt"`
	TotalSupply         string   `json:"totalSupply"`
	LockedShares        string   `json:"lockedShares"`
	PricePerShare       string   `json:"pricePerShare"`
	MinimumTotalIdle    string   `json:"minimumTotalIdle"`
	DepositLimit        string   `json:"depositLimit,omitempty"`
	ProfitMaxUnlockTime uint64   `json:"profitMaxUnlockTime"`
	DefaultQueue        []string `json:"defaultQueue"`
	Shutdown            bool     `json:"shutdown"`
}

type strategyResult struct {
	Address     string `json:"address"`
	Activation  uint64 `json:"activation"`
	LastReport  uint64 `json:"lastReport"`
	CurrentDebt string `json:"currentDebt"`
	MaxDebt     string `json:"maxDebt"`
}

type reportResult struct {
	Strategy          string `json:"strategy"`
	Gain              string `json:"gain"`
	Loss              string `json:"loss"`
	TotalFeeShares    string `json:"totalFeeShares"`
	ProtocolFeeShares string `json:"protocolFeeShares"`
}

type debtResult struct {
	CurrentDebt string `json:"currentDebt"`
}

type checkpointResult struct {
	Digest string `json:"digest"`
}

type okResult struct {
	OK bool `json:"ok"`
}

func unmarshalParams(w http.ResponseWriter, req *RPCRequest, out interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected parameter object", nil)
		return false
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return false
	}
	return true
}

func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	writeError(w, http.StatusUnprocessableEntity, id, codeServerError, err.Error(), nil)
}

func (s *Server) handleInitialize(w http.ResponseWriter, req *RPCRequest) {
	var params initializeParams
	if !unmarshalParams(w, req, &params) {
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	asset, err := decodeAddress(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset", err.Error())
		return
	}
	var limit *big.Int
	if strings.TrimSpace(params.DepositLimit) != "" {
		limit, err = parseAmount(params.DepositLimit)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
	}
	if err := s.engine.Initialize(caller, asset, params.Decimals, limit, params.ProfitMaxUnlockTime); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleDeposit(w http.ResponseWriter, req *RPCRequest) {
	caller, receiver, amount, ok := s.parseAmountTx(w, req)
	if !ok {
		return
	}
	shares, err := s.engine.Deposit(caller, receiver, amount)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, sharesResult{Shares: bigString(shares)})
}

func (s *Server) handleMint(w http.ResponseWriter, req *RPCRequest) {
	caller, receiver, shares, ok := s.parseAmountTx(w, req)
	if !ok {
		return
	}
	assets, err := s.engine.Mint(caller, receiver, shares)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, assetsResult{Assets: bigString(assets)})
}

func (s *Server) parseAmountTx(w http.ResponseWriter, req *RPCRequest) (crypto.Address, crypto.Address, *big.Int, bool) {
	var params amountTxParams
	if !unmarshalParams(w, req, &params) {
		return crypto.Address{}, crypto.Address{}, nil, false
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return crypto.Address{}, crypto.Address{}, nil, false
	}
	receiver := caller
	if strings.TrimSpace(params.Receiver) != "" {
		receiver, err = decodeAddress(params.Receiver)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid receiver", err.Error())
			return crypto.Address{}, crypto.Address{}, nil, false
		}
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return crypto.Address{}, crypto.Address{}, nil, false
	}
	return caller, receiver, amount, true
}

func (s *Server) parseWithdrawTx(w http.ResponseWriter, req *RPCRequest) (withdrawCall, bool) {
	var params withdrawParams
	if !unmarshalParams(w, req, &params) {
		return withdrawCall{}, false
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return withdrawCall{}, false
	}
	receiver := caller
	if strings.TrimSpace(params.Receiver) != "" {
		receiver, err = decodeAddress(params.Receiver)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid receiver", err.Error())
			return withdrawCall{}, false
		}
	}
	owner := caller
	if strings.TrimSpace(params.Owner) != "" {
		owner, err = decodeAddress(params.Owner)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner", err.Error())
			return withdrawCall{}, false
		}
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return withdrawCall{}, false
	}
	hints := make([]crypto.Address, 0, len(params.Strategies))
	for _, raw := range params.Strategies {
		addr, err := decodeAddress(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid strategy hint", err.Error())
			return withdrawCall{}, false
		}
		hints = append(hints, addr)
	}
	return withdrawCall{
		caller:     caller,
		receiver:   receiver,
		owner:      owner,
		amount:     amount,
		maxLossBps: params.MaxLossBps,
		hints:      hints,
	}, true
}

type withdrawCall struct {
	caller     crypto.Address
	receiver   crypto.Address
	owner      crypto.Address
	amount     *big.Int
	maxLossBps uint64
	hints      []crypto.Address
}

func (s *Server) handleWithdraw(w http.ResponseWriter, req *RPCRequest) {
	call, ok := s.parseWithdrawTx(w, req)
	if !ok {
		return
	}
	shares, err := s.engine.Withdraw(call.caller, call.receiver, call.owner, call.amount, call.maxLossBps, call.hints)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, sharesResult{Shares: bigString(shares)})
}

func (s *Server) handleRedeem(w http.ResponseWriter, req *RPCRequest) {
	call, ok := s.parseWithdrawTx(w, req)
	if !ok {
		return
	}
	assets, err := s.engine.Redeem(call.caller, call.receiver, call.owner, call.amount, call.maxLossBps, call.hints)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, assetsResult{Assets: bigString(assets)})
}

func (s *Server) handleApprove(w http.ResponseWriter, req *RPCRequest) {
	var params approveParams
	if !unmarshalParams(w, req, &params) {
		return
	}
	owner, err := decodeAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner", err.Error())
		return
	}
	spender, err := decodeAddress(params.Spender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid spender", err.Error())
		return
	}
	shares, err := parseAmount(params.Shares)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.engine.Approve(owner, spender, shares); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleTransfer(w http.ResponseWriter, req *RPCRequest) {
	var params transferParams
	if !unmarshalParams(w, req, &params) {
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	to, err := decodeAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid to", err.Error())
		return
	}
	shares, err := parseAmount(params.Shares)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.engine.Transfer(caller, to, shares); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleTransferFrom(w http.ResponseWriter, req *RPCRequest) {
	var params transferParams
	if !unmarshalParams(w, req, &params) {
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	from, err := decodeAddress(params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid from", err.Error())
		return
	}
	to, err := decodeAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid to", err.Error())
		return
	}
	shares, err := parseAmount(params.Shares)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.engine.TransferFrom(caller, from, to, shares); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) parseStrategyTx(w http.ResponseWriter, req *RPCRequest) (crypto.Address, crypto.Address, bool, bool) {
	var params strategyParams
	if !unmarshalParams(w, req, &params) {
		return crypto.Address{}, crypto.Address{}, false, false
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return crypto.Address{}, crypto.Address{}, false, false
	}
	strategy, err := decodeAddress(params.Strategy)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid strategy", err.Error())
		return crypto.Address{}, crypto.Address{}, false, false
	}
	return caller, strategy, params.Force, true
}

func (s *Server) handleAddStrategy(w http.ResponseWriter, req *RPCRequest) {
	caller, strategy, _, ok := s.parseStrategyTx(w, req)
	if !ok {
		return
	}
	if err := s.engine.AddStrategy(caller, strategy); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleRevokeStrategy(w http.ResponseWriter, req *RPCRequest) {
	caller, strategy, force, ok := s.parseStrategyTx(w, req)
	if !ok {
		return
	}
	if err := s.engine.RevokeStrategy(caller, strategy, force); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) parseStrategyAmountTx(w http.ResponseWriter, req *RPCRequest) (crypto.Address, crypto.Address, *big.Int, bool) {
	var params strategyAmountParams
	if !unmarshalParams(w, req, &params) {
		return crypto.Address{}, crypto.Address{}, nil, false
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return crypto.Address{}, crypto.Address{}, nil, false
	}
	strategy, err := decodeAddress(params.Strategy)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid strategy", err.Error())
		return crypto.Address{}, crypto.Address{}, nil, false
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return crypto.Address{}, crypto.Address{}, nil, false
	}
	return caller, strategy, amount, true
}

func (s *Server) handleUpdateMaxDebt(w http.ResponseWriter, req *RPCRequest) {
	caller, strategy, amount, ok := s.parseStrategyAmountTx(w, req)
	if !ok {
		return
	}
	if err := s.engine.UpdateMaxDebtForStrategy(caller, strategy, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleUpdateDebt(w http.ResponseWriter, req *RPCRequest) {
	caller, strategy, amount, ok := s.parseStrategyAmountTx(w, req)
	if !ok {
		return
	}
	debt, err := s.engine.UpdateDebt(caller, strategy, amount)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, debtResult{CurrentDebt: bigString(debt)})
}

func (s *Server) handleSetDefaultQueue(w http.ResponseWriter, req *RPCRequest) {
	var params queueParams
	if !unmarshalParams(w, req, &params) {
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	queue := make([]crypto.Address, 0, len(params.Queue))
	for _, raw := range params.Queue {
		addr, err := decodeAddress(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid queue entry", err.Error())
			return
		}
		queue = append(queue, addr)
	}
	if err := s.engine.SetDefaultQueue(caller, queue); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleProcessReport(w http.ResponseWriter, req *RPCRequest) {
	caller, strategy, _, ok := s.parseStrategyTx(w, req)
	if !ok {
		return
	}
	result, err := s.engine.ProcessReport(caller, strategy)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, reportResult{
		Strategy:          result.Strategy.String(),
		Gain:              bigString(result.Gain),
		Loss:              bigString(result.Loss),
		TotalFeeShares:    bigString(result.TotalFeeShares),
		ProtocolFeeShares: bigString(result.ProtocolFeeShares),
	})
}

func (s *Server) handleBuyDebt(w http.ResponseWriter, req *RPCRequest) {
	caller, strategy, amount, ok := s.parseStrategyAmountTx(w, req)
	if !ok {
		return
	}
	if err := s.engine.BuyDebt(caller, strategy, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleSetDepositLimit(w http.ResponseWriter, req *RPCRequest) {
	var params settingParams
	if !unmarshalParams(w, req, &params) {
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	var limit *big.Int
	if strings.TrimSpace(params.Value) != "" {
		limit, err = parseAmount(params.Value)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
	}
	if err := s.engine.SetDepositLimit(caller, limit); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleSetMinimumTotalIdle(w http.ResponseWriter, req *RPCRequest) {
	var params settingParams
	if !unmarshalParams(w, req, &params) {
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	minimum, err := parseAmount(params.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.engine.SetMinimumTotalIdle(caller, minimum); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleSetProfitMaxUnlockTime(w http.ResponseWriter, req *RPCRequest) {
	var params unlockTimeParams
	if !unmarshalParams(w, req, &params) {
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	if err := s.engine.SetProfitMaxUnlockTime(caller, params.Seconds); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleShutdown(w http.ResponseWriter, req *RPCRequest) {
	var params settingParams
	if !unmarshalParams(w, req, &params) {
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	if err := s.engine.Shutdown(caller); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleState(w http.ResponseWriter, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	st, err := s.store.GetVault()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	if st == nil {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, "vault not initialized", nil)
		return
	}
	totalAssets, err := s.engine.TotalAssets()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	pps, err := s.engine.PricePerShare()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	supply, err := s.engine.TotalSupply()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	queue := make([]string, len(st.DefaultQueue))
	for i := range st.DefaultQueue {
		queue[i] = st.DefaultQueue[i].String()
	}
	result := stateResult{
		Asset:               st.Asset.String(),
		Decimals:            st.Decimals,
		TotalAssets:         bigString(totalAssets),
		TotalIdle:           bigString(st.TotalIdle),
		TotalDebt:           bigString(st.TotalDebt),
		TotalSupply:         bigString(supply),
		LockedShares:        bigString(st.LockedShares),
		PricePerShare:       bigString(pps),
		MinimumTotalIdle:    bigString(st.MinimumTotalIdle),
		ProfitMaxUnlockTime: st.ProfitMaxUnlockTime,
		DefaultQueue:        queue,
		Shutdown:            st.Shutdown,
	}
	if st.DepositLimit != nil {
		result.DepositLimit = st.DepositLimit.String()
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handlePricePerShare(w http.ResponseWriter, req *RPCRequest) {
	pps, err := s.engine.PricePerShare()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountResult{Amount: bigString(pps)})
}

func (s *Server) parseAddressParam(w http.ResponseWriter, req *RPCRequest) (crypto.Address, bool) {
	var addressValue string
	if len(req.Params) == 1 {
		if err := json.Unmarshal(req.Params[0], &addressValue); err != nil {
			var wrapped addressParams
			if err := json.Unmarshal(req.Params[0], &wrapped); err != nil {
				writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address parameter", err.Error())
				return crypto.Address{}, false
			}
			addressValue = wrapped.Address
		}
	}
	addr, err := decodeAddress(addressValue)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return crypto.Address{}, false
	}
	return addr, true
}

func (s *Server) handleBalanceOf(w http.ResponseWriter, req *RPCRequest) {
	addr, ok := s.parseAddressParam(w, req)
	if !ok {
		return
	}
	balance, err := s.engine.BalanceOf(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, sharesResult{Shares: bigString(balance)})
}

func (s *Server) handleAllowance(w http.ResponseWriter, req *RPCRequest) {
	var params allowanceParams
	if !unmarshalParams(w, req, &params) {
		return
	}
	owner, err := decodeAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner", err.Error())
		return
	}
	spender, err := decodeAddress(params.Spender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid spender", err.Error())
		return
	}
	allowance, err := s.engine.Allowance(owner, spender)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, sharesResult{Shares: bigString(allowance)})
}

func (s *Server) parseAmountParam(w http.ResponseWriter, req *RPCRequest) (*big.Int, bool) {
	var amountValue string
	if len(req.Params) == 1 {
		if err := json.Unmarshal(req.Params[0], &amountValue); err != nil {
			var wrapped amountParams
			if err := json.Unmarshal(req.Params[0], &wrapped); err != nil {
				writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount parameter", err.Error())
				return nil, false
			}
			amountValue = wrapped.Amount
		}
	}
	amount, err := parseAmount(amountValue)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return nil, false
	}
	return amount, true
}

func (s *Server) handleConvertToShares(w http.ResponseWriter, req *RPCRequest) {
	amount, ok := s.parseAmountParam(w, req)
	if !ok {
		return
	}
	shares, err := s.engine.ConvertToShares(amount)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, sharesResult{Shares: bigString(shares)})
}

func (s *Server) handleConvertToAssets(w http.ResponseWriter, req *RPCRequest) {
	amount, ok := s.parseAmountParam(w, req)
	if !ok {
		return
	}
	assets, err := s.engine.ConvertToAssets(amount)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, assetsResult{Assets: bigString(assets)})
}

func (s *Server) handleMaxDeposit(w http.ResponseWriter, req *RPCRequest) {
	addr, ok := s.parseAddressParam(w, req)
	if !ok {
		return
	}
	limit, err := s.engine.MaxDeposit(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	if limit == nil {
		writeResult(w, req.ID, amountResult{Amount: "unlimited"})
		return
	}
	writeResult(w, req.ID, amountResult{Amount: limit.String()})
}

func (s *Server) handleMaxWithdraw(w http.ResponseWriter, req *RPCRequest) {
	addr, ok := s.parseAddressParam(w, req)
	if !ok {
		return
	}
	limit, err := s.engine.MaxWithdraw(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, assetsResult{Assets: bigString(limit)})
}

func (s *Server) handleMaxRedeem(w http.ResponseWriter, req *RPCRequest) {
	addr, ok := s.parseAddressParam(w, req)
	if !ok {
		return
	}
	limit, err := s.engine.MaxRedeem(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, sharesResult{Shares: bigString(limit)})
}

func (s *Server) handleStrategy(w http.ResponseWriter, req *RPCRequest) {
	addr, ok := s.parseAddressParam(w, req)
	if !ok {
		return
	}
	params, err := s.engine.StrategyParamsFor(addr)
	if err != nil {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, strategyResult{
		Address:     params.Address.String(),
		Activation:  params.Activation,
		LastReport:  params.LastReport,
		CurrentDebt: bigString(params.CurrentDebt),
		MaxDebt:     bigString(params.MaxDebt),
	})
}

func (s *Server) handleDefaultQueue(w http.ResponseWriter, req *RPCRequest) {
	queue, err := s.engine.DefaultQueue()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	out := make([]string, len(queue))
	for i := range queue {
		out[i] = queue[i].String()
	}
	writeResult(w, req.ID, out)
}

type journalParams struct {
	Start uint64 `json:"start"`
	Limit int    `json:"limit"`
}

type journalResult struct {
	Records []audit.Record `json:"records"`
	Total   uint64         `json:"total"`
}

func (s *Server) handleJournal(w http.ResponseWriter, req *RPCRequest) {
	params := journalParams{Limit: 100}
	if len(req.Params) > 0 && !unmarshalParams(w, req, &params) {
		return
	}
	if s.journal == nil {
		writeResult(w, req.ID, journalResult{Records: []audit.Record{}})
		return
	}
	records, err := s.journal.Records(params.Start, params.Limit)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	writeResult(w, req.ID, journalResult{Records: records, Total: s.journal.Len()})
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, req *RPCRequest) {
	digest, err := s.store.Checkpoint()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, checkpointResult{Digest: "0x" + hex.EncodeToString(digest[:])})
}
