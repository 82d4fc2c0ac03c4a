package vault

import (
	"fmt"
	"math/big"
	"time"

	"vaultcore/core/types"
	"vaultcore/crypto"
	nativecommon "vaultcore/native/common"
)

// Engine orchestrates the share, debt, and profit accounting for a single
// vault. All mutating operations are strictly serialized: state is loaded,
// mutated on the loaded copies, and persisted only once every check has
// passed, so any error leaves stored state untouched. External collaborators
// are invoked between the read and commit phases and a reentrancy flag
// rejects nested mutation.
type Engine struct {
	state                engineState
	strategies           StrategyResolver
	feePolicy            FeePolicy
	limitModule          DepositLimitModule
	auth                 Authorizer
	clock                Clock
	sink                 EventSink
	shutdownView         nativecommon.ShutdownView
	feeRecipient         crypto.Address
	protocolFeeRecipient crypto.Address
	entered              bool
}

// NewEngine constructs a vault engine configured with the accountant and
// protocol fee recipients.
func NewEngine(feeRecipient, protocolFeeRecipient crypto.Address) *Engine {
	return &Engine{
		feeRecipient:         feeRecipient.Clone(),
		protocolFeeRecipient: protocolFeeRecipient.Clone(),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetStrategyResolver wires the mapping from strategy address to the live
// collaborator.
func (e *Engine) SetStrategyResolver(r StrategyResolver) {
	if e == nil {
		return
	}
	e.strategies = r
}

// SetFeePolicy configures the accountant consulted during report processing.
func (e *Engine) SetFeePolicy(p FeePolicy) {
	if e == nil {
		return
	}
	e.feePolicy = p
}

// SetDepositLimitModule installs the external deposit limit. When configured
// it takes precedence over the static cap.
func (e *Engine) SetDepositLimitModule(m DepositLimitModule) {
	if e == nil {
		return
	}
	e.limitModule = m
}

// SetAuthorizer installs the capability gate consulted before privileged
// mutations. A nil authorizer allows every caller.
func (e *Engine) SetAuthorizer(a Authorizer) {
	if e == nil {
		return
	}
	e.auth = a
}

// SetClock overrides the timestamp source. Intended for deterministic tests
// and for embedding inside block execution where time is externally supplied.
func (e *Engine) SetClock(c Clock) {
	if e == nil {
		return
	}
	e.clock = c
}

// SetEventSink registers the consumer of structured operation events.
func (e *Engine) SetEventSink(s EventSink) {
	if e == nil {
		return
	}
	e.sink = s
}

// SetShutdownView wires the emergency shutdown gate.
func (e *Engine) SetShutdownView(v nativecommon.ShutdownView) {
	if e == nil {
		return
	}
	e.shutdownView = v
}

func (e *Engine) now() uint64 {
	if e.clock != nil {
		return e.clock()
	}
	return uint64(time.Now().Unix())
}

func (e *Engine) emit(ev *types.Event) {
	if e.sink == nil || ev == nil {
		return
	}
	e.sink.Emit(ev)
}

func (e *Engine) authorize(caller crypto.Address, action string) error {
	if e.auth == nil {
		return nil
	}
	if !e.auth.Authorize(caller, action) {
		return errUnauthorized
	}
	return nil
}

func (e *Engine) enter() error {
	if e.entered {
		return errReentrancy
	}
	e.entered = true
	return nil
}

func (e *Engine) exit() { e.entered = false }

func (e *Engine) ensureVault() (*VaultState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	st, err := e.state.GetVault()
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, errNilVault
	}
	if st.TotalIdle == nil {
		st.TotalIdle = big.NewInt(0)
	}
	if st.TotalDebt == nil {
		st.TotalDebt = big.NewInt(0)
	}
	if st.TotalSupply == nil {
		st.TotalSupply = big.NewInt(0)
	}
	if st.LockedShares == nil {
		st.LockedShares = big.NewInt(0)
	}
	if st.MinimumTotalIdle == nil {
		st.MinimumTotalIdle = big.NewInt(0)
	}
	if st.ProfitUnlockingRate == nil {
		st.ProfitUnlockingRate = big.NewInt(0)
	}
	return st, nil
}

func (e *Engine) shareBalance(addr crypto.Address) (*big.Int, error) {
	bal, err := e.state.GetShareBalance(addr)
	if err != nil {
		return nil, err
	}
	if bal == nil {
		return big.NewInt(0), nil
	}
	return bal, nil
}

func totalAssets(st *VaultState) *big.Int {
	return new(big.Int).Add(st.TotalIdle, st.TotalDebt)
}

func (e *Engine) guardShutdown(st *VaultState) error {
	if st.Shutdown {
		return errVaultShutdown
	}
	return nativecommon.Guard(e.shutdownView, moduleName)
}

// Deposit credits the receiver with shares for the supplied asset amount.
// Shares round down so the depositor never receives more value than was paid
// in. The minted share amount is returned.
func (e *Engine) Deposit(caller, receiver crypto.Address, assets *big.Int) (*big.Int, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()
	if assets == nil || assets.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	if receiver.IsZero() {
		return nil, errZeroAddress
	}
	st, err := e.ensureVault()
	if err != nil {
		return nil, err
	}
	if err := e.guardShutdown(st); err != nil {
		return nil, err
	}
	now := e.now()
	burnUnlocked(st, now)

	if err := e.checkDepositLimit(st, receiver, assets); err != nil {
		return nil, err
	}

	assetsBefore := totalAssets(st)
	shares := sharesForAssets(assets, assetsBefore, st.TotalSupply, false)
	if shares.Sign() == 0 {
		return nil, errZeroShares
	}

	bal, err := e.shareBalance(receiver)
	if err != nil {
		return nil, err
	}
	st.TotalIdle = new(big.Int).Add(st.TotalIdle, assets)
	st.TotalSupply = new(big.Int).Add(st.TotalSupply, shares)

	if err := e.state.PutShareBalance(receiver, new(big.Int).Add(bal, shares)); err != nil {
		return nil, err
	}
	if err := e.state.PutVault(st); err != nil {
		return nil, err
	}

	e.emit(NewDepositEvent(caller, receiver, assets, shares, assetsBefore, totalAssets(st)))
	return shares, nil
}

// Mint credits the receiver with an exact share amount, charging the asset
// amount those shares represent rounded up in the vault's favour. The charged
// asset amount is returned.
func (e *Engine) Mint(caller, receiver crypto.Address, shares *big.Int) (*big.Int, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()
	if shares == nil || shares.Sign() <= 0 {
		return nil, errZeroShares
	}
	if receiver.IsZero() {
		return nil, errZeroAddress
	}
	st, err := e.ensureVault()
	if err != nil {
		return nil, err
	}
	if err := e.guardShutdown(st); err != nil {
		return nil, err
	}
	now := e.now()
	burnUnlocked(st, now)

	assetsBefore := totalAssets(st)
	assets := assetsForShares(shares, assetsBefore, st.TotalSupply, true)
	if assets.Sign() == 0 {
		return nil, errInvalidAmount
	}
	if err := e.checkDepositLimit(st, receiver, assets); err != nil {
		return nil, err
	}

	bal, err := e.shareBalance(receiver)
	if err != nil {
		return nil, err
	}
	st.TotalIdle = new(big.Int).Add(st.TotalIdle, assets)
	st.TotalSupply = new(big.Int).Add(st.TotalSupply, shares)

	if err := e.state.PutShareBalance(receiver, new(big.Int).Add(bal, shares)); err != nil {
		return nil, err
	}
	if err := e.state.PutVault(st); err != nil {
		return nil, err
	}

	e.emit(NewDepositEvent(caller, receiver, assets, shares, assetsBefore, totalAssets(st)))
	return assets, nil
}

func (e *Engine) checkDepositLimit(st *VaultState, receiver crypto.Address, assets *big.Int) error {
	if e.limitModule != nil {
		available, err := e.limitModule.AvailableDepositLimit(receiver)
		if err != nil {
			return fmt.Errorf("vault engine: deposit limit module: %w", err)
		}
		if available == nil || assets.Cmp(available) > 0 {
			return errExceedDepositLimit
		}
		return nil
	}
	if st.DepositLimit == nil {
		return nil
	}
	projected := new(big.Int).Add(totalAssets(st), assets)
	if projected.Cmp(st.DepositLimit) > 0 {
		return errExceedDepositLimit
	}
	return nil
}

// Withdraw redeems the share amount backing an exact asset quantity, pulling
// liquidity from strategies when idle assets fall short. Shares burn rounded
// up so the vault never pays out more value than the burned shares represent.
// The burned share amount is returned.
func (e *Engine) Withdraw(caller, receiver, owner crypto.Address, assets *big.Int, maxLossBps uint64, hints []crypto.Address) (*big.Int, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()
	if assets == nil || assets.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	st, err := e.ensureVault()
	if err != nil {
		return nil, err
	}
	now := e.now()
	burnUnlocked(st, now)

	shares := sharesForAssets(assets, totalAssets(st), st.TotalSupply, true)
	if shares.Sign() == 0 {
		return nil, errZeroShares
	}
	if _, err := e.redeemShares(st, caller, receiver, owner, shares, assets, maxLossBps, hints); err != nil {
		return nil, err
	}
	return shares, nil
}

// Redeem burns an exact share amount and pays out the asset quantity those
// shares represent rounded down. The paid asset amount, net of any socialized
// withdrawal loss, is returned.
func (e *Engine) Redeem(caller, receiver, owner crypto.Address, shares *big.Int, maxLossBps uint64, hints []crypto.Address) (*big.Int, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()
	if shares == nil || shares.Sign() <= 0 {
		return nil, errZeroShares
	}
	st, err := e.ensureVault()
	if err != nil {
		return nil, err
	}
	now := e.now()
	burnUnlocked(st, now)

	assets := assetsForShares(shares, totalAssets(st), st.TotalSupply, false)
	if assets.Sign() == 0 {
		return nil, errInvalidAmount
	}
	return e.redeemShares(st, caller, receiver, owner, shares, assets, maxLossBps, hints)
}

type strategyPull struct {
	params  *StrategyParams
	request *big.Int
}

// redeemShares burns owner shares against an asset payout. When idle assets
// cannot cover the payout the shortfall is sourced from the hint queue, or
// the default queue when no hints are given. The plan is computed from
// recorded debt before any external call so an unsourceable withdrawal fails
// with no state written. A strategy returning less than requested realizes a
// loss that is checked against the caller's tolerance and then socialized:
// the full share amount burns while the payout shrinks by the loss.
func (e *Engine) redeemShares(st *VaultState, caller, receiver, owner crypto.Address, shares, assets *big.Int, maxLossBps uint64, hints []crypto.Address) (*big.Int, error) {
	if receiver.IsZero() || owner.IsZero() {
		return nil, errZeroAddress
	}
	if maxLossBps > MaxLossBps {
		return nil, errInvalidLossTolerance
	}

	bal, err := e.shareBalance(owner)
	if err != nil {
		return nil, err
	}
	if bal.Cmp(shares) < 0 {
		return nil, errInsufficientShares
	}
	var newAllowance *big.Int
	spendAllowance := !owner.Equal(caller)
	if spendAllowance {
		allowance, err := e.state.GetAllowance(owner, caller)
		if err != nil {
			return nil, err
		}
		if allowance == nil || allowance.Cmp(shares) < 0 {
			return nil, errInsufficientAllow
		}
		newAllowance = new(big.Int).Sub(allowance, shares)
	}

	queue := hints
	if len(queue) == 0 {
		queue = st.DefaultQueue
	}

	payout := new(big.Int).Set(assets)
	assetsBefore := totalAssets(st)
	var touched []*StrategyParams
	if payout.Cmp(st.TotalIdle) > 0 {
		need := new(big.Int).Sub(payout, st.TotalIdle)
		var plan []strategyPull
		for _, addr := range queue {
			if need.Sign() == 0 {
				break
			}
			params, err := e.state.GetStrategy(addr)
			if err != nil {
				return nil, err
			}
			if params == nil || params.Activation == 0 {
				return nil, errInactiveStrategy
			}
			if params.CurrentDebt == nil || params.CurrentDebt.Sign() == 0 {
				continue
			}
			request := minBig(new(big.Int).Set(need), params.CurrentDebt)
			plan = append(plan, strategyPull{params: params, request: new(big.Int).Set(request)})
			need = new(big.Int).Sub(need, request)
		}
		if need.Sign() > 0 {
			return nil, errInsufficientAssets
		}

		totalLoss := big.NewInt(0)
		for _, pull := range plan {
			strategy := e.resolveStrategy(pull.params.Address)
			if strategy == nil {
				return nil, errStrategyUnavailable
			}
			recovered, err := strategy.Withdraw(pull.request)
			if err != nil {
				return nil, fmt.Errorf("vault engine: strategy withdraw: %w", err)
			}
			if recovered == nil || recovered.Sign() < 0 {
				recovered = big.NewInt(0)
			}
			if recovered.Cmp(pull.request) > 0 {
				recovered = new(big.Int).Set(pull.request)
			}
			totalLoss = new(big.Int).Add(totalLoss, new(big.Int).Sub(pull.request, recovered))

			st.TotalIdle = new(big.Int).Add(st.TotalIdle, recovered)
			st.TotalDebt = new(big.Int).Sub(st.TotalDebt, pull.request)
			pull.params.CurrentDebt = new(big.Int).Sub(pull.params.CurrentDebt, pull.request)
			touched = append(touched, pull.params)
		}
		if totalLoss.Sign() > 0 {
			scaledLoss := new(big.Int).Mul(totalLoss, basisPoints)
			tolerance := new(big.Int).Mul(assets, new(big.Int).SetUint64(maxLossBps))
			if scaledLoss.Cmp(tolerance) > 0 {
				return nil, errTooMuchLoss
			}
			payout = new(big.Int).Sub(payout, totalLoss)
		}
		if payout.Cmp(st.TotalIdle) > 0 {
			return nil, errInsufficientAssets
		}
	}

	st.TotalIdle = new(big.Int).Sub(st.TotalIdle, payout)
	st.TotalSupply = new(big.Int).Sub(st.TotalSupply, shares)

	if spendAllowance {
		if err := e.state.PutAllowance(owner, caller, newAllowance); err != nil {
			return nil, err
		}
	}
	if err := e.state.PutShareBalance(owner, new(big.Int).Sub(bal, shares)); err != nil {
		return nil, err
	}
	for _, params := range touched {
		if err := e.state.PutStrategy(params); err != nil {
			return nil, err
		}
	}
	if err := e.state.PutVault(st); err != nil {
		return nil, err
	}

	e.emit(NewWithdrawEvent(caller, receiver, owner, payout, shares, assetsBefore, totalAssets(st)))
	return payout, nil
}

func (e *Engine) resolveStrategy(addr crypto.Address) Strategy {
	if e.strategies == nil {
		return nil
	}
	return e.strategies.Resolve(addr)
}

// Approve records a share spending allowance from owner to spender.
func (e *Engine) Approve(owner, spender crypto.Address, shares *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if owner.IsZero() || spender.IsZero() {
		return errZeroAddress
	}
	if shares == nil || shares.Sign() < 0 {
		return errInvalidAmount
	}
	if err := e.state.PutAllowance(owner, spender, new(big.Int).Set(shares)); err != nil {
		return err
	}
	e.emit(NewApprovalEvent(owner, spender, shares))
	return nil
}

// Allowance returns the remaining share allowance from owner to spender.
func (e *Engine) Allowance(owner, spender crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	allowance, err := e.state.GetAllowance(owner, spender)
	if err != nil {
		return nil, err
	}
	if allowance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(allowance), nil
}

// Transfer moves shares between holders without touching asset accounting.
func (e *Engine) Transfer(caller, to crypto.Address, shares *big.Int) error {
	return e.transferShares(caller, caller, to, shares)
}

// TransferFrom moves shares on behalf of the owner, consuming allowance.
func (e *Engine) TransferFrom(caller, from, to crypto.Address, shares *big.Int) error {
	return e.transferShares(caller, from, to, shares)
}

func (e *Engine) transferShares(caller, from, to crypto.Address, shares *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if from.IsZero() || to.IsZero() {
		return errZeroAddress
	}
	if shares == nil || shares.Sign() <= 0 {
		return errInvalidAmount
	}
	if from.Equal(to) {
		return nil
	}
	fromBal, err := e.shareBalance(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(shares) < 0 {
		return errInsufficientShares
	}
	if !from.Equal(caller) {
		allowance, err := e.state.GetAllowance(from, caller)
		if err != nil {
			return err
		}
		if allowance == nil || allowance.Cmp(shares) < 0 {
			return errInsufficientAllow
		}
		if err := e.state.PutAllowance(from, caller, new(big.Int).Sub(allowance, shares)); err != nil {
			return err
		}
	}
	toBal, err := e.shareBalance(to)
	if err != nil {
		return err
	}
	if err := e.state.PutShareBalance(from, new(big.Int).Sub(fromBal, shares)); err != nil {
		return err
	}
	if err := e.state.PutShareBalance(to, new(big.Int).Add(toBal, shares)); err != nil {
		return err
	}
	e.emit(NewTransferEvent(from, to, shares))
	return nil
}
