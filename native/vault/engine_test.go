package vault

import (
	"errors"
	"math/big"
	"testing"

	"vaultcore/core/types"
	"vaultcore/crypto"
)

type mockState struct {
	vault      *VaultState
	strategies map[string]*StrategyParams
	balances   map[string]*big.Int
	allowances map[string]*big.Int
}

func newMockState() *mockState {
	return &mockState{
		strategies: make(map[string]*StrategyParams),
		balances:   make(map[string]*big.Int),
		allowances: make(map[string]*big.Int),
	}
}

func (m *mockState) key(addr crypto.Address) string { return string(addr.Bytes()) }

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// GetVault returns a deep copy so uncommitted engine mutations stay
// invisible, matching the codec boundary of the real store.
func (m *mockState) GetVault() (*VaultState, error) {
	if m.vault == nil {
		return nil, nil
	}
	copied := *m.vault
	copied.TotalIdle = cloneBig(m.vault.TotalIdle)
	copied.TotalDebt = cloneBig(m.vault.TotalDebt)
	copied.TotalSupply = cloneBig(m.vault.TotalSupply)
	copied.LockedShares = cloneBig(m.vault.LockedShares)
	copied.MinimumTotalIdle = cloneBig(m.vault.MinimumTotalIdle)
	copied.DepositLimit = cloneBig(m.vault.DepositLimit)
	copied.ProfitUnlockingRate = cloneBig(m.vault.ProfitUnlockingRate)
	copied.DefaultQueue = append([]crypto.Address(nil), m.vault.DefaultQueue...)
	copied.ActiveStrategies = append([]crypto.Address(nil), m.vault.ActiveStrategies...)
	return &copied, nil
}

func (m *mockState) PutVault(st *VaultState) error {
	m.vault = st
	return nil
}

func (m *mockState) GetStrategy(addr crypto.Address) (*StrategyParams, error) {
	stored := m.strategies[m.key(addr)]
	if stored == nil {
		return nil, nil
	}
	copied := *stored
	copied.CurrentDebt = cloneBig(stored.CurrentDebt)
	copied.MaxDebt = cloneBig(stored.MaxDebt)
	return &copied, nil
}

func (m *mockState) PutStrategy(params *StrategyParams) error {
	if params == nil {
		return nil
	}
	m.strategies[m.key(params.Address)] = params
	return nil
}

func (m *mockState) DeleteStrategy(addr crypto.Address) error {
	delete(m.strategies, m.key(addr))
	return nil
}

func (m *mockState) GetShareBalance(addr crypto.Address) (*big.Int, error) {
	return m.balances[m.key(addr)], nil
}

func (m *mockState) PutShareBalance(addr crypto.Address, amount *big.Int) error {
	m.balances[m.key(addr)] = amount
	return nil
}

func (m *mockState) allowanceKey(owner, spender crypto.Address) string {
	return m.key(owner) + "|" + m.key(spender)
}

func (m *mockState) GetAllowance(owner, spender crypto.Address) (*big.Int, error) {
	return m.allowances[m.allowanceKey(owner, spender)], nil
}

func (m *mockState) PutAllowance(owner, spender crypto.Address, amount *big.Int) error {
	m.allowances[m.allowanceKey(owner, spender)] = amount
	return nil
}

type mockStrategy struct {
	value       *big.Int
	held        *big.Int
	withdrawCap *big.Int
	shortfall   *big.Int
	valueErr    error
	withdrawErr error
}

func newMockStrategy() *mockStrategy {
	return &mockStrategy{value: big.NewInt(0), held: big.NewInt(0)}
}

func (s *mockStrategy) TotalAssetValue() (*big.Int, error) {
	if s.valueErr != nil {
		return nil, s.valueErr
	}
	return new(big.Int).Set(s.value), nil
}

func (s *mockStrategy) Deposit(amount *big.Int) error {
	s.held = new(big.Int).Add(s.held, amount)
	s.value = new(big.Int).Add(s.value, amount)
	return nil
}

func (s *mockStrategy) Withdraw(amount *big.Int) (*big.Int, error) {
	if s.withdrawErr != nil {
		return nil, s.withdrawErr
	}
	out := new(big.Int).Set(amount)
	if s.withdrawCap != nil && out.Cmp(s.withdrawCap) > 0 {
		out = new(big.Int).Set(s.withdrawCap)
	}
	if s.shortfall != nil {
		out = new(big.Int).Sub(out, s.shortfall)
		if out.Sign() < 0 {
			out = big.NewInt(0)
		}
	}
	return out, nil
}

type mockResolver struct {
	entries map[string]Strategy
}

func (r *mockResolver) Resolve(addr crypto.Address) Strategy {
	if r == nil || r.entries == nil {
		return nil
	}
	return r.entries[string(addr.Bytes())]
}

type mockFeePolicy struct {
	totalFee    *big.Int
	protocolFee *big.Int
	err         error
}

func (p *mockFeePolicy) Report(_ crypto.Address, _, _ *big.Int) (*big.Int, *big.Int, error) {
	if p.err != nil {
		return nil, nil, p.err
	}
	return new(big.Int).Set(p.totalFee), new(big.Int).Set(p.protocolFee), nil
}

type manualClock struct {
	now uint64
}

func (c *manualClock) Now() uint64 { return c.now }

func (c *manualClock) Advance(secs uint64) { c.now += secs }

type eventRecorder struct {
	events []*types.Event
}

func (r *eventRecorder) Emit(ev *types.Event) { r.events = append(r.events, ev) }

func makeAddress(prefix crypto.AddressPrefix, suffix byte) crypto.Address {
	raw := make([]byte, 20)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(prefix, raw)
}

var (
	accountantAddr = makeAddress(crypto.VaultPrefix, 0xAA)
	protocolAddr   = makeAddress(crypto.VaultPrefix, 0xAB)
	aliceAddr      = makeAddress(crypto.VaultPrefix, 0x01)
	bobAddr        = makeAddress(crypto.VaultPrefix, 0x02)
	assetAddr      = makeAddress(crypto.VaultPrefix, 0xEE)
	strategyAddr   = makeAddress(crypto.StrategyPrefix, 0x10)
	strategy2Addr  = makeAddress(crypto.StrategyPrefix, 0x11)
)

const testStart = uint64(1_700_000_000)

func newTestEngine(t *testing.T) (*Engine, *mockState, *manualClock, *mockResolver) {
	t.Helper()
	engine := NewEngine(accountantAddr, protocolAddr)
	state := newMockState()
	clock := &manualClock{now: testStart}
	resolver := &mockResolver{entries: make(map[string]Strategy)}
	engine.SetState(state)
	engine.SetClock(clock.Now)
	engine.SetStrategyResolver(resolver)
	state.vault = &VaultState{
		Asset:               assetAddr,
		Decimals:            6,
		TotalIdle:           big.NewInt(0),
		TotalDebt:           big.NewInt(0),
		TotalSupply:         big.NewInt(0),
		LockedShares:        big.NewInt(0),
		MinimumTotalIdle:    big.NewInt(0),
		ProfitUnlockingRate: big.NewInt(0),
		ProfitMaxUnlockTime: 3600,
		LastProfitUpdate:    testStart,
	}
	return engine, state, clock, resolver
}

func addActiveStrategy(t *testing.T, engine *Engine, resolver *mockResolver, addr crypto.Address, maxDebt int64) *mockStrategy {
	t.Helper()
	strat := newMockStrategy()
	resolver.entries[string(addr.Bytes())] = strat
	if err := engine.AddStrategy(aliceAddr, addr); err != nil {
		t.Fatalf("add strategy: %v", err)
	}
	if err := engine.UpdateMaxDebtForStrategy(aliceAddr, addr, big.NewInt(maxDebt)); err != nil {
		t.Fatalf("update max debt: %v", err)
	}
	return strat
}

func TestDepositMintsSharesOneToOne(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	shares, err := engine.Deposit(aliceAddr, aliceAddr, big.NewInt(1000))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if shares.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected shares: %s", shares)
	}
	if state.vault.TotalIdle.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected idle: %s", state.vault.TotalIdle)
	}
	if state.vault.TotalSupply.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected supply: %s", state.vault.TotalSupply)
	}
	bal, _ := engine.BalanceOf(aliceAddr)
	if bal.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected balance: %s", bal)
	}
}

func TestDepositLimitEnforced(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	state.vault.DepositLimit = big.NewInt(250)

	if _, err := engine.Deposit(aliceAddr, aliceAddr, big.NewInt(1000)); !errors.Is(err, errExceedDepositLimit) {
		t.Fatalf("expected deposit limit error, got %v", err)
	}
	if state.vault.TotalIdle.Sign() != 0 || state.vault.TotalSupply.Sign() != 0 {
		t.Fatalf("failed deposit mutated state")
	}

	if _, err := engine.Deposit(aliceAddr, aliceAddr, big.NewInt(250)); err != nil {
		t.Fatalf("deposit within limit: %v", err)
	}
	if state.vault.TotalSupply.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("unexpected supply: %s", state.vault.TotalSupply)
	}
	pps, err := engine.PricePerShare()
	if err != nil {
		t.Fatalf("price per share: %v", err)
	}
	if pps.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("expected unit price, got %s", pps)
	}
}

func TestDepositRejectsDust(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	if _, err := engine.Deposit(aliceAddr, aliceAddr, big.NewInt(1000)); err != nil {
		t.Fatalf("seed deposit: %v", err)
	}
	// Inflate assets so one asset unit prices below one share.
	state.vault.TotalIdle = big.NewInt(5000)
	if _, err := engine.Deposit(aliceAddr, aliceAddr, big.NewInt(4)); !errors.Is(err, errZeroShares) {
		t.Fatalf("expected zero shares error, got %v", err)
	}
}

func TestMintChargesRoundedUpAssets(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	if _, err := engine.Deposit(aliceAddr, aliceAddr, big.NewInt(1000)); err != nil {
		t.Fatalf("seed deposit: %v", err)
	}
	// 3 assets back 2 shares so one share costs 1.5 assets, charged as 2.
	state.vault.TotalIdle = big.NewInt(1500)
	assets, err := engine.Mint(bobAddr, bobAddr, big.NewInt(1))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if assets.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("expected 2 assets charged, got %s", assets)
	}
}

func TestWithdrawRoundTripLosesAtMostDust(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	if _, err := engine.Deposit(aliceAddr, aliceAddr, big.NewInt(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	shares, err := engine.Withdraw(aliceAddr, aliceAddr, aliceAddr, big.NewInt(1000), 0, nil)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if shares.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected shares burned: %s", shares)
	}
	if state.vault.TotalIdle.Sign() != 0 || state.vault.TotalSupply.Sign() != 0 {
		t.Fatalf("vault not drained: idle=%s supply=%s", state.vault.TotalIdle, state.vault.TotalSupply)
	}
	bal, _ := engine.BalanceOf(aliceAddr)
	if bal.Sign() != 0 {
		t.Fatalf("unexpected residual balance: %s", bal)
	}
}

func TestWithdrawSourcesFromDefaultQueue(t *testing.T) {
	engine, state, _, resolver := newTestEngine(t)
	if _, err := engine.Deposit(aliceAddr, aliceAddr, big.NewInt(300)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	addActiveStrategy(t, engine, resolver, strategyAddr, 250)
	if _, err := engine.UpdateDebt(aliceAddr, strategyAddr, big.NewInt(250)); err != nil {
		t.Fatalf("update debt: %v", err)
	}
	if state.vault.TotalIdle.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("unexpected idle after allocation: %s", state.vault.TotalIdle)
	}

	assets, err := engine.Redeem(aliceAddr, aliceAddr, aliceAddr, big.NewInt(200), 0, nil)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if assets.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("unexpected payout: %s", assets)
	}
	if state.vault.TotalIdle.Sign() != 0 {
		t.Fatalf("unexpected idle: %s", state.vault.TotalIdle)
	}
	if state.vault.TotalDebt.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected debt: %s", state.vault.TotalDebt)
	}
	params, err := engine.StrategyParamsFor(strategyAddr)
	if err != nil {
		t.Fatalf("strategy params: %v", err)
	}
	if params.CurrentDebt.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected strategy debt: %s", params.CurrentDebt)
	}
}

func TestWithdrawFailsBeforeExternalCallsWhenUnsourceable(t *testing.T) {
	engine, state, _, resolver := newTestEngine(t)
	if _, err := engine.Deposit(aliceAddr, aliceAddr, big.NewInt(300)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	addActiveStrategy(t, engine, resolver, strategyAddr, 250)
	if _, err := engine.UpdateDebt(aliceAddr, strategyAddr, big.NewInt(250)); err != nil {
		t.Fatalf("update debt: %v", err)
	}
	// Shrink the strategy's recorded debt so the planner cannot cover the
	// shortfall from the queue.
	state.strategies[string(strategyAddr.Bytes())].CurrentDebt = big.NewInt(10)

	idleBefore := new(big.Int).Set(state.vault.TotalIdle)
	if _, err := engine.Withdraw(aliceAddr, aliceAddr, aliceAddr, big.NewInt(70), 0, nil); !errors.Is(err, errInsufficientAssets) {
		t.Fatalf("expected insufficient assets, got %v", err)
	}
	if state.vault.TotalIdle.Cmp(idleBefore) != 0 {
		t.Fatalf("failed withdrawal mutated idle")
	}
}

func TestWithdrawLossSocialization(t *testing.T) {
	engine, state, _, resolver := newTestEngine(t)
	if _, err := engine.Deposit(aliceAddr, aliceAddr, big.NewInt(300)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	strat := addActiveStrategy(t, engine, resolver, strategyAddr, 250)
	if _, err := engine.UpdateDebt(aliceAddr, strategyAddr, big.NewInt(250)); err != nil {
		t.Fatalf("update debt: %v", err)
	}
	strat.shortfall = big.NewInt(10)

	if _, err := engine.Withdraw(aliceAddr, aliceAddr, aliceAddr, big.NewInt(200), 0, nil); !errors.Is(err, errTooMuchLoss) {
		t.Fatalf("expected loss tolerance error, got %v", err)
	}

	shares, err := engine.Withdraw(aliceAddr, aliceAddr, aliceAddr, big.NewInt(200), MaxLossBps, nil)
	if err != nil {
		t.Fatalf("withdraw with tolerance: %v", err)
	}
	if shares.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("expected full share burn, got %s", shares)
	}
	// 150 requested from the strategy, 140 recovered: payout shrinks by the
	// loss while the burned shares stay whole.
	if state.vault.TotalIdle.Sign() != 0 {
		t.Fatalf("unexpected idle: %s", state.vault.TotalIdle)
	}
	if state.vault.TotalDebt.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected debt: %s", state.vault.TotalDebt)
	}
	if state.vault.TotalSupply.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected supply: %s", state.vault.TotalSupply)
	}
}

func TestWithdrawUsesStrategyHints(t *testing.T) {
	engine, state, _, resolver := newTestEngine(t)
	if _, err := engine.Deposit(aliceAddr, aliceAddr, big.NewInt(400)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	addActiveStrategy(t, engine, resolver, strategyAddr, 200)
	addActiveStrategy(t, engine, resolver, strategy2Addr, 200)
	if _, err := engine.UpdateDebt(aliceAddr, strategyAddr, big.NewInt(200)); err != nil {
		t.Fatalf("update debt 1: %v", err)
	}
	if _, err := engine.UpdateDebt(aliceAddr, strategy2Addr, big.NewInt(200)); err != nil {
		t.Fatalf("update debt 2: %v", err)
	}

	hints := []crypto.Address{strategy2Addr}
	if _, err := engine.Withdraw(aliceAddr, aliceAddr, aliceAddr, big.NewInt(150), 0, hints); err != nil {
		t.Fatalf("withdraw with hints: %v", err)
	}
	first, _ := engine.StrategyParamsFor(strategyAddr)
	second, _ := engine.StrategyParamsFor(strategy2Addr)
	if first.CurrentDebt.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("hinted withdrawal touched wrong strategy: %s", first.CurrentDebt)
	}
	if second.CurrentDebt.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("unexpected hinted strategy debt: %s", second.CurrentDebt)
	}
	if state.vault.TotalDebt.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("unexpected total debt: %s", state.vault.TotalDebt)
	}
}

func TestRedeemRequiresAllowanceForThirdParty(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	if _, err := engine.Deposit(aliceAddr, aliceAddr, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := engine.Redeem(bobAddr, bobAddr, aliceAddr, big.NewInt(50), 0, nil); !errors.Is(err, errInsufficientAllow) {
		t.Fatalf("expected allowance error, got %v", err)
	}
	if err := engine.Approve(aliceAddr, bobAddr, big.NewInt(50)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := engine.Redeem(bobAddr, bobAddr, aliceAddr, big.NewInt(50), 0, nil); err != nil {
		t.Fatalf("redeem with allowance: %v", err)
	}
	remaining, err := engine.Allowance(aliceAddr, bobAddr)
	if err != nil {
		t.Fatalf("allowance: %v", err)
	}
	if remaining.Sign() != 0 {
		t.Fatalf("allowance not consumed: %s", remaining)
	}
}

func TestTransferMovesShares(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	if _, err := engine.Deposit(aliceAddr, aliceAddr, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := engine.Transfer(aliceAddr, bobAddr, big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	aliceBal, _ := engine.BalanceOf(aliceAddr)
	bobBal, _ := engine.BalanceOf(bobAddr)
	if aliceBal.Cmp(big.NewInt(60)) != 0 || bobBal.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("unexpected balances: %s / %s", aliceBal, bobBal)
	}
	if err := engine.Transfer(aliceAddr, bobAddr, big.NewInt(100)); !errors.Is(err, errInsufficientShares) {
		t.Fatalf("expected balance error, got %v", err)
	}
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	if _, err := engine.Deposit(aliceAddr, aliceAddr, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := engine.TransferFrom(bobAddr, aliceAddr, bobAddr, big.NewInt(10)); !errors.Is(err, errInsufficientAllow) {
		t.Fatalf("expected allowance error, got %v", err)
	}

	if err := engine.Approve(aliceAddr, bobAddr, big.NewInt(60)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := engine.TransferFrom(bobAddr, aliceAddr, bobAddr, big.NewInt(40)); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	aliceBal, _ := engine.BalanceOf(aliceAddr)
	bobBal, _ := engine.BalanceOf(bobAddr)
	if aliceBal.Cmp(big.NewInt(60)) != 0 || bobBal.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("unexpected balances: %s / %s", aliceBal, bobBal)
	}
	remaining, err := engine.Allowance(aliceAddr, bobAddr)
	if err != nil {
		t.Fatalf("allowance: %v", err)
	}
	if remaining.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("allowance not consumed: %s", remaining)
	}
	if err := engine.TransferFrom(bobAddr, aliceAddr, bobAddr, big.NewInt(30)); !errors.Is(err, errInsufficientAllow) {
		t.Fatalf("expected exhausted allowance error, got %v", err)
	}
}

// reentrantSink drives engine mutations from inside event delivery, which
// runs while the operation's reentrancy flag is still held.
type reentrantSink struct {
	engine *Engine
	errs   []error
}

func (s *reentrantSink) Emit(*types.Event) {
	s.errs = append(s.errs, s.engine.Approve(aliceAddr, bobAddr, big.NewInt(1)))
	s.errs = append(s.errs, s.engine.Transfer(aliceAddr, bobAddr, big.NewInt(1)))
	s.errs = append(s.errs, s.engine.SetDepositLimit(aliceAddr, big.NewInt(1)))
	s.errs = append(s.errs, s.engine.Shutdown(aliceAddr))
}

func TestMutatorsRejectNestedCalls(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	sink := &reentrantSink{engine: engine}
	engine.SetEventSink(sink)

	if _, err := engine.Deposit(aliceAddr, aliceAddr, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if len(sink.errs) != 4 {
		t.Fatalf("expected 4 nested attempts, got %d", len(sink.errs))
	}
	for i, err := range sink.errs {
		if !errors.Is(err, errReentrancy) {
			t.Fatalf("nested call %d: expected reentrancy error, got %v", i, err)
		}
	}
}

func TestShutdownBlocksDepositsNotRedemptions(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	if _, err := engine.Deposit(aliceAddr, aliceAddr, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := engine.Shutdown(aliceAddr); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if _, err := engine.Deposit(aliceAddr, aliceAddr, big.NewInt(100)); !errors.Is(err, errVaultShutdown) {
		t.Fatalf("expected shutdown error, got %v", err)
	}
	if _, err := engine.Redeem(aliceAddr, aliceAddr, aliceAddr, big.NewInt(100), 0, nil); err != nil {
		t.Fatalf("redeem after shutdown: %v", err)
	}
}

func TestConservationAcrossDepositWithdrawCycles(t *testing.T) {
	engine, state, _, resolver := newTestEngine(t)
	addActiveStrategy(t, engine, resolver, strategyAddr, 1_000_000)
	amounts := []int64{500, 1200, 73, 9999}
	for _, amount := range amounts {
		if _, err := engine.Deposit(aliceAddr, aliceAddr, big.NewInt(amount)); err != nil {
			t.Fatalf("deposit %d: %v", amount, err)
		}
		if _, err := engine.UpdateDebt(aliceAddr, strategyAddr, new(big.Int).Add(state.vault.TotalDebt, big.NewInt(amount/2))); err != nil {
			t.Fatalf("update debt: %v", err)
		}
		total := new(big.Int).Add(state.vault.TotalIdle, state.vault.TotalDebt)
		assets, err := engine.TotalAssets()
		if err != nil {
			t.Fatalf("total assets: %v", err)
		}
		if total.Cmp(assets) != 0 {
			t.Fatalf("conservation violated: %s != %s", total, assets)
		}
	}
}

func TestEventsFollowExecutionOrder(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	recorder := &eventRecorder{}
	engine.SetEventSink(recorder)
	if _, err := engine.Deposit(aliceAddr, aliceAddr, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := engine.Redeem(aliceAddr, aliceAddr, aliceAddr, big.NewInt(40), 0, nil); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if len(recorder.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(recorder.events))
	}
	if recorder.events[0].Type != EventTypeDeposit || recorder.events[1].Type != EventTypeWithdraw {
		t.Fatalf("unexpected event order: %s, %s", recorder.events[0].Type, recorder.events[1].Type)
	}
	if recorder.events[1].Attribute("assets") != "40" {
		t.Fatalf("unexpected withdraw amount: %s", recorder.events[1].Attribute("assets"))
	}
}

func TestAuthorizerGatesPrivilegedCalls(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	engine.SetAuthorizer(&RoleTable{
		Admins:           []crypto.Address{aliceAddr},
		StrategyManagers: []crypto.Address{bobAddr},
	})
	outsider := makeAddress(crypto.VaultPrefix, 0x99)
	if err := engine.AddStrategy(outsider, strategyAddr); !errors.Is(err, errUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := engine.AddStrategy(bobAddr, strategyAddr); err != nil {
		t.Fatalf("strategy manager add: %v", err)
	}
	if err := engine.Shutdown(bobAddr); !errors.Is(err, errUnauthorized) {
		t.Fatalf("expected admin-only shutdown, got %v", err)
	}
	if err := engine.Shutdown(aliceAddr); err != nil {
		t.Fatalf("admin shutdown: %v", err)
	}
}
