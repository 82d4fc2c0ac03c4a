package vault

import (
	"math/big"
	"strconv"
	"strings"

	"vaultcore/core/types"
	"vaultcore/crypto"
)

const (
	EventTypeDeposit          = "vault.deposited"
	EventTypeWithdraw         = "vault.withdrawn"
	EventTypeTransfer         = "vault.transfer"
	EventTypeApproval         = "vault.approval"
	EventTypeStrategyAdded    = "vault.strategy.added"
	EventTypeStrategyRevoked  = "vault.strategy.revoked"
	EventTypeStrategyReported = "vault.strategy.reported"
	EventTypeMaxDebtUpdated   = "vault.strategy.max_debt_updated"
	EventTypeDebtUpdated      = "vault.debt.updated"
	EventTypeDebtPurchased    = "vault.debt.purchased"
	EventTypeQueueUpdated     = "vault.queue.updated"
	EventTypeLimitUpdated     = "vault.limit.updated"
	EventTypeShutdown         = "vault.shutdown"
)

func amountAttr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// NewDepositEvent is emitted for both deposit and mint paths; the pair of
// amounts disambiguates which leg was fixed by the caller.
func NewDepositEvent(caller, receiver crypto.Address, assets, shares, assetsBefore, assetsAfter *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeDeposit,
		Attributes: map[string]string{
			"caller":            caller.String(),
			"receiver":          receiver.String(),
			"assets":            amountAttr(assets),
			"shares":            amountAttr(shares),
			"totalAssetsBefore": amountAttr(assetsBefore),
			"totalAssetsAfter":  amountAttr(assetsAfter),
		},
	}
}

func NewWithdrawEvent(caller, receiver, owner crypto.Address, assets, shares, assetsBefore, assetsAfter *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeWithdraw,
		Attributes: map[string]string{
			"caller":            caller.String(),
			"receiver":          receiver.String(),
			"owner":             owner.String(),
			"assets":            amountAttr(assets),
			"shares":            amountAttr(shares),
			"totalAssetsBefore": amountAttr(assetsBefore),
			"totalAssetsAfter":  amountAttr(assetsAfter),
		},
	}
}

func NewTransferEvent(from, to crypto.Address, shares *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeTransfer,
		Attributes: map[string]string{
			"from":   from.String(),
			"to":     to.String(),
			"shares": amountAttr(shares),
		},
	}
}

func NewApprovalEvent(owner, spender crypto.Address, shares *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeApproval,
		Attributes: map[string]string{
			"owner":   owner.String(),
			"spender": spender.String(),
			"shares":  amountAttr(shares),
		},
	}
}

func NewStrategyAddedEvent(caller, strategy crypto.Address) *types.Event {
	return &types.Event{
		Type: EventTypeStrategyAdded,
		Attributes: map[string]string{
			"caller":   caller.String(),
			"strategy": strategy.String(),
		},
	}
}

func NewStrategyRevokedEvent(caller, strategy crypto.Address, loss *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeStrategyRevoked,
		Attributes: map[string]string{
			"caller":   caller.String(),
			"strategy": strategy.String(),
			"loss":     amountAttr(loss),
		},
	}
}

func NewStrategyReportedEvent(caller crypto.Address, result *ReportResult, assetsBefore, assetsAfter *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeStrategyReported,
		Attributes: map[string]string{
			"caller":            caller.String(),
			"strategy":          result.Strategy.String(),
			"gain":              amountAttr(result.Gain),
			"loss":              amountAttr(result.Loss),
			"totalFeeShares":    amountAttr(result.TotalFeeShares),
			"protocolFeeShares": amountAttr(result.ProtocolFeeShares),
			"totalAssetsBefore": amountAttr(assetsBefore),
			"totalAssetsAfter":  amountAttr(assetsAfter),
		},
	}
}

func NewMaxDebtUpdatedEvent(caller, strategy crypto.Address, maxDebt *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeMaxDebtUpdated,
		Attributes: map[string]string{
			"caller":   caller.String(),
			"strategy": strategy.String(),
			"maxDebt":  amountAttr(maxDebt),
		},
	}
}

func NewDebtUpdatedEvent(caller, strategy crypto.Address, debtBefore, debtAfter, totalIdle, totalDebt *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeDebtUpdated,
		Attributes: map[string]string{
			"caller":     caller.String(),
			"strategy":   strategy.String(),
			"debtBefore": amountAttr(debtBefore),
			"debtAfter":  amountAttr(debtAfter),
			"totalIdle":  amountAttr(totalIdle),
			"totalDebt":  amountAttr(totalDebt),
		},
	}
}

func NewDebtPurchasedEvent(caller, strategy crypto.Address, amount, debtBefore, debtAfter *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeDebtPurchased,
		Attributes: map[string]string{
			"caller":     caller.String(),
			"strategy":   strategy.String(),
			"amount":     amountAttr(amount),
			"debtBefore": amountAttr(debtBefore),
			"debtAfter":  amountAttr(debtAfter),
		},
	}
}

func NewQueueUpdatedEvent(caller crypto.Address, queue []crypto.Address) *types.Event {
	encoded := make([]string, 0, len(queue))
	for _, addr := range queue {
		encoded = append(encoded, addr.String())
	}
	return &types.Event{
		Type: EventTypeQueueUpdated,
		Attributes: map[string]string{
			"caller": caller.String(),
			"queue":  strings.Join(encoded, ","),
			"length": strconv.Itoa(len(queue)),
		},
	}
}

func NewLimitUpdatedEvent(caller crypto.Address, name string, value *big.Int) *types.Event {
	attrs := map[string]string{
		"caller":  caller.String(),
		"setting": name,
	}
	if value == nil {
		attrs["value"] = "unlimited"
	} else {
		attrs["value"] = value.String()
	}
	return &types.Event{Type: EventTypeLimitUpdated, Attributes: attrs}
}

func NewShutdownEvent(caller crypto.Address) *types.Event {
	return &types.Event{
		Type: EventTypeShutdown,
		Attributes: map[string]string{
			"caller": caller.String(),
		},
	}
}
