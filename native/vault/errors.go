package vault

import "errors"

var (
	errNilState             = errors.New("vault engine: state not configured")
	errNilVault             = errors.New("vault engine: vault not initialised")
	errReentrancy           = errors.New("vault engine: reentrant call")
	errUnauthorized         = errors.New("vault engine: caller not authorized")
	errInvalidAmount        = errors.New("vault engine: amount must be positive")
	errZeroAddress          = errors.New("vault engine: zero address")
	errZeroShares           = errors.New("vault engine: computed shares are zero")
	errExceedDepositLimit   = errors.New("vault engine: deposit limit exceeded")
	errInsufficientShares   = errors.New("vault engine: insufficient share balance")
	errInsufficientAllow    = errors.New("vault engine: insufficient allowance")
	errInsufficientAssets   = errors.New("vault engine: withdrawal cannot be fully sourced")
	errInsufficientIdle     = errors.New("vault engine: idle assets below minimum")
	errTooMuchLoss          = errors.New("vault engine: loss exceeds caller tolerance")
	errInvalidLossTolerance = errors.New("vault engine: loss tolerance above 100%")
	errDuplicateStrategy    = errors.New("vault engine: strategy already active")
	errInactiveStrategy     = errors.New("vault engine: strategy not active")
	errStrategyNotActive    = errors.New("vault engine: strategy not registered")
	errStrategyHasDebt      = errors.New("vault engine: strategy still has debt")
	errTooManyStrategies    = errors.New("vault engine: active strategy cap reached")
	errQueueTooLong         = errors.New("vault engine: default queue exceeds cap")
	errDebtLimitExceeded    = errors.New("vault engine: target debt above max debt")
	errDebtUnchanged        = errors.New("vault engine: target debt equals current debt")
	errStrategyUnavailable  = errors.New("vault engine: strategy collaborator unavailable")
	errStrategyValue        = errors.New("vault engine: strategy reported invalid value")
	errFeePolicy            = errors.New("vault engine: fee policy query failed")
	errFeeSplit             = errors.New("vault engine: protocol fee exceeds total fee")
	errFeeRecipient         = errors.New("vault engine: fee recipient not configured")
	errLimitModuleSet       = errors.New("vault engine: deposit limit module configured")
	errVaultShutdown        = errors.New("vault engine: vault is shut down")
)
