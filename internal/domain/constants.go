package domain

// Decision types
const (
	DecisionBuy  = "BUY"
	DecisionSell = "SELL"
	DecisionHold = "HOLD"
)

// Position types (счета агента)
const (
	PositionLongTerm  = "LONG_TERM"
	PositionShortTerm = "SHORT_TERM"
)

// Violation types
const (
	ViolationMissingSymbol         = "MISSING_SYMBOL"
	ViolationInvalidStock          = "INVALID_STOCK"
	ViolationStateNotFound         = "STATE_NOT_FOUND"
	ViolationQuotaExceeded         = "TRADE_QUOTA_EXCEEDED"
	ViolationMissingPositionType   = "MISSING_POSITION_TYPE"
	ViolationInvalidPositionType   = "INVALID_POSITION_TYPE"
	ViolationWalletNotFound        = "WALLET_NOT_FOUND"
	ViolationInsufficientLongTerm  = "INSUFFICIENT_LONG_TERM_CASH"
	ViolationInsufficientShortTerm = "INSUFFICIENT_SHORT_TERM_CASH"
	ViolationPositionNotFound      = "POSITION_NOT_FOUND"
	ViolationMissingFirstBuyDate   = "MISSING_FIRST_BUY_DATE"
	ViolationWashTrade             = "WASH_TRADE_VIOLATION"
)

// Detection methods / severity для журнала нарушений
const (
	DetectionPreExecution = "PRE_EXECUTION_CHECK"
	SeverityBlocked       = "blocked"
)

// Stock types
const (
	StockTypeStock = "stock"
	StockTypeETF   = "etf"
)
