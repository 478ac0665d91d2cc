package audithook

// Action constants for audit events.
const (
	// Registry actions
	ActionBookCreated  = "book.created"
	ActionChapterAdded = "chapter.added"

	// Purchase actions
	ActionChapterPurchased = "chapter.purchased"
	ActionBookPurchased    = "book.purchased"

	// Stake pool actions
	ActionStakePlaced     = "stake.placed"
	ActionEarningsAccrued = "earnings.accrued"
	ActionEarningsClaimed = "earnings.claimed"

	// Access gate actions
	ActionAccessTokenIssued = "access_token.issued"
	ActionMintFailed        = "access_token.mint_failed"

	// Rejections
	ActionOperationRejected = "operation.rejected"
)

// Resource constants for audit events.
const (
	ResourceBook        = "book"
	ResourceChapter     = "chapter"
	ResourceReceipt     = "receipt"
	ResourceStake       = "stake"
	ResourceAccessToken = "access_token"
	ResourceOperation   = "operation"
)

// Category constants for audit events.
const (
	CategoryCatalog = "catalog"
	CategoryPayment = "payment"
	CategoryStaking = "staking"
	CategoryAccess  = "access"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
