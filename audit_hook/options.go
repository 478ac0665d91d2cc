package audithook

import "log/slog"

// Option configures an Extension.
type Option func(*Extension)

// actionCategories maps every audited action to its category.
// Rejections carry the category of the rejected operation and are
// listed under all of them.
var actionCategories = map[string][]string{
	ActionBookCreated:       {CategoryCatalog},
	ActionChapterAdded:      {CategoryCatalog},
	ActionChapterPurchased:  {CategoryPayment},
	ActionBookPurchased:     {CategoryPayment},
	ActionStakePlaced:       {CategoryStaking},
	ActionEarningsAccrued:   {CategoryStaking},
	ActionEarningsClaimed:   {CategoryStaking},
	ActionAccessTokenIssued: {CategoryAccess},
	ActionMintFailed:        {CategoryAccess},
	ActionOperationRejected: {CategoryCatalog, CategoryPayment, CategoryStaking, CategoryAccess},
}

// WithLogger sets the logger for the extension.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) {
		e.logger = logger
	}
}

// WithEnabledActions sets which actions to audit.
// If not called, all actions are audited.
func WithEnabledActions(actions ...string) Option {
	return func(e *Extension) {
		e.enabled = make(map[string]bool, len(actions))
		for _, action := range actions {
			e.enabled[action] = true
		}
	}
}

// WithCategories audits only the actions belonging to the given
// categories, e.g. CategoryPayment for a sales ledger.
func WithCategories(categories ...string) Option {
	return func(e *Extension) {
		e.enabled = make(map[string]bool)
		for action, cats := range actionCategories {
			for _, c := range cats {
				for _, want := range categories {
					if c == want {
						e.enabled[action] = true
					}
				}
			}
		}
	}
}

// WithDisabledActions sets which actions to skip.
func WithDisabledActions(actions ...string) Option {
	return func(e *Extension) {
		if e.enabled == nil {
			e.enabled = make(map[string]bool, len(actionCategories))
			for action := range actionCategories {
				e.enabled[action] = true
			}
		}
		for _, action := range actions {
			delete(e.enabled, action)
		}
	}
}
