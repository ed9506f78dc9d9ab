package models

// All lists every persisted model. Used by SQLite auto-migration in dev and tests.
func All() []any {
	return []any{
		&Order{},
		&AgentCandidate{},
		&Agent{},
		&AllocationSettings{},
		&AgentEarning{},
		&AgentEarningSetting{},
		&SurgeZone{},
		&CommissionSetting{},
		&MerchantEarning{},
		&IncentivePlan{},
		&AgentIncentiveEarning{},
		&MilestoneReward{},
		&AgentMilestoneProgress{},
		&MilestoneDeliveryCredit{},
		&OutboxEvent{},
	}
}
