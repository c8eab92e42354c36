package domain

import "time"

// StatusCount is one row of a group-by-status aggregate.
type StatusCount struct {
	Status Status  `json:"status"`
	Count  int64   `json:"count"`
	Amount float64 `json:"amount"`
}

// FraudTypeCount is one row of a group-by-fraud-type aggregate.
type FraudTypeCount struct {
	FraudType FraudType `json:"fraudType"`
	Count     int64     `json:"count"`
	Amount    float64   `json:"amount"`
}

// PriorityCount is one row of a group-by-priority aggregate.
type PriorityCount struct {
	Priority Priority `json:"priority"`
	Count    int64    `json:"count"`
}

// Aggregates are the raw group-by results read from the store.
type Aggregates struct {
	ByStatus    []StatusCount
	ByFraudType []FraudTypeCount
	ByPriority  []PriorityCount
}

// DashboardStats summarises the case load for dashboard cards.
type DashboardStats struct {
	TotalComplaints int64            `json:"totalComplaints"`
	OpenComplaints  int64            `json:"openComplaints"`
	AmountReported  float64          `json:"amountReported"`
	AmountFrozen    float64          `json:"amountFrozen"`
	AmountRefunded  float64          `json:"amountRefunded"`
	RecoveryRate    float64          `json:"recoveryRate"`
	AverageProgress float64          `json:"averageProgress"`
	ByStatus        []StatusCount    `json:"byStatus"`
	ByFraudType     []FraudTypeCount `json:"byFraudType"`
	ByPriority      []PriorityCount  `json:"byPriority"`
	GeneratedAt     time.Time        `json:"generatedAt"`
}
