package policy

import (
	"context"

	"github.com/opensource-finance/casewatch/internal/domain"
)

// Graph allows only forward moves along the recovery workflow. REJECTED and
// CLOSED are reachable from every status, terminal ones included. Re-applying
// the current status of an open case is allowed so officers can post
// progress notes.
type Graph struct {
	next map[domain.Status][]domain.Status
}

// NewGraph returns the default workflow graph.
func NewGraph() *Graph {
	return &Graph{next: map[domain.Status][]domain.Status{
		domain.StatusPending: {
			domain.StatusInProgress,
			domain.StatusUnderInvestigation,
		},
		domain.StatusInProgress: {
			domain.StatusUnderInvestigation,
			domain.StatusBankFreezeRequested,
		},
		domain.StatusUnderInvestigation: {
			domain.StatusBankFreezeRequested,
		},
		domain.StatusBankFreezeRequested: {
			domain.StatusFundsFrozen,
			domain.StatusUnderInvestigation,
		},
		domain.StatusFundsFrozen: {
			domain.StatusRefundProcessing,
		},
		domain.StatusRefundProcessing: {
			domain.StatusRefunded,
		},
	}}
}

// Allow checks c against the workflow graph.
func (g *Graph) Allow(ctx context.Context, c Check) error {
	if c.To == domain.StatusClosed || c.To == domain.StatusRejected {
		return nil
	}
	if c.From.Terminal() {
		return refuse(c, "case is "+c.From.Label())
	}
	if c.To == c.From {
		return nil
	}

	for _, s := range g.next[c.From] {
		if s == c.To {
			return nil
		}
	}
	return refuse(c, "not a forward step")
}

// Name returns "graph".
func (g *Graph) Name() string { return ModeGraph }

// Next lists the statuses reachable from s in one step.
func (g *Graph) Next(s domain.Status) []domain.Status {
	var out []domain.Status
	for _, to := range domain.AllStatuses() {
		if g.Allow(context.Background(), Check{From: s, To: to}) == nil {
			out = append(out, to)
		}
	}
	return out
}
