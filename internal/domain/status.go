package domain

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a complaint.
type Status string

const (
	StatusPending             Status = "PENDING"
	StatusInProgress          Status = "IN_PROGRESS"
	StatusUnderInvestigation  Status = "UNDER_INVESTIGATION"
	StatusBankFreezeRequested Status = "BANK_FREEZE_REQUESTED"
	StatusFundsFrozen         Status = "FUNDS_FROZEN"
	StatusRefundProcessing    Status = "REFUND_PROCESSING"
	StatusRefunded            Status = "REFUNDED"
	StatusClosed              Status = "CLOSED"
	StatusRejected            Status = "REJECTED"
)

// statusProgress is ordered for progress-bar rendering only. It does not
// restrict which status may follow which.
var statusProgress = []struct {
	status   Status
	progress int
	color    string
}{
	{StatusPending, 10, "yellow"},
	{StatusInProgress, 25, "blue"},
	{StatusUnderInvestigation, 40, "indigo"},
	{StatusBankFreezeRequested, 55, "orange"},
	{StatusFundsFrozen, 70, "purple"},
	{StatusRefundProcessing, 85, "teal"},
	{StatusRefunded, 100, "green"},
	{StatusClosed, 100, "gray"},
	{StatusRejected, 0, "red"},
}

// AllStatuses returns the nine statuses in progress order.
func AllStatuses() []Status {
	out := make([]Status, len(statusProgress))
	for i, s := range statusProgress {
		out[i] = s.status
	}
	return out
}

// ParseStatus converts user input into a Status. Only the exact upper-case
// names are accepted.
func ParseStatus(s string) (Status, error) {
	if st := Status(s); st.Valid() {
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
}

// Valid reports whether s is one of the nine defined statuses.
func (s Status) Valid() bool {
	for _, p := range statusProgress {
		if p.status == s {
			return true
		}
	}
	return false
}

// ProgressPercent returns the fixed progress-bar value for the status.
func (s Status) ProgressPercent() int {
	for _, p := range statusProgress {
		if p.status == s {
			return p.progress
		}
	}
	return 0
}

// Color is the badge color used by dashboards.
func (s Status) Color() string {
	for _, p := range statusProgress {
		if p.status == s {
			return p.color
		}
	}
	return "gray"
}

// Label is the human-readable form, e.g. "UNDER INVESTIGATION".
func (s Status) Label() string {
	return Label(string(s))
}

// Terminal reports whether no further work is expected on the case.
func (s Status) Terminal() bool {
	return s == StatusRefunded || s == StatusClosed || s == StatusRejected
}

// Label formats an enum value for display by replacing underscores with spaces.
func Label(v string) string {
	return strings.ReplaceAll(v, "_", " ")
}

// StatusInfo is the display metadata of a status.
type StatusInfo struct {
	Status   Status `json:"status"`
	Label    string `json:"label"`
	Progress int    `json:"progress"`
	Color    string `json:"color"`
	Terminal bool   `json:"terminal"`
}

// StatusCatalog returns display metadata for every status.
func StatusCatalog() []StatusInfo {
	out := make([]StatusInfo, 0, len(statusProgress))
	for _, p := range statusProgress {
		out = append(out, StatusInfo{
			Status:   p.status,
			Label:    p.status.Label(),
			Progress: p.progress,
			Color:    p.color,
			Terminal: p.status.Terminal(),
		})
	}
	return out
}
