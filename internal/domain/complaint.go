package domain

import (
	"fmt"
	"strings"
	"time"
)

// FraudType classifies the reported fraud.
type FraudType string

const (
	FraudPhishing        FraudType = "PHISHING"
	FraudOnlineShopping  FraudType = "ONLINE_SHOPPING"
	FraudBanking         FraudType = "BANKING_FRAUD"
	FraudInvestmentScam  FraudType = "INVESTMENT_SCAM"
	FraudJobScam         FraudType = "JOB_SCAM"
	FraudMatrimonialScam FraudType = "MATRIMONIAL_SCAM"
	FraudLotteryScam     FraudType = "LOTTERY_SCAM"
	FraudUPI             FraudType = "UPI_FRAUD"
	FraudCard            FraudType = "CARD_FRAUD"
	FraudOther           FraudType = "OTHER"
)

var fraudTypes = []FraudType{
	FraudPhishing, FraudOnlineShopping, FraudBanking, FraudInvestmentScam, FraudJobScam,
	FraudMatrimonialScam, FraudLotteryScam, FraudUPI, FraudCard, FraudOther,
}

// AllFraudTypes returns every fraud type.
func AllFraudTypes() []FraudType {
	return append([]FraudType(nil), fraudTypes...)
}

// ParseFraudType validates a fraud type.
func ParseFraudType(s string) (FraudType, error) {
	ft := FraudType(strings.ToUpper(strings.TrimSpace(s)))
	for _, v := range fraudTypes {
		if v == ft {
			return ft, nil
		}
	}
	return "", fmt.Errorf("%w: unknown fraud type %q", ErrValidation, s)
}

// Label is the display form of the fraud type.
func (f FraudType) Label() string { return Label(string(f)) }

// Priority is the triage level of a complaint.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

var priorities = []struct {
	p     Priority
	color string
}{
	{PriorityLow, "gray"},
	{PriorityMedium, "yellow"},
	{PriorityHigh, "orange"},
	{PriorityCritical, "red"},
}

// AllPriorities returns priorities from lowest to highest.
func AllPriorities() []Priority {
	out := make([]Priority, len(priorities))
	for i, p := range priorities {
		out[i] = p.p
	}
	return out
}

// ParsePriority validates a priority.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToUpper(strings.TrimSpace(s)))
	for _, v := range priorities {
		if v.p == p {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: unknown priority %q", ErrValidation, s)
}

// Label is the display form of the priority.
func (p Priority) Label() string { return Label(string(p)) }

// Color is the badge color used by dashboards.
func (p Priority) Color() string {
	for _, v := range priorities {
		if v.p == p {
			return v.color
		}
	}
	return "gray"
}

// Amount thresholds (in rupees) used when the filer does not set a priority.
const (
	CriticalAmount = 1_000_000
	HighAmount     = 100_000
	MediumAmount   = 10_000
)

// PriorityForAmount derives a priority from the reported loss.
func PriorityForAmount(amount float64) Priority {
	switch {
	case amount >= CriticalAmount:
		return PriorityCritical
	case amount >= HighAmount:
		return PriorityHigh
	case amount >= MediumAmount:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Victim holds the contact details of the complainant.
type Victim struct {
	Name        string `json:"name" validate:"required,max=200"`
	Phone       string `json:"phone" validate:"required,phone"`
	Email       string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	Address     string `json:"address,omitempty" validate:"max=500"`
	DeviceToken string `json:"deviceToken,omitempty" validate:"max=4096"`
}

// BankDetails references the account and transaction the money left through.
type BankDetails struct {
	BankName       string `json:"bankName,omitempty" validate:"max=200"`
	AccountNumber  string `json:"accountNumber,omitempty" validate:"omitempty,alphanum,max=34"`
	TransactionRef string `json:"transactionRef,omitempty" validate:"max=100"`
}

// Complaint is a victim-filed fraud report.
type Complaint struct {
	ID          string      `json:"id"`
	Victim      Victim      `json:"victim"`
	FraudType   FraudType   `json:"fraudType"`
	Amount      float64     `json:"amount"`
	FraudDate   time.Time   `json:"fraudDate"`
	Description string      `json:"description"`
	Bank        BankDetails `json:"bank"`
	Status      Status      `json:"status"`
	Priority    Priority    `json:"priority"`
	FIRNumber   string      `json:"firNumber,omitempty"`
	FIRDate     *time.Time  `json:"firDate,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Progress returns the progress-bar percentage of the current status.
func (c *Complaint) Progress() int { return c.Status.ProgressPercent() }

// ComplaintIDPrefix starts every complaint identifier.
const ComplaintIDPrefix = "CF"

// FormatComplaintID builds the identifier CF<year><6 digits>.
func FormatComplaintID(year int, seq int64) string {
	return fmt.Sprintf("%s%04d%06d", ComplaintIDPrefix, year, seq)
}

// ComplaintRequest is the intake payload submitted by a victim.
type ComplaintRequest struct {
	Victim      Victim      `json:"victim"`
	FraudType   string      `json:"fraudType" validate:"required,fraud_type"`
	Amount      float64     `json:"amount" validate:"gt=0"`
	FraudDate   time.Time   `json:"fraudDate" validate:"required,not_future"`
	Description string      `json:"description" validate:"required,min=10,max=5000"`
	Bank        BankDetails `json:"bank"`
	Priority    string      `json:"priority,omitempty" validate:"omitempty,priority"`
}

// ComplaintFilter narrows complaint listings.
type ComplaintFilter struct {
	Status    Status
	FraudType FraudType
	Priority  Priority
	Phone     string
	Search    string
	Limit     int
	Offset    int
}
