package domain

import (
	"errors"
	"testing"
)

func TestProgressPercent(t *testing.T) {
	want := map[Status]int{
		StatusPending:             10,
		StatusInProgress:          25,
		StatusUnderInvestigation:  40,
		StatusBankFreezeRequested: 55,
		StatusFundsFrozen:         70,
		StatusRefundProcessing:    85,
		StatusRefunded:            100,
		StatusClosed:              100,
		StatusRejected:            0,
	}

	if len(AllStatuses()) != len(want) {
		t.Fatalf("expected %d statuses, got %d", len(want), len(AllStatuses()))
	}

	for _, s := range AllStatuses() {
		if got := s.ProgressPercent(); got != want[s] {
			t.Errorf("%s: expected %d, got %d", s, want[s], got)
		}
	}
}

func TestParseStatus(t *testing.T) {
	t.Run("AcceptsEveryStatus", func(t *testing.T) {
		for _, s := range AllStatuses() {
			got, err := ParseStatus(string(s))
			if err != nil {
				t.Fatalf("ParseStatus(%s) failed: %v", s, err)
			}
			if got != s {
				t.Errorf("expected %s, got %s", s, got)
			}
		}
	})

	t.Run("RejectsUnknown", func(t *testing.T) {
		for _, in := range []string{"NOT_A_STATUS", "", "OPEN", "closed", "under investigation", " PENDING", "Refunded"} {
			_, err := ParseStatus(in)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("ParseStatus(%q): expected ErrValidation, got %v", in, err)
			}
		}
	})

	t.Run("UnknownHasNoProgress", func(t *testing.T) {
		if Status("NOT_A_STATUS").ProgressPercent() != 0 {
			t.Error("expected 0 progress for unknown status")
		}
		if Status("NOT_A_STATUS").Valid() {
			t.Error("expected unknown status to be invalid")
		}
	})
}

func TestStatusLabel(t *testing.T) {
	if got := StatusBankFreezeRequested.Label(); got != "BANK FREEZE REQUESTED" {
		t.Errorf("unexpected label %q", got)
	}
	if got := StatusPending.Label(); got != "PENDING" {
		t.Errorf("unexpected label %q", got)
	}
}

func TestStatusCatalog(t *testing.T) {
	catalog := StatusCatalog()
	if len(catalog) != 9 {
		t.Fatalf("expected 9 entries, got %d", len(catalog))
	}
	if catalog[0].Status != StatusPending || catalog[0].Progress != 10 {
		t.Errorf("unexpected first entry: %+v", catalog[0])
	}

	terminal := 0
	for _, info := range catalog {
		if info.Terminal {
			terminal++
		}
		if info.Color == "" {
			t.Errorf("%s has no color", info.Status)
		}
	}
	if terminal != 3 {
		t.Errorf("expected 3 terminal statuses, got %d", terminal)
	}
}

func TestPriorityForAmount(t *testing.T) {
	cases := []struct {
		amount float64
		want   Priority
	}{
		{500, PriorityLow},
		{9_999.99, PriorityLow},
		{10_000, PriorityMedium},
		{250_000, PriorityHigh},
		{1_000_000, PriorityCritical},
	}

	for _, tc := range cases {
		if got := PriorityForAmount(tc.amount); got != tc.want {
			t.Errorf("amount %.2f: expected %s, got %s", tc.amount, tc.want, got)
		}
	}
}

func TestParseFraudType(t *testing.T) {
	for _, ft := range AllFraudTypes() {
		if _, err := ParseFraudType(string(ft)); err != nil {
			t.Errorf("ParseFraudType(%s) failed: %v", ft, err)
		}
	}

	got, err := ParseFraudType("upi_fraud")
	if err != nil || got != FraudUPI {
		t.Errorf("expected UPI_FRAUD, got %s (%v)", got, err)
	}

	if _, err := ParseFraudType("CRYPTO"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestFormatComplaintID(t *testing.T) {
	if got := FormatComplaintID(2024, 42); got != "CF2024000042" {
		t.Errorf("unexpected id %q", got)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		if err := DefaultConfig().Validate(); err != nil {
			t.Errorf("default config invalid: %v", err)
		}
		if err := ProConfig().Validate(); err != nil {
			t.Errorf("pro config invalid: %v", err)
		}
	})

	t.Run("CELNeedsExpression", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Policy.Mode = "cel"
		if err := cfg.Validate(); !errors.Is(err, ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("UnknownChannel", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Notification.Channels = []string{"FAX"}
		if err := cfg.Validate(); !errors.Is(err, ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("CASEWATCH_SERVER_PORT", "9090")
	t.Setenv("CASEWATCH_POLICY_MODE", "graph")
	t.Setenv("CASEWATCH_NOTIFY_CHANNELS", "EMAIL,SMS")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Policy.Mode != "graph" {
		t.Errorf("expected graph policy, got %s", cfg.Policy.Mode)
	}
	if len(cfg.Notification.Channels) != 2 || cfg.Notification.Channels[0] != "EMAIL" {
		t.Errorf("unexpected channels %v", cfg.Notification.Channels)
	}
	if cfg.Repository.Driver != "sqlite" {
		t.Errorf("expected community sqlite default, got %s", cfg.Repository.Driver)
	}
}
