package repository

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/opensource-finance/casewatch/internal/domain"
)

func newTestRepo(t *testing.T) *SQLRepository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "casewatch-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleComplaint(phone string, amount float64) *domain.Complaint {
	now := time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)
	return &domain.Complaint{
		Victim: domain.Victim{
			Name:  "Sunita Rao",
			Phone: phone,
			Email: "sunita@example.com",
		},
		FraudType:   domain.FraudUPI,
		Amount:      amount,
		FraudDate:   now.Add(-48 * time.Hour),
		Description: "Money debited after scanning a QR code",
		Bank: domain.BankDetails{
			BankName:       "State Bank",
			TransactionRef: "UTR123456",
		},
		Status:    domain.StatusPending,
		Priority:  domain.PriorityForAmount(amount),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func registered(id string) *domain.CaseUpdate {
	return &domain.CaseUpdate{
		ID:          id,
		Title:       "Complaint Registered",
		Description: "Complaint received",
		Status:      domain.StatusPending,
		ActorID:     domain.SystemActor,
		CreatedAt:   time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC),
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("CreateAllocatesSequentialIDs", func(t *testing.T) {
		first := sampleComplaint("9876543210", 25000)
		if err := repo.CreateComplaint(ctx, first, registered("cu-1")); err != nil {
			t.Fatalf("CreateComplaint failed: %v", err)
		}
		second := sampleComplaint("9876543211", 500)
		if err := repo.CreateComplaint(ctx, second, registered("cu-2")); err != nil {
			t.Fatalf("CreateComplaint failed: %v", err)
		}

		if first.ID != "CF2024000001" {
			t.Errorf("expected CF2024000001, got %s", first.ID)
		}
		if second.ID != "CF2024000002" {
			t.Errorf("expected CF2024000002, got %s", second.ID)
		}
	})

	t.Run("GetComplaint", func(t *testing.T) {
		c, err := repo.GetComplaint(ctx, "CF2024000001")
		if err != nil {
			t.Fatalf("GetComplaint failed: %v", err)
		}
		if c.Status != domain.StatusPending {
			t.Errorf("expected PENDING, got %s", c.Status)
		}
		if c.Priority != domain.PriorityMedium {
			t.Errorf("expected MEDIUM, got %s", c.Priority)
		}
		if c.Victim.Email != "sunita@example.com" {
			t.Errorf("unexpected email %q", c.Victim.Email)
		}
		if c.Bank.TransactionRef != "UTR123456" {
			t.Errorf("unexpected transaction ref %q", c.Bank.TransactionRef)
		}
		if c.FIRDate != nil {
			t.Error("expected no FIR date")
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := repo.GetComplaint(ctx, "CF-DOES-NOT-EXIST")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("InitialCaseUpdate", func(t *testing.T) {
		updates, err := repo.ListCaseUpdates(ctx, "CF2024000001")
		if err != nil {
			t.Fatalf("ListCaseUpdates failed: %v", err)
		}
		if len(updates) != 1 || updates[0].Title != "Complaint Registered" {
			t.Errorf("unexpected updates: %+v", updates)
		}
	})

	t.Run("RejectsNonPositiveAmount", func(t *testing.T) {
		err := repo.CreateComplaint(ctx, sampleComplaint("9876543212", 0), nil)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestApplyStatusChange(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	c := sampleComplaint("9876543210", 150000)
	if err := repo.CreateComplaint(ctx, c, registered("cu-0")); err != nil {
		t.Fatalf("CreateComplaint failed: %v", err)
	}

	t.Run("UpdatesStatusAndAppendsAudit", func(t *testing.T) {
		firDate := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
		at := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
		update := &domain.CaseUpdate{
			ID:          "cu-1",
			Title:       "FIR Filed",
			Description: "FIR 123 filed",
			ActorID:     "inspector.patnaik",
			CreatedAt:   time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		}
		updated, from, err := repo.ApplyStatusChange(ctx, domain.StatusChange{
			ComplaintID: c.ID,
			Status:      domain.StatusUnderInvestigation,
			FIR:         &domain.FIRDetails{Number: "FIR-123", Date: firDate},
			Update:      update,
			Clock:       func() time.Time { return at },
		})
		if err != nil {
			t.Fatalf("ApplyStatusChange failed: %v", err)
		}

		if from != domain.StatusPending {
			t.Errorf("expected prior status PENDING, got %s", from)
		}
		if !update.CreatedAt.Equal(at) || !updated.UpdatedAt.Equal(at) {
			t.Errorf("expected both stamps from the store clock, got %v and %v", update.CreatedAt, updated.UpdatedAt)
		}

		if updated.Status != domain.StatusUnderInvestigation {
			t.Errorf("expected UNDER_INVESTIGATION, got %s", updated.Status)
		}
		if !updated.UpdatedAt.After(c.UpdatedAt) {
			t.Errorf("expected updatedAt to advance, got %v", updated.UpdatedAt)
		}
		if updated.FIRNumber != "FIR-123" || updated.FIRDate == nil {
			t.Errorf("expected FIR details, got %q %v", updated.FIRNumber, updated.FIRDate)
		}

		updates, _ := repo.ListCaseUpdates(ctx, c.ID)
		if len(updates) != 2 {
			t.Fatalf("expected 2 updates, got %d", len(updates))
		}
		if updates[1].Status != domain.StatusUnderInvestigation || updates[1].ActorID != "inspector.patnaik" {
			t.Errorf("unexpected audit row: %+v", updates[1])
		}
	})

	t.Run("ReturnsStatusHeldInTransaction", func(t *testing.T) {
		_, from, err := repo.ApplyStatusChange(ctx, domain.StatusChange{
			ComplaintID: c.ID,
			Status:      domain.StatusBankFreezeRequested,
			Update:      &domain.CaseUpdate{ID: "cu-2", Title: "Freeze", Description: "Bank asked to freeze", ActorID: "officer1"},
		})
		if err != nil {
			t.Fatalf("ApplyStatusChange failed: %v", err)
		}
		if from != domain.StatusUnderInvestigation {
			t.Errorf("expected prior status UNDER_INVESTIGATION, got %s", from)
		}
	})

	t.Run("UnknownComplaintWritesNothing", func(t *testing.T) {
		_, _, err := repo.ApplyStatusChange(ctx, domain.StatusChange{
			ComplaintID: "CF-DOES-NOT-EXIST",
			Status:      domain.StatusClosed,
			Update:      &domain.CaseUpdate{ID: "cu-x", Title: "x", Description: "y", ActorID: "officer1"},
		})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		updates, _ := repo.ListCaseUpdates(ctx, "CF-DOES-NOT-EXIST")
		if len(updates) != 0 {
			t.Errorf("expected no audit rows, got %d", len(updates))
		}
	})

	t.Run("RejectsUnknownStatus", func(t *testing.T) {
		_, _, err := repo.ApplyStatusChange(ctx, domain.StatusChange{
			ComplaintID: c.ID,
			Status:      "NOT_A_STATUS",
			Update:      &domain.CaseUpdate{ID: "cu-y"},
		})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestListComplaintsAndAggregates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	amounts := []float64{500, 20000, 300000, 2000000}
	for i, amt := range amounts {
		c := sampleComplaint("90000000"+string(rune('0'+i))+"0", amt)
		c.CreatedAt = c.CreatedAt.Add(time.Duration(i) * time.Minute)
		if i == 3 {
			c.FraudType = domain.FraudInvestmentScam
			c.Description = "Crypto investment app vanished"
		}
		if err := repo.CreateComplaint(ctx, c, nil); err != nil {
			t.Fatalf("CreateComplaint failed: %v", err)
		}
	}

	_, _, err := repo.ApplyStatusChange(ctx, domain.StatusChange{
		ComplaintID: "CF2024000002",
		Status:      domain.StatusRefunded,
		Update:      &domain.CaseUpdate{ID: "cu-r", Title: "Refund sent", Description: "desc", ActorID: "officer1"},
	})
	if err != nil {
		t.Fatalf("ApplyStatusChange failed: %v", err)
	}

	t.Run("NewestFirst", func(t *testing.T) {
		list, err := repo.ListComplaints(ctx, domain.ComplaintFilter{})
		if err != nil {
			t.Fatalf("ListComplaints failed: %v", err)
		}
		if len(list) != 4 {
			t.Fatalf("expected 4 complaints, got %d", len(list))
		}
		if list[0].ID != "CF2024000004" {
			t.Errorf("expected newest first, got %s", list[0].ID)
		}
	})

	t.Run("FilterByStatus", func(t *testing.T) {
		list, _ := repo.ListComplaints(ctx, domain.ComplaintFilter{Status: domain.StatusRefunded})
		if len(list) != 1 || list[0].ID != "CF2024000002" {
			t.Errorf("unexpected result: %+v", list)
		}
	})

	t.Run("Search", func(t *testing.T) {
		list, _ := repo.ListComplaints(ctx, domain.ComplaintFilter{Search: "CRYPTO"})
		if len(list) != 1 || list[0].FraudType != domain.FraudInvestmentScam {
			t.Errorf("unexpected result: %+v", list)
		}
	})

	t.Run("Paging", func(t *testing.T) {
		list, _ := repo.ListComplaints(ctx, domain.ComplaintFilter{Limit: 2, Offset: 2})
		if len(list) != 2 || list[0].ID != "CF2024000002" {
			t.Errorf("unexpected page: %d items", len(list))
		}
	})

	t.Run("Aggregates", func(t *testing.T) {
		agg, err := repo.Aggregates(ctx)
		if err != nil {
			t.Fatalf("Aggregates failed: %v", err)
		}

		byStatus := map[domain.Status]domain.StatusCount{}
		for _, sc := range agg.ByStatus {
			byStatus[sc.Status] = sc
		}
		if byStatus[domain.StatusPending].Count != 3 {
			t.Errorf("expected 3 pending, got %d", byStatus[domain.StatusPending].Count)
		}
		if byStatus[domain.StatusRefunded].Amount != 20000 {
			t.Errorf("expected refunded amount 20000, got %.2f", byStatus[domain.StatusRefunded].Amount)
		}

		byPriority := map[domain.Priority]int64{}
		for _, pc := range agg.ByPriority {
			byPriority[pc.Priority] = pc.Count
		}
		if byPriority[domain.PriorityCritical] != 1 || byPriority[domain.PriorityLow] != 1 {
			t.Errorf("unexpected priority counts: %v", byPriority)
		}
		if len(agg.ByFraudType) != 2 {
			t.Errorf("expected 2 fraud types, got %d", len(agg.ByFraudType))
		}
	})

	t.Run("CountByPhone", func(t *testing.T) {
		n, err := repo.CountComplaintsByPhone(ctx, "9000000010", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("CountComplaintsByPhone failed: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1, got %d", n)
		}
	})
}

func TestNotificationsAndOfficers(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("NotificationLifecycle", func(t *testing.T) {
		n := &domain.Notification{
			ID:          "n-1",
			ComplaintID: "CF2024000001",
			Channel:     domain.ChannelSMS,
			Recipient:   "9876543210",
			Subject:     "Case update",
			Body:        "Complaint CF2024000001: FIR Filed",
			Status:      domain.DeliveryQueued,
		}
		if err := repo.SaveNotification(ctx, n); err != nil {
			t.Fatalf("SaveNotification failed: %v", err)
		}

		n.Status = domain.DeliverySent
		n.Attempts = 2
		n.ProviderRef = "SM123"
		if err := repo.UpdateNotificationStatus(ctx, n); err != nil {
			t.Fatalf("UpdateNotificationStatus failed: %v", err)
		}

		got, err := repo.GetNotification(ctx, "n-1")
		if err != nil {
			t.Fatalf("GetNotification failed: %v", err)
		}
		if got.Status != domain.DeliverySent || got.Attempts != 2 || got.ProviderRef != "SM123" {
			t.Errorf("unexpected notification: %+v", got)
		}

		list, _ := repo.ListNotifications(ctx, "CF2024000001")
		if len(list) != 1 {
			t.Errorf("expected 1 notification, got %d", len(list))
		}
	})

	t.Run("UpdateMissingNotification", func(t *testing.T) {
		err := repo.UpdateNotificationStatus(ctx, &domain.Notification{ID: "missing", Status: domain.DeliveryFailed})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("OfficerByUsername", func(t *testing.T) {
		o := &domain.Officer{
			ID:           "off-1",
			Username:     "Inspector.Patnaik",
			DisplayName:  "Insp. Patnaik",
			Role:         domain.RoleOfficer,
			PasswordHash: "hash",
			Active:       true,
			CreatedAt:    time.Now().UTC(),
		}
		if err := repo.CreateOfficer(ctx, o); err != nil {
			t.Fatalf("CreateOfficer failed: %v", err)
		}

		got, err := repo.GetOfficerByUsername(ctx, "inspector.patnaik")
		if err != nil {
			t.Fatalf("GetOfficerByUsername failed: %v", err)
		}
		if got.ID != "off-1" || !got.Active || got.Role != domain.RoleOfficer {
			t.Errorf("unexpected officer: %+v", got)
		}

		if err := repo.CreateOfficer(ctx, o); err == nil {
			t.Error("expected duplicate username to fail")
		}

		if _, err := repo.GetOfficerByUsername(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestApplyStatusChangeRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewWithDB(db, "postgres")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM complaints WHERE id = \$1 FOR UPDATE`).
		WithArgs("CF2024000001").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("PENDING"))
	mock.ExpectExec(`UPDATE complaints SET status = \$1, updated_at = \$2 WHERE id = \$3`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO case_updates`).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, _, err = repo.ApplyStatusChange(context.Background(), domain.StatusChange{
		ComplaintID: "CF2024000001",
		Status:      domain.StatusClosed,
		Update:      &domain.CaseUpdate{ID: "cu-1", Title: "Closed", Description: "done", ActorID: "officer1"},
	})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected insert error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRebind(t *testing.T) {
	pg := NewWithDB(nil, "postgres")
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Errorf("unexpected rebind: %q", got)
	}

	lite := NewWithDB(nil, "sqlite")
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite query should be unchanged, got %q", got)
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(domain.RepositoryConfig{PostgresUser: "cw", PostgresPassword: "p ss'"})
	for _, want := range []string{"host=localhost", "port=5432", "dbname=casewatch", "sslmode=disable", `password='p ss\''`} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}
}
