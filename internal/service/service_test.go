package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"nurbuild/backend/internal/cache"
	"nurbuild/backend/internal/credit"
	"nurbuild/backend/internal/domain"
	"nurbuild/backend/internal/report"
	"nurbuild/backend/internal/store"
	"nurbuild/backend/internal/store/memory"
)

var testNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) advanceDays(days int) { c.now = c.now.AddDate(0, 0, days) }

func newTestService() (*Service, *memory.Store, *testClock) {
	repo := memory.NewSeeded()
	clock := &testClock{now: testNow}
	svc := New(repo, report.NewEngine(cache.NoopSummaryCache{}, time.Minute), Options{
		Credit: credit.NewValidator(credit.ZeroLimitUnlimited),
		Now:    clock.Now,
	})
	return svc, repo, clock
}

func managerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "manager", Role: domain.RoleManager})
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func dateIn(days int) string {
	return testNow.AddDate(0, 0, days).Format(domain.DateLayout)
}

func assertAmount(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Fatalf("%s: expected %s, got %s", label, want, got.StringFixed(2))
	}
}

func assertValidation(t *testing.T, err error, field string) {
	t.Helper()
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error on %s, got %v", field, err)
	}
	if verr.Field != field {
		t.Fatalf("expected validation error on %s, got field %s (%s)", field, verr.Field, verr.Message)
	}
}

func outstanding(t *testing.T, svc *Service, customerID string) decimal.Decimal {
	t.Helper()
	customer, err := svc.GetCustomer(context.Background(), customerID)
	if err != nil {
		t.Fatalf("get customer %s: %v", customerID, err)
	}
	return customer.OutstandingBalance
}

func createDebt(t *testing.T, svc *Service, customerID string, total string, dueInDays int) domain.Debt {
	t.Helper()
	debt, err := svc.CreateDebt(managerCtx(), domain.DebtCreateRequest{
		CustomerID:  customerID,
		TotalAmount: dec(total),
		DueDate:     dateIn(dueInDays),
	})
	if err != nil {
		t.Fatalf("create debt: %v", err)
	}
	return debt
}

func createCreditSale(t *testing.T, svc *Service, customerID string, bags int64) (domain.Sale, domain.Debt) {
	t.Helper()
	sale, debt, err := svc.CreateCreditSale(managerCtx(), domain.CreditSaleRequest{
		CustomerID: customerID,
		Items: []domain.SaleItemInput{
			{MaterialID: "mat-cement-50kg", Quantity: decimal.NewFromInt(bags)},
		},
		DueDate: dateIn(30),
	})
	if err != nil {
		t.Fatalf("create credit sale: %v", err)
	}
	return sale, debt
}

func TestCreditLimitAllowsExactBoundary(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := managerCtx()

	customer, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{
		Name:         "Berbera Contractors",
		CustomerType: domain.CustomerCompany,
		CreditLimit:  dec("1000"),
		AllowDebt:    true,
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	createDebt(t, svc, customer.ID, "800", 30)

	_, err = svc.CreateDebt(ctx, domain.DebtCreateRequest{
		CustomerID:  customer.ID,
		TotalAmount: dec("300"),
		DueDate:     dateIn(30),
	})
	assertValidation(t, err, "credit_limit")
	assertAmount(t, "outstanding after rejection", outstanding(t, svc, customer.ID), "800")

	createDebt(t, svc, customer.ID, "200", 30)
	assertAmount(t, "outstanding at limit", outstanding(t, svc, customer.ID), "1000")
}

func TestZeroLimitPolicyDenyRejectsCredit(t *testing.T) {
	repo := memory.NewSeeded()
	svc := New(repo, nil, Options{
		Credit: credit.NewValidator(credit.ZeroLimitDeny),
		Now:    func() time.Time { return testNow },
	})

	_, err := svc.CreateDebt(managerCtx(), domain.DebtCreateRequest{
		CustomerID:  "cus-walk-in",
		TotalAmount: dec("10"),
		DueDate:     dateIn(7),
	})
	assertValidation(t, err, "credit_limit")

	unlimited, _, _ := newTestService()
	createDebt(t, unlimited, "cus-walk-in", "10", 7)
}

func TestCreditSaleCreatesLinkedDebt(t *testing.T) {
	svc, _, _ := newTestService()

	sale, debt := createCreditSale(t, svc, "cus-horn-builders", 10)

	assertAmount(t, "sale total", sale.TotalAmount, "85.00")
	if sale.PaymentStatus != domain.SalePending || sale.PaymentMethod != domain.SaleMethodCredit {
		t.Fatalf("unexpected sale state: method=%s status=%s", sale.PaymentMethod, sale.PaymentStatus)
	}
	if debt.SaleID != sale.ID || debt.Status != domain.DebtPending {
		t.Fatalf("debt not linked to sale: %+v", debt)
	}
	assertAmount(t, "debt total", debt.TotalAmount, "85.00")
	assertAmount(t, "outstanding", outstanding(t, svc, "cus-horn-builders"), "85.00")

	material, err := svc.GetMaterial(context.Background(), "mat-cement-50kg")
	if err != nil {
		t.Fatalf("get material: %v", err)
	}
	assertAmount(t, "stock", material.QuantityInStock, "390")
}

func TestCreditSaleOverLimitRollsBackStock(t *testing.T) {
	svc, _, _ := newTestService()

	_, _, err := svc.CreateCreditSale(managerCtx(), domain.CreditSaleRequest{
		CustomerID: "cus-horn-builders",
		Items: []domain.SaleItemInput{
			{MaterialID: "mat-cement-50kg", Quantity: decimal.NewFromInt(400)},
			{MaterialID: "mat-paint-20l", Quantity: decimal.NewFromInt(60)},
		},
		DueDate: dateIn(30),
	})
	assertValidation(t, err, "credit_limit")

	material, err := svc.GetMaterial(context.Background(), "mat-cement-50kg")
	if err != nil {
		t.Fatalf("get material: %v", err)
	}
	assertAmount(t, "stock", material.QuantityInStock, "400")

	sales, err := svc.ListSales(context.Background(), domain.SaleFilter{CustomerID: "cus-horn-builders"})
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("expected no sales after rejection, got %d", len(sales))
	}
	assertAmount(t, "outstanding", outstanding(t, svc, "cus-horn-builders"), "0")
}

func TestCreditSaleRequiresFutureDueDate(t *testing.T) {
	svc, _, _ := newTestService()

	_, _, err := svc.CreateCreditSale(managerCtx(), domain.CreditSaleRequest{
		CustomerID: "cus-horn-builders",
		Items:      []domain.SaleItemInput{{MaterialID: "mat-sand-m3", Quantity: decimal.NewFromInt(1)}},
		DueDate:    dateIn(0),
	})
	assertValidation(t, err, "due_date")
}

func TestCreditSaleInsufficientStock(t *testing.T) {
	svc, _, _ := newTestService()

	_, _, err := svc.CreateCreditSale(managerCtx(), domain.CreditSaleRequest{
		CustomerID: "cus-city-works",
		Items:      []domain.SaleItemInput{{MaterialID: "mat-paint-20l", Quantity: decimal.NewFromInt(61)}},
		DueDate:    dateIn(30),
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}

func TestPaymentMovesDebtThroughStatuses(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := managerCtx()
	debt := createDebt(t, svc, "cus-horn-builders", "500", 20)

	payment, err := svc.CreatePayment(ctx, domain.PaymentCreateRequest{
		DebtID:        debt.ID,
		Amount:        dec("200"),
		PaymentMethod: domain.PaymentZaad,
	})
	if err != nil {
		t.Fatalf("first payment: %v", err)
	}
	if payment.ReceivedBy != "manager" || payment.Status != domain.PaymentStatusCompleted {
		t.Fatalf("unexpected payment: %+v", payment)
	}

	got, err := svc.GetDebt(context.Background(), debt.ID)
	if err != nil {
		t.Fatalf("get debt: %v", err)
	}
	if got.Status != domain.DebtPartiallyPaid {
		t.Fatalf("expected partially_paid, got %s", got.Status)
	}
	assertAmount(t, "outstanding", outstanding(t, svc, "cus-horn-builders"), "300")

	_, err = svc.CreatePayment(ctx, domain.PaymentCreateRequest{DebtID: debt.ID, Amount: dec("300.01")})
	assertValidation(t, err, "amount")

	if _, err := svc.CreatePayment(ctx, domain.PaymentCreateRequest{DebtID: debt.ID, Amount: dec("300")}); err != nil {
		t.Fatalf("exact remaining payment: %v", err)
	}
	got, _ = svc.GetDebt(context.Background(), debt.ID)
	if got.Status != domain.DebtPaid {
		t.Fatalf("expected paid, got %s", got.Status)
	}
	assertAmount(t, "outstanding", outstanding(t, svc, "cus-horn-builders"), "0")

	_, err = svc.CreatePayment(ctx, domain.PaymentCreateRequest{DebtID: debt.ID, Amount: dec("1")})
	assertValidation(t, err, "debt_id")
}

func TestPaymentRejectsMismatchedCustomer(t *testing.T) {
	svc, _, _ := newTestService()
	debt := createDebt(t, svc, "cus-horn-builders", "100", 20)

	_, err := svc.CreatePayment(managerCtx(), domain.PaymentCreateRequest{
		DebtID:     debt.ID,
		CustomerID: "cus-city-works",
		Amount:     dec("10"),
	})
	assertValidation(t, err, "customer_id")
}

func TestPendingPaymentAppliesOnCompletion(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := managerCtx()
	debt := createDebt(t, svc, "cus-city-works", "400", 10)

	payment, err := svc.CreatePayment(ctx, domain.PaymentCreateRequest{
		DebtID:        debt.ID,
		Amount:        dec("150"),
		PaymentMethod: domain.PaymentCheck,
		Status:        domain.PaymentStatusPending,
	})
	if err != nil {
		t.Fatalf("pending payment: %v", err)
	}
	assertAmount(t, "outstanding before clearing", outstanding(t, svc, "cus-city-works"), "400")

	if _, err := svc.UpdatePaymentStatus(ctx, payment.ID, domain.PaymentStatusCompleted); err != nil {
		t.Fatalf("complete payment: %v", err)
	}
	assertAmount(t, "outstanding after clearing", outstanding(t, svc, "cus-city-works"), "250")
}

func TestRefundRestoresOverdueStatus(t *testing.T) {
	svc, _, clock := newTestService()
	ctx := managerCtx()
	debt := createDebt(t, svc, "cus-horn-builders", "500", 5)

	payment, err := svc.CreatePayment(ctx, domain.PaymentCreateRequest{DebtID: debt.ID, Amount: dec("200")})
	if err != nil {
		t.Fatalf("payment: %v", err)
	}

	clock.advanceDays(10)
	if _, err := svc.UpdatePaymentStatus(ctx, payment.ID, domain.PaymentStatusRefunded); err != nil {
		t.Fatalf("refund: %v", err)
	}

	got, err := svc.GetDebt(context.Background(), debt.ID)
	if err != nil {
		t.Fatalf("get debt: %v", err)
	}
	if got.Status != domain.DebtOverdue {
		t.Fatalf("expected overdue after refund, got %s", got.Status)
	}
	assertAmount(t, "paid", got.PaidAmount, "0")
	assertAmount(t, "outstanding", outstanding(t, svc, "cus-horn-builders"), "500")
}

func TestDeleteCompletedPaymentReversesIt(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := managerCtx()
	debt := createDebt(t, svc, "cus-horn-builders", "300", 15)

	payment, err := svc.CreatePayment(ctx, domain.PaymentCreateRequest{DebtID: debt.ID, Amount: dec("100")})
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if err := svc.DeletePayment(ctx, payment.ID); err != nil {
		t.Fatalf("delete payment: %v", err)
	}

	got, _ := svc.GetDebt(context.Background(), debt.ID)
	if got.Status != domain.DebtPending {
		t.Fatalf("expected pending, got %s", got.Status)
	}
	assertAmount(t, "outstanding", outstanding(t, svc, "cus-horn-builders"), "300")
	if _, err := svc.GetPayment(context.Background(), payment.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected payment to be gone, got %v", err)
	}
}

func TestMarkPaidSettlesDebtAndSale(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := managerCtx()
	sale, debt := createCreditSale(t, svc, "cus-city-works", 20)

	payment, err := svc.MarkPaid(ctx, debt.ID, domain.PaymentBankTransfer)
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	assertAmount(t, "payment amount", payment.Amount, "170.00")

	gotDebt, _ := svc.GetDebt(context.Background(), debt.ID)
	if gotDebt.Status != domain.DebtPaid {
		t.Fatalf("expected paid debt, got %s", gotDebt.Status)
	}
	gotSale, _ := svc.GetSale(context.Background(), sale.ID)
	if gotSale.PaymentStatus != domain.SalePaid {
		t.Fatalf("expected paid sale, got %s", gotSale.PaymentStatus)
	}
	assertAmount(t, "outstanding", outstanding(t, svc, "cus-city-works"), "0")

	_, err = svc.MarkPaid(ctx, debt.ID, "")
	assertValidation(t, err, "debt_id")
}

func TestDeleteDebtReleasesOutstanding(t *testing.T) {
	svc, _, _ := newTestService()
	debt := createDebt(t, svc, "cus-horn-builders", "750", 30)

	if err := svc.DeleteDebt(managerCtx(), debt.ID); err != nil {
		t.Fatalf("delete debt: %v", err)
	}
	if _, err := svc.GetDebt(context.Background(), debt.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted debt to be hidden, got %v", err)
	}
	assertAmount(t, "outstanding", outstanding(t, svc, "cus-horn-builders"), "0")
}

func TestCancelledDebtIsFrozen(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := managerCtx()
	debt := createDebt(t, svc, "cus-horn-builders", "120", 30)

	cancelled := domain.DebtCancelled
	got, err := svc.UpdateDebt(ctx, debt.ID, domain.DebtUpdateRequest{Status: &cancelled})
	if err != nil {
		t.Fatalf("cancel debt: %v", err)
	}
	if got.Status != domain.DebtCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}

	total := dec("200")
	_, err = svc.UpdateDebt(ctx, debt.ID, domain.DebtUpdateRequest{TotalAmount: &total})
	assertValidation(t, err, "status")

	_, err = svc.CreatePayment(ctx, domain.PaymentCreateRequest{DebtID: debt.ID, Amount: dec("10")})
	assertValidation(t, err, "debt_id")
}

func TestUpdateCreditSalePropagatesToDebt(t *testing.T) {
	svc, _, _ := newTestService()
	sale, debt := createCreditSale(t, svc, "cus-horn-builders", 10)

	tax := dec("15")
	updated, err := svc.UpdateSale(managerCtx(), sale.ID, domain.SaleUpdateRequest{Tax: &tax})
	if err != nil {
		t.Fatalf("update sale: %v", err)
	}
	assertAmount(t, "sale total", updated.TotalAmount, "100.00")

	gotDebt, _ := svc.GetDebt(context.Background(), debt.ID)
	assertAmount(t, "debt total", gotDebt.TotalAmount, "100.00")
	assertAmount(t, "outstanding", outstanding(t, svc, "cus-horn-builders"), "100.00")
}

func TestUpdateCreditSaleBelowPaidRejected(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := managerCtx()
	sale, debt := createCreditSale(t, svc, "cus-horn-builders", 10)

	if _, err := svc.CreatePayment(ctx, domain.PaymentCreateRequest{DebtID: debt.ID, Amount: dec("80")}); err != nil {
		t.Fatalf("payment: %v", err)
	}

	discount := dec("10")
	_, err := svc.UpdateSale(ctx, sale.ID, domain.SaleUpdateRequest{Discount: &discount})
	assertValidation(t, err, "total_amount")
	assertAmount(t, "outstanding", outstanding(t, svc, "cus-horn-builders"), "5.00")
}

func TestDebtPerSaleIsUnique(t *testing.T) {
	svc, _, _ := newTestService()
	sale, _ := createCreditSale(t, svc, "cus-horn-builders", 2)

	_, err := svc.CreateDebt(managerCtx(), domain.DebtCreateRequest{
		CustomerID:  "cus-horn-builders",
		SaleID:      sale.ID,
		TotalAmount: dec("17"),
		DueDate:     dateIn(10),
	})
	assertValidation(t, err, "sale_id")
	assertAmount(t, "outstanding", outstanding(t, svc, "cus-horn-builders"), "17.00")
}

func TestOverdueDebtsRefreshesStatus(t *testing.T) {
	svc, _, clock := newTestService()
	debt := createDebt(t, svc, "cus-city-works", "500", 1)
	rate := dec("36.5")
	if _, err := svc.UpdateDebt(managerCtx(), debt.ID, domain.DebtUpdateRequest{InterestRate: &rate}); err != nil {
		t.Fatalf("set rate: %v", err)
	}

	clock.advanceDays(11)
	overdue, err := svc.OverdueDebts(context.Background())
	if err != nil {
		t.Fatalf("overdue: %v", err)
	}
	if len(overdue) != 1 || overdue[0].Status != domain.DebtOverdue {
		t.Fatalf("expected one overdue debt, got %+v", overdue)
	}

	stored, _ := svc.GetDebt(context.Background(), debt.ID)
	if stored.Status != domain.DebtOverdue {
		t.Fatalf("expected persisted overdue status, got %s", stored.Status)
	}
	view, err := svc.DebtView(context.Background(), stored)
	if err != nil {
		t.Fatalf("debt view: %v", err)
	}
	if view.DaysOverdue != 10 || view.InterestAmount != "5.00" {
		t.Fatalf("unexpected view: days=%d interest=%s", view.DaysOverdue, view.InterestAmount)
	}
	if view.CustomerName != "City Public Works" {
		t.Fatalf("unexpected customer name %q", view.CustomerName)
	}
}

func TestReconcileCorrectsDrift(t *testing.T) {
	svc, repo, _ := newTestService()
	createDebt(t, svc, "cus-horn-builders", "640", 30)

	err := repo.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		customer, err := tx.LockCustomer(ctx, "cus-horn-builders")
		if err != nil {
			return err
		}
		customer.OutstandingBalance = dec("999")
		return tx.UpdateCustomer(ctx, *customer)
	})
	if err != nil {
		t.Fatalf("inject drift: %v", err)
	}

	if _, err := svc.ReconcileCustomer(managerCtx(), "cus-horn-builders"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected manager to be forbidden, got %v", err)
	}

	result, err := svc.ReconcileCustomer(adminCtx(), "cus-horn-builders")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !result.Adjusted || result.Computed != "640.00" || result.Drift != "-359.00" {
		t.Fatalf("unexpected result: %+v", result)
	}
	assertAmount(t, "outstanding", outstanding(t, svc, "cus-horn-builders"), "640")

	results, err := svc.ReconcileAll(adminCtx())
	if err != nil {
		t.Fatalf("reconcile all: %v", err)
	}
	for _, r := range results {
		if r.Adjusted {
			t.Fatalf("expected no further drift, got %+v", r)
		}
	}
}

func TestReminderLifecycle(t *testing.T) {
	svc, _, clock := newTestService()
	ctx := managerCtx()
	debt := createDebt(t, svc, "cus-horn-builders", "90", 3)

	reminder, err := svc.CreateReminder(ctx, domain.ReminderCreateRequest{
		DebtID:        debt.ID,
		ReminderType:  domain.ReminderSMS,
		ScheduledDate: clock.now.Add(2 * time.Hour),
		Message:       "Your balance of 90.00 is due soon",
	})
	if err != nil {
		t.Fatalf("create reminder: %v", err)
	}
	if reminder.CustomerID != "cus-horn-builders" || reminder.Status != domain.ReminderScheduled {
		t.Fatalf("unexpected reminder: %+v", reminder)
	}

	pending, _ := svc.PendingReminders(context.Background())
	if len(pending) != 0 {
		t.Fatalf("expected no due reminders yet, got %d", len(pending))
	}
	clock.now = clock.now.Add(3 * time.Hour)
	pending, _ = svc.PendingReminders(context.Background())
	if len(pending) != 1 {
		t.Fatalf("expected one due reminder, got %d", len(pending))
	}

	sent, err := svc.MarkReminderSent(ctx, reminder.ID)
	if err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if sent.SentDate == nil || sent.Status != domain.ReminderSent {
		t.Fatalf("unexpected sent reminder: %+v", sent)
	}
	_, err = svc.MarkReminderSent(ctx, reminder.ID)
	assertValidation(t, err, "status")
	_, err = svc.CancelReminder(ctx, reminder.ID)
	assertValidation(t, err, "status")

	_, err = svc.CreateReminder(ctx, domain.ReminderCreateRequest{
		DebtID:        debt.ID,
		ReminderType:  "pigeon",
		ScheduledDate: clock.now,
		Message:       "hello",
	})
	assertValidation(t, err, "reminder_type")
}

func TestDailyPaymentSummaryCountsCompletedOnly(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := managerCtx()
	debt := createDebt(t, svc, "cus-city-works", "1000", 30)

	for _, req := range []domain.PaymentCreateRequest{
		{DebtID: debt.ID, Amount: dec("100"), PaymentMethod: domain.PaymentCash},
		{DebtID: debt.ID, Amount: dec("50"), PaymentMethod: domain.PaymentZaad},
		{DebtID: debt.ID, Amount: dec("25"), PaymentMethod: domain.PaymentZaad, Status: domain.PaymentStatusPending},
		{DebtID: debt.ID, Amount: dec("40"), PaymentMethod: domain.PaymentCash, PaymentDate: dateIn(-1)},
	} {
		if _, err := svc.CreatePayment(ctx, req); err != nil {
			t.Fatalf("payment %+v: %v", req, err)
		}
	}

	summary, err := svc.DailyPaymentSummary(context.Background(), "")
	if err != nil {
		t.Fatalf("daily summary: %v", err)
	}
	if summary.Date != "2025-03-10" || summary.TotalPayments != 2 || summary.TotalAmount != "150.00" {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.PaymentMethods[domain.PaymentZaad].Amount != "50.00" {
		t.Fatalf("unexpected zaad total: %+v", summary.PaymentMethods)
	}

	_, err = svc.DailyPaymentSummary(context.Background(), "10/03/2025")
	assertValidation(t, err, "date")
}

func TestDebtSummaryReflectsPayments(t *testing.T) {
	svc, _, _ := newTestService()
	debt := createDebt(t, svc, "cus-city-works", "400", 30)
	createDebt(t, svc, "cus-horn-builders", "100", 30)

	if _, err := svc.CreatePayment(managerCtx(), domain.PaymentCreateRequest{DebtID: debt.ID, Amount: dec("100")}); err != nil {
		t.Fatalf("payment: %v", err)
	}

	summary, err := svc.DebtSummary(context.Background())
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.TotalDebts != 2 || summary.RemainingAmount != "400.00" || summary.CollectionRate != "20.00" {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestValidateCreditIsAdvisory(t *testing.T) {
	svc, _, _ := newTestService()
	createDebt(t, svc, "cus-horn-builders", "4500", 30)

	check, err := svc.ValidateCredit(context.Background(), domain.CreditValidationRequest{
		CustomerID:   "cus-horn-builders",
		CreditAmount: dec("600"),
	})
	if err != nil {
		t.Fatalf("validate credit: %v", err)
	}
	if check.CanTakeCredit || check.AvailableCredit != "500.00" {
		t.Fatalf("unexpected check: %+v", check)
	}
	assertAmount(t, "outstanding", outstanding(t, svc, "cus-horn-builders"), "4500")

	_, err = svc.ValidateCredit(context.Background(), domain.CreditValidationRequest{CustomerID: "cus-horn-builders"})
	assertValidation(t, err, "credit_amount")
}

func TestCustomerStatementIncludesMaterials(t *testing.T) {
	svc, _, _ := newTestService()
	_, debt := createCreditSale(t, svc, "cus-horn-builders", 4)
	if _, err := svc.CreatePayment(managerCtx(), domain.PaymentCreateRequest{DebtID: debt.ID, Amount: dec("10")}); err != nil {
		t.Fatalf("payment: %v", err)
	}

	statement, body, err := svc.CustomerStatementXLSX(context.Background(), "cus-horn-builders")
	if err != nil {
		t.Fatalf("statement: %v", err)
	}
	if len(body) == 0 {
		t.Fatalf("expected workbook bytes")
	}
	if statement.Summary.TotalDebts != 1 || statement.Summary.TotalOutstanding != "24.00" {
		t.Fatalf("unexpected statement summary: %+v", statement.Summary)
	}

	_, err = svc.CustomerStatement(context.Background(), "")
	assertValidation(t, err, "customer_id")
}

func TestWarehouseStaffCannotWrite(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := WithActor(context.Background(), domain.Actor{Username: "staff", Role: domain.RoleWarehouseStaff})

	_, err := svc.CreateDebt(ctx, domain.DebtCreateRequest{
		CustomerID:  "cus-horn-builders",
		TotalAmount: dec("10"),
		DueDate:     dateIn(5),
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	_, err = svc.CreatePayment(context.Background(), domain.PaymentCreateRequest{DebtID: "debt-x", Amount: dec("1")})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden without actor, got %v", err)
	}

	if _, err := svc.ListCustomers(ctx, domain.CustomerFilter{}); err != nil {
		t.Fatalf("reads stay open to staff: %v", err)
	}
}

func TestPaidDebtCannotBeCancelled(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := managerCtx()
	debt := createDebt(t, svc, "cus-horn-builders", "100", 30)

	if _, err := svc.MarkPaid(ctx, debt.ID, domain.PaymentCash); err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	cancelled := domain.DebtCancelled
	_, err := svc.UpdateDebt(ctx, debt.ID, domain.DebtUpdateRequest{Status: &cancelled})
	assertValidation(t, err, "status")

	got, _ := svc.GetDebt(context.Background(), debt.ID)
	if got.Status != domain.DebtPaid {
		t.Fatalf("expected debt to stay paid, got %s", got.Status)
	}
}

func TestPaidAmountEditCannotStrandPayments(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := managerCtx()
	debt := createDebt(t, svc, "cus-horn-builders", "500", 30)

	payment, err := svc.CreatePayment(ctx, domain.PaymentCreateRequest{DebtID: debt.ID, Amount: dec("200")})
	if err != nil {
		t.Fatalf("payment: %v", err)
	}

	zero := dec("0")
	_, err = svc.UpdateDebt(ctx, debt.ID, domain.DebtUpdateRequest{PaidAmount: &zero})
	assertValidation(t, err, "paid_amount")

	above := dec("250")
	if _, err := svc.UpdateDebt(ctx, debt.ID, domain.DebtUpdateRequest{PaidAmount: &above}); err != nil {
		t.Fatalf("paid amount above recorded payments: %v", err)
	}
	assertAmount(t, "outstanding", outstanding(t, svc, "cus-horn-builders"), "250")

	if err := svc.DeletePayment(ctx, payment.ID); err != nil {
		t.Fatalf("delete payment: %v", err)
	}
	got, _ := svc.GetDebt(context.Background(), debt.ID)
	assertAmount(t, "paid", got.PaidAmount, "50")
	assertAmount(t, "outstanding", outstanding(t, svc, "cus-horn-builders"), "450")
}

func TestReversalBeyondPaidAmountIsValidationError(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := managerCtx()
	debt := createDebt(t, svc, "cus-horn-builders", "500", 30)
	payment, err := svc.CreatePayment(ctx, domain.PaymentCreateRequest{DebtID: debt.ID, Amount: dec("200")})
	if err != nil {
		t.Fatalf("payment: %v", err)
	}

	// Rows written before paid_amount edits were checked.
	err = repo.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		locked, err := tx.LockDebt(ctx, debt.ID)
		if err != nil {
			return err
		}
		locked.PaidAmount = decimal.Zero
		return tx.UpdateDebt(ctx, *locked)
	})
	if err != nil {
		t.Fatalf("inject paid amount: %v", err)
	}

	err = svc.DeletePayment(ctx, payment.ID)
	assertValidation(t, err, "amount")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected a validation error, got %v", err)
	}
}

func TestCreditSaleRoundsQuantities(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := managerCtx()

	sale, _, err := svc.CreateCreditSale(ctx, domain.CreditSaleRequest{
		CustomerID: "cus-horn-builders",
		Items:      []domain.SaleItemInput{{MaterialID: "mat-cement-50kg", Quantity: dec("10.004")}},
		DueDate:    dateIn(30),
	})
	if err != nil {
		t.Fatalf("credit sale: %v", err)
	}
	assertAmount(t, "line quantity", sale.Items[0].Quantity, "10.00")
	material, err := svc.GetMaterial(context.Background(), "mat-cement-50kg")
	if err != nil {
		t.Fatalf("get material: %v", err)
	}
	assertAmount(t, "stock", material.QuantityInStock, "390")

	_, _, err = svc.CreateCreditSale(ctx, domain.CreditSaleRequest{
		CustomerID: "cus-horn-builders",
		Items:      []domain.SaleItemInput{{MaterialID: "mat-cement-50kg", Quantity: dec("0.001")}},
		DueDate:    dateIn(30),
	})
	assertValidation(t, err, "items")
	material, _ = svc.GetMaterial(context.Background(), "mat-cement-50kg")
	assertAmount(t, "stock", material.QuantityInStock, "390")
}

func TestCreditSaleHonoursLimitBoundary(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := managerCtx()
	customer, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Name: "Berbera Tiles", CreditLimit: dec("1000")})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	createDebt(t, svc, customer.ID, "800", 30)

	sellAt := func(price string) error {
		unit := dec(price)
		_, _, err := svc.CreateCreditSale(ctx, domain.CreditSaleRequest{
			CustomerID: customer.ID,
			Items:      []domain.SaleItemInput{{MaterialID: "mat-cement-50kg", Quantity: dec("1"), UnitPrice: &unit}},
			DueDate:    dateIn(30),
		})
		return err
	}

	assertValidation(t, sellAt("300"), "credit_limit")
	material, _ := svc.GetMaterial(context.Background(), "mat-cement-50kg")
	assertAmount(t, "stock after rejection", material.QuantityInStock, "400")

	if err := sellAt("200"); err != nil {
		t.Fatalf("sale at the limit: %v", err)
	}
	assertAmount(t, "outstanding", outstanding(t, svc, customer.ID), "1000")
}

func TestMixedOperationsKeepBalanceReconciled(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := managerCtx()
	const customerID = "cus-horn-builders"

	manual := createDebt(t, svc, customerID, "300", 30)
	sale, saleDebt := createCreditSale(t, svc, customerID, 10)

	pay := func(debtID string, amount string) domain.DebtPayment {
		t.Helper()
		payment, err := svc.CreatePayment(ctx, domain.PaymentCreateRequest{DebtID: debtID, Amount: dec(amount)})
		if err != nil {
			t.Fatalf("payment %s on %s: %v", amount, debtID, err)
		}
		return payment
	}
	first := pay(saleDebt.ID, "40")
	second := pay(saleDebt.ID, "20")

	if _, err := svc.UpdatePaymentStatus(ctx, second.ID, domain.PaymentStatusRefunded); err != nil {
		t.Fatalf("refund: %v", err)
	}
	tax := dec("15")
	if _, err := svc.UpdateSale(ctx, sale.ID, domain.SaleUpdateRequest{Tax: &tax}); err != nil {
		t.Fatalf("update sale: %v", err)
	}
	pay(manual.ID, "100")

	cancelled := domain.DebtCancelled
	if _, err := svc.UpdateDebt(ctx, manual.ID, domain.DebtUpdateRequest{Status: &cancelled}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	scrap := createDebt(t, svc, customerID, "50", 30)
	if err := svc.DeleteDebt(ctx, scrap.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if err := svc.DeletePayment(ctx, first.ID); err != nil {
		t.Fatalf("delete payment: %v", err)
	}

	// manual: 300 - 100 paid, cancelled; sale debt: 100 with nothing paid.
	assertAmount(t, "outstanding", outstanding(t, svc, customerID), "300")

	results, err := svc.ReconcileAll(adminCtx())
	if err != nil {
		t.Fatalf("reconcile all: %v", err)
	}
	for _, r := range results {
		if r.Adjusted || r.Drift != "0.00" {
			t.Fatalf("expected no drift, got %+v", r)
		}
	}
}

// failingUpdateRepo fails every debt update made inside a transaction.
type failingUpdateRepo struct {
	*memory.Store
}

type failingUpdateTx struct {
	store.Tx
}

func (failingUpdateTx) UpdateDebt(context.Context, domain.Debt) error {
	return errors.New("disk full")
}

func (r failingUpdateRepo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return r.Store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, failingUpdateTx{Tx: tx})
	})
}

func TestRefreshOverdueCountsOnlyPersistedChanges(t *testing.T) {
	svc, repo, clock := newTestService()
	createDebt(t, svc, "cus-city-works", "500", 1)
	clock.advanceDays(5)

	failing := New(failingUpdateRepo{Store: repo}, nil, Options{Now: clock.Now})
	_, changed, err := failing.RefreshOverdueStatuses(context.Background())
	if err == nil {
		t.Fatalf("expected the failed update to surface")
	}
	if changed != 0 {
		t.Fatalf("expected no refreshed debts to be counted, got %d", changed)
	}
}
