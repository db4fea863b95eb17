package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"nurbuild/backend/internal/domain"
	"nurbuild/backend/internal/export"
)

func (a *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	customers, err := a.service.ListCustomers(r.Context(), domain.CustomerFilter{
		Status: query.Get("status"),
		Search: query.Get("search"),
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	views := make([]domain.CustomerView, 0, len(customers))
	for _, customer := range customers {
		views = append(views, domain.NewCustomerView(customer))
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": views})
}

func (a *API) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := a.service.GetCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": domain.NewCustomerView(customer)})
}

func (a *API) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerCreateRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	customer, err := a.service.CreateCustomer(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"customer": domain.NewCustomerView(customer)})
}

func (a *API) handleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerUpdateRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	customer, err := a.service.UpdateCustomer(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": domain.NewCustomerView(customer)})
}

func (a *API) handleListMaterials(w http.ResponseWriter, r *http.Request) {
	materials, err := a.service.ListMaterials(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	views := make([]domain.MaterialView, 0, len(materials))
	for _, material := range materials {
		views = append(views, domain.NewMaterialView(material))
	}
	writeJSON(w, http.StatusOK, map[string]any{"materials": views})
}

func (a *API) handleGetMaterial(w http.ResponseWriter, r *http.Request) {
	material, err := a.service.GetMaterial(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"material": domain.NewMaterialView(material)})
}

func (a *API) handleCreateMaterial(w http.ResponseWriter, r *http.Request) {
	var req domain.MaterialCreateRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	material, err := a.service.CreateMaterial(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"material": domain.NewMaterialView(material)})
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	sales, err := a.service.ListSales(r.Context(), domain.SaleFilter{
		CustomerID:    query.Get("customer_id"),
		PaymentMethod: query.Get("payment_method"),
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	views := make([]domain.SaleView, 0, len(sales))
	for _, sale := range sales {
		views = append(views, domain.NewSaleView(sale))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": views})
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": domain.NewSaleView(sale)})
}

func (a *API) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleCreateRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	sale, err := a.service.CreateSale(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale": domain.NewSaleView(sale)})
}

func (a *API) handleUpdateSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleUpdateRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	sale, err := a.service.UpdateSale(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": domain.NewSaleView(sale)})
}

func (a *API) writeDebts(w http.ResponseWriter, r *http.Request, debts []domain.Debt, extra map[string]any) {
	views, err := a.service.DebtViews(r.Context(), debts)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	payload := map[string]any{"debts": views}
	for key, value := range extra {
		payload[key] = value
	}
	writeJSON(w, http.StatusOK, payload)
}

func (a *API) writeDebt(w http.ResponseWriter, r *http.Request, status int, debt domain.Debt) {
	view, err := a.service.DebtView(r.Context(), debt)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, status, map[string]any{"debt": view})
}

func (a *API) handleListDebts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	overdueOnly, _ := strconv.ParseBool(query.Get("overdue"))
	debts, err := a.service.ListDebts(r.Context(), domain.DebtFilter{
		CustomerID: query.Get("customer_id"),
		Status:     query.Get("status"),
		Priority:   query.Get("priority"),
	}, overdueOnly)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.writeDebts(w, r, debts, nil)
}

func (a *API) handleGetDebt(w http.ResponseWriter, r *http.Request) {
	debt, err := a.service.GetDebt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.writeDebt(w, r, http.StatusOK, debt)
}

func (a *API) handleCreateDebt(w http.ResponseWriter, r *http.Request) {
	var req domain.DebtCreateRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	debt, err := a.service.CreateDebt(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.writeDebt(w, r, http.StatusCreated, debt)
}

func (a *API) handleUpdateDebt(w http.ResponseWriter, r *http.Request) {
	var req domain.DebtUpdateRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	debt, err := a.service.UpdateDebt(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.writeDebt(w, r, http.StatusOK, debt)
}

func (a *API) handleDeleteDebt(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteDebt(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	var req domain.MarkPaidRequest
	if r.ContentLength != 0 && !decodeRequest(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	payment, err := a.service.MarkPaid(r.Context(), id, req.PaymentMethod)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	debt, err := a.service.GetDebt(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	view, err := a.service.DebtView(r.Context(), debt)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Debt marked as paid successfully",
		"debt":    view,
		"payment": domain.NewPaymentView(payment),
	})
}

func (a *API) handleDebtMaterials(w http.ResponseWriter, r *http.Request) {
	materials, err := a.service.DebtMaterials(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, materials)
}

func (a *API) handleOverdueDebts(w http.ResponseWriter, r *http.Request) {
	debts, err := a.service.OverdueDebts(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.writeDebts(w, r, debts, map[string]any{"count": len(debts)})
}

func (a *API) handleDebtSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.DebtSummary(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleCustomerSummary(w http.ResponseWriter, r *http.Request) {
	summaries, err := a.service.CustomerDebtSummaries(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": summaries})
}

func (a *API) handleMaterialsAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, err := a.service.MaterialsAnalysis(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (a *API) handleExportCustomer(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customer_id")
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))

	switch format {
	case "", "json":
		statement, err := a.service.CustomerStatement(r.Context(), customerID)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, statement)
	case "xlsx":
		statement, body, err := a.service.CustomerStatementXLSX(r.Context(), customerID)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		filename := fmt.Sprintf("debt-statement-%s.xlsx", statement.Customer.ID)
		w.Header().Set("Content-Type", export.XLSXContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported format %q", format))
	}
}

func (a *API) handleCreateCreditSale(w http.ResponseWriter, r *http.Request) {
	var req domain.CreditSaleRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	sale, debt, err := a.service.CreateCreditSale(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	view, err := a.service.DebtView(r.Context(), debt)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.CreditSaleResponse{
		Message: "Credit sale created successfully",
		SaleID:  sale.ID,
		DebtID:  debt.ID,
		Sale:    domain.NewSaleView(sale),
		Debt:    view,
	})
}

func (a *API) handleValidateCredit(w http.ResponseWriter, r *http.Request) {
	var req domain.CreditValidationRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	check, err := a.service.ValidateCredit(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func paymentViews(payments []domain.DebtPayment) []domain.PaymentView {
	views := make([]domain.PaymentView, 0, len(payments))
	for _, payment := range payments {
		views = append(views, domain.NewPaymentView(payment))
	}
	return views
}

func (a *API) handleListPayments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	payments, err := a.service.ListPayments(r.Context(), domain.PaymentFilter{
		DebtID:     query.Get("debt_id"),
		CustomerID: query.Get("customer_id"),
		Status:     query.Get("status"),
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": paymentViews(payments)})
}

func (a *API) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := a.service.GetPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payment": domain.NewPaymentView(payment)})
}

func (a *API) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentCreateRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	payment, err := a.service.CreatePayment(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"payment": domain.NewPaymentView(payment)})
}

func (a *API) handleUpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentStatusRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	payment, err := a.service.UpdatePaymentStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payment": domain.NewPaymentView(payment)})
}

func (a *API) handleDeletePayment(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeletePayment(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePaymentsByCustomer(w http.ResponseWriter, r *http.Request) {
	payments, err := a.service.PaymentsByCustomer(r.Context(), r.URL.Query().Get("customer_id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": paymentViews(payments)})
}

func (a *API) handleDailyPaymentSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.DailyPaymentSummary(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func reminderViews(reminders []domain.DebtReminder) []domain.ReminderView {
	views := make([]domain.ReminderView, 0, len(reminders))
	for _, reminder := range reminders {
		views = append(views, domain.NewReminderView(reminder))
	}
	return views
}

func (a *API) handleListReminders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	reminders, err := a.service.ListReminders(r.Context(), domain.ReminderFilter{
		DebtID: query.Get("debt_id"),
		Status: query.Get("status"),
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reminders": reminderViews(reminders)})
}

func (a *API) handlePendingReminders(w http.ResponseWriter, r *http.Request) {
	reminders, err := a.service.PendingReminders(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reminders": reminderViews(reminders)})
}

func (a *API) handleCreateReminder(w http.ResponseWriter, r *http.Request) {
	var req domain.ReminderCreateRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	reminder, err := a.service.CreateReminder(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"reminder": domain.NewReminderView(reminder)})
}

func (a *API) handleMarkReminderSent(w http.ResponseWriter, r *http.Request) {
	reminder, err := a.service.MarkReminderSent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reminder": domain.NewReminderView(reminder)})
}

func (a *API) handleCancelReminder(w http.ResponseWriter, r *http.Request) {
	reminder, err := a.service.CancelReminder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reminder": domain.NewReminderView(reminder)})
}
