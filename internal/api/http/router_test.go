package http_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	httptransport "github.com/homequest/support-service/internal/api/http"
	"github.com/homequest/support-service/internal/api/http/handlers"
	"github.com/homequest/support-service/internal/auth"
	"github.com/homequest/support-service/internal/config"
	"github.com/homequest/support-service/internal/domain"
	"github.com/homequest/support-service/internal/events"
	"github.com/homequest/support-service/internal/observability"
	"github.com/homequest/support-service/internal/realtime"
	"github.com/homequest/support-service/internal/repository"
	"github.com/homequest/support-service/internal/service"
)

func newTestApp(t *testing.T) (*fiber.App, *auth.TokenManager) {
	t.Helper()

	ticketRepo, messageRepo := repository.NewMemoryRepositories()
	dispatcher := events.NewInMemoryDispatcher()
	logger := zap.NewNop()

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		MessageRepo: messageRepo,
		Dispatcher:  dispatcher,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		TicketRepo: ticketRepo,
		Dispatcher: dispatcher,
	})

	hub := realtime.NewHub(8, logger, nil)
	tokenManager := auth.NewTokenManager("test-secret", 60)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, observability.NewMetrics(), 0)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:          handlers.NewHealthHandler("support-coordination", "test", nil, nil),
		Tickets:         handlers.NewTicketsHandler(ticketService),
		EmployeeTickets: handlers.NewEmployeeTicketsHandler(assignmentService, ticketService),
		Realtime:        handlers.NewRealtimeHandler(hub, config.RealtimeConfig{}, logger),
		AuthMiddleware:  auth.NewAuthMiddleware(tokenManager),
	})
	return app, tokenManager
}

func mintCustomerToken(t *testing.T, tm *auth.TokenManager, subjectID, name string) string {
	t.Helper()
	role := domain.UserRoleBuyer
	token, _, err := tm.GenerateToken(subjectID, domain.SubjectTypeCustomer, name, &role)
	require.NoError(t, err)
	return token
}

func mintEmployeeToken(t *testing.T, tm *auth.TokenManager, subjectID, name string) string {
	t.Helper()
	token, _, err := tm.GenerateToken(subjectID, domain.SubjectTypeEmployee, name, nil)
	require.NoError(t, err)
	return token
}

func request(t *testing.T, app *fiber.App, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	decoded := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp.StatusCode, decoded
}

func dataField(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	require.True(t, ok, "missing data object: %v", body)
	return data
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, "missing error object: %v", body)
	code, _ := errObj["code"].(string)
	return code
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	app, tm := newTestApp(t)

	customer := mintCustomerToken(t, tm, "customer-1", "Noa")
	dana := mintEmployeeToken(t, tm, "emp-1", "Dana")
	rivka := mintEmployeeToken(t, tm, "emp-2", "Rivka")

	status, body := request(t, app, http.MethodPost, "/tickets", customer, map[string]any{
		"category_title": "Payments",
		"problem":        "Payout has not arrived",
	})
	require.Equal(t, http.StatusCreated, status)
	ticketID, _ := dataField(t, body)["id"].(string)
	require.NotEmpty(t, ticketID)
	assert.Equal(t, "OPEN", dataField(t, body)["status"])

	status, body = request(t, app, http.MethodGet, "/tickets", dana, nil)
	require.Equal(t, http.StatusOK, status)
	list, ok := body["data"].([]any)
	require.True(t, ok)
	assert.Len(t, list, 1)

	status, body = request(t, app, http.MethodPost, "/tickets/"+ticketID+"/assign", dana, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ASSIGNED", dataField(t, body)["status"])
	assert.Equal(t, "emp-1", dataField(t, body)["assigned_to"])

	status, body = request(t, app, http.MethodPost, "/tickets/"+ticketID+"/assign", rivka, nil)
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ALREADY_ASSIGNED", errorCode(t, body))

	status, _ = request(t, app, http.MethodPost, "/tickets/"+ticketID+"/messages", customer, map[string]any{
		"message": "Here is my payout reference",
	})
	require.Equal(t, http.StatusCreated, status)

	status, body = request(t, app, http.MethodGet, "/tickets/"+ticketID, customer, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "IN_PROGRESS", dataField(t, body)["status"])
	messages, ok := dataField(t, body)["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 1)

	status, body = request(t, app, http.MethodPut, "/tickets/"+ticketID+"/resolve", rivka, nil)
	require.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "NOT_ASSIGNEE", errorCode(t, body))

	status, body = request(t, app, http.MethodPut, "/tickets/"+ticketID+"/resolve", dana, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "RESOLVED", dataField(t, body)["status"])

	status, body = request(t, app, http.MethodPut, "/tickets/"+ticketID+"/close", dana, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "CLOSED", dataField(t, body)["status"])

	status, body = request(t, app, http.MethodPost, "/tickets/"+ticketID+"/messages", customer, map[string]any{
		"message": "one more thing",
	})
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "TICKET_CLOSED", errorCode(t, body))

	status, body = request(t, app, http.MethodPut, "/tickets/"+ticketID+"/close", dana, nil)
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "TERMINAL_STATE", errorCode(t, body))
}

func TestAuthAndRoleGuards(t *testing.T) {
	app, tm := newTestApp(t)

	customer := mintCustomerToken(t, tm, "customer-1", "Noa")
	employee := mintEmployeeToken(t, tm, "emp-1", "Dana")

	t.Run("missing token", func(t *testing.T) {
		status, body := request(t, app, http.MethodGet, "/tickets", "", nil)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "UNAUTHORIZED", errorCode(t, body))
	})

	t.Run("customer cannot claim", func(t *testing.T) {
		status, body := request(t, app, http.MethodPost, "/tickets/some-id/assign", customer, nil)
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "FORBIDDEN", errorCode(t, body))
	})

	t.Run("employee cannot open tickets", func(t *testing.T) {
		status, _ := request(t, app, http.MethodPost, "/tickets", employee, map[string]any{
			"category_title": "Payments",
			"problem":        "should not work",
		})
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("customer cannot read foreign ticket", func(t *testing.T) {
		status, body := request(t, app, http.MethodPost, "/tickets", customer, map[string]any{
			"category_title": "Listings",
			"problem":        "photos will not upload",
		})
		require.Equal(t, http.StatusCreated, status)
		ticketID, _ := dataField(t, body)["id"].(string)

		other := mintCustomerToken(t, tm, "customer-2", "Avi")
		status, body = request(t, app, http.MethodGet, "/tickets/"+ticketID, other, nil)
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "FORBIDDEN", errorCode(t, body))
	})
}

func TestHealthLive(t *testing.T) {
	app, _ := newTestApp(t)

	status, body := request(t, app, http.MethodGet, "/healthz/live", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alive", body["status"])
}
