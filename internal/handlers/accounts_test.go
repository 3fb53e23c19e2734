package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billbackhq/billback-api/internal/models"
	"github.com/billbackhq/billback-api/internal/store"
	"github.com/billbackhq/billback-api/internal/utils"
)

// MockAccountStore is a mock implementation of AccountStore for testing
type MockAccountStore struct {
	UpsertFunc func(ctx context.Context, vendorID, accountNumber, propertyID string, isTracked, isUBI *bool) (*models.AccountFlag, error)
	GetFunc    func(ctx context.Context, vendorID, accountNumber, propertyID string) (*models.AccountFlag, error)
	ListFunc   func(ctx context.Context) ([]models.AccountFlag, error)
	DeleteFunc func(ctx context.Context, vendorID, accountNumber, propertyID string) error
}

func (m *MockAccountStore) Upsert(ctx context.Context, vendorID, accountNumber, propertyID string, isTracked, isUBI *bool) (*models.AccountFlag, error) {
	return m.UpsertFunc(ctx, vendorID, accountNumber, propertyID, isTracked, isUBI)
}

func (m *MockAccountStore) Get(ctx context.Context, vendorID, accountNumber, propertyID string) (*models.AccountFlag, error) {
	return m.GetFunc(ctx, vendorID, accountNumber, propertyID)
}

func (m *MockAccountStore) List(ctx context.Context) ([]models.AccountFlag, error) {
	return m.ListFunc(ctx)
}

func (m *MockAccountStore) Delete(ctx context.Context, vendorID, accountNumber, propertyID string) error {
	return m.DeleteFunc(ctx, vendorID, accountNumber, propertyID)
}

func accountTestApp(mock *MockAccountStore) *fiber.App {
	handler := NewAccountHandler(mock)
	app := fiber.New(fiber.Config{ErrorHandler: utils.ErrorHandler})
	app.Get("/accounts", handler.List)
	app.Get("/accounts/flag", handler.Get)
	app.Post("/accounts", handler.Upsert)
	app.Delete("/accounts", handler.Delete)
	return app
}

func postAccountFlag(t *testing.T, app *fiber.App, payload map[string]any) int {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/accounts", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

// Setting only is_ubi must leave is_tracked untouched: the handler passes a
// nil is_tracked pointer through so the store preserves the stored value.
func TestAccountHandler_Upsert_OnlyIsUBI(t *testing.T) {
	called := false
	mock := &MockAccountStore{
		UpsertFunc: func(_ context.Context, vendorID, accountNumber, propertyID string, isTracked, isUBI *bool) (*models.AccountFlag, error) {
			called = true
			assert.Equal(t, "V1", vendorID)
			assert.Equal(t, "ACC-1", accountNumber)
			assert.Equal(t, "P1", propertyID)
			assert.Nil(t, isTracked)
			require.NotNil(t, isUBI)
			assert.True(t, *isUBI)
			// Stored is_tracked survives the write.
			return &models.AccountFlag{
				VendorID:      vendorID,
				AccountNumber: accountNumber,
				PropertyID:    propertyID,
				IsTracked:     true,
				IsUBI:         true,
			}, nil
		},
	}
	app := accountTestApp(mock)

	status := postAccountFlag(t, app, map[string]any{
		"vendor_id":      "V1",
		"account_number": "ACC-1",
		"property_id":    "P1",
		"is_ubi":         true,
	})
	assert.Equal(t, fiber.StatusOK, status)
	assert.True(t, called)
}

// The reverse direction: an explicit is_tracked=false must reach the store
// as a false pointer while is_ubi stays nil.
func TestAccountHandler_Upsert_OnlyIsTracked(t *testing.T) {
	mock := &MockAccountStore{
		UpsertFunc: func(_ context.Context, _, _, _ string, isTracked, isUBI *bool) (*models.AccountFlag, error) {
			require.NotNil(t, isTracked)
			assert.False(t, *isTracked)
			assert.Nil(t, isUBI)
			return &models.AccountFlag{IsTracked: false, IsUBI: true}, nil
		},
	}
	app := accountTestApp(mock)

	status := postAccountFlag(t, app, map[string]any{
		"vendor_id":      "V1",
		"account_number": "ACC-1",
		"property_id":    "P1",
		"is_tracked":     false,
	})
	assert.Equal(t, fiber.StatusOK, status)
}

func TestAccountHandler_Upsert_RequiresAtLeastOneFlag(t *testing.T) {
	mock := &MockAccountStore{
		UpsertFunc: func(_ context.Context, _, _, _ string, _, _ *bool) (*models.AccountFlag, error) {
			t.Error("store must not be called when no flag is provided")
			return nil, nil
		},
	}
	app := accountTestApp(mock)

	status := postAccountFlag(t, app, map[string]any{
		"vendor_id":      "V1",
		"account_number": "ACC-1",
		"property_id":    "P1",
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestAccountHandler_Upsert_RequiresKey(t *testing.T) {
	app := accountTestApp(&MockAccountStore{})

	status := postAccountFlag(t, app, map[string]any{
		"vendor_id": "V1",
		"is_ubi":    true,
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestAccountHandler_Get_NotFound(t *testing.T) {
	mock := &MockAccountStore{
		GetFunc: func(_ context.Context, _, _, _ string) (*models.AccountFlag, error) {
			return nil, store.ErrNotFound
		},
	}
	app := accountTestApp(mock)

	resp, err := app.Test(httptest.NewRequest("GET", "/accounts/flag?vendor_id=V1&account_number=ACC-1&property_id=P1", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestAccountHandler_Delete_RequiresKey(t *testing.T) {
	app := accountTestApp(&MockAccountStore{})

	resp, err := app.Test(httptest.NewRequest("DELETE", "/accounts?vendor_id=V1", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
