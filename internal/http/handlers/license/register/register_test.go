package register

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/entitlement-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
	"github.com/magabrotheeeer/entitlement-service/internal/services/license"
	"github.com/magabrotheeeer/entitlement-service/internal/storage"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) Register(ctx context.Context, userID, hwid, deviceName string) (*models.License, bool, error) {
	args := m.Called(ctx, userID, hwid, deviceName)
	lic, _ := args.Get(0).(*models.License)
	return lic, args.Bool(1), args.Error(2)
}

func TestRegisterHandler_ServeHTTP(t *testing.T) {
	lic := &models.License{ID: "lic-1", UserID: "user-1", DeviceName: "Laptop", IsActive: true}

	tests := []struct {
		name        string
		body        string
		callService bool
		mockLicense *models.License
		mockCreated bool
		mockErr     error
		wantStatus  int
		wantReason  string
	}{
		{
			name:        "new device",
			body:        `{"hwid":"ABC","device_name":"Laptop"}`,
			callService: true,
			mockLicense: lic,
			mockCreated: true,
			wantStatus:  http.StatusCreated,
		},
		{
			name:        "already registered",
			body:        `{"hwid":"ABC","device_name":"Laptop"}`,
			callService: true,
			mockLicense: lic,
			wantStatus:  http.StatusOK,
		},
		{
			name:        "not entitled",
			body:        `{"hwid":"ABC","device_name":"Laptop"}`,
			callService: true,
			mockErr:     license.ErrNotEntitled,
			wantStatus:  http.StatusForbidden,
			wantReason:  "no_subscription",
		},
		{
			name:        "device limit",
			body:        `{"hwid":"ABC","device_name":"Laptop"}`,
			callService: true,
			mockErr:     license.ErrDeviceLimit,
			wantStatus:  http.StatusConflict,
		},
		{
			name:        "user gone",
			body:        `{"hwid":"ABC","device_name":"Laptop"}`,
			callService: true,
			mockErr:     storage.ErrNotFound,
			wantStatus:  http.StatusNotFound,
		},
		{
			name:        "unexpected error",
			body:        `{"hwid":"ABC","device_name":"Laptop"}`,
			callService: true,
			mockErr:     errors.New("boom"),
			wantStatus:  http.StatusInternalServerError,
		},
		{
			name:       "missing hwid",
			body:       `{"device_name":"Laptop"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "invalid json",
			body:       `{`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			handler := New(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)

			if tt.callService {
				svc.On("Register", mock.Anything, "user-1", "ABC", "Laptop").
					Return(tt.mockLicense, tt.mockCreated, tt.mockErr).Once()
			}

			req := httptest.NewRequest(http.MethodPost, "/api/v1/licenses", bytes.NewBufferString(tt.body))
			req = req.WithContext(context.WithValue(req.Context(), middlewarectx.UserID, "user-1"))
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var got struct {
				Reason string `json:"reason"`
				Data   struct {
					ID string `json:"id"`
				} `json:"data"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Equal(t, tt.wantReason, got.Reason)
			if tt.mockLicense != nil {
				assert.Equal(t, "lic-1", got.Data.ID)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestRegisterHandler_Unauthenticated(t *testing.T) {
	svc := new(ServiceMock)
	handler := New(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/licenses", bytes.NewBufferString(`{"hwid":"ABC"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	svc.AssertNotCalled(t, "Register", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
