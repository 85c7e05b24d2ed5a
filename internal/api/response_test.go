package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"inbox/internal/messaging"
)

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{err: fmt.Errorf("%w: empty", messaging.ErrValidation), status: http.StatusBadRequest, code: ErrCodeValidationFailed},
		{err: fmt.Errorf("%w: pending", messaging.ErrPermission), status: http.StatusForbidden, code: ErrCodeMessageRequestPending},
		{err: fmt.Errorf("%w: not yours", messaging.ErrAuthorization), status: http.StatusForbidden, code: ErrCodeForbidden},
		{err: fmt.Errorf("%w: accepted", messaging.ErrState), status: http.StatusConflict, code: ErrCodeInvalidState},
		{err: fmt.Errorf("%w: gone", messaging.ErrNotFound), status: http.StatusNotFound, code: ErrCodeNotFound},
		{err: errors.New("disk on fire"), status: http.StatusInternalServerError, code: ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeServiceError(rr, httptest.NewRequest(http.MethodGet, "/x", nil), tt.err)

			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d", rr.Code, tt.status)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("json.Unmarshal() error = %v", err)
			}
			if resp.Success || resp.Error.Code != tt.code {
				t.Fatalf("response = %+v, want code %q", resp, tt.code)
			}
			if tt.status == http.StatusInternalServerError && resp.Error.Message == tt.err.Error() {
				t.Fatal("internal error details leaked to client")
			}
		})
	}
}
