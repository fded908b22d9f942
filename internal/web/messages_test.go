package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/JonMunkholm/shopimport/internal/core"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
	}{
		{"nil", nil, "ERR000", http.StatusInternalServerError},
		{"unknown", errors.New("something broke"), "ERR000", http.StatusInternalServerError},
		{
			"class not found in config error",
			&core.ConfigError{Name: "nosuch", Class: "Nosuch/Standard", Err: core.ErrClassNotFound},
			"CFG002", http.StatusBadRequest,
		},
		{
			"constructor failure",
			&core.ConfigError{Name: "lists/text", Err: errors.New("bad option")},
			"CFG005", http.StatusBadRequest,
		},
		{"unknown format", fmt.Errorf("%w: %q", core.ErrUnknownFormat, "json"), "CFG004", http.StatusBadRequest},
		{"import not found", fmt.Errorf("%w: abc", core.ErrImportNotFound), "IMP001", http.StatusNotFound},
		{"too many imports", core.ErrTooManyImports, "IMP002", http.StatusServiceUnavailable},
		{"deadline", fmt.Errorf("wait: %w", context.DeadlineExceeded), "IMP004", http.StatusGatewayTimeout},
		{"running", errImportRunning, "IMP006", http.StatusConflict},
		{"body too large", errors.New("invalid form: http: request body too large"), "FILE001", http.StatusRequestEntityTooLarge},
		{"empty", fmt.Errorf("receive upload: %w", errEmptyFile), "FILE005", http.StatusBadRequest},
		{"database down", errors.New("dial tcp: Connection Refused"), "DB004", http.StatusServiceUnavailable},
		{"rate", errRateLimited, "RATE001", http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := MapError(tt.err)
			if msg.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", msg.Code, tt.wantCode)
			}
			if msg.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", msg.Status, tt.wantStatus)
			}
			if msg.Message == "" || msg.Action == "" {
				t.Errorf("message and action must be set: %+v", msg)
			}
		})
	}
}
