package validation

import (
	"errors"
	"testing"
)

func TestOrigin(t *testing.T) {
	tests := []struct {
		name         string
		origin       string
		requireHTTPS bool
		wantErr      bool
	}{
		{name: "https origin", origin: "https://chat.example.com"},
		{name: "with port", origin: "http://localhost:5173"},
		{name: "trailing slash", origin: "https://chat.example.com/"},
		{name: "http in production", origin: "http://chat.example.com", requireHTTPS: true, wantErr: true},
		{name: "no scheme", origin: "chat.example.com", wantErr: true},
		{name: "ftp scheme", origin: "ftp://chat.example.com", wantErr: true},
		{name: "path", origin: "https://chat.example.com/app", wantErr: true},
		{name: "query", origin: "https://chat.example.com?x=1", wantErr: true},
		{name: "no host", origin: "https://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Origin(tt.origin, "CORS_ALLOWED_ORIGINS", tt.requireHTTPS)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Origin(%q) error = %v, wantErr %v", tt.origin, err, tt.wantErr)
			}
			if err != nil {
				var ve URLValidationError
				if !errors.As(err, &ve) || ve.Field != "CORS_ALLOWED_ORIGINS" {
					t.Errorf("expected URLValidationError for field, got %#v", err)
				}
			}
		})
	}
}

func TestEndpoint(t *testing.T) {
	for _, ok := range []string{"", "localhost:4317", "http://otel-collector:4318"} {
		if err := Endpoint(ok, "OTEL_EXPORTER_OTLP_ENDPOINT"); err != nil {
			t.Errorf("Endpoint(%q) unexpected error: %v", ok, err)
		}
	}
	if err := Endpoint("http://", "OTEL_EXPORTER_OTLP_ENDPOINT"); err == nil {
		t.Error("expected error for endpoint without host")
	}
}
