package security

import "testing"

func TestValidateOutboundURLRejectsZonedIPv6ByDefault(t *testing.T) {
	err := ValidateOutboundURL("https://[fe80::1%25eth0]/", OutboundURLOptions{})
	if err == nil {
		t.Fatal("expected zone-literal IPv6 host to be rejected")
	}
}

func TestValidateOutboundURLAllowsZonedIPv6WhenLocalNetworksAllowed(t *testing.T) {
	err := ValidateOutboundURL("https://[fe80::1%25eth0]/", OutboundURLOptions{
		AllowLocalNetworks: true,
	})
	if err != nil {
		t.Fatalf("expected zone-literal IPv6 host to be allowed when local networks are enabled: %v", err)
	}
}

func TestValidateFetchURLAllowsPlainHTTP(t *testing.T) {
	if err := ValidateFetchURL("http://example.com/article"); err != nil {
		t.Fatalf("expected http research target to be allowed: %v", err)
	}
}

func TestValidateFetchURLRejectsLocalTargets(t *testing.T) {
	for _, raw := range []string{
		"http://localhost:8080/admin",
		"http://127.0.0.1/secrets",
		"http://10.0.0.5/internal",
		"http://169.254.169.254/latest/meta-data",
		"http://printer.local/",
		"ftp://example.com/file",
		"http://[::]/",
	} {
		if err := ValidateFetchURL(raw); err == nil {
			t.Errorf("expected %q to be rejected", raw)
		}
	}
}

func TestValidateProviderURLRequiresHTTPS(t *testing.T) {
	if err := ValidateProviderURL("https://generativelanguage.googleapis.com/v1beta"); err != nil {
		t.Fatalf("expected https provider endpoint to be allowed: %v", err)
	}
	if err := ValidateProviderURL("http://generativelanguage.googleapis.com/v1beta"); err == nil {
		t.Fatal("expected http provider endpoint to be rejected")
	}
}
