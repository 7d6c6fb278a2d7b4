package auth

import (
	"testing"

	"github.com/bigwolfeman/document-mcp/internal/config"
)

func TestIssueThenVerifyRoundTrip(t *testing.T) {
	cfg := config.Defaults()
	s := New(cfg)
	token, _, err := s.Issue("acme", 0)
	if err != nil {
		t.Fatal(err)
	}
	tenant, err := s.Verify(token)
	if err != nil {
		t.Fatal(err)
	}
	if tenant != "acme" {
		t.Fatalf("tenant = %q, want acme", tenant)
	}
}

func TestStaticTokensRejectedInProduction(t *testing.T) {
	cfg := config.Defaults()
	cfg.Production = true
	cfg.Auth.Secret = "a-real-secret"
	cfg.Auth.DevSecret = false
	s := New(cfg)

	if _, err := s.Verify(staticDevToken); err == nil {
		t.Fatalf("expected static dev token to be rejected in production")
	}
}

func TestStaticTokensAcceptedOutsideProduction(t *testing.T) {
	cfg := config.Defaults()
	s := New(cfg)
	tenant, err := s.Verify(staticDevToken)
	if err != nil {
		t.Fatal(err)
	}
	if tenant != cfg.Auth.DevTenant {
		t.Fatalf("tenant = %q, want %q", tenant, cfg.Auth.DevTenant)
	}
}

func TestMalformedHeaderRejected(t *testing.T) {
	s := New(config.Defaults())
	if _, err := s.ExtractBearer("NotBearer xyz"); err == nil {
		t.Fatalf("expected malformed_header error")
	}
	if _, err := s.ExtractBearer(""); err == nil {
		t.Fatalf("expected missing_header error")
	}
}

func TestProductionWithoutSecretRejectsEvenValidFormat(t *testing.T) {
	cfg := config.Defaults()
	cfg.Production = true
	cfg.Auth.DevSecret = true // simulate a misconfigured deployment bypassing Load's guard
	s := New(cfg)
	if _, err := s.Verify("anything.at.all"); err == nil {
		t.Fatalf("expected secret_not_configured rejection")
	}
}
