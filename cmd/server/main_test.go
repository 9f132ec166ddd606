package main

import (
	"testing"

	"shopapp/backend/internal/config"
)

func TestValidateSecurityConfigRejectsShortSecret(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigRejectsOrphanWebhookSecret(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		AuthSecret:          "0123456789abcdef0123456789abcdef",
		StripeWebhookSecret: "whsec_x",
	})
	if err == nil {
		t.Fatalf("expected webhook secret without api secret to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		AuthSecret:          "0123456789abcdef0123456789abcdef",
		StripeSecret:        "sk_test_x",
		StripeWebhookSecret: "whsec_x",
	})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}
