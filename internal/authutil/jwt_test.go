package authutil

import (
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndValidateRoundTrip(t *testing.T) {
	token, err := IssueToken(42)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	id, err := ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if id != 42 {
		t.Fatalf("expected user 42, got %d", id)
	}
}

func TestIssueTokenRejectsZeroID(t *testing.T) {
	if _, err := IssueToken(0); err == nil {
		t.Fatalf("expected error for zero user id")
	}
}

func TestValidateTokenRejectsEmpty(t *testing.T) {
	if _, err := ValidateToken(""); err == nil {
		t.Fatalf("expected error for empty token")
	}
}

func TestValidateTokenRejectsTampered(t *testing.T) {
	token, err := IssueToken(7)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + ".AAAA"
	if _, err := ValidateToken(tampered); err == nil {
		t.Fatalf("expected signature rejection")
	}
}

func TestValidateTokenRejectsWrongMethod(t *testing.T) {
	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": "7"})
	tokenStr, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ValidateToken(tokenStr); err == nil {
		t.Fatalf("expected method rejection")
	}
}
