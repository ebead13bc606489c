package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

const testSecret = "JBSWY3DPEHPK3PXP" // base32, test-only

func TestLiveArmGuard_DisabledPassesEverything(t *testing.T) {
	g := NewLiveArmGuard("")
	if g.Enabled() {
		t.Fatal("guard with empty secret must be disabled")
	}
	if err := g.Verify(""); err != nil {
		t.Errorf("disabled guard rejected empty code: %v", err)
	}
	if err := g.Verify("123456"); err != nil {
		t.Errorf("disabled guard rejected a code: %v", err)
	}
}

func TestLiveArmGuard_ValidCode(t *testing.T) {
	g := NewLiveArmGuard(testSecret)
	if !g.Enabled() {
		t.Fatal("guard with secret must be enabled")
	}

	code, err := totp.GenerateCode(testSecret, time.Now())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	if err := g.Verify(code); err != nil {
		t.Errorf("valid code rejected: %v", err)
	}
}

func TestLiveArmGuard_InvalidCode(t *testing.T) {
	g := NewLiveArmGuard(testSecret)
	if err := g.Verify("000000"); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("err = %v, want ErrInvalidCode", err)
	}
	if err := g.Verify(""); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("empty code: err = %v, want ErrInvalidCode", err)
	}
}
