package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueParse_RoundTrip(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	tok, exp, err := iss.Issue("ann@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(exp) < 59*time.Minute {
		t.Errorf("expiry %v too early", exp)
	}

	claims, err := iss.Parse(tok)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Email != "ann@example.com" {
		t.Errorf("Email = %q; want ann@example.com", claims.Email)
	}
}

func TestParse_Rejects(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	good, _, err := iss.Issue("ann@example.com")
	if err != nil {
		t.Fatal(err)
	}

	expired := NewIssuer("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, err := expired.Issue("ann@example.com")
	if err != nil {
		t.Fatal(err)
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Email: "x@y.z"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name  string
		iss   *Issuer
		token string
	}{
		{"wrong secret", NewIssuer("other", time.Hour), good},
		{"expired", iss, old},
		{"garbage", iss, "not.a.token"},
		{"alg none", iss, none},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.iss.Parse(tc.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Parse error = %v; want ErrInvalidToken", err)
			}
		})
	}
}
