package security

import (
	"strings"
	"testing"
	"time"
)

func TestTokenProvider_IssueAndValidateAccess(t *testing.T) {
	p := NewTestTokenProvider()
	sub := AccessSubject{UserID: "u1", SessionID: "s1", Phone: "+15550001111", Roles: []string{"USER"}}

	access, jti, exp, err := p.IssueAccess(sub)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if access == "" || jti == "" {
		t.Fatal("access token or jti empty")
	}
	if d := time.Until(exp); d <= 14*time.Minute || d > 15*time.Minute {
		t.Errorf("access expires in %v, want ~15m", d)
	}

	claims, err := p.ValidateAccess(access)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if claims.Subject != "u1" || claims.SessionID != "s1" || claims.Phone != "+15550001111" || claims.ID != jti {
		t.Errorf("ValidateAccess claims = %+v", claims)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "USER" {
		t.Errorf("roles = %v, want [USER]", claims.Roles)
	}
}

func TestTokenProvider_IssueAndValidateRefresh(t *testing.T) {
	p := NewTestTokenProvider()

	refresh, jti, exp, err := p.IssueRefresh("u1", "01HZY0000000000000000000AB", "+15550001111")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if exp.Before(time.Now().Add(23 * time.Hour)) {
		t.Errorf("refresh expires at %v, want ~24h from now", exp)
	}
	claims, err := p.ValidateRefresh(refresh)
	if err != nil {
		t.Fatalf("ValidateRefresh: %v", err)
	}
	if claims.Subject != "u1" || claims.FamilyID != "01HZY0000000000000000000AB" || claims.ID != jti {
		t.Errorf("ValidateRefresh claims = %+v", claims)
	}
}

func TestTokenProvider_RefreshTokensAreUnique(t *testing.T) {
	p := NewTestTokenProvider()
	a, _, _, _ := p.IssueRefresh("u1", "fam", "+15550001111")
	b, _, _, _ := p.IssueRefresh("u1", "fam", "+15550001111")
	if a == b {
		t.Fatal("two refresh tokens for the same family must differ")
	}
}

func TestTokenProvider_SecretsAreNotInterchangeable(t *testing.T) {
	p := NewTestTokenProvider()
	refresh, _, _, _ := p.IssueRefresh("u1", "fam", "+15550001111")
	if _, err := p.ValidateAccess(refresh); err != ErrInvalidToken {
		t.Errorf("refresh token accepted as access: %v", err)
	}
	access, _, _, _ := p.IssueAccess(AccessSubject{UserID: "u1", SessionID: "s1"})
	if _, err := p.ValidateRefresh(access); err != ErrInvalidToken {
		t.Errorf("access token accepted as refresh: %v", err)
	}
}

func TestTokenProvider_Expired(t *testing.T) {
	p := NewTestTokenProvider()
	issued := time.Now().UTC().Add(-48 * time.Hour)
	p.now = func() time.Time { return issued }
	refresh, _, _, _ := p.IssueRefresh("u1", "fam", "+15550001111")
	access, _, _, _ := p.IssueAccess(AccessSubject{UserID: "u1", SessionID: "s1"})

	p.now = func() time.Time { return time.Now().UTC() }
	if _, err := p.ValidateRefresh(refresh); err != ErrInvalidToken {
		t.Errorf("expired refresh: want ErrInvalidToken, got %v", err)
	}
	if _, err := p.ValidateAccess(access); err != ErrInvalidToken {
		t.Errorf("expired access: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_WrongIssuerOrAudience(t *testing.T) {
	issuer := NewTestTokenProvider()
	other := NewTestTokenProvider()
	other.issuer = "someone-else"
	token, _, _, _ := other.IssueRefresh("u1", "fam", "")
	if _, err := issuer.ValidateRefresh(token); err != ErrInvalidToken {
		t.Errorf("wrong issuer: want ErrInvalidToken, got %v", err)
	}

	other = NewTestTokenProvider()
	other.audience = "another-api"
	token, _, _, _ = other.IssueRefresh("u1", "fam", "")
	if _, err := issuer.ValidateRefresh(token); err != ErrInvalidToken {
		t.Errorf("wrong audience: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_Tampered(t *testing.T) {
	p := NewTestTokenProvider()
	token, _, _, _ := p.IssueRefresh("u1", "fam", "")
	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	for _, tok := range []string{"", "invalid-token", tampered} {
		if _, err := p.ValidateRefresh(tok); err != ErrInvalidToken {
			t.Errorf("ValidateRefresh(%q): want ErrInvalidToken, got %v", tok, err)
		}
	}
}
