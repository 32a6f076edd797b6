package domain

import "testing"

func TestValidate(t *testing.T) {
	u := &User{}
	if err := u.Validate(); err == nil {
		t.Fatal("missing phone should fail")
	}
	u.PhoneNumber = "+15550001111"
	if err := u.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !u.HasRole(RoleUser) || u.HasRole(RoleAdmin) {
		t.Errorf("roles = %v, want default USER only", u.Roles)
	}
}
