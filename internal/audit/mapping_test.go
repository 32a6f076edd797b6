package audit

import "testing"

func TestParseFullMethod(t *testing.T) {
	tests := []struct {
		method   string
		action   string
		resource string
	}{
		{"/otpauth.auth.v1.AuthService/RequestOtp", "request_otp", "auth"},
		{"/otpauth.auth.v1.AuthService/VerifyOtp", "verify_otp", "auth"},
		{"/otpauth.auth.v1.AuthService/Refresh", "refresh", "auth"},
		{"/otpauth.auth.v1.AuthService/Logout", "logout", "auth"},
		{"/otpauth.session.v1.SessionService/ListSessions", "list", "session"},
		{"/otpauth.session.v1.SessionService/RevokeSession", "revoke", "session"},
		{"/grpc.health.v1.Health/Check", "check", "health"},
		{"/NoDots/Ping", "ping", "unknown"},
		{"garbage", "unknown", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			ar := ParseFullMethod(tt.method)
			if ar.Action != tt.action || ar.Resource != tt.resource {
				t.Errorf("ParseFullMethod(%q) = %+v, want %s/%s", tt.method, ar, tt.action, tt.resource)
			}
		})
	}
}
