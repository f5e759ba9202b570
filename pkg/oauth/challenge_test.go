package oauth

import (
	"net/http"
	"testing"
)

func TestParseWWWAuthenticate(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    Challenge
		wantErr bool
	}{
		{name: "simple bearer", header: "Bearer", want: Challenge{Scheme: "Bearer"}},
		{
			name:   "bearer with realm and scope",
			header: `Bearer realm="api", scope="openid profile"`,
			want:   Challenge{Scheme: "Bearer", Realm: "api", Scope: "openid profile"},
		},
		{
			name:   "bearer with error",
			header: `Bearer error="invalid_token", error_description="The token has expired"`,
			want:   Challenge{Scheme: "Bearer", Error: "invalid_token", ErrorDescription: "The token has expired"},
		},
		{name: "empty", header: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWWWAuthenticate(tt.header)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if *got != tt.want {
				t.Errorf("got %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestChallengeFromResponse(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusUnauthorized, Header: http.Header{}}
	resp.Header.Set("WWW-Authenticate", `Bearer error="invalid_token"`)

	c := ChallengeFromResponse(resp)
	if !c.InvalidToken() {
		t.Errorf("expected invalid_token challenge, got %+v", c)
	}

	resp.StatusCode = http.StatusForbidden
	if ChallengeFromResponse(resp) != nil {
		t.Error("expected nil challenge for non-401 response")
	}

	var nilChallenge *Challenge
	if nilChallenge.InvalidToken() {
		t.Error("nil challenge must not report invalid token")
	}
}
