package oauth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestRedactedToken(t *testing.T) {
	tok := NewRedactedToken("super-secret")

	if tok.Value() != "super-secret" {
		t.Errorf("Value() = %q", tok.Value())
	}
	for _, s := range []string{fmt.Sprint(tok), fmt.Sprintf("%v", tok), fmt.Sprintf("%#v", tok)} {
		if strings.Contains(s, "super-secret") {
			t.Errorf("formatted output leaked token: %s", s)
		}
	}

	data, err := json.Marshal(struct{ T RedactedToken }{tok})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "super-secret") {
		t.Errorf("JSON leaked token: %s", data)
	}

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("token", "value", tok)
	if strings.Contains(buf.String(), "super-secret") {
		t.Errorf("log leaked token: %s", buf.String())
	}

	if !NewRedactedToken("").IsEmpty() {
		t.Error("expected empty token")
	}
}
