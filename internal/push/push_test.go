package push

import (
	"encoding/base64"
	"encoding/json"
	"testing"
)

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	// Public key is a base64url-encoded uncompressed P-256 point.
	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key length = %d, want 65", len(pubBytes))
	}

	if _, err := base64.RawURLEncoding.DecodeString(priv); err != nil {
		t.Fatalf("decode private key: %v", err)
	}

	// Two generations never collide.
	pub2, _, _ := GenerateVAPIDKeys()
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

func TestPayloadOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(Payload{Title: "Badge unlocked!", Body: "You earned \"First Steps\""})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	json.Unmarshal(data, &m)
	if _, ok := m["url"]; ok {
		t.Error("empty url serialized")
	}
	if _, ok := m["tag"]; ok {
		t.Error("empty tag serialized")
	}
}
