package knol

import "testing"

func TestNormalize(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"  學 \r\n", "學"},
		{"Apple", "Apple"},
		{"multi\r\nline", "multi\nline"},
		{"", ""},
	}
	for _, tc := range testCases {
		if got := Normalize(tc.input); got != tc.expected {
			t.Errorf("Normalize(%q) = %q, expected %q", tc.input, got, tc.expected)
		}
	}
}

func TestFold(t *testing.T) {
	if Fold("  Apple ") != Fold("apple") {
		t.Error("Expected folded keys to compare equal")
	}
}

func TestHash(t *testing.T) {
	t.Run("generates correct hash", func(t *testing.T) {
		// sha256("q\na\nc")
		expectedHash := "eb2456c1ee4f36305069dd0f63a30e92d5443129f5e8fd9a5ec490fbc4d4d8a2"
		if hash := Hash("q\na\nc"); hash != expectedHash {
			t.Errorf("Expected hash '%s', but got '%s'", expectedHash, hash)
		}
	})

	t.Run("hash is deterministic", func(t *testing.T) {
		if Hash(`{"cards":{}}`) != Hash(`{"cards":{}}`) {
			t.Error("Expected hashes for identical content to be the same")
		}
	})

	t.Run("different content has different hashes", func(t *testing.T) {
		if Hash("a") == Hash("b") {
			t.Error("Expected hashes for different content to be different")
		}
	})

	t.Run("missing content has no fingerprint", func(t *testing.T) {
		if Hash("") != "" {
			t.Error("Expected empty content to hash to the empty string")
		}
	})
}
