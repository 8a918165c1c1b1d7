package security

import (
	"strings"
	"testing"
)

// FuzzValidateSessionID tests session ID validation with fuzzed inputs.
// Run with: go test -fuzz=FuzzValidateSessionID -fuzztime=60s ./internal/security/
func FuzzValidateSessionID(f *testing.F) {
	seeds := []string{
		"sess_deadbeef",
		"sess_00000000",
		"sess_ffffffff",

		"",
		"deadbeef",
		"sess_",
		"sess_dead",
		"sess_deadbeef00",
		"sess_DEADBEEF",
		"sess_<script>",
		"sess_../../etc",
		"sess_\x00\x00\x00\x00",
		"session-日本語",
		"sess_émoji🎉",
	}

	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, sessionID string) {
		// Should never panic
		result := ValidateSessionID(sessionID)

		if len(sessionID) == 0 && result == "" {
			t.Error("empty session ID should return error message")
		}

		if result == "" {
			if len(sessionID) != sessionIDLength {
				t.Errorf("accepted session ID with wrong length: %q (len=%d)", sessionID, len(sessionID))
			}
			if !strings.HasPrefix(sessionID, "sess_") {
				t.Errorf("accepted session ID without sess_ prefix: %q", sessionID)
			}
		}
	})
}

// FuzzGenerateSessionID ensures generated session IDs pass validation.
func FuzzGenerateSessionID(f *testing.F) {
	f.Add(0) // Dummy seed

	f.Fuzz(func(t *testing.T, _ int) {
		id, err := GenerateSessionID()
		if err != nil {
			t.Fatalf("GenerateSessionID failed: %v", err)
		}

		if validationErr := ValidateSessionID(id); validationErr != "" {
			t.Errorf("Generated session ID failed validation: id=%q, error=%q", id, validationErr)
		}

		if len(id) != sessionIDLength {
			t.Errorf("Generated session ID has unexpected length: %d (expected %d)", len(id), sessionIDLength)
		}
	})
}
