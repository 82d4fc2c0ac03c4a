package logging

import "testing"

func TestMaskFieldRedactsCredentials(t *testing.T) {
	attr := MaskField("token", "secret-bearer-token")
	if attr.Value.String() != RedactedValue {
		t.Fatalf("token not masked: %s", attr.Value.String())
	}
	attr = MaskField("token", "")
	if attr.Value.String() != "" {
		t.Fatalf("empty value should pass through unchanged")
	}
}

func TestMaskFieldAllowsVaultMetadata(t *testing.T) {
	for key, value := range map[string]string{
		"source":   "10.0.0.1",
		"method":   "vault_deposit",
		"addr":     "vlt1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq",
		"strategy": "strat1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq",
	} {
		attr := MaskField(key, value)
		if attr.Value.String() != value {
			t.Fatalf("allowlisted key %q was masked", key)
		}
	}
}
