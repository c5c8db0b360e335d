package webhook

import "testing"

// TestVerifySignature tests that a correctly signed body verifies and any
// mutation of body, signature, or secret fails.
func TestVerifySignature(t *testing.T) {
	body := []byte(`{"action":"opened"}`)
	secret := "hook-secret"
	header := Sign(body, secret)

	if !VerifySignature(body, header, secret) {
		t.Fatalf("expected valid signature to verify")
	}
	if VerifySignature([]byte(`{"action":"closed"}`), header, secret) {
		t.Fatalf("expected mutated body to fail")
	}
	if VerifySignature(body, header, "wrong-secret") {
		t.Fatalf("expected wrong secret to fail")
	}
	if VerifySignature(body, header[:len(header)-2]+"00", secret) {
		t.Fatalf("expected mutated signature to fail")
	}
}

// TestVerifySignatureMalformedHeader tests prefix and hex validation.
func TestVerifySignatureMalformedHeader(t *testing.T) {
	body := []byte(`{}`)
	secret := "hook-secret"

	if VerifySignature(body, "", secret) {
		t.Fatalf("expected empty header to fail")
	}
	if VerifySignature(body, "sha1=abcdef", secret) {
		t.Fatalf("expected wrong prefix to fail")
	}
	if VerifySignature(body, "sha256=not-hex", secret) {
		t.Fatalf("expected bad hex to fail")
	}
}

// TestVerifySignatureEmptySecret tests that an empty secret never verifies,
// even against a signature computed with an empty secret.
func TestVerifySignatureEmptySecret(t *testing.T) {
	body := []byte(`{}`)
	if VerifySignature(body, Sign(body, ""), "") {
		t.Fatalf("expected empty secret to never verify")
	}
}
