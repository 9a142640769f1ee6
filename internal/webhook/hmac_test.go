package webhook

import (
	"strings"
	"testing"
)

func TestVerify(t *testing.T) {
	secret := []byte("test-secret-key")
	body := []byte(`{"ref":"refs/heads/prod","repository":{"name":"siteA"}}`)

	valid := Sign(secret, body)

	tests := []struct {
		name   string
		body   []byte
		header string
		secret []byte
		want   bool
	}{
		{
			name:   "valid signature",
			body:   body,
			header: valid,
			secret: secret,
			want:   true,
		},
		{
			name:   "tampered body",
			body:   []byte(`{"ref":"refs/heads/prod","repository":{"name":"siteB"}}`),
			header: valid,
			secret: secret,
			want:   false,
		},
		{
			name:   "wrong secret",
			body:   body,
			header: valid,
			secret: []byte("wrong-secret"),
			want:   false,
		},
		{
			name:   "empty header",
			body:   body,
			header: "",
			secret: secret,
			want:   false,
		},
		{
			name:   "plain hex without prefix",
			body:   body,
			header: strings.TrimPrefix(valid, SignaturePrefix),
			secret: secret,
			want:   false,
		},
		{
			name:   "sha1 scheme",
			body:   body,
			header: "sha1=" + strings.TrimPrefix(valid, SignaturePrefix),
			secret: secret,
			want:   false,
		},
		{
			name:   "uppercase hex",
			body:   body,
			header: SignaturePrefix + strings.ToUpper(strings.TrimPrefix(valid, SignaturePrefix)),
			secret: secret,
			want:   false,
		},
		{
			name:   "prefix only",
			body:   body,
			header: SignaturePrefix,
			secret: secret,
			want:   false,
		},
		{
			name:   "empty secret",
			body:   body,
			header: Sign(nil, body),
			secret: nil,
			want:   false,
		},
		{
			name:   "empty body signed correctly",
			body:   []byte{},
			header: Sign(secret, []byte{}),
			secret: secret,
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Verify(tt.secret, tt.body, tt.header); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestVerifySingleBitFlips flips every bit of the body, the secret and the
// supplied digest in turn; none of the variants may verify.
func TestVerifySingleBitFlips(t *testing.T) {
	secret := []byte("k3y")
	body := []byte(`{"ref":"refs/heads/main"}`)
	header := Sign(secret, body)

	if !Verify(secret, body, header) {
		t.Fatal("baseline signature should verify")
	}

	flip := func(b []byte, bit int) []byte {
		out := append([]byte(nil), b...)
		out[bit/8] ^= 1 << (bit % 8)
		return out
	}

	for bit := 0; bit < len(body)*8; bit++ {
		if Verify(secret, flip(body, bit), header) {
			t.Fatalf("body bit %d flipped but signature verified", bit)
		}
	}
	for bit := 0; bit < len(secret)*8; bit++ {
		if Verify(flip(secret, bit), body, header) {
			t.Fatalf("secret bit %d flipped but signature verified", bit)
		}
	}
	digest := []byte(strings.TrimPrefix(header, SignaturePrefix))
	for bit := 0; bit < len(digest)*8; bit++ {
		if Verify(secret, body, SignaturePrefix+string(flip(digest, bit))) {
			t.Fatalf("digest bit %d flipped but signature verified", bit)
		}
	}
}

func TestSign(t *testing.T) {
	// Known vector: HMAC-SHA256("key", "The quick brown fox jumps over the lazy dog").
	got := Sign([]byte("key"), []byte("The quick brown fox jumps over the lazy dog"))
	want := "sha256=f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8"
	if got != want {
		t.Errorf("Sign() = %v, want %v", got, want)
	}

	if got != Sign([]byte("key"), []byte("The quick brown fox jumps over the lazy dog")) {
		t.Error("signature should be deterministic")
	}
}
