package transport

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-msgauth/dkim"
)

func TestDKIMSigner_SignVerifies(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	path := filepath.Join(t.TempDir(), "dkim.pem")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		t.Fatalf("writing key: %v", err)
	}

	signer, err := LoadDKIMSigner(path, "acme.test", "mail")
	if err != nil {
		t.Fatalf("LoadDKIMSigner() error = %v", err)
	}

	raw, err := buildMessage(testMessage("ada@example.com"), "<id@acme.test>", time.Now())
	if err != nil {
		t.Fatalf("buildMessage() error = %v", err)
	}
	signed, err := signer.Sign(raw)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if !strings.HasPrefix(string(signed), "DKIM-Signature:") {
		t.Fatalf("signed message does not start with DKIM-Signature header")
	}

	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshaling public key: %v", err)
	}
	record := "v=DKIM1; k=rsa; p=" + base64.StdEncoding.EncodeToString(pub)

	verifications, err := dkim.VerifyWithOptions(bytes.NewReader(signed), &dkim.VerifyOptions{
		LookupTXT: func(domain string) ([]string, error) {
			if domain != "mail._domainkey.acme.test" {
				t.Errorf("lookup domain = %q", domain)
			}
			return []string{record}, nil
		},
	})
	if err != nil {
		t.Fatalf("VerifyWithOptions() error = %v", err)
	}
	if len(verifications) != 1 || verifications[0].Err != nil {
		t.Fatalf("verification failed: %+v", verifications)
	}
}

func TestLoadDKIMSigner_InvalidKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pem")
	os.WriteFile(path, []byte("not a key"), 0o600)

	if _, err := LoadDKIMSigner(path, "acme.test", "mail"); err == nil {
		t.Error("expected error for invalid key file")
	}
}
