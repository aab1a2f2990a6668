package crypto

import (
	"os"
	"testing"
)

func TestGenerateKeypair(t *testing.T) {
	priv, pub, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair error: %v", err)
	}
	if len(priv) != 64 {
		t.Errorf("private key length = %d, want 64", len(priv))
	}
	if len(pub) != 32 {
		t.Errorf("public key length = %d, want 32", len(pub))
	}
}

func TestPrivateKeyPEMRoundtrip(t *testing.T) {
	priv, _, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}

	pem, err := PrivateKeyToPEM(priv, nil)
	if err != nil {
		t.Fatalf("PrivateKeyToPEM error: %v", err)
	}

	loaded, err := LoadPrivateKey(pem, nil)
	if err != nil {
		t.Fatalf("LoadPrivateKey error: %v", err)
	}

	if !priv.Equal(loaded) {
		t.Error("loaded key does not match original")
	}
}

func TestPrivateKeyPEMWithPassphrase(t *testing.T) {
	priv, _, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	passphrase := []byte("test-passphrase")

	pem, err := PrivateKeyToPEM(priv, passphrase)
	if err != nil {
		t.Fatalf("PrivateKeyToPEM with passphrase error: %v", err)
	}

	// Should fail without passphrase
	_, err = LoadPrivateKey(pem, nil)
	if err == nil {
		t.Fatal("expected error loading encrypted key without passphrase")
	}

	// Should succeed with passphrase
	loaded, err := LoadPrivateKey(pem, passphrase)
	if err != nil {
		t.Fatalf("LoadPrivateKey with passphrase error: %v", err)
	}
	if !priv.Equal(loaded) {
		t.Error("loaded key does not match original")
	}
}

func TestPrivateKeyPEMFromEnv(t *testing.T) {
	priv, _, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	passphrase := []byte("env-test")

	pem, err := PrivateKeyToPEM(priv, passphrase)
	if err != nil {
		t.Fatal(err)
	}

	os.Setenv(PassphraseEnv, "env-test")
	defer os.Unsetenv(PassphraseEnv)

	loaded, err := LoadPrivateKey(pem, nil)
	if err != nil {
		t.Fatalf("LoadPrivateKey from env error: %v", err)
	}
	if !priv.Equal(loaded) {
		t.Error("loaded key does not match original")
	}
}

