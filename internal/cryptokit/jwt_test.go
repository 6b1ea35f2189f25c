package cryptokit

import (
	"strings"
	"testing"
	"time"
)

func TestNewTokenManager(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{name: "valid secret", secret: strings.Repeat("a", 32), wantErr: false},
		{name: "too short", secret: "short", wantErr: true},
		{name: "empty", secret: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, err := NewTokenManager(tt.secret, time.Hour)
			if tt.wantErr {
				if err == nil {
					t.Error("NewTokenManager() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewTokenManager() unexpected error = %v", err)
			}
			if mgr == nil {
				t.Fatal("NewTokenManager() returned nil manager")
			}
		})
	}
}

func TestMintAndVerify(t *testing.T) {
	mgr, err := NewTokenManager(strings.Repeat("a", 32), time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}

	token, err := mgr.Mint("user-1", "alice", true)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	claims, err := mgr.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.UserID != "user-1" || claims.Username != "alice" || !claims.IsAdmin {
		t.Errorf("Verify() claims = %+v, want user-1/alice/admin", claims)
	}
}

func TestVerify_Expired(t *testing.T) {
	mgr, err := NewTokenManager(strings.Repeat("a", 32), -time.Minute)
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}

	token, err := mgr.Mint("user-1", "alice", false)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	if _, err := mgr.Verify(token); err != ErrTokenExpired {
		t.Errorf("Verify() error = %v, want ErrTokenExpired", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	mgr1, _ := NewTokenManager(strings.Repeat("a", 32), time.Hour)
	mgr2, _ := NewTokenManager(strings.Repeat("b", 32), time.Hour)

	token, err := mgr1.Mint("user-1", "alice", false)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	if _, err := mgr2.Verify(token); err != ErrTokenInvalid {
		t.Errorf("Verify() error = %v, want ErrTokenInvalid", err)
	}
}

func TestVerify_Malformed(t *testing.T) {
	mgr, _ := NewTokenManager(strings.Repeat("a", 32), time.Hour)

	if _, err := mgr.Verify("not-a-jwt"); err != ErrTokenMalformed {
		t.Errorf("Verify() error = %v, want ErrTokenMalformed", err)
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if !VerifyPassword(hash, "correct horse battery staple") {
		t.Error("VerifyPassword() = false, want true for matching password")
	}
	if VerifyPassword(hash, "wrong password") {
		t.Error("VerifyPassword() = true, want false for mismatching password")
	}
}

func TestHashPassword_TooShort(t *testing.T) {
	if _, err := HashPassword("short"); err == nil {
		t.Error("HashPassword() expected error for short password, got nil")
	}
}

func TestCredentialEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewCredentialEncryptor(strings.Repeat("k", 32))
	if err != nil {
		t.Fatalf("NewCredentialEncryptor() error = %v", err)
	}

	ciphertext, err := enc.Encrypt("super-secret-plex-token")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if ciphertext == "super-secret-plex-token" {
		t.Error("Encrypt() returned plaintext unchanged")
	}

	plaintext, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if plaintext != "super-secret-plex-token" {
		t.Errorf("Decrypt() = %q, want %q", plaintext, "super-secret-plex-token")
	}
}

func TestCredentialEncryptor_TamperedCiphertextFails(t *testing.T) {
	enc, _ := NewCredentialEncryptor(strings.Repeat("k", 32))

	ciphertext, err := enc.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	tampered := []byte(ciphertext)
	tampered[len(tampered)-1] ^= 0x01

	if _, err := enc.Decrypt(string(tampered)); err != ErrDecryptionFailed {
		t.Errorf("Decrypt() error = %v, want ErrDecryptionFailed", err)
	}
}

func TestCredentialEncryptor_DifferentKeysDontCrossDecrypt(t *testing.T) {
	enc1, _ := NewCredentialEncryptor(strings.Repeat("k", 32))
	enc2, _ := NewCredentialEncryptor(strings.Repeat("z", 32))

	ciphertext, err := enc1.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if _, err := enc2.Decrypt(ciphertext); err != ErrDecryptionFailed {
		t.Errorf("Decrypt() error = %v, want ErrDecryptionFailed", err)
	}
}
