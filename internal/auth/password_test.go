package auth

import "testing"

func TestHashAndCheckPassword(t *testing.T) {
	pwd := "s3cr3t-password"
	hash, err := HashPassword(pwd)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if !CheckPassword(hash, pwd) {
		t.Fatal("CheckPassword failed when password should match")
	}
	if CheckPassword(hash, "wrong") {
		t.Fatal("CheckPassword succeeded when it should have failed")
	}
}
