package auth

import "testing"

func TestLoginRejectsWrongPassword(t *testing.T) {
	s := NewService("printer-1", []byte("secret"))
	s.SetPassword("correct-horse")

	if _, err := s.Login("wrong"); err == nil {
		t.Fatal("expected an error for a wrong password")
	}
}

func TestLoginIssuesValidatableTokens(t *testing.T) {
	s := NewService("printer-1", []byte("secret"))
	s.SetPassword("correct-horse")

	toks, err := s.Login("correct-horse")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if err := s.ValidateToken(toks.AccessToken); err != nil {
		t.Fatalf("ValidateToken rejected a fresh access token: %v", err)
	}
}

func TestRefreshTokenCannotBeUsedAsAccessToken(t *testing.T) {
	s := NewService("printer-1", []byte("secret"))
	s.SetPassword("correct-horse")

	toks, err := s.Login("correct-horse")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if err := s.ValidateToken(toks.RefreshToken); err == nil {
		t.Fatal("expected the refresh token to be rejected as an access token")
	}
}

func TestRefreshTokenMintsNewPair(t *testing.T) {
	s := NewService("printer-1", []byte("secret"))
	s.SetPassword("correct-horse")

	toks, err := s.Login("correct-horse")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	next, err := s.RefreshToken(toks.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshToken returned error: %v", err)
	}
	if err := s.ValidateToken(next.AccessToken); err != nil {
		t.Fatalf("ValidateToken rejected the refreshed access token: %v", err)
	}
}

func TestValidateTokenRejectsForeignSubject(t *testing.T) {
	a := NewService("printer-1", []byte("secret"))
	a.SetPassword("pw")
	b := NewService("printer-2", []byte("secret"))

	toks, err := a.Login("pw")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if err := b.ValidateToken(toks.AccessToken); err == nil {
		t.Fatal("expected a token minted for printer-1 to be rejected by printer-2's service")
	}
}
