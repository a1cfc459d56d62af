package auth

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func newTestGateway(cfg *fakeConfig) (*Gateway, *time.Time) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tokens := NewMemoryTokenStore(time.Hour)
	tokens.now = func() time.Time { return current }
	throttle := NewLoginThrottle(3, 5*time.Minute)
	throttle.now = func() time.Time { return current }
	verifier := NewCredentialVerifier(cfg, bcrypt.MinCost)

	return NewGateway(cfg, tokens, throttle, verifier), &current
}

func hashedPassword(t *testing.T, plaintext string) string {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hashed)
}

func TestLoginHappyPath(t *testing.T) {
	cfg := &fakeConfig{initialized: true, password: hashedPassword(t, "secret")}
	g, _ := newTestGateway(cfg)

	token, err := g.Login("secret", "1.2.3.4")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token == "" {
		t.Fatal("Login returned an empty token")
	}
	if _, err := g.Authorize(token); err != nil {
		t.Errorf("Authorize with a fresh token: %v", err)
	}
}

func TestLoginNotInitialized(t *testing.T) {
	g, _ := newTestGateway(&fakeConfig{})
	if _, err := g.Login("secret", "1.2.3.4"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Login = %v, want ErrNotInitialized", err)
	}
}

func TestLoginAuthDisabled(t *testing.T) {
	g, _ := newTestGateway(&fakeConfig{initialized: true})
	if _, err := g.Login("secret", "1.2.3.4"); !errors.Is(err, ErrAuthDisabled) {
		t.Errorf("Login = %v, want ErrAuthDisabled", err)
	}
}

func TestLoginWrongPasswordThenThrottle(t *testing.T) {
	cfg := &fakeConfig{initialized: true, password: hashedPassword(t, "secret")}
	g, _ := newTestGateway(cfg)

	for i := 0; i < 3; i++ {
		if _, err := g.Login("wrong", "1.2.3.4"); !errors.Is(err, ErrInvalidCredential) {
			t.Fatalf("attempt %d = %v, want ErrInvalidCredential", i+1, err)
		}
	}

	// Limit reached: even the correct password is rejected now.
	if _, err := g.Login("secret", "1.2.3.4"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("login past the limit = %v, want ErrRateLimited", err)
	}

	// Another address is unaffected.
	if _, err := g.Login("secret", "5.6.7.8"); err != nil {
		t.Errorf("login from a clean address: %v", err)
	}
}

func TestLoginSuccessClearsFailures(t *testing.T) {
	cfg := &fakeConfig{initialized: true, password: hashedPassword(t, "secret")}
	g, _ := newTestGateway(cfg)

	// Two failures, then a success, then the counter must be reset.
	g.Login("wrong", "1.2.3.4")
	g.Login("wrong", "1.2.3.4")
	if _, err := g.Login("secret", "1.2.3.4"); err != nil {
		t.Fatalf("login under the limit: %v", err)
	}

	g.Login("wrong", "1.2.3.4")
	g.Login("wrong", "1.2.3.4")
	if _, err := g.Login("secret", "1.2.3.4"); err != nil {
		t.Errorf("failure counter was not reset by the successful login: %v", err)
	}
}

func TestLoginNearLimitThenSuccessResetsWindow(t *testing.T) {
	cfg := &fakeConfig{initialized: true, password: hashedPassword(t, "correctpw")}

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tokens := NewMemoryTokenStore(time.Hour)
	tokens.now = func() time.Time { return current }
	throttle := NewLoginThrottle(10, 300*time.Second)
	throttle.now = func() time.Time { return current }
	g := NewGateway(cfg, tokens, throttle, NewCredentialVerifier(cfg, bcrypt.MinCost))

	// Nine failures leave one attempt of headroom.
	for i := 0; i < 9; i++ {
		if _, err := g.Login("wrongpw", "10.1.1.1"); !errors.Is(err, ErrInvalidCredential) {
			t.Fatalf("failure %d = %v", i+1, err)
		}
	}
	token, err := g.Login("correctpw", "10.1.1.1")
	if err != nil {
		t.Fatalf("tenth attempt with the right password: %v", err)
	}
	if token == "" {
		t.Fatal("no token issued")
	}

	// History cleared: ten fresh failures fit before the limit bites again.
	for i := 0; i < 10; i++ {
		if _, err := g.Login("wrongpw", "10.1.1.1"); !errors.Is(err, ErrInvalidCredential) {
			t.Fatalf("post-success failure %d = %v", i+1, err)
		}
	}
	if _, err := g.Login("correctpw", "10.1.1.1"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("eleventh attempt = %v, want ErrRateLimited", err)
	}

	// Once the window has elapsed the address is clean again.
	current = current.Add(301 * time.Second)
	if _, err := g.Login("correctpw", "10.1.1.1"); err != nil {
		t.Errorf("login after the window elapsed: %v", err)
	}
}

func TestLoginMigratesPlaintext(t *testing.T) {
	cfg := &fakeConfig{initialized: true, password: "secret"}
	g, _ := newTestGateway(cfg)

	if _, err := g.Login("secret", "1.2.3.4"); err != nil {
		t.Fatalf("Login against plaintext credential: %v", err)
	}
	if !IsHashed(cfg.password) {
		t.Errorf("stored credential was not migrated to a hash: %q", cfg.password)
	}

	// The same password must keep working against the migrated hash.
	if _, err := g.Login("secret", "1.2.3.4"); err != nil {
		t.Errorf("login after migration: %v", err)
	}
}

func TestAuthorize(t *testing.T) {
	cfg := &fakeConfig{initialized: true, password: hashedPassword(t, "secret")}
	g, now := newTestGateway(cfg)

	if _, err := g.Authorize(""); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Authorize(\"\") = %v, want ErrUnauthenticated", err)
	}
	if _, err := g.Authorize("bogus"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Authorize(bogus) = %v, want ErrInvalidToken", err)
	}

	token, _ := g.Login("secret", "1.2.3.4")
	principal, err := g.Authorize(token)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if principal != Principal {
		t.Errorf("principal = %q, want %q", principal, Principal)
	}

	*now = now.Add(2 * time.Hour)
	if _, err := g.Authorize(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Authorize with an expired token = %v, want ErrInvalidToken", err)
	}
}

func TestAuthorizeDisabledAcceptsEmptyToken(t *testing.T) {
	g, _ := newTestGateway(&fakeConfig{initialized: true})

	principal, err := g.Authorize("")
	if err != nil {
		t.Fatalf("Authorize with auth disabled: %v", err)
	}
	if principal != Principal {
		t.Errorf("principal = %q, want %q", principal, Principal)
	}
}

func TestLogout(t *testing.T) {
	cfg := &fakeConfig{initialized: true, password: hashedPassword(t, "secret")}
	g, _ := newTestGateway(cfg)

	token, _ := g.Login("secret", "1.2.3.4")
	g.Logout(token)
	if _, err := g.Authorize(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Authorize after logout = %v, want ErrInvalidToken", err)
	}

	// Logging out twice is fine.
	g.Logout(token)
}

func TestChangePasswordRevokesOtherSessions(t *testing.T) {
	cfg := &fakeConfig{initialized: true, password: hashedPassword(t, "old")}
	g, _ := newTestGateway(cfg)

	mine, _ := g.Login("old", "1.2.3.4")
	other, _ := g.Login("old", "5.6.7.8")

	if err := g.ChangePassword(mine, "old", "new"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if _, err := g.Authorize(mine); err != nil {
		t.Errorf("the session that changed the password was revoked: %v", err)
	}
	if _, err := g.Authorize(other); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("other session survived the password change: %v", err)
	}
	if _, err := g.Login("new", "1.2.3.4"); err != nil {
		t.Errorf("login with the new password: %v", err)
	}
	if _, err := g.Login("old", "5.6.7.8"); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("login with the old password = %v, want ErrInvalidCredential", err)
	}
}

func TestChangePasswordRejectsWrongCurrent(t *testing.T) {
	cfg := &fakeConfig{initialized: true, password: hashedPassword(t, "old")}
	g, _ := newTestGateway(cfg)

	token, _ := g.Login("old", "1.2.3.4")
	if err := g.ChangePassword(token, "nope", "new"); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("ChangePassword with wrong current = %v, want ErrInvalidCredential", err)
	}
}

func TestChangePasswordRejectsSamePassword(t *testing.T) {
	cfg := &fakeConfig{initialized: true, password: hashedPassword(t, "old")}
	g, _ := newTestGateway(cfg)

	token, _ := g.Login("old", "1.2.3.4")
	if err := g.ChangePassword(token, "old", "old"); err == nil {
		t.Error("ChangePassword accepted an unchanged password")
	}
}

func TestSetup(t *testing.T) {
	cfg := &fakeConfig{}
	g, _ := newTestGateway(cfg)

	token, err := g.Setup("secret")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if !cfg.initialized {
		t.Error("Setup did not mark the panel initialized")
	}
	if !IsHashed(cfg.password) {
		t.Errorf("Setup stored a non-hashed credential: %q", cfg.password)
	}
	if _, err := g.Authorize(token); err != nil {
		t.Errorf("Authorize with the setup token: %v", err)
	}

	if _, err := g.Setup("again"); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second Setup = %v, want ErrAlreadyInitialized", err)
	}
}

func TestSetupWithoutPasswordDisablesAuth(t *testing.T) {
	cfg := &fakeConfig{}
	g, _ := newTestGateway(cfg)

	token, err := g.Setup("")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if token != "" {
		t.Errorf("Setup without a password issued a token: %q", token)
	}
	if g.AuthRequired() {
		t.Error("AuthRequired after passwordless setup")
	}
	if _, err := g.Authorize(""); err != nil {
		t.Errorf("Authorize with auth disabled: %v", err)
	}
}
