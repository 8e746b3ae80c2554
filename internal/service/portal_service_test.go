package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/auth"
	"github.com/stemsi/exstem-portal/internal/backend"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/session"
)

type fakeAuthenticator struct {
	logouts []string
}

func (f *fakeAuthenticator) Login(ctx context.Context, email, password string) (*auth.Session, error) {
	if password != "secret" {
		return nil, backend.ErrInvalidCredentials
	}
	return auth.NewSession(signed(jwt.MapClaims{"sub": email}), "refresh-"+email), nil
}

func (f *fakeAuthenticator) Logout(ctx context.Context, sess *auth.Session) error {
	f.logouts = append(f.logouts, sess.RefreshToken())
	sess.Expire()
	return nil
}

func signed(claims jwt.MapClaims) string {
	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	return tok
}

type recordingFactory struct {
	slots []string
	auths []*auth.Session
}

func (f *recordingFactory) build(sess *auth.Session, slot string) *session.Controller {
	f.slots = append(f.slots, slot)
	f.auths = append(f.auths, sess)
	return session.New(session.Config{Duration: time.Minute, ReportSlot: slot}, session.Deps{Auth: sess, Log: zerolog.Nop()})
}

func newTestService() (*PortalService, *fakeAuthenticator, *recordingFactory) {
	authn := &fakeAuthenticator{}
	factory := &recordingFactory{}
	return NewPortalService(authn, factory.build, "examReport", zerolog.Nop()), authn, factory
}

func TestLogin(t *testing.T) {
	svc, _, _ := newTestService()

	if _, err := svc.Login(context.Background(), model.LoginRequest{Email: "a@x.io", Password: "nope"}); !errors.Is(err, backend.ErrInvalidCredentials) {
		t.Fatalf("Login() error = %v, want ErrInvalidCredentials", err)
	}

	res, err := svc.Login(context.Background(), model.LoginRequest{Email: "a@x.io", Password: "secret"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if res.Access == "" || res.Refresh != "refresh-a@x.io" {
		t.Fatalf("Login() = %+v", res)
	}
}

func TestResolve(t *testing.T) {
	expired := signed(jwt.MapClaims{"sub": "late", "exp": time.Now().Add(-time.Minute).Unix()})
	alice := signed(jwt.MapClaims{"sub": "alice"})
	bob := signed(jwt.MapClaims{"sub": "bob"})

	tests := []struct {
		name  string
		token string
		err   error
	}{
		{name: "empty token", token: "", err: auth.ErrAuthRequired},
		{name: "expired token", token: expired, err: auth.ErrAuthRequired},
		{name: "valid token", token: alice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestService()
			ctrl, err := svc.Resolve(tt.token, "")
			if !errors.Is(err, tt.err) {
				t.Fatalf("Resolve() error = %v, want %v", err, tt.err)
			}
			if tt.err == nil && ctrl == nil {
				t.Fatal("Resolve() returned nil controller")
			}
		})
	}

	t.Run("same token reuses controller", func(t *testing.T) {
		svc, _, factory := newTestService()
		first, _ := svc.Resolve(alice, "")
		second, _ := svc.Resolve(alice, "")
		if first != second || len(factory.slots) != 1 {
			t.Fatalf("controllers differ or rebuilt (%d builds)", len(factory.slots))
		}
		if factory.slots[0] != "examReport:alice" {
			t.Fatalf("report slot = %q", factory.slots[0])
		}
	})

	t.Run("idle controller is replaced for a new candidate", func(t *testing.T) {
		svc, _, factory := newTestService()
		first, _ := svc.Resolve(alice, "")
		second, err := svc.Resolve(bob, "")
		if err != nil {
			t.Fatalf("Resolve(bob) error = %v", err)
		}
		if first == second || len(factory.slots) != 2 || factory.slots[1] != "examReport:bob" {
			t.Fatalf("builds = %v", factory.slots)
		}
	})

	t.Run("expired session is rebuilt", func(t *testing.T) {
		svc, _, factory := newTestService()
		_, _ = svc.Resolve(alice, "")
		factory.auths[0].Expire()
		if _, err := svc.Resolve(alice, ""); err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if len(factory.slots) != 2 {
			t.Fatalf("builds = %d, want 2", len(factory.slots))
		}
	})
}

func TestLogout(t *testing.T) {
	svc, authn, factory := newTestService()
	alice := signed(jwt.MapClaims{"sub": "alice"})

	if _, err := svc.Resolve(alice, "r-alice"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if err := svc.Logout(context.Background(), alice, ""); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if len(authn.logouts) != 1 || authn.logouts[0] != "r-alice" {
		t.Fatalf("backend logouts = %v", authn.logouts)
	}
	if !factory.auths[0].Expired() {
		t.Fatal("portal session not expired")
	}

	// Logging out an unknown token still revokes it upstream.
	if err := svc.Logout(context.Background(), signed(jwt.MapClaims{"sub": "bob"}), "r-bob"); err != nil {
		t.Fatalf("Logout(bob) error = %v", err)
	}
	if len(authn.logouts) != 2 || authn.logouts[1] != "r-bob" {
		t.Fatalf("backend logouts = %v", authn.logouts)
	}
}

func TestShutdownIdle(t *testing.T) {
	svc, _, _ := newTestService()
	if err := svc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() with no session error = %v", err)
	}
	_, _ = svc.Resolve(signed(jwt.MapClaims{"sub": "alice"}), "")
	if err := svc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}
