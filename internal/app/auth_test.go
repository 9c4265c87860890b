package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/huahua9185/auto-study-advanced/internal/domain"
)

// fakeClassifier answers captcha challenges from a scripted list.
type fakeClassifier struct {
	mu    sync.Mutex
	codes []string
}

func (f *fakeClassifier) Classify(ctx context.Context, image []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.codes) == 0 {
		return "0000", nil
	}
	code := f.codes[0]
	if len(f.codes) > 1 {
		f.codes = f.codes[1:]
	}
	return code, nil
}

// fakePlatform is an httptest stand-in for the remote learning platform.
type fakePlatform struct {
	mu          sync.Mutex
	correctCode string
	badPassword bool
	logins      int32
}

func (p *fakePlatform) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(epIndex, func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "test-session"})
	})
	mux.HandleFunc(epCaptcha, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	})
	mux.HandleFunc(epLogin, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&p.logins, 1)
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")

		p.mu.Lock()
		correct := p.correctCode
		badPassword := p.badPassword
		p.mu.Unlock()

		if r.PostFormValue("verify_code") != correct {
			fmt.Fprint(w, `{"status":0,"message":"验证码错误"}`)
			return
		}
		if badPassword {
			fmt.Fprint(w, `{"status":0,"message":"用户名或密码错误"}`)
			return
		}
		fmt.Fprint(w, `{"status":1,"user_id":42,"system_uuid":"uuid-1","user":{"realname":"测试用户"}}`)
	})
	return mux
}

func newTestAuth(t *testing.T, platform *fakePlatform, classifier *fakeClassifier) (*AuthSessionManager, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(platform.handler())
	t.Cleanup(srv.Close)

	client := NewEduClient(zerolog.Nop(), srv.URL, "bootstrap-token", 5*time.Second)
	cred := domain.Credential{Username: "user", Password: "secret", CipherKey: testCipherKey}
	return NewAuthSessionManager(zerolog.Nop(), client, classifier, cred), srv
}

func TestAuthSessionManagerLogin(t *testing.T) {
	platform := &fakePlatform{correctCode: "1234"}
	auth, _ := newTestAuth(t, platform, &fakeClassifier{codes: []string{"1234"}})

	s, err := auth.Session(context.Background())
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if s.Token != "uuid-1" || s.UserID != 42 || !s.Valid {
		t.Fatalf("unexpected session: %+v", s)
	}
	if s.Realname != "测试用户" {
		t.Fatalf("realname = %q", s.Realname)
	}
	if auth.client.Token() != "uuid-1" {
		t.Fatalf("client token should switch to the server-issued uuid, got %q", auth.client.Token())
	}
}

func TestAuthSessionManagerCaptchaRetry(t *testing.T) {
	platform := &fakePlatform{correctCode: "9999"}
	// Two rejected answers, then the right one; implausible codes are
	// discarded without a login attempt.
	classifier := &fakeClassifier{codes: []string{"ab", "1111", "2222", "9999"}}
	auth, _ := newTestAuth(t, platform, classifier)

	s, err := auth.Session(context.Background())
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if !s.Valid {
		t.Fatalf("expected a valid session")
	}
	if n := atomic.LoadInt32(&platform.logins); n != 3 {
		t.Fatalf("login attempts = %d, want 3 (implausible code skips the POST)", n)
	}
}

func TestAuthSessionManagerCaptchaExhausted(t *testing.T) {
	platform := &fakePlatform{correctCode: "9999"}
	auth, _ := newTestAuth(t, platform, &fakeClassifier{codes: []string{"0000"}})
	auth.CaptchaAttempts = 3

	_, err := auth.Session(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Kind != AuthCaptchaRejected {
		t.Fatalf("want captcha_rejected, got %v", err)
	}
	if n := atomic.LoadInt32(&platform.logins); n != 3 {
		t.Fatalf("login attempts = %d, want exactly the attempt ceiling", n)
	}
}

func TestAuthSessionManagerInvalidCredentials(t *testing.T) {
	platform := &fakePlatform{correctCode: "1234", badPassword: true}
	auth, _ := newTestAuth(t, platform, &fakeClassifier{codes: []string{"1234"}})

	_, err := auth.Session(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Kind != AuthInvalidCredentials {
		t.Fatalf("want invalid_credentials, got %v", err)
	}
	if n := atomic.LoadInt32(&platform.logins); n != 1 {
		t.Fatalf("bad credentials must not trigger the captcha retry loop, got %d attempts", n)
	}
}

func TestAuthSessionManagerSerializesRenewal(t *testing.T) {
	platform := &fakePlatform{correctCode: "1234"}
	auth, _ := newTestAuth(t, platform, &fakeClassifier{codes: []string{"1234"}})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := auth.Session(context.Background()); err != nil {
				t.Errorf("Session: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&platform.logins); n != 1 {
		t.Fatalf("concurrent borrowers should share one renewal, got %d logins", n)
	}
}

func TestAuthSessionManagerInvalidate(t *testing.T) {
	platform := &fakePlatform{correctCode: "1234"}
	auth, _ := newTestAuth(t, platform, &fakeClassifier{codes: []string{"1234"}})

	s, err := auth.Session(context.Background())
	if err != nil {
		t.Fatalf("Session: %v", err)
	}

	// A stale token must not kill the current session.
	auth.Invalidate("some-old-token")
	if _, ok := auth.Current(); !ok {
		t.Fatalf("stale invalidation dropped a fresh session")
	}

	auth.Invalidate(s.Token)
	if _, ok := auth.Current(); ok {
		t.Fatalf("session should be invalid after matching invalidation")
	}
}

func TestAuthSessionManagerHonorsContext(t *testing.T) {
	platform := &fakePlatform{correctCode: "1234"}
	auth, _ := newTestAuth(t, platform, &fakeClassifier{codes: []string{"1234"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := auth.Session(ctx); err == nil {
		t.Fatalf("canceled context should abort the renewal wait")
	}
}
