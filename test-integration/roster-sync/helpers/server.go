package helpers

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/onsi/gomega"

	"github.com/acectf/roster-sync/internal/app"
	"github.com/acectf/roster-sync/internal/app/storage"
	"github.com/acectf/roster-sync/internal/config"
	"github.com/acectf/roster-sync/internal/roster/memstore"
	"github.com/acectf/roster-sync/internal/sso"
	"github.com/acectf/roster-sync/internal/webhook"
)

// Secrets shared between the harness and the server under test
const (
	JWTSecret     = "integration-identity-secret"
	WebhookSecret = "integration-webhook-secret"
	SessionSecret = "integration-session-secret"
)

// ServerTestHelper manages the roster-sync server lifecycle for testing
type ServerTestHelper struct {
	ctx     context.Context
	baseURL string
	client  *http.Client
	memory  *storage.MemoryFactory
	app     *app.RosterApp
}

// NewServerTestHelper builds a server on a free local port, talking to registrationURL
func NewServerTestHelper(ctx context.Context, dir, registrationURL string) (*ServerTestHelper, error) {
	port, err := freePort()
	if err != nil {
		return nil, err
	}

	secret := func(name, value string) (string, error) {
		path := filepath.Join(dir, name)
		return path, os.WriteFile(path, []byte(value), 0o600)
	}
	files := map[string]string{}
	for name, value := range map[string]string{
		"registration": AdminPassword,
		"webhook":      WebhookSecret,
		"jwt":          JWTSecret,
		"session":      SessionSecret,
	} {
		if files[name], err = secret(name, value); err != nil {
			return nil, fmt.Errorf("failed to write %s secret: %w", name, err)
		}
	}

	cfg := &config.Config{
		Registration: config.RegistrationConfig{
			BaseURL:           registrationURL,
			AdminEmail:        AdminEmail,
			AdminPasswordFile: files["registration"],
			Timeout:           "5s",
		},
		Sync: config.SyncConfig{
			// periodic passes stay out of the way; tests drive runs explicitly
			TeamInterval:   "1h",
			ScoreInterval:  "1h",
			WebhookTimeout: "5s",
		},
		Webhook: config.WebhookConfig{SecretFile: files["webhook"]},
		SSO: config.SSOConfig{
			JWTSecretFile:     files["jwt"],
			SessionSecretFile: files["session"],
			PublicURL:         fmt.Sprintf("http://127.0.0.1:%d", port),
		},
		Storage: config.StorageConfig{Type: config.StorageTypeMemory},
	}

	memory := storage.NewMemoryFactory()
	rosterApp, err := app.NewRosterApp(ctx,
		app.WithConfig(cfg),
		app.WithAddress(fmt.Sprintf("127.0.0.1:%d", port)),
		app.WithStorageFactory(memory),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build app: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &ServerTestHelper{
		ctx:     ctx,
		baseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		client: &http.Client{
			Timeout: 10 * time.Second,
			Jar:     jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		memory: memory,
		app:    rosterApp,
	}, nil
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to find a free port: %w", err)
	}
	defer func() {
		_ = l.Close()
	}()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// StartServer starts the server in the background
func (s *ServerTestHelper) StartServer() {
	go func() {
		if err := s.app.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Server start failed: %v\n", err)
		}
	}()
}

// StopServer gracefully stops the server
func (s *ServerTestHelper) StopServer() error {
	return s.app.Stop(5 * time.Second)
}

// WaitForServerReady waits for /readiness to answer 200
func (s *ServerTestHelper) WaitForServerReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		resp, err := s.client.Get(s.baseURL + "/readiness")
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return nil
	}, timeout, 100*time.Millisecond).Should(gomega.Succeed(), "Server should be ready")
}

// Store is the local roster the server writes to
func (s *ServerTestHelper) Store() *memstore.Store {
	return s.memory.Store()
}

// Get performs a GET with the session cookie, if any
func (s *ServerTestHelper) Get(path string) (*http.Response, error) {
	return s.client.Get(s.baseURL + path)
}

// Post performs a POST with the session cookie, if any
func (s *ServerTestHelper) Post(path, contentType string, body []byte, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", contentType)
	return s.client.Do(req)
}

// SendWebhook posts a signed notification
func (s *ServerTestHelper) SendWebhook(body string) (*http.Response, error) {
	header := http.Header{}
	header.Set(webhook.SignatureHeader, webhook.Sign([]byte(WebhookSecret), []byte(body)))
	return s.Post("/webhooks/registration", "application/json", []byte(body), header)
}

// IdentityToken signs a registration identity token for email
func IdentityToken(id, email string, admin bool) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, sso.IdentityClaims{
		ID:      id,
		Email:   email,
		IsAdmin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(JWTSecret))
}

// Login exchanges an identity token for a session; the cookie is kept for later calls
func (s *ServerTestHelper) Login(id, email string, admin bool) (*http.Response, error) {
	token, err := IdentityToken(id, email, admin)
	if err != nil {
		return nil, err
	}
	body := fmt.Sprintf(`{"token":%q}`, token)
	return s.Post("/sso/authenticate", "application/json", []byte(body), nil)
}

// LoginWithForm submits the identity token the way the registration frontend's form does
func (s *ServerTestHelper) LoginWithForm(id, email string) (*http.Response, error) {
	token, err := IdentityToken(id, email, false)
	if err != nil {
		return nil, err
	}
	form := "token=" + token + "&email=" + strings.ReplaceAll(email, "@", "%40")
	return s.Post("/sso/authenticate", "application/x-www-form-urlencoded", []byte(form), nil)
}
