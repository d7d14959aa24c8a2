// Package main implements roster-sso-test, a CLI tool that walks the session bridge of a
// running roster-sync server: it checks that the admin API rejects anonymous callers,
// signs a registration identity token, exchanges it for a local session and retries.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/acectf/roster-sync/internal/config"
	"github.com/acectf/roster-sync/internal/sso"
)

var (
	serverURL string
	jwtSecret string
	email     string
	admin     bool
	verbose   bool
)

const statusPath = "/admin/registration-sync/status"

type ssoResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		ID    int64  `json:"id"`
		Email string `json:"email"`
	} `json:"data"`
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "roster-sso-test",
		Short: "Test the SSO session bridge of a roster-sync server",
		Long: `A CLI tool for testing the session bridge and admin authorization of a roster-sync server.
It signs an identity token the way the registration service does and follows it through.`,
		RunE: runSSOTest,
	}

	rootCmd.Flags().StringVar(&serverURL, "server-url", "", "roster-sync URL (env: ROSTER_SYNC_URL)")
	rootCmd.Flags().StringVar(&jwtSecret, "jwt-secret", "", "Identity token secret (env: "+config.EnvJWTSecret+")")
	rootCmd.Flags().StringVar(&email, "email", "admin@ace-ctf.local", "Email carried by the identity token")
	rootCmd.Flags().BoolVar(&admin, "admin", true, "Set the isAdmin claim")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show step-by-step output")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSSOTest(_ *cobra.Command, _ []string) error {
	if err := initializeConfig(); err != nil {
		return err
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	base := strings.TrimSuffix(serverURL, "/")

	// Step 1-2: anonymous request must be refused with an RFC 6750 challenge
	wwwAuth, err := testUnauthenticatedRequest(client, base+statusPath)
	if err != nil {
		return err
	}
	logStep(2, "Parsing WWW-Authenticate header...")
	code, err := parseWWWAuthenticate(wwwAuth)
	if err != nil {
		return fmt.Errorf("failed to parse WWW-Authenticate header: %w", err)
	}
	logVerbose("  error: %s", code)

	// Step 3
	logStep(3, "Signing identity token...")
	token, err := signIdentityToken()
	if err != nil {
		return fmt.Errorf("failed to sign identity token: %w", err)
	}

	// Step 4
	session, err := exchangeToken(client, base+"/sso/authenticate", token)
	if err != nil {
		return err
	}

	// Step 5
	if err := testAuthenticatedRequest(client, base+statusPath, session); err != nil {
		return err
	}

	fmt.Println("\nSuccess! Session bridge and admin authorization validated.")
	return nil
}

// initializeConfig loads configuration from flags and environment variables
func initializeConfig() error {
	if serverURL == "" {
		serverURL = os.Getenv("ROSTER_SYNC_URL")
	}
	if jwtSecret == "" {
		jwtSecret = os.Getenv(config.EnvJWTSecret)
	}

	if serverURL == "" {
		return fmt.Errorf("server-url is required (set via --server-url or ROSTER_SYNC_URL)")
	}
	if jwtSecret == "" {
		return fmt.Errorf("jwt-secret is required (set via --jwt-secret or %s)", config.EnvJWTSecret)
	}
	return nil
}

// testUnauthenticatedRequest makes an anonymous request and returns the WWW-Authenticate header
func testUnauthenticatedRequest(client *http.Client, target string) (string, error) {
	logStep(1, "Testing unauthenticated request...")

	resp, err := client.Get(target)
	if err != nil {
		return "", fmt.Errorf("failed to make unauthenticated request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		return "", fmt.Errorf("expected 401 Unauthorized, got %d %s", resp.StatusCode, resp.Status)
	}

	wwwAuth := resp.Header.Get("WWW-Authenticate")
	if wwwAuth == "" {
		return "", fmt.Errorf("missing WWW-Authenticate header in 401 response")
	}

	logVerbose("  GET %s -> %d %s", statusPath, resp.StatusCode, http.StatusText(resp.StatusCode))
	logVerbose("  WWW-Authenticate: %s", wwwAuth)
	return wwwAuth, nil
}

func parseWWWAuthenticate(header string) (string, error) {
	// Format: Bearer realm="...", error="...", error_description="..."
	re := regexp.MustCompile(`error="([^"]+)"`)
	matches := re.FindStringSubmatch(header)
	if len(matches) < 2 {
		return "", fmt.Errorf("error not found in WWW-Authenticate header")
	}
	return matches[1], nil
}

func signIdentityToken() (string, error) {
	now := time.Now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, sso.IdentityClaims{
		ID:      "sso-test-" + uuid.NewString()[:8],
		Email:   email,
		IsAdmin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		},
	}).SignedString([]byte(jwtSecret))
}

// exchangeToken posts the identity token and returns the session cookie value
func exchangeToken(client *http.Client, target, token string) (string, error) {
	logStep(4, "Exchanging identity token for a session...")

	body := fmt.Sprintf(`{"token":%q,"email":%q}`, token, email)
	resp, err := client.Post(target, "application/json", strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to call session bridge: %w", err)
	}
	defer resp.Body.Close()

	var out ssoResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode session bridge response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !out.Success {
		return "", fmt.Errorf("session bridge refused token: %d %s", resp.StatusCode, out.Message)
	}
	logVerbose("  local user %d (%s)", out.Data.ID, out.Data.Email)

	for _, c := range resp.Cookies() {
		if c.Name == sso.CookieName {
			logVerbose("  session expires %s", c.Expires.Format(time.RFC3339))
			return c.Value, nil
		}
	}
	return "", fmt.Errorf("no %s cookie in session bridge response", sso.CookieName)
}

// testAuthenticatedRequest retries the admin call with the session
func testAuthenticatedRequest(client *http.Client, target, session string) error {
	logStep(5, "Retrying with the session...")

	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create authenticated request: %w", err)
	}
	req.AddCookie(&http.Cookie{Name: sso.CookieName, Value: session})

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make authenticated request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("expected 200 OK, got %d %s: %s", resp.StatusCode, resp.Status, string(body))
	}

	logVerbose("  GET %s -> %d %s", statusPath, resp.StatusCode, http.StatusText(resp.StatusCode))
	logVerbose("  %s", strings.TrimSpace(string(body)))
	return nil
}

func logStep(step int, message string) {
	if verbose {
		fmt.Printf("Step %d: %s\n", step, message)
	}
}

func logVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Printf(format+"\n", args...)
	}
}
