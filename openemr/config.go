package openemr

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	env "github.com/allisson/go-env"
	validation "github.com/jellydator/validation"
	"github.com/joho/godotenv"

	"github.com/openemr-ai/go-openemr-client/oauth2"
)

// Supported grant types.
const (
	GrantPassword          = "password"
	GrantClientCredentials = "client_credentials"
)

// Config holds everything needed to authenticate against an OpenEMR server.
type Config struct {
	// BaseURL is the root URL of the OpenEMR server, e.g. "https://emr.example.com".
	BaseURL string
	// ClientID and ClientSecret identify the registered OAuth2 client.
	// ClientSecret may be empty for public clients.
	ClientID     string
	ClientSecret string
	// Username and Password are the resource owner's credentials,
	// used by the password grant only.
	Username string
	Password string
	// Scope is the space-separated scope string to request.
	// Empty means DefaultScope.
	Scope string
	// Grant selects the grant type: GrantPassword (default) or
	// GrantClientCredentials.
	Grant string
	// Timeout bounds each request. Zero means the 30s default.
	Timeout time.Duration
}

// ConfigFromEnv loads configuration from OPENEMR_* environment variables,
// reading a .env file found by walking up from the working directory first.
func ConfigFromEnv() Config {
	loadDotEnv()

	return Config{
		BaseURL:      strings.TrimRight(env.GetString("OPENEMR_BASE_URL", "http://openemr:80"), "/"),
		ClientID:     env.GetString("OPENEMR_CLIENT_ID", ""),
		ClientSecret: env.GetString("OPENEMR_CLIENT_SECRET", ""),
		Username:     env.GetString("OPENEMR_USERNAME", "admin"),
		Password:     env.GetString("OPENEMR_PASSWORD", "pass"),
		Scope:        env.GetString("OPENEMR_SCOPE", DefaultScope),
		Grant:        env.GetString("OPENEMR_GRANT", GrantPassword),
		Timeout:      env.GetDuration("OPENEMR_TIMEOUT_SECONDS", 30, time.Second),
	}
}

// Validate checks that the configuration can produce a working client.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required, validation.By(validBaseURL)),
		validation.Field(&c.ClientID, validation.Required),
		validation.Field(&c.Grant, validation.In(GrantPassword, GrantClientCredentials)),
		validation.Field(&c.Username, validation.Required.When(c.grant() == GrantPassword)),
		validation.Field(&c.Password, validation.Required.When(c.grant() == GrantPassword)),
	)
}

// TokenSource returns the grant strategy the configuration selects, pointed
// at the server's token endpoint.
func (c Config) TokenSource() oauth2.TokenSource {
	tokenURL := strings.TrimRight(c.BaseURL, "/") + tokenPath
	scope := c.Scope
	if scope == "" {
		scope = DefaultScope
	}
	if c.grant() == GrantClientCredentials {
		return &oauth2.ClientCredentialsTokenSource{
			TokenURL:     tokenURL,
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			Scope:        scope,
		}
	}
	return &oauth2.PasswordTokenSource{
		TokenURL:     tokenURL,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Username:     c.Username,
		Password:     c.Password,
		Scope:        scope,
	}
}

func (c Config) grant() string {
	if c.Grant == "" {
		return GrantPassword
	}
	return c.Grant
}

func validBaseURL(value any) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return validation.NewError("validation_base_url", "must be an absolute URL")
	}
	return nil
}

// loadDotEnv searches for a .env file from the current directory up to the
// root and loads the first one found.
func loadDotEnv() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	dir := cwd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
}
