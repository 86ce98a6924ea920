package config

import (
	"fmt"
	"os"
	"path"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Public  Public
	Private Private
}

type Public struct {
	HTTPAddr       string   `yaml:"http_addr" validate:"required"`
	PublicURL      string   `yaml:"public_url" validate:"required,url"`
	FrontendURL    string   `yaml:"frontend_url" validate:"required,url"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	SecureCookies  bool     `yaml:"secure_cookies"`

	// TrustProxyHeaders takes the client IP from X-Real-IP / X-Forwarded-For.
	// Enable only behind a reverse proxy that overwrites them.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	AccessTokenTTL        time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL       time.Duration `yaml:"refresh_token_ttl"`
	VerificationTokenTTL  time.Duration `yaml:"verification_token_ttl"`
	PasswordResetTokenTTL time.Duration `yaml:"password_reset_token_ttl"`
	RotateRefreshTokens   bool          `yaml:"rotate_refresh_tokens"`
	TokenGCInterval       time.Duration `yaml:"token_gc_interval"`

	BcryptCost   int           `yaml:"bcrypt_cost" validate:"omitempty,min=4,max=31"`
	OAuthTimeout time.Duration `yaml:"oauth_timeout"`
}

type Private struct {
	Pg     Pg     `yaml:"pg"`
	JwtKey string `yaml:"jwt_key" validate:"required"`
	Email  Email  `yaml:"email"`
	OAuth  OAuth  `yaml:"oauth"`
}

type Pg struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"required"`
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
	Dbname   string `yaml:"dbname" validate:"required"`
}

type Email struct {
	SMTPServer string `yaml:"smtp_server" validate:"required"`
	SMTPPort   int    `yaml:"smtp_port" validate:"required"`
	Username   string `yaml:"username" validate:"required"`
	Password   string `yaml:"password"`
	SenderName string `yaml:"sender_name"`
	Timeout    int    `yaml:"timeout"` // seconds
}

type OAuth struct {
	ClientID     string   `yaml:"client_id" validate:"required"`
	ClientSecret string   `yaml:"client_secret" validate:"required"`
	RedirectURL  string   `yaml:"redirect_url" validate:"required,url"`
	Scopes       []string `yaml:"scopes"`
	StateKey     string   `yaml:"state_key" validate:"required,min=16"`

	// Endpoint overrides, Google by default.
	AuthURL     string `yaml:"auth_url"`
	TokenURL    string `yaml:"token_url"`
	UserInfoURL string `yaml:"user_info_url"`
}

// Policy defaults applied when the yaml leaves a value unset.
const (
	DefaultAccessTokenTTL        = 15 * time.Minute
	DefaultRefreshTokenTTL       = 7 * 24 * time.Hour
	DefaultVerificationTokenTTL  = 24 * time.Hour
	DefaultPasswordResetTokenTTL = time.Hour
	DefaultTokenGCInterval       = time.Hour
	DefaultBcryptCost            = 12
	DefaultOAuthTimeout          = 10 * time.Second
)

func (s *Config) JwtKey() string {
	return s.Private.JwtKey
}

func (s *Config) JwtTTL() time.Duration {
	return s.Public.AccessTokenTTL
}

func (p *Public) applyDefaults() {
	setDuration(&p.AccessTokenTTL, DefaultAccessTokenTTL)
	setDuration(&p.RefreshTokenTTL, DefaultRefreshTokenTTL)
	setDuration(&p.VerificationTokenTTL, DefaultVerificationTokenTTL)
	setDuration(&p.PasswordResetTokenTTL, DefaultPasswordResetTokenTTL)
	setDuration(&p.TokenGCInterval, DefaultTokenGCInterval)
	setDuration(&p.OAuthTimeout, DefaultOAuthTimeout)
	if p.BcryptCost == 0 {
		p.BcryptCost = DefaultBcryptCost
	}
	if p.LogLevel == "" {
		p.LogLevel = "info"
	}
}

func (o *OAuth) applyDefaults() {
	if len(o.Scopes) == 0 {
		o.Scopes = []string{"openid", "email", "profile"}
	}
	if o.AuthURL == "" {
		o.AuthURL = "https://accounts.google.com/o/oauth2/auth"
	}
	if o.TokenURL == "" {
		o.TokenURL = "https://oauth2.googleapis.com/token"
	}
	if o.UserInfoURL == "" {
		o.UserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	}
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}

func loadPath(configPath string, output interface{}) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file does not exist: %s", configPath)
	}
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("can't read config file %s: %w", configPath, err)
	}
	if err := yaml.Unmarshal(configFile, output); err != nil {
		return fmt.Errorf("can't unmarshal config file %s: %w", configPath, err)
	}
	return nil
}

// Load reads public.yaml and private.yaml from configFolder, fills policy defaults and validates.
func Load(configFolder string) (*Config, error) {
	var cfg Config
	if err := loadPath(path.Join(configFolder, "public.yaml"), &cfg.Public); err != nil {
		return nil, err
	}
	if err := loadPath(path.Join(configFolder, "private.yaml"), &cfg.Private); err != nil {
		return nil, err
	}
	cfg.Public.applyDefaults()
	cfg.Private.OAuth.applyDefaults()

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func MustLoad(configFolder string) *Config {
	cfg, err := Load(configFolder)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}
