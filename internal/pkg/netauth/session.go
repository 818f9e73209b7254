package netauth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/jake-scott/netatmo-cli/internal/pkg/logging"
)

const (
	// DefaultTokenURL is the Netatmo OAuth2 token endpoint
	DefaultTokenURL = "https://api.netatmo.com/oauth2/token"

	// DefaultScope covers station reads and thermostat control
	DefaultScope = "read_station read_thermostat write_thermostat"

	// Tokens are treated as expired this long before their stated
	// lifetime ends, to absorb clock skew and in-flight latency
	defaultSafetyMargin = time.Second * 30

	defaultAuthTimeout = time.Second * 15
)

// Credentials are the developer-app and account secrets used for the
// password grant.  They are immutable for the process lifetime.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

// AuthError indicates that the auth endpoint rejected our credentials, or
// that an API request remained unauthorized after a forced token refresh.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (%s): %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Session owns the access/refresh token pair for one Netatmo account and
// hands out a valid bearer token on demand, refreshing transparently.
//
// Login and refresh are mutually exclusive: concurrent callers that each
// observe an expired token share a single in-flight exchange via
// singleflight rather than stampeding the auth endpoint.
type Session struct {
	creds    Credentials
	tokenURL string
	scope    string
	margin   time.Duration
	client   *http.Client
	fileName string

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiry       time.Time

	group singleflight.Group
}

// NewSession returns a session with no token; the first Token() call
// performs a password-grant login.
func NewSession(creds Credentials) *Session {
	return &Session{
		creds:    creds,
		tokenURL: DefaultTokenURL,
		scope:    DefaultScope,
		margin:   defaultSafetyMargin,
		client:   &http.Client{Timeout: defaultAuthTimeout},
	}
}

func (s *Session) WithTokenURL(u string) *Session {
	s.tokenURL = u
	return s
}

func (s *Session) WithScope(scope string) *Session {
	s.scope = scope
	return s
}

func (s *Session) WithSafetyMargin(d time.Duration) *Session {
	s.margin = d
	return s
}

func (s *Session) WithTimeout(d time.Duration) *Session {
	s.client = &http.Client{Timeout: d}
	return s
}

// WithTokenFile enables token persistence across invocations.  An existing
// token file is loaded immediately; a missing or unreadable one just means
// we start from a fresh login.
func (s *Session) WithTokenFile(fileName string) *Session {
	s.fileName = fileName
	if err := s.load(fileName); err != nil {
		logging.Logger().WithError(err).Debug("no usable token file, starting clean")
	}
	return s
}

// Token returns a currently-valid bearer token, performing a refresh or
// initial login if the cached token is missing or past the safety margin.
func (s *Session) Token(ctx context.Context) (string, error) {
	if tok, ok := s.cachedToken(); ok {
		return tok, nil
	}

	v, err, _ := s.group.Do("token", func() (interface{}, error) {
		// A sibling caller may have finished an exchange between our
		// cache check and joining the group
		if tok, ok := s.cachedToken(); ok {
			return tok, nil
		}
		return s.obtain(ctx)
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

// Invalidate discards the cached access token so that the next Token()
// call performs a real refresh or login.  The API gateway calls this when
// a request fails authorization despite a seemingly-valid token.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.accessToken = ""
	s.expiry = time.Time{}
	s.mu.Unlock()
}

func (s *Session) cachedToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken != "" && time.Now().Add(s.margin).Before(s.expiry) {
		return s.accessToken, true
	}
	return "", false
}

// obtain exchanges the refresh token for a new triple, falling back to the
// password grant when there is no refresh token or the server has revoked
// it.  Runs inside the singleflight group.
func (s *Session) obtain(ctx context.Context) (interface{}, error) {
	s.mu.Lock()
	refreshToken := s.refreshToken
	s.mu.Unlock()

	var tok *oauth2.Token
	var err error

	if refreshToken != "" {
		logging.Logger().Debug("refreshing access token")
		tok, err = s.refresh(ctx, refreshToken)
		if err != nil {
			if !isRejection(err) {
				return nil, errors.Wrap(err, "refreshing access token")
			}
			logging.Logger().WithError(err).Debug("refresh token rejected, falling back to password grant")
			refreshToken = ""
		}
	}

	if refreshToken == "" && tok == nil {
		logging.Logger().Debug("logging in with password grant")
		tok, err = s.login(ctx)
		if err != nil {
			if isRejection(err) {
				s.Discard()
				return nil, &AuthError{Op: "login", Err: err}
			}
			return nil, errors.Wrap(err, "logging in")
		}
	}

	s.store(tok)
	return tok.AccessToken, nil
}

func (s *Session) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.creds.ClientID,
		ClientSecret: s.creds.ClientSecret,
		Scopes:       []string{s.scope},
		Endpoint: oauth2.Endpoint{
			TokenURL: s.tokenURL,
			// Netatmo wants client credentials in the POST body
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (s *Session) authContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.client)
}

func (s *Session) login(ctx context.Context) (*oauth2.Token, error) {
	return s.oauthConfig().PasswordCredentialsToken(s.authContext(ctx), s.creds.Username, s.creds.Password)
}

func (s *Session) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ts := s.oauthConfig().TokenSource(s.authContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	return ts.Token()
}

// isRejection tells a credential rejection from a transport or server
// fault; only the former warrants fallback or a fatal AuthError
func isRejection(err error) bool {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return false
	}

	switch re.Response.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

// store atomically replaces the token triple.  No caller ever observes an
// old access token paired with a new refresh token or vice versa.
func (s *Session) store(tok *oauth2.Token) {
	s.mu.Lock()
	s.accessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		s.refreshToken = tok.RefreshToken
	}
	s.expiry = tok.Expiry
	s.mu.Unlock()

	if err := s.save(); err != nil {
		logging.Logger().WithError(err).Warn("saving session tokens")
	}
}

// Discard drops the whole token triple and persists the cleared state so a
// subsequent invocation starts from a fresh login.  Runs on login rejection
// and is called by the API gateway when a request fails authorization even
// after a forced refresh.
func (s *Session) Discard() {
	s.mu.Lock()
	s.accessToken = ""
	s.refreshToken = ""
	s.expiry = time.Time{}
	s.mu.Unlock()

	if err := s.save(); err != nil {
		logging.Logger().WithError(err).Warn("clearing session tokens")
	}
}
