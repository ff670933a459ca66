package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/lattice-host/lattice-gateway/internal/account"
	"github.com/lattice-host/lattice-gateway/internal/apikey"
)

// Methods reported in Result.Method.
const (
	MethodSession = "session"
	MethodAPIKey  = "api_key"
)

// KeyLookup is the slice of the API key store the verifier needs.
type KeyLookup interface {
	GetByHash(ctx context.Context, hash string) (*apikey.Key, error)
	TouchLastUsed(ctx context.Context, id int) error
}

// UserLookup is the slice of the account store the verifier needs.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*account.User, error)
}

// Result is the uniform outcome of credential verification. It is
// computed once per request and is authoritative for every downstream
// stage.
type Result struct {
	Authorized bool
	Method     string // MethodSession or MethodAPIKey
	IsAdmin    bool   // master bypass or admin user
	ProjectID  int    // implicit tenant binding; 0 means none
	ServiceKey bool   // API key of type "service"
	UserID     int    // set on the session path
	Email      string // set on the session path

	// KeyRejected records that a bearer key was present but matched
	// nothing. Verification still falls through to the session path,
	// but the handler surfaces this so a bad key is never silently
	// mistaken for an absent one.
	KeyRejected bool
}

// Verifier resolves inbound requests to a caller identity.
type Verifier struct {
	adminSecret []byte
	sessions    *SessionManager
	keys        KeyLookup
	users       UserLookup
}

// NewVerifier creates a Verifier.
func NewVerifier(adminSecret string, sessions *SessionManager, keys KeyLookup, users UserLookup) *Verifier {
	return &Verifier{
		adminSecret: []byte(adminSecret),
		sessions:    sessions,
		keys:        keys,
		users:       users,
	}
}

// Verify determines whether and as whom the request is authorized.
// Priority order is fixed: master bypass, then bearer API key, then
// session cookie. A present-but-unknown API key falls through to the
// session path with KeyRejected set; a missing credential simply moves
// to the next method. A non-nil error means a credential store failed
// and nothing can be said about the caller; it is not a rejection and
// must not be reported as one.
func (v *Verifier) Verify(ctx context.Context, r *http.Request) (Result, error) {
	// Master bypass: full trust, no tenant binding. Reported as a
	// session so downstream stages treat it like an operator.
	if c, err := r.Cookie(AdminCookie); err == nil && c.Value != "" {
		if subtle.ConstantTimeCompare([]byte(c.Value), v.adminSecret) == 1 {
			return Result{Authorized: true, Method: MethodSession, IsAdmin: true}, nil
		}
	}

	var keyRejected bool

	// Bearer API key: hashed lookup, implicit tenant binding.
	if token := bearerToken(r); token != "" {
		key, err := v.keys.GetByHash(ctx, apikey.Hash(token))
		switch {
		case err == nil:
			go v.touchKey(key.ID)
			return Result{
				Authorized: true,
				Method:     MethodAPIKey,
				ProjectID:  key.ProjectID,
				ServiceKey: key.Type == apikey.TypeService,
			}, nil
		case errors.Is(err, apikey.ErrNotFound):
			// Unknown key: fall through to the session path rather
			// than failing hard, so one endpoint can serve both key-
			// and cookie-authenticated clients.
			keyRejected = true
		default:
			return Result{}, fmt.Errorf("auth: key lookup: %w", err)
		}
	}

	// Session cookie: signed token, user resolved by verified email.
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		return Result{KeyRejected: keyRejected}, nil
	}

	email, err := v.sessions.Validate(c.Value)
	if err != nil {
		return Result{KeyRejected: keyRejected}, nil
	}

	user, err := v.users.GetByEmail(ctx, email)
	if errors.Is(err, account.ErrNotFound) {
		return Result{KeyRejected: keyRejected}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("auth: user lookup: %w", err)
	}

	return Result{
		Authorized:  true,
		Method:      MethodSession,
		IsAdmin:     user.IsAdmin,
		UserID:      user.ID,
		Email:       user.Email,
		KeyRejected: keyRejected,
	}, nil
}

// touchKey records key usage without blocking the response. Failures
// are logged and swallowed.
func (v *Verifier) touchKey(id int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := v.keys.TouchLastUsed(ctx, id); err != nil {
		log.Printf("Warning: failed to record key usage: %v", err)
	}
}

// bearerToken extracts the Bearer token from the Authorization header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return h[len(prefix):]
	}
	return ""
}
