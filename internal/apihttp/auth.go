package apihttp

import (
	"net/http"
	"strings"

	"github.com/pospon/api/internal/xerrors"
)

// AuthResponse is the data payload for login and registration.
type AuthResponse struct {
	User   *User  `json:"user"`
	Tokens Tokens `json:"tokens"`
}

func (a *API) login(w http.ResponseWriter, r *http.Request) error {
	in := Validated(r.Context())
	email, _ := in["email"].(string)
	password, _ := in["password"].(string)
	rememberMe, _ := in["rememberMe"].(bool)

	u, ok := a.users.Authenticate(email, password)
	if !ok {
		return Unauthorized("Invalid email or password")
	}

	tokens, err := a.tokens.Issue(u, rememberMe)
	if err != nil {
		return xerrors.Wrapf(err, "issue tokens")
	}

	a.logger.Info(r.Context(), "user logged in", "user.id", u.ID)
	WriteSuccess(w, http.StatusOK, "Login successful", AuthResponse{User: u, Tokens: tokens})
	return nil
}

func (a *API) register(w http.ResponseWriter, r *http.Request) error {
	in := Validated(r.Context())
	email, _ := in["email"].(string)
	password, _ := in["password"].(string)
	firstName, _ := in["firstName"].(string)
	lastName, _ := in["lastName"].(string)

	u, err := a.users.Create(email, password, firstName, lastName)
	if err == ErrDuplicateEmail {
		return Conflict("Email already registered")
	}
	if err != nil {
		return xerrors.Wrapf(err, "create user")
	}

	tokens, err := a.tokens.Issue(u, false)
	if err != nil {
		return xerrors.Wrapf(err, "issue tokens")
	}

	a.logger.Info(r.Context(), "user registered", "user.id", u.ID)
	WriteSuccess(w, http.StatusCreated, "Registration successful", AuthResponse{User: u, Tokens: tokens})
	return nil
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) error {
	in := Validated(r.Context())
	token, _ := in["refreshToken"].(string)

	sub, _, err := a.tokens.Verify(token)
	if err != nil || sub == "" {
		return Unauthorized("Invalid or expired refresh token")
	}

	u, ok := a.users.LookupByID(sub)
	if !ok {
		return Unauthorized("Invalid or expired refresh token")
	}
	tokens, err := a.tokens.Issue(u, false)
	if err != nil {
		return xerrors.Wrapf(err, "issue tokens")
	}

	WriteSuccess(w, http.StatusOK, "Token refreshed", AuthResponse{User: u, Tokens: tokens})
	return nil
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) error {
	// Stateless JWTs have nothing to invalidate server-side; the client
	// discards its tokens.
	a.logger.Info(r.Context(), "user logged out")
	WriteSuccess(w, http.StatusOK, "Logout successful", nil)
	return nil
}

func (a *API) profile(w http.ResponseWriter, r *http.Request) error {
	u, err := a.authenticated(r)
	if err != nil {
		return err
	}
	type profileData struct {
		User *User `json:"user"`
	}
	WriteSuccess(w, http.StatusOK, "Profile retrieved successfully", profileData{User: u})
	return nil
}

// authenticated resolves the account behind the request's Bearer token.
func (a *API) authenticated(r *http.Request) (*User, error) {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return nil, Unauthorized("Authentication required")
	}
	_, email, err := a.tokens.Verify(token)
	if err != nil {
		return nil, Unauthorized("Invalid or expired token")
	}
	u, ok := a.users.Lookup(email)
	if !ok {
		return nil, Unauthorized("Invalid or expired token")
	}
	return u, nil
}
