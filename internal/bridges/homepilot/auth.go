package homepilot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// errorCodeWrongPassword is the bridge error code returned by the salt
// endpoint when the password check fails.
const errorCodeWrongPassword = 5007

// ProbeResult is the outcome of probing a bridge.
type ProbeResult string

// Probe outcomes.
const (
	// ProbeOK means the bridge answered and has authentication disabled.
	ProbeOK ProbeResult = "ok"

	// ProbeAuthRequired means the bridge answered and wants a password.
	ProbeAuthRequired ProbeResult = "auth_required"

	// ProbeError means the bridge could not be reached or is not a HomePilot.
	ProbeError ProbeResult = "error"
)

// saltResponse is the body of POST /authentication/password_salt.
type saltResponse struct {
	ErrorCode    int    `json:"error_code"`
	PasswordSalt string `json:"password_salt"`
}

// loginRequest is the body of POST /authentication/login.
type loginRequest struct {
	Password     string `json:"password"`
	PasswordSalt string `json:"password_salt"`
}

// Probe checks whether host is a reachable HomePilot bridge and whether
// it requires a password. It never returns an error; every failure maps
// to ProbeError.
//
// A bridge without authentication answers the salt endpoint with 500.
func Probe(ctx context.Context, httpClient *http.Client, host string) ProbeResult {
	c, err := NewClient(ClientOptions{Host: host, HTTPClient: httpClient})
	if err != nil {
		return ProbeError
	}

	root, err := c.send(ctx, http.MethodGet, pathRoot, nil, nil)
	if err != nil || root.status != http.StatusOK {
		return ProbeError
	}

	salt, err := c.send(ctx, http.MethodPost, pathPasswordSalt, nil, nil)
	if err != nil {
		return ProbeError
	}
	if salt.status == http.StatusInternalServerError {
		return ProbeOK
	}
	return ProbeAuthRequired
}

// HashPassword computes the login hash the bridge expects:
// hex(sha256(salt + hex(sha256(password)))).
func HashPassword(password, salt string) string {
	inner := sha256.Sum256([]byte(password))
	outer := sha256.Sum256([]byte(salt + hex.EncodeToString(inner[:])))
	return hex.EncodeToString(outer[:])
}

// Login establishes a new session, replacing any existing one.
// Concurrent calls share a single login round trip.
//
// Returns:
//   - error: ErrAuth when the password is rejected, ErrCannotConnect otherwise
func (c *Client) Login(ctx context.Context) error {
	return c.runLogin(ctx, true)
}

// login performs the salt and login exchange and stores the session.
func (c *Client) login(ctx context.Context) error {
	password := c.currentPassword()

	saltResp, err := c.send(ctx, http.MethodPost, pathPasswordSalt, nil, nil)
	if err != nil {
		return err
	}

	var salt saltResponse
	decodeErr := json.Unmarshal(saltResp.body, &salt)

	if saltResp.status == http.StatusInternalServerError && decodeErr == nil && salt.ErrorCode == errorCodeWrongPassword {
		return fmt.Errorf("%w: bridge rejected password (error_code %d)", ErrAuth, salt.ErrorCode)
	}
	if saltResp.status != http.StatusOK {
		return fmt.Errorf("%w: password salt returned %d", ErrCannotConnect, saltResp.status)
	}
	if decodeErr != nil {
		return invalidResponse(pathPasswordSalt, decodeErr)
	}
	if salt.ErrorCode != 0 {
		return fmt.Errorf("%w: password salt error_code %d", ErrCannotConnect, salt.ErrorCode)
	}

	loginResp, err := c.send(ctx, http.MethodPost, pathLogin, loginRequest{
		Password:     HashPassword(password, salt.PasswordSalt),
		PasswordSalt: salt.PasswordSalt,
	}, nil)
	if err != nil {
		return err
	}
	if loginResp.status != http.StatusOK {
		return fmt.Errorf("%w: login returned %d", ErrAuth, loginResp.status)
	}

	sess := &session{
		cookies:     mergeCookies(saltResp.cookies, loginResp.cookies),
		established: time.Now(),
	}

	c.mu.Lock()
	// A password change during login invalidates the result.
	if c.password == password {
		c.session = sess
	}
	c.mu.Unlock()

	c.loginCount.Add(1)
	c.logInfo("logged in to bridge", "url", c.baseURL, "cookies", len(sess.cookies))
	return nil
}

// mergeCookies combines cookie sets, later sets overriding earlier ones
// by name.
func mergeCookies(sets ...[]*http.Cookie) []*http.Cookie {
	index := make(map[string]int)
	var merged []*http.Cookie
	for _, set := range sets {
		for _, ck := range set {
			if i, ok := index[ck.Name]; ok {
				merged[i] = ck
				continue
			}
			index[ck.Name] = len(merged)
			merged = append(merged, ck)
		}
	}
	return merged
}
