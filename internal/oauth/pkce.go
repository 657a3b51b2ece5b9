package oauth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/oauth2"
)

// PKCECodes holds the verification codes for the OAuth2 PKCE (Proof Key for Code Exchange) flow.
type PKCECodes struct {
	// CodeVerifier is the high-entropy secret kept by the client until the token request.
	CodeVerifier string
	// CodeChallenge is the base64url SHA256 of the verifier, sent with the authorization request.
	CodeChallenge string
}

// GeneratePKCECodes creates a fresh verifier and its S256 challenge (RFC 7636).
func GeneratePKCECodes() *PKCECodes {
	verifier := oauth2.GenerateVerifier()
	return &PKCECodes{
		CodeVerifier:  verifier,
		CodeChallenge: oauth2.S256ChallengeFromVerifier(verifier),
	}
}

// GenerateRandomState generates a cryptographically secure random state parameter
// for correlating the redirect callback with the request that caused it.
func GenerateRandomState() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
