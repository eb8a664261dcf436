package portal

import "golang.org/x/oauth2"

// pkce holds one verifier/challenge pair. The verifier is 32 random bytes in
// unpadded base64url and the challenge is the unpadded base64url SHA-256 of it.
type pkce struct {
	verifier  string
	challenge string
}

func newPKCE() pkce {
	verifier := oauth2.GenerateVerifier()
	return pkce{
		verifier:  verifier,
		challenge: oauth2.S256ChallengeFromVerifier(verifier),
	}
}
