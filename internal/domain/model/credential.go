package model

import "time"

// Credential is one issued API credential. The plaintext presented key is
// never stored; KeyHash is the keyed digest used for lookup and KeyPrefix
// lets operators recognize a key without exposing it.
type Credential struct {
	ID         string
	Owner      string
	Label      string
	KeyPrefix  string
	KeyHash    string
	CreatedAt  time.Time
	LastUsedAt *time.Time
	Active     bool
}

// CredentialInfo is the non-secret view returned by validation.
type CredentialInfo struct {
	ID         string
	Owner      string
	Label      string
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// Info returns the non-secret view of the credential.
func (c Credential) Info() CredentialInfo {
	return CredentialInfo{
		ID:         c.ID,
		Owner:      c.Owner,
		Label:      c.Label,
		CreatedAt:  c.CreatedAt,
		LastUsedAt: c.LastUsedAt,
	}
}

// SecondarySecretNotice is attached to every response that discloses a
// secondary secret.
const SecondarySecretNotice = "store the key and secret now: the secret cannot be retrieved again"

// IssuedCredential carries the plaintext key material of a newly minted
// credential. It is the only value that ever holds the plaintext pair.
type IssuedCredential struct {
	Credential      Credential
	Key             string
	SecondarySecret string
	Notice          string
}

// RotatedCredential is the result of a rotation: the replacement's plaintext
// pair plus enough of the retired key to let the caller correlate it.
type RotatedCredential struct {
	RetiredKeyPrefix string
	Issued           IssuedCredential
}
