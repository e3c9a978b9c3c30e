package domain

import "fmt"

// Credential is one API token and its position in the credential pool.
type Credential struct {
	// Index is the zero-based position of the credential in the pool.
	Index int
	// Token is the secret. It must never be logged.
	Token string
}

// String identifies the credential without revealing the token.
func (c Credential) String() string {
	return fmt.Sprintf("credential#%d", c.Index+1)
}

// IsZero returns true if the credential carries no token.
func (c Credential) IsZero() bool {
	return c.Token == ""
}
