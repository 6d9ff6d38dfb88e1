package port

// CredentialResolver seals and opens instance API credentials.
// Open failures surface as DecryptionError at the deployment boundary.
type CredentialResolver interface {
	// Seal encrypts a plaintext API key for storage.
	Seal(plaintext string) (string, error)

	// Open decrypts a stored API key.
	Open(ciphertext string) (string, error)
}
