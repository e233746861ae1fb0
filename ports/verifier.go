package ports

// SignatureVerifier checks wallet signatures for one or more key schemes
type SignatureVerifier interface {
	// ParseIdentity validates the identity format and returns its canonical
	// form, or core.ErrMalformedIdentity.
	ParseIdentity(identity string) (string, error)
	// Verify reports whether signature over message was produced by the key
	// behind identity. Malformed identities or signatures return an error
	// instead of false.
	Verify(identity string, message, signature []byte) (bool, error)
}
