package entity

// BucketKey is a value object that identifies one token bucket in the store
type BucketKey struct {
	Prefix     string // Per-endpoint namespace (ex: "auth_login:")
	Operation  string // Guarded operation name (ex: "login")
	Identifier string // Per-request identifier (bearer token digest, client IP or "unknown")
}

// NewBucketKey creates a key for the given policy namespace and identifier
func NewBucketKey(prefix, operation, identifier string) BucketKey {
	return BucketKey{Prefix: prefix, Operation: operation, Identifier: identifier}
}

// String returns the representation used as the store key: prefix + operation + ":" + identifier
func (k BucketKey) String() string {
	return k.Prefix + k.Operation + ":" + k.Identifier
}

// IsValid validates the value object
func (k BucketKey) IsValid() bool {
	return k.Operation != "" && k.Identifier != ""
}
