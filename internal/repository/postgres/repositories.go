package postgres

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Principals  *PrincipalRepository
	Revocations *RevocationRepository
}

// NewRepositories wires all repositories backed by the provided executor.
func NewRepositories(exec pgExecutor) *Repositories {
	return &Repositories{
		Principals:  NewPrincipalRepository(exec),
		Revocations: NewRevocationRepository(exec),
	}
}
