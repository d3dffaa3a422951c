package domain

// PasswordContext carries principal attributes that a new password must not resemble.
type PasswordContext struct {
	Email      string
	FirstName  string
	LastName   string
	EmployeeID string
	Current    string
}

// PasswordContextFor builds the context for p.
func PasswordContextFor(p *Principal) PasswordContext {
	if p == nil {
		return PasswordContext{}
	}
	return PasswordContext{
		Email:      p.Email,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		EmployeeID: p.EmployeeID,
	}
}
