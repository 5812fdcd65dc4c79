package model

// User is the authenticated principal as reported by the identity service.
// Records are replaced wholesale on every successful identity operation.
type User struct {
	ID                  string          `json:"id"`
	Email               string          `json:"email"`
	OrganizationName    string          `json:"organization_name,omitempty"`
	OnboardingCompleted bool            `json:"onboarding_completed"`
	Connections         map[string]bool `json:"connections,omitempty"` // provider -> connected
}

// Connected reports whether a third-party account for provider is linked.
func (u *User) Connected(provider string) bool {
	if u == nil {
		return false
	}
	return u.Connections[provider]
}

// Clone returns a deep copy so readers never share the connections map with the store.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Connections != nil {
		c.Connections = make(map[string]bool, len(u.Connections))
		for k, v := range u.Connections {
			c.Connections[k] = v
		}
	}
	return &c
}
