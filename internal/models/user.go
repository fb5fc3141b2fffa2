package models

// User is the identity derived from the identity provider's userinfo
// response and token role claims. In bypass mode it is a fixed development
// identity instead.
type User struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Roles     []string `json:"roles"`
}

// HasRole reports whether the user carries the given realm or client role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
