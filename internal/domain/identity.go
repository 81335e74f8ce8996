package domain

// Identity is the authenticated user as resolved from the session provider.
// It is read-only to the portal.
type Identity struct {
	UserID      string `json:"id"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	DisplayName string `json:"name"`
	Username    string `json:"username,omitempty"`
}

// DefaultDisplayName is shown when the user never set a name.
const DefaultDisplayName = "Investor"

// Initial returns the upper-cased first letter of the display name, or "U".
func (i Identity) Initial() string {
	for _, r := range i.DisplayName {
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		return string(r)
	}
	return "U"
}
