package idp

// Wire types of the JSON responses. The field names are part of the
// contract with relying clients.

// redirectResponse carries the next URL for the browser to follow,
// from the authorize and login endpoints.
type redirectResponse struct {
	RedirectURL string `json:"redirectUrl"`
}

// logoutResponse lists the front-channel logout URLs the caller should
// load to end sessions at relying clients.
type logoutResponse struct {
	LogoutURLs []string `json:"logoutUrls"`
}

// userInfoResponse is the OIDC userinfo payload.
type userInfoResponse struct {
	Sub      string   `json:"sub"`
	Username string   `json:"username"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}
