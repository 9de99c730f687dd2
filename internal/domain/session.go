package domain

// LoginMethod identifies how a session was authenticated.
type LoginMethod string

const (
	LoginMethodEmail    LoginMethod = "email"
	LoginMethodGoogle   LoginMethod = "google"
	LoginMethodMetaMask LoginMethod = "metamask"
)

// LoginStep is a state of the login sub-flow.
type LoginStep string

const (
	LoginStepInitial         LoginStep = "initial"
	LoginStepEmail           LoginStep = "email"
	LoginStepCode            LoginStep = "code"
	LoginStepMetaMaskPending LoginStep = "metamask-pending"
	LoginStepGooglePending   LoginStep = "google-pending"
)

// LoginFlowView is the externally visible part of an open login flow.
// Pending secrets never appear here.
type LoginFlowView struct {
	Open    bool      `json:"open"`
	Step    LoginStep `json:"step"`
	Email   string    `json:"email,omitempty"`
	Loading bool      `json:"loading"`
}

// SessionView is a consistent snapshot of the authentication state.
type SessionView struct {
	Ready         bool               `json:"ready"`
	Authenticated bool               `json:"authenticated"`
	User          *User              `json:"user"`
	Wallets       []WalletDescriptor `json:"wallets"`
	Flow          LoginFlowView      `json:"flow"`
	LoginError    string             `json:"loginError,omitempty"`
}

// Address returns the primary wallet address of the snapshot.
func (v SessionView) Address() string {
	if !v.Authenticated {
		return ""
	}
	return v.User.Address()
}
