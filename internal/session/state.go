package session

// Identity is the authenticated principal as reported by the auth service.
// Values are never built by the bridge and must be treated as read-only.
type Identity struct {
	Subject   string `json:"id"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Status summarizes a State.
type Status int

const (
	StatusLoading Status = iota
	StatusAuthenticated
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// State is a snapshot of the bridge's view of the session. An empty Mode
// means the auth provider is unknown.
type State struct {
	Loading  bool      `json:"loading"`
	Mode     string    `json:"mode,omitempty"`
	Identity *Identity `json:"identity,omitempty"`
}

// Status reports which of the three states s is in.
func (s State) Status() Status {
	switch {
	case s.Loading:
		return StatusLoading
	case s.Identity != nil:
		return StatusAuthenticated
	default:
		return StatusUnauthenticated
	}
}
