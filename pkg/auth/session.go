package auth

// Tags is a bitmask of session classification flags describing the
// connection a request arrived on.
type Tags uint32

const (
	// TagInternalClient marks the session as belonging to another member of
	// the cluster rather than an external client.
	TagInternalClient Tags = 1 << iota
)

// Session describes the authenticated state of the connection driving a
// request.
//
// Callers that process replies rather than requests have no live session and
// pass nil.
type Session interface {
	// Tags returns the session classification flags.
	Tags() Tags
	// IsAuthenticated returns whether the client has authenticated.
	IsAuthenticated() bool
	// IsLocalhostBypass returns whether the client is an unauthenticated
	// connection from the loopback interface permitted by the localhost
	// bypass.
	IsLocalhostBypass() bool
	// CanAdvanceClusterTime returns whether the client holds the privilege to
	// advance the cluster time directly, without a verifiable signature.
	CanAdvanceClusterTime() bool
}

// ClientSession is the standard Session implementation, built by the
// transport layer when a request arrives.
type ClientSession struct {
	SessionTags        Tags
	Authenticated      bool
	LocalhostBypass    bool
	AdvanceClusterTime bool
}

var _ Session = &ClientSession{}

func (s *ClientSession) Tags() Tags {
	return s.SessionTags
}

func (s *ClientSession) IsAuthenticated() bool {
	return s.Authenticated
}

func (s *ClientSession) IsLocalhostBypass() bool {
	return s.LocalhostBypass
}

func (s *ClientSession) CanAdvanceClusterTime() bool {
	return s.AdvanceClusterTime
}

// InternalSession returns a session for a trusted cluster member. Internal
// sessions are always authenticated and may advance the cluster time
// directly.
func InternalSession() *ClientSession {
	return &ClientSession{
		SessionTags:        TagInternalClient,
		Authenticated:      true,
		AdvanceClusterTime: true,
	}
}

// Manager holds the cluster-wide authentication settings.
type Manager struct {
	enabled bool
}

func NewManager(enabled bool) *Manager {
	return &Manager{
		enabled: enabled,
	}
}

// AuthEnabled returns whether authentication is enabled cluster-wide.
func (m *Manager) AuthEnabled() bool {
	return m.enabled
}
