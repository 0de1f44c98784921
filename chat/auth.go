package chat

import (
	"sync"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// session claims carried in the bearer token.
// the token is never verified client side; the server did that.
type SessionClaims struct {
	UserId   Id
	Username string
	IsAdmin  bool
}

func ParseSessionClaimsUnverified(token string) (*SessionClaims, error) {
	parser := gojwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, gojwt.MapClaims{})
	if err != nil {
		return nil, err
	}

	claims := parsed.Claims.(gojwt.MapClaims)

	sessionClaims := &SessionClaims{}

	if sub, ok := claims["sub"]; ok {
		if subStr, ok := sub.(string); ok {
			if userId, err := ParseId(subStr); err == nil {
				sessionClaims.UserId = userId
			}
		}
	}
	if username, ok := claims["username"]; ok {
		if usernameStr, ok := username.(string); ok {
			sessionClaims.Username = usernameStr
		}
	}
	if isAdmin, ok := claims["is_admin"]; ok {
		if isAdminBool, ok := isAdmin.(bool); ok {
			sessionClaims.IsAdmin = isAdminBool
		}
	}

	return sessionClaims, nil
}

// Auth holds the bearer token and the local user profile for one session.
// acquisition and refresh happen over the rest surface; persistence is the
// caller's concern. token changes are announced on the monitor.
type Auth struct {
	mutex sync.Mutex

	token string
	user  *User

	tokenMonitor *Monitor
}

func NewAuth() *Auth {
	return &Auth{
		tokenMonitor: NewMonitor(),
	}
}

func NewAuthWithToken(token string) *Auth {
	auth := NewAuth()
	auth.SetToken(token)
	return auth
}

func (self *Auth) Token() string {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.token
}

func (self *Auth) SetToken(token string) {
	self.mutex.Lock()
	self.token = token
	if token != "" && self.user == nil {
		// prefill the profile from the claims until the server says more
		if claims, err := ParseSessionClaimsUnverified(token); err == nil {
			self.user = &User{
				Id:       claims.UserId,
				Username: claims.Username,
				IsAdmin:  claims.IsAdmin,
			}
		}
	}
	self.mutex.Unlock()

	self.tokenMonitor.NotifyAll()
}

// a token delivered on the socket, for guests that connected without one.
// a held token always wins.
func (self *Auth) HandleSessionToken(token string) {
	self.mutex.Lock()
	held := self.token
	self.mutex.Unlock()

	if held == "" && token != "" {
		self.SetToken(token)
	}
}

func (self *Auth) User() *User {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.user
}

func (self *Auth) SetUser(user *User) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.user = user
}

func (self *Auth) LoggedIn() bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.token != ""
}

func (self *Auth) Logout() {
	self.mutex.Lock()
	self.token = ""
	self.user = nil
	self.mutex.Unlock()

	self.tokenMonitor.NotifyAll()
}

func (self *Auth) TokenMonitor() *Monitor {
	return self.tokenMonitor
}
