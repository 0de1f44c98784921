package chat

import (
	"testing"

	"github.com/go-playground/assert/v2"

	gojwt "github.com/golang-jwt/jwt/v5"
)

func testToken(t *testing.T, userId Id, username string, isAdmin bool) string {
	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{
		"sub":      userId.String(),
		"username": username,
		"is_admin": isAdmin,
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func TestParseSessionClaims(t *testing.T) {
	userId := NewId()
	token := testToken(t, userId, "alice", true)

	claims, err := ParseSessionClaimsUnverified(token)
	assert.Equal(t, nil, err)
	assert.Equal(t, userId, claims.UserId)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, true, claims.IsAdmin)
}

func TestSetTokenPrefillsUser(t *testing.T) {
	userId := NewId()
	auth := NewAuthWithToken(testToken(t, userId, "alice", false))

	assert.Equal(t, true, auth.LoggedIn())
	assert.Equal(t, userId, auth.User().Id)
	assert.Equal(t, "alice", auth.User().Username)
}

func TestHandleSessionToken(t *testing.T) {
	auth := NewAuth()

	// no token held, adopt the socket-delivered one
	auth.HandleSessionToken(testToken(t, NewId(), "guest_7", false))
	assert.Equal(t, true, auth.LoggedIn())
	held := auth.Token()

	// a held token always wins
	auth.HandleSessionToken(testToken(t, NewId(), "guest_8", false))
	assert.Equal(t, held, auth.Token())
}

func TestLogout(t *testing.T) {
	auth := NewAuthWithToken(testToken(t, NewId(), "alice", false))
	auth.Logout()

	assert.Equal(t, false, auth.LoggedIn())
	assert.Equal(t, nil, auth.User())
	assert.Equal(t, "", auth.Token())
}

func TestTokenMonitor(t *testing.T) {
	auth := NewAuth()

	notify := auth.TokenMonitor().NotifyChannel()
	auth.SetToken(testToken(t, NewId(), "alice", false))

	select {
	case <-notify:
	default:
		t.Fatal("no token change notification")
	}
}
