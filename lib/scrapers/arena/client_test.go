package arena

import (
	"context"
	"testing"

	"skolarena/lib/testutil"

	"github.com/h2non/gock"
	"github.com/stretchr/testify/require"
)

func TestGetUser(t *testing.T) {
	c := newTestClient(t)

	gock.New(StartUrl).
		Get("/user").
		Reply(200).
		BodyString(testutil.LoadFixture(t, "arena-user.html"))

	user, err := c.GetUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Karin", user.FirstName)
	require.Equal(t, "Andersson", user.LastName)
}

func TestGetUserSessionExpired(t *testing.T) {
	c := newTestClient(t)
	c.setAuthenticated(true)

	gock.New(StartUrl).
		Get("/user").
		Reply(403).
		BodyString("Access denied")

	_, err := c.GetUser(context.Background())
	require.ErrorIs(t, err, ErrSessionExpired)
	require.False(t, c.Authenticated())
}

func TestGetChildren(t *testing.T) {
	c := newTestClient(t)

	gock.New(StartUrl).
		Reply(200).
		BodyString(testutil.LoadFixture(t, "arena-start.html"))

	children, err := c.GetChildren(context.Background())
	require.NoError(t, err)
	require.Len(t, children, 2)
	require.Equal(t, "Elsa Andersson", children[0].Name)
}

// a bounce to the idp's method chooser means the session lapsed, the
// local flag must flip false and the caller gets an explicit error
func TestGetChildrenSessionExpired(t *testing.T) {
	c := newTestClient(t)
	c.setAuthenticated(true)

	gock.New(StartUrl).
		Reply(302).
		SetHeader("Location", "https://idp1.alingsas.se/wa/chooseAuthmech?origin=arena")
	gock.New("https://idp1.alingsas.se").
		Get("/wa/chooseAuthmech").
		Reply(200).
		BodyString("<html><body>Välj inloggningsmetod</body></html>")

	_, err := c.GetChildren(context.Background())
	require.ErrorIs(t, err, ErrSessionExpired)
	require.False(t, c.Authenticated())
}

func TestGetChildrenCustodianMasquerade(t *testing.T) {
	c := newTestClient(t)

	gock.New(StartUrl).
		Reply(200).
		BodyString(`<html><body>
			<a href="/arena/guardian/masquerade-as-custodian">Visa som vårdnadshavare</a>
		</body></html>`)
	gock.New(StartUrl).
		Get(custodianPath).
		Reply(200).
		BodyString(testutil.LoadFixture(t, "arena-start.html"))

	children, err := c.GetChildren(context.Background())
	require.NoError(t, err)
	require.Len(t, children, 2)
}

func TestAuthenticateShortCircuit(t *testing.T) {
	c := newTestClient(t)

	gock.New(StartUrl).
		Reply(200).
		BodyString(testutil.LoadFixture(t, "arena-start.html"))

	checker, err := c.Authenticate(context.Background(), "190001011234")
	require.NoError(t, err)

	status, _ := checker.Status()
	require.Equal(t, StatusOK, status)
	require.True(t, c.Authenticated())
}
