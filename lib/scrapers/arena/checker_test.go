package arena

import (
	"context"
	"net/http/cookiejar"
	"testing"
	"time"

	"skolarena/lib/telemetry"
	"skolarena/lib/testutil"

	"github.com/h2non/gock"
	"github.com/stretchr/testify/require"
)

const (
	testIdpBase  = "https://idp.example.com"
	testPollPath = "/mg-local/auth/ccp11/grp/other/ssn"
	testPollUrl  = testIdpBase + testPollPath + "?collect=1&sessionid=abc123"
	testLoginUrl = testIdpBase + testPollPath + "?sessionid=abc123"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	t.Cleanup(telemetry.SetupForTesting(t, "test:scrapers/arena"))

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	c := NewClient(jar)
	testutil.Intercept(t, c.http)
	return c
}

func mockPoll(body string) {
	gock.New(testIdpBase).
		Get(testPollPath).
		MatchParam("collect", "1").
		Reply(200).
		BodyString(body)
}

func mockLoginExchange() {
	gock.New(testIdpBase).
		Get(testPollPath).
		MatchParam("sessionid", "abc123").
		Reply(200).
		BodyString(`
			<form action="https://idp.example.com/wa/auth/saml/">
				<input name="SAMLResponse" value="c2FtbDE=" />
			</form>`)

	gock.New(testIdpBase).
		Post("/wa/auth/saml/").
		Reply(200).
		BodyString(`
			<form action="/sso/posttarget">
				<input name="dummy" value="tok" />
			</form>`)

	gock.New(testIdpBase).
		Post("/sso/posttarget").
		Reply(200).
		BodyString(`
			<form action="https://idp.example.com/saml/sso">
				<input name="SAMLResponse" value="c2FtbDI=" />
				<input name="RelayState" value="rs1" />
			</form>`)

	gock.New(testIdpBase).
		Post("/saml/sso").
		Reply(200).
		BodyString(`
			<form action="https://arena.example.com/Shibboleth.sso/SAML2/POST">
				<input name="SAMLResponse" value="c2FtbDM=" />
				<input name="RelayState" value="rs2" />
			</form>`)

	gock.New("https://arena.example.com").
		Post("/Shibboleth.sso/SAML2/POST").
		Reply(200).
		BodyString(`<html><body>startsida</body></html>`)
}

func TestCheckerConfirmedAfterPending(t *testing.T) {
	c := newTestClient(t)

	mockPoll(`{"response":{"status":"pending"}}`)
	mockPoll(`{"response":{"status":"complete"}}`)
	mockLoginExchange()

	checker := newStatusCheckerWithInterval(c, testPollUrl, testLoginUrl, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, checker.Wait(ctx))

	status, reason := checker.Status()
	require.Equal(t, StatusOK, status)
	require.NoError(t, reason)
	require.True(t, c.Authenticated())
}

func TestCheckerErrorCode(t *testing.T) {
	c := newTestClient(t)

	mockPoll(`{"errorCode":"GRP_FAULT","response":{}}`)

	checker := newStatusCheckerWithInterval(c, testPollUrl, testLoginUrl, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Error(t, checker.Wait(ctx))

	status, reason := checker.Status()
	require.Equal(t, StatusError, status)
	require.Error(t, reason)
	require.False(t, c.Authenticated())
}

func TestCheckerTicketFailed(t *testing.T) {
	c := newTestClient(t)

	mockPoll(`{"response":"failed"}`)

	checker := newStatusCheckerWithInterval(c, testPollUrl, testLoginUrl, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Error(t, checker.Wait(ctx))
}

// an exception during the final saml exchange must surface as the
// error state, never as an unhandled failure
func TestCheckerBrokenExchangeBecomesError(t *testing.T) {
	c := newTestClient(t)

	mockPoll(`{"response":{"status":"complete"}}`)
	gock.New(testIdpBase).
		Get(testPollPath).
		MatchParam("sessionid", "abc123").
		Reply(200).
		BodyString(`<html><body>ingen form här</body></html>`)

	checker := newStatusCheckerWithInterval(c, testPollUrl, testLoginUrl, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Error(t, checker.Wait(ctx))

	status, _ := checker.Status()
	require.Equal(t, StatusError, status)
	require.False(t, c.Authenticated())
}

func TestCheckerCancelSuppressesPolls(t *testing.T) {
	c := newTestClient(t)

	gock.New(testIdpBase).
		Get(testPollPath).
		MatchParam("collect", "1").
		Persist().
		Reply(200).
		BodyString(`{"response":{"status":"pending"}}`)

	checker := newStatusCheckerWithInterval(c, testPollUrl, testLoginUrl, 20*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	checker.Cancel()

	time.Sleep(100 * time.Millisecond)

	status, _ := checker.Status()
	require.Equal(t, StatusPending, status)

	select {
	case <-checker.Done():
		t.Fatal("done channel closed after cancellation")
	default:
	}
}

func TestResolvedChecker(t *testing.T) {
	checker := newResolvedChecker(StatusOK)

	status, reason := checker.Status()
	require.Equal(t, StatusOK, status)
	require.NoError(t, reason)

	select {
	case <-checker.Done():
	default:
		t.Fatal("resolved checker not done")
	}
	require.NoError(t, checker.Wait(context.Background()))
}
