package htmlutil

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, markup string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	require.NoError(t, err)
	return doc
}

func TestExtractSamlResponseForm(t *testing.T) {
	doc := parse(t, `
		<html><body>
		<form method="post" action="https://arena.alingsas.se/Shibboleth.sso/SAML2/POST">
			<input type="hidden" name="SAMLResponse" value="PHNhbWxwOlJlc3BvbnNlPg==" />
			<input type="hidden" name="RelayState" value="ss:mem:1234" />
		</form>
		</body></html>`)

	form := ExtractSamlResponseForm(doc)
	require.Equal(t, "https://arena.alingsas.se/Shibboleth.sso/SAML2/POST", form.Action)
	require.Equal(t, "PHNhbWxwOlJlc3BvbnNlPg==", form.SamlResponse)
	require.Equal(t, "ss:mem:1234", form.RelayState)
}

func TestExtractSamlResponseFormMissingFields(t *testing.T) {
	form := ExtractSamlResponseForm(parse(t, `<html><body><p>maintenance</p></body></html>`))
	require.Equal(t, SamlResponseForm{}, form)
}

func TestExtractSamlResponseTextareas(t *testing.T) {
	doc := parse(t, `
		<form action="/wa/auth/saml/">
			<textarea name="SAMLResponse">YWJjZGVm</textarea>
			<textarea name="RelayState">relay</textarea>
		</form>`)

	form := ExtractSamlResponseTextareas(doc)
	require.Equal(t, "/wa/auth/saml/", form.Action)
	require.Equal(t, "YWJjZGVm", form.SamlResponse)
	require.Equal(t, "relay", form.RelayState)
}

func TestExtractDummyForm(t *testing.T) {
	doc := parse(t, `
		<form action="/sso/posttarget">
			<input type="hidden" name="dummy" value="token123" />
		</form>`)

	form := ExtractDummyForm(doc)
	require.Equal(t, "/sso/posttarget", form.Action)
	require.Equal(t, "token123", form.Dummy)
}

func TestFrameSrc(t *testing.T) {
	doc := parse(t, `
		<html><frameset rows="100%">
			<frame src="login.jsp?idpmethod=saml" />
		</frameset></html>`)
	require.Equal(t, "login.jsp?idpmethod=saml", FrameSrc(doc))

	require.Equal(t, "", FrameSrc(parse(t, `<html><body></body></html>`)))
}

func TestScriptSsoUrl(t *testing.T) {
	doc := parse(t, `
		<html><head><script>
			var novaSsoUrl = 'https://service-sso1.novasoftware.se/sso/login';
			window.location = novaSsoUrl;
		</script></head></html>`)
	require.Equal(t, "https://service-sso1.novasoftware.se/sso/login", ScriptSsoUrl(doc))

	require.Equal(t, "", ScriptSsoUrl(parse(t, `<html><script>var x = 1;</script></html>`)))
}
