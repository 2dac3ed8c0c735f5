package arena

import (
	"context"
	"strings"
	"testing"
	"time"

	"skolarena/lib/testutil"
	"skolarena/lib/timezone"

	"github.com/PuerkitoBio/goquery"
	"github.com/goodsign/monday"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func parseFixture(t *testing.T, name string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(testutil.LoadFixture(t, name)))
	require.NoError(t, err)
	return doc
}

func TestScrapeUser(t *testing.T) {
	user, err := scrapeUser(parseFixture(t, "arena-user.html"))
	require.NoError(t, err)
	require.Equal(t, User{
		FirstName: "Karin",
		LastName:  "Andersson",
		Email:     "karin.andersson@example.com",
	}, user)
}

func TestScrapeUserUnexpectedPage(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<html><body><h1>Vald inloggningsmetod</h1></body></html>`,
	))
	require.NoError(t, err)

	_, err = scrapeUser(doc)
	require.Error(t, err)
}

func TestScrapeChildren(t *testing.T) {
	children := scrapeChildren(parseFixture(t, "arena-start.html"))
	expected := []Child{
		{Id: "elsa-andersson", Name: "Elsa Andersson"},
		{Id: "hugo-andersson", Name: "Hugo Andersson"},
	}
	if diff := cmp.Diff(expected, children); diff != "" {
		t.Fatalf("children mismatch (-want +got):\n%s", diff)
	}
}

func TestScrapeNews(t *testing.T) {
	doc := parseFixture(t, "arena-start.html")
	child := Child{Id: "elsa-andersson", Name: "Elsa Andersson"}

	news := scrapeNews(doc, child, StartUrl)
	expected := []NewsItem{
		{Id: "/node/1234", Header: "◉ Studiedag 14 mars"},
		{Id: "/node/1230", Header: "Veckobrev v.8"},
	}
	if diff := cmp.Diff(expected, news); diff != "" {
		t.Fatalf("news mismatch (-want +got):\n%s", diff)
	}
}

// scraping the same list twice without a mark-as-read in between must
// yield identical unread markers
func TestScrapeNewsViewedMarkerIdempotence(t *testing.T) {
	doc := parseFixture(t, "arena-start.html")
	child := Child{Id: "elsa-andersson", Name: "Elsa Andersson"}

	first := scrapeNews(doc, child, StartUrl)
	second := scrapeNews(doc, child, StartUrl)
	require.Equal(t, first, second)
}

func TestScrapeNewsOtherChild(t *testing.T) {
	doc := parseFixture(t, "arena-start.html")
	news := scrapeNews(doc, Child{Name: "Hugo Andersson"}, StartUrl)
	require.Len(t, news, 1)
	require.Equal(t, "◉ Föräldramöte", news[0].Header)
}

func TestScrapeNewsDetail(t *testing.T) {
	doc := parseFixture(t, "arena-news-detail.html")

	item := NewsItem{Id: "/node/1234", Header: "◉ Studiedag 14 mars"}
	err := scrapeNewsDetail(context.Background(), doc, &item)
	require.NoError(t, err)

	// the header from the list pass survives so the unread glyph is kept
	require.Equal(t, "◉ Studiedag 14 mars", item.Header)
	require.Equal(t, "Kort info", item.Intro)
	require.Equal(t, "Kort info\n\nLång text\n\n[bilaga.pdf](/files/a.pdf)  \n", item.Body)
	require.Equal(t, "Eva Lundgren", item.Author)
	require.Equal(t, "2022-02-20", item.Published)
	require.Equal(t, "/sites/default/files/styles/large/studiedag.jpg", item.ImageUrl)
}

func TestScrapeNewsDetailEmptySections(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`
		<div id="block-system-main">
			<div class="field-name-body">
				<div class="field-item"><p>Bara text</p></div>
			</div>
		</div>`))
	require.NoError(t, err)

	item := NewsItem{}
	require.NoError(t, scrapeNewsDetail(context.Background(), doc, &item))
	require.Equal(t, "Bara text\n\n", item.Body)
	require.Equal(t, "", item.Intro)
	require.Equal(t, "", item.Published)
}

// parse -> iso -> reformat must match the original day for any date in
// the supported swedish short-month format
func TestNewsDateRoundTrip(t *testing.T) {
	dates := []string{
		"20 feb 2022",
		"1 jan 2021",
		"31 dec 2023",
		"15 maj 2022",
		"9 okt 2020",
	}
	for _, raw := range dates {
		parsed, err := monday.ParseInLocation("2 Jan 2006", raw, timezone.Location, monday.LocaleSvSE)
		require.NoError(t, err, raw)

		iso := parsed.Format(time.DateOnly)
		back, err := time.ParseInLocation(time.DateOnly, iso, timezone.Location)
		require.NoError(t, err)
		require.Equal(
			t,
			strings.ToLower(raw),
			strings.ToLower(monday.Format(back, "2 Jan 2006", monday.LocaleSvSE)),
		)
	}
}

func TestFindSelectionButton(t *testing.T) {
	body := `
		<a class="selection_button" href="https://idp.example.com/mg-local/auth/ccp11/grp/this/ssn?sessionid=abc">Denna enhet</a>
		<a class="selection_button" href="https://idp.example.com/mg-local/auth/ccp11/grp/other/ssn?sessionid=abc">Annan enhet</a>`

	url := findSelectionButton(body, bankIdOtherDevice)
	require.Equal(t, "https://idp.example.com/mg-local/auth/ccp11/grp/other/ssn?sessionid=abc", url)

	require.Equal(t, "", findSelectionButton(`<p>inga knappar</p>`, bankIdOtherDevice))
}

func TestDerivePollUrls(t *testing.T) {
	poll, login, err := derivePollUrls("https://idp.example.com/mg-local/auth/ccp11/grp/other/ssn?sessionid=abc123&foo=1")
	require.NoError(t, err)
	require.Equal(t, "https://idp.example.com/mg-local/auth/ccp11/grp/other/ssn?collect=1&sessionid=abc123", poll)
	require.Equal(t, "https://idp.example.com/mg-local/auth/ccp11/grp/other/ssn?sessionid=abc123", login)

	_, _, err = derivePollUrls("https://idp.example.com/no/session/id")
	require.Error(t, err)
}

func TestExtractSamlResponseTextareaFallback(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`
		<form action="https://idp1.alingsas.se/saml/acs" method="post">
			<textarea name="SAMLResponse">signed-response</textarea>
			<textarea name="RelayState">relay-1</textarea>
		</form>`))
	require.NoError(t, err)

	form := extractSamlResponse(doc)
	require.Equal(t, "https://idp1.alingsas.se/saml/acs", form.Action)
	require.Equal(t, "signed-response", form.SamlResponse)
	require.Equal(t, "relay-1", form.RelayState)
}
