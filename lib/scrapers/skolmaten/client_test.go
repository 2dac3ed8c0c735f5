package skolmaten

import (
	"context"
	"net/http/cookiejar"
	"testing"

	"skolarena/lib/telemetry"
	"skolarena/lib/testutil"

	"github.com/google/go-cmp/cmp"
	"github.com/h2non/gock"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Cleanup(telemetry.SetupForTesting(t, "test:scrapers/skolmaten"))

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	c := NewClient(jar)
	testutil.Intercept(t, c.http)
	return c
}

const menuPage = `<html><body>
<div id="weeks">
  <div class="week" data-week-of-year="8">
    <div class="row">
      <div class="items"><p><span>Köttbullar med potatismos</span></p></div>
    </div>
    <div class="row">
      <div class="items"><p><span>Fisksoppa</span></p></div>
    </div>
    <div class="row">
      <div class="items"><p><span>Pannkakor med sylt</span></p></div>
    </div>
  </div>
</div>
</body></html>`

func TestMenu(t *testing.T) {
	c := newTestClient(t)
	gock.New("https://skolmaten.se").
		Get("/noltorpsskolan/").
		Reply(200).
		BodyString(menuPage)

	items, err := c.Menu(context.Background(), "noltorpsskolan")
	require.NoError(t, err)

	// always five weekday entries, even when the provider published
	// fewer dishes
	expected := []MenuItem{
		{Title: "Måndag - Vecka 8", Description: "Köttbullar med potatismos"},
		{Title: "Tisdag - Vecka 8", Description: "Fisksoppa"},
		{Title: "Onsdag - Vecka 8", Description: "Pannkakor med sylt"},
		{Title: "Torsdag - Vecka 8", Description: ""},
		{Title: "Fredag - Vecka 8", Description: ""},
	}
	require.Empty(t, cmp.Diff(expected, items))
}

func TestMenuUnknownSchool(t *testing.T) {
	c := newTestClient(t)
	gock.New("https://skolmaten.se").
		Get("/okand-skola/").
		Reply(404).
		BodyString("not found")

	items, err := c.Menu(context.Background(), "okand-skola")
	require.NoError(t, err)
	require.Empty(t, items)
}
