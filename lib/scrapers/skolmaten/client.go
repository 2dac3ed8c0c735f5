package skolmaten

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"skolarena/lib/restyutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/skolmaten")

const baseUrl = "https://skolmaten.se"

// school weekdays, in menu order
var weekdays = []string{"Måndag", "Tisdag", "Onsdag", "Torsdag", "Fredag"}

type MenuItem struct {
	Title       string
	Description string
}

// Client scrapes the public skolmaten.se menu pages. No session
// required.
type Client struct {
	http *resty.Client
}

func NewClient(jar http.CookieJar) *Client {
	return &Client{
		http: restyutil.NewBrowserClient(jar, "scrapers/skolmaten/http"),
	}
}

// Menu fetches the current week's menu for a school slug. Always
// returns exactly one entry per school weekday, with an empty
// description for days the provider left blank. Unknown slugs (404)
// yield an empty menu.
func (c *Client) Menu(ctx context.Context, schoolSlug string) ([]MenuItem, error) {
	ctx, span := tracer.Start(ctx, "client:Menu")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		Get(fmt.Sprintf("%s/%s/", baseUrl, schoolSlug))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch menu page")
		return nil, err
	}
	if res.StatusCode() == http.StatusNotFound {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return nil, err
	}
	return scrapeMenu(doc), nil
}

func scrapeMenu(doc *goquery.Document) []MenuItem {
	weekDiv := doc.Find("#weeks .week").First()
	week := weekDiv.AttrOr("data-week-of-year", "")

	var dishes []string
	weekDiv.Find(".row .items p span").Each(func(_ int, dish *goquery.Selection) {
		dishes = append(dishes, dish.Text())
	})

	items := make([]MenuItem, 0, len(weekdays))
	for i, day := range weekdays {
		description := ""
		if i < len(dishes) {
			description = dishes[i]
		}
		items = append(items, MenuItem{
			Title:       fmt.Sprintf("%s - Vecka %s", day, week),
			Description: description,
		})
	}
	return items
}
