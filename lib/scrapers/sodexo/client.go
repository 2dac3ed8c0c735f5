package sodexo

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"skolarena/lib/restyutil"
	"skolarena/lib/timezone"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/sodexo")

const menuUrl = "https://sodexo.mashie.com/public/app/Alings%C3%A5s%20skolor/e466d251?country=se"

var weekNumberRegexp = regexp.MustCompile(`\d+`)

type MenuItem struct {
	Title       string
	Description string
}

// Client scrapes the public Sodexo (Mashie) menu app. No session
// required.
type Client struct {
	http *resty.Client
	now  func() time.Time
}

func NewClient(jar http.CookieJar) *Client {
	return &Client{
		http: restyutil.NewBrowserClient(jar, "scrapers/sodexo/http"),
		now:  timezone.Now,
	}
}

// Menu fetches the published menu and keeps the current iso week only.
// The page lists several weeks under h4 headings, one day panel per
// weekday, each with one or more dishes.
func (c *Client) Menu(ctx context.Context) ([]MenuItem, error) {
	ctx, span := tracer.Start(ctx, "client:Menu")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		Get(menuUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch menu app")
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return nil, err
	}
	_, currentWeek := c.now().ISOWeek()
	return scrapeMenu(doc, currentWeek), nil
}

func scrapeMenu(doc *goquery.Document, currentWeek int) []MenuItem {
	var items []MenuItem
	week := 0
	doc.Find("div.panel-group").First().Children().Each(func(_ int, node *goquery.Selection) {
		if node.Is("h4") {
			week, _ = strconv.Atoi(weekNumberRegexp.FindString(node.Text()))
			return
		}
		if week != currentWeek {
			return
		}

		day := strings.TrimSpace(node.Find(".panel-heading .weekday").Text())
		if day == "" {
			return
		}

		var dishes []string
		node.Find(".panel-body .menu-item").Each(func(_ int, dish *goquery.Selection) {
			name := strings.TrimSpace(dish.Find(".app-daymenu-name").Text())
			description := strings.TrimSpace(dish.Find(".app-daymenu-description").Text())
			if name == "" && description == "" {
				return
			}
			dishes = append(dishes, name+" - "+description)
		})

		items = append(items, MenuItem{
			Title:       fmt.Sprintf("%s - Vecka %d", day, week),
			Description: strings.Join(dishes, "\n"),
		})
	})
	return items
}
