package unikum

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"skolarena/lib/htmlutil"
	"skolarena/lib/restyutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/unikum")

var ErrSessionExpired = fmt.Errorf("unikum: session expired")

const (
	ssoUrl   = "https://idp.alingsas.se/skolfed/unikum"
	startUrl = "https://start.unikum.net/unikum/start.html"

	loginPageFragment = "login.jsp"
)

// Role selects which half of a class roster to scrape. The values are
// the Swedish panel headings on the class page.
type Role string

const (
	RoleStudents Role = "elever"
	RoleTeachers Role = "lärare"
)

type Client struct {
	http          *resty.Client
	authenticated atomic.Bool
}

func NewClient(jar http.CookieJar) *Client {
	return &Client{
		http: restyutil.NewBrowserClient(jar, "scrapers/unikum/http"),
	}
}

func (c *Client) Authenticated() bool {
	return c.authenticated.Load()
}

func (c *Client) setAuthenticated(ok bool) {
	c.authenticated.Store(ok)
}

func parseDoc(res *resty.Response) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
}

// Authenticate submits the journal's SAML response form. Requires a
// valid primary portal session in the shared cookie jar.
func (c *Client) Authenticate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:Authenticate")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		Get(ssoUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch sso entry")
		return err
	}
	doc, err := parseDoc(res)
	if err != nil {
		return err
	}
	form := htmlutil.ExtractSamlResponseForm(doc)
	if form.Action == "" || form.SamlResponse == "" {
		return fmt.Errorf("unikum: no SAMLResponse form [%s]", restyutil.FinalURL(res))
	}

	_, err = c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"SAMLResponse": form.SamlResponse,
			"RelayState":   form.RelayState,
		}).
		Post(form.Action)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit SAMLResponse")
		return err
	}

	c.setAuthenticated(true)
	return nil
}

// startPage fetches the journal start page and re-verifies the session
// against the final url, since an expired session redirects to the
// login page instead of failing outright. If the cached flag is unset
// it kicks off an authentication first and still reports expiry, so
// the caller retries on a fresh session.
func (c *Client) startPage(ctx context.Context) (*resty.Response, error) {
	if !c.Authenticated() {
		if err := c.Authenticate(ctx); err != nil {
			return nil, err
		}
		return nil, ErrSessionExpired
	}

	res, err := c.http.R().
		SetContext(ctx).
		Get(startUrl)
	if err != nil {
		return nil, err
	}
	if strings.Contains(restyutil.FinalURL(res), loginPageFragment) {
		c.setAuthenticated(false)
		return nil, ErrSessionExpired
	}
	c.setAuthenticated(true)
	return res, nil
}

func baseUrl(rawUrl string) string {
	idx := strings.Index(rawUrl, "//")
	if idx == -1 {
		return rawUrl
	}
	end := strings.Index(rawUrl[idx+2:], "/")
	if end == -1 {
		return rawUrl
	}
	return rawUrl[:idx+2+end]
}

// ClassPeople scrapes one half of the class roster (students or
// teachers) for the given child. Children without a class page yield
// an empty roster.
func (c *Client) ClassPeople(ctx context.Context, childName string, role Role) ([]Person, error) {
	ctx, span := tracer.Start(ctx, "client:ClassPeople")
	defer span.End()

	startRes, err := c.startPage(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch start page")
		return nil, err
	}
	doc, err := parseDoc(startRes)
	if err != nil {
		return nil, err
	}
	base := baseUrl(restyutil.FinalURL(startRes))

	childUrl := scrapeChildUrl(doc, childName)
	if childUrl == "" {
		return nil, fmt.Errorf("unikum: no journal card for %q", childName)
	}
	childRes, err := c.http.R().
		SetContext(ctx).
		Get(base + childUrl)
	if err != nil {
		return nil, err
	}
	doc, err = parseDoc(childRes)
	if err != nil {
		return nil, err
	}
	classes := scrapeClassUrls(doc)
	if len(classes) == 0 {
		return nil, nil
	}

	classRes, err := c.http.R().
		SetContext(ctx).
		Get(base + classes[0].Href)
	if err != nil {
		return nil, err
	}
	doc, err = parseDoc(classRes)
	if err != nil {
		return nil, err
	}
	return scrapeClassPeople(doc, role, classes[0].Name), nil
}

// Notifications scrapes the unread journal notifications for the
// given child's guardian view.
func (c *Client) Notifications(ctx context.Context, childName string) ([]Notification, error) {
	ctx, span := tracer.Start(ctx, "client:Notifications")
	defer span.End()

	startRes, err := c.startPage(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch start page")
		return nil, err
	}
	finalUrl := restyutil.FinalURL(startRes)
	base := baseUrl(finalUrl)

	overviewUrl := strings.Replace(finalUrl, "start.html", "notifications/notifications.html", 1) +
		"&includeActedOn=false"
	overviewRes, err := c.http.R().
		SetContext(ctx).
		Get(overviewUrl)
	if err != nil {
		return nil, err
	}
	doc, err := parseDoc(overviewRes)
	if err != nil {
		return nil, err
	}
	guardianId := scrapeGuardianId(doc, childName)
	if guardianId == "" {
		return nil, fmt.Errorf("unikum: no guardian container for %q", childName)
	}

	listUrl := fmt.Sprintf(
		"%s/unikum/notifications/guardian/%s/unread/list.ajax?startIndex=0",
		base, guardianId,
	)
	listRes, err := c.http.R().
		SetContext(ctx).
		Get(listUrl)
	if err != nil {
		return nil, err
	}
	doc, err = parseDoc(listRes)
	if err != nil {
		return nil, err
	}
	return scrapeNotifications(doc, base), nil
}
