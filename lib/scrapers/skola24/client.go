package skola24

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"

	"skolarena/lib/htmlutil"
	"skolarena/lib/restyutil"
	"skolarena/lib/timezone"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/snabb/isoweek"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/skola24")

var ErrSessionExpired = fmt.Errorf("skola24: session expired")

const (
	entryUrl      = "https://idp.alingsas.se/skolfed/skola24"
	timetablesUrl = "https://web.skola24.se/api/services/skola24/get/personal/timetables"
	renderKeyUrl  = "https://web.skola24.se/api/get/timetable/render/key"
	renderUrl     = "https://web.skola24.se/api/render/timetable"

	ssoHost = "alingsas-sso.skola24.se"
	xScope  = "8a22163c-8662-4535-9050-bc5e1923df48"

	viewerReferer = "https://web.skola24.se/portal/start/timetable/timetable-viewer/" + ssoHost + "/"
)

type Child struct {
	PersonGuid string `json:"personGuid"`
	UnitGuid   string `json:"unitGuid"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	SchoolId   string `json:"schoolID"`
}

type TimetableEntry struct {
	Id        string
	Name      string
	Teacher   string
	Location  string
	TimeStart string
	TimeEnd   string
	// ISO weekday, monday is 1
	DayOfWeek int
	DateStart string
	DateEnd   string
}

type Client struct {
	http          *resty.Client
	authenticated atomic.Bool
}

func NewClient(jar http.CookieJar) *Client {
	return &Client{
		http: restyutil.NewBrowserClient(jar, "scrapers/skola24/http"),
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

// Authenticate runs the federation handshake: frameset entry page,
// sso url buried in an inline script, saml request to the identity
// broker, saml response back to the timetable system. Requires a valid
// primary portal session in the shared cookie jar.
func (c *Client) Authenticate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:Authenticate")
	defer span.End()

	if c.Authenticated() {
		return nil
	}

	entryRes, err := c.http.R().
		SetContext(ctx).
		Get(entryUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch federation entry")
		return err
	}
	doc, err := parseDoc(entryRes)
	if err != nil {
		return err
	}
	frameSrc := htmlutil.FrameSrc(doc)
	if frameSrc == "" {
		return fmt.Errorf("skola24: no sso frame on entry page [%s]", restyutil.FinalURL(entryRes))
	}

	loginRes, err := c.http.R().
		SetContext(ctx).
		Get(restyutil.FinalURL(entryRes) + frameSrc)
	if err != nil {
		return err
	}
	doc, err = parseDoc(loginRes)
	if err != nil {
		return err
	}
	novaSsoUrl := htmlutil.ScriptSsoUrl(doc)
	if novaSsoUrl == "" {
		return fmt.Errorf("skola24: no sso url in login script [%s]", restyutil.FinalURL(loginRes))
	}

	novaRes, err := c.http.R().
		SetContext(ctx).
		Get(novaSsoUrl)
	if err != nil {
		return err
	}
	doc, err = parseDoc(novaRes)
	if err != nil {
		return err
	}
	request := htmlutil.ExtractSamlRequestForm(doc)
	if request.Action == "" || request.SamlRequest == "" {
		return fmt.Errorf("skola24: no SAMLRequest form [%s]", restyutil.FinalURL(novaRes))
	}

	brokerRes, err := c.http.R().
		SetContext(ctx).
		SetHeader("referer", "https://service-sso1.novasoftware.se/").
		SetFormData(map[string]string{"SAMLRequest": request.SamlRequest}).
		Post(request.Action)
	if err != nil {
		return err
	}
	doc, err = parseDoc(brokerRes)
	if err != nil {
		return err
	}
	response := htmlutil.ExtractSamlResponseForm(doc)
	if response.Action == "" || response.SamlResponse == "" {
		return fmt.Errorf("skola24: no SAMLResponse form [%s]", restyutil.FinalURL(brokerRes))
	}

	_, err = c.http.R().
		SetContext(ctx).
		SetHeader("referer", "https://idp2.alingsas.se/").
		SetFormData(map[string]string{
			"SAMLResponse": response.SamlResponse,
			"RelayState":   response.RelayState,
		}).
		Post(response.Action)
	if err != nil {
		return err
	}

	c.setAuthenticated(true)
	return nil
}

func (c *Client) apiRequest(ctx context.Context) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetHeader("accept", "application/json, text/javascript, */*; q=0.01").
		SetHeader("content-type", "application/json").
		SetHeader("x-scope", xScope).
		SetHeader("x-requested-with", "XMLHttpRequest").
		SetHeader("referer", viewerReferer)
}

// ensureSession lazily runs the federation handshake so a session
// that failed or lapsed after the primary login can recover on the
// next data access instead of requiring a new BankID round.
func (c *Client) ensureSession(ctx context.Context) error {
	if c.Authenticated() {
		return nil
	}
	return c.Authenticate(ctx)
}

// Children fetches the timetable roster, authenticating first when the
// session flag is unset. An empty roster means the sso session is
// gone, which is deliberately a hard error rather than an internal
// retry so a genuinely empty roster cannot hide behind an
// authentication loop.
func (c *Client) Children(ctx context.Context) ([]Child, error) {
	ctx, span := tracer.Start(ctx, "client:Children")
	defer span.End()

	if err := c.ensureSession(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "authentication failed")
		return nil, err
	}

	res, err := c.apiRequest(ctx).
		SetBody(map[string]any{
			"getPersonalTimetablesRequest": map[string]any{
				"hostName": ssoHost,
			},
		}).
		Post(timetablesUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch timetable roster")
		return nil, err
	}

	var body struct {
		Data struct {
			GetPersonalTimetablesResponse struct {
				ChildrenTimetables []Child `json:"childrenTimetables"`
			} `json:"getPersonalTimetablesResponse"`
		} `json:"data"`
	}
	if err := json.Unmarshal(res.Body(), &body); err != nil {
		return nil, fmt.Errorf("skola24: bad roster response [%s]: %w", timetablesUrl, err)
	}

	children := body.Data.GetPersonalTimetablesResponse.ChildrenTimetables
	if len(children) == 0 {
		c.setAuthenticated(false)
		span.SetStatus(codes.Error, "empty roster, session presumed expired")
		return nil, ErrSessionExpired
	}
	return children, nil
}

type lesson struct {
	GuidId          string   `json:"guidId"`
	Texts           []string `json:"texts"`
	TimeStart       string   `json:"timeStart"`
	TimeEnd         string   `json:"timeEnd"`
	DayOfWeekNumber int      `json:"dayOfWeekNumber"`
}

func textAt(texts []string, i int) string {
	if i >= len(texts) {
		return ""
	}
	return texts[i]
}

// converts an iso (week, year, weekday) triple into a concrete date
func weekdayDate(year, week, dayOfWeek int) string {
	start := isoweek.StartTime(year, week, timezone.Location)
	return start.AddDate(0, 0, dayOfWeek-1).Format("2006-01-02")
}

// Timetable renders the child's lessons for one iso week. The child is
// located in the roster by person identifier, then a one-time render
// key is requested before the lesson data itself.
func (c *Client) Timetable(ctx context.Context, child Child, week int, year int) ([]TimetableEntry, error) {
	ctx, span := tracer.Start(ctx, "client:Timetable")
	defer span.End()

	if child.PersonGuid == "" {
		return nil, nil
	}

	children, err := c.Children(ctx)
	if err != nil {
		return nil, err
	}
	var roster *Child
	for i := range children {
		if children[i].PersonGuid == child.PersonGuid {
			roster = &children[i]
			break
		}
	}
	if roster == nil {
		return nil, fmt.Errorf(
			"skola24: no timetable for %s %s with id %s",
			child.FirstName, child.LastName, child.PersonGuid,
		)
	}

	keyRes, err := c.apiRequest(ctx).
		SetBody("null").
		Post(renderKeyUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch render key")
		return nil, err
	}
	var keyBody struct {
		Data struct {
			Key string `json:"key"`
		} `json:"data"`
	}
	if err := json.Unmarshal(keyRes.Body(), &keyBody); err != nil {
		return nil, fmt.Errorf("skola24: bad render key response: %w", err)
	}

	renderRes, err := c.apiRequest(ctx).
		SetBody(map[string]any{
			"renderKey":            keyBody.Data.Key,
			"host":                 ssoHost,
			"unitGuid":             roster.UnitGuid,
			"startDate":            nil,
			"endDate":              nil,
			"scheduleDay":          0,
			"blackAndWhite":        false,
			"width":                1000,
			"height":               550,
			"selectionType":        5,
			"selection":            roster.PersonGuid,
			"showHeader":           false,
			"periodText":           "",
			"week":                 week,
			"year":                 year,
			"privateFreeTextMode":  nil,
			"privateSelectionMode": true,
			"customerKey":          "",
		}).
		Post(renderUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to render timetable")
		return nil, err
	}

	var renderBody struct {
		Data struct {
			LessonInfo []lesson `json:"lessonInfo"`
		} `json:"data"`
	}
	if err := json.Unmarshal(renderRes.Body(), &renderBody); err != nil {
		return nil, fmt.Errorf("skola24: bad render response: %w", err)
	}

	entries := make([]TimetableEntry, 0, len(renderBody.Data.LessonInfo))
	for _, l := range renderBody.Data.LessonInfo {
		date := weekdayDate(year, week, l.DayOfWeekNumber)
		entries = append(entries, TimetableEntry{
			Id:        l.GuidId,
			Name:      textAt(l.Texts, 0),
			Teacher:   textAt(l.Texts, 1),
			Location:  textAt(l.Texts, 2),
			TimeStart: l.TimeStart,
			TimeEnd:   l.TimeEnd,
			DayOfWeek: l.DayOfWeekNumber,
			DateStart: date,
			DateEnd:   date,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].DayOfWeek == entries[j].DayOfWeek {
			return entries[i].TimeStart < entries[j].TimeStart
		}
		return entries[i].DayOfWeek < entries[j].DayOfWeek
	})
	return entries, nil
}
