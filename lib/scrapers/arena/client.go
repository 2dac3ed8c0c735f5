package arena

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"skolarena/lib/restyutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/arena")

var ErrSessionExpired = fmt.Errorf("arena: session expired")

const (
	StartUrl       = "https://arena.alingsas.se"
	currentUserUrl = StartUrl + "/user"

	// the final url lands on this path segment when the portal bounced
	// us to the idp instead of serving the page
	chooseAuthmechFragment = "/wa/chooseAuthmech"

	custodianPath = "/arena/guardian/masquerade-as-custodian"
)

// idp policy choices, submitted as numeric form values
const (
	policyRoleCaregiver = "5"
	policyMethodBankId  = "3"
	bankIdOtherDevice   = "other"
)

type Client struct {
	http          *resty.Client
	authenticated atomic.Bool
}

func NewClient(jar http.CookieJar) *Client {
	return &Client{
		http: restyutil.NewBrowserClient(jar, "scrapers/arena/http"),
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

func baseUrlOf(rawUrl string) string {
	link, err := url.Parse(rawUrl)
	if err != nil {
		return ""
	}
	return link.Scheme + "://" + link.Host
}

// Authenticate kicks off a BankID login for the given personal identity
// number and returns a checker that resolves once the user has approved
// the request on their device. An already valid session short-circuits
// to a checker that is immediately OK.
func (c *Client) Authenticate(ctx context.Context, personalNumber string) (*StatusChecker, error) {
	ctx, span := tracer.Start(ctx, "client:Authenticate")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		Get(StartUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch start page")
		return nil, err
	}

	if strings.HasPrefix(restyutil.FinalURL(res), StartUrl) {
		c.setAuthenticated(true)
		return newResolvedChecker(StatusOK), nil
	}

	// bounced to the external idp policy page
	selectionUrl, err := c.choosePolicyRoleAndMethod(ctx, res)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "policy negotiation failed")
		return nil, err
	}

	res, err = c.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/x-www-form-urlencoded").
		SetBody("ssn="+personalNumber).
		Post(selectionUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to start bankid ticket")
		return nil, err
	}
	if res.StatusCode() >= 400 {
		err := fmt.Errorf("arena: server error [%d] [%s]", res.StatusCode(), selectionUrl)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	pollUrl, loginUrl, err := derivePollUrls(selectionUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to derive poll urls")
		return nil, err
	}

	return newStatusChecker(c, pollUrl, loginUrl), nil
}

// walks the idp policy pages: submit the saml request, choose the
// caregiver role, choose the BankID method, then pick the
// "other device" selection button out of the resulting markup
func (c *Client) choosePolicyRoleAndMethod(ctx context.Context, policyRes *resty.Response) (string, error) {
	ctx, span := tracer.Start(ctx, "client:choosePolicyRoleAndMethod")
	defer span.End()

	doc, err := parseDoc(policyRes)
	if err != nil {
		return "", err
	}
	form := extractSamlRequest(doc)
	if form.Action == "" || form.SamlRequest == "" {
		return "", fmt.Errorf("arena: no SAMLRequest form on policy page [%s]", restyutil.FinalURL(policyRes))
	}

	redirectRes, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"SAMLRequest": form.SamlRequest,
			"RelayState":  form.RelayState,
		}).
		Post(form.Action)
	if err != nil {
		return "", err
	}

	roleRes, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{"choice": policyRoleCaregiver}).
		Post(restyutil.FinalURL(redirectRes))
	if err != nil {
		return "", err
	}

	methodRes, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{"choice": policyMethodBankId}).
		Post(restyutil.FinalURL(roleRes))
	if err != nil {
		return "", err
	}

	selectionUrl := findSelectionButton(string(methodRes.Body()), bankIdOtherDevice)
	if selectionUrl == "" {
		return "", fmt.Errorf("arena: no bankid selection button [%s]", restyutil.FinalURL(methodRes))
	}
	return selectionUrl, nil
}

// the poll and login urls are the selection url's base path with the
// session id carried over, the poll variant adds collect=1
func derivePollUrls(selectionUrl string) (pollUrl string, loginUrl string, err error) {
	parsed, err := url.Parse(selectionUrl)
	if err != nil {
		return "", "", err
	}
	sessionId := parsed.Query().Get("sessionid")
	if sessionId == "" {
		return "", "", fmt.Errorf("arena: selection url carries no sessionid [%s]", selectionUrl)
	}

	base := parsed.Scheme + "://" + parsed.Host + parsed.Path

	poll := url.Values{}
	poll.Set("sessionid", sessionId)
	poll.Set("collect", "1")

	login := url.Values{}
	login.Set("sessionid", sessionId)

	return base + "?" + poll.Encode(), base + "?" + login.Encode(), nil
}

type pollResult struct {
	keepPolling bool
	isError     bool
	diagnostic  string
}

func (c *Client) pollStatus(ctx context.Context, pollUrl string) (pollResult, error) {
	ctx, span := tracer.Start(ctx, "client:pollStatus")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("x-requested-with", "XMLHttpRequest").
		Get(pollUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "poll request failed")
		return pollResult{}, err
	}

	var body struct {
		Response  json.RawMessage `json:"response"`
		ErrorCode string          `json:"errorCode"`
	}
	if err := json.Unmarshal(res.Body(), &body); err != nil {
		return pollResult{}, fmt.Errorf("arena: bad poll response [%s]: %w", pollUrl, err)
	}

	var inner struct {
		Status string `json:"status"`
	}
	// response is an object while the ticket lives, the literal string
	// "failed" once it has been denied or expired
	_ = json.Unmarshal(body.Response, &inner)

	failed := string(body.Response) == `"failed"`
	return pollResult{
		keepPolling: inner.Status == "pending",
		isError:     body.ErrorCode != "" || failed,
		diagnostic:  string(res.Body()),
	}, nil
}

// completeLogin performs the final multi-hop saml exchange once the
// out-of-band confirmation has succeeded. Every hop re-extracts a form
// from the previous response and posts it onward.
func (c *Client) completeLogin(ctx context.Context, loginUrl string) error {
	ctx, span := tracer.Start(ctx, "client:completeLogin")
	defer span.End()

	loginRes, err := c.http.R().
		SetContext(ctx).
		Get(loginUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch login page")
		return err
	}
	doc, err := parseDoc(loginRes)
	if err != nil {
		return err
	}
	first := extractSamlResponse(doc)
	if first.Action == "" || first.SamlResponse == "" {
		return fmt.Errorf("arena: no SAMLResponse form on login page [%s]", loginUrl)
	}

	acsRes, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{"SAMLResponse": first.SamlResponse}).
		Post(first.Action)
	if err != nil {
		return err
	}
	doc, err = parseDoc(acsRes)
	if err != nil {
		return err
	}
	dummy := extractDummy(doc)
	if dummy.Action == "" {
		return fmt.Errorf("arena: no dummy form after acs [%s]", restyutil.FinalURL(acsRes))
	}

	acsBase := baseUrlOf(restyutil.FinalURL(acsRes))
	ssoRes, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{"dummy": dummy.Dummy}).
		Post(acsBase + dummy.Action)
	if err != nil {
		return err
	}
	doc, err = parseDoc(ssoRes)
	if err != nil {
		return err
	}
	second := extractSamlResponse(doc)
	if second.Action == "" || second.SamlResponse == "" {
		return fmt.Errorf("arena: no SAMLResponse form after sso hop [%s]", restyutil.FinalURL(ssoRes))
	}

	secondAcsRes, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"SAMLResponse": second.SamlResponse,
			"RelayState":   second.RelayState,
		}).
		SetHeader("referer", acsBase+"/").
		Post(second.Action)
	if err != nil {
		return err
	}
	doc, err = parseDoc(secondAcsRes)
	if err != nil {
		return err
	}
	final := extractSamlResponse(doc)
	if final.Action == "" || final.SamlResponse == "" {
		return fmt.Errorf("arena: no SAMLResponse form after second acs [%s]", restyutil.FinalURL(secondAcsRes))
	}

	_, err = c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"SAMLResponse": final.SamlResponse,
			"RelayState":   final.RelayState,
		}).
		Post(final.Action)
	if err != nil {
		return err
	}

	c.setAuthenticated(true)
	return nil
}

// GetUser reads the profile page. A non-200 or a bounce to the idp
// means the session is gone; one retry covers the case where the
// portal's session cookie was dropped on the first round trip.
func (c *Client) GetUser(ctx context.Context) (User, error) {
	ctx, span := tracer.Start(ctx, "client:GetUser")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		Get(currentUserUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch user page")
		return User{}, err
	}
	if res.StatusCode() != http.StatusOK {
		c.setAuthenticated(false)
		return User{}, ErrSessionExpired
	}

	if restyutil.FinalURL(res) != currentUserUrl {
		// try again, the SSESS cookie was probably missing
		res, err = c.http.R().
			SetContext(ctx).
			Get(currentUserUrl)
		if err != nil {
			return User{}, err
		}
		if res.StatusCode() != http.StatusOK || restyutil.FinalURL(res) != currentUserUrl {
			c.setAuthenticated(false)
			return User{}, ErrSessionExpired
		}
	}

	doc, err := parseDoc(res)
	if err != nil {
		return User{}, err
	}
	return scrapeUser(doc)
}

// fetches the start page and swaps in the custodian view when the
// guardian has a masquerade link, both rosters and news live there
func (c *Client) startPage(ctx context.Context) (*goquery.Document, string, error) {
	res, err := c.http.R().
		SetContext(ctx).
		Get(StartUrl)
	if err != nil {
		return nil, "", err
	}
	finalUrl := restyutil.FinalURL(res)
	if strings.Contains(finalUrl, chooseAuthmechFragment) {
		c.setAuthenticated(false)
		return nil, "", ErrSessionExpired
	}

	baseUrl := baseUrlOf(finalUrl)
	doc, err := parseDoc(res)
	if err != nil {
		return nil, "", err
	}

	custodianUrl := custodianUrl(doc, baseUrl)
	if custodianUrl != "" {
		res, err = c.http.R().
			SetContext(ctx).
			Get(custodianUrl)
		if err != nil {
			return nil, "", err
		}
		doc, err = parseDoc(res)
		if err != nil {
			return nil, "", err
		}
	}

	return doc, baseUrl, nil
}

func (c *Client) GetChildren(ctx context.Context) ([]Child, error) {
	ctx, span := tracer.Start(ctx, "client:GetChildren")
	defer span.End()

	doc, _, err := c.startPage(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch start page")
		return nil, err
	}
	return scrapeChildren(doc), nil
}

// GetNews lists the child's news items and enriches each with its
// detail page in a second pass, nothing is cached between calls.
func (c *Client) GetNews(ctx context.Context, child Child) ([]NewsItem, error) {
	ctx, span := tracer.Start(ctx, "client:GetNews")
	defer span.End()

	doc, baseUrl, err := c.startPage(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch start page")
		return nil, err
	}

	news := scrapeNews(doc, child, baseUrl)
	for i := range news {
		err := c.fetchNewsDetail(ctx, &news[i])
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to fetch news detail")
			return nil, err
		}
	}
	return news, nil
}

// GetNewsDetails refreshes a single item from its detail page.
func (c *Client) GetNewsDetails(ctx context.Context, item *NewsItem) error {
	ctx, span := tracer.Start(ctx, "client:GetNewsDetails")
	defer span.End()
	return c.fetchNewsDetail(ctx, item)
}

func (c *Client) fetchNewsDetail(ctx context.Context, item *NewsItem) error {
	res, err := c.http.R().
		SetContext(ctx).
		Get(StartUrl + item.Id)
	if err != nil {
		return err
	}
	doc, err := parseDoc(res)
	if err != nil {
		return err
	}
	// keep the header from the list pass, it carries the unread marker
	return scrapeNewsDetail(ctx, doc, item)
}

// Logout drops the local flag only, cookie clearing is owned by
// whoever owns the jar.
func (c *Client) Logout() {
	c.setAuthenticated(false)
}
