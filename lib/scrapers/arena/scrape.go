package arena

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"skolarena/lib/htmlutil"
	"skolarena/lib/timezone"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/goodsign/monday"
)

type User struct {
	FirstName string
	LastName  string
	Email     string
}

type Child struct {
	// slug derived from the display name, stable within a session
	Id   string
	Name string
	// set by the facade from external configuration, the portal itself
	// does not expose it
	SchoolId string
}

type NewsItem struct {
	// path fragment relative to the portal base url
	Id string
	// carries the unread glyph prefix from the list pass
	Header    string
	Intro     string
	Body      string
	Author    string
	Published string
	ImageUrl  string
}

const unreadGlyph = "◉ "

func extractSamlRequest(doc *goquery.Document) htmlutil.SamlRequestForm {
	return htmlutil.ExtractSamlRequestForm(doc)
}

// the signing confirmation variant of the idp pages delivers the saml
// payload in textareas instead of hidden inputs, so fall back when the
// input form comes up empty
func extractSamlResponse(doc *goquery.Document) htmlutil.SamlResponseForm {
	form := htmlutil.ExtractSamlResponseForm(doc)
	if form.SamlResponse == "" {
		return htmlutil.ExtractSamlResponseTextareas(doc)
	}
	return form
}

func extractDummy(doc *goquery.Document) htmlutil.DummyForm {
	return htmlutil.ExtractDummyForm(doc)
}

var selectionButtonRegex = regexp.MustCompile(`class="selection_button" href="(.*?)"`)

// scans the method-choice page for selection button links and picks the
// one carrying the requested bankid mode
func findSelectionButton(body string, mode string) string {
	for _, match := range selectionButtonRegex.FindAllStringSubmatch(body, -1) {
		if strings.Contains(match[1], mode) {
			return match[1]
		}
	}
	return ""
}

func custodianUrl(doc *goquery.Document, baseUrl string) string {
	href, ok := doc.Find(`a[href="` + custodianPath + `"]`).First().Attr("href")
	if !ok {
		return ""
	}
	return baseUrl + href
}

// the profile page carries the user in fixed field classes, their
// absence means we got some other page entirely
func scrapeUser(doc *goquery.Document) (User, error) {
	firstName := doc.Find(".field-name-field-firstname .field-item").First()
	lastName := doc.Find(".field-name-field-lastname .field-item").First()
	email := doc.Find(".field-name-field-user-email .field-item").First()

	if len(firstName.Nodes) == 0 || len(lastName.Nodes) == 0 || len(email.Nodes) == 0 {
		return User{}, fmt.Errorf("arena: user profile fields missing, unexpected page")
	}

	return User{
		FirstName: firstName.Text(),
		LastName:  lastName.Text(),
		Email:     email.Text(),
	}, nil
}

var childIdWhitespace = regexp.MustCompile(`\s`)

func scrapeChildren(doc *goquery.Document) []Child {
	var children []Child
	doc.Find(".children .child .child-block h2").Each(func(_ int, h2 *goquery.Selection) {
		name := h2.Text()
		children = append(children, Child{
			Id:   childIdWhitespace.ReplaceAllString(strings.ToLower(name), "-"),
			Name: name,
		})
	})
	return children
}

// Collects the child's news anchors from the start page. An anchor
// without the viewed marker gets the unread glyph so callers can tell
// read from unread without extra state.
func scrapeNews(doc *goquery.Document, child Child, baseUrl string) []NewsItem {
	var news []NewsItem
	doc.Find(".children .child .child-block").Each(func(_ int, block *goquery.Selection) {
		if block.Find("h2").First().Text() != child.Name {
			return
		}
		block.Find("ul.arena-guardian-child-info li.news-and-infoblock-item a").
			Each(func(_ int, link *goquery.Selection) {
				glyph := unreadGlyph
				if link.HasClass("node-viewed") {
					glyph = ""
				}
				href := link.AttrOr("href", "")
				news = append(news, NewsItem{
					Id:     strings.TrimPrefix(href, baseUrl),
					Header: glyph + strings.TrimSuffix(link.Text(), " »"),
				})
			})
	})
	return news
}

var mdConverter = md.NewConverter("", true, nil)

// enriches a list item in place from its detail page. Optional
// sections degrade to empty strings, the assembled body separates
// non-empty sections with blank lines and renders attachments as
// markdown links.
func scrapeNewsDetail(ctx context.Context, doc *goquery.Document, item *NewsItem) error {
	newsBlock := doc.Find("#block-system-main").First()

	rawDate := newsBlock.Find(".submitted .date-display-single").First().Text()
	if rawDate != "" {
		date, err := monday.ParseInLocation("2 Jan 2006", rawDate, timezone.Location, monday.LocaleSvSE)
		if err != nil {
			return fmt.Errorf("arena: bad news date %q: %w", rawDate, err)
		}
		item.Published = date.Format(time.DateOnly)
	}

	item.Author = newsBlock.Find(".submitted .username").First().Text()
	item.ImageUrl = newsBlock.Find(".field-name-field-image img").First().AttrOr("src", "")
	item.Intro = newsBlock.Find(".field-name-field-introduction .field-item").First().Text()

	body := ""
	bodySel := newsBlock.Find(".field-name-body .field-item").First()
	if len(bodySel.Nodes) > 0 {
		rawBody, err := goquery.OuterHtml(bodySel.Children())
		if err != nil {
			return err
		}
		if strings.TrimSpace(rawBody) == "" {
			rawBody = bodySel.Text()
		}
		body, err = mdConverter.ConvertString(rawBody)
		if err != nil {
			return err
		}
	}

	attached := strings.Builder{}
	attachments := newsBlock.Find(".field-name-field-attached-files .field-item a")
	for _, a := range htmlutil.GetAnchors(ctx, attachments) {
		attached.WriteString("[" + a.Name + "](" + a.Href + ")  \n")
	}

	assembled := strings.Builder{}
	if item.Intro != "" {
		assembled.WriteString(item.Intro)
		assembled.WriteString("\n\n")
	}
	if body != "" {
		assembled.WriteString(body)
		assembled.WriteString("\n\n")
	}
	assembled.WriteString(attached.String())

	item.Body = assembled.String()
	return nil
}
