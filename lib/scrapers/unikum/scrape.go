package unikum

import (
	"regexp"
	"sort"
	"strings"

	"skolarena/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

type Person struct {
	FirstName string
	LastName  string
	ClassName string
}

type Notification struct {
	Id      string
	Message string
	Date    string
	Sender  string
	Url     string
}

type classLink struct {
	Href string
	Name string
}

// journal class names look like "ABC21b"; tuition groups and other
// relation cards don't
var classNameRegexp = regexp.MustCompile(`^[A-ZÅÄÖ]{3}[0-9]{2}[0-9A-Za-zÅåÄäÖö]*$`)

func scrapeChildUrl(doc *goquery.Document, childName string) string {
	href := ""
	doc.Find(".card.principalcard .card-body").EachWithBreak(
		func(_ int, cardBody *goquery.Selection) bool {
			name := strings.TrimSpace(cardBody.Find(".principalcard__name").Text())
			if name != childName {
				return true
			}
			href = cardBody.AttrOr("href", "")
			return false
		},
	)
	return href
}

func scrapeClassUrls(doc *goquery.Document) []classLink {
	var links []classLink
	doc.Find(".row.relations .card.principalcard.group .card-body").Each(
		func(_ int, cardBody *goquery.Selection) {
			if cardBody.Parent().HasClass("tuitiongroup") {
				return
			}
			name := cardBody.AttrOr("data-testid", "")
			if !classNameRegexp.MatchString(name) {
				return
			}
			links = append(links, classLink{
				Href: cardBody.AttrOr("href", ""),
				Name: name,
			})
		},
	)
	return links
}

func scrapeClassPeople(doc *goquery.Document, role Role, className string) []Person {
	var names []string
	doc.Find(".panel.panel-borderless").Each(func(_ int, panel *goquery.Selection) {
		title := strings.TrimSpace(panel.Find(".panel-title").Text())
		if !strings.HasPrefix(strings.ToLower(title), string(role)) {
			return
		}
		panel.Find(".card.principalcard .principalcard__name").Each(
			func(_ int, name *goquery.Selection) {
				names = append(names, strings.TrimSpace(name.Text()))
			},
		)
	})
	sort.Strings(names)

	people := make([]Person, 0, len(names))
	for _, name := range names {
		first, last := textutil.SplitName(name)
		people = append(people, Person{
			FirstName: first,
			LastName:  last,
			ClassName: className,
		})
	}
	return people
}

func scrapeGuardianId(doc *goquery.Document, childName string) string {
	id := ""
	doc.Find("#notifications_guardian_guardian .notification-container .collapsable-header").
		EachWithBreak(func(_ int, header *goquery.Selection) bool {
			// exact match, a child's name can be a prefix of a
			// sibling's
			heading := textutil.CollapseWhitespace(header.Find("h3").Text())
			if heading != childName {
				return true
			}
			target := header.AttrOr("data-target", "")
			id = strings.TrimPrefix(target, "#notifications_guardian_")
			return false
		})
	return id
}

func scrapeNotifications(doc *goquery.Document, baseUrl string) []Notification {
	var notifications []Notification
	doc.Find("div.notification").Each(func(_ int, block *goquery.Selection) {
		anchor := block.Find("a").First()
		href, ok := anchor.Attr("href")
		if !ok {
			return
		}

		body := anchor.Clone()
		body.Find(".meta").Remove()
		message := textutil.CollapseWhitespace(body.Text())
		date := anchor.Find(".meta .jq-notification-date").AttrOr("data-date", "")

		notifications = append(notifications, Notification{
			Id:      href,
			Message: message,
			Date:    date,
			Sender:  "Unikum",
			Url:     baseUrl + href,
		})
	})
	return notifications
}
