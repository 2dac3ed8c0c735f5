package alingsas

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"skolarena/lib/restyutil"
	"skolarena/lib/textutil"
	"skolarena/lib/timezone"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/snabb/isoweek"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/alingsas")

const calendarUrl = "https://www.alingsas.se/utbildning-och-barnomsorg/lasarstider/lasarstider-for-forskola-grundskola-och-fritidshem/"

type CalendarItem struct {
	Id        int64
	Title     string
	StartDate time.Time
	EndDate   time.Time
	AllDay    bool
}

// Client scrapes the municipality's free-text school-year calendar
// page. No session required.
type Client struct {
	http *resty.Client
	now  func() time.Time
}

func NewClient(jar http.CookieJar) *Client {
	return &Client{
		http: restyutil.NewBrowserClient(jar, "scrapers/alingsas/http"),
		now:  timezone.Now,
	}
}

// Calendar fetches the school-year page and extracts dated items from
// its free text. Only items ending today or later and starting within
// a year are kept.
func (c *Client) Calendar(ctx context.Context) ([]CalendarItem, error) {
	ctx, span := tracer.Start(ctx, "client:Calendar")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		Get(calendarUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch calendar page")
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return nil, err
	}

	today := c.now()
	inAYear := today.AddDate(1, 0, 0)

	var kept []CalendarItem
	for _, item := range parseCalendar(ctx, extractLines(doc)) {
		if !item.EndDate.Before(today) && item.StartDate.Before(inAYear) {
			kept = append(kept, item)
		}
	}
	return kept, nil
}

// extractLines flattens the page content into free-text items, one
// per paragraph, heading or list entry, with <br> turned into
// newlines so multi-line items keep their structure.
func extractLines(doc *goquery.Document) []string {
	var lines []string
	push := func(sel *goquery.Selection) {
		clone := sel.Clone()
		clone.Find("br").ReplaceWithHtml("\n")
		text := strings.TrimSpace(clone.Text())
		if text == "" || text == "NULL" {
			return
		}
		lines = append(lines, text)
	}

	doc.Find(".entry-content p, .entry-content h2, .entry-content ul").Each(
		func(_ int, sel *goquery.Selection) {
			if sel.Is("ul") {
				sel.Find("li").Each(func(_ int, li *goquery.Selection) {
					push(li)
				})
				return
			}
			push(sel)
		},
	)
	return lines
}

var (
	termYearRegexp  = regexp.MustCompile(`(?i)läsår ([0-9]{4})/([0-9]{4})`)
	weekRegexp      = regexp.MustCompile(`(?i)\bvecka ([0-9]{1,2})\b`)
	plainYearRegexp = regexp.MustCompile(`\b[0-9]{4}\b`)
	termRegexp      = regexp.MustCompile(`(?i)hösttermin|vårtermin`)
	dayMonthRegexp  = regexp.MustCompile(`[0-9]{1,2}/[0-9]{1,2}`)
	weekSpanRegexp  = regexp.MustCompile(`(?i)veckorna ([0-9]{1,2})-([0-9]{1,2})`)
	yearListRegexp  = regexp.MustCompile(`^([0-9]{4}):`)
	underYearRegexp = regexp.MustCompile(`(?i)under\s[\wåäö]*\s([0-9]{4})`)
)

func date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, timezone.Location)
}

func weekStart(year, week int) time.Time {
	return isoweek.StartTime(year, week, timezone.Location)
}

// same 32-bit rolling hash the page ids have always used, so item ids
// stay stable across runs
func hashCode(s string) int64 {
	var hash int32
	for _, r := range s {
		hash = hash*31 + int32(r)
	}
	return int64(hash)
}

func dayMonth(raw string) (day, month int) {
	parts := strings.SplitN(raw, "/", 2)
	day, _ = strconv.Atoi(parts[0])
	month, _ = strconv.Atoi(parts[1])
	return day, month
}

func newItem(source, title string, start, end time.Time) CalendarItem {
	return CalendarItem{
		Id:        hashCode(source) + start.UnixMilli(),
		Title:     title,
		StartDate: start,
		EndDate:   end,
		AllDay:    true,
	}
}

// parseCalendar runs each free-text item through a battery of date
// patterns, carrying the school-year headers ("Läsår 2022/2023") as
// state so bare day/month dates can be anchored to the right term.
func parseCalendar(ctx context.Context, lines []string) []CalendarItem {
	var items []CalendarItem
	autumnTermYear, springTermYear := 0, 0

	for _, line := range lines {
		if m := termYearRegexp.FindStringSubmatch(line); m != nil {
			autumnTermYear, _ = strconv.Atoi(m[1])
			springTermYear, _ = strconv.Atoi(m[2])
			continue
		}

		matched := false

		// "Sportlov: Vecka 7, 2022"
		if weekMatch := weekRegexp.FindStringSubmatch(line); weekMatch != nil {
			if yearMatch := plainYearRegexp.FindString(line); yearMatch != "" {
				week, _ := strconv.Atoi(weekMatch[1])
				year, _ := strconv.Atoi(yearMatch)
				start := weekStart(year, week)
				items = append(items, newItem(line, line, start, start.AddDate(0, 0, 7)))
				matched = true
			}
		}

		// "Hösttermin slutar 21/12" anchored to the current school year
		if termMatch := termRegexp.FindString(line); termMatch != "" {
			if dm := dayMonthRegexp.FindString(line); dm != "" {
				year := springTermYear
				if strings.EqualFold(termMatch, "hösttermin") {
					year = autumnTermYear
				}
				day, month := dayMonth(dm)
				start := date(year, month, day)
				items = append(items, newItem(line, line, start, start.AddDate(0, 0, 1)))
				matched = true
			}
		} else if idx := strings.Index(strings.ToLower(line), "startar"); idx != -1 {
			// "Läsåret startar 18/8 och slutar 14/6"
			if dm := dayMonthRegexp.FindString(line[idx:]); dm != "" {
				day, month := dayMonth(dm)
				start := date(autumnTermYear, month, day)
				items = append(items, newItem(line, line, start, start.AddDate(0, 0, 1)))
				matched = true

				if endIdx := strings.Index(strings.ToLower(line), "slutar"); endIdx != -1 {
					if dm := dayMonthRegexp.FindString(line[endIdx:]); dm != "" {
						day, month := dayMonth(dm)
						start := date(springTermYear, month, day)
						items = append(items, newItem(line, line, start, start.AddDate(0, 0, 1)))
					}
				}
			}
		}

		// "Lovdagar veckorna 26-32 2022"
		if spanMatch := weekSpanRegexp.FindStringSubmatch(line); spanMatch != nil {
			firstWeek, _ := strconv.Atoi(spanMatch[1])
			lastWeek, _ := strconv.Atoi(spanMatch[2])
			for _, yearMatch := range plainYearRegexp.FindAllString(line, -1) {
				year, _ := strconv.Atoi(yearMatch)
				start := weekStart(year, firstWeek)
				end := weekStart(year, lastWeek).AddDate(0, 0, 6)
				items = append(items, newItem(line, line, start, end))
				matched = true
			}
		}

		// multi-line year lists: "Studiedagar\n2022: 14/3, 9/5\n2023: 16/1"
		if sublines := strings.Split(line, "\n"); len(sublines) > 1 {
			title := textutil.CollapseWhitespace(line)
			for _, subline := range sublines {
				yearMatch := yearListRegexp.FindStringSubmatch(strings.TrimSpace(subline))
				if yearMatch == nil {
					continue
				}
				year, _ := strconv.Atoi(yearMatch[1])
				for _, dm := range dayMonthRegexp.FindAllString(subline, -1) {
					day, month := dayMonth(dm)
					start := date(year, month, day)
					items = append(items, newItem(line, title, start, start.AddDate(0, 0, 1)))
					matched = true
				}
			}
		}

		// "13/6, 14/6 under sommaren 2022 samt 15/8 under hösten 2022"
		if underMatch := underYearRegexp.FindStringSubmatchIndex(line); underMatch != nil {
			before := line[:underMatch[0]]
			after := line[underMatch[1]:]
			beforeYear, _ := strconv.Atoi(line[underMatch[2]:underMatch[3]])

			for _, dm := range dayMonthRegexp.FindAllString(before, -1) {
				day, month := dayMonth(dm)
				start := date(beforeYear, month, day)
				items = append(items, newItem(line, line, start, start.AddDate(0, 0, 1)))
				matched = true
			}
			if afterYear := plainYearRegexp.FindString(after); afterYear != "" {
				year, _ := strconv.Atoi(afterYear)
				for _, dm := range dayMonthRegexp.FindAllString(after, -1) {
					day, month := dayMonth(dm)
					start := date(year, month, day)
					items = append(items, newItem(line, line, start, start.AddDate(0, 0, 1)))
					matched = true
				}
			}
		}

		if !matched {
			slog.DebugContext(ctx, "unmatched calendar item", slog.String("item", line))
		}
	}
	return items
}
