package commands

import (
	"log/slog"
	"os"

	"skolarena/lib/timezone"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	scrapeWeek *int
	scrapeYear *int
)

func init() {
	year, week := timezone.Now().ISOWeek()
	scrapeWeek = scrapeCmd.Flags().Int("week", week, "The iso week to fetch the timetable for.")
	scrapeYear = scrapeCmd.Flags().Int("year", year, "The iso week-year to fetch the timetable for.")
	rootCmd.AddCommand(scrapeCmd)
}

func renderTable(header table.Row, rows []table.Row) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(header)
	t.AppendRows(rows)
	t.SetStyle(table.StyleRounded)
	t.Render()
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape <personal number> [--week <n>] [--year <n>]",
	Short: "Logs in and dumps everything the portals know about your children.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		svc := login(ctx, args[0])

		children, err := svc.GetChildren(ctx)
		if err != nil {
			fatal("failed to fetch children", err)
		}
		var childRows []table.Row
		for _, child := range children {
			childRows = append(childRows, table.Row{child.Name, child.SchoolId})
		}
		renderTable(table.Row{"Child", "School"}, childRows)

		for _, child := range children {
			slog.Info("fetching child", "name", child.Name)

			news, err := svc.GetNews(ctx, child)
			if err != nil {
				fatal("failed to fetch news", err)
			}
			var newsRows []table.Row
			for _, item := range news {
				newsRows = append(newsRows, table.Row{item.Published, item.Header, item.Author})
			}
			renderTable(table.Row{"Published", "Header", "Author"}, newsRows)

			timetable, err := svc.GetTimetable(ctx, child, *scrapeWeek, *scrapeYear)
			if err != nil {
				fatal("failed to fetch timetable", err)
			}
			var lessonRows []table.Row
			for _, lesson := range timetable {
				lessonRows = append(lessonRows, table.Row{
					lesson.DateStart, lesson.TimeStart, lesson.TimeEnd, lesson.Name, lesson.Location,
				})
			}
			renderTable(table.Row{"Date", "Start", "End", "Lesson", "Room"}, lessonRows)

			menu, err := svc.GetMenu(ctx, child)
			if err != nil {
				fatal("failed to fetch menu", err)
			}
			var menuRows []table.Row
			for _, item := range menu {
				menuRows = append(menuRows, table.Row{item.Title, item.Description})
			}
			renderTable(table.Row{"Day", "Menu"}, menuRows)

			notifications, err := svc.GetNotifications(ctx, child)
			if err != nil {
				fatal("failed to fetch notifications", err)
			}
			var notificationRows []table.Row
			for _, n := range notifications {
				notificationRows = append(notificationRows, table.Row{n.Date, n.Message})
			}
			renderTable(table.Row{"Date", "Notification"}, notificationRows)

			classmates, err := svc.GetClassmates(ctx, child)
			if err != nil {
				fatal("failed to fetch classmates", err)
			}
			teachers, err := svc.GetTeachers(ctx, child)
			if err != nil {
				fatal("failed to fetch teachers", err)
			}
			var classRows []table.Row
			for _, p := range classmates {
				classRows = append(classRows, table.Row{p.ClassName, "elev", p.FirstName, p.LastName})
			}
			for _, p := range teachers {
				classRows = append(classRows, table.Row{p.ClassName, "lärare", p.FirstName, p.LastName})
			}
			renderTable(table.Row{"Class", "Role", "First name", "Last name"}, classRows)
		}

		if len(children) > 0 {
			calendar, err := svc.GetCalendar(ctx, children[0])
			if err != nil {
				fatal("failed to fetch calendar", err)
			}
			var calendarRows []table.Row
			for _, item := range calendar {
				calendarRows = append(calendarRows, table.Row{
					item.StartDate.Format("2006-01-02"),
					item.EndDate.Format("2006-01-02"),
					item.Title,
				})
			}
			renderTable(table.Row{"Start", "End", "Event"}, calendarRows)
		}

		if err := svc.Logout(ctx); err != nil {
			fatal("failed to log out", err)
		}
	},
}
