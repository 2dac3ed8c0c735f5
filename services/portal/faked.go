package portal

import (
	"context"
	"time"

	"skolarena/lib/scrapers/alingsas"
	"skolarena/lib/scrapers/arena"
	"skolarena/lib/scrapers/skola24"
	"skolarena/lib/scrapers/unikum"
	"skolarena/lib/timezone"
)

// the canned dataset keeps roughly the latency of a real scrape so ui
// code exercised against it behaves the same
const (
	fakeLoginDelay    = 50 * time.Millisecond
	fakeResponseDelay = 50 * time.Millisecond
)

func fakeDelay(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(fakeResponseDelay):
		return nil
	}
}

func fakedUser(ctx context.Context) (arena.User, error) {
	if err := fakeDelay(ctx); err != nil {
		return arena.User{}, err
	}
	return arena.User{
		FirstName: "Namn",
		LastName:  "Namnsson",
		Email:     "namn.namnsson@example.com",
	}, nil
}

func fakedChildren(ctx context.Context) ([]arena.Child, error) {
	if err := fakeDelay(ctx); err != nil {
		return nil, err
	}
	return []arena.Child{
		{Id: "barn-ett-namnsson", Name: "Barn Ett Namnsson", SchoolId: "Noltorpsskolan 1"},
		{Id: "barn-tva-namnsson", Name: "Barn Två Namnsson", SchoolId: "Ängaboskolan"},
	}, nil
}

func fakedNews(ctx context.Context) ([]arena.NewsItem, error) {
	if err := fakeDelay(ctx); err != nil {
		return nil, err
	}
	return []arena.NewsItem{
		{
			Id:        "/aktuellt/studiedag",
			Header:    "◉ Studiedag 14 mars",
			Intro:     "Den 14 mars har skolan studiedag.",
			Body:      "Den 14 mars har skolan studiedag.\n\nFritids har öppet som vanligt.",
			Author:    "Rektorn",
			Published: "2022-02-20",
		},
		{
			Id:        "/aktuellt/vinterkonsert",
			Header:    "Vinterkonsert i aulan",
			Intro:     "Välkomna på vinterkonsert.",
			Body:      "Välkomna på vinterkonsert.\n\nKonserten börjar klockan 17.",
			Author:    "Musikläraren",
			Published: "2022-02-15",
		},
	}, nil
}

func fakedTimetable(ctx context.Context, week int, year int) ([]skola24.TimetableEntry, error) {
	if err := fakeDelay(ctx); err != nil {
		return nil, err
	}
	return []skola24.TimetableEntry{
		{
			Id:        "fake-ma",
			Name:      "Matematik",
			Teacher:   "NN",
			Location:  "Sal 1",
			TimeStart: "08:10",
			TimeEnd:   "09:10",
			DayOfWeek: 1,
		},
		{
			Id:        "fake-sv",
			Name:      "Svenska",
			Teacher:   "NN",
			Location:  "Sal 2",
			TimeStart: "09:30",
			TimeEnd:   "10:30",
			DayOfWeek: 1,
		},
	}, nil
}

func fakedMenu(ctx context.Context) ([]MenuItem, error) {
	if err := fakeDelay(ctx); err != nil {
		return nil, err
	}
	return []MenuItem{
		{Title: "Måndag - Vecka 8", Description: "Köttbullar med potatismos"},
		{Title: "Tisdag - Vecka 8", Description: "Fisksoppa"},
		{Title: "Onsdag - Vecka 8", Description: "Pannkakor"},
		{Title: "Torsdag - Vecka 8", Description: "Kycklinggryta"},
		{Title: "Fredag - Vecka 8", Description: "Tacos"},
	}, nil
}

func fakedNotifications(ctx context.Context) ([]unikum.Notification, error) {
	if err := fakeDelay(ctx); err != nil {
		return nil, err
	}
	return []unikum.Notification{
		{
			Id:      "/unikum/notifications/item/1",
			Message: "Ny blogg: Vi har arbetat med vatten i veckan",
			Date:    "2022-02-21T09:12:00",
			Sender:  "Unikum",
			Url:     "https://start.unikum.net/unikum/notifications/item/1",
		},
	}, nil
}

func fakedClassPeople(ctx context.Context, role unikum.Role) ([]unikum.Person, error) {
	if err := fakeDelay(ctx); err != nil {
		return nil, err
	}
	if role == unikum.RoleTeachers {
		return []unikum.Person{
			{FirstName: "Lärare", LastName: "Lärarsson", ClassName: "ABC21b"},
		}, nil
	}
	return []unikum.Person{
		{FirstName: "Anna", LastName: "Svensson", ClassName: "ABC21b"},
		{FirstName: "Erik", LastName: "Svensson", ClassName: "ABC21b"},
	}, nil
}

func fakedCalendar(ctx context.Context) ([]alingsas.CalendarItem, error) {
	if err := fakeDelay(ctx); err != nil {
		return nil, err
	}
	start := time.Date(2022, 4, 18, 0, 0, 0, 0, timezone.Location)
	return []alingsas.CalendarItem{
		{
			Id:        1,
			Title:     "Påsklov: Vecka 16, 2022",
			StartDate: start,
			EndDate:   start.AddDate(0, 0, 7),
			AllDay:    true,
		},
	}, nil
}
