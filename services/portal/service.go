package portal

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/cookiejar"
	"strings"
	"sync"
	"sync/atomic"

	"skolarena/lib/scrapers/alingsas"
	"skolarena/lib/scrapers/arena"
	"skolarena/lib/scrapers/skola24"
	"skolarena/lib/scrapers/skolmaten"
	"skolarena/lib/scrapers/sodexo"
	"skolarena/lib/scrapers/unikum"
	"skolarena/lib/textutil"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("services/portal")

type Event string

const (
	EventLogin  Event = "login"
	EventLogout Event = "logout"
)

// personal numbers with this suffix get the canned offline dataset
const fakeSuffix = "1212121212"

type MenuItem struct {
	Title       string
	Description string
}

// Service aggregates the per-site sub-clients behind one session. All
// sub-clients share a cookie jar, so the primary BankID login carries
// the federation cookies the secondary sites need.
type Service struct {
	mu             sync.Mutex
	personalNumber string

	arena     *arena.Client
	skola24   *skola24.Client
	unikum    *unikum.Client
	skolmaten *skolmaten.Client
	sodexo    *sodexo.Client
	alingsas  *alingsas.Client

	loggedIn atomic.Bool
	fake     atomic.Bool

	events chan Event
}

func NewService() (*Service, error) {
	s := &Service{
		events: make(chan Event, 16),
	}
	if err := s.resetClients(); err != nil {
		return nil, err
	}
	return s, nil
}

// a fresh jar for every session, dropping the jar is the only way to
// log out of the federated sites
func (s *Service) resetClients() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	s.arena = arena.NewClient(jar)
	s.skola24 = skola24.NewClient(jar)
	s.unikum = unikum.NewClient(jar)
	s.skolmaten = skolmaten.NewClient(jar)
	s.sodexo = sodexo.NewClient(jar)
	s.alingsas = alingsas.NewClient(jar)
	return nil
}

// Events delivers login and logout transitions. The channel is
// buffered; events are dropped rather than blocking a scrape.
func (s *Service) Events() <-chan Event {
	return s.events
}

func (s *Service) emit(e Event) {
	select {
	case s.events <- e:
	default:
	}
}

func (s *Service) IsLoggedIn() bool {
	return s.loggedIn.Load()
}

func (s *Service) IsFake() bool {
	return s.fake.Load()
}

func (s *Service) PersonalNumber() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.personalNumber
}

// Login starts a BankID login and returns its status checker. The
// login event fires once the checker resolves OK and, for real
// sessions, the secondary sites have been authenticated.
func (s *Service) Login(ctx context.Context, personalNumber string) (*arena.StatusChecker, error) {
	ctx, span := tracer.Start(ctx, "portal:Login")
	defer span.End()

	if strings.HasSuffix(personalNumber, fakeSuffix) {
		s.fake.Store(true)
		checker := arena.NewResolvedChecker(arena.StatusOK, fakeLoginDelay)
		go s.watchLogin(checker, personalNumber)
		return checker, nil
	}
	s.fake.Store(false)

	checker, err := s.arena.Authenticate(ctx, personalNumber)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to start login")
		return nil, err
	}
	go s.watchLogin(checker, personalNumber)
	return checker, nil
}

func (s *Service) watchLogin(checker *arena.StatusChecker, personalNumber string) {
	<-checker.Done()
	status, _ := checker.Status()
	if status != arena.StatusOK {
		return
	}

	s.mu.Lock()
	s.personalNumber = personalNumber
	s.mu.Unlock()

	if !s.fake.Load() {
		ctx := context.Background()
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return s.skola24.Authenticate(gctx) })
		g.Go(func() error { return s.unikum.Authenticate(gctx) })
		if err := g.Wait(); err != nil {
			// the primary session is still good, the secondary site
			// will retry on first use
			slog.Warn("secondary authentication failed", "err", err)
		}
	}

	s.loggedIn.Store(true)
	s.emit(EventLogin)
}

func (s *Service) GetUser(ctx context.Context) (arena.User, error) {
	if s.fake.Load() {
		return fakedUser(ctx)
	}
	return s.arena.GetUser(ctx)
}

func (s *Service) GetChildren(ctx context.Context) ([]arena.Child, error) {
	if s.fake.Load() {
		return fakedChildren(ctx)
	}
	return s.arena.GetChildren(ctx)
}

func (s *Service) GetNews(ctx context.Context, child arena.Child) ([]arena.NewsItem, error) {
	if s.fake.Load() {
		return fakedNews(ctx)
	}
	return s.arena.GetNews(ctx, child)
}

func (s *Service) GetNewsDetails(ctx context.Context, item *arena.NewsItem) error {
	if s.fake.Load() {
		return nil
	}
	return s.arena.GetNewsDetails(ctx, item)
}

// the roster and the primary portal render the same child's name with
// different casing and whitespace, so matching normalizes both sides
func rosterMatch(entry skola24.Child, child arena.Child) bool {
	return textutil.NormalizeName(entry.FirstName+" "+entry.LastName) ==
		textutil.NormalizeName(child.Name)
}

// GetTimetable renders the child's week. Children without a timetable
// roster entry are assumed to be pre-schoolers and get the presence
// times instead.
func (s *Service) GetTimetable(ctx context.Context, child arena.Child, week int, year int) ([]skola24.TimetableEntry, error) {
	ctx, span := tracer.Start(ctx, "portal:GetTimetable")
	defer span.End()

	if s.fake.Load() {
		return fakedTimetable(ctx, week, year)
	}

	roster, err := s.skola24.Children(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch timetable roster")
		return nil, err
	}
	for _, entry := range roster {
		if rosterMatch(entry, child) {
			return s.skola24.Timetable(ctx, entry, week, year)
		}
	}

	first, last := textutil.SplitName(child.Name)
	return s.skola24.PresenceTimes(ctx, skola24.Child{
		FirstName: first,
		LastName:  last,
	}, week, year)
}

// schools served by the sodexo app instead of skolmaten.se
var sodexoSchools = map[string]bool{
	"Ängaboskolan": true,
	"Nolbyskolan":  true,
}

// school ids whose skolmaten slug does not follow the plain
// transliteration rule
var skolmatenSlugs = map[string]string{
	"Stadsskogenskolan": "aktivitetshuset-stadsskogen-skola",
	"Noltorpsskolan 1":  "noltorpsskolan",
	"Noltorpsskolan 2":  "noltorpsskolan",
}

func skolmatenSlug(schoolId string) string {
	if slug, ok := skolmatenSlugs[schoolId]; ok {
		return slug
	}
	return textutil.SchoolSlug(schoolId)
}

func (s *Service) GetMenu(ctx context.Context, child arena.Child) ([]MenuItem, error) {
	ctx, span := tracer.Start(ctx, "portal:GetMenu")
	defer span.End()

	if s.fake.Load() {
		return fakedMenu(ctx)
	}

	if sodexoSchools[child.SchoolId] {
		items, err := s.sodexo.Menu(ctx)
		if err != nil {
			return nil, err
		}
		menu := make([]MenuItem, 0, len(items))
		for _, item := range items {
			menu = append(menu, MenuItem{Title: item.Title, Description: item.Description})
		}
		return menu, nil
	}

	items, err := s.skolmaten.Menu(ctx, skolmatenSlug(child.SchoolId))
	if err != nil {
		return nil, err
	}
	menu := make([]MenuItem, 0, len(items))
	for _, item := range items {
		menu = append(menu, MenuItem{Title: item.Title, Description: item.Description})
	}
	return menu, nil
}

func (s *Service) GetNotifications(ctx context.Context, child arena.Child) ([]unikum.Notification, error) {
	if s.fake.Load() {
		return fakedNotifications(ctx)
	}
	return s.unikum.Notifications(ctx, child.Name)
}

func (s *Service) GetClassmates(ctx context.Context, child arena.Child) ([]unikum.Person, error) {
	if s.fake.Load() {
		return fakedClassPeople(ctx, unikum.RoleStudents)
	}
	return s.unikum.ClassPeople(ctx, child.Name, unikum.RoleStudents)
}

func (s *Service) GetTeachers(ctx context.Context, child arena.Child) ([]unikum.Person, error) {
	if s.fake.Load() {
		return fakedClassPeople(ctx, unikum.RoleTeachers)
	}
	return s.unikum.ClassPeople(ctx, child.Name, unikum.RoleTeachers)
}

func (s *Service) GetCalendar(ctx context.Context, child arena.Child) ([]alingsas.CalendarItem, error) {
	if s.fake.Load() {
		return fakedCalendar(ctx)
	}
	return s.alingsas.Calendar(ctx)
}

// Logout drops the session: flags, personal number and the shared
// cookie jar.
func (s *Service) Logout(ctx context.Context) error {
	_, span := tracer.Start(ctx, "portal:Logout")
	defer span.End()

	s.mu.Lock()
	s.personalNumber = ""
	err := s.resetClients()
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("portal: failed to reset session: %w", err)
	}

	s.loggedIn.Store(false)
	s.fake.Store(false)
	s.emit(EventLogout)
	return nil
}
