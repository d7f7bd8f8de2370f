// Package calendar exposes Google Calendar event management on the
// primary calendar as tools.
package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/ahrav/go-maestro/internal/domain"
)

const (
	primary = "primary"

	// PopupMinutes is the popup reminder lead time set on created events.
	PopupMinutes = 10

	// EmailReminderMinutes is the email reminder lead time.
	EmailReminderMinutes = 24 * 60
)

// Service wraps an authorized Calendar client.
type Service struct {
	cal    *gcal.Service
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used when no date context is given.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service reporting times in loc.
func NewService(cal *gcal.Service, loc *time.Location, logger *zap.Logger, opts ...Option) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{cal: cal, loc: loc, now: time.Now, logger: logger.Named("calendar")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Event is the normalized event shape returned by every tool.
type Event struct {
	ID          string   `json:"id"`
	Summary     string   `json:"summary"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Location    string   `json:"location"`
	Description string   `json:"description"`
	HTMLLink    string   `json:"html_link,omitempty"`
	Attendees   []string `json:"attendees,omitempty"`
}

// NewEvent is the input of Create.
type NewEvent struct {
	Title       string   `json:"title"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	Attendees   []string `json:"attendees"`
}

// Create inserts an event with popup and email reminders.
func (s *Service) Create(ctx context.Context, in NewEvent) (*Event, error) {
	start, err := s.normalizeDateTime(in.Start)
	if err != nil {
		return nil, err
	}
	end, err := s.normalizeDateTime(in.End)
	if err != nil {
		return nil, err
	}

	ev := &gcal.Event{
		Summary:     in.Title,
		Description: in.Description,
		Location:    in.Location,
		Start:       &gcal.EventDateTime{DateTime: start, TimeZone: s.loc.String()},
		End:         &gcal.EventDateTime{DateTime: end, TimeZone: s.loc.String()},
		Reminders: &gcal.EventReminders{
			UseDefault: false,
			Overrides: []*gcal.EventReminder{
				{Method: "email", Minutes: EmailReminderMinutes},
				{Method: "popup", Minutes: PopupMinutes},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}
	for _, email := range in.Attendees {
		ev.Attendees = append(ev.Attendees, &gcal.EventAttendee{Email: email})
	}

	created, err := s.cal.Events.Insert(primary, ev).Context(ctx).Do()
	if err != nil {
		return nil, errors.Wrap(err, "insert event")
	}
	s.logger.Info("calendar event created", zap.String("id", created.Id), zap.String("summary", created.Summary))
	return toEvent(created), nil
}

// ListQuery selects events. Date is a date expression such as "오늘" or
// "이번 주말" resolved against Today; StartDate and EndDate are YYYY-MM-DD
// and take precedence over Date.
type ListQuery struct {
	Date      string `json:"date"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Keyword   string `json:"keyword"`
}

// List returns events in the selected window ordered by start time. With
// no window it lists upcoming events from now.
func (s *Service) List(ctx context.Context, q ListQuery, today time.Time) ([]Event, error) {
	timeMin, timeMax, err := s.window(q, today)
	if err != nil {
		return nil, err
	}

	call := s.cal.Events.List(primary).
		TimeMin(timeMin).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(100).
		Context(ctx)
	if timeMax != "" {
		call = call.TimeMax(timeMax)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, errors.Wrap(err, "list events")
	}

	keyword := strings.ToLower(strings.TrimSpace(q.Keyword))
	events := make([]Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		if keyword != "" &&
			!strings.Contains(strings.ToLower(item.Summary), keyword) &&
			!strings.Contains(strings.ToLower(item.Description), keyword) {
			continue
		}
		events = append(events, *toEvent(item))
	}
	return events, nil
}

func (s *Service) window(q ListQuery, today time.Time) (string, string, error) {
	const layout = domain.TodayLayout
	switch {
	case q.StartDate != "" || q.EndDate != "":
		var from, to string
		if q.StartDate != "" {
			d, err := time.ParseInLocation(layout, q.StartDate, s.loc)
			if err != nil {
				return "", "", errors.Errorf("invalid start_date %q: want YYYY-MM-DD", q.StartDate)
			}
			from = d.Format(time.RFC3339)
		} else {
			from = s.now().In(s.loc).Format(time.RFC3339)
		}
		if q.EndDate != "" {
			d, err := time.ParseInLocation(layout, q.EndDate, s.loc)
			if err != nil {
				return "", "", errors.Errorf("invalid end_date %q: want YYYY-MM-DD", q.EndDate)
			}
			to = domain.DateRange{Start: d, End: d}.EndOfRange().Format(time.RFC3339)
		}
		return from, to, nil
	case strings.TrimSpace(q.Date) != "":
		r, ok := domain.ResolveDateRange(q.Date, today.In(s.loc))
		if !ok {
			return "", "", errors.Errorf("unrecognized date %q", q.Date)
		}
		return r.Start.Format(time.RFC3339), r.EndOfRange().Format(time.RFC3339), nil
	default:
		return s.now().In(s.loc).Format(time.RFC3339), "", nil
	}
}

// Changes lists the fields Modify updates. Nil fields are left alone.
type Changes struct {
	EventID           string   `json:"event_id"`
	Title             *string  `json:"title"`
	Start             *string  `json:"start"`
	End               *string  `json:"end"`
	Description       *string  `json:"description"`
	Location          *string  `json:"location"`
	AttendeesToAdd    []string `json:"attendees_to_add"`
	AttendeesToRemove []string `json:"attendees_to_remove"`
}

// Modify reads the event, applies c and writes it back.
func (s *Service) Modify(ctx context.Context, c Changes) (*Event, error) {
	ev, err := s.cal.Events.Get(primary, c.EventID).Context(ctx).Do()
	if err != nil {
		return nil, errors.Wrapf(err, "get event %s", c.EventID)
	}

	if c.Title != nil {
		ev.Summary = *c.Title
	}
	if c.Description != nil {
		ev.Description = *c.Description
	}
	if c.Location != nil {
		ev.Location = *c.Location
	}
	if c.Start != nil {
		if ev.Start, err = s.replaceDateTime(ev.Start, *c.Start); err != nil {
			return nil, err
		}
	}
	if c.End != nil {
		if ev.End, err = s.replaceDateTime(ev.End, *c.End); err != nil {
			return nil, err
		}
	}

	seen := make(map[string]bool, len(ev.Attendees))
	for _, a := range ev.Attendees {
		seen[a.Email] = true
	}
	for _, email := range c.AttendeesToAdd {
		if !seen[email] {
			ev.Attendees = append(ev.Attendees, &gcal.EventAttendee{Email: email})
			seen[email] = true
		}
	}
	if len(c.AttendeesToRemove) > 0 {
		remove := make(map[string]bool, len(c.AttendeesToRemove))
		for _, email := range c.AttendeesToRemove {
			remove[email] = true
		}
		kept := ev.Attendees[:0]
		for _, a := range ev.Attendees {
			if !remove[a.Email] {
				kept = append(kept, a)
			}
		}
		ev.Attendees = kept
	}

	updated, err := s.cal.Events.Update(primary, c.EventID, ev).Context(ctx).Do()
	if err != nil {
		return nil, errors.Wrapf(err, "update event %s", c.EventID)
	}
	return toEvent(updated), nil
}

// Delete removes the event.
func (s *Service) Delete(ctx context.Context, eventID string) error {
	if err := s.cal.Events.Delete(primary, eventID).Context(ctx).Do(); err != nil {
		return errors.Wrapf(err, "delete event %s", eventID)
	}
	return nil
}

func (s *Service) replaceDateTime(cur *gcal.EventDateTime, value string) (*gcal.EventDateTime, error) {
	dt, err := s.normalizeDateTime(value)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		cur = &gcal.EventDateTime{TimeZone: s.loc.String()}
	}
	cur.DateTime = dt
	cur.Date = ""
	return cur, nil
}

var dateTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// normalizeDateTime accepts RFC 3339 or a local date-time without offset,
// which is read in the service location.
func (s *Service) normalizeDateTime(value string) (string, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.Format(time.RFC3339), nil
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, s.loc); err == nil {
			return t.Format(time.RFC3339), nil
		}
	}
	return "", errors.Errorf("invalid date-time %q: want ISO 8601 such as 2025-07-01T10:00:00+09:00", value)
}

func toEvent(ev *gcal.Event) *Event {
	out := &Event{
		ID:          ev.Id,
		Summary:     ev.Summary,
		Location:    ev.Location,
		Description: ev.Description,
		HTMLLink:    ev.HtmlLink,
		Start:       when(ev.Start),
		End:         when(ev.End),
	}
	if out.Summary == "" {
		out.Summary = "제목 없음"
	}
	if out.Location == "" {
		out.Location = "장소 미정"
	}
	for _, a := range ev.Attendees {
		out.Attendees = append(out.Attendees, a.Email)
	}
	return out
}

func when(dt *gcal.EventDateTime) string {
	if dt == nil {
		return ""
	}
	if dt.DateTime != "" {
		return dt.DateTime
	}
	return dt.Date
}

// deletedMessage is the confirmation returned by delete_calendar_event.
func deletedMessage(id string) string {
	return fmt.Sprintf("이벤트 ID %s가 성공적으로 삭제되었습니다.", id)
}
