package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/pkg/config"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

// TimeBlock is a daily window expressed in minutes past midnight.
type TimeBlock struct {
	Start int
	End   int
}

func (b TimeBlock) contains(start, end int) bool {
	return start >= b.Start && end <= b.End
}

func (b TimeBlock) String() string {
	return formatClock(b.Start) + "-" + formatClock(b.End)
}

// SessionPolicy holds the wall-clock rules every session is measured against.
type SessionPolicy struct {
	Location       *time.Location
	GraceDays      int
	EndingSoonLead time.Duration
	Blocks         []TimeBlock
}

// DefaultSessionPolicy uses +08:00, a three day grace period and the 08:00-12:00 / 13:00-17:00 blocks.
func DefaultSessionPolicy() SessionPolicy {
	return NewSessionPolicy(config.SessionPolicyConfig{UTCOffset: "+08:00"})
}

// NewSessionPolicy builds the policy from configuration, falling back to defaults for blank values.
func NewSessionPolicy(cfg config.SessionPolicyConfig) SessionPolicy {
	grace := cfg.ExpiryGraceDays
	if grace <= 0 {
		grace = 3
	}
	lead := cfg.EndingSoonLead
	if lead <= 0 {
		lead = 10 * time.Minute
	}
	return SessionPolicy{
		Location:       cfg.Location(),
		GraceDays:      grace,
		EndingSoonLead: lead,
		Blocks: []TimeBlock{
			block(cfg.MorningBlockStart, cfg.MorningBlockEnd, 8*60, 12*60),
			block(cfg.AfternoonStart, cfg.AfternoonEnd, 13*60, 17*60),
		},
	}
}

func block(start, end string, defStart, defEnd int) TimeBlock {
	s, err := parseClock(start)
	if err != nil {
		s = defStart
	}
	e, err := parseClock(end)
	if err != nil || e <= s {
		return TimeBlock{Start: defStart, End: defEnd}
	}
	return TimeBlock{Start: s, End: e}
}

// Now returns the current instant in the session zone.
func (p SessionPolicy) Now() time.Time {
	return time.Now().In(p.Location)
}

// ValidateSlot checks a requested date and time range against the fixed daily blocks and the
// tutor's published weekly availability. Each failing rule has its own message.
func (p SessionPolicy) ValidateSlot(date models.Date, startRaw, endRaw string, slots []models.TutorAvailability) error {
	start, err := parseClock(startRaw)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	end, err := parseClock(endRaw)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if end <= start {
		return appErrors.Clone(appErrors.ErrValidation, "end time must be after start time")
	}
	if len(slots) == 0 {
		return appErrors.Clone(appErrors.ErrScheduleRejected, "the tutor has not published any availability")
	}

	weekday := date.Weekday().String()
	var sameDay []models.TutorAvailability
	for _, slot := range slots {
		if strings.EqualFold(strings.TrimSpace(slot.DayOfWeek), weekday) {
			sameDay = append(sameDay, slot)
		}
	}
	if len(sameDay) == 0 {
		return appErrors.Clone(appErrors.ErrScheduleRejected, fmt.Sprintf("the tutor is not available on %s", weekday))
	}

	inBlock := false
	for _, b := range p.Blocks {
		if b.contains(start, end) {
			inBlock = true
			break
		}
	}
	if !inBlock {
		names := make([]string, 0, len(p.Blocks))
		for _, b := range p.Blocks {
			names = append(names, b.String())
		}
		return appErrors.Clone(appErrors.ErrScheduleRejected,
			fmt.Sprintf("sessions must fit within one of the daily blocks %s", strings.Join(names, " or ")))
	}

	for _, slot := range sameDay {
		slotStart, errStart := parseClock(slot.StartTime)
		slotEnd, errEnd := parseClock(slot.EndTime)
		if errStart != nil || errEnd != nil {
			continue
		}
		if start >= slotStart && end <= slotEnd {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrScheduleRejected,
		fmt.Sprintf("%s-%s is outside the tutor's available hours on %s", formatClock(start), formatClock(end), weekday))
}

// parseClock accepts "15:04" or "15:04:05" and returns minutes past midnight.
func parseClock(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Hour()*60 + t.Minute(), nil
		}
	}
	return 0, fmt.Errorf("invalid time %q: expected HH:MM", raw)
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// normalizeClock rewrites a valid clock value as HH:MM.
func normalizeClock(raw string) (string, error) {
	minutes, err := parseClock(raw)
	if err != nil {
		return "", err
	}
	return formatClock(minutes), nil
}

// normalizeWeekday maps any casing or three-letter prefix to the full English weekday name.
func normalizeWeekday(raw string) (string, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if len(raw) < 3 {
		return "", false
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := d.String()
		if strings.HasPrefix(strings.ToLower(name), raw) {
			return name, true
		}
	}
	return "", false
}
