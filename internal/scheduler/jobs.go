package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"classsync/internal/analytics"
	"classsync/internal/metrics"
	"classsync/internal/notify"
	"classsync/internal/roster"
)

const lastMinuteOfDay = 23*60 + 59

// RunLowAttendance warns every student below threshold in every subject.
// A subject whose stats cannot be computed is logged and skipped.
func (s *Scheduler) RunLowAttendance(ctx context.Context) (Report, error) {
	var rep Report
	subjects, err := s.deps.Subjects.ListSubjects(ctx)
	if err != nil {
		return rep, fmt.Errorf("list subjects: %w", err)
	}
	for _, sub := range subjects {
		rep.Units++
		stats, err := s.deps.Stats.SubjectStats(ctx, sub.ID)
		if err != nil {
			rep.Failed++
			s.logger.Warn("skipping subject", zap.String("subject_id", sub.ID), zap.Error(err))
			continue
		}
		for _, st := range stats {
			if !analytics.IsAtRisk(st.Present, st.Held, s.cfg.Threshold) {
				continue
			}
			n := s.lowAttendance(sub, st)
			key := notify.CooldownKey(st.StudentID, n.Category, sub.ID)
			ok, err := s.deps.Suppressor.Allow(ctx, key)
			if err != nil {
				s.logger.Warn("cooldown check failed, sending anyway", zap.String("student_id", st.StudentID), zap.Error(err))
				ok = true
			}
			if !ok {
				rep.Suppressed++
				metrics.NotificationsSuppressed.WithLabelValues(string(n.Category)).Inc()
				continue
			}
			if err := s.deps.Sink.Emit(ctx, n); err != nil {
				rep.Failed++
				s.logger.Warn("emit low attendance failed", zap.String("student_id", st.StudentID), zap.String("subject_id", sub.ID), zap.Error(err))
				if err := s.deps.Suppressor.Release(ctx, key); err != nil {
					s.logger.Warn("cooldown release failed", zap.String("student_id", st.StudentID), zap.Error(err))
				}
				continue
			}
			rep.Emitted++
		}
	}
	return rep, nil
}

func (s *Scheduler) lowAttendance(sub roster.Subject, st analytics.Stat) notify.Notification {
	pct := st.DisplayPercent()
	needed := analytics.ClassesNeeded(st.Present, st.Held, s.cfg.Threshold)
	extra := ""
	if needed > 0 {
		extra = fmt.Sprintf(" You need to attend approximately %d more classes in this subject (without missing) to reach %.0f%%.", needed, s.cfg.Threshold)
	}
	return notify.Notification{
		RecipientID: st.StudentID,
		Role:        notify.RoleStudent,
		Category:    notify.CategoryLowAttendance,
		Title:       "Low attendance warning",
		Message: fmt.Sprintf("Your attendance in %s (%s) is %.1f%%, which is below %.0f%%. Please attend classes regularly.%s",
			sub.Name, sub.Code, pct, s.cfg.Threshold, extra),
		Payload: map[string]any{
			"subject_id":     sub.ID,
			"subject_code":   sub.Code,
			"percentage":     pct,
			"threshold":      s.cfg.Threshold,
			"classes_needed": needed,
		},
	}
}

// RunReminders notifies each section whose class starts within the
// lookahead on the current weekday. The window ends at 23:59; slots after
// midnight are picked up by the next day's ticks.
func (s *Scheduler) RunReminders(ctx context.Context) (Report, error) {
	var rep Report
	now := s.now().In(s.cfg.Location)
	from := now.Hour()*60 + now.Minute()
	to := from + int(s.cfg.Lookahead.Minutes())
	if to > lastMinuteOfDay {
		to = lastMinuteOfDay
	}

	slots, err := s.deps.Timetable.SlotsForDay(ctx, now.Weekday())
	if err != nil {
		return rep, fmt.Errorf("slots for %s: %w", now.Weekday(), err)
	}
	for _, slot := range slots {
		start, err := slot.StartMinute()
		if err != nil {
			s.logger.Warn("bad slot start time", zap.String("slot_id", slot.ID), zap.Error(err))
			continue
		}
		if start < from || start > to {
			continue
		}
		rep.Units++
		students, err := s.deps.Students.StudentsInSection(ctx, slot.Section)
		if err != nil {
			rep.Failed++
			s.logger.Warn("skipping slot", zap.String("slot_id", slot.ID), zap.String("section", slot.Section), zap.Error(err))
			continue
		}
		if len(students) == 0 {
			continue
		}
		ids := make([]string, 0, len(students))
		for _, stu := range students {
			ids = append(ids, stu.ID)
		}
		batch := notify.Fanout(reminder(slot), ids)
		if err := s.deps.Sink.EmitBulk(ctx, batch); err != nil {
			rep.Failed++
			s.logger.Warn("emit reminders failed", zap.String("slot_id", slot.ID), zap.Error(err))
			continue
		}
		rep.Emitted += len(batch)
	}
	return rep, nil
}

func reminder(slot roster.Slot) notify.Notification {
	room := slot.Room
	if room == "" {
		room = "Classroom"
	}
	return notify.Notification{
		Role:     notify.RoleStudent,
		Category: notify.CategoryClassReminder,
		Title:    "Class starting soon",
		Message: fmt.Sprintf("Your class for %s (%s) is scheduled at %s in %s. Please be on time.",
			slot.SubjectName, slot.SubjectCode, slot.StartTime, room),
		Payload: map[string]any{
			"subject_id":   slot.SubjectID,
			"subject_code": slot.SubjectCode,
			"section":      slot.Section,
			"start_time":   slot.StartTime,
			"room":         room,
		},
	}
}
