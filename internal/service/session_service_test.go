package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"vivaroom/internal/model"
)

func newTestSessionService(t *testing.T) (*SessionService, *memSessionRepo, *memBroadcaster) {
	t.Helper()
	repo := newMemSessionRepo()
	bc := &memBroadcaster{}
	svc := NewSessionService(repo, newMemSessionCache())
	svc.SetBroadcaster(bc)
	return svc, repo, bc
}

func scheduleSession(t *testing.T, svc *SessionService) *model.Session {
	t.Helper()
	s, err := svc.CreateSession(context.Background(), "examiner-1", "Asha Rao",
		time.Now().Add(time.Hour), 15, model.SessionModeOnline)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return s
}

func TestStartStampsActualStartTimeOnce(t *testing.T) {
	svc, _, bc := newTestSessionService(t)
	s := scheduleSession(t, svc)

	started, err := svc.Start(context.Background(), s.ID, "examiner-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if started.Status != model.SessionInProgress {
		t.Errorf("status = %s, want in_progress", started.Status)
	}
	if started.ActualStartTime == nil {
		t.Fatal("ActualStartTime not stamped")
	}

	// Second start must be rejected as stale, not re-stamp the clock.
	_, err = svc.Start(context.Background(), s.ID, "examiner-1")
	var stale *StaleStateError
	if !errors.As(err, &stale) {
		t.Fatalf("second start: got %v, want StaleStateError", err)
	}
	if stale.Current != model.SessionInProgress {
		t.Errorf("stale current = %s, want in_progress", stale.Current)
	}

	kinds := bc.kinds()
	if len(kinds) != 1 || kinds[0] != string(model.SignalSessionStarted) {
		t.Errorf("broadcasts = %v, want one session-started", kinds)
	}
}

func TestStartRejectsNonHost(t *testing.T) {
	svc, _, _ := newTestSessionService(t)
	s := scheduleSession(t, svc)

	if _, err := svc.Start(context.Background(), s.ID, "someone-else"); err != ErrNotHost {
		t.Errorf("got %v, want ErrNotHost", err)
	}
}

func TestStartLosesConditionalWriteRace(t *testing.T) {
	svc, repo, _ := newTestSessionService(t)
	s := scheduleSession(t, svc)

	// Another writer completes the CanTransition check first.
	repo.forceStatus(s.ID, model.SessionCancelled)

	_, err := svc.Start(context.Background(), s.ID, "examiner-1")
	var stale *StaleStateError
	if !errors.As(err, &stale) {
		t.Fatalf("got %v, want StaleStateError", err)
	}
	if stale.Current != model.SessionCancelled {
		t.Errorf("stale current = %s, want cancelled", stale.Current)
	}
}

func TestCompleteRecordsResult(t *testing.T) {
	svc, _, bc := newTestSessionService(t)
	s := scheduleSession(t, svc)
	if _, err := svc.Start(context.Background(), s.ID, "examiner-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done, err := svc.Complete(context.Background(), s.ID, "examiner-1", &CompleteRequest{
		MarksObtained:   42,
		MaxMarks:        50,
		ExaminerRemarks: "solid defence",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != model.SessionCompleted {
		t.Errorf("status = %s, want completed", done.Status)
	}
	if done.MarksObtained == nil || *done.MarksObtained != 42 {
		t.Errorf("marks not recorded: %+v", done.MarksObtained)
	}
	if done.EndedAt == nil {
		t.Error("EndedAt not stamped")
	}

	kinds := bc.kinds()
	if len(kinds) != 2 || kinds[1] != string(model.SignalSessionEnded) {
		t.Errorf("broadcasts = %v, want session-started then session-ended", kinds)
	}
}

func TestCompleteRequiresInProgress(t *testing.T) {
	svc, _, _ := newTestSessionService(t)
	s := scheduleSession(t, svc)

	_, err := svc.Complete(context.Background(), s.ID, "examiner-1", &CompleteRequest{
		MarksObtained: 10, MaxMarks: 20,
	})
	var stale *StaleStateError
	if !errors.As(err, &stale) {
		t.Fatalf("complete from scheduled: got %v, want StaleStateError", err)
	}
	if stale.Current != model.SessionScheduled {
		t.Errorf("stale current = %s, want scheduled", stale.Current)
	}
}

func TestCompleteValidatesMarks(t *testing.T) {
	svc, _, _ := newTestSessionService(t)
	s := scheduleSession(t, svc)
	if _, err := svc.Start(context.Background(), s.ID, "examiner-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	bad := []*CompleteRequest{
		{MarksObtained: 5, MaxMarks: 0},
		{MarksObtained: -1, MaxMarks: 10},
		{MarksObtained: 11, MaxMarks: 10},
	}
	for _, req := range bad {
		if _, err := svc.Complete(context.Background(), s.ID, "examiner-1", req); err == nil {
			t.Errorf("marks %d/%d accepted, want error", req.MarksObtained, req.MaxMarks)
		}
	}

	// Session must still be completable after rejected requests.
	if _, err := svc.Complete(context.Background(), s.ID, "examiner-1",
		&CompleteRequest{MarksObtained: 10, MaxMarks: 10}); err != nil {
		t.Errorf("valid complete after invalid attempts: %v", err)
	}
}

func TestMarkMissedFromScheduledAndInProgress(t *testing.T) {
	svc, _, _ := newTestSessionService(t)

	s1 := scheduleSession(t, svc)
	missed, err := svc.MarkMissed(context.Background(), s1.ID, "examiner-1", "student absent")
	if err != nil {
		t.Fatalf("MarkMissed from scheduled: %v", err)
	}
	if missed.Status != model.SessionCancelled || missed.MissReason != "student absent" {
		t.Errorf("got %s/%q, want cancelled/student absent", missed.Status, missed.MissReason)
	}

	s2 := scheduleSession(t, svc)
	if _, err := svc.Start(context.Background(), s2.ID, "examiner-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := svc.MarkMissed(context.Background(), s2.ID, "examiner-1", "abandoned"); err != nil {
		t.Fatalf("MarkMissed from in_progress: %v", err)
	}

	// Terminal sessions stay put.
	_, err = svc.MarkMissed(context.Background(), s1.ID, "examiner-1", "again")
	var stale *StaleStateError
	if !errors.As(err, &stale) {
		t.Errorf("MarkMissed on cancelled: got %v, want StaleStateError", err)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	svc, _, _ := newTestSessionService(t)
	if _, err := svc.GetSession(context.Background(), "viva_missing"); err != ErrSessionNotFound {
		t.Errorf("got %v, want ErrSessionNotFound", err)
	}
}

func TestCreateSessionRejectsNonPositiveDuration(t *testing.T) {
	svc, _, _ := newTestSessionService(t)
	if _, err := svc.CreateSession(context.Background(), "examiner-1", "Asha Rao",
		time.Now(), 0, model.SessionModeOnline); err == nil {
		t.Error("zero duration accepted, want error")
	}
}
