package database

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"santiago-a-pie/models"
)

func TestUpsertSegmentScore(t *testing.T) {
	it(func() {
		d := NewDatabaseFromConn(db)

		mock.ExpectExec("INSERT\\s+INTO segment_scores \\(segment_id, score, report_count\\)").
			WithArgs(int64(7), 32.5, 4, 32.5, 4).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := d.UpsertSegmentScore(context.Background(), &models.SegmentScore{
			SegmentID:   7,
			Score:       32.5,
			ReportCount: 4,
		})
		if err != nil {
			t.Fatalf("UpsertSegmentScore: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Unmet expectations: %v", err)
		}
	})
}

func TestGetSegmentScores(t *testing.T) {
	it(func() {
		d := NewDatabaseFromConn(db)
		now := time.Now()

		rows := sqlmock.NewRows([]string{"segment_id", "score", "report_count", "updated_at"}).
			AddRow(1, 32.5, 4, now).
			AddRow(2, 71.0, 1, now)

		mock.ExpectQuery("SELECT segment_id, score, report_count, updated_at FROM segment_scores").
			WillReturnRows(rows)

		scores, err := d.GetSegmentScores(context.Background())
		if err != nil {
			t.Fatalf("GetSegmentScores: %v", err)
		}
		if len(scores) != 2 {
			t.Fatalf("Expected 2 scores, got %d", len(scores))
		}
		if scores[1].Score != 32.5 || scores[2].Score != 71.0 {
			t.Errorf("Unexpected scores: %+v", scores)
		}
	})
}

func TestGetReportsForScoring(t *testing.T) {
	it(func() {
		d := NewDatabaseFromConn(db)
		now := time.Now()
		cutoff := now.Add(-120 * 24 * time.Hour)

		rows := sqlmock.NewRows([]string{"segment_id", "comuna_id", "category", "severity", "ts"}).
			AddRow(1, 10, models.CategoryCrime, 5, now).
			AddRow(2, nil, models.CategoryDog, 2, now)

		mock.ExpectQuery("SELECT segment_id, comuna_id, category, severity, ts\\s+FROM reports\\s+WHERE segment_id IS NOT NULL AND ts >= (.+)").
			WithArgs(cutoff).
			WillReturnRows(rows)

		inputs, err := d.GetReportsForScoring(context.Background(), cutoff)
		if err != nil {
			t.Fatalf("GetReportsForScoring: %v", err)
		}
		if len(inputs) != 2 {
			t.Fatalf("Expected 2 inputs, got %d", len(inputs))
		}
		if !inputs[0].ComunaID.Valid || inputs[0].ComunaID.Int64 != 10 {
			t.Errorf("Input 0 comuna: %+v", inputs[0].ComunaID)
		}
		if inputs[1].ComunaID.Valid {
			t.Errorf("Input 1 should have no comuna, got %+v", inputs[1].ComunaID)
		}
	})
}

func TestAddComunaContact(t *testing.T) {
	it(func() {
		d := NewDatabaseFromConn(db)

		// New contact inserts.
		mock.ExpectQuery("SELECT email FROM comuna_contacts WHERE comuna_id = (.+) AND email = (.+)").
			WithArgs(int64(3), "vecina@example.cl").
			WillReturnRows(sqlmock.NewRows([]string{"email"}))
		mock.ExpectExec("INSERT INTO comuna_contacts \\(comuna_id, email, consent_alerts\\)").
			WithArgs(int64(3), "vecina@example.cl", true).
			WillReturnResult(sqlmock.NewResult(1, 1))

		if err := d.AddComunaContact(context.Background(), 3, "vecina@example.cl", true); err != nil {
			t.Fatalf("AddComunaContact insert: %v", err)
		}

		// Existing contact updates consent.
		mock.ExpectQuery("SELECT email FROM comuna_contacts WHERE comuna_id = (.+) AND email = (.+)").
			WithArgs(int64(3), "vecina@example.cl").
			WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("vecina@example.cl"))
		mock.ExpectExec("UPDATE comuna_contacts SET consent_alerts = (.+)").
			WithArgs(false, int64(3), "vecina@example.cl").
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := d.AddComunaContact(context.Background(), 3, "vecina@example.cl", false); err != nil {
			t.Fatalf("AddComunaContact update: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Unmet expectations: %v", err)
		}
	})
}

func TestGetAlertableContacts(t *testing.T) {
	it(func() {
		d := NewDatabaseFromConn(db)

		mock.ExpectQuery("SELECT email FROM comuna_contacts\\s+WHERE comuna_id = (.+) AND consent_alerts = true").
			WithArgs(int64(3), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"email"}).
				AddRow("vecina@example.cl").
				AddRow("junta@example.cl"))

		emails, err := d.GetAlertableContacts(context.Background(), 3, 24*time.Hour)
		if err != nil {
			t.Fatalf("GetAlertableContacts: %v", err)
		}
		if len(emails) != 2 {
			t.Errorf("Expected 2 contacts, got %d", len(emails))
		}
	})
}
