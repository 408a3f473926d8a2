package registry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestListClinicsTitleCases(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ClinicCards/" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"clinicId": 1, "name": "city medical center", "location": "main street 5"},
			{"clinicId": 2, "name": "north clinic", "location": "oak avenue 12"},
		})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, 0, nil)
	clinics, err := c.ListClinics(context.Background())
	if err != nil {
		t.Fatalf("ListClinics error: %v", err)
	}
	if len(clinics) != 2 {
		t.Fatalf("expected 2 clinics, got %d", len(clinics))
	}
	if clinics[0].Name != "City Medical Center" {
		t.Fatalf("expected title-cased name, got %q", clinics[0].Name)
	}
	if clinics[1].Location != "Oak Avenue 12" {
		t.Fatalf("expected title-cased location, got %q", clinics[1].Location)
	}
}

func TestListDoctorsFilterQuery(t *testing.T) {
	var gotQuery map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"clinicId":   r.URL.Query().Get("clinicId"),
			"speciality": r.URL.Query().Get("speciality"),
			"name":       r.URL.Query().Get("name"),
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"doctorId": 7, "name": "anna petrova", "speciality": "cardiologist", "clinicId": 3},
		})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, 0, nil)
	doctors, err := c.ListDoctors(context.Background(), DoctorFilter{
		ClinicID:   3,
		Speciality: "Cardiologist",
		Name:       "Petrova",
	})
	if err != nil {
		t.Fatalf("ListDoctors error: %v", err)
	}
	if gotQuery["clinicId"] != "3" || gotQuery["speciality"] != "cardiologist" || gotQuery["name"] != "petrova" {
		t.Fatalf("unexpected query params: %v", gotQuery)
	}
	if len(doctors) != 1 || doctors[0].Name != "Anna Petrova" || doctors[0].Speciality != "Cardiologist" {
		t.Fatalf("unexpected doctors: %+v", doctors)
	}
}

func TestDoctorTimeSlotsTrimsSeconds(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/DoctorCards/7/timeslots/2026-09-01" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode([]string{"09:00:00", "09:30:00", "bad"})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, 0, nil)
	times, err := c.DoctorTimeSlots(context.Background(), 7, "2026-09-01")
	if err != nil {
		t.Fatalf("DoctorTimeSlots error: %v", err)
	}
	want := []string{"09:00", "09:30"}
	if len(times) != len(want) {
		t.Fatalf("expected %v, got %v", want, times)
	}
	for i := range want {
		if times[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, times)
		}
	}
}

func TestCreateAppointment(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/Appointment" {
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode req: %v", err)
		}
		if req.DoctorID != 7 || req.PatientUUID != "uuid-1" {
			t.Fatalf("unexpected request body: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(Appointment{
			ID:              42,
			DoctorID:        7,
			PatientUUID:     "uuid-1",
			PatientName:     "Jane Doe",
			AppointmentTime: time.Date(2026, 9, 1, 9, 30, 0, 0, time.UTC),
			ClinicName:      "city medical center",
			DoctorName:      "anna petrova",
		})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, 0, nil)
	created, err := c.CreateAppointment(context.Background(), CreateAppointmentRequest{
		PatientName:     "Jane Doe",
		PatientUUID:     "uuid-1",
		Phone:           "+15555550123",
		AppointmentTime: "2026-09-01T09:30:00",
		DoctorID:        7,
	})
	if err != nil {
		t.Fatalf("CreateAppointment error: %v", err)
	}
	if created.ID != 42 {
		t.Fatalf("unexpected created appointment: %+v", created)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, ErrNotFound},
		{"conflict", http.StatusConflict, ErrConflict},
		{"validation", http.StatusBadRequest, ErrValidation},
		{"server error", http.StatusInternalServerError, ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer ts.Close()

			c := NewClient(ts.URL, 0, nil)
			_, err := c.GetClinic(context.Background(), 1)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestTransportFailureMapsToUnavailable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 100*time.Millisecond, nil)
	_, err := c.ListClinics(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestCancelAppointmentNoContent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/Appointment/42" {
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, 0, nil)
	if err := c.CancelAppointment(context.Background(), 42); err != nil {
		t.Fatalf("CancelAppointment error: %v", err)
	}
}
