package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/clinicdesk/appointmentbot/pkg/logging"
)

const defaultTimeout = 20 * time.Second

// Client is a typed wrapper over the clinic registry REST API. Every method is
// a single request/response round trip; mutations are never retried here.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a registry client for the given base address, e.g.
// "http://localhost:5136/api".
func NewClient(baseURL string, timeout time.Duration, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// ListClinics returns all clinic cards.
func (c *Client) ListClinics(ctx context.Context) ([]Clinic, error) {
	var clinics []Clinic
	if err := c.do(ctx, http.MethodGet, "ClinicCards/", nil, nil, &clinics); err != nil {
		return nil, err
	}
	for i := range clinics {
		clinics[i].Name = titleCase(clinics[i].Name)
		clinics[i].Location = titleCase(clinics[i].Location)
	}
	return clinics, nil
}

// FindClinicsByName returns clinic cards whose name contains the given text.
func (c *Client) FindClinicsByName(ctx context.Context, name string) ([]Clinic, error) {
	var clinics []Clinic
	path := "ClinicCards/name/" + url.PathEscape(strings.ToLower(name))
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &clinics); err != nil {
		return nil, err
	}
	for i := range clinics {
		clinics[i].Name = titleCase(clinics[i].Name)
		clinics[i].Location = titleCase(clinics[i].Location)
	}
	return clinics, nil
}

// GetClinic returns one clinic card by id.
func (c *Client) GetClinic(ctx context.Context, clinicID int) (*Clinic, error) {
	var clinic Clinic
	if err := c.do(ctx, http.MethodGet, "ClinicCards/"+strconv.Itoa(clinicID), nil, nil, &clinic); err != nil {
		return nil, err
	}
	clinic.Name = titleCase(clinic.Name)
	clinic.Location = titleCase(clinic.Location)
	return &clinic, nil
}

// ListSpecialities returns the distinct doctor specialities matching the
// filter. The API serves them as a bare string array.
func (c *Client) ListSpecialities(ctx context.Context, filter DoctorFilter) ([]string, error) {
	var raw []string
	if err := c.do(ctx, http.MethodGet, "DoctorCards/speciality", filter.values(), nil, &raw); err != nil {
		return nil, err
	}
	specs := make([]string, 0, len(raw))
	for _, s := range raw {
		if strings.TrimSpace(s) == "" {
			continue
		}
		specs = append(specs, titleCase(s))
	}
	return specs, nil
}

// ListDoctors returns doctor cards matching the filter.
func (c *Client) ListDoctors(ctx context.Context, filter DoctorFilter) ([]Doctor, error) {
	var doctors []Doctor
	if err := c.do(ctx, http.MethodGet, "DoctorCards", filter.values(), nil, &doctors); err != nil {
		return nil, err
	}
	for i := range doctors {
		doctors[i].Name = titleCase(doctors[i].Name)
		doctors[i].Speciality = titleCase(doctors[i].Speciality)
	}
	return doctors, nil
}

// GetDoctor returns one doctor card by id.
func (c *Client) GetDoctor(ctx context.Context, doctorID int) (*Doctor, error) {
	var doctor Doctor
	if err := c.do(ctx, http.MethodGet, "DoctorCards/"+strconv.Itoa(doctorID), nil, nil, &doctor); err != nil {
		return nil, err
	}
	doctor.Name = titleCase(doctor.Name)
	doctor.Speciality = titleCase(doctor.Speciality)
	return &doctor, nil
}

// DoctorTimeSlots returns a doctor's free times for a date as "HH:MM" strings.
func (c *Client) DoctorTimeSlots(ctx context.Context, doctorID int, date string) ([]string, error) {
	var raw []string
	path := fmt.Sprintf("DoctorCards/%d/timeslots/%s", doctorID, url.PathEscape(date))
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &raw); err != nil {
		return nil, err
	}
	times := make([]string, 0, len(raw))
	for _, t := range raw {
		// The API serves "HH:MM:SS"; keyboards show "HH:MM".
		if len(t) >= 5 {
			times = append(times, t[:5])
		}
	}
	return times, nil
}

// UserAppointments returns the appointments owned by the given internal user.
func (c *Client) UserAppointments(ctx context.Context, patientUUID string) ([]Appointment, error) {
	var appointments []Appointment
	path := "Appointment/user/" + url.PathEscape(patientUUID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &appointments); err != nil {
		return nil, err
	}
	return appointments, nil
}

// CreateAppointment books a new appointment.
func (c *Client) CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (*Appointment, error) {
	var created Appointment
	if err := c.do(ctx, http.MethodPost, "Appointment", nil, req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateAppointment moves an existing appointment.
func (c *Client) UpdateAppointment(ctx context.Context, appointmentID int, req UpdateAppointmentRequest) error {
	return c.do(ctx, http.MethodPut, "Appointment/"+strconv.Itoa(appointmentID), nil, req, nil)
}

// CancelAppointment deletes an appointment.
func (c *Client) CancelAppointment(ctx context.Context, appointmentID int) error {
	return c.do(ctx, http.MethodDelete, "Appointment/"+strconv.Itoa(appointmentID), nil, nil, nil)
}

func (f DoctorFilter) values() url.Values {
	q := url.Values{}
	if f.ClinicID > 0 {
		q.Set("clinicId", strconv.Itoa(f.ClinicID))
	}
	if f.Speciality != "" {
		q.Set("speciality", strings.ToLower(f.Speciality))
	}
	if f.Name != "" {
		q.Set("name", strings.ToLower(f.Name))
	}
	if !f.Appointment.IsZero() {
		q.Set("appointmentDate", f.Appointment.Format("2006-01-02T15:04"))
	}
	return q
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + "/" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("registry: marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("registry: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("registry call", "method", method, "path", path, "status", resp.StatusCode)

	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, resp.Body)
		return statusError(resp.StatusCode, method+" "+path)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: decode response: %v", ErrUnavailable, method, path, err)
	}
	return nil
}

// titleCase uppercases the first letter of each word; the registry stores
// names lowercased.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
