package registry

import "time"

// Clinic is a clinic card as served by the registry API.
type Clinic struct {
	ID       int    `json:"clinicId"`
	Name     string `json:"name"`
	Location string `json:"location"`
	Phone    string `json:"phone,omitempty"`
}

// Doctor is a doctor card. ClinicID links the doctor to a clinic.
type Doctor struct {
	ID          int    `json:"doctorId"`
	Name        string `json:"name"`
	Speciality  string `json:"speciality"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	ClinicID    int    `json:"clinicId"`
}

// Appointment is an appointment record owned by the registry.
type Appointment struct {
	ID               int       `json:"id"`
	DoctorID         int       `json:"doctorId"`
	PatientUUID      string    `json:"patientUuid"`
	PatientName      string    `json:"patientName"`
	AppointmentTime  time.Time `json:"appointmentTime"`
	ClinicName       string    `json:"clinicName,omitempty"`
	DoctorName       string    `json:"doctorName,omitempty"`
	DoctorSpeciality string    `json:"doctorSpeciality,omitempty"`
}

// CreateAppointmentRequest is the body for POST /Appointment.
type CreateAppointmentRequest struct {
	PatientName     string `json:"patientName"`
	PatientUUID     string `json:"patientUuid"`
	Phone           string `json:"phone"`
	AppointmentTime string `json:"appointmentTime"`
	DoctorID        int    `json:"doctorId"`
}

// UpdateAppointmentRequest is the body for PUT /Appointment/{id}.
type UpdateAppointmentRequest struct {
	AppointmentTime string `json:"appointmentTime"`
	DoctorID        int    `json:"doctorId,omitempty"`
}

// DoctorFilter narrows doctor and speciality queries. Zero values are omitted
// from the query string.
type DoctorFilter struct {
	ClinicID    int
	Speciality  string
	Name        string
	Appointment time.Time
}
