package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"careflow/doctor"
	"careflow/hospital"
	"careflow/identity"
	"careflow/labtest"
	"careflow/medication"
	"careflow/patient"
	"careflow/provision"
	"careflow/specialization"
)

type ctxKey int

const (
	ctxKeyCredentialID ctxKey = iota
	ctxKeyRole
)

type provisioningService interface {
	ProvisionDoctor(ctx context.Context, req provision.DoctorRequest) (provision.DoctorDTO, error)
	GetDoctor(ctx context.Context, id string) (provision.DoctorDTO, error)
	UpdateDoctor(ctx context.Context, upd provision.DoctorUpdate) (provision.DoctorDTO, error)
	DeprovisionDoctor(ctx context.Context, id string) (provision.Confirmation, error)

	ProvisionPatient(ctx context.Context, req provision.PatientRequest) (provision.PatientDTO, error)
	GetPatient(ctx context.Context, id string) (provision.PatientDTO, error)
	UpdatePatient(ctx context.Context, upd provision.PatientUpdate) (provision.PatientDTO, error)
	DeprovisionPatient(ctx context.Context, id string) (provision.Confirmation, error)

	ProvisionHospital(ctx context.Context, req provision.HospitalRequest) (provision.HospitalDTO, error)
	GetHospital(ctx context.Context, id string) (provision.HospitalDTO, error)
	UpdateHospital(ctx context.Context, upd provision.HospitalUpdate) (provision.HospitalDTO, error)
	DeprovisionHospital(ctx context.Context, id string) (provision.Confirmation, error)
}

type identityService interface {
	Login(ctx context.Context, req identity.LoginRequest) (identity.LoginResult, error)
	VerifyToken(tokenString string) (string, identity.Role, error)
}

type catalogService interface {
	Create(ctx context.Context, params specialization.CreateParams) (specialization.Specialization, error)
	List(ctx context.Context, limit int) ([]specialization.Specialization, error)
}

type labTestService interface {
	Create(ctx context.Context, spec labtest.Spec) (labtest.Record, error)
	ListByHospital(ctx context.Context, hospitalID string) ([]labtest.Record, error)
	UpdateCost(ctx context.Context, id string, costCents int64) (labtest.Record, error)
	Delete(ctx context.Context, id string) error
}

type medicationService interface {
	Prescribe(ctx context.Context, spec medication.Spec) (medication.Record, error)
	GetByID(ctx context.Context, id string) (medication.Record, error)
	ListByPatient(ctx context.Context, patientID string) ([]medication.Record, error)
	Discontinue(ctx context.Context, id string) (medication.Record, error)
}

// Server wires the HTTP surface to the services behind it.
type Server struct {
	provisioner provisioningService
	identity    identityService
	catalog     catalogService
	labTests    labTestService
	medications medicationService
	logger      *slog.Logger
	registry    *prometheus.Registry
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", s.handleLogin)

		// Provisioning is self-registration: it creates the credential, so
		// it cannot sit behind one.
		r.Post("/doctors", s.handleProvisionDoctor)
		r.Post("/patients", s.handleProvisionPatient)
		r.Post("/hospitals", s.handleProvisionHospital)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/doctors/{id}", s.handleGetDoctor)
			r.Put("/doctors/{id}", s.handleUpdateDoctor)
			r.Delete("/doctors/{id}", s.handleDeprovisionDoctor)

			r.Get("/patients/{id}", s.handleGetPatient)
			r.Put("/patients/{id}", s.handleUpdatePatient)
			r.Delete("/patients/{id}", s.handleDeprovisionPatient)
			r.Get("/patients/{id}/medications", s.handleListMedications)

			r.Get("/hospitals/{id}", s.handleGetHospital)
			r.Put("/hospitals/{id}", s.handleUpdateHospital)
			r.Delete("/hospitals/{id}", s.handleDeprovisionHospital)
			r.Get("/hospitals/{id}/labtests", s.handleListLabTests)

			r.Get("/specializations", s.handleListSpecializations)
			r.Post("/specializations", s.handleCreateSpecialization)

			r.Post("/labtests", s.handleCreateLabTest)
			r.Patch("/labtests/{id}/cost", s.handleUpdateLabTestCost)
			r.Delete("/labtests/{id}", s.handleDeleteLabTest)

			r.Post("/medications", s.handlePrescribe)
			r.Get("/medications/{id}", s.handleGetMedication)
			r.Patch("/medications/{id}/discontinue", s.handleDiscontinue)
		})
	})

	return r
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		credentialID, role, err := s.identity.VerifyToken(token)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyCredentialID, credentialID)
		ctx = context.WithValue(ctx, ctxKeyRole, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
		return "", false
	}
	return h[len(prefix):], true
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req identity.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid body")
		return
	}
	result, err := s.identity.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": result.Token,
		"role":  result.Credential.Role,
	})
}

func (s *Server) handleProvisionDoctor(w http.ResponseWriter, r *http.Request) {
	var req provision.DoctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid body")
		return
	}
	dto, err := s.provisioner.ProvisionDoctor(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto)
}

func (s *Server) handleGetDoctor(w http.ResponseWriter, r *http.Request) {
	dto, err := s.provisioner.GetDoctor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (s *Server) handleUpdateDoctor(w http.ResponseWriter, r *http.Request) {
	var upd provision.DoctorUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid body")
		return
	}
	upd.ID = chi.URLParam(r, "id")
	dto, err := s.provisioner.UpdateDoctor(r.Context(), upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (s *Server) handleDeprovisionDoctor(w http.ResponseWriter, r *http.Request) {
	conf, err := s.provisioner.DeprovisionDoctor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conf)
}

func (s *Server) handleProvisionPatient(w http.ResponseWriter, r *http.Request) {
	var req provision.PatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid body")
		return
	}
	dto, err := s.provisioner.ProvisionPatient(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto)
}

func (s *Server) handleGetPatient(w http.ResponseWriter, r *http.Request) {
	dto, err := s.provisioner.GetPatient(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (s *Server) handleUpdatePatient(w http.ResponseWriter, r *http.Request) {
	var upd provision.PatientUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid body")
		return
	}
	upd.ID = chi.URLParam(r, "id")
	dto, err := s.provisioner.UpdatePatient(r.Context(), upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (s *Server) handleDeprovisionPatient(w http.ResponseWriter, r *http.Request) {
	conf, err := s.provisioner.DeprovisionPatient(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conf)
}

func (s *Server) handleProvisionHospital(w http.ResponseWriter, r *http.Request) {
	var req provision.HospitalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid body")
		return
	}
	dto, err := s.provisioner.ProvisionHospital(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto)
}

func (s *Server) handleGetHospital(w http.ResponseWriter, r *http.Request) {
	dto, err := s.provisioner.GetHospital(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (s *Server) handleUpdateHospital(w http.ResponseWriter, r *http.Request) {
	var upd provision.HospitalUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid body")
		return
	}
	upd.ID = chi.URLParam(r, "id")
	dto, err := s.provisioner.UpdateHospital(r.Context(), upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (s *Server) handleDeprovisionHospital(w http.ResponseWriter, r *http.Request) {
	conf, err := s.provisioner.DeprovisionHospital(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conf)
}

func (s *Server) handleListSpecializations(w http.ResponseWriter, r *http.Request) {
	items, err := s.catalog.List(r.Context(), 200)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (s *Server) handleCreateSpecialization(w http.ResponseWriter, r *http.Request) {
	var params specialization.CreateParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid body")
		return
	}
	spec, err := s.catalog.Create(r.Context(), params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, spec)
}

func (s *Server) handleCreateLabTest(w http.ResponseWriter, r *http.Request) {
	var spec labtest.Spec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid body")
		return
	}
	rec, err := s.labTests.Create(r.Context(), spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListLabTests(w http.ResponseWriter, r *http.Request) {
	items, err := s.labTests.ListByHospital(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (s *Server) handleUpdateLabTestCost(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CostCents int64 `json:"cost_cents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid body")
		return
	}
	rec, err := s.labTests.UpdateCost(r.Context(), chi.URLParam(r, "id"), body.CostCents)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteLabTest(w http.ResponseWriter, r *http.Request) {
	if err := s.labTests.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePrescribe(w http.ResponseWriter, r *http.Request) {
	var spec medication.Spec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid body")
		return
	}
	rec, err := s.medications.Prescribe(r.Context(), spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGetMedication(w http.ResponseWriter, r *http.Request) {
	rec, err := s.medications.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListMedications(w http.ResponseWriter, r *http.Request) {
	items, err := s.medications.ListByPatient(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (s *Server) handleDiscontinue(w http.ResponseWriter, r *http.Request) {
	rec, err := s.medications.Discontinue(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// writeError maps service errors onto HTTP statuses. Partial deprovisioning
// gets a structured payload so operators can see exactly what is left.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *provision.ValidationError
	var conflict *provision.ConflictError
	var partial *provision.PartialDeprovisioningFailure

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":       validation.Msg,
			"unknown_ids": validation.UnknownIDs,
		})
	case errors.As(err, &conflict):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.As(err, &partial):
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":     "deprovisioning stopped partway",
			"removed":   partial.Removed,
			"remaining": partial.Remaining,
		})
	case errors.Is(err, doctor.ErrNotFound),
		errors.Is(err, patient.ErrNotFound),
		errors.Is(err, hospital.ErrNotFound),
		errors.Is(err, specialization.ErrNotFound),
		errors.Is(err, labtest.ErrNotFound),
		errors.Is(err, medication.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, specialization.ErrDuplicateName),
		errors.Is(err, medication.ErrDiscontinued):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, labtest.ErrUnknownHospital),
		errors.Is(err, medication.ErrBadReference),
		errors.Is(err, identity.ErrWeakSecret):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		if s.logger != nil {
			s.logger.ErrorContext(r.Context(), "request failed",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
		}
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
