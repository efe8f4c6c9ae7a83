package identity

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/apperr"
	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/auth"
	"github.com/kitalmartial-lang/medipatient-backend/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Auth. /auth/login is public through auth.AuthSkipper.
	api.POST("/auth/login", h.Login)
	api.GET("/auth/me", h.Me, auth.RequireAuthenticated())
	api.POST("/auth/change-password", h.ChangePassword, auth.RequireAuthenticated())

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/profiles", h.SearchProfiles)
	admin.GET("/profiles/stats", h.ProfileStats)
	admin.POST("/profiles", h.CreateProfile)
	admin.DELETE("/profiles/:id", h.DeleteProfile)
	admin.PATCH("/admin/users/:id/toggle", h.ToggleEnabled)
	admin.PATCH("/admin/users/:id/role", h.ChangeRole)
	admin.POST("/admin/users/:id/reset-password", h.ResetPassword)

	self := api.Group("", auth.RequireAuthenticated())
	self.GET("/profiles/:id", h.GetProfile)
	self.PUT("/profiles/:id", h.UpdateProfile)

	// Reference data readable by every authenticated role.
	self.GET("/specialties", h.SearchSpecialties)
	self.GET("/specialties/:id", h.GetSpecialty)
	self.GET("/doctors", h.SearchDoctors)
	self.GET("/doctors/:id", h.GetDoctor)

	admin.POST("/specialties", h.CreateSpecialty)
	admin.PUT("/specialties/:id", h.UpdateSpecialty)
	admin.DELETE("/specialties/:id", h.DeleteSpecialty)
	admin.POST("/doctors", h.CreateDoctor)
	admin.PUT("/doctors/:id", h.UpdateDoctor)
	admin.DELETE("/doctors/:id", h.DeleteDoctor)
	api.PATCH("/doctors/:id/availability", h.SetAvailability, auth.RequireRole(auth.RoleDoctor))

	staffRead := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleAgent))
	staffRead.GET("/patients", h.SearchPatients)
	staffRead.GET("/patients/:id", h.GetPatient)

	staffWrite := api.Group("", auth.RequireRole(auth.RoleAgent))
	staffWrite.POST("/patients", h.CreatePatient)
	staffWrite.PUT("/patients/:id", h.UpdatePatient)
	admin.DELETE("/patients/:id", h.DeletePatient)
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Invalid(name, "must be a UUID")
	}
	return id, nil
}

func bindBody(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

// callerID returns the profile id of the authenticated caller.
func callerID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, apperr.Unauthorized("no authenticated profile")
	}
	return id, nil
}

// selfOrAdmin lets admins act on any profile and everyone else on their own.
func selfOrAdmin(c echo.Context, id uuid.UUID) error {
	if auth.RoleFromContext(c.Request().Context()) == auth.RoleAdmin {
		return nil
	}
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	if caller != id {
		return echo.NewHTTPError(http.StatusForbidden, "insufficient permissions")
	}
	return nil
}

func optionalInt(c echo.Context, name string) (*int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, apperr.Invalid(name, "must be an integer")
	}
	return &n, nil
}

// -- Auth --

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	if req.Email == "" || req.Password == "" {
		return apperr.Invalid("email", "email and password are required")
	}
	res, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Me(c echo.Context) error {
	id, err := callerID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetProfile(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) ChangePassword(c echo.Context) error {
	id, err := callerID(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	if err := h.svc.ChangePassword(c.Request().Context(), id, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Profiles --

type createProfileRequest struct {
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     string  `json:"email"`
	Phone     *string `json:"phone"`
	Password  string  `json:"password"`
	Role      string  `json:"role"`
}

func (h *Handler) CreateProfile(c echo.Context) error {
	var req createProfileRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	p := &Profile{FirstName: req.FirstName, LastName: req.LastName, Email: req.Email, Phone: req.Phone}
	if req.Role != "" {
		role, err := ParseRole(req.Role)
		if err != nil {
			return apperr.Invalid("role", err.Error())
		}
		p.Role = role
	}
	if err := h.svc.CreateProfile(c.Request().Context(), p, req.Password); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetProfile(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := selfOrAdmin(c, id); err != nil {
		return err
	}
	p, err := h.svc.GetProfile(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := selfOrAdmin(c, id); err != nil {
		return err
	}
	var u ProfileUpdate
	if err := bindBody(c, &u); err != nil {
		return err
	}
	p, err := h.svc.UpdateProfile(c.Request().Context(), id, u)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeleteProfile(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteProfile(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SearchProfiles(c echo.Context) error {
	var f ProfileFilter
	if v := c.QueryParam("role"); v != "" {
		role, err := ParseRole(v)
		if err != nil {
			return apperr.Invalid("role", err.Error())
		}
		f.Role = role
	}
	if v := c.QueryParam("enabled"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return apperr.Invalid("enabled", "must be true or false")
		}
		f.Enabled = &b
	}
	f.Query = c.QueryParam("q")

	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchProfiles(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ProfileStats(c echo.Context) error {
	stats, err := h.svc.ProfileStats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) ToggleEnabled(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.ToggleEnabled(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ChangeRole(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req struct {
		Role string `json:"role"`
	}
	if err := bindBody(c, &req); err != nil {
		return err
	}
	role, err := ParseRole(req.Role)
	if err != nil {
		return apperr.Invalid("role", err.Error())
	}
	p, err := h.svc.ChangeRole(c.Request().Context(), id, role)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ResetPassword(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req struct {
		Password string `json:"password"`
	}
	if err := bindBody(c, &req); err != nil {
		return err
	}
	if err := h.svc.ResetPassword(c.Request().Context(), id, req.Password); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Specialties --

func (h *Handler) CreateSpecialty(c echo.Context) error {
	var sp Specialty
	if err := bindBody(c, &sp); err != nil {
		return err
	}
	if err := h.svc.CreateSpecialty(c.Request().Context(), &sp); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sp)
}

func (h *Handler) GetSpecialty(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	sp, err := h.svc.GetSpecialty(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sp)
}

func (h *Handler) UpdateSpecialty(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var sp Specialty
	if err := bindBody(c, &sp); err != nil {
		return err
	}
	sp.ID = id
	if err := h.svc.UpdateSpecialty(c.Request().Context(), &sp); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sp)
}

func (h *Handler) DeleteSpecialty(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteSpecialty(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SearchSpecialties(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchSpecialties(c.Request().Context(), c.QueryParam("q"), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Doctors --

func (h *Handler) CreateDoctor(c echo.Context) error {
	var d Doctor
	if err := bindBody(c, &d); err != nil {
		return err
	}
	if err := h.svc.CreateDoctor(c.Request().Context(), &d); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var d Doctor
	if err := bindBody(c, &d); err != nil {
		return err
	}
	d.ID = id
	if err := h.svc.UpdateDoctor(c.Request().Context(), &d); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) SetAvailability(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req struct {
		AvailabilityStatus string `json:"availability_status"`
	}
	if err := bindBody(c, &req); err != nil {
		return err
	}
	status, err := ParseAvailability(req.AvailabilityStatus)
	if err != nil {
		return apperr.Invalid("availability_status", err.Error())
	}
	ctx := c.Request().Context()
	if err := h.svc.SetAvailability(ctx, id, status); err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDoctor(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDoctor(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SearchDoctors(c echo.Context) error {
	f := DoctorFilter{Query: c.QueryParam("q")}
	if v := c.QueryParam("specialty_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return apperr.Invalid("specialty_id", "must be a UUID")
		}
		f.SpecialtyID = &id
	}
	if v := c.QueryParam("availability"); v != "" {
		a, err := ParseAvailability(v)
		if err != nil {
			return apperr.Invalid("availability", err.Error())
		}
		f.Availability = a
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchDoctors(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Patients --

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := bindBody(c, &p); err != nil {
		return err
	}
	if err := h.svc.CreatePatient(c.Request().Context(), &p); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var p Patient
	if err := bindBody(c, &p); err != nil {
		return err
	}
	p.ID = id
	if err := h.svc.UpdatePatient(c.Request().Context(), &p); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SearchPatients(c echo.Context) error {
	f := PatientFilter{Query: c.QueryParam("q"), BloodType: c.QueryParam("blood_type")}
	if v := c.QueryParam("gender"); v != "" {
		g, err := ParseGender(v)
		if err != nil {
			return apperr.Invalid("gender", err.Error())
		}
		f.Gender = g
	}
	var err error
	if f.MinAge, err = optionalInt(c, "min_age"); err != nil {
		return err
	}
	if f.MaxAge, err = optionalInt(c, "max_age"); err != nil {
		return err
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchPatients(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
