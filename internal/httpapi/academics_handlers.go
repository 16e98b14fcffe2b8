package httpapi

import (
	"net/http"
	"strings"

	"coursehub.org/internal/academics"
)

type listResponse[T any] struct {
	Items []T `json:"items"`
}

func list[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items}
}

func created(w http.ResponseWriter, location string, v any) {
	w.Header().Set("Location", location)
	writeJSON(w, http.StatusCreated, v)
}

// --- courses ---

func (a *API) listCourses(w http.ResponseWriter, r *http.Request) {
	f := academics.CourseFilter{InstructorID: strings.TrimSpace(r.URL.Query().Get("instructor_id"))}
	out, err := a.academics.ListCourses(r.Context(), f)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(out))
}

func (a *API) getCourse(w http.ResponseWriter, r *http.Request) {
	c, err := a.academics.GetCourse(r.Context(), r.PathValue("id"))
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) createCourse(w http.ResponseWriter, r *http.Request) {
	var in academics.CourseInput
	if err := decodeJSON(r, &in); err != nil {
		badBody(w, r, err)
		return
	}
	c, err := a.academics.CreateCourse(r.Context(), in)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	created(w, "/v1/courses/"+c.ID, c)
}

func (a *API) updateCourse(w http.ResponseWriter, r *http.Request) {
	var in academics.CourseInput
	if err := decodeJSON(r, &in); err != nil {
		badBody(w, r, err)
		return
	}
	c, err := a.academics.UpdateCourse(r.Context(), r.PathValue("id"), in)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) deleteCourse(w http.ResponseWriter, r *http.Request) {
	if err := a.academics.DeleteCourse(r.Context(), r.PathValue("id")); err != nil {
		a.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- assessments ---

func (a *API) listAssessments(w http.ResponseWriter, r *http.Request) {
	f := academics.AssessmentFilter{CourseID: strings.TrimSpace(r.URL.Query().Get("course_id"))}
	out, err := a.academics.ListAssessments(r.Context(), f)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(out))
}

func (a *API) getAssessment(w http.ResponseWriter, r *http.Request) {
	as, err := a.academics.GetAssessment(r.Context(), r.PathValue("id"))
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, as)
}

func (a *API) createAssessment(w http.ResponseWriter, r *http.Request) {
	var in academics.AssessmentInput
	if err := decodeJSON(r, &in); err != nil {
		badBody(w, r, err)
		return
	}
	as, err := a.academics.CreateAssessment(r.Context(), in)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	created(w, "/v1/assessments/"+as.ID, as)
}

func (a *API) updateAssessment(w http.ResponseWriter, r *http.Request) {
	var in academics.AssessmentInput
	if err := decodeJSON(r, &in); err != nil {
		badBody(w, r, err)
		return
	}
	as, err := a.academics.UpdateAssessment(r.Context(), r.PathValue("id"), in)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, as)
}

func (a *API) deleteAssessment(w http.ResponseWriter, r *http.Request) {
	if err := a.academics.DeleteAssessment(r.Context(), r.PathValue("id")); err != nil {
		a.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- results ---

func (a *API) listResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := academics.ResultFilter{
		AssessmentID: strings.TrimSpace(q.Get("assessment_id")),
		StudentID:    strings.TrimSpace(q.Get("student_id")),
	}
	out, err := a.academics.ListResults(r.Context(), f)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(out))
}

func (a *API) getResult(w http.ResponseWriter, r *http.Request) {
	res, err := a.academics.GetResult(r.Context(), r.PathValue("id"))
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) createResult(w http.ResponseWriter, r *http.Request) {
	var in academics.ResultInput
	if err := decodeJSON(r, &in); err != nil {
		badBody(w, r, err)
		return
	}
	res, err := a.academics.CreateResult(r.Context(), in)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	created(w, "/v1/results/"+res.ID, res)
}

func (a *API) updateResult(w http.ResponseWriter, r *http.Request) {
	var in academics.ResultInput
	if err := decodeJSON(r, &in); err != nil {
		badBody(w, r, err)
		return
	}
	res, err := a.academics.UpdateResult(r.Context(), r.PathValue("id"), in)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) deleteResult(w http.ResponseWriter, r *http.Request) {
	if err := a.academics.DeleteResult(r.Context(), r.PathValue("id")); err != nil {
		a.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- users ---

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	out, err := a.academics.ListUsers(r.Context())
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(out))
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := a.academics.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request) {
	var in academics.UserInput
	if err := decodeJSON(r, &in); err != nil {
		badBody(w, r, err)
		return
	}
	u, err := a.academics.UpdateUser(r.Context(), r.PathValue("id"), in)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := a.academics.DeleteUser(r.Context(), r.PathValue("id")); err != nil {
		a.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
