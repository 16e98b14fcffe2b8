package httpapi

import "coursehub.org/internal/auth"

// AccessPolicy is the access rule of every route the API serves. Keys are the
// ServeMux patterns the routes are registered under.
func AccessPolicy() *auth.Policy {
	staff := auth.RequireRoles(auth.RoleInstructor, auth.RoleAdmin)
	admin := auth.RequireRoles(auth.RoleAdmin)

	return auth.NewPolicy(map[string]auth.Rule{
		"GET /healthz": auth.Public(),
		"GET /readyz":  auth.Public(),
		"GET /v1/info": auth.Public(),
		"GET /metrics": auth.Public(),

		"POST /v1/auth/register": auth.Public(),
		"POST /v1/auth/login":    auth.Public(),
		"GET /v1/auth/me":        auth.Authenticated(),

		"GET /v1/courses":         auth.Authenticated(),
		"GET /v1/courses/{id}":    auth.Authenticated(),
		"POST /v1/courses":        staff,
		"PUT /v1/courses/{id}":    staff,
		"DELETE /v1/courses/{id}": admin,

		"GET /v1/assessments":         auth.Authenticated(),
		"GET /v1/assessments/{id}":    auth.Authenticated(),
		"POST /v1/assessments":        staff,
		"PUT /v1/assessments/{id}":    staff,
		"DELETE /v1/assessments/{id}": staff,

		"GET /v1/results":         staff,
		"GET /v1/results/{id}":    auth.Authenticated(),
		"POST /v1/results":        staff,
		"PUT /v1/results/{id}":    staff,
		"DELETE /v1/results/{id}": admin,

		"GET /v1/users":         admin,
		"GET /v1/users/{id}":    auth.Authenticated(),
		"PUT /v1/users/{id}":    admin,
		"DELETE /v1/users/{id}": admin,
	})
}
