package routes

import (
	"github.com/go-chi/chi/v5"

	"spacewh/mis/internal/api"
	"spacewh/mis/internal/middleware"
)

// RegisterAPIRoutes registers the REST endpoints of the membership lifecycle.
func RegisterAPIRoutes(r chi.Router, deps *api.Dependencies, opts Options) {
	svc := deps.Services

	// Public routes
	r.Group(func(public chi.Router) {
		public.Use(middleware.InFlightMiddleware(deps.Metrics, "public"))
		public.Get("/", api.RootHandler())
		public.Post("/validate-invitation", api.ValidateInvitationHandler(svc.Invitations))
		public.Post("/submit-onboarding", api.SubmitOnboardingHandler(svc.Invitations))
		public.Post("/validate-key", api.ValidateKeyHandler(svc.Validator))

		public.With(middleware.OptionalBearer(svc.Validator)).
			Post("/gpt-chat", api.ChatHandler(svc.Responder))
	})

	// Admin routes, HTTP Basic on every one
	r.Route("/admin", func(admin chi.Router) {
		admin.Use(middleware.InFlightMiddleware(deps.Metrics, "admin"))
		admin.Use(middleware.AdminBasicAuth(opts.AdminUsername, opts.AdminPassword))

		admin.Post("/create-invitation", api.CreateInvitationHandler(svc.Invitations))
		admin.Post("/approve-membership", api.ApproveMembershipHandler(svc.Issuance))
		admin.Get("/invitations", api.ListInvitationsHandler(svc.Invitations))
		admin.Get("/memberships", api.ListMembershipsHandler(svc.Issuance))
	})
}
