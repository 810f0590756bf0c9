package devserver

import "net/http"

// Route path constants. Every API route lives under RouteAPIPrefix, which
// is also the path component of the client's base URL.
const (
	RouteAPIPrefix = "/api"

	RouteHealth = RouteAPIPrefix + "/health"

	RouteAuthLogin   = RouteAPIPrefix + "/auth/login"
	RouteAuthRefresh = RouteAPIPrefix + "/auth/refresh"
	RouteAuthLogout  = RouteAPIPrefix + "/auth/logout"

	RouteAgents       = RouteAPIPrefix + "/agents"
	RouteAgent        = RouteAPIPrefix + "/agents/{id}"
	RouteAgentSources = RouteAPIPrefix + "/agents/{id}/sources"

	RouteSourcesText     = RouteAPIPrefix + "/sources/text"
	RouteSourcesURL      = RouteAPIPrefix + "/sources/url"
	RouteSourcesUpload   = RouteAPIPrefix + "/sources/upload"
	RouteSource          = RouteAPIPrefix + "/sources/{id}"
	RouteSourceDownload  = RouteAPIPrefix + "/sources/{id}/download"
	RouteChat            = RouteAPIPrefix + "/chat"
	RouteChatSessionMsgs = RouteAPIPrefix + "/chat/sessions/{id}/messages"
)

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.APIMiddleware()...))

	// AUTH
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))

	// AGENTS
	s.RegisterRouteHandler("GET "+RouteAgents, ChainMiddleware(s.ListAgentsHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("POST "+RouteAgents, ChainMiddleware(s.CreateAgentHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("GET "+RouteAgent, ChainMiddleware(s.GetAgentHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("PUT "+RouteAgent, ChainMiddleware(s.UpdateAgentHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("DELETE "+RouteAgent, ChainMiddleware(s.DeleteAgentHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("GET "+RouteAgentSources, ChainMiddleware(s.ListSourcesHandler(), s.APIMiddleware(s.RequireAuth())...))

	// SOURCES
	s.RegisterRouteHandler("POST "+RouteSourcesText, ChainMiddleware(s.AddTextSourceHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("POST "+RouteSourcesURL, ChainMiddleware(s.AddURLSourceHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("POST "+RouteSourcesUpload, ChainMiddleware(s.UploadSourceHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("DELETE "+RouteSource, ChainMiddleware(s.DeleteSourceHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("GET "+RouteSourceDownload, ChainMiddleware(s.DownloadSourceHandler(), s.APIMiddleware(s.RequireAuth())...))

	// CHAT
	s.RegisterRouteHandler("POST "+RouteChat, ChainMiddleware(s.ChatHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("GET "+RouteChatSessionMsgs, ChainMiddleware(s.ChatHistoryHandler(), s.APIMiddleware(s.RequireAuth())...))

	s.RegisterRouteFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
}
