package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/artist-check/internal/export"
	"github.com/sells-group/artist-check/internal/geo"
	"github.com/sells-group/artist-check/internal/model"
	"github.com/sells-group/artist-check/internal/resilience"
	"github.com/sells-group/artist-check/internal/roster"
	"github.com/sells-group/artist-check/internal/scorer"
	"github.com/sells-group/artist-check/internal/stats"
	"github.com/sells-group/artist-check/pkg/backend"
)

// api serves the roster and its supporting data to the dashboard.
type api struct {
	env *appEnv
	now func() time.Time
}

// buildRouter wires every route onto a chi router. origins lists the
// browser origins allowed by CORS.
func buildRouter(env *appEnv, origins []string) http.Handler {
	a := &api{env: env, now: time.Now}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/roster", func(r chi.Router) {
			r.Get("/", a.listRoster)
			r.Post("/", a.addArtist)
			r.Post("/refresh", a.refreshRoster)
			r.Get("/export.xlsx", a.exportRoster)
			r.Delete("/{name}", a.removeArtist)
			r.Put("/{name}/price", a.setPrice)
			r.Get("/{name}/breakdown", a.explainArtist)
		})
		r.Get("/target", a.getTarget)
		r.Put("/target", a.setTarget)
		r.Get("/criteria", a.getCriteria)
		r.Put("/criteria", a.setCriteria)
		r.Delete("/criteria", a.resetCriteria)
		r.Get("/criteria/descriptions", a.criteriaDescriptions)
		r.Get("/settings", a.getSettings)
		r.Put("/settings/remember", a.setRemember)
		r.Get("/cities", a.searchCities)
		r.Get("/cities/{city}/stats", a.cityStats)
		r.Get("/map", a.mapView)
		r.Get("/artists", a.listArtists)
		r.Get("/artists/{name}/timeline", a.artistTimeline)
		r.Get("/shows/recent", a.recentShows)
		r.Post("/shows/crawl", a.crawlShows)
		r.Get("/stats", a.summary)
	})
	return r
}

type rosterResponse struct {
	Target     model.Target             `json:"target"`
	Roster     []model.ArtistAssessment `json:"roster"`
	TotalPrice int                      `json:"totalPrice"`
}

func (a *api) listRoster(w http.ResponseWriter, r *http.Request) {
	entries := a.env.Roster.Snapshot()
	writeJSON(w, http.StatusOK, rosterResponse{
		Target:     a.env.Roster.Target(),
		Roster:     entries,
		TotalPrice: model.TotalPrice(entries),
	})
}

func (a *api) addArtist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := a.env.Roster.AddArtist(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (a *api) removeArtist(w http.ResponseWriter, r *http.Request) {
	if err := a.env.Roster.RemoveArtist(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) setPrice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Price model.Price `json:"price"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := a.env.Roster.SetPrice(r.Context(), chi.URLParam(r, "name"), req.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *api) explainArtist(w http.ResponseWriter, r *http.Request) {
	rows, err := a.env.Roster.Explain(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *api) refreshRoster(w http.ResponseWriter, r *http.Request) {
	res, err := a.env.Roster.Refresh(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) exportRoster(w http.ResponseWriter, r *http.Request) {
	q := export.Quote{
		Title:     r.URL.Query().Get("title"),
		Target:    a.env.Roster.Target(),
		Generated: a.now().In(a.env.Loc),
		Roster:    a.env.Roster.Snapshot(),
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="roster.xlsx"`)
	if err := export.WriteRoster(w, q); err != nil {
		zap.L().Error("export roster", zap.Error(err))
	}
}

func (a *api) getTarget(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.env.Roster.Target())
}

func (a *api) setTarget(w http.ResponseWriter, r *http.Request) {
	var t model.Target
	if !decodeJSON(w, r, &t) {
		return
	}
	if t.Date != "" {
		if _, err := model.ParseDay(t.Date, a.env.Loc); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid date: "+t.Date)
			return
		}
	}
	if err := a.env.Roster.SetTarget(r.Context(), t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.env.Roster.Target())
}

func (a *api) getCriteria(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.env.Roster.Criteria())
}

// setCriteria takes a full criteria document. A partial score matrix is
// rejected when decoding.
func (a *api) setCriteria(w http.ResponseWriter, r *http.Request) {
	var c scorer.Criteria
	if !decodeJSON(w, r, &c) {
		return
	}
	if err := scorer.ValidateCriteria(c); err != nil {
		writeMessage(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := a.env.Roster.UpdateCriteria(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.env.Roster.Criteria())
}

func (a *api) resetCriteria(w http.ResponseWriter, r *http.Request) {
	c, err := a.env.Roster.ResetCriteria(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *api) criteriaDescriptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scorer.Descriptions(a.env.Roster.Criteria()))
}

type settingsResponse struct {
	Remember bool `json:"remember"`
}

func (a *api) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, settingsResponse{Remember: a.env.Roster.Remember()})
}

func (a *api) setRemember(w http.ResponseWriter, r *http.Request) {
	var req settingsResponse
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.env.Roster.SetRemember(r.Context(), req.Remember); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{Remember: a.env.Roster.Remember()})
}

func (a *api) searchCities(w http.ResponseWriter, r *http.Request) {
	limit := geo.DefaultSearchLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeMessage(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	gaz := a.env.Gazetteer
	out := []geo.Location{}
	for _, name := range gaz.Search(r.URL.Query().Get("q"), limit) {
		if loc, ok := gaz.Lookup(name); ok {
			out = append(out, loc)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) cityStats(w http.ResponseWriter, r *http.Request) {
	city := chi.URLParam(r, "city")
	if _, ok := a.env.Gazetteer.Lookup(city); !ok {
		writeMessage(w, http.StatusNotFound, "unknown city: "+city)
		return
	}
	c := a.env.Roster.Criteria()
	shows, err := a.env.Backend.CityShows(r.Context(), city, c.Distance2, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats.CityStats(a.env.Gazetteer, city, shows, c, a.now(), a.env.Loc))
}

func (a *api) mapView(w http.ResponseWriter, r *http.Request) {
	data, err := stats.MapView(a.env.Gazetteer, a.env.Roster.Snapshot(),
		a.env.Roster.Target(), a.env.Roster.Criteria(), a.now(), a.env.Loc)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (a *api) artistTimeline(w http.ResponseWriter, r *http.Request) {
	shows, err := a.env.Backend.FetchShows(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats.Timeline(shows, a.now(), a.env.Loc))
}

func (a *api) listArtists(w http.ResponseWriter, r *http.Request) {
	artists, err := a.env.Backend.ListArtists(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if artists == nil {
		artists = []backend.ArtistRecord{}
	}
	writeJSON(w, http.StatusOK, artists)
}

func (a *api) recentShows(w http.ResponseWriter, r *http.Request) {
	limit := backend.DefaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeMessage(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	by := stats.GroupByDate
	if v := r.URL.Query().Get("by"); v != "" {
		by = stats.RecentGrouping(v)
		if by != stats.GroupByDate && by != stats.GroupByArtist {
			writeMessage(w, http.StatusBadRequest, "by must be date or artist")
			return
		}
	}
	shows, err := a.env.Backend.RecentShows(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats.GroupRecent(shows, by, a.env.Loc))
}

// crawlShows answers 200 when at least one crawler succeeded; the result
// lists the ones that did not.
func (a *api) crawlShows(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Artists []string `json:"artists"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	var artists []string
	for _, name := range req.Artists {
		artists = append(artists, backend.ParseArtistList(name)...)
	}
	res, err := a.env.Updater.Update(r.Context(), artists)
	if err != nil {
		if errors.Is(err, backend.ErrAllCrawlersFailed) {
			zap.L().Error("crawl failed", zap.Error(err))
			writeJSON(w, http.StatusBadGateway, res)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) summary(w http.ResponseWriter, r *http.Request) {
	shows, err := a.env.Backend.ListPerformances(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats.Summarize(shows, a.env.Loc))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps domain and backend errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeMessage(w, status, err.Error())
}

func statusFor(err error) int {
	var se *backend.StatusError
	switch {
	case errors.Is(err, roster.ErrEmptyName), errors.Is(err, backend.ErrNoArtists):
		return http.StatusBadRequest
	case errors.Is(err, roster.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, roster.ErrDuplicate), errors.Is(err, roster.ErrRemoved):
		return http.StatusConflict
	case errors.Is(err, resilience.ErrBreakerOpen), errors.Is(err, backend.ErrNoCrawlers):
		return http.StatusServiceUnavailable
	case errors.Is(err, backend.ErrAllCrawlersFailed):
		return http.StatusBadGateway
	case errors.As(err, &se):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
