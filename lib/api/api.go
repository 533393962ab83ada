package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/fosdem/glscale/lib/api/docs"
	"github.com/fosdem/glscale/lib/config"
	"github.com/fosdem/glscale/lib/metrics"
	"github.com/fosdem/glscale/lib/stats"
	"github.com/fosdem/glscale/lib/theatre"
	httpSwagger "github.com/swaggo/http-swagger"
)

//go:generate go tool swag init --parseDependency -g api.go -o docs --outputTypes go

//	@title			glscale
//	@version		1.0
//	@description	Accelerated picture scaling and colour conversion
//	@BasePath		/

type Api struct {
	srv     http.Server
	mux     *http.ServeMux
	cfg     *config.ApiCfg
	theatre *theatre.Theatre
	log     *slog.Logger

	Stats *stats.Stats

	wsMu      sync.Mutex
	wsClients map[*wsClient]struct{}
}

// New builds the api and hooks it to the theatre's frame events, so it
// has to be called before the theatre is started
func New(cfg *config.ApiCfg, t *theatre.Theatre, log *slog.Logger) *Api {
	if log == nil {
		log = slog.Default()
	}
	a := &Api{}
	a.cfg = cfg
	a.mux = http.NewServeMux()
	a.theatre = t
	a.log = log.With(slog.String("module", "api"))
	a.srv.Addr = cfg.Bind
	a.srv.Handler = a.mux
	a.wsClients = make(map[*wsClient]struct{})
	a.Stats = stats.New()

	t.AddEventListener(theatre.EventFrameProcessed, func(_ *theatre.Theatre, data interface{}) {
		event := data.(theatre.EventFrameData)
		a.Stats.Processed(event.Duration)
		a.broadcast(event)
	})
	t.AddEventListener(theatre.EventFrameDropped, func(_ *theatre.Theatre, data interface{}) {
		event := data.(theatre.EventFrameData)
		a.log.Warn(fmt.Sprintf("dropped frame for %s (%s): %s", event.Profile, event.In, event.Error))
		a.Stats.Dropped()
		a.broadcast(event)
	})

	a.routes()
	return a
}

func (a *Api) routes() {
	if a.cfg.EnableProfiler {
		a.mux.HandleFunc("/prof", a.profileCPU)
	}
	a.mux.HandleFunc("POST /api/kill", a.suicide)
	a.mux.HandleFunc("GET /api/stats", a.getStats)
	a.mux.HandleFunc("GET /api/config", a.handleConfig)
	a.mux.HandleFunc("GET /api/ws", a.handleWebsocket)
	a.mux.HandleFunc("PUT /api/scale/{profile}", a.handleScale)
	a.mux.HandleFunc("PUT /api/scale/{profile}/{format}", a.handleScale)
	a.mux.HandleFunc("GET /api/audio", a.getAudioFormat)
	a.mux.HandleFunc("PUT /api/audio", a.handleAudioFormat)
	a.mux.HandleFunc("POST /api/audio/play", a.handleAudioPlay)
	a.mux.Handle("GET /metrics", metrics.Handler())
	a.mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.InstanceName(docs.SwaggerInfo.InstanceName()),
	))
}

// Handler exposes the routes without a listening server
func (a *Api) Handler() http.Handler {
	return a.mux
}

func (a *Api) Serve() error {
	return a.srv.ListenAndServe()
}

func (a *Api) Shutdown(ctx context.Context) error {
	return a.srv.Shutdown(ctx)
}

func (a *Api) profileCPU(w http.ResponseWriter, _ *http.Request) {
	err := pprof.StartCPUProfile(w)
	if err != nil {
		http.Error(w, fmt.Sprintf("Could not start CPU profile: %s", err), http.StatusInternalServerError)
		return
	}
	time.Sleep(10 * time.Second)
	pprof.StopCPUProfile()
}

// @Summary	Shut down the scaler
// @Router		/api/kill [post]
// @Tags		base
// @Success	200
func (a *Api) suicide(w http.ResponseWriter, _ *http.Request) {
	a.log.Info("shutting down as per api request")
	a.theatre.ShutdownRequested.Store(true)
	_, err := fmt.Fprintf(w, "\"ok\"\n")
	if err != nil {
		a.log.Error(fmt.Sprintf("could not write response: %s", err))
		return
	}
}

// @Summary	Get frame counters and timings
// @Router		/api/stats [get]
// @Tags		base
// @Produce	json
// @Success	200	{object}	stats.Snapshot
func (a *Api) getStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	err := encoder.Encode(a.Stats.Snapshot())
	if err != nil {
		http.Error(w, fmt.Sprintf("could encode stats: %s", err), http.StatusInternalServerError)
		return
	}
}

type Profile struct {
	Name        string `json:"name" example:"720p"`
	Width       int    `json:"width" example:"1280"`
	Height      int    `json:"height" example:"720"`
	Orientation string `json:"orientation" example:"top_left"`
}

type Config struct {
	Profiles []Profile `json:"profiles"`
	Filters  []string  `json:"filters"`
}

// @Summary	List the output profiles pictures can be scaled to
// @Router		/api/config [get]
// @Tags		base
// @Produce	json
// @Success	200	{object}	Config
func (a *Api) handleConfig(w http.ResponseWriter, _ *http.Request) {
	result := &Config{}
	for _, name := range a.theatre.ProfileNames() {
		v := a.theatre.Profiles[name]
		result.Profiles = append(result.Profiles, Profile{
			Name:        name,
			Width:       v.Width,
			Height:      v.Height,
			Orientation: v.Orientation.String(),
		})
	}
	for _, m := range a.theatre.Registry.Modules() {
		result.Filters = append(result.Filters, m.Name)
	}

	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	err := encoder.Encode(result)
	if err != nil {
		http.Error(w, fmt.Sprintf("couldn't encode config: %s", err), http.StatusInternalServerError)
		return
	}
}

// ServeInBackground returns nil when cfg is nil. Like New it must run
// before the theatre is started.
func ServeInBackground(t *theatre.Theatre, cfg *config.ApiCfg, log *slog.Logger) *Api {
	var theApi *Api
	if cfg != nil {
		theApi = New(cfg, t, log)

		theApi.log.Info(fmt.Sprintf("starting web server on %s", cfg.Bind))
		go func() {
			err := theApi.Serve()
			if err != nil && err != http.ErrServerClosed {
				theApi.log.Error(fmt.Sprintf("could not start web server: %s", err))
				t.ShutdownRequested.Store(true)
			}
		}()
	}
	return theApi
}
