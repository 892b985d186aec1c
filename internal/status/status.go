// Package status serves a small read-only JSON view of the bot over HTTP.
package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/keshon/doorbell/internal/audio"
	"github.com/keshon/doorbell/internal/session"
	"github.com/keshon/doorbell/internal/storage"
)

type Sounds interface {
	Lookup(guildID string) (*audio.Clip, bool)
	Guilds() []string
}

type Sessions interface {
	Active() []session.Session
}

// Stats is the guild metadata store.
type Stats interface {
	Stats(guildID string) (storage.Stats, error)
	Registrations(guildID string) ([]storage.Registration, error)
	FetchCommandHistory(guildID string) ([]storage.CommandRecord, error)
}

type Server struct {
	addr     string
	sounds   Sounds
	sessions Sessions
	stats    Stats
	ready    func() bool
	started  time.Time
	log      zerolog.Logger
	engine   *gin.Engine
}

type Options struct {
	Addr string
	// Ready reports whether the gateway connection is up. Nil means always.
	Ready  func() bool
	Logger zerolog.Logger
}

type soundView struct {
	Name       string `json:"name"`
	Frames     int    `json:"frames"`
	DurationMS int64  `json:"duration_ms"`
}

type guildView struct {
	GuildID  string            `json:"guild_id"`
	Sound    *soundView        `json:"sound"`
	Sessions []session.Session `json:"sessions"`
	Stats    *storage.Stats    `json:"stats,omitempty"`

	Registrations []storage.Registration  `json:"registrations,omitempty"`
	Commands      []storage.CommandRecord `json:"commands,omitempty"`
}

func New(sounds Sounds, sessions Sessions, stats Stats, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		addr:     opts.Addr,
		sounds:   sounds,
		sessions: sessions,
		stats:    stats,
		ready:    opts.Ready,
		started:  time.Now(),
		log:      opts.Logger,
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())
	r.GET("/healthz", s.health)
	r.GET("/guilds", s.listGuilds)
	r.GET("/guilds/:id", s.getGuild)
	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("Status server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("HTTP request")
	}
}

func (s *Server) health(c *gin.Context) {
	status, code := "ok", http.StatusOK
	if s.ready != nil && !s.ready() {
		status, code = "connecting", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":          status,
		"uptime_seconds":  int64(time.Since(s.started).Seconds()),
		"guilds":          len(s.sounds.Guilds()),
		"active_sessions": len(s.sessions.Active()),
	})
}

func (s *Server) listGuilds(c *gin.Context) {
	byGuild := s.sessionsByGuild()

	out := make([]guildView, 0)
	for _, id := range s.sounds.Guilds() {
		out = append(out, s.view(id, byGuild[id]))
	}
	c.JSON(http.StatusOK, gin.H{"guilds": out})
}

func (s *Server) getGuild(c *gin.Context) {
	id := c.Param("id")
	v := s.view(id, s.sessionsByGuild()[id])

	if s.stats != nil {
		if err := s.loadHistory(id, &v); err != nil {
			s.log.Error().Err(err).Str("guild", id).Msg("Error loading guild stats")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
			return
		}
	}

	if v.Sound == nil && len(v.Sessions) == 0 && v.Stats == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown guild"})
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) loadHistory(guildID string, v *guildView) error {
	st, err := s.stats.Stats(guildID)
	if err != nil {
		return err
	}
	if st.Plays > 0 || st.Registrations > 0 {
		v.Stats = &st
	}

	if v.Registrations, err = s.stats.Registrations(guildID); err != nil {
		return err
	}
	v.Commands, err = s.stats.FetchCommandHistory(guildID)
	return err
}

func (s *Server) view(guildID string, sessions []session.Session) guildView {
	v := guildView{GuildID: guildID, Sessions: sessions}
	if v.Sessions == nil {
		v.Sessions = []session.Session{}
	}
	if clip, ok := s.sounds.Lookup(guildID); ok {
		v.Sound = &soundView{
			Name:       clip.Name(),
			Frames:     clip.Frames(),
			DurationMS: clip.Duration().Milliseconds(),
		}
	}
	return v
}

func (s *Server) sessionsByGuild() map[string][]session.Session {
	out := make(map[string][]session.Session)
	for _, sess := range s.sessions.Active() {
		out[sess.GuildID] = append(out[sess.GuildID], sess)
	}
	return out
}
