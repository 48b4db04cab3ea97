// Package frontend serves the pages the launcher's windows load: the splash screen and the application frontend.
package frontend

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"sync"

	"github.com/julienschmidt/httprouter"
	inet "github.com/quickview/desktop/internal/net"
	"go.uber.org/zap"
)

const (
	SplashPath = "/splash"
	// IndexPath is the main window's page. http.FileServer redirects /index.html to /, dropping the query.
	IndexPath  = "/"
)

//go:embed static
var static embed.FS

type Server struct {
	log      *zap.SugaredLogger
	dir      string
	listener net.Listener

	httpServer *http.Server
	closeOnce  sync.Once
}

// New listens on a loopback port and prepares to serve dir. An empty dir serves a placeholder page.
func New(log *zap.SugaredLogger, dir string) (*Server, error) {
	listener, err := inet.ListenLocalhost()
	if err != nil {
		return nil, err
	}
	s := &Server{
		log:      log.Named("frontend"),
		dir:      dir,
		listener: listener,
	}
	s.httpServer = &http.Server{Handler: s.Handler()}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	staticFS, err := fs.Sub(static, "static")
	if err != nil {
		panic(err)
	}

	router := httprouter.New()
	router.GET(SplashPath, func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		http.ServeFileFS(w, r, staticFS, "splash.html")
	})

	var files http.Handler
	if s.dir == "" {
		files = http.FileServer(http.FS(staticFS))
	} else {
		files = http.FileServer(http.Dir(s.dir))
	}
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		s.log.Debugf("serving %s", r.URL.Path)
		files.ServeHTTP(w, r)
	})
	return router
}

// URL returns the absolute URL of path on this server.
func (s *Server) URL(path string) string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", inet.Port(s.listener), path)
}

// Serve blocks until the server is closed. Closing is not an error.
func (s *Server) Serve() error {
	s.log.Debugw("serving frontend", "Addr", s.listener.Addr().String(), "Dir", s.dir)
	err := s.httpServer.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.httpServer.Close()
	})
	return err
}
