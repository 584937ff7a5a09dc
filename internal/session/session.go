// Package session ties a served project together: VFS, prefetch, initial
// snapshot, change processor, message queue, plugin API, and the
// single-writer lock.
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/untoldecay/loom/internal/logging"
	"github.com/untoldecay/loom/internal/msgqueue"
	"github.com/untoldecay/loom/internal/processor"
	"github.com/untoldecay/loom/internal/project"
	"github.com/untoldecay/loom/internal/snapshot"
	"github.com/untoldecay/loom/internal/tree"
	"github.com/untoldecay/loom/internal/vfs"
	"github.com/untoldecay/loom/internal/web"
)

// DefaultPort is used when neither the manifest nor flags pick one.
const DefaultPort uint16 = 34872

// DefaultAddress binds the server to loopback only.
const DefaultAddress = "127.0.0.1"

// Options configure a serve session. Zero values defer to the manifest and
// then to the defaults.
type Options struct {
	ProjectPath   string
	Address       string
	Port          uint16
	ServerVersion string
}

// Session is one live serve lifetime. Its id changes every restart; a
// client holding a stale id must re-read from scratch.
type Session struct {
	ID      string
	Project *project.Project

	v      *vfs.Vfs
	queue  *msgqueue.Queue
	proc   *processor.Processor
	server *http.Server
	lock   *flock.Flock
	cancel context.CancelFunc
	addr   string
	rootID tree.Referent
}

// Start builds the initial tree and begins serving.
func Start(opts Options) (*Session, error) {
	v, err := vfs.NewOS()
	if err != nil {
		return nil, fmt.Errorf("starting filesystem watcher: %w", err)
	}

	projectFile, err := project.Locate(v, opts.ProjectPath)
	if err != nil {
		return nil, err
	}
	proj, err := project.Load(v, projectFile)
	if err != nil {
		return nil, err
	}

	lock := flock.New(filepath.Join(proj.Folder(), ".loom.lock"))
	locked, err := lock.TryLock()
	if err == nil && !locked {
		err = errors.New("lock is held")
	}
	if err != nil {
		return nil, fmt.Errorf("another session is already serving %s: %w", proj.Folder(), err)
	}

	// Front-load the initial snapshot with a parallel bulk read; the cache
	// is dropped as soon as the tree is built.
	roots := collectRoots(proj)
	v.SetPrefetch(vfs.NewPrefetch(v, roots))
	rootSnap, err := snapshot.FromProject(v, proj)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	t := tree.New(rootSnap)
	v.ClearPrefetch()

	for _, root := range roots {
		if err := v.Watch(root); err != nil && !vfs.IsNotExist(err) {
			logging.Warnf("cannot watch %s: %v", root, err)
		}
	}
	if err := v.Watch(projectFile); err != nil {
		logging.Warnf("cannot watch %s: %v", projectFile, err)
	}

	queue := msgqueue.New()
	proc := processor.New(v, t, queue, projectFile)
	ctx, cancel := context.WithCancel(context.Background())
	go proc.Run(ctx)

	sessionID := uuid.NewString()
	server := web.NewServer(proc, queue, t.RootID(), web.Config{
		SessionID:       sessionID,
		ServerVersion:   opts.ServerVersion,
		ProjectName:     proj.Name,
		PlaceID:         proj.PlaceID,
		GameID:          proj.GameID,
		ServePlaceIDs:   proj.ServePlaceIDs,
		BlockedPlaceIDs: proj.BlockedPlaceIDs,
	})

	address := opts.Address
	if address == "" {
		address = proj.ServeAddress
	}
	if address == "" {
		address = DefaultAddress
	}
	port := opts.Port
	if port == 0 && proj.ServePort != nil {
		port = *proj.ServePort
	}
	if port == 0 {
		port = DefaultPort
	}
	listener, err := net.Listen("tcp", net.JoinHostPort(address, strconv.Itoa(int(port))))
	if err != nil {
		cancel()
		_ = v.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("binding server: %w", err)
	}
	addr := listener.Addr().String()

	httpServer := &http.Server{Handler: server.Handler()}
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Errorf("http server: %v", err)
		}
	}()

	return &Session{
		ID:      sessionID,
		Project: proj,
		v:       v,
		queue:   queue,
		proc:    proc,
		server:  httpServer,
		lock:    lock,
		cancel:  cancel,
		addr:    addr,
		rootID:  t.RootID(),
	}, nil
}

// Address is the host:port the API is bound to.
func (s *Session) Address() string { return s.addr }

// RootID is the root instance's referent.
func (s *Session) RootID() tree.Referent { return s.rootID }

// Queue exposes the applied-patch log.
func (s *Session) Queue() *msgqueue.Queue { return s.queue }

// Processor exposes the change processor, mainly for tests.
func (s *Session) Processor() *processor.Processor { return s.proc }

// Stop shuts down the server, the processor, the watcher, and releases the
// serve lock.
func (s *Session) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.cancel()
	_ = s.v.Close()
	_ = s.lock.Unlock()
}

// collectRoots lists every filesystem path the manifest mounts, for the
// prefetch walk and the watch set.
func collectRoots(proj *project.Project) []string {
	var roots []string
	seen := map[string]struct{}{}
	var walk func(node *project.Node)
	walk = func(node *project.Node) {
		if !node.Path.IsEmpty() {
			full := proj.ResolvePath(node.Path.Path)
			if _, dup := seen[full]; !dup {
				seen[full] = struct{}{}
				roots = append(roots, full)
			}
		}
		for _, name := range node.ChildNames() {
			walk(node.Children[name])
		}
	}
	walk(proj.Tree)
	return roots
}
