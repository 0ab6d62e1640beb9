package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-org-registry/sai"
	"github.com/saiset-co/sai-org-registry/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type Service struct {
	ctx             context.Context
	cancel          context.CancelFunc
	configPath      string
	done            chan struct{}
	wg              sync.WaitGroup
	state           atomic.Value
	shutdownTimeout time.Duration
	startTimeout    time.Duration
	container       *sai.Container
}

func NewService(ctx context.Context, configPath string) (*Service, error) {
	if configPath == "" {
		return nil, types.ErrConfigInvalidPath
	}

	_, err := os.Stat(configPath)
	if err != nil {
		return nil, types.WrapError(err, "file does not exist")
	}

	serviceCtx, cancel := context.WithCancel(ctx)
	container := sai.InitContainer()

	service := &Service{
		ctx:             serviceCtx,
		cancel:          cancel,
		configPath:      configPath,
		container:       container,
		done:            make(chan struct{}),
		shutdownTimeout: 30 * time.Second,
		startTimeout:    60 * time.Second,
	}

	service.state.Store(StateStopped)

	if err := registerProviders(serviceCtx, container, configPath); err != nil {
		cancel()
		closeStorage(container)
		return nil, types.WrapError(err, "failed to register providers")
	}

	if cm := container.Config.Load(); cm != nil {
		if timeout := (*cm).GetConfig().Server.HTTP.ShutdownTimeout; timeout > 0 {
			service.shutdownTimeout = time.Duration(timeout)*time.Second + 5*time.Second
		}
	}

	sai.SetContainer(container)
	return service, nil
}

// Start runs the service until Stop is called or a shutdown signal arrives.
func (s *Service) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		sai.Logger().Warn("Service is already running")
		return types.ErrServiceIsRunning
	}

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				runErr = fmt.Errorf("service panic: %v", r)
				sai.Logger().Error("Service run panic", zap.Stack(string(buf[:n])))
				s.setState(StateStopped)
			}
		}()

		runErr = s.run()
	}()

	return runErr
}

func (s *Service) run() error {
	sai.Logger().Info("Starting service")

	ctx, cancel := context.WithTimeout(s.ctx, s.startTimeout)
	defer cancel()

	if err := s.startComponents(ctx); err != nil {
		s.setState(StateStopped)
		_ = s.stopComponents()
		return types.WrapError(err, "failed to start components")
	}

	s.setState(StateRunning)
	s.setupSignalHandling()

	s.wg.Add(1)
	go s.contextMonitor()

	sai.Logger().Info("Service started successfully")

	<-s.done

	if err := s.stopComponents(); err != nil {
		sai.Logger().Error("Error during service shutdown", zap.Error(err))
	}

	s.wg.Wait()
	s.setState(StateStopped)

	sai.Logger().Info("Service stopped gracefully")
	return nil
}

func (s *Service) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		sai.Logger().Warn("Service is not running")
		return types.ErrServiceIsNotRunning
	}

	sai.Logger().Info("Stopping service...")
	s.cancel()

	return nil
}

func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) Context() context.Context {
	return s.ctx
}

func (s *Service) Container() *sai.Container {
	return s.container
}

func (s *Service) IsRunning() bool {
	return s.getState() == StateRunning
}

func (s *Service) getState() State {
	return s.state.Load().(State)
}

func (s *Service) setState(newState State) {
	s.state.Store(newState)
}

func (s *Service) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}

func startLifecycle(ctx context.Context, name string, ptr interface{ Start() error }) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := ptr.Start(); err != nil {
		return types.Errorf(types.ErrComponentStartFailed, "%s: %v", name, err)
	}
	return nil
}

func (s *Service) startComponents(ctx context.Context) error {
	if ptr := s.container.Config.Load(); ptr != nil {
		if err := startLifecycle(ctx, "config", *ptr); err != nil {
			return err
		}
	}

	if ptr := s.container.Logger.Load(); ptr != nil {
		if err := startLifecycle(ctx, "logger", *ptr); err != nil {
			return err
		}
	}

	g, gCtx := errgroup.WithContext(ctx)

	if ptr := s.container.Metrics.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error { return startLifecycle(gCtx, "metrics", manager) })
	}

	if ptr := s.container.Cache.Load(); ptr != nil {
		store := *ptr
		g.Go(func() error { return startLifecycle(gCtx, "cache", store) })
	}

	if ptr := s.container.Health.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error { return startLifecycle(gCtx, "health", manager) })
	}

	if ptr := s.container.Middlewares.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error { return startLifecycle(gCtx, "middlewares", manager) })
	}

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			return types.NewErrorf("component startup timeout: %v", ctx.Err())
		default:
			return err
		}
	}

	if ptr := s.container.HTTPServer.Load(); ptr != nil {
		if err := startLifecycle(ctx, "http server", *ptr); err != nil {
			return err
		}
	}

	if ptr := s.container.Cron.Load(); ptr != nil {
		if err := startLifecycle(ctx, "cron", *ptr); err != nil {
			sai.Logger().Error("Failed to start cron manager", zap.Error(err))
		}
	}

	sai.Logger().Info("All components started successfully")
	return nil
}

func stopLifecycle(name string, manager types.LifecycleManager) error {
	if !manager.IsRunning() {
		return nil
	}
	if err := manager.Stop(); err != nil {
		sai.Logger().Error("Failed to stop component", zap.String("component", name), zap.Error(err))
		return types.Errorf(types.ErrComponentStopFailed, "%s: %v", name, err)
	}
	return nil
}

func (s *Service) stopComponents() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	var errs []error

	sai.Logger().Info("Stopping service components...")

	if ptr := s.container.Cron.Load(); ptr != nil {
		if err := stopLifecycle("cron", *ptr); err != nil {
			errs = append(errs, err)
		}
	}

	if ptr := s.container.HTTPServer.Load(); ptr != nil {
		if err := stopLifecycle("http server", *ptr); err != nil {
			errs = append(errs, err)
		}
	}

	g, gCtx := errgroup.WithContext(ctx)

	if ptr := s.container.Middlewares.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error { return stopLifecycle("middlewares", manager) })
	}

	if ptr := s.container.Health.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error { return stopLifecycle("health", manager) })
	}

	if keys := s.container.Keys.Load(); keys != nil {
		g.Go(func() error {
			if err := keys.Stop(gCtx); err != nil {
				sai.Logger().Error("Failed to stop api key manager", zap.Error(err))
				return err
			}
			return nil
		})
	}

	if ptr := s.container.Cache.Load(); ptr != nil {
		store := *ptr
		g.Go(func() error { return stopLifecycle("cache", store) })
	}

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			sai.Logger().Warn("Component shutdown timeout, some components may not have stopped gracefully")
		default:
			errs = append(errs, err)
		}
	}

	if db := s.container.Database.Load(); db != nil {
		if err := db.Close(); err != nil {
			sai.Logger().Error("Failed to close database", zap.Error(err))
			errs = append(errs, err)
		}
	}

	if ptr := s.container.Metrics.Load(); ptr != nil {
		if err := stopLifecycle("metrics", *ptr); err != nil {
			errs = append(errs, err)
		}
	}

	sai.Logger().Info("Service components stopped")

	if ptr := s.container.Logger.Load(); ptr != nil {
		_ = stopLifecycle("logger", *ptr)
	}

	if ptr := s.container.Config.Load(); ptr != nil {
		_ = stopLifecycle("config", *ptr)
	}

	if len(errs) > 0 {
		return types.NewErrorf("shutdown completed with %d errors: %v", len(errs), errs)
	}
	return nil
}

func (s *Service) setupSignalHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case sig := <-sigChan:
			sai.Logger().Info("Received shutdown signal", zap.String("signal", sig.String()))
			if s.transitionState(StateRunning, StateStopping) {
				s.cancel()
			}

		case <-s.ctx.Done():
			sai.Logger().Info("Service context cancelled")
		}

		signal.Stop(sigChan)
	}()
}

func (s *Service) contextMonitor() {
	defer s.wg.Done()
	defer close(s.done)

	<-s.ctx.Done()

	switch err := s.ctx.Err(); {
	case types.IsError(err, context.Canceled):
		sai.Logger().Info("Service shutdown: context cancelled")
	case types.IsError(err, context.DeadlineExceeded):
		sai.Logger().Warn("Service shutdown: context deadline exceeded")
	default:
		sai.Logger().Info("Service shutdown: context done")
	}
}
