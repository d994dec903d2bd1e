package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"careflow/address"
	"careflow/config"
	"careflow/contact"
	"careflow/db"
	"careflow/doctor"
	"careflow/hospital"
	"careflow/identity"
	"careflow/labtest"
	"careflow/logger"
	"careflow/medication"
	"careflow/metrics"
	"careflow/outbox"
	"careflow/patient"
	"careflow/provision"
	"careflow/qualification"
	"careflow/specialization"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("bootstrap config: %v", err)
	}

	slogger := logger.New("careflow-api", cfg.LogLevel)

	domainPool, err := db.NewPool(ctx, cfg.DomainDBURL, db.PoolOptions{
		MaxConns: cfg.DomainDBMaxConns,
		AppName:  "careflow-api-domain",
	})
	if err != nil {
		log.Fatalf("bootstrap domain pool: %v", err)
	}
	defer domainPool.Close()

	identityPool, err := db.NewPool(ctx, cfg.IdentityDBURL, db.PoolOptions{
		MaxConns: cfg.IdentityDBMaxConns,
		AppName:  "careflow-api-identity",
	})
	if err != nil {
		log.Fatalf("bootstrap identity pool: %v", err)
	}
	defer identityPool.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sagaMetrics := metrics.NewSaga(registry)

	identityService := identity.NewService(identity.NewStore(identityPool), cfg.JWTSecret)
	catalogRepo := specialization.NewRepository(domainPool)
	labTestRepo := labtest.NewRepository(domainPool)
	medicationRepo := medication.NewRepository(domainPool)

	coordinator := provision.NewCoordinator(provision.Deps{
		Pool:           domainPool,
		Credentials:    identityService,
		Addresses:      address.NewRepository(domainPool),
		Contacts:       contact.NewRepository(domainPool),
		Catalog:        catalogRepo,
		Doctors:        doctor.NewRepository(domainPool),
		Patients:       patient.NewRepository(domainPool),
		Hospitals:      hospital.NewRepository(domainPool),
		Qualifications: qualification.NewRepository(domainPool),
		LabTests:       labTestRepo,
		Medications:    medicationRepo,
		Outbox:         outbox.NewWriter(),
		Logger:         slogger,
		Metrics:        sagaMetrics,
	})

	server := &Server{
		provisioner: coordinator,
		identity:    identityService,
		catalog:     catalogRepo,
		labTests:    labTestRepo,
		medications: medicationRepo,
		logger:      slogger,
		registry:    registry,
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slogger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server exited: %v", err)
	}
	slogger.Info("server stopped")
}
