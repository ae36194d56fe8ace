package service

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/streamtv/cachepool/commons"
	"github.com/streamtv/cachepool/engine"
)

// CachePoolService hosts the engine behind a local HTTP control endpoint
type CachePoolService struct {
	Config        *commons.Config
	Engine        *engine.Engine
	HTTPServer    *http.Server
	TerminateChan chan bool
	Terminated    bool
	Mutex         sync.Mutex // for termination
}

// NewCachePoolService creates a new cache pool service
func NewCachePoolService(config *commons.Config) (*CachePoolService, error) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"function": "NewCachePoolService",
	})

	cacheEngine, err := engine.NewEngine(config)
	if err != nil {
		logger.WithError(err).Error("failed to create the engine")
		return nil, err
	}

	service := &CachePoolService{
		Config:        config,
		Engine:        cacheEngine,
		TerminateChan: make(chan bool),
	}

	service.HTTPServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", config.ServicePort),
		Handler: service.makeRouter(),
	}

	return service, nil
}

// Init initializes the service
func (svc *CachePoolService) Init() error {
	return nil
}

// Start starts the service
func (svc *CachePoolService) Start() error {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "CachePoolService",
		"function": "Start",
	})

	logger.Infof("Starting the Cache Pool service on port %d", svc.Config.ServicePort)

	go func() {
		logger := log.WithFields(log.Fields{
			"package": "service",
			"struct":  "CachePoolService",
		})

		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-svc.TerminateChan:
				// terminate
				return
			case <-ticker.C:
				status, err := svc.Engine.GetStatus()
				if err != nil {
					logger.WithError(err).Error("failed to read engine status")
					continue
				}

				logger.Infof("Prefetch %d queued %d in-flight, preload %d queued %d in-flight, network %s",
					status.Prefetch.Queued, status.Prefetch.InFlight,
					status.Preload.Queued, status.Preload.InFlight,
					status.Network.Info.EffectiveClass)
			}
		}
	}()

	err := svc.HTTPServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logger.Error(err)
		return err
	}

	return nil
}

// Destroy destroys the service
func (svc *CachePoolService) Destroy() {
	svc.Mutex.Lock()
	defer svc.Mutex.Unlock()

	if svc.Terminated {
		// already terminated
		return
	}

	svc.Terminated = true

	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "CachePoolService",
		"function": "Destroy",
	})

	logger.Info("Destroying the Cache Pool service")
	svc.TerminateChan <- true

	if svc.HTTPServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := svc.HTTPServer.Shutdown(shutdownCtx)
		if err != nil {
			logger.WithError(err).Error("failed to shut down the http server")
		}
	}

	if svc.Engine != nil {
		svc.Engine.Release()
	}
}
