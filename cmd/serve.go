package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alwitt/hublife/apis"
	"github.com/alwitt/hublife/common"
	"github.com/alwitt/hublife/hublife"
	"github.com/alwitt/hublife/internal/broker"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/nats-io/nats.go"
	"github.com/urfave/cli/v2"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// ServeCLIArgs are the CLI-supplied parameters for the hub server binary. Everything
// else needed to build a Manager comes from the viper-backed common.SystemConfig.
type ServeCLIArgs struct {
	ConfigFile string `validate:"required"`
}

// GetServeCLIFlags returns the CMD flags for the hub server.
func GetServeCLIFlags(args *ServeCLIArgs) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config-file",
			Usage:       "Application config file",
			Aliases:     []string{"c"},
			EnvVars:     []string{"CONFIG_FILE"},
			Value:       "hublife.yaml",
			DefaultText: "hublife.yaml",
			Destination: &args.ConfigFile,
			Required:    false,
		},
	}
}

// RunHubServer connects to the broker, starts the lifetime manager, and (if configured)
// serves the read-only status HTTP surface until runtimeContext is cancelled.
func RunHubServer(
	cfg common.SystemConfig,
	instance string,
	runtimeContext context.Context,
) error {
	logTags := log.Fields{
		"module":    "cmd",
		"component": "serve",
		"instance":  instance,
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		log.WithError(err).WithFields(logTags).Error("Invalid system config")
		return err
	}

	transport, err := broker.Connect(broker.ConnectParams{
		ServerURI:           cfg.Broker.ServerURI,
		ConnectTimeout:      time.Duration(cfg.Broker.ConnectTimeout) * time.Second,
		MaxReconnectAttempt: cfg.Broker.Reconnect.MaxAttempts,
		ReconnectWait:       time.Duration(cfg.Broker.Reconnect.WaitInterval) * time.Second,
		OnDisconnectCallback: func(_ *nats.Conn, err error) {
			log.WithError(err).WithFields(logTags).Error("Lost connection to broker")
		},
		OnReconnectCallback: func(_ *nats.Conn) {
			log.WithFields(logTags).Info("Reconnected to broker")
		},
	})
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to connect to broker")
		return err
	}

	manager, err := hublife.NewManager(runtimeContext, transport, hublife.Config{
		HubTypeName: cfg.Hub.TypeName,
		Protocols:   []hublife.HubProtocol{hublife.DefaultJSONProtocol{}},
		AckTimeout:  time.Duration(cfg.Ack.TimeoutSec) * time.Second,
	})
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to start hub lifetime manager")
		transport.Close()
		return err
	}
	log.WithFields(logTags).Infof("Hub lifetime manager started as %s", manager.ServerName())

	var httpSrv *http.Server
	if cfg.Status != nil {
		httpHandler, err := apis.GetAPIRestStatusHandler(manager, cfg.Status)
		if err != nil {
			log.WithError(err).WithFields(logTags).Error("Unable to define status HTTP handler")
			manager.Dispose()
			transport.Close()
			return err
		}

		router := mux.NewRouter()
		mainRouter := apis.RegisterPathPrefix(router, cfg.Status.PathPrefix, nil)
		_ = apis.RegisterPathPrefix(mainRouter, "/status", map[string]http.HandlerFunc{
			"get": httpHandler.StatusHandler(),
		})
		_ = apis.RegisterPathPrefix(mainRouter, "/alive", map[string]http.HandlerFunc{
			"get": httpHandler.AliveHandler(),
		})
		_ = apis.RegisterPathPrefix(mainRouter, "/ready", map[string]http.HandlerFunc{
			"get": httpHandler.ReadyHandler(),
		})

		router.Use(func(next http.Handler) http.Handler {
			return handlers.CombinedLoggingHandler(httpHandler, next)
		})

		listen := fmt.Sprintf("%s:%d", cfg.Status.HTTPSetting.ListenOn, cfg.Status.HTTPSetting.Port)
		httpSrv = &http.Server{
			Addr:         listen,
			WriteTimeout: time.Duration(cfg.Status.HTTPSetting.WriteTimeout) * time.Second,
			ReadTimeout:  time.Duration(cfg.Status.HTTPSetting.ReadTimeout) * time.Second,
			IdleTimeout:  time.Duration(cfg.Status.HTTPSetting.IdleTimeout) * time.Second,
			Handler:      h2c.NewHandler(router, &http2.Server{}),
		}

		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).WithFields(logTags).Error("Status HTTP server failure")
			}
		}()
		log.WithFields(logTags).Infof("Started status HTTP server on http://%s", listen)
	}

	// ============================================================================

	<-runtimeContext.Done()

	if httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			log.WithError(err).WithFields(logTags).Error("Failure during status HTTP shutdown")
		}
	}

	manager.Dispose()
	transport.Close()

	return nil
}
