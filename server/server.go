// Package server handles the web server and executing workflow runs that
// come in via webhooks.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/gorilla/mux"
	"github.com/greenlightci/greenlight/server/aws/sns"
	"github.com/greenlightci/greenlight/server/aws/sqs"
	"github.com/greenlightci/greenlight/server/controllers"
	"github.com/greenlightci/greenlight/server/controllers/websocket"
	"github.com/greenlightci/greenlight/server/core/config"
	"github.com/greenlightci/greenlight/server/core/config/valid"
	"github.com/greenlightci/greenlight/server/core/depcache"
	"github.com/greenlightci/greenlight/server/core/runtime"
	"github.com/greenlightci/greenlight/server/core/toolchain"
	"github.com/greenlightci/greenlight/server/core/trigger"
	"github.com/greenlightci/greenlight/server/events"
	"github.com/greenlightci/greenlight/server/feature"
	"github.com/greenlightci/greenlight/server/jobs"
	"github.com/greenlightci/greenlight/server/logging"
	"github.com/greenlightci/greenlight/server/metrics"
	"github.com/greenlightci/greenlight/server/runstore"
	"github.com/greenlightci/greenlight/server/scheduler"
	"github.com/greenlightci/greenlight/server/stow"
	"github.com/greenlightci/greenlight/server/vcs"
	"github.com/greenlightci/greenlight/server/vcs/provider/github"
	"github.com/greenlightci/greenlight/server/vcs/provider/github/converter"
	"github.com/greenlightci/greenlight/server/webhooks"
	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"
	"github.com/urfave/cli"
	"github.com/urfave/negroni"
)

// JobsViewRouteName names the route rendering one job's output so job
// URLs can be generated from it.
const JobsViewRouteName = "jobs-detail"

type httpServerProxy struct {
	*http.Server
	SSLCertFile string
	SSLKeyFile  string
	Logger      logging.Logger
}

func (p *httpServerProxy) ListenAndServe() {
	var err error
	if p.SSLCertFile != "" && p.SSLKeyFile != "" {
		err = p.Server.ListenAndServeTLS(p.SSLCertFile, p.SSLKeyFile)
	} else {
		err = p.Server.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		p.Logger.Error(err.Error())
	}
}

// Server runs one greenlight process. Depending on the mode it receives
// webhooks, executes workflow runs, or both.
type Server struct {
	Logger        logging.Logger
	SSLCertFile   string
	SSLKeyFile    string
	Negroni       *negroni.Negroni
	Mode          Mode
	Port          int
	StatsScope    tally.Scope
	StatsCloser   io.Closer
	OutputHandler jobs.OutputHandler
	RunStore      *runstore.BoltStore
	Scheduler     *scheduler.Scheduler
	SQSWorker     *sqs.Worker
}

// NewServer injects all the dependencies of one greenlight process. Which
// pieces get built depends on the mode: a gateway only validates and
// forwards webhooks, a worker additionally executes runs arriving over
// its queue, the default mode does everything in process.
func NewServer(userConfig UserConfig) (*Server, error) {
	ctxLogger, err := logging.NewLoggerFromLevel(userConfig.LogLevel)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build context logger")
	}

	globalCfg := valid.NewGlobalCfg(userConfig.DataDir)
	parserValidator := &config.ParserValidator{}
	if userConfig.RepoConfig != "" {
		globalCfg, err = parserValidator.ParseGlobalCfg(userConfig.RepoConfig, globalCfg)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %s file", userConfig.RepoConfig)
		}
	}

	statsScope, statsCloser, err := metrics.NewScope(globalCfg.Metrics, userConfig.StatsNamespace)
	if err != nil {
		return nil, errors.Wrap(err, "creating stats scope")
	}

	allowlistChecker, err := events.NewRepoAllowlistChecker(userConfig.AllowlistRules())
	if err != nil {
		return nil, errors.Wrap(err, "creating repo allowlist checker")
	}

	statusController := &controllers.StatusController{
		Mode:    userConfig.Mode.String(),
		Version: userConfig.Version,
	}
	router := mux.NewRouter()
	router.HandleFunc("/healthz", Healthz).Methods(http.MethodGet)
	router.HandleFunc("/status", statusController.Get).Methods(http.MethodGet)

	if userConfig.Mode == Gateway || userConfig.Mode == Hybrid {
		awsSession, err := session.NewSession()
		if err != nil {
			return nil, errors.Wrap(err, "initializing new aws session")
		}
		gatewayEventsController := &controllers.GatewayEventsController{
			Logger:                 ctxLogger,
			Scope:                  statsScope,
			AllowlistChecker:       allowlistChecker,
			GithubWebhookSecret:    []byte(userConfig.GithubSecrets.WebhookSecret),
			GithubRequestValidator: controllers.DefaultGithubRequestValidator{},
			SNSWriter:              sns.NewWriter(awsSession, userConfig.GatewaySnsTopicArn),
		}
		router.HandleFunc("/events", gatewayEventsController.Post).Methods(http.MethodPost)
	}

	var (
		outputHandler jobs.OutputHandler
		runStore      *runstore.BoltStore
		runScheduler  *scheduler.Scheduler
		sqsWorker     *sqs.Worker
	)
	if userConfig.Mode != Gateway {
		githubClient, err := github.NewClient(userConfig.GithubSecrets.Hostname.Host, string(userConfig.GithubSecrets.User), userConfig.GithubSecrets.Token)
		if err != nil {
			return nil, errors.Wrap(err, "creating github client")
		}
		repoConverter := converter.RepoConverter{
			GithubUser:  string(userConfig.GithubSecrets.User),
			GithubToken: userConfig.GithubSecrets.Token,
		}

		var featureAllocator feature.Allocator
		if userConfig.FFPath != "" {
			featureAllocator, err = feature.NewFileRepoAllocator(userConfig.FFPath)
		} else {
			featureAllocator, err = feature.NewRepoAllocator()
		}
		if err != nil {
			return nil, errors.Wrap(err, "initializing feature allocator")
		}

		workingDir := &events.FileWorkspace{
			DataDir: userConfig.DataDir,
			Logger:  ctxLogger,
		}

		jobsStorageClient, err := stow.NewClient(globalCfg.PersistenceConfig.Jobs)
		if err != nil {
			return nil, errors.Wrap(err, "initializing stow client for job logs")
		}
		jobStore := jobs.NewStorageBackedStore(jobs.NewStorageBackend(jobsStorageClient, ctxLogger), ctxLogger)
		outputHandler = jobs.NewAsyncOutputHandler(jobStore, jobs.NewReceiverRegistry(), ctxLogger)

		cacheStorageClient, err := stow.NewClient(globalCfg.PersistenceConfig.DepCache)
		if err != nil {
			return nil, errors.Wrap(err, "initializing stow client for dependency caches")
		}
		depCache := depcache.NewCache(cacheStorageClient, statsScope.SubScope("depcache"), ctxLogger)

		runStore, err = runstore.New(userConfig.DataDir)
		if err != nil {
			return nil, errors.Wrap(err, "initializing run store")
		}

		toolchainEnsurer := toolchain.NewEnsurer(globalCfg.Toolchains, filepath.Join(userConfig.DataDir, "bin"), statsScope)
		stepsRunner := runtime.NewStepsRunner(
			outputHandler,
			&runtime.RunStepRunner{Streamer: outputHandler, DefaultShell: globalCfg.Shell},
			&runtime.CheckoutStepRunner{Cloner: workingDir},
			&runtime.SetupNodeStepRunner{Ensurer: toolchainEnsurer, Cache: depCache, Exec: toolchain.LocalExec{}},
			&runtime.SetupUvStepRunner{Ensurer: toolchainEnsurer},
			&runtime.CacheStepRunner{Cache: depCache},
		)

		statusUpdater := &events.VCSStatusUpdater{
			Client:       &github.PullStatusUpdater{Client: githubClient},
			TitleBuilder: vcs.StatusTitleBuilder{TitlePrefix: userConfig.VCSStatusName},
		}
		jobsRouter := &Router{
			Underlying:        router,
			ExternalURL:       userConfig.ExternalURL.URL,
			JobsViewRouteName: JobsViewRouteName,
		}
		jobRunner := &events.JobRunner{
			WorkingDir:       workingDir,
			StepsRunner:      stepsRunner,
			OutputHandler:    outputHandler,
			IDGenerator:      &jobs.IdGenerator{},
			URLGenerator:     jobsRouter,
			CacheSaver:       depCache,
			StatusUpdater:    statusUpdater,
			FeatureAllocator: featureAllocator,
			DefaultTimeout:   globalCfg.JobTimeout,
			PoolSize:         globalCfg.MaxParallelJobs,
			Logger:           ctxLogger,
		}

		runsBuilder := &events.DefaultRunsBuilder{
			WorkingDir:      workingDir,
			ParserValidator: parserValidator,
			Matcher:         &trigger.Matcher{},
			IgnoreFiles:     userConfig.IgnoreFileList.PatternMatcher,
			GlobalCfg:       globalCfg,
			Logger:          ctxLogger,
			Scope:           statsScope,
		}

		webhooksSender, err := webhooks.NewMultiWebhookSender(userConfig.WebhooksConfig(), webhooks.NewSlackClient(userConfig.SlackToken))
		if err != nil {
			return nil, errors.Wrap(err, "initializing webhook senders")
		}

		commandRunner := &events.DefaultCommandRunner{
			AllowlistChecker: allowlistChecker,
			FilesFetcher:     &github.RemoteFileFetcher{Client: githubClient},
			RunsBuilder:      runsBuilder,
			Executor:         jobRunner,
			StaleHandler:     &events.StaleRunHandler{Scope: statsScope, Logger: ctxLogger},
			StatusUpdater:    statusUpdater,
			RunStore:         runStore,
			Webhooks:         webhooksSender,
			Logger:           ctxLogger,
			Scope:            statsScope,
		}

		eventsController := &controllers.VCSEventsController{
			Logger:                 ctxLogger,
			Scope:                  statsScope,
			CommandRunner:          commandRunner,
			GithubWebhookSecret:    []byte(userConfig.GithubSecrets.WebhookSecret),
			GithubRequestValidator: controllers.DefaultGithubRequestValidator{},
			PushEventConverter:     converter.PushEventConverter{RepoConverter: repoConverter},
			PullEventConverter:     converter.PullEventConverter{RepoConverter: repoConverter},
		}
		if userConfig.Mode == Default || userConfig.Mode == Worker {
			router.HandleFunc("/events", eventsController.Post).Methods(http.MethodPost)
		}

		wsMux := websocket.NewInstrumentedMultiplexor(
			websocket.NewMultiplexor(ctxLogger, controllers.JobIDKeyGenerator{}, outputHandler),
			statsScope.SubScope("getjob"),
		)
		jobsController := &controllers.JobsController{
			Logger:       ctxLogger,
			Scope:        statsScope,
			KeyGenerator: controllers.JobIDKeyGenerator{},
			JobStore:     jobStore,
			WsMux:        wsMux,
		}
		runsController := &controllers.RunsController{
			Logger:   ctxLogger,
			RunStore: runStore,
		}
		router.HandleFunc("/jobs/{job-id}", jobsController.GetJob).Methods(http.MethodGet).Name(JobsViewRouteName)
		router.HandleFunc("/jobs/{job-id}/ws", jobsController.GetJobWS).Methods(http.MethodGet)
		router.HandleFunc("/runs/{owner}/{repo}", runsController.GetRepoRuns).Methods(http.MethodGet)
		router.HandleFunc("/runs/{run-id}", runsController.GetRun).Methods(http.MethodGet)

		runScheduler = &scheduler.Scheduler{
			Resolver:        &github.RepoFetcher{Client: githubClient, RepoConverter: repoConverter},
			CommandRunner:   commandRunner,
			WorkingDir:      workingDir,
			ParserValidator: parserValidator,
			GlobalCfg:       globalCfg,
			Logger:          ctxLogger,
			SyncInterval:    scheduler.DefaultSyncInterval,
		}

		if userConfig.Mode == Worker || userConfig.Mode == Hybrid {
			sqsWorker, err = sqs.NewGatewaySQSWorker(context.Background(), statsScope, userConfig.WorkerQueueURL.String(), eventsController)
			if err != nil {
				return nil, errors.Wrap(err, "initializing sqs worker")
			}
		}
	}

	n := negroni.New(&negroni.Recovery{
		Logger:     log.New(os.Stdout, "", log.LstdFlags),
		PrintStack: false,
		StackAll:   false,
		StackSize:  1024 * 8,
	})
	n.UseHandler(router)

	return &Server{
		Logger:        ctxLogger,
		SSLCertFile:   userConfig.SSLSecrets.CertFile,
		SSLKeyFile:    userConfig.SSLSecrets.KeyFile,
		Negroni:       n,
		Mode:          userConfig.Mode,
		Port:          userConfig.Port,
		StatsScope:    statsScope,
		StatsCloser:   statsCloser,
		OutputHandler: outputHandler,
		RunStore:      runStore,
		Scheduler:     runScheduler,
		SQSWorker:     sqsWorker,
	}, nil
}

// Start runs the web server and the background routines of the configured
// mode. It blocks until a signal arrives and drains before returning.
func (s *Server) Start() error {
	defer s.Logger.Close()

	if s.OutputHandler != nil {
		go s.OutputHandler.Handle()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if s.Scheduler != nil {
		s.Scheduler.Start(ctx)
	}

	var wg sync.WaitGroup
	if s.SQSWorker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.SQSWorker.Work(ctx)
		}()
	}

	// Ensure server gracefully drains connections when stopped.
	stop := make(chan os.Signal, 1)
	// Stop on SIGINTs and SIGTERMs.
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	s.Logger.Info(fmt.Sprintf("Greenlight started - listening on port %v", s.Port))
	httpServerProxy := httpServerProxy{
		SSLCertFile: s.SSLCertFile,
		SSLKeyFile:  s.SSLKeyFile,
		Server:      &http.Server{Addr: fmt.Sprintf(":%d", s.Port), Handler: s.Negroni},
		Logger:      s.Logger,
	}
	go httpServerProxy.ListenAndServe()
	<-stop

	s.Logger.Warn("Received interrupt. Shutting down")
	cancel()
	if s.Scheduler != nil {
		s.Scheduler.Stop()
	}
	wg.Wait()
	if s.OutputHandler != nil {
		s.OutputHandler.CleanUp(context.Background())
	}

	// flush stats before shutdown
	if err := s.StatsCloser.Close(); err != nil {
		s.Logger.Error(err.Error())
	}
	if s.RunStore != nil {
		if err := s.RunStore.Close(); err != nil {
			s.Logger.Error(err.Error())
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServerProxy.Shutdown(shutdownCtx); err != nil {
		return cli.NewExitError(fmt.Sprintf("while shutting down: %s", err), 1)
	}
	return nil
}

// Healthz returns the health check response. It always returns a 200 currently.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	data, err := json.MarshalIndent(&struct {
		Status string `json:"status"`
	}{
		Status: "ok",
	}, "", "  ")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "Error creating status json response: %s", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data) // nolint: errcheck
}
