// Package main provides the unified Cadence CLI.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"cadence-ci/src/bitbucket"
	"cadence-ci/src/broker"
	"cadence-ci/src/builder"
	"cadence-ci/src/buildsvc"
	"cadence-ci/src/config"
	"cadence-ci/src/contracts"
	"cadence-ci/src/github"
	"cadence-ci/src/logger"
	"cadence-ci/src/mcp"
	"cadence-ci/src/postback"
	"cadence-ci/src/store"
	"cadence-ci/src/tui"
	"cadence-ci/src/webhook"
	"cadence-ci/src/worker"
)

var appConfig *config.Config

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cadence",
	Short: "Cadence - a CI build orchestrator",
	Long: `Cadence ingests VCS webhooks, fans each push out into builds per
deployment environment, and runs those builds through a staged plugin
pipeline.

It supports two modes:
- Local Mode: in-memory store and broker, builds run in-process (default)
- Distributed Mode: Postgres + Redpanda, dedicated worker processes

Mode is auto-detected from the DATABASE_URL and REDPANDA_BROKERS
environment variables.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		appConfig, err = config.LoadFromEnv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
			os.Exit(1)
		}
	},
}

// newStore selects Postgres when DATABASE_URL is set, otherwise the
// in-memory store.
func newStore(ctx context.Context) (store.Store, error) {
	if appConfig.DatabaseURL == "" {
		return store.NewMemoryStore(), nil
	}
	st, err := store.NewPostgresStore(appConfig.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// newBroker selects Redpanda when REDPANDA_BROKERS is set, otherwise the
// in-memory broker.
func newBroker() (broker.Broker, error) {
	if len(appConfig.RedpandaBrokers) == 0 {
		return broker.NewInMemoryBroker(), nil
	}
	return broker.NewRedpandaBroker(appConfig.RedpandaBrokers)
}

func newNotifier() postback.Notifier {
	if appConfig.PostbackURL == "" {
		return postback.Noop{}
	}
	return postback.NewHTTP(appConfig.PostbackURL)
}

func newBuilder(st store.Store, log logger.Logger) *builder.Builder {
	workspaces := builder.NewWorkspaces(appConfig.BuildPath, appConfig.KeepBuilds)
	return builder.New(st, workspaces, newNotifier(), log)
}

func newWebhookServer(st store.Store, builds *buildsvc.Service, log logger.Logger) *webhook.Server {
	gh := github.NewClient(appConfig.GitHubToken, appConfig.GitHubPerPage)
	bb := bitbucket.NewClient(appConfig.BitbucketUsername, appConfig.BitbucketAppPassword)
	return webhook.NewServer(builds, st, gh, bb, log)
}

// serveCmd runs the webhook HTTP server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server",
	Long: `Listen for VCS webhooks and enqueue builds.

Local Mode (default): builds execute in-process as they are enqueued
Distributed Mode: builds are published to Redpanda for worker processes

Set REDPANDA_BROKERS and DATABASE_URL to enable distributed mode.`,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.NewConsoleLogger()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := newStore(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		brk, err := newBroker()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect broker: %v\n", err)
			os.Exit(1)
		}
		defer brk.Close()

		builds := buildsvc.New(st, brk, log)

		// The in-memory broker does not cross processes, so local mode
		// runs a worker alongside the server.
		if len(appConfig.RedpandaBrokers) == 0 {
			agent := worker.NewAgent(brk, newBuilder(st, log), log)
			go func() {
				if err := agent.Run(ctx); err != nil {
					log.Error("worker stopped: %v", err)
				}
			}()
		}

		server := &http.Server{
			Addr:    appConfig.ListenAddr,
			Handler: newWebhookServer(st, builds, log).Handler(),
		}
		go func() {
			<-ctx.Done()
			server.Shutdown(context.Background())
		}()

		log.Info("webhook server listening on %s", appConfig.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
	},
}

// workerCmd consumes queued builds and executes them
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a build worker",
	Long: `Consume queued build requests and execute them.

Requires distributed mode: set REDPANDA_BROKERS and DATABASE_URL so the
worker shares state with the webhook server.`,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.NewConsoleLogger()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if len(appConfig.RedpandaBrokers) == 0 {
			fmt.Fprintln(os.Stderr, "ERROR: REDPANDA_BROKERS is required for the worker command")
			os.Exit(1)
		}

		st, err := newStore(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		brk, err := newBroker()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect broker: %v\n", err)
			os.Exit(1)
		}
		defer brk.Close()

		agent := worker.NewAgent(brk, newBuilder(st, log), log)
		if err := agent.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "Worker error: %v\n", err)
			os.Exit(1)
		}
	},
}

// runCmd executes a single pending build by ID
var runCmd = &cobra.Command{
	Use:   "run [build-id]",
	Short: "Execute one build in the foreground",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		buildID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid build ID %q\n", args[0])
			os.Exit(1)
		}

		log := logger.NewConsoleLogger()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := newStore(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		if err := newBuilder(st, log).Execute(ctx, buildID); err != nil {
			fmt.Fprintf(os.Stderr, "Build failed: %v\n", err)
			os.Exit(1)
		}

		build, err := st.GetBuild(ctx, buildID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load build: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Build %d finished: %s\n", build.ID, build.Status)
	},
}

var (
	triggerCommit      string
	triggerBranch      string
	triggerEnvironment string
)

// triggerCmd creates a manual build
var triggerCmd = &cobra.Command{
	Use:   "trigger [project-id]",
	Short: "Trigger a manual build for a project",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		projectID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid project ID %q\n", args[0])
			os.Exit(1)
		}

		log := logger.NewConsoleLogger()
		ctx := context.Background()

		st, err := newStore(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		brk, err := newBroker()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect broker: %v\n", err)
			os.Exit(1)
		}
		defer brk.Close()

		builds := buildsvc.New(st, brk, log)
		build, err := builds.CreateManual(ctx, projectID, triggerCommit, triggerBranch, triggerEnvironment)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Trigger failed: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Created build %d on branch %s\n", build.ID, build.Branch)
		if len(appConfig.RedpandaBrokers) == 0 {
			fmt.Println("No REDPANDA_BROKERS set; run it with: cadence run", build.ID)
		}
	},
}

// watchCmd launches the build watch TUI
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch recent builds in an interactive TUI",
	Long: `Display recent builds in an interactive terminal view, refreshing
as they progress. Requires DATABASE_URL so the view shares state with the
server and workers.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		if appConfig.DatabaseURL == "" {
			fmt.Fprintln(os.Stderr, "ERROR: DATABASE_URL is required for the watch command")
			os.Exit(1)
		}

		st, err := newStore(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		if err := tui.Start(st); err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
			os.Exit(1)
		}
	},
}

// mcpCmd runs the MCP server on stdio
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server on stdio",
	Long: `Expose build triggering and inspection as MCP tools for agent
clients. Connects to the configured store and broker; builds triggered over
MCP are executed by workers.`,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.NewSilentLogger()
		ctx := context.Background()

		st, err := newStore(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		brk, err := newBroker()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect broker: %v\n", err)
			os.Exit(1)
		}
		defer brk.Close()

		builds := buildsvc.New(st, brk, log)
		if err := mcp.NewServer(st, builds).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
			os.Exit(1)
		}
	},
}

var (
	projectTitle             string
	projectType              string
	projectReference         string
	projectDefaultBranch     string
	projectDefaultBranchOnly bool
	projectPublicStatus      bool
)

// projectCmd groups project management subcommands
var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

// projectAddCmd registers a new project
var projectAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a new project",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		ptype := contracts.ProjectType(strings.ToLower(projectType))
		branch := projectDefaultBranch
		if branch == "" {
			branch = contracts.DefaultBranchFor(ptype)
		}

		st, err := newStore(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		project := &contracts.Project{
			Title:             projectTitle,
			Type:              ptype,
			Reference:         projectReference,
			DefaultBranch:     branch,
			DefaultBranchOnly: projectDefaultBranchOnly,
			PublicStatus:      projectPublicStatus,
		}
		if err := st.SaveProject(ctx, project); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save project: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Created project %d: %s (%s)\n", project.ID, project.Title, project.Type)
	},
}

var (
	envProjectID int64
	envName      string
	envBranches  []string
)

// environmentAddCmd registers a deployment environment for a project
var environmentAddCmd = &cobra.Command{
	Use:   "add-env",
	Short: "Register a deployment environment for a project",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		st, err := newStore(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		if _, err := st.GetProject(ctx, envProjectID); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load project %d: %v\n", envProjectID, err)
			os.Exit(1)
		}

		env := &contracts.Environment{
			ProjectID: envProjectID,
			Name:      envName,
			Branches:  envBranches,
		}
		if err := st.SaveEnvironment(ctx, env); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save environment: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Created environment %d: %s -> %v\n", env.ID, env.Name, env.Branches)
	},
}

func init() {
	triggerCmd.Flags().StringVar(&triggerCommit, "commit", "", "commit ID to build (default: branch head)")
	triggerCmd.Flags().StringVar(&triggerBranch, "branch", "", "branch to build (default: project default branch)")
	triggerCmd.Flags().StringVar(&triggerEnvironment, "env", "", "deployment environment to build against")

	projectAddCmd.Flags().StringVar(&projectTitle, "title", "", "project title")
	projectAddCmd.Flags().StringVar(&projectType, "type", "git", "project type (git, github, gitlab, bitbucket, gogs, hg, svn, local)")
	projectAddCmd.Flags().StringVar(&projectReference, "reference", "", "clone URL, or directory path for local projects")
	projectAddCmd.Flags().StringVar(&projectDefaultBranch, "default-branch", "", "default branch (default: conventional for the type)")
	projectAddCmd.Flags().BoolVar(&projectDefaultBranchOnly, "default-branch-only", false, "only build the default branch")
	projectAddCmd.Flags().BoolVar(&projectPublicStatus, "public-status", false, "expose build status publicly")
	projectAddCmd.MarkFlagRequired("title")
	projectAddCmd.MarkFlagRequired("reference")

	environmentAddCmd.Flags().Int64Var(&envProjectID, "project", 0, "project ID the environment belongs to")
	environmentAddCmd.Flags().StringVar(&envName, "name", "", "environment name")
	environmentAddCmd.Flags().StringSliceVar(&envBranches, "branches", nil, "branches that build against this environment")
	environmentAddCmd.MarkFlagRequired("project")
	environmentAddCmd.MarkFlagRequired("name")

	projectCmd.AddCommand(projectAddCmd, environmentAddCmd)
	rootCmd.AddCommand(serveCmd, workerCmd, runCmd, triggerCmd, watchCmd, mcpCmd, projectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
