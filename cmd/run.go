package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mcp-agent/agent_go/internal/llm"
	"mcp-agent/agent_go/internal/observability"
	"mcp-agent/agent_go/pkg/critic"
	"mcp-agent/agent_go/pkg/executor"
	"mcp-agent/agent_go/pkg/logger"
	"mcp-agent/agent_go/pkg/mcpclient"
	"mcp-agent/agent_go/pkg/memory"
	"mcp-agent/agent_go/pkg/orchestrator"
	"mcp-agent/agent_go/pkg/planner"
	"mcp-agent/agent_go/pkg/skills"
	"mcp-agent/agent_go/pkg/telemetry"
	"mcp-agent/agent_go/pkg/telemetry/store"
	"mcp-agent/agent_go/pkg/verifier"
)

var runCmd = &cobra.Command{
	Use:   "run [query]",
	Short: "Run the skill orchestrator against a query",
	Long: `Discovers the matching skill, plans an atomic execution roadmap, and
drives the step-by-step execution/verification/critique loop until the
mission completes, self-heals around a failed step, or fails outright.`,
	Args: cobra.ExactArgs(1),
	RunE: runMission,
}

func init() {
	runCmd.Flags().String("skills-dir", ".agent/skills", "directory to discover SKILL.md files from")
	runCmd.Flags().String("workspace", "", "workspace root (defaults to the current directory)")
	runCmd.Flags().String("provider", "anthropic", "LLM provider (anthropic, openai, bedrock, vertexai)")
	runCmd.Flags().String("model", "claude-3-7-sonnet-latest", "model identifier for the chosen provider")
	runCmd.Flags().String("mcp-config", "", "path to an MCP server manifest (optional)")
	runCmd.Flags().String("mcp-server", "", "name of the server entry in --mcp-config to connect to")
	runCmd.Flags().String("telemetry-db", "", "path to a SQLite file for durable telemetry (optional)")
	runCmd.Flags().Duration("script-timeout", skills.DefaultScriptTimeout, "timeout for a single skill script execution")

	viper.BindPFlag("run.skills-dir", runCmd.Flags().Lookup("skills-dir"))
	viper.BindPFlag("run.workspace", runCmd.Flags().Lookup("workspace"))
	viper.BindPFlag("run.provider", runCmd.Flags().Lookup("provider"))
	viper.BindPFlag("run.model", runCmd.Flags().Lookup("model"))
	viper.BindPFlag("run.mcp-config", runCmd.Flags().Lookup("mcp-config"))
	viper.BindPFlag("run.mcp-server", runCmd.Flags().Lookup("mcp-server"))
	viper.BindPFlag("run.telemetry-db", runCmd.Flags().Lookup("telemetry-db"))
	viper.BindPFlag("run.script-timeout", runCmd.Flags().Lookup("script-timeout"))

	rootCmd.AddCommand(runCmd)
}

func runMission(cmd *cobra.Command, args []string) error {
	query := args[0]
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	logLevel := viper.GetString("log-level")
	logFormat := viper.GetString("log-format")
	logFile := viper.GetString("log-file")
	log, err := logger.CreateLogger(logFile, logLevel, logFormat, logFile == "")
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	workspace := viper.GetString("run.workspace")
	if workspace == "" {
		workspace, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve workspace: %w", err)
		}
	}

	skillsDir := viper.GetString("run.skills-dir")
	if !filepath.IsAbs(skillsDir) {
		skillsDir = filepath.Join(workspace, skillsDir)
	}

	skillsReg, err := skills.NewRegistry(skillsDir, log)
	if err != nil {
		return fmt.Errorf("discover skills: %w", err)
	}
	skillsReg.SetScriptTimeout(viper.GetDuration("run.script-timeout"))

	mem, err := memory.Load(workspace)
	if err != nil {
		return fmt.Errorf("load session memory: %w", err)
	}

	var durableStore *store.Store
	if dbPath := viper.GetString("run.telemetry-db"); dbPath != "" {
		durableStore, err = store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open telemetry store: %w", err)
		}
		defer durableStore.Close()
	}
	tracer := observability.GetTracer(viper.GetString("trace-provider"), log)
	telem := telemetry.New(os.Stderr, tracer, durableStore)
	defer telem.Close()

	provider := llm.Provider(viper.GetString("run.provider"))
	modelID := viper.GetString("run.model")
	model, err := llm.New(ctx, provider, modelID, log)
	if err != nil {
		return fmt.Errorf("construct LLM client: %w", err)
	}

	var tools *mcpclient.Client
	if cfgPath := viper.GetString("run.mcp-config"); cfgPath != "" {
		mcpCfg, err := mcpclient.LoadConfig(cfgPath)
		if err != nil {
			return fmt.Errorf("load MCP config: %w", err)
		}
		serverName := viper.GetString("run.mcp-server")
		serverCfg, err := mcpCfg.Server(serverName)
		if err != nil {
			return fmt.Errorf("resolve MCP server %q: %w", serverName, err)
		}
		tools = mcpclient.New(serverCfg, log)
		if err := tools.Connect(ctx); err != nil {
			return fmt.Errorf("connect to MCP server %q: %w", serverName, err)
		}
		defer tools.Close()
	}

	pl := planner.New(model, log)
	exec := executor.New(model, tools, mem, log)
	ver := verifier.New(mem, log)
	crit := critic.New(model, log)
	techLead := critic.NewTechLead(model)

	orch := orchestrator.New(skillsReg, mem, pl, exec, ver, crit, techLead, telem, log)

	summary, err := orch.Run(ctx, query)
	if err != nil {
		log.Errorf("mission failed: %v", err)
		fmt.Fprintf(os.Stderr, "CRITICAL STOP: %v\n", err)
		return err
	}

	fmt.Printf("MISSION COMPLETE (state=%s, transitions=%d, recoveries=%d)\n",
		summary.CurrentState, summary.TotalTransitions, summary.RecoveryCount)
	return nil
}
