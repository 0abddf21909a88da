package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/marcusgoll/Spec-Flow-sub014/internal/config"
	internalhttp "github.com/marcusgoll/Spec-Flow-sub014/internal/http"
	"github.com/marcusgoll/Spec-Flow-sub014/internal/log"
	"github.com/marcusgoll/Spec-Flow-sub014/internal/storage"
	"github.com/marcusgoll/Spec-Flow-sub014/pkg/models"
	"github.com/marcusgoll/Spec-Flow-sub014/pkg/plan"
	"github.com/marcusgoll/Spec-Flow-sub014/pkg/service"
)

// SetupCLI registers all specflow commands onto the root command.
func SetupCLI(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().String("db", "", "Path to the workflow database (defaults to SPECFLOW_DB_PATH or .specflow/specflow.db)")

	initCmd := &cobra.Command{
		Use:   "init [id]",
		Short: "Initiate a new feature or epic workflow",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			kind, _ := cmd.Flags().GetString("kind")
			svc, store := newService(cmd)
			defer store.Close()
			inst, err := svc.InitWorkflow(args[0], models.WorkflowKind(kind), nil)
			if err != nil {
				fail("failed to initiate workflow", err)
			}
			fmt.Fprintf(os.Stdout, "Initiated %s workflow '%s' (phase: %s)\n", inst.Kind, inst.ID, inst.CurrentPhase)
		},
	}
	initCmd.Flags().String("kind", string(models.FeatureWorkflowKind), "Workflow kind: feature or epic")

	planCmd := &cobra.Command{
		Use:   "plan [id]",
		Short: "Attach a sprint plan manifest and compute execution layers",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			file, _ := cmd.Flags().GetString("file")
			if file == "" {
				fmt.Fprintln(os.Stderr, "Error: --file is required")
				os.Exit(1)
			}
			manifest, err := plan.Load(file)
			if err != nil {
				fail("failed to load plan manifest", err)
			}
			svc, store := newService(cmd)
			defer store.Close()
			inst, err := svc.AttachPlan(args[0], manifest.Decls(), manifest.GateDecls())
			if err != nil {
				fail("failed to attach plan", err)
			}
			fmt.Fprintf(os.Stdout, "Attached plan with %d sprints to '%s'\n", len(inst.Sprints), inst.ID)
			printLayers(inst)
		},
	}
	planCmd.Flags().String("file", "", "Path to the sprint plan manifest (YAML)")

	statusCmd := &cobra.Command{
		Use:   "status [id]",
		Short: "Show workflow status (all instances when no id is given)",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			asJSON, _ := cmd.Flags().GetBool("json")
			svc, store := newService(cmd)
			defer store.Close()
			if len(args) == 0 {
				listInstances(svc, asJSON)
				return
			}
			inst, err := svc.GetWorkflow(args[0])
			if err != nil {
				fail("failed to load workflow", err)
			}
			if asJSON {
				printJSON(inst)
				return
			}
			printInstance(inst)
		},
	}
	statusCmd.Flags().Bool("json", false, "Emit JSON instead of tables")

	continueCmd := &cobra.Command{
		Use:   "continue [id]",
		Short: "Compute the resume plan: the minimal remaining work",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			asJSON, _ := cmd.Flags().GetBool("json")
			svc, store := newService(cmd)
			defer store.Close()
			resume, err := svc.PlanResume(args[0])
			if err != nil {
				fail("failed to compute resume plan", err)
			}
			if asJSON {
				printJSON(resume)
				return
			}
			printResume(resume)
		},
	}
	continueCmd.Flags().Bool("json", false, "Emit JSON instead of text")

	gateCmd := &cobra.Command{Use: "gate", Short: "Approve or reject phase gates"}
	gateCmd.AddCommand(
		&cobra.Command{
			Use:   "approve [id] [phase]",
			Short: "Approve the pending gate of an in-progress phase",
			Args:  cobra.ExactArgs(2),
			Run: func(cmd *cobra.Command, args []string) {
				svc, store := newService(cmd)
				defer store.Close()
				if _, err := svc.ApproveGate(args[0], models.PhaseName(args[1])); err != nil {
					fail("failed to approve gate", err)
				}
				fmt.Fprintf(os.Stdout, "Approved gate for phase '%s' on '%s'\n", args[1], args[0])
			},
		},
		&cobra.Command{
			Use:   "reject [id] [phase]",
			Short: "Reject the pending gate of an in-progress phase",
			Args:  cobra.ExactArgs(2),
			Run: func(cmd *cobra.Command, args []string) {
				svc, store := newService(cmd)
				defer store.Close()
				if _, err := svc.RejectGate(args[0], models.PhaseName(args[1])); err != nil {
					fail("failed to reject gate", err)
				}
				fmt.Fprintf(os.Stdout, "Rejected gate for phase '%s' on '%s'\n", args[1], args[0])
			},
		},
	)

	phaseCmd := &cobra.Command{Use: "phase", Short: "Drive phase transitions"}
	phaseFailCmd := &cobra.Command{
		Use:   "fail [id] [phase]",
		Short: "Mark an in-progress phase as failed (blocks the instance)",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			reason, _ := cmd.Flags().GetString("reason")
			svc, store := newService(cmd)
			defer store.Close()
			if _, err := svc.FailPhase(args[0], models.PhaseName(args[1]), reason); err != nil {
				fail("failed to fail phase", err)
			}
			fmt.Fprintf(os.Stdout, "Phase '%s' on '%s' marked failed\n", args[1], args[0])
		},
	}
	phaseFailCmd.Flags().String("reason", "", "Why the phase failed")
	phaseCmd.AddCommand(
		&cobra.Command{
			Use:   "complete [id] [phase]",
			Short: "Complete an in-progress phase and start the next one",
			Args:  cobra.ExactArgs(2),
			Run: func(cmd *cobra.Command, args []string) {
				svc, store := newService(cmd)
				defer store.Close()
				inst, err := svc.CompletePhase(args[0], models.PhaseName(args[1]))
				if err != nil {
					fail("failed to complete phase", err)
				}
				if inst.Status == models.CompletedInstanceStatus {
					fmt.Fprintf(os.Stdout, "Workflow '%s' completed\n", inst.ID)
					return
				}
				fmt.Fprintf(os.Stdout, "Completed phase '%s' on '%s' (now: %s)\n", args[1], inst.ID, inst.CurrentPhase)
			},
		},
		phaseFailCmd,
		&cobra.Command{
			Use:   "retry [id] [phase]",
			Short: "Reset a failed phase to pending and re-start it",
			Args:  cobra.ExactArgs(2),
			Run: func(cmd *cobra.Command, args []string) {
				svc, store := newService(cmd)
				defer store.Close()
				if _, err := svc.RetryPhase(args[0], models.PhaseName(args[1])); err != nil {
					fail("failed to retry phase", err)
				}
				fmt.Fprintf(os.Stdout, "Retrying phase '%s' on '%s'\n", args[1], args[0])
			},
		},
	)

	sprintCmd := &cobra.Command{Use: "sprint", Short: "Report sprint execution results"}
	sprintBlockCmd := &cobra.Command{
		Use:   "block [id] [sprint]",
		Short: "Mark a sprint as blocked",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			reason, _ := cmd.Flags().GetString("reason")
			svc, store := newService(cmd)
			defer store.Close()
			if _, err := svc.BlockSprint(args[0], args[1], reason); err != nil {
				fail("failed to block sprint", err)
			}
			fmt.Fprintf(os.Stdout, "Sprint '%s' on '%s' marked blocked\n", args[1], args[0])
		},
	}
	sprintBlockCmd.Flags().String("reason", "", "Why the sprint is blocked")
	sprintCmd.AddCommand(
		&cobra.Command{
			Use:   "start [id] [sprint]",
			Short: "Record that an executor picked up a sprint",
			Args:  cobra.ExactArgs(2),
			Run: func(cmd *cobra.Command, args []string) {
				svc, store := newService(cmd)
				defer store.Close()
				if _, err := svc.StartSprint(args[0], args[1]); err != nil {
					fail("failed to start sprint", err)
				}
				fmt.Fprintf(os.Stdout, "Sprint '%s' on '%s' started\n", args[1], args[0])
			},
		},
		&cobra.Command{
			Use:   "complete [id] [sprint]",
			Short: "Record a finished sprint; locks contracts at layer boundaries",
			Args:  cobra.ExactArgs(2),
			Run: func(cmd *cobra.Command, args []string) {
				svc, store := newService(cmd)
				defer store.Close()
				inst, err := svc.CompleteSprint(args[0], args[1])
				if err != nil {
					fail("failed to complete sprint", err)
				}
				fmt.Fprintf(os.Stdout, "Sprint '%s' on '%s' completed\n", args[1], args[0])
				if ph := inst.Phase(models.ImplementationPhase); ph != nil && ph.Status == models.CompletedPhaseStatus {
					fmt.Fprintf(os.Stdout, "All sprints done; implementation phase completed (now: %s)\n", inst.CurrentPhase)
				}
			},
		},
		sprintBlockCmd,
	)

	abandonCmd := &cobra.Command{
		Use:   "abandon [id]",
		Short: "Abandon a workflow (one-way, no further mutation)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc, store := newService(cmd)
			defer store.Close()
			if _, err := svc.Abandon(args[0]); err != nil {
				fail("failed to abandon workflow", err)
			}
			fmt.Fprintf(os.Stdout, "Abandoned workflow '%s'\n", args[0])
		},
	}

	eventsCmd := &cobra.Command{
		Use:   "events [id]",
		Short: "Dump the transition journal of a workflow",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc, store := newService(cmd)
			defer store.Close()
			evts, err := svc.Events(args[0])
			if err != nil {
				fail("failed to load events", err)
			}
			for _, evt := range evts {
				payload, _ := json.Marshal(evt.Payload)
				fmt.Fprintf(os.Stdout, "%s  %-20s %s\n", evt.TS.Format(time.RFC3339), evt.Type, payload)
			}
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only status API over HTTP",
		Run: func(cmd *cobra.Command, args []string) {
			addr, _ := cmd.Flags().GetString("addr")
			cfg := loadConfig()
			if addr == "" {
				addr = cfg.HTTPAddr
			}
			store := initStore(dbPath(cmd, cfg))
			defer store.Close()
			if err := internalhttp.StartServer(addr, store); err != nil {
				fail("server stopped", err)
			}
		},
	}
	serveCmd.Flags().String("addr", "", "Listen address (defaults to SPECFLOW_HTTP_ADDR)")

	rootCmd.AddCommand(initCmd, planCmd, statusCmd, continueCmd, gateCmd, phaseCmd, sprintCmd, abandonCmd, eventsCmd, serveCmd)
}

func newService(cmd *cobra.Command) (*service.WorkflowService, *storage.SQLiteStore) {
	store := initStore(dbPath(cmd, loadConfig()))
	return service.NewWorkflowService(store, log.GetLogger()), store
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fail("failed to load configuration", err)
	}
	return cfg
}

func dbPath(cmd *cobra.Command, cfg *config.Config) string {
	if path, err := cmd.Flags().GetString("db"); err == nil && path != "" {
		return path
	}
	return cfg.DBPath
}

func initStore(path string) *storage.SQLiteStore {
	store, err := storage.InitStore(path)
	if err != nil {
		fail("failed to initialize store", err)
	}
	return store
}

func fail(msg string, err error) {
	log.GetLogger().Errorf("%s: %v", msg, err)
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	os.Exit(1)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fail("failed to encode output", err)
	}
}

func listInstances(svc *service.WorkflowService, asJSON bool) {
	instances, err := svc.ListWorkflows()
	if err != nil {
		fail("failed to list workflows", err)
	}
	if asJSON {
		printJSON(instances)
		return
	}
	if len(instances) == 0 {
		fmt.Fprintln(os.Stdout, "No workflows found.")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Kind", "Status", "Current Phase", "Version", "Created"})
	for _, inst := range instances {
		t.AppendRow(table.Row{inst.ID, inst.Kind, inst.Status, inst.CurrentPhase, inst.Version, inst.CreatedAt.Format(time.RFC3339)})
	}
	t.Render()
}

func printInstance(inst *models.WorkflowInstance) {
	fmt.Fprintf(os.Stdout, "Workflow '%s' (%s): %s, version %d\n\n", inst.ID, inst.Kind, inst.Status, inst.Version)

	pt := table.NewWriter()
	pt.SetOutputMirror(os.Stdout)
	pt.AppendHeader(table.Row{"Phase", "Status", "Gate", "Started", "Completed"})
	for _, ph := range inst.Phases {
		gate := "-"
		if ph.Gate != nil {
			gate = fmt.Sprintf("%s/%s", ph.Gate.Kind, ph.Gate.Status)
		}
		pt.AppendRow(table.Row{ph.Name, ph.Status, gate, formatTime(ph.StartedAt), formatTime(ph.CompletedAt)})
	}
	pt.Render()

	if len(inst.Sprints) > 0 {
		fmt.Fprintln(os.Stdout)
		st := table.NewWriter()
		st.SetOutputMirror(os.Stdout)
		st.AppendHeader(table.Row{"Sprint", "Layer", "Status", "Depends On", "Produces", "Consumes"})
		for _, sp := range inst.Sprints {
			st.AppendRow(table.Row{sp.ID, sp.LayerIndex, sp.Status, join(sp.Dependencies), join(sp.ContractsProduced), join(sp.ContractsConsumed)})
		}
		st.Render()
	}

	if len(inst.Contracts) > 0 {
		fmt.Fprintln(os.Stdout)
		ct := table.NewWriter()
		ct.SetOutputMirror(os.Stdout)
		ct.AppendHeader(table.Row{"Contract", "Produced By", "Locked At"})
		for _, c := range inst.Contracts {
			ct.AppendRow(table.Row{c.ID, c.ProducingSprintID, formatTime(c.LockedAt)})
		}
		ct.Render()
	}
}

func printLayers(inst *models.WorkflowInstance) {
	byLayer := map[int][]string{}
	maxLayer := 0
	for _, sp := range inst.Sprints {
		byLayer[sp.LayerIndex] = append(byLayer[sp.LayerIndex], sp.ID)
		if sp.LayerIndex > maxLayer {
			maxLayer = sp.LayerIndex
		}
	}
	for i := 0; i <= maxLayer; i++ {
		fmt.Fprintf(os.Stdout, "  layer %d: %s\n", i, join(byLayer[i]))
	}
}

func printResume(resume models.ResumePlan) {
	if resume.Done {
		fmt.Fprintf(os.Stdout, "Workflow '%s' is complete; nothing to resume.\n", resume.InstanceID)
		return
	}
	fmt.Fprintf(os.Stdout, "Resume '%s' at phase '%s'\n", resume.InstanceID, resume.Phase)
	if resume.GatePending {
		fmt.Fprintln(os.Stdout, "  gate: pending approval")
	}
	if resume.LayerIndex >= 0 {
		fmt.Fprintf(os.Stdout, "  layer %d, remaining sprints: %s\n", resume.LayerIndex, join(resume.SprintIDs))
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func join(ss []string) string {
	if len(ss) == 0 {
		return "-"
	}
	return strings.Join(ss, ", ")
}
