package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewExecutionCmd создаёт группу команд для управления executions.
func NewExecutionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execution",
		Short: "Manage executions",
	}

	cmd.AddCommand(
		newExecutionListCmd(clientFn, outputFn),
		newExecutionStartCmd(clientFn, outputFn),
		newExecutionShowCmd(clientFn, outputFn),
		newExecutionPauseCmd(clientFn, outputFn),
		newExecutionResumeCmd(clientFn, outputFn),
		newExecutionCancelCmd(clientFn, outputFn),
		newExecutionCheckpointsCmd(clientFn, outputFn),
		newExecutionRestoreCmd(clientFn, outputFn),
	)

	return cmd
}

func newExecutionListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var workflowID string
	var state string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			executions, err := client.ListExecutions(ListExecutionsOpts{
				WorkflowID: workflowID,
				State:      state,
				Limit:      limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"ID", "WORKFLOW_ID", "VERSION", "STATE", "CREATED"}
			rows := make([][]string, len(executions))
			for i, e := range executions {
				rows[i] = []string{e.ID, e.WorkflowID, strconv.Itoa(e.Version), e.State, e.CreatedAt}
			}

			out.Print(headers, rows, executions)
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowID, "workflow-id", "", "Filter by workflow ID")
	cmd.Flags().StringVar(&state, "state", "", "Filter by state (PENDING, RUNNING, PAUSED, COMPLETED, FAILED, CANCELLED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newExecutionStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var version int
	var inputs []string
	var idempotencyKey string

	cmd := &cobra.Command{
		Use:   "start WORKFLOW_ID",
		Short: "Start a new execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := CreateExecutionRequest{
				IdempotencyKey: idempotencyKey,
			}

			if cmd.Flags().Changed("version") {
				req.Version = &version
			}

			if len(inputs) > 0 {
				req.Inputs = make(map[string]any)
				for _, kv := range inputs {
					parts := strings.SplitN(kv, "=", 2)
					if len(parts) != 2 {
						return fmt.Errorf("invalid input format %q, expected KEY=VALUE", kv)
					}
					req.Inputs[parts[0]] = parts[1]
				}
			}

			execution, err := client.StartExecution(args[0], req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Execution started: %s", execution.ID))
			out.Print(
				[]string{"ID", "WORKFLOW_ID", "VERSION", "STATE", "CREATED"},
				[][]string{{execution.ID, execution.WorkflowID, strconv.Itoa(execution.Version), execution.State, execution.CreatedAt}},
				execution,
			)
			return nil
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "Workflow version (latest if not specified)")
	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Input values as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Idempotency key")

	return cmd
}

func newExecutionShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show execution details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			execution, err := client.GetExecution(args[0])
			if err != nil {
				return err
			}

			progress := ""
			if execution.Progress != nil {
				progress = fmt.Sprintf("%d/%d (%.0f%%)",
					execution.Progress.Current,
					execution.Progress.Total,
					execution.Progress.Percentage,
				)
			}

			out.Print(
				[]string{"ID", "WORKFLOW_ID", "VERSION", "STATE", "PROGRESS", "ERROR", "CREATED"},
				[][]string{{execution.ID, execution.WorkflowID, strconv.Itoa(execution.Version), execution.State, progress, execution.Error, execution.CreatedAt}},
				execution,
			)
			return nil
		},
	}
}

func newExecutionPauseCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "pause ID",
		Short: "Pause a running execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			execution, err := client.PauseExecution(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Pause requested: %s", execution.ID))
			return nil
		},
	}
}

func newExecutionResumeCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "resume ID",
		Short: "Resume a paused execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			execution, err := client.ResumeExecution(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Execution resumed: %s", execution.ID))
			return nil
		},
	}
}

func newExecutionCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			execution, err := client.CancelExecution(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Execution cancelled: %s", execution.ID))
			return nil
		},
	}
}

func newExecutionCheckpointsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoints EXECUTION_ID",
		Short: "List checkpoints of an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			checkpoints, err := client.ListCheckpoints(args[0])
			if err != nil {
				return err
			}

			headers := []string{"ID", "STEP_INDEX", "DESCRIPTION", "CREATED"}
			rows := make([][]string, len(checkpoints))
			for i, cp := range checkpoints {
				rows[i] = []string{cp.ID, strconv.Itoa(cp.StepIndex), cp.Description, cp.CreatedAt}
			}

			out.Print(headers, rows, checkpoints)
			return nil
		},
	}
}

func newExecutionRestoreCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "restore EXECUTION_ID CHECKPOINT_ID",
		Short: "Restore a paused execution to a checkpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			execution, err := client.RestoreCheckpoint(args[0], args[1])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Execution %s restored to checkpoint %s", execution.ID, args[1]))
			return nil
		},
	}
}
