package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// WorkflowResponse — workflow из API.
type WorkflowResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsActive    bool   `json:"is_active"`
	CreatedAt   string `json:"created_at"`
}

// WorkflowVersionResponse — версия workflow из API.
type WorkflowVersionResponse struct {
	WorkflowID string         `json:"workflow_id"`
	Version    int            `json:"version"`
	Definition map[string]any `json:"definition"`
	CreatedAt  string         `json:"created_at"`
	Warnings   []struct {
		Severity string `json:"severity"`
		StepID   string `json:"step_id,omitempty"`
		Field    string `json:"field,omitempty"`
		Message  string `json:"message"`
	} `json:"warnings,omitempty"`
}

// ProgressResponse — прогресс активного execution.
type ProgressResponse struct {
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// ExecutionResponse — execution из API.
type ExecutionResponse struct {
	ID             string            `json:"id"`
	WorkflowID     string            `json:"workflow_id"`
	Version        int               `json:"version"`
	State          string            `json:"state"`
	Inputs         map[string]any    `json:"inputs,omitempty"`
	Error          string            `json:"error,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	StartedAt      string            `json:"started_at,omitempty"`
	FinishedAt     string            `json:"finished_at,omitempty"`
	CreatedAt      string            `json:"created_at"`
	Progress       *ProgressResponse `json:"progress,omitempty"`
}

// CheckpointResponse — checkpoint из API.
type CheckpointResponse struct {
	ID          string `json:"id"`
	StepIndex   int    `json:"step_index"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// ScheduleResponse — schedule из API.
type ScheduleResponse struct {
	ID                 string         `json:"id"`
	WorkflowID         string         `json:"workflow_id"`
	Name               string         `json:"name,omitempty"`
	CronExpr           string         `json:"cron_expr,omitempty"`
	IntervalSec        int            `json:"interval_sec,omitempty"`
	Timezone           string         `json:"timezone"`
	Enabled            bool           `json:"enabled"`
	NextDueAt          string         `json:"next_due_at,omitempty"`
	LastRunAt          string         `json:"last_run_at,omitempty"`
	LastExecutionID    string         `json:"last_execution_id,omitempty"`
	LastExecutionState string         `json:"last_execution_state,omitempty"`
	Inputs             map[string]any `json:"inputs,omitempty"`
	CreatedAt          string         `json:"created_at"`
	UpdatedAt          string         `json:"updated_at"`
}

// --- Request types ---

// CreateWorkflowRequest — создание workflow.
type CreateWorkflowRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UpdateWorkflowRequest — обновление workflow.
type UpdateWorkflowRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

// CreateExecutionRequest — запуск workflow.
type CreateExecutionRequest struct {
	Inputs         map[string]any `json:"inputs,omitempty"`
	Version        *int           `json:"version,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// CreateScheduleRequest — создание schedule.
type CreateScheduleRequest struct {
	Name        string         `json:"name"`
	CronExpr    string         `json:"cron_expr,omitempty"`
	IntervalSec int            `json:"interval_sec,omitempty"`
	Timezone    string         `json:"timezone,omitempty"`
	Enabled     bool           `json:"enabled"`
	Inputs      map[string]any `json:"inputs,omitempty"`
}

// UpdateScheduleRequest — обновление schedule.
type UpdateScheduleRequest struct {
	Name        *string `json:"name,omitempty"`
	CronExpr    *string `json:"cron_expr,omitempty"`
	IntervalSec *int    `json:"interval_sec,omitempty"`
	Timezone    *string `json:"timezone,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty"`
}

// ListExecutionsOpts — параметры фильтрации executions.
type ListExecutionsOpts struct {
	WorkflowID string
	State      string
	Limit      int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Wayfinder API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Workflows ---

// ListWorkflows возвращает все workflows.
func (c *Client) ListWorkflows() ([]WorkflowResponse, error) {
	var workflows []WorkflowResponse
	err := c.list("/api/v1/workflows", nil, &workflows)
	return workflows, err
}

// CreateWorkflow создаёт новый workflow.
func (c *Client) CreateWorkflow(req CreateWorkflowRequest) (*WorkflowResponse, error) {
	var workflow WorkflowResponse
	err := c.post("/api/v1/workflows", req, &workflow)
	return &workflow, err
}

// GetWorkflow возвращает workflow по ID.
func (c *Client) GetWorkflow(id string) (*WorkflowResponse, error) {
	var workflow WorkflowResponse
	err := c.get("/api/v1/workflows/"+id, &workflow)
	return &workflow, err
}

// UpdateWorkflow обновляет workflow.
func (c *Client) UpdateWorkflow(id string, req UpdateWorkflowRequest) (*WorkflowResponse, error) {
	var workflow WorkflowResponse
	err := c.put("/api/v1/workflows/"+id, req, &workflow)
	return &workflow, err
}

// DeleteWorkflow удаляет workflow.
func (c *Client) DeleteWorkflow(id string) error {
	return c.delete("/api/v1/workflows/" + id)
}

// ListVersions возвращает версии workflow.
func (c *Client) ListVersions(workflowID string) ([]WorkflowVersionResponse, error) {
	var versions []WorkflowVersionResponse
	err := c.list("/api/v1/workflows/"+workflowID+"/versions", nil, &versions)
	return versions, err
}

// CreateVersion создаёт новую версию workflow.
func (c *Client) CreateVersion(workflowID string, definition json.RawMessage) (*WorkflowVersionResponse, error) {
	body := map[string]json.RawMessage{"definition": definition}
	var version WorkflowVersionResponse
	err := c.post("/api/v1/workflows/"+workflowID+"/versions", body, &version)
	return &version, err
}

// --- Executions ---

// ListExecutions возвращает список executions с фильтрацией.
func (c *Client) ListExecutions(opts ListExecutionsOpts) ([]ExecutionResponse, error) {
	params := url.Values{}
	if opts.WorkflowID != "" {
		params.Set("workflow_id", opts.WorkflowID)
	}
	if opts.State != "" {
		params.Set("state", opts.State)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	var executions []ExecutionResponse
	err := c.list("/api/v1/executions", params, &executions)
	return executions, err
}

// StartExecution запускает workflow.
func (c *Client) StartExecution(workflowID string, req CreateExecutionRequest) (*ExecutionResponse, error) {
	var execution ExecutionResponse
	err := c.post("/api/v1/workflows/"+workflowID+"/executions", req, &execution)
	return &execution, err
}

// GetExecution возвращает execution по ID.
func (c *Client) GetExecution(id string) (*ExecutionResponse, error) {
	var execution ExecutionResponse
	err := c.get("/api/v1/executions/"+id, &execution)
	return &execution, err
}

// PauseExecution приостанавливает execution.
func (c *Client) PauseExecution(id string) (*ExecutionResponse, error) {
	var execution ExecutionResponse
	err := c.post("/api/v1/executions/"+id+"/pause", nil, &execution)
	return &execution, err
}

// ResumeExecution возобновляет execution.
func (c *Client) ResumeExecution(id string) (*ExecutionResponse, error) {
	var execution ExecutionResponse
	err := c.post("/api/v1/executions/"+id+"/resume", nil, &execution)
	return &execution, err
}

// CancelExecution отменяет execution.
func (c *Client) CancelExecution(id string) (*ExecutionResponse, error) {
	var execution ExecutionResponse
	err := c.post("/api/v1/executions/"+id+"/cancel", nil, &execution)
	return &execution, err
}

// ListCheckpoints возвращает checkpoints execution.
func (c *Client) ListCheckpoints(executionID string) ([]CheckpointResponse, error) {
	var checkpoints []CheckpointResponse
	err := c.list("/api/v1/executions/"+executionID+"/checkpoints", nil, &checkpoints)
	return checkpoints, err
}

// RestoreCheckpoint откатывает execution к checkpoint.
func (c *Client) RestoreCheckpoint(executionID, checkpointID string) (*ExecutionResponse, error) {
	var execution ExecutionResponse
	err := c.post("/api/v1/executions/"+executionID+"/checkpoints/"+checkpointID+"/restore", nil, &execution)
	return &execution, err
}

// --- Schedules ---

// ListSchedules возвращает schedules. Если workflowID не пустой — фильтрует.
func (c *Client) ListSchedules(workflowID string) ([]ScheduleResponse, error) {
	params := url.Values{}
	if workflowID != "" {
		params.Set("workflow_id", workflowID)
	}

	var schedules []ScheduleResponse
	err := c.list("/api/v1/schedules", params, &schedules)
	return schedules, err
}

// CreateSchedule создаёт schedule для workflow.
func (c *Client) CreateSchedule(workflowID string, req CreateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.post("/api/v1/workflows/"+workflowID+"/schedules", req, &schedule)
	return &schedule, err
}

// GetSchedule возвращает schedule по ID.
func (c *Client) GetSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.get("/api/v1/schedules/"+id, &schedule)
	return &schedule, err
}

// UpdateSchedule обновляет schedule.
func (c *Client) UpdateSchedule(id string, req UpdateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.put("/api/v1/schedules/"+id, req, &schedule)
	return &schedule, err
}

// DeleteSchedule удаляет schedule.
func (c *Client) DeleteSchedule(id string) error {
	return c.delete("/api/v1/schedules/" + id)
}

// EnableSchedule включает schedule.
func (c *Client) EnableSchedule(id string) (*ScheduleResponse, error) {
	enabled := true
	return c.UpdateSchedule(id, UpdateScheduleRequest{Enabled: &enabled})
}

// DisableSchedule выключает schedule.
func (c *Client) DisableSchedule(id string) (*ScheduleResponse, error) {
	enabled := false
	return c.UpdateSchedule(id, UpdateScheduleRequest{Enabled: &enabled})
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
