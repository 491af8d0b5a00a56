// SPDX-License-Identifier: Apache-2.0

package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/clusterman/clusterman/internal/config"
	"github.com/clusterman/clusterman/internal/log"
	"github.com/rs/zerolog"
)

const defaultPoolAttribute = "default"

type mesosResources struct {
	CPUs float64 `json:"cpus"`
	Mem  float64 `json:"mem"`
	Disk float64 `json:"disk"`
	GPUs float64 `json:"gpus"`
}

func (m mesosResources) toResources() Resources {
	return Resources{CPUs: m.CPUs, Mem: m.Mem, Disk: m.Disk, GPUs: m.GPUs}
}

type mesosAgent struct {
	ID            string            `json:"id"`
	PID           string            `json:"pid"`
	Hostname      string            `json:"hostname"`
	Attributes    map[string]string `json:"attributes"`
	Resources     mesosResources    `json:"resources"`
	UsedResources mesosResources    `json:"used_resources"`
}

type mesosTask struct {
	ID          string `json:"id"`
	State       string `json:"state"`
	SlaveID     string `json:"slave_id"`
	FrameworkID string `json:"framework_id"`
}

type mesosFramework struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Tasks []mesosTask `json:"tasks"`
}

type taskCount struct {
	allTasks   int
	batchTasks int
}

// MesosConnector reads pool state from the Mesos master HTTP API.
type MesosConnector struct {
	cluster  string
	pool     string
	endpoint string
	client   *http.Client
	holder   *config.Holder
	logger   zerolog.Logger

	mu         sync.RWMutex
	agentsByIP map[string]mesosAgent
	frameworks map[string]mesosFramework
	tasks      []mesosTask
	countsByID map[string]taskCount
}

// NewMesosConnector creates a connector for the given cluster and pool.
func NewMesosConnector(cfg config.Config, holder *config.Holder) *MesosConnector {
	endpoint := fmt.Sprintf("http://%s:5050/", cfg.MesosMasterFQDN)
	logger := log.WithPool("mesos-connector", cfg.Cluster, cfg.Pool)
	logger.Info().
		Str("event", "connector.init").
		Str("endpoint", endpoint).
		Msg("connecting to mesos masters")

	return &MesosConnector{
		cluster:  cfg.Cluster,
		pool:     cfg.Pool,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		holder:   holder,
		logger:   logger,
	}
}

// ReloadState refreshes agents, frameworks, and task counts. Order matters:
// tasks cannot be mapped to agents until both have been fetched.
func (c *MesosConnector) ReloadState(ctx context.Context) error {
	c.logger.Info().Str("event", "connector.reload_agents").Msg("reloading agents")
	agents, err := c.fetchAgentsByIP(ctx)
	if err != nil {
		return fmt.Errorf("reload agents: %w", err)
	}

	c.logger.Info().Str("event", "connector.reload_frameworks").Msg("reloading frameworks and tasks")
	tasks, frameworks, err := c.fetchTasksAndFrameworks(ctx)
	if err != nil {
		return fmt.Errorf("reload frameworks: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.agentsByIP = agents
	c.tasks = tasks
	c.frameworks = frameworks
	c.countsByID = c.countTasksPerAgent(tasks, frameworks)
	return nil
}

// AgentMetadataByIP implements ClusterConnector.
func (c *MesosConnector) AgentMetadataByIP(ip string) AgentMetadata {
	if ip == "" {
		return AgentMetadata{State: AgentUnknown}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	agent, ok := c.agentsByIP[ip]
	if !ok {
		return AgentMetadata{State: AgentOrphaned}
	}

	allocated := agent.UsedResources.toResources()
	state := AgentIdle
	if allocated.Any() {
		state = AgentRunning
	}
	counts := c.countsByID[agent.ID]
	return AgentMetadata{
		AgentID:        agent.ID,
		State:          state,
		TaskCount:      counts.allTasks,
		BatchTaskCount: counts.batchTasks,
		Allocated:      allocated,
		Total:          agent.Resources.toResources(),
	}
}

// AllocatedResources implements ClusterConnector.
func (c *MesosConnector) AllocatedResources() Resources {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var sum Resources
	for _, agent := range c.agentsByIP {
		sum = sum.Add(agent.UsedResources.toResources())
	}
	return sum
}

// TotalResources implements ClusterConnector.
func (c *MesosConnector) TotalResources() Resources {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var sum Resources
	for _, agent := range c.agentsByIP {
		sum = sum.Add(agent.Resources.toResources())
	}
	return sum
}

// FreezeAgent is a no-op for Mesos; the pool manager relies on task
// draining handled outside clusterman.
func (c *MesosConnector) FreezeAgent(_ context.Context, agentID string) error {
	c.logger.Info().
		Str("event", "connector.freeze_skipped").
		Str("agent_id", agentID).
		Msg("skipping freeze process because scheduler is mesos")
	return nil
}

func (c *MesosConnector) fetchAgentsByIP(ctx context.Context) (map[string]mesosAgent, error) {
	var response struct {
		Slaves []mesosAgent `json:"slaves"`
	}
	if err := c.post(ctx, "slaves", &response); err != nil {
		return nil, err
	}

	agents := make(map[string]mesosAgent, len(response.Slaves))
	for _, agent := range response.Slaves {
		pool := agent.Attributes["pool"]
		if pool == "" {
			pool = defaultPoolAttribute
		}
		if pool != c.pool {
			continue
		}
		ip, err := agentPIDToIP(agent.PID)
		if err != nil {
			c.logger.Warn().
				Err(err).
				Str("agent_id", agent.ID).
				Msg("could not determine agent IP, skipping")
			continue
		}
		agents[ip] = agent
	}
	return agents, nil
}

func (c *MesosConnector) fetchTasksAndFrameworks(ctx context.Context) ([]mesosTask, map[string]mesosFramework, error) {
	var response struct {
		Frameworks []mesosFramework `json:"frameworks"`
	}
	if err := c.post(ctx, "master/frameworks", &response); err != nil {
		return nil, nil, err
	}

	frameworks := make(map[string]mesosFramework, len(response.Frameworks))
	var tasks []mesosTask
	for _, framework := range response.Frameworks {
		frameworks[framework.ID] = framework
		tasks = append(tasks, framework.Tasks...)
	}
	return tasks, frameworks, nil
}

func (c *MesosConnector) countTasksPerAgent(tasks []mesosTask, frameworks map[string]mesosFramework) map[string]taskCount {
	counts := make(map[string]taskCount)
	for _, task := range tasks {
		if task.State != "TASK_RUNNING" {
			continue
		}
		count := counts[task.SlaveID]
		count.allTasks++
		if c.isBatchFramework(frameworks[task.FrameworkID].Name) {
			count.batchTasks++
		}
		counts[task.SlaveID] = count
	}
	return counts
}

// isBatchFramework treats a task as batch unless its framework name matches
// one of the configured non-batch prefixes.
func (c *MesosConnector) isBatchFramework(frameworkName string) bool {
	prefixes := []string{"marathon"}
	if c.holder != nil {
		if configured := c.holder.Get().NonBatchFrameworkPrefixes; len(configured) > 0 {
			prefixes = configured
		}
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(frameworkName, prefix) {
			return false
		}
	}
	return true
}

// post issues a POST to the master API; the Mesos master answers state
// queries on POST so redirects to the leading master are followed.
func (c *MesosConnector) post(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post %s: unexpected status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// agentPIDToIP extracts the IP from a Mesos agent pid of the form
// "slave(1)@10.0.0.1:5051".
func agentPIDToIP(pid string) (string, error) {
	_, addr, ok := strings.Cut(pid, "@")
	if !ok {
		return "", fmt.Errorf("malformed agent pid %q", pid)
	}
	ip, _, ok := strings.Cut(addr, ":")
	if !ok || ip == "" {
		return "", fmt.Errorf("malformed agent pid %q", pid)
	}
	return ip, nil
}
