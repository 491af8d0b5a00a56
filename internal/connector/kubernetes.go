// SPDX-License-Identifier: Apache-2.0

package connector

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/clusterman/clusterman/internal/config"
	"github.com/clusterman/clusterman/internal/log"
	"github.com/rs/zerolog"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// PoolLabel is the node label that assigns a node to a clusterman pool.
const PoolLabel = "clusterman.com/pool"

const gpuResourceName = "nvidia.com/gpu"

// UnschedulableReason classifies why a pending pod cannot be scheduled.
type UnschedulableReason string

const (
	ReasonInsufficientResources UnschedulableReason = "insufficient_resources"
	ReasonUnknown               UnschedulableReason = "unknown"
)

// PendingPod is an unschedulable pod together with the derived reason.
type PendingPod struct {
	Pod    *corev1.Pod
	Reason UnschedulableReason
}

// KubernetesConnector reads pool state from the Kubernetes API.
type KubernetesConnector struct {
	cluster string
	pool    string
	client  kubernetes.Interface
	logger  zerolog.Logger

	mu          sync.RWMutex
	nodesByIP   map[string]*corev1.Node
	podsByNode  map[string][]*corev1.Pod
	pendingPods []PendingPod
}

// NewKubernetesConnector creates a connector using the kubeconfig at the
// configured path, or in-cluster config when the path is empty.
func NewKubernetesConnector(cfg config.Config) (*KubernetesConnector, error) {
	var restCfg *rest.Config
	var err error
	if cfg.KubeconfigPath != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", cfg.KubeconfigPath)
	} else {
		restCfg, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("build kubernetes config: %w", err)
	}

	client, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return NewKubernetesConnectorWithClient(cfg.Cluster, cfg.Pool, client), nil
}

// NewKubernetesConnectorWithClient wires an existing clientset; used by
// tests with a fake clientset.
func NewKubernetesConnectorWithClient(cluster, pool string, client kubernetes.Interface) *KubernetesConnector {
	return &KubernetesConnector{
		cluster: cluster,
		pool:    pool,
		client:  client,
		logger:  log.WithPool("kubernetes-connector", cluster, pool),
	}
}

// ReloadState refreshes nodes, pods, and the pending pod list.
func (c *KubernetesConnector) ReloadState(ctx context.Context) error {
	c.logger.Info().Str("event", "connector.reload_nodes").Msg("reloading nodes")
	nodes, err := c.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s", PoolLabel, c.pool),
	})
	if err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}

	c.logger.Info().Str("event", "connector.reload_pods").Msg("reloading pods")
	pods, err := c.client.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return fmt.Errorf("list pods: %w", err)
	}

	nodesByIP := make(map[string]*corev1.Node, len(nodes.Items))
	nodeNames := make(map[string]bool, len(nodes.Items))
	for i := range nodes.Items {
		node := &nodes.Items[i]
		nodeNames[node.Name] = true
		for _, addr := range node.Status.Addresses {
			if addr.Type == corev1.NodeInternalIP {
				nodesByIP[addr.Address] = node
			}
		}
	}

	podsByNode := make(map[string][]*corev1.Pod)
	var pending []PendingPod
	for i := range pods.Items {
		pod := &pods.Items[i]
		switch {
		case pod.Spec.NodeName != "" && nodeNames[pod.Spec.NodeName] && podConsumesResources(pod):
			podsByNode[pod.Spec.NodeName] = append(podsByNode[pod.Spec.NodeName], pod)
		case isUnschedulable(pod):
			pending = append(pending, PendingPod{Pod: pod, Reason: unschedulableReason(pod)})
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodesByIP = nodesByIP
	c.podsByNode = podsByNode
	c.pendingPods = pending
	return nil
}

// AgentMetadataByIP implements ClusterConnector.
func (c *KubernetesConnector) AgentMetadataByIP(ip string) AgentMetadata {
	if ip == "" {
		return AgentMetadata{State: AgentUnknown}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	node, ok := c.nodesByIP[ip]
	if !ok {
		return AgentMetadata{State: AgentOrphaned}
	}

	var allocated Resources
	taskCount := 0
	for _, pod := range c.podsByNode[node.Name] {
		allocated = allocated.Add(PodResourceRequest(pod))
		taskCount++
	}

	state := AgentIdle
	if allocated.Any() {
		state = AgentRunning
	}
	return AgentMetadata{
		AgentID:   string(node.UID),
		State:     state,
		TaskCount: taskCount,
		Allocated: allocated,
		Total:     nodeAllocatable(node),
	}
}

// AllocatedResources implements ClusterConnector.
func (c *KubernetesConnector) AllocatedResources() Resources {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var sum Resources
	for _, pods := range c.podsByNode {
		for _, pod := range pods {
			sum = sum.Add(PodResourceRequest(pod))
		}
	}
	return sum
}

// TotalResources implements ClusterConnector.
func (c *KubernetesConnector) TotalResources() Resources {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var sum Resources
	seen := make(map[string]bool)
	for _, node := range c.nodesByIP {
		if seen[node.Name] {
			continue
		}
		seen[node.Name] = true
		sum = sum.Add(nodeAllocatable(node))
	}
	return sum
}

// UnschedulablePods returns the pods that could not be scheduled as of the
// last ReloadState, with a classified reason.
func (c *KubernetesConnector) UnschedulablePods() []PendingPod {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]PendingPod, len(c.pendingPods))
	copy(out, c.pendingPods)
	return out
}

// FreezeAgent cordons the node so no new pods schedule onto it.
func (c *KubernetesConnector) FreezeAgent(ctx context.Context, agentID string) error {
	c.mu.RLock()
	var target *corev1.Node
	for _, node := range c.nodesByIP {
		if string(node.UID) == agentID || node.Name == agentID {
			target = node
			break
		}
	}
	c.mu.RUnlock()

	if target == nil {
		return fmt.Errorf("no node with id %q in pool %q", agentID, c.pool)
	}

	node := target.DeepCopy()
	node.Spec.Unschedulable = true
	if _, err := c.client.CoreV1().Nodes().Update(ctx, node, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("cordon node %s: %w", node.Name, err)
	}
	c.logger.Info().
		Str("event", "connector.freeze").
		Str("node", node.Name).
		Msg("cordoned node")
	return nil
}

// PodResourceRequest sums the resource requests of all containers in the
// pod. CPU is in cores, memory and ephemeral storage in MB.
func PodResourceRequest(pod *corev1.Pod) Resources {
	var sum Resources
	for _, container := range pod.Spec.Containers {
		requests := container.Resources.Requests
		if cpu, ok := requests[corev1.ResourceCPU]; ok {
			sum.CPUs += cpu.AsApproximateFloat64()
		}
		if mem, ok := requests[corev1.ResourceMemory]; ok {
			sum.Mem += mem.AsApproximateFloat64() / 1e6
		}
		if disk, ok := requests[corev1.ResourceEphemeralStorage]; ok {
			sum.Disk += disk.AsApproximateFloat64() / 1e6
		}
		if gpus, ok := requests[gpuResourceName]; ok {
			sum.GPUs += gpus.AsApproximateFloat64()
		}
	}
	return sum
}

func nodeAllocatable(node *corev1.Node) Resources {
	var out Resources
	alloc := node.Status.Allocatable
	if cpu, ok := alloc[corev1.ResourceCPU]; ok {
		out.CPUs = cpu.AsApproximateFloat64()
	}
	if mem, ok := alloc[corev1.ResourceMemory]; ok {
		out.Mem = mem.AsApproximateFloat64() / 1e6
	}
	if disk, ok := alloc[corev1.ResourceEphemeralStorage]; ok {
		out.Disk = disk.AsApproximateFloat64() / 1e6
	}
	if gpus, ok := alloc[gpuResourceName]; ok {
		out.GPUs = gpus.AsApproximateFloat64()
	}
	return out
}

func podConsumesResources(pod *corev1.Pod) bool {
	return pod.Status.Phase == corev1.PodRunning || pod.Status.Phase == corev1.PodPending
}

func isUnschedulable(pod *corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodPending {
		return false
	}
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodScheduled && cond.Status == corev1.ConditionFalse && cond.Reason == corev1.PodReasonUnschedulable {
			return true
		}
	}
	return false
}

// unschedulableReason inspects the scheduler's condition message; the
// default scheduler reports "Insufficient cpu" style messages when the pod
// does not fit anywhere.
func unschedulableReason(pod *corev1.Pod) UnschedulableReason {
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodScheduled && cond.Status == corev1.ConditionFalse {
			if strings.Contains(cond.Message, "Insufficient") {
				return ReasonInsufficientResources
			}
		}
	}
	// No scheduler message; fall back to checking whether the pod requests
	// anything at all.
	if PodResourceRequest(pod).Any() {
		return ReasonInsufficientResources
	}
	return ReasonUnknown
}
