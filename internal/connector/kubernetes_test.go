// SPDX-License-Identifier: Apache-2.0

package connector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes/fake"
)

func poolNode(name, ip string, cpus, memMB string) *corev1.Node {
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			UID:    types.UID("uid-" + name),
			Labels: map[string]string{PoolLabel: "bar"},
		},
		Status: corev1.NodeStatus{
			Addresses: []corev1.NodeAddress{
				{Type: corev1.NodeInternalIP, Address: ip},
			},
			Allocatable: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse(cpus),
				corev1.ResourceMemory: resource.MustParse(memMB),
			},
		},
	}
}

func runningPod(name, node, cpus, mem string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "default"},
		Spec: corev1.PodSpec{
			NodeName: node,
			Containers: []corev1.Container{{
				Name: "main",
				Resources: corev1.ResourceRequirements{
					Requests: corev1.ResourceList{
						corev1.ResourceCPU:    resource.MustParse(cpus),
						corev1.ResourceMemory: resource.MustParse(mem),
					},
				},
			}},
		},
		Status: corev1.PodStatus{Phase: corev1.PodRunning},
	}
}

func unschedulablePod(name, message string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "default"},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{
				Name: "main",
				Resources: corev1.ResourceRequirements{
					Requests: corev1.ResourceList{
						corev1.ResourceCPU: resource.MustParse("1500m"),
					},
				},
			}},
		},
		Status: corev1.PodStatus{
			Phase: corev1.PodPending,
			Conditions: []corev1.PodCondition{{
				Type:    corev1.PodScheduled,
				Status:  corev1.ConditionFalse,
				Reason:  corev1.PodReasonUnschedulable,
				Message: message,
			}},
		},
	}
}

func newTestKubernetesConnector(t *testing.T, objs ...interface{}) *KubernetesConnector {
	t.Helper()
	client := fake.NewSimpleClientset()
	for _, obj := range objs {
		switch o := obj.(type) {
		case *corev1.Node:
			_, err := client.CoreV1().Nodes().Create(context.Background(), o, metav1.CreateOptions{})
			require.NoError(t, err)
		case *corev1.Pod:
			_, err := client.CoreV1().Pods(o.Namespace).Create(context.Background(), o, metav1.CreateOptions{})
			require.NoError(t, err)
		}
	}
	return NewKubernetesConnectorWithClient("kube-test", "bar", client)
}

func TestKubernetesTotalsAndAllocation(t *testing.T) {
	c := newTestKubernetesConnector(t,
		poolNode("node-1", "10.0.0.1", "16", "64000M"),
		poolNode("node-2", "10.0.0.2", "16", "64000M"),
		runningPod("pod-1", "node-1", "2", "4000M"),
		runningPod("pod-2", "node-1", "1500m", "2000M"),
	)
	require.NoError(t, c.ReloadState(context.Background()))

	total := c.TotalResources()
	assert.InDelta(t, 32.0, total.CPUs, 1e-9)
	assert.InDelta(t, 128000.0, total.Mem, 1e-6)

	allocated := c.AllocatedResources()
	assert.InDelta(t, 3.5, allocated.CPUs, 1e-9)
	assert.InDelta(t, 6000.0, allocated.Mem, 1e-6)
}

func TestKubernetesAgentMetadata(t *testing.T) {
	c := newTestKubernetesConnector(t,
		poolNode("node-1", "10.0.0.1", "16", "64000M"),
		runningPod("pod-1", "node-1", "2", "4000M"),
	)
	require.NoError(t, c.ReloadState(context.Background()))

	meta := c.AgentMetadataByIP("10.0.0.1")
	assert.Equal(t, "uid-node-1", meta.AgentID)
	assert.Equal(t, AgentRunning, meta.State)
	assert.Equal(t, 1, meta.TaskCount)

	orphan := c.AgentMetadataByIP("10.9.9.9")
	assert.Equal(t, AgentOrphaned, orphan.State)
}

func TestKubernetesUnschedulablePods(t *testing.T) {
	c := newTestKubernetesConnector(t,
		poolNode("node-1", "10.0.0.1", "16", "64000M"),
		unschedulablePod("pending-1", "0/1 nodes are available: 1 Insufficient cpu."),
		unschedulablePod("pending-2", ""),
	)
	require.NoError(t, c.ReloadState(context.Background()))

	pending := c.UnschedulablePods()
	require.Len(t, pending, 2)
	reasons := map[string]UnschedulableReason{}
	for _, p := range pending {
		reasons[p.Pod.Name] = p.Reason
	}
	assert.Equal(t, ReasonInsufficientResources, reasons["pending-1"])
	// No scheduler message but non-empty requests still points at capacity.
	assert.Equal(t, ReasonInsufficientResources, reasons["pending-2"])
}

func TestKubernetesFreezeAgentCordons(t *testing.T) {
	node := poolNode("node-1", "10.0.0.1", "16", "64000M")
	c := newTestKubernetesConnector(t, node)
	require.NoError(t, c.ReloadState(context.Background()))

	require.NoError(t, c.FreezeAgent(context.Background(), "node-1"))

	updated, err := c.client.CoreV1().Nodes().Get(context.Background(), "node-1", metav1.GetOptions{})
	require.NoError(t, err)
	assert.True(t, updated.Spec.Unschedulable)
}

func TestKubernetesFreezeUnknownAgent(t *testing.T) {
	c := newTestKubernetesConnector(t)
	require.NoError(t, c.ReloadState(context.Background()))
	assert.Error(t, c.FreezeAgent(context.Background(), "ghost"))
}

func TestPodResourceRequestSumsContainers(t *testing.T) {
	pod := &corev1.Pod{
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{
				{
					Resources: corev1.ResourceRequirements{
						Requests: corev1.ResourceList{
							corev1.ResourceCPU:    resource.MustParse("1500m"),
							corev1.ResourceMemory: resource.MustParse("150M"),
						},
					},
				},
				{
					Resources: corev1.ResourceRequirements{
						Requests: corev1.ResourceList{
							corev1.ResourceCPU:    resource.MustParse("1500m"),
							corev1.ResourceMemory: resource.MustParse("350M"),
						},
					},
				},
			},
		},
	}
	req := PodResourceRequest(pod)
	assert.InDelta(t, 3.0, req.CPUs, 1e-9)
	assert.InDelta(t, 500.0, req.Mem, 1e-6)
}
