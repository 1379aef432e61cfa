// Package cluster performs the one-time Kubernetes adjustments a unit needs
// before its workload can serve: verifying access, elevating container
// privilege and exposing extra service ports.
package cluster

import (
	"context"
	"fmt"
	"strings"

	"github.com/trly/nfops/internal/descriptor"
	"github.com/trly/nfops/internal/log"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Operation names, used as idempotency marker keys.
const (
	OpCheckAccess      = "check-access"
	OpElevatePrivilege = "elevate-privilege"
	OpPatchPorts       = "patch-ports"
)

// Client wraps a Kubernetes clientset scoped to one namespace.
type Client struct {
	kube      kubernetes.Interface
	namespace string
	logger    log.Logger
}

// NewClient creates a Client.
func NewClient(kube kubernetes.Interface, namespace string, logger log.Logger) *Client {
	return &Client{kube: kube, namespace: namespace, logger: logger}
}

// NewClientset builds a clientset from kubeconfig, or from the in-cluster
// service account when kubeconfig is empty.
func NewClientset(kubeconfig string) (kubernetes.Interface, error) {
	var (
		cfg *rest.Config
		err error
	)
	if kubeconfig == "" {
		cfg, err = rest.InClusterConfig()
	} else {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cluster config: %w", err)
	}
	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create cluster client: %w", err)
	}
	return cs, nil
}

// CheckAccess verifies the client may read cluster-scoped RBAC objects.
func (c *Client) CheckAccess(ctx context.Context) error {
	_, err := c.kube.RbacV1().ClusterRoles().List(ctx, metav1.ListOptions{Limit: 1})
	return c.classify(OpCheckAccess, err)
}

// ElevatePrivilege marks the named container of the unit's StatefulSet as
// privileged. It is a no-op when the container already is.
func (c *Client) ElevatePrivilege(ctx context.Context, statefulSet, container string) error {
	sts, err := c.kube.AppsV1().StatefulSets(c.namespace).Get(ctx, statefulSet, metav1.GetOptions{})
	if err != nil {
		return c.classify(OpElevatePrivilege, err)
	}

	found := false
	changed := false
	containers := sts.Spec.Template.Spec.Containers
	for i := range containers {
		if containers[i].Name != container {
			continue
		}
		found = true
		sc := containers[i].SecurityContext
		if sc == nil {
			sc = &corev1.SecurityContext{}
			containers[i].SecurityContext = sc
		}
		if sc.Privileged == nil || !*sc.Privileged {
			privileged := true
			sc.Privileged = &privileged
			changed = true
		}
	}
	if !found {
		return fmt.Errorf("container %s not found in statefulset %s", container, statefulSet)
	}
	if !changed {
		c.logger.Debug("Container already privileged", "statefulset", statefulSet, "container", container)
		return nil
	}

	if _, err := c.kube.AppsV1().StatefulSets(c.namespace).Update(ctx, sts, metav1.UpdateOptions{}); err != nil {
		return c.classify(OpElevatePrivilege, err)
	}
	c.logger.Info("Elevated container privilege", "statefulset", statefulSet, "container", container)
	return nil
}

// PatchServicePorts merges ports into the named Service. Ports are matched
// by name; existing ports with other names are kept.
func (c *Client) PatchServicePorts(ctx context.Context, service string, ports []descriptor.Port) error {
	svc, err := c.kube.CoreV1().Services(c.namespace).Get(ctx, service, metav1.GetOptions{})
	if err != nil {
		return c.classify(OpPatchPorts, err)
	}

	byName := make(map[string]int, len(svc.Spec.Ports))
	for i, p := range svc.Spec.Ports {
		byName[p.Name] = i
	}
	for _, p := range ports {
		sp := servicePort(p)
		if i, ok := byName[p.Name]; ok {
			svc.Spec.Ports[i] = sp
			continue
		}
		byName[p.Name] = len(svc.Spec.Ports)
		svc.Spec.Ports = append(svc.Spec.Ports, sp)
	}

	if _, err := c.kube.CoreV1().Services(c.namespace).Update(ctx, svc, metav1.UpdateOptions{}); err != nil {
		return c.classify(OpPatchPorts, err)
	}
	c.logger.Info("Patched service ports", "service", service, "ports", len(ports))
	return nil
}

func servicePort(p descriptor.Port) corev1.ServicePort {
	target := p.TargetPort
	if target == 0 {
		target = p.Port
	}
	return corev1.ServicePort{
		Name:       p.Name,
		Port:       p.Port,
		TargetPort: intstr.FromInt32(target),
		Protocol:   corev1.Protocol(strings.ToUpper(p.Protocol)),
	}
}

func (c *Client) classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if apierrors.IsForbidden(err) || apierrors.IsUnauthorized(err) {
		return &PermissionDeniedError{Operation: op, Cause: err}
	}
	return fmt.Errorf("%s failed: %w", op, err)
}
