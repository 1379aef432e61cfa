// Package leadership answers whether this instance is the elected leader of
// its unit. Answers are never cached.
package leadership

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/trly/nfops/internal/log"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Checker reports current leadership.
type Checker interface {
	IsLeader(ctx context.Context) (bool, error)
}

// Static is a Checker with a settable answer.
type Static struct {
	leader atomic.Bool
}

// NewStatic creates a static checker.
func NewStatic(leader bool) *Static {
	s := &Static{}
	s.leader.Store(leader)
	return s
}

// IsLeader implements Checker.
func (s *Static) IsLeader(context.Context) (bool, error) {
	return s.leader.Load(), nil
}

// Set changes the answer.
func (s *Static) Set(leader bool) {
	s.leader.Store(leader)
}

// Lease checks a coordination.k8s.io Lease: this instance leads while the
// lease holder identity equals its pod name.
type Lease struct {
	client    kubernetes.Interface
	namespace string
	name      string
	identity  string
	logger    log.Logger
}

// NewLease creates a Lease checker.
func NewLease(client kubernetes.Interface, namespace, name, identity string, logger log.Logger) *Lease {
	return &Lease{client: client, namespace: namespace, name: name, identity: identity, logger: logger}
}

// IsLeader implements Checker. A missing lease means nobody leads.
func (l *Lease) IsLeader(ctx context.Context) (bool, error) {
	lease, err := l.client.CoordinationV1().Leases(l.namespace).Get(ctx, l.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		l.logger.Debug("Leadership lease not found", "lease", l.name)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read lease %s/%s: %w", l.namespace, l.name, err)
	}
	holder := lease.Spec.HolderIdentity
	return holder != nil && *holder == l.identity, nil
}
