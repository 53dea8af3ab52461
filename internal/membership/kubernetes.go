package membership

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"tasnim.dev/elbctl/internal/utils"
)

// KubernetesConfig selects how to reach the API server. An empty APIServer
// means in-cluster configuration.
type KubernetesConfig struct {
	APIServer     string
	TokenFile     string
	CAFile        string
	LabelSelector string
}

// NewKubernetesClient builds a clientset from cfg.
func NewKubernetesClient(cfg KubernetesConfig) (kubernetes.Interface, error) {
	var restCfg *rest.Config
	if cfg.APIServer == "" {
		c, err := rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("in-cluster config: %w", err)
		}
		restCfg = c
	} else {
		restCfg = &rest.Config{
			Host:            cfg.APIServer,
			BearerTokenFile: cfg.TokenFile,
			TLSClientConfig: rest.TLSClientConfig{CAFile: cfg.CAFile},
		}
	}

	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("create K8s client: %w", err)
	}
	return clientset, nil
}

// KubernetesNodes treats the EC2 instances backing Ready cluster nodes as
// targets. The instance id is the last segment of spec.providerID
// (aws:///us-east-1a/i-0abc).
type KubernetesNodes struct {
	client   kubernetes.Interface
	selector string
}

func NewKubernetesNodes(client kubernetes.Interface, labelSelector string) *KubernetesNodes {
	return &KubernetesNodes{client: client, selector: labelSelector}
}

func (k *KubernetesNodes) CurrentTargets(ctx context.Context) ([]string, error) {
	nodes, err := k.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{LabelSelector: k.selector})
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	var ids []string
	for i := range nodes.Items {
		node := &nodes.Items[i]
		if !nodeReady(node) {
			continue
		}
		if id := InstanceID(node.Spec.ProviderID); id != "" {
			ids = append(ids, id)
		}
	}
	return normalize(ids), nil
}

// Watch calls onChange for every node event matching the selector,
// re-establishing the watch when the server closes it.
func (k *KubernetesNodes) Watch(ctx context.Context, onChange func()) error {
	for {
		w, err := k.client.CoreV1().Nodes().Watch(ctx, metav1.ListOptions{LabelSelector: k.selector})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Msg("Node watch failed; retrying")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Second):
			}
			continue
		}

		k.drain(ctx, w.ResultChan(), onChange)
		w.Stop()
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (k *KubernetesNodes) drain(ctx context.Context, events <-chan watch.Event, onChange func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			onChange()
		}
	}
}

// InstanceID extracts the EC2 instance id from an AWS providerID. Non-AWS
// provider ids yield "".
func InstanceID(providerID string) string {
	if !strings.HasPrefix(providerID, "aws://") {
		return ""
	}
	id := utils.ShortName(providerID)
	if !strings.HasPrefix(id, "i-") {
		return ""
	}
	return id
}

func nodeReady(node *corev1.Node) bool {
	for _, c := range node.Status.Conditions {
		if c.Type == corev1.NodeReady {
			return c.Status == corev1.ConditionTrue
		}
	}
	return false
}
