// Package cluster issues namespace, pod, event, and ingress operations against
// the Kubernetes control plane.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	defaultNamespaceDeleteWait = 120 * time.Second
	defaultDeletePollInterval  = 2 * time.Second
	defaultRequestTimeout      = 30 * time.Second
)

// Labels written on every store namespace.
const (
	LabelStoreID   = "store-platform/store-id"
	LabelStoreName = "store-platform/store-name"
	LabelEngine    = "store-platform/engine"
	LabelManagedBy = "app.kubernetes.io/managed-by"
	ManagedByValue = "store-platform"
)

// ManagedSelector selects namespaces owned by the platform.
const ManagedSelector = LabelManagedBy + "=" + ManagedByValue

// ErrClusterUnavailable indicates the control plane could not be reached or
// did not answer, so the caller cannot tell whether a resource exists.
var ErrClusterUnavailable = errors.New("cluster unavailable")

// PodStatus summarizes one pod.
type PodStatus struct {
	Name         string
	Phase        string
	Ready        bool
	RestartCount int32
}

// Event is one Kubernetes event in a namespace.
type Event struct {
	Type      string
	Reason    string
	Message   string
	Object    string
	Timestamp time.Time
}

// Config controls bounded waits.
type Config struct {
	NamespaceDeleteWait time.Duration
	DeletePollInterval  time.Duration
}

// KubeClient implements cluster operations over a typed clientset.
type KubeClient struct {
	client       kubernetes.Interface
	log          zerolog.Logger
	deleteWait   time.Duration
	pollInterval time.Duration
}

// New creates a cluster client.
func New(client kubernetes.Interface, cfg Config, logger zerolog.Logger) *KubeClient {
	deleteWait := cfg.NamespaceDeleteWait
	if deleteWait <= 0 {
		deleteWait = defaultNamespaceDeleteWait
	}
	pollInterval := cfg.DeletePollInterval
	if pollInterval <= 0 {
		pollInterval = defaultDeletePollInterval
	}
	if pollInterval > deleteWait {
		pollInterval = deleteWait
	}

	return &KubeClient{
		client:       client,
		log:          logger.With().Str("component", "cluster").Logger(),
		deleteWait:   deleteWait,
		pollInterval: pollInterval,
	}
}

// NewClientset builds a clientset from kubeconfig, falling back to the
// in-cluster service account and then the default loading rules.
func NewClientset(kubeconfig string) (kubernetes.Interface, error) {
	var (
		restCfg *rest.Config
		err     error
	)
	if strings.TrimSpace(kubeconfig) != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	} else {
		restCfg, err = rest.InClusterConfig()
		if err != nil {
			rules := clientcmd.NewDefaultClientConfigLoadingRules()
			restCfg, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
		}
	}
	if err != nil {
		return nil, fmt.Errorf("loading kubernetes client config: %w", err)
	}
	restCfg.Timeout = defaultRequestTimeout

	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes clientset: %w", err)
	}
	return clientset, nil
}

// EnsureNamespaceExists creates the namespace with labels when absent.
func (c *KubeClient) EnsureNamespaceExists(ctx context.Context, name string, labels map[string]string) error {
	_, err := c.client.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
	if err == nil {
		c.log.Debug().Str("namespace", name).Msg("namespace already exists")
		return nil
	}
	if !apierrors.IsNotFound(err) {
		return classify(fmt.Sprintf("getting namespace %s", name), err)
	}

	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			Labels: labels,
		},
	}
	if _, err := c.client.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{}); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return nil
		}
		return classify(fmt.Sprintf("creating namespace %s", name), err)
	}
	c.log.Info().Str("namespace", name).Msg("created namespace")
	return nil
}

// DeleteNamespace requests deletion and waits a bounded time for it to disappear.
func (c *KubeClient) DeleteNamespace(ctx context.Context, name string) error {
	err := c.client.CoreV1().Namespaces().Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			c.log.Debug().Str("namespace", name).Msg("namespace already gone")
			return nil
		}
		return classify(fmt.Sprintf("deleting namespace %s", name), err)
	}

	waitErr := wait.PollUntilContextTimeout(ctx, c.pollInterval, c.deleteWait, true, func(ctx context.Context) (bool, error) {
		_, getErr := c.client.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
		if apierrors.IsNotFound(getErr) {
			return true, nil
		}
		return false, nil
	})
	if waitErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn().Str("namespace", name).Dur("waited", c.deleteWait).Msg("namespace still terminating")
		return nil
	}
	c.log.Info().Str("namespace", name).Msg("deleted namespace")
	return nil
}

// NamespaceExists reports whether the namespace exists.
func (c *KubeClient) NamespaceExists(ctx context.Context, name string) (bool, error) {
	_, err := c.client.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
	if err == nil {
		return true, nil
	}
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	return false, classify(fmt.Sprintf("getting namespace %s", name), err)
}

// ListPods returns a status summary for every pod in the namespace.
func (c *KubeClient) ListPods(ctx context.Context, namespace string) ([]PodStatus, error) {
	pods, err := c.client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return []PodStatus{}, nil
		}
		return nil, classify(fmt.Sprintf("listing pods in %s", namespace), err)
	}

	result := make([]PodStatus, 0, len(pods.Items))
	for i := range pods.Items {
		result = append(result, podStatus(&pods.Items[i]))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// AllPodsReady reports whether at least one pod outside the Succeeded phase
// exists and every such pod is ready.
func (c *KubeClient) AllPodsReady(ctx context.Context, namespace string) (bool, error) {
	pods, err := c.ListPods(ctx, namespace)
	if err != nil {
		return false, err
	}
	return PodsReady(pods), nil
}

// PodsReady applies the readiness vote to a pod list.
func PodsReady(pods []PodStatus) bool {
	voting := 0
	for _, pod := range pods {
		if pod.Phase == string(corev1.PodSucceeded) {
			continue
		}
		if !pod.Ready {
			return false
		}
		voting++
	}
	return voting > 0
}

// ListRecentEvents returns up to limit events, newest first.
func (c *KubeClient) ListRecentEvents(ctx context.Context, namespace string, limit int) ([]Event, error) {
	list, err := c.client.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return []Event{}, nil
		}
		return nil, classify(fmt.Sprintf("listing events in %s", namespace), err)
	}

	events := make([]Event, 0, len(list.Items))
	for i := range list.Items {
		item := &list.Items[i]
		object := ""
		if item.InvolvedObject.Kind != "" || item.InvolvedObject.Name != "" {
			object = item.InvolvedObject.Kind + "/" + item.InvolvedObject.Name
		}
		events = append(events, Event{
			Type:      item.Type,
			Reason:    item.Reason,
			Message:   item.Message,
			Object:    object,
			Timestamp: eventTimestamp(item),
		})
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// ListIngressURLs derives external URLs from ingress rule hosts. The scheme
// is https when a TLS entry covers the host.
func (c *KubeClient) ListIngressURLs(ctx context.Context, namespace string) ([]string, error) {
	list, err := c.client.NetworkingV1().Ingresses(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return []string{}, nil
		}
		return nil, classify(fmt.Sprintf("listing ingresses in %s", namespace), err)
	}

	seen := make(map[string]struct{})
	urls := make([]string, 0)
	for i := range list.Items {
		ingress := &list.Items[i]
		for _, rule := range ingress.Spec.Rules {
			host := strings.TrimSpace(rule.Host)
			if host == "" {
				continue
			}
			scheme := "http"
			if tlsCovers(ingress.Spec.TLS, host) {
				scheme = "https"
			}
			url := scheme + "://" + host
			if _, ok := seen[url]; ok {
				continue
			}
			seen[url] = struct{}{}
			urls = append(urls, url)
		}
	}
	return urls, nil
}

// ListManagedNamespaces returns namespace names matching the label selector.
func (c *KubeClient) ListManagedNamespaces(ctx context.Context, selector string) ([]string, error) {
	list, err := c.client.CoreV1().Namespaces().List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, classify("listing managed namespaces", err)
	}

	names := make([]string, 0, len(list.Items))
	for _, ns := range list.Items {
		names = append(names, ns.Name)
	}
	sort.Strings(names)
	return names, nil
}

func podStatus(pod *corev1.Pod) PodStatus {
	ready := false
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			ready = cond.Status == corev1.ConditionTrue
			break
		}
	}
	var restarts int32
	for _, cs := range pod.Status.ContainerStatuses {
		restarts += cs.RestartCount
	}
	return PodStatus{
		Name:         pod.Name,
		Phase:        string(pod.Status.Phase),
		Ready:        ready,
		RestartCount: restarts,
	}
}

func eventTimestamp(event *corev1.Event) time.Time {
	switch {
	case !event.LastTimestamp.IsZero():
		return event.LastTimestamp.UTC()
	case !event.EventTime.IsZero():
		return event.EventTime.UTC()
	case !event.FirstTimestamp.IsZero():
		return event.FirstTimestamp.UTC()
	default:
		return event.CreationTimestamp.UTC()
	}
}

func tlsCovers(entries []networkingv1.IngressTLS, host string) bool {
	for _, entry := range entries {
		if len(entry.Hosts) == 0 {
			return true
		}
		for _, h := range entry.Hosts {
			if strings.EqualFold(strings.TrimSpace(h), host) {
				return true
			}
		}
	}
	return false
}

// classify marks transport failures and overload answers as ErrClusterUnavailable.
func classify(op string, err error) error {
	if IsUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrClusterUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsUnavailable reports whether err means the control plane could not answer.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrClusterUnavailable) {
		return true
	}
	var status apierrors.APIStatus
	if !errors.As(err, &status) {
		return true
	}
	return apierrors.IsTimeout(err) ||
		apierrors.IsServerTimeout(err) ||
		apierrors.IsServiceUnavailable(err) ||
		apierrors.IsTooManyRequests(err) ||
		apierrors.IsInternalError(err)
}
