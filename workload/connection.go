package workload

import (
	"fmt"
	"os"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// GetClientSet creates a Kubernetes client based on the running environment.
// It prioritizes in-cluster configuration but falls back to a local kubeconfig file.
// The client is only needed when rules are read from a ConfigMap.
func GetClientSet() (kubernetes.Interface, string, error) {
	mode := "in-cluster"
	// Try to create a clientset from in-cluster config (Service Account).
	config, err := rest.InClusterConfig()
	if err != nil {
		// Fallback to local kubeconfig.
		mode = "kubeconfig"
		kubeconfigPath := os.Getenv("KUBECONFIG")
		if kubeconfigPath == "" {
			kubeconfigPath = clientcmd.RecommendedHomeFile
		}

		config, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath)
		if err != nil {
			return nil, "", fmt.Errorf("could not build kubeconfig: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, "", fmt.Errorf("could not create clientset: %w", err)
	}
	return clientset, mode, nil
}
