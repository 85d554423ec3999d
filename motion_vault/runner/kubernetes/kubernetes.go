package kubernetes

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	batchv1 "k8s.io/api/batch/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8syaml "k8s.io/apimachinery/pkg/util/yaml"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"mocap_platform/motion_vault/runner"
)

//go:embed jobs/*
var jobTemplates embed.FS

type KubernetesClient struct {
	clientset kubernetes.Interface
	namespace string
}

// NewKubernetesClient dispatches jobs to the cluster described by the
// kubeconfig file, or to the in-cluster config when the path is empty.
func NewKubernetesClient(kubeConfigPath, namespace string) (runner.Client, error) {
	var config *rest.Config
	var err error
	if kubeConfigPath != "" {
		config, err = clientcmd.BuildConfigFromFlags("", kubeConfigPath)
	} else {
		config, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("error loading kubernetes config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("error creating kubernetes client: %w", err)
	}

	slog.Info("creating kubernetes runner", "namespace", namespace)
	return &KubernetesClient{clientset: clientset, namespace: namespace}, nil
}

func (c *KubernetesClient) renderJob(job runner.Job) (*batchv1.Job, error) {
	templatePath := "jobs/" + job.JobTemplatePath() + "_job.yaml"
	content, err := jobTemplates.ReadFile(templatePath)
	if err != nil {
		return nil, fmt.Errorf("error reading job template %v: %w", templatePath, err)
	}

	tmpl, err := template.New(templatePath).
		Funcs(template.FuncMap{
			"namespace": func() string { return c.namespace },
			"args": func(j runner.Job) (string, error) {
				rendered, err := json.Marshal(j.Args())
				return string(rendered), err
			},
		}).
		Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("error parsing job template %v: %w", templatePath, err)
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, job); err != nil {
		return nil, fmt.Errorf("error rendering job template %v: %w", templatePath, err)
	}

	var jobObj batchv1.Job
	if err := k8syaml.Unmarshal([]byte(buf.String()), &jobObj); err != nil {
		return nil, fmt.Errorf("error unmarshaling job manifest: %w", err)
	}
	return &jobObj, nil
}

// StartJob submits the rendered job, replacing any finished job of the same
// name so transforms can be re-run.
func (c *KubernetesClient) StartJob(job runner.Job) error {
	ctx := context.Background()

	jobObj, err := c.renderJob(job)
	if err != nil {
		slog.Error("error rendering kubernetes job", "job_name", job.GetJobName(), "error", err)
		return err
	}

	jobs := c.clientset.BatchV1().Jobs(c.namespace)

	_, err = jobs.Get(ctx, jobObj.Name, metav1.GetOptions{})
	if err == nil {
		if err := jobs.Delete(ctx, jobObj.Name, metav1.DeleteOptions{}); err != nil {
			slog.Error("error deleting existing job resource", "job_name", jobObj.Name, "error", err)
			return fmt.Errorf("error deleting existing job resource: %w", err)
		}
	} else if !apierrors.IsNotFound(err) {
		return fmt.Errorf("error checking for existing job: %w", err)
	}

	if _, err := jobs.Create(ctx, jobObj, metav1.CreateOptions{}); err != nil {
		slog.Error("error creating job resource", "job_name", jobObj.Name, "error", err)
		return fmt.Errorf("error creating job resource: %w", err)
	}

	slog.Info("kubernetes job started", "job_name", jobObj.Name)
	return nil
}

func (c *KubernetesClient) StopJob(jobName string) error {
	err := c.clientset.BatchV1().Jobs(c.namespace).Delete(context.Background(), jobName, metav1.DeleteOptions{})
	if err != nil {
		slog.Error("error stopping kubernetes job", "job_name", jobName, "error", err)
		return fmt.Errorf("error stopping kubernetes job %v: %w", jobName, err)
	}
	return nil
}

func (c *KubernetesClient) JobInfo(jobName string) (runner.JobInfo, error) {
	jobObj, err := c.clientset.BatchV1().Jobs(c.namespace).Get(context.Background(), jobName, metav1.GetOptions{})
	if err != nil {
		return runner.JobInfo{}, fmt.Errorf("error getting info for kubernetes job %v: %w", jobName, err)
	}

	status := runner.StatusUnknown
	switch {
	case jobObj.Status.Active > 0:
		status = runner.StatusActive
	case jobObj.Status.Succeeded > 0:
		status = runner.StatusSucceeded
	case jobObj.Status.Failed > 0:
		status = runner.StatusFailed
	}

	return runner.JobInfo{Name: jobObj.Name, Status: status}, nil
}
