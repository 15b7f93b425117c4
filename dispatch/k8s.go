package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// ClusterBackend dispatches each Job as a Kubernetes batch/v1 Job in
// Namespace, using Image/Command as the container spec, and blocks until
// every submitted Job reaches a terminal (Complete or Failed) condition.
// This replaces the original's HTCondor DAG submission with the
// equivalent Kubernetes-native primitive (spec §4.6).
type ClusterBackend struct {
	Clientset kubernetes.Interface
	Namespace string
	Image     string
	// PodCommand builds the container command/args for one Job, given its
	// Name -- callers encode which member/segment to run into argv.
	PodCommand func(job Job) []string
	PollEvery  time.Duration
}

// Dispatch creates one batch/v1 Job per entry in jobs and polls until all
// have finished. The Run callback on each Job is never invoked by this
// backend -- PodCommand is what actually runs, inside the pod; Job.Run is
// the LocalBackend's contract only. Dispatch returns an error only for
// failures of the Kubernetes API itself; a submitted Job's failure status
// is reported via that job's Outcome.
func (b *ClusterBackend) Dispatch(ctx context.Context, jobs []Job) ([]Outcome, error) {
	if b.PollEvery <= 0 {
		b.PollEvery = 5 * time.Second
	}

	names := make([]string, len(jobs))
	for i, job := range jobs {
		name := k8sJobName(job.Name, i)
		names[i] = name
		spec := b.jobSpec(name, job)
		if _, err := b.Clientset.BatchV1().Jobs(b.Namespace).Create(ctx, spec, metav1.CreateOptions{}); err != nil {
			return nil, fmt.Errorf("rapidflow: creating kubernetes job %s: %w", name, err)
		}
	}

	outcomes := make([]Outcome, len(jobs))
	start := time.Now()
	pending := map[int]bool{}
	for i := range jobs {
		pending[i] = true
	}

	ticker := time.NewTicker(b.PollEvery)
	defer ticker.Stop()
	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return outcomes, fmt.Errorf("rapidflow: dispatch cancelled with %d jobs still pending: %w", len(pending), ctx.Err())
		case <-ticker.C:
			for i := range pending {
				done, err := b.checkJob(ctx, names[i])
				if done {
					outcomes[i] = Outcome{Name: jobs[i].Name, Err: err, Duration: time.Since(start)}
					delete(pending, i)
				}
			}
		}
	}
	return outcomes, nil
}

func (b *ClusterBackend) checkJob(ctx context.Context, name string) (done bool, err error) {
	j, getErr := b.Clientset.BatchV1().Jobs(b.Namespace).Get(ctx, name, metav1.GetOptions{})
	if getErr != nil {
		if apierrors.IsNotFound(getErr) {
			return true, fmt.Errorf("kubernetes job %s disappeared before completion", name)
		}
		return false, nil // transient API error; keep polling
	}
	for _, c := range j.Status.Conditions {
		if c.Type == batchv1.JobComplete && c.Status == corev1.ConditionTrue {
			return true, nil
		}
		if c.Type == batchv1.JobFailed && c.Status == corev1.ConditionTrue {
			return true, fmt.Errorf("kubernetes job %s failed: %s", name, c.Message)
		}
	}
	return false, nil
}

func (b *ClusterBackend) jobSpec(name string, job Job) *batchv1.Job {
	var backoffLimit int32 = 0
	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: b.Namespace},
		Spec: batchv1.JobSpec{
			BackoffLimit: &backoffLimit,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"app": "rapidflow", "job": name}},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{{
						Name:    "rapidflow-member",
						Image:   b.Image,
						Command: b.PodCommand(job),
					}},
				},
			},
		},
	}
}

// k8sJobName includes a uuid suffix so that two cycles dispatching the
// same member index in close succession never collide on a name still
// held by the cluster's Job history.
func k8sJobName(jobName string, index int) string {
	return fmt.Sprintf("rapidflow-%d-%s-%s", index, sanitizeK8sName(jobName), uuid.New().String()[:8])
}

// sanitizeK8sName lower-cases and strips characters not valid in a
// Kubernetes object name (RFC 1123 subdomain).
func sanitizeK8sName(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-':
			out = append(out, c)
		case c >= 'A' && c <= 'Z':
			out = append(out, c-'A'+'a')
		case c == '.' || c == '_':
			out = append(out, '-')
		}
	}
	if len(out) == 0 {
		return "job"
	}
	if len(out) > 40 {
		out = out[:40]
	}
	return string(out)
}
