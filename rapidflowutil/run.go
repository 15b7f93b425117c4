package rapidflowutil

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/erdc/rapidflow/controller"
	"github.com/erdc/rapidflow/dispatch"
	"github.com/erdc/rapidflow/gridcatalog"
	"github.com/erdc/rapidflow/lockfile"
	"github.com/erdc/rapidflow/measure"
	"github.com/erdc/rapidflow/objectstore"
	"github.com/erdc/rapidflow/regionconfig"
	"github.com/erdc/rapidflow/rferrors"
)

func init() {
	runCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return buildAndRun(cmd.Context())
	}
	watchCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return watchLoop(cmd.Context())
	}
	resetLockCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return resetLock()
	}
}

func newLogger() *logrus.Entry {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(Cfg.GetString("log-level")); err == nil {
		log.SetLevel(lvl)
	}
	return logrus.NewEntry(log)
}

func buildController(ctx context.Context, log *logrus.Entry) (*controller.Controller, error) {
	regionsFile := Cfg.GetString("regions-file")
	if regionsFile == "" {
		return nil, fmt.Errorf("%w: --regions-file is required", rferrors.ErrConfigError)
	}
	regions, err := regionconfig.Load(regionsFile)
	if err != nil {
		return nil, err
	}
	tags, err := StringSlice("regions")
	if err != nil {
		return nil, fmt.Errorf("%w: --regions: %v", rferrors.ErrConfigError, err)
	}
	if len(tags) > 0 {
		want := make(map[string]bool, len(tags))
		for _, t := range tags {
			want[t] = true
		}
		kept := regions[:0]
		for _, rc := range regions {
			if want[rc.Region.String()] {
				kept = append(kept, rc)
			}
		}
		regions = kept
	}

	source, err := buildSource()
	if err != nil {
		return nil, err
	}

	backend, err := buildDispatcher(ctx)
	if err != nil {
		return nil, err
	}

	var catalog *gridcatalog.Catalog
	if p := Cfg.GetString("grid-catalog"); p != "" {
		catalog, err = gridcatalog.Load(p)
		if err != nil {
			return nil, err
		}
	} else {
		catalog = gridcatalog.Default()
	}

	var outputBucket *objectstore.Bucket
	if url := Cfg.GetString("output-bucket"); url != "" {
		outputBucket, err = objectstore.OpenBucket(ctx, url)
		if err != nil {
			return nil, err
		}
	}

	measureClient := buildMeasureClient(log)

	cfg := controller.Config{
		LockfilePath: Cfg.GetString("lockfile"),
		Source:       source,
		KernelPath:   Cfg.GetString("rapid-executable"),
		Regions:      regions,
		Dispatcher:   backend,
		Catalog:      catalog,
		DownloadDir:  Cfg.GetString("work-dir"),
		OutputBucket: outputBucket,
		Measure:      measureClient,
		Log:          log,
	}
	return controller.New(cfg), nil
}

// buildMeasureClient opens the USGS gage measurement cache named by
// --measurement-cache. A failure to open it (e.g. an unwritable path)
// disables gage correction for this run rather than aborting the whole
// controller invocation -- regions with no GageStations are unaffected
// either way.
func buildMeasureClient(log *logrus.Entry) *measure.Client {
	path := Cfg.GetString("measurement-cache")
	if path == "" {
		return nil
	}
	client, err := measure.NewClient(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Warn("failed to open measurement cache; gage correction disabled")
		return nil
	}
	return client
}

func buildSource() (objectstore.Source, error) {
	src := Cfg.GetString("source")
	if src == "" {
		return nil, fmt.Errorf("%w: --source is required", rferrors.ErrConfigError)
	}
	if len(src) > 5 && src[:5] == "s3://" {
		rest := src[5:]
		bucket, prefix := rest, ""
		for i := 0; i < len(rest); i++ {
			if rest[i] == '/' {
				bucket, prefix = rest[:i], rest[i+1:]
				break
			}
		}
		sess, err := session.NewSession()
		if err != nil {
			return nil, fmt.Errorf("rapidflow: creating aws session: %w", err)
		}
		return objectstore.NewS3Source(sess, bucket, prefix), nil
	}
	return &objectstore.DirSource{Root: src}, nil
}

func buildDispatcher(ctx context.Context) (dispatch.Backend, error) {
	name, err := DispatchBackendName()
	if err != nil {
		return nil, err
	}
	switch name {
	case "local":
		return &dispatch.LocalBackend{Concurrency: Cfg.GetInt("concurrency")}, nil
	case "k8s":
		restCfg, err := rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("%w: building in-cluster kubernetes config: %v", rferrors.ErrConfigError, err)
		}
		clientset, err := kubernetes.NewForConfig(restCfg)
		if err != nil {
			return nil, fmt.Errorf("%w: building kubernetes clientset: %v", rferrors.ErrConfigError, err)
		}
		return &dispatch.ClusterBackend{
			Clientset: clientset,
			Namespace: Cfg.GetString("k8s-namespace"),
			Image:     Cfg.GetString("k8s-image"),
			PodCommand: func(job dispatch.Job) []string {
				return []string{"rapidflow-member-runner", "--job", job.Name}
			},
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown dispatch backend %q", rferrors.ErrConfigError, name)
	}
}

func buildAndRun(ctx context.Context) error {
	log := newLogger()
	ctrl, err := buildController(ctx, log)
	if err != nil {
		return err
	}
	return ctrl.Run(ctx)
}

func watchLoop(ctx context.Context) error {
	log := newLogger()
	interval := time.Duration(Cfg.GetInt("poll-interval-seconds")) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	for {
		ctrl, err := buildController(ctx, log)
		if err != nil {
			return err
		}
		if err := ctrl.Run(ctx); err != nil {
			log.WithError(err).Error("forecast cycle controller run failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func resetLock() error {
	return lockfile.ResetForReboot(Cfg.GetString("lockfile"))
}
